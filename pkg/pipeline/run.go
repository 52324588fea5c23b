package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/core"
)

// Plan describes one pipeline pass.
type Plan struct {
	// Name is used as the report title.
	Name string
	// CollectionIDs to process; all visible collections when empty.
	CollectionIDs []string
	// UploadCollectionID receives Uploads.
	UploadCollectionID string
	Uploads            []core.UploadBatch
	// UploadedOnly processes just the uploaded documents instead of every
	// eligible document of the plan's collections.
	UploadedOnly bool
}

// Summary aggregates a pipeline pass.
type Summary struct {
	Ticket    core.Ticket
	Upload    *UploadResult
	Results   []RunResult
	Succeeded int
	Failed    int
	StartedAt time.Time
	Duration  time.Duration
}

func (s *Summary) add(results []RunResult) {
	for _, r := range results {
		if r.Succeeded() {
			s.Succeeded++
		} else {
			s.Failed++
		}
	}
	s.Results = append(s.Results, results...)
}

// Run executes plan: report start, optional upload, processing, final
// report. Document failures are counted in the Summary; the returned error
// covers only upload and discovery failures.
func (d *Driver) Run(ctx context.Context, plan Plan) (Summary, error) {
	sum := Summary{StartedAt: time.Now()}
	name := plan.Name
	if name == "" {
		name = "Digital edition pipeline run"
	}

	ticket, err := d.config.Reporter.ReportStart(ctx, core.ReportContext{
		Title:        name,
		Description:  describePlan(plan),
		CollectionID: plan.UploadCollectionID,
	})
	if err != nil {
		d.logger.Warn("report start failed", "error", err)
	}
	sum.Ticket = ticket

	runErr := d.runPlan(ctx, plan, &sum)
	sum.Duration = time.Since(sum.StartedAt)

	if runErr != nil || sum.Failed > 0 {
		if err := d.config.Reporter.ReportFailure(context.WithoutCancel(ctx), ticket, failureText(sum, runErr)); err != nil {
			d.logger.Warn("report failure failed", "error", err)
		}
	} else {
		msg := fmt.Sprintf("Pipeline finished: %d document(s) processed in %s.", sum.Succeeded, sum.Duration.Round(time.Second))
		if err := d.config.Reporter.ReportSuccess(ctx, ticket, msg); err != nil {
			d.logger.Warn("report success failed", "error", err)
		}
	}

	d.logger.Info("pipeline pass finished", "succeeded", sum.Succeeded, "failed", sum.Failed, "error", runErr)
	d.Emit(&core.PlanFinished{Succeeded: sum.Succeeded, Failed: sum.Failed, Err: runErr, Timestamp: time.Now()})
	return sum, runErr
}

func (d *Driver) runPlan(ctx context.Context, plan Plan, sum *Summary) error {
	if len(plan.Uploads) > 0 {
		if plan.UploadCollectionID == "" {
			return errors.New("pipeline: uploads need a target collection")
		}
		up, err := d.Upload(ctx, plan.UploadCollectionID, plan.Uploads)
		sum.Upload = &up
		if err != nil {
			return err
		}
		if plan.UploadedOnly {
			sum.add(d.ProcessDocuments(ctx, plan.UploadCollectionID, up.Documents()))
			return nil
		}
	}

	cols := plan.CollectionIDs
	if len(cols) == 0 {
		all, err := d.disc.ListCollections(ctx)
		if err != nil {
			return err
		}
		for _, c := range all {
			cols = append(cols, c.ID)
		}
	}

	var errs []error
	for _, col := range cols {
		if ctx.Err() != nil {
			errs = append(errs, core.ErrCancelled)
			break
		}
		results, err := d.ProcessCollection(ctx, col)
		if err != nil {
			d.logger.Error("collection discovery failed", "collection_id", col, "error", err)
			errs = append(errs, err)
			continue
		}
		sum.add(results)
	}
	return errors.Join(errs...)
}

func describePlan(plan Plan) string {
	var b strings.Builder
	if len(plan.Uploads) > 0 {
		fmt.Fprintf(&b, "Uploading %d document(s) to collection %s.\n", len(plan.Uploads), plan.UploadCollectionID)
	}
	if len(plan.CollectionIDs) > 0 {
		fmt.Fprintf(&b, "Processing collections: %s.\n", strings.Join(plan.CollectionIDs, ", "))
	} else if !plan.UploadedOnly {
		b.WriteString("Processing all collections.\n")
	}
	return b.String()
}

func failureText(sum Summary, runErr error) string {
	var b strings.Builder
	if runErr != nil {
		fmt.Fprintf(&b, "Pipeline error: %v\n", runErr)
	}
	if sum.Upload != nil {
		for _, f := range sum.Upload.Failed {
			fmt.Fprintf(&b, "- upload %q: %v\n", f.Title, f.Err)
		}
	}
	for _, r := range sum.Results {
		if r.Succeeded() {
			continue
		}
		fmt.Fprintf(&b, "- %s (document %s): %s %s: %s\n",
			r.Document.Title, r.Document.ID, r.Outcome.Kind, r.Outcome.Status, r.Outcome.Reason())
	}
	return b.String()
}
