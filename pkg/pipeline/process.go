package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/core"
	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/orchestrator"
)

// RunResult is the outcome of one document.
type RunResult struct {
	Document  core.DocumentRef
	Run       *core.PipelineRun
	Outcome   core.Outcome // last stage outcome
	Resumed   bool
	OutputDir string
	Mirrored  int
}

// Succeeded reports whether every stage of the document succeeded.
func (r RunResult) Succeeded() bool {
	return r.Outcome.Succeeded()
}

// ProcessCollection runs the stage chain for every eligible document of
// collectionID. A discovery error is the only error returned; per-document
// failures are in the results, which keep discovery order.
func (d *Driver) ProcessCollection(ctx context.Context, collectionID string) ([]RunResult, error) {
	docs, err := d.disc.ListEligibleDocuments(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		d.logger.Info("no new documents", "collection_id", collectionID)
		return nil, nil
	}
	return d.ProcessDocuments(ctx, collectionID, docs), nil
}

// ProcessDocuments runs the stage chain for docs on the worker pool.
func (d *Driver) ProcessDocuments(ctx context.Context, collectionID string, docs []core.DocumentRef) []RunResult {
	docs = append([]core.DocumentRef(nil), docs...)
	results := make([]RunResult, len(docs))
	work := make(chan int, len(docs))
	for i := range docs {
		if docs[i].CollectionID == "" {
			docs[i].CollectionID = collectionID
		}
		work <- i
	}
	close(work)

	workers := d.config.Concurrency
	if workers > len(docs) {
		workers = len(docs)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range work {
				results[i] = d.runDocument(ctx, docs[i])
			}
		}()
	}
	wg.Wait()
	return results
}

// runDocument executes layout analysis, OCR and export for one document,
// skipping stages a resumed run already finished.
func (d *Driver) runDocument(ctx context.Context, doc core.DocumentRef) RunResult {
	res := RunResult{Document: doc}
	if ctx.Err() != nil {
		res.Outcome = core.Outcome{Kind: core.KindLayoutAnalysis, Status: core.OutcomeCancelled, Err: core.ErrCancelled}
		return res
	}

	run, resumed := d.openRun(ctx, doc)
	res.Resumed = resumed
	log := d.logger.With("run_id", run.ID, "collection_id", doc.CollectionID, "document_id", doc.ID)
	if resumed {
		log.Info("resuming run", "completed", run.Completed())
	}
	d.Emit(&core.RunStarted{Run: run.Snapshot(), Resumed: resumed, Timestamp: time.Now()})

	var (
		last  core.Outcome
		pages []string
	)
	for _, kind := range core.Stages() {
		if run.Done(kind) {
			last = lastSuccess(run, kind)
			continue
		}
		last = d.runStage(ctx, run, doc, kind, &pages)
		if !last.Succeeded() {
			break
		}
	}

	if last.Succeeded() && d.config.DownloadDir != "" {
		dir, mirrored, err := d.fetchExport(ctx, doc, last.Result)
		res.OutputDir = dir
		res.Mirrored = mirrored
		if err != nil {
			log.Error("export download failed", "error", err)
			last = core.Outcome{Kind: core.KindExport, Status: core.OutcomeFailed, Job: last.Job, Err: err}
			if ctx.Err() != nil {
				last.Status = core.OutcomeCancelled
			}
		}
	}

	run.Finalize(last)
	d.persist(ctx, "finish_run", run, func(ctx context.Context, s core.RunStore) error {
		return s.UpdateRun(ctx, run)
	})
	if last.Status == core.OutcomeCancelled {
		log.Warn("run interrupted, left for resumption", "stage", last.Kind, "job_id", run.CurrentJobID)
	} else {
		log.Info("run finished", "status", run.Status, "failed_stage", run.FailedStage, "duration", run.Duration())
	}
	d.Emit(&core.RunFinished{Run: run.Snapshot(), Timestamp: time.Now()})
	d.callRunHooks(ctx, run)

	res.Run = run.Snapshot()
	res.Outcome = last
	return res
}

// runStage submits kind (or re-attaches to the job a crashed run left in
// flight) and records the outcome.
func (d *Driver) runStage(ctx context.Context, run *core.PipelineRun, doc core.DocumentRef, kind core.JobKind, pages *[]string) core.Outcome {
	scope := orchestrator.Scope{
		CollectionID: doc.CollectionID,
		DocumentID:   doc.ID,
		OnPoll: func(poll int, pending []core.RemoteJob, err error) {
			d.Emit(&core.StagePolled{
				RunID:      run.ID,
				Kind:       kind,
				DocumentID: doc.ID,
				Poll:       poll,
				Pending:    len(pending),
				Err:        err,
				Timestamp:  time.Now(),
			})
		},
	}

	var out core.Outcome
	if run.CurrentKind == kind && run.CurrentJobID != "" {
		h := core.JobHandle{ID: run.CurrentJobID, Kind: kind, DocumentID: doc.ID}
		d.logger.Info("waiting on job left in flight", "run_id", run.ID, "kind", kind, "job_id", h.ID)
		out = d.orch.Wait(ctx, h, scope)
	} else {
		run.CurrentJobID, run.CurrentKind = "", ""
		if err := run.Ready(kind); err != nil {
			return core.Outcome{Kind: kind, Status: core.OutcomeFailed, Err: err}
		}
		out = d.orch.RunStage(ctx, kind, func(ctx context.Context) (core.JobHandle, error) {
			h, err := d.submit(ctx, doc, kind, pages)
			if err != nil {
				return h, err
			}
			if err := run.Begin(h); err != nil {
				return h, err
			}
			d.persist(ctx, "begin_stage", run, func(ctx context.Context, s core.RunStore) error {
				return s.UpdateRun(ctx, run)
			})
			d.Emit(&core.StageSubmitted{RunID: run.ID, Handle: h, Timestamp: time.Now()})
			return h, nil
		}, scope)
	}

	// A cancelled wait keeps the live job so the next pass reattaches to it.
	if out.Status != core.OutcomeCancelled {
		cp := run.Complete(out)
		d.persist(ctx, "checkpoint", run, func(ctx context.Context, s core.RunStore) error {
			if err := s.SaveCheckpoint(ctx, cp); err != nil {
				return err
			}
			return s.UpdateRun(ctx, run)
		})
	}
	d.Emit(&core.StageFinished{RunID: run.ID, DocumentID: doc.ID, Outcome: out, Timestamp: time.Now()})
	d.callStageHooks(ctx, run, out)
	return out
}

// submit starts kind for doc. Page ids are fetched once per run.
func (d *Driver) submit(ctx context.Context, doc core.DocumentRef, kind core.JobKind, pages *[]string) (core.JobHandle, error) {
	if kind != core.KindExport && *pages == nil {
		ids, err := d.remote.PageIDs(ctx, doc.CollectionID, doc.ID)
		if err != nil {
			return core.JobHandle{}, &core.SubmissionError{Kind: kind, DocumentID: doc.ID, Err: fmt.Errorf("page ids: %w", err)}
		}
		*pages = ids
	}
	switch kind {
	case core.KindLayoutAnalysis:
		return d.remote.StartLayoutAnalysis(ctx, doc.CollectionID, doc.ID, *pages)
	case core.KindOCR:
		return d.remote.StartOCR(ctx, doc.CollectionID, doc.ID, *pages)
	case core.KindExport:
		return d.remote.StartExport(ctx, doc.CollectionID, doc.ID)
	default:
		return core.JobHandle{}, &core.SubmissionError{Kind: kind, DocumentID: doc.ID, Err: fmt.Errorf("unsupported stage %q", kind)}
	}
}

// fetchExport downloads the finished export into
// <download dir>/<collection>/<document> and mirrors it when configured.
func (d *Driver) fetchExport(ctx context.Context, doc core.DocumentRef, resultRef string) (string, int, error) {
	if resultRef == "" {
		return "", 0, fmt.Errorf("export of document %s finished without a result reference", doc.ID)
	}
	dest := filepath.Join(d.config.DownloadDir, doc.CollectionID, doc.ID)
	dir, err := d.remote.Download(ctx, resultRef, dest)
	if err != nil {
		return "", 0, fmt.Errorf("download export: %w", err)
	}
	if d.config.Mirror == nil {
		return dir, 0, nil
	}
	n, err := d.config.Mirror(ctx, doc, dir)
	if err != nil {
		d.logger.Warn("mirroring export failed", "document_id", doc.ID, "mirrored", n, "error", err)
	}
	return dir, n, nil
}

func lastSuccess(run *core.PipelineRun, kind core.JobKind) core.Outcome {
	for i := len(run.Stages) - 1; i >= 0; i-- {
		cp := run.Stages[i]
		if cp.Kind == kind && cp.Status == core.OutcomeSuccess {
			return core.Outcome{
				Kind:   kind,
				Status: core.OutcomeSuccess,
				Job:    core.JobHandle{ID: cp.JobID, Kind: kind, DocumentID: run.DocumentID},
				Result: cp.Result,
				Polls:  cp.Polls,
			}
		}
	}
	return core.Outcome{Kind: kind, Status: core.OutcomeSuccess}
}
