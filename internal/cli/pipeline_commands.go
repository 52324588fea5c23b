package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/core"
	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/monitor"
	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/pipeline"
	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/summary"
	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/transkribus"
)

func runPipeline(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	g := addGlobalFlags(fs)
	name := fs.String("name", "", "report title for the pass")
	collections := fs.String("collections", "", "comma-separated collection ids (default: config, else all)")
	uploadDir := fs.String("upload-dir", "", "directory with one image folder per document to upload first")
	uploadCol := fs.String("upload-collection", "", "collection receiving the uploads")
	uploadedOnly := fs.Bool("uploaded-only", false, "process only the documents uploaded in this pass")
	schedule := fs.String("schedule", "", "cron expression; repeat the pass until interrupted")
	watch := fs.Bool("monitor", false, "follow the pass in a terminal view")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(g)
	if err != nil {
		return err
	}
	defer a.Close()

	plan := pipeline.Plan{
		Name:               *name,
		CollectionIDs:      splitList(*collections),
		UploadCollectionID: *uploadCol,
		UploadedOnly:       *uploadedOnly,
	}
	if len(plan.CollectionIDs) == 0 {
		plan.CollectionIDs = a.cfg.Pipeline.Collections
	}
	if *uploadDir != "" {
		if plan.Uploads, err = transkribus.ScanUploadDir(*uploadDir); err != nil {
			return err
		}
	}

	d, err := a.driver(ctx)
	if err != nil {
		return err
	}

	expr := firstNonEmpty(*schedule, a.cfg.Pipeline.Schedule)
	if expr != "" {
		sched, err := pipeline.ParseCron(expr)
		if err != nil {
			return err
		}
		err = d.RunScheduled(ctx, sched, plan)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	var sum pipeline.Summary
	if *watch {
		sum, err = runWithMonitor(ctx, d, plan)
	} else {
		sum, err = d.Run(ctx, plan)
	}
	printSummary(sum)
	if err != nil {
		return err
	}
	if sum.Failed > 0 {
		return fmt.Errorf("%d document(s) failed", sum.Failed)
	}
	return nil
}

// runWithMonitor runs plan in the background while the terminal view
// follows its events. Quitting the view cancels the pass.
func runWithMonitor(ctx context.Context, d *pipeline.Driver, plan pipeline.Plan) (pipeline.Summary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	events := d.Events()
	defer d.Unsubscribe(events)

	type result struct {
		sum pipeline.Summary
		err error
	}
	done := make(chan result, 1)
	go func() {
		sum, err := d.Run(ctx, plan)
		done <- result{sum, err}
	}()

	if err := monitor.Run(events, cancel); err != nil {
		cancel()
		r := <-done
		return r.sum, errors.Join(r.err, err)
	}
	r := <-done
	return r.sum, r.err
}

func printSummary(sum pipeline.Summary) {
	if sum.Ticket.URL != "" {
		fmt.Printf("report: %s\n", sum.Ticket.URL)
	}
	if sum.Upload != nil {
		fmt.Printf("uploaded: %d, rejected: %d\n", len(sum.Upload.Submitted), len(sum.Upload.Failed))
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COLLECTION\tDOCUMENT\tTITLE\tSTATUS\tDETAIL")
	for _, r := range sum.Results {
		detail := r.Outcome.Reason()
		if r.Succeeded() && r.OutputDir != "" {
			detail = r.OutputDir
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Document.CollectionID, r.Document.ID, r.Document.Title, r.Outcome.Status, detail)
	}
	_ = tw.Flush()
	fmt.Printf("succeeded: %d, failed: %d, duration: %s\n", sum.Succeeded, sum.Failed, sum.Duration.Round(time.Second))
}

func runUpload(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("upload", flag.ContinueOnError)
	g := addGlobalFlags(fs)
	dir := fs.String("dir", "", "directory with one image folder per document")
	collection := fs.String("collection", "", "target collection id")
	jsonOut := fs.Bool("json", false, "print JSON output")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dir == "" || *collection == "" {
		fs.Usage()
		return errors.New("--dir and --collection are required")
	}

	batches, err := transkribus.ScanUploadDir(*dir)
	if err != nil {
		return err
	}
	if len(batches) == 0 {
		return fmt.Errorf("no image folders found in %s", *dir)
	}

	a, err := newApp(g)
	if err != nil {
		return err
	}
	defer a.Close()
	d, err := a.driver(ctx)
	if err != nil {
		return err
	}

	res, err := d.Upload(ctx, *collection, batches)
	if *jsonOut {
		if perr := printJSON(res.Documents()); perr != nil {
			return perr
		}
	} else {
		for _, e := range res.Titles.Entries {
			fmt.Printf("%s\t%s\n", e.DocumentID, e.Title)
		}
		for _, f := range res.Failed {
			fmt.Printf("rejected\t%s\t%v\n", f.Title, f.Err)
		}
	}
	return err
}

func runProcess(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("process", flag.ContinueOnError)
	g := addGlobalFlags(fs)
	collection := fs.String("collection", "", "collection id")
	documents := fs.String("documents", "", "comma-separated document ids (default: every new document)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *collection == "" {
		fs.Usage()
		return errors.New("--collection is required")
	}

	a, err := newApp(g)
	if err != nil {
		return err
	}
	defer a.Close()
	d, err := a.driver(ctx)
	if err != nil {
		return err
	}

	var results []pipeline.RunResult
	if ids := splitList(*documents); len(ids) > 0 {
		docs, err := selectDocuments(ctx, a.remote, *collection, ids)
		if err != nil {
			return err
		}
		results = d.ProcessDocuments(ctx, *collection, docs)
	} else if results, err = d.ProcessCollection(ctx, *collection); err != nil {
		return err
	}

	var sum pipeline.Summary
	for _, r := range results {
		if r.Succeeded() {
			sum.Succeeded++
		} else {
			sum.Failed++
		}
	}
	sum.Results = results
	printSummary(sum)
	if sum.Failed > 0 {
		return fmt.Errorf("%d document(s) failed", sum.Failed)
	}
	return nil
}

// selectDocuments resolves explicit ids, eligible or not.
func selectDocuments(ctx context.Context, lister core.DocumentLister, collection string, ids []string) ([]core.DocumentRef, error) {
	all, err := lister.ListDocuments(ctx, collection)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]core.DocumentRef, len(all))
	for _, doc := range all {
		byID[doc.ID] = doc
	}
	docs := make([]core.DocumentRef, 0, len(ids))
	var missing []string
	for _, id := range ids {
		doc, ok := byID[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		docs = append(docs, doc)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("documents not in collection %s: %s: %w", collection, strings.Join(missing, ", "), core.ErrNotFound)
	}
	return docs, nil
}

func runCollections(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("collections", flag.ContinueOnError)
	g := addGlobalFlags(fs)
	jsonOut := fs.Bool("json", false, "print JSON output")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(g)
	if err != nil {
		return err
	}
	defer a.Close()
	remote, err := a.login(ctx)
	if err != nil {
		return err
	}
	cols, err := remote.ListCollections(ctx)
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(cols)
	}
	for _, c := range cols {
		fmt.Printf("%s\t%s\n", c.ID, c.Name)
	}
	return nil
}

func runHistory(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	g := addGlobalFlags(fs)
	out := fs.String("out", "runs.xlsx", "workbook path")
	collection := fs.String("collection", "", "only runs of this collection")
	status := fs.String("status", "", "only runs with this status")
	since := fs.Duration("since", 0, "only runs started within this duration")
	limit := fs.Int("limit", 0, "maximum number of runs")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(g)
	if err != nil {
		return err
	}
	defer a.Close()
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}

	q := core.RunQuery{CollectionID: *collection, Status: core.RunStatus(*status), Limit: *limit}
	if *since > 0 {
		q.Since = time.Now().Add(-*since)
	}
	data, err := summary.ExportRuns(ctx, store, q)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", *out, err)
	}
	fmt.Printf("wrote %s\n", *out)
	return nil
}
