package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/core"
	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/discovery"
	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/orchestrator"
)

// BatchFailure records an upload batch the service did not accept.
type BatchFailure struct {
	Title string
	Err   error
}

// UploadResult is the outcome of the upload phase.
type UploadResult struct {
	CollectionID string
	Submitted    []string
	Failed       []BatchFailure
	Outcome      core.Outcome
	Titles       discovery.TitleMap
}

// Documents returns the uploaded documents that became visible.
func (r UploadResult) Documents() []core.DocumentRef {
	return r.Titles.Documents(r.CollectionID)
}

// Upload sends every batch to collectionID, waits for the ingestion jobs and
// then for the new documents to show up by title. A failed batch does not
// stop the others; it is listed in UploadResult.Failed.
func (d *Driver) Upload(ctx context.Context, collectionID string, batches []core.UploadBatch) (UploadResult, error) {
	res := UploadResult{CollectionID: collectionID}
	log := d.logger.With("collection_id", collectionID)

	submit := func(ctx context.Context) (core.JobHandle, error) {
		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(d.config.UploadConcurrency)
		submitted := make([]bool, len(batches))
		for i, batch := range batches {
			g.Go(func() error {
				_, err := d.remote.Upload(gctx, collectionID, batch)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					log.Error("upload batch failed", "title", batch.Title, "error", err)
					res.Failed = append(res.Failed, BatchFailure{Title: batch.Title, Err: err})
					return nil
				}
				log.Info("upload batch submitted", "title", batch.Title, "files", len(batch.Files))
				submitted[i] = true
				return nil
			})
		}
		_ = g.Wait()

		for i, ok := range submitted {
			if ok {
				res.Submitted = append(res.Submitted, batches[i].Title)
			}
		}
		if len(res.Submitted) == 0 {
			return core.JobHandle{}, errors.New("no upload batch was accepted")
		}
		return core.JobHandle{Kind: core.KindUpload}, nil
	}

	res.Outcome = d.orch.RunStage(ctx, core.KindUpload, submit, orchestrator.Scope{CollectionID: collectionID})
	if !res.Outcome.Succeeded() {
		err := res.Outcome.Err
		if err == nil {
			err = fmt.Errorf("upload %s", res.Outcome.Status)
		}
		d.emitUpload(res, err)
		return res, err
	}

	titles, err := d.disc.AwaitTitles(ctx, collectionID, res.Submitted, d.config.TitleTimeout, d.orch.PollInterval())
	if err != nil {
		d.emitUpload(res, err)
		return res, fmt.Errorf("await uploaded documents: %w", err)
	}
	res.Titles = titles
	log.Info("upload finished", "documents", len(titles.Entries), "failed", len(res.Failed))
	d.emitUpload(res, nil)
	return res, nil
}

func (d *Driver) emitUpload(res UploadResult, err error) {
	failed := make([]string, 0, len(res.Failed))
	for _, f := range res.Failed {
		failed = append(failed, f.Title)
	}
	d.Emit(&core.UploadFinished{
		CollectionID: res.CollectionID,
		Titles:       append([]string(nil), res.Submitted...),
		Failed:       failed,
		Err:          err,
		Timestamp:    time.Now(),
	})
}
