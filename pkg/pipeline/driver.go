package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/core"
	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/discovery"
	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/orchestrator"
	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/report"
)

// Driver runs the processing pipeline against a remote service.
type Driver struct {
	remote core.Remote
	orch   *orchestrator.Orchestrator
	disc   *discovery.Discoverer
	config Config
	logger *slog.Logger
	clock  core.Clock

	mu        sync.RWMutex
	eventSubs []chan core.Event
	onStage   []func(context.Context, *core.PipelineRun, core.Outcome)
	onRun     []func(context.Context, *core.PipelineRun)
}

// New creates a driver. The orchestrator carries the poll interval and
// stage timeouts; the upload timeout also bounds the title wait unless
// WithTitleTimeout says otherwise.
func New(remote core.Remote, orch *orchestrator.Orchestrator, opts ...Option) (*Driver, error) {
	if remote == nil || orch == nil {
		return nil, errors.New("pipeline: remote and orchestrator are required")
	}
	config := Config{
		Concurrency:       DefaultConcurrency,
		UploadConcurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt.Apply(&config)
	}
	if config.TitleTimeout <= 0 {
		config.TitleTimeout = orch.Timeout(core.KindUpload)
	}
	if config.Retry == nil {
		r := DefaultWriteRetry
		config.Retry = &r
	}
	if config.Reporter == nil {
		config.Reporter = report.Nop{}
	}
	if config.Clock == nil {
		config.Clock = core.RealClock()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Driver{
		remote: remote,
		orch:   orch,
		disc:   discovery.New(remote, discovery.WithClock(config.Clock), discovery.WithLogger(config.Logger)),
		config: config,
		logger: config.Logger,
		clock:  config.Clock,
	}, nil
}

// Discoverer exposes the driver's document discovery.
func (d *Driver) Discoverer() *discovery.Discoverer {
	return d.disc
}

// persist runs a store write with retry. Failures are logged and swallowed:
// bookkeeping never fails a document.
func (d *Driver) persist(ctx context.Context, op string, run *core.PipelineRun, write func(context.Context, core.RunStore) error) {
	store := d.config.Store
	if store == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	err := d.config.Retry.do(ctx, d.clock, func() error {
		return write(ctx, store)
	})
	if err != nil {
		d.logger.Error("run store write failed", "op", op, "run_id", run.ID, "document_id", run.DocumentID, "error", err)
	}
}

// openRun returns the unfinished run of doc when the store has one, else a
// fresh run.
func (d *Driver) openRun(ctx context.Context, doc core.DocumentRef) (*core.PipelineRun, bool) {
	if store := d.config.Store; store != nil {
		var found *core.PipelineRun
		err := d.config.Retry.do(ctx, d.clock, func() error {
			var err error
			found, err = store.FindResumable(ctx, doc.CollectionID, doc.ID)
			return err
		})
		switch {
		case err != nil:
			d.logger.Warn("could not look up unfinished run", "document_id", doc.ID, "error", err)
		case found != nil:
			if found.Title == "" {
				found.Title = doc.Title
			}
			return found, true
		}
	}

	run := core.NewPipelineRun(doc)
	d.persist(ctx, "create_run", run, func(ctx context.Context, s core.RunStore) error {
		return s.CreateRun(ctx, run)
	})
	return run, false
}
