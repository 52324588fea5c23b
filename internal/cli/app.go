package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/internal/config"
	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/core"
	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/mirror"
	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/orchestrator"
	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/pipeline"
	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/report"
	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/storage"
	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/transkribus"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	config    *string
	logLevel  *string
	logFormat *string
}

func addGlobalFlags(fs *flag.FlagSet) globalFlags {
	fs.SetOutput(flag.CommandLine.Output())
	return globalFlags{
		config:    fs.String("config", "", "config file (default editions.yaml when present)"),
		logLevel:  fs.String("log-level", "", "debug|info|warn|error"),
		logFormat: fs.String("log-format", "", "json|text"),
	}
}

// app holds the components a subcommand may need. Fields are built lazily.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	http   *http.Client

	store  *storage.GormStore
	remote *transkribus.Client
}

func newApp(g globalFlags) (*app, error) {
	cfg, err := config.Load(*g.config)
	if err != nil {
		return nil, err
	}
	if *g.logLevel != "" {
		cfg.Log.Level = *g.logLevel
	}
	if *g.logFormat != "" {
		cfg.Log.Format = *g.logFormat
	}
	logger, err := newLogger(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return &app{
		cfg:    cfg,
		logger: logger,
		http:   &http.Client{Timeout: 2 * time.Minute},
	}, nil
}

func newLogger(level, format string, w io.Writer) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}

func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("closing run store failed", "error", err)
		}
	}
}

// openStore connects to the run database and migrates it.
func (a *app) openStore(ctx context.Context) (*storage.GormStore, error) {
	if a.store != nil {
		return a.store, nil
	}
	store, err := storage.Open(a.cfg.Store.Driver, a.cfg.Store.DSN, storage.WithWorkers(a.cfg.Pipeline.Concurrency))
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("migrate run store: %w", err)
	}
	a.store = store
	return store, nil
}

// login returns a Transkribus client with an open session.
func (a *app) login(ctx context.Context) (*transkribus.Client, error) {
	if a.remote != nil {
		return a.remote, nil
	}
	tc := a.cfg.Transkribus
	if tc.Email == "" || tc.Password == "" {
		return nil, errors.New("TRANSKRIBUS_EMAIL and TRANSKRIBUS_PASSWORD are required")
	}
	client := transkribus.New(
		transkribus.WithBaseURL(tc.BaseURL),
		transkribus.WithHTTPClient(a.http),
		transkribus.WithOCREngine(transkribus.OCREngine(tc.OCREngine)),
		transkribus.WithLogger(a.logger.With("component", "transkribus")),
	)
	if err := client.Login(ctx, tc.Email, tc.Password); err != nil {
		return nil, err
	}
	a.remote = client
	return client, nil
}

// reporter always logs and additionally opens GitLab issues when configured.
func (a *app) reporter() (core.Reporter, error) {
	sinks := report.Multi{}
	rc := a.cfg.Report
	if rc.Enabled() {
		gl, err := report.NewGitLab(rc.Token, rc.Project,
			report.WithGitLabURL(rc.GitLabURL),
			report.WithGitLabHTTPClient(a.http),
			report.WithLabels(rc.Labels...),
			report.WithGitLabLogger(a.logger))
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, gl)
	}
	sinks = append(sinks, report.NewLog(a.logger.With("component", "report")))
	return sinks, nil
}

// mirrorTarget returns nil when no mirror is configured.
func (a *app) mirrorTarget() (mirror.Target, error) {
	mc := a.cfg.Mirror
	if !mc.Enabled() {
		return nil, nil
	}
	if mc.Token == "" {
		return nil, fmt.Errorf("mirror: no token for %s", mc.Provider)
	}
	switch mc.Provider {
	case "github":
		return mirror.NewGitHub(mc.Token, mc.URL, mc.Repository, mc.Branch, a.http)
	default:
		return mirror.NewGitLab(mc.Token, mc.URL, mc.Repository, mc.Branch, a.http)
	}
}

// driver wires the pipeline against the logged-in remote.
func (a *app) driver(ctx context.Context) (*pipeline.Driver, error) {
	remote, err := a.login(ctx)
	if err != nil {
		return nil, err
	}
	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	rep, err := a.reporter()
	if err != nil {
		return nil, err
	}

	pc := a.cfg.Pipeline
	orchOpts := []orchestrator.Option{
		orchestrator.WithPollInterval(pc.PollInterval),
		orchestrator.WithTimeout(pc.Timeout),
		orchestrator.WithLogger(a.logger.With("component", "orchestrator")),
	}
	for kind, d := range pc.StageTimeouts {
		orchOpts = append(orchOpts, orchestrator.WithStageTimeout(core.JobKind(kind), d))
	}
	orch, err := orchestrator.New(remote, orchOpts...)
	if err != nil {
		return nil, err
	}

	opts := []pipeline.Option{
		pipeline.WithConcurrency(pc.Concurrency),
		pipeline.WithUploadConcurrency(pc.UploadConcurrency),
		pipeline.WithTitleTimeout(pc.TitleTimeout),
		pipeline.WithDownloadDir(pc.DownloadDir),
		pipeline.WithStore(store),
		pipeline.WithReporter(rep),
		pipeline.WithLogger(a.logger.With("component", "pipeline")),
	}
	target, err := a.mirrorTarget()
	if err != nil {
		return nil, err
	}
	if target != nil {
		if pc.DownloadDir == "" {
			a.logger.Warn("mirror configured without download_dir, exports are not mirrored")
		} else {
			opts = append(opts, pipeline.WithMirror(mirrorFunc(target, a.cfg.Mirror.Prefix)))
		}
	}
	return pipeline.New(remote, orch, opts...)
}

// mirrorFunc copies a downloaded export below prefix/<collection>/<document>.
func mirrorFunc(t mirror.Target, prefix string) pipeline.MirrorFunc {
	return func(ctx context.Context, doc core.DocumentRef, dir string) (int, error) {
		repoDir := strings.Trim(strings.Join([]string{prefix, doc.CollectionID, doc.ID}, "/"), "/")
		results, err := mirror.MirrorDir(ctx, t, dir, repoDir)
		return mirror.Changed(results), err
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
