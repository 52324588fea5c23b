package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/core"
	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/security"
)

// DefaultConcurrency is the number of documents processed at once.
const DefaultConcurrency = 4

// MirrorFunc copies the unpacked export of doc found in dir somewhere else
// and returns the number of files written.
type MirrorFunc func(ctx context.Context, doc core.DocumentRef, dir string) (int, error)

// Option configures a Driver.
type Option interface {
	Apply(*Config)
}

type optionFunc func(*Config)

func (f optionFunc) Apply(c *Config) { f(c) }

// Config holds driver configuration.
type Config struct {
	Concurrency       int
	UploadConcurrency int
	TitleTimeout      time.Duration
	DownloadDir       string
	Store             core.RunStore
	Reporter          core.Reporter
	Mirror            MirrorFunc
	Retry             *WriteRetry
	Clock             core.Clock
	Logger            *slog.Logger
}

// WithConcurrency sets how many documents are processed in parallel.
// Values are clamped to [1, security.MaxConcurrency].
func WithConcurrency(n int) Option {
	return optionFunc(func(c *Config) {
		c.Concurrency = security.ClampConcurrency(n)
	})
}

// WithUploadConcurrency sets how many upload batches are sent in parallel.
func WithUploadConcurrency(n int) Option {
	return optionFunc(func(c *Config) {
		c.UploadConcurrency = security.ClampConcurrency(n)
	})
}

// WithTitleTimeout bounds the wait for uploaded documents to appear.
func WithTitleTimeout(d time.Duration) Option {
	return optionFunc(func(c *Config) {
		c.TitleTimeout = d
	})
}

// WithDownloadDir sets where exports are unpacked. Empty disables downloads.
func WithDownloadDir(dir string) Option {
	return optionFunc(func(c *Config) {
		c.DownloadDir = dir
	})
}

// WithStore enables durable run bookkeeping and resumption.
func WithStore(s core.RunStore) Option {
	return optionFunc(func(c *Config) {
		c.Store = s
	})
}

// WithReporter sets the reporting sink.
func WithReporter(r core.Reporter) Option {
	return optionFunc(func(c *Config) {
		c.Reporter = r
	})
}

// WithMirror mirrors every unpacked export.
func WithMirror(fn MirrorFunc) Option {
	return optionFunc(func(c *Config) {
		c.Mirror = fn
	})
}

// WithWriteRetry sets how often run store calls are tried and the first
// pause between tries.
func WithWriteRetry(attempts int, delay time.Duration) Option {
	return optionFunc(func(c *Config) {
		r := DefaultWriteRetry
		r.Attempts = attempts
		r.Delay = delay
		c.Retry = &r
	})
}

// DisableRetry makes run store calls single-shot.
func DisableRetry() Option {
	return optionFunc(func(c *Config) {
		c.Retry = &WriteRetry{Attempts: 1}
	})
}

// WithClock replaces the wall clock used for scheduling, title polling and
// store retries.
func WithClock(clk core.Clock) Option {
	return optionFunc(func(c *Config) {
		c.Clock = clk
	})
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *Config) {
		c.Logger = l
	})
}
