// Package orchestrator drives one remote job stage: submit, poll until the
// service reports a terminal state, enforce the timeout and honour
// cancellation.
package orchestrator

import (
	"log/slog"
	"time"

	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/core"
)

// DefaultPollInterval is the pause between two status queries.
const DefaultPollInterval = 5 * time.Second

// Config holds orchestrator settings.
type Config struct {
	PollInterval  time.Duration
	Timeout       time.Duration
	StageTimeouts map[core.JobKind]time.Duration
	Clock         core.Clock
	Logger        *slog.Logger
}

// Option modifies Config.
type Option interface {
	Apply(*Config)
}

type optionFunc func(*Config)

func (f optionFunc) Apply(c *Config) { f(c) }

// WithPollInterval sets the pause between status queries.
func WithPollInterval(d time.Duration) Option {
	return optionFunc(func(c *Config) {
		c.PollInterval = d
	})
}

// WithTimeout sets the default per-stage timeout. It is required.
func WithTimeout(d time.Duration) Option {
	return optionFunc(func(c *Config) {
		c.Timeout = d
	})
}

// WithStageTimeout overrides the timeout for one kind.
func WithStageTimeout(kind core.JobKind, d time.Duration) Option {
	return optionFunc(func(c *Config) {
		if c.StageTimeouts == nil {
			c.StageTimeouts = make(map[core.JobKind]time.Duration)
		}
		c.StageTimeouts[kind] = d
	})
}

// WithClock replaces the wall clock, for tests.
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
