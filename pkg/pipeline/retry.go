package pipeline

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/core"
)

// WriteRetry controls how run store reads and writes are retried. SQLite
// returns "database is locked" under concurrent document workers, so short
// retries are the normal case rather than the exception.
type WriteRetry struct {
	Attempts int           // total tries, including the first
	Delay    time.Duration // wait after the first failure, doubled per try
	MaxDelay time.Duration
}

// DefaultWriteRetry is used unless WithWriteRetry or DisableRetry is given.
var DefaultWriteRetry = WriteRetry{
	Attempts: 5,
	Delay:    100 * time.Millisecond,
	MaxDelay: 5 * time.Second,
}

// wait returns the pause before try n+1, with up to 10% jitter either way.
func (r WriteRetry) wait(n int) time.Duration {
	d := r.Delay
	for i := 1; i < n && d < r.MaxDelay; i++ {
		d *= 2
	}
	if r.MaxDelay > 0 && d > r.MaxDelay {
		d = r.MaxDelay
	}
	return d + time.Duration(float64(d)*0.1*(rand.Float64()*2-1))
}

// do calls op until it succeeds, fails permanently or the tries run out.
// The last error is returned.
func (r WriteRetry) do(ctx context.Context, clk core.Clock, op func() error) error {
	var err error
	for n := 1; ; n++ {
		if err = op(); err == nil || !IsRetryableError(err) || n >= r.Attempts {
			return err
		}
		if serr := clk.Sleep(ctx, r.wait(n)); serr != nil {
			return serr
		}
	}
}

// IsRetryableError reports whether a store error is worth another try.
// Context errors, core.NoRetry errors and missing rows are permanent.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var nr *core.NoRetryError
	if errors.As(err, &nr) {
		return false
	}
	return !errors.Is(err, core.ErrNotFound)
}
