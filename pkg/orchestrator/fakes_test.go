package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/core"
)

// fakeClock advances only when Sleep is called.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	return nil
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

type pollResult struct {
	jobs []core.RemoteJob
	err  error
}

// scriptedLister replays one result per call; the last one repeats.
// A gated lister answers with before until submit is called, without
// touching the script, so RunStage's pre-submission query can be told apart.
type scriptedLister struct {
	mu      sync.Mutex
	script  []pollResult
	calls   int
	filters []core.JobFilter

	gated  bool
	live   bool
	before []core.RemoteJob
	early  int
}

func stageLister(script []pollResult) *scriptedLister {
	return &scriptedLister{script: script, gated: true}
}

func (l *scriptedLister) ListJobs(_ context.Context, filter core.JobFilter) ([]core.RemoteJob, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.gated && !l.live {
		l.early++
		return l.before, nil
	}
	l.filters = append(l.filters, filter)
	i := l.calls
	if i >= len(l.script) {
		i = len(l.script) - 1
	}
	l.calls++
	r := l.script[i]
	return r.jobs, r.err
}

// submit returns a SubmitFunc that opens the gate and yields h.
func (l *scriptedLister) submit(h core.JobHandle) SubmitFunc {
	return func(context.Context) (core.JobHandle, error) {
		l.mu.Lock()
		l.live = true
		l.mu.Unlock()
		return h, nil
	}
}

func states(kind core.JobKind, id, doc string, seq ...core.JobState) []pollResult {
	out := make([]pollResult, 0, len(seq))
	for _, s := range seq {
		out = append(out, pollResult{jobs: []core.RemoteJob{{ID: id, Kind: kind, DocumentID: doc, State: s, Result: resultFor(s)}}})
	}
	return out
}

func resultFor(s core.JobState) string {
	if s == core.StateFinished {
		return "https://files.example/export.zip"
	}
	return ""
}
