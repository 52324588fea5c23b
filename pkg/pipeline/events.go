package pipeline

import (
	"context"

	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/core"
)

// Events returns a channel that receives driver events.
// The caller must call Unsubscribe when done.
func (d *Driver) Events() <-chan core.Event {
	ch := make(chan core.Event, 100)
	d.mu.Lock()
	d.eventSubs = append(d.eventSubs, ch)
	d.mu.Unlock()
	return ch
}

// Unsubscribe removes a channel created by Events. The channel is not
// closed; no further events are sent to it after Unsubscribe returns.
func (d *Driver) Unsubscribe(ch <-chan core.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, sub := range d.eventSubs {
		if sub == ch {
			d.eventSubs = append(d.eventSubs[:i], d.eventSubs[i+1:]...)
			return
		}
	}
}

// Emit sends e to every subscriber, dropping it for subscribers that are full.
func (d *Driver) Emit(e core.Event) {
	d.mu.RLock()
	subs := make([]chan core.Event, len(d.eventSubs))
	copy(subs, d.eventSubs)
	d.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// OnStageFinished registers a hook called after every stage outcome.
func (d *Driver) OnStageFinished(fn func(context.Context, *core.PipelineRun, core.Outcome)) {
	d.mu.Lock()
	d.onStage = append(d.onStage, fn)
	d.mu.Unlock()
}

// OnRunFinished registers a hook called when a document run ends.
func (d *Driver) OnRunFinished(fn func(context.Context, *core.PipelineRun)) {
	d.mu.Lock()
	d.onRun = append(d.onRun, fn)
	d.mu.Unlock()
}

func (d *Driver) callStageHooks(ctx context.Context, run *core.PipelineRun, o core.Outcome) {
	d.mu.RLock()
	hooks := make([]func(context.Context, *core.PipelineRun, core.Outcome), len(d.onStage))
	copy(hooks, d.onStage)
	d.mu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, run.Snapshot(), o)
	}
}

func (d *Driver) callRunHooks(ctx context.Context, run *core.PipelineRun) {
	d.mu.RLock()
	hooks := make([]func(context.Context, *core.PipelineRun), len(d.onRun))
	copy(hooks, d.onRun)
	d.mu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, run.Snapshot())
	}
}
