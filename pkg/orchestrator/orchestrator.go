package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/core"
)

// SubmitFunc submits one remote work item.
type SubmitFunc func(ctx context.Context) (core.JobHandle, error)

// PollObserver is told about every status query of a wait. pending holds
// the relevant jobs that are not finished yet; err is the poll error, if any.
type PollObserver func(poll int, pending []core.RemoteJob, err error)

// Scope narrows which remote jobs a stage waits for.
type Scope struct {
	CollectionID string
	DocumentID   string
	OnPoll       PollObserver
}

// Orchestrator runs stages against a job lister.
type Orchestrator struct {
	lister core.JobLister
	config Config
	clock  core.Clock
	logger *slog.Logger
}

// New creates an orchestrator. A positive timeout is mandatory.
func New(lister core.JobLister, opts ...Option) (*Orchestrator, error) {
	config := Config{PollInterval: DefaultPollInterval}
	for _, opt := range opts {
		opt.Apply(&config)
	}
	if config.PollInterval <= 0 || config.Timeout <= 0 {
		return nil, core.ErrTimeoutRequired
	}
	for _, d := range config.StageTimeouts {
		if d <= 0 {
			return nil, core.ErrTimeoutRequired
		}
	}

	o := &Orchestrator{lister: lister, config: config, clock: config.Clock, logger: config.Logger}
	if o.clock == nil {
		o.clock = core.RealClock()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o, nil
}

// PollInterval returns the configured pause between status queries.
func (o *Orchestrator) PollInterval() time.Duration {
	return o.config.PollInterval
}

// Timeout returns the effective timeout for kind.
func (o *Orchestrator) Timeout(kind core.JobKind) time.Duration {
	if d, ok := o.config.StageTimeouts[kind]; ok {
		return d
	}
	return o.config.Timeout
}

// RunStage submits a job of the given kind and waits until the service
// reports it terminal. A rejected submission is never retried.
func (o *Orchestrator) RunStage(ctx context.Context, kind core.JobKind, submit SubmitFunc, scope Scope) core.Outcome {
	if ctx.Err() != nil {
		return cancelled(core.Outcome{Kind: kind})
	}

	history := o.failedBefore(ctx, kind, scope.DocumentID)
	h, err := submit(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return cancelled(core.Outcome{Kind: kind})
		}
		var se *core.SubmissionError
		if !errors.As(err, &se) {
			err = &core.SubmissionError{Kind: kind, DocumentID: scope.DocumentID, Err: err}
		}
		o.logger.Error("stage submission failed", "kind", kind, "document_id", scope.DocumentID, "error", err)
		return core.Outcome{Kind: kind, Status: core.OutcomeFailed, Err: err}
	}

	if h.Kind == "" {
		h.Kind = kind
	}
	if h.DocumentID == "" {
		h.DocumentID = scope.DocumentID
	}
	return o.wait(ctx, h, scope, history)
}

// Wait polls until the job behind h is terminal. Without a job id it waits
// until no job of h.Kind (for h.DocumentID, when set) is pending or running;
// jobs already failed at the first poll are then ignored.
func (o *Orchestrator) Wait(ctx context.Context, h core.JobHandle, scope Scope) core.Outcome {
	return o.wait(ctx, h, scope, nil)
}

// failedBefore lists the jobs of kind that failed before this stage
// submitted anything. It returns nil when the list is unavailable.
func (o *Orchestrator) failedBefore(ctx context.Context, kind core.JobKind, documentID string) map[string]bool {
	jobs, err := o.lister.ListJobs(ctx, core.JobFilter{Kind: kind, DocumentID: documentID})
	if err != nil {
		o.logger.Debug("job history unavailable before submission", "kind", kind, "document_id", documentID, "error", err)
		return nil
	}
	return failedIDs(jobs)
}

// wait is Wait with the failures known before submission; nil history is
// taken from the first poll.
func (o *Orchestrator) wait(ctx context.Context, h core.JobHandle, scope Scope, history map[string]bool) core.Outcome {
	out := core.Outcome{Kind: h.Kind, Job: h}
	timeout := o.Timeout(h.Kind)
	deadline := o.clock.Now().Add(timeout)
	filter := core.JobFilter{Kind: h.Kind, DocumentID: h.DocumentID, JobID: h.ID}
	log := o.logger.With("kind", h.Kind, "job_id", h.ID, "document_id", h.DocumentID)

	var pending []core.RemoteJob
	for poll := 1; ; poll++ {
		if ctx.Err() != nil {
			return cancelled(out)
		}

		jobs, err := o.lister.ListJobs(ctx, filter)
		out.Polls = poll
		switch {
		case err != nil && ctx.Err() != nil:
			return cancelled(out)
		case err != nil:
			var pe *core.ParseError
			if errors.As(err, &pe) {
				log.Error("unreadable job status", "error", err)
				out.Status = core.OutcomeFailed
				out.Err = err
				return out
			}
			perr := &core.PollError{Err: err}
			log.Warn("job status query failed, retrying", "poll", poll, "error", err)
			notify(scope.OnPoll, poll, pending, perr)
		default:
			if history == nil {
				history = failedIDs(jobs)
			}
			var failed *core.RemoteJob
			var done *core.RemoteJob
			pending, failed, done = evaluate(jobs, h, history)
			notify(scope.OnPoll, poll, pending, nil)

			if failed != nil {
				log.Error("remote job failed", "failed_job_id", failed.ID, "state", failed.State)
				out.Status = core.OutcomeFailed
				out.Err = &core.JobFailedError{Job: *failed}
				return out
			}
			if len(pending) == 0 && (h.ID == "" || done != nil) {
				if done != nil {
					out.Result = done.Result
				}
				out.Status = core.OutcomeSuccess
				log.Info("stage finished", "polls", poll)
				return out
			}
			log.Debug("waiting for remote jobs", "poll", poll, "pending", len(pending))
		}

		now := o.clock.Now()
		if !now.Before(deadline) {
			out.Status = core.OutcomeTimedOut
			out.Missing = missing(pending, h)
			out.Err = &core.TimeoutError{What: string(h.Kind) + " jobs", After: timeout, Missing: out.Missing}
			log.Error("stage timed out", "polls", poll, "missing", out.Missing)
			return out
		}
		wait := o.config.PollInterval
		if remaining := deadline.Sub(now); remaining < wait {
			wait = remaining
		}
		if err := o.clock.Sleep(ctx, wait); err != nil {
			return cancelled(out)
		}
	}
}

// evaluate splits one poll into the jobs still blocking the wait, a job
// that failed during the wait and the handle's own finished job.
// Jobs in history had failed before the wait and are ignored.
func evaluate(jobs []core.RemoteJob, h core.JobHandle, history map[string]bool) (pending []core.RemoteJob, failed, done *core.RemoteJob) {
	for i := range jobs {
		j := jobs[i]
		if h.ID != "" && j.ID != h.ID {
			continue
		}
		if h.ID == "" && !j.Matches(h.Kind, h.DocumentID) {
			continue
		}
		switch j.State {
		case core.StateFinished:
			// The service marks an export finished before its download link is set.
			if j.Kind == core.KindExport && j.Result == "" {
				pending = append(pending, j)
				continue
			}
			if h.ID != "" {
				done = &jobs[i]
			}
		case core.StateFailed:
			if h.ID != "" || !history[j.ID] {
				failed = &jobs[i]
				return pending, failed, done
			}
		default:
			pending = append(pending, j)
		}
	}
	return pending, nil, done
}

func failedIDs(jobs []core.RemoteJob) map[string]bool {
	ids := make(map[string]bool)
	for _, j := range jobs {
		if j.State == core.StateFailed {
			ids[j.ID] = true
		}
	}
	return ids
}

func missing(pending []core.RemoteJob, h core.JobHandle) []string {
	if len(pending) > 0 {
		ids := make([]string, 0, len(pending))
		for _, j := range pending {
			ids = append(ids, j.ID)
		}
		return ids
	}
	if h.ID != "" {
		return []string{h.ID}
	}
	if h.DocumentID != "" {
		return []string{string(h.Kind) + "/" + h.DocumentID}
	}
	return []string{string(h.Kind)}
}

func notify(fn PollObserver, poll int, pending []core.RemoteJob, err error) {
	if fn != nil {
		fn(poll, pending, err)
	}
}

func cancelled(out core.Outcome) core.Outcome {
	out.Status = core.OutcomeCancelled
	out.Err = core.ErrCancelled
	return out
}
