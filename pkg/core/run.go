package core

import (
	"time"

	"github.com/google/uuid"
)

// OutcomeStatus is the terminal result of one stage.
type OutcomeStatus string

const (
	OutcomeSuccess   OutcomeStatus = "success"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeTimedOut  OutcomeStatus = "timed_out"
	OutcomeCancelled OutcomeStatus = "cancelled"
)

// Outcome is what the orchestrator returns for a stage.
type Outcome struct {
	Kind    JobKind
	Status  OutcomeStatus
	Job     JobHandle
	Result  string   // result payload of the finished job, e.g. a download URL
	Missing []string // unfinished jobs when timed out
	Err     error
	Polls   int
}

// Succeeded reports whether the stage finished successfully.
func (o Outcome) Succeeded() bool {
	return o.Status == OutcomeSuccess
}

// Reason describes a non-successful outcome.
func (o Outcome) Reason() string {
	if o.Err != nil {
		return o.Err.Error()
	}
	if o.Status == OutcomeSuccess {
		return ""
	}
	return string(o.Kind) + " " + string(o.Status)
}

// RunStatus is the state of a PipelineRun.
type RunStatus string

const (
	RunRunning  RunStatus = "running"
	RunSuccess  RunStatus = "success"
	RunFailed   RunStatus = "failed"
	RunTimedOut RunStatus = "timed_out"
)

// Terminal reports whether the run has ended.
func (s RunStatus) Terminal() bool {
	return s != RunRunning && s != ""
}

// PipelineRun tracks one document through the stage chain.
type PipelineRun struct {
	ID           string     `gorm:"primaryKey;size:36"`
	CollectionID string     `gorm:"index;size:64;not null"`
	DocumentID   string     `gorm:"index;size:64;not null"`
	Title        string     `gorm:"size:255"`
	Status       RunStatus  `gorm:"index;size:20;default:'running'"`
	FailedStage  JobKind    `gorm:"size:32"`
	Reason       string     `gorm:"type:text"`
	CurrentJobID string     `gorm:"size:64"`
	CurrentKind  JobKind    `gorm:"size:32"`
	StartedAt    time.Time  `gorm:"index"`
	FinishedAt   *time.Time
	CreatedAt    time.Time  `gorm:"autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime"`

	Stages []StageCheckpoint `gorm:"foreignKey:RunID"`
}

// StageCheckpoint records one finished stage attempt of a run.
type StageCheckpoint struct {
	ID        string        `gorm:"primaryKey;size:36"`
	RunID     string        `gorm:"index;size:36;not null"`
	Seq       int           `gorm:"not null;default:0"`
	Kind      JobKind       `gorm:"size:32;not null"`
	JobID     string        `gorm:"size:64"`
	Status    OutcomeStatus `gorm:"size:20;not null"`
	Result    string        `gorm:"type:text"`
	Error     string        `gorm:"type:text"`
	Polls     int
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// NewPipelineRun starts bookkeeping for a document.
func NewPipelineRun(doc DocumentRef) *PipelineRun {
	return &PipelineRun{
		ID:           uuid.New().String(),
		CollectionID: doc.CollectionID,
		DocumentID:   doc.ID,
		Title:        doc.Title,
		Status:       RunRunning,
		StartedAt:    time.Now(),
	}
}

// Done reports whether kind already has a successful checkpoint.
func (r *PipelineRun) Done(kind JobKind) bool {
	for _, cp := range r.Stages {
		if cp.Kind == kind && cp.Status == OutcomeSuccess {
			return true
		}
	}
	return false
}

// Completed returns the successfully finished stages in processing order.
func (r *PipelineRun) Completed() []JobKind {
	var done []JobKind
	for _, k := range Stages() {
		if r.Done(k) {
			done = append(done, k)
		}
	}
	return done
}

// Ready checks that kind may be submitted now.
func (r *PipelineRun) Ready(kind JobKind) error {
	if r.Status.Terminal() {
		return ErrRunFinished
	}
	if r.CurrentJobID != "" || r.CurrentKind != "" {
		return ErrStageInFlight
	}
	for _, k := range Stages() {
		if k == kind {
			return nil
		}
		if !r.Done(k) {
			return ErrStageOutOfOrder
		}
	}
	return nil
}

// Begin records h as the run's single live job.
func (r *PipelineRun) Begin(h JobHandle) error {
	if err := r.Ready(h.Kind); err != nil {
		return err
	}
	r.CurrentJobID = h.ID
	r.CurrentKind = h.Kind
	return nil
}

// Complete clears the live job and appends a checkpoint for o.
func (r *PipelineRun) Complete(o Outcome) *StageCheckpoint {
	cp := StageCheckpoint{
		ID:     uuid.New().String(),
		RunID:  r.ID,
		Seq:    len(r.Stages),
		Kind:   o.Kind,
		JobID:  o.Job.ID,
		Status: o.Status,
		Result: o.Result,
		Polls:  o.Polls,
	}
	if !o.Succeeded() {
		cp.Error = o.Reason()
	}
	r.CurrentJobID = ""
	r.CurrentKind = ""
	r.Stages = append(r.Stages, cp)
	return &r.Stages[len(r.Stages)-1]
}

// Finalize ends the run. A non-successful outcome names the failed stage.
// A cancelled outcome does not end the run; see Interrupt.
func (r *PipelineRun) Finalize(o Outcome) {
	if o.Status == OutcomeCancelled {
		r.Interrupt(o)
		return
	}
	now := time.Now()
	r.FinishedAt = &now
	r.CurrentJobID = ""
	r.CurrentKind = ""
	switch o.Status {
	case OutcomeSuccess:
		r.Status = RunSuccess
		r.FailedStage = ""
		r.Reason = ""
		return
	case OutcomeTimedOut:
		r.Status = RunTimedOut
	default:
		r.Status = RunFailed
	}
	r.FailedStage = o.Kind
	r.Reason = o.Reason()
}

// Interrupt records why the run stopped early while leaving it running,
// with its live job, so the next pass resumes it.
func (r *PipelineRun) Interrupt(o Outcome) {
	r.Reason = o.Reason()
}

// Duration is the wall time of a finished run, zero while running.
func (r *PipelineRun) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Snapshot returns a copy that shares no mutable state with r.
func (r *PipelineRun) Snapshot() *PipelineRun {
	cp := *r
	cp.Stages = append([]StageCheckpoint(nil), r.Stages...)
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		cp.FinishedAt = &t
	}
	return &cp
}
