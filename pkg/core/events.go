package core

import "time"

// Event is the interface for all pipeline events.
type Event interface {
	eventMarker()
}

// RunStarted is emitted when a document enters the stage chain.
type RunStarted struct {
	Run       *PipelineRun
	Resumed   bool
	Timestamp time.Time
}

func (*RunStarted) eventMarker() {}

// StageSubmitted is emitted after the remote service accepted a job.
type StageSubmitted struct {
	RunID     string
	Handle    JobHandle
	Timestamp time.Time
}

func (*StageSubmitted) eventMarker() {}

// StagePolled is emitted after every status query while a stage is waiting.
type StagePolled struct {
	RunID      string
	Kind       JobKind
	DocumentID string
	Poll       int
	Pending    int
	Err        error
	Timestamp  time.Time
}

func (*StagePolled) eventMarker() {}

// StageFinished is emitted when a stage reaches a terminal outcome.
type StageFinished struct {
	RunID      string
	DocumentID string
	Outcome    Outcome
	Timestamp  time.Time
}

func (*StageFinished) eventMarker() {}

// RunFinished is emitted when a document leaves the stage chain.
type RunFinished struct {
	Run       *PipelineRun
	Timestamp time.Time
}

func (*RunFinished) eventMarker() {}

// UploadFinished is emitted after the upload phase.
type UploadFinished struct {
	CollectionID string
	Titles       []string
	Failed       []string
	Err          error
	Timestamp    time.Time
}

func (*UploadFinished) eventMarker() {}

// PlanFinished is emitted when a whole pipeline pass ends.
type PlanFinished struct {
	Succeeded int
	Failed    int
	Err       error
	Timestamp time.Time
}

func (*PlanFinished) eventMarker() {}
