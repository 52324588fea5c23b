package core

import (
	"context"
	"time"
)

// RunQuery filters ListRuns.
type RunQuery struct {
	CollectionID string
	DocumentID   string
	Status       RunStatus
	Since        time.Time
	Limit        int
}

// RunStore persists pipeline bookkeeping.
type RunStore interface {
	// Migrate creates the necessary database tables.
	Migrate(ctx context.Context) error

	CreateRun(ctx context.Context, run *PipelineRun) error
	UpdateRun(ctx context.Context, run *PipelineRun) error
	SaveCheckpoint(ctx context.Context, cp *StageCheckpoint) error

	// GetRun loads a run with its checkpoints, ErrNotFound if absent.
	GetRun(ctx context.Context, id string) (*PipelineRun, error)

	// FindResumable returns the newest unfinished run of a document,
	// or nil when there is none.
	FindResumable(ctx context.Context, collectionID, documentID string) (*PipelineRun, error)

	ListRuns(ctx context.Context, q RunQuery) ([]PipelineRun, error)
}
