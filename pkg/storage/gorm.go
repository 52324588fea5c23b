package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/core"
	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/security"
)

// GormStore implements core.RunStore using GORM.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed run store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// DB returns the underlying connection.
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

// IsSQLite reports whether the store runs on SQLite.
func (s *GormStore) IsSQLite() bool {
	return s.db != nil && s.db.Dialector != nil && s.db.Dialector.Name() == "sqlite"
}

// Migrate creates the necessary tables.
func (s *GormStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&core.PipelineRun{}, &core.StageCheckpoint{})
}

// CreateRun inserts a new run. Checkpoints already attached are not written.
func (s *GormStore) CreateRun(ctx context.Context, run *core.PipelineRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Status == "" {
		run.Status = core.RunRunning
	}
	return s.db.WithContext(ctx).Omit(clause.Associations).Create(run).Error
}

// UpdateRun writes the mutable run columns.
// Error text is sanitized before storage.
func (s *GormStore) UpdateRun(ctx context.Context, run *core.PipelineRun) error {
	result := s.db.WithContext(ctx).
		Model(&core.PipelineRun{}).
		Where("id = ?", run.ID).
		Updates(map[string]any{
			"status":         run.Status,
			"failed_stage":   run.FailedStage,
			"reason":         security.SanitizeErrorMessage(run.Reason),
			"current_job_id": run.CurrentJobID,
			"current_kind":   run.CurrentKind,
			"finished_at":    run.FinishedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return core.ErrNotFound
	}
	return nil
}

// SaveCheckpoint stores the outcome of one stage.
func (s *GormStore) SaveCheckpoint(ctx context.Context, cp *core.StageCheckpoint) error {
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	stored := *cp
	stored.Error = security.SanitizeErrorMessage(cp.Error)
	return s.db.WithContext(ctx).Create(&stored).Error
}

// GetRun retrieves a run and its checkpoints.
func (s *GormStore) GetRun(ctx context.Context, id string) (*core.PipelineRun, error) {
	var run core.PipelineRun
	err := s.withStages(ctx).First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// FindResumable returns the newest unfinished run of a document.
func (s *GormStore) FindResumable(ctx context.Context, collectionID, documentID string) (*core.PipelineRun, error) {
	var runs []core.PipelineRun
	err := s.withStages(ctx).
		Where("collection_id = ? AND document_id = ?", collectionID, documentID).
		Where("status = ?", core.RunRunning).
		Order("started_at DESC").
		Limit(1).
		Find(&runs).Error
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return &runs[0], nil
}

// ListRuns returns runs newest first.
func (s *GormStore) ListRuns(ctx context.Context, q core.RunQuery) ([]core.PipelineRun, error) {
	tx := s.withStages(ctx)
	if q.CollectionID != "" {
		tx = tx.Where("collection_id = ?", q.CollectionID)
	}
	if q.DocumentID != "" {
		tx = tx.Where("document_id = ?", q.DocumentID)
	}
	if q.Status != "" {
		tx = tx.Where("status = ?", q.Status)
	}
	if !q.Since.IsZero() {
		tx = tx.Where("started_at >= ?", q.Since)
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var runs []core.PipelineRun
	err := tx.Order("started_at DESC").Find(&runs).Error
	return runs, err
}

func (s *GormStore) withStages(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Preload("Stages", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("seq ASC")
	})
}
