package storage

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/core"
)

// newTestStore opens a migrated store for tests.
// When TEST_DATABASE_URL is set it connects to PostgreSQL; otherwise it
// opens a fresh in-memory SQLite instance pinned to one connection.
func newTestStore(t *testing.T) *GormStore {
	t.Helper()

	var db *gorm.DB
	var err error
	if dsn := os.Getenv("TEST_DATABASE_URL"); dsn != "" {
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		require.NoError(t, err, "open postgres test db")
		t.Cleanup(func() {
			db.Exec("DELETE FROM stage_checkpoints")
			db.Exec("DELETE FROM pipeline_runs")
		})
	} else {
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		require.NoError(t, err, "open in-memory sqlite")
		err = PoolFor(DriverSQLite, 1).apply(db)
		require.NoError(t, err)
	}

	s := NewGormStore(db)
	require.NoError(t, s.Migrate(context.Background()), "migrate schema")
	return s
}

func newTestRun(col, doc string) *core.PipelineRun {
	return core.NewPipelineRun(core.DocumentRef{ID: doc, CollectionID: col, Title: "Doc " + doc, NewPages: 1})
}
