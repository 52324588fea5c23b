package storage

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Pool sizes the connection pool of the run database.
type Pool struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// PoolFor returns the pool profile of driver for a pipeline running workers
// documents at once. SQLite is limited to a single connection so document
// workers serialize their writes instead of failing with SQLITE_BUSY.
// PostgreSQL gets one connection per worker plus one for the upload phase.
func PoolFor(driver string, workers int) Pool {
	if driver == DriverSQLite || driver == "" {
		return Pool{MaxOpen: 1, MaxIdle: 1}
	}
	if workers < 1 {
		workers = 1
	}
	return Pool{
		MaxOpen:     workers + 1,
		MaxIdle:     (workers + 1) / 2,
		MaxLifetime: 30 * time.Minute,
		MaxIdleTime: 5 * time.Minute,
	}
}

// PoolOption adjusts the profile chosen by PoolFor.
type PoolOption func(*Pool)

// WithWorkers sizes the pool for n concurrent document workers. It has no
// effect on SQLite.
func WithWorkers(n int) PoolOption {
	return func(p *Pool) {
		if p.MaxOpen > 1 {
			*p = PoolFor(DriverPostgres, n)
		}
	}
}

// WithMaxLifetime recycles connections older than d, e.g. behind a proxy
// that drops long-lived sessions.
func WithMaxLifetime(d time.Duration) PoolOption {
	return func(p *Pool) {
		p.MaxLifetime = d
	}
}

func (p Pool) apply(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("storage: connection pool: %w", err)
	}
	if p.MaxIdle > p.MaxOpen {
		p.MaxIdle = p.MaxOpen
	}
	sqlDB.SetMaxOpenConns(p.MaxOpen)
	sqlDB.SetMaxIdleConns(p.MaxIdle)
	sqlDB.SetConnMaxLifetime(p.MaxLifetime)
	sqlDB.SetConnMaxIdleTime(p.MaxIdleTime)
	return nil
}
