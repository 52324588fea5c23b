// Package storage provides run-store implementations for pipeline bookkeeping.
//
// This package includes:
//   - GormStore: a GORM-based RunStore for SQLite and PostgreSQL
//   - Open: dialector selection and connection pooling
//
// The RunStore interface is defined in pkg/core.
package storage
