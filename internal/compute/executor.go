// Package compute provides the execution backends for a session: a local
// in-process DuckDB executor and a remote executor speaking HTTP to a
// compute agent.
package compute

import (
	"context"
	"database/sql"
)

// Executor runs SQL on behalf of a session and returns standard *sql.Rows,
// regardless of whether execution happened in-process or on a remote agent.
type Executor interface {
	QueryContext(ctx context.Context, query string) (*sql.Rows, error)
}

// Compile-time check.
var _ Executor = (*LocalExecutor)(nil)

// LocalExecutor wraps a *sql.DB and implements Executor for in-process
// DuckDB queries.
type LocalExecutor struct {
	db *sql.DB
}

// NewLocalExecutor creates a LocalExecutor backed by the given database
// connection.
func NewLocalExecutor(db *sql.DB) *LocalExecutor {
	return &LocalExecutor{db: db}
}

// QueryContext executes the query against the local database.
func (e *LocalExecutor) QueryContext(ctx context.Context, query string) (*sql.Rows, error) {
	return e.db.QueryContext(ctx, query)
}
