package metastore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// QueryRecord is one executed statement in a session's history.
type QueryRecord struct {
	ID           string
	SessionID    string
	SQL          string
	Status       string
	ErrorMessage *string
	DurationMS   int64
	RowsReturned int64
	ExecutedAt   time.Time
}

// Query statuses.
const (
	QueryStatusOK    = "ok"
	QueryStatusError = "error"
)

// HistoryRepo persists the per-session query log.
type HistoryRepo struct {
	db *sql.DB
}

// NewHistoryRepo creates a HistoryRepo over the given pool.
func NewHistoryRepo(db *sql.DB) *HistoryRepo {
	return &HistoryRepo{db: db}
}

// Record appends one query record. Failures to record are returned but
// callers typically only log them; history is advisory.
func (r *HistoryRepo) Record(ctx context.Context, rec *QueryRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	var errMsg sql.NullString
	if rec.ErrorMessage != nil {
		errMsg = sql.NullString{String: *rec.ErrorMessage, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO query_history (id, session_id, sql_text, status, error_message, duration_ms, rows_returned)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, rec.SQL, rec.Status, errMsg, rec.DurationMS, rec.RowsReturned)
	if err != nil {
		return fmt.Errorf("record query: %w", err)
	}
	return nil
}

// Recent returns the most recent records for a session, newest first.
func (r *HistoryRepo) Recent(ctx context.Context, sessionID string, limit int) ([]QueryRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, sql_text, status, error_message, duration_ms, rows_returned, executed_at
		FROM query_history
		WHERE session_id = ?
		ORDER BY executed_at DESC, id DESC
		LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list query history: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []QueryRecord
	for rows.Next() {
		var rec QueryRecord
		var errMsg sql.NullString
		var executedAt string
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.SQL, &rec.Status, &errMsg, &rec.DurationMS, &rec.RowsReturned, &executedAt); err != nil {
			return nil, fmt.Errorf("scan query record: %w", err)
		}
		if errMsg.Valid {
			rec.ErrorMessage = &errMsg.String
		}
		rec.ExecutedAt = parseSQLiteTime(executedAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CountBySession returns how many queries a session has executed.
func (r *HistoryRepo) CountBySession(ctx context.Context, sessionID string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM query_history WHERE session_id = ?`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count query history: %w", err)
	}
	return n, nil
}
