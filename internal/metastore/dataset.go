package metastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// sqliteTimeLayout is the format SQLite's datetime('now') produces.
const sqliteTimeLayout = "2006-01-02 15:04:05"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("metastore: not found")

// Dataset is a table registered with a session, local or remote.
type Dataset struct {
	ID        string
	Name      string
	Source    string
	Format    string
	RowCount  int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DatasetRepo persists dataset registrations.
type DatasetRepo struct {
	db *sql.DB
}

// NewDatasetRepo creates a DatasetRepo over the given pool.
func NewDatasetRepo(db *sql.DB) *DatasetRepo {
	return &DatasetRepo{db: db}
}

// Upsert registers a dataset by name, updating source, format, and row count
// when the name already exists.
func (r *DatasetRepo) Upsert(ctx context.Context, d *Dataset) (*Dataset, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO datasets (id, name, source, format, row_count)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			source = excluded.source,
			format = excluded.format,
			row_count = excluded.row_count,
			updated_at = datetime('now')`,
		d.ID, d.Name, d.Source, d.Format, d.RowCount)
	if err != nil {
		return nil, fmt.Errorf("upsert dataset %q: %w", d.Name, err)
	}
	return r.GetByName(ctx, d.Name)
}

// GetByName returns a dataset by its registered name.
func (r *DatasetRepo) GetByName(ctx context.Context, name string) (*Dataset, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, source, format, row_count, created_at, updated_at
		FROM datasets WHERE name = ?`, name)
	return scanDataset(row)
}

// List returns all registered datasets ordered by name.
func (r *DatasetRepo) List(ctx context.Context) ([]Dataset, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, source, format, row_count, created_at, updated_at
		FROM datasets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []Dataset
	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// UpdateRowCount refreshes the cached row count for a dataset.
func (r *DatasetRepo) UpdateRowCount(ctx context.Context, name string, rowCount int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE datasets SET row_count = ?, updated_at = datetime('now') WHERE name = ?`,
		rowCount, name)
	if err != nil {
		return fmt.Errorf("update row count for %q: %w", name, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a dataset registration by name.
func (r *DatasetRepo) Delete(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM datasets WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete dataset %q: %w", name, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDataset(row rowScanner) (*Dataset, error) {
	var d Dataset
	var createdAt, updatedAt string
	err := row.Scan(&d.ID, &d.Name, &d.Source, &d.Format, &d.RowCount, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan dataset: %w", err)
	}
	d.CreatedAt = parseSQLiteTime(createdAt)
	d.UpdatedAt = parseSQLiteTime(updatedAt)
	return &d, nil
}

func parseSQLiteTime(raw string) time.Time {
	t, err := time.Parse(sqliteTimeLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}
	}
	return t
}
