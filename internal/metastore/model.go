package metastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ModelRecord is a fitted model registered with the session. Params holds
// the estimated parameters (coefficients, weights) and Metrics the training
// diagnostics, both as JSON.
type ModelRecord struct {
	ID        string
	Name      string
	Kind      string
	Formula   string
	Dataset   string
	Params    map[string]interface{}
	Metrics   map[string]float64
	CreatedAt time.Time
}

// ModelRepo persists fitted model records.
type ModelRepo struct {
	db *sql.DB
}

// NewModelRepo creates a ModelRepo over the given pool.
func NewModelRepo(db *sql.DB) *ModelRepo {
	return &ModelRepo{db: db}
}

// Save registers a fitted model, replacing any earlier model with the same
// name.
func (r *ModelRepo) Save(ctx context.Context, m *ModelRecord) (*ModelRecord, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	paramsJSON, err := json.Marshal(m.Params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	metricsJSON, err := json.Marshal(m.Metrics)
	if err != nil {
		return nil, fmt.Errorf("marshal metrics: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO models (id, name, kind, formula, dataset, params, metrics)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			kind = excluded.kind,
			formula = excluded.formula,
			dataset = excluded.dataset,
			params = excluded.params,
			metrics = excluded.metrics`,
		m.ID, m.Name, m.Kind, m.Formula, m.Dataset, string(paramsJSON), string(metricsJSON))
	if err != nil {
		return nil, fmt.Errorf("save model %q: %w", m.Name, err)
	}
	return r.GetByName(ctx, m.Name)
}

// GetByName returns a model record by name.
func (r *ModelRepo) GetByName(ctx context.Context, name string) (*ModelRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, kind, formula, dataset, params, metrics, created_at
		FROM models WHERE name = ?`, name)
	return scanModel(row)
}

// List returns all registered models ordered by creation time, newest first.
func (r *ModelRepo) List(ctx context.Context) ([]ModelRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, kind, formula, dataset, params, metrics, created_at
		FROM models ORDER BY created_at DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []ModelRecord
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// Delete removes a model record by name.
func (r *ModelRepo) Delete(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM models WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete model %q: %w", name, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanModel(row rowScanner) (*ModelRecord, error) {
	var m ModelRecord
	var paramsJSON, metricsJSON, createdAt string
	err := row.Scan(&m.ID, &m.Name, &m.Kind, &m.Formula, &m.Dataset, &paramsJSON, &metricsJSON, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan model: %w", err)
	}
	_ = json.Unmarshal([]byte(paramsJSON), &m.Params)
	_ = json.Unmarshal([]byte(metricsJSON), &m.Metrics)
	if m.Params == nil {
		m.Params = map[string]interface{}{}
	}
	if m.Metrics == nil {
		m.Metrics = map[string]float64{}
	}
	m.CreatedAt = parseSQLiteTime(createdAt)
	return &m, nil
}
