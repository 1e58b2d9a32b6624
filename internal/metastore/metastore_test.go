package metastore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatasetRepo(t *testing.T) {
	writeDB, readDB := OpenTestSQLite(t)
	repo := NewDatasetRepo(writeDB)
	ctx := context.Background()

	t.Run("upsert_and_get", func(t *testing.T) {
		d, err := repo.Upsert(ctx, &Dataset{Name: "mtcars", Source: "embedded", Format: "csv", RowCount: 32})
		require.NoError(t, err)
		assert.NotEmpty(t, d.ID)
		assert.Equal(t, int64(32), d.RowCount)
		assert.False(t, d.CreatedAt.IsZero())

		got, err := NewDatasetRepo(readDB).GetByName(ctx, "mtcars")
		require.NoError(t, err)
		assert.Equal(t, d.ID, got.ID)
	})

	t.Run("upsert_same_name_updates", func(t *testing.T) {
		first, err := repo.Upsert(ctx, &Dataset{Name: "flights", Source: "s3://bucket/flights.csv", Format: "csv", RowCount: 100})
		require.NoError(t, err)

		second, err := repo.Upsert(ctx, &Dataset{Name: "flights", Source: "s3://bucket/flights.csv", Format: "csv", RowCount: 250})
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, int64(250), second.RowCount)
	})

	t.Run("update_row_count", func(t *testing.T) {
		require.NoError(t, repo.UpdateRowCount(ctx, "mtcars", 64))
		got, err := repo.GetByName(ctx, "mtcars")
		require.NoError(t, err)
		assert.Equal(t, int64(64), got.RowCount)

		assert.ErrorIs(t, repo.UpdateRowCount(ctx, "missing", 1), ErrNotFound)
	})

	t.Run("list", func(t *testing.T) {
		all, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "flights", all[0].Name)
		assert.Equal(t, "mtcars", all[1].Name)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, "flights"))
		_, err := repo.GetByName(ctx, "flights")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, repo.Delete(ctx, "flights"), ErrNotFound)
	})
}

func TestHistoryRepo(t *testing.T) {
	writeDB, _ := OpenTestSQLite(t)
	repo := NewHistoryRepo(writeDB)
	ctx := context.Background()

	errMsg := "table not found"
	require.NoError(t, repo.Record(ctx, &QueryRecord{
		SessionID: "sess-1", SQL: "SELECT 1", Status: QueryStatusOK, DurationMS: 3, RowsReturned: 1,
	}))
	require.NoError(t, repo.Record(ctx, &QueryRecord{
		SessionID: "sess-1", SQL: "SELECT * FROM nope", Status: QueryStatusError, ErrorMessage: &errMsg,
	}))
	require.NoError(t, repo.Record(ctx, &QueryRecord{
		SessionID: "sess-2", SQL: "SELECT 2", Status: QueryStatusOK, RowsReturned: 1,
	}))

	t.Run("recent_is_scoped_to_session", func(t *testing.T) {
		recs, err := repo.Recent(ctx, "sess-1", 10)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		for _, rec := range recs {
			assert.Equal(t, "sess-1", rec.SessionID)
		}
	})

	t.Run("error_message_round_trips", func(t *testing.T) {
		recs, err := repo.Recent(ctx, "sess-1", 10)
		require.NoError(t, err)

		var found bool
		for _, rec := range recs {
			if rec.Status == QueryStatusError {
				found = true
				require.NotNil(t, rec.ErrorMessage)
				assert.Equal(t, errMsg, *rec.ErrorMessage)
			}
		}
		assert.True(t, found)
	})

	t.Run("count_by_session", func(t *testing.T) {
		n, err := repo.CountBySession(ctx, "sess-1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		n, err = repo.CountBySession(ctx, "sess-3")
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestModelRepo(t *testing.T) {
	writeDB, _ := OpenTestSQLite(t)
	repo := NewModelRepo(writeDB)
	ctx := context.Background()

	t.Run("save_and_get", func(t *testing.T) {
		m, err := repo.Save(ctx, &ModelRecord{
			Name:    "mpg_model",
			Kind:    "linear_regression",
			Formula: "mpg ~ wt + cyl",
			Dataset: "mtcars",
			Params:  map[string]interface{}{"coefficients": []interface{}{39.68, -3.19, -1.5}},
			Metrics: map[string]float64{"r_squared": 0.83},
		})
		require.NoError(t, err)
		assert.NotEmpty(t, m.ID)

		got, err := repo.GetByName(ctx, "mpg_model")
		require.NoError(t, err)
		assert.Equal(t, "linear_regression", got.Kind)
		assert.Equal(t, "mpg ~ wt + cyl", got.Formula)
		assert.InDelta(t, 0.83, got.Metrics["r_squared"], 1e-9)
	})

	t.Run("save_same_name_replaces", func(t *testing.T) {
		first, err := repo.GetByName(ctx, "mpg_model")
		require.NoError(t, err)

		second, err := repo.Save(ctx, &ModelRecord{
			Name:    "mpg_model",
			Kind:    "glm",
			Formula: "mpg ~ wt",
			Dataset: "mtcars",
			Metrics: map[string]float64{"deviance": 12.5},
		})
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, "glm", second.Kind)
	})

	t.Run("missing_model", func(t *testing.T) {
		_, err := repo.GetByName(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("list_and_delete", func(t *testing.T) {
		all, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)

		require.NoError(t, repo.Delete(ctx, "mpg_model"))
		assert.ErrorIs(t, repo.Delete(ctx, "mpg_model"), ErrNotFound)
	})
}
