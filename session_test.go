package mallard

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	s, err := Connect(context.Background(), Options{
		Master:        "local",
		MetastorePath: filepath.Join(t.TempDir(), "meta.sqlite"),
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestConnect(t *testing.T) {
	t.Run("local_session", func(t *testing.T) {
		s := newTestSession(t)
		assert.NotEmpty(t, s.ID())
		assert.False(t, s.IsRemote())
		assert.Empty(t, s.MonitorAddr())
	})

	t.Run("invalid_master", func(t *testing.T) {
		_, err := Connect(context.Background(), Options{
			Master:        "spark://cluster:7077",
			MetastorePath: filepath.Join(t.TempDir(), "meta.sqlite"),
		})
		require.Error(t, err)
		var connErr *ConnectionError
		assert.ErrorAs(t, err, &connErr)
	})

	t.Run("monitor_starts_and_stops", func(t *testing.T) {
		s, err := Connect(context.Background(), Options{
			Master:        "local",
			MetastorePath: filepath.Join(t.TempDir(), "meta.sqlite"),
			MonitorAddr:   "127.0.0.1:0",
			Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		})
		require.NoError(t, err)
		assert.NotEmpty(t, s.MonitorAddr())
		require.NoError(t, s.Close(context.Background()))
	})
}

func TestSessionClose(t *testing.T) {
	ctx := context.Background()

	t.Run("idempotent", func(t *testing.T) {
		s := newTestSession(t)
		require.NoError(t, s.Close(ctx))
		require.NoError(t, s.Close(ctx))
	})

	t.Run("operations_fail_after_close", func(t *testing.T) {
		s := newTestSession(t)
		f, err := s.SampleData(ctx)
		require.NoError(t, err)
		require.NoError(t, s.Close(ctx))

		var closedErr *ClosedError

		_, err = f.Collect(ctx)
		assert.ErrorAs(t, err, &closedErr)

		_, err = f.Filter("mpg > 20").Count(ctx)
		assert.ErrorAs(t, err, &closedErr)

		_, err = s.Table("mtcars")
		assert.ErrorAs(t, err, &closedErr)

		_, err = s.ReadCSV(ctx, "x", "nope.csv")
		assert.ErrorAs(t, err, &closedErr)

		_, err = s.Datasets(ctx)
		assert.ErrorAs(t, err, &closedErr)
	})

	t.Run("model_handles_fail_after_close", func(t *testing.T) {
		s := newTestSession(t)
		f, err := s.SampleData(ctx)
		require.NoError(t, err)
		m, err := s.FitLinearRegression(ctx, f, "mpg ~ wt", "mpg_wt")
		require.NoError(t, err)
		require.NoError(t, s.Close(ctx))

		var closedErr *ClosedError
		_, err = m.Predict(ctx, f)
		assert.ErrorAs(t, err, &closedErr)
		_, err = m.PredictTable(ctx, f)
		assert.ErrorAs(t, err, &closedErr)
	})
}

func TestQueryHistory(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)

	f, err := s.SampleData(ctx)
	require.NoError(t, err)
	_, err = f.Count(ctx)
	require.NoError(t, err)

	recs, err := s.History(ctx, 10)
	require.NoError(t, err)
	require.NotEmpty(t, recs)
	for _, rec := range recs {
		assert.Equal(t, s.ID(), rec.SessionID)
		assert.NotEmpty(t, rec.SQL)
	}
}
