package mallard

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyTo(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)

	t.Run("round_trip_count", func(t *testing.T) {
		rows := [][]interface{}{
			{"a", 1.5, int64(10), true},
			{"b", 2.5, int64(20), false},
			{"c's", 3.5, int64(30), true},
		}
		f, err := s.CopyTo(ctx, "mixed", []string{"name", "score", "qty", "ok"}, rows)
		require.NoError(t, err)

		n, err := f.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(len(rows)), n)

		tbl, err := f.Arrange("name").Collect(ctx)
		require.NoError(t, err)
		names, err := tbl.Strings("name")
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c's"}, names)
		scores, err := tbl.Float64s("score")
		require.NoError(t, err)
		assert.Equal(t, []float64{1.5, 2.5, 3.5}, scores)
	})

	t.Run("replaces_existing_table", func(t *testing.T) {
		_, err := s.CopyTo(ctx, "replace_me", []string{"x"}, [][]interface{}{{1.0}, {2.0}})
		require.NoError(t, err)
		f, err := s.CopyTo(ctx, "replace_me", []string{"x"}, [][]interface{}{{3.0}})
		require.NoError(t, err)
		n, err := f.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("validates_input", func(t *testing.T) {
		_, err := s.CopyTo(ctx, "bad name", []string{"x"}, nil)
		require.Error(t, err)
		_, err = s.CopyTo(ctx, "ok", nil, nil)
		require.Error(t, err)
		_, err = s.CopyTo(ctx, "ok", []string{"x"}, [][]interface{}{{1.0, 2.0}})
		require.Error(t, err)
	})
}

func TestSampleData(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)

	f, err := s.SampleData(ctx)
	require.NoError(t, err)

	n, err := f.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(32), n)

	tbl, err := f.Head(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t,
		[]string{"model", "mpg", "cyl", "disp", "hp", "drat", "wt", "qsec", "vs", "am", "gear", "carb"},
		tbl.Columns())

	datasets, err := s.Datasets(ctx)
	require.NoError(t, err)
	require.Len(t, datasets, 1)
	assert.Equal(t, SampleDataName, datasets[0].Name)
	assert.Equal(t, int64(32), datasets[0].RowCount)
}

func TestReadCSV(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)

	csvBody := "city,pop\namsterdam,905\nutrecht,361\nrotterdam,651\n"

	t.Run("local_file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cities.csv")
		require.NoError(t, os.WriteFile(path, []byte(csvBody), 0o644))

		f, err := s.ReadCSV(ctx, "cities", path)
		require.NoError(t, err)
		n, err := f.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		datasets, err := s.Datasets(ctx)
		require.NoError(t, err)
		require.Len(t, datasets, 1)
		assert.Equal(t, path, datasets[0].Source)
		assert.Equal(t, "csv", datasets[0].Format)
	})

	t.Run("s3_without_config", func(t *testing.T) {
		_, err := s.ReadCSV(ctx, "s3data", "s3://bucket/data.csv")
		require.Error(t, err)
		var valErr *ValidationError
		assert.ErrorAs(t, err, &valErr)
	})

	t.Run("missing_file", func(t *testing.T) {
		_, err := s.ReadCSV(ctx, "ghost", filepath.Join(t.TempDir(), "missing.csv"))
		require.Error(t, err)
		var dataErr *DataError
		assert.ErrorAs(t, err, &dataErr)
	})
}

func TestTables(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)

	_, err := s.SampleData(ctx)
	require.NoError(t, err)
	_, err = s.CopyTo(ctx, "extra", []string{"x"}, [][]interface{}{{1.0}})
	require.NoError(t, err)

	tables, err := s.Tables(ctx)
	require.NoError(t, err)
	assert.Contains(t, tables, "mtcars")
	assert.Contains(t, tables, "extra")
}
