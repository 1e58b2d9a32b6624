package mallard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameComposition(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)
	f, err := s.SampleData(ctx)
	require.NoError(t, err)

	t.Run("transformations_do_not_mutate", func(t *testing.T) {
		before := f.SQL()
		_ = f.Filter("cyl = 4").Select("mpg", "wt").Limit(5)
		assert.Equal(t, before, f.SQL())
	})

	t.Run("select", func(t *testing.T) {
		tbl, err := f.Select("mpg", "wt").Head(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, []string{"mpg", "wt"}, tbl.Columns())
		assert.Equal(t, 3, tbl.NumRows())
	})

	t.Run("filter", func(t *testing.T) {
		n, err := f.Filter("cyl = 4").Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(11), n)
	})

	t.Run("mutate", func(t *testing.T) {
		tbl, err := f.Mutate("kpl", "mpg * 0.425").Select("mpg", "kpl").Head(ctx, 1)
		require.NoError(t, err)
		mpg, err := tbl.Float64s("mpg")
		require.NoError(t, err)
		kpl, err := tbl.Float64s("kpl")
		require.NoError(t, err)
		assert.InDelta(t, mpg[0]*0.425, kpl[0], 1e-9)
	})

	t.Run("arrange_desc", func(t *testing.T) {
		tbl, err := f.Arrange("-mpg").Select("model", "mpg").Head(ctx, 1)
		require.NoError(t, err)
		models, err := tbl.Strings("model")
		require.NoError(t, err)
		assert.Equal(t, "Toyota Corolla", models[0])
	})

	t.Run("distinct", func(t *testing.T) {
		n, err := f.Distinct("cyl").Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	})

	t.Run("join", func(t *testing.T) {
		gears, err := s.CopyTo(ctx, "gear_names", []string{"gear", "gear_name"}, [][]interface{}{
			{3.0, "three-speed"},
			{4.0, "four-speed"},
			{5.0, "five-speed"},
		})
		require.NoError(t, err)

		joined := f.Select("model", "gear").Join(gears, []string{"gear"}, JoinInner)
		n, err := joined.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(32), n)

		tbl, err := joined.Filter("model = 'Valiant'").Collect(ctx)
		require.NoError(t, err)
		names, err := tbl.Strings("gear_name")
		require.NoError(t, err)
		require.Len(t, names, 1)
		assert.Equal(t, "three-speed", names[0])
	})

	t.Run("sample_is_subset", func(t *testing.T) {
		n, err := f.Sample(0.5, 42).Count(ctx)
		require.NoError(t, err)
		assert.LessOrEqual(t, n, int64(32))
	})
}

// Pipeline equivalence: a filter -> group -> aggregate pipeline pushed to
// the engine matches the same computation done on the local copy.
func TestPipelineEquivalence(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)
	f, err := s.SampleData(ctx)
	require.NoError(t, err)

	remote, err := f.
		Filter("hp > 100").
		GroupBy("cyl").
		Agg(Count(), Mean("mpg")).
		Arrange("cyl").
		Collect(ctx)
	require.NoError(t, err)

	// Local reference over the full collected table.
	full, err := f.Collect(ctx)
	require.NoError(t, err)
	hp, err := full.Float64s("hp")
	require.NoError(t, err)
	cyl, err := full.Float64s("cyl")
	require.NoError(t, err)
	mpg, err := full.Float64s("mpg")
	require.NoError(t, err)

	counts := map[float64]float64{}
	sums := map[float64]float64{}
	for i := range hp {
		if hp[i] > 100 {
			counts[cyl[i]]++
			sums[cyl[i]] += mpg[i]
		}
	}

	gotCyl, err := remote.Float64s("cyl")
	require.NoError(t, err)
	gotN, err := remote.Float64s("n")
	require.NoError(t, err)
	gotMean, err := remote.Float64s("mean_mpg")
	require.NoError(t, err)

	require.Len(t, gotCyl, len(counts))
	for i, c := range gotCyl {
		assert.Equal(t, counts[c], gotN[i], "count for cyl=%g", c)
		assert.InDelta(t, sums[c]/counts[c], gotMean[i], 1e-9, "mean mpg for cyl=%g", c)
	}
}

func TestRandomSplit(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)

	// A larger table keeps the proportion check statistically meaningful.
	n := 2000
	rows := make([][]interface{}, n)
	for i := range rows {
		rows[i] = []interface{}{float64(i)}
	}
	f, err := s.CopyTo(ctx, "split_input", []string{"x"}, rows)
	require.NoError(t, err)

	parts, err := f.RandomSplit(ctx, []float64{0.8, 0.2}, 99)
	require.NoError(t, err)
	require.Len(t, parts, 2)

	nTrain, err := parts[0].Count(ctx)
	require.NoError(t, err)
	nTest, err := parts[1].Count(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(n), nTrain+nTest)
	assert.InDelta(t, 0.8, float64(nTrain)/float64(n), 0.05)
	assert.InDelta(t, 0.2, float64(nTest)/float64(n), 0.05)

	// The split key column stays internal.
	tbl, err := parts[0].Head(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, tbl.Columns())

	t.Run("rejects_bad_weights", func(t *testing.T) {
		_, err := f.RandomSplit(ctx, []float64{1}, 0)
		require.Error(t, err)
		_, err = f.RandomSplit(ctx, []float64{0.5, -0.5}, 0)
		require.Error(t, err)
	})
}

func TestFrameSQLShapes(t *testing.T) {
	f := &Frame{query: `SELECT * FROM "mtcars"`}

	assert.Equal(t, `SELECT "mpg" FROM (SELECT * FROM "mtcars") AS t`, f.Select("mpg").SQL())
	assert.Equal(t, `SELECT * FROM (SELECT * FROM "mtcars") AS t WHERE cyl = 4`, f.Filter("cyl = 4").SQL())
	assert.Equal(t, `SELECT * FROM (SELECT * FROM "mtcars") AS t LIMIT 5`, f.Limit(5).SQL())
	assert.Equal(t, `SELECT "cyl", COUNT(*) AS "n" FROM (SELECT * FROM "mtcars") AS t GROUP BY "cyl"`,
		f.GroupBy("cyl").Agg(Count()).SQL())
}
