package ml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormula(t *testing.T) {
	t.Run("simple", func(t *testing.T) {
		f, err := ParseFormula("mpg ~ wt + cyl")
		require.NoError(t, err)
		assert.Equal(t, "mpg", f.Response)
		assert.Equal(t, []string{"wt", "cyl"}, f.Terms)
		assert.True(t, f.Intercept)
		assert.False(t, f.Dot)
	})

	t.Run("dot_expands_all", func(t *testing.T) {
		f, err := ParseFormula("mpg ~ .")
		require.NoError(t, err)
		assert.True(t, f.Dot)

		cols, err := f.Predictors([]string{"mpg", "wt", "cyl"})
		require.NoError(t, err)
		assert.Equal(t, []string{"wt", "cyl"}, cols)
	})

	t.Run("drop_intercept", func(t *testing.T) {
		f, err := ParseFormula("y ~ x + 0")
		require.NoError(t, err)
		assert.False(t, f.Intercept)

		f, err = ParseFormula("y ~ x -1")
		require.NoError(t, err)
		assert.False(t, f.Intercept)
	})

	t.Run("missing_tilde", func(t *testing.T) {
		_, err := ParseFormula("mpg wt")
		require.Error(t, err)
	})

	t.Run("no_predictors", func(t *testing.T) {
		_, err := ParseFormula("y ~ ")
		require.Error(t, err)
	})

	t.Run("unknown_column", func(t *testing.T) {
		f, err := ParseFormula("mpg ~ nope")
		require.NoError(t, err)
		_, err = f.Predictors([]string{"mpg", "wt"})
		require.Error(t, err)
	})

	t.Run("unknown_response", func(t *testing.T) {
		f, err := ParseFormula("nope ~ wt")
		require.NoError(t, err)
		_, err = f.Predictors([]string{"mpg", "wt"})
		require.Error(t, err)
	})
}

func TestMetrics(t *testing.T) {
	t.Run("rmse_mae_r2", func(t *testing.T) {
		actual := []float64{1, 2, 3, 4}
		predicted := []float64{1.5, 2, 2.5, 4}

		rmse, err := RMSE(actual, predicted)
		require.NoError(t, err)
		assert.InDelta(t, 0.35355, rmse, 1e-4)

		mae, err := MAE(actual, predicted)
		require.NoError(t, err)
		assert.InDelta(t, 0.25, mae, 1e-9)

		r2, err := RSquared(actual, actual)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, r2, 1e-12)
	})

	t.Run("accuracy_and_confusion", func(t *testing.T) {
		actual := []string{"a", "a", "b", "b"}
		predicted := []string{"a", "b", "b", "b"}

		acc, err := Accuracy(actual, predicted)
		require.NoError(t, err)
		assert.InDelta(t, 0.75, acc, 1e-9)

		cm, err := ConfusionMatrix(actual, predicted)
		require.NoError(t, err)
		assert.Equal(t, 1, cm["a"]["a"])
		assert.Equal(t, 1, cm["a"]["b"])
		assert.Equal(t, 2, cm["b"]["b"])
	})

	t.Run("length_mismatch", func(t *testing.T) {
		_, err := RMSE([]float64{1}, []float64{1, 2})
		require.Error(t, err)
		_, err = Accuracy([]string{"a"}, nil)
		require.Error(t, err)
	})
}
