package ml

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTable is a minimal Tabular over float columns plus optional string
// columns, for fitting without a live session.
type testTable struct {
	order   []string
	numeric map[string][]float64
	text    map[string][]string
	n       int
}

func newTestTable(n int) *testTable {
	return &testTable{numeric: map[string][]float64{}, text: map[string][]string{}, n: n}
}

func (t *testTable) addNum(name string, vals []float64) *testTable {
	t.order = append(t.order, name)
	t.numeric[name] = vals
	return t
}

func (t *testTable) addText(name string, vals []string) *testTable {
	t.order = append(t.order, name)
	t.text[name] = vals
	return t
}

func (t *testTable) Columns() []string { return t.order }
func (t *testTable) NumRows() int      { return t.n }

func (t *testTable) Float64s(column string) ([]float64, error) {
	if v, ok := t.numeric[column]; ok {
		return v, nil
	}
	if raw, ok := t.text[column]; ok {
		out := make([]float64, len(raw))
		for i, s := range raw {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("column %q is not numeric", column)
			}
			out[i] = v
		}
		return out, nil
	}
	return nil, fmt.Errorf("no column %q", column)
}

func (t *testTable) Strings(column string) ([]string, error) {
	if v, ok := t.text[column]; ok {
		return v, nil
	}
	if nums, ok := t.numeric[column]; ok {
		out := make([]string, len(nums))
		for i, v := range nums {
			out[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		return out, nil
	}
	return nil, fmt.Errorf("no column %q", column)
}

func TestFitLinearRegression(t *testing.T) {
	t.Run("exact_fit", func(t *testing.T) {
		// y = 1 + 2*x1 - 3*x2 with no noise recovers coefficients exactly.
		rng := rand.New(rand.NewSource(7))
		n := 50
		x1 := make([]float64, n)
		x2 := make([]float64, n)
		y := make([]float64, n)
		for i := range y {
			x1[i] = rng.Float64() * 10
			x2[i] = rng.Float64() * 5
			y[i] = 1 + 2*x1[i] - 3*x2[i]
		}
		data := newTestTable(n).addNum("y", y).addNum("x1", x1).addNum("x2", x2)

		m, err := FitLinearRegression(data, "y ~ x1 + x2")
		require.NoError(t, err)
		require.Equal(t, []string{InterceptName, "x1", "x2"}, m.Names)
		assert.InDelta(t, 1, m.Coefficients[0], 1e-8)
		assert.InDelta(t, 2, m.Coefficients[1], 1e-8)
		assert.InDelta(t, -3, m.Coefficients[2], 1e-8)
		assert.InDelta(t, 1, m.R2, 1e-10)

		preds, err := m.Predict(data)
		require.NoError(t, err)
		for i := range y {
			assert.InDelta(t, y[i], preds[i], 1e-8)
		}
	})

	t.Run("no_intercept", func(t *testing.T) {
		x := []float64{1, 2, 3, 4, 5}
		y := []float64{2, 4, 6, 8, 10}
		data := newTestTable(5).addNum("y", y).addNum("x", x)

		m, err := FitLinearRegression(data, "y ~ x + 0")
		require.NoError(t, err)
		require.Len(t, m.Coefficients, 1)
		assert.InDelta(t, 2, m.Coefficients[0], 1e-10)
	})

	t.Run("predict_expr_matches_predict", func(t *testing.T) {
		data := newTestTable(4).
			addNum("y", []float64{3, 5, 7, 9}).
			addNum("x", []float64{1, 2, 3, 4})

		m, err := FitLinearRegression(data, "y ~ x")
		require.NoError(t, err)

		expr := m.PredictExpr()
		assert.Contains(t, expr, `"x"`)

		// y = 1 + 2x exactly.
		assert.InDelta(t, 1, m.Coefficients[0], 1e-10)
		assert.InDelta(t, 2, m.Coefficients[1], 1e-10)
	})

	t.Run("more_coefficients_than_rows", func(t *testing.T) {
		data := newTestTable(2).
			addNum("y", []float64{1, 2}).
			addNum("a", []float64{1, 2}).
			addNum("b", []float64{2, 1})
		_, err := FitLinearRegression(data, "y ~ a + b")
		require.Error(t, err)
	})
}

func TestFitGLM(t *testing.T) {
	t.Run("gaussian_matches_ols", func(t *testing.T) {
		data := newTestTable(6).
			addNum("y", []float64{1.1, 2.0, 2.9, 4.2, 4.8, 6.1}).
			addNum("x", []float64{1, 2, 3, 4, 5, 6})

		ols, err := FitLinearRegression(data, "y ~ x")
		require.NoError(t, err)
		glm, err := FitGLM(data, "y ~ x", FamilyGaussian)
		require.NoError(t, err)

		require.Len(t, glm.Coefficients, 2)
		assert.InDelta(t, ols.Coefficients[0], glm.Coefficients[0], 1e-6)
		assert.InDelta(t, ols.Coefficients[1], glm.Coefficients[1], 1e-6)
	})

	t.Run("poisson_recovers_log_linear_rates", func(t *testing.T) {
		// Counts generated at exactly their expected value exp(0.5 + 0.3x).
		rng := rand.New(rand.NewSource(11))
		n := 200
		x := make([]float64, n)
		y := make([]float64, n)
		for i := range x {
			x[i] = rng.Float64() * 4
			y[i] = math.Round(math.Exp(0.5 + 0.3*x[i]))
		}
		data := newTestTable(n).addNum("y", y).addNum("x", x)

		m, err := FitGLM(data, "y ~ x", FamilyPoisson)
		require.NoError(t, err)
		assert.True(t, m.Converged)
		assert.InDelta(t, 0.5, m.Coefficients[0], 0.1)
		assert.InDelta(t, 0.3, m.Coefficients[1], 0.05)
		assert.Less(t, m.Deviance, m.NullDeviance)
	})

	t.Run("binomial_rejects_non_binary", func(t *testing.T) {
		data := newTestTable(3).
			addNum("y", []float64{0, 1, 2}).
			addNum("x", []float64{1, 2, 3})
		_, err := FitGLM(data, "y ~ x", FamilyBinomial)
		require.Error(t, err)
	})

	t.Run("unknown_family", func(t *testing.T) {
		data := newTestTable(3).
			addNum("y", []float64{0, 1, 0}).
			addNum("x", []float64{1, 2, 3})
		_, err := FitGLM(data, "y ~ x", Family("gamma"))
		require.Error(t, err)
	})
}

func TestFitLogisticRegression(t *testing.T) {
	// Two well-separated clusters with a soft boundary.
	rng := rand.New(rand.NewSource(3))
	n := 120
	x := make([]float64, n)
	labels := make([]string, n)
	for i := range x {
		if i%2 == 0 {
			x[i] = rng.NormFloat64() - 2
			labels[i] = "manual"
		} else {
			x[i] = rng.NormFloat64() + 2
			labels[i] = "auto"
		}
	}
	data := newTestTable(n).addText("trans", labels).addNum("x", x)

	m, err := FitLogisticRegression(data, "trans ~ x")
	require.NoError(t, err)
	assert.Equal(t, [2]string{"auto", "manual"}, m.Classes)

	preds, err := m.Predict(data)
	require.NoError(t, err)
	acc, err := Accuracy(labels, preds)
	require.NoError(t, err)
	assert.Greater(t, acc, 0.9)

	probs, err := m.PredictProba(data)
	require.NoError(t, err)
	for _, p := range probs {
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
	}
}

func TestFitMLPClassifier(t *testing.T) {
	t.Run("learns_xor", func(t *testing.T) {
		// XOR is not linearly separable; the hidden layer has to earn it.
		var x1, x2 []float64
		var labels []string
		rng := rand.New(rand.NewSource(5))
		for i := 0; i < 200; i++ {
			a := float64(rng.Intn(2))
			b := float64(rng.Intn(2))
			x1 = append(x1, a+rng.NormFloat64()*0.05)
			x2 = append(x2, b+rng.NormFloat64()*0.05)
			if (a == 1) != (b == 1) {
				labels = append(labels, "on")
			} else {
				labels = append(labels, "off")
			}
		}
		data := newTestTable(len(labels)).addText("gate", labels).addNum("x1", x1).addNum("x2", x2)

		m, err := FitMLPClassifier(data, "gate ~ x1 + x2", MLPConfig{
			HiddenUnits: 8, Epochs: 400, LearningRate: 0.2, Seed: 42,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"off", "on"}, m.Classes)
		assert.Greater(t, m.TrainAccuracy, 0.95)

		preds, err := m.Predict(data)
		require.NoError(t, err)
		acc, err := Accuracy(labels, preds)
		require.NoError(t, err)
		assert.Greater(t, acc, 0.95)
	})

	t.Run("proba_sums_to_one", func(t *testing.T) {
		data := newTestTable(4).
			addText("cls", []string{"a", "b", "a", "b"}).
			addNum("x", []float64{0, 1, 0.1, 0.9})

		m, err := FitMLPClassifier(data, "cls ~ x", MLPConfig{HiddenUnits: 4, Epochs: 50, Seed: 9})
		require.NoError(t, err)

		probs, err := m.PredictProba(data)
		require.NoError(t, err)
		for _, row := range probs {
			total := 0.0
			for _, p := range row {
				total += p
			}
			assert.InDelta(t, 1.0, total, 1e-9)
		}
	})
}

func TestFitLDA(t *testing.T) {
	// Two disjoint vocabularies; LDA should separate them into two topics.
	cooking := []string{
		"flour butter sugar oven bake bread",
		"sugar butter oven cake bake flour",
		"bread oven flour bake butter",
		"cake sugar bake oven bread",
	}
	sailing := []string{
		"wind sail mast harbor anchor boat",
		"anchor boat sail wind harbor",
		"mast sail boat wind anchor",
		"harbor mast boat sail wind",
	}
	docs := append(append([]string{}, cooking...), sailing...)

	m, err := FitLDA(docs, LDAConfig{Topics: 2, Iterations: 300, Seed: 17})
	require.NoError(t, err)
	require.Len(t, m.DocTopic, len(docs))

	// All cooking docs should share a dominant topic, all sailing docs the
	// other one.
	cookTopic := m.DominantTopic(0)
	for d := 1; d < len(cooking); d++ {
		assert.Equal(t, cookTopic, m.DominantTopic(d), "cooking doc %d", d)
	}
	sailTopic := m.DominantTopic(len(cooking))
	for d := len(cooking) + 1; d < len(docs); d++ {
		assert.Equal(t, sailTopic, m.DominantTopic(d), "sailing doc %d", d)
	}
	assert.NotEqual(t, cookTopic, sailTopic)

	top := m.TopWords(sailTopic, 3)
	for _, w := range top {
		assert.Contains(t, []string{"wind", "sail", "mast", "harbor", "anchor", "boat"}, w)
	}

	t.Run("rejects_bad_config", func(t *testing.T) {
		_, err := FitLDA(docs, LDAConfig{Topics: 1})
		require.Error(t, err)
		_, err = FitLDA([]string{"", ""}, LDAConfig{Topics: 2})
		require.Error(t, err)
	})
}
