package ml

import (
	"fmt"
	"math"
	"math/rand"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// MLPConfig controls feedforward classifier training. Zero values fall back
// to the defaults noted per field.
type MLPConfig struct {
	HiddenUnits  int     // default 16
	LearningRate float64 // default 0.05
	Epochs       int     // default 200
	BatchSize    int     // default 16
	Seed         int64   // default 1
}

func (c MLPConfig) withDefaults() MLPConfig {
	if c.HiddenUnits <= 0 {
		c.HiddenUnits = 16
	}
	if c.LearningRate <= 0 {
		c.LearningRate = 0.05
	}
	if c.Epochs <= 0 {
		c.Epochs = 200
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 16
	}
	if c.Seed == 0 {
		c.Seed = 1
	}
	return c
}

// MLPClassifier is a single-hidden-layer feedforward network: tanh hidden
// activation, softmax output, trained by mini-batch SGD on cross-entropy.
type MLPClassifier struct {
	Formula  Formula
	Config   MLPConfig
	Classes  []string
	Features []string

	// W1 is (features+1) x hidden including a bias row; W2 is (hidden+1) x
	// classes including a bias row.
	W1 *mat.Dense
	W2 *mat.Dense

	// Feature standardization learned from training data.
	featMean []float64
	featStd  []float64

	TrainLoss     float64
	TrainAccuracy float64
}

// FitMLPClassifier trains a feedforward classifier from a formula. The
// response is treated as categorical.
func FitMLPClassifier(data Tabular, formula string, cfg MLPConfig) (*MLPClassifier, error) {
	cfg = cfg.withDefaults()

	f, err := ParseFormula(formula)
	if err != nil {
		return nil, err
	}
	// The network supplies its own bias terms.
	f.Intercept = false

	d, err := BuildClassDesign(f, data)
	if err != nil {
		return nil, err
	}
	n, p := d.X.Dims()
	k := len(d.Classes)
	h := cfg.HiddenUnits

	// Standardize features; tanh saturates on raw scales.
	feats := mat.DenseCopyOf(d.X)
	mean := make([]float64, p)
	std := make([]float64, p)
	for j := 0; j < p; j++ {
		sum := 0.0
		for i := 0; i < n; i++ {
			sum += feats.At(i, j)
		}
		mean[j] = sum / float64(n)
		ss := 0.0
		for i := 0; i < n; i++ {
			dv := feats.At(i, j) - mean[j]
			ss += dv * dv
		}
		std[j] = math.Sqrt(ss / float64(n))
		if std[j] == 0 {
			std[j] = 1
		}
		for i := 0; i < n; i++ {
			feats.Set(i, j, (feats.At(i, j)-mean[j])/std[j])
		}
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	w1 := mat.NewDense(p+1, h, nil)
	w2 := mat.NewDense(h+1, k, nil)
	scale1 := 1 / math.Sqrt(float64(p))
	scale2 := 1 / math.Sqrt(float64(h))
	for j := 0; j < h; j++ {
		for i := 0; i <= p; i++ {
			w1.Set(i, j, rng.NormFloat64()*scale1)
		}
	}
	for j := 0; j < k; j++ {
		for i := 0; i <= h; i++ {
			w2.Set(i, j, rng.NormFloat64()*scale2)
		}
	}

	m := &MLPClassifier{
		Formula:  f,
		Config:   cfg,
		Classes:  d.Classes,
		Features: d.Names,
		W1:       w1,
		W2:       w2,
		featMean: mean,
		featStd:  std,
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}

	xi := make([]float64, p)
	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		rng.Shuffle(n, func(a, b int) { order[a], order[b] = order[b], order[a] })

		for start := 0; start < n; start += cfg.BatchSize {
			end := start + cfg.BatchSize
			if end > n {
				end = n
			}
			gradW1 := mat.NewDense(p+1, h, nil)
			gradW2 := mat.NewDense(h+1, k, nil)

			for _, idx := range order[start:end] {
				for j := 0; j < p; j++ {
					xi[j] = feats.At(idx, j)
				}
				hidden, probs := m.forwardRaw(xi)

				// Output delta: softmax cross-entropy gradient.
				deltaOut := make([]float64, k)
				copy(deltaOut, probs)
				deltaOut[d.Labels[idx]] -= 1

				for j := 0; j < k; j++ {
					for u := 0; u < h; u++ {
						gradW2.Set(u, j, gradW2.At(u, j)+hidden[u]*deltaOut[j])
					}
					gradW2.Set(h, j, gradW2.At(h, j)+deltaOut[j])
				}

				// Hidden delta through tanh'.
				for u := 0; u < h; u++ {
					sum := 0.0
					for j := 0; j < k; j++ {
						sum += w2.At(u, j) * deltaOut[j]
					}
					dh := sum * (1 - hidden[u]*hidden[u])
					for i := 0; i < p; i++ {
						gradW1.Set(i, u, gradW1.At(i, u)+xi[i]*dh)
					}
					gradW1.Set(p, u, gradW1.At(p, u)+dh)
				}
			}

			lr := cfg.LearningRate / float64(end-start)
			gradW1.Scale(lr, gradW1)
			gradW2.Scale(lr, gradW2)
			w1.Sub(w1, gradW1)
			w2.Sub(w2, gradW2)
		}
	}

	// Training diagnostics.
	loss := 0.0
	correct := 0
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			xi[j] = feats.At(i, j)
		}
		_, probs := m.forwardRaw(xi)
		loss -= math.Log(math.Max(probs[d.Labels[i]], 1e-12))
		if argmax(probs) == d.Labels[i] {
			correct++
		}
	}
	m.TrainLoss = loss / float64(n)
	m.TrainAccuracy = float64(correct) / float64(n)

	return m, nil
}

// forwardRaw runs one standardized feature vector through the network,
// returning hidden activations and class probabilities.
func (m *MLPClassifier) forwardRaw(x []float64) (hidden, probs []float64) {
	_, h := m.W1.Dims()
	_, k := m.W2.Dims()
	p := len(x)

	hidden = make([]float64, h)
	for u := 0; u < h; u++ {
		sum := m.W1.At(p, u)
		for i := 0; i < p; i++ {
			sum += x[i] * m.W1.At(i, u)
		}
		hidden[u] = math.Tanh(sum)
	}

	logits := make([]float64, k)
	maxLogit := math.Inf(-1)
	for j := 0; j < k; j++ {
		sum := m.W2.At(h, j)
		for u := 0; u < h; u++ {
			sum += hidden[u] * m.W2.At(u, j)
		}
		logits[j] = sum
		if sum > maxLogit {
			maxLogit = sum
		}
	}
	total := 0.0
	probs = make([]float64, k)
	for j := range logits {
		probs[j] = math.Exp(logits[j] - maxLogit)
		total += probs[j]
	}
	for j := range probs {
		probs[j] /= total
	}
	return hidden, probs
}

// PredictProba returns per-class probabilities for each row.
func (m *MLPClassifier) PredictProba(data Tabular) ([][]float64, error) {
	x, err := predictorMatrix(m.Features, false, data)
	if err != nil {
		return nil, err
	}
	n, p := x.Dims()
	out := make([][]float64, n)
	xi := make([]float64, p)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			xi[j] = (x.At(i, j) - m.featMean[j]) / m.featStd[j]
		}
		_, probs := m.forwardRaw(xi)
		out[i] = probs
	}
	return out, nil
}

// Predict returns the most probable class label for each row.
func (m *MLPClassifier) Predict(data Tabular) ([]string, error) {
	probs, err := m.PredictProba(data)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(probs))
	for i, p := range probs {
		out[i] = m.Classes[argmax(p)]
	}
	return out, nil
}

// Summary describes the network and its training diagnostics.
func (m *MLPClassifier) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Feedforward classifier: %s\n", m.Formula.String())
	fmt.Fprintf(&b, "Layers: %d -> %d (tanh) -> %d (softmax)\n",
		len(m.Features), m.Config.HiddenUnits, len(m.Classes))
	fmt.Fprintf(&b, "Classes: %s\n", strings.Join(m.Classes, ", "))
	fmt.Fprintf(&b, "Training loss: %.4f    Training accuracy: %.4f\n", m.TrainLoss, m.TrainAccuracy)
	return b.String()
}

func argmax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}
