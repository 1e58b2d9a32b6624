package ml

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Family selects a GLM error distribution and its canonical link.
type Family string

// Supported GLM families.
const (
	FamilyGaussian Family = "gaussian" // identity link
	FamilyPoisson  Family = "poisson"  // log link
	FamilyBinomial Family = "binomial" // logit link
)

// GLM fitting controls.
const (
	glmMaxIter = 50
	glmTol     = 1e-8
)

// GLMModel is a generalized linear model fitted by iteratively reweighted
// least squares.
type GLMModel struct {
	Formula      Formula
	Family       Family
	Names        []string
	Coefficients []float64
	Deviance     float64
	NullDeviance float64
	Iterations   int
	Converged    bool
	N            int
}

// FitGLM fits a GLM with the given family's canonical link.
func FitGLM(data Tabular, formula string, family Family) (*GLMModel, error) {
	switch family {
	case FamilyGaussian, FamilyPoisson, FamilyBinomial:
	default:
		return nil, fmt.Errorf("unsupported family %q", family)
	}

	f, err := ParseFormula(formula)
	if err != nil {
		return nil, err
	}
	d, err := BuildDesign(f, data)
	if err != nil {
		return nil, err
	}
	if family == FamilyBinomial {
		for i, y := range d.Y {
			if y != 0 && y != 1 {
				return nil, fmt.Errorf("binomial response must be 0/1, row %d is %g", i, y)
			}
		}
	}

	n, p := d.X.Dims()
	if n <= p {
		return nil, fmt.Errorf("need more rows (%d) than coefficients (%d)", n, p)
	}

	beta := make([]float64, p)
	eta := make([]float64, n)
	mu := make([]float64, n)
	z := make([]float64, n)
	w := make([]float64, n)

	// Initialize mu away from boundaries.
	for i := range mu {
		switch family {
		case FamilyBinomial:
			mu[i] = (d.Y[i] + 0.5) / 2
		case FamilyPoisson:
			mu[i] = d.Y[i] + 0.1
		default:
			mu[i] = d.Y[i]
		}
		eta[i] = linkFn(family, mu[i])
	}

	dev := deviance(family, d.Y, mu)
	var iter int
	converged := false
	for iter = 1; iter <= glmMaxIter; iter++ {
		// Working response and weights for the current iterate.
		for i := 0; i < n; i++ {
			dmu := muEta(family, eta[i])
			if dmu < 1e-10 {
				dmu = 1e-10
			}
			z[i] = eta[i] + (d.Y[i]-mu[i])/dmu
			w[i] = dmu * dmu / varianceFn(family, mu[i])
		}

		next, err := weightedLeastSquares(d.X, z, w)
		if err != nil {
			return nil, fmt.Errorf("IRLS step %d: %w", iter, err)
		}
		copy(beta, next)

		betaVec := mat.NewVecDense(p, beta)
		var etaVec mat.VecDense
		etaVec.MulVec(d.X, betaVec)
		for i := 0; i < n; i++ {
			eta[i] = etaVec.AtVec(i)
			mu[i] = linkInv(family, eta[i])
		}

		newDev := deviance(family, d.Y, mu)
		if math.Abs(newDev-dev) < glmTol*(math.Abs(newDev)+0.1) {
			dev = newDev
			converged = true
			break
		}
		dev = newDev
	}
	if !converged {
		return nil, fmt.Errorf("IRLS did not converge in %d iterations (deviance %g)", glmMaxIter, dev)
	}

	// Null deviance: intercept-only model, mu = mean(y).
	meanY := 0.0
	for _, y := range d.Y {
		meanY += y
	}
	meanY /= float64(n)
	nullMu := make([]float64, n)
	for i := range nullMu {
		nullMu[i] = meanY
	}

	return &GLMModel{
		Formula:      f,
		Family:       family,
		Names:        d.Names,
		Coefficients: beta,
		Deviance:     dev,
		NullDeviance: deviance(family, d.Y, nullMu),
		Iterations:   iter,
		Converged:    converged,
		N:            n,
	}, nil
}

// Predict returns predictions on the response scale.
func (m *GLMModel) Predict(data Tabular) ([]float64, error) {
	x, err := predictorMatrix(m.Names, m.Formula.Intercept, data)
	if err != nil {
		return nil, err
	}
	n, _ := x.Dims()
	beta := mat.NewVecDense(len(m.Coefficients), m.Coefficients)
	var etaVec mat.VecDense
	etaVec.MulVec(x, beta)
	out := make([]float64, n)
	for i := range out {
		out[i] = linkInv(m.Family, etaVec.AtVec(i))
	}
	return out, nil
}

// PredictExpr compiles the fitted model into a SQL expression on the
// response scale, applying the inverse link around the linear predictor.
func (m *GLMModel) PredictExpr() string {
	lp := linearPredictorSQL(m.Names, m.Coefficients, m.Formula.Intercept)
	switch m.Family {
	case FamilyPoisson:
		return "EXP(" + lp + ")"
	case FamilyBinomial:
		return "(1.0 / (1.0 + EXP(-" + lp + ")))"
	default:
		return lp
	}
}

// Summary renders the fit in a glm-style layout.
func (m *GLMModel) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "GLM (%s): %s  (n=%d)\n\n", m.Family, m.Formula.String(), m.N)
	fmt.Fprintf(&b, "%-14s %12s\n", "", "Estimate")
	for j, name := range m.Names {
		fmt.Fprintf(&b, "%-14s %12.4f\n", name, m.Coefficients[j])
	}
	fmt.Fprintf(&b, "\nNull deviance: %.4f    Residual deviance: %.4f    Iterations: %d\n",
		m.NullDeviance, m.Deviance, m.Iterations)
	return b.String()
}

func linkFn(fam Family, mu float64) float64 {
	switch fam {
	case FamilyPoisson:
		return math.Log(math.Max(mu, 1e-10))
	case FamilyBinomial:
		mu = clamp(mu, 1e-10, 1-1e-10)
		return math.Log(mu / (1 - mu))
	default:
		return mu
	}
}

func linkInv(fam Family, eta float64) float64 {
	switch fam {
	case FamilyPoisson:
		return math.Exp(eta)
	case FamilyBinomial:
		return 1 / (1 + math.Exp(-eta))
	default:
		return eta
	}
}

// muEta is d(mu)/d(eta) for the canonical link.
func muEta(fam Family, eta float64) float64 {
	switch fam {
	case FamilyPoisson:
		return math.Exp(eta)
	case FamilyBinomial:
		p := 1 / (1 + math.Exp(-eta))
		return p * (1 - p)
	default:
		return 1
	}
}

func varianceFn(fam Family, mu float64) float64 {
	switch fam {
	case FamilyPoisson:
		return math.Max(mu, 1e-10)
	case FamilyBinomial:
		mu = clamp(mu, 1e-10, 1-1e-10)
		return mu * (1 - mu)
	default:
		return 1
	}
}

func deviance(fam Family, y, mu []float64) float64 {
	dev := 0.0
	for i := range y {
		switch fam {
		case FamilyPoisson:
			m := math.Max(mu[i], 1e-10)
			if y[i] > 0 {
				dev += 2 * (y[i]*math.Log(y[i]/m) - (y[i] - m))
			} else {
				dev += 2 * m
			}
		case FamilyBinomial:
			m := clamp(mu[i], 1e-10, 1-1e-10)
			if y[i] > 0 {
				dev += -2 * math.Log(m)
			} else {
				dev += -2 * math.Log(1-m)
			}
		default:
			r := y[i] - mu[i]
			dev += r * r
		}
	}
	return dev
}

// weightedLeastSquares solves min ||W^(1/2)(z - X b)|| via QR on the
// reweighted system.
func weightedLeastSquares(x *mat.Dense, z, w []float64) ([]float64, error) {
	n, p := x.Dims()
	xw := mat.NewDense(n, p, nil)
	zw := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		sw := math.Sqrt(w[i])
		for j := 0; j < p; j++ {
			xw.Set(i, j, x.At(i, j)*sw)
		}
		zw.SetVec(i, z[i]*sw)
	}

	var qr mat.QR
	qr.Factorize(xw)
	var beta mat.VecDense
	if err := qr.SolveVecTo(&beta, false, zw); err != nil {
		return nil, fmt.Errorf("singular weighted design: %w", err)
	}
	out := make([]float64, p)
	for j := 0; j < p; j++ {
		out[j] = beta.AtVec(j)
	}
	return out, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
