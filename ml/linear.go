package ml

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// LinearModel is an ordinary least squares fit.
type LinearModel struct {
	Formula      Formula
	Names        []string
	Coefficients []float64
	StdErrors    []float64
	TStats       []float64
	Sigma        float64 // residual standard error
	R2           float64
	AdjR2        float64
	N            int
}

// FitLinearRegression fits y ~ X by QR-based least squares.
func FitLinearRegression(data Tabular, formula string) (*LinearModel, error) {
	f, err := ParseFormula(formula)
	if err != nil {
		return nil, err
	}
	d, err := BuildDesign(f, data)
	if err != nil {
		return nil, err
	}

	n, p := d.X.Dims()
	if n <= p {
		return nil, fmt.Errorf("need more rows (%d) than coefficients (%d)", n, p)
	}

	var qr mat.QR
	qr.Factorize(d.X)

	yVec := mat.NewVecDense(n, d.Y)
	var beta mat.VecDense
	if err := qr.SolveVecTo(&beta, false, yVec); err != nil {
		return nil, fmt.Errorf("singular design matrix: %w", err)
	}

	coefs := make([]float64, p)
	for j := 0; j < p; j++ {
		coefs[j] = beta.AtVec(j)
	}

	// Residuals and fit statistics.
	var fitted mat.VecDense
	fitted.MulVec(d.X, &beta)
	rss := 0.0
	meanY := 0.0
	for i := 0; i < n; i++ {
		meanY += d.Y[i]
	}
	meanY /= float64(n)
	tss := 0.0
	for i := 0; i < n; i++ {
		r := d.Y[i] - fitted.AtVec(i)
		rss += r * r
		dy := d.Y[i] - meanY
		tss += dy * dy
	}
	dof := float64(n - p)
	sigma2 := rss / dof

	r2 := 0.0
	if tss > 0 {
		r2 = 1 - rss/tss
	}
	adjR2 := 1 - (1-r2)*float64(n-1)/dof

	// Standard errors from (X'X)^-1 sigma^2.
	var xtx mat.Dense
	xtx.Mul(d.X.T(), d.X)
	var xtxInv mat.Dense
	stdErrs := make([]float64, p)
	tStats := make([]float64, p)
	if err := xtxInv.Inverse(&xtx); err == nil {
		for j := 0; j < p; j++ {
			stdErrs[j] = math.Sqrt(sigma2 * xtxInv.At(j, j))
			if stdErrs[j] > 0 {
				tStats[j] = coefs[j] / stdErrs[j]
			}
		}
	}

	return &LinearModel{
		Formula:      f,
		Names:        d.Names,
		Coefficients: coefs,
		StdErrors:    stdErrs,
		TStats:       tStats,
		Sigma:        math.Sqrt(sigma2),
		R2:           r2,
		AdjR2:        adjR2,
		N:            n,
	}, nil
}

// Predict returns fitted values for new data with the same predictor
// columns.
func (m *LinearModel) Predict(data Tabular) ([]float64, error) {
	x, err := predictorMatrix(m.Names, m.Formula.Intercept, data)
	if err != nil {
		return nil, err
	}
	n, _ := x.Dims()
	beta := mat.NewVecDense(len(m.Coefficients), m.Coefficients)
	var out mat.VecDense
	out.MulVec(x, beta)
	preds := make([]float64, n)
	for i := range preds {
		preds[i] = out.AtVec(i)
	}
	return preds, nil
}

// PredictExpr compiles the fitted linear predictor into a SQL expression
// over the model's predictor columns, so prediction can run engine-side.
func (m *LinearModel) PredictExpr() string {
	return linearPredictorSQL(m.Names, m.Coefficients, m.Formula.Intercept)
}

// Summary renders a coefficient table in the familiar regression layout.
func (m *LinearModel) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Linear regression: %s  (n=%d)\n\n", m.Formula.String(), m.N)
	fmt.Fprintf(&b, "%-14s %12s %12s %10s\n", "", "Estimate", "Std.Error", "t value")
	for j, name := range m.Names {
		fmt.Fprintf(&b, "%-14s %12.4f %12.4f %10.3f\n", name, m.Coefficients[j], m.StdErrors[j], m.TStats[j])
	}
	fmt.Fprintf(&b, "\nResidual std error: %.4f    R-squared: %.4f    Adj R-squared: %.4f\n",
		m.Sigma, m.R2, m.AdjR2)
	return b.String()
}

// linearPredictorSQL renders b0 + b1*"x1" + ... as SQL.
func linearPredictorSQL(names []string, coefs []float64, intercept bool) string {
	var parts []string
	start := 0
	if intercept {
		parts = append(parts, formatCoef(coefs[0]))
		start = 1
	}
	for j := start; j < len(coefs); j++ {
		parts = append(parts, fmt.Sprintf("%s * %s", formatCoef(coefs[j]), sqlIdent(names[j])))
	}
	return "(" + strings.Join(parts, " + ") + ")"
}

func formatCoef(v float64) string {
	return "(" + strconv.FormatFloat(v, 'g', 17, 64) + ")"
}

func sqlIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
