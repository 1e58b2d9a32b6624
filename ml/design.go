package ml

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Tabular is the slice of a materialized table the fitters need. The root
// package's Table satisfies it.
type Tabular interface {
	Columns() []string
	NumRows() int
	Float64s(column string) ([]float64, error)
	Strings(column string) ([]string, error)
}

// InterceptName is the coefficient name used for the intercept column.
const InterceptName = "(Intercept)"

// Design is a numeric design matrix plus response vector built from a
// formula and a table.
type Design struct {
	X       *mat.Dense
	Y       []float64
	Names   []string // coefficient names, intercept first when present
	Formula Formula
}

// BuildDesign resolves the formula against the table and assembles the
// design matrix. All predictor columns and the response must be numeric.
func BuildDesign(f Formula, data Tabular) (*Design, error) {
	predictors, err := f.Predictors(data.Columns())
	if err != nil {
		return nil, err
	}

	n := data.NumRows()
	if n == 0 {
		return nil, fmt.Errorf("no rows to fit on")
	}

	y, err := data.Float64s(f.Response)
	if err != nil {
		return nil, fmt.Errorf("response %q: %w", f.Response, err)
	}

	p := len(predictors)
	offset := 0
	names := make([]string, 0, p+1)
	if f.Intercept {
		offset = 1
		names = append(names, InterceptName)
	}
	names = append(names, predictors...)

	x := mat.NewDense(n, p+offset, nil)
	if f.Intercept {
		for i := 0; i < n; i++ {
			x.Set(i, 0, 1)
		}
	}
	for j, col := range predictors {
		vals, err := data.Float64s(col)
		if err != nil {
			return nil, fmt.Errorf("predictor %q: %w", col, err)
		}
		for i := 0; i < n; i++ {
			x.Set(i, j+offset, vals[i])
		}
	}

	return &Design{X: x, Y: y, Names: names, Formula: f}, nil
}

// ClassDesign is a design matrix with a categorical response: the label
// vector is encoded as class indices over the sorted distinct labels.
type ClassDesign struct {
	X       *mat.Dense
	Labels  []int
	Classes []string
	Names   []string
	Formula Formula
}

// BuildClassDesign assembles a design matrix for classification. The
// response column may be string labels or numeric class codes.
func BuildClassDesign(f Formula, data Tabular) (*ClassDesign, error) {
	predictors, err := f.Predictors(data.Columns())
	if err != nil {
		return nil, err
	}
	n := data.NumRows()
	if n == 0 {
		return nil, fmt.Errorf("no rows to fit on")
	}

	raw, err := data.Strings(f.Response)
	if err != nil {
		return nil, fmt.Errorf("response %q: %w", f.Response, err)
	}
	classSet := make(map[string]bool)
	for _, v := range raw {
		classSet[v] = true
	}
	classes := make([]string, 0, len(classSet))
	for c := range classSet {
		classes = append(classes, c)
	}
	sort.Strings(classes)
	if len(classes) < 2 {
		return nil, fmt.Errorf("response %q has %d distinct class(es), need at least 2", f.Response, len(classes))
	}
	classIndex := make(map[string]int, len(classes))
	for i, c := range classes {
		classIndex[c] = i
	}
	labels := make([]int, n)
	for i, v := range raw {
		labels[i] = classIndex[v]
	}

	offset := 0
	names := make([]string, 0, len(predictors)+1)
	if f.Intercept {
		offset = 1
		names = append(names, InterceptName)
	}
	names = append(names, predictors...)

	x := mat.NewDense(n, len(predictors)+offset, nil)
	if f.Intercept {
		for i := 0; i < n; i++ {
			x.Set(i, 0, 1)
		}
	}
	for j, col := range predictors {
		vals, err := data.Float64s(col)
		if err != nil {
			return nil, fmt.Errorf("predictor %q: %w", col, err)
		}
		for i := 0; i < n; i++ {
			x.Set(i, j+offset, vals[i])
		}
	}

	return &ClassDesign{X: x, Labels: labels, Classes: classes, Names: names, Formula: f}, nil
}

// predictorMatrix rebuilds the X matrix for new data using the fitted
// coefficient names (skipping the intercept slot, which is synthesized).
func predictorMatrix(names []string, intercept bool, data Tabular) (*mat.Dense, error) {
	predictors := names
	if intercept {
		predictors = names[1:]
	}
	n := data.NumRows()
	offset := 0
	if intercept {
		offset = 1
	}
	x := mat.NewDense(n, len(predictors)+offset, nil)
	if intercept {
		for i := 0; i < n; i++ {
			x.Set(i, 0, 1)
		}
	}
	for j, col := range predictors {
		vals, err := data.Float64s(col)
		if err != nil {
			return nil, fmt.Errorf("predictor %q: %w", col, err)
		}
		for i := 0; i < n; i++ {
			x.Set(i, j+offset, vals[i])
		}
	}
	return x, nil
}
