package ml

import (
	"fmt"
	"strings"
)

// LogisticModel is a binary classifier: a binomial GLM plus a decision
// threshold and the original class labels.
type LogisticModel struct {
	GLM       *GLMModel
	Classes   [2]string // Classes[0] encoded as 0, Classes[1] as 1
	Threshold float64
}

// FitLogisticRegression fits a logistic regression. The response may be a
// numeric 0/1 column or a two-class label column; labels are encoded in
// sorted order.
func FitLogisticRegression(data Tabular, formula string) (*LogisticModel, error) {
	f, err := ParseFormula(formula)
	if err != nil {
		return nil, err
	}

	// Encode a label response into 0/1 so the binomial GLM can fit it.
	encoded, classes, err := encodeBinaryResponse(f, data)
	if err != nil {
		return nil, err
	}

	glm, err := FitGLM(encoded, formula, FamilyBinomial)
	if err != nil {
		return nil, err
	}
	return &LogisticModel{GLM: glm, Classes: classes, Threshold: 0.5}, nil
}

// PredictProba returns P(class = Classes[1]) for each row.
func (m *LogisticModel) PredictProba(data Tabular) ([]float64, error) {
	return m.GLM.Predict(data)
}

// Predict returns the predicted class label for each row.
func (m *LogisticModel) Predict(data Tabular) ([]string, error) {
	probs, err := m.PredictProba(data)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(probs))
	for i, p := range probs {
		if p >= m.Threshold {
			out[i] = m.Classes[1]
		} else {
			out[i] = m.Classes[0]
		}
	}
	return out, nil
}

// PredictExpr compiles P(class = Classes[1]) into a SQL expression.
func (m *LogisticModel) PredictExpr() string {
	return m.GLM.PredictExpr()
}

// Summary renders the fit with the class encoding.
func (m *LogisticModel) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Logistic regression (positive class %q, reference %q)\n",
		m.Classes[1], m.Classes[0])
	b.WriteString(m.GLM.Summary())
	return b.String()
}

// binaryView re-presents a table with the response column recoded to 0/1
// floats. Non-response columns pass through.
type binaryView struct {
	Tabular
	response string
	values   []float64
}

func (v *binaryView) Float64s(column string) ([]float64, error) {
	if column == v.response {
		return v.values, nil
	}
	return v.Tabular.Float64s(column)
}

func encodeBinaryResponse(f Formula, data Tabular) (Tabular, [2]string, error) {
	var classes [2]string

	// Numeric 0/1 passes through unchanged.
	if ys, err := data.Float64s(f.Response); err == nil {
		numeric := true
		for _, y := range ys {
			if y != 0 && y != 1 {
				numeric = false
				break
			}
		}
		if numeric {
			return data, [2]string{"0", "1"}, nil
		}
	}

	labels, err := data.Strings(f.Response)
	if err != nil {
		return nil, classes, fmt.Errorf("response %q: %w", f.Response, err)
	}
	distinct := make(map[string]bool)
	for _, l := range labels {
		distinct[l] = true
	}
	if len(distinct) != 2 {
		return nil, classes, fmt.Errorf("logistic regression needs exactly 2 classes, response %q has %d", f.Response, len(distinct))
	}
	i := 0
	for l := range distinct {
		classes[i] = l
		i++
	}
	if classes[0] > classes[1] {
		classes[0], classes[1] = classes[1], classes[0]
	}

	encoded := make([]float64, len(labels))
	for i, l := range labels {
		if l == classes[1] {
			encoded[i] = 1
		}
	}
	return &binaryView{Tabular: data, response: f.Response, values: encoded}, classes, nil
}
