// Package ml fits statistical models from R-style formulas against
// materialized tables: linear regression, GLMs, logistic regression, a
// small feedforward classifier, and LDA topic modeling.
package ml

import (
	"fmt"
	"strings"
)

// Formula is a parsed model formula of the form `response ~ term1 + term2`.
// A single "." term expands to every column except the response. A "0" or
// "-1" term drops the intercept.
type Formula struct {
	Response  string
	Terms     []string
	Intercept bool
	Dot       bool
}

// ParseFormula parses an R-style formula string.
func ParseFormula(s string) (Formula, error) {
	lhs, rhs, ok := strings.Cut(s, "~")
	if !ok {
		return Formula{}, fmt.Errorf("formula %q: missing ~", s)
	}
	f := Formula{Response: strings.TrimSpace(lhs), Intercept: true}
	if f.Response == "" {
		return Formula{}, fmt.Errorf("formula %q: empty response", s)
	}

	// Normalize "- 1" into a droppable term.
	rhs = strings.ReplaceAll(rhs, "-1", "+ 0")
	for _, raw := range strings.Split(rhs, "+") {
		term := strings.TrimSpace(raw)
		switch term {
		case "":
			continue
		case "0":
			f.Intercept = false
		case ".":
			f.Dot = true
		default:
			f.Terms = append(f.Terms, term)
		}
	}
	if !f.Dot && len(f.Terms) == 0 {
		return Formula{}, fmt.Errorf("formula %q: no predictor terms", s)
	}
	return f, nil
}

// String renders the formula back to its canonical text form.
func (f Formula) String() string {
	terms := make([]string, 0, len(f.Terms)+2)
	if f.Dot {
		terms = append(terms, ".")
	}
	terms = append(terms, f.Terms...)
	if !f.Intercept {
		terms = append(terms, "0")
	}
	return f.Response + " ~ " + strings.Join(terms, " + ")
}

// Predictors resolves the formula's predictor columns against the available
// columns, expanding "." and rejecting unknown terms.
func (f Formula) Predictors(available []string) ([]string, error) {
	have := make(map[string]bool, len(available))
	for _, c := range available {
		have[c] = true
	}
	if !have[f.Response] {
		return nil, fmt.Errorf("response column %q not found", f.Response)
	}

	seen := make(map[string]bool)
	var out []string
	add := func(c string) {
		if !seen[c] && c != f.Response {
			seen[c] = true
			out = append(out, c)
		}
	}

	if f.Dot {
		for _, c := range available {
			add(c)
		}
	}
	for _, term := range f.Terms {
		if !have[term] {
			return nil, fmt.Errorf("predictor column %q not found", term)
		}
		add(term)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("formula %q resolves to no predictors", f.String())
	}
	return out, nil
}
