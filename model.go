package mallard

import (
	"context"

	"github.com/mallard-db/mallard/internal/metastore"
	"github.com/mallard-db/mallard/ml"
)

// Model kinds as registered in the metastore.
const (
	KindLinearRegression   = "linear_regression"
	KindGLM                = "glm"
	KindLogisticRegression = "logistic_regression"
	KindMLPClassifier      = "mlp_classifier"
	KindLDA                = "lda"
)

// PredictionColumn is the column name Predict appends.
const PredictionColumn = "prediction"

// Model is a handle to a fitted model registered with the session. Linear-
// family models predict engine-side by compiling the fitted coefficients to
// a SQL expression; classifiers collect features and predict locally.
type Model struct {
	sess    *Session
	name    string
	kind    string
	formula string
	summary string

	// Exactly one of these is set, matching kind.
	linear   *ml.LinearModel
	glm      *ml.GLMModel
	logistic *ml.LogisticModel
	mlp      *ml.MLPClassifier
	lda      *ml.LDAModel
}

// Name returns the model's registered name.
func (m *Model) Name() string { return m.name }

// Kind returns the model kind, one of the Kind* constants.
func (m *Model) Kind() string { return m.kind }

// Formula returns the formula the model was fitted with.
func (m *Model) Formula() string { return m.formula }

// Summary returns the fit summary captured at training time.
func (m *Model) Summary() string { return m.summary }

// FitLinearRegression collects the frame, fits an OLS regression, and
// registers the fitted model under name.
func (s *Session) FitLinearRegression(ctx context.Context, f *Frame, formula, name string) (*Model, error) {
	tbl, err := f.Collect(ctx)
	if err != nil {
		return nil, err
	}
	fitted, err := ml.FitLinearRegression(tbl, formula)
	if err != nil {
		return nil, ErrModeling(err, "fit linear regression %q", formula)
	}

	m := &Model{
		sess: s, name: name, kind: KindLinearRegression,
		formula: formula, summary: fitted.Summary(), linear: fitted,
	}
	s.saveModel(ctx, m, map[string]interface{}{
		"names":        fitted.Names,
		"coefficients": fitted.Coefficients,
		"std_errors":   fitted.StdErrors,
	}, map[string]float64{
		"r_squared":     fitted.R2,
		"adj_r_squared": fitted.AdjR2,
		"sigma":         fitted.Sigma,
	})
	return m, nil
}

// FitGLM collects the frame and fits a generalized linear model with the
// given family.
func (s *Session) FitGLM(ctx context.Context, f *Frame, formula string, family ml.Family, name string) (*Model, error) {
	tbl, err := f.Collect(ctx)
	if err != nil {
		return nil, err
	}
	fitted, err := ml.FitGLM(tbl, formula, family)
	if err != nil {
		return nil, ErrModeling(err, "fit %s GLM %q", family, formula)
	}

	m := &Model{
		sess: s, name: name, kind: KindGLM,
		formula: formula, summary: fitted.Summary(), glm: fitted,
	}
	s.saveModel(ctx, m, map[string]interface{}{
		"family":       string(fitted.Family),
		"names":        fitted.Names,
		"coefficients": fitted.Coefficients,
	}, map[string]float64{
		"deviance":      fitted.Deviance,
		"null_deviance": fitted.NullDeviance,
		"iterations":    float64(fitted.Iterations),
	})
	return m, nil
}

// FitLogisticRegression collects the frame and fits a binary classifier.
func (s *Session) FitLogisticRegression(ctx context.Context, f *Frame, formula, name string) (*Model, error) {
	tbl, err := f.Collect(ctx)
	if err != nil {
		return nil, err
	}
	fitted, err := ml.FitLogisticRegression(tbl, formula)
	if err != nil {
		return nil, ErrModeling(err, "fit logistic regression %q", formula)
	}

	m := &Model{
		sess: s, name: name, kind: KindLogisticRegression,
		formula: formula, summary: fitted.Summary(), logistic: fitted,
	}
	s.saveModel(ctx, m, map[string]interface{}{
		"classes":      fitted.Classes[:],
		"names":        fitted.GLM.Names,
		"coefficients": fitted.GLM.Coefficients,
	}, map[string]float64{
		"deviance": fitted.GLM.Deviance,
	})
	return m, nil
}

// FitMLPClassifier collects the frame and trains a feedforward classifier.
func (s *Session) FitMLPClassifier(ctx context.Context, f *Frame, formula string, cfg ml.MLPConfig, name string) (*Model, error) {
	tbl, err := f.Collect(ctx)
	if err != nil {
		return nil, err
	}
	fitted, err := ml.FitMLPClassifier(tbl, formula, cfg)
	if err != nil {
		return nil, ErrModeling(err, "fit feedforward classifier %q", formula)
	}

	m := &Model{
		sess: s, name: name, kind: KindMLPClassifier,
		formula: formula, summary: fitted.Summary(), mlp: fitted,
	}
	s.saveModel(ctx, m, map[string]interface{}{
		"classes":      fitted.Classes,
		"features":     fitted.Features,
		"hidden_units": fitted.Config.HiddenUnits,
	}, map[string]float64{
		"train_loss":     fitted.TrainLoss,
		"train_accuracy": fitted.TrainAccuracy,
	})
	return m, nil
}

// FitLDA collects a text column from the frame and fits a topic model over
// its documents.
func (s *Session) FitLDA(ctx context.Context, f *Frame, column string, cfg ml.LDAConfig, name string) (*Model, error) {
	tbl, err := f.Collect(ctx)
	if err != nil {
		return nil, err
	}
	fitted, err := ml.FitLDAFromTable(tbl, column, cfg)
	if err != nil {
		return nil, ErrModeling(err, "fit LDA on column %q", column)
	}

	m := &Model{
		sess: s, name: name, kind: KindLDA,
		formula: column + " ~ topics", summary: fitted.Summary(), lda: fitted,
	}
	s.saveModel(ctx, m, map[string]interface{}{
		"topics":     fitted.Config.Topics,
		"vocab_size": len(fitted.Vocab),
	}, map[string]float64{
		"documents": float64(len(fitted.DocTopic)),
	})
	return m, nil
}

// Predict applies the model to a frame. Linear-family models return a new
// lazy Frame with a "prediction" column computed engine-side; classifiers
// collect the frame and return nil alongside using PredictTable instead.
func (m *Model) Predict(ctx context.Context, f *Frame) (*Frame, error) {
	if err := m.sess.checkOpen(); err != nil {
		return nil, err
	}
	expr := m.predictExpr()
	if expr == "" {
		return nil, ErrValidation("model %q (%s) predicts locally; use PredictTable", m.name, m.kind)
	}
	return f.Mutate(PredictionColumn, expr), nil
}

// PredictTable materializes the frame and appends a "prediction" column
// computed locally. Works for every model kind except LDA.
func (m *Model) PredictTable(ctx context.Context, f *Frame) (*Table, error) {
	tbl, err := f.Collect(ctx)
	if err != nil {
		return nil, err
	}

	var preds []interface{}
	switch {
	case m.linear != nil:
		vals, err := m.linear.Predict(tbl)
		if err != nil {
			return nil, ErrModeling(err, "predict with %q", m.name)
		}
		preds = floatsToValues(vals)
	case m.glm != nil:
		vals, err := m.glm.Predict(tbl)
		if err != nil {
			return nil, ErrModeling(err, "predict with %q", m.name)
		}
		preds = floatsToValues(vals)
	case m.logistic != nil:
		labels, err := m.logistic.Predict(tbl)
		if err != nil {
			return nil, ErrModeling(err, "predict with %q", m.name)
		}
		preds = stringsToValues(labels)
	case m.mlp != nil:
		labels, err := m.mlp.Predict(tbl)
		if err != nil {
			return nil, ErrModeling(err, "predict with %q", m.name)
		}
		preds = stringsToValues(labels)
	default:
		return nil, ErrValidation("model %q (%s) does not support row prediction", m.name, m.kind)
	}

	cols := append(append([]string{}, tbl.Columns()...), PredictionColumn)
	rows := make([][]interface{}, tbl.NumRows())
	for i, row := range tbl.Rows() {
		rows[i] = append(append([]interface{}{}, row...), preds[i])
	}
	return NewTable(cols, rows), nil
}

// TopicWords returns an LDA model's top words for a topic.
func (m *Model) TopicWords(topic, n int) ([]string, error) {
	if m.lda == nil {
		return nil, ErrValidation("model %q (%s) is not a topic model", m.name, m.kind)
	}
	return m.lda.TopWords(topic, n), nil
}

// Models lists the models registered in the session metastore.
func (s *Session) Models(ctx context.Context) ([]metastore.ModelRecord, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.models.List(ctx)
}

func (m *Model) predictExpr() string {
	switch {
	case m.linear != nil:
		return m.linear.PredictExpr()
	case m.glm != nil:
		return m.glm.PredictExpr()
	case m.logistic != nil:
		return m.logistic.PredictExpr()
	default:
		return ""
	}
}

// saveModel registers the fitted model in the metastore. Registration is
// advisory; failures are logged, never propagated.
func (s *Session) saveModel(ctx context.Context, m *Model, params map[string]interface{}, metrics map[string]float64) {
	_, err := s.models.Save(ctx, &metastore.ModelRecord{
		Name:    m.name,
		Kind:    m.kind,
		Formula: m.formula,
		Params:  params,
		Metrics: metrics,
	})
	if err != nil {
		s.logger.Warn("model registration failed", "model", m.name, "error", err)
	}
}

func floatsToValues(v []float64) []interface{} {
	out := make([]interface{}, len(v))
	for i, x := range v {
		out[i] = x
	}
	return out
}

func stringsToValues(v []string) []interface{} {
	out := make([]interface{}, len(v))
	for i, x := range v {
		out[i] = x
	}
	return out
}
