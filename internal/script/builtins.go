package script

import (
	"fmt"
	"os"

	"go.starlark.net/starlark"
	gomponents "maragu.dev/gomponents"

	"github.com/mallard-db/mallard/chart"
	"github.com/mallard-db/mallard/ml"
)

func (r *Runtime) builtinSampleData(t *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs("sample_data", args, kwargs, 0); err != nil {
		return nil, err
	}
	f, err := r.sess.SampleData(r.ctx)
	if err != nil {
		return nil, err
	}
	return &frameValue{rt: r, frame: f}, nil
}

func (r *Runtime) builtinReadCSV(t *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name, source string
	if err := starlark.UnpackPositionalArgs("read_csv", args, kwargs, 2, &name, &source); err != nil {
		return nil, err
	}
	f, err := r.sess.ReadCSV(r.ctx, name, source)
	if err != nil {
		return nil, err
	}
	return &frameValue{rt: r, frame: f}, nil
}

func (r *Runtime) builtinReadParquet(t *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name, source string
	if err := starlark.UnpackPositionalArgs("read_parquet", args, kwargs, 2, &name, &source); err != nil {
		return nil, err
	}
	f, err := r.sess.ReadParquet(r.ctx, name, source)
	if err != nil {
		return nil, err
	}
	return &frameValue{rt: r, frame: f}, nil
}

func (r *Runtime) builtinCopyTo(t *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var colsList, rowsList *starlark.List
	if err := starlark.UnpackPositionalArgs("copy_to", args, kwargs, 3, &name, &colsList, &rowsList); err != nil {
		return nil, err
	}
	cols, err := stringSlice(colsList)
	if err != nil {
		return nil, err
	}
	rows := make([][]interface{}, rowsList.Len())
	for i := 0; i < rowsList.Len(); i++ {
		rowList, ok := rowsList.Index(i).(*starlark.List)
		if !ok {
			return nil, fmt.Errorf("copy_to: row %d must be a list, got %s", i, rowsList.Index(i).Type())
		}
		row := make([]interface{}, rowList.Len())
		for j := 0; j < rowList.Len(); j++ {
			v, err := goValue(rowList.Index(j))
			if err != nil {
				return nil, fmt.Errorf("copy_to: row %d: %w", i, err)
			}
			row[j] = v
		}
		rows[i] = row
	}
	f, err := r.sess.CopyTo(r.ctx, name, cols, rows)
	if err != nil {
		return nil, err
	}
	return &frameValue{rt: r, frame: f}, nil
}

func (r *Runtime) builtinTable(t *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackPositionalArgs("table", args, kwargs, 1, &name); err != nil {
		return nil, err
	}
	f, err := r.sess.Table(name)
	if err != nil {
		return nil, err
	}
	return &frameValue{rt: r, frame: f}, nil
}

func (r *Runtime) builtinTables(t *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs("tables", args, kwargs, 0); err != nil {
		return nil, err
	}
	names, err := r.sess.Tables(r.ctx)
	if err != nil {
		return nil, err
	}
	return stringList(names), nil
}

func (r *Runtime) builtinFitLinear(t *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var f *frameValue
	var formula, name string
	if err := starlark.UnpackPositionalArgs("fit_linear", args, kwargs, 3, &f, &formula, &name); err != nil {
		return nil, err
	}
	m, err := r.sess.FitLinearRegression(r.ctx, f.frame, formula, name)
	if err != nil {
		return nil, err
	}
	return &modelValue{rt: r, model: m}, nil
}

func (r *Runtime) builtinFitGLM(t *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var f *frameValue
	var formula, family, name string
	if err := starlark.UnpackPositionalArgs("fit_glm", args, kwargs, 4, &f, &formula, &family, &name); err != nil {
		return nil, err
	}
	m, err := r.sess.FitGLM(r.ctx, f.frame, formula, ml.Family(family), name)
	if err != nil {
		return nil, err
	}
	return &modelValue{rt: r, model: m}, nil
}

func (r *Runtime) builtinFitLogistic(t *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var f *frameValue
	var formula, name string
	if err := starlark.UnpackPositionalArgs("fit_logistic", args, kwargs, 3, &f, &formula, &name); err != nil {
		return nil, err
	}
	m, err := r.sess.FitLogisticRegression(r.ctx, f.frame, formula, name)
	if err != nil {
		return nil, err
	}
	return &modelValue{rt: r, model: m}, nil
}

func (r *Runtime) builtinFitMLP(t *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var f *frameValue
	var formula, name string
	var hidden, epochs, seed int
	var lr starlark.Float
	if err := starlark.UnpackArgs("fit_mlp", args, kwargs,
		"frame", &f, "formula", &formula, "name", &name,
		"hidden_units?", &hidden, "epochs?", &epochs, "learning_rate?", &lr, "seed?", &seed); err != nil {
		return nil, err
	}
	cfg := ml.MLPConfig{
		HiddenUnits:  hidden,
		Epochs:       epochs,
		LearningRate: float64(lr),
		Seed:         int64(seed),
	}
	m, err := r.sess.FitMLPClassifier(r.ctx, f.frame, formula, cfg, name)
	if err != nil {
		return nil, err
	}
	return &modelValue{rt: r, model: m}, nil
}

func (r *Runtime) builtinFitLDA(t *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var f *frameValue
	var column, name string
	var topics, iterations, seed int
	if err := starlark.UnpackArgs("fit_lda", args, kwargs,
		"frame", &f, "column", &column, "name", &name,
		"topics?", &topics, "iterations?", &iterations, "seed?", &seed); err != nil {
		return nil, err
	}
	cfg := ml.LDAConfig{Topics: topics, Iterations: iterations, Seed: int64(seed)}
	m, err := r.sess.FitLDA(r.ctx, f.frame, column, cfg, name)
	if err != nil {
		return nil, err
	}
	return &modelValue{rt: r, model: m}, nil
}

func (r *Runtime) builtinChartScatter(t *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var xList, yList *starlark.List
	var path, title, xlabel, ylabel string
	if err := starlark.UnpackArgs("chart_scatter", args, kwargs,
		"x", &xList, "y", &yList, "path", &path,
		"title?", &title, "xlabel?", &xlabel, "ylabel?", &ylabel); err != nil {
		return nil, err
	}
	x, err := floatSlice(xList)
	if err != nil {
		return nil, err
	}
	y, err := floatSlice(yList)
	if err != nil {
		return nil, err
	}
	node, err := chart.Scatter(x, y, chart.Options{Title: title, XLabel: xlabel, YLabel: ylabel})
	if err != nil {
		return nil, err
	}
	return starlark.None, writeChart(path, node)
}

func (r *Runtime) builtinChartHistogram(t *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var valuesList *starlark.List
	var path, title string
	var bins int
	if err := starlark.UnpackArgs("chart_histogram", args, kwargs,
		"values", &valuesList, "path", &path, "bins?", &bins, "title?", &title); err != nil {
		return nil, err
	}
	values, err := floatSlice(valuesList)
	if err != nil {
		return nil, err
	}
	node, err := chart.Histogram(values, bins, chart.Options{Title: title})
	if err != nil {
		return nil, err
	}
	return starlark.None, writeChart(path, node)
}

func (r *Runtime) builtinChartBar(t *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var labelsList, heightsList *starlark.List
	var path, title string
	if err := starlark.UnpackArgs("chart_bar", args, kwargs,
		"labels", &labelsList, "heights", &heightsList, "path", &path, "title?", &title); err != nil {
		return nil, err
	}
	labels, err := stringSlice(labelsList)
	if err != nil {
		return nil, err
	}
	heights, err := floatSlice(heightsList)
	if err != nil {
		return nil, err
	}
	node, err := chart.Bar(labels, heights, chart.Options{Title: title})
	if err != nil {
		return nil, err
	}
	return starlark.None, writeChart(path, node)
}

func writeChart(path string, node gomponents.Node) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := chart.WriteSVG(f, node); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func goValue(v starlark.Value) (interface{}, error) {
	switch x := v.(type) {
	case starlark.String:
		return string(x), nil
	case starlark.Int:
		n, ok := x.Int64()
		if !ok {
			return nil, fmt.Errorf("integer %s out of range", x)
		}
		return n, nil
	case starlark.Float:
		return float64(x), nil
	case starlark.Bool:
		return bool(x), nil
	case starlark.NoneType:
		return nil, nil
	}
	return nil, fmt.Errorf("unsupported value type %s", v.Type())
}
