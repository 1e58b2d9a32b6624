package script

import (
	"fmt"
	"sort"

	"go.starlark.net/starlark"

	mallard "github.com/mallard-db/mallard"
)

// frameValue wraps a lazy Frame for scripts. Transformation methods return
// new frames; collect, head, and count materialize through the runtime's
// context.
type frameValue struct {
	rt    *Runtime
	frame *mallard.Frame
}

var _ starlark.HasAttrs = (*frameValue)(nil)

func (v *frameValue) String() string        { return fmt.Sprintf("frame(%s)", v.frame.SQL()) }
func (v *frameValue) Type() string          { return "frame" }
func (v *frameValue) Freeze()               {}
func (v *frameValue) Truth() starlark.Bool  { return starlark.True }
func (v *frameValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: frame") }

func (v *frameValue) AttrNames() []string {
	names := make([]string, 0, len(frameMethods))
	for name := range frameMethods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (v *frameValue) Attr(name string) (starlark.Value, error) {
	method, ok := frameMethods[name]
	if !ok {
		return nil, nil
	}
	return starlark.NewBuiltin(name, func(t *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		return method(v, args, kwargs)
	}), nil
}

type frameMethod func(v *frameValue, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error)

var frameMethods = map[string]frameMethod{
	"select": func(v *frameValue, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		cols, err := stringArgs("select", args, kwargs)
		if err != nil {
			return nil, err
		}
		return v.derive(v.frame.Select(cols...)), nil
	},
	"filter": func(v *frameValue, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var expr string
		if err := starlark.UnpackPositionalArgs("filter", args, kwargs, 1, &expr); err != nil {
			return nil, err
		}
		return v.derive(v.frame.Filter(expr)), nil
	},
	"mutate": func(v *frameValue, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var name, expr string
		if err := starlark.UnpackPositionalArgs("mutate", args, kwargs, 2, &name, &expr); err != nil {
			return nil, err
		}
		return v.derive(v.frame.Mutate(name, expr)), nil
	},
	"arrange": func(v *frameValue, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		cols, err := stringArgs("arrange", args, kwargs)
		if err != nil {
			return nil, err
		}
		return v.derive(v.frame.Arrange(cols...)), nil
	},
	"limit": func(v *frameValue, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var n int
		if err := starlark.UnpackPositionalArgs("limit", args, kwargs, 1, &n); err != nil {
			return nil, err
		}
		return v.derive(v.frame.Limit(n)), nil
	},
	"distinct": func(v *frameValue, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		cols, err := stringArgs("distinct", args, kwargs)
		if err != nil {
			return nil, err
		}
		return v.derive(v.frame.Distinct(cols...)), nil
	},
	"sample": func(v *frameValue, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var fraction starlark.Float
		var seed int
		if err := starlark.UnpackArgs("sample", args, kwargs, "fraction", &fraction, "seed?", &seed); err != nil {
			return nil, err
		}
		return v.derive(v.frame.Sample(float64(fraction), int64(seed))), nil
	},
	"sql": func(v *frameValue, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := starlark.UnpackPositionalArgs("sql", args, kwargs, 0); err != nil {
			return nil, err
		}
		return starlark.String(v.frame.SQL()), nil
	},
	"count": func(v *frameValue, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := starlark.UnpackPositionalArgs("count", args, kwargs, 0); err != nil {
			return nil, err
		}
		n, err := v.frame.Count(v.rt.ctx)
		if err != nil {
			return nil, err
		}
		return starlark.MakeInt64(n), nil
	},
	"head": func(v *frameValue, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		n := 10
		if err := starlark.UnpackPositionalArgs("head", args, kwargs, 0, &n); err != nil {
			return nil, err
		}
		tbl, err := v.frame.Head(v.rt.ctx, n)
		if err != nil {
			return nil, err
		}
		return &tableValue{table: tbl}, nil
	},
	"collect": func(v *frameValue, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := starlark.UnpackPositionalArgs("collect", args, kwargs, 0); err != nil {
			return nil, err
		}
		tbl, err := v.frame.Collect(v.rt.ctx)
		if err != nil {
			return nil, err
		}
		return &tableValue{table: tbl}, nil
	},
	"random_split": func(v *frameValue, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var weightsList *starlark.List
		var seed int
		if err := starlark.UnpackArgs("random_split", args, kwargs, "weights", &weightsList, "seed?", &seed); err != nil {
			return nil, err
		}
		weights, err := floatSlice(weightsList)
		if err != nil {
			return nil, err
		}
		parts, err := v.frame.RandomSplit(v.rt.ctx, weights, int64(seed))
		if err != nil {
			return nil, err
		}
		out := make([]starlark.Value, len(parts))
		for i, p := range parts {
			out[i] = v.derive(p)
		}
		return starlark.NewList(out), nil
	},
	"join": func(v *frameValue, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var other *frameValue
		var byList *starlark.List
		how := "inner"
		if err := starlark.UnpackArgs("join", args, kwargs, "other", &other, "by", &byList, "how?", &how); err != nil {
			return nil, err
		}
		by, err := stringSlice(byList)
		if err != nil {
			return nil, err
		}
		kind, err := joinKind(how)
		if err != nil {
			return nil, err
		}
		return v.derive(v.frame.Join(other.frame, by, kind)), nil
	},
}

func (v *frameValue) derive(f *mallard.Frame) *frameValue {
	return &frameValue{rt: v.rt, frame: f}
}

// tableValue wraps a materialized Table.
type tableValue struct {
	table *mallard.Table
}

var _ starlark.HasAttrs = (*tableValue)(nil)

func (v *tableValue) String() string        { return v.table.String() }
func (v *tableValue) Type() string          { return "table" }
func (v *tableValue) Freeze()               {}
func (v *tableValue) Truth() starlark.Bool  { return starlark.Bool(v.table.NumRows() > 0) }
func (v *tableValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: table") }

func (v *tableValue) AttrNames() []string {
	return []string{"columns", "floats", "num_rows", "strings"}
}

func (v *tableValue) Attr(name string) (starlark.Value, error) {
	switch name {
	case "columns":
		return starlark.NewBuiltin("columns", func(t *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := starlark.UnpackPositionalArgs("columns", args, kwargs, 0); err != nil {
				return nil, err
			}
			return stringList(v.table.Columns()), nil
		}), nil
	case "num_rows":
		return starlark.NewBuiltin("num_rows", func(t *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := starlark.UnpackPositionalArgs("num_rows", args, kwargs, 0); err != nil {
				return nil, err
			}
			return starlark.MakeInt(v.table.NumRows()), nil
		}), nil
	case "floats":
		return starlark.NewBuiltin("floats", func(t *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var col string
			if err := starlark.UnpackPositionalArgs("floats", args, kwargs, 1, &col); err != nil {
				return nil, err
			}
			vals, err := v.table.Float64s(col)
			if err != nil {
				return nil, err
			}
			return floatList(vals), nil
		}), nil
	case "strings":
		return starlark.NewBuiltin("strings", func(t *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var col string
			if err := starlark.UnpackPositionalArgs("strings", args, kwargs, 1, &col); err != nil {
				return nil, err
			}
			vals, err := v.table.Strings(col)
			if err != nil {
				return nil, err
			}
			return stringList(vals), nil
		}), nil
	}
	return nil, nil
}

// modelValue wraps a fitted model handle.
type modelValue struct {
	rt    *Runtime
	model *mallard.Model
}

var _ starlark.HasAttrs = (*modelValue)(nil)

func (v *modelValue) String() string        { return fmt.Sprintf("model(%s)", v.model.Name()) }
func (v *modelValue) Type() string          { return "model" }
func (v *modelValue) Freeze()               {}
func (v *modelValue) Truth() starlark.Bool  { return starlark.True }
func (v *modelValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: model") }

func (v *modelValue) AttrNames() []string {
	return []string{"formula", "kind", "name", "predict", "predict_table", "summary", "topic_words"}
}

func (v *modelValue) Attr(name string) (starlark.Value, error) {
	switch name {
	case "name":
		return starlark.String(v.model.Name()), nil
	case "kind":
		return starlark.String(v.model.Kind()), nil
	case "formula":
		return starlark.String(v.model.Formula()), nil
	case "summary":
		return starlark.NewBuiltin("summary", func(t *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := starlark.UnpackPositionalArgs("summary", args, kwargs, 0); err != nil {
				return nil, err
			}
			return starlark.String(v.model.Summary()), nil
		}), nil
	case "predict":
		return starlark.NewBuiltin("predict", func(t *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var f *frameValue
			if err := starlark.UnpackPositionalArgs("predict", args, kwargs, 1, &f); err != nil {
				return nil, err
			}
			out, err := v.model.Predict(v.rt.ctx, f.frame)
			if err != nil {
				return nil, err
			}
			return &frameValue{rt: v.rt, frame: out}, nil
		}), nil
	case "predict_table":
		return starlark.NewBuiltin("predict_table", func(t *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var f *frameValue
			if err := starlark.UnpackPositionalArgs("predict_table", args, kwargs, 1, &f); err != nil {
				return nil, err
			}
			tbl, err := v.model.PredictTable(v.rt.ctx, f.frame)
			if err != nil {
				return nil, err
			}
			return &tableValue{table: tbl}, nil
		}), nil
	case "topic_words":
		return starlark.NewBuiltin("topic_words", func(t *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var topic, n int
			if err := starlark.UnpackPositionalArgs("topic_words", args, kwargs, 2, &topic, &n); err != nil {
				return nil, err
			}
			words, err := v.model.TopicWords(topic, n)
			if err != nil {
				return nil, err
			}
			return stringList(words), nil
		}), nil
	}
	return nil, nil
}

func joinKind(how string) (string, error) {
	switch how {
	case "inner":
		return mallard.JoinInner, nil
	case "left":
		return mallard.JoinLeft, nil
	case "right":
		return mallard.JoinRight, nil
	case "full":
		return mallard.JoinFull, nil
	}
	return "", fmt.Errorf("unknown join kind %q", how)
}

func stringArgs(fn string, args starlark.Tuple, kwargs []starlark.Tuple) ([]string, error) {
	if len(kwargs) > 0 {
		return nil, fmt.Errorf("%s: unexpected keyword arguments", fn)
	}
	out := make([]string, len(args))
	for i, a := range args {
		s, ok := starlark.AsString(a)
		if !ok {
			return nil, fmt.Errorf("%s: argument %d must be a string, got %s", fn, i+1, a.Type())
		}
		out[i] = s
	}
	return out, nil
}

func stringSlice(list *starlark.List) ([]string, error) {
	out := make([]string, list.Len())
	for i := 0; i < list.Len(); i++ {
		s, ok := starlark.AsString(list.Index(i))
		if !ok {
			return nil, fmt.Errorf("element %d must be a string, got %s", i, list.Index(i).Type())
		}
		out[i] = s
	}
	return out, nil
}

func floatSlice(list *starlark.List) ([]float64, error) {
	out := make([]float64, list.Len())
	for i := 0; i < list.Len(); i++ {
		f, ok := starlark.AsFloat(list.Index(i))
		if !ok {
			return nil, fmt.Errorf("element %d must be a number, got %s", i, list.Index(i).Type())
		}
		out[i] = f
	}
	return out, nil
}

func stringList(vals []string) *starlark.List {
	out := make([]starlark.Value, len(vals))
	for i, s := range vals {
		out[i] = starlark.String(s)
	}
	return starlark.NewList(out)
}

func floatList(vals []float64) *starlark.List {
	out := make([]starlark.Value, len(vals))
	for i, f := range vals {
		out[i] = starlark.Float(f)
	}
	return starlark.NewList(out)
}
