package mallard

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// Frame is a lazy, immutable reference to a dataset living in the engine.
// Every transformation returns a new Frame wrapping the previous plan as a
// subquery; nothing executes until a materializing call (Collect, Count,
// Head). Frames stay valid only as long as their session is open.
type Frame struct {
	sess  *Session
	query string
}

// SQL returns the SELECT statement this frame compiles to.
func (f *Frame) SQL() string { return f.query }

func (f *Frame) derive(query string) *Frame {
	return &Frame{sess: f.sess, query: query}
}

// sub renders the current plan as a FROM target.
func (f *Frame) sub() string {
	return "(" + f.query + ") AS t"
}

// Select keeps only the named columns, in the given order.
func (f *Frame) Select(columns ...string) *Frame {
	return f.derive(fmt.Sprintf("SELECT %s FROM %s", quoteIdentList(columns), f.sub()))
}

// Filter keeps rows matching the SQL predicate, e.g. `cyl = 4 AND mpg > 20`.
func (f *Frame) Filter(predicate string) *Frame {
	return f.derive(fmt.Sprintf("SELECT * FROM %s WHERE %s", f.sub(), predicate))
}

// Mutate appends a new column computed from a SQL expression over existing
// columns, e.g. Mutate("kpl", "mpg * 0.425"). The name must not collide
// with an existing column; use Select to drop the old one first.
func (f *Frame) Mutate(name, expr string) *Frame {
	return f.derive(fmt.Sprintf("SELECT *, (%s) AS %s FROM %s", expr, quoteIdent(name), f.sub()))
}

// Arrange orders rows by the given columns. Prefix a column with "-" for
// descending order, mirroring arrange(desc(col)).
func (f *Frame) Arrange(columns ...string) *Frame {
	terms := make([]string, len(columns))
	for i, c := range columns {
		if stripped, ok := strings.CutPrefix(c, "-"); ok {
			terms[i] = quoteIdent(stripped) + " DESC"
		} else {
			terms[i] = quoteIdent(c)
		}
	}
	return f.derive(fmt.Sprintf("SELECT * FROM %s ORDER BY %s", f.sub(), strings.Join(terms, ", ")))
}

// Limit keeps at most n rows.
func (f *Frame) Limit(n int) *Frame {
	return f.derive(fmt.Sprintf("SELECT * FROM %s LIMIT %d", f.sub(), n))
}

// Distinct drops duplicate rows, over the named columns or all columns when
// none are given.
func (f *Frame) Distinct(columns ...string) *Frame {
	if len(columns) == 0 {
		return f.derive(fmt.Sprintf("SELECT DISTINCT * FROM %s", f.sub()))
	}
	return f.derive(fmt.Sprintf("SELECT DISTINCT %s FROM %s", quoteIdentList(columns), f.sub()))
}

// Sample keeps a Bernoulli sample of approximately the given fraction of
// rows. A non-zero seed makes the sample repeatable.
func (f *Frame) Sample(fraction float64, seed int64) *Frame {
	pct := fraction * 100
	if seed != 0 {
		return f.derive(fmt.Sprintf("SELECT * FROM %s USING SAMPLE %g PERCENT (bernoulli, %d)", f.sub(), pct, seed))
	}
	return f.derive(fmt.Sprintf("SELECT * FROM %s USING SAMPLE %g PERCENT (bernoulli)", f.sub(), pct))
}

// Join types accepted by Frame.Join.
const (
	JoinInner = "INNER"
	JoinLeft  = "LEFT"
	JoinRight = "RIGHT"
	JoinFull  = "FULL"
)

// Join combines two frames on shared column names. how is one of the Join*
// constants; an empty how means inner join.
func (f *Frame) Join(other *Frame, on []string, how string) *Frame {
	if how == "" {
		how = JoinInner
	}
	return f.derive(fmt.Sprintf("SELECT * FROM (%s) AS l %s JOIN (%s) AS r USING (%s)",
		f.query, strings.ToUpper(how), other.query, quoteIdentList(on)))
}

// GroupBy starts a grouped aggregation; follow with Agg.
func (f *Frame) GroupBy(columns ...string) *GroupedFrame {
	return &GroupedFrame{f: f, keys: columns}
}

// GroupedFrame is an intermediate grouping of a Frame, consumed by Agg.
type GroupedFrame struct {
	f    *Frame
	keys []string
}

// Aggregation is one named aggregate expression in an Agg call.
type Aggregation struct {
	Name string
	Expr string
}

// Count counts rows per group, named "n".
func Count() Aggregation { return Aggregation{Name: "n", Expr: "COUNT(*)"} }

// Mean averages a column per group.
func Mean(column string) Aggregation {
	return Aggregation{Name: "mean_" + column, Expr: "AVG(" + quoteIdent(column) + ")"}
}

// Sum totals a column per group.
func Sum(column string) Aggregation {
	return Aggregation{Name: "sum_" + column, Expr: "SUM(" + quoteIdent(column) + ")"}
}

// Min takes the minimum of a column per group.
func Min(column string) Aggregation {
	return Aggregation{Name: "min_" + column, Expr: "MIN(" + quoteIdent(column) + ")"}
}

// Max takes the maximum of a column per group.
func Max(column string) Aggregation {
	return Aggregation{Name: "max_" + column, Expr: "MAX(" + quoteIdent(column) + ")"}
}

// StdDev takes the sample standard deviation of a column per group.
func StdDev(column string) Aggregation {
	return Aggregation{Name: "sd_" + column, Expr: "STDDEV_SAMP(" + quoteIdent(column) + ")"}
}

// Agg computes the aggregations per group and returns the resulting Frame
// with one row per group.
func (g *GroupedFrame) Agg(aggs ...Aggregation) *Frame {
	selectList := make([]string, 0, len(g.keys)+len(aggs))
	for _, k := range g.keys {
		selectList = append(selectList, quoteIdent(k))
	}
	for _, a := range aggs {
		selectList = append(selectList, fmt.Sprintf("%s AS %s", a.Expr, quoteIdent(a.Name)))
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(selectList, ", "), g.f.sub())
	if len(g.keys) > 0 {
		query += " GROUP BY " + quoteIdentList(g.keys)
	}
	return g.f.derive(query)
}

// Collect executes the plan and pulls the full result into local memory.
func (f *Frame) Collect(ctx context.Context) (*Table, error) {
	return f.sess.collect(ctx, f.query)
}

// Count executes the plan and returns its row count.
func (f *Frame) Count(ctx context.Context) (int64, error) {
	tbl, err := f.sess.collect(ctx, fmt.Sprintf("SELECT COUNT(*) AS n FROM %s", f.sub()))
	if err != nil {
		return 0, err
	}
	ns, err := tbl.Float64s("n")
	if err != nil || len(ns) == 0 {
		return 0, ErrData(err, "count returned no rows")
	}
	return int64(ns[0]), nil
}

// Head collects at most n rows.
func (f *Frame) Head(ctx context.Context, n int) (*Table, error) {
	return f.Limit(n).Collect(ctx)
}

// RandomSplit partitions the frame's current rows into len(weights) disjoint
// frames with sizes approximately proportional to the weights. The split is
// eager: rows are materialized once into an engine-side table tagged with a
// uniform random key, and each returned frame filters a key range. A
// non-zero seed seeds the engine's generator before tagging.
func (f *Frame) RandomSplit(ctx context.Context, weights []float64, seed int64) ([]*Frame, error) {
	if len(weights) < 2 {
		return nil, ErrValidation("RandomSplit needs at least two weights, got %d", len(weights))
	}
	total := 0.0
	for _, w := range weights {
		if w <= 0 {
			return nil, ErrValidation("RandomSplit weights must be positive, got %v", weights)
		}
		total += w
	}

	if seed != 0 {
		// Best effort: maps the seed into setseed's [-1, 1) domain.
		frac := math.Mod(float64(seed)/1e6, 1.0)
		if err := f.sess.execStatement(ctx, fmt.Sprintf("SELECT setseed(%g)", frac)); err != nil {
			return nil, err
		}
	}

	name := randomName("_mallard_split")
	create := fmt.Sprintf("CREATE TABLE %s AS SELECT *, random() AS _split_key FROM %s",
		quoteIdent(name), f.sub())
	if err := f.sess.execStatement(ctx, create); err != nil {
		return nil, ErrData(err, "materialize split table")
	}

	frames := make([]*Frame, len(weights))
	lo := 0.0
	for i, w := range weights {
		hi := lo + w/total
		var cond string
		if i == len(weights)-1 {
			cond = fmt.Sprintf("_split_key >= %g", lo)
		} else {
			cond = fmt.Sprintf("_split_key >= %g AND _split_key < %g", lo, hi)
		}
		frames[i] = &Frame{
			sess: f.sess,
			query: fmt.Sprintf("SELECT * EXCLUDE (_split_key) FROM %s WHERE %s",
				quoteIdent(name), cond),
		}
		lo = hi
	}
	return frames, nil
}
