package mallard

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Table is a materialized, in-memory result: column names plus row values.
// Once collected it is independent of the session that produced it.
type Table struct {
	cols []string
	rows [][]interface{}
}

// NewTable builds a Table from column names and rows. Rows shorter than the
// column list are padded with nils.
func NewTable(columns []string, rows [][]interface{}) *Table {
	for i, row := range rows {
		for len(row) < len(columns) {
			row = append(row, nil)
		}
		rows[i] = row
	}
	return &Table{cols: columns, rows: rows}
}

// Columns returns the column names in result order.
func (t *Table) Columns() []string { return t.cols }

// NumRows returns the number of rows.
func (t *Table) NumRows() int { return len(t.rows) }

// Rows returns the raw row values.
func (t *Table) Rows() [][]interface{} { return t.rows }

// Value returns the value at (row, column), or nil when out of range.
func (t *Table) Value(row int, column string) interface{} {
	idx, err := t.columnIndex(column)
	if err != nil || row < 0 || row >= len(t.rows) {
		return nil
	}
	return t.rows[row][idx]
}

// Float64s returns a column as float64 values. Integer, boolean, and string
// representations are converted; results fetched from a remote agent arrive
// as strings, so numeric strings parse here.
func (t *Table) Float64s(column string) ([]float64, error) {
	idx, err := t.columnIndex(column)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(t.rows))
	for i, row := range t.rows {
		v, err := toFloat64(row[idx])
		if err != nil {
			return nil, ErrData(err, "column %q row %d is not numeric", column, i)
		}
		out[i] = v
	}
	return out, nil
}

// Strings returns a column rendered as strings. Nil values become "".
func (t *Table) Strings(column string) ([]string, error) {
	idx, err := t.columnIndex(column)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(t.rows))
	for i, row := range t.rows {
		out[i] = toString(row[idx])
	}
	return out, nil
}

// String renders the table as aligned text, useful in walkthrough output.
func (t *Table) String() string {
	widths := make([]int, len(t.cols))
	for i, c := range t.cols {
		widths[i] = len(c)
	}
	rendered := make([][]string, len(t.rows))
	for r, row := range t.rows {
		cells := make([]string, len(t.cols))
		for i := range t.cols {
			cells[i] = toString(row[i])
			if len(cells[i]) > widths[i] {
				widths[i] = len(cells[i])
			}
		}
		rendered[r] = cells
	}

	var b strings.Builder
	for i, c := range t.cols {
		if i > 0 {
			b.WriteString("  ")
		}
		fmt.Fprintf(&b, "%-*s", widths[i], c)
	}
	b.WriteByte('\n')
	for _, cells := range rendered {
		for i, cell := range cells {
			if i > 0 {
				b.WriteString("  ")
			}
			fmt.Fprintf(&b, "%-*s", widths[i], cell)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func (t *Table) columnIndex(name string) (int, error) {
	for i, c := range t.cols {
		if c == name {
			return i, nil
		}
	}
	return 0, ErrValidation("no column %q in table (columns: %s)", name, strings.Join(t.cols, ", "))
}

func toFloat64(v interface{}) (float64, error) {
	switch x := v.(type) {
	case nil:
		return 0, fmt.Errorf("null value")
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int8:
		return float64(x), nil
	case int16:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint8:
		return float64(x), nil
	case uint16:
		return float64(x), nil
	case uint32:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case []byte:
		return strconv.ParseFloat(strings.TrimSpace(string(x)), 64)
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

func toString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", x)
	}
}
