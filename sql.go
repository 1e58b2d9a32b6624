package mallard

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// quoteIdent double-quotes a SQL identifier, doubling embedded quotes.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteIdentList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

// quoteLiteral single-quotes a SQL string literal, doubling embedded quotes.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// sqlValue renders a Go value as a SQL literal for inline INSERT statements.
// The compute executor interface carries SQL text only, so ingestion inlines
// values rather than binding placeholders.
func sqlValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return quoteLiteral(x)
	case []byte:
		return quoteLiteral(string(x))
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case time.Time:
		return quoteLiteral(x.UTC().Format("2006-01-02 15:04:05")) + "::TIMESTAMP"
	default:
		return quoteLiteral(fmt.Sprintf("%v", x))
	}
}

// sqlType picks a DuckDB column type for a Go value.
func sqlType(v interface{}) string {
	switch v.(type) {
	case float64, float32:
		return "DOUBLE"
	case int, int32, int64:
		return "BIGINT"
	case bool:
		return "BOOLEAN"
	case time.Time:
		return "TIMESTAMP"
	default:
		return "VARCHAR"
	}
}

// validTableName checks that a user-supplied table name is a bare identifier.
func validTableName(name string) error {
	if name == "" {
		return ErrValidation("empty table name")
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return ErrValidation("invalid table name %q: cannot start with a digit", name)
			}
		default:
			return ErrValidation("invalid table name %q: character %q not allowed", name, r)
		}
	}
	return nil
}

// randomName generates a collision-resistant name with the given prefix.
func randomName(prefix string) string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return prefix + "_fallback"
	}
	return prefix + "_" + hex.EncodeToString(b)
}
