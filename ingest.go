package mallard

import (
	"context"
	"fmt"
	"strings"

	"github.com/mallard-db/mallard/internal/metastore"
	"github.com/mallard-db/mallard/internal/storage"
)

// CopyTo materializes in-memory rows into an engine table and returns a
// Frame over it. Column types are inferred from the first non-nil value in
// each column; columns with no values default to VARCHAR. An existing table
// of the same name is replaced.
func (s *Session) CopyTo(ctx context.Context, name string, columns []string, rows [][]interface{}) (*Frame, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := validTableName(name); err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, ErrValidation("CopyTo needs at least one column")
	}
	for _, row := range rows {
		if len(row) != len(columns) {
			return nil, ErrValidation("row has %d values, expected %d", len(row), len(columns))
		}
	}

	colDefs := make([]string, len(columns))
	for i, col := range columns {
		colDefs[i] = quoteIdent(col) + " " + inferColumnType(rows, i)
	}
	create := fmt.Sprintf("CREATE OR REPLACE TABLE %s (%s)", quoteIdent(name), strings.Join(colDefs, ", "))
	if err := s.execStatement(ctx, create); err != nil {
		return nil, err
	}

	// Inline literal inserts, batched to keep statements bounded.
	const batchSize = 500
	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		tuples := make([]string, 0, end-start)
		for _, row := range rows[start:end] {
			vals := make([]string, len(row))
			for i, v := range row {
				vals[i] = sqlValue(v)
			}
			tuples = append(tuples, "("+strings.Join(vals, ", ")+")")
		}
		insert := fmt.Sprintf("INSERT INTO %s VALUES %s", quoteIdent(name), strings.Join(tuples, ", "))
		if err := s.execStatement(ctx, insert); err != nil {
			return nil, err
		}
	}

	s.registerDataset(ctx, name, "memory", "table", int64(len(rows)))
	return s.Table(name)
}

// ReadCSV loads a CSV source into an engine table and returns a Frame over
// it. The source may be a local path, an http(s) URL, or an s3:// URI
// (resolved through the configured presigner).
func (s *Session) ReadCSV(ctx context.Context, name, source string) (*Frame, error) {
	return s.readExternal(ctx, name, source, "csv")
}

// ReadParquet loads a Parquet source into an engine table and returns a
// Frame over it. Sources resolve like ReadCSV.
func (s *Session) ReadParquet(ctx context.Context, name, source string) (*Frame, error) {
	return s.readExternal(ctx, name, source, "parquet")
}

func (s *Session) readExternal(ctx context.Context, name, source, format string) (*Frame, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := validTableName(name); err != nil {
		return nil, err
	}

	resolved := source
	if strings.HasPrefix(source, "s3://") {
		if s.presigner == nil {
			return nil, ErrValidation("s3:// source %q requires S3 configuration", source)
		}
		url, err := s.presigner.PresignGetObject(ctx, source, storage.DefaultPresignExpiry)
		if err != nil {
			return nil, ErrData(err, "presign %q", source)
		}
		resolved = url
	}

	reader := "read_csv_auto"
	if format == "parquet" {
		reader = "read_parquet"
	}
	create := fmt.Sprintf("CREATE OR REPLACE TABLE %s AS SELECT * FROM %s(%s)",
		quoteIdent(name), reader, quoteLiteral(resolved))
	if err := s.execStatement(ctx, create); err != nil {
		return nil, ErrData(err, "load %s source %q", format, source)
	}

	f, err := s.Table(name)
	if err != nil {
		return nil, err
	}
	n, err := f.Count(ctx)
	if err != nil {
		return nil, err
	}
	s.registerDataset(ctx, name, source, format, n)
	return f, nil
}

// Tables lists the user tables currently in the engine.
func (s *Session) Tables(ctx context.Context) ([]string, error) {
	tbl, err := s.collect(ctx,
		"SELECT table_name FROM information_schema.tables WHERE table_schema = 'main' ORDER BY table_name")
	if err != nil {
		return nil, err
	}
	return tbl.Strings("table_name")
}

// Datasets lists the datasets registered in the session metastore.
func (s *Session) Datasets(ctx context.Context) ([]metastore.Dataset, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.datasets.List(ctx)
}

// registerDataset records an ingested table in the metastore. Registration
// is advisory; failures are logged, never propagated.
func (s *Session) registerDataset(ctx context.Context, name, source, format string, rowCount int64) {
	_, err := s.datasets.Upsert(ctx, &metastore.Dataset{
		Name:     name,
		Source:   source,
		Format:   format,
		RowCount: rowCount,
	})
	if err != nil {
		s.logger.Warn("dataset registration failed", "dataset", name, "error", err)
	}
}

func inferColumnType(rows [][]interface{}, col int) string {
	for _, row := range rows {
		if row[col] != nil {
			return sqlType(row[col])
		}
	}
	return "VARCHAR"
}
