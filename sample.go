package mallard

import (
	"context"
	_ "embed"
	"encoding/csv"
	"strconv"
	"strings"
)

//go:embed data/mtcars.csv
var mtcarsCSV string

// SampleDataName is the engine table SampleData loads into.
const SampleDataName = "mtcars"

// SampleData loads the bundled mtcars dataset (32 cars, 11 numeric
// attributes plus the model name) into the engine and returns a Frame over
// it. Handy for walkthroughs that need data without any external source.
func (s *Session) SampleData(ctx context.Context) (*Frame, error) {
	columns, rows, err := parseSampleCSV(mtcarsCSV)
	if err != nil {
		return nil, ErrData(err, "parse bundled sample data")
	}
	f, err := s.CopyTo(ctx, SampleDataName, columns, rows)
	if err != nil {
		return nil, err
	}
	s.registerDataset(ctx, SampleDataName, "embedded", "csv", int64(len(rows)))
	return f, nil
}

// parseSampleCSV reads the embedded CSV into typed rows: values that parse
// as numbers become float64, the rest stay strings.
func parseSampleCSV(raw string) ([]string, [][]interface{}, error) {
	records, err := csv.NewReader(strings.NewReader(raw)).ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) < 2 {
		return nil, nil, ErrValidation("sample data has no rows")
	}

	columns := records[0]
	rows := make([][]interface{}, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make([]interface{}, len(rec))
		for i, cell := range rec {
			if v, err := strconv.ParseFloat(cell, 64); err == nil {
				row[i] = v
			} else {
				row[i] = cell
			}
		}
		rows = append(rows, row)
	}
	return columns, rows, nil
}
