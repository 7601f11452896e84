// Package dataset reads and writes question sets stored as CSV.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// Row maps a column name to the cell value for one record.
type Row map[string]string

// LoadCSV reads a CSV file whose first record is the header.
func LoadCSV(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csv: open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	rows, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("csv: %s: %w", path, err)
	}
	return rows, nil
}

// ReadCSV parses CSV from r. Header names are trimmed and lower-cased so
// "ID" and " id" both address the id column.
func ReadCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty input (no header row)")
	}

	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = strings.ToLower(strings.TrimSpace(h))
	}

	rows := make([]Row, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(Row, len(headers))
		for j, h := range headers {
			row[h] = record[j]
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Slice returns rows[start-1:end] for a 1-based inclusive range, clamping end
// to the available rows.
func Slice[T any](rows []T, start, end int) ([]T, error) {
	if start < 1 {
		return nil, fmt.Errorf("range start must be >= 1, got %d", start)
	}
	if end < start {
		return nil, fmt.Errorf("range end (%d) must be >= start (%d)", end, start)
	}
	if start > len(rows) {
		return []T{}, nil
	}
	end = min(end, len(rows))
	return rows[start-1 : end], nil
}
