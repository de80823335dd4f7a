// Package csvstore reads and writes the pipeline's CSV artifacts. Every reader
// validates the header against the expected columns before touching any rows,
// so a hand-edited or truncated file fails with a *domain.SchemaError that
// names the missing column instead of failing deep inside aggregation.
package csvstore

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/air-quality-etl/internal/domain"
)

// table is a parsed CSV file with column positions keyed by header name.
type table struct {
	path   string
	colIdx map[string]int
	rows   [][]string
}

func readTable(path string, required ...string) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return parseTable(f, path, required...)
}

func parseTable(r io.Reader, path string, required ...string) (*table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	all, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv %s: %w", path, err)
	}
	if len(all) == 0 {
		return nil, &domain.SchemaError{Path: path, Column: required[0]}
	}

	t := &table{path: path, colIdx: make(map[string]int, len(all[0])), rows: all[1:]}
	for i, h := range all[0] {
		t.colIdx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, col := range required {
		if _, ok := t.colIdx[col]; !ok {
			return nil, &domain.SchemaError{Path: path, Column: col}
		}
	}
	return t, nil
}

// get returns the trimmed cell for col, or "" when the row is short.
func (t *table) get(row []string, col string) string {
	i, ok := t.colIdx[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// float parses a numeric cell. Empty cells are missing values (NaN).
func (t *table) float(row []string, line int, col string) (float64, error) {
	s := t.get(row, col)
	if s == "" {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &domain.ParseError{Path: t.path, Line: line, Column: col, Value: s, Err: err}
	}
	return v, nil
}

func (t *table) time(row []string, line int, col string) (time.Time, error) {
	s := t.get(row, col)
	ts, err := ParseTime(s)
	if err != nil {
		return time.Time{}, &domain.ParseError{Path: t.path, Line: line, Column: col, Value: s, Err: err}
	}
	return ts, nil
}

var timeLayouts = []string{
	domain.TimestampLayout,
	domain.DateLayout,
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// ParseTime accepts the artifact timestamp layout, a bare date, or RFC 3339.
// Zone-less values are interpreted in local time.
func ParseTime(s string) (time.Time, error) {
	var firstErr error
	for _, layout := range timeLayouts {
		ts, err := time.ParseInLocation(layout, s, time.Local)
		if err == nil {
			return ts, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// formatFloat writes missing values as empty cells.
func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// writeTable writes header and rows to path, creating parent directories.
func writeTable(path string, header []string, rows [][]string) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()

	if err := encodeTable(f, header, rows); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func encodeTable(out io.Writer, header []string, rows [][]string) error {
	w := csv.NewWriter(out)
	if err := w.Write(header); err != nil {
		return err
	}
	return w.WriteAll(rows)
}
