// Package migrate moves rows between JSONL files and a table's row cache.
//
// Each JSONL line is one object keyed by column key:
//
//	{"name": "ann", "age": 30}
package migrate

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sheetbridge/sheetbridge/internal/document"
	"github.com/sheetbridge/sheetbridge/internal/tablestore"
)

// maxLineSize bounds a single JSONL line.
const maxLineSize = 10 * 1024 * 1024

// RowWriter receives imported rows.
type RowWriter interface {
	Keys() []string
	AddRow(ctx context.Context, data tablestore.RowData) (tablestore.RowNode, error)
}

// RowReader supplies exported rows.
type RowReader interface {
	Rows() []tablestore.RowNode
}

// ImportOptions contains configuration for an import
type ImportOptions struct {
	DryRun bool // Validate without writing rows
}

// ImportResult contains statistics about an import
type ImportResult struct {
	Lines        int
	RowsImported int
	Skipped      int
	UnknownKeys  []string
	Errors       []string
}

// ReadJSONL parses path into rows. Lines that are not JSON objects or hold
// values a cell cannot store are reported in errs with their line number and
// left out of rows. Blank lines are ignored.
func ReadJSONL(path string) (rows []tablestore.RowData, lines int, errs []string, err error) {
	// #nosec G304 - controlled path from CLI
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("failed to open JSONL file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines++

		row, err := parseLine(line)
		if err != nil {
			errs = append(errs, fmt.Sprintf("line %d: %v", lineNum, err))
			continue
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, lines, errs, fmt.Errorf("failed to read JSONL file: %w", err)
	}
	return rows, lines, errs, nil
}

func parseLine(line string) (tablestore.RowData, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return nil, fmt.Errorf("invalid JSON object: %w", err)
	}
	row := make(tablestore.RowData, len(raw))
	for k, v := range raw {
		n, err := document.Normalize(v)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		row[k] = n
	}
	return row, nil
}

// ImportJSONL appends every valid row of path to the store. Invalid lines and
// rows the store rejects are recorded in the result and skipped.
func ImportJSONL(ctx context.Context, store RowWriter, path string, opts ImportOptions) (*ImportResult, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("input file does not exist: %w", err)
	}

	rows, lines, errs, err := ReadJSONL(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JSONL: %w", err)
	}
	result := &ImportResult{Lines: lines, Skipped: len(errs), Errors: errs}

	known := make(map[string]bool)
	for _, k := range store.Keys() {
		known[k] = true
	}
	unknown := make(map[string]bool)

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		for k := range row {
			if !known[k] && !unknown[k] {
				unknown[k] = true
				result.UnknownKeys = append(result.UnknownKeys, k)
			}
		}
		if opts.DryRun {
			result.RowsImported++
			continue
		}
		if _, err := store.AddRow(ctx, row); err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("failed to add row: %v", err))
			continue
		}
		result.RowsImported++
	}

	return result, nil
}

// ExportJSONL writes every cached row to w in index order, one object per line.
func ExportJSONL(store RowReader, w io.Writer) (int, error) {
	encoder := json.NewEncoder(w)
	rows := store.Rows()
	for _, row := range rows {
		if err := encoder.Encode(row.Data); err != nil {
			return 0, fmt.Errorf("failed to write row %d: %w", row.Index, err)
		}
	}
	return len(rows), nil
}

// ExportFile writes the rows to path atomically via a temp file.
func ExportFile(store RowReader, path string) (int, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("failed to create output directory: %w", err)
	}

	tmpPath := path + ".tmp"
	// #nosec G304 - controlled path from CLI
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}

	w := bufio.NewWriter(file)
	n, err := ExportJSONL(store, w)
	if err == nil {
		err = w.Flush()
	}
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return 0, err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to rename temp file: %w", err)
	}
	return n, nil
}
