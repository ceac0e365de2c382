package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sheetbridge/sheetbridge/internal/config"
	"github.com/sheetbridge/sheetbridge/internal/document"
	"github.com/sheetbridge/sheetbridge/internal/tablestore"
)

// parseAssignments turns key=value arguments into row data. Values are
// parsed with document.ParseValue, so "30" is a number and "true" a boolean.
func parseAssignments(args []string) (tablestore.RowData, error) {
	data := make(tablestore.RowData, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		data[key] = document.ParseValue(value)
	}
	return data, nil
}

// parseIndex parses a zero-based row or column index.
func parseIndex(s, what string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s index %q", what, s)
	}
	return n, nil
}

// resolveColumn finds a column by key, label (case-insensitive) or index.
func resolveColumn(columns []tablestore.ColumnDef, s string) (int, error) {
	for i, c := range columns {
		if c.Key == s {
			return i, nil
		}
	}
	for i, c := range columns {
		if strings.EqualFold(c.Label, s) {
			return i, nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 && n < len(columns) {
		return n, nil
	}
	return 0, fmt.Errorf("unknown column %q", s)
}

// parseColumns reads "Label:key,Label:key". A missing key is derived from
// the label.
func parseColumns(s string) ([]config.ColumnConfig, error) {
	var cols []config.ColumnConfig
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		label, key, ok := strings.Cut(part, ":")
		label = strings.TrimSpace(label)
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			key = strings.ToLower(strings.ReplaceAll(label, " ", "_"))
		}
		if label == "" {
			return nil, fmt.Errorf("column %q has no label", part)
		}
		cols = append(cols, config.ColumnConfig{Label: label, Key: key})
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("no columns in %q", s)
	}
	return cols, nil
}
