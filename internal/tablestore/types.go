package tablestore

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"

	"github.com/sheetbridge/sheetbridge/internal/document"
)

var (
	// ErrRowNotFound is returned when a row index is not in the cache.
	ErrRowNotFound = errors.New("row not found")

	// ErrColumnOutOfRange is returned for column indexes outside the column list.
	ErrColumnOutOfRange = errors.New("column out of range")

	// ErrNotInitialized is returned by mutations before Init has completed.
	ErrNotInitialized = errors.New("store not initialized")
)

// ColumnDef describes one table column. Label is written to the header row,
// Key names the field in RowData.
type ColumnDef struct {
	Label string `json:"label" yaml:"label" mapstructure:"label"`
	Key   string `json:"key" yaml:"key" mapstructure:"key"`
}

// RowData is one row's values keyed by column key.
type RowData map[string]document.Value

// Clone returns a copy of the row data.
func (d RowData) Clone() RowData {
	if d == nil {
		return nil
	}
	return maps.Clone(d)
}

// RowNode pairs a row's position in the table with its values.
type RowNode struct {
	Index int     `json:"index"`
	Data  RowData `json:"data"`
}

func (n *RowNode) clone() RowNode {
	return RowNode{Index: n.Index, Data: n.Data.Clone()}
}

// Params configures a Store.
type Params struct {
	// TableName and SheetName locate the table in the workbook.
	TableName string
	SheetName string

	// Columns lists the table columns in order.
	Columns []ColumnDef

	// Row and Column are the zero-based position of the header row's first
	// cell when the table has to be created.
	Row    int
	Column int

	// Logger for store activity. Defaults to slog.Default().
	Logger *slog.Logger
}

// Validate checks the parameters for consistency.
func (p Params) Validate() error {
	if strings.TrimSpace(p.TableName) == "" {
		return fmt.Errorf("table name is required")
	}
	if strings.TrimSpace(p.SheetName) == "" {
		return fmt.Errorf("sheet name is required")
	}
	if len(p.Columns) == 0 {
		return fmt.Errorf("at least one column is required")
	}
	if p.Row < 0 || p.Column < 0 {
		return fmt.Errorf("table origin (%d, %d) must not be negative", p.Row, p.Column)
	}

	seen := make(map[string]bool, len(p.Columns))
	for i, c := range p.Columns {
		if strings.TrimSpace(c.Key) == "" {
			return fmt.Errorf("column %d has no key", i)
		}
		if seen[c.Key] {
			return fmt.Errorf("duplicate column key %q", c.Key)
		}
		seen[c.Key] = true
	}
	return nil
}

// ChangeKind classifies a cache change.
type ChangeKind int

const (
	// Reloaded means the whole cache was rebuilt from the document.
	Reloaded ChangeKind = iota
	// Inserted means a row was added and later rows moved down.
	Inserted
	// Updated means a row's values were replaced.
	Updated
	// Deleted means a row was removed and later rows moved up.
	Deleted
	// Patched means a single cell of a row changed.
	Patched
)

// String returns a human-readable representation of the kind.
func (k ChangeKind) String() string {
	switch k {
	case Reloaded:
		return "reloaded"
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	case Deleted:
		return "deleted"
	case Patched:
		return "patched"
	default:
		return "unknown"
	}
}

// Change describes one update of the cache.
type Change struct {
	Kind ChangeKind
	// Index is the affected row. It is -1 for Reloaded.
	Index int
	// Key is the patched column for Patched.
	Key string
	// Row is the row after the change for Inserted, Updated and Patched.
	Row RowNode
	// Source tells whether the change started in this process.
	Source document.Source
}
