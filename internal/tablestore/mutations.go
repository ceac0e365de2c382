package tablestore

import (
	"context"
	"fmt"

	"github.com/sheetbridge/sheetbridge/internal/document"
)

// runWithTable resolves the table and runs fn against it. Every document
// interaction of the store goes through here: failures are logged and
// returned wrapped with op.
func (s *Store) runWithTable(ctx context.Context, op string, fn func(table *document.Table) error) error {
	err := ctx.Err()
	if err == nil {
		var table *document.Table
		table, err = s.book.Table(s.params.TableName)
		if err == nil {
			err = fn(table)
		}
	}
	if err != nil {
		s.logger.Error("table operation failed", "op", op, "error", err)
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return nil
}

func (s *Store) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return ErrNotInitialized
	}
	return nil
}

// writableColumns is the number of leading columns that are both in the
// column list and inside the table.
func (s *Store) writableColumns() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return min(len(s.columns), s.width)
}

// fit pads or truncates values to the table's current width.
func (s *Store) fit(values []document.Value) []document.Value {
	s.mu.RLock()
	width := s.width
	s.mu.RUnlock()

	out := make([]document.Value, width)
	for i := range out {
		if i < len(values) {
			out[i] = values[i]
		} else {
			out[i] = ""
		}
	}
	return out
}

// overlay writes values over the leading cells of row, leaving the table
// columns past the column list untouched. The result has the table's width.
func (s *Store) overlay(row, values []document.Value) []document.Value {
	out := s.fit(row)
	for i := 0; i < len(values) && i < len(out); i++ {
		out[i] = values[i]
	}
	return out
}

// shiftRows moves every cached row at or after from by delta. Caller holds mu.
func (s *Store) shiftRows(from, delta int) {
	next := make(map[int]*RowNode, len(s.rows))
	for idx, n := range s.rows {
		if idx >= from {
			n.Index = idx + delta
		}
		next[n.Index] = n
	}
	s.rows = next
}

// AddRow appends a row to the table.
func (s *Store) AddRow(ctx context.Context, data RowData) (RowNode, error) {
	return s.InsertRow(ctx, -1, data)
}

// InsertRow writes data as a new row at index (-1 appends) and then caches
// it, moving later cached rows down by one.
func (s *Store) InsertRow(ctx context.Context, index int, data RowData) (RowNode, error) {
	if err := s.ready(); err != nil {
		return RowNode{}, err
	}
	values, err := s.rowValues(data)
	if err != nil {
		s.logger.Error("invalid row", "error", err)
		return RowNode{}, err
	}

	var node RowNode
	s.opMu.Lock()
	defer s.opMu.Unlock()
	err = s.runWithTable(ctx, "insert row", func(table *document.Table) error {
		written := s.fit(values)
		added, err := table.AddRow(ctx, index, written)
		if err != nil {
			return err
		}

		s.mu.Lock()
		s.shiftRows(added, 1)
		n := &RowNode{Index: added, Data: s.rowData(written)}
		s.rows[added] = n
		node = n.clone()
		s.mu.Unlock()
		return nil
	})
	if err != nil {
		return RowNode{}, err
	}

	s.logger.Debug("row inserted", "index", node.Index)
	s.notify(Change{Kind: Inserted, Index: node.Index, Row: node.clone(), Source: document.SourceLocal})
	return node, nil
}

// DeleteRow removes the row at index from the table and then from the
// cache, moving later cached rows up by one.
func (s *Store) DeleteRow(ctx context.Context, index int) error {
	if err := s.ready(); err != nil {
		return err
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()
	err := s.runWithTable(ctx, "delete row", func(table *document.Table) error {
		if err := table.DeleteRows(ctx, index); err != nil {
			return err
		}

		s.mu.Lock()
		delete(s.rows, index)
		s.shiftRows(index+1, -1)
		s.mu.Unlock()
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug("row deleted", "index", index)
	s.notify(Change{Kind: Deleted, Index: index, Source: document.SourceLocal})
	return nil
}

// UpdateRow replaces the row at index. The row must be cached.
func (s *Store) UpdateRow(ctx context.Context, index int, data RowData) (RowNode, error) {
	if err := s.ready(); err != nil {
		return RowNode{}, err
	}
	values, err := s.rowValues(data)
	if err != nil {
		s.logger.Error("invalid row", "error", err)
		return RowNode{}, err
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()
	if _, ok := s.Row(index); !ok {
		s.logger.Error("cannot update missing row", "index", index)
		return RowNode{}, fmt.Errorf("row %d: %w", index, ErrRowNotFound)
	}

	var node RowNode
	err = s.runWithTable(ctx, "update row", func(table *document.Table) error {
		current, err := table.RowAt(index)
		if err != nil {
			return err
		}
		merged := s.overlay(current.Values, values)
		if err := table.SetRow(ctx, index, merged); err != nil {
			return err
		}

		s.mu.Lock()
		n := &RowNode{Index: index, Data: s.rowData(merged)}
		s.rows[index] = n
		node = n.clone()
		s.mu.Unlock()
		return nil
	})
	if err != nil {
		return RowNode{}, err
	}

	s.logger.Debug("row updated", "index", index)
	s.notify(Change{Kind: Updated, Index: index, Row: node.clone(), Source: document.SourceLocal})
	return node, nil
}

// UpdateRowValue writes one cell of a cached row and patches the cache.
func (s *Store) UpdateRowValue(ctx context.Context, rowIndex, columnIndex int, value any) (RowNode, error) {
	if err := s.ready(); err != nil {
		return RowNode{}, err
	}
	v, err := document.Normalize(value)
	if err != nil {
		s.logger.Error("invalid cell value", "error", err)
		return RowNode{}, err
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()
	// A table narrower than the column list has no cell for the trailing keys.
	if limit := s.writableColumns(); columnIndex < 0 || columnIndex >= limit {
		s.logger.Error("cannot update cell", "column", columnIndex, "error", ErrColumnOutOfRange)
		return RowNode{}, fmt.Errorf("column %d of %d: %w", columnIndex, limit, ErrColumnOutOfRange)
	}
	key := s.columns[columnIndex].Key
	if _, ok := s.Row(rowIndex); !ok {
		s.logger.Error("cannot update cell of missing row", "index", rowIndex)
		return RowNode{}, fmt.Errorf("row %d: %w", rowIndex, ErrRowNotFound)
	}

	var node RowNode
	err = s.runWithTable(ctx, "update cell", func(table *document.Table) error {
		sheetName, err := table.SheetName()
		if err != nil {
			return err
		}
		sheet, err := s.book.Sheet(sheetName)
		if err != nil {
			return err
		}
		ref := s.Origin().ToSheet(rowIndex, columnIndex)
		if err := sheet.SetRange(ctx, ref, [][]document.Value{{v}}); err != nil {
			return err
		}

		s.mu.Lock()
		n := s.rows[rowIndex]
		n.Data[key] = v
		node = n.clone()
		s.mu.Unlock()
		return nil
	})
	if err != nil {
		return RowNode{}, err
	}

	s.logger.Debug("cell updated", "index", rowIndex, "key", key)
	s.notify(Change{Kind: Patched, Index: rowIndex, Key: key, Row: node.clone(), Source: document.SourceLocal})
	return node, nil
}

// Reload rebuilds the cache from the document.
func (s *Store) Reload(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.loadRows(ctx, document.SourceLocal)
}
