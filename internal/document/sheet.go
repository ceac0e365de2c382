package document

import (
	"context"
	"fmt"
	"strings"

	"github.com/sheetbridge/sheetbridge/internal/address"
)

// Sheet is a handle to a worksheet. It stays valid across reloads as long as
// a sheet with the same name exists.
type Sheet struct {
	book *Book
	name string
}

// Name returns the sheet name.
func (s *Sheet) Name() string {
	return s.name
}

func (s *Sheet) lookup(m *model) (*sheetModel, error) {
	sm := m.sheet(s.name)
	if sm == nil {
		return nil, fmt.Errorf("sheet %q: %w", s.name, ErrNotFound)
	}
	return sm, nil
}

// Cell returns the value at ref. Empty cells read as "".
func (s *Sheet) Cell(ref address.Ref) (Value, error) {
	var v Value
	err := s.book.read(func(m *model) error {
		sm, err := s.lookup(m)
		if err != nil {
			return err
		}
		v = sm.get(ref)
		return nil
	})
	return v, err
}

// Range returns the values of rng row by row.
func (s *Sheet) Range(rng address.Range) ([][]Value, error) {
	var out [][]Value
	err := s.book.read(func(m *model) error {
		sm, err := s.lookup(m)
		if err != nil {
			return err
		}
		out = sm.grid(rng)
		return nil
	})
	return out, err
}

// SetRange writes a rectangular grid of values with its top-left cell at origin.
func (s *Sheet) SetRange(ctx context.Context, origin address.Ref, values [][]Value) error {
	grid, err := normalizeGrid(values)
	if err != nil {
		return err
	}
	if len(grid) == 0 {
		return nil
	}
	return s.book.mutate(ctx, func(m *model) error {
		sm, err := s.lookup(m)
		if err != nil {
			return err
		}
		for r, row := range grid {
			for c, v := range row {
				sm.set(origin.Offset(r, c), v)
			}
		}
		return nil
	})
}

// AddTable creates a table over rng. With hasHeaders the first row of rng is
// the header row; otherwise a header row is inserted above the data, pushing
// the data down by one row. Blank headers become "Column<n>".
func (s *Sheet) AddTable(ctx context.Context, name string, rng address.Range, hasHeaders bool) (*Table, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("table name cannot be empty")
	}

	err := s.book.mutate(ctx, func(m *model) error {
		sm, err := s.lookup(m)
		if err != nil {
			return err
		}
		if m.table(name) != nil {
			return fmt.Errorf("table %q: %w", name, ErrExists)
		}

		t := &tableModel{name: name, sheet: sm.name, rng: rng}
		if !hasHeaders {
			sm.shiftColumns(t, rng.Start.Row, 1)
			t.rng.End.Row++
		}
		if other := m.overlapsTable(sm.name, t.rng); other != nil {
			return fmt.Errorf("table %q overlaps table %q", name, other.name)
		}

		for c := 0; c < t.cols(); c++ {
			ref := t.rng.Start.Offset(0, c)
			if isEmpty(sm.get(ref)) {
				sm.set(ref, fmt.Sprintf("Column%d", c+1))
			}
		}
		m.tables = append(m.tables, t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Table{book: s.book, name: name}, nil
}

// Table returns the named table if it lives on this sheet.
func (s *Sheet) Table(name string) (*Table, error) {
	var t *Table
	err := s.book.read(func(m *model) error {
		if _, err := s.lookup(m); err != nil {
			return err
		}
		tm := m.table(name)
		if tm == nil || !sameName(tm.sheet, s.name) {
			return fmt.Errorf("table %q on sheet %q: %w", name, s.name, ErrNotFound)
		}
		t = &Table{book: s.book, name: tm.name}
		return nil
	})
	return t, err
}

// Tables lists the names of the tables on this sheet.
func (s *Sheet) Tables() ([]string, error) {
	var names []string
	err := s.book.read(func(m *model) error {
		if _, err := s.lookup(m); err != nil {
			return err
		}
		for _, t := range m.tables {
			if sameName(t.sheet, s.name) {
				names = append(names, t.name)
			}
		}
		return nil
	})
	return names, err
}

func normalizeRow(values []Value) ([]Value, error) {
	out := make([]Value, len(values))
	for i, v := range values {
		n, err := Normalize(v)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

// normalizeGrid normalizes every value and requires all rows to have the same width.
func normalizeGrid(values [][]Value) ([][]Value, error) {
	out := make([][]Value, len(values))
	for r, row := range values {
		if len(row) != len(values[0]) {
			return nil, fmt.Errorf("row %d has %d values, expected %d: %w", r, len(row), len(values[0]), ErrShape)
		}
		n, err := normalizeRow(row)
		if err != nil {
			return nil, err
		}
		out[r] = n
	}
	return out, nil
}
