package document

import (
	"context"
	"fmt"
	"slices"

	"github.com/sheetbridge/sheetbridge/internal/address"
)

// Table is a handle to a named table. The first row of its range is the
// header; data rows are indexed from zero below it.
type Table struct {
	book *Book
	name string
}

// Row is one data row of a table.
type Row struct {
	Index  int
	Values []Value
}

// Name returns the table name.
func (t *Table) Name() string {
	return t.name
}

func (t *Table) lookup(m *model) (*tableModel, error) {
	tm := m.table(t.name)
	if tm == nil {
		return nil, fmt.Errorf("table %q: %w", t.name, ErrNotFound)
	}
	return tm, nil
}

// view runs fn with the table's current state.
func (t *Table) view(fn func(m *model, tm *tableModel) error) error {
	return t.book.read(func(m *model) error {
		tm, err := t.lookup(m)
		if err != nil {
			return err
		}
		return fn(m, tm)
	})
}

func (t *Table) update(ctx context.Context, fn func(m *model, tm *tableModel) error) error {
	return t.book.mutate(ctx, func(m *model) error {
		tm, err := t.lookup(m)
		if err != nil {
			return err
		}
		return fn(m, tm)
	})
}

// SheetName returns the name of the sheet holding the table.
func (t *Table) SheetName() (string, error) {
	var name string
	err := t.view(func(_ *model, tm *tableModel) error {
		name = tm.sheet
		return nil
	})
	return name, err
}

// Range returns the table's range including the header row.
func (t *Table) Range() (address.Range, error) {
	var rng address.Range
	err := t.view(func(_ *model, tm *tableModel) error {
		rng = tm.rng
		return nil
	})
	return rng, err
}

// Headers returns the header row as text.
func (t *Table) Headers() ([]string, error) {
	var headers []string
	err := t.view(func(m *model, tm *tableModel) error {
		headers = m.headers(tm)
		return nil
	})
	return headers, err
}

// RowCount returns the number of data rows.
func (t *Table) RowCount() (int, error) {
	var n int
	err := t.view(func(_ *model, tm *tableModel) error {
		n = tm.rowCount()
		return nil
	})
	return n, err
}

// Rows returns every data row in order.
func (t *Table) Rows() ([]Row, error) {
	var rows []Row
	err := t.view(func(m *model, tm *tableModel) error {
		for i, values := range m.tableRows(tm) {
			rows = append(rows, Row{Index: i, Values: values})
		}
		return nil
	})
	return rows, err
}

// Contents is a consistent view of a table.
type Contents struct {
	Sheet   string
	Range   address.Range
	Headers []string
	Rows    []Row
}

// Load returns the table's sheet, range, headers and rows read together.
func (t *Table) Load() (Contents, error) {
	var c Contents
	err := t.view(func(m *model, tm *tableModel) error {
		c.Sheet = tm.sheet
		c.Range = tm.rng
		c.Headers = m.headers(tm)
		for i, values := range m.tableRows(tm) {
			c.Rows = append(c.Rows, Row{Index: i, Values: values})
		}
		return nil
	})
	return c, err
}

// RowAt returns the data row at index.
func (t *Table) RowAt(index int) (Row, error) {
	var row Row
	err := t.view(func(m *model, tm *tableModel) error {
		if index < 0 || index >= tm.rowCount() {
			return fmt.Errorf("row %d in table %q with %d rows: %w", index, tm.name, tm.rowCount(), ErrOutOfRange)
		}
		sm := m.sheet(tm.sheet)
		row = Row{Index: index, Values: sm.grid(tm.bodyRow(index))[0]}
		return nil
	})
	return row, err
}

// AddRow inserts values as a new data row at index, or appends when index is
// -1, and returns the index of the new row. values must have one entry per
// table column.
func (t *Table) AddRow(ctx context.Context, index int, values []Value) (int, error) {
	row, err := normalizeRow(values)
	if err != nil {
		return 0, err
	}
	var added int
	err = t.update(ctx, func(m *model, tm *tableModel) error {
		added, err = m.insertRow(tm, index, row)
		return err
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// DeleteRows removes the data rows at the given indexes in one change.
func (t *Table) DeleteRows(ctx context.Context, indexes ...int) error {
	if len(indexes) == 0 {
		return nil
	}
	sorted := slices.Clone(indexes)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	slices.Reverse(sorted)

	return t.update(ctx, func(m *model, tm *tableModel) error {
		for _, idx := range sorted {
			if err := m.deleteRow(tm, idx); err != nil {
				return err
			}
		}
		return nil
	})
}

// SetRow overwrites the data row at index.
func (t *Table) SetRow(ctx context.Context, index int, values []Value) error {
	row, err := normalizeRow(values)
	if err != nil {
		return err
	}
	return t.update(ctx, func(m *model, tm *tableModel) error {
		return m.setRow(tm, index, row)
	})
}

// OnChanged registers fn for change notifications of this table and returns
// a function that removes it.
func (t *Table) OnChanged(fn TableChangedHandler) func() {
	return t.book.onTableChanged(t.name, fn)
}
