package document

import (
	"context"
	"fmt"

	"github.com/sheetbridge/sheetbridge/internal/address"
)

// Binding is a named association between a sheet range and application code.
type Binding struct {
	book *Book
	id   string
}

// ID returns the binding id.
func (b *Binding) ID() string {
	return b.id
}

func (b *Binding) lookup(m *model) (*bindingModel, *sheetModel, error) {
	bm := m.binding(b.id)
	if bm == nil {
		return nil, nil, fmt.Errorf("binding %q: %w", b.id, ErrNotFound)
	}
	sm := m.sheet(bm.sheet)
	if sm == nil {
		return nil, nil, fmt.Errorf("binding %q sheet %q: %w", b.id, bm.sheet, ErrNotFound)
	}
	return bm, sm, nil
}

// Range returns the bound sheet and range.
func (b *Binding) Range() (string, address.Range, error) {
	var sheet string
	var rng address.Range
	err := b.book.read(func(m *model) error {
		bm, _, err := b.lookup(m)
		if err != nil {
			return err
		}
		sheet, rng = bm.sheet, bm.rng
		return nil
	})
	return sheet, rng, err
}

// Values returns the bound cells row by row.
func (b *Binding) Values() ([][]Value, error) {
	var out [][]Value
	err := b.book.read(func(m *model) error {
		bm, sm, err := b.lookup(m)
		if err != nil {
			return err
		}
		out = sm.grid(bm.rng)
		return nil
	})
	return out, err
}

// SetValues overwrites the bound cells. values must match the range exactly.
func (b *Binding) SetValues(ctx context.Context, values [][]Value) error {
	grid, err := normalizeGrid(values)
	if err != nil {
		return err
	}
	return b.book.mutate(ctx, func(m *model) error {
		bm, sm, err := b.lookup(m)
		if err != nil {
			return err
		}
		if len(grid) != bm.rng.Rows() || (len(grid) > 0 && len(grid[0]) != bm.rng.Cols()) {
			return fmt.Errorf("binding %q is %dx%d: %w", b.id, bm.rng.Rows(), bm.rng.Cols(), ErrShape)
		}
		for r, row := range grid {
			for c, v := range row {
				sm.set(bm.rng.Start.Offset(r, c), v)
			}
		}
		return nil
	})
}

// OnDataChanged registers fn for value changes inside the binding and
// returns a function that removes it.
func (b *Binding) OnDataChanged(fn BindingDataChangedHandler) func() {
	return b.book.onBindingDataChanged(b.id, fn)
}
