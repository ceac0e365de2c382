package rangeref

import (
	"context"
	"log/slog"

	"github.com/sheetbridge/sheetbridge/internal/document"
)

// CellValue is a Go type a single cell can hold.
type CellValue interface {
	string | float64 | bool
}

// CellParams places a single cell. Row and Column are zero-based.
type CellParams struct {
	Sheet   string
	Binding string
	Row     int
	Column  int
	Logger  *slog.Logger
}

// CellRef is a 1x1 RangeRef read and written as T.
type CellRef[T CellValue] struct {
	*RangeRef
}

// NewCell binds a single cell.
func NewCell[T CellValue](ctx context.Context, book *document.Book, params CellParams) (*CellRef[T], error) {
	r, err := New(ctx, book, Params{
		Sheet:   params.Sheet,
		Binding: params.Binding,
		Row:     params.Row,
		Column:  params.Column,
		Rows:    1,
		Columns: 1,
		Logger:  params.Logger,
	})
	if err != nil {
		return nil, err
	}
	return &CellRef[T]{RangeRef: r}, nil
}

// Get returns the cell value, or the zero value of T when the cell holds a
// different kind.
func (c *CellRef[T]) Get() T {
	var zero T
	values := c.Value()
	if len(values) == 0 || len(values[0]) == 0 {
		return zero
	}
	v, ok := values[0][0].(T)
	if !ok {
		return zero
	}
	return v
}

// Set writes v to the cell.
func (c *CellRef[T]) Set(ctx context.Context, v T) error {
	return c.SetValue(ctx, [][]document.Value{{v}})
}
