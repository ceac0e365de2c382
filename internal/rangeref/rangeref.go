// Package rangeref keeps a fixed block of cells bound to application state.
//
// A RangeRef binds a rectangle of a sheet, holds a copy of its values and
// refreshes that copy whenever the binding reports a data change. CellRef is
// a typed single-cell variant.
package rangeref

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/sheetbridge/sheetbridge/internal/address"
	"github.com/sheetbridge/sheetbridge/internal/document"
)

// Params places a range on a sheet. Row and Column are zero-based, so A1 is 0,0.
type Params struct {
	Sheet   string
	Binding string
	Row     int
	Column  int
	Rows    int
	Columns int
	Logger  *slog.Logger
}

// Validate checks the params describe a non-empty range.
func (p Params) Validate() error {
	if strings.TrimSpace(p.Sheet) == "" {
		return fmt.Errorf("sheet name cannot be empty")
	}
	if strings.TrimSpace(p.Binding) == "" {
		return fmt.Errorf("binding name cannot be empty")
	}
	if p.Row < 0 || p.Column < 0 {
		return fmt.Errorf("row and column must not be negative")
	}
	if p.Rows < 1 || p.Columns < 1 {
		return fmt.Errorf("range must be at least 1x1, got %dx%d", p.Rows, p.Columns)
	}
	return nil
}

// Range returns the bound rectangle.
func (p Params) Range() address.Range {
	return address.FromIndexes(p.Row, p.Column, p.Rows, p.Columns)
}

// RangeRef holds the values of a bound range.
type RangeRef struct {
	book    *document.Book
	params  Params
	binding *document.Binding
	logger  *slog.Logger

	mu    sync.RWMutex
	state [][]document.Value

	watchMu  sync.Mutex
	watchers map[int]func([][]document.Value)
	nextID   int

	unsubscribe func()
}

// New creates the sheet if needed, loads the current values and binds the
// range. An existing binding with the same name is reused when it covers the
// same cells.
func New(ctx context.Context, book *document.Book, params Params) (*RangeRef, error) {
	if book == nil {
		return nil, fmt.Errorf("book cannot be nil")
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &RangeRef{
		book:     book,
		params:   params,
		logger:   logger.With("component", "rangeref", "binding", params.Binding),
		watchers: make(map[int]func([][]document.Value)),
	}

	if err := r.constructSheet(ctx); err != nil {
		r.logger.Error("failed to construct sheet", "error", err)
		return nil, fmt.Errorf("failed to construct sheet: %w", err)
	}
	if err := r.loadState(); err != nil {
		r.logger.Error("failed to load range", "error", err)
		return nil, fmt.Errorf("failed to load range: %w", err)
	}
	if err := r.bind(ctx); err != nil {
		r.logger.Error("failed to bind range", "error", err)
		return nil, fmt.Errorf("failed to bind range: %w", err)
	}
	return r, nil
}

func (r *RangeRef) constructSheet(ctx context.Context) error {
	if _, ok := r.book.LookupSheet(r.params.Sheet); ok {
		return nil
	}
	_, err := r.book.AddSheet(ctx, r.params.Sheet)
	if errors.Is(err, document.ErrExists) {
		return nil
	}
	return err
}

func (r *RangeRef) loadState() error {
	sheet, err := r.book.Sheet(r.params.Sheet)
	if err != nil {
		return err
	}
	values, err := sheet.Range(r.params.Range())
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.state = values
	r.mu.Unlock()
	return nil
}

func (r *RangeRef) bind(ctx context.Context) error {
	want := r.params.Range()

	binding, err := r.book.Binding(r.params.Binding)
	switch {
	case err == nil:
		sheet, rng, err := binding.Range()
		if err != nil {
			return err
		}
		if !strings.EqualFold(sheet, r.params.Sheet) || rng != want {
			return fmt.Errorf("binding %q already covers %s!%s: %w", r.params.Binding, sheet, rng, document.ErrExists)
		}
		r.logger.Debug("reusing binding", "range", rng.String())
	case errors.Is(err, document.ErrNotFound):
		binding, err = r.book.AddBinding(ctx, r.params.Binding, r.params.Sheet, want)
		if err != nil {
			return err
		}
		r.logger.Debug("added binding", "range", want.String())
	default:
		return err
	}

	r.binding = binding
	unsubscribe := binding.OnDataChanged(r.handleDataChanged)
	r.watchMu.Lock()
	r.unsubscribe = unsubscribe
	r.watchMu.Unlock()
	return nil
}

// handleDataChanged reloads the state from the binding.
func (r *RangeRef) handleDataChanged(ev document.BindingDataChangedEvent) {
	values, err := r.binding.Values()
	if err != nil {
		r.logger.Warn("failed to reload range", "error", err)
		return
	}
	r.mu.Lock()
	r.state = values
	r.mu.Unlock()

	r.logger.Debug("range changed", "source", string(ev.Source))
	r.emit(values)
}

// Params returns the params the range was created with.
func (r *RangeRef) Params() Params {
	return r.params
}

// Value returns a copy of the current values.
func (r *RangeRef) Value() [][]document.Value {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneGrid(r.state)
}

// SetValue writes values to the bound cells and then updates the state.
// values must match the range shape.
func (r *RangeRef) SetValue(ctx context.Context, values [][]document.Value) error {
	if len(values) != r.params.Rows {
		return fmt.Errorf("got %d rows, range has %d: %w", len(values), r.params.Rows, document.ErrShape)
	}
	for i, row := range values {
		if len(row) != r.params.Columns {
			return fmt.Errorf("row %d has %d values, range has %d: %w", i, len(row), r.params.Columns, document.ErrShape)
		}
	}
	if err := r.binding.SetValues(ctx, values); err != nil {
		r.logger.Error("failed to write range", "error", err)
		return fmt.Errorf("failed to write range: %w", err)
	}

	// Re-read so the state holds normalized values.
	current, err := r.binding.Values()
	if err != nil {
		return fmt.Errorf("failed to read range: %w", err)
	}
	r.mu.Lock()
	r.state = current
	r.mu.Unlock()
	return nil
}

// OnChange registers fn for values refreshed from the document and returns
// a function that removes it.
func (r *RangeRef) OnChange(fn func([][]document.Value)) func() {
	r.watchMu.Lock()
	id := r.nextID
	r.nextID++
	r.watchers[id] = fn
	r.watchMu.Unlock()

	return func() {
		r.watchMu.Lock()
		defer r.watchMu.Unlock()
		delete(r.watchers, id)
	}
}

func (r *RangeRef) emit(values [][]document.Value) {
	r.watchMu.Lock()
	ids := make([]int, 0, len(r.watchers))
	for id := range r.watchers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func([][]document.Value), len(ids))
	for i, id := range ids {
		fns[i] = r.watchers[id]
	}
	r.watchMu.Unlock()

	for _, fn := range fns {
		fn(cloneGrid(values))
	}
}

// Close stops following the binding. The binding stays in the workbook.
func (r *RangeRef) Close() {
	r.watchMu.Lock()
	unsubscribe := r.unsubscribe
	r.unsubscribe = nil
	r.watchMu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func cloneGrid(g [][]document.Value) [][]document.Value {
	if g == nil {
		return nil
	}
	out := make([][]document.Value, len(g))
	for i, row := range g {
		out[i] = append([]document.Value(nil), row...)
	}
	return out
}
