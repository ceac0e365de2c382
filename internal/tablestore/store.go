package tablestore

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

// Store caches the rows of one workbook table and keeps the cache in step
// with the document.
type Store struct {
	book    *document.Book
	params  Params
	columns []ColumnDef
	logger  *slog.Logger

	// opMu serializes a document write with the cache update and the
	// notification that follow it, so that a reload triggered by the write
	// cannot run in between.
	opMu sync.Mutex

	mu          sync.RWMutex
	loading     bool
	initialized bool
	origin      address.Origin
	width       int
	rows        map[int]*RowNode

	subMu   sync.Mutex
	subs    map[int]func(Change)
	nextSub int

	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
}

// New creates a store for the table described by params. Call Init before use.
func New(book *document.Book, params Params) (*Store, error) {
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
	ctx, cancel := context.WithCancel(context.Background())

	return &Store{
		book:    book,
		params:  params,
		columns: slices.Clone(params.Columns),
		logger:  logger.With("component", "tablestore", "table", params.TableName),
		loading: true,
		origin:  address.Origin{Row: params.Row, Col: params.Column},
		width:   len(params.Columns),
		rows:    make(map[int]*RowNode),
		subs:    make(map[int]func(Change)),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// TableName returns the name of the cached table.
func (s *Store) TableName() string {
	return s.params.TableName
}

// SheetName returns the name of the sheet holding the table.
func (s *Store) SheetName() string {
	return s.params.SheetName
}

// Columns returns the column definitions.
func (s *Store) Columns() []ColumnDef {
	return slices.Clone(s.columns)
}

// Keys returns the column keys in column order.
func (s *Store) Keys() []string {
	keys := make([]string, len(s.columns))
	for i, c := range s.columns {
		keys[i] = c.Key
	}
	return keys
}

// Headers returns the column labels in column order.
func (s *Store) Headers() []string {
	headers := make([]string, len(s.columns))
	for i, c := range s.columns {
		headers[i] = c.Label
	}
	return headers
}

// NumberOfColumns returns the number of columns.
func (s *Store) NumberOfColumns() int {
	return len(s.columns)
}

// Loading reports whether the first load has not completed yet.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Origin returns the position of the table's header row.
func (s *Store) Origin() address.Origin {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.origin
}

// Rows returns a copy of every cached row ordered by index.
func (s *Store) Rows() []RowNode {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]RowNode, 0, len(s.rows))
	for _, n := range s.rows {
		out = append(out, n.clone())
	}
	slices.SortFunc(out, func(a, b RowNode) int { return a.Index - b.Index })
	return out
}

// Row returns a copy of the cached row at index.
func (s *Store) Row(index int) (RowNode, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.rows[index]
	if !ok {
		return RowNode{}, false
	}
	return n.clone(), true
}

// Len returns the number of cached rows.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// Subscribe registers fn for cache changes and returns a function that
// removes it. Changes arrive in the order they were applied. fn runs on the
// goroutine that changed the cache while further changes wait, so it must not
// block or mutate the store. Reads are fine.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) notify(c Change) {
	s.subMu.Lock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(Change), len(ids))
	for i, id := range ids {
		fns[i] = s.subs[id]
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}

// Init creates the sheet and table if they are missing, loads every row and
// starts listening for document changes.
func (s *Store) Init(ctx context.Context) error {
	table, err := s.constructTable(ctx)
	if err != nil {
		s.logger.Error("failed to construct table", "error", err)
		return fmt.Errorf("failed to construct table: %w", err)
	}

	// Listen before loading so that no change falls between the two.
	unsubscribe := table.OnChanged(s.handleTableChanged)

	if err := s.loadRows(ctx, document.SourceLocal); err != nil {
		unsubscribe()
		return err
	}

	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.initialized = true
	s.mu.Unlock()

	s.logger.Info("table store ready", "sheet", s.params.SheetName, "rows", s.Len())
	return nil
}

// constructTable returns the table, creating the sheet and the table with
// its header row when they do not exist.
func (s *Store) constructTable(ctx context.Context) (*document.Table, error) {
	sheet, ok := s.book.LookupSheet(s.params.SheetName)
	if !ok {
		var err error
		sheet, err = s.book.AddSheet(ctx, s.params.SheetName)
		if errors.Is(err, document.ErrExists) {
			sheet, err = s.book.Sheet(s.params.SheetName)
		}
		if err != nil {
			return nil, err
		}
		s.logger.Info("created sheet", "sheet", s.params.SheetName)
	}

	table, err := sheet.Table(s.params.TableName)
	if err == nil {
		return table, nil
	}
	if !errors.Is(err, document.ErrNotFound) {
		return nil, err
	}
	if _, ok := s.book.LookupTable(s.params.TableName); ok {
		return nil, fmt.Errorf("table %q exists on another sheet", s.params.TableName)
	}

	origin := address.Origin{Row: s.params.Row, Col: s.params.Column}
	headers := make([]document.Value, len(s.columns))
	for i, h := range s.Headers() {
		headers[i] = h
	}
	if err := sheet.SetRange(ctx, origin.Ref(), [][]document.Value{headers}); err != nil {
		return nil, fmt.Errorf("failed to write headers: %w", err)
	}
	table, err = sheet.AddTable(ctx, s.params.TableName, origin.HeaderRange(len(s.columns)), true)
	if err != nil {
		return nil, err
	}
	s.logger.Info("created table", "range", origin.HeaderRange(len(s.columns)).String())
	return table, nil
}

// loadRows rebuilds the cache from the document.
func (s *Store) loadRows(ctx context.Context, source document.Source) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	var count int
	err := s.runWithTable(ctx, "load rows", func(table *document.Table) error {
		contents, err := table.Load()
		if err != nil {
			return err
		}
		if !strings.EqualFold(contents.Sheet, s.params.SheetName) {
			s.logger.Warn("table lives on a different sheet", "sheet", contents.Sheet)
		}
		if contents.Range.Cols() != len(s.columns) {
			s.logger.Warn("table width differs from column list",
				"table_columns", contents.Range.Cols(), "columns", len(s.columns))
		}

		rows := make(map[int]*RowNode, len(contents.Rows))
		for _, r := range contents.Rows {
			rows[r.Index] = &RowNode{Index: r.Index, Data: s.rowData(r.Values)}
		}
		origin := address.Origin{Row: contents.Range.Start.Row, Col: contents.Range.Start.Col}

		s.mu.Lock()
		if origin != s.origin {
			s.logger.Info("table origin moved", "from", s.origin.Ref().String(), "to", origin.Ref().String())
		}
		s.rows = rows
		s.origin = origin
		s.width = contents.Range.Cols()
		s.loading = false
		s.mu.Unlock()

		count = len(rows)
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug("rows loaded", "rows", count)
	s.notify(Change{Kind: Reloaded, Index: -1, Source: source})
	return nil
}

// Close stops listening for document changes. The cache stays readable.
func (s *Store) Close() {
	s.cancel()
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// rowData maps document values to column keys. Extra values are dropped and
// missing ones read as "".
func (s *Store) rowData(values []document.Value) RowData {
	data := make(RowData, len(s.columns))
	for i, c := range s.columns {
		if i < len(values) {
			data[c.Key] = values[i]
		} else {
			data[c.Key] = ""
		}
	}
	return data
}

// rowValues orders data by column key. Missing keys become "" and unknown
// keys are logged and dropped.
func (s *Store) rowValues(data RowData) ([]document.Value, error) {
	known := make(map[string]bool, len(s.columns))
	values := make([]document.Value, len(s.columns))
	for i, c := range s.columns {
		known[c.Key] = true
		v, err := document.Normalize(data[c.Key])
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", c.Key, err)
		}
		values[i] = v
	}
	for key := range data {
		if !known[key] {
			s.logger.Warn("dropping unknown column key", "key", key)
		}
	}
	return values, nil
}
