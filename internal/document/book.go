package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/sheetbridge/sheetbridge/internal/address"
)

// Book is an in-process workbook host: sheets of sparse cells, named tables,
// range bindings and change notifications.
//
// Every mutation is applied to a copy of the workbook, saved through the
// backend (if any) and only then made visible. Notifications for the change
// are queued and delivered in order on a single dispatcher goroutine, never
// while the book's lock is held, so handlers may call back into the book.
// Handlers must not call Sync or Close.
type Book struct {
	mu      sync.Mutex
	model   *model
	backend Backend
	logger  *slog.Logger
	closed  bool

	handlersMu      sync.Mutex
	tableHandlers   map[string]map[int]TableChangedHandler
	bindingHandlers map[string]map[int]BindingDataChangedHandler
	nextHandler     int

	queueMu sync.Mutex
	queue   []func()
	wake    chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Book.
type Option func(*Book)

// WithLogger sets the logger used for delivery and reload failures.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Book) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// New creates an empty, unpersisted book.
func New(opts ...Option) *Book {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Book{
		model:           newModel(),
		logger:          slog.Default(),
		tableHandlers:   make(map[string]map[int]TableChangedHandler),
		bindingHandlers: make(map[string]map[int]BindingDataChangedHandler),
		wake:            make(chan struct{}, 1),
		ctx:             ctx,
		cancel:          cancel,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "document")

	b.wg.Add(1)
	go b.dispatch()
	return b
}

// Open loads a book from backend and starts watching it for external edits.
// The book owns the backend and closes it on Close.
func Open(ctx context.Context, backend Backend, opts ...Option) (*Book, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend cannot be nil")
	}

	snap, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load workbook: %w", err)
	}
	m, err := modelFromSnapshot(snap)
	if err != nil {
		return nil, fmt.Errorf("invalid workbook: %w", err)
	}

	b := New(opts...)
	b.model = m
	b.backend = backend

	if err := backend.Watch(b.ctx, b.onExternalChange); err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("failed to watch workbook: %w", err)
	}
	return b, nil
}

func (b *Book) onExternalChange() {
	if err := b.Reload(b.ctx); err != nil && !errors.Is(err, ErrClosed) {
		b.logger.Warn("reload after external change failed", "error", err)
	}
}

// Reload re-reads the backend and emits Remote notifications for whatever
// changed since the last load or save. It is a no-op for unpersisted books.
func (b *Book) Reload(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	if b.backend == nil {
		b.mu.Unlock()
		return nil
	}

	snap, err := b.backend.Load(ctx)
	if err != nil {
		b.mu.Unlock()
		return fmt.Errorf("failed to load workbook: %w", err)
	}
	next, err := modelFromSnapshot(snap)
	if err != nil {
		b.mu.Unlock()
		return fmt.Errorf("invalid workbook: %w", err)
	}

	prev := b.model
	b.model = next
	ch := diff(prev, next, SourceRemote)
	b.mu.Unlock()

	if !ch.empty() {
		b.logger.Debug("external change detected", "tables", len(ch.tables), "bindings", len(ch.bindings))
	}
	b.publish(ch)
	return nil
}

// Sync blocks until every notification queued before the call has been
// delivered.
func (b *Book) Sync(ctx context.Context) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}

	done := make(chan struct{})
	b.enqueue(func() { close(done) })

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-b.ctx.Done():
		return ErrClosed
	}
}

// Close stops the dispatcher after delivering queued notifications, stops
// watching and closes the backend.
func (b *Book) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()

	if b.backend != nil {
		if err := b.backend.Close(); err != nil {
			return fmt.Errorf("failed to close backend: %w", err)
		}
	}
	return nil
}

// Snapshot returns the current workbook contents.
func (b *Book) Snapshot() *Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.model.snapshot()
}

// AddSheet creates a worksheet.
func (b *Book) AddSheet(ctx context.Context, name string) (*Sheet, error) {
	err := b.mutate(ctx, func(m *model) error {
		_, err := m.addSheet(name)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Sheet{book: b, name: name}, nil
}

// Sheet returns the named worksheet or ErrNotFound.
func (b *Book) Sheet(name string) (*Sheet, error) {
	if s, ok := b.LookupSheet(name); ok {
		return s, nil
	}
	return nil, fmt.Errorf("sheet %q: %w", name, ErrNotFound)
}

// LookupSheet returns the named worksheet and whether it exists.
func (b *Book) LookupSheet(name string) (*Sheet, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s := b.model.sheet(name); s != nil {
		return &Sheet{book: b, name: s.name}, true
	}
	return nil, false
}

// SheetNames lists worksheets in creation order.
func (b *Book) SheetNames() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, len(b.model.sheets))
	for i, s := range b.model.sheets {
		names[i] = s.name
	}
	return names
}

// Table returns the named table from any sheet or ErrNotFound.
func (b *Book) Table(name string) (*Table, error) {
	if t, ok := b.LookupTable(name); ok {
		return t, nil
	}
	return nil, fmt.Errorf("table %q: %w", name, ErrNotFound)
}

// LookupTable returns the named table and whether it exists.
func (b *Book) LookupTable(name string) (*Table, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t := b.model.table(name); t != nil {
		return &Table{book: b, name: t.name}, true
	}
	return nil, false
}

// AddBinding binds id to a range of sheet. Binding ids are unique.
func (b *Book) AddBinding(ctx context.Context, id, sheet string, rng address.Range) (*Binding, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("binding id cannot be empty")
	}
	err := b.mutate(ctx, func(m *model) error {
		s := m.sheet(sheet)
		if s == nil {
			return fmt.Errorf("sheet %q: %w", sheet, ErrNotFound)
		}
		if m.binding(id) != nil {
			return fmt.Errorf("binding %q: %w", id, ErrExists)
		}
		m.bindings = append(m.bindings, &bindingModel{id: id, sheet: s.name, rng: rng})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Binding{book: b, id: id}, nil
}

// Binding returns the binding with the given id or ErrNotFound.
func (b *Book) Binding(id string) (*Binding, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if bm := b.model.binding(id); bm != nil {
		return &Binding{book: b, id: bm.id}, nil
	}
	return nil, fmt.Errorf("binding %q: %w", id, ErrNotFound)
}

// mutate applies fn to a copy of the workbook, saves it and publishes the
// resulting notifications.
func (b *Book) mutate(ctx context.Context, fn func(m *model) error) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}

	next := b.model.clone()
	if err := fn(next); err != nil {
		b.mu.Unlock()
		return err
	}
	if b.backend != nil {
		if err := b.backend.Save(ctx, next.snapshot()); err != nil {
			b.mu.Unlock()
			return fmt.Errorf("failed to save workbook: %w", err)
		}
	}

	prev := b.model
	b.model = next
	ch := diff(prev, next, SourceLocal)
	b.mu.Unlock()

	b.publish(ch)
	return nil
}

// read runs fn against the current workbook under the lock.
func (b *Book) read(fn func(m *model) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	return fn(b.model)
}
