package document

import (
	"context"
	"sync"
)

// Backend persists a workbook and reports edits made by other writers.
type Backend interface {
	// Load returns the stored workbook. A backend with nothing stored yet
	// returns an empty snapshot, not an error.
	Load(ctx context.Context) (*Snapshot, error)

	// Save replaces the stored workbook.
	Save(ctx context.Context, snap *Snapshot) error

	// Watch starts reporting possible external edits by calling onChange.
	// It returns once watching has started; reporting stops when ctx is
	// cancelled or the backend is closed. onChange may be called for the
	// backend's own saves.
	Watch(ctx context.Context, onChange func()) error

	// Close releases the backend's resources.
	Close() error
}

// MemoryBackend keeps the workbook in memory. Put simulates a second writer
// replacing the stored workbook.
type MemoryBackend struct {
	mu       sync.Mutex
	snap     *Snapshot
	watchers map[int]func()
	nextID   int
	saves    int
}

// NewMemoryBackend returns a backend holding a copy of initial (which may be nil).
func NewMemoryBackend(initial *Snapshot) *MemoryBackend {
	return &MemoryBackend{
		snap:     initial.Clone(),
		watchers: make(map[int]func()),
	}
}

// Load implements Backend.
func (m *MemoryBackend) Load(ctx context.Context) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil {
		return &Snapshot{}, nil
	}
	return m.snap.Clone(), nil
}

// Save implements Backend.
func (m *MemoryBackend) Save(ctx context.Context, snap *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = snap.Clone()
	m.saves++
	return nil
}

// Watch implements Backend.
func (m *MemoryBackend) Watch(ctx context.Context, onChange func()) error {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.watchers[id] = onChange
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.watchers, id)
		m.mu.Unlock()
	}()
	return nil
}

// Put replaces the stored workbook as another writer would and notifies
// watchers synchronously.
func (m *MemoryBackend) Put(snap *Snapshot) {
	m.mu.Lock()
	m.snap = snap.Clone()
	watchers := make([]func(), 0, len(m.watchers))
	for _, fn := range m.watchers {
		watchers = append(watchers, fn)
	}
	m.mu.Unlock()

	for _, fn := range watchers {
		fn()
	}
}

// Saves returns how many times Save has been called.
func (m *MemoryBackend) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Close implements Backend.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchers = make(map[int]func())
	return nil
}
