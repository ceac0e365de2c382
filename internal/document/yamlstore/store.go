// Package yamlstore persists a workbook as a YAML file and reports edits
// made to that file by other processes.
package yamlstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sheetbridge/sheetbridge/internal/document"
)

// FormatVersion is written to every file. Files with a newer version are rejected.
const FormatVersion = 1

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("yamlstore: closed")

// Config holds configuration for the store.
type Config struct {
	// DebounceInterval is how long the file must stay quiet before a change
	// is reported. This batches the several events of one write together.
	DebounceInterval time.Duration

	// Logger for watcher activity
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 100 * time.Millisecond,
		Logger:           slog.Default(),
	}
}

type workbookFile struct {
	Version           int `yaml:"version"`
	document.Snapshot `yaml:",inline"`
}

// Store implements document.Backend on top of a YAML file.
type Store struct {
	path   string
	config *Config
	logger *slog.Logger

	// fileMu serializes reads and writes of the file.
	fileMu sync.Mutex

	mu     sync.Mutex
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// New creates a store for path with the default configuration. The file is
// created on the first Save.
func New(path string) (*Store, error) {
	return NewWithConfig(path, DefaultConfig())
}

// NewWithConfig creates a store with custom configuration.
func NewWithConfig(path string, config *Config) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("path cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = DefaultConfig().DebounceInterval
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		path:   path,
		config: config,
		logger: logger.With("component", "yamlstore", "path", path),
		done:   make(chan struct{}),
	}, nil
}

// Path returns the workbook file path.
func (s *Store) Path() string {
	return s.path
}

// Load implements document.Backend. A missing or empty file is an empty workbook.
func (s *Store) Load(ctx context.Context) (*document.Snapshot, error) {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &document.Snapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read workbook: %w", err)
	}
	if len(data) == 0 {
		return &document.Snapshot{}, nil
	}

	var f workbookFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse workbook %s: %w", s.path, err)
	}
	if f.Version > FormatVersion {
		return nil, fmt.Errorf("workbook %s has format version %d, newest supported is %d", s.path, f.Version, FormatVersion)
	}
	snap := f.Snapshot
	return &snap, nil
}

// Save implements document.Backend. The file is replaced atomically.
func (s *Store) Save(ctx context.Context, snap *document.Snapshot) error {
	if snap == nil {
		snap = &document.Snapshot{}
	}
	data, err := yaml.Marshal(workbookFile{Version: FormatVersion, Snapshot: *snap})
	if err != nil {
		return fmt.Errorf("failed to marshal workbook: %w", err)
	}

	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close workbook: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace workbook: %w", err)
	}
	return nil
}

// Watch implements document.Backend. File events are debounced and reported
// once the file has been quiet for DebounceInterval.
func (s *Store) Watch(ctx context.Context, onChange func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", s.path, err)
	}

	fw, err := newFileWatcher(s.path)
	if err != nil {
		return err
	}
	if err := fw.run(); err != nil {
		_ = fw.close()
		return err
	}

	w := &watch{fw: fw, onChange: onChange}
	s.wg.Add(2)
	go s.watchFileEvents(ctx, w)
	go s.processChangeQueue(ctx, w)

	s.logger.Debug("watching workbook file")
	return nil
}

// Close stops all watches.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// watch is one registered change callback with its pending-change marker.
type watch struct {
	fw       *fileWatcher
	onChange func()

	mu       sync.Mutex
	queuedAt time.Time
}

func (w *watch) queue() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.queuedAt = time.Now()
}

// due reports and clears a change that has been queued for at least quiet.
func (w *watch) due(now time.Time, quiet time.Duration) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.queuedAt.IsZero() || now.Sub(w.queuedAt) < quiet {
		return false
	}
	w.queuedAt = time.Time{}
	return true
}

// watchFileEvents monitors file events and queues changes.
func (s *Store) watchFileEvents(ctx context.Context, w *watch) {
	defer s.wg.Done()
	defer func() {
		if err := w.fw.close(); err != nil {
			s.logger.Warn("failed to stop file watcher", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return

		case change, ok := <-w.fw.changes():
			if !ok {
				return
			}
			s.logger.Debug("workbook file changed", "kind", change.Kind.String())
			w.queue()

		case err, ok := <-w.fw.errors():
			if !ok {
				return
			}
			s.logger.Warn("watcher error", "error", err)
		}
	}
}

// processChangeQueue reports queued changes once they are old enough.
func (s *Store) processChangeQueue(ctx context.Context, w *watch) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return

		case now := <-ticker.C:
			if w.due(now, s.config.DebounceInterval) {
				w.onChange()
			}
		}
	}
}
