package yamlstore

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// changeKind classifies what happened to the workbook file.
type changeKind int

const (
	// changeReplaced means the file appeared, either created or renamed into place.
	changeReplaced changeKind = iota
	// changeWritten means the file content was written in place.
	changeWritten
	// changeRemoved means the file was removed or renamed away.
	changeRemoved
)

func (k changeKind) String() string {
	switch k {
	case changeReplaced:
		return "replaced"
	case changeWritten:
		return "written"
	case changeRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// fileChange is one change to the workbook file.
type fileChange struct {
	Path string
	Kind changeKind
}

// fileWatcher follows a single file. It watches the parent directory so that
// writers replacing the file by rename are still seen.
type fileWatcher struct {
	path   string
	fsw    *fsnotify.Watcher
	out    chan fileChange
	errs   chan error
	quit   chan struct{}
	loopWG sync.WaitGroup

	mu    sync.Mutex
	state watcherState
}

type watcherState int

const (
	watcherIdle watcherState = iota
	watcherRunning
	watcherClosed
)

// newFileWatcher prepares a watcher for path. Nothing is reported before run.
func newFileWatcher(path string) (*fileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &fileWatcher{
		path: abs,
		fsw:  fsw,
		out:  make(chan fileChange, 100),
		errs: make(chan error, 10),
		quit: make(chan struct{}),
	}, nil
}

// run subscribes to the parent directory and starts the event loop.
func (w *fileWatcher) run() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case watcherRunning:
		return fmt.Errorf("watcher for %s already running", w.path)
	case watcherClosed:
		return fmt.Errorf("watcher for %s closed", w.path)
	}

	dir := filepath.Dir(w.path)
	if err := w.fsw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	w.state = watcherRunning
	w.loopWG.Add(1)
	go w.loop()
	return nil
}

// close ends the event loop and closes both channels. Repeated calls are no-ops.
func (w *fileWatcher) close() error {
	w.mu.Lock()
	if w.state == watcherClosed {
		w.mu.Unlock()
		return nil
	}
	started := w.state == watcherRunning
	w.state = watcherClosed
	w.mu.Unlock()

	close(w.quit)
	err := w.fsw.Close()
	if started {
		w.loopWG.Wait()
	}
	close(w.out)
	close(w.errs)

	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

func (w *fileWatcher) running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state == watcherRunning
}

// changes is closed by close.
func (w *fileWatcher) changes() <-chan fileChange { return w.out }

// errors is closed by close.
func (w *fileWatcher) errors() <-chan error { return w.errs }

func (w *fileWatcher) loop() {
	defer w.loopWG.Done()

	for {
		select {
		case <-w.quit:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			change, keep := w.classify(ev)
			if !keep {
				continue
			}
			select {
			case w.out <- change:
			case <-w.quit:
				return
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			select {
			case w.errs <- err:
			case <-w.quit:
				return
			}
		}
	}
}

// classify drops events for sibling files and chmod-only events.
func (w *fileWatcher) classify(ev fsnotify.Event) (fileChange, bool) {
	name, err := filepath.Abs(ev.Name)
	if err != nil || name != w.path {
		return fileChange{}, false
	}

	switch {
	case ev.Has(fsnotify.Create):
		return fileChange{Path: name, Kind: changeReplaced}, true
	case ev.Has(fsnotify.Write):
		return fileChange{Path: name, Kind: changeWritten}, true
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		return fileChange{Path: name, Kind: changeRemoved}, true
	}
	return fileChange{}, false
}
