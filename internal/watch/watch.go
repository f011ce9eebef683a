// Package watch reports on-disk edits to the file being debugged.
package watch

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Op describes what happened to the file.
type Op uint8

// Operations.
const (
	OpWrite Op = 1 << iota
	OpCreate
	OpRemove
	OpRename
)

// String returns a readable name for o.
func (o Op) String() string {
	switch {
	case o&OpWrite != 0:
		return "write"
	case o&OpCreate != 0:
		return "create"
	case o&OpRemove != 0:
		return "remove"
	case o&OpRename != 0:
		return "rename"
	default:
		return "unknown"
	}
}

// Event is a change to the watched file.
type Event struct {
	Path string
	Op   Op
}

// FileWatcher watches a single file. It watches the parent directory so
// editors that save by rename are still seen.
type FileWatcher struct {
	watcher *fsnotify.Watcher
	path    string

	events chan Event
	errors chan error

	mu       sync.Mutex
	closed   bool
	closeCh  chan struct{}
	closedWg sync.WaitGroup
}

// NewFileWatcher starts watching path.
func NewFileWatcher(path string) (*FileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &FileWatcher{
		watcher: fsw,
		path:    abs,
		events:  make(chan Event, 16),
		errors:  make(chan error, 4),
		closeCh: make(chan struct{}),
	}
	w.closedWg.Add(1)
	go w.processLoop()
	return w, nil
}

// Path returns the absolute path being watched.
func (w *FileWatcher) Path() string { return w.path }

// Events returns the event channel. A nil watcher yields a nil channel.
func (w *FileWatcher) Events() <-chan Event {
	if w == nil {
		return nil
	}
	return w.events
}

// Errors returns the error channel.
func (w *FileWatcher) Errors() <-chan error {
	if w == nil {
		return nil
	}
	return w.errors
}

// Close stops the watcher. It is safe to call on a nil watcher and more than
// once.
func (w *FileWatcher) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	w.mu.Unlock()

	w.closedWg.Wait()
	close(w.events)
	close(w.errors)
	return w.watcher.Close()
}

func (w *FileWatcher) processLoop() {
	defer w.closedWg.Done()

	for {
		select {
		case <-w.closeCh:
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			op := convertOp(ev.Op)
			if op == 0 {
				continue
			}
			select {
			case w.events <- Event{Path: w.path, Op: op}:
			default:
				// A pending event already tells the reader the file changed.
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

func convertOp(fsOp fsnotify.Op) Op {
	var op Op
	if fsOp.Has(fsnotify.Write) {
		op |= OpWrite
	}
	if fsOp.Has(fsnotify.Create) {
		op |= OpCreate
	}
	if fsOp.Has(fsnotify.Remove) {
		op |= OpRemove
	}
	if fsOp.Has(fsnotify.Rename) {
		op |= OpRename
	}
	return op
}
