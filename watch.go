package pidlock

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// removalWatch signals when the watched pidfile is removed or renamed away.
// It watches the parent directory because a watch on the file itself is
// lost as soon as the file is deleted.
type removalWatch struct {
	watcher *fsnotify.Watcher
	path    string
	events  chan struct{}
	stop    chan struct{}
	once    sync.Once
}

func watchRemoval(path string) (*removalWatch, error) {
	dir := filepath.Dir(path)
	if !watchSupported(dir) {
		return nil, fmt.Errorf("pidlock: filesystem notifications unsupported for %q", dir)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("pidlock: create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("pidlock: watch directory %q: %w", dir, err)
	}
	w := &removalWatch{
		watcher: watcher,
		path:    filepath.Clean(path),
		events:  make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Events delivers at most one pending wake-up at a time. It is closed when
// the underlying watcher stops.
func (w *removalWatch) Events() <-chan struct{} {
	if w == nil {
		return nil
	}
	return w.events
}

func (w *removalWatch) Close() error {
	if w == nil {
		return nil
	}
	var err error
	w.once.Do(func() {
		close(w.stop)
		err = w.watcher.Close()
	})
	return err
}

func (w *removalWatch) run() {
	defer close(w.events)
	for {
		select {
		case <-w.stop:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				w.signal()
			}
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			// Events may have been dropped; let the loop retry.
			w.signal()
		}
	}
}

func (w *removalWatch) signal() {
	select {
	case w.events <- struct{}{}:
	default:
	}
}
