package cache

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads entries that another process writes into the store's
// directory and reports the keys whose in-memory value changed.
type Watcher struct {
	store   *Store
	fs      *fsnotify.Watcher
	changes chan Key
	done    chan struct{}
}

// Watch starts watching the store's directory.
func Watch(s *Store) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("cache: creating watcher: %w", err)
	}
	if err := fw.Add(s.dir); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("cache: watching %s: %w", s.dir, err)
	}
	w := &Watcher{
		store:   s,
		fs:      fw,
		changes: make(chan Key, 16),
		done:    make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Changes delivers keys whose entries were reloaded. It is closed by Close.
func (w *Watcher) Changes() <-chan Key { return w.changes }

// Close stops the watcher.
func (w *Watcher) Close() error {
	select {
	case <-w.done:
		return nil
	default:
	}
	close(w.done)
	return w.fs.Close()
}

func (w *Watcher) run() {
	defer close(w.changes)
	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.store.log.Warn("cache watcher error", zap.Error(err))
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) &&
		!ev.Op.Has(fsnotify.Remove) && !ev.Op.Has(fsnotify.Rename) {
		return
	}
	key, ok := w.store.keyForFile(filepath.Base(ev.Name))
	if !ok {
		return
	}
	changed, err := w.store.Reload(key)
	if err != nil {
		w.store.log.Warn("cache reload failed", zap.Stringer("key", key), zap.Error(err))
		return
	}
	if !changed {
		return
	}
	select {
	case w.changes <- key:
	case <-w.done:
	}
}
