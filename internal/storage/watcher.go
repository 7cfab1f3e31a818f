package storage

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher observes the artifact store and logs artifacts that disappear
// behind the catalog's back. The engine degrades gracefully when a backing
// file is gone (resume resets, streaming fails typed); the watcher makes
// the root cause visible to operators before clients hit it.
type Watcher struct {
	fsw    *fsnotify.Watcher
	store  *Store
	logger *zap.Logger
}

// NewWatcher creates a watcher over the store root and its app directories.
func NewWatcher(store *Store, logger *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// fsnotify watches are not recursive; register every existing directory.
	err = filepath.WalkDir(store.Root(), func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		return fsw.Add(path)
	})
	if err != nil {
		fsw.Close()
		return nil, err
	}

	return &Watcher{fsw: fsw, store: store, logger: logger}, nil
}

// Run processes filesystem events until the context is canceled.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fsw.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("store watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".upload-") {
		return
	}

	switch {
	case event.Has(fsnotify.Create):
		// New app/package directories need their own watch.
		if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
			if err := w.fsw.Add(event.Name); err != nil {
				w.logger.Warn("watch new directory", zap.String("path", event.Name), zap.Error(err))
			}
		}
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		rel, err := filepath.Rel(w.store.Root(), event.Name)
		if err != nil {
			rel = event.Name
		}
		w.logger.Warn("artifact removed from storage",
			zap.String("path", filepath.ToSlash(rel)),
			zap.String("op", event.Op.String()),
		)
	}
}
