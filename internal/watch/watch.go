// Package watch adapts fsnotify filesystem events into engine change
// events.
//
// The watcher observes the whole site root recursively and filters out the
// destination tree, so a site whose output directory lives inside the root
// does not rebuild itself in a loop. Batching and coalescing are the
// engine's job; the watcher forwards events as they come.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/kalamos/internal/engine"
)

// Watcher forwards file change events under a site root.
type Watcher struct {
	root    string
	ignored []string
	fsw     *fsnotify.Watcher
	events  chan engine.Change
	logger  *slog.Logger
}

// New creates a recursive watcher over root. Paths under any of the
// ignored directories are dropped, as are dotfiles.
func New(root string, ignored ...string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	w := &Watcher{
		root:    root,
		ignored: ignored,
		fsw:     fsw,
		events:  make(chan engine.Change, 256),
		logger:  slog.Default(),
	}
	if err := w.addRecursive(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// WithLogger sets a custom logger.
func (w *Watcher) WithLogger(logger *slog.Logger) *Watcher {
	if logger != nil {
		w.logger = logger
	}
	return w
}

// Events returns the change stream. The channel closes when Run returns.
func (w *Watcher) Events() <-chan engine.Change {
	return w.events
}

// Run pumps fsnotify events into the change stream until ctx is canceled
// or the underlying watcher closes.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.events)
	defer func() { _ = w.fsw.Close() }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, ev)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	if w.skip(ev.Name) {
		return
	}

	// Newly created directories must be watched before anything inside
	// them changes.
	if ev.Op.Has(fsnotify.Create) {
		if st, err := os.Stat(ev.Name); err == nil && st.IsDir() {
			if err := w.addRecursive(ev.Name); err != nil {
				w.logger.Warn("watch new directory", "path", ev.Name, "error", err)
			}
			return
		}
	}

	op, ok := mapOp(ev.Op)
	if !ok {
		return
	}
	select {
	case w.events <- engine.Change{Path: ev.Name, Op: op}:
	case <-ctx.Done():
	}
}

func mapOp(op fsnotify.Op) (engine.ChangeOp, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return engine.OpAdded, true
	case op.Has(fsnotify.Write):
		return engine.OpModified, true
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return engine.OpRemoved, true
	default: // chmod only
		return 0, false
	}
}

func (w *Watcher) skip(path string) bool {
	for _, dir := range w.ignored {
		if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return true
		}
	}
	return strings.HasPrefix(filepath.Base(path), ".")
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.skip(path) && path != w.root {
			return fs.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}
