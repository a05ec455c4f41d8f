// Package watch reloads the sources file when it changes on disk.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"

	"github.com/atlekbai/source_registry/internal/schema"
	"github.com/atlekbai/source_registry/internal/source"
)

const DefaultDebounce = 500 * time.Millisecond

// Watcher calls reload after the watched file settles following a change.
type Watcher struct {
	file     string
	reload   func() error
	watcher  *fsnotify.Watcher
	Debounce time.Duration
}

// New watches the directory containing file so that editors replacing the
// file by rename are seen too.
func New(file string, reload func() error) (*Watcher, error) {
	absPath, err := filepath.Abs(file)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", file, err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(absPath)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(absPath), err)
	}
	return &Watcher{file: absPath, reload: reload, watcher: fw, Debounce: DefaultDebounce}, nil
}

// Run blocks until ctx is done. Reload failures are logged and the watcher
// keeps running.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	timer := time.NewTimer(w.Debounce)
	timer.Stop()
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if p, err := filepath.Abs(ev.Name); err != nil || p != w.file {
				continue
			}
			timer.Reset(w.Debounce)
			pending = timer.C
		case <-pending:
			pending = nil
			if err := w.reload(); err != nil {
				slog.Error("reload failed", "file", w.file, "error", err)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch error", "file", w.file, "error", err)
		}
	}
}

// Sources returns a reload func that rebuilds the registry from path and
// swaps it into reg. On failure reg keeps its previous entrypoints.
func Sources(reg *source.Registry, fsys afero.Fs, path string, cache *schema.Cache) func() error {
	return func() error {
		next, err := source.LoadRegistry(fsys, path, cache, reg.Dialect())
		if err != nil {
			return err
		}
		reg.Replace(next)
		slog.Info("sources reloaded",
			"file", path,
			"entities", len(reg.Entities()),
			"entrypoints", len(reg.All()),
		)
		return nil
	}
}
