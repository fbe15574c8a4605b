// Package watch feeds file system events into the update scheduler so the
// index stays current while files are edited.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/standardbeagle/reflens/internal/config"
	"github.com/standardbeagle/reflens/internal/debug"
	"github.com/standardbeagle/reflens/internal/engine"
	"github.com/standardbeagle/reflens/internal/types"
)

// Watcher monitors the workspace and notifies the engine of changes.
type Watcher struct {
	watcher *fsnotify.Watcher
	cfg     *config.Config
	eng     *engine.Engine
	exclude types.ExcludePredicate

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher creates a watcher bound to an engine.
func NewWatcher(cfg *config.Config, eng *engine.Engine) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Watcher{
		watcher: watcher,
		cfg:     cfg,
		eng:     eng,
		exclude: cfg.ExcludePredicate(),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start adds watches for every directory under the project root and begins
// processing events.
func (w *Watcher) Start() error {
	root := w.cfg.Project.Root
	debug.LogWatch("starting file watcher for %s\n", root)

	if err := w.addWatches(root); err != nil {
		return err
	}

	w.wg.Add(1)
	go w.processEvents()
	return nil
}

// Stop shuts the watcher down and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.cancel()
	w.watcher.Close()
	w.wg.Wait()
}

func (w *Watcher) addWatches(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if w.exclude(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			debug.LogWatch("failed to watch %s: %v\n", path, err)
		}
		return nil
	})
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			debug.LogWatch("watch error: %v\n", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name

	// New directories need their own watch before events under them arrive.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if !w.exclude(path) && !strings.HasPrefix(filepath.Base(path), ".") {
				_ = w.addWatches(path)
			}
			return
		}
	}

	if !w.eligible(path) {
		return
	}
	file := types.FileID(path)

	switch {
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		debug.LogWatch("removed: %s\n", path)
		w.eng.NotifyRemove(file)

	case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
		debug.LogWatch("changed: %s\n", path)
		w.eng.NotifyChange(file)
	}
}

func (w *Watcher) eligible(path string) bool {
	if !w.cfg.AllowsExtension(path) {
		return false
	}
	return !w.exclude(path)
}
