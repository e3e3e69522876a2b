package inference

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchCheckpoint reloads the engine whenever the checkpoint file is
// replaced, until ctx is cancelled. The containing directory is watched
// rather than the file itself because checkpoint saves land via rename,
// which would drop a watch on the old inode. Reload failures are logged
// and the watch keeps running; the engine continues serving the last
// good state.
func (e *Engine) WatchCheckpoint(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create checkpoint watcher: %w", err)
	}
	defer watcher.Close()

	// The path is captured once: a Reload that moves the engine to a
	// different file does not retarget an already running watch.
	path := *e.ckptPath.Load()
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	target := filepath.Base(path)
	e.logger.Info("watching checkpoint", "path", path)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := e.Reload(path); err != nil {
				e.logger.Error("checkpoint reload failed", "path", path, "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			e.logger.Error("checkpoint watcher error", "error", err)
		}
	}
}
