package content

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeCallback is called after a watched page was reloaded or dropped.
type ChangeCallback func(slug string)

// Watch reloads pages whose override file changes under the content
// directory until ctx is cancelled. Renames trigger a debounced full reset
// because fsnotify only reports the old name.
func Watch(ctx context.Context, pages *Pages, dir *Dir, logger *slog.Logger, cb ChangeCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, dir.Root()); err != nil {
		return err
	}
	logger.Info("content watcher: started", slog.String("root", dir.Root()))

	var resetTimer *time.Timer
	var resetCh <-chan time.Time
	scheduleReset := func() {
		if resetTimer == nil {
			resetTimer = time.NewTimer(200 * time.Millisecond)
			resetCh = resetTimer.C
		} else {
			resetTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if resetTimer != nil {
				resetTimer.Stop()
			}
			logger.Info("content watcher: stopped")
			return nil

		case <-resetCh:
			pages.Forget()
			logger.Debug("content watcher: cache reset")
			if cb != nil {
				cb("")
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("content watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					continue
				}
			}
			slug, ok := dir.SlugOf(ev.Name)
			if !ok {
				continue
			}
			switch {
			case ev.Op&fsnotify.Rename != 0:
				scheduleReset()
			case ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove) != 0:
				if pages.Reload(slug) {
					logger.Debug("content watcher: reloaded", slog.String("slug", slug))
					if cb != nil {
						cb(slug)
					}
				}
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("content watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
