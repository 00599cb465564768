package syncer

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/controlVector/cv-git/pkg/types"
)

// Watch runs incremental syncs when the working tree changes, with a
// debounce window so bursts of writes collapse into one tick. Blocks
// until the context is cancelled.
func (s *Syncer) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := s.addWatchDirs(watcher); err != nil {
		return err
	}

	debounce := time.Duration(s.cfg.Sync.DebounceMillis) * time.Millisecond
	if debounce <= 0 {
		debounce = 2 * time.Second
	}

	var timer *time.Timer
	fire := make(chan struct{}, 1)

	s.logger.Info("watching for changes", "debounce", debounce)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			rel, err := filepath.Rel(s.paths.Root, ev.Name)
			if err != nil || s.excluded(filepath.ToSlash(rel)) {
				continue
			}
			// New directories need their own watch.
			if ev.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					watcher.Add(ev.Name)
				}
			}
			if timer == nil {
				timer = time.AfterFunc(debounce, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			} else {
				timer.Reset(debounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("watch error", "error", err)

		case <-fire:
			timer = nil
			if _, err := s.Sync(ctx, types.SyncIncremental); err != nil {
				s.logger.Error("auto-sync failed", "error", err)
			}
		}
	}
}

// addWatchDirs registers every non-excluded directory. fsnotify does
// not recurse.
func (s *Syncer) addWatchDirs(watcher *fsnotify.Watcher) error {
	return filepath.WalkDir(s.paths.Root, func(abs string, entry os.DirEntry, err error) error {
		if err != nil || !entry.IsDir() {
			return err
		}
		rel, relErr := filepath.Rel(s.paths.Root, abs)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if entry.Name() == ".git" || entry.Name() == ".cv" || (rel != "." && s.excluded(rel+"/")) {
			return filepath.SkipDir
		}
		return watcher.Add(abs)
	})
}
