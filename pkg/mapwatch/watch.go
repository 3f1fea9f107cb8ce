// Package mapwatch reloads a JSON map file whenever it changes on disk.
package mapwatch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/crystal-mush/mudmapper/pkg/logging"
	"github.com/crystal-mush/mudmapper/pkg/worldmap"
)

// DefaultSettle is how long the file must stay quiet before a reload.
const DefaultSettle = 100 * time.Millisecond

// Handler receives each reloaded map, or the error that prevented it.
type Handler func(g *worldmap.Graph, err error)

// Options configures Watch.
type Options struct {
	Settle  time.Duration
	Initial bool // load once before waiting for changes
	Logger  *zap.Logger
}

// Watch calls fn every time the map file at path is written, created or
// renamed into place, until ctx is cancelled. Bursts of events within
// Settle produce one reload. The directory is watched rather than the file
// so that atomic replacement is seen.
func Watch(ctx context.Context, path string, opts Options, fn Handler) error {
	if opts.Settle <= 0 {
		opts.Settle = DefaultSettle
	}
	log := logging.OrNop(opts.Logger).Named("mapwatch").With(zap.String("path", path))

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("mapwatch: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("mapwatch: watch %s: %w", dir, err)
	}
	name := filepath.Base(path)

	reload := func() {
		g, err := worldmap.LoadJSON(path, opts.Logger)
		if errors.Is(err, fs.ErrNotExist) {
			log.Debug("map file gone")
			return
		}
		if err != nil {
			log.Warn("reload failed", zap.Error(err))
		}
		fn(g, err)
	}
	if opts.Initial {
		reload()
	}

	timer := time.NewTimer(opts.Settle)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			log.Debug("map file changed", zap.Stringer("op", event.Op))
			timer.Reset(opts.Settle)

		case <-timer.C:
			reload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("watcher error", zap.Error(err))
		}
	}
}
