// Package watch reruns a build whenever one of the files it read changes.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// BuildFunc runs one build and returns the files it depends on. A failed
// build may still return files; nil keeps the previous set.
type BuildFunc func(ctx context.Context) ([]string, error)

// Option configures Run.
type Option func(*watcher)

// WithLogger sets the logger for change and failure reports.
func WithLogger(l zerolog.Logger) Option {
	return func(w *watcher) {
		w.logger = l
	}
}

// WithDelay sets how long changes must settle before a rebuild.
func WithDelay(d time.Duration) Option {
	return func(w *watcher) {
		w.delay = d
	}
}

type watcher struct {
	logger zerolog.Logger
	delay  time.Duration

	fs    *fsnotify.Watcher
	files map[string]bool
	dirs  map[string]bool
}

// Run builds once, then again after every settled change to the returned
// files, until ctx is done. Build failures are logged and do not end the
// loop.
func Run(ctx context.Context, build BuildFunc, opts ...Option) error {
	w := &watcher{
		logger: zerolog.Nop(),
		delay:  250 * time.Millisecond,
		files:  make(map[string]bool),
		dirs:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(w)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer fsw.Close()
	w.fs = fsw

	w.rebuild(ctx, build)

	var settle <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.files[filepath.Clean(ev.Name)] || ev.Op == fsnotify.Chmod {
				continue
			}
			w.logger.Debug().Str("file", ev.Name).Str("op", ev.Op.String()).Msg("source changed")
			settle = time.After(w.delay)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("watch error")

		case <-settle:
			settle = nil
			w.rebuild(ctx, build)
		}
	}
}

func (w *watcher) rebuild(ctx context.Context, build BuildFunc) {
	files, err := build(ctx)
	if err != nil {
		w.logger.Error().Err(err).Msg("build failed")
	}
	if files != nil {
		w.track(files)
	}
}

// track replaces the watched file set. Parent directories are watched
// rather than the files so editors that replace files by rename are seen.
func (w *watcher) track(files []string) {
	w.files = make(map[string]bool, len(files))
	dirs := make(map[string]bool)
	for _, f := range files {
		f = filepath.Clean(f)
		w.files[f] = true
		dirs[filepath.Dir(f)] = true
	}

	for d := range w.dirs {
		if !dirs[d] {
			_ = w.fs.Remove(d)
			delete(w.dirs, d)
		}
	}
	for d := range dirs {
		if w.dirs[d] {
			continue
		}
		if err := w.fs.Add(d); err != nil {
			w.logger.Warn().Err(err).Str("dir", d).Msg("cannot watch directory")
			continue
		}
		w.dirs[d] = true
	}
	w.logger.Info().Int("files", len(w.files)).Int("dirs", len(w.dirs)).Msg("watching for changes")
}
