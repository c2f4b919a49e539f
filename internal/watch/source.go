package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	ferrors "git.home.luguber.info/inful/dashlink/internal/foundation/errors"
	"git.home.luguber.info/inful/dashlink/internal/logfields"
)

// Observer consumes change events in delivery order. *Aggregator implements it.
type Observer interface {
	Observe(ev ChangeEvent) bool
}

// Source watches a project tree recursively with fsnotify. Directories created after
// start are added to the watch as they appear.
type Source struct {
	root    string
	ignore  *IgnoreRules
	logger  *slog.Logger
	watcher *fsnotify.Watcher
}

// NewSource registers every non-ignored directory below root.
func NewSource(root string, ignore *IgnoreRules, logger *slog.Logger) (*Source, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "resolve project root").
			WithContext("root", root).
			Build()
	}
	if ignore == nil {
		ignore = DefaultIgnoreRules()
	}
	if logger == nil {
		logger = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "create file watcher").Build()
	}
	s := &Source{root: abs, ignore: ignore, logger: logger, watcher: w}
	if err := s.addTree(abs, nil); err != nil {
		_ = w.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the watcher when Run was never started. Closing twice is harmless.
func (s *Source) Close() error { return s.watcher.Close() }

// WatchList returns the directories currently registered.
func (s *Source) WatchList() []string { return s.watcher.WatchList() }

// addTree watches dir and its subdirectories. When found is non-nil it receives every
// regular file met on the way, so files created before the watch existed are not lost.
func (s *Source) addTree(dir string, found func(path string)) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return ferrors.WrapError(err, ferrors.CategoryFileSystem, "walk project tree").
					WithContext("path", path).
					Build()
			}
			return nil
		}
		if !d.IsDir() {
			if found != nil && d.Type().IsRegular() && !s.ignore.Match(path) {
				found(path)
			}
			return nil
		}
		if path != s.root && (d.Name() == ".git" || s.ignore.MatchDir(path)) {
			return filepath.SkipDir
		}
		if err := s.watcher.Add(path); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryFileSystem, "watch directory").
				WithContext("path", path).
				Build()
		}
		return nil
	})
}

// Run forwards events to obs until ctx ends or the watcher fails. It closes the watcher.
func (s *Source) Run(ctx context.Context, obs Observer) error {
	defer func() { _ = s.watcher.Close() }()
	s.logger.Info("Watching project", logfields.Root(s.root), logfields.Count(len(s.watcher.WatchList())))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return nil
			}
			change := FromFSNotify(ev)
			obs.Observe(change)
			if change.Kind == KindCreated {
				s.followDir(ev.Name, obs)
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("File watcher error", logfields.Error(err))
		}
	}
}

// followDir starts watching a newly created directory and reports files already inside it.
func (s *Source) followDir(path string, obs Observer) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() || s.ignore.MatchDir(path) {
		return
	}
	err = s.addTree(path, func(file string) {
		obs.Observe(ChangeEvent{Kind: KindCreated, Paths: []string{file}})
	})
	if err != nil {
		s.logger.Warn("Failed to watch new directory", logfields.Path(path), logfields.Error(err))
	}
}
