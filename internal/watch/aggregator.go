package watch

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"git.home.luguber.info/inful/dashlink/internal/daemon/events"
	ferrors "git.home.luguber.info/inful/dashlink/internal/foundation/errors"
	"git.home.luguber.info/inful/dashlink/internal/logfields"
	"git.home.luguber.info/inful/dashlink/internal/metrics"
	"git.home.luguber.info/inful/dashlink/internal/util/sets"
)

// Consumer receives settled batches of project-relative, forward-slash paths.
type Consumer interface {
	ApplyUpdates(ctx context.Context, paths []string) error
	ApplyDeletes(ctx context.Context, paths []string) error
}

// StatFunc is os.Stat; tests replace it to simulate files vanishing mid-flush.
type StatFunc func(name string) (fs.FileInfo, error)

// Options configures an Aggregator. Root, Debounce and Consumer are required.
type Options struct {
	Root     string
	Debounce time.Duration
	Consumer Consumer
	Ignore   *IgnoreRules
	Logger   *slog.Logger
	Recorder metrics.Recorder
	Bus      *events.Bus
	Stat     StatFunc
}

// Snapshot is a sorted copy of the pending sets.
type Snapshot struct {
	Updates []string `json:"updates"`
	Deletes []string `json:"deletes"`
}

// FlushResult describes one flush cycle.
type FlushResult struct {
	Updated []string // passed to ApplyUpdates
	Deleted []string // passed to ApplyDeletes
	Dropped []string // pending updates that were not regular files or had vanished
	Aborted bool     // a pending update vanished; nothing was dispatched
}

// Dispatched reports whether the consumer was called.
func (r FlushResult) Dispatched() bool {
	return len(r.Updated) > 0 || len(r.Deleted) > 0
}

// Aggregator owns the pending update/delete sets and the single debounce timer.
type Aggregator struct {
	root     string
	debounce time.Duration
	consumer Consumer
	ignore   *IgnoreRules
	logger   *slog.Logger
	recorder metrics.Recorder
	bus      *events.Bus
	stat     StatFunc

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	toUpdate sets.Set[string]
	toDelete sets.Set[string]
	timer    *time.Timer
	closed   bool

	// flushMu serializes flush cycles; mu is never held while the consumer runs.
	flushMu sync.Mutex
}

// New validates opts and returns an idle Aggregator.
func New(opts Options) (*Aggregator, error) {
	if opts.Consumer == nil {
		return nil, ferrors.ValidationError("consumer is required").Build()
	}
	if opts.Debounce <= 0 {
		return nil, ferrors.ValidationError("debounce must be > 0").
			WithContext("debounce", opts.Debounce.String()).
			Build()
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "resolve project root").
			WithContext("root", opts.Root).
			Build()
	}
	if opts.Ignore == nil {
		opts.Ignore = DefaultIgnoreRules()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Stat == nil {
		opts.Stat = os.Stat
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Aggregator{
		root:     root,
		debounce: opts.Debounce,
		consumer: opts.Consumer,
		ignore:   opts.Ignore,
		logger:   opts.Logger,
		recorder: metrics.OrNoop(opts.Recorder),
		bus:      opts.Bus,
		stat:     opts.Stat,
		ctx:      ctx,
		cancel:   cancel,
		toUpdate: sets.New[string](),
		toDelete: sets.New[string](),
	}, nil
}

// Root returns the absolute project root.
func (a *Aggregator) Root() string { return a.root }

// Observe records ev in the pending sets and re-arms the debounce timer when at least one
// path was recorded. Ignored kinds, ignored paths and paths outside the root change nothing.
func (a *Aggregator) Observe(ev ChangeEvent) bool {
	if ev.Kind == KindIgnored {
		a.recorder.IncEvent(ev.Kind.String(), false)
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return false
	}

	recorded := false
	for _, p := range ev.Paths {
		if a.ignore.Match(p) {
			continue
		}
		rel, ok := a.relative(p)
		if !ok {
			a.logger.Debug("Ignoring path outside project root", logfields.Path(p))
			continue
		}
		if ev.Kind == KindRemoved {
			a.toDelete.Add(rel)
			a.toUpdate.Delete(rel)
		} else {
			a.toUpdate.Add(rel)
			a.toDelete.Delete(rel)
		}
		recorded = true
	}
	if recorded {
		a.rearmLocked()
	}
	a.recorder.IncEvent(ev.Kind.String(), recorded)
	return recorded
}

// relative converts p to the project-relative, forward-slash form used as the set key.
func (a *Aggregator) relative(p string) (string, bool) {
	if !filepath.IsAbs(p) {
		p = filepath.Join(a.root, p)
	}
	rel, ok := relativeTo(a.root, p)
	if !ok {
		return "", false
	}
	return strings.ReplaceAll(filepath.ToSlash(rel), `\`, "/"), true
}

// rearmLocked cancels and reschedules the single debounce timer.
func (a *Aggregator) rearmLocked() {
	if a.timer == nil {
		a.timer = time.AfterFunc(a.debounce, a.onTimer)
		return
	}
	a.timer.Stop()
	a.timer.Reset(a.debounce)
}

func (a *Aggregator) onTimer() {
	if _, err := a.Flush(a.ctx); err != nil {
		a.logger.Error("Build consumer rejected batch", logfields.Error(err))
	}
}

// Pending returns sorted copies of both pending sets.
func (a *Aggregator) Pending() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Snapshot{Updates: sets.Sorted(a.toUpdate), Deletes: sets.Sorted(a.toDelete)}
}

// Flush takes the pending sets and dispatches them: updates first, then deletes.
//
// Pending updates that are not regular files are dropped. A pending update that cannot be
// stat'ed aborts the cycle before any dispatch; the rest of the snapshot returns to the
// pending sets (later observations win) and the timer is re-armed. Otherwise the snapshot
// is discarded after dispatch, and consumer errors are joined and returned.
func (a *Aggregator) Flush(ctx context.Context) (FlushResult, error) {
	a.flushMu.Lock()
	defer a.flushMu.Unlock()

	start := time.Now()
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return FlushResult{}, nil
	}
	updates, deletes := a.toUpdate, a.toDelete
	a.toUpdate, a.toDelete = sets.New[string](), sets.New[string]()
	a.mu.Unlock()

	var result FlushResult
	if updates.Len() == 0 && deletes.Len() == 0 {
		a.recorder.IncFlush(metrics.FlushEmpty)
		return result, nil
	}

	candidates := sets.Sorted(updates)
	for i, p := range candidates {
		info, err := a.stat(filepath.Join(a.root, filepath.FromSlash(p)))
		if err != nil {
			result.Dropped = append(result.Dropped, p)
			result.Aborted = true
			remaining := append(slices.Clone(result.Updated), candidates[i+1:]...)
			result.Updated = nil
			a.requeue(remaining, sets.Sorted(deletes))
			a.logger.Debug("Pending update vanished, deferring batch", logfields.Path(p))
			a.finish(ctx, start, result, nil)
			return result, nil
		}
		if !info.Mode().IsRegular() {
			result.Dropped = append(result.Dropped, p)
			continue
		}
		result.Updated = append(result.Updated, p)
	}
	result.Deleted = sets.Sorted(deletes)

	var errs []error
	if len(result.Updated) > 0 {
		a.logger.Info("Dispatching updates", logfields.Count(len(result.Updated)), logfields.Paths(result.Updated))
		if err := a.consumer.ApplyUpdates(ctx, result.Updated); err != nil {
			errs = append(errs, ferrors.WrapError(err, ferrors.CategoryConsumer, "apply updates").
				WithContext("count", len(result.Updated)).
				Build())
		}
		a.recorder.AddDispatchedPaths("update", len(result.Updated))
	}
	if len(result.Deleted) > 0 && a.canceled(ctx) {
		a.logger.Warn("Flush canceled, deletes not dispatched", logfields.Count(len(result.Deleted)))
		errs = append(errs, ferrors.RuntimeError("flush canceled before deletes").
			WithContext("count", len(result.Deleted)).
			Build())
		result.Deleted = nil
	}
	if len(result.Deleted) > 0 {
		a.logger.Info("Dispatching deletes", logfields.Count(len(result.Deleted)), logfields.Paths(result.Deleted))
		if err := a.consumer.ApplyDeletes(ctx, result.Deleted); err != nil {
			errs = append(errs, ferrors.WrapError(err, ferrors.CategoryConsumer, "apply deletes").
				WithContext("count", len(result.Deleted)).
				Build())
		}
		a.recorder.AddDispatchedPaths("delete", len(result.Deleted))
	}

	err := errors.Join(errs...)
	a.finish(ctx, start, result, err)
	return result, err
}

// canceled reports whether ctx ended or Close was called.
func (a *Aggregator) canceled(ctx context.Context) bool {
	return ctx.Err() != nil || a.ctx.Err() != nil
}

// requeue merges an aborted snapshot back without overriding newer observations.
func (a *Aggregator) requeue(updates, deletes []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	for _, p := range updates {
		if !a.toUpdate.Has(p) && !a.toDelete.Has(p) {
			a.toUpdate.Add(p)
		}
	}
	for _, p := range deletes {
		if !a.toUpdate.Has(p) && !a.toDelete.Has(p) {
			a.toDelete.Add(p)
		}
	}
	if a.toUpdate.Len() > 0 || a.toDelete.Len() > 0 {
		a.rearmLocked()
	}
}

func (a *Aggregator) finish(ctx context.Context, start time.Time, result FlushResult, err error) {
	elapsed := time.Since(start)
	a.recorder.ObserveFlushDuration(elapsed)
	switch {
	case result.Aborted:
		a.recorder.IncFlush(metrics.FlushAborted)
	case err != nil:
		a.recorder.IncFlush(metrics.FlushFailed)
	case result.Dispatched():
		a.recorder.IncFlush(metrics.FlushDispatched)
	default:
		a.recorder.IncFlush(metrics.FlushEmpty)
	}

	if a.bus == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	evt := events.BatchFlushed{
		Updated:  result.Updated,
		Deleted:  result.Deleted,
		Aborted:  result.Aborted,
		Err:      err,
		Duration: elapsed,
		At:       time.Now(),
	}
	if perr := a.bus.Publish(pubCtx, evt); perr != nil {
		a.logger.Warn("Failed to publish flush event", logfields.Error(perr))
	}
}

// Close stops the debounce timer, cancels a running flush and waits for it to return, so
// the consumer sees no call after Close. Pending paths are dropped.
func (a *Aggregator) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	if a.timer != nil {
		a.timer.Stop()
	}
	a.cancel()
	a.mu.Unlock()

	a.flushMu.Lock()
	//nolint:staticcheck // waits for an in-flight cycle
	a.flushMu.Unlock()
}
