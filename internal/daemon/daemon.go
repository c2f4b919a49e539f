// Package daemon wires configuration into the running watcher, command channel and admin API.
package daemon

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/dashlink/internal/channel"
	"git.home.luguber.info/inful/dashlink/internal/config"
	"git.home.luguber.info/inful/dashlink/internal/consumer"
	"git.home.luguber.info/inful/dashlink/internal/daemon/events"
	ferrors "git.home.luguber.info/inful/dashlink/internal/foundation/errors"
	"git.home.luguber.info/inful/dashlink/internal/journal"
	"git.home.luguber.info/inful/dashlink/internal/logfields"
	"git.home.luguber.info/inful/dashlink/internal/metrics"
	"git.home.luguber.info/inful/dashlink/internal/server/httpserver"
	"git.home.luguber.info/inful/dashlink/internal/version"
	"git.home.luguber.info/inful/dashlink/internal/watch"
)

// Mode selects which subsystems run.
type Mode string

const (
	ModeRun   Mode = "run"   // watcher, channel and post-build commands
	ModeWatch Mode = "watch" // watcher only
	ModeServe Mode = "serve" // channel and admin API only
)

func (m Mode) watches() bool { return m != ModeServe }
func (m Mode) serves() bool  { return m != ModeWatch }

// Status represents the current state of the daemon.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusError    Status = "error"
)

// Options tunes construction. The zero value runs everything from config.
type Options struct {
	Mode Mode
	// Consumer replaces the configured consumer.
	Consumer watch.Consumer
	Logger   *slog.Logger
}

// Daemon owns every long-running component.
type Daemon struct {
	config *config.Config
	mode   Mode
	logger *slog.Logger
	status atomic.Value // Status

	mu        sync.Mutex
	startTime time.Time
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	watchErr  chan error

	bus        *events.Bus
	registry   *prom.Registry
	recorder   metrics.Recorder
	scheduler  gocron.Scheduler
	consumer   watch.Consumer
	aggregator *watch.Aggregator
	source     *watch.Source
	channel    *channel.Channel
	postBuild  *PostBuild
	journal    journal.Store
	journalW   *journal.Writer
	httpServer *httpserver.Server
}

// New builds every component the mode needs. Nothing runs until Start.
func New(ctx context.Context, cfg *config.Config, opts Options) (d *Daemon, err error) {
	if cfg == nil {
		return nil, ferrors.ConfigError("configuration is required").Build()
	}
	if opts.Mode == "" {
		opts.Mode = ModeRun
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	d = &Daemon{
		config:   cfg,
		mode:     opts.Mode,
		logger:   logger,
		bus:      events.NewBus(),
		registry: metrics.NewRegistry(),
		watchErr: make(chan error, 1),
	}
	d.status.Store(StatusStopped)
	d.recorder = metrics.NewPrometheusRecorder(d.registry)
	defer func() {
		if err != nil {
			d.release()
			if d.journal != nil {
				_ = d.journal.Close()
			}
		}
	}()

	if cfg.Journal.Path != "" {
		store, jerr := journal.NewSQLiteStore(cfg.Journal.Path)
		if jerr != nil {
			return nil, jerr
		}
		d.journal = store
		d.journalW = journal.NewWriter(store, d.bus, logger)
	}

	if d.mode.serves() {
		if err := d.buildChannel(); err != nil {
			return nil, err
		}
	}
	if d.mode.watches() {
		if err := d.buildWatcher(ctx, opts.Consumer); err != nil {
			return nil, err
		}
	}
	if d.mode == ModeRun && len(cfg.PostBuild.Commands) > 0 {
		d.postBuild = NewPostBuild(cfg.PostBuild.Commands, d.channel, d.bus, logger)
	}

	hopts := httpserver.Options{
		AdminListen: cfg.Admin.Listen,
		Logger:      logger,
	}
	if d.channel != nil {
		hopts.Channel = d.channel
		hopts.ChannelListen = cfg.Channel.Listen
		hopts.ChannelPath = cfg.Channel.Path
	}
	if d.aggregator != nil {
		hopts.Pending = d.aggregator
	}
	if d.journal != nil {
		hopts.Journal = d.journal
	}
	if cfg.Admin.Metrics {
		hopts.MetricsHandler = metrics.HTTPHandler(d.registry)
	}
	d.httpServer = httpserver.New(hopts)
	return d, nil
}

func (d *Daemon) buildChannel() error {
	s, err := gocron.NewScheduler()
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "create scheduler").Build()
	}
	d.scheduler = s
	d.channel, err = channel.New(channel.Options{
		KeepAlive:      d.config.Channel.KeepAliveDuration(),
		WriteTimeout:   d.config.Channel.WriteTimeoutDuration(),
		RequestTimeout: d.config.Channel.RequestTimeoutDuration(),
		Scheduler:      s,
		Logger:         d.logger,
		Recorder:       d.recorder,
		Bus:            d.bus,
	})
	return err
}

func (d *Daemon) buildWatcher(ctx context.Context, override watch.Consumer) error {
	ignore, err := watch.NewIgnoreRules(d.config.Project.Root, d.config.Project.Ignore)
	if err != nil {
		return err
	}
	d.consumer = override
	if d.consumer == nil {
		if d.consumer, err = consumer.FromConfig(ctx, d.config, d.logger); err != nil {
			return err
		}
	}
	d.aggregator, err = watch.New(watch.Options{
		Root:     d.config.Project.Root,
		Debounce: d.config.Watch.DebounceDuration(),
		Consumer: d.consumer,
		Ignore:   ignore,
		Logger:   d.logger,
		Recorder: d.recorder,
		Bus:      d.bus,
	})
	if err != nil {
		return err
	}
	d.source, err = watch.NewSource(d.config.Project.Root, ignore, d.logger)
	return err
}

// Start launches listeners and background loops and returns.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.GetStatus() != StatusStopped {
		return ferrors.RuntimeError("daemon is not stopped").
			WithContext("status", string(d.GetStatus())).
			Build()
	}
	d.status.Store(StatusStarting)
	d.startTime = time.Now()
	d.logger.Info("Starting dashlink", slog.String("version", version.Version), slog.String("mode", string(d.mode)))

	if err := d.httpServer.Start(ctx); err != nil {
		d.status.Store(StatusError)
		return err
	}
	if d.scheduler != nil {
		d.scheduler.Start()
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.cancel = cancel

	// The journal writer ends when the bus closes, so it sees events published during Stop.
	if d.journalW != nil {
		d.goRun(func() { d.journalW.Run(context.Background()) })
	}
	if d.postBuild != nil {
		d.goRun(func() { d.postBuild.Run(runCtx) })
	}
	if d.source != nil {
		d.goRun(func() {
			if err := d.source.Run(runCtx, d.aggregator); err != nil {
				d.watchErr <- err
			}
		})
	}

	d.status.Store(StatusRunning)
	d.logger.Info("dashlink started",
		logfields.Root(d.config.Project.Root),
		slog.String("channel", d.config.Channel.Listen),
		slog.String("admin", d.config.Admin.Listen))
	return nil
}

func (d *Daemon) goRun(fn func()) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		fn()
	}()
}

// Run starts the daemon and blocks until ctx ends or the watcher fails, then stops it.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		d.release()
		return err
	}
	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-d.watchErr:
		d.logger.Error("Watcher stopped", logfields.Error(runErr))
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	return errors.Join(runErr, d.Stop(stopCtx))
}

// Stop shuts every component down in reverse order. Safe to call more than once.
func (d *Daemon) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch d.GetStatus() {
	case StatusStopped, StatusStopping:
		return nil
	}
	d.status.Store(StatusStopping)
	d.logger.Info("Stopping dashlink")

	var errs []error
	if d.cancel != nil {
		d.cancel()
	}
	if err := d.httpServer.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	d.release()
	d.wg.Wait()
	if d.journal != nil {
		if err := d.journal.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	d.status.Store(StatusStopped)
	d.logger.Info("dashlink stopped", slog.Duration("uptime", time.Since(d.startTime)))
	return errors.Join(errs...)
}

// release closes components in dependency order; the bus goes last so their final events are journaled.
func (d *Daemon) release() {
	if d.source != nil {
		_ = d.source.Close()
	}
	if d.aggregator != nil {
		d.aggregator.Close()
	}
	if d.channel != nil {
		if err := d.channel.Close(); err != nil {
			d.logger.Warn("Failed to close channel", logfields.Error(err))
		}
	}
	if d.scheduler != nil {
		if err := d.scheduler.Shutdown(); err != nil {
			d.logger.Debug("Scheduler shutdown", logfields.Error(err))
		}
		d.scheduler = nil
	}
	if d.consumer != nil {
		if err := consumer.Close(d.consumer); err != nil {
			d.logger.Warn("Failed to close consumer", logfields.Error(err))
		}
		d.consumer = nil
	}
	d.bus.Close()
}

// GetStatus returns the current daemon status.
func (d *Daemon) GetStatus() Status {
	status, ok := d.status.Load().(Status)
	if !ok {
		return StatusError
	}
	return status
}

func (d *Daemon) GetStartTime() time.Time { return d.startTime }

// Bus exposes the event bus for subscribers outside the daemon.
func (d *Daemon) Bus() *events.Bus { return d.bus }

// Aggregator is nil in serve mode.
func (d *Daemon) Aggregator() *watch.Aggregator { return d.aggregator }

// Channel is nil in watch mode.
func (d *Daemon) Channel() *channel.Channel { return d.channel }

// HTTPServer exposes the bound listener addresses.
func (d *Daemon) HTTPServer() *httpserver.Server { return d.httpServer }

// Journal is nil when the journal is disabled.
func (d *Daemon) Journal() journal.Store { return d.journal }
