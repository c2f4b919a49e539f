// Package httpserver runs the websocket channel listener and the admin API listener.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	ferrors "git.home.luguber.info/inful/dashlink/internal/foundation/errors"
	"git.home.luguber.info/inful/dashlink/internal/logfields"
	"git.home.luguber.info/inful/dashlink/internal/server/handlers"
	smw "git.home.luguber.info/inful/dashlink/internal/server/middleware"
)

// Server manages the channel and admin HTTP servers.
type Server struct {
	channelServer *http.Server
	adminServer   *http.Server
	opts          Options
	logger        *slog.Logger
	errorAdapter  *ferrors.HTTPErrorAdapter

	monitoringHandlers *handlers.MonitoringHandlers
	apiHandlers        *handlers.APIHandlers

	channelAddr net.Addr
	adminAddr   net.Addr

	mchain func(http.Handler) http.Handler
}

// New constructs the server wiring. Nothing listens until Start.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ChannelPath == "" {
		opts.ChannelPath = "/"
	}

	s := &Server{
		opts:         opts,
		logger:       logger,
		errorAdapter: ferrors.NewHTTPErrorAdapter(logger),
	}

	var status handlers.ChannelStatus
	var commander handlers.Commander
	if opts.Channel != nil {
		status, commander = opts.Channel, opts.Channel
	}
	s.monitoringHandlers = handlers.NewMonitoringHandlers(status, opts.Pending != nil, logger)
	s.apiHandlers = handlers.NewAPIHandlers(commander, opts.Pending, opts.Journal, logger)
	s.mchain = smw.Chain(logger, s.errorAdapter)
	return s
}

// Start binds every configured listener first so a port conflict fails before anything serves.
func (s *Server) Start(ctx context.Context) error {
	type preBind struct {
		name string
		addr string
		ln   net.Listener
	}
	var binds []preBind
	if s.opts.Channel != nil && s.opts.ChannelListen != "" {
		binds = append(binds, preBind{name: "channel", addr: s.opts.ChannelListen})
	}
	if s.opts.AdminListen != "" {
		binds = append(binds, preBind{name: "admin", addr: s.opts.AdminListen})
	}

	var bindErrs []error
	lc := net.ListenConfig{}
	for i := range binds {
		ln, err := lc.Listen(ctx, "tcp", binds[i].addr)
		if err != nil {
			bindErrs = append(bindErrs, fmt.Errorf("%s %s: %w", binds[i].name, binds[i].addr, err))
			continue
		}
		binds[i].ln = ln
	}
	if len(bindErrs) > 0 {
		for _, b := range binds {
			if b.ln != nil {
				_ = b.ln.Close()
			}
		}
		return ferrors.WrapError(errors.Join(bindErrs...), ferrors.CategoryNetwork, "http startup failed").Build()
	}

	for _, b := range binds {
		switch b.name {
		case "channel":
			s.startChannelServer(b.ln)
		case "admin":
			s.startAdminServer(b.ln)
		}
	}
	return nil
}

func (s *Server) startChannelServer(ln net.Listener) {
	mux := http.NewServeMux()
	mux.Handle(s.opts.ChannelPath, s.opts.Channel)
	// No read/write timeouts: the websocket connection is long-lived.
	s.channelServer = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	s.channelAddr = ln.Addr()
	s.logger.Info("Channel listening", logfields.Addr(ln.Addr().String()), logfields.Path(s.opts.ChannelPath))
	s.serve("channel", s.channelServer, ln)
}

func (s *Server) startAdminServer(ln net.Listener) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.monitoringHandlers.HandleHealthCheck)
	mux.HandleFunc("/healthz", s.monitoringHandlers.HandleHealthCheck)
	if s.opts.MetricsHandler != nil {
		mux.Handle("/metrics", s.opts.MetricsHandler)
	}
	mux.HandleFunc("/api/pending", s.apiHandlers.HandlePending)
	mux.HandleFunc("/api/command", s.apiHandlers.HandleCommand)
	mux.HandleFunc("/api/journal", s.apiHandlers.HandleJournal)

	// WriteTimeout stays above a typical command round trip.
	s.adminServer = &http.Server{Handler: s.mchain(mux), ReadTimeout: 30 * time.Second, WriteTimeout: 2 * time.Minute, IdleTimeout: 120 * time.Second}
	s.adminAddr = ln.Addr()
	s.logger.Info("Admin API listening", logfields.Addr(ln.Addr().String()))
	s.serve("admin", s.adminServer, ln)
}

func (s *Server) serve(kind string, srv *http.Server, ln net.Listener) {
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(fmt.Sprintf("%s server error", kind), logfields.Error(err))
		}
	}()
}

// ChannelAddr returns the bound channel address, or nil before Start.
func (s *Server) ChannelAddr() net.Addr { return s.channelAddr }

// AdminAddr returns the bound admin address, or nil before Start.
func (s *Server) AdminAddr() net.Addr { return s.adminAddr }

// Stop shuts the servers down, admin first.
func (s *Server) Stop(ctx context.Context) error {
	var errs []error
	if s.adminServer != nil {
		if err := s.adminServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("admin server shutdown: %w", err))
		}
	}
	if s.channelServer != nil {
		// Hijacked websocket connections are not tracked by Shutdown; the channel closes them itself.
		if err := s.channelServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("channel server shutdown: %w", err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	s.logger.Info("HTTP servers stopped")
	return nil
}
