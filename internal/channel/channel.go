// Package channel holds the single websocket connection to the external command processor.
//
// One peer connects at a time. Commands are framed with a fresh correlation id and
// resolved by the matching reply, in whatever order replies arrive. While a peer is
// connected a keep-alive job sends an empty frame on a fixed interval.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"git.home.luguber.info/inful/dashlink/internal/daemon/events"
	ferrors "git.home.luguber.info/inful/dashlink/internal/foundation/errors"
	"git.home.luguber.info/inful/dashlink/internal/logfields"
	"git.home.luguber.info/inful/dashlink/internal/metrics"
)

// State is the connection state.
type State int

const (
	StateClosed State = iota
	StateOpen
)

func (s State) String() string {
	if s == StateOpen {
		return "open"
	}
	return "closed"
}

// Result is the body of a matching reply.
type Result struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// Options configures a Channel. Zero values take the defaults noted per field.
type Options struct {
	KeepAlive      time.Duration // 25s
	WriteTimeout   time.Duration // 10s
	RequestTimeout time.Duration // 0 disables
	// Scheduler runs the keep-alive job. When nil the channel creates and owns one.
	Scheduler   gocron.Scheduler
	Logger      *slog.Logger
	Recorder    metrics.Recorder
	Bus         *events.Bus
	NewID       func() string // uuid.NewString
	CheckOrigin func(r *http.Request) bool
}

// Channel is an http.Handler that accepts the peer and a client for sending it commands.
type Channel struct {
	keepAlive      time.Duration
	writeTimeout   time.Duration
	requestTimeout time.Duration
	scheduler      gocron.Scheduler
	ownsScheduler  bool
	logger         *slog.Logger
	recorder       metrics.Recorder
	bus            *events.Bus
	newID          func() string
	upgrader       websocket.Upgrader

	closeOnce sync.Once
	closeErr  error

	mu        sync.Mutex
	state     State
	accepting bool
	shutdown  bool
	conn      *connection
	pending   map[string]*pendingRequest
}

type connection struct {
	ws         *websocket.Conn
	remoteAddr string
	openedAt   time.Time
	writeMu    sync.Mutex
	heartbeat  uuid.UUID
	closeOnce  sync.Once
}

func (k *connection) write(data []byte, timeout time.Duration) error {
	k.writeMu.Lock()
	defer k.writeMu.Unlock()
	if timeout > 0 {
		_ = k.ws.SetWriteDeadline(time.Now().Add(timeout))
	}
	return k.ws.WriteMessage(websocket.TextMessage, data)
}

type outcome struct {
	result Result
	err    error
}

type pendingRequest struct {
	id        string
	command   string
	createdAt time.Time
	timer     *time.Timer
	once      sync.Once
	done      chan struct{}
	out       outcome
}

// settle records the outcome once and reports whether this call did.
func (p *pendingRequest) settle(o outcome) bool {
	settled := false
	p.once.Do(func() {
		p.out = o
		settled = true
		close(p.done)
	})
	return settled
}

// New returns a closed Channel ready to accept a peer.
func New(opts Options) (*Channel, error) {
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = 25 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	c := &Channel{
		keepAlive:      opts.KeepAlive,
		writeTimeout:   opts.WriteTimeout,
		requestTimeout: opts.RequestTimeout,
		scheduler:      opts.Scheduler,
		logger:         opts.Logger,
		recorder:       metrics.OrNoop(opts.Recorder),
		bus:            opts.Bus,
		newID:          opts.NewID,
		upgrader:       websocket.Upgrader{CheckOrigin: opts.CheckOrigin},
		pending:        make(map[string]*pendingRequest),
	}
	if c.scheduler == nil {
		s, err := gocron.NewScheduler()
		if err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryInternal, "create keep-alive scheduler").Build()
		}
		s.Start()
		c.scheduler = s
		c.ownsScheduler = true
	}
	return c, nil
}

// State reports whether a peer is connected.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RemoteAddr returns the connected peer's address, or "" when closed.
func (c *Channel) RemoteAddr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ""
	}
	return c.conn.remoteAddr
}

// PendingCount returns the number of requests awaiting a reply.
func (c *Channel) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// ServeHTTP upgrades the peer and serves it until the connection closes. A second peer
// is refused with 409 while one is connected.
func (c *Channel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	switch {
	case c.shutdown:
		c.mu.Unlock()
		http.Error(w, ErrShutdown.Message(), http.StatusServiceUnavailable)
		return
	case c.state == StateOpen || c.accepting:
		c.mu.Unlock()
		c.logger.Warn("Refusing second peer", logfields.RemoteAddr(r.RemoteAddr))
		http.Error(w, "a peer is already connected", http.StatusConflict)
		return
	}
	c.accepting = true
	c.mu.Unlock()

	conn, err := c.accept(w, r)

	c.mu.Lock()
	c.accepting = false
	closed := c.shutdown
	if err == nil && !closed {
		c.conn = conn
		c.state = StateOpen
	}
	c.mu.Unlock()
	if err != nil {
		c.logger.Warn("WebSocket upgrade failed", logfields.RemoteAddr(r.RemoteAddr), logfields.Error(err))
		return
	}
	if closed {
		// Close ran during the upgrade and saw no peer to disconnect.
		c.discard(conn)
		return
	}

	c.recorder.SetChannelOpen(true)
	c.logger.Info("WebSocket connection established", logfields.RemoteAddr(conn.remoteAddr))
	c.publish(events.ChannelOpened{RemoteAddr: conn.remoteAddr, At: conn.openedAt})

	c.readLoop(conn)
}

func (c *Channel) accept(w http.ResponseWriter, r *http.Request) (*connection, error) {
	ws, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	conn := &connection{ws: ws, remoteAddr: r.RemoteAddr, openedAt: time.Now()}
	job, err := c.scheduler.NewJob(
		gocron.DurationJob(c.keepAlive),
		gocron.NewTask(c.sendKeepAlive, conn),
		gocron.WithName("channel-keepalive"),
	)
	if err != nil {
		_ = ws.Close()
		return nil, ferrors.WrapError(err, ferrors.CategoryInternal, "schedule keep-alive").Build()
	}
	conn.heartbeat = job.ID()
	return conn, nil
}

// discard drops a connection that was never published as the current peer.
func (c *Channel) discard(conn *connection) {
	if err := c.scheduler.RemoveJob(conn.heartbeat); err != nil {
		c.logger.Debug("Keep-alive job already gone", logfields.Error(err))
	}
	conn.writeMu.Lock()
	_ = conn.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, ErrShutdown.Message()), time.Now().Add(time.Second))
	conn.writeMu.Unlock()
	_ = conn.ws.Close()
	c.logger.Info("Dropped peer accepted during shutdown", logfields.RemoteAddr(conn.remoteAddr))
}

// sendKeepAlive writes the empty keep-alive frame. No reply is expected.
func (c *Channel) sendKeepAlive(conn *connection) {
	err := conn.write([]byte{}, c.writeTimeout)
	c.recorder.IncHeartbeat(err == nil)
	if err != nil {
		c.logger.Debug("Keep-alive write failed", logfields.RemoteAddr(conn.remoteAddr), logfields.Error(err))
	}
}

func (c *Channel) readLoop(conn *connection) {
	defer c.closeConn(conn)
	for {
		mt, data, err := conn.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("WebSocket read ended", logfields.RemoteAddr(conn.remoteAddr), logfields.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage {
			c.anomaly("binary_frame", "", slog.Int("bytes", len(data)))
			continue
		}
		c.handleFrame(data)
	}
}

func (c *Channel) handleFrame(data []byte) {
	if isKeepAlive(data) {
		return
	}
	reply, err := decodeReply(data)
	if err != nil {
		c.anomaly("unparsable", "", logfields.Error(err))
		return
	}
	id := reply.Header.RequestID
	if id == "" {
		c.anomaly("missing_request_id", "")
		return
	}
	req := c.take(id)
	if req == nil {
		c.anomaly("unknown_request", id)
		return
	}
	if reply.Body == nil {
		c.resolve(req, outcome{err: commandError(id, ErrProtocol)})
		return
	}
	c.resolve(req, outcome{result: Result{Message: reply.Body.StatusMessage, Status: reply.Body.StatusCode}})
}

func (c *Channel) anomaly(reason, requestID string, attrs ...slog.Attr) {
	c.recorder.IncAnomaly(reason)
	args := []any{slog.String("reason", reason)}
	if requestID != "" {
		args = append(args, logfields.RequestID(requestID))
	}
	for _, a := range attrs {
		args = append(args, a)
	}
	c.logger.Warn("Ignoring unmatched frame", args...)
}

// take removes and returns the pending request for id, or nil.
func (c *Channel) take(id string) *pendingRequest {
	c.mu.Lock()
	req, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	n := len(c.pending)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	c.recorder.SetPendingRequests(n)
	return req
}

// Dispatch sends command and returns a Future for its reply. When no peer is connected it
// fails with ErrChannelNotOpen before an id is generated or the pending map is touched.
func (c *Channel) Dispatch(command string) (*Future, error) {
	c.mu.Lock()
	if c.state != StateOpen {
		c.mu.Unlock()
		c.recorder.IncCommand(metrics.CommandNotOpen)
		return nil, commandError("", ErrChannelNotOpen)
	}
	conn := c.conn
	req := &pendingRequest{
		id:        c.newID(),
		command:   command,
		createdAt: time.Now(),
		done:      make(chan struct{}),
	}
	if c.requestTimeout > 0 {
		id := req.id
		req.timer = time.AfterFunc(c.requestTimeout, func() {
			if r := c.take(id); r != nil {
				c.resolve(r, outcome{err: commandError(id, ErrRequestTimeout)})
			}
		})
	}
	c.pending[req.id] = req
	n := len(c.pending)
	c.mu.Unlock()
	c.recorder.SetPendingRequests(n)

	frame, err := json.Marshal(NewCommandRequest(req.id, command))
	if err == nil {
		err = conn.write(frame, c.writeTimeout)
	}
	if err != nil {
		werr := commandError(req.id, ferrors.WrapError(err, ferrors.CategoryNetwork, "write command").
			WithContext("request_id", req.id).
			Build())
		if r := c.take(req.id); r != nil {
			c.resolve(r, outcome{err: werr})
		}
		return nil, werr
	}

	c.logger.Debug("Command sent", logfields.RequestID(req.id), logfields.Command(command))
	return &Future{channel: c, req: req}, nil
}

// Send dispatches command and waits for its reply.
func (c *Channel) Send(ctx context.Context, command string) (Result, error) {
	f, err := c.Dispatch(command)
	if err != nil {
		return Result{}, err
	}
	return f.Wait(ctx)
}

func (c *Channel) resolve(req *pendingRequest, o outcome) {
	if !req.settle(o) {
		return
	}
	if req.timer != nil {
		req.timer.Stop()
	}
	elapsed := time.Since(req.createdAt)

	label := metrics.CommandSuccess
	switch {
	case o.err == nil:
		c.recorder.ObserveCommandLatency(elapsed)
	case errors.Is(o.err, ErrChannelClosed):
		label = metrics.CommandClosed
	case errors.Is(o.err, ErrProtocol):
		label = metrics.CommandProtocol
	case errors.Is(o.err, ErrRequestTimeout):
		label = metrics.CommandTimeout
	case errors.Is(o.err, context.Canceled), errors.Is(o.err, context.DeadlineExceeded):
		label = metrics.CommandCanceled
	default:
		label = metrics.CommandFailed
	}
	c.recorder.IncCommand(label)

	evt := events.CommandCompleted{
		RequestID: req.id,
		Command:   req.command,
		Message:   o.result.Message,
		Status:    o.result.Status,
		Err:       o.err,
		Duration:  elapsed,
		At:        time.Now(),
	}
	if o.err != nil {
		if ce, ok := AsCommandError(o.err); ok {
			evt.Message, evt.Status = ce.Message, ce.Status
		}
	}
	c.publish(evt)
}

func (c *Channel) publish(evt any) {
	if c.bus == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.bus.Publish(ctx, evt); err != nil {
		c.logger.Warn("Failed to publish channel event", logfields.Error(err))
	}
}

// closeConn tears a connection down exactly once: state goes to Closed, the keep-alive job
// is removed and every pending request is rejected with ErrChannelClosed.
func (c *Channel) closeConn(conn *connection) {
	conn.closeOnce.Do(func() {
		conn.writeMu.Lock()
		_ = conn.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		conn.writeMu.Unlock()
		_ = conn.ws.Close()

		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
			c.state = StateClosed
		}
		pending := c.pending
		c.pending = make(map[string]*pendingRequest)
		c.mu.Unlock()

		if err := c.scheduler.RemoveJob(conn.heartbeat); err != nil {
			c.logger.Debug("Keep-alive job already gone", logfields.Error(err))
		}
		for id, req := range pending {
			c.resolve(req, outcome{err: commandError(id, ErrChannelClosed)})
		}
		c.recorder.SetChannelOpen(false)
		c.recorder.SetPendingRequests(0)

		c.logger.Info("WebSocket connection closed",
			logfields.RemoteAddr(conn.remoteAddr), slog.Int("rejected", len(pending)))
		c.publish(events.ChannelClosed{RemoteAddr: conn.remoteAddr, Rejected: len(pending), At: time.Now()})
	})
}

// Disconnect closes the current peer, if any. The channel then accepts a fresh peer.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		c.closeConn(conn)
	}
}

// Close disconnects the peer and refuses new ones. It shuts down an owned scheduler.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.shutdown = true
		c.mu.Unlock()
		c.Disconnect()
		if c.ownsScheduler {
			if err := c.scheduler.Shutdown(); err != nil {
				c.closeErr = ferrors.WrapError(err, ferrors.CategoryInternal, "stop keep-alive scheduler").Build()
			}
		}
	})
	return c.closeErr
}

// Future is the pending result of a dispatched command.
type Future struct {
	channel *Channel
	req     *pendingRequest
}

// RequestID returns the correlation id sent with the command.
func (f *Future) RequestID() string { return f.req.id }

// Done is closed once the command is resolved or rejected.
func (f *Future) Done() <-chan struct{} { return f.req.done }

// Wait blocks for the reply. Canceling ctx abandons the request and removes it from the
// pending map; a reply arriving later is treated as unknown.
func (f *Future) Wait(ctx context.Context) (Result, error) {
	select {
	case <-f.req.done:
	case <-ctx.Done():
		if r := f.channel.take(f.req.id); r != nil {
			f.channel.resolve(r, outcome{err: ctx.Err()})
		}
		<-f.req.done
	}
	return f.req.out.result, f.req.out.err
}
