package channel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/dashlink/internal/daemon/events"
	ferrors "git.home.luguber.info/inful/dashlink/internal/foundation/errors"
	"git.home.luguber.info/inful/dashlink/internal/metrics"
)

type countingRecorder struct {
	metrics.NoopRecorder
	mu         sync.Mutex
	anomalies  map[string]int
	heartbeats int
	commands   map[metrics.CommandOutcome]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{anomalies: map[string]int{}, commands: map[metrics.CommandOutcome]int{}}
}

func (r *countingRecorder) IncAnomaly(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.anomalies[reason]++
}

func (r *countingRecorder) IncHeartbeat(bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.heartbeats++
}

func (r *countingRecorder) IncCommand(o metrics.CommandOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[o]++
}

func (r *countingRecorder) anomaly(reason string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.anomalies[reason]
}

func newTestChannel(t *testing.T, opts Options) (*Channel, *httptest.Server) {
	t.Helper()
	ch, err := New(opts)
	require.NoError(t, err)
	ts := httptest.NewServer(ch)
	t.Cleanup(func() {
		_ = ch.Close()
		ts.Close()
	})
	return ch, ts
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func connectPeer(t *testing.T, ch *Channel, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts.URL), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.Eventually(t, func() bool { return ch.State() == StateOpen }, 2*time.Second, 5*time.Millisecond)
	return conn
}

func readRequest(t *testing.T, conn *websocket.Conn) Request {
	t.Helper()
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		if len(data) == 0 {
			continue
		}
		var req Request
		require.NoError(t, json.Unmarshal(data, &req))
		return req
	}
}

func reply(t *testing.T, conn *websocket.Conn, id, message string, status int) {
	t.Helper()
	frame := map[string]any{
		"header": map[string]any{"requestId": id, "messagePurpose": "commandResponse"},
		"body":   map[string]any{"statusMessage": message, "statusCode": status},
	}
	require.NoError(t, conn.WriteJSON(frame))
}

func waitFuture(t *testing.T, f *Future) (Result, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	return f.Wait(ctx)
}

func TestDispatch_NotOpenFailsBeforeGeneratingID(t *testing.T) {
	var generated atomic.Int32
	rec := newCountingRecorder()
	ch, _ := newTestChannel(t, Options{
		Recorder: rec,
		NewID: func() string {
			generated.Add(1)
			return "id"
		},
	})

	f, err := ch.Dispatch("say hi")

	require.Nil(t, f)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChannelNotOpen)
	ce, ok := AsCommandError(err)
	require.True(t, ok)
	assert.Equal(t, "WebSocket is not open", ce.Message)
	assert.Equal(t, 500, ce.Status)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryChannel))
	assert.Zero(t, generated.Load())
	assert.Zero(t, ch.PendingCount())
	assert.Equal(t, 1, rec.commands[metrics.CommandNotOpen])

	_, err = ch.Send(t.Context(), "say hi")
	assert.ErrorIs(t, err, ErrChannelNotOpen)
}

func TestSend_RoundTrip(t *testing.T) {
	ch, ts := newTestChannel(t, Options{NewID: func() string { return "fixed-id" }})
	peer := connectPeer(t, ch, ts)

	type res struct {
		r   Result
		err error
	}
	done := make(chan res, 1)
	go func() {
		r, err := ch.Send(t.Context(), "function dash/reload")
		done <- res{r, err}
	}()

	require.NoError(t, peer.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := peer.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t,
		`{"header":{"version":1,"requestId":"fixed-id","messageType":"commandRequest","messagePurpose":"commandRequest"},"body":{"commandLine":"function dash/reload"}}`,
		string(raw))

	reply(t, peer, "fixed-id", "Function ran", 0)

	select {
	case got := <-done:
		require.NoError(t, got.err)
		assert.Equal(t, Result{Message: "Function ran", Status: 0}, got.r)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for result")
	}
	assert.Zero(t, ch.PendingCount())
}

func TestReplies_InReverseOrderMatchById(t *testing.T) {
	ch, ts := newTestChannel(t, Options{})
	peer := connectPeer(t, ch, ts)

	first, err := ch.Dispatch("first")
	require.NoError(t, err)
	second, err := ch.Dispatch("second")
	require.NoError(t, err)
	require.NotEqual(t, first.RequestID(), second.RequestID())

	r1 := readRequest(t, peer)
	r2 := readRequest(t, peer)
	reply(t, peer, r2.Header.RequestID, "reply-"+r2.Body.CommandLine, 2)
	reply(t, peer, r1.Header.RequestID, "reply-"+r1.Body.CommandLine, 1)

	got2, err := waitFuture(t, second)
	require.NoError(t, err)
	got1, err := waitFuture(t, first)
	require.NoError(t, err)
	assert.Equal(t, Result{Message: "reply-second", Status: 2}, got2)
	assert.Equal(t, Result{Message: "reply-first", Status: 1}, got1)
}

func TestConcurrentSends_RepliesZXY(t *testing.T) {
	ch, ts := newTestChannel(t, Options{})
	peer := connectPeer(t, ch, ts)

	commands := []string{"X", "Y", "Z"}
	results := make(map[string]Result)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, cmd := range commands {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := ch.Send(t.Context(), cmd)
			assert.NoError(t, err)
			mu.Lock()
			results[cmd] = r
			mu.Unlock()
		}()
	}

	ids := make(map[string]string)
	for range commands {
		req := readRequest(t, peer)
		ids[req.Body.CommandLine] = req.Header.RequestID
	}
	require.Len(t, ids, 3)
	for _, cmd := range []string{"Z", "X", "Y"} {
		reply(t, peer, ids[cmd], "result-"+cmd, len(cmd))
	}

	wg.Wait()
	for _, cmd := range commands {
		assert.Equal(t, Result{Message: "result-" + cmd, Status: 1}, results[cmd], cmd)
	}
}

func TestUnmatchedFramesKeepChannelHealthy(t *testing.T) {
	rec := newCountingRecorder()
	ch, ts := newTestChannel(t, Options{Recorder: rec})
	peer := connectPeer(t, ch, ts)

	f, err := ch.Dispatch("list")
	require.NoError(t, err)
	req := readRequest(t, peer)

	reply(t, peer, "nobody-asked", "stray", 0)
	require.NoError(t, peer.WriteMessage(websocket.TextMessage, []byte("{not json")))
	require.NoError(t, peer.WriteMessage(websocket.TextMessage, []byte(`{"header":{"messagePurpose":"event"},"body":{}}`)))
	require.NoError(t, peer.WriteMessage(websocket.TextMessage, []byte("")))

	reply(t, peer, req.Header.RequestID, "There are 1/10 players online", 0)
	got, err := waitFuture(t, f)
	require.NoError(t, err)
	assert.Equal(t, "There are 1/10 players online", got.Message)

	assert.Equal(t, StateOpen, ch.State())
	assert.Equal(t, 1, rec.anomaly("unknown_request"))
	assert.Equal(t, 1, rec.anomaly("unparsable"))
	assert.Equal(t, 1, rec.anomaly("missing_request_id"))
}

func TestReplyWithoutBodyIsProtocolError(t *testing.T) {
	ch, ts := newTestChannel(t, Options{})
	peer := connectPeer(t, ch, ts)

	f, err := ch.Dispatch("list")
	require.NoError(t, err)
	req := readRequest(t, peer)
	require.NoError(t, peer.WriteJSON(map[string]any{"header": map[string]any{"requestId": req.Header.RequestID}}))

	_, err = waitFuture(t, f)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProtocol)
	ce, ok := AsCommandError(err)
	require.True(t, ok)
	assert.Equal(t, 500, ce.Status)
	assert.Equal(t, req.Header.RequestID, ce.RequestID)
}

func TestPeerDisconnectRejectsPending(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	closed, unsubscribe := events.Subscribe[events.ChannelClosed](bus, 1)
	defer unsubscribe()

	ch, ts := newTestChannel(t, Options{Bus: bus})
	peer := connectPeer(t, ch, ts)

	a, err := ch.Dispatch("a")
	require.NoError(t, err)
	b, err := ch.Dispatch("b")
	require.NoError(t, err)
	require.Equal(t, 2, ch.PendingCount())

	require.NoError(t, peer.Close())

	for _, f := range []*Future{a, b} {
		_, err := waitFuture(t, f)
		assert.ErrorIs(t, err, ErrChannelClosed)
	}
	select {
	case evt := <-closed:
		assert.Equal(t, 2, evt.Rejected)
	case <-time.After(2 * time.Second):
		t.Fatal("no ChannelClosed event")
	}
	assert.Equal(t, StateClosed, ch.State())
	assert.Zero(t, ch.PendingCount())
	assert.Empty(t, ch.scheduler.Jobs(), "keep-alive job must be removed on close")

	_, err = ch.Dispatch("c")
	assert.ErrorIs(t, err, ErrChannelNotOpen)

	// A fresh peer can connect afterwards.
	connectPeer(t, ch, ts)
	assert.Len(t, ch.scheduler.Jobs(), 1)
}

func TestSecondPeerIsRefused(t *testing.T) {
	ch, ts := newTestChannel(t, Options{})
	connectPeer(t, ch, ts)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts.URL), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, StateOpen, ch.State())
}

func TestKeepAliveSendsEmptyFrames(t *testing.T) {
	rec := newCountingRecorder()
	ch, ts := newTestChannel(t, Options{KeepAlive: 30 * time.Millisecond, Recorder: rec})
	peer := connectPeer(t, ch, ts)

	for i := 0; i < 2; i++ {
		require.NoError(t, peer.SetReadDeadline(time.Now().Add(2*time.Second)))
		mt, data, err := peer.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, websocket.TextMessage, mt)
		assert.Empty(t, data)
	}
	rec.mu.Lock()
	assert.GreaterOrEqual(t, rec.heartbeats, 2)
	rec.mu.Unlock()
}

func TestRequestTimeout(t *testing.T) {
	ch, ts := newTestChannel(t, Options{RequestTimeout: 50 * time.Millisecond})
	connectPeer(t, ch, ts)

	_, err := ch.Send(t.Context(), "never answered")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRequestTimeout)
	assert.Zero(t, ch.PendingCount())
	assert.Equal(t, StateOpen, ch.State())
}

func TestWaitCancellationRemovesPending(t *testing.T) {
	ch, ts := newTestChannel(t, Options{})
	connectPeer(t, ch, ts)

	f, err := ch.Dispatch("slow")
	require.NoError(t, err)
	require.Equal(t, 1, ch.PendingCount())

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err = f.Wait(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Zero(t, ch.PendingCount())
}

func TestCloseRefusesNewPeers(t *testing.T) {
	ch, ts := newTestChannel(t, Options{})
	connectPeer(t, ch, ts)

	require.NoError(t, ch.Close())
	assert.Equal(t, StateClosed, ch.State())

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts.URL), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestCloseDuringUpgradeDropsPeer(t *testing.T) {
	sched, err := gocron.NewScheduler()
	require.NoError(t, err)
	sched.Start()
	t.Cleanup(func() { _ = sched.Shutdown() })

	var ch *Channel
	ch, ts := newTestChannel(t, Options{
		Scheduler: sched,
		CheckOrigin: func(*http.Request) bool {
			_ = ch.Close()
			return true
		},
	})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts.URL), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	assert.Equal(t, StateClosed, ch.State())
	assert.Empty(t, ch.RemoteAddr())
	assert.Eventually(t, func() bool { return len(sched.Jobs()) == 0 }, 2*time.Second, 5*time.Millisecond)

	_, err = ch.Dispatch("late")
	require.Error(t, err)
}
