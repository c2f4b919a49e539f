package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/dashlink/internal/channel"
	"git.home.luguber.info/inful/dashlink/internal/server/responses"
	"git.home.luguber.info/inful/dashlink/internal/watch"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type pendingStub struct{}

func (pendingStub) Pending() watch.Snapshot { return watch.Snapshot{Updates: []string{"main.ts"}} }

func startServer(t *testing.T, opts Options) *Server {
	t.Helper()
	opts.Logger = discard
	s := New(opts)
	require.NoError(t, s.Start(t.Context()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

func TestServer_CommandRoundTrip(t *testing.T) {
	ch, err := channel.New(channel.Options{KeepAlive: time.Hour, Logger: discard})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ch.Close() })

	s := startServer(t, Options{
		ChannelListen: "127.0.0.1:0",
		ChannelPath:   "/",
		AdminListen:   "127.0.0.1:0",
		Channel:       ch,
		Pending:       pendingStub{},
	})

	peer, _, err := websocket.DefaultDialer.Dial("ws://"+s.ChannelAddr().String()+"/", nil)
	require.NoError(t, err)
	defer peer.Close()
	require.Eventually(t, func() bool { return ch.State() == channel.StateOpen }, 2*time.Second, 10*time.Millisecond)

	// Answer the first request the way the remote processor does.
	go func() {
		_, data, err := peer.ReadMessage()
		if err != nil {
			return
		}
		var req channel.Request
		if json.Unmarshal(data, &req) != nil {
			return
		}
		reply := fmt.Sprintf(`{"header":{"requestId":%q},"body":{"statusMessage":"Reloaded","statusCode":0}}`, req.Header.RequestID)
		_ = peer.WriteMessage(websocket.TextMessage, []byte(reply))
	}()

	resp, err := http.Post("http://"+s.AdminAddr().String()+"/api/command", "application/json", strings.NewReader(`{"command":"reload"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body responses.CommandResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Reloaded", body.Message)

	pending, err := http.Get("http://" + s.AdminAddr().String() + "/api/pending")
	require.NoError(t, err)
	defer pending.Body.Close()
	assert.Equal(t, http.StatusOK, pending.StatusCode)
}

func TestServer_MetricsOptional(t *testing.T) {
	s := startServer(t, Options{AdminListen: "127.0.0.1:0"})
	resp, err := http.Get("http://" + s.AdminAddr().String() + "/metrics")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Nil(t, s.ChannelAddr())
}

func TestServer_StartFailsOnBusyPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	s := New(Options{AdminListen: ln.Addr().String(), Logger: discard})
	err = s.Start(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http startup failed")
}
