package httpserver

import (
	"log/slog"
	"net/http"

	"git.home.luguber.info/inful/dashlink/internal/server/handlers"
)

// Channel is the command channel as seen by the HTTP layer.
type Channel interface {
	http.Handler
	handlers.ChannelStatus
	handlers.Commander
}

// Options wires the listeners. An empty address disables that listener.
type Options struct {
	ChannelListen string
	ChannelPath   string
	AdminListen   string

	Channel Channel                // nil in watch-only mode
	Pending handlers.PendingSource // nil in serve-only mode
	Journal handlers.JournalReader // nil when the journal is disabled

	// MetricsHandler is mounted on /metrics when non-nil.
	MetricsHandler http.Handler

	Logger *slog.Logger
}
