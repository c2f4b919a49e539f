package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"git.home.luguber.info/inful/dashlink/internal/channel"
	ferrors "git.home.luguber.info/inful/dashlink/internal/foundation/errors"
	"git.home.luguber.info/inful/dashlink/internal/server/responses"
	"git.home.luguber.info/inful/dashlink/internal/version"
)

// ChannelStatus is the read side of the command channel.
type ChannelStatus interface {
	State() channel.State
	RemoteAddr() string
	PendingCount() int
}

// MonitoringHandlers serves /health.
type MonitoringHandlers struct {
	channel      ChannelStatus
	watching     bool
	startTime    time.Time
	errorAdapter *ferrors.HTTPErrorAdapter
}

// NewMonitoringHandlers creates the health handler. ch may be nil when only the watcher runs.
func NewMonitoringHandlers(ch ChannelStatus, watching bool, logger *slog.Logger) *MonitoringHandlers {
	return &MonitoringHandlers{
		channel:      ch,
		watching:     watching,
		startTime:    time.Now(),
		errorAdapter: ferrors.NewHTTPErrorAdapter(logger),
	}
}

// HandleHealthCheck reports liveness plus the channel state. It is always 200 while the process serves.
func (h *MonitoringHandlers) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.errorAdapter.WriteErrorResponse(w, r, methodNotAllowed(r.Method, http.MethodGet))
		return
	}

	health := &responses.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   version.Version,
		Uptime:    time.Since(h.startTime).Seconds(),
		Channel:   "disabled",
		Watching:  h.watching,
	}
	if h.channel != nil {
		health.Channel = h.channel.State().String()
		health.RemoteAddr = h.channel.RemoteAddr()
		health.PendingRequests = h.channel.PendingCount()
	}

	if err := writeJSONPretty(w, r, http.StatusOK, health); err != nil {
		internalErr := ferrors.WrapError(err, ferrors.CategoryInternal, "failed to write health response").Build()
		h.errorAdapter.WriteErrorResponse(w, r, internalErr)
	}
}
