package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"git.home.luguber.info/inful/dashlink/internal/channel"
	"git.home.luguber.info/inful/dashlink/internal/daemon/events"
	ferrors "git.home.luguber.info/inful/dashlink/internal/foundation/errors"
	"git.home.luguber.info/inful/dashlink/internal/journal"
	"git.home.luguber.info/inful/dashlink/internal/server/responses"
	"git.home.luguber.info/inful/dashlink/internal/watch"
)

const (
	defaultJournalLimit = 50
	maxJournalLimit     = 1000
	maxCommandBody      = 64 << 10
)

// Commander sends one command over the channel and waits for its reply.
type Commander interface {
	Send(ctx context.Context, command string) (channel.Result, error)
}

// PendingSource exposes the aggregator's pending sets.
type PendingSource interface {
	Pending() watch.Snapshot
}

// JournalReader reads recent journal entries.
type JournalReader interface {
	Recent(ctx context.Context, kind events.Kind, limit int) ([]journal.Entry, error)
}

// APIHandlers serves /api/*. Any dependency may be nil; its endpoint then answers 404.
type APIHandlers struct {
	commander    Commander
	pending      PendingSource
	journal      JournalReader
	errorAdapter *ferrors.HTTPErrorAdapter
}

// NewAPIHandlers creates the API handlers.
func NewAPIHandlers(commander Commander, pending PendingSource, journal JournalReader, logger *slog.Logger) *APIHandlers {
	return &APIHandlers{
		commander:    commander,
		pending:      pending,
		journal:      journal,
		errorAdapter: ferrors.NewHTTPErrorAdapter(logger),
	}
}

// HandlePending returns the aggregator's not yet flushed paths.
func (h *APIHandlers) HandlePending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.errorAdapter.WriteErrorResponse(w, r, methodNotAllowed(r.Method, http.MethodGet))
		return
	}
	if h.pending == nil {
		h.errorAdapter.WriteErrorResponse(w, r, ferrors.NotFoundError("watcher is not running").Build())
		return
	}
	if err := writeJSONPretty(w, r, http.StatusOK, h.pending.Pending()); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, ferrors.WrapError(err, ferrors.CategoryInternal, "failed to write pending response").Build())
	}
}

// HandleCommand sends {"command": "..."} over the channel and answers with its {message, status}.
func (h *APIHandlers) HandleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.errorAdapter.WriteErrorResponse(w, r, methodNotAllowed(r.Method, http.MethodPost))
		return
	}
	if h.commander == nil {
		h.errorAdapter.WriteErrorResponse(w, r, ferrors.NotFoundError("command channel is not running").Build())
		return
	}

	var req responses.CommandRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCommandBody))
	if err == nil {
		err = json.Unmarshal(body, &req)
	}
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, ferrors.WrapError(err, ferrors.CategoryValidation, "invalid command request").Build())
		return
	}
	if strings.TrimSpace(req.Command) == "" {
		h.errorAdapter.WriteErrorResponse(w, r, ferrors.ValidationError("command must not be empty").Build())
		return
	}

	res, err := h.commander.Send(r.Context(), req.Command)
	if err != nil {
		ce, ok := channel.AsCommandError(err)
		if !ok {
			h.errorAdapter.WriteErrorResponse(w, r, err)
			return
		}
		_ = writeJSON(w, h.errorAdapter.StatusCodeFor(err), responses.CommandResponse{
			RequestID: ce.RequestID,
			Message:   ce.Message,
			Status:    ce.Status,
			Code:      string(ferrors.GetCategory(err)),
		})
		return
	}
	_ = writeJSONPretty(w, r, http.StatusOK, responses.CommandResponse{Message: res.Message, Status: res.Status})
}

// HandleJournal lists recent journal entries, optionally filtered by ?kind= and capped by ?limit=.
func (h *APIHandlers) HandleJournal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.errorAdapter.WriteErrorResponse(w, r, methodNotAllowed(r.Method, http.MethodGet))
		return
	}
	if h.journal == nil {
		h.errorAdapter.WriteErrorResponse(w, r, ferrors.NotFoundError("journal is disabled").Build())
		return
	}

	q := r.URL.Query()
	limit := defaultJournalLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxJournalLimit {
			h.errorAdapter.WriteErrorResponse(w, r, ferrors.ValidationError("invalid limit").
				WithContext("limit", raw).
				WithContext("max", maxJournalLimit).
				Build())
			return
		}
		limit = n
	}

	kind := events.Kind(q.Get("kind"))
	if kind != "" && !kind.Valid() {
		h.errorAdapter.WriteErrorResponse(w, r, ferrors.ValidationError("unknown event kind").
			WithContext("kind", string(kind)).
			Build())
		return
	}

	entries, err := h.journal.Recent(r.Context(), kind, limit)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	if err := writeJSONPretty(w, r, http.StatusOK, responses.JournalResponse{Entries: entries, Count: len(entries)}); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, ferrors.WrapError(err, ferrors.CategoryInternal, "failed to write journal response").Build())
	}
}
