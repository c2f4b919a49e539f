// Package journal keeps an append-only audit trail of flushes and channel commands.
// It is never read back to restore state.
package journal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"

	"git.home.luguber.info/inful/dashlink/internal/daemon/events"
)

// Entry is one journaled event. IDs are ULIDs, so they sort by creation time.
type Entry struct {
	ID      string          `json:"id"`
	Kind    events.Kind     `json:"kind"`
	At      time.Time       `json:"at"`
	Payload json.RawMessage `json:"payload"`
}

// Store persists entries.
type Store interface {
	Append(ctx context.Context, e Entry) error
	// Recent returns up to limit entries, newest first. An empty kind matches all.
	Recent(ctx context.Context, kind events.Kind, limit int) ([]Entry, error)
	Close() error
}

type batchPayload struct {
	Updated    []string `json:"updated,omitempty"`
	Deleted    []string `json:"deleted,omitempty"`
	Aborted    bool     `json:"aborted,omitempty"`
	Error      string   `json:"error,omitempty"`
	DurationMS int64    `json:"duration_ms"`
}

type commandPayload struct {
	RequestID  string `json:"request_id"`
	Command    string `json:"command"`
	Message    string `json:"message"`
	Status     int    `json:"status"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

type channelPayload struct {
	RemoteAddr string `json:"remote_addr"`
	Rejected   int    `json:"rejected,omitempty"`
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// EntryFor converts a bus event into a journal entry with a fresh ULID.
func EntryFor(evt events.Event) (Entry, error) {
	var payload any
	switch e := evt.(type) {
	case events.BatchFlushed:
		payload = batchPayload{
			Updated:    e.Updated,
			Deleted:    e.Deleted,
			Aborted:    e.Aborted,
			Error:      errString(e.Err),
			DurationMS: e.Duration.Milliseconds(),
		}
	case events.CommandCompleted:
		payload = commandPayload{
			RequestID:  e.RequestID,
			Command:    e.Command,
			Message:    e.Message,
			Status:     e.Status,
			Error:      errString(e.Err),
			DurationMS: e.Duration.Milliseconds(),
		}
	case events.ChannelOpened:
		payload = channelPayload{RemoteAddr: e.RemoteAddr}
	case events.ChannelClosed:
		payload = channelPayload{RemoteAddr: e.RemoteAddr, Rejected: e.Rejected}
	default:
		payload = evt
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Entry{}, err
	}
	at := evt.OccurredAt()
	if at.IsZero() {
		at = time.Now()
	}
	return Entry{ID: ulid.Make().String(), Kind: evt.EventKind(), At: at.UTC(), Payload: data}, nil
}
