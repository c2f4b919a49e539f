// Package responses defines the JSON payloads of the dashlink admin API.
package responses

import (
	"time"

	"git.home.luguber.info/inful/dashlink/internal/journal"
)

// HealthResponse represents the health check API response.
type HealthResponse struct {
	Status          string    `json:"status"`
	Timestamp       time.Time `json:"timestamp"`
	Version         string    `json:"version"`
	Uptime          float64   `json:"uptime"`
	Channel         string    `json:"channel"`
	RemoteAddr      string    `json:"remote_addr,omitempty"`
	PendingRequests int       `json:"pending_requests"`
	Watching        bool      `json:"watching"`
}

// CommandRequest is the body of POST /api/command.
type CommandRequest struct {
	Command string `json:"command"`
}

// CommandResponse carries the {message, status} outcome of a command, success or failure.
type CommandResponse struct {
	RequestID string `json:"request_id,omitempty"`
	Message   string `json:"message"`
	Status    int    `json:"status"`
	Code      string `json:"code,omitempty"`
}

// JournalResponse lists journal entries, newest first.
type JournalResponse struct {
	Entries []journal.Entry `json:"entries"`
	Count   int             `json:"count"`
}
