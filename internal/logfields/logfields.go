package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyPath       = "path"
	KeyPaths      = "paths"
	KeyCount      = "count"
	KeyAction     = "action"
	KeyKind       = "kind"
	KeyRoot       = "root"
	KeyRequestID  = "request_id"
	KeyCommand    = "command"
	KeyStatus     = "status"
	KeyMessage    = "message"
	KeyRemoteAddr = "remote_addr"
	KeyMethod     = "method"
	KeyUserAgent  = "user_agent"
	KeyAddr       = "addr"
	KeySubject    = "subject"
	KeyConsumer   = "consumer"
	KeyAttempt    = "attempt"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Paths(ps []string) slog.Attr     { return slog.Any(KeyPaths, ps) }
func Count(n int) slog.Attr           { return slog.Int(KeyCount, n) }
func Action(a string) slog.Attr       { return slog.String(KeyAction, a) }
func Kind(k string) slog.Attr         { return slog.String(KeyKind, k) }
func Root(r string) slog.Attr         { return slog.String(KeyRoot, r) }
func RequestID(id string) slog.Attr   { return slog.String(KeyRequestID, id) }
func Command(c string) slog.Attr      { return slog.String(KeyCommand, c) }
func Status(code int) slog.Attr       { return slog.Int(KeyStatus, code) }
func Message(m string) slog.Attr      { return slog.String(KeyMessage, m) }
func RemoteAddr(a string) slog.Attr   { return slog.String(KeyRemoteAddr, a) }
func Method(m string) slog.Attr       { return slog.String(KeyMethod, m) }
func UserAgent(ua string) slog.Attr   { return slog.String(KeyUserAgent, ua) }
func Addr(a string) slog.Attr         { return slog.String(KeyAddr, a) }
func Subject(s string) slog.Attr      { return slog.String(KeySubject, s) }
func Consumer(name string) slog.Attr  { return slog.String(KeyConsumer, name) }
func Attempt(n int) slog.Attr         { return slog.Int(KeyAttempt, n) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
