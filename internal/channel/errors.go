package channel

import (
	"errors"

	ferrors "git.home.luguber.info/inful/dashlink/internal/foundation/errors"
)

// StatusFailed is the status carried by every CommandError.
const StatusFailed = 500

var (
	// ErrChannelNotOpen is returned by Dispatch when no peer is connected.
	ErrChannelNotOpen = ferrors.ChannelError("WebSocket is not open").Build()
	// ErrChannelClosed rejects requests still pending when the connection closes.
	ErrChannelClosed = ferrors.ChannelError("WebSocket connection closed").Build()
	// ErrProtocol rejects a request whose reply could not be interpreted.
	ErrProtocol = ferrors.ProtocolError("reply has no body").Build()
	// ErrRequestTimeout rejects a request that saw no reply within the configured timeout.
	ErrRequestTimeout = ferrors.ChannelError("command timed out").Build()
	// ErrShutdown refuses new peers after Close.
	ErrShutdown = ferrors.ChannelError("channel is shut down").Build()
)

// CommandError is the {message, status} rejection of a command.
type CommandError struct {
	Message   string
	Status    int
	RequestID string
	Err       error
}

func (e *CommandError) Error() string { return e.Message }
func (e *CommandError) Unwrap() error { return e.Err }

func commandError(requestID string, err error) *CommandError {
	msg := err.Error()
	if ce, ok := ferrors.AsClassified(err); ok {
		msg = ce.Message()
	}
	return &CommandError{Message: msg, Status: StatusFailed, RequestID: requestID, Err: err}
}

// AsCommandError unwraps err to a *CommandError.
func AsCommandError(err error) (*CommandError, bool) {
	var ce *CommandError
	ok := errors.As(err, &ce)
	return ce, ok
}
