package events

import "time"

// Kind names an event for the journal and the admin API.
type Kind string

const (
	KindBatchFlushed     Kind = "batch_flushed"
	KindChannelOpened    Kind = "channel_opened"
	KindChannelClosed    Kind = "channel_closed"
	KindCommandCompleted Kind = "command_completed"
)

// Valid reports whether k is one of the event kinds above.
func (k Kind) Valid() bool {
	switch k {
	case KindBatchFlushed, KindChannelOpened, KindChannelClosed, KindCommandCompleted:
		return true
	}
	return false
}

// Event is implemented by every event published on the bus.
type Event interface {
	EventKind() Kind
	OccurredAt() time.Time
}

// BatchFlushed is published after every aggregator flush cycle that had pending paths.
//
// Aborted is set when a pending update vanished before it could be stat'ed; in that
// case nothing was dispatched and the remaining paths were carried into the next cycle.
type BatchFlushed struct {
	Updated  []string
	Deleted  []string
	Aborted  bool
	Err      error
	Duration time.Duration
	At       time.Time
}

func (e BatchFlushed) EventKind() Kind       { return KindBatchFlushed }
func (e BatchFlushed) OccurredAt() time.Time { return e.At }

// Succeeded reports a dispatched, error-free cycle that sent at least one update.
func (e BatchFlushed) Succeeded() bool {
	return !e.Aborted && e.Err == nil && len(e.Updated) > 0
}

type ChannelOpened struct {
	RemoteAddr string
	At         time.Time
}

func (e ChannelOpened) EventKind() Kind       { return KindChannelOpened }
func (e ChannelOpened) OccurredAt() time.Time { return e.At }

// ChannelClosed carries the number of pending requests rejected on close.
type ChannelClosed struct {
	RemoteAddr string
	Rejected   int
	At         time.Time
}

func (e ChannelClosed) EventKind() Kind       { return KindChannelClosed }
func (e ChannelClosed) OccurredAt() time.Time { return e.At }

type CommandCompleted struct {
	RequestID string
	Command   string
	Message   string
	Status    int
	Err       error
	Duration  time.Duration
	At        time.Time
}

func (e CommandCompleted) EventKind() Kind       { return KindCommandCompleted }
func (e CommandCompleted) OccurredAt() time.Time { return e.At }
