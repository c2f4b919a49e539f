package metrics

import "time"

// FlushOutcome labels the result of one aggregator flush cycle.
type FlushOutcome string

const (
	FlushDispatched FlushOutcome = "dispatched"
	FlushEmpty      FlushOutcome = "empty"
	FlushAborted    FlushOutcome = "aborted"
	FlushFailed     FlushOutcome = "failed"
)

// CommandOutcome labels how a channel command finished.
type CommandOutcome string

const (
	CommandSuccess  CommandOutcome = "success"
	CommandNotOpen  CommandOutcome = "not_open"
	CommandClosed   CommandOutcome = "closed"
	CommandProtocol CommandOutcome = "protocol"
	CommandTimeout  CommandOutcome = "timeout"
	CommandCanceled CommandOutcome = "canceled"
	CommandFailed   CommandOutcome = "failed"
)

// Recorder collects dashlink metrics. Implementations must be safe for concurrent use.
type Recorder interface {
	IncEvent(kind string, accepted bool)
	IncFlush(outcome FlushOutcome)
	ObserveFlushDuration(d time.Duration)
	AddDispatchedPaths(action string, n int)
	IncCommand(outcome CommandOutcome)
	ObserveCommandLatency(d time.Duration)
	SetChannelOpen(open bool)
	SetPendingRequests(n int)
	IncHeartbeat(success bool)
	IncAnomaly(reason string)
}

// NoopRecorder discards everything.
type NoopRecorder struct{}

func (NoopRecorder) IncEvent(string, bool)               {}
func (NoopRecorder) IncFlush(FlushOutcome)               {}
func (NoopRecorder) ObserveFlushDuration(time.Duration)  {}
func (NoopRecorder) AddDispatchedPaths(string, int)      {}
func (NoopRecorder) IncCommand(CommandOutcome)           {}
func (NoopRecorder) ObserveCommandLatency(time.Duration) {}
func (NoopRecorder) SetChannelOpen(bool)                 {}
func (NoopRecorder) SetPendingRequests(int)              {}
func (NoopRecorder) IncHeartbeat(bool)                   {}
func (NoopRecorder) IncAnomaly(string)                   {}

// OrNoop returns r, or a NoopRecorder when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return NoopRecorder{}
	}
	return r
}
