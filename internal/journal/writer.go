package journal

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/dashlink/internal/daemon/events"
	"git.home.luguber.info/inful/dashlink/internal/logfields"
)

// Writer appends every bus event to a Store.
type Writer struct {
	store       Store
	logger      *slog.Logger
	ch          <-chan events.Event
	unsubscribe func()
}

// NewWriter subscribes to bus immediately, so no event published after it returns is missed.
func NewWriter(store Store, bus *events.Bus, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	ch, unsubscribe := events.Subscribe[events.Event](bus, 64)
	return &Writer{store: store, logger: logger, ch: ch, unsubscribe: unsubscribe}
}

// Run appends events until ctx ends or the bus closes. Append failures are logged only.
func (w *Writer) Run(ctx context.Context) {
	defer w.unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-w.ch:
			if !ok {
				return
			}
			w.write(ctx, evt)
		}
	}
}

func (w *Writer) write(ctx context.Context, evt events.Event) {
	entry, err := EntryFor(evt)
	if err == nil {
		err = w.store.Append(context.WithoutCancel(ctx), entry)
	}
	if err != nil {
		w.logger.Warn("Failed to journal event", logfields.Kind(string(evt.EventKind())), logfields.Error(err))
	}
}
