package daemon

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/dashlink/internal/channel"
	"git.home.luguber.info/inful/dashlink/internal/daemon/events"
	"git.home.luguber.info/inful/dashlink/internal/logfields"
)

// CommandSender is the part of the channel post-build hooks need.
type CommandSender interface {
	State() channel.State
	Send(ctx context.Context, command string) (channel.Result, error)
}

// PostBuild sends the configured commands over the channel after each successful update
// batch. It only reacts to bus events; the aggregator never calls it.
type PostBuild struct {
	commands    []string
	sender      CommandSender
	logger      *slog.Logger
	ch          <-chan events.BatchFlushed
	unsubscribe func()
}

// NewPostBuild subscribes to flush events right away.
func NewPostBuild(commands []string, sender CommandSender, bus *events.Bus, logger *slog.Logger) *PostBuild {
	if logger == nil {
		logger = slog.Default()
	}
	ch, unsubscribe := events.Subscribe[events.BatchFlushed](bus, 16)
	return &PostBuild{commands: commands, sender: sender, logger: logger, ch: ch, unsubscribe: unsubscribe}
}

// Run handles flush events until ctx ends or the bus closes.
func (p *PostBuild) Run(ctx context.Context) {
	defer p.unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-p.ch:
			if !ok {
				return
			}
			if evt.Succeeded() {
				p.send(ctx, evt)
			}
		}
	}
}

func (p *PostBuild) send(ctx context.Context, evt events.BatchFlushed) {
	if p.sender.State() != channel.StateOpen {
		p.logger.Debug("Skipping post-build commands, channel not open", logfields.Count(len(evt.Updated)))
		return
	}
	for _, cmd := range p.commands {
		res, err := p.sender.Send(ctx, cmd)
		if err != nil {
			p.logger.Warn("Post-build command failed", logfields.Command(cmd), logfields.Error(err))
			if ctx.Err() != nil {
				return
			}
			continue
		}
		p.logger.Info("Post-build command completed",
			logfields.Command(cmd),
			logfields.Message(res.Message),
			logfields.Status(res.Status))
	}
}
