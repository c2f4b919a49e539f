package consumer

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/dashlink/internal/logfields"
)

// LogConsumer only logs batches.
type LogConsumer struct {
	logger *slog.Logger
}

func NewLogConsumer(logger *slog.Logger) *LogConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogConsumer{logger: logger}
}

func (c *LogConsumer) ApplyUpdates(_ context.Context, paths []string) error {
	c.logger.Info("Dash: Updating", logfields.Action(string(ActionUpdate)), logfields.Count(len(paths)), logfields.Paths(paths))
	return nil
}

func (c *LogConsumer) ApplyDeletes(_ context.Context, paths []string) error {
	c.logger.Info("Dash: Unlinking", logfields.Action(string(ActionDelete)), logfields.Count(len(paths)), logfields.Paths(paths))
	return nil
}
