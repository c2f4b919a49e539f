package consumer

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/dashlink/internal/logfields"
	"git.home.luguber.info/inful/dashlink/internal/retry"
	"git.home.luguber.info/inful/dashlink/internal/watch"
)

// RetryingConsumer retries failed batches according to a retry.Policy.
type RetryingConsumer struct {
	next   watch.Consumer
	policy retry.Policy
	logger *slog.Logger
}

// WithRetry wraps next. Classified errors that are not retryable fail immediately.
func WithRetry(next watch.Consumer, policy retry.Policy, logger *slog.Logger) *RetryingConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryingConsumer{next: next, policy: policy, logger: logger}
}

func (c *RetryingConsumer) ApplyUpdates(ctx context.Context, paths []string) error {
	return c.policy.Do(ctx, func(ctx context.Context) error {
		return c.next.ApplyUpdates(ctx, paths)
	}, c.onRetry(ActionUpdate))
}

func (c *RetryingConsumer) ApplyDeletes(ctx context.Context, paths []string) error {
	return c.policy.Do(ctx, func(ctx context.Context) error {
		return c.next.ApplyDeletes(ctx, paths)
	}, c.onRetry(ActionDelete))
}

func (c *RetryingConsumer) onRetry(action Action) func(int, error) {
	return func(attempt int, err error) {
		c.logger.Warn("Retrying batch",
			logfields.Action(string(action)),
			logfields.Attempt(attempt),
			logfields.Error(err))
	}
}

// Close closes the wrapped consumer.
func (c *RetryingConsumer) Close() error {
	return Close(c.next)
}
