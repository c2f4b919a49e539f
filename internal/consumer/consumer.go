// Package consumer provides build consumers for the change aggregator: a logging dry
// run, an external command, and a NATS JetStream publisher, plus a retry decorator.
package consumer

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/dashlink/internal/config"
	ferrors "git.home.luguber.info/inful/dashlink/internal/foundation/errors"
	"git.home.luguber.info/inful/dashlink/internal/retry"
	"git.home.luguber.info/inful/dashlink/internal/watch"
)

// Action names a batch kind on the wire and in logs.
type Action string

const (
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Closer is implemented by consumers holding external resources.
type Closer interface {
	Close() error
}

// FromConfig builds the configured consumer, wrapped in WithRetry when retries are enabled.
func FromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (watch.Consumer, error) {
	var c watch.Consumer
	switch cfg.Consumer.Type {
	case config.ConsumerLog, "":
		c = NewLogConsumer(logger)
	case config.ConsumerExec:
		c = NewExecConsumer(cfg.Project.Root, cfg.Consumer.Exec, logger)
	case config.ConsumerNATS:
		nc, err := DialNATS(ctx, cfg.Consumer.NATS, logger)
		if err != nil {
			return nil, err
		}
		c = nc
	default:
		return nil, ferrors.ConfigError("unknown consumer type").
			WithContext("type", string(cfg.Consumer.Type)).
			Build()
	}

	policy := retry.FromConfig(cfg.Consumer.Retry)
	if policy.MaxRetries > 0 {
		c = WithRetry(c, policy, logger)
	}
	return c, nil
}

// Close releases c when it holds resources.
func Close(c watch.Consumer) error {
	if cl, ok := c.(Closer); ok {
		return cl.Close()
	}
	return nil
}
