package consumer

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"git.home.luguber.info/inful/dashlink/internal/config"
	ferrors "git.home.luguber.info/inful/dashlink/internal/foundation/errors"
	"git.home.luguber.info/inful/dashlink/internal/logfields"
)

// ActionEnv tells the command which kind of batch it received.
const ActionEnv = "DASHLINK_ACTION"

// maxOutput bounds the command output kept in error context.
const maxOutput = 4096

// ExecConsumer runs `<command> <args...> <paths...>` in the project root, once per batch.
type ExecConsumer struct {
	root    string
	command string
	args    []string
	timeout time.Duration
	logger  *slog.Logger
}

func NewExecConsumer(root string, cfg config.ExecConsumerConfig, logger *slog.Logger) *ExecConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecConsumer{
		root:    root,
		command: cfg.Command,
		args:    cfg.Args,
		timeout: cfg.TimeoutDuration(),
		logger:  logger,
	}
}

func (c *ExecConsumer) ApplyUpdates(ctx context.Context, paths []string) error {
	return c.run(ctx, ActionUpdate, paths)
}

func (c *ExecConsumer) ApplyDeletes(ctx context.Context, paths []string) error {
	return c.run(ctx, ActionDelete, paths)
}

func (c *ExecConsumer) run(ctx context.Context, action Action, paths []string) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	argv := make([]string, 0, len(c.args)+len(paths))
	argv = append(argv, c.args...)
	argv = append(argv, paths...)

	cmd := exec.CommandContext(ctx, c.command, argv...)
	cmd.Dir = c.root
	cmd.Env = append(os.Environ(), ActionEnv+"="+string(action))
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryConsumer, "build command failed").
			Retryable().
			WithContext("command", c.command).
			WithContext("action", string(action)).
			WithContext("output", tail(out.Bytes(), maxOutput)).
			Build()
	}
	c.logger.Info("Build command finished",
		logfields.Action(string(action)),
		logfields.Count(len(paths)),
		logfields.DurationMS(float64(elapsed.Milliseconds())))
	if out.Len() > 0 {
		c.logger.Debug("Build command output", logfields.Message(tail(out.Bytes(), maxOutput)))
	}
	return nil
}

func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return string(b)
}
