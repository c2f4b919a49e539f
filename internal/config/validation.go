package config

import (
	"os"
	"strings"
	"time"

	ferrors "git.home.luguber.info/inful/dashlink/internal/foundation/errors"
)

// Validate checks a defaulted configuration.
func Validate(cfg *Config) error {
	if err := validateProject(cfg.Project); err != nil {
		return err
	}
	if err := validateDurations(cfg); err != nil {
		return err
	}
	if err := validateConsumer(cfg.Consumer); err != nil {
		return err
	}
	if !strings.HasPrefix(cfg.Channel.Path, "/") {
		return ferrors.ValidationError("channel path must start with '/'").
			WithContext("path", cfg.Channel.Path).
			Build()
	}
	for i, cmd := range cfg.PostBuild.Commands {
		if strings.TrimSpace(cmd) == "" {
			return ferrors.ValidationError("post-build command cannot be empty").
				WithContext("index", i).
				Build()
		}
	}
	return nil
}

func validateProject(p ProjectConfig) error {
	st, err := os.Stat(p.Root)
	if err != nil || !st.IsDir() {
		return ferrors.ValidationError("project root not found or not a directory").
			WithContext("root", p.Root).
			Build()
	}
	for _, group := range [][]string{p.Ignore.Suffixes, p.Ignore.Names, p.Ignore.Markers} {
		for _, entry := range group {
			if entry == "" {
				return ferrors.ValidationError("ignore entries cannot be empty").Build()
			}
		}
	}
	return nil
}

func validateDurations(cfg *Config) error {
	checks := []struct {
		field    string
		raw      string
		positive bool
	}{
		{"watch.debounce", cfg.Watch.Debounce, true},
		{"channel.keep_alive", cfg.Channel.KeepAlive, true},
		{"channel.write_timeout", cfg.Channel.WriteTimeout, true},
		{"channel.request_timeout", cfg.Channel.RequestTimeout, false},
		{"consumer.exec.timeout", cfg.Consumer.Exec.Timeout, false},
		{"consumer.retry.initial_delay", cfg.Consumer.Retry.InitialDelay, false},
		{"consumer.retry.max_delay", cfg.Consumer.Retry.MaxDelay, false},
	}
	for _, c := range checks {
		if c.raw == "" && !c.positive {
			continue
		}
		d, err := time.ParseDuration(c.raw)
		if err != nil {
			return ferrors.WrapError(err, ferrors.CategoryValidation, "invalid duration").
				Fatal().
				WithContext("field", c.field).
				WithContext("value", c.raw).
				Build()
		}
		if d < 0 || (c.positive && d == 0) {
			return ferrors.ValidationError("duration out of range").
				WithContext("field", c.field).
				WithContext("value", c.raw).
				Build()
		}
	}
	return nil
}

func validateConsumer(c ConsumerConfig) error {
	switch c.Type {
	case ConsumerLog:
	case ConsumerExec:
		if strings.TrimSpace(c.Exec.Command) == "" {
			return ferrors.ValidationError("exec consumer requires consumer.exec.command").Build()
		}
	case ConsumerNATS:
		if c.NATS.URL == "" || c.NATS.Stream == "" || c.NATS.SubjectPrefix == "" {
			return ferrors.ValidationError("nats consumer requires url, stream and subject_prefix").Build()
		}
	default:
		return ferrors.ValidationError("unknown consumer type").
			WithContext("type", string(c.Type)).
			Build()
	}
	if NormalizeRetryBackoff(string(c.Retry.Backoff)) == "" {
		return ferrors.ValidationError("unknown consumer.retry.backoff mode").
			WithContext("backoff", string(c.Retry.Backoff)).
			WithContext("allowed", "fixed, linear, exponential").
			Build()
	}
	if c.Retry.MaxRetries < 0 {
		return ferrors.ValidationError("consumer.retry.max_retries cannot be negative").Build()
	}
	return nil
}
