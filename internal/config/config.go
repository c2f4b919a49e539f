package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/dashlink/internal/foundation/errors"
)

// CurrentVersion is the only configuration schema version understood by Load.
const CurrentVersion = "1.0"

// Config is the dashlink configuration file.
type Config struct {
	Version   string          `yaml:"version"`
	Project   ProjectConfig   `yaml:"project"`
	Watch     WatchConfig     `yaml:"watch"`
	Consumer  ConsumerConfig  `yaml:"consumer"`
	Channel   ChannelConfig   `yaml:"channel"`
	PostBuild PostBuildConfig `yaml:"post_build,omitempty"`
	Admin     AdminConfig     `yaml:"admin"`
	Journal   JournalConfig   `yaml:"journal,omitempty"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ProjectConfig describes the watched project tree.
type ProjectConfig struct {
	Root   string       `yaml:"root"`
	Ignore IgnoreConfig `yaml:"ignore"`
}

// IgnoreConfig extends the built-in ignore rules. Built-in rules always apply.
type IgnoreConfig struct {
	Suffixes     []string `yaml:"suffixes,omitempty"`      // transient write suffixes, e.g. ".crswap"
	Names        []string `yaml:"names,omitempty"`         // OS metadata file names, e.g. ".DS_Store"
	Markers      []string `yaml:"markers,omitempty"`       // internal directory markers, e.g. ".bridge"
	UseGitignore bool     `yaml:"use_gitignore,omitempty"` // also honour <root>/.gitignore
}

// WatchConfig controls the change aggregator.
type WatchConfig struct {
	Debounce string `yaml:"debounce"` // quiescence window, e.g. "200ms"
}

// ConsumerType selects the build consumer adapter.
type ConsumerType string

const (
	ConsumerLog  ConsumerType = "log"
	ConsumerExec ConsumerType = "exec"
	ConsumerNATS ConsumerType = "nats"
)

// ConsumerConfig configures where settled batches are dispatched.
type ConsumerConfig struct {
	Type  ConsumerType       `yaml:"type"`
	Exec  ExecConsumerConfig `yaml:"exec,omitempty"`
	NATS  NATSConsumerConfig `yaml:"nats,omitempty"`
	Retry RetryConfig        `yaml:"retry,omitempty"`
}

// ExecConsumerConfig runs a command per batch with the paths appended as arguments.
type ExecConsumerConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args,omitempty"`
	Timeout string   `yaml:"timeout,omitempty"`
}

// NATSConsumerConfig publishes batches to JetStream subjects <subject_prefix>.update / .delete.
type NATSConsumerConfig struct {
	URL           string `yaml:"url"`
	Stream        string `yaml:"stream"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// RetryConfig is the consumer-side retry policy. MaxRetries 0 disables retries.
type RetryConfig struct {
	Backoff      RetryBackoffMode `yaml:"backoff,omitempty"`
	InitialDelay string           `yaml:"initial_delay,omitempty"`
	MaxDelay     string           `yaml:"max_delay,omitempty"`
	MaxRetries   int              `yaml:"max_retries,omitempty"`
}

// RetryBackoffMode selects how the delay between consumer retries grows.
type RetryBackoffMode string

const (
	RetryBackoffFixed       RetryBackoffMode = "fixed"
	RetryBackoffLinear      RetryBackoffMode = "linear"
	RetryBackoffExponential RetryBackoffMode = "exponential"
)

// NormalizeRetryBackoff folds case and whitespace. Unknown input yields "" so that
// callers can either reject it (Validate) or fall back (retry.NewPolicy).
func NormalizeRetryBackoff(raw string) RetryBackoffMode {
	switch m := RetryBackoffMode(strings.ToLower(strings.TrimSpace(raw))); m {
	case RetryBackoffFixed, RetryBackoffLinear, RetryBackoffExponential:
		return m
	default:
		return ""
	}
}

// ChannelConfig configures the websocket command channel.
type ChannelConfig struct {
	Listen         string `yaml:"listen"`
	Path           string `yaml:"path"`
	KeepAlive      string `yaml:"keep_alive"`
	WriteTimeout   string `yaml:"write_timeout"`
	RequestTimeout string `yaml:"request_timeout,omitempty"` // empty or "0s" disables
}

// PostBuildConfig lists commands sent over the channel after a successful update batch.
type PostBuildConfig struct {
	Commands []string `yaml:"commands,omitempty"`
}

// AdminConfig configures the admin HTTP API.
type AdminConfig struct {
	Listen  string `yaml:"listen"`
	Metrics bool   `yaml:"metrics"`
}

// JournalConfig configures the SQLite audit journal. An empty path disables it.
type JournalConfig struct {
	Path string `yaml:"path,omitempty"`
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// Load reads, expands, defaults and validates a configuration file.
func Load(configPath string) (*Config, error) {
	if err := loadEnvFile(); err != nil {
		fmt.Fprintf(os.Stderr, "Note: .env file not found or couldn't be loaded: %v\n", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, ferrors.ConfigError("configuration file not found").
			WithContext("path", configPath).
			Build()
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to read config file").
			WithContext("path", configPath).
			Build()
	}
	return Parse(data)
}

// Parse decodes configuration bytes after ${VAR} expansion, then applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to unmarshal config").Build()
	}
	if cfg.Version != CurrentVersion {
		return nil, ferrors.ConfigError("unsupported configuration version").
			WithContext("version", cfg.Version).
			WithContext("expected", CurrentVersion).
			Build()
	}

	applyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a fully defaulted configuration for the given project root.
func Default(root string) *Config {
	cfg := &Config{Version: CurrentVersion, Project: ProjectConfig{Root: root}}
	applyDefaults(cfg)
	return cfg
}

// DebounceDuration returns the parsed quiescence window.
func (w WatchConfig) DebounceDuration() time.Duration { return mustDuration(w.Debounce) }

func (c ChannelConfig) KeepAliveDuration() time.Duration    { return mustDuration(c.KeepAlive) }
func (c ChannelConfig) WriteTimeoutDuration() time.Duration { return mustDuration(c.WriteTimeout) }

// RequestTimeoutDuration returns 0 when no request timeout is configured.
func (c ChannelConfig) RequestTimeoutDuration() time.Duration { return mustDuration(c.RequestTimeout) }

func (e ExecConsumerConfig) TimeoutDuration() time.Duration { return mustDuration(e.Timeout) }

// mustDuration parses a duration that Validate has already checked; empty is zero.
func mustDuration(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0
	}
	return d
}
