package config

// Default values applied to any field left empty.
const (
	DefaultDebounce          = "200ms"
	DefaultChannelListen     = "localhost:19134"
	DefaultChannelPath       = "/"
	DefaultKeepAlive         = "25s"
	DefaultWriteTimeout      = "10s"
	DefaultAdminListen       = "127.0.0.1:19135"
	DefaultNATSURL           = "nats://127.0.0.1:4222"
	DefaultNATSStream        = "DASHLINK"
	DefaultNATSSubjectPrefix = "dashlink"
	DefaultExecTimeout       = "5m"
)

func applyDefaults(cfg *Config) {
	if cfg.Project.Root == "" {
		cfg.Project.Root = "."
	}
	if cfg.Watch.Debounce == "" {
		cfg.Watch.Debounce = DefaultDebounce
	}

	if cfg.Consumer.Type == "" {
		cfg.Consumer.Type = ConsumerLog
	}
	if cfg.Consumer.Exec.Timeout == "" {
		cfg.Consumer.Exec.Timeout = DefaultExecTimeout
	}
	if cfg.Consumer.NATS.URL == "" {
		cfg.Consumer.NATS.URL = DefaultNATSURL
	}
	if cfg.Consumer.NATS.Stream == "" {
		cfg.Consumer.NATS.Stream = DefaultNATSStream
	}
	if cfg.Consumer.NATS.SubjectPrefix == "" {
		cfg.Consumer.NATS.SubjectPrefix = DefaultNATSSubjectPrefix
	}
	// Unknown modes are left as written for Validate to report.
	if cfg.Consumer.Retry.Backoff == "" {
		cfg.Consumer.Retry.Backoff = RetryBackoffLinear
	} else if mode := NormalizeRetryBackoff(string(cfg.Consumer.Retry.Backoff)); mode != "" {
		cfg.Consumer.Retry.Backoff = mode
	}
	if cfg.Consumer.Retry.InitialDelay == "" {
		cfg.Consumer.Retry.InitialDelay = "500ms"
	}
	if cfg.Consumer.Retry.MaxDelay == "" {
		cfg.Consumer.Retry.MaxDelay = "5s"
	}

	if cfg.Channel.Listen == "" {
		cfg.Channel.Listen = DefaultChannelListen
	}
	if cfg.Channel.Path == "" {
		cfg.Channel.Path = DefaultChannelPath
	}
	if cfg.Channel.KeepAlive == "" {
		cfg.Channel.KeepAlive = DefaultKeepAlive
	}
	if cfg.Channel.WriteTimeout == "" {
		cfg.Channel.WriteTimeout = DefaultWriteTimeout
	}

	if cfg.Admin.Listen == "" {
		cfg.Admin.Listen = DefaultAdminListen
	}

	cfg.Logging.Level = NormalizeLogLevel(string(cfg.Logging.Level))
	cfg.Logging.Format = NormalizeLogFormat(string(cfg.Logging.Format))
}
