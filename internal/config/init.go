package config

import (
	"os"

	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/dashlink/internal/foundation/errors"
)

// Example returns the configuration written by `dashlink init`.
func Example() *Config {
	cfg := &Config{
		Version: CurrentVersion,
		Project: ProjectConfig{
			Root: ".",
			Ignore: IgnoreConfig{
				Suffixes:     []string{".tmp"},
				UseGitignore: true,
			},
		},
		Watch: WatchConfig{Debounce: DefaultDebounce},
		Consumer: ConsumerConfig{
			Type: ConsumerExec,
			Exec: ExecConsumerConfig{
				Command: "dash",
				Args:    []string{"compile"},
				Timeout: DefaultExecTimeout,
			},
			Retry: RetryConfig{Backoff: RetryBackoffLinear, InitialDelay: "500ms", MaxDelay: "5s", MaxRetries: 2},
		},
		Channel: ChannelConfig{
			Listen:       DefaultChannelListen,
			Path:         DefaultChannelPath,
			KeepAlive:    DefaultKeepAlive,
			WriteTimeout: DefaultWriteTimeout,
		},
		PostBuild: PostBuildConfig{Commands: []string{"reload"}},
		Admin:     AdminConfig{Listen: DefaultAdminListen, Metrics: true},
		Journal:   JournalConfig{Path: "./dashlink-journal.db"},
		Logging:   LoggingConfig{Level: LogLevelInfo, Format: LogFormatText},
	}
	return cfg
}

// Init writes an example configuration file.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return ferrors.ConfigError("configuration file already exists (use --force to overwrite)").
			WithContext("path", configPath).
			Build()
	}

	data, err := yaml.Marshal(Example())
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "marshal example config").Build()
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "write config file").
			WithContext("path", configPath).
			Build()
	}
	return nil
}
