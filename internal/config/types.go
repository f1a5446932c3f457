package config

import (
	"fmt"
	"strings"

	"refetch/internal/refetch"
)

// Config is the refetchd configuration file (JSON or YAML).
type Config struct {
	Logging LoggingConfig `json:"logging"`
	Refetch RefetchConfig `json:"refetch"`
}

type LoggingConfig struct {
	Level   string     `json:"level"`
	Console bool       `json:"console"`
	File    FileConfig `json:"file"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// RefetchConfig maps onto refetch.Options.
//
// All durations are Go duration strings (e.g. "500ms", "30s", "5m").
// An empty or zero interval disables the periodic refetch.
// Schedule accepts anything refetch.ParseSchedule does.
// MaxListeners: 0 means the default (1000), negative disables the warning.
type RefetchConfig struct {
	Interval     string `json:"interval,omitempty"`
	Schedule     string `json:"schedule,omitempty"`
	MaxListeners int    `json:"max_listeners,omitempty"`
}

// Options converts the section into provider options.
func (r RefetchConfig) Options() (refetch.Options, error) {
	iv, err := ParseDurationField("refetch.interval", r.Interval)
	if err != nil {
		return refetch.Options{}, err
	}
	sched := strings.TrimSpace(r.Schedule)
	if sched != "" {
		if _, err := refetch.ParseSchedule(sched); err != nil {
			return refetch.Options{}, fmt.Errorf("refetch.schedule: %w", err)
		}
	}
	return refetch.Options{
		Interval:     iv,
		Schedule:     sched,
		MaxListeners: r.MaxListeners,
	}, nil
}

// Validate checks every section that can be checked without side effects.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	switch strings.ToUpper(strings.TrimSpace(c.Logging.Level)) {
	case "", "TRACE", "DEBUG", "INFO", "WARN", "WARNING", "ERROR":
	default:
		return fmt.Errorf("logging.level: unknown level %q", c.Logging.Level)
	}
	_, err := c.Refetch.Options()
	return err
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Console: true},
	}
}
