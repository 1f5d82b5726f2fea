package config

import (
	"time"

	redisclient "github.com/vietddude/relaychat/internal/infra/redis"
	"github.com/vietddude/relaychat/internal/infra/relay/retry"
	"github.com/vietddude/relaychat/internal/infra/relay/stream"
)

// Session storage backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server  ServerConfig  `yaml:"server"`
	Relay   RelayConfig   `yaml:"relay"`
	Page    PageConfig    `yaml:"page"`
	Retry   retry.Config  `yaml:"retry"`
	Stream  stream.Config `yaml:"stream"`
	Session SessionConfig `yaml:"session"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// RelayConfig holds the relay endpoint and widget credentials.
type RelayConfig struct {
	URL        string         `yaml:"url"`
	WidgetKey  string         `yaml:"widget_key"`
	WidgetID   string         `yaml:"widget_id"`
	LicenseKey string         `yaml:"license_key"`
	Timeout    time.Duration  `yaml:"timeout"`
	Context    map[string]any `yaml:"custom_context"`
	Inputs     map[string]any `yaml:"extra_inputs"`
}

// PageConfig describes the host page the widget is embedded in.
type PageConfig struct {
	URL   string `yaml:"url"`
	Title string `yaml:"title"`
}

// SessionConfig selects where session ids live.
type SessionConfig struct {
	Backend string             `yaml:"backend"` // memory, redis
	Redis   redisclient.Config `yaml:"redis"`
}
