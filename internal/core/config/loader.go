package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"

	redisclient "github.com/vietddude/relaychat/internal/infra/redis"
	"github.com/vietddude/relaychat/internal/infra/relay/dispatcher"
	"github.com/vietddude/relaychat/internal/infra/relay/retry"
	"github.com/vietddude/relaychat/internal/infra/relay/stream"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML content, expanding environment variables and filling defaults.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	cfg.Relay.Context, _ = normalize(cfg.Relay.Context).(map[string]any)
	cfg.Relay.Inputs, _ = normalize(cfg.Relay.Inputs).(map[string]any)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Relay.Timeout == 0 {
		c.Relay.Timeout = dispatcher.DefaultTimeout
	}

	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = retry.DefaultConfig.MaxAttempts
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = retry.DefaultConfig.BaseDelay
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = max(retry.DefaultConfig.MaxDelay, c.Retry.BaseDelay)
	}
	if c.Retry.JitterPercent == 0 {
		c.Retry.JitterPercent = retry.DefaultConfig.JitterPercent
	}

	if c.Stream.MaxReconnectAttempts == 0 {
		c.Stream.MaxReconnectAttempts = stream.DefaultConfig.MaxReconnectAttempts
	}
	if c.Stream.BaseDelay == 0 {
		c.Stream.BaseDelay = stream.DefaultConfig.BaseDelay
	}
	if c.Stream.MaxDelay == 0 {
		c.Stream.MaxDelay = max(stream.DefaultConfig.MaxDelay, c.Stream.BaseDelay)
	}

	c.Session.Backend = strings.ToLower(c.Session.Backend)
	if c.Session.Backend == "" {
		c.Session.Backend = BackendMemory
	}
	if c.Session.Redis.TTL == 0 {
		c.Session.Redis.TTL = redisclient.DefaultTTL
	}
}

// Validate checks the settings that defaults cannot fill.
func (c *AppConfig) Validate() error {
	var errs []error
	if err := c.DispatcherConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Page.URL != "" {
		if _, err := dispatcher.NewPageContext(c.Page.URL, c.Page.Title); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.Retry.Validate(); err != nil {
		errs = append(errs, err)
	}
	switch c.Session.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Session.Redis.URL == "" {
			errs = append(errs, errors.New("session.redis.url is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown session backend %q", c.Session.Backend))
	}
	return errors.Join(errs...)
}

// DispatcherConfig builds the dispatcher settings from the relay and page sections.
func (c *AppConfig) DispatcherConfig() dispatcher.Config {
	cfg := dispatcher.Config{
		URL:           c.Relay.URL,
		WidgetKey:     c.Relay.WidgetKey,
		WidgetID:      c.Relay.WidgetID,
		LicenseKey:    c.Relay.LicenseKey,
		Timeout:       c.Relay.Timeout,
		CustomContext: c.Relay.Context,
		ExtraInputs:   c.Relay.Inputs,
	}
	if c.Page.URL != "" {
		// Validate rejects an unparsable page url.
		cfg.Page, _ = dispatcher.NewPageContext(c.Page.URL, c.Page.Title)
	}
	return cfg
}

// normalize converts the map[interface{}]interface{} values yaml.v2 produces for
// nested mappings into map[string]any so they can be JSON encoded.
func normalize(v any) any {
	switch t := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case map[string]any:
		for k, val := range t {
			t[k] = normalize(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = normalize(val)
		}
		return t
	default:
		return v
	}
}
