package config

import (
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-viper/mapstructure/v2"
	toml "github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/binghan60/client/wsclient"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "WSCLIENT_"

// Config holds the settings of a process embedding one client.
type Config struct {
	Connection ConnectionConfig `koanf:"endpoint"`
	Logging    LoggingConfig    `koanf:"logging"`
	Metrics    MetricsConfig    `koanf:"metrics"`
}

// ConnectionConfig describes the endpoint. The URL is BaseURL joined with
// Path; with no BaseURL, Path alone must name the host ("//host/ws").
type ConnectionConfig struct {
	BaseURL          string        `koanf:"base_url"`
	Path             string        `koanf:"path"`
	Reconnect        bool          `koanf:"reconnect"`
	MaxAttempts      int           `koanf:"max_attempts"`
	Delay            time.Duration `koanf:"delay"`
	HandshakeTimeout time.Duration `koanf:"handshake_timeout"`
}

// LoggingConfig selects the zap logger.
type LoggingConfig struct {
	Level       string `koanf:"level"`
	Development bool   `koanf:"development"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Address string `koanf:"address"`
}

// Load reads configuration from defaults, the TOML file at path (skipped
// when path is empty) and WSCLIENT_ environment variables, in increasing
// priority.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			TagName:          "koanf",
			WeaklyTypedInput: true,
			Result:           cfg,
			DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// envKey maps WSCLIENT_ENDPOINT_MAX__ATTEMPTS to endpoint.max_attempts. A
// double underscore is a literal underscore.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))

	switch s {
	case "ws_path":
		return "endpoint.path"
	case "ws_base_url":
		return "endpoint.base_url"
	case "log_level":
		return "logging.level"
	}

	s = strings.ReplaceAll(s, "__", "%UNDERSCORE%")
	s = strings.ReplaceAll(s, "_", ".")
	s = strings.ReplaceAll(s, "%UNDERSCORE%", "_")
	return s
}

func defaultConfig() *Config {
	return &Config{
		Connection: ConnectionConfig{
			Reconnect:        true,
			MaxAttempts:      wsclient.DefaultMaxAttempts,
			Delay:            wsclient.DefaultDelay,
			HandshakeTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Address: ":9090",
		},
	}
}

// Validate checks every section and the resulting endpoint URL.
func (c *Config) Validate() error {
	connection := c.Connection
	err := validation.ValidateStruct(&connection,
		validation.Field(&connection.Path, validation.When(connection.BaseURL == "", validation.Required.Error("is required when base_url is empty"))),
		validation.Field(&connection.MaxAttempts, validation.Min(0)),
		validation.Field(&connection.Delay, validation.Min(time.Duration(0))),
		validation.Field(&connection.HandshakeTimeout, validation.Min(time.Duration(0))),
	)
	if err != nil {
		return fmt.Errorf("endpoint: %w", err)
	}

	logging := c.Logging
	if err := validation.ValidateStruct(&logging,
		validation.Field(&logging.Level, validation.In("debug", "info", "warn", "warning", "error")),
	); err != nil {
		return fmt.Errorf("logging: %w", err)
	}

	metrics := c.Metrics
	if err := validation.ValidateStruct(&metrics,
		validation.Field(&metrics.Address, validation.When(metrics.Enabled, validation.Required)),
	); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	_, err = c.Endpoint()
	return err
}

// Endpoint returns the validated client configuration.
func (c *Config) Endpoint() (wsclient.EndpointConfig, error) {
	base, suffix := c.Connection.BaseURL, c.Connection.Path
	if base == "" {
		base, suffix = suffix, ""
	}
	uri, err := wsclient.JoinURL(base, suffix)
	if err != nil {
		return wsclient.EndpointConfig{}, err
	}

	endpoint := wsclient.EndpointConfig{
		URL:         uri,
		Reconnect:   c.Connection.Reconnect,
		MaxAttempts: c.Connection.MaxAttempts,
		Delay:       c.Connection.Delay,
	}
	if err := endpoint.Validate(); err != nil {
		return wsclient.EndpointConfig{}, err
	}
	return endpoint, nil
}
