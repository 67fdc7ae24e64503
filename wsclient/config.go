package wsclient

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Retry defaults.
const (
	DefaultMaxAttempts = 5
	DefaultDelay       = 3 * time.Second
)

// EndpointConfig describes where to connect and how aggressively to retry.
// A Client keeps its own copy; changing the value after NewClient has no
// effect.
type EndpointConfig struct {
	URL         string
	Reconnect   bool
	MaxAttempts int
	Delay       time.Duration
}

// DefaultEndpointConfig returns a reconnecting config with five attempts
// three seconds apart.
func DefaultEndpointConfig(uri string) EndpointConfig {
	return EndpointConfig{
		URL:         uri,
		Reconnect:   true,
		MaxAttempts: DefaultMaxAttempts,
		Delay:       DefaultDelay,
	}
}

// Unlimited reports whether retries are unbounded (reconnect enabled with a
// zero attempt limit).
func (cfg EndpointConfig) Unlimited() bool {
	return cfg.Reconnect && cfg.MaxAttempts == 0
}

// Validate checks the URL scheme and the non-negative retry parameters.
func (cfg EndpointConfig) Validate() error {
	err := validation.ValidateStruct(&cfg,
		validation.Field(&cfg.URL, validation.Required, validation.By(websocketURL)),
		validation.Field(&cfg.MaxAttempts, validation.Min(0)),
		validation.Field(&cfg.Delay, validation.Min(time.Duration(0))),
	)
	if err != nil {
		return NewError(InvalidConfigError, err)
	}
	return nil
}

func websocketURL(value interface{}) error {
	raw, _ := value.(string)
	parsed, err := url.Parse(raw)
	if err != nil {
		return errors.New("must be a valid URI")
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return fmt.Errorf("scheme must be ws or wss, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return errors.New("must include a host")
	}
	return nil
}

// JoinURL joins an externally supplied base with a fixed path suffix. A base
// without a scheme ("//host/prefix" or "host/prefix") is treated as wss.
func JoinURL(base string, suffix string) (string, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return "", NewError(InvalidConfigError, "empty base URL")
	}
	switch {
	case strings.HasPrefix(base, "//"):
		base = "wss:" + base
	case strings.HasPrefix(base, "wss:") && !strings.HasPrefix(base, "wss://"):
		base = "wss://" + strings.TrimPrefix(base, "wss:")
	case !strings.Contains(base, "://"):
		base = "wss://" + base
	}

	parsed, err := url.Parse(base)
	if err != nil {
		return "", NewError(InvalidConfigError, "invalid base URL", err)
	}
	if suffix != "" {
		parsed = parsed.JoinPath(strings.Split(strings.Trim(suffix, "/"), "/")...)
	}
	return parsed.String(), nil
}
