package wsclient

import (
	"fmt"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const defaultOutboundQueueSize = 64

// Option configures a Client in NewClient.
//
// Example:
//
//	client, err := wsclient.NewClient(cfg,
//	    wsclient.WithLogger(logger),
//	    wsclient.WithMetrics(metrics),
//	)
type Option func(*Client) error

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(client *Client) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		client.logger = logger
		return nil
	}
}

// WithDialer replaces the gorilla/websocket dialer, typically in tests or to
// tunnel through a custom transport.
func WithDialer(dialer Dialer) Option {
	return func(client *Client) error {
		if dialer == nil {
			return fmt.Errorf("dialer cannot be nil")
		}
		client.dialer = dialer
		return nil
	}
}

// WithHeader adds HTTP headers to the handshake of the default dialer.
func WithHeader(header http.Header) Option {
	return func(client *Client) error {
		client.header = header.Clone()
		return nil
	}
}

// WithHandshakeTimeout bounds the handshake of the default dialer.
func WithHandshakeTimeout(timeout time.Duration) Option {
	return func(client *Client) error {
		if timeout < 0 {
			return fmt.Errorf("handshake timeout cannot be negative")
		}
		client.handshakeTimeout = timeout
		return nil
	}
}

// WithClock sets the clock driving retry timers.
func WithClock(clock clockwork.Clock) Option {
	return func(client *Client) error {
		if clock == nil {
			return fmt.Errorf("clock cannot be nil")
		}
		client.clock = clock
		return nil
	}
}

// WithErrorHandler receives side-channel failures: HandlerError reports and
// panics raised by state listeners.
func WithErrorHandler(handler func(error)) Option {
	return func(client *Client) error {
		client.errorHandler = handler
		return nil
	}
}

// WithStateListener registers a listener for every state transition.
func WithStateListener(listener StateListener) Option {
	return func(client *Client) error {
		if listener == nil {
			return fmt.Errorf("state listener cannot be nil")
		}
		client.listeners = append(client.listeners, listener)
		return nil
	}
}

// WithMetrics records client activity into metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(client *Client) error {
		client.metrics = metrics
		return nil
	}
}

// WithOutboundQueueSize bounds the per-session send queue.
func WithOutboundQueueSize(size int) Option {
	return func(client *Client) error {
		if size <= 0 {
			return fmt.Errorf("outbound queue size must be positive, got %d", size)
		}
		client.queueSize = size
		return nil
	}
}
