package wsclient

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Client owns one logical reconnecting connection. Construct it with
// NewClient and pass it explicitly to whatever consumes its events; there is
// no package-level registration.
type Client struct {
	lock       sync.Mutex
	cfg        EndpointConfig
	state      ConnectionState
	gen        uint64
	session    *session
	cancelDial context.CancelFunc
	workers    *sync.WaitGroup

	scheduler  *RetryScheduler
	dispatcher *Dispatcher
	events     *eventQueue

	dialer           Dialer
	header           http.Header
	handshakeTimeout time.Duration
	clock            clockwork.Clock
	logger           *zap.Logger
	metrics          *Metrics
	listeners        []StateListener
	errorHandler     func(error)
	queueSize        int
}

// NewClient validates cfg and builds an Idle client.
func NewClient(cfg EndpointConfig, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := &Client{
		cfg:       cfg,
		state:     StateIdle,
		clock:     clockwork.NewRealClock(),
		logger:    zap.NewNop(),
		queueSize: defaultOutboundQueueSize,
		events:    newEventQueue(0),
	}
	for _, opt := range opts {
		if err := opt(client); err != nil {
			return nil, NewError(InvalidConfigError, err)
		}
	}

	if client.dialer == nil {
		dialer := NewWebSocketDialer()
		dialer.Header = client.header
		if client.handshakeTimeout > 0 {
			dialer.HandshakeTimeout = client.handshakeTimeout
		}
		client.dialer = dialer
	}
	client.logger = client.logger.With(zap.String("component", "wsclient"))
	client.scheduler = NewRetryScheduler(PolicyFromConfig(cfg), client.clock)
	client.dispatcher = NewDispatcher(client.reportError, client.logger)
	client.dispatcher.metrics = client.metrics
	client.metrics.stateChanged(StateIdle)
	return client, nil
}

func (client *Client) reportError(err error) {
	if client.errorHandler != nil {
		client.errorHandler(err)
	}
}

// Start begins connecting. It is a no-op while a connection is being made,
// is open, or a retry is pending. From Closed it resets the retry counter and
// starts over.
func (client *Client) Start() {
	client.lock.Lock()
	defer client.lock.Unlock()

	switch client.state {
	case StateIdle, StateClosed:
	default:
		client.logger.Debug("Start ignored", zap.String("state", client.state.String()))
		return
	}
	client.scheduler.Reset()
	client.connectLocked()
}

// Stop cancels a pending retry, closes an open session and leaves the client
// Closed. It waits for the session goroutines to exit. Calling Stop on a
// Closed client emits nothing.
func (client *Client) Stop() error {
	client.lock.Lock()

	var err error
	workers := client.workers
	switch client.state {
	case StateClosed:
		client.lock.Unlock()
		if workers != nil {
			workers.Wait()
		}
		return nil
	case StateIdle:
		client.setStateLocked(StateClosed)
	case StateConnecting:
		client.gen++
		client.releaseDialLocked()
		client.setStateLocked(StateClosed)
	case StateFailed:
		client.scheduler.Cancel()
		client.gen++
		client.setStateLocked(StateClosed)
	case StateOpen:
		client.gen++
		client.setStateLocked(StateClosing)
		current := client.session
		client.session = nil
		if current != nil {
			if closeErr := current.close(CloseNormalClosure, "client stopping"); closeErr != nil {
				err = NewError(TransportError, "close failed", closeErr)
			}
			client.emitLocked(Event{Kind: EventDisconnected, SessionID: current.id})
		}
		client.setStateLocked(StateClosed)
	}
	client.logger.Info("Client stopped", zap.String("url", client.cfg.URL))
	client.lock.Unlock()

	if workers != nil {
		workers.Wait()
	}
	return err
}

// Send queues payload as a text frame. It fails with NotConnectedError
// outside the Open state and never blocks.
func (client *Client) Send(payload []byte) error {
	return client.send(Frame{Payload: payload})
}

// SendBinary queues payload as a binary frame.
func (client *Client) SendBinary(payload []byte) error {
	return client.send(Frame{Binary: true, Payload: payload})
}

func (client *Client) send(frame Frame) error {
	client.lock.Lock()
	defer client.lock.Unlock()

	if client.state != StateOpen || client.session == nil {
		return NewError(NotConnectedError, "client is "+client.state.String())
	}
	frame.Payload = append([]byte(nil), frame.Payload...)
	if !client.session.enqueue(frame) {
		return NewError(OutboundQueueFullError, "outbound queue is full")
	}
	client.metrics.sent()
	return nil
}

// Subscribe registers handler for lifecycle and message events.
func (client *Client) Subscribe(handler Handler) Subscription {
	return client.dispatcher.Subscribe(handler)
}

// Unsubscribe removes a handler registered with Subscribe.
func (client *Client) Unsubscribe(subscription Subscription) bool {
	return client.dispatcher.Unsubscribe(subscription)
}

// Flush blocks until every event produced so far was delivered. It must not
// be called from a Handler or StateListener.
func (client *Client) Flush() {
	client.events.wait()
}

// State returns the current connection state.
func (client *Client) State() ConnectionState {
	client.lock.Lock()
	defer client.lock.Unlock()
	return client.state
}

// Attempts returns the retries made since the last successful connection or
// explicit Start.
func (client *Client) Attempts() int {
	return client.scheduler.Attempts()
}

// SessionID returns the identifier of the open session, or "".
func (client *Client) SessionID() string {
	client.lock.Lock()
	defer client.lock.Unlock()
	if client.session == nil {
		return ""
	}
	return client.session.id
}

// Config returns the endpoint configuration the client was built with.
func (client *Client) Config() EndpointConfig {
	return client.cfg
}

// URL returns the endpoint URL.
func (client *Client) URL() string {
	return client.cfg.URL
}
