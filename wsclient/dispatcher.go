package wsclient

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// EventKind tags a dispatched Event.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventMessage
	EventGaveUp
)

func (kind EventKind) String() string {
	switch kind {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventMessage:
		return "message"
	case EventGaveUp:
		return "gave_up"
	default:
		return "unknown"
	}
}

// InboundMessage is one payload received from the transport. The payload is
// not interpreted.
type InboundMessage struct {
	Payload    []byte
	Binary     bool
	SessionID  string
	ReceivedAt time.Time
}

// Event is what subscribers receive. Message is set for EventMessage only.
// Err carries the failure behind a Disconnected or GaveUp event and is nil
// for owner-initiated or clean closes. Attempt is the retry number scheduled
// after a Disconnected event, or the total retries made for GaveUp.
type Event struct {
	Kind      EventKind
	Message   *InboundMessage
	Err       error
	Attempt   int
	SessionID string
	At        time.Time
}

// Handler receives dispatched events. A returned error is reported as a
// HandlerError; it never stops delivery to other handlers.
type Handler func(Event) error

// HandlerFunc adapts a handler that cannot fail.
func HandlerFunc(fn func(Event)) Handler {
	return func(event Event) error {
		fn(event)
		return nil
	}
}

// Subscription identifies a registered handler.
type Subscription struct {
	id uint64
}

// ID returns the numeric subscription identifier.
func (subscription Subscription) ID() uint64 { return subscription.id }

// Valid reports whether the subscription came from Subscribe.
func (subscription Subscription) Valid() bool { return subscription.id != 0 }

type subscriber struct {
	subscription Subscription
	handler      Handler
}

// Dispatcher fans events out to subscribers in registration order.
type Dispatcher struct {
	lock        sync.Mutex
	nextID      uint64
	subscribers []subscriber
	report      func(error)
	logger      *zap.Logger
	metrics     *Metrics
}

// NewDispatcher returns a Dispatcher. report receives every HandlerError and
// may be nil.
func NewDispatcher(report func(error), logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{report: report, logger: logger}
}

// Subscribe registers handler and returns its handle. A nil handler yields
// an invalid Subscription.
func (dispatcher *Dispatcher) Subscribe(handler Handler) Subscription {
	if handler == nil {
		return Subscription{}
	}
	dispatcher.lock.Lock()
	defer dispatcher.lock.Unlock()

	dispatcher.nextID++
	subscription := Subscription{id: dispatcher.nextID}
	next := make([]subscriber, len(dispatcher.subscribers), len(dispatcher.subscribers)+1)
	copy(next, dispatcher.subscribers)
	dispatcher.subscribers = append(next, subscriber{subscription: subscription, handler: handler})
	return subscription
}

// Unsubscribe removes the handler. It reports whether it was registered.
func (dispatcher *Dispatcher) Unsubscribe(subscription Subscription) bool {
	if !subscription.Valid() {
		return false
	}
	dispatcher.lock.Lock()
	defer dispatcher.lock.Unlock()

	for index, entry := range dispatcher.subscribers {
		if entry.subscription != subscription {
			continue
		}
		next := make([]subscriber, 0, len(dispatcher.subscribers)-1)
		next = append(next, dispatcher.subscribers[:index]...)
		next = append(next, dispatcher.subscribers[index+1:]...)
		dispatcher.subscribers = next
		return true
	}
	return false
}

// Len returns the number of registered handlers.
func (dispatcher *Dispatcher) Len() int {
	dispatcher.lock.Lock()
	defer dispatcher.lock.Unlock()
	return len(dispatcher.subscribers)
}

// Dispatch delivers event to the handlers registered when it starts and
// returns how many of them failed.
func (dispatcher *Dispatcher) Dispatch(event Event) int {
	dispatcher.lock.Lock()
	snapshot := dispatcher.subscribers
	dispatcher.lock.Unlock()

	failures := 0
	for _, entry := range snapshot {
		if err := dispatcher.deliver(entry, event); err != nil {
			failures++
			dispatcher.fail(err)
		}
	}
	return failures
}

func (dispatcher *Dispatcher) deliver(entry subscriber, event Event) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = &HandlerFailure{
				Subscription: entry.subscription,
				Kind:         event.Kind,
				Err:          fmt.Errorf("panic: %v", recovered),
			}
		}
	}()
	if handlerErr := entry.handler(event); handlerErr != nil {
		return &HandlerFailure{Subscription: entry.subscription, Kind: event.Kind, Err: handlerErr}
	}
	return nil
}

func (dispatcher *Dispatcher) fail(err error) {
	dispatcher.logger.Warn("Subscriber failed", zap.Error(err))
	dispatcher.metrics.handlerFailed()
	if dispatcher.report == nil {
		return
	}
	func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				dispatcher.logger.Error("Error handler panicked", zap.Any("panic", recovered))
			}
		}()
		dispatcher.report(err)
	}()
}
