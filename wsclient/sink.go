package wsclient

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// Sink receives decoded inbound messages, typically an application state
// store.
type Sink[T any] interface {
	Push(value T) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc[T any] func(value T) error

func (f SinkFunc[T]) Push(value T) error { return f(value) }

// Decoder turns a raw payload into a sink value.
type Decoder[T any] func(message *InboundMessage) (T, error)

// DecodeJSON decodes the payload as JSON into T.
func DecodeJSON[T any]() Decoder[T] {
	return func(message *InboundMessage) (T, error) {
		var value T
		if err := json.Unmarshal(message.Payload, &value); err != nil {
			return value, fmt.Errorf("decode %d byte payload: %w", len(message.Payload), err)
		}
		return value, nil
	}
}

// DecodeRaw passes the message through untouched.
func DecodeRaw(message *InboundMessage) (*InboundMessage, error) {
	return message, nil
}

// SinkHandler returns a Handler that decodes every EventMessage and pushes
// the value into sink. Lifecycle events are ignored. Decode and push
// failures are returned, so the dispatcher reports them as HandlerError.
func SinkHandler[T any](sink Sink[T], decode Decoder[T]) Handler {
	return func(event Event) error {
		if event.Kind != EventMessage || event.Message == nil {
			return nil
		}
		value, err := decode(event.Message)
		if err != nil {
			return err
		}
		return sink.Push(value)
	}
}
