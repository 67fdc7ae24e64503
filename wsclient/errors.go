package wsclient

import (
	"errors"
	"fmt"
)

const (
	ConnectError = iota

	TransportError

	NotConnectedError

	HandlerError

	InvalidConfigError

	OutboundQueueFullError

	UnknownError
)

// Error is a typed client error. Two errors match with errors.Is when their
// codes are equal.
type Error struct {
	Code    int
	Message string
	Err     error
}

func (err *Error) Error() string {
	name := errorName(err.Code)
	switch {
	case err.Message != "" && err.Err != nil:
		return fmt.Sprintf("%s: %s: %v", name, err.Message, err.Err)
	case err.Message != "":
		return fmt.Sprintf("%s: %s", name, err.Message)
	case err.Err != nil:
		return fmt.Sprintf("%s: %v", name, err.Err)
	}
	return name
}

func (err *Error) Unwrap() error { return err.Err }

// Is reports whether target is an *Error carrying the same code.
func (err *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == err.Code
}

// Sentinels for errors.Is checks.
var (
	ErrNotConnected      = &Error{Code: NotConnectedError}
	ErrOutboundQueueFull = &Error{Code: OutboundQueueFullError}
	ErrInvalidConfig     = &Error{Code: InvalidConfigError}
	ErrConnect           = &Error{Code: ConnectError}
	ErrTransport         = &Error{Code: TransportError}
	ErrHandler           = &Error{Code: HandlerError}
)

func errorName(errorCode int) string {
	switch errorCode {
	case ConnectError:
		return "ConnectError"
	case TransportError:
		return "TransportError"
	case NotConnectedError:
		return "NotConnectedError"
	case HandlerError:
		return "HandlerError"
	case InvalidConfigError:
		return "InvalidConfigError"
	case OutboundQueueFullError:
		return "OutboundQueueFullError"
	default:
		return "UnknownError"
	}
}

// NewError builds an *Error. The optional message argument may be a string,
// an error (stored as the cause), or any value formatted with %v.
func NewError(errorCode int, message ...interface{}) error {
	err := &Error{Code: errorCode}
	if len(message) == 0 {
		return err
	}
	switch value := message[0].(type) {
	case error:
		err.Err = value
	case string:
		err.Message = value
	default:
		err.Message = fmt.Sprint(value)
	}
	if len(message) > 1 {
		if cause, ok := message[1].(error); ok {
			err.Err = cause
		}
	}
	return err
}

// HandlerFailure is reported when a subscriber returns an error or panics
// during dispatch. It matches ErrHandler.
type HandlerFailure struct {
	Subscription Subscription
	Kind         EventKind
	Err          error
}

func (failure *HandlerFailure) Error() string {
	return fmt.Sprintf("HandlerError: subscriber %d failed on %s: %v", failure.Subscription.id, failure.Kind, failure.Err)
}

func (failure *HandlerFailure) Unwrap() error { return failure.Err }

func (failure *HandlerFailure) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == HandlerError
}
