package wsclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Close codes used by the client. Values follow RFC 6455.
const (
	CloseNormalClosure   = websocket.CloseNormalClosure
	CloseGoingAway       = websocket.CloseGoingAway
	CloseAbnormalClosure = websocket.CloseAbnormalClosure
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	closeWriteTimeout       = time.Second
)

// Frame is one transport message.
type Frame struct {
	Binary  bool
	Payload []byte
}

// Conn is one established transport session. ReadFrame is called from a
// single goroutine, WriteFrame from another; Close may be called from any
// goroutine and must unblock both.
type Conn interface {
	ReadFrame() (Frame, error)
	WriteFrame(frame Frame) error
	Close(code int, reason string) error
}

// Dialer opens transport sessions. Dial returns once the handshake finished
// or failed; it must honour ctx cancellation.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, url string) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, url string) (Conn, error) { return f(ctx, url) }

// CloseError reports a close frame received from the peer.
type CloseError struct {
	Code   int
	Reason string
}

func (err *CloseError) Error() string {
	if err.Reason == "" {
		return fmt.Sprintf("connection closed (%d)", err.Code)
	}
	return fmt.Sprintf("connection closed (%d): %s", err.Code, err.Reason)
}

// cleanClose reports whether err is a normal closure initiated by the peer.
func cleanClose(err error) bool {
	var closeErr *CloseError
	return errors.As(err, &closeErr) && closeErr.Code == CloseNormalClosure
}

// WebSocketDialer dials gorilla/websocket connections.
type WebSocketDialer struct {
	HandshakeTimeout time.Duration
	Header           http.Header
	TLSClientConfig  *tls.Config
	ReadLimit        int64
}

// NewWebSocketDialer returns a dialer with a ten second handshake timeout.
func NewWebSocketDialer() *WebSocketDialer {
	return &WebSocketDialer{HandshakeTimeout: defaultHandshakeTimeout}
}

// Dial performs the websocket handshake.
func (dialer *WebSocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	timeout := dialer.HandshakeTimeout
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}
	wsDialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
		TLSClientConfig:  dialer.TLSClientConfig,
	}

	conn, resp, err := wsDialer.DialContext(ctx, url, dialer.Header.Clone())
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: handshake status %d: %w", url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	if dialer.ReadLimit > 0 {
		conn.SetReadLimit(dialer.ReadLimit)
	}
	return &webSocketConn{conn: conn}, nil
}

type webSocketConn struct {
	conn      *websocket.Conn
	closeOnce sync.Once
	closeErr  error
}

func (connection *webSocketConn) ReadFrame() (Frame, error) {
	for {
		messageType, payload, err := connection.conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return Frame{}, &CloseError{Code: closeErr.Code, Reason: closeErr.Text}
			}
			return Frame{}, err
		}
		switch messageType {
		case websocket.TextMessage:
			return Frame{Payload: payload}, nil
		case websocket.BinaryMessage:
			return Frame{Binary: true, Payload: payload}, nil
		}
	}
}

func (connection *webSocketConn) WriteFrame(frame Frame) error {
	messageType := websocket.TextMessage
	if frame.Binary {
		messageType = websocket.BinaryMessage
	}
	return connection.conn.WriteMessage(messageType, frame.Payload)
}

func (connection *webSocketConn) Close(code int, reason string) error {
	connection.closeOnce.Do(func() {
		if code != 0 {
			message := websocket.FormatCloseMessage(code, reason)
			_ = connection.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(closeWriteTimeout))
		}
		connection.closeErr = connection.conn.Close()
	})
	return connection.closeErr
}
