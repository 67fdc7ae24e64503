package wsclient

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/binghan60/client/internal/testutil"
	"github.com/jonboulle/clockwork"
)

const testTimeout = 2 * time.Second

var errRefused = errors.New("connection refused")

type readResult struct {
	frame Frame
	err   error
}

type testConn struct {
	lock      sync.Mutex
	reads     chan readResult
	closed    chan struct{}
	closeOnce sync.Once
	closeCode int
	written   []Frame
	writes    chan Frame
	writeGate chan struct{}
	writeErr  error
}

func newTestConn() *testConn {
	return &testConn{
		reads:  make(chan readResult, 64),
		closed: make(chan struct{}),
		writes: make(chan Frame, 64),
	}
}

func (connection *testConn) deliver(payload string) {
	connection.reads <- readResult{frame: Frame{Payload: []byte(payload)}}
}

func (connection *testConn) fail(err error) {
	connection.reads <- readResult{err: err}
}

func (connection *testConn) ReadFrame() (Frame, error) {
	select {
	case result := <-connection.reads:
		return result.frame, result.err
	case <-connection.closed:
		return Frame{}, errors.New("use of closed connection")
	}
}

func (connection *testConn) WriteFrame(frame Frame) error {
	if connection.writeGate != nil {
		select {
		case <-connection.writeGate:
		case <-connection.closed:
			return errors.New("use of closed connection")
		}
	}
	connection.lock.Lock()
	defer connection.lock.Unlock()
	select {
	case <-connection.closed:
		return errors.New("use of closed connection")
	default:
	}
	if connection.writeErr != nil {
		return connection.writeErr
	}
	connection.written = append(connection.written, frame)
	connection.writes <- frame
	return nil
}

func (connection *testConn) Close(code int, reason string) error {
	connection.closeOnce.Do(func() {
		connection.lock.Lock()
		connection.closeCode = code
		connection.lock.Unlock()
		close(connection.closed)
	})
	return nil
}

func (connection *testConn) isClosed() bool {
	select {
	case <-connection.closed:
		return true
	default:
		return false
	}
}

func (connection *testConn) CloseCode() int {
	connection.lock.Lock()
	defer connection.lock.Unlock()
	return connection.closeCode
}

func (connection *testConn) Written() []Frame {
	connection.lock.Lock()
	defer connection.lock.Unlock()
	return append([]Frame(nil), connection.written...)
}

type dialOutcome struct {
	conn Conn
	err  error
	// block waits for cancellation; a non-nil conn is then returned late.
	block bool
}

func dialFails() dialOutcome                { return dialOutcome{err: errRefused} }
func dialOpens(conn *testConn) dialOutcome  { return dialOutcome{conn: conn} }
func dialBlocks() dialOutcome               { return dialOutcome{block: true} }
func dialLate(conn *testConn) dialOutcome   { return dialOutcome{conn: conn, block: true} }

type testDialer struct {
	lock     sync.Mutex
	outcomes []dialOutcome
	fallback dialOutcome
	attempts testutil.Counter
}

func newTestDialer(fallback dialOutcome, outcomes ...dialOutcome) *testDialer {
	return &testDialer{outcomes: outcomes, fallback: fallback}
}

func (dialer *testDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer.attempts.Next()
	dialer.lock.Lock()
	outcome := dialer.fallback
	if len(dialer.outcomes) > 0 {
		outcome = dialer.outcomes[0]
		dialer.outcomes = dialer.outcomes[1:]
	}
	dialer.lock.Unlock()

	if outcome.block {
		<-ctx.Done()
		if outcome.conn != nil {
			return outcome.conn, nil
		}
		return nil, ctx.Err()
	}
	if outcome.err != nil {
		return nil, outcome.err
	}
	return outcome.conn, nil
}

func (dialer *testDialer) Attempts() int {
	return dialer.attempts.Value()
}

type eventRecorder struct {
	lock   sync.Mutex
	events []Event
	ch     chan Event
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{ch: make(chan Event, 256)}
}

func (recorder *eventRecorder) handle(event Event) error {
	recorder.lock.Lock()
	recorder.events = append(recorder.events, event)
	recorder.lock.Unlock()
	recorder.ch <- event
	return nil
}

func (recorder *eventRecorder) next(t *testing.T) Event {
	t.Helper()
	select {
	case event := <-recorder.ch:
		return event
	case <-time.After(testTimeout):
		t.Fatalf("timed out waiting for event; seen %v", recorder.kinds())
		return Event{}
	}
}

func (recorder *eventRecorder) expect(t *testing.T, kind EventKind) Event {
	t.Helper()
	event := recorder.next(t)
	if event.Kind != kind {
		t.Fatalf("expected %s event, got %s (err=%v)", kind, event.Kind, event.Err)
	}
	return event
}

func (recorder *eventRecorder) kinds() []EventKind {
	recorder.lock.Lock()
	defer recorder.lock.Unlock()
	kinds := make([]EventKind, 0, len(recorder.events))
	for _, event := range recorder.events {
		kinds = append(kinds, event.Kind)
	}
	return kinds
}

func waitForState(t *testing.T, client *Client, state ConnectionState) {
	t.Helper()
	testutil.Eventually(t, testTimeout, func() bool { return client.State() == state },
		"client did not reach %s", state)
}

func waitForDials(t *testing.T, dialer *testDialer, want int) {
	t.Helper()
	testutil.Eventually(t, testTimeout, func() bool { return dialer.Attempts() >= want },
		"expected %d dial attempts", want)
}

func waitForWrite(t *testing.T, connection *testConn) Frame {
	t.Helper()
	select {
	case frame := <-connection.writes:
		return frame
	case <-time.After(testTimeout):
		t.Fatalf("timed out waiting for outbound frame")
		return Frame{}
	}
}

// newTestClient builds a client on a fake clock and a scripted dialer with a
// recorder subscribed. Stop runs at cleanup.
func newTestClient(t *testing.T, cfg EndpointConfig, dialer Dialer, opts ...Option) (*Client, *clockwork.FakeClock, *eventRecorder) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	opts = append([]Option{WithDialer(dialer), WithClock(clock)}, opts...)
	client, err := NewClient(cfg, opts...)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	recorder := newEventRecorder()
	client.Subscribe(recorder.handle)
	t.Cleanup(func() {
		_ = client.Stop()
		client.Flush()
	})
	return client, clock, recorder
}

func retryConfig(maxAttempts int, delay time.Duration) EndpointConfig {
	return EndpointConfig{
		URL:         "wss://example.test/ws",
		Reconnect:   true,
		MaxAttempts: maxAttempts,
		Delay:       delay,
	}
}
