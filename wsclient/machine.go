package wsclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// session is one transport session. It is discarded when the session ends
// and never reused.
type session struct {
	id        string
	gen       uint64
	conn      Conn
	out       chan Frame
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(gen uint64, conn Conn, queueSize int) *session {
	return &session{
		id:   uuid.NewString(),
		gen:  gen,
		conn: conn,
		out:  make(chan Frame, queueSize),
		done: make(chan struct{}),
	}
}

func (s *session) enqueue(frame Frame) bool {
	select {
	case s.out <- frame:
		return true
	default:
		return false
	}
}

func (s *session) close(code int, reason string) error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close(code, reason)
	})
	return err
}

// The methods below hold client.lock unless their name says otherwise. Every
// transition goes through setStateLocked; every subscriber and listener call
// goes through client.events.

func (client *Client) setStateLocked(to ConnectionState) bool {
	from := client.state
	if from == to {
		return true
	}
	if !canTransition(from, to) {
		client.logger.Error("Refused state transition",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
		return false
	}
	client.state = to
	client.metrics.stateChanged(to)
	client.logger.Debug("Connection state changed",
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	)
	if len(client.listeners) > 0 {
		listeners := client.listeners
		client.events.push(func() {
			for _, listener := range listeners {
				client.notifyListener(listener, from, to)
			}
		})
	}
	return true
}

func (client *Client) notifyListener(listener StateListener, from ConnectionState, to ConnectionState) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err := fmt.Errorf("state listener panic: %v", recovered)
			client.logger.Error("State listener failed", zap.Error(err))
			client.reportError(err)
		}
	}()
	listener.StateChanged(from, to)
}

func (client *Client) emitLocked(event Event) {
	event.At = client.clock.Now()
	client.events.push(func() {
		client.dispatcher.Dispatch(event)
	})
}

func (client *Client) connectLocked() {
	if !client.setStateLocked(StateConnecting) {
		return
	}
	client.gen++
	gen := client.gen
	ctx, cancel := context.WithCancel(context.Background())
	client.cancelDial = cancel
	workers := &sync.WaitGroup{}
	client.workers = workers
	client.metrics.attemptStarted()

	client.logger.Info("Connecting",
		zap.String("url", client.cfg.URL),
		zap.Int("retry_count", client.scheduler.Attempts()),
	)

	workers.Add(1)
	go func() {
		defer workers.Done()
		conn, err := client.dialer.Dial(ctx, client.cfg.URL)
		client.dialed(gen, conn, err)
	}()
}

func (client *Client) dialed(gen uint64, conn Conn, err error) {
	client.lock.Lock()
	defer client.lock.Unlock()

	if gen != client.gen || client.state != StateConnecting {
		if conn != nil {
			_ = conn.Close(CloseNormalClosure, "connection attempt superseded")
		}
		return
	}
	client.releaseDialLocked()

	if err != nil {
		client.failLocked(NewError(ConnectError, err), "")
		return
	}

	current := newSession(gen, conn, client.queueSize)
	client.session = current
	client.setStateLocked(StateOpen)
	client.scheduler.Reset()
	client.logger.Info("Connection established",
		zap.String("url", client.cfg.URL),
		zap.String("session_id", current.id),
	)
	client.emitLocked(Event{Kind: EventConnected, SessionID: current.id})

	workers := client.workers
	workers.Add(2)
	go client.readLoop(current, workers)
	go client.writeLoop(current, workers)
}

func (client *Client) releaseDialLocked() {
	if client.cancelDial != nil {
		client.cancelDial()
		client.cancelDial = nil
	}
}

func (client *Client) readLoop(current *session, workers *sync.WaitGroup) {
	defer workers.Done()
	for {
		frame, err := current.conn.ReadFrame()
		if err != nil {
			client.sessionEnded(current, err)
			return
		}
		client.received(current, frame)
	}
}

func (client *Client) writeLoop(current *session, workers *sync.WaitGroup) {
	defer workers.Done()
	for {
		select {
		case <-current.done:
			return
		case frame := <-current.out:
			if err := current.conn.WriteFrame(frame); err != nil {
				client.sessionEnded(current, err)
				return
			}
		}
	}
}

func (client *Client) received(current *session, frame Frame) {
	client.lock.Lock()
	defer client.lock.Unlock()
	if client.session != current {
		return
	}
	client.metrics.received()
	message := &InboundMessage{
		Payload:    frame.Payload,
		Binary:     frame.Binary,
		SessionID:  current.id,
		ReceivedAt: client.clock.Now(),
	}
	client.emitLocked(Event{Kind: EventMessage, Message: message, SessionID: current.id})
}

func (client *Client) sessionEnded(current *session, err error) {
	client.lock.Lock()
	defer client.lock.Unlock()
	if client.session != current {
		return
	}

	if cleanClose(err) {
		client.logger.Info("Connection closed by peer",
			zap.String("session_id", current.id),
			zap.Error(err),
		)
		client.setStateLocked(StateClosing)
		client.session = nil
		_ = current.close(0, "")
		client.setStateLocked(StateClosed)
		client.emitLocked(Event{Kind: EventDisconnected, SessionID: current.id})
		return
	}

	client.logger.Warn("Connection lost",
		zap.String("session_id", current.id),
		zap.Error(err),
	)
	client.failLocked(NewError(TransportError, err), current.id)
}

// failLocked handles Connecting → Failed and Open → Failed. sessionID is set
// when the failed session had been open.
func (client *Client) failLocked(cause error, sessionID string) {
	if current := client.session; current != nil {
		client.session = nil
		_ = current.close(0, "")
	}
	client.setStateLocked(StateFailed)

	if !client.cfg.Reconnect {
		client.logger.Warn("Connection failed, reconnect disabled",
			zap.String("url", client.cfg.URL),
			zap.Error(cause),
		)
		client.emitLocked(Event{Kind: EventDisconnected, Err: cause, SessionID: sessionID})
		client.setStateLocked(StateClosed)
		return
	}

	gen := client.gen
	attempt, ok := client.scheduler.Schedule(func() {
		client.retry(gen)
	})
	if ok {
		client.metrics.retryScheduled()
		client.logger.Warn("Connection failed, will retry",
			zap.Error(cause),
			zap.Duration("retry_delay", client.cfg.Delay),
			zap.Int("retry_count", attempt),
		)
		client.emitLocked(Event{Kind: EventDisconnected, Err: cause, Attempt: attempt, SessionID: sessionID})
		return
	}

	client.logger.Error("Giving up on connection",
		zap.String("url", client.cfg.URL),
		zap.Int("retry_count", attempt),
		zap.Error(cause),
	)
	if sessionID != "" {
		client.emitLocked(Event{Kind: EventDisconnected, Err: cause, SessionID: sessionID})
	}
	client.metrics.gaveUp()
	client.emitLocked(Event{Kind: EventGaveUp, Err: cause, Attempt: attempt})
	client.setStateLocked(StateClosed)
}

func (client *Client) retry(gen uint64) {
	client.lock.Lock()
	defer client.lock.Unlock()
	if gen != client.gen || client.state != StateFailed {
		return
	}
	client.connectLocked()
}
