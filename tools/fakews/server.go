package main

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type serverOptions struct {
	echo      bool
	dropAfter int
	reject    bool
}

// tick is the payload of a broadcast message.
type tick struct {
	Seq uint64    `json:"seq"`
	At  time.Time `json:"at"`
}

type server struct {
	options  serverOptions
	upgrader websocket.Upgrader
	log      *zap.Logger

	lock  sync.Mutex
	conns map[uint64]*serverConn

	accepted atomic.Uint64
	current  atomic.Int64
	ticks    atomic.Uint64
}

type serverConn struct {
	id      uint64
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *serverConn) write(messageType int, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteMessage(messageType, payload)
}

func newServer(options serverOptions, log *zap.Logger) *server {
	if log == nil {
		log = zap.NewNop()
	}
	return &server{
		options: options,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log:   log,
		conns: make(map[uint64]*serverConn),
	}
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.options.reject {
		s.log.Debug("Rejecting handshake", zap.String("remote", r.RemoteAddr))
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}

	client := &serverConn{id: s.accepted.Add(1), conn: conn}
	s.register(client)
	defer s.unregister(client)

	s.log.Info("Connection accepted",
		zap.Uint64("conn_id", client.id),
		zap.String("remote", r.RemoteAddr),
		zap.Int64("current", s.current.Load()),
	)
	s.serve(client)
}

func (s *server) serve(client *serverConn) {
	received := 0
	for {
		messageType, payload, err := client.conn.ReadMessage()
		if err != nil {
			s.log.Info("Connection closed", zap.Uint64("conn_id", client.id), zap.Error(err))
			_ = client.conn.Close()
			return
		}
		received++

		if s.options.echo {
			if err := client.write(messageType, payload); err != nil {
				_ = client.conn.Close()
				return
			}
		}

		if s.options.dropAfter > 0 && received >= s.options.dropAfter {
			s.log.Info("Dropping connection",
				zap.Uint64("conn_id", client.id),
				zap.Int("received", received),
			)
			_ = client.conn.UnderlyingConn().Close()
			return
		}
	}
}

func (s *server) register(client *serverConn) {
	s.lock.Lock()
	s.conns[client.id] = client
	s.lock.Unlock()
	s.current.Add(1)
}

func (s *server) unregister(client *serverConn) {
	s.lock.Lock()
	delete(s.conns, client.id)
	s.lock.Unlock()
	s.current.Add(-1)
}

func (s *server) snapshot() []*serverConn {
	s.lock.Lock()
	defer s.lock.Unlock()
	conns := make([]*serverConn, 0, len(s.conns))
	for _, client := range s.conns {
		conns = append(conns, client)
	}
	return conns
}

// broadcast sends the next tick to every connection and returns how many
// received it.
func (s *server) broadcast(now time.Time) int {
	payload, err := json.Marshal(tick{Seq: s.ticks.Add(1), At: now.UTC()})
	if err != nil {
		s.log.Error("Encoding tick failed", zap.Error(err))
		return 0
	}
	delivered := 0
	for _, client := range s.snapshot() {
		if err := client.write(websocket.TextMessage, payload); err != nil {
			s.log.Debug("Broadcast write failed", zap.Uint64("conn_id", client.id), zap.Error(err))
			continue
		}
		delivered++
	}
	return delivered
}

func (s *server) runBroadcast(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.broadcast(now)
		}
	}
}

// closeAll sends a going-away close frame to every connection.
func (s *server) closeAll() {
	message := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, client := range s.snapshot() {
		_ = client.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(time.Second))
		_ = client.conn.Close()
	}
}
