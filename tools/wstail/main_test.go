package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/binghan60/client/internal/config"
	"github.com/binghan60/client/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func echoServer(t *testing.T) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			messageType, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(messageType, payload); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func testConfig(url string, maxAttempts int) *config.Config {
	return &config.Config{
		Connection: config.ConnectionConfig{
			BaseURL:          url,
			Reconnect:        true,
			MaxAttempts:      maxAttempts,
			Delay:            5 * time.Millisecond,
			HandshakeTimeout: time.Second,
		},
		Logging: config.LoggingConfig{Level: "info"},
	}
}

func TestRunSendsInputLines(t *testing.T) {
	url := echoServer(t)
	core, logs := observer.New(zapcore.InfoLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader, writer := io.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, testConfig(url, 3), zap.New(core), reader, prometheus.NewRegistry())
	}()

	testutil.Eventually(t, 2*time.Second, func() bool {
		return logs.FilterMessage("Connected").Len() > 0
	}, "client never connected")
	if _, err := writer.Write([]byte("hello\n")); err != nil {
		t.Fatalf("write input failed: %v", err)
	}
	_ = writer.Close()
	testutil.Eventually(t, 2*time.Second, func() bool {
		return logs.FilterMessage("Message received").FilterField(zap.ByteString("payload", []byte("hello"))).Len() == 1
	}, "input line was not echoed")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not return after cancel")
	}
}

func TestRunReturnsWhenClientGivesUp(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()
	url := "ws" + strings.TrimPrefix(server.URL, "http")

	err := run(context.Background(), testConfig(url, 1), zap.NewNop(), strings.NewReader(""), prometheus.NewRegistry())
	if !errors.Is(err, errGaveUp) {
		t.Fatalf("expected errGaveUp, got %v", err)
	}
}

func TestRunRejectsBadEndpoint(t *testing.T) {
	cfg := testConfig("http://example.test", 1)
	if err := run(context.Background(), cfg, zap.NewNop(), strings.NewReader(""), prometheus.NewRegistry()); err == nil {
		t.Fatalf("expected an endpoint error")
	}
}
