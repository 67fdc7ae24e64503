// Package main implements wstail, which connects to a websocket endpoint,
// logs every lifecycle event and inbound message, and sends each line read
// from stdin. Configuration comes from an optional TOML file and WSCLIENT_
// environment variables.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/binghan60/client/internal/config"
	"github.com/binghan60/client/internal/logger"
	"github.com/binghan60/client/wsclient"
)

var errGaveUp = errors.New("client gave up reconnecting")

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wstail: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wstail: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, os.Stdin, prometheus.NewRegistry()); err != nil {
		log.Error("wstail exited", zap.Error(err))
		os.Exit(2)
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger, input io.Reader, registry *prometheus.Registry) error {
	endpoint, err := cfg.Endpoint()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	metrics, err := wsclient.NewMetrics(registry, nil)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	client, err := wsclient.NewClient(endpoint,
		wsclient.WithLogger(log),
		wsclient.WithMetrics(metrics),
		wsclient.WithHandshakeTimeout(cfg.Connection.HandshakeTimeout),
		wsclient.WithErrorHandler(func(err error) {
			log.Warn("Subscriber error", zap.Error(err))
		}),
	)
	if err != nil {
		return err
	}

	gaveUp := make(chan struct{}, 1)
	client.Subscribe(logEvents(log, gaveUp))

	if cfg.Metrics.Enabled {
		metricsServer := &http.Server{
			Addr:              cfg.Metrics.Address,
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
		log.Info("Serving metrics", zap.String("address", cfg.Metrics.Address))
	}

	lines := make(chan string)
	go readLines(ctx, input, lines)

	client.Start()
	defer func() {
		if err := client.Stop(); err != nil {
			log.Warn("Stop failed", zap.Error(err))
		}
		client.Flush()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-gaveUp:
			return errGaveUp
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			if err := client.Send([]byte(line)); err != nil {
				log.Warn("Send failed", zap.String("state", client.State().String()), zap.Error(err))
			}
		}
	}
}

func logEvents(log *zap.Logger, gaveUp chan<- struct{}) wsclient.Handler {
	return wsclient.HandlerFunc(func(event wsclient.Event) {
		switch event.Kind {
		case wsclient.EventConnected:
			log.Info("Connected", zap.String("session_id", event.SessionID))
		case wsclient.EventDisconnected:
			log.Info("Disconnected",
				zap.String("session_id", event.SessionID),
				zap.Int("retry_count", event.Attempt),
				zap.Error(event.Err),
			)
		case wsclient.EventMessage:
			log.Info("Message received",
				zap.String("session_id", event.SessionID),
				zap.Bool("binary", event.Message.Binary),
				zap.ByteString("payload", event.Message.Payload),
			)
		case wsclient.EventGaveUp:
			log.Error("Gave up", zap.Int("retry_count", event.Attempt), zap.Error(event.Err))
			select {
			case gaveUp <- struct{}{}:
			default:
			}
		}
	})
}

func readLines(ctx context.Context, input io.Reader, lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(input)
	for scanner.Scan() {
		select {
		case lines <- scanner.Text():
		case <-ctx.Done():
			return
		}
	}
}
