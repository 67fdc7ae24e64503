// Package main implements fakews, a websocket server for exercising
// reconnecting clients by hand. It echoes inbound messages, can broadcast a
// numbered tick to every connection, drops connections without a close frame
// after a number of messages, and can refuse every handshake.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/binghan60/client/internal/logger"
)

// ---------------------------------------------------------------------------
// CLI flags
// ---------------------------------------------------------------------------

var (
	flagAddr      = flag.String("addr", "127.0.0.1:18080", "listen address")
	flagPath      = flag.String("path", "/ws", "websocket endpoint path")
	flagEcho      = flag.Bool("echo", true, "echo inbound messages back to the sender")
	flagBroadcast = flag.Duration("broadcast", 0, "interval between broadcast ticks (0 disables)")
	flagDropAfter = flag.Int("drop-after", 0, "drop each connection without a close frame after N inbound messages (0 disables)")
	flagReject    = flag.Bool("reject", false, "refuse every handshake with 503")
	flagLogLevel  = flag.String("log-level", "info", "log level: debug, info, warn, error")
)

// ---------------------------------------------------------------------------
// main
// ---------------------------------------------------------------------------

func main() {
	flag.Parse()

	log, err := logger.New(*flagLogLevel, false)
	if err != nil {
		os.Stderr.WriteString("fakews: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	srv := newServer(serverOptions{
		echo:      *flagEcho,
		dropAfter: *flagDropAfter,
		reject:    *flagReject,
	}, log)

	mux := http.NewServeMux()
	mux.Handle(*flagPath, srv)
	httpServer := &http.Server{
		Addr:              *flagAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *flagBroadcast > 0 {
		go srv.runBroadcast(ctx, *flagBroadcast)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		srv.closeAll()
	}()

	log.Info("fakews listening",
		zap.String("addr", *flagAddr),
		zap.String("path", *flagPath),
		zap.Bool("echo", *flagEcho),
		zap.Int("drop_after", *flagDropAfter),
		zap.Bool("reject", *flagReject),
	)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("fakews stopped", zap.Error(err))
	}
	log.Info("fakews stopped",
		zap.Uint64("connections_accepted", srv.accepted.Load()),
	)
}
