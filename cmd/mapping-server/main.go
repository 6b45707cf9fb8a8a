package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sgolodetz/smg-comms-go/internal/mapping"
	"github.com/sgolodetz/smg-comms-go/internal/metrics"
)

const (
	version = "dev"
	commit  = "none"
	date    = "unknown"

	shutdownGrace = 5 * time.Second
)

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("mapping-server %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)

	policy, err := queuePolicyFromString(cfg.queuePolicy)
	if err != nil {
		l.Error("config_error", "error", err)
		return
	}

	srv := mapping.NewServer(
		mapping.WithListenAddr(cfg.listenAddr),
		mapping.WithOverflowPolicy(policy),
		mapping.WithServerLogger(l),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := srv.Serve(ctx); err != nil {
			l.Error("mapping_server_error", "error", err)
			cancel()
		}
	}()

	metrics.SetReadinessFunc(func() bool {
		select {
		case <-srv.Ready():
		default:
			return false
		}
		return ctx.Err() == nil
	})
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigCh
	l.Info("shutdown_signal", "signal", s.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Warn("shutdown_error", "error", err)
	}
	cancel()
}
