package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sgolodetz/smg-comms-go/internal/metrics"
	"github.com/sgolodetz/smg-comms-go/internal/skeleton"
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
		fmt.Printf("skeleton-service %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)

	svc := skeleton.NewService(
		skeleton.WithServiceListenAddr(cfg.listenAddr),
		skeleton.WithFrameProcessor(noopFrameProcessor),
		skeleton.WithMaskRenderer(emptyMaskRenderer),
		skeleton.WithServiceLogger(l),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := svc.Serve(ctx); err != nil {
			l.Error("skeleton_service_error", "error", err)
			cancel()
		}
	}()

	metrics.SetReadinessFunc(func() bool {
		select {
		case <-svc.Ready():
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
	if err := svc.Shutdown(shutdownCtx); err != nil {
		l.Warn("shutdown_error", "error", err)
	}
	cancel()
}
