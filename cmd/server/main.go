// snapdiff server - captures pages through Chrome and compares them against stored baselines
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GriffinCanCode/snapdiff/internal/baseline"
	"github.com/GriffinCanCode/snapdiff/internal/capture"
	"github.com/GriffinCanCode/snapdiff/internal/capture/browser"
	"github.com/GriffinCanCode/snapdiff/internal/config"
	"github.com/GriffinCanCode/snapdiff/internal/ledger"
	"github.com/GriffinCanCode/snapdiff/internal/orchestrator"
	"github.com/GriffinCanCode/snapdiff/internal/orchestrator/batch"
	"github.com/GriffinCanCode/snapdiff/internal/orchestrator/history"
	"github.com/GriffinCanCode/snapdiff/internal/pixel"
	"github.com/GriffinCanCode/snapdiff/internal/resilience"
	"github.com/GriffinCanCode/snapdiff/internal/server"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	store, err := baseline.NewStore(cfg.BaselineDir)
	if err != nil {
		slog.Error("failed to open baseline directory", "dir", cfg.BaselineDir, "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chrome := browser.New(browser.Config{
		RemoteURL:       cfg.BrowserRemoteURL,
		Headless:        cfg.BrowserHeadless,
		Stealth:         cfg.BrowserStealth,
		Viewport:        capture.Viewport{Width: cfg.ViewportWidth, Height: cfg.ViewportHeight},
		HoverDelay:      cfg.HoverDelay,
		NavigateTimeout: cfg.NavigateTimeout,
		Logger:          logger,
	})
	if err := chrome.Start(ctx); err != nil {
		slog.Error("failed to start browser", "error", err)
		os.Exit(1)
	}
	defer func() { _ = chrome.Close() }()

	breaker := resilience.New(resilience.CaptureConfig())
	resilient := capture.NewResilient(chrome, resilience.CaptureRetryConfig(cfg.CaptureRetries), breaker)
	capturer := capture.NewSettle(resilient, cfg.SettleFrames)

	// Outcome recorders: in-memory history always, SQLite ledger when configured
	hist := history.NewStore(cfg.HistorySize, orchestrator.HistoryEventBuffer)
	recorders := []orchestrator.Recorder{hist}

	var (
		lg      *ledger.Ledger
		batcher *batch.Batcher
	)
	if cfg.LedgerPath != "" {
		lg, err = ledger.Open(cfg.LedgerPath)
		if err != nil {
			slog.Error("failed to open ledger", "path", cfg.LedgerPath, "error", err)
			os.Exit(1)
		}
		if cfg.LedgerRetention > 0 {
			pruned, err := lg.Prune(ctx, time.Now().Add(-cfg.LedgerRetention))
			if err != nil {
				slog.Warn("ledger prune failed", "error", err)
			} else {
				slog.Info("ledger pruned", "removed", pruned, "retention", cfg.LedgerRetention)
			}
		}
		batcher = batch.NewBatcher(lg, orchestrator.LedgerBatcherMaxSize, orchestrator.LedgerBatcherFlushDelay)
		recorders = append(recorders, batcher)
	}

	orch, err := orchestrator.New(store, capturer, orchestrator.Config{
		Policy: pixel.Policy{
			ChannelTolerance: uint8(cfg.ChannelTolerance),
			MaxDiffPercent:   cfg.MaxDiffPercent,
			Workers:          cfg.CompareWorkers,
		},
		ToleranceDiffPercent:  cfg.ToleranceDiffPercent,
		ClearArtifactsOnStart: cfg.ClearArtifactsOnStart,
	}, recorders...)
	if err != nil {
		slog.Error("failed to create orchestrator", "error", err)
		os.Exit(1)
	}

	srv := server.New(orch, hist).WithBreaker(breaker)
	if lg != nil {
		srv.WithLedger(lg)
	}

	// Captures can take as long as a navigation, so the write timeout follows it
	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.NavigateTimeout + 30*time.Second,
	}

	go func() {
		slog.Info("snapdiff server starting", "http", cfg.HTTPAddr, "baselines", store.Dir(), "ledger", cfg.LedgerPath)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}

	if batcher != nil {
		batcher.Stop()
	}
	if lg != nil {
		if err := lg.Close(); err != nil {
			slog.Error("ledger close error", "error", err)
		}
	}
	slog.Info("shutdown complete")
}
