package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/BradenHooton/libgate/internal/apiclient"
	"github.com/BradenHooton/libgate/internal/clock"
	"github.com/BradenHooton/libgate/internal/config"
	"github.com/BradenHooton/libgate/internal/gate"
	"github.com/BradenHooton/libgate/internal/kv"
	"github.com/BradenHooton/libgate/internal/tui"
	pkglogger "github.com/BradenHooton/libgate/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gate: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadClient()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	if err := os.MkdirAll(cfg.StateDir, 0o700); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	// the terminal belongs to the UI, so logs go to a file
	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o700); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	logger := pkglogger.New(logFile, cfg.LogLevel)
	slog.SetDefault(logger)

	store, closeStore, err := kv.Open(cfg.Store, cfg.StateDir)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store, err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Error("failed to close store", slog.Any("error", err))
		}
	}()

	api := apiclient.New(cfg.APIURL,
		apiclient.WithTimeout(cfg.HTTPTimeout),
		apiclient.WithLogger(logger),
	)

	clk := clock.New()
	throttle := gate.NewThrottleStore(store, clk, logger)
	session := gate.NewSessionManager(api, store, logger)
	g := gate.New(api, throttle, session, clk, logger)

	events := tui.NewEvents()
	unsubscribe := session.Subscribe(events.Session)
	defer unsubscribe()
	countdown := gate.NewCountdown(throttle, clk, events.Countdown)
	defer countdown.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	restoreCtx, restoreCancel := context.WithTimeout(ctx, cfg.HTTPTimeout)
	session.Restore(restoreCtx)
	restoreCancel()

	logger.Info("starting gate",
		slog.String("api_url", cfg.APIURL),
		slog.String("store", cfg.Store),
		slog.Bool("restored_session", session.Authenticated()),
	)

	program := tea.NewProgram(tui.New(ctx, g, countdown, events, api), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("run program: %w", err)
	}
	return nil
}
