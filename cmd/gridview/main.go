package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ryanbastic/go-pixelwall/internal/ledger"
	"github.com/ryanbastic/go-pixelwall/internal/session"
	"github.com/ryanbastic/go-pixelwall/internal/storage"
	"github.com/ryanbastic/go-pixelwall/internal/sweep"
	"github.com/ryanbastic/go-pixelwall/internal/trigger"
	"github.com/ryanbastic/go-pixelwall/internal/tui"
	"github.com/ryanbastic/go-pixelwall/internal/viewport"
)

var (
	gridSize     int
	lockDuration time.Duration
	dataDir      string
	username     string
	contactInfo  string
	siteURL      string
	logFile      string
	debug        bool

	rootCmd = &cobra.Command{
		Use:   "gridview",
		Short: "Browse and claim squares on a local pixel wall in the terminal",
		Long: `gridview runs a pixel wall in-process and opens a terminal view of it.
With --data the wall is kept in a badger database between runs.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         run,
	}
)

func init() {
	rootCmd.Flags().IntVar(&gridSize, "grid-size", ledger.DefaultGridSize, "Side length of the grid in cells")
	rootCmd.Flags().DurationVar(&lockDuration, "lock", ledger.DefaultLockDuration, "How long a claim keeps its squares")
	rootCmd.Flags().StringVar(&dataDir, "data", "", "Badger directory for the wall; empty keeps it in memory")
	rootCmd.Flags().StringVarP(&username, "user", "u", "", "Name recorded on claims")
	rootCmd.Flags().StringVar(&contactInfo, "contact", "", "Contact info recorded on claims")
	rootCmd.Flags().StringVar(&siteURL, "url", "", "Link recorded on claims")
	rootCmd.Flags().StringVar(&logFile, "log-file", "", "Write JSON logs to this file")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "Log at debug level")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger writes to logFile when set; the terminal belongs to the view.
func newLogger() (*slog.Logger, func() error, error) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	if logFile == "" {
		return slog.New(slog.DiscardHandler), func() error { return nil }, nil
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level})), f.Close, nil
}

func openStore(logger *slog.Logger) (storage.SnapshotStore, error) {
	if dataDir == "" {
		return storage.NewMemoryStore(), nil
	}
	return storage.OpenBadger(storage.BadgerConfig{Path: dataDir, SyncWrites: true, Logger: logger}, logger)
}

func run(cmd *cobra.Command, _ []string) error {
	logger, closeLog, err := newLogger()
	if err != nil {
		return err
	}
	defer closeLog()

	store, err := openStore(logger)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	bus := trigger.NewBus()
	wall := ledger.New(ledger.Options{
		GridSize:     gridSize,
		LockDuration: lockDuration,
		Publisher:    bus,
		Logger:       logger,
	})
	report := sweep.Bootstrap(ctx, wall, store, logger)
	logger.Info("ledger restored", "cells", report.Cells, "records", report.Records, "expired", report.Expired)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sweep.NewSweeper(wall, sweep.DefaultSweepInterval, nil, logger).Run(gctx) })
	g.Go(func() error { return sweep.NewPersister(wall, store, sweep.DefaultPersistInterval, nil, logger).Run(gctx, bus) })

	s := session.New(gctx, "terminal", 0, 0, session.Options{
		Ledger:    wall,
		Bus:       bus,
		Camera:    viewport.Config{GridSize: gridSize, CellSize: 2, MinScale: 0.5, MaxScale: 8},
		NewCanvas: tui.Canvas,
		Logger:    logger,
	})
	defer s.Close()

	model := tui.New(gctx, s, tui.Config{Username: username, ContactInfo: contactInfo, URL: siteURL})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(gctx))
	_, runErr := p.Run()

	cancel()
	if err := g.Wait(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
