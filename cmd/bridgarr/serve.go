package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/amaumene/bridgarr/internal/api"
	"github.com/amaumene/bridgarr/internal/scheduler"
	"github.com/amaumene/bridgarr/internal/utils"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook server, acquisition workers and link scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}

	// 1. Load configuration and logger
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	logger.Info("Starting Bridgarr")

	// 2. Tracing
	shutdownTracing := utils.SetupTracing(cfg.TracingEnabled, logger)
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.WithError(err).Warn("Failed to flush traces")
		}
	}()

	// 3. Store, providers, queue and controllers
	a, cleanup, err := initApp(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	// 4. Acquisition workers
	if err := a.queue.Start(ctx, a.acquisition.Run); err != nil {
		return fmt.Errorf("failed to start job queue: %w", err)
	}
	defer a.queue.Stop()

	// 5. Link scheduler
	sched := scheduler.NewScheduler(a.refresh, a.cleanup, cfg.LinkRefreshSchedule, cfg.LinkCleanupSchedule, logger)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	// 6. HTTP server
	server := api.NewServer(cfg, a.store, a.acquisition, a.refresh, logger)

	serverErrChan := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil {
			serverErrChan <- err
		}
	}()

	// 7. Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("Bridgarr is running")

	select {
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		logger.WithField("signal", sig).Info("Received shutdown signal")
		cancel()
		if err := server.Shutdown(context.Background()); err != nil {
			logger.WithError(err).Error("Error during server shutdown")
		}
	}

	logger.Info("Bridgarr stopped")
	return nil
}
