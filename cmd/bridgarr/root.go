package main

import (
	"fmt"
	"os"

	"github.com/amaumene/bridgarr/internal/config"
	"github.com/amaumene/bridgarr/internal/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "bridgarr",
	Short: "Debrid-backed media acquisition and link lifecycle service",
	Long: `bridgarr - debrid-backed media acquisition

Receives request manager webhooks, caches the requested titles on a
debrid provider and keeps their streaming links playable.

Running bridgarr without a subcommand starts the server.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = version
	rootCmd.SetVersionTemplate("bridgarr {{.Version}}\n")
}

// loadConfig loads the configuration and sets up the logger
func loadConfig() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logger: %w", err)
	}
	return cfg, logger, nil
}
