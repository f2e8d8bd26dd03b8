package main

import (
	"context"
	"fmt"
	"time"

	"github.com/amaumene/bridgarr/internal/services/debrid"
	"github.com/spf13/cobra"
)

var validateTimeout time.Duration

var validateCmd = &cobra.Command{
	Use:   "validate-tokens",
	Short: "Check the credential of every configured debrid provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		providers, err := debrid.NewRegistryFromConfig(cfg, logger)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), validateTimeout)
		defer cancel()

		results := providers.ValidateAll(ctx)
		failed := 0
		for _, name := range providers.Names() {
			err := results[name]
			if err != nil {
				failed++
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s invalid: %v\n", name, err)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-12s ok\n", name)
		}

		if failed > 0 {
			return fmt.Errorf("%d provider credential(s) invalid", failed)
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().DurationVar(&validateTimeout, "timeout", 30*time.Second, "Overall timeout for the checks")
	rootCmd.AddCommand(validateCmd)
}
