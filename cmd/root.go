// Package cmd defines and implements the CLI commands for the tripsync executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/tripsync/internal/config"
	"github.com/JakeFAU/tripsync/internal/server"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg *config.Config) (*server.App, error) {
	return server.Build(ctx, cfg)
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "tripsync",
		Short: "Extracts travel confirmations from web pages and syncs consultations to a ledger.",
		Long: `tripsync fetches travel-package confirmation pages, derives structured
confirmation documents from them, and keeps a spreadsheet ledger of customer
consultations in sync with conversation state.`,
		SilenceUsage: true,

		// Builds the application once config is loaded and before the subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			appInstance, err := newApp(cmd.Context(), &cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(*server.App); ok && appInstance != nil {
				_ = appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, JSON or TOML)")
	cmd.AddCommand(newServeCmd(), newAnalyzeCmd())
	return cmd
}

func resolveApp(ctx context.Context) (*server.App, error) {
	appInstance, ok := ctx.Value(appKey).(*server.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
