package main

import (
	"context"
	"fmt"
	"os"

	"github.com/nulzo/capability-router/internal/app"
	"github.com/nulzo/capability-router/internal/config"
	"github.com/nulzo/capability-router/internal/platform/logger"
	"github.com/nulzo/capability-router/internal/version"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "routerctl",
	Short: "Operator tooling for the capability router",
	Long: `routerctl works directly against the capability router's database and
configuration. It can probe providers, summarize the attempt log, export it
as CSV and provision routing policies from templates.

Changes made here are picked up by a running server on its next reload.`,
	Version:       version.AppVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (overrides CONFIG_FILE)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// openApp loads configuration and assembles the routing core.
// Logging stays off unless --verbose is set.
func openApp(ctx context.Context) (*app.App, error) {
	if cfgFile != "" {
		if err := os.Setenv("CONFIG_FILE", cfgFile); err != nil {
			return nil, err
		}
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := zap.NewNop()
	if verbose {
		logCfg := logger.DefaultConfig()
		logCfg.Level = "debug"
		logCfg.Format = "console"
		log = logger.New(logCfg)
	}

	return app.New(ctx, cfg, log)
}

// withApp runs fn against a freshly assembled core and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(context.WithoutCancel(ctx)); cerr != nil && verbose {
			fmt.Fprintf(os.Stderr, "close: %v\n", cerr)
		}
	}()
	return fn(ctx, a)
}
