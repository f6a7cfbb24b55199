package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"SentinelX/internal/di"
	"SentinelX/pkg/config"
	applogger "SentinelX/pkg/logger"
)

var (
	// Global flags
	configPath string
	verbose    bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "sentinelx",
	Short: "Live data sync layer for the Sentinel-X dashboard",
	Long: `sentinelx polls the Sentinel-X backend for every mounted view, keeps the
latest result of each request in per-view slots and serves them over HTTP
and WebSocket.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.LoadWithEnv(configPath)
		if err != nil {
			return fmt.Errorf("config load failed: %w", err)
		}
		cfg = c
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the view API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Wire DI: Initialize all dependencies
		app, err := di.InitializeApp(cfg)
		if err != nil {
			return fmt.Errorf("app initialization failed: %w", err)
		}
		return app.Run(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging on stderr")

	rootCmd.AddCommand(serveCmd, fetchCmd, watchCmd)
}

// cliLogger logs to stderr so stdout stays machine readable.
func cliLogger() *applogger.Logger {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return applogger.NewWriter(os.Stderr, level)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
