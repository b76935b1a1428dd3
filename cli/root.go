// Package cli holds the walletreel command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/walletreel/walletreel/config"
	"github.com/walletreel/walletreel/logger"
)

var (
	configFile string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:   "walletreel",
	Short: "AI-narrated videos of blockchain wallet activity",
	Long: `walletreel turns a wallet's on-chain activity into a period-by-period
narrated report and renders it into a video.

Run "walletreel serve" to start the HTTP API.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file (overrides CONFIG_FILE)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd, fetchCmd, partitionCmd, renderCmd, payloadCmd)
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig layers the --config and --debug flags over config.Load.
func loadConfig() (*config.Config, error) {
	if configFile != "" {
		if err := os.Setenv("CONFIG_FILE", configFile); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if debug {
		cfg.Debug = true
	}
	return cfg, nil
}

// newLogger logs to stderr so command output on stdout stays clean.
func newLogger(cfg *config.Config, dir string) (*logrus.Logger, error) {
	return logger.NewLogger(logger.Options{
		Dir:    dir,
		Debug:  cfg.Debug,
		Output: os.Stderr,
	})
}
