package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/qleaf/marketmux/internal/app"
	"github.com/qleaf/marketmux/internal/config"
	"github.com/qleaf/marketmux/internal/logger"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "marketmux",
	Short: "marketmux - multi-provider market data with priority fallback",
	Long: `marketmux multiplexes Chinese A-share market data across several
upstream providers, walking them in priority order and cross-checking
daily fundamentals between independent sources.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug mode")
}

// loadConfig resolves the effective configuration: the --config file
// when given, built-in defaults otherwise.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if cfgFile != "" {
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
	} else {
		cfg = config.Defaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// setup builds the shared application for a subcommand run.
func setup() (*app.App, *zap.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	log := logger.Must(debug)
	a, err := app.New(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return a, log, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
