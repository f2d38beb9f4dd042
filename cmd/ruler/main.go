package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zeusync/ruler/internal/config"
	"github.com/zeusync/ruler/internal/injector"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "ruler",
	Short: "A hand-held measuring gadget for spatial scenes",
	Long: `ruler runs the measuring gadget: a grabbable tool with a fixed base anchor
and a deployable square head that shows the live distance between them.
It can be driven by a host over a WebSocket or by a scenario script.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")
}

// loadApp reads the config named by the flags, applies overrides and builds
// the application.
func loadApp(overrides ...func(*config.Config)) (*injector.App, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.LoadFile(configPath); err != nil {
			return nil, err
		}
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	for _, o := range overrides {
		o(cfg)
	}
	return injector.InitializeApp(cfg)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
