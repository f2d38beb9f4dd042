package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zeusync/ruler/internal/config"
	"github.com/zeusync/ruler/internal/core/observability/log"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the tool to a host runtime over a WebSocket",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&listenAddr, "addr", "", "override the configured listen address")
}

func runServe(cmd *cobra.Command, _ []string) error {
	app, err := loadApp(func(cfg *config.Config) {
		if listenAddr != "" {
			cfg.Hostlink.Addr = listenAddr
		}
	})
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := app.Hostlink.Run(ctx)
		if cause := context.Cause(ctx); cause != nil {
			app.Log.Info("shutting down", log.String("cause", cause.Error()))
		}
		return err
	})
	return g.Wait()
}
