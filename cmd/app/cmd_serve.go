package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var skipInit bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Connect to the speech host and serve the HTTP API",
	Long: `Connects to the native speech host, initializes the speech session with
the configured models and serves the HTTP API and event stream until
interrupted.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&skipInit, "no-init", false, "Wait for POST /initialize instead of initializing at startup")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := openApp()
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("shutdown", zap.Error(err))
		}
	}()

	report := app.Diagnose(ctx)
	for _, item := range report.Attention() {
		logger.Warn("diagnostic", zap.String("id", item.ID), zap.String("status", string(item.Status)), zap.String("message", item.Message))
	}

	logger.Info("starting",
		zap.String("bridge", app.Settings.BridgeURL),
		zap.String("http", app.Settings.HTTPAddress))
	return app.Serve(ctx, !skipInit)
}
