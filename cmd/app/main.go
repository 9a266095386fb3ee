package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"spokestack-tray/internal/bootstrap"
)

var (
	verbose    bool
	configPath string
	envFile    string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "spokestack-tray",
	Short:         "Voice assistant tray service backed by the Spokestack native speech host",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: <user config dir>/spokestack-tray/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file loaded before overrides")

	rootCmd.AddCommand(serveCmd, modelsCmd, doctorCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openApp loads settings and opens the store and model cache.
func openApp() (*bootstrap.App, error) {
	app, err := bootstrap.New(bootstrap.Options{
		ConfigPath: configPath,
		EnvFile:    envFile,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	if app.Settings.Debug && !verbose {
		logger.Debug("debug enabled in settings; pass --verbose for debug logs")
	}
	return app, nil
}
