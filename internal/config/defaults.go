package config

import (
	"os"
	"path/filepath"

	"spokestack-tray/internal/download"
)

const appDirName = "spokestack-tray"

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() Settings {
	base := baseDir()
	wake := download.DefaultWakewordURLs()

	return Settings{
		BridgeURL:   "ws://127.0.0.1:8765/bridge",
		HTTPAddress: "127.0.0.1:8790",
		ModelsDir:   filepath.Join(base, "models"),
		DataDir:     filepath.Join(base, "data"),
		Voice:       "demo-male",
		Wakeword:    &wake,
		Timeouts: TimeoutSettings{
			Command:    "10s",
			Initialize: "60s",
			Synthesize: "30s",
			Download:   "5m",
		},
	}
}

// DefaultPath returns the config file location under the user config dir.
func DefaultPath() string {
	return filepath.Join(baseDir(), "config.yaml")
}

func baseDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, appDirName)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, "."+appDirName)
}
