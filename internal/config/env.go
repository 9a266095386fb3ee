package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment overrides.
const (
	EnvClientID      = "SPOKESTACK_CLIENT_ID"
	EnvClientSecret  = "SPOKESTACK_CLIENT_SECRET"
	EnvBridgeURL     = "SPOKESTACK_BRIDGE_URL"
	EnvHTTPAddress   = "SPOKESTACK_HTTP_ADDRESS"
	EnvNetwork       = "SPOKESTACK_NETWORK"
	EnvModelsDir     = "SPOKESTACK_MODELS_DIR"
	EnvDebug         = "SPOKESTACK_DEBUG"
	EnvForceCellular = "SPOKESTACK_FORCE_CELLULAR"
)

// LoadEnvFile loads variables from a .env file without replacing ones
// already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides settings from lookup, which is usually os.LookupEnv.
func ApplyEnv(cfg Settings, lookup func(string) (string, bool)) (Settings, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	texts := map[string]*string{
		EnvClientID:     &cfg.ClientID,
		EnvClientSecret: &cfg.ClientSecret,
		EnvBridgeURL:    &cfg.BridgeURL,
		EnvHTTPAddress:  &cfg.HTTPAddress,
		EnvNetwork:      &cfg.Network,
		EnvModelsDir:    &cfg.ModelsDir,
	}
	for key, target := range texts {
		if value, ok := lookup(key); ok && value != "" {
			*target = value
		}
	}

	bools := map[string]*bool{
		EnvDebug:         &cfg.Debug,
		EnvForceCellular: &cfg.ForceCellular,
	}
	for key, target := range bools {
		value, ok := lookup(key)
		if !ok || value == "" {
			continue
		}
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return Settings{}, fmt.Errorf("parse %s: %w", key, err)
		}
		*target = parsed
	}
	return cfg, nil
}

// Load reads the config file at path, then the env file, then applies
// environment overrides and validates the result.
func Load(path, envFile string) (Settings, error) {
	if path == "" {
		path = DefaultPath()
	}
	cfg, err := NewYAMLStore(path).Load()
	if err != nil {
		return Settings{}, err
	}
	if err := LoadEnvFile(envFile); err != nil {
		return Settings{}, err
	}
	if cfg, err = ApplyEnv(cfg, os.LookupEnv); err != nil {
		return Settings{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Settings{}, err
	}
	return cfg, nil
}
