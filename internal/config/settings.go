package config

import (
	"fmt"
	"strings"
	"time"

	"spokestack-tray/internal/domain"
)

// Settings is the persisted application configuration.
type Settings struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Debug        bool   `yaml:"debug"`
	Profile      string `yaml:"profile,omitempty"`

	BridgeURL   string `yaml:"bridge_url"`
	HTTPAddress string `yaml:"http_address"`
	ModelsDir   string `yaml:"models_dir"`
	DataDir     string `yaml:"data_dir"`

	// Network pins the network class instead of probing interfaces.
	Network       string `yaml:"network,omitempty"`
	ForceCellular bool   `yaml:"force_cellular"`
	Voice         string `yaml:"voice"`

	NLU      domain.NLUModelURLs       `yaml:"nlu"`
	Wakeword *domain.WakewordModelURLs `yaml:"wakeword,omitempty"`
	Timeouts TimeoutSettings           `yaml:"timeouts"`

	// Native is deep-merged over the generated native configuration.
	Native map[string]any `yaml:"native,omitempty"`
}

// TimeoutSettings holds native command budgets as duration strings.
type TimeoutSettings struct {
	Command    string `yaml:"command"`
	Initialize string `yaml:"initialize"`
	Synthesize string `yaml:"synthesize"`
	Download   string `yaml:"download"`
}

// Durations parses the command, initialize and synthesize budgets.
// Empty values parse as zero so callers fall back to their defaults.
func (t TimeoutSettings) Durations() (command, initialize, synthesize time.Duration, err error) {
	if command, err = parseDuration("command", t.Command); err != nil {
		return 0, 0, 0, err
	}
	if initialize, err = parseDuration("initialize", t.Initialize); err != nil {
		return 0, 0, 0, err
	}
	if synthesize, err = parseDuration("synthesize", t.Synthesize); err != nil {
		return 0, 0, 0, err
	}
	return command, initialize, synthesize, nil
}

// DownloadTimeout parses the per-file transfer budget.
func (t TimeoutSettings) DownloadTimeout() (time.Duration, error) {
	return parseDuration("download", t.Download)
}

// InitConfig converts the settings into the session's initialize input.
func (s Settings) InitConfig() domain.InitConfig {
	nlu := s.NLU
	cfg := domain.InitConfig{
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		Debug:        s.Debug,
		Profile:      s.Profile,
		NLUModelURLs: &nlu,
		Passthrough:  s.Native,
	}
	if s.Wakeword != nil {
		wake := *s.Wakeword
		cfg.WakewordModelURLs = &wake
	}
	return cfg
}

// Validate reports settings that cannot be used at all.
func (s Settings) Validate() error {
	if _, _, _, err := s.Timeouts.Durations(); err != nil {
		return err
	}
	if _, err := s.Timeouts.DownloadTimeout(); err != nil {
		return err
	}
	if s.Network != "" && domain.ParseNetworkClass(s.Network) == domain.NetworkUnknown {
		return fmt.Errorf("%w: unknown network class %q", domain.ErrInvalidArgument, s.Network)
	}
	if strings.TrimSpace(s.HTTPAddress) == "" {
		return fmt.Errorf("%w: http_address is required", domain.ErrInvalidArgument)
	}
	return nil
}

func parseDuration(name, value string) (time.Duration, error) {
	if strings.TrimSpace(value) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: timeouts.%s: %v", domain.ErrInvalidArgument, name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%w: timeouts.%s must not be negative", domain.ErrInvalidArgument, name)
	}
	return d, nil
}
