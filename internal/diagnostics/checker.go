// Package diagnostics runs readiness checks before the speech session starts.
package diagnostics

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"spokestack-tray/internal/config"
	"spokestack-tray/internal/domain"
	"spokestack-tray/internal/download"
)

// ModelCatalog reports the local cache state of every known model file.
type ModelCatalog interface {
	Catalog() ([]download.ArtifactStatus, error)
}

// Checker validates credentials, model configuration, connectivity and paths.
type Checker struct {
	network    download.NetworkInfo
	models     ModelCatalog
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
}

// NewChecker builds a checker using real OS dependencies. network and models
// may be nil, in which case their checks are reported as warnings.
func NewChecker(network download.NetworkInfo, models ModelCatalog) *Checker {
	return &Checker{
		network:    network,
		models:     models,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
	}
}

// Run executes all startup checks and returns a combined report.
func (c *Checker) Run(ctx context.Context, settings config.Settings) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkCredentials(settings),
		c.checkNLU(settings.NLU),
		c.checkWakeword(settings.Wakeword),
		c.checkBridgeURL(settings.BridgeURL),
		c.checkModelsDir(settings.ModelsDir),
		c.checkNetwork(ctx, settings.ForceCellular),
		c.checkCachedModels(),
	}

	return domain.NewDiagnosticReport(time.Now(), items)
}

func (c *Checker) checkCredentials(settings config.Settings) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: domain.CheckCredentials, Name: "Spokestack credentials"}

	var missing []string
	if strings.TrimSpace(settings.ClientID) == "" {
		missing = append(missing, "client id")
	}
	if strings.TrimSpace(settings.ClientSecret) == "" {
		missing = append(missing, "client secret")
	}
	if len(missing) > 0 {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Missing %s.", strings.Join(missing, " and "))
		item.Hint = fmt.Sprintf("Set client_id and client_secret in the config file or export %s and %s.", config.EnvClientID, config.EnvClientSecret)
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = "Client id and secret are set."
	return item
}

func (c *Checker) checkNLU(urls domain.NLUModelURLs) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: domain.CheckNLUModels, Name: "NLU models"}

	if !urls.Complete() {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "NLU model URLs are incomplete."
		item.Hint = "Configure nlu.nlu, nlu.vocab and nlu.metadata. An NLU is required to process speech."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = "NLU model, vocabulary and metadata are configured."
	return item
}

func (c *Checker) checkWakeword(urls *domain.WakewordModelURLs) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: domain.CheckWakewordModels, Name: "Wake-word models"}

	if !urls.Complete() {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = "Wake-word models are not configured; push-to-talk only."
		item.Hint = "Configure wakeword.filter, wakeword.detect and wakeword.encode to enable the wake word."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = "Wake-word filter, detect and encode models are configured."
	return item
}

func (c *Checker) checkBridgeURL(raw string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: domain.CheckBridgeURL, Name: "Speech host"}

	u, err := url.Parse(strings.TrimSpace(raw))
	if raw == "" || err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Invalid speech host URL: %q", raw)
		item.Hint = fmt.Sprintf("Set bridge_url or %s to a ws:// or wss:// address.", config.EnvBridgeURL)
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Speech host at %s", u.Redacted())
	return item
}

// checkModelsDir validates models directory existence and write access.
func (c *Checker) checkModelsDir(dir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: domain.CheckModelsDir, Name: "Models directory"}

	if strings.TrimSpace(dir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Models directory is empty."
		item.Hint = "Set models_dir to a directory where model files can be cached."
		return item
	}

	if err := c.mkdirAll(dir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create models directory: %s", dir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(dir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Models directory is not writable: %s", dir)
		item.Hint = "Choose a writable directory for downloaded models."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", dir)
	return item
}

func (c *Checker) checkNetwork(ctx context.Context, forceCellular bool) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: domain.CheckNetwork, Name: "Network"}

	if c.network == nil {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = "Network detection is disabled."
		return item
	}

	class, err := c.network.Class(ctx)
	switch {
	case err != nil:
		item.Status = domain.DiagnosticStatusWarn
		item.Message = fmt.Sprintf("Cannot detect network: %v", err)
		item.Hint = fmt.Sprintf("Set network or %s to pin the connection type.", config.EnvNetwork)
	case class.Unrestricted():
		item.Status = domain.DiagnosticStatusPass
		item.Message = fmt.Sprintf("Connected over %s.", class)
	case class == domain.NetworkCellular && forceCellular:
		item.Status = domain.DiagnosticStatusPass
		item.Message = "Connected over cellular; downloads are allowed."
	case class == domain.NetworkCellular:
		item.Status = domain.DiagnosticStatusWarn
		item.Message = "Connected over cellular; downloads will ask for confirmation."
		item.Hint = "Enable force_cellular to download models without asking."
	default:
		item.Status = domain.DiagnosticStatusWarn
		item.Message = fmt.Sprintf("No usable network (%s); only cached models can be used.", class)
	}
	return item
}

func (c *Checker) checkCachedModels() domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: domain.CheckModelCache, Name: "Cached models"}

	if c.models == nil {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = "Model cache is not available."
		return item
	}

	statuses, err := c.models.Catalog()
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot read model cache: %v", err)
		item.Hint = "Run `spokestack-tray models remove --all` to reset the cache."
		return item
	}

	var missing []string
	for _, status := range statuses {
		if !status.Downloaded {
			missing = append(missing, status.ID)
		}
	}
	if len(missing) > 0 {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = fmt.Sprintf("Not downloaded yet: %s", strings.Join(missing, ", "))
		item.Hint = "Run `spokestack-tray models fetch` or let initialize download them."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("All %d model files are cached.", len(statuses))
	return item
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	network download.NetworkInfo,
	models ModelCatalog,
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		network:    network,
		models:     models,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
	}
}
