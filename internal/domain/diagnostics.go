package domain

import "time"

// DiagnosticStatus grades one readiness check of the tray.
type DiagnosticStatus string

const (
	DiagnosticStatusPass DiagnosticStatus = "pass"
	// DiagnosticStatusWarn marks a degraded but usable setup, such as
	// push-to-talk without wake-word models.
	DiagnosticStatusWarn DiagnosticStatus = "warn"
	DiagnosticStatusFail DiagnosticStatus = "fail"
)

// Healthy reports whether the check needs no attention.
func (s DiagnosticStatus) Healthy() bool {
	return s == DiagnosticStatusPass
}

// Readiness check identifiers, stable across the CLI and HTTP surfaces.
const (
	CheckCredentials    = "credentials"
	CheckNLUModels      = "nlu_models"
	CheckWakewordModels = "wakeword_models"
	CheckBridgeURL      = "bridge_url"
	CheckModelsDir      = "models_dir"
	CheckNetwork        = "network"
	CheckModelCache     = "model_cache"
)

// DiagnosticItem is one readiness check result. Hint tells the user how to
// fix a check that did not pass.
type DiagnosticItem struct {
	ID      string           `json:"id"`
	Name    string           `json:"name"`
	Status  DiagnosticStatus `json:"status"`
	Message string           `json:"message"`
	Hint    string           `json:"hint,omitempty"`
}

// DiagnosticReport is the outcome of one doctor run.
type DiagnosticReport struct {
	GeneratedAt time.Time        `json:"generatedAt"`
	HasFailures bool             `json:"hasFailures"`
	Warnings    int              `json:"warnings"`
	Items       []DiagnosticItem `json:"items"`
}

// NewDiagnosticReport tallies items into a report stamped with at in UTC.
func NewDiagnosticReport(at time.Time, items []DiagnosticItem) DiagnosticReport {
	report := DiagnosticReport{GeneratedAt: at.UTC(), Items: items}
	for _, item := range items {
		switch item.Status {
		case DiagnosticStatusFail:
			report.HasFailures = true
		case DiagnosticStatusWarn:
			report.Warnings++
		}
	}
	return report
}

// Attention returns the checks that did not pass, in report order.
func (r DiagnosticReport) Attention() []DiagnosticItem {
	var out []DiagnosticItem
	for _, item := range r.Items {
		if !item.Status.Healthy() {
			out = append(out, item)
		}
	}
	return out
}

// Item looks up a check by id.
func (r DiagnosticReport) Item(id string) (DiagnosticItem, bool) {
	for _, item := range r.Items {
		if item.ID == id {
			return item, true
		}
	}
	return DiagnosticItem{}, false
}
