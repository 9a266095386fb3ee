package download

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"spokestack-tray/internal/domain"
)

// Group names a set of model files that must all resolve to be usable.
type Group string

const (
	GroupWakeword Group = "wakeword"
	GroupNLU      Group = "nlu"
)

// Artifact describes one model file the session knows how to fetch.
type Artifact struct {
	ID          string `json:"id"`
	Group       Group  `json:"group"`
	Extension   string `json:"extension"`
	Description string `json:"description"`
}

// ArtifactStatus reports whether an artifact is cached locally.
type ArtifactStatus struct {
	Artifact
	Downloaded bool   `json:"downloaded"`
	LocalPath  string `json:"localPath,omitempty"`
}

const defaultWakewordBase = "https://d3dmqd7cy685il.cloudfront.net/model/wake/spokestack/"

var artifactCatalog = []Artifact{
	{ID: "filter", Group: GroupWakeword, Extension: "tflite", Description: "Wake-word filter network."},
	{ID: "detect", Group: GroupWakeword, Extension: "tflite", Description: "Wake-word detect network."},
	{ID: "encode", Group: GroupWakeword, Extension: "tflite", Description: "Wake-word encode network."},
	{ID: "nlu", Group: GroupNLU, Extension: "tflite", Description: "Intent and slot classifier."},
	{ID: "vocab", Group: GroupNLU, Extension: "txt", Description: "Wordpiece vocabulary."},
	{ID: "metadata", Group: GroupNLU, Extension: "json", Description: "Intent and slot metadata."},
}

// DefaultWakewordURLs returns the stock "Spokestack" wake-word models.
func DefaultWakewordURLs() domain.WakewordModelURLs {
	return domain.WakewordModelURLs{
		Filter: defaultWakewordBase + "filter.tflite",
		Detect: defaultWakewordBase + "detect.tflite",
		Encode: defaultWakewordBase + "encode.tflite",
	}
}

// LookupArtifact finds a catalog entry by id.
func LookupArtifact(id string) (Artifact, bool) {
	for _, artifact := range artifactCatalog {
		if artifact.ID == id {
			return artifact, true
		}
	}
	return Artifact{}, false
}

// GroupIDs returns the artifact ids of group in catalog order.
func GroupIDs(group Group) []string {
	var ids []string
	for _, artifact := range artifactCatalog {
		if artifact.Group == group {
			ids = append(ids, artifact.ID)
		}
	}
	return ids
}

// ExtensionFor returns the file extension stored for id.
func ExtensionFor(id string) string {
	if artifact, ok := LookupArtifact(id); ok {
		return artifact.Extension
	}
	return defaultExtension
}

// Catalog lists every known artifact with its local cache state.
func (d *Downloader) Catalog() ([]ArtifactStatus, error) {
	statuses := make([]ArtifactStatus, 0, len(artifactCatalog))
	for _, artifact := range artifactCatalog {
		path, ok, err := d.cached(artifact.ID)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, ArtifactStatus{Artifact: artifact, Downloaded: ok, LocalPath: path})
	}
	return statuses, nil
}

// DefaultDir resolves the per-platform models directory.
func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		homeDir, homeErr := os.UserHomeDir()
		if homeErr != nil {
			return "", fmt.Errorf("resolve user config dir: %w", err)
		}
		base = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(base, "spokestack-tray", "models"), nil
}

// LocalPath returns the path of a bundled model reference, or false when
// ref must be downloaded.
func LocalPath(ref string) (string, bool) {
	trimmed := strings.TrimSpace(ref)
	switch {
	case strings.HasPrefix(trimmed, "file://"):
		return strings.TrimPrefix(trimmed, "file://"), true
	case strings.HasPrefix(trimmed, "http://"), strings.HasPrefix(trimmed, "https://"):
		return "", false
	case trimmed == "":
		return "", false
	default:
		return trimmed, true
	}
}
