package domain

import "strings"

// ModelFile is one downloaded artifact tracked by the manifest.
type ModelFile struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
}

// Manifest is the ordered list of acquired model files.
type Manifest []ModelFile

// Find returns the entry for id, if any.
func (m Manifest) Find(id string) (ModelFile, bool) {
	for _, file := range m {
		if file.ID == id {
			return file, true
		}
	}
	return ModelFile{}, false
}

// Upsert replaces the entry for file.ID in place or appends it.
func (m Manifest) Upsert(file ModelFile) Manifest {
	for i := range m {
		if m[i].ID == file.ID {
			m[i] = file
			return m
		}
	}
	return append(m, file)
}

// Delete drops the entry for id and reports whether one existed.
func (m Manifest) Delete(id string) (Manifest, bool) {
	for i := range m {
		if m[i].ID == id {
			return append(m[:i], m[i+1:]...), true
		}
	}
	return m, false
}

// NLUModelURLs locates the three NLU artifacts.
type NLUModelURLs struct {
	NLU      string `json:"nlu" yaml:"nlu"`
	Vocab    string `json:"vocab" yaml:"vocab"`
	Metadata string `json:"metadata" yaml:"metadata"`
}

// Complete reports whether all three URLs are set.
func (u *NLUModelURLs) Complete() bool {
	return u != nil && nonEmpty(u.NLU, u.Vocab, u.Metadata)
}

// WakewordModelURLs locates the three wake-word networks.
type WakewordModelURLs struct {
	Filter string `json:"filter" yaml:"filter"`
	Detect string `json:"detect" yaml:"detect"`
	Encode string `json:"encode" yaml:"encode"`
}

// Complete reports whether all three URLs are set.
func (u *WakewordModelURLs) Complete() bool {
	return u != nil && nonEmpty(u.Filter, u.Detect, u.Encode)
}

// InitConfig is the caller-facing configuration for Initialize.
type InitConfig struct {
	ClientID     string
	ClientSecret string
	Debug        bool
	// RefreshModels forces every model to be downloaded again.
	RefreshModels bool
	// Profile overrides the pipeline profile picked from the available models.
	Profile           string
	EditTranscript    func(string) string
	NLUModelURLs      *NLUModelURLs
	WakewordModelURLs *WakewordModelURLs
	// Passthrough is deep-merged over everything else.
	Passthrough NativeConfig
}

func nonEmpty(values ...string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}
