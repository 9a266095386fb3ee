// Package nativeconfig builds the configuration handed to native initialization.
package nativeconfig

import (
	"strings"

	"spokestack-tray/internal/domain"
)

// Pipeline profiles understood by the native engine.
const (
	ProfileWakewordNativeASR = "TFLITE_WAKEWORD_NATIVE_ASR"
	ProfilePTTNativeASR      = "PTT_NATIVE_ASR"
)

// Native trace levels.
const (
	TraceLevelDebug = 10
	TraceLevelPerf  = 20
	TraceLevelInfo  = 30
	TraceLevelNone  = 100
)

// Section and property keys.
const (
	SectionProperties = "properties"
	SectionPipeline   = "pipeline"
	SectionNLU        = "nlu"

	KeyClientID     = "spokestack-id"
	KeyClientSecret = "spokestack-secret"
	KeyTraceLevel   = "trace-level"
	KeyProfile      = "profile"
)

// Merge combines tuning defaults, resolved model paths and the caller's
// passthrough configuration, in increasing precedence. A model group's paths
// are used only when all three of its files resolved.
func Merge(cfg domain.InitConfig, nluPaths, wakewordPaths []string) domain.NativeConfig {
	hasWakeword := complete(wakewordPaths)
	hasNLU := complete(nluPaths)

	profile := cfg.Profile
	if profile == "" {
		if hasWakeword {
			profile = ProfileWakewordNativeASR
		} else {
			profile = ProfilePTTNativeASR
		}
	}

	traceLevel := TraceLevelNone
	if cfg.Debug {
		traceLevel = TraceLevelDebug
	}

	out := domain.NativeConfig{
		SectionProperties: map[string]any{
			KeyClientID:     cfg.ClientID,
			KeyClientSecret: cfg.ClientSecret,
			KeyTraceLevel:   traceLevel,
		},
		SectionPipeline: defaultPipeline(profile),
	}

	if hasWakeword {
		deepMerge(out, domain.NativeConfig{
			SectionPipeline: map[string]any{
				"wake-filter-path": wakewordPaths[0],
				"wake-detect-path": wakewordPaths[1],
				"wake-encode-path": wakewordPaths[2],
			},
		})
	}
	if hasNLU {
		deepMerge(out, domain.NativeConfig{
			SectionNLU: map[string]any{
				"nlu-model-path":       nluPaths[0],
				"wordpiece-vocab-path": nluPaths[1],
				"nlu-metadata-path":    nluPaths[2],
			},
		})
	}
	if cfg.Passthrough != nil {
		deepMerge(out, clone(cfg.Passthrough))
	}
	return out
}

// defaultPipeline holds the tuning parameters for noise suppression, gain
// control, voice activity detection, wake-word activation and the FFT.
func defaultPipeline(profile string) map[string]any {
	return map[string]any{
		KeyProfile:                profile,
		"ans-policy":              "aggressive",
		"agc-target-level-dbfs":   3,
		"agc-compression-gain-db": 15,
		"vad-mode":                "very-aggressive",
		"vad-fall-delay":          1000,
		"wake-threshold":          0.9,
		"wake-active-min":         2000,
		"wake-active-max":         6000,
		"fft-window-size":         512,
		"fft-hop-length":          10,
		"pre-emphasis":            0.97,
	}
}

// Credentials returns the client id and secret after merging.
func Credentials(cfg domain.NativeConfig) (id, secret string) {
	props, _ := cfg[SectionProperties].(map[string]any)
	id, _ = props[KeyClientID].(string)
	secret, _ = props[KeyClientSecret].(string)
	return strings.TrimSpace(id), strings.TrimSpace(secret)
}

// Profile returns the merged pipeline profile.
func Profile(cfg domain.NativeConfig) string {
	pipeline, _ := cfg[SectionPipeline].(map[string]any)
	profile, _ := pipeline[KeyProfile].(string)
	return profile
}

func complete(paths []string) bool {
	if len(paths) != 3 {
		return false
	}
	for _, p := range paths {
		if p == "" {
			return false
		}
	}
	return true
}

// deepMerge copies src into dst, recursing where both sides hold maps.
func deepMerge(dst, src map[string]any) {
	for key, value := range src {
		srcMap, srcIsMap := asMap(value)
		dstMap, dstIsMap := asMap(dst[key])
		if srcIsMap && dstIsMap {
			deepMerge(dstMap, srcMap)
			dst[key] = dstMap
			continue
		}
		dst[key] = value
	}
}

func clone(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for key, value := range src {
		if m, ok := asMap(value); ok {
			out[key] = clone(m)
			continue
		}
		out[key] = value
	}
	return out
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case domain.NativeConfig:
		return map[string]any(m), true
	default:
		return nil, false
	}
}
