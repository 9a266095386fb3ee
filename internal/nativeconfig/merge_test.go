package nativeconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spokestack-tray/internal/domain"
)

var (
	nluPaths      = []string{"/m/nlu.tflite", "/m/vocab.txt", "/m/metadata.json"}
	wakewordPaths = []string{"/m/filter.tflite", "/m/detect.tflite", "/m/encode.tflite"}
)

func section(t *testing.T, cfg domain.NativeConfig, name string) map[string]any {
	t.Helper()
	m, ok := cfg[name].(map[string]any)
	require.True(t, ok, "section %s missing", name)
	return m
}

// TestMergeWakewordProfile picks the wake-word profile when all paths resolved.
func TestMergeWakewordProfile(t *testing.T) {
	cfg := Merge(domain.InitConfig{ClientID: "id", ClientSecret: "secret"}, nluPaths, wakewordPaths)

	pipeline := section(t, cfg, SectionPipeline)
	assert.Equal(t, ProfileWakewordNativeASR, pipeline[KeyProfile])
	assert.Equal(t, "/m/filter.tflite", pipeline["wake-filter-path"])
	assert.Equal(t, "/m/encode.tflite", pipeline["wake-encode-path"])
	assert.Equal(t, "aggressive", pipeline["ans-policy"])
	assert.Equal(t, 512, pipeline["fft-window-size"])

	nlu := section(t, cfg, SectionNLU)
	assert.Equal(t, "/m/vocab.txt", nlu["wordpiece-vocab-path"])

	id, secret := Credentials(cfg)
	assert.Equal(t, "id", id)
	assert.Equal(t, "secret", secret)
	assert.Equal(t, TraceLevelNone, section(t, cfg, SectionProperties)[KeyTraceLevel])
}

// TestMergePushToTalkWithoutWakeword falls back when a wake-word path is missing.
func TestMergePushToTalkWithoutWakeword(t *testing.T) {
	cfg := Merge(domain.InitConfig{Debug: true}, nluPaths, []string{"/m/filter.tflite", "", "/m/encode.tflite"})

	pipeline := section(t, cfg, SectionPipeline)
	assert.Equal(t, ProfilePTTNativeASR, pipeline[KeyProfile])
	assert.NotContains(t, pipeline, "wake-filter-path")
	assert.Equal(t, TraceLevelDebug, section(t, cfg, SectionProperties)[KeyTraceLevel])
}

// TestMergeSkipsIncompleteNLU leaves out the nlu section for partial groups.
func TestMergeSkipsIncompleteNLU(t *testing.T) {
	cfg := Merge(domain.InitConfig{}, nluPaths[:2], nil)
	assert.NotContains(t, cfg, SectionNLU)
}

// TestMergeExplicitProfileWins keeps a caller-selected profile.
func TestMergeExplicitProfileWins(t *testing.T) {
	cfg := Merge(domain.InitConfig{Profile: "VAD_NATIVE_ASR"}, nluPaths, wakewordPaths)
	assert.Equal(t, "VAD_NATIVE_ASR", Profile(cfg))
}

// TestMergePassthroughHasHighestPrecedence deep-merges caller overrides.
func TestMergePassthroughHasHighestPrecedence(t *testing.T) {
	passthrough := domain.NativeConfig{
		SectionPipeline: map[string]any{
			"vad-fall-delay":   800,
			"wake-filter-path": "/custom/filter.tflite",
		},
		"tts": map[string]any{"voice": "demo-male"},
	}
	cfg := Merge(domain.InitConfig{Passthrough: passthrough}, nluPaths, wakewordPaths)

	pipeline := section(t, cfg, SectionPipeline)
	assert.Equal(t, 800, pipeline["vad-fall-delay"])
	assert.Equal(t, "/custom/filter.tflite", pipeline["wake-filter-path"])
	assert.Equal(t, "/m/detect.tflite", pipeline["wake-detect-path"])
	assert.Equal(t, 0.97, pipeline["pre-emphasis"])
	assert.Equal(t, "demo-male", section(t, cfg, "tts")["voice"])
}

// TestMergeIsPure verifies inputs are not mutated and results are independent.
func TestMergeIsPure(t *testing.T) {
	passthrough := domain.NativeConfig{SectionPipeline: map[string]any{"vad-mode": "quality"}}
	in := domain.InitConfig{Passthrough: passthrough}

	first := Merge(in, nluPaths, wakewordPaths)
	section(t, first, SectionPipeline)["vad-mode"] = "mutated"
	second := Merge(in, nluPaths, wakewordPaths)

	assert.Equal(t, "quality", section(t, second, SectionPipeline)["vad-mode"])
	assert.Equal(t, map[string]any{"vad-mode": "quality"}, passthrough[SectionPipeline])
}
