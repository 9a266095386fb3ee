package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"spokestack-tray/internal/bridge"
	"spokestack-tray/internal/bridge/bridgetest"
	"spokestack-tray/internal/domain"
)

func writeConfig(t *testing.T, nluBase, wakeBase string) string {
	t.Helper()
	dir := t.TempDir()
	data := fmt.Sprintf(`client_id: id
client_secret: secret
http_address: 127.0.0.1:0
models_dir: %s
data_dir: ""
network: wifi
nlu:
  nlu: %snlu.tflite
  vocab: %svocab.txt
  metadata: %smetadata.json
wakeword:
  filter: %sfilter.tflite
  detect: %sdetect.tflite
  encode: %sencode.tflite
`, filepath.Join(dir, "models"), nluBase, nluBase, nluBase, wakeBase, wakeBase, wakeBase)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func fakeDial(fake *bridgetest.Fake) DialFunc {
	return func(context.Context, string, *zap.Logger) (bridge.NativeSpeechBridge, error) {
		return fake, nil
	}
}

func newTestApp(t *testing.T, configPath string, dial DialFunc) *App {
	t.Helper()
	app, err := New(Options{
		ConfigPath: configPath,
		EnvFile:    filepath.Join(t.TempDir(), "absent.env"),
		Dial:       dial,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

// TestNewAppliesEnvironmentOverrides checks the settings layering.
func TestNewAppliesEnvironmentOverrides(t *testing.T) {
	t.Setenv("SPOKESTACK_CLIENT_ID", "from-env")
	app := newTestApp(t, writeConfig(t, "file:///bundle/", "file:///bundle/"), nil)

	assert.Equal(t, "from-env", app.Settings.ClientID)
	assert.Equal(t, "secret", app.Settings.ClientSecret)
	assert.Empty(t, app.Settings.DataDir)
	assert.Nil(t, app.Session)
}

// TestServeInitializesAndStops runs the API with bundled models.
func TestServeInitializesAndStops(t *testing.T) {
	fake := bridgetest.New()
	app := newTestApp(t, writeConfig(t, "file:///bundle/", "file:///bundle/"), fakeDial(fake))

	require.NoError(t, app.Connect(context.Background()))
	sess := app.Session

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx, true) }()

	require.Eventually(t, sess.IsInitialized, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	configs := fake.Configs()
	require.Len(t, configs, 1)
	nlu := configs[0]["nlu"].(map[string]any)
	assert.Equal(t, "/bundle/nlu.tflite", nlu["nlu-model-path"])
}

// TestConnectReportsDialFailure surfaces an unreachable speech host.
func TestConnectReportsDialFailure(t *testing.T) {
	app := newTestApp(t, writeConfig(t, "file:///bundle/", "file:///bundle/"),
		func(context.Context, string, *zap.Logger) (bridge.NativeSpeechBridge, error) {
			return nil, errors.New("connection refused")
		})

	err := app.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Nil(t, app.Session)
}

// TestFetchModelsDownloadsRemoteFiles fetches remote files and skips bundled ones.
func TestFetchModelsDownloadsRemoteFiles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("model:" + r.URL.Path))
	}))
	defer srv.Close()

	app := newTestApp(t, writeConfig(t, srv.URL+"/", "file:///bundle/"), nil)

	paths, err := app.FetchModels(context.Background(), false, nil)
	require.NoError(t, err)
	require.Len(t, paths, 3)
	for _, path := range paths {
		_, err := os.Stat(path)
		assert.NoError(t, err)
	}

	statuses, err := app.Models.Catalog()
	require.NoError(t, err)
	downloaded := 0
	for _, status := range statuses {
		if status.Downloaded {
			downloaded++
		}
	}
	assert.Equal(t, 3, downloaded)
}

// TestDiagnoseUsesSettings runs the readiness checks.
func TestDiagnoseUsesSettings(t *testing.T) {
	app := newTestApp(t, writeConfig(t, "file:///bundle/", "file:///bundle/"), nil)

	report := app.Diagnose(context.Background())
	require.NotEmpty(t, report.Items)
	for _, item := range report.Items {
		if item.ID == "credentials" || item.ID == "network" {
			assert.Equal(t, domain.DiagnosticStatusPass, item.Status, item.ID)
		}
	}
}
