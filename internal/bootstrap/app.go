// Package bootstrap wires configuration, persistence, the model cache, the
// speech session and the HTTP API into one application.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"spokestack-tray/internal/bridge"
	"spokestack-tray/internal/bridge/wsbridge"
	"spokestack-tray/internal/config"
	"spokestack-tray/internal/diagnostics"
	"spokestack-tray/internal/domain"
	"spokestack-tray/internal/download"
	"spokestack-tray/internal/events"
	"spokestack-tray/internal/httpapi"
	"spokestack-tray/internal/platform"
	"spokestack-tray/internal/session"
	"spokestack-tray/internal/store"
)

const shutdownTimeout = 5 * time.Second

// DialFunc connects to the native speech host.
type DialFunc func(ctx context.Context, url string, logger *zap.Logger) (bridge.NativeSpeechBridge, error)

// Options configures New.
type Options struct {
	ConfigPath string
	EnvFile    string
	Logger     *zap.Logger
	// Dial defaults to the websocket bridge.
	Dial DialFunc
	// PromptIn and PromptOut carry the cellular download confirmation.
	PromptIn  io.Reader
	PromptOut io.Writer
}

// App holds the long-lived components. Session and API stay nil until Connect.
type App struct {
	Settings config.Settings
	Store    config.Store
	Logger   *zap.Logger
	KV       *store.KV
	Models   *download.Downloader
	Checker  *diagnostics.Checker
	History  *events.History
	Session  *session.Session
	API      *httpapi.Server

	dial DialFunc
}

// New loads settings and opens the store and model cache. It does not
// contact the speech host.
func New(opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	path := opts.ConfigPath
	if path == "" {
		path = config.DefaultPath()
	}
	settings, err := config.Load(path, opts.EnvFile)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	kv, err := store.Open(settings.DataDir, logger.Named("store"))
	if err != nil {
		return nil, err
	}

	downloadTimeout, err := settings.Timeouts.DownloadTimeout()
	if err != nil {
		_ = kv.Close()
		return nil, err
	}

	in, out := opts.PromptIn, opts.PromptOut
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stderr
	}

	network := networkFor(settings)
	models := download.New(download.Config{
		Dir:       settings.ModelsDir,
		Network:   network,
		Confirmer: platform.NewTerminalConfirmer(in, out),
		Store:     kv,
		Logger:    logger.Named("download"),
		Timeout:   downloadTimeout,
	})

	dial := opts.Dial
	if dial == nil {
		dial = func(ctx context.Context, url string, logger *zap.Logger) (bridge.NativeSpeechBridge, error) {
			client, err := wsbridge.Dial(ctx, url, logger)
			if err != nil {
				return nil, err
			}
			return client, nil
		}
	}

	return &App{
		Settings: settings,
		Store:    config.NewYAMLStore(path),
		Logger:   logger,
		KV:       kv,
		Models:   models,
		Checker:  diagnostics.NewChecker(network, models),
		History:  events.NewHistory(1000),
		dial:     dial,
	}, nil
}

// Connect dials the speech host and builds the session and HTTP API.
func (a *App) Connect(ctx context.Context) error {
	if a.Session != nil {
		return nil
	}

	command, initialize, synthesize, err := a.Settings.Timeouts.Durations()
	if err != nil {
		return err
	}

	br, err := a.dial(ctx, a.Settings.BridgeURL, a.Logger.Named("bridge"))
	if err != nil {
		return fmt.Errorf("connect to speech host: %w", err)
	}

	sess, err := session.New(session.Config{
		Bridge:        br,
		Models:        a.Models,
		Permissions:   platform.StaticPermissions{Granted: true},
		Preferences:   a.KV,
		Logger:        a.Logger.Named("session"),
		ForceCellular: a.Settings.ForceCellular,
		Voice:         a.Settings.Voice,
		Timeouts: session.Timeouts{
			Command:    command,
			Initialize: initialize,
			Synthesize: synthesize,
		},
	})
	if err != nil {
		_ = br.Close()
		return err
	}

	api, err := httpapi.New(httpapi.Config{
		Speech:      sess,
		Models:      a.Models,
		Preferences: a.KV,
		History:     a.History,
		InitConfig:  a.Settings.InitConfig,
		Diagnose:    a.Diagnose,
		Logger:      a.Logger.Named("http"),
	})
	if err != nil {
		_ = sess.Close()
		return err
	}

	a.Session = sess
	a.API = api
	return nil
}

// Serve runs the HTTP API until ctx ends. With autoInit the session is
// initialized first; a failure is logged and left to the HTTP client to retry.
func (a *App) Serve(ctx context.Context, autoInit bool) error {
	if err := a.Connect(ctx); err != nil {
		return err
	}

	if autoInit {
		if _, err := a.Session.Initialize(ctx, a.Settings.InitConfig()); err != nil {
			a.Logger.Warn("initialize speech session", zap.Error(err))
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.API.Start(a.Settings.HTTPAddress)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.API.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http api: %w", err)
	}
	return <-errCh
}

// Diagnose runs the readiness checks against the current settings.
func (a *App) Diagnose(ctx context.Context) domain.DiagnosticReport {
	return a.Checker.Run(ctx, a.Settings)
}

// FetchModels downloads every configured remote model file. Bundled files
// and unconfigured groups are skipped.
func (a *App) FetchModels(ctx context.Context, refresh bool, progress func(id string, percent int)) ([]string, error) {
	refs := a.modelRefs()

	g, gctx := errgroup.WithContext(ctx)
	consent := download.NewConsent()
	paths := make([]string, len(refs))
	for i, ref := range refs {
		if _, local := download.LocalPath(ref.url); local || strings.TrimSpace(ref.url) == "" {
			a.Logger.Debug("skipping model", zap.String("id", ref.id))
			continue
		}
		g.Go(func() error {
			opts := download.Options{
				Extension:     download.ExtensionFor(ref.id),
				Overwrite:     refresh,
				ForceCellular: a.Settings.ForceCellular,
				JoinInFlight:  true,
				Consent:       consent,
			}
			if progress != nil {
				opts.Progress = func(percent int) { progress(ref.id, percent) }
			}
			path, err := a.Models.Acquire(gctx, ref.url, ref.id, opts)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", ref.id, err)
			}
			paths[i] = path
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fetched := paths[:0]
	for _, path := range paths {
		if path != "" {
			fetched = append(fetched, path)
		}
	}
	return fetched, nil
}

// Close shuts down the session and releases the store.
func (a *App) Close() error {
	var errs []error
	if a.Session != nil {
		errs = append(errs, a.Session.Close())
	}
	if a.KV != nil {
		errs = append(errs, a.KV.Close())
	}
	return errors.Join(errs...)
}

type modelRef struct {
	id  string
	url string
}

func (a *App) modelRefs() []modelRef {
	nlu := a.Settings.NLU
	refs := []modelRef{
		{id: "nlu", url: nlu.NLU},
		{id: "vocab", url: nlu.Vocab},
		{id: "metadata", url: nlu.Metadata},
	}
	if wake := a.Settings.Wakeword; wake != nil {
		refs = append(refs,
			modelRef{id: "filter", url: wake.Filter},
			modelRef{id: "detect", url: wake.Detect},
			modelRef{id: "encode", url: wake.Encode},
		)
	}
	return refs
}

// networkFor pins the configured network class or probes the interfaces.
func networkFor(settings config.Settings) download.NetworkInfo {
	if settings.Network != "" {
		return platform.StaticNetwork(domain.ParseNetworkClass(settings.Network))
	}
	return platform.NewNetworkProbe()
}
