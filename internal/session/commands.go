package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"spokestack-tray/internal/domain"
	"spokestack-tray/internal/download"
	"spokestack-tray/internal/nativeconfig"
)

const (
	msgNLURequired         = "NLU model URLs not specified (nlu, vocab, and metadata required). An NLU is required to process speech."
	msgCredentialsRequired = "Spokestack client ID and secret are required."
)

// Initialize resolves the model files, merges the native configuration and
// initializes the bridge. It returns whether the session is initialized.
func (s *Session) Initialize(ctx context.Context, cfg domain.InitConfig) (bool, error) {
	err := s.queue.Enqueue(ctx, "initialize", func(ctx context.Context) error {
		return s.initialize(ctx, cfg)
	})
	return s.IsInitialized(), err
}

// Start starts the speech pipeline and returns whether it is running.
func (s *Session) Start(ctx context.Context) (bool, error) {
	err := s.queue.Enqueue(ctx, "start", s.startPipeline)
	return s.IsStarted(), err
}

// Stop stops the speech pipeline and returns whether it is stopped.
func (s *Session) Stop(ctx context.Context) (bool, error) {
	err := s.queue.Enqueue(ctx, "stop", s.stopPipeline)
	return !s.IsStarted(), err
}

// Listen requests speech permission, then activates ASR, starting the
// pipeline first when needed. It returns whether ASR is active.
func (s *Session) Listen(ctx context.Context) (bool, error) {
	granted, err := s.requestSpeech(ctx)
	if err != nil {
		return false, err
	}
	if !granted {
		return false, domain.ErrPermissionDenied
	}
	err = s.queue.Enqueue(ctx, "activate", s.activate)
	return s.IsListening(), err
}

// StopListening deactivates ASR and returns whether it is inactive.
func (s *Session) StopListening(ctx context.Context) (bool, error) {
	err := s.queue.Enqueue(ctx, "deactivate", s.deactivate)
	return !s.IsListening(), err
}

// Synthesize converts req to speech and returns the audio URL.
func (s *Session) Synthesize(ctx context.Context, req domain.SynthesizeRequest) (string, error) {
	var url string
	err := s.queue.Enqueue(ctx, "synthesize", func(ctx context.Context) error {
		var err error
		url, err = s.synthesize(ctx, req)
		return err
	})
	return url, err
}

// Say synthesizes text with the configured voice unless silent mode is on,
// in which case it returns an empty URL.
func (s *Session) Say(ctx context.Context, text string) (string, error) {
	if s.preferences != nil && s.preferences.Silent() {
		s.logger.Debug("silent mode, skipping speech", zap.String("text", text))
		return "", nil
	}
	return s.Synthesize(ctx, domain.SynthesizeRequest{
		Input:  text,
		Format: domain.TTSFormatText,
		Voice:  s.voice,
	})
}

// SetAppState records the host's foreground state. Going to the background
// stops the pipeline; returning to active afterwards starts it again.
func (s *Session) SetAppState(ctx context.Context, state domain.AppState) error {
	switch state {
	case domain.AppStateActive, domain.AppStateInactive, domain.AppStateBackground:
	default:
		return fmt.Errorf("%w: unknown app state %q", domain.ErrInvalidArgument, state)
	}

	prev := s.appState.Set(state)
	s.logger.Info("app state changed", zap.String("from", string(prev)), zap.String("to", string(state)))

	switch {
	case state == domain.AppStateBackground && prev != domain.AppStateBackground:
		if !s.IsStarted() && !s.IsListening() {
			return nil
		}
		_, err := s.Stop(ctx)
		return err
	case state == domain.AppStateActive && prev == domain.AppStateBackground:
		if !s.IsInitialized() {
			return nil
		}
		_, err := s.Start(ctx)
		return err
	}
	return nil
}

func (s *Session) initialize(ctx context.Context, cfg domain.InitConfig) error {
	if s.IsInitialized() {
		return nil
	}
	s.setEditTranscript(cfg.EditTranscript)

	native, err := s.prepare(ctx, cfg)
	if err != nil {
		return err
	}

	_, err = s.runNativeCommand(ctx, domain.EventInit, s.timeouts.Initialize, func(ctx context.Context) error {
		return s.bridge.Initialize(ctx, native)
	})
	if err == nil || !errors.Is(err, domain.ErrModelFormat) {
		return err
	}

	if !s.claimFormatRetry() {
		s.logger.Error("model files still unreadable after refresh", zap.Error(err))
		return fmt.Errorf("initialize after refreshing models: %w", err)
	}

	s.logger.Warn("model files unreadable, downloading them again", zap.Error(err))
	ids := append(download.GroupIDs(download.GroupNLU), download.GroupIDs(download.GroupWakeword)...)
	if rmErr := s.models.Remove(ids...); rmErr != nil {
		s.logger.Warn("remove stale model files", zap.Error(rmErr))
	}
	return s.initialize(ctx, cfg)
}

// prepare downloads the models and builds the native configuration.
func (s *Session) prepare(ctx context.Context, cfg domain.InitConfig) (domain.NativeConfig, error) {
	if !cfg.NLUModelURLs.Complete() {
		s.broadcast(msgNLURequired)
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidArgument, msgNLURequired)
	}

	nluPaths, wakewordPaths, err := s.fetchModels(ctx, cfg)
	if err != nil {
		return nil, err
	}

	native := nativeconfig.Merge(cfg, nluPaths, wakewordPaths)
	if id, secret := nativeconfig.Credentials(native); id == "" || secret == "" {
		s.broadcast(msgCredentialsRequired)
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidArgument, msgCredentialsRequired)
	}
	s.logger.Info("native configuration ready", zap.String("profile", nativeconfig.Profile(native)))
	return native, nil
}

func (s *Session) startPipeline(ctx context.Context) error {
	granted, err := s.checkSpeech(ctx)
	if err != nil {
		return err
	}
	if !granted {
		if s.IsStarted() || s.IsListening() {
			if err := s.stopPipeline(ctx); err != nil {
				return err
			}
		}
		return domain.ErrPermissionDenied
	}
	if s.IsStarted() || s.IsListening() {
		return nil
	}
	if !s.IsInitialized() {
		return ErrNotInitialized
	}
	if state := s.appState.Current(); state != domain.AppStateActive {
		s.logger.Info("not starting while app is not active", zap.String("app_state", string(state)))
		return nil
	}

	_, err = s.runNativeCommand(ctx, domain.EventStart, s.timeouts.Command, s.bridge.Start)
	return err
}

func (s *Session) stopPipeline(ctx context.Context) error {
	if !s.IsInitialized() || (!s.IsStarted() && !s.IsListening()) {
		return nil
	}
	_, err := s.runNativeCommand(ctx, domain.EventStop, s.timeouts.Command, s.bridge.Stop)
	return err
}

func (s *Session) activate(ctx context.Context) error {
	if s.IsListening() {
		return nil
	}
	if !s.IsInitialized() {
		return ErrNotInitialized
	}
	if s.appState.Current() == domain.AppStateBackground {
		s.logger.Info("not listening while app is in the background")
		return nil
	}
	granted, err := s.checkSpeech(ctx)
	if err != nil {
		return err
	}
	if !granted {
		return domain.ErrPermissionDenied
	}
	if !s.IsStarted() {
		if err := s.startPipeline(ctx); err != nil {
			return err
		}
	}

	_, err = s.runNativeCommand(ctx, domain.EventActivate, s.timeouts.Command, s.bridge.Activate)
	return err
}

func (s *Session) deactivate(ctx context.Context) error {
	if !s.IsListening() {
		return nil
	}
	_, err := s.runNativeCommand(ctx, domain.EventDeactivate, s.timeouts.Command, s.bridge.Deactivate)
	return err
}

func (s *Session) synthesize(ctx context.Context, req domain.SynthesizeRequest) (string, error) {
	if !s.IsInitialized() {
		return "", fmt.Errorf("%w: call Initialize before using Synthesize", ErrNotInitialized)
	}
	if strings.TrimSpace(req.Input) == "" {
		return "", fmt.Errorf("%w: synthesize input is required", domain.ErrInvalidArgument)
	}
	if req.Format == "" {
		req.Format = domain.TTSFormatText
	}

	event, err := s.runNativeCommand(ctx, domain.EventSuccess, s.timeouts.Synthesize, func(ctx context.Context) error {
		return s.bridge.Synthesize(ctx, req)
	})
	if err != nil {
		return "", err
	}
	return event.URL, nil
}

func (s *Session) checkSpeech(ctx context.Context) (bool, error) {
	if s.permissions == nil {
		return true, nil
	}
	granted, err := s.permissions.CheckSpeech(ctx)
	if err != nil {
		return false, fmt.Errorf("check speech permission: %w", err)
	}
	return granted, nil
}

func (s *Session) requestSpeech(ctx context.Context) (bool, error) {
	if s.permissions == nil {
		return true, nil
	}
	granted, err := s.permissions.RequestSpeech(ctx)
	if err != nil {
		return false, fmt.Errorf("request speech permission: %w", err)
	}
	return granted, nil
}
