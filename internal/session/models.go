package session

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"spokestack-tray/internal/domain"
	"spokestack-tray/internal/download"
)

const (
	msgNLUDownloadFailed      = "Failed to download Spokestack NLU files"
	msgWakewordDownloadFailed = "Failed to download Spokestack wakeword files"
)

// fetchModels resolves both model groups concurrently. NLU files are
// required; a wake-word failure only falls back to push-to-talk. Every
// download shares one cellular consent, so the user is asked at most once.
func (s *Session) fetchModels(ctx context.Context, cfg domain.InitConfig) (nluPaths, wakewordPaths []string, err error) {
	g, gctx := errgroup.WithContext(ctx)
	consent := download.NewConsent()

	nluRefs := []string{cfg.NLUModelURLs.NLU, cfg.NLUModelURLs.Vocab, cfg.NLUModelURLs.Metadata}
	g.Go(func() error {
		paths, err := s.fetchGroup(gctx, download.GroupNLU, nluRefs, cfg.RefreshModels, consent)
		if err != nil {
			s.logger.Error(msgNLUDownloadFailed, zap.Error(err))
			s.broadcast(msgNLUDownloadFailed)
			return fmt.Errorf("download NLU models: %w", err)
		}
		nluPaths = paths
		return nil
	})

	if wake := cfg.WakewordModelURLs; wake.Complete() {
		wakeRefs := []string{wake.Filter, wake.Detect, wake.Encode}
		g.Go(func() error {
			paths, err := s.fetchGroup(gctx, download.GroupWakeword, wakeRefs, cfg.RefreshModels, consent)
			if err != nil {
				if gctx.Err() == nil {
					s.logger.Warn(msgWakewordDownloadFailed, zap.Error(err))
					s.broadcast(msgWakewordDownloadFailed)
				}
				return nil
			}
			wakewordPaths = paths
			return nil
		})
	} else {
		s.logger.Info("wake-word models not configured, using push-to-talk")
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return nluPaths, wakewordPaths, nil
}

// fetchGroup resolves every file of group, in catalog order.
func (s *Session) fetchGroup(ctx context.Context, group download.Group, refs []string, refresh bool, consent *download.Consent) ([]string, error) {
	ids := download.GroupIDs(group)
	paths := make([]string, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			path, err := s.resolveModel(gctx, refs[i], id, refresh, consent)
			if err != nil {
				return err
			}
			paths[i] = path
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

// resolveModel uses bundled files in place and downloads everything else.
func (s *Session) resolveModel(ctx context.Context, ref, id string, refresh bool, consent *download.Consent) (string, error) {
	if local, ok := download.LocalPath(ref); ok {
		s.logger.Debug("using bundled model file", zap.String("id", id), zap.String("path", local))
		return local, nil
	}

	path, err := s.models.Acquire(ctx, ref, id, download.Options{
		Extension:     download.ExtensionFor(id),
		Overwrite:     refresh,
		ForceCellular: s.forceCellular,
		JoinInFlight:  true,
		Consent:       consent,
	})
	if err != nil {
		return "", err
	}
	if path == "" {
		return "", fmt.Errorf("%w: %s: transfer already in progress", domain.ErrDownloadFailed, id)
	}
	return path, nil
}
