package session

import (
	"context"

	"go.uber.org/zap"

	"spokestack-tray/internal/domain"
)

// dispatch applies bridge events to the flags, resolves waiting commands and
// queues the events for listeners until the bridge closes its event stream.
func (s *Session) dispatch() {
	defer close(s.dispatchDone)
	for event := range s.bridge.Events() {
		s.handle(event)
	}
}

func (s *Session) handle(event domain.Event) {
	switch event.Kind {
	case domain.EventTrace:
		s.logger.Debug("native trace", zap.String("message", event.Message))

	case domain.EventRecognize:
		s.flags.apply(domain.EventRecognize)
		event.Transcript = s.edit(event.Transcript)
		if event.Transcript == "" {
			s.logger.Debug("ignoring empty transcript")
			return
		}
		s.logger.Info("speech recognized", zap.String("transcript", event.Transcript))
		s.emit(domain.EventRecognize, event)
		s.classify(event.Transcript)

	case domain.EventError:
		autoStop := s.flags.apply(domain.EventError)
		s.logger.Warn("native error", zap.String("error", event.Error))
		s.emit(domain.EventError, event)
		s.queue.Clear()
		if autoStop {
			s.logger.Info("stopping after native error")
			s.goBackground(func() {
				if _, err := s.Stop(context.Background()); err != nil {
					s.logger.Warn("stop after native error", zap.Error(err))
				}
			})
		}

	default:
		if !event.Kind.Valid() || event.Kind == domain.EventChange {
			s.logger.Warn("ignoring unknown native event", zap.String("type", string(event.Kind)))
			return
		}
		s.flags.apply(event.Kind)
		s.logger.Debug("native event", zap.String("type", string(event.Kind)))
		s.emit(event.Kind, event)
	}
}

// classify asks the bridge to classify text. The request goes through the
// command queue from its own goroutine so the dispatcher keeps draining events.
func (s *Session) classify(text string) {
	s.goBackground(func() {
		err := s.queue.Enqueue(context.Background(), "classify", func(ctx context.Context) error {
			return s.bridge.Classify(ctx, text)
		})
		if err != nil {
			s.logger.Warn("classify", zap.Error(err))
		}
	})
}
