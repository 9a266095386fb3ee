package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"spokestack-tray/internal/domain"
	"spokestack-tray/internal/events"
)

type outcome struct {
	event domain.Event
	err   error
}

// runNativeCommand invokes a bridge command and waits for the success event
// of kind, an error event or the timeout, whichever comes first. On timeout
// it broadcasts a synthetic error and clears the command queue.
func (s *Session) runNativeCommand(ctx context.Context, kind domain.EventKind, timeout time.Duration, invoke func(context.Context) error) (domain.Event, error) {
	done := make(chan outcome, 2)
	success := s.waiters.Once(kind, events.NewListener(func(e domain.Event) {
		done <- outcome{event: e}
	}))
	failure := s.waiters.Once(domain.EventError, events.NewListener(func(e domain.Event) {
		msg := e.Error
		if msg == "" {
			msg = fmt.Sprintf("native %s failed", kind)
		}
		done <- outcome{err: &domain.BridgeError{Kind: kind, Message: msg}}
	}))
	release := func() {
		s.waiters.Off(kind, success)
		s.waiters.Off(domain.EventError, failure)
	}

	s.logger.Debug("running native command", zap.String("kind", string(kind)))
	if err := invoke(ctx); err != nil {
		release()
		return domain.Event{}, fmt.Errorf("native %s: %w", kind, err)
	}

	timer := s.after(timeout)
	select {
	case o := <-done:
		release()
		return o.event, o.err
	case <-timer:
		release()
		msg := fmt.Sprintf("No response from Spokestack native when running command %s", kind)
		s.logger.Error("native command timed out", zap.String("kind", string(kind)), zap.Duration("timeout", timeout))
		s.broadcast(msg)
		s.queue.Clear()
		return domain.Event{}, fmt.Errorf("%w: %s", domain.ErrBridgeTimeout, msg)
	case <-ctx.Done():
		release()
		return domain.Event{}, ctx.Err()
	case <-s.closing:
		release()
		return domain.Event{}, ErrClosed
	}
}
