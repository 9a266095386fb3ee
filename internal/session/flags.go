package session

import (
	"sync"

	"spokestack-tray/internal/domain"
)

// flags tracks the session state derived from bridge events.
type flags struct {
	mu          sync.RWMutex
	initialized bool
	started     bool
	listening   bool
	// stopOnError arms the automatic stop after an error. It is disarmed by
	// the first error and re-armed by the next recognition.
	stopOnError bool
}

// newFlags creates flags for a fresh, uninitialized session.
func newFlags() *flags {
	return &flags{stopOnError: true}
}

// apply records the transition caused by a bridge event. For error events it
// reports whether an automatic stop should follow.
func (f *flags) apply(kind domain.EventKind) (autoStop bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch kind {
	case domain.EventInit:
		f.initialized = true
	case domain.EventStart:
		f.started = true
	case domain.EventStop:
		f.started = false
	case domain.EventActivate:
		f.listening = true
	case domain.EventDeactivate:
		f.listening = false
	case domain.EventRecognize:
		f.stopOnError = true
	case domain.EventError:
		f.listening = false
		if f.stopOnError {
			f.stopOnError = false
			return true
		}
	}
	return false
}

// isInitialized reports whether init succeeded.
func (f *flags) isInitialized() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.initialized
}

// isStarted reports whether the pipeline is running.
func (f *flags) isStarted() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.started
}

// isListening reports whether ASR is active.
func (f *flags) isListening() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.listening
}

// snapshot copies the flags into a status value.
func (f *flags) snapshot() domain.Status {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return domain.Status{
		Initialized: f.initialized,
		Started:     f.started,
		Listening:   f.listening,
	}
}
