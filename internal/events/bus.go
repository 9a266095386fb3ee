// Package events turns bridge callbacks into a typed publish/subscribe bus.
package events

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"spokestack-tray/internal/domain"
)

// Listener receives events from a Bus. Listeners are compared by identity,
// so keep the pointer returned by NewListener to remove it later.
type Listener struct {
	fn func(domain.Event)
}

// NewListener wraps fn for registration.
func NewListener(fn func(domain.Event)) *Listener {
	return &Listener{fn: fn}
}

// Bus delivers events to listeners registered per kind. Listeners on
// domain.EventChange receive every event after the kind's own listeners.
type Bus struct {
	mu        sync.Mutex
	listeners map[domain.EventKind][]*Listener
	logger    *zap.Logger
}

// NewBus creates an empty bus. A nil logger disables panic reporting.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		listeners: make(map[domain.EventKind][]*Listener),
		logger:    logger,
	}
}

// On registers l for kind. Registering the same listener twice is a no-op.
func (b *Bus) On(kind domain.EventKind, l *Listener) {
	if l == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if indexOf(b.listeners[kind], l) >= 0 {
		return
	}
	b.listeners[kind] = append(b.listeners[kind], l)
}

// Once registers l for a single delivery on kind and returns the wrapper
// that was registered, which can be passed to Off to cancel it.
func (b *Bus) Once(kind domain.EventKind, l *Listener) *Listener {
	if l == nil {
		return nil
	}
	var fired atomic.Bool
	wrapper := &Listener{}
	wrapper.fn = func(e domain.Event) {
		if !fired.CompareAndSwap(false, true) {
			return
		}
		b.Off(kind, wrapper)
		l.fn(e)
	}
	b.On(kind, wrapper)
	return wrapper
}

// Off removes l from kind if present.
func (b *Bus) Off(kind domain.EventKind, l *Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()

	current := b.listeners[kind]
	i := indexOf(current, l)
	if i < 0 {
		return
	}
	next := make([]*Listener, 0, len(current)-1)
	next = append(next, current[:i]...)
	next = append(next, current[i+1:]...)
	b.listeners[kind] = next
}

// Count returns the number of listeners registered for kind.
func (b *Bus) Count(kind domain.EventKind) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners[kind])
}

// Emit delivers e to the listeners of kind, then to the change listeners,
// each in registration order. The event's Kind is set to kind.
func (b *Bus) Emit(kind domain.EventKind, e domain.Event) {
	e.Kind = kind

	b.mu.Lock()
	targets := make([]*Listener, 0, len(b.listeners[kind])+len(b.listeners[domain.EventChange]))
	targets = append(targets, b.listeners[kind]...)
	if kind != domain.EventChange {
		targets = append(targets, b.listeners[domain.EventChange]...)
	}
	b.mu.Unlock()

	for _, l := range targets {
		b.deliver(l, e)
	}
}

// deliver runs one listener, recovering a panic so later listeners still run.
func (b *Bus) deliver(l *Listener, e domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event listener panicked",
				zap.String("kind", string(e.Kind)),
				zap.String("panic", fmt.Sprint(r)))
		}
	}()
	l.fn(e)
}

func indexOf(list []*Listener, l *Listener) int {
	for i, candidate := range list {
		if candidate == l {
			return i
		}
	}
	return -1
}
