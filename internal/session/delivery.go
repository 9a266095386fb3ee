package session

import (
	"sync"

	"spokestack-tray/internal/domain"
)

// outbox is an unbounded FIFO of events waiting for listener delivery.
// push never blocks, so the bridge reader keeps draining while a listener
// waits on a command of its own.
type outbox struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []domain.Event
	closed  bool
}

func newOutbox() *outbox {
	o := &outbox{}
	o.cond = sync.NewCond(&o.mu)
	return o
}

func (o *outbox) push(e domain.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.pending = append(o.pending, e)
	o.cond.Signal()
}

// take waits for queued events. It returns false once the outbox is closed
// and drained.
func (o *outbox) take() ([]domain.Event, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for len(o.pending) == 0 && !o.closed {
		o.cond.Wait()
	}
	if len(o.pending) == 0 {
		return nil, false
	}
	batch := o.pending
	o.pending = nil
	return batch, true
}

func (o *outbox) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	o.cond.Broadcast()
}

// deliver hands queued events to the registered listeners, one at a time
// and in arrival order.
func (s *Session) deliver() {
	defer close(s.deliveryDone)
	for {
		batch, ok := s.outbox.take()
		if !ok {
			return
		}
		for _, e := range batch {
			s.bus.Emit(e.Kind, e)
		}
	}
}

// emit resolves commands waiting on kind, then queues the event for
// listeners.
func (s *Session) emit(kind domain.EventKind, e domain.Event) {
	e.Kind = kind
	s.waiters.Emit(kind, e)
	s.outbox.push(e)
}
