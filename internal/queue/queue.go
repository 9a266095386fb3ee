// Package queue serializes native bridge commands through a single worker.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrDiscarded is returned to callers whose command was cleared before it ran.
	ErrDiscarded = errors.New("command discarded from queue")
	// ErrClosed is returned once the queue has been shut down.
	ErrClosed = errors.New("command queue closed")
)

// Operation is one unit of work run by the queue worker.
type Operation func(ctx context.Context) error

type entryState int

const (
	stateWaiting entryState = iota
	stateRunning
	stateSettled
)

type entry struct {
	id    string
	name  string
	op    Operation
	ctx   context.Context
	state entryState
	done  chan error
}

// Queue runs enqueued operations one at a time in submission order.
// An entry stays visible from Enqueue until its operation settles.
type Queue struct {
	mu      sync.Mutex
	entries []*entry
	closed  bool

	wake   chan struct{}
	stop   chan struct{}
	done   chan struct{}
	logger *zap.Logger
}

// New starts a queue worker. Call Close to stop it.
func New(logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &Queue{
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: logger,
	}
	go q.work()
	return q
}

// Enqueue appends op and blocks until it settles. If ctx ends while the entry
// is still waiting, the entry is withdrawn and ctx.Err() is returned.
func (q *Queue) Enqueue(ctx context.Context, name string, op Operation) error {
	e := &entry{
		id:   uuid.NewString(),
		name: name,
		op:   op,
		ctx:  ctx,
		done: make(chan error, 1),
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.entries = append(q.entries, e)
	q.logLocked("queued", e)
	q.mu.Unlock()
	q.signal()

	select {
	case err := <-e.done:
		return err
	case <-ctx.Done():
		if q.withdraw(e) {
			return ctx.Err()
		}
		return <-e.done
	}
}

// Len returns the number of commands still pending, including a running one.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Names lists pending command names in execution order.
func (q *Queue) Names() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.namesLocked()
}

// Clear empties the visible queue. Entries that have not started are
// rejected with ErrDiscarded and never run.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dropLocked(ErrDiscarded)
	q.logger.Debug("command queue cleared")
}

// Close rejects waiting entries with ErrClosed, waits for a running
// operation to finish and stops the worker.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	q.dropLocked(ErrClosed)
	q.mu.Unlock()

	close(q.stop)
	<-q.done
}

func (q *Queue) work() {
	defer close(q.done)
	for {
		e := q.next()
		if e == nil {
			return
		}
		err := q.run(e)
		q.settle(e, err)
	}
}

// next claims the first waiting entry, blocking until one exists.
func (q *Queue) next() *entry {
	for {
		q.mu.Lock()
		for _, e := range q.entries {
			if e.state == stateWaiting {
				e.state = stateRunning
				q.mu.Unlock()
				return e
			}
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-q.stop:
			return nil
		}
	}
}

func (q *Queue) run(e *entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("command %s panicked: %v", e.name, r)
		}
	}()
	return e.op(e.ctx)
}

// settle removes e from the visible queue exactly once and reports err.
func (q *Queue) settle(e *entry, err error) {
	q.mu.Lock()
	q.removeLocked(e)
	e.state = stateSettled
	q.logLocked("settled", e)
	q.mu.Unlock()
	e.done <- err
}

func (q *Queue) withdraw(e *entry) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e.state != stateWaiting {
		return false
	}
	q.removeLocked(e)
	e.state = stateSettled
	q.logLocked("withdrawn", e)
	return true
}

func (q *Queue) dropLocked(reason error) {
	for _, e := range q.entries {
		if e.state == stateWaiting {
			e.state = stateSettled
			e.done <- reason
		}
	}
	q.entries = nil
}

func (q *Queue) removeLocked(e *entry) {
	for i, candidate := range q.entries {
		if candidate == e {
			q.entries = append(q.entries[:i:i], q.entries[i+1:]...)
			return
		}
	}
}

func (q *Queue) namesLocked() []string {
	names := make([]string, 0, len(q.entries))
	for _, e := range q.entries {
		names = append(names, e.name)
	}
	return names
}

func (q *Queue) logLocked(action string, e *entry) {
	q.logger.Debug("command queue",
		zap.String("action", action),
		zap.String("command", e.name),
		zap.String("id", e.id),
		zap.String("pending", strings.Join(q.namesLocked(), ", ")))
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
