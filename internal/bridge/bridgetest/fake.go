// Package bridgetest provides a scriptable in-memory speech bridge.
package bridgetest

import (
	"context"
	"errors"
	"sync"

	"spokestack-tray/internal/bridge"
	"spokestack-tray/internal/domain"
)

// ErrClosed is returned for commands issued after Close.
var ErrClosed = errors.New("fake bridge closed")

// Fake records every command and answers with scripted events. By default
// each lifecycle command answers with its matching event, synthesize answers
// with success and classify answers with nothing.
type Fake struct {
	mu       sync.Mutex
	calls    []string
	defaults map[string][]domain.Event
	scripts  map[string][][]domain.Event
	failures map[string]error
	hooks    map[string]func()

	configs     []domain.NativeConfig
	synthesized []domain.SynthesizeRequest
	classified  []string

	events chan domain.Event
	closed bool
}

var _ bridge.NativeSpeechBridge = (*Fake)(nil)

// New returns a fake with default replies.
func New() *Fake {
	return &Fake{
		defaults: map[string][]domain.Event{
			bridge.CommandInitialize: {{Kind: domain.EventInit}},
			bridge.CommandStart:      {{Kind: domain.EventStart}},
			bridge.CommandStop:       {{Kind: domain.EventStop}},
			bridge.CommandActivate:   {{Kind: domain.EventActivate}},
			bridge.CommandDeactivate: {{Kind: domain.EventDeactivate}},
			bridge.CommandSynthesize: {{Kind: domain.EventSuccess, URL: "https://audio.example/tts.mp3"}},
		},
		scripts:  make(map[string][][]domain.Event),
		failures: make(map[string]error),
		hooks:    make(map[string]func()),
		events:   make(chan domain.Event, 256),
	}
}

// SetDefault replaces the reply sent for every call of command. No events
// means the command is accepted and never answered.
func (f *Fake) SetDefault(command string, events ...domain.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.defaults[command] = events
}

// Script queues a one-time reply for the next call of command.
func (f *Fake) Script(command string, events ...domain.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[command] = append(f.scripts[command], events)
}

// Fail makes command return err synchronously until cleared with a nil err.
func (f *Fake) Fail(command string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, command)
		return
	}
	f.failures[command] = err
}

// OnCall runs hook inside the command before any reply is sent.
func (f *Fake) OnCall(command string, hook func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks[command] = hook
}

// Emit injects an unsolicited event.
func (f *Fake) Emit(event domain.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendLocked(event)
}

// Calls returns the command names in the order they were issued.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Count returns how many times command was issued.
func (f *Fake) Count(command string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, call := range f.calls {
		if call == command {
			n++
		}
	}
	return n
}

// Configs returns every configuration passed to Initialize.
func (f *Fake) Configs() []domain.NativeConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.NativeConfig(nil), f.configs...)
}

// Synthesized returns every synthesize request.
func (f *Fake) Synthesized() []domain.SynthesizeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.SynthesizeRequest(nil), f.synthesized...)
}

// Classified returns every text sent for classification.
func (f *Fake) Classified() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.classified...)
}

// Events returns the event stream.
func (f *Fake) Events() <-chan domain.Event {
	return f.events
}

// Initialize records cfg and replies.
func (f *Fake) Initialize(_ context.Context, cfg domain.NativeConfig) error {
	return f.call(bridge.CommandInitialize, func() { f.configs = append(f.configs, cfg) })
}

// Start replies to start.
func (f *Fake) Start(context.Context) error {
	return f.call(bridge.CommandStart, nil)
}

// Stop replies to stop.
func (f *Fake) Stop(context.Context) error {
	return f.call(bridge.CommandStop, nil)
}

// Activate replies to activate.
func (f *Fake) Activate(context.Context) error {
	return f.call(bridge.CommandActivate, nil)
}

// Deactivate replies to deactivate.
func (f *Fake) Deactivate(context.Context) error {
	return f.call(bridge.CommandDeactivate, nil)
}

// Synthesize records req and replies.
func (f *Fake) Synthesize(_ context.Context, req domain.SynthesizeRequest) error {
	return f.call(bridge.CommandSynthesize, func() { f.synthesized = append(f.synthesized, req) })
}

// Classify records text and replies.
func (f *Fake) Classify(_ context.Context, text string) error {
	return f.call(bridge.CommandClassify, func() { f.classified = append(f.classified, text) })
}

// Close closes the event stream.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
	return nil
}

func (f *Fake) call(command string, record func()) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	f.calls = append(f.calls, command)
	if record != nil {
		record()
	}
	hook := f.hooks[command]
	f.mu.Unlock()

	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failures[command]; err != nil {
		return err
	}
	replies := f.defaults[command]
	if queued := f.scripts[command]; len(queued) > 0 {
		replies = queued[0]
		f.scripts[command] = queued[1:]
	}
	for _, event := range replies {
		f.sendLocked(event)
	}
	return nil
}

func (f *Fake) sendLocked(event domain.Event) {
	if f.closed {
		return
	}
	f.events <- event
}
