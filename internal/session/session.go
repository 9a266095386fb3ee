// Package session sequences native speech commands and tracks session state.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"spokestack-tray/internal/bridge"
	"spokestack-tray/internal/download"
	"spokestack-tray/internal/domain"
	"spokestack-tray/internal/events"
	"spokestack-tray/internal/platform"
	"spokestack-tray/internal/queue"
)

// ErrNotInitialized is returned by commands that need a completed Initialize.
var ErrNotInitialized = errors.New("speech session not initialized")

// ErrClosed is returned once the session has been shut down.
var ErrClosed = errors.New("speech session closed")

const defaultVoice = "demo-male"

// Default native command budgets.
const (
	DefaultCommandTimeout    = 10 * time.Second
	DefaultInitializeTimeout = 60 * time.Second
	DefaultSynthesizeTimeout = 30 * time.Second
)

// Permissions checks and requests microphone and speech recognition access.
type Permissions interface {
	CheckSpeech(ctx context.Context) (bool, error)
	RequestSpeech(ctx context.Context) (bool, error)
}

// ModelSource resolves model files to local paths.
type ModelSource interface {
	Acquire(ctx context.Context, rawURL, id string, opts download.Options) (string, error)
	Remove(ids ...string) error
}

// Preferences exposes the persisted user toggles the session honors.
type Preferences interface {
	Silent() bool
}

// Timeouts bounds how long each native command may go unanswered.
type Timeouts struct {
	Command    time.Duration
	Initialize time.Duration
	Synthesize time.Duration
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Command <= 0 {
		t.Command = DefaultCommandTimeout
	}
	if t.Initialize <= 0 {
		t.Initialize = DefaultInitializeTimeout
	}
	if t.Synthesize <= 0 {
		t.Synthesize = DefaultSynthesizeTimeout
	}
	return t
}

// Config wires a Session's collaborators.
type Config struct {
	Bridge      bridge.NativeSpeechBridge
	Models      ModelSource
	Permissions Permissions
	Preferences Preferences
	Bus         *events.Bus
	Logger      *zap.Logger
	Timeouts    Timeouts
	// ForceCellular downloads models on metered networks without asking.
	ForceCellular bool
	// Voice is used by Say.
	Voice string
	// After replaces time.After for command timers.
	After func(time.Duration) <-chan time.Time
}

// Session owns one native bridge and serializes every command issued to it.
type Session struct {
	id            string
	bridge        bridge.NativeSpeechBridge
	models        ModelSource
	permissions   Permissions
	preferences   Preferences
	bus           *events.Bus
	waiters       *events.Bus
	outbox        *outbox
	queue         *queue.Queue
	logger        *zap.Logger
	timeouts      Timeouts
	after         func(time.Duration) <-chan time.Time
	forceCellular bool
	voice         string

	flags    *flags
	appState *platform.AppStateTracker

	mu             sync.Mutex
	editTranscript func(string) string
	formatRetried  bool
	closed         bool

	closing      chan struct{}
	dispatchDone chan struct{}
	deliveryDone chan struct{}
	background   sync.WaitGroup
}

// New creates a session and starts consuming bridge events.
func New(cfg Config) (*Session, error) {
	if cfg.Bridge == nil {
		return nil, fmt.Errorf("%w: bridge is required", domain.ErrInvalidArgument)
	}
	if cfg.Models == nil {
		return nil, fmt.Errorf("%w: model source is required", domain.ErrInvalidArgument)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	logger = logger.With(zap.String("session", id))

	bus := cfg.Bus
	if bus == nil {
		bus = events.NewBus(logger)
	}
	after := cfg.After
	if after == nil {
		after = time.After
	}
	voice := cfg.Voice
	if voice == "" {
		voice = defaultVoice
	}

	s := &Session{
		id:            id,
		bridge:        cfg.Bridge,
		models:        cfg.Models,
		permissions:   cfg.Permissions,
		preferences:   cfg.Preferences,
		bus:           bus,
		waiters:       events.NewBus(logger),
		outbox:        newOutbox(),
		queue:         queue.New(logger),
		logger:        logger,
		timeouts:      cfg.Timeouts.withDefaults(),
		after:         after,
		forceCellular: cfg.ForceCellular,
		voice:         voice,
		flags:         newFlags(),
		appState:      platform.NewAppStateTracker(),
		closing:       make(chan struct{}),
		dispatchDone:  make(chan struct{}),
		deliveryDone:  make(chan struct{}),
	}
	go s.dispatch()
	go s.deliver()
	return s, nil
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string {
	return s.id
}

// Bus returns the event bus listeners are registered on.
func (s *Session) Bus() *events.Bus {
	return s.bus
}

// AddListener registers l for kind. Adding the same listener twice is a no-op.
func (s *Session) AddListener(kind domain.EventKind, l *events.Listener) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: unknown event kind %q", domain.ErrInvalidArgument, kind)
	}
	s.bus.On(kind, l)
	return nil
}

// AddListenerOnce registers l for the next event of kind only.
func (s *Session) AddListenerOnce(kind domain.EventKind, l *events.Listener) (*events.Listener, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown event kind %q", domain.ErrInvalidArgument, kind)
	}
	return s.bus.Once(kind, l), nil
}

// RemoveListener unregisters l from kind.
func (s *Session) RemoveListener(kind domain.EventKind, l *events.Listener) {
	s.bus.Off(kind, l)
}

// IsInitialized reports whether native initialization completed.
func (s *Session) IsInitialized() bool {
	return s.flags.isInitialized()
}

// IsStarted reports whether the speech pipeline is running.
func (s *Session) IsStarted() bool {
	return s.flags.isStarted()
}

// IsListening reports whether ASR is active.
func (s *Session) IsListening() bool {
	return s.flags.isListening()
}

// Status returns the flags, app state and pending command names.
func (s *Session) Status() domain.Status {
	status := s.flags.snapshot()
	status.AppState = s.appState.Current()
	status.Pending = s.queue.Names()
	return status
}

// Close rejects pending commands, closes the bridge and waits for the
// event dispatcher, background work and listener delivery to finish.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.closing)
	s.mu.Unlock()

	s.queue.Close()
	err := s.bridge.Close()
	<-s.dispatchDone
	s.background.Wait()
	s.outbox.close()
	<-s.deliveryDone
	if err != nil {
		return fmt.Errorf("close bridge: %w", err)
	}
	return nil
}

// goBackground runs fn outside the dispatcher unless the session is closing.
func (s *Session) goBackground(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		fn()
	}()
}

func (s *Session) setEditTranscript(fn func(string) string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editTranscript = fn
}

func (s *Session) edit(transcript string) string {
	s.mu.Lock()
	fn := s.editTranscript
	s.mu.Unlock()
	if fn == nil {
		return transcript
	}
	return fn(transcript)
}

// claimFormatRetry reports whether the one model refresh is still available.
func (s *Session) claimFormatRetry() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.formatRetried {
		return false
	}
	s.formatRetried = true
	return true
}

// broadcast reports msg to every error listener.
func (s *Session) broadcast(msg string) {
	s.outbox.push(domain.Event{Kind: domain.EventError, Error: msg})
}
