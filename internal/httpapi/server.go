// Package httpapi exposes the speech session over HTTP and a websocket event stream.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"spokestack-tray/internal/domain"
	"spokestack-tray/internal/download"
	"spokestack-tray/internal/events"
	"spokestack-tray/internal/store"
)

const subscriberBuffer = 64

// Speech is the session surface driven by the HTTP handlers.
type Speech interface {
	Initialize(ctx context.Context, cfg domain.InitConfig) (bool, error)
	Start(ctx context.Context) (bool, error)
	Stop(ctx context.Context) (bool, error)
	Listen(ctx context.Context) (bool, error)
	StopListening(ctx context.Context) (bool, error)
	Synthesize(ctx context.Context, req domain.SynthesizeRequest) (string, error)
	Say(ctx context.Context, text string) (string, error)
	SetAppState(ctx context.Context, state domain.AppState) error
	Status() domain.Status
	AddListener(kind domain.EventKind, l *events.Listener) error
	RemoveListener(kind domain.EventKind, l *events.Listener)
}

// Models lists and evicts cached model files.
type Models interface {
	Catalog() ([]download.ArtifactStatus, error)
	Remove(ids ...string) error
}

// PreferenceStore reads and writes the persisted user toggles.
type PreferenceStore interface {
	Preferences() store.Preferences
	SavePreferences(store.Preferences) error
}

// Config wires a Server.
type Config struct {
	Speech      Speech
	Models      Models
	Preferences PreferenceStore
	// History buffers events for /events; a default one is created when nil.
	History *events.History
	// InitConfig supplies the configuration used by POST /initialize.
	InitConfig func() domain.InitConfig
	// Diagnose runs the readiness checks for GET /diagnostics.
	Diagnose func(ctx context.Context) domain.DiagnosticReport
	Logger   *zap.Logger
}

// Server serves the HTTP API for one speech session.
type Server struct {
	echo        *echo.Echo
	speech      Speech
	models      Models
	preferences PreferenceStore
	history     *events.History
	initConfig  func() domain.InitConfig
	diagnose    func(ctx context.Context) domain.DiagnosticReport
	logger      *zap.Logger
	recorder    *events.Listener

	mu          sync.Mutex
	subscribers map[chan domain.Event]struct{}
	closed      bool
}

// New builds the server and starts recording session events.
func New(cfg Config) (*Server, error) {
	if cfg.Speech == nil {
		return nil, errors.New("httpapi: speech session is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	history := cfg.History
	if history == nil {
		history = events.NewHistory(0)
	}
	initConfig := cfg.InitConfig
	if initConfig == nil {
		initConfig = func() domain.InitConfig { return domain.InitConfig{} }
	}

	s := &Server{
		speech:      cfg.Speech,
		models:      cfg.Models,
		preferences: cfg.Preferences,
		history:     history,
		initConfig:  initConfig,
		diagnose:    cfg.Diagnose,
		logger:      logger,
		subscribers: make(map[chan domain.Event]struct{}),
	}
	s.recorder = events.NewListener(s.record)
	if err := s.speech.AddListener(domain.EventChange, s.recorder); err != nil {
		return nil, err
	}
	s.echo = s.router()
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info("http api listening", zap.String("address", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops recording, ends open event streams and drains requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.speech.RemoveListener(domain.EventChange, s.recorder)

	s.mu.Lock()
	if !s.closed {
		s.closed = true
		for sub := range s.subscribers {
			close(sub)
		}
		s.subscribers = nil
	}
	s.mu.Unlock()

	return s.echo.Shutdown(ctx)
}

func (s *Server) router() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Debug("http request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency))
			return nil
		},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	e.POST("/initialize", s.initialize)
	e.POST("/start", s.toggle(s.speech.Start))
	e.POST("/stop", s.toggle(s.speech.Stop))
	e.POST("/listen", s.toggle(s.speech.Listen))
	e.POST("/stop-listening", s.toggle(s.speech.StopListening))
	e.POST("/synthesize", s.synthesize)
	e.POST("/say", s.say)
	e.POST("/app-state", s.setAppState)
	e.GET("/status", s.status)

	e.GET("/events", s.eventsSince)
	e.GET("/events/stream", s.stream)

	e.GET("/diagnostics", s.diagnostics)
	e.GET("/models", s.listModels)
	e.DELETE("/models/:id", s.removeModel)
	e.GET("/preferences", s.getPreferences)
	e.PUT("/preferences", s.putPreferences)
	return e
}

// record stores an event in the history and fans it out to open streams.
// It runs on the session's dispatcher, so it never blocks.
func (s *Server) record(e domain.Event) {
	e = s.history.Publish(e)

	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subscribers {
		select {
		case sub <- e:
		default:
			s.logger.Warn("event stream subscriber lagging, dropping event", zap.Int64("seq", e.Seq))
		}
	}
}

func (s *Server) subscribe() (chan domain.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false
	}
	sub := make(chan domain.Event, subscriberBuffer)
	s.subscribers[sub] = struct{}{}
	return sub, true
}

func (s *Server) unsubscribe(sub chan domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscribers[sub]; ok {
		delete(s.subscribers, sub)
		close(sub)
	}
}
