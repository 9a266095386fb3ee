package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"spokestack-tray/internal/domain"
	"spokestack-tray/internal/download"
	"spokestack-tray/internal/queue"
	"spokestack-tray/internal/session"
	"spokestack-tray/internal/store"
)

type initializeRequest struct {
	RefreshModels bool `json:"refreshModels"`
}

type toggleResponse struct {
	OK     bool          `json:"ok"`
	Status domain.Status `json:"status"`
}

type sayRequest struct {
	Text string `json:"text"`
}

type audioResponse struct {
	URL string `json:"url"`
}

type appStateRequest struct {
	State domain.AppState `json:"state"`
}

type eventsResponse struct {
	Events []domain.Event `json:"events"`
}

// errorResponse is the body of every failed request.
type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) initialize(c echo.Context) error {
	var req initializeRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err)
	}

	cfg := s.initConfig()
	cfg.RefreshModels = req.RefreshModels
	ok, err := s.speech.Initialize(c.Request().Context(), cfg)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toggleResponse{OK: ok, Status: s.speech.Status()})
}

// toggle adapts a session command that reports whether it reached its state.
func (s *Server) toggle(command func(context.Context) (bool, error)) echo.HandlerFunc {
	return func(c echo.Context) error {
		ok, err := command(c.Request().Context())
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, toggleResponse{OK: ok, Status: s.speech.Status()})
	}
}

func (s *Server) synthesize(c echo.Context) error {
	var req domain.SynthesizeRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err)
	}
	url, err := s.speech.Synthesize(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, audioResponse{URL: url})
}

func (s *Server) say(c echo.Context) error {
	var req sayRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err)
	}
	url, err := s.speech.Say(c.Request().Context(), req.Text)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, audioResponse{URL: url})
}

func (s *Server) setAppState(c echo.Context) error {
	var req appStateRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err)
	}
	if err := s.speech.SetAppState(c.Request().Context(), req.State); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.speech.Status())
}

func (s *Server) status(c echo.Context) error {
	return c.JSON(http.StatusOK, s.speech.Status())
}

func (s *Server) eventsSince(c echo.Context) error {
	since, err := parseSince(c)
	if err != nil {
		return err
	}
	events := s.history.Since(since)
	if events == nil {
		events = []domain.Event{}
	}
	return c.JSON(http.StatusOK, eventsResponse{Events: events})
}

func (s *Server) diagnostics(c echo.Context) error {
	if s.diagnose == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "diagnostics are not configured")
	}
	return c.JSON(http.StatusOK, s.diagnose(c.Request().Context()))
}

func (s *Server) listModels(c echo.Context) error {
	if s.models == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "model cache is not configured")
	}
	statuses, err := s.models.Catalog()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, statuses)
}

func (s *Server) removeModel(c echo.Context) error {
	if s.models == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "model cache is not configured")
	}
	id := c.Param("id")
	if _, ok := download.LookupArtifact(id); !ok {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("unknown model %q", id))
	}
	if err := s.models.Remove(id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) getPreferences(c echo.Context) error {
	if s.preferences == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "preferences are not configured")
	}
	return c.JSON(http.StatusOK, s.preferences.Preferences())
}

func (s *Server) putPreferences(c echo.Context) error {
	if s.preferences == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "preferences are not configured")
	}
	var prefs store.Preferences
	if err := c.Bind(&prefs); err != nil {
		return badRequest(err)
	}
	if err := s.preferences.SavePreferences(prefs); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, prefs)
}

// handleError maps domain errors onto HTTP status codes.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := statusFor(err)
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		msg = fmt.Sprint(he.Message)
	}
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("uri", c.Request().RequestURI), zap.Error(err))
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, errorResponse{Error: msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, session.ErrNotInitialized), errors.Is(err, queue.ErrDiscarded):
		return http.StatusConflict
	case errors.Is(err, domain.ErrBridgeTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrBridgeError):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrNetworkUnavailable), errors.Is(err, domain.ErrDownloadFailed),
		errors.Is(err, session.ErrClosed), errors.Is(err, queue.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(err error) error {
	return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
}

func parseSince(c echo.Context) (int64, error) {
	raw := c.QueryParam("since")
	if raw == "" {
		return 0, nil
	}
	since, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || since < 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "since must be a non-negative integer")
	}
	return since, nil
}
