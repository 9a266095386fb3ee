package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"spokestack-tray/internal/domain"
)

const streamWriteTimeout = 5 * time.Second

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The tray UI is served from its own origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

// stream upgrades to a websocket, replays history after ?since and then
// forwards live events as JSON text frames until either side closes.
func (s *Server) stream(c echo.Context) error {
	since, err := parseSince(c)
	if err != nil {
		return err
	}

	conn, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("event stream upgrade", zap.Error(err))
		return nil
	}
	defer func() { _ = conn.Close() }()

	sub, ok := s.subscribe()
	if !ok {
		writeClose(conn, websocket.CloseGoingAway, "server shutting down")
		return nil
	}
	defer s.unsubscribe(sub)

	last := since
	for _, event := range s.history.Since(since) {
		if err := writeEvent(conn, event); err != nil {
			return nil
		}
		last = event.Seq
	}

	// Reading is only used to notice the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, open := <-sub:
			if !open {
				writeClose(conn, websocket.CloseGoingAway, "server shutting down")
				return nil
			}
			if event.Seq <= last {
				continue
			}
			if err := writeEvent(conn, event); err != nil {
				s.logger.Debug("event stream write", zap.Error(err))
				return nil
			}
			last = event.Seq
		case <-gone:
			return nil
		}
	}
}

func writeEvent(conn *websocket.Conn, event domain.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	return conn.WriteJSON(event)
}

func writeClose(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
