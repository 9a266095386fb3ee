// Package wsbridge talks to a native speech host over a websocket.
package wsbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"spokestack-tray/internal/bridge"
	"spokestack-tray/internal/domain"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 5 * time.Second
	eventBuffer      = 64
)

// ErrClosed is returned for commands issued after Close.
var ErrClosed = errors.New("bridge connection closed")

// Client sends JSON command frames and decodes lifecycle event frames.
type Client struct {
	conn   *websocket.Conn
	logger *zap.Logger

	writeMu sync.Mutex
	events  chan domain.Event
	done    chan struct{}
	closing sync.Once
	wg      sync.WaitGroup
}

var _ bridge.NativeSpeechBridge = (*Client)(nil)

// Dial connects to the native host at url and starts reading events.
func Dial(ctx context.Context, url string, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			logger.Warn("bridge handshake rejected", zap.Int("status", resp.StatusCode))
		}
		return nil, fmt.Errorf("connect to speech host %s: %w", url, err)
	}

	c := &Client{
		conn:   conn,
		logger: logger,
		events: make(chan domain.Event, eventBuffer),
		done:   make(chan struct{}),
	}
	c.wg.Add(1)
	go c.readLoop()

	logger.Info("connected to speech host", zap.String("url", url))
	return c, nil
}

// Events returns the lifecycle event stream.
func (c *Client) Events() <-chan domain.Event {
	return c.events
}

// Initialize sends the merged native configuration.
func (c *Client) Initialize(ctx context.Context, cfg domain.NativeConfig) error {
	return c.send(ctx, bridge.Command{Command: bridge.CommandInitialize, Config: cfg})
}

// Start starts the speech pipeline.
func (c *Client) Start(ctx context.Context) error {
	return c.send(ctx, bridge.Command{Command: bridge.CommandStart})
}

// Stop stops the speech pipeline.
func (c *Client) Stop(ctx context.Context) error {
	return c.send(ctx, bridge.Command{Command: bridge.CommandStop})
}

// Activate opens the microphone for one utterance.
func (c *Client) Activate(ctx context.Context) error {
	return c.send(ctx, bridge.Command{Command: bridge.CommandActivate})
}

// Deactivate closes the microphone.
func (c *Client) Deactivate(ctx context.Context) error {
	return c.send(ctx, bridge.Command{Command: bridge.CommandDeactivate})
}

// Synthesize requests text-to-speech audio.
func (c *Client) Synthesize(ctx context.Context, req domain.SynthesizeRequest) error {
	return c.send(ctx, bridge.Command{
		Command: bridge.CommandSynthesize,
		Input:   req.Input,
		Format:  req.Format,
		Voice:   req.Voice,
	})
}

// Classify requests intent classification of text.
func (c *Client) Classify(ctx context.Context, text string) error {
	return c.send(ctx, bridge.Command{Command: bridge.CommandClassify, Text: text})
}

// Close shuts the connection and waits for the reader to exit.
func (c *Client) Close() error {
	var err error
	c.closing.Do(func() {
		close(c.done)

		c.writeMu.Lock()
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeTimeout),
		)
		err = c.conn.Close()
		c.writeMu.Unlock()

		c.wg.Wait()
	})
	return err
}

func (c *Client) send(ctx context.Context, cmd bridge.Command) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	cmd.ID = uuid.NewString()
	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("send %s: %w", cmd.Command, err)
	}
	if err := c.conn.WriteJSON(cmd); err != nil {
		return fmt.Errorf("send %s: %w", cmd.Command, err)
	}
	c.logger.Debug("bridge command sent", zap.String("command", cmd.Command), zap.String("id", cmd.ID))
	return nil
}

func (c *Client) readLoop() {
	defer c.wg.Done()
	defer close(c.events)

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Warn("speech host connection lost", zap.Error(err))
				c.deliver(domain.Event{Kind: domain.EventError, Error: "speech host connection lost: " + err.Error()})
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}

		var event domain.Event
		if err := json.Unmarshal(data, &event); err != nil {
			c.logger.Warn("discarding malformed bridge frame", zap.Error(err))
			continue
		}
		if !event.Kind.Valid() || event.Kind == domain.EventChange {
			c.logger.Warn("discarding unknown bridge event", zap.String("type", string(event.Kind)))
			continue
		}
		if !c.deliver(event) {
			return
		}
	}
}

func (c *Client) deliver(event domain.Event) bool {
	select {
	case c.events <- event:
		return true
	case <-c.done:
		return false
	}
}
