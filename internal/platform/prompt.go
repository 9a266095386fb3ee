package platform

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"spokestack-tray/internal/domain"
)

// TerminalConfirmer asks on a terminal before downloading over cellular.
// One goroutine reads input lines for the confirmer's lifetime, so a prompt
// abandoned by its context leaves the next typed line to the next prompt.
type TerminalConfirmer struct {
	in    *bufio.Reader
	out   io.Writer
	mu    sync.Mutex
	start sync.Once
	lines chan answer
}

type answer struct {
	line string
	err  error
}

// NewTerminalConfirmer reads answers from in and writes prompts to out.
func NewTerminalConfirmer(in io.Reader, out io.Writer) *TerminalConfirmer {
	return &TerminalConfirmer{
		in:    bufio.NewReader(in),
		out:   out,
		lines: make(chan answer, 1),
	}
}

// ConfirmCellular waits for a yes or no answer with no timeout.
func (c *TerminalConfirmer) ConfirmCellular(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := fmt.Fprint(c.out, "Speech models are large. Download them over a cellular connection? [y/N] "); err != nil {
		return false, fmt.Errorf("write prompt: %w", err)
	}
	c.start.Do(func() { go c.readLines() })

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case a, ok := <-c.lines:
		if !ok {
			return false, nil
		}
		if a.err != nil {
			return false, fmt.Errorf("read answer: %w", a.err)
		}
		switch strings.ToLower(strings.TrimSpace(a.line)) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	}
}

// readLines forwards input lines until the input ends. Closed input reads
// as no.
func (c *TerminalConfirmer) readLines() {
	defer close(c.lines)
	for {
		line, err := c.in.ReadString('\n')
		if line != "" {
			c.lines <- answer{line: line}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.lines <- answer{err: err}
			}
			return
		}
	}
}

// StaticPermissions answers the speech permission check with a fixed value.
type StaticPermissions struct {
	Granted bool
}

// CheckSpeech reports whether microphone and recognition access is granted.
func (p StaticPermissions) CheckSpeech(context.Context) (bool, error) {
	return p.Granted, nil
}

// RequestSpeech returns the fixed answer; there is no prompt to show.
func (p StaticPermissions) RequestSpeech(ctx context.Context) (bool, error) {
	return p.CheckSpeech(ctx)
}

// AppStateTracker holds the host application's foreground state.
type AppStateTracker struct {
	mu    sync.RWMutex
	state domain.AppState
}

// NewAppStateTracker starts in the active state.
func NewAppStateTracker() *AppStateTracker {
	return &AppStateTracker{state: domain.AppStateActive}
}

// Current returns the latest state.
func (t *AppStateTracker) Current() domain.AppState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Set records next and returns the state it replaced.
func (t *AppStateTracker) Set(next domain.AppState) domain.AppState {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev := t.state
	t.state = next
	return prev
}
