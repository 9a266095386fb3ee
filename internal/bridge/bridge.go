// Package bridge defines the boundary to the native speech engine.
package bridge

import (
	"context"

	"spokestack-tray/internal/domain"
)

// Command names carried on the wire.
const (
	CommandInitialize = "initialize"
	CommandStart      = "start"
	CommandStop       = "stop"
	CommandActivate   = "activate"
	CommandDeactivate = "deactivate"
	CommandSynthesize = "synthesize"
	CommandClassify   = "classify"
)

// NativeSpeechBridge issues commands to the native engine. A nil return
// means the command was accepted; its outcome arrives later on Events.
// Implementations are not safe for concurrent commands.
type NativeSpeechBridge interface {
	Initialize(ctx context.Context, cfg domain.NativeConfig) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Activate(ctx context.Context) error
	Deactivate(ctx context.Context) error
	Synthesize(ctx context.Context, req domain.SynthesizeRequest) error
	Classify(ctx context.Context, text string) error
	// Events delivers lifecycle events and is closed when the bridge shuts down.
	Events() <-chan domain.Event
	Close() error
}

// Command is one frame sent to the native host.
type Command struct {
	ID      string              `json:"id"`
	Command string              `json:"command"`
	Config  domain.NativeConfig `json:"config,omitempty"`
	Input   string              `json:"input,omitempty"`
	Format  domain.TTSFormat    `json:"format,omitempty"`
	Voice   string              `json:"voice,omitempty"`
	Text    string              `json:"text,omitempty"`
}
