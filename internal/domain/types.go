package domain

import "time"

// EventKind names one lifecycle event emitted by the native speech bridge.
type EventKind string

const (
	// EventChange is the synthetic kind whose listeners receive every event.
	EventChange         EventKind = "change"
	EventInit           EventKind = "init"
	EventStart          EventKind = "start"
	EventStop           EventKind = "stop"
	EventActivate       EventKind = "activate"
	EventDeactivate     EventKind = "deactivate"
	EventRecognize      EventKind = "recognize"
	EventClassification EventKind = "classification"
	EventSuccess        EventKind = "success"
	EventTimeout        EventKind = "timeout"
	EventError          EventKind = "error"
	EventTrace          EventKind = "trace"
)

// EventKinds lists every kind a listener can subscribe to.
var EventKinds = []EventKind{
	EventChange,
	EventInit,
	EventStart,
	EventStop,
	EventActivate,
	EventDeactivate,
	EventRecognize,
	EventClassification,
	EventSuccess,
	EventTimeout,
	EventError,
	EventTrace,
}

// Valid reports whether k belongs to the bridge vocabulary.
func (k EventKind) Valid() bool {
	for _, known := range EventKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Slot is one structured value extracted by the NLU.
type Slot struct {
	Name     string `json:"name"`
	Type     string `json:"type,omitempty"`
	Value    any    `json:"value,omitempty"`
	RawValue string `json:"rawValue,omitempty"`
}

// Classification is the NLU result for one transcript.
type Classification struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Slots      []Slot  `json:"slots,omitempty"`
}

// Event is a typed bridge callback delivered to listeners.
type Event struct {
	Seq            int64           `json:"seq,omitempty"`
	Timestamp      time.Time       `json:"timestamp,omitempty"`
	Kind           EventKind       `json:"type"`
	Transcript     string          `json:"transcript,omitempty"`
	Classification *Classification `json:"result,omitempty"`
	URL            string          `json:"url,omitempty"`
	Error          string          `json:"error,omitempty"`
	Message        string          `json:"message,omitempty"`
}

// AppState mirrors the host application's foreground state.
type AppState string

const (
	AppStateActive     AppState = "active"
	AppStateInactive   AppState = "inactive"
	AppStateBackground AppState = "background"
)

// TTSFormat selects how synthesize input is interpreted.
type TTSFormat string

const (
	TTSFormatText           TTSFormat = "text"
	TTSFormatSSML           TTSFormat = "ssml"
	TTSFormatSpeechMarkdown TTSFormat = "speechmarkdown"
)

// SynthesizeRequest is the payload for one text-to-speech command.
type SynthesizeRequest struct {
	Input  string    `json:"input"`
	Format TTSFormat `json:"format"`
	Voice  string    `json:"voice"`
}

// NativeConfig is the nested configuration consumed by native initialization.
type NativeConfig map[string]any

// Status is a snapshot of the session flags.
type Status struct {
	Initialized bool     `json:"initialized"`
	Started     bool     `json:"started"`
	Listening   bool     `json:"listening"`
	AppState    AppState `json:"appState"`
	Pending     []string `json:"pending"`
}
