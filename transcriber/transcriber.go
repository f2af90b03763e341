package transcriber

import (
	"context"
	"errors"

	"halo/encoder"
)

type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	}
	return "unknown"
}

// AllStates lists every state, for gauges and status pickers.
var AllStates = []State{StateIdle, StateConnecting, StateConnected, StateError}

var (
	ErrCredentialMissing = errors.New("transcription credential missing")
	ErrConnect           = errors.New("transcription connect failed")
	ErrTransport         = errors.New("transcription transport failed")
	ErrBusy              = errors.New("transcription session already running")
	ErrNoAudio           = errors.New("stream has no live audio track")
)

const (
	DefaultModel             = "models/gemini-2.5-flash-native-audio-preview-09-2025"
	DefaultSystemInstruction = "You are a helpful transcriber. Simply listen and do not respond with audio."
	DefaultEndpoint          = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"
	defaultQueueSize         = 32
)

type Config struct {
	Model             string
	SystemInstruction string
	Endpoint          string
	QueueSize         int // frames buffered between capture and sender
}

func DefaultConfig() Config {
	return Config{
		Model:             DefaultModel,
		SystemInstruction: DefaultSystemInstruction,
		Endpoint:          DefaultEndpoint,
		QueueSize:         defaultQueueSize,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Model == "" {
		c.Model = d.Model
	}
	if c.SystemInstruction == "" {
		c.SystemInstruction = d.SystemInstruction
	}
	if c.Endpoint == "" {
		c.Endpoint = d.Endpoint
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	return c
}

// ServerMessage is the subset of a Live API server message the session
// manager reads.
type ServerMessage struct {
	SetupComplete *struct{}      `json:"setupComplete,omitempty"`
	ServerContent *ServerContent `json:"serverContent,omitempty"`
}

type ServerContent struct {
	InputTranscription *Transcription `json:"inputTranscription,omitempty"`
	TurnComplete       bool           `json:"turnComplete,omitempty"`
}

type Transcription struct {
	Text string `json:"text"`
}

// TranscriptText returns the input-transcription fragment carried by m, if
// any.
func (m ServerMessage) TranscriptText() (string, bool) {
	if m.ServerContent == nil || m.ServerContent.InputTranscription == nil {
		return "", false
	}
	t := m.ServerContent.InputTranscription.Text
	return t, t != ""
}

// Dialer opens a transcription connection. Dial returns once the remote
// session is ready to accept audio.
type Dialer interface {
	Dial(ctx context.Context, credential string, cfg Config) (Conn, error)
}

// Conn is one open transcription session. Send and Recv may be called from
// different goroutines. Recv returns io.EOF when the server closed the
// session cleanly. Close unblocks both and is idempotent.
type Conn interface {
	Send(frame encoder.Frame) error
	Recv() (ServerMessage, error)
	Close() error
}
