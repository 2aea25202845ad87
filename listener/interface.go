package listener

import (
	"context"

	"sunday-assistant/intent"
	"sunday-assistant/status"
)

type Interface interface {
	// ListenLoop runs the wake-word state machine until shutdown, source
	// exhaustion or cancellation. It is the only writer of engine state.
	ListenLoop(ctx context.Context) error
	// HaltListening stops a running loop at its next suspension point.
	HaltListening()
	State() State
	FailureCount() int
}

// Dispatcher executes a normalized command.
type Dispatcher interface {
	Dispatch(ctx context.Context, command string) intent.Result
}

// Normalizer canonicalizes recognized command text.
type Normalizer interface {
	Normalize(text string) string
}

// State is the engine's listening state.
type State int32

const (
	StateIdle State = iota
	StateAwaitingCommand
	StateSpeaking
	StateProcessing
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingCommand:
		return "awaiting_command"
	case StateSpeaking:
		return "speaking"
	case StateProcessing:
		return "processing"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Status maps the state onto the status record vocabulary.
func (s State) Status() status.State {
	switch s {
	case StateAwaitingCommand:
		return status.StateListening
	case StateSpeaking:
		return status.StateSpeaking
	case StateProcessing:
		return status.StateProcessing
	case StateStopped:
		return status.StateStopped
	default:
		return status.StateIdle
	}
}
