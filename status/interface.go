package status

// Speaker identifies who produced a transcript line.
type Speaker string

const (
	SpeakerSystem Speaker = "System"
	SpeakerAI     Speaker = "AI"
	SpeakerUser   Speaker = "User"
)

// State is the UI-visible state written to the status record.
type State string

const (
	StateIdle       State = "idle"
	StateListening  State = "listening"
	StateSpeaking   State = "speaking"
	StateProcessing State = "processing"
	StateStopped    State = "stopped"
)

// Record is the last-known engine status. Only the most recent record is kept.
type Record struct {
	State        State   `json:"state"`
	Timestamp    float64 `json:"timestamp"`
	LastCommand  string  `json:"lastCommand"`
	LastResponse string  `json:"lastResponse"`
}

// Interface is a passive sink. Implementations never return errors to the
// caller; persistence failures are logged and dropped.
type Interface interface {
	Report(state State, command string, response string)
	Transcript(speaker Speaker, message string)
}
