package speech_to_text

// OutcomeKind classifies a recognition attempt.
type OutcomeKind int

const (
	OutcomeText OutcomeKind = iota
	OutcomeNoSpeech
	OutcomeUnintelligible
	OutcomeServiceError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeText:
		return "text"
	case OutcomeNoSpeech:
		return "no_speech"
	case OutcomeUnintelligible:
		return "unintelligible"
	case OutcomeServiceError:
		return "service_error"
	default:
		return "unknown"
	}
}

// Outcome is the result of one recognition attempt. Text is set only for
// OutcomeText and is already lower-cased and trimmed. Err carries the
// underlying cause for OutcomeServiceError.
type Outcome struct {
	Kind OutcomeKind
	Text string
	Err  error
}

func (o Outcome) OK() bool {
	return o.Kind == OutcomeText
}

// Failed reports whether the outcome counts as a misrecognition.
func (o Outcome) Failed() bool {
	return o.Kind != OutcomeText
}
