package speech_to_text

import (
	"context"
	"errors"

	"github.com/go-audio/audio"
)

var (
	// ErrNoSpeech means the sample held no words.
	ErrNoSpeech = errors.New("no speech recognized")
	// ErrUnintelligible means speech was heard but could not be transcribed.
	ErrUnintelligible = errors.New("speech unintelligible")
)

// Transcriber is the speech-to-text collaborator. Implementations return
// ErrNoSpeech or ErrUnintelligible for recognition misses; any other error
// is treated as a service failure.
type Transcriber interface {
	Transcribe(ctx context.Context, sample audio.Buffer) (string, error)
}

// Interface converts captured audio into an Outcome. It never returns an
// error or panics: every failure is folded into the Outcome.
type Interface interface {
	Recognize(ctx context.Context, sample audio.Buffer) Outcome
}
