package speech_extraction

import (
	"context"
	"errors"
	"time"

	"github.com/go-audio/audio"
)

var (
	// ErrCaptureTimeout means nobody started speaking before the timeout.
	// It is an expected outcome, not a failure.
	ErrCaptureTimeout = errors.New("no speech before capture timeout")

	// ErrSourceExhausted is returned by finite sources such as a replay
	// directory once every recording has been played.
	ErrSourceExhausted = errors.New("audio source exhausted")
)

// Interface is an audio capture source. Each Capture acquires the input
// device for the duration of the call only.
type Interface interface {
	// Capture waits up to timeout for speech to start and records until the
	// speaker pauses or phraseLimit is reached. Zero disables either bound.
	Capture(ctx context.Context, timeout time.Duration, phraseLimit time.Duration) (audio.Buffer, error)

	// Calibrate re-measures the ambient noise baseline.
	Calibrate(ctx context.Context) error

	Close() error
}
