package speech_to_text

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/go-audio/audio"
	"github.com/rs/zerolog"
)

// minTextLength filters single-character artifacts such as a stray "a".
const minTextLength = 2

// Recognizer adapts a Transcriber into Outcomes and tracks the failure streak.
type Recognizer struct {
	transcriber Transcriber
	logger      zerolog.Logger
	failures    atomic.Int64
}

type Config struct {
	Transcriber Transcriber
	Logger      zerolog.Logger
}

func New(cfg *Config) (*Recognizer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Transcriber == nil {
		return nil, fmt.Errorf("transcriber is nil")
	}

	return &Recognizer{
		transcriber: cfg.Transcriber,
		logger:      cfg.Logger.With().Str("component", "recognizer").Logger(),
	}, nil
}

func (r *Recognizer) Recognize(ctx context.Context, sample audio.Buffer) Outcome {
	outcome := r.recognize(ctx, sample)

	if outcome.OK() {
		r.failures.Store(0)
	} else {
		streak := r.failures.Add(1)
		event := r.logger.Debug()
		if outcome.Kind == OutcomeServiceError {
			event = r.logger.Warn().Err(outcome.Err)
		}
		event.Str("outcome", outcome.Kind.String()).Int64("streak", streak).Msg("recognition failed")
	}

	return outcome
}

// Failures is the number of consecutive failed outcomes.
func (r *Recognizer) Failures() int {
	return int(r.failures.Load())
}

func (r *Recognizer) recognize(ctx context.Context, sample audio.Buffer) (outcome Outcome) {
	if sample == nil || sample.NumFrames() == 0 {
		return Outcome{Kind: OutcomeNoSpeech}
	}

	defer func() {
		if p := recover(); p != nil {
			outcome = Outcome{Kind: OutcomeServiceError, Err: fmt.Errorf("transcriber panic: %v", p)}
		}
	}()

	text, err := r.transcriber.Transcribe(ctx, sample)
	switch {
	case errors.Is(err, ErrNoSpeech):
		return Outcome{Kind: OutcomeNoSpeech}
	case errors.Is(err, ErrUnintelligible):
		return Outcome{Kind: OutcomeUnintelligible}
	case err != nil:
		return Outcome{Kind: OutcomeServiceError, Err: err}
	}

	text = Normalize(text)
	if len([]rune(text)) < minTextLength {
		return Outcome{Kind: OutcomeNoSpeech}
	}

	return Outcome{Kind: OutcomeText, Text: text}
}

// Normalize lower-cases text and collapses whitespace.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
