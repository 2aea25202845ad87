package text_to_speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"sunday-assistant/status"

	"github.com/rs/zerolog"
)

var (
	ErrSpeakerClosed = errors.New("speaker closed")
	ErrQueueFull     = errors.New("speech queue full")
)

const (
	defaultQueueSize     = 8
	defaultPhraseTimeout = 30 * time.Second
)

type Config struct {
	Synthesizer Synthesizer
	// Fallback is used when Synthesizer fails. Defaults to the console.
	Fallback      Synthesizer
	QueueSize     int
	PhraseTimeout time.Duration
	Reporter      status.Interface
	Logger        zerolog.Logger
}

// Speaker owns a bounded phrase queue drained by a single worker, so output
// never overlaps and Speak never blocks the caller.
type Speaker struct {
	synthesizer   Synthesizer
	fallback      Synthesizer
	phraseTimeout time.Duration
	reporter      status.Interface
	logger        zerolog.Logger

	queue chan string
	done  chan struct{}

	// mu guards closed; senders hold it shared so Close cannot close the
	// queue under them.
	mu     sync.RWMutex
	closed bool
}

func New(cfg *Config) (*Speaker, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Synthesizer == nil {
		return nil, fmt.Errorf("synthesizer is nil")
	}

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	phraseTimeout := cfg.PhraseTimeout
	if phraseTimeout <= 0 {
		phraseTimeout = defaultPhraseTimeout
	}

	logger := cfg.Logger.With().Str("component", "speaker").Logger()

	fallback := cfg.Fallback
	if fallback == nil {
		fallback = NewConsole(&ConsoleConfig{Logger: logger})
	}

	s := &Speaker{
		synthesizer:   cfg.Synthesizer,
		fallback:      fallback,
		phraseTimeout: phraseTimeout,
		reporter:      cfg.Reporter,
		logger:        logger,
		queue:         make(chan string, queueSize),
		done:          make(chan struct{}),
	}

	go s.work()

	return s, nil
}

func (s *Speaker) Speak(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.logger.Warn().Str("text", text).Msg("speaker closed, dropping phrase")
		return
	}

	select {
	case s.queue <- text:
		s.accepted(text)
	default:
		s.logger.Warn().Str("text", text).Msg("speech queue full, dropping phrase")
	}
}

// Enqueue waits for queue space instead of dropping the phrase. The wait is
// bounded by ctx and by the phrase timeout.
func (s *Speaker) Enqueue(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrSpeakerClosed
	}

	timer := time.NewTimer(s.phraseTimeout)
	defer timer.Stop()

	select {
	case s.queue <- text:
		s.accepted(text)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		s.logger.Warn().Str("text", text).Msg("speech queue still full, giving up")
		return ErrQueueFull
	}
}

func (s *Speaker) accepted(text string) {
	if s.reporter != nil {
		s.reporter.Transcript(status.SpeakerAI, text)
	}
}

func (s *Speaker) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	<-s.done
	return nil
}

func (s *Speaker) work() {
	defer close(s.done)

	for text := range s.queue {
		s.say(text)
	}
}

func (s *Speaker) say(text string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.phraseTimeout)
	defer cancel()

	if err := s.synthesize(ctx, s.synthesizer, text); err != nil {
		s.logger.Error().Err(err).Msg("synthesis failed, falling back")

		if err := s.synthesize(ctx, s.fallback, text); err != nil {
			s.logger.Error().Err(err).Msg("fallback synthesis failed")
		}
	}
}

func (s *Speaker) synthesize(ctx context.Context, synth Synthesizer, text string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("synthesizer panic: %v", p)
		}
	}()

	return synth.Synthesize(ctx, text)
}
