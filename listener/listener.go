package listener

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"sunday-assistant/retry"
	"sunday-assistant/speech_extraction"
	"sunday-assistant/speech_to_text"
	"sunday-assistant/status"
	"sunday-assistant/text_to_speech"

	"github.com/rs/zerolog"
)

const (
	defaultIdleTimeout        = 5 * time.Second
	defaultIdlePhraseLimit    = 6 * time.Second
	defaultCommandTimeout     = 10 * time.Second
	defaultCommandPhraseLimit = 15 * time.Second
	defaultMaxFailures        = 5
	defaultShutdownDelay      = 2 * time.Second
	defaultErrorBackoff       = time.Second
)

type Config struct {
	Capture    speech_extraction.Interface
	Recognizer speech_to_text.Interface
	Dispatcher Dispatcher
	Normalizer Normalizer
	Speaker    text_to_speech.Interface
	Reporter   status.Interface

	WakeWord      string
	NearMisses    []string
	WakeResponses []string
	// InlineCommands treats words after the wake word as the command.
	InlineCommands bool

	IdleTimeout        time.Duration
	IdlePhraseLimit    time.Duration
	CommandTimeout     time.Duration
	CommandPhraseLimit time.Duration

	// MaxFailures consecutive misrecognitions trigger a recalibration.
	MaxFailures int
	// ShutdownDelay lets the farewell play before stopping. Negative
	// disables it.
	ShutdownDelay time.Duration
	// ErrorBackoff is the pause after a capture device error.
	ErrorBackoff time.Duration

	Sleep  retry.SleepFunc
	Intn   func(n int) int
	Logger zerolog.Logger
}

type engineImpl struct {
	capture    speech_extraction.Interface
	recognizer speech_to_text.Interface
	dispatcher Dispatcher
	normalizer Normalizer
	speaker    text_to_speech.Interface
	reporter   status.Interface

	wakeWord       string
	nearMisses     []string
	wakeResponses  []string
	inlineCommands bool

	idleTimeout        time.Duration
	idlePhraseLimit    time.Duration
	commandTimeout     time.Duration
	commandPhraseLimit time.Duration
	maxFailures        int
	shutdownDelay      time.Duration
	errorBackoff       time.Duration

	sleep  retry.SleepFunc
	intn   func(n int) int
	logger zerolog.Logger

	state    atomic.Int32
	failures atomic.Int64

	haltMu sync.Mutex
	halted bool
	halt   context.CancelFunc
}

func New(cfg *Config) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Capture == nil {
		return nil, fmt.Errorf("capture is nil")
	}

	if cfg.Recognizer == nil {
		return nil, fmt.Errorf("recognizer is nil")
	}

	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is nil")
	}

	if cfg.Speaker == nil {
		return nil, fmt.Errorf("speaker is nil")
	}

	e := &engineImpl{
		capture:            cfg.Capture,
		recognizer:         cfg.Recognizer,
		dispatcher:         cfg.Dispatcher,
		normalizer:         cfg.Normalizer,
		speaker:            cfg.Speaker,
		reporter:           cfg.Reporter,
		wakeWord:           strings.ToLower(strings.TrimSpace(cfg.WakeWord)),
		wakeResponses:      cfg.WakeResponses,
		inlineCommands:     cfg.InlineCommands,
		idleTimeout:        orDefault(cfg.IdleTimeout, defaultIdleTimeout),
		idlePhraseLimit:    orDefault(cfg.IdlePhraseLimit, defaultIdlePhraseLimit),
		commandTimeout:     orDefault(cfg.CommandTimeout, defaultCommandTimeout),
		commandPhraseLimit: orDefault(cfg.CommandPhraseLimit, defaultCommandPhraseLimit),
		maxFailures:        cfg.MaxFailures,
		shutdownDelay:      cfg.ShutdownDelay,
		errorBackoff:       orDefault(cfg.ErrorBackoff, defaultErrorBackoff),
		sleep:              cfg.Sleep,
		intn:               cfg.Intn,
		logger:             cfg.Logger.With().Str("component", "listener").Logger(),
	}

	if e.wakeWord == "" {
		e.wakeWord = DefaultWakeWord
	}
	if cfg.NearMisses == nil {
		e.nearMisses = DefaultNearMisses
	} else {
		for _, word := range cfg.NearMisses {
			if word = strings.ToLower(strings.TrimSpace(word)); word != "" {
				e.nearMisses = append(e.nearMisses, word)
			}
		}
	}
	if len(e.wakeResponses) == 0 {
		e.wakeResponses = DefaultWakeResponses
	}
	if e.maxFailures <= 0 {
		e.maxFailures = defaultMaxFailures
	}
	if e.shutdownDelay < 0 {
		e.shutdownDelay = 0
	} else if e.shutdownDelay == 0 {
		e.shutdownDelay = defaultShutdownDelay
	}
	if e.sleep == nil {
		e.sleep = retry.Sleep
	}
	if e.intn == nil {
		e.intn = rand.Intn
	}

	return e, nil
}

func orDefault(d time.Duration, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

func (e *engineImpl) State() State {
	return State(e.state.Load())
}

func (e *engineImpl) FailureCount() int {
	return int(e.failures.Load())
}

func (e *engineImpl) HaltListening() {
	e.haltMu.Lock()
	defer e.haltMu.Unlock()

	e.halted = true
	if e.halt != nil {
		e.halt()
	}

	e.logger.Info().Msg("halt requested")
}

func (e *engineImpl) ListenLoop(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.haltMu.Lock()
	if e.halted {
		cancel()
	}
	e.halt = cancel
	e.haltMu.Unlock()

	e.transcript(status.SpeakerSystem, fmt.Sprintf("Listening for wake word '%s'...", titleCase(e.wakeWord)))
	e.enter(StateIdle, "", "")

	for {
		if ctx.Err() != nil {
			e.logger.Info().Msg("listen loop cancelled")
			e.stop()
			return nil
		}

		shutdown, err := e.listenForWake(ctx)
		if errors.Is(err, speech_extraction.ErrSourceExhausted) {
			e.logger.Info().Msg("audio source exhausted")
			e.stop()
			return nil
		}

		if shutdown {
			if err := e.sleep(ctx, e.shutdownDelay); err != nil {
				e.logger.Debug().Err(err).Msg("shutdown delay interrupted")
			}
			e.stop()
			return nil
		}
	}
}

// listenForWake runs one idle cycle: capture, recognize and react. It
// reports whether a shutdown command was dispatched.
func (e *engineImpl) listenForWake(ctx context.Context) (bool, error) {
	sample, err := e.capture.Capture(ctx, e.idleTimeout, e.idlePhraseLimit)
	if err != nil {
		return false, e.captureError(ctx, err)
	}

	outcome := e.recognizer.Recognize(ctx, sample)
	if !outcome.OK() {
		e.recordFailure(ctx, outcome)
		return false, nil
	}

	e.failures.Store(0)
	text := outcome.Text

	if strings.Contains(text, e.wakeWord) {
		e.logger.Info().Str("text", text).Msg("wake word detected")
		e.transcript(status.SpeakerSystem, "Wake word detected: "+text)

		if e.inlineCommands {
			if command := e.normalize(afterWakeWord(text, e.wakeWord)); command != "" {
				e.transcript(status.SpeakerUser, command)
				e.enter(StateAwaitingCommand, command, "")
				return e.process(ctx, command), nil
			}
		}

		e.say(e.wakeResponses[e.intn(len(e.wakeResponses))])
		e.enter(StateAwaitingCommand, "", "")

		return e.listenForCommand(ctx)
	}

	if e.nearMiss(text) {
		e.logger.Info().Str("text", text).Msg("wake word near miss")
		e.say(ClarifyPhrase)
		e.enter(StateIdle, "", ClarifyPhrase)
		return false, nil
	}

	e.logger.Debug().Str("text", text).Msg("ignoring speech without wake word")
	return false, nil
}

// listenForCommand captures the single follow-up utterance after a wake
// acknowledgement. Failures here never touch the failure counter.
func (e *engineImpl) listenForCommand(ctx context.Context) (bool, error) {
	sample, err := e.capture.Capture(ctx, e.commandTimeout, e.commandPhraseLimit)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, speech_extraction.ErrSourceExhausted) {
			return false, err
		}
		if !errors.Is(err, speech_extraction.ErrCaptureTimeout) {
			e.logger.Warn().Err(err).Msg("command capture failed")
		}
		e.say(ReadyPhrase)
		e.enter(StateIdle, "", ReadyPhrase)
		return false, nil
	}

	outcome := e.recognizer.Recognize(ctx, sample)
	if !outcome.OK() {
		e.logger.Info().Str("outcome", outcome.Kind.String()).Msg("command not recognized")
		e.say(MissedCommandPhrase)
		e.enter(StateIdle, "", MissedCommandPhrase)
		return false, nil
	}

	command := e.normalize(StripWakeWord(outcome.Text, e.wakeWord))
	if command == "" {
		e.say(MissedCommandPhrase)
		e.enter(StateIdle, "", MissedCommandPhrase)
		return false, nil
	}

	e.transcript(status.SpeakerUser, command)
	return e.process(ctx, command), nil
}

func (e *engineImpl) process(ctx context.Context, command string) bool {
	e.enter(StateProcessing, command, "")

	result := e.dispatcher.Dispatch(ctx, command)

	e.logger.Info().
		Str("command", command).
		Str("intent", result.Intent).
		Bool("matched", result.Matched).
		Bool("succeeded", result.SideEffectSucceeded).
		Msg("command dispatched")

	if result.Shutdown {
		e.enter(StateSpeaking, command, result.Response)
		return true
	}

	e.enter(StateIdle, command, result.Response)
	return false
}

// captureError classifies an idle capture error. Only source exhaustion and
// cancellation are returned; device errors back off and are not counted.
func (e *engineImpl) captureError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, speech_extraction.ErrCaptureTimeout):
		return nil
	case errors.Is(err, speech_extraction.ErrSourceExhausted):
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	}

	e.logger.Warn().Err(err).Msg("capture failed")
	e.transcript(status.SpeakerSystem, fmt.Sprintf("Listen error: %v", err))

	if sleepErr := e.sleep(ctx, e.errorBackoff); sleepErr != nil {
		return sleepErr
	}
	return nil
}

// recordFailure counts a misrecognition and recalibrates exactly once each
// time the count reaches maxFailures.
func (e *engineImpl) recordFailure(ctx context.Context, outcome speech_to_text.Outcome) {
	failures := e.failures.Add(1)

	e.logger.Debug().Str("outcome", outcome.Kind.String()).Int64("failures", failures).Msg("recognition failed")

	if failures < int64(e.maxFailures) {
		return
	}

	e.transcript(status.SpeakerSystem, "Recalibrating due to failures")
	e.transcript(status.SpeakerSystem, "Calibrating microphone... Please wait.")

	if err := e.capture.Calibrate(ctx); err != nil {
		e.logger.Error().Err(err).Msg("calibration failed")
		e.transcript(status.SpeakerSystem, fmt.Sprintf("Microphone calibration failed: %v", err))
	} else {
		e.transcript(status.SpeakerSystem, "Microphone calibrated successfully")
	}

	e.failures.Store(0)
}

func (e *engineImpl) nearMiss(text string) bool {
	for _, word := range e.nearMisses {
		if strings.Contains(text, word) {
			return true
		}
	}
	return false
}

func (e *engineImpl) normalize(text string) string {
	if e.normalizer == nil {
		return strings.Join(strings.Fields(strings.ToLower(text)), " ")
	}
	return e.normalizer.Normalize(text)
}

func (e *engineImpl) say(text string) {
	e.enter(StateSpeaking, "", text)
	e.speaker.Speak(text)
}

func (e *engineImpl) stop() {
	e.enter(StateStopped, "", "")
	e.transcript(status.SpeakerSystem, "Sunday AI stopped")
}

func (e *engineImpl) enter(state State, command string, response string) {
	e.state.Store(int32(state))
	e.report(state, command, response)
}

func (e *engineImpl) report(state State, command string, response string) {
	if e.reporter != nil {
		e.reporter.Report(state.Status(), command, response)
	}
}

func (e *engineImpl) transcript(speaker status.Speaker, message string) {
	if e.reporter != nil {
		e.reporter.Transcript(speaker, message)
	}
}

func titleCase(word string) string {
	if word == "" {
		return word
	}
	return strings.ToUpper(word[:1]) + word[1:]
}
