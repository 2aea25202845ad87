package intent

import (
	"context"
	"fmt"
	"math/rand"

	"sunday-assistant/navigation"
	"sunday-assistant/text_to_speech"

	"github.com/rs/zerolog"
)

const NoMatchPhrase = "I didn't catch that. Try again, like 'open pose library'."

// DefaultAcknowledgements prefix successful navigation responses.
var DefaultAcknowledgements = []string{
	"Sure thing!", "I'm on it!", "Right away!", "Absolutely!", "Got it!", "Okay!", "No problem!",
}

// Result describes one dispatched command.
type Result struct {
	Intent              string
	Matched             bool
	SideEffectSucceeded bool
	Response            string
	Shutdown            bool
}

type Config struct {
	Table            *Table
	Navigator        navigation.Navigator
	Speaker          text_to_speech.Interface
	Acknowledgements []string
	// Intn picks an acknowledgement; defaults to math/rand.
	Intn   func(n int) int
	Logger zerolog.Logger
}

// Dispatcher maps a normalized command to its intent and performs the
// intent's side effects.
type Dispatcher struct {
	table     *Table
	navigator navigation.Navigator
	speaker   text_to_speech.Interface
	acks      []string
	intn      func(n int) int
	logger    zerolog.Logger
}

func NewDispatcher(cfg *Config) (*Dispatcher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Table == nil {
		return nil, fmt.Errorf("table is nil")
	}

	if cfg.Speaker == nil {
		return nil, fmt.Errorf("speaker is nil")
	}

	acks := cfg.Acknowledgements
	if len(acks) == 0 {
		acks = DefaultAcknowledgements
	}

	intn := cfg.Intn
	if intn == nil {
		intn = rand.Intn
	}

	return &Dispatcher{
		table:     cfg.Table,
		navigator: cfg.Navigator,
		speaker:   cfg.Speaker,
		acks:      acks,
		intn:      intn,
		logger:    cfg.Logger.With().Str("component", "dispatcher").Logger(),
	}, nil
}

func (d *Dispatcher) Dispatch(ctx context.Context, command string) Result {
	in, ok := d.table.Match(command)
	if !ok {
		d.logger.Info().Str("command", command).Msg("no intent matched")
		d.speaker.Speak(NoMatchPhrase)
		return Result{Response: NoMatchPhrase}
	}

	d.logger.Info().Str("command", command).Str("intent", in.Name).Msg("intent matched")

	result := Result{Intent: in.Name, Matched: true}

	switch in.Action {
	case ActionNavigate:
		ack := d.acknowledgement()

		if in.SpeakFirst {
			result.Response = joinPhrase(ack, in.Response)
			d.speaker.Speak(result.Response)
			result.SideEffectSucceeded = d.navigate(ctx, in.Section)
			return result
		}

		result.SideEffectSucceeded = d.navigate(ctx, in.Section)
		if result.SideEffectSucceeded {
			result.Response = joinPhrase(ack, in.Response)
		} else {
			result.Response = in.Fallback
			if result.Response == "" {
				result.Response = in.Response
			}
		}
		d.speaker.Speak(result.Response)

	case ActionReply:
		result.Response = in.Response
		result.SideEffectSucceeded = true
		d.speaker.Speak(result.Response)

	case ActionShutdown:
		// the farewell must be queued before the engine is allowed to stop
		result.Response = in.Response
		result.Shutdown = true
		if err := d.speaker.Enqueue(ctx, result.Response); err != nil {
			d.logger.Error().Err(err).Msg("farewell not queued")
		} else {
			result.SideEffectSucceeded = true
		}
	}

	return result
}

// connection is implemented by navigators that may not be connected yet.
type connection interface {
	Connected() bool
}

// navigate reports navigation failures as false; they never abort dispatch.
func (d *Dispatcher) navigate(ctx context.Context, section string) bool {
	if d.navigator == nil {
		d.logger.Warn().Str("section", section).Msg("no navigator configured")
		return false
	}

	if conn, ok := d.navigator.(connection); ok && !conn.Connected() {
		d.logger.Warn().Str("section", section).Msg("companion app not connected yet")
		return false
	}

	ok, err := d.navigator.Navigate(ctx, section)
	if err != nil {
		d.logger.Warn().Err(err).Str("section", section).Msg("navigation failed")
		return false
	}
	if !ok {
		d.logger.Warn().Str("section", section).Msg("section not shown")
	}
	return ok
}

func (d *Dispatcher) acknowledgement() string {
	return d.acks[d.intn(len(d.acks))]
}

func joinPhrase(ack, phrase string) string {
	if ack == "" {
		return phrase
	}
	if phrase == "" {
		return ack
	}
	return ack + " " + phrase
}
