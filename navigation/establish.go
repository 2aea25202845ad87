package navigation

import (
	"context"
	"fmt"

	"sunday-assistant/retry"
	"sunday-assistant/status"
	"sunday-assistant/text_to_speech"

	"github.com/rs/zerolog"
)

const (
	ConnectedPhrase = "Perfect! I'm all connected and ready to help you."
	FailedPhrase    = "Sorry, couldn't connect to the web app. Make sure the server is running on port 5000."
)

type EstablishConfig struct {
	Connector Connector
	Handle    *Handle
	Policy    retry.Policy
	Speaker   text_to_speech.Interface
	Reporter  status.Interface
	Logger    zerolog.Logger
	// Target names the companion in transcript lines.
	Target string
}

// Establish connects to the companion under the retry policy and stores the
// navigator in the handle. The outcome is spoken either way; the engine keeps
// running without navigation when every attempt fails.
func Establish(ctx context.Context, cfg *EstablishConfig) retry.Result {
	if cfg == nil || cfg.Connector == nil || cfg.Handle == nil {
		return retry.Result{Err: fmt.Errorf("establish config is incomplete")}
	}

	logger := cfg.Logger.With().Str("component", "navigation").Logger()

	result := cfg.Policy.Do(ctx, func(ctx context.Context, attempt int) error {
		navigator, err := cfg.Connector.Connect(ctx)
		if err != nil {
			logger.Warn().Err(err).Int("attempt", attempt).Msg("companion connection failed")
			transcript(cfg.Reporter, fmt.Sprintf("Browser open failed (attempt %d): %v", attempt, err))
			return err
		}

		cfg.Handle.Set(navigator)
		return nil
	})

	if ctx.Err() != nil {
		return result
	}

	if result.Succeeded() {
		logger.Info().Int("attempts", result.Attempts).Str("target", cfg.Target).Msg("companion connected")
		transcript(cfg.Reporter, fmt.Sprintf("Browser connected to %s", cfg.Target))
		speak(cfg.Speaker, ConnectedPhrase)
	} else {
		logger.Error().Err(result.Err).Int("attempts", result.Attempts).Msg("giving up on companion connection")
		speak(cfg.Speaker, FailedPhrase)
	}

	return result
}

func transcript(reporter status.Interface, message string) {
	if reporter != nil {
		reporter.Transcript(status.SpeakerSystem, message)
	}
}

func speak(speaker text_to_speech.Interface, text string) {
	if speaker != nil {
		speaker.Speak(text)
	}
}
