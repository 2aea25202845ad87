package text_to_speech

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

type consoleImpl struct {
	out    io.Writer
	logger zerolog.Logger
}

type ConsoleConfig struct {
	// Out defaults to stdout.
	Out    io.Writer
	Logger zerolog.Logger
}

// NewConsole prints phrases instead of speaking them.
func NewConsole(cfg *ConsoleConfig) Synthesizer {
	out := io.Writer(os.Stdout)
	var logger zerolog.Logger
	if cfg != nil {
		if cfg.Out != nil {
			out = cfg.Out
		}
		logger = cfg.Logger
	}

	return &consoleImpl{out: out, logger: logger}
}

func (c *consoleImpl) Synthesize(ctx context.Context, text string) error {
	c.logger.Info().Str("text", text).Msg("speaking")

	_, err := fmt.Fprintf(c.out, "Sunday: %s\n", text)
	return err
}
