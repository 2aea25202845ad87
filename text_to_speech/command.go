package text_to_speech

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

const maxCommandText = 500

type commandImpl struct {
	binaryPath string
	args       []string
	logger     zerolog.Logger
}

type CommandConfig struct {
	// Binary is a name on PATH (espeak, say) or an absolute path.
	Binary string
	// Args precede the phrase, which is always the final argument.
	Args   []string
	Logger zerolog.Logger
}

// NewCommand speaks by running a local TTS program with the phrase on argv.
func NewCommand(cfg *CommandConfig) (Synthesizer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Binary == "" {
		return nil, fmt.Errorf("binary is empty")
	}

	binaryPath, err := exec.LookPath(cfg.Binary)
	if err != nil {
		return nil, fmt.Errorf("tts binary %q not found: %w", cfg.Binary, err)
	}

	return &commandImpl{
		binaryPath: binaryPath,
		args:       cfg.Args,
		logger:     cfg.Logger.With().Str("provider", "command-tts").Logger(),
	}, nil
}

func (c *commandImpl) Synthesize(ctx context.Context, text string) error {
	text = sanitizeText(text)
	if text == "" {
		return fmt.Errorf("empty text after sanitization")
	}

	args := append(append([]string{}, c.args...), text)
	cmd := exec.CommandContext(ctx, c.binaryPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		c.logger.Error().Err(err).Str("stderr", stderr.String()).Msg("tts command failed")
		return fmt.Errorf("tts command failed: %w", err)
	}

	return nil
}

// sanitizeText drops control characters and bounds the phrase length.
func sanitizeText(text string) string {
	text = strings.Map(func(r rune) rune {
		if r < 0x20 && r != ' ' {
			return ' '
		}
		return r
	}, text)

	text = strings.Join(strings.Fields(text), " ")
	if runes := []rune(text); len(runes) > maxCommandText {
		text = string(runes[:maxCommandText])
	}

	return text
}
