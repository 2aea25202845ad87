package speech_to_text

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/go-audio/audio"
)

type whisperImpl struct {
	model    whisper.Model
	language string
	mu       sync.Mutex
}

type WhisperConfig struct {
	Model    whisper.Model
	Language string
}

// NewWhisper transcribes locally with a loaded whisper.cpp model.
func NewWhisper(cfg *WhisperConfig) (Transcriber, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Model == nil {
		return nil, fmt.Errorf("model is nil")
	}

	return &whisperImpl{
		model:    cfg.Model,
		language: cfg.Language,
	}, nil
}

func (stt *whisperImpl) Transcribe(ctx context.Context, sample audio.Buffer) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	// a model context is not safe for concurrent use
	stt.mu.Lock()
	defer stt.mu.Unlock()

	wctx, err := stt.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("failed to create whisper context: %w", err)
	}

	if stt.language != "" {
		if err := wctx.SetLanguage(stt.language); err != nil {
			return "", fmt.Errorf("failed to set language %q: %w", stt.language, err)
		}
	}

	if err := wctx.Process(pcmFloat32(sample), nil); err != nil {
		return "", fmt.Errorf("whisper processing failed: %w", err)
	}

	segments, err := outputSegments(wctx)
	if err != nil {
		return "", err
	}

	if len(segments) == 0 {
		return "", ErrNoSpeech
	}

	return strings.Join(segments, " "), nil
}

// pcmFloat32 scales 16-bit samples into the [-1, 1] range whisper expects.
func pcmFloat32(sample audio.Buffer) []float32 {
	ib := sample.AsIntBuffer()

	scale := float32(math.MaxInt16)
	if ib.SourceBitDepth > 0 && ib.SourceBitDepth != 16 {
		scale = float32(int(1)<<(ib.SourceBitDepth-1) - 1)
	}

	data := make([]float32, len(ib.Data))
	for i, s := range ib.Data {
		data[i] = float32(s) / scale
	}

	return data
}

func outputSegments(wctx whisper.Context) ([]string, error) {
	seenText := make(map[string]bool)

	segments := make([]string, 0)

	for {
		segment, err := wctx.NextSegment()
		if err == io.EOF {
			return segments, nil
		} else if err != nil {
			return nil, err
		}

		text := strings.TrimSpace(segment.Text)
		if isNonSpeech(text) {
			continue
		}

		// if we've already seen this text, then ignore it
		if seenText[text] {
			continue
		}
		seenText[text] = true

		segments = append(segments, text)
	}
}

// isNonSpeech matches empty segments and segments that are entirely an
// annotation like [BLANK_AUDIO] or (music). Speech with a trailing
// annotation is kept.
func isNonSpeech(text string) bool {
	if text == "" {
		return true
	}

	first, last := text[0], text[len(text)-1]

	return (first == '(' && last == ')') || (first == '[' && last == ']')
}
