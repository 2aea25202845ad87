package text_to_speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const (
	elevenLabsURL          = "https://api.elevenlabs.io/v1"
	elevenLabsDefaultVoice = "21m00Tcm4TlvDq8ikWAM"
	elevenLabsDefaultModel = "eleven_turbo_v2_5"
	// pcm_22050 is signed 16-bit little-endian mono.
	elevenLabsFormat     = "pcm_22050"
	elevenLabsSampleRate = 22050
)

// Player plays raw 16-bit little-endian mono PCM.
type Player interface {
	Play(ctx context.Context, pcm []byte, sampleRate int) error
}

type elevenLabsImpl struct {
	apiKey  string
	voiceID string
	model   string
	baseURL string
	client  *http.Client
	player  Player
	logger  zerolog.Logger
}

type ElevenLabsConfig struct {
	APIKey  string
	VoiceID string
	Model   string
	// BaseURL overrides the public API endpoint.
	BaseURL    string
	HTTPClient *http.Client
	// Player defaults to the portaudio output device.
	Player Player
	Logger zerolog.Logger
}

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed"`
}

// NewElevenLabs synthesizes through the ElevenLabs HTTP API.
func NewElevenLabs(cfg *ElevenLabsConfig) (Synthesizer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("apiKey is empty")
	}

	impl := &elevenLabsImpl{
		apiKey:  cfg.APIKey,
		voiceID: cfg.VoiceID,
		model:   cfg.Model,
		baseURL: cfg.BaseURL,
		client:  cfg.HTTPClient,
		player:  cfg.Player,
		logger:  cfg.Logger.With().Str("provider", "elevenlabs-tts").Logger(),
	}

	if impl.voiceID == "" {
		impl.voiceID = elevenLabsDefaultVoice
	}
	if impl.model == "" {
		impl.model = elevenLabsDefaultModel
	}
	if impl.baseURL == "" {
		impl.baseURL = elevenLabsURL
	}
	if impl.client == nil {
		impl.client = &http.Client{Timeout: 30 * time.Second}
	}
	if impl.player == nil {
		impl.player = NewSpeakerPlayer()
	}

	return impl, nil
}

func (e *elevenLabsImpl) Synthesize(ctx context.Context, text string) error {
	pcm, err := e.fetch(ctx, text)
	if err != nil {
		return err
	}

	e.logger.Debug().Int("bytes", len(pcm)).Msg("synthesized")

	return e.player.Play(ctx, pcm, elevenLabsSampleRate)
}

func (e *elevenLabsImpl) fetch(ctx context.Context, text string) ([]byte, error) {
	url := fmt.Sprintf("%s/text-to-speech/%s?output_format=%s", e.baseURL, e.voiceID, elevenLabsFormat)

	body, err := json.Marshal(ttsRequest{
		Text:    text,
		ModelID: e.model,
		VoiceSettings: voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
			Speed:           1.0,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(msg))
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return pcm, nil
}
