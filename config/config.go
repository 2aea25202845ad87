// Package config loads the assistant configuration from a YAML file and
// SUNDAY_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sunday-assistant/intent"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

const EnvPrefix = "SUNDAY"

// Config holds all application configuration
type Config struct {
	Wake          WakeConfig          `mapstructure:"wake"`
	Audio         AudioConfig         `mapstructure:"audio"`
	STT           STTConfig           `mapstructure:"stt"`
	TTS           TTSConfig           `mapstructure:"tts"`
	Navigation    NavigationConfig    `mapstructure:"navigation"`
	Status        StatusConfig        `mapstructure:"status"`
	Log           LogConfig           `mapstructure:"log"`
	Normalization NormalizationConfig `mapstructure:"normalization"`
	// Intents replaces the built-in intent table when set.
	Intents []intent.Intent `mapstructure:"intents"`
}

type WakeConfig struct {
	Word               string        `mapstructure:"word"`
	NearMisses         []string      `mapstructure:"near_misses"`
	InlineCommands     bool          `mapstructure:"inline_commands"`
	MaxFailures        int           `mapstructure:"max_failures"`
	IdleTimeout        time.Duration `mapstructure:"idle_timeout"`
	IdlePhraseLimit    time.Duration `mapstructure:"idle_phrase_limit"`
	CommandTimeout     time.Duration `mapstructure:"command_timeout"`
	CommandPhraseLimit time.Duration `mapstructure:"command_phrase_limit"`
	ShutdownDelay      time.Duration `mapstructure:"shutdown_delay"`
	ErrorBackoff       time.Duration `mapstructure:"error_backoff"`
}

type AudioConfig struct {
	SampleRate          int           `mapstructure:"sample_rate"`
	FrameSize           int           `mapstructure:"frame_size"`
	PauseThreshold      time.Duration `mapstructure:"pause_threshold"`
	PreRoll             time.Duration `mapstructure:"pre_roll"`
	CalibrationDuration time.Duration `mapstructure:"calibration_duration"`
	EnergyThreshold     float64       `mapstructure:"energy_threshold"`
	MinEnergy           float64       `mapstructure:"min_energy"`
	EnergyRatio         float64       `mapstructure:"energy_ratio"`
	FluxRatio           float64       `mapstructure:"flux_ratio"`
	DynamicEnergy       bool          `mapstructure:"dynamic_energy"`
	DynamicDamping      float64       `mapstructure:"dynamic_damping"`
	// RecordingsDir archives every captured phrase as WAV when set.
	RecordingsDir string `mapstructure:"recordings_dir"`
	// ReplayDir replaces the microphone with recorded WAV files.
	ReplayDir string `mapstructure:"replay_dir"`
}

type STTConfig struct {
	ModelPath string `mapstructure:"model_path"`
	Language  string `mapstructure:"language"`
}

type TTSConfig struct {
	Provider      string        `mapstructure:"provider"` // console, command, elevenlabs
	Command       string        `mapstructure:"command"`
	Args          []string      `mapstructure:"args"`
	APIKey        string        `mapstructure:"api_key"`
	VoiceID       string        `mapstructure:"voice_id"`
	Model         string        `mapstructure:"model"`
	QueueSize     int           `mapstructure:"queue_size"`
	PhraseTimeout time.Duration `mapstructure:"phrase_timeout"`
}

type NavigationConfig struct {
	Mode          string        `mapstructure:"mode"` // browser, http, none
	URL           string        `mapstructure:"url"`
	Headless      bool          `mapstructure:"headless"`
	WindowWidth   int           `mapstructure:"window_width"`
	WindowHeight  int           `mapstructure:"window_height"`
	Attempts      int           `mapstructure:"attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	LoadTimeout   time.Duration `mapstructure:"load_timeout"`
	ActionTimeout time.Duration `mapstructure:"action_timeout"`
	SettleDelay   time.Duration `mapstructure:"settle_delay"`
	ClickDelay    time.Duration `mapstructure:"click_delay"`
}

type StatusConfig struct {
	Path           string `mapstructure:"path"`
	TranscriptPath string `mapstructure:"transcript_path"`
}

type LogConfig struct {
	Level   string `mapstructure:"level"`
	File    string `mapstructure:"file"`
	Console bool   `mapstructure:"console"`
}

type NormalizationConfig struct {
	Rules     []string `mapstructure:"rules"`
	RulesFile string   `mapstructure:"rules_file"`
	LoopLimit int      `mapstructure:"loop_limit"`
}

const (
	TTSConsole    = "console"
	TTSCommand    = "command"
	TTSElevenLabs = "elevenlabs"

	NavigationBrowser = "browser"
	NavigationHTTP    = "http"
	NavigationNone    = "none"
)

var defaults = map[string]any{
	"wake.word":                 "sunday",
	"wake.near_misses":          []string{"sundae", "sundays", "sunday's", "someday"},
	"wake.inline_commands":      true,
	"wake.max_failures":         5,
	"wake.idle_timeout":         5 * time.Second,
	"wake.idle_phrase_limit":    6 * time.Second,
	"wake.command_timeout":      10 * time.Second,
	"wake.command_phrase_limit": 15 * time.Second,
	"wake.shutdown_delay":       2 * time.Second,
	"wake.error_backoff":        time.Second,

	"audio.sample_rate":          16000,
	"audio.frame_size":           1024,
	"audio.pause_threshold":      time.Second,
	"audio.pre_roll":             300 * time.Millisecond,
	"audio.calibration_duration": 3 * time.Second,
	"audio.energy_threshold":     3000.0,
	"audio.min_energy":           300.0,
	"audio.energy_ratio":         1.5,
	"audio.flux_ratio":           1.75,
	"audio.dynamic_energy":       true,
	"audio.dynamic_damping":      0.15,
	"audio.recordings_dir":       "",
	"audio.replay_dir":           "",

	"stt.model_path": "",
	"stt.language":   "en",

	"tts.provider":       TTSConsole,
	"tts.command":        "espeak",
	"tts.args":           []string{},
	"tts.api_key":        "",
	"tts.voice_id":       "",
	"tts.model":          "",
	"tts.queue_size":     8,
	"tts.phrase_timeout": 30 * time.Second,

	"navigation.mode":           NavigationBrowser,
	"navigation.url":            "http://127.0.0.1:5000",
	"navigation.headless":       false,
	"navigation.window_width":   1200,
	"navigation.window_height":  800,
	"navigation.attempts":       3,
	"navigation.retry_delay":    2 * time.Second,
	"navigation.load_timeout":   15 * time.Second,
	"navigation.action_timeout": 10 * time.Second,
	"navigation.settle_delay":   4 * time.Second,
	"navigation.click_delay":    2 * time.Second,

	"status.path":            "sunday_status.json",
	"status.transcript_path": "conversation_log.txt",

	"log.level":   "info",
	"log.file":    "",
	"log.console": true,

	"normalization.rules":      intent.DefaultRules,
	"normalization.rules_file": "",
	"normalization.loop_limit": 30,
}

// Load reads configuration from path, or from ./sunday.yaml or
// ~/.sunday/config.yaml when path is empty. Missing default files are not an
// error; every key has a default and can be overridden by SUNDAY_<SECTION>_<KEY>.
func Load(fs afero.Fs, path string) (*Config, error) {
	v := viper.New()
	v.SetFs(fs)

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = findConfigFile(fs)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %q: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	return cfg, nil
}

func findConfigFile(fs afero.Fs) string {
	candidates := []string{"sunday.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".sunday", "config.yaml"))
	}

	for _, candidate := range candidates {
		if ok, _ := afero.Exists(fs, candidate); ok {
			return candidate
		}
	}
	return ""
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Wake.Word) == "" {
		errs = append(errs, errors.New("wake.word is empty"))
	}
	if c.Wake.MaxFailures <= 0 {
		errs = append(errs, errors.New("wake.max_failures must be positive"))
	}
	if c.Wake.IdleTimeout <= 0 || c.Wake.CommandTimeout <= 0 {
		errs = append(errs, errors.New("wake timeouts must be positive"))
	}

	if c.Audio.SampleRate <= 0 {
		errs = append(errs, errors.New("audio.sample_rate must be positive"))
	}
	if c.Audio.FrameSize <= 0 {
		errs = append(errs, errors.New("audio.frame_size must be positive"))
	}

	switch c.TTS.Provider {
	case TTSConsole:
	case TTSCommand:
		if c.TTS.Command == "" {
			errs = append(errs, errors.New("tts.command is required for the command provider"))
		}
	case TTSElevenLabs:
		if c.TTS.APIKey == "" {
			errs = append(errs, errors.New("tts.api_key is required for the elevenlabs provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown tts.provider %q", c.TTS.Provider))
	}

	switch c.Navigation.Mode {
	case NavigationNone:
	case NavigationBrowser, NavigationHTTP:
		if c.Navigation.URL == "" {
			errs = append(errs, errors.New("navigation.url is empty"))
		}
		if c.Navigation.Attempts <= 0 {
			errs = append(errs, errors.New("navigation.attempts must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown navigation.mode %q", c.Navigation.Mode))
	}

	if c.Status.Path == "" || c.Status.TranscriptPath == "" {
		errs = append(errs, errors.New("status paths must be set"))
	}

	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	if len(c.Intents) > 0 {
		if _, err := intent.NewTable(c.Intents); err != nil {
			errs = append(errs, fmt.Errorf("intents: %w", err))
		}
	}

	return errors.Join(errs...)
}

// IntentTable returns the configured intents, or the built-in table.
func (c *Config) IntentTable() (*intent.Table, error) {
	if len(c.Intents) > 0 {
		return intent.NewTable(c.Intents)
	}
	return intent.NewTable(intent.DefaultIntents)
}
