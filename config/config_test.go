package config

import (
	"testing"
	"time"

	"sunday-assistant/intent"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(afero.NewMemMapFs(), "")
	require.NoError(t, err)

	assert.Equal(t, "sunday", cfg.Wake.Word)
	assert.True(t, cfg.Wake.InlineCommands)
	assert.Equal(t, 5, cfg.Wake.MaxFailures)
	assert.Equal(t, 5*time.Second, cfg.Wake.IdleTimeout)
	assert.Equal(t, 15*time.Second, cfg.Wake.CommandPhraseLimit)
	assert.Equal(t, 2*time.Second, cfg.Wake.ShutdownDelay)
	assert.Equal(t, []string{"sundae", "sundays", "sunday's", "someday"}, cfg.Wake.NearMisses)
	assert.Equal(t, 16000, cfg.Audio.SampleRate)
	assert.InDelta(t, 3000.0, cfg.Audio.EnergyThreshold, 1e-9)
	assert.Equal(t, TTSConsole, cfg.TTS.Provider)
	assert.Equal(t, NavigationBrowser, cfg.Navigation.Mode)
	assert.Equal(t, "http://127.0.0.1:5000", cfg.Navigation.URL)
	assert.Equal(t, 3, cfg.Navigation.Attempts)
	assert.Equal(t, intent.DefaultRules, cfg.Normalization.Rules)
	assert.Empty(t, cfg.Intents)

	require.NoError(t, cfg.Validate())
}

func TestLoadFileAndEnvironment(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/sunday.yaml", []byte(`
wake:
  max_failures: 3
  command_timeout: 8s
audio:
  recordings_dir: /var/sunday/recordings
tts:
  provider: command
  command: say
navigation:
  mode: http
  url: http://companion.local:5000
intents:
  - name: lights
    keywords: [lights, lamp]
    match: word
    action: reply
    response: I can't do that yet.
`), 0o644))

	t.Setenv("SUNDAY_WAKE_WORD", "jarvis")
	t.Setenv("SUNDAY_LOG_LEVEL", "debug")

	cfg, err := Load(fs, "/etc/sunday.yaml")
	require.NoError(t, err)

	assert.Equal(t, "jarvis", cfg.Wake.Word)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 3, cfg.Wake.MaxFailures)
	assert.Equal(t, 8*time.Second, cfg.Wake.CommandTimeout)
	assert.Equal(t, 5*time.Second, cfg.Wake.IdleTimeout)
	assert.Equal(t, "/var/sunday/recordings", cfg.Audio.RecordingsDir)
	assert.Equal(t, "say", cfg.TTS.Command)
	assert.Equal(t, NavigationHTTP, cfg.Navigation.Mode)

	require.Len(t, cfg.Intents, 1)
	assert.Equal(t, intent.MatchWord, cfg.Intents[0].Match)
	assert.Equal(t, intent.ActionReply, cfg.Intents[0].Action)
	require.NoError(t, cfg.Validate())

	table, err := cfg.IntentTable()
	require.NoError(t, err)
	in, ok := table.Match("turn on the lights")
	require.True(t, ok)
	assert.Equal(t, "lights", in.Name)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(afero.NewMemMapFs(), "/nope.yaml")
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg, err := Load(afero.NewMemMapFs(), "")
	require.NoError(t, err)

	cfg.Wake.Word = " "
	cfg.Audio.SampleRate = 0
	cfg.TTS.Provider = "morse"
	cfg.Navigation.Mode = "carrier-pigeon"
	cfg.Log.Level = "loud"
	cfg.Intents = []intent.Intent{{Name: "broken", Keywords: []string{"x"}, Action: intent.ActionNavigate}}

	err = cfg.Validate()
	require.Error(t, err)
	for _, fragment := range []string{"wake.word", "sample_rate", "tts.provider", "navigation.mode", "log.level", "intents"} {
		assert.Contains(t, err.Error(), fragment)
	}
}

func TestValidateProviderRequirements(t *testing.T) {
	cfg, err := Load(afero.NewMemMapFs(), "")
	require.NoError(t, err)

	cfg.TTS.Provider = TTSElevenLabs
	assert.ErrorContains(t, cfg.Validate(), "api_key")

	cfg.TTS.Provider = TTSConsole
	cfg.Navigation.Mode = NavigationNone
	cfg.Navigation.URL = ""
	assert.NoError(t, cfg.Validate())
}
