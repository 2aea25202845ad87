package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	_, err = New(&Config{Level: "chatty"})
	assert.Error(t, err)
}

func TestFileOutputCarriesSession(t *testing.T) {
	fs := afero.NewMemMapFs()

	logger, err := New(&Config{Level: "debug", File: "/var/log/sunday/sunday.log", FileSys: fs})
	require.NoError(t, err)

	_, err = uuid.Parse(logger.SessionID)
	require.NoError(t, err)

	logger.Info().Str("component", "test").Msg("hello")
	logger.Debug().Msg("details")
	require.NoError(t, logger.Close())

	contents, err := afero.ReadFile(fs, "/var/log/sunday/sunday.log")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(contents)), "\n")
	require.Len(t, lines, 2)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "sunday", entry["app"])
	assert.Equal(t, logger.SessionID, entry["session"])
	assert.Equal(t, "test", entry["component"])
	assert.Equal(t, "hello", entry["message"])
}

func TestLevelFilters(t *testing.T) {
	var out bytes.Buffer

	logger, err := New(&Config{Level: "warn", Console: true, Out: &out})
	require.NoError(t, err)

	logger.Info().Msg("quiet")
	logger.Warn().Msg("loud")

	assert.NotContains(t, out.String(), "quiet")
	assert.Contains(t, out.String(), "loud")
	assert.NoError(t, logger.Close())
}
