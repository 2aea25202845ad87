package companion

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCompanion(t *testing.T, handler http.HandlerFunc) CompanionAPI {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(&Config{ApiHost: server.URL + "/"})
	require.NoError(t, err)
	return client
}

func TestNewClientValidatesConfig(t *testing.T) {
	_, err := NewClient(nil)
	assert.Error(t, err)

	_, err = NewClient(&Config{})
	assert.Error(t, err)
}

func TestConnectReturnsNavigator(t *testing.T) {
	client := newCompanion(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})

	navigator, err := client.Connect(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, navigator)
}

func TestConnectFailsOnServerError(t *testing.T) {
	client := newCompanion(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.Connect(context.Background())
	assert.Error(t, err)
}

func TestNavigate(t *testing.T) {
	var section string
	client := newCompanion(t, func(w http.ResponseWriter, r *http.Request) {
		section = r.URL.Query().Get("section")
		switch section {
		case "pose_library":
			_, _ = w.Write([]byte("true"))
		case "hidden":
			_, _ = w.Write([]byte("false"))
		case "broken":
			http.Error(w, "boom", http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	})

	ok, err := client.Navigate(context.Background(), "pose_library")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "pose_library", section)

	ok, err = client.Navigate(context.Background(), "hidden")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = client.Navigate(context.Background(), "unknown")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = client.Navigate(context.Background(), "broken")
	assert.Error(t, err)
	assert.False(t, ok)
}
