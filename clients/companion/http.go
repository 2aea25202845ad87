package companion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sunday-assistant/navigation"
)

type clientImpl struct {
	apiHost    string
	httpClient *http.Client
}

type Config struct {
	ApiHost    string
	HTTPClient *http.Client
}

func NewClient(cfg *Config) (CompanionAPI, error) {
	if cfg == nil {
		return nil, errors.New("missing parameter: cfg")
	}

	if cfg.ApiHost == "" {
		return nil, errors.New("missing parameter: cfg.ApiHost")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	return &clientImpl{
		apiHost:    strings.TrimRight(cfg.ApiHost, "/"),
		httpClient: httpClient,
	}, nil
}

// Connect checks that the companion answers on its root URL.
func (client *clientImpl) Connect(ctx context.Context) (navigation.Navigator, error) {
	resp, err := client.get(ctx, "/", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("companion returned status %d", resp.StatusCode)
	}

	return client, nil
}

// Navigate asks the companion to show a section. An unknown section (404) is
// reported as false without an error.
func (client *clientImpl) Navigate(ctx context.Context, sectionID string) (bool, error) {
	resp, err := client.get(ctx, "/navigate", map[string]string{"section": sectionID})
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return false, err
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode >= http.StatusBadRequest:
		return false, fmt.Errorf("navigate %q: status %d: %s", sectionID, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return strings.TrimSpace(string(body)) != "false", nil
}

func (client *clientImpl) get(ctx context.Context, path string, query map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, client.apiHost+path, nil)
	if err != nil {
		return nil, err
	}

	q := req.URL.Query()
	for key, value := range query {
		q.Add(key, value)
	}
	req.URL.RawQuery = q.Encode()

	return client.httpClient.Do(req)
}
