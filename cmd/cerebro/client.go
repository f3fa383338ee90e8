package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/synthcerebrum/cerebro/internal/config"
)

type apiClient struct {
	baseURL    string
	httpClient *http.Client
	// streaming responses (query, ingest) have no overall deadline
	streamClient *http.Client
}

var newAPIClient = func() (*apiClient, error) {
	cfg := config.Load()

	return &apiClient{
		baseURL:      fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port),
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		streamClient: &http.Client{},
	}, nil
}

func (c *apiClient) do(client *http.Client, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshalling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("server not reachable, is cerebro running? (%w)", err)
	}
	return resp, nil
}

func (c *apiClient) get(path string) (*http.Response, error) {
	return c.do(c.httpClient, "GET", path, nil)
}

func (c *apiClient) post(path string, body any) (*http.Response, error) {
	return c.do(c.httpClient, "POST", path, body)
}

func (c *apiClient) postStream(path string, body any) (*http.Response, error) {
	return c.do(c.streamClient, "POST", path, body)
}

func (c *apiClient) delete(path string) (*http.Response, error) {
	return c.do(c.httpClient, "DELETE", path, nil)
}

func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("server returned %d (failed to read body: %w)", resp.StatusCode, err)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
