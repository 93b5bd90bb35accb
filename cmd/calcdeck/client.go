package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kalambet/calcdeck/internal/api"
	"github.com/kalambet/calcdeck/internal/config"
	"github.com/kalambet/calcdeck/internal/history"
)

// apiClient talks to the history API of a running `calcdeck start`.
type apiClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var newAPIClient = func() (*apiClient, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	token, err := config.APIToken(cfg, false)
	if err != nil {
		return nil, fmt.Errorf("getting API token: %w", err)
	}

	return &apiClient{
		baseURL:    fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port),
		token:      token,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}, nil
}

// apiError is the server's {"error":{"message","type"}} envelope.
type apiError struct {
	Status  int
	Type    string
	Message string
}

func (e *apiError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("server returned %d (%s): %s", e.Status, e.Type, e.Message)
}

func historyPath(calculatorID string) string {
	return "/history/" + url.PathEscape(calculatorID)
}

// recent fetches a calculator's history, newest first. limit <= 0 means all.
func (c *apiClient) recent(ctx context.Context, calculatorID string, limit int) ([]history.Entry, error) {
	path := historyPath(calculatorID)
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var entries []history.Entry
	if err := c.call(ctx, http.MethodGet, path, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// record stores an already computed result on the server.
func (c *apiClient) record(ctx context.Context, calculatorID string, inputs *history.Inputs, result string) (history.Entry, error) {
	var entry history.Entry
	err := c.call(ctx, http.MethodPost, historyPath(calculatorID), api.RecordRequest{
		Inputs: inputs,
		Result: result,
	}, &entry)
	return entry, err
}

func (c *apiClient) clearHistory(ctx context.Context, calculatorID string) error {
	return c.call(ctx, http.MethodDelete, historyPath(calculatorID), nil, nil)
}

func (c *apiClient) summary(ctx context.Context) (historySummary, error) {
	var s historySummary
	err := c.call(ctx, http.MethodGet, "/history", nil, &s)
	return s, err
}

func (c *apiClient) call(ctx context.Context, method, path string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshalling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calcdeck server not reachable at %s; run `calcdeck start` or drop --remote (%w)", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return readAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}

func readAPIError(resp *http.Response) error {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return &apiError{Status: resp.StatusCode, Message: fmt.Sprintf("failed to read body: %v", err)}
	}

	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if json.Unmarshal(data, &envelope) == nil && envelope.Error.Message != "" {
		return &apiError{Status: resp.StatusCode, Type: envelope.Error.Type, Message: envelope.Error.Message}
	}
	return &apiError{Status: resp.StatusCode, Message: string(bytes.TrimSpace(data))}
}
