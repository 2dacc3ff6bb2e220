// Package client is the loopback HTTP client used by the CLI and the MCP
// tool layer. It speaks the same JSON the control plane serves.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/speakuplabs/speakupd/internal/history"
	"github.com/speakuplabs/speakupd/internal/message"
)

// Client talks to one speakupd instance.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// SpeakRequest mirrors the /api/speak body.
type SpeakRequest struct {
	Text      string  `json:"text"`
	Project   string  `json:"project,omitempty"`
	Tone      string  `json:"tone,omitempty"`
	Speed     float64 `json:"speed,omitempty"`
	Interrupt bool    `json:"interrupt,omitempty"`
	Announce  string  `json:"announce,omitempty"`
}

type SpeakResult struct {
	MessageID     int64 `json:"message_id"`
	QueuePosition int   `json:"queue_position"`
}

type StopResult struct {
	StoppedCurrent bool    `json:"stopped_current"`
	Cleared        []int64 `json:"cleared"`
}

type Status struct {
	Playing     *message.Message  `json:"playing"`
	Queue       []message.Message `json:"queue"`
	QueueLength int               `json:"queue_length"`
}

// APIError carries a structured error response from the daemon.
type APIError struct {
	StatusCode int
	Message    string
	Field      string
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (c *Client) Speak(ctx context.Context, req SpeakRequest) (SpeakResult, error) {
	var res SpeakResult
	err := c.do(ctx, http.MethodPost, "/api/speak", req, &res)
	return res, err
}

func (c *Client) Stop(ctx context.Context) (StopResult, error) {
	var res StopResult
	err := c.do(ctx, http.MethodPost, "/api/stop", nil, &res)
	return res, err
}

func (c *Client) Status(ctx context.Context) (Status, error) {
	var res Status
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &res)
	return res, err
}

func (c *Client) History(ctx context.Context, limit int) ([]history.Record, error) {
	var res struct {
		History []history.Record `json:"history"`
	}
	path := fmt.Sprintf("/api/history?limit=%d", limit)
	err := c.do(ctx, http.MethodGet, path, nil, &res)
	return res.History, err
}

// Health reports whether the daemon answers its health endpoint.
func (c *Client) Health(ctx context.Context) error {
	var res struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/health", nil, &res); err != nil {
		return err
	}
	if res.Status != "ok" {
		return fmt.Errorf("daemon unhealthy: %s", res.Status)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("is speakupd running? %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
			Field string `json:"field"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = resp.Status
		}
		return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error, Field: apiErr.Field}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
