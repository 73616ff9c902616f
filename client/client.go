// Package client implements the polling protocol the export API expects from
// its callers: check status, trigger generation when pending, then poll on a
// fixed interval until a terminal state or the attempt budget runs out.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrPollTimeout is returned when the attempt budget is exhausted while
	// the export is still in flight. The server-side job keeps running.
	ErrPollTimeout = errors.New("export polling timed out")
	// ErrExportFailed is returned when the server reports a terminal error
	// state; retrying with Await starts a fresh generation.
	ErrExportFailed = errors.New("export failed")
)

const (
	defaultPollInterval = 5 * time.Second
	defaultMaxAttempts  = 60
)

// Status is the response shape of both the GET resolver and the POST trigger.
type Status struct {
	Status      string     `json:"status"`
	DownloadURL string     `json:"downloadUrl,omitempty"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
	Error       string     `json:"error,omitempty"`
}

type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	// PollInterval and MaxAttempts bound the Await loop; the defaults are
	// 5 seconds and 60 attempts.
	PollInterval time.Duration
	MaxAttempts  int
}

func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:      baseURL,
		Token:        token,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
		PollInterval: defaultPollInterval,
		MaxAttempts:  defaultMaxAttempts,
	}
}

// ExportStatus asks the resolver for the current state of a group's export.
func (c *Client) ExportStatus(ctx context.Context, groupID, format string) (Status, error) {
	url := fmt.Sprintf("%s/api/groups/%s/export?format=%s", c.BaseURL, groupID, format)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Status{}, fmt.Errorf("build status request: %w", err)
	}
	return c.do(req)
}

// TriggerExport asks the server to (re)generate the artifact. The response is
// either a short-circuit completed status or processing.
func (c *Client) TriggerExport(ctx context.Context, groupID, format string) (Status, error) {
	body, err := json.Marshal(map[string]string{"format": format})
	if err != nil {
		return Status{}, fmt.Errorf("marshal trigger body: %w", err)
	}
	url := fmt.Sprintf("%s/api/groups/%s/export", c.BaseURL, groupID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Status{}, fmt.Errorf("build trigger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

// Await drives the full protocol: resolve, trigger when pending or errored,
// then poll until completed, error, or the attempt budget is spent. Each poll
// is an independent stateless request; all retry bookkeeping lives here.
func (c *Client) Await(ctx context.Context, groupID, format string) (Status, error) {
	status, err := c.ExportStatus(ctx, groupID, format)
	if err != nil {
		return Status{}, err
	}
	if status.Status == "completed" {
		return status, nil
	}

	if status.Status == "pending" || status.Status == "error" {
		status, err = c.TriggerExport(ctx, groupID, format)
		if err != nil {
			return Status{}, err
		}
		if status.Status == "completed" {
			return status, nil
		}
		if status.Status == "error" {
			return status, fmt.Errorf("%w: %s", ErrExportFailed, status.Error)
		}
	}

	interval := c.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}

	for attempt := 0; attempt < attempts; attempt++ {
		select {
		case <-ctx.Done():
			return Status{}, ctx.Err()
		case <-time.After(interval):
		}

		status, err = c.ExportStatus(ctx, groupID, format)
		if err != nil {
			return Status{}, err
		}
		switch status.Status {
		case "completed":
			return status, nil
		case "error":
			return status, fmt.Errorf("%w: %s", ErrExportFailed, status.Error)
		}
	}
	return status, ErrPollTimeout
}

func (c *Client) do(req *http.Request) (Status, error) {
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return Status{}, fmt.Errorf("export request: %w", err)
	}
	defer resp.Body.Close()

	var status Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return Status{}, fmt.Errorf("decode export response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest && status.Status != "error" {
		return Status{}, fmt.Errorf("export request failed with status %d: %s", resp.StatusCode, status.Error)
	}
	return status, nil
}
