// Package apiclient is a thin HTTP client for a running notibot daemon.
// It speaks the wire format of internal/httpapi and backs the notictl
// command.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxResponseBytes = 1 << 20

type Client struct {
	baseURL string
	token   string
	hc      *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		hc:      &http.Client{Timeout: 30 * time.Second},
	}
}

// Response is the envelope every /api endpoint answers with.
type Response struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// APIError carries a non-2xx answer from the daemon.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("daemon answered %d: %s", e.Status, e.Message)
}

type NotifyRequest struct {
	Message        string  `json:"message"`
	ChatID         int64   `json:"chat_id,omitempty"`
	ChatIDs        []int64 `json:"chat_ids,omitempty"`
	ParseMode      string  `json:"parse_mode,omitempty"`
	DisablePreview *bool   `json:"disable_web_page_preview,omitempty"`
}

// Trigger mirrors the scheduler's tagged wire form: Type selects which
// of the remaining fields apply.
type Trigger struct {
	Type   string    `json:"type"`
	Minute string    `json:"minute,omitempty"`
	Hour   string    `json:"hour,omitempty"`
	Day    string    `json:"day,omitempty"`
	Month  string    `json:"month,omitempty"`
	Dow    string    `json:"day_of_week,omitempty"`
	Every  string    `json:"every,omitempty"`
	At     time.Time `json:"at,omitempty"`
}

type ScheduleRequest struct {
	JobID   string  `json:"job_id"`
	Message string  `json:"message"`
	ChatIDs []int64 `json:"chat_ids,omitempty"`
	Trigger Trigger `json:"trigger"`
}

type Job struct {
	ID         string    `json:"id"`
	Message    string    `json:"message,omitempty"`
	Recipients []int64   `json:"recipients,omitempty"`
	Trigger    string    `json:"trigger"`
	CreatedAt  time.Time `json:"created_at"`
	NextRun    time.Time `json:"next_run,omitempty"`
}

type Health struct {
	Status       string `json:"status"`
	BotConnected bool   `json:"bot_connected"`
	Monitoring   bool   `json:"monitoring"`
}

func (c *Client) Notify(ctx context.Context, req NotifyRequest) (*Response, error) {
	var r Response
	if err := c.do(ctx, http.MethodPost, "/api/notify", req, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) SystemMetrics(ctx context.Context) (map[string]float64, error) {
	var r Response
	if err := c.do(ctx, http.MethodGet, "/api/system", nil, &r); err != nil {
		return nil, err
	}
	var d struct {
		Metrics map[string]float64 `json:"metrics"`
	}
	if err := json.Unmarshal(r.Data, &d); err != nil {
		return nil, fmt.Errorf("decode metrics: %w", err)
	}
	return d.Metrics, nil
}

// SystemReport asks the daemon to deliver a system report. A zero chatID
// sends it to every system-topic subscriber.
func (c *Client) SystemReport(ctx context.Context, chatID int64) (*Response, error) {
	var r Response
	body := map[string]int64{"chat_id": chatID}
	if err := c.do(ctx, http.MethodPost, "/api/system/report", body, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) Schedule(ctx context.Context, req ScheduleRequest) (*Response, error) {
	var r Response
	if err := c.do(ctx, http.MethodPost, "/api/schedule", req, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) Unschedule(ctx context.Context, jobID string) (*Response, error) {
	var r Response
	if err := c.do(ctx, http.MethodDelete, "/api/schedule/"+jobID, nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) Jobs(ctx context.Context) ([]Job, error) {
	var r Response
	if err := c.do(ctx, http.MethodGet, "/api/schedule", nil, &r); err != nil {
		return nil, err
	}
	var d struct {
		Jobs []Job `json:"jobs"`
	}
	if err := json.Unmarshal(r.Data, &d); err != nil {
		return nil, fmt.Errorf("decode jobs: %w", err)
	}
	return d.Jobs, nil
}

// Health probes /healthz. A 503 is a valid answer (daemon up, bot
// unreachable), not an error.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return nil, &APIError{Status: resp.StatusCode, Message: resp.Status}
	}
	var h Health
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&h); err != nil {
		return nil, fmt.Errorf("decode health: %w", err)
	}
	return &h, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		msg := strings.TrimSpace(string(data))
		var r Response
		if json.Unmarshal(data, &r) == nil && r.Message != "" {
			msg = r.Message
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out != nil {
		return json.Unmarshal(data, out)
	}
	return nil
}
