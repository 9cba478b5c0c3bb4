// Package client talks to the bot service's HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"meeting-bot/internal/domain/bot"
	"meeting-bot/internal/usecase/meetingbot"

	"github.com/gorilla/websocket"
)

const defaultEndpoint = "http://localhost:3001"

// APIError is a non-2xx answer from the service.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bot service: %d %s", e.Code, e.Message)
}

func (e *APIError) HTTPStatus() int { return e.Code }

func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

type Client struct {
	endpoint    string
	apiKey      string
	internalKey string
	httpClient  *http.Client
}

// New builds a client. An empty endpoint falls back to BOT_URL, then localhost.
func New(endpoint, apiKey, internalKey string) *Client {
	if endpoint == "" {
		endpoint = os.Getenv("BOT_URL")
	}
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &Client{
		endpoint:    strings.TrimRight(endpoint, "/"),
		apiKey:      apiKey,
		internalKey: internalKey,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

type ack struct {
	Success bool   `json:"success"`
	JobID   string `json:"jobId"`
}

func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.do(ctx, http.MethodGet, "/health", "", nil, &out)
	return out, err
}

func (c *Client) CreateJob(ctx context.Context, p meetingbot.CreateJobParams) (string, error) {
	var out ack
	if err := c.do(ctx, http.MethodPost, "/api/jobs", c.apiKey, p, &out); err != nil {
		return "", err
	}
	return out.JobID, nil
}

func (c *Client) GetJob(ctx context.Context, id string) (bot.Job, error) {
	var out bot.Job
	err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id), c.apiKey, nil, &out)
	return out, err
}

func (c *Client) ListJobs(ctx context.Context) ([]bot.Job, error) {
	var out struct {
		Jobs []bot.Job `json:"jobs"`
	}
	err := c.do(ctx, http.MethodGet, "/api/jobs", c.apiKey, nil, &out)
	if err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

func (c *Client) StopJob(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/jobs/"+url.PathEscape(id)+"/stop", c.apiKey, nil, nil)
}

// SendStatus posts an interim session status through the internal hook.
func (c *Client) SendStatus(ctx context.Context, jobID, status string, data map[string]any) error {
	body := map[string]any{"jobId": jobID, "status": status}
	if len(data) > 0 {
		body["data"] = data
	}
	return c.do(ctx, http.MethodPost, "/api/internal/status", c.internalKey, body, nil)
}

// Watch streams job_updated events until ctx ends or onEvent returns an error. An empty jobID watches every job.
func (c *Client) Watch(ctx context.Context, jobID string, onEvent func(job bot.Job) error) error {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return fmt.Errorf("parse endpoint: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/jobs"
	q := u.Query()
	if jobID != "" {
		q.Set("jobId", jobID)
	}
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("x-api-key", c.apiKey)
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return fmt.Errorf("websocket connect: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		var evt struct {
			Type string  `json:"type"`
			Job  bot.Job `json:"job"`
		}
		if err := conn.ReadJSON(&evt); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("websocket read: %w", err)
		}
		if evt.Type != "job_updated" {
			continue
		}
		if err := onEvent(evt.Job); err != nil {
			return err
		}
	}
}

func (c *Client) do(ctx context.Context, method, path, key string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set("x-api-key", key)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(raw, &e)
		if e.Error == "" {
			e.Error = strings.TrimSpace(string(raw))
		}
		return &APIError{Code: resp.StatusCode, Message: e.Error}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
