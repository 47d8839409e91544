package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds one request to the aggregator.
const DefaultTimeout = 5 * time.Second

// StatusError is a non-2xx reply from the aggregator.
type StatusError struct {
	StatusCode int
	Body       ErrorResponse
}

func (e *StatusError) Error() string {
	if e.Body.Error != "" {
		return fmt.Sprintf("cloud response status %d: %s", e.StatusCode, e.Body.Error)
	}
	return fmt.Sprintf("cloud response status %d", e.StatusCode)
}

// Client talks to the cloud aggregator.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for baseURL. A zero timeout uses DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the aggregator URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SubmitEvents posts events for one game.
func (c *Client) SubmitEvents(ctx context.Context, gameID string, req SubmitRequest) (SubmitResponse, error) {
	var resp SubmitResponse
	path := "/v1/games/" + url.PathEscape(gameID) + "/events"
	if err := c.post(ctx, path, req, &resp); err != nil {
		return SubmitResponse{}, err
	}
	return resp, nil
}

// SendHeartbeat posts one heartbeat.
func (c *Client) SendHeartbeat(ctx context.Context, hb Heartbeat) (HeartbeatResponse, error) {
	var resp HeartbeatResponse
	if err := c.post(ctx, "/v1/heartbeat", hb, &resp); err != nil {
		return HeartbeatResponse{}, err
	}
	return resp, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serr := &StatusError{StatusCode: resp.StatusCode}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&serr.Body)
		return serr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
