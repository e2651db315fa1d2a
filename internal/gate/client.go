package gate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrLimitReached is returned when the session service refuses a play
// increment because the anonymous cap is exhausted.
var ErrLimitReached = errors.New("anonymous play limit reached")

// ErrSessionNotFound is returned when the session has expired or was
// never created server-side.
var ErrSessionNotFound = errors.New("anonymous session not found")

// Client is an HTTP client for the anonymous-session service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a session service client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Verify Client implements Service at compile time.
var _ Service = (*Client)(nil)

// CreateSession registers a new anonymous session for the device.
func (c *Client) CreateSession(ctx context.Context, deviceID string) (*Session, error) {
	body, err := json.Marshal(map[string]string{"device_id": deviceID})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

// IncrementPlay counts one play against the session.
func (c *Client) IncrementPlay(ctx context.Context, sessionID string) (*Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/sessions/%s/plays", c.baseURL, sessionID), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	return c.do(req)
}

// GetSession fetches the session status.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/sessions/%s", c.baseURL, sessionID), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	return c.do(req)
}

func (c *Client) do(req *http.Request) (*Session, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusNotFound, http.StatusGone:
		return nil, ErrSessionNotFound
	case http.StatusForbidden, http.StatusTooManyRequests:
		return nil, ErrLimitReached
	default:
		return nil, fmt.Errorf("unexpected status: %s", resp.Status)
	}

	var session Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &session, nil
}
