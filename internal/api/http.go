package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

// Config holds the remote endpoint and device identity.
type Config struct {
	BaseURL    string
	StoreID    string
	DeviceID   string
	SigningKey []byte        // HS256 key provisioned with the device
	Timeout    time.Duration // per-call timeout, default 30s
}

// HTTPClient implements Client against the remote sync service.
type HTTPClient struct {
	cfg  Config
	http *http.Client
}

// NewHTTPClient creates a client for the remote sync service.
func NewHTTPClient(cfg Config) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
	}
}

// token mints a short-lived bearer token identifying the device and store.
func (c *HTTPClient) token() (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":      c.cfg.DeviceID,
		"store_id": c.cfg.StoreID,
		"iat":      now.Unix(),
		"exp":      now.Add(5 * time.Minute).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.cfg.SigningKey)
}

func (c *HTTPClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	tok, err := c.token()
	if err != nil {
		return nil, fmt.Errorf("sign device token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("X-Request-ID", uuid.NewString())
	req.Header.Set("X-Store-ID", c.cfg.StoreID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// Push implements Client.
func (c *HTTPClient) Push(ctx context.Context, entityType, operation string, payload json.RawMessage) (*PushResult, error) {
	body, err := json.Marshal(map[string]any{
		"operation": operation,
		"payload":   payload,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal push body: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/sync/"+entityType, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("push %s: %w", entityType, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read push response: %w", err)
	}

	return &PushResult{
		HTTPStatus: resp.StatusCode,
		Body:       string(data),
		Category:   ClassifyStatus(resp.StatusCode),
		RetryHint:  retryHint(resp.Header, time.Now()),
	}, nil
}

// Pull implements Client.
func (c *HTTPClient) Pull(ctx context.Context, entityType string, since *time.Time) (*PullResult, error) {
	path := "/sync/" + entityType
	if since != nil {
		path += "?since=" + url.QueryEscape(since.UTC().Format(time.RFC3339Nano))
	}

	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pull %s: %w", entityType, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read pull response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{
			HTTPStatus: resp.StatusCode,
			Category:   ClassifyStatus(resp.StatusCode),
			Body:       string(data),
		}
	}

	var result PullResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode pull response: %w", err)
	}
	return &result, nil
}

// WaitReady probes the remote health endpoint with fibonacci backoff until
// it answers or the context expires. Used once at startup; steady-state
// availability is the queue's problem, not the transport's.
func (c *HTTPClient) WaitReady(ctx context.Context) error {
	backoff := retry.WithMaxDuration(2*time.Minute, retry.NewFibonacci(time.Second))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := c.newRequest(ctx, http.MethodGet, "/healthz", nil)
		if err != nil {
			return err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)
		if resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("remote not ready: status %d", resp.StatusCode))
		}
		return nil
	})
}
