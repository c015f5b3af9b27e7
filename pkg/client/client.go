// Package client is a thin HTTP wrapper for the possync admin API, used by
// the CLI and by operator tooling.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to a running possync admin server.
type Client struct {
	URL        string
	HTTPClient *http.Client
}

// New creates a new admin client.
func New(url string) *Client {
	return &Client{
		URL: url,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Stats mirrors the engine's aggregate queue counts.
type Stats struct {
	ByEntityType []EntityTypeStats `json:"by_entity_type"`
	Pending      int               `json:"pending"`
	Synced       int               `json:"synced"`
	DeadLettered int               `json:"dead_lettered"`
}

// EntityTypeStats are counts for one entity type.
type EntityTypeStats struct {
	EntityType   string `json:"entity_type"`
	Pending      int    `json:"pending"`
	Synced       int    `json:"synced"`
	DeadLettered int    `json:"dead_lettered"`
}

// GetStats returns aggregate queue counts.
func (c *Client) GetStats() (*Stats, error) {
	var stats Stats
	if err := c.get("/api/v1/stats", &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Trigger requests one immediate sync cycle.
func (c *Client) Trigger() error {
	return c.post("/api/v1/sync/trigger", nil, nil)
}

// DeadLetterList is the dead-letter listing response.
type DeadLetterList struct {
	Items []json.RawMessage `json:"items"`
	Count int               `json:"count"`
}

// ListDeadLettered lists dead-lettered queue items, optionally filtered by
// entity type.
func (c *Client) ListDeadLettered(entityType string) (*DeadLetterList, error) {
	path := "/api/v1/deadletter"
	if entityType != "" {
		path += "?entity_type=" + entityType
	}
	var list DeadLetterList
	if err := c.get(path, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// Requeue creates a fresh queue item from a dead-lettered one.
func (c *Client) Requeue(itemID string) (json.RawMessage, error) {
	var resp struct {
		Item json.RawMessage `json:"item"`
	}
	if err := c.post("/api/v1/deadletter/"+itemID+"/requeue", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Item, nil
}

// RequeueAll requeues every dead-lettered item for an entity type ("" for
// all types) and returns how many were requeued.
func (c *Client) RequeueAll(entityType string) (int, error) {
	body := map[string]string{}
	if entityType != "" {
		body["entity_type"] = entityType
	}
	var resp struct {
		Requeued int `json:"requeued"`
	}
	if err := c.post("/api/v1/deadletter/requeue", body, &resp); err != nil {
		return 0, err
	}
	return resp.Requeued, nil
}

// HTTP helpers

func (c *Client) get(path string, result any) error {
	return c.doRequest(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doRequest(http.MethodPost, path, body, result)
}

func (c *Client) doRequest(method, path string, body any, result any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, c.URL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		json.Unmarshal(data, &apiErr)
		return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Error)
	}

	if result != nil {
		return json.Unmarshal(data, result)
	}
	return nil
}
