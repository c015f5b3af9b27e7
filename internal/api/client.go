// Package api defines the contract the sync engine expects from the remote
// service and a plain HTTP implementation of it. The engine never retries
// inside this package; retry scheduling belongs to the queue.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Client performs the actual network calls for the push and pull workers.
type Client interface {
	// Push delivers one outbound mutation. A non-2xx response is returned
	// as a PushResult with a classified category, not as an error; errors
	// are reserved for transport failures.
	Push(ctx context.Context, entityType, operation string, payload json.RawMessage) (*PushResult, error)

	// Pull fetches remote records changed since the given watermark.
	// A nil since requests everything.
	Pull(ctx context.Context, entityType string, since *time.Time) (*PullResult, error)
}

// PushResult is the structured outcome of a push call.
type PushResult struct {
	HTTPStatus int
	Body       string
	// Category is empty on 2xx, otherwise one of the store error
	// categories.
	Category string
	// RetryHint is a server-provided delay (Retry-After on 429);
	// zero when absent.
	RetryHint time.Duration
}

// OK reports whether the push was accepted.
func (r *PushResult) OK() bool {
	return r.HTTPStatus >= 200 && r.HTTPStatus < 300
}

// RemoteRecord is one entity as the remote service last saw it.
type RemoteRecord struct {
	EntityID  string          `json:"id"`
	StoreID   string          `json:"storeId"`
	Status    string          `json:"status"`
	Version   int64           `json:"version"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Data      json.RawMessage `json:"data"`
}

// PullResult is one page of remote deltas plus the cursor to resume from.
type PullResult struct {
	Records       []RemoteRecord `json:"records"`
	HighWaterMark *time.Time     `json:"highWaterMark"`
}

// Error is a non-2xx pull response, carrying the classified category.
type Error struct {
	HTTPStatus int
	Category   string
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api status %d (%s)", e.HTTPStatus, e.Category)
}
