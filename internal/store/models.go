package store

import (
	"encoding/json"
	"time"
)

// Sync directions
const (
	DirectionPush = "PUSH"
	DirectionPull = "PULL"
)

// Operations carried by queue items. CREATE/UPDATE/DELETE are generic;
// the rest are lifecycle actions specific to lottery packs.
const (
	OpCreate   = "CREATE"
	OpUpdate   = "UPDATE"
	OpDelete   = "DELETE"
	OpActivate = "ACTIVATE"
	OpReturn   = "RETURN"
)

// Entity types form a closed domain set; enqueue rejects anything else.
const (
	EntityPack        = "pack"
	EntityBin         = "bin"
	EntityUser        = "user"
	EntityGame        = "game"
	EntityBusinessDay = "businessDay"
	EntityShift       = "shift"
)

// EntityTypes lists all entity types in the fixed order the scheduler
// processes them. Business days and shifts come last so their closing
// records follow the pack and bin movements they summarize.
var EntityTypes = []string{
	EntityPack,
	EntityBin,
	EntityUser,
	EntityGame,
	EntityBusinessDay,
	EntityShift,
}

// ValidEntityType reports whether t belongs to the closed domain set.
func ValidEntityType(t string) bool {
	for _, e := range EntityTypes {
		if e == t {
			return true
		}
	}
	return false
}

// Error categories recorded on failed queue items. Network, server and
// rate-limited failures retry with backoff; permanent failures dead-letter
// immediately; conflicts are resolved locally by the reconciler.
const (
	CategoryNetwork     = "transient_network"
	CategoryServer      = "transient_server"
	CategoryRateLimited = "rate_limited"
	CategoryPermanent   = "permanent_client"
	CategoryConflict    = "conflict"
)

// DefaultMaxAttempts is applied when an enqueue request does not set one.
const DefaultMaxAttempts = 5

// QueueItem is one durable sync unit in the outbox/inbox queue.
//
// synced=true is terminal. dead_lettered=true is terminal until an operator
// requeue creates a brand-new row; dead rows are never resurrected in place.
type QueueItem struct {
	ID                string          `json:"id"`
	StoreID           string          `json:"store_id"`
	EntityType        string          `json:"entity_type"`
	EntityID          string          `json:"entity_id"`
	Operation         string          `json:"operation"`
	Direction         string          `json:"direction"`
	Payload           json.RawMessage `json:"payload"`
	Priority          int             `json:"priority"`
	Attempts          int             `json:"attempts"`
	MaxAttempts       int             `json:"max_attempts"`
	LastError         *string         `json:"last_error,omitempty"`
	LastErrorCategory *string         `json:"last_error_category,omitempty"`
	LastAttemptAt     *time.Time      `json:"last_attempt_at,omitempty"`
	RetryAfter        *time.Time      `json:"retry_after,omitempty"`
	DeadLettered      bool            `json:"dead_lettered"`
	Synced            bool            `json:"synced"`
	SyncedAt          *time.Time      `json:"synced_at,omitempty"`
	APIEndpoint       *string         `json:"api_endpoint,omitempty"`
	HTTPStatus        *int            `json:"http_status,omitempty"`
	ResponseBody      *string         `json:"response_body,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// Terminal reports whether the item can transition no further.
func (q *QueueItem) Terminal() bool {
	return q.Synced || q.DeadLettered
}

// SyncCursor is the per-entity-type watermark of the last successful pull
// and push, scoped to a store.
type SyncCursor struct {
	StoreID    string     `json:"store_id"`
	EntityType string     `json:"entity_type"`
	LastPullAt *time.Time `json:"last_pull_at,omitempty"`
	LastPushAt *time.Time `json:"last_push_at,omitempty"`
}

// LocalEntity is the common shape of a locally stored business entity.
// version is the monotonic field the reconciler compares for last-write-wins.
type LocalEntity struct {
	ID        string          `json:"id"`
	StoreID   string          `json:"store_id"`
	Status    string          `json:"status"`
	Version   int64           `json:"version"`
	UpdatedAt time.Time       `json:"updated_at"`
	Data      json.RawMessage `json:"data"`
}

// EntityTypeStats are aggregate queue counts for one entity type.
type EntityTypeStats struct {
	EntityType   string `json:"entity_type"`
	Pending      int    `json:"pending"`
	Synced       int    `json:"synced"`
	DeadLettered int    `json:"dead_lettered"`
}

// QueueStats are the aggregate counts exposed to UI/CLI collaborators.
// Item-level detail stays in operator diagnostic tooling.
type QueueStats struct {
	ByEntityType []EntityTypeStats `json:"by_entity_type"`
	Pending      int               `json:"pending"`
	Synced       int               `json:"synced"`
	DeadLettered int               `json:"dead_lettered"`
}
