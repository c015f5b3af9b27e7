package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// EnqueueRequest contains all parameters for enqueuing a sync unit.
// Payload must be a complete point-in-time snapshot of the entity, not a
// diff, so a retried push always sends the representation captured at
// enqueue time.
type EnqueueRequest struct {
	EntityType  string          `json:"entity_type"`
	EntityID    string          `json:"entity_id"`
	Operation   string          `json:"operation"`
	Direction   string          `json:"direction"`
	Payload     json.RawMessage `json:"payload"`
	Priority    int             `json:"priority"`
	MaxAttempts int             `json:"max_attempts,omitempty"`
}

// Enqueue inserts a new queue row, or returns the existing non-terminal row
// for the same (entity_id, operation, direction) tuple unchanged. The
// existing flag reports which happened. Idempotent enqueue keeps the queue
// from growing when the same mutation fires repeatedly.
func (s *Store) Enqueue(req EnqueueRequest) (*QueueItem, bool, error) {
	if !ValidEntityType(req.EntityType) {
		return nil, false, fmt.Errorf("enqueue %q: %w", req.EntityType, ErrUnknownEntityType)
	}
	if req.Direction == "" {
		req.Direction = DirectionPush
	}
	if req.Direction != DirectionPush && req.Direction != DirectionPull {
		return nil, false, fmt.Errorf("invalid direction %q", req.Direction)
	}
	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	payload := req.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	var item *QueueItem
	var existing bool
	err := s.writer.ExecuteTx(func(tx *sql.Tx) error {
		row := tx.QueryRow(selectItemSQL+`
			WHERE entity_id = ? AND operation = ? AND direction = ?
			  AND synced = 0 AND dead_lettered = 0`,
			req.EntityID, req.Operation, req.Direction)
		found, err := scanItem(row)
		if err == nil {
			item = found
			existing = true
			return nil
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("check existing item: %w", err)
		}

		now := time.Now().UTC()
		item = &QueueItem{
			ID:          NewItemID(),
			StoreID:     s.storeID,
			EntityType:  req.EntityType,
			EntityID:    req.EntityID,
			Operation:   req.Operation,
			Direction:   req.Direction,
			Payload:     payload,
			Priority:    req.Priority,
			MaxAttempts: maxAttempts,
			CreatedAt:   now,
		}
		_, err = tx.Exec(`
			INSERT INTO sync_queue
				(id, store_id, entity_type, entity_id, operation, direction,
				 payload, priority, max_attempts, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			item.ID, item.StoreID, item.EntityType, item.EntityID,
			item.Operation, item.Direction, string(item.Payload),
			item.Priority, item.MaxAttempts, formatTime(now))
		if err != nil {
			return fmt.Errorf("insert queue item: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return item, existing, nil
}
