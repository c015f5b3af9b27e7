// Package sync is the bidirectional sync engine: push/pull workers,
// backoff policy, reconciler and the engine facade the scheduler and the
// admin surface drive.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/edgetill/possync/internal/api"
	"github.com/edgetill/possync/internal/schema"
	"github.com/edgetill/possync/internal/store"
)

// Engine owns the queue and both workers for one store. Business-logic
// components only ever call Enqueue; the queue tables belong to the engine.
type Engine struct {
	store *store.Store
	push  *PushWorker
	pull  *PullWorker
	clock Clock

	// BatchSize bounds one push drain.
	BatchSize int
}

// NewEngine wires the engine from its injected collaborators.
func NewEngine(s *store.Store, client api.Client, policy *BackoffPolicy, clock Clock) *Engine {
	if clock == nil {
		clock = SystemClock()
	}
	return &Engine{
		store:     s,
		push:      NewPushWorker(s, client, policy, clock),
		pull:      NewPullWorker(s, client, clock),
		clock:     clock,
		BatchSize: 50,
	}
}

// Store exposes the underlying store for read-only collaborators.
func (e *Engine) Store() *store.Store {
	return e.store
}

// Enqueue validates the payload snapshot against the entity type's schema
// and inserts (or deduplicates onto) a queue row. This is the only write
// path into the queue for business mutations.
func (e *Engine) Enqueue(req store.EnqueueRequest) (*store.QueueItem, bool, error) {
	if !store.ValidEntityType(req.EntityType) {
		return nil, false, fmt.Errorf("enqueue %q: %w", req.EntityType, store.ErrUnknownEntityType)
	}
	if err := schema.Validate(req.EntityType, req.Payload); err != nil {
		return nil, false, err
	}
	return e.store.Enqueue(req)
}

// CycleStats aggregates one full sync cycle.
type CycleStats struct {
	Pull  map[string]PullStats `json:"pull"`
	Drain DrainStats           `json:"drain"`
	// PullErrors counts entity types whose pull failed this cycle.
	PullErrors int `json:"pull_errors,omitempty"`
}

// SyncCycle runs one complete cycle: pull every entity type in the fixed
// deterministic order, then drain the outbox. Per-type pull failures are
// logged and counted, never propagated; the cycle always completes.
func (e *Engine) SyncCycle(ctx context.Context) CycleStats {
	stats := CycleStats{Pull: make(map[string]PullStats, len(store.EntityTypes))}

	for _, entityType := range store.EntityTypes {
		if ctx.Err() != nil {
			return stats
		}
		ps, err := e.pull.Pull(ctx, entityType)
		if err != nil {
			stats.PullErrors++
			slog.Warn("pull failed", "entity_type", entityType, "error", err)
			continue
		}
		stats.Pull[entityType] = ps
	}

	if ctx.Err() != nil {
		return stats
	}
	ds, err := e.push.Drain(ctx, e.BatchSize)
	stats.Drain = ds
	if err != nil {
		slog.Error("push drain aborted", "error", err)
	}
	return stats
}

// DrainPush runs one push drain outside a full cycle.
func (e *Engine) DrainPush(ctx context.Context) (DrainStats, error) {
	return e.push.Drain(ctx, e.BatchSize)
}

// Requeue creates a brand-new PUSH item from a dead-lettered row. The dead
// row is never mutated; the new item carries the entity's current snapshot,
// re-resolved at requeue time, so the retry never replays stale data.
func (e *Engine) Requeue(itemID string) (*store.QueueItem, error) {
	dead, err := e.store.GetItem(itemID)
	if err != nil {
		return nil, err
	}
	if !dead.DeadLettered {
		return nil, fmt.Errorf("requeue %s: %w", itemID, store.ErrNotDeadLettered)
	}

	payload := dead.Payload
	if current, err := e.store.GetEntity(dead.EntityType, dead.EntityID); err == nil {
		if snap, err := currentSnapshot(current); err == nil {
			payload = snap
		}
	}
	// Entity gone locally: fall back to the dead row's snapshot rather
	// than dropping the operation.

	item, existing, err := e.store.Enqueue(store.EnqueueRequest{
		EntityType: dead.EntityType,
		EntityID:   dead.EntityID,
		Operation:  dead.Operation,
		Direction:  store.DirectionPush,
		Payload:    payload,
		Priority:   dead.Priority,
	})
	if err != nil {
		return nil, err
	}
	if existing {
		slog.Info("requeue coalesced onto open item",
			"dead_item_id", itemID, "open_item_id", item.ID)
	} else {
		slog.Info("dead-lettered item requeued",
			"dead_item_id", itemID, "new_item_id", item.ID,
			"entity_type", dead.EntityType, "entity_id", dead.EntityID)
	}
	return item, nil
}

// RequeueAll requeues every dead-lettered row, optionally filtered by
// entity type, and returns the new items.
func (e *Engine) RequeueAll(entityType string) ([]store.QueueItem, error) {
	dead, err := e.store.ListDeadLettered(entityType)
	if err != nil {
		return nil, err
	}
	requeued := make([]store.QueueItem, 0, len(dead))
	for i := range dead {
		item, err := e.Requeue(dead[i].ID)
		if err != nil {
			return requeued, err
		}
		requeued = append(requeued, *item)
	}
	return requeued, nil
}

// Stats returns the aggregate queue counts.
func (e *Engine) Stats() (*store.QueueStats, error) {
	return e.store.Stats()
}

// currentSnapshot rebuilds a push payload from the locally stored entity:
// the entity's own data blob stamped with its current status and version.
func currentSnapshot(entity *store.LocalEntity) (json.RawMessage, error) {
	var m map[string]any
	if err := json.Unmarshal(entity.Data, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]any{}
	}
	m["id"] = entity.ID
	m["status"] = entity.Status
	m["version"] = entity.Version
	return json.Marshal(m)
}
