package sync

import (
	"context"
	"log/slog"
	"time"

	"github.com/edgetill/possync/internal/api"
	"github.com/edgetill/possync/internal/store"
)

// DrainStats are the aggregate results of one push drain.
type DrainStats struct {
	Attempted    int `json:"attempted"`
	Succeeded    int `json:"succeeded"`
	Failed       int `json:"failed"`
	DeadLettered int `json:"dead_lettered"`
}

// PushWorker drains due outbox rows to the remote service. One worker per
// store; the scheduler guarantees a single drain in flight, so rows are
// never double-claimed by concurrent drains of the same engine. The
// guarded row transitions in the store make even an out-of-band concurrent
// drain safe: exactly one caller wins each terminal transition.
type PushWorker struct {
	store  *store.Store
	client api.Client
	policy *BackoffPolicy
	clock  Clock
}

// NewPushWorker creates a PushWorker.
func NewPushWorker(s *store.Store, client api.Client, policy *BackoffPolicy, clock Clock) *PushWorker {
	if policy == nil {
		policy = DefaultBackoffPolicy()
	}
	if clock == nil {
		clock = SystemClock()
	}
	return &PushWorker{store: s, client: client, policy: policy, clock: clock}
}

// Drain pushes up to batchSize due rows, oldest first within a priority
// band, sequentially so lifecycle transitions for one entity apply in
// enqueue order. Per-item failures are recorded on the row and never
// returned; only storage faults surface.
func (w *PushWorker) Drain(ctx context.Context, batchSize int) (DrainStats, error) {
	var stats DrainStats

	items, err := w.store.DuePushItems(batchSize, w.clock.Now())
	if err != nil {
		return stats, err
	}

	touched := map[string]bool{}
	for i := range items {
		if ctx.Err() != nil {
			break
		}
		item := &items[i]
		stats.Attempted++

		outcome, err := w.pushOne(ctx, item)
		if err != nil {
			return stats, err
		}
		switch outcome {
		case pushSynced:
			stats.Succeeded++
			touched[item.EntityType] = true
		case pushDead:
			stats.DeadLettered++
		case pushRetry:
			stats.Failed++
		}
	}

	now := w.clock.Now()
	for entityType := range touched {
		if err := w.store.TouchPushCursor(entityType, now); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

type pushOutcome int

const (
	pushSynced pushOutcome = iota
	pushRetry
	pushDead
	pushSkipped
)

func (w *PushWorker) pushOne(ctx context.Context, item *store.QueueItem) (pushOutcome, error) {
	endpoint := "/sync/" + item.EntityType

	result, err := w.client.Push(ctx, item.EntityType, item.Operation, item.Payload)
	attemptAt := w.clock.Now()

	if err != nil {
		return w.recordFailure(item, store.FailureRecord{
			Error:     err.Error(),
			Category:  api.ClassifyTransport(err),
			Endpoint:  endpoint,
			AttemptAt: attemptAt,
		}, 0)
	}

	if result.OK() || result.Category == store.CategoryConflict {
		// A 409 means the remote already holds newer state; the stale
		// snapshot will never be accepted, and the next pull reconciles
		// the entity. The row completes with the status recorded.
		applied, err := w.store.MarkSynced(item.ID, result.HTTPStatus, result.Body, endpoint, attemptAt)
		if err != nil {
			return 0, err
		}
		if !applied {
			slog.Debug("push item already terminal", "item_id", item.ID)
			return pushSkipped, nil
		}
		if result.Category == store.CategoryConflict {
			slog.Info("push conflict resolved via pull",
				"item_id", item.ID, "entity_type", item.EntityType, "entity_id", item.EntityID)
		}
		return pushSynced, nil
	}

	return w.recordFailure(item, store.FailureRecord{
		Error:        "remote rejected push",
		Category:     result.Category,
		HTTPStatus:   result.HTTPStatus,
		ResponseBody: result.Body,
		Endpoint:     endpoint,
		AttemptAt:    attemptAt,
	}, result.RetryHint)
}

func (w *PushWorker) recordFailure(item *store.QueueItem, rec store.FailureRecord, hint time.Duration) (pushOutcome, error) {
	decision := w.policy.NextRetry(item.Attempts+1, rec.Category)

	if decision.Permanent || item.Attempts+1 >= item.MaxAttempts {
		applied, err := w.store.MarkDeadLettered(item.ID, rec)
		if err != nil {
			return 0, err
		}
		if !applied {
			return pushSkipped, nil
		}
		slog.Warn("queue item dead-lettered",
			"item_id", item.ID, "entity_type", item.EntityType,
			"entity_id", item.EntityID, "category", rec.Category,
			"attempts", item.Attempts+1)
		return pushDead, nil
	}

	delay := decision.Delay
	if hint > delay {
		// 429 Retry-After from the server outranks the computed backoff.
		delay = hint
	}
	retryAt := rec.AttemptAt.Add(delay)
	rec.RetryAfter = &retryAt

	applied, err := w.store.MarkRetry(item.ID, rec)
	if err != nil {
		return 0, err
	}
	if !applied {
		return pushSkipped, nil
	}
	return pushRetry, nil
}
