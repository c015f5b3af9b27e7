package sync

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/edgetill/possync/internal/api"
	"github.com/edgetill/possync/internal/store"
)

// Outcome classifies what reconciling one remote record did. Ephemeral,
// used only for cycle statistics.
type Outcome string

const (
	OutcomeCreated            Outcome = "created"
	OutcomeUpdated            Outcome = "updated"
	OutcomeSkippedStale       Outcome = "skipped-stale"
	OutcomeSkippedUnchanged   Outcome = "skipped-unchanged"
	OutcomeRejectedTransition Outcome = "rejected-transition"
)

// statusRank orders lifecycle states per entity type. A remote record may
// only move a local entity to an equal-or-higher rank; anything else is a
// stale write trying to rewind a lifecycle and is rejected. Entity types
// absent here have no lifecycle gate and reconcile on version alone.
//
// Packs: RECEIVED -> ACTIVE -> DEPLETED | RETURNED (both terminal).
// Shifts and business days: OPEN -> CLOSED.
var statusRank = map[string]map[string]int{
	store.EntityPack: {
		"RECEIVED": 0,
		"ACTIVE":   1,
		"DEPLETED": 2,
		"RETURNED": 2,
	},
	store.EntityShift: {
		"OPEN":   0,
		"CLOSED": 1,
	},
	store.EntityBusinessDay: {
		"OPEN":   0,
		"CLOSED": 1,
	},
}

// transitionAllowed reports whether the lifecycle gate for entityType
// permits moving from local to remote status.
func transitionAllowed(entityType, from, to string) bool {
	ranks, gated := statusRank[entityType]
	if !gated {
		return true
	}
	if from == to {
		return true
	}
	fromRank, okFrom := ranks[from]
	toRank, okTo := ranks[to]
	if !okFrom || !okTo {
		// Unknown status never moves a known one.
		return !okFrom && okTo
	}
	// Equal rank means sibling terminal states (DEPLETED vs RETURNED);
	// neither may replace the other.
	return toRank > fromRank
}

// Reconciler merges pulled remote records into local entity tables using
// last-write-wins plus the lifecycle gate.
type Reconciler struct {
	store *store.Store
}

// NewReconciler creates a Reconciler over the given store.
func NewReconciler(s *store.Store) *Reconciler {
	return &Reconciler{store: s}
}

// Reconcile applies one remote record inside the caller's transaction.
// Remote wins only when its version is strictly newer than the local one;
// ties and remote-older records keep the local row (last-write-wins).
func (r *Reconciler) Reconcile(tx *sql.Tx, entityType string, rec api.RemoteRecord) (Outcome, error) {
	if rec.EntityID == "" {
		return "", fmt.Errorf("remote %s record without id", entityType)
	}

	local, err := r.store.GetEntityTx(tx, entityType, rec.EntityID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", err
	}

	if local == nil {
		if err := r.store.UpsertEntityTx(tx, entityType, remoteToLocal(rec)); err != nil {
			return "", err
		}
		return OutcomeCreated, nil
	}

	if rec.Version < local.Version {
		return OutcomeSkippedStale, nil
	}
	if rec.Version == local.Version {
		return OutcomeSkippedUnchanged, nil
	}

	if !transitionAllowed(entityType, local.Status, rec.Status) {
		// A stale remote write must never resurrect a terminal local
		// state, newer version or not.
		slog.Warn("rejected remote lifecycle transition",
			"entity_type", entityType,
			"entity_id", rec.EntityID,
			"local_status", local.Status,
			"remote_status", rec.Status,
			"remote_version", rec.Version)
		return OutcomeRejectedTransition, nil
	}

	if err := r.store.UpsertEntityTx(tx, entityType, remoteToLocal(rec)); err != nil {
		return "", err
	}
	return OutcomeUpdated, nil
}

func remoteToLocal(rec api.RemoteRecord) *store.LocalEntity {
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	return &store.LocalEntity{
		ID:        rec.EntityID,
		StoreID:   rec.StoreID,
		Status:    rec.Status,
		Version:   rec.Version,
		UpdatedAt: updatedAt,
		Data:      rec.Data,
	}
}
