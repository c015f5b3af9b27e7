package store

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestEnqueueIdempotent(t *testing.T) {
	s := testStore(t)

	first := mustEnqueue(t, s, packRequest("pack-1"))

	// Same (entity_id, operation, direction) tuple returns the existing row.
	second, existing, err := s.Enqueue(packRequest("pack-1"))
	if err != nil {
		t.Fatalf("second Enqueue() error: %v", err)
	}
	if !existing {
		t.Error("second Enqueue() existing = false, want true")
	}
	if second.ID != first.ID {
		t.Errorf("second Enqueue() ID = %q, want %q", second.ID, first.ID)
	}

	n, err := s.PendingCount(DirectionPush)
	if err != nil {
		t.Fatalf("PendingCount() error: %v", err)
	}
	if n != 1 {
		t.Errorf("pending count = %d, want 1", n)
	}
}

func TestEnqueueDedupeScopedToTuple(t *testing.T) {
	s := testStore(t)

	mustEnqueue(t, s, packRequest("pack-1"))

	// Different operation on the same entity gets its own row.
	req := packRequest("pack-1")
	req.Operation = OpReturn
	mustEnqueue(t, s, req)

	// Different entity gets its own row.
	mustEnqueue(t, s, packRequest("pack-2"))

	n, err := s.PendingCount(DirectionPush)
	if err != nil {
		t.Fatalf("PendingCount() error: %v", err)
	}
	if n != 3 {
		t.Errorf("pending count = %d, want 3", n)
	}
}

func TestEnqueueAfterTerminalCreatesNewRow(t *testing.T) {
	s := testStore(t)

	first := mustEnqueue(t, s, packRequest("pack-1"))
	applied, err := s.MarkSynced(first.ID, 200, `{"ok":true}`, "/sync/pack", testNow())
	if err != nil || !applied {
		t.Fatalf("MarkSynced() = (%v, %v), want (true, nil)", applied, err)
	}

	// Once the first row is terminal, the dedupe guard no longer matches it.
	second := mustEnqueue(t, s, packRequest("pack-1"))
	if second.ID == first.ID {
		t.Error("enqueue after synced reused the terminal row")
	}
}

func TestEnqueueRejectsUnknownEntityType(t *testing.T) {
	s := testStore(t)

	_, _, err := s.Enqueue(EnqueueRequest{
		EntityType: "invoice",
		EntityID:   "inv-1",
		Operation:  OpCreate,
	})
	if !errors.Is(err, ErrUnknownEntityType) {
		t.Errorf("Enqueue() error = %v, want ErrUnknownEntityType", err)
	}
}

func TestEnqueueDefaults(t *testing.T) {
	s := testStore(t)

	item := mustEnqueue(t, s, EnqueueRequest{
		EntityType: EntityShift,
		EntityID:   "shift-1",
		Operation:  OpCreate,
	})

	if item.Direction != DirectionPush {
		t.Errorf("Direction = %q, want %q", item.Direction, DirectionPush)
	}
	if item.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("MaxAttempts = %d, want %d", item.MaxAttempts, DefaultMaxAttempts)
	}
	if string(item.Payload) != "{}" {
		t.Errorf("Payload = %s, want {}", item.Payload)
	}
	if item.Attempts != 0 || item.Synced || item.DeadLettered {
		t.Errorf("new item not in initial state: %+v", item)
	}

	// Round-trips through the database intact.
	got, err := s.GetItem(item.ID)
	if err != nil {
		t.Fatalf("GetItem() error: %v", err)
	}
	if got.EntityID != "shift-1" || got.Operation != OpCreate {
		t.Errorf("GetItem() = %+v, want shift-1/CREATE", got)
	}
	var payload map[string]any
	if err := json.Unmarshal(got.Payload, &payload); err != nil {
		t.Errorf("stored payload is not valid JSON: %v", err)
	}
}

func TestEnqueueRejectsInvalidDirection(t *testing.T) {
	s := testStore(t)

	req := packRequest("pack-1")
	req.Direction = "SIDEWAYS"
	if _, _, err := s.Enqueue(req); err == nil {
		t.Error("Enqueue() with invalid direction should fail")
	}
}
