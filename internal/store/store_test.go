package store

import (
	"encoding/json"
	"testing"
	"time"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db, "store-1")
}

func mustEnqueue(t *testing.T, s *Store, req EnqueueRequest) *QueueItem {
	t.Helper()
	item, existing, err := s.Enqueue(req)
	if err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	if existing {
		t.Fatalf("Enqueue() returned existing item, want new")
	}
	return item
}

func testNow() time.Time {
	return time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
}

func packRequest(entityID string) EnqueueRequest {
	return EnqueueRequest{
		EntityType: EntityPack,
		EntityID:   entityID,
		Operation:  OpActivate,
		Direction:  DirectionPush,
		Payload:    json.RawMessage(`{"id":"` + entityID + `","status":"ACTIVE"}`),
	}
}

func TestValidEntityType(t *testing.T) {
	for _, et := range EntityTypes {
		if !ValidEntityType(et) {
			t.Errorf("ValidEntityType(%q) = false, want true", et)
		}
	}
	for _, et := range []string{"", "packs", "Pack", "invoice"} {
		if ValidEntityType(et) {
			t.Errorf("ValidEntityType(%q) = true, want false", et)
		}
	}
}

func TestQueueItemTerminal(t *testing.T) {
	item := &QueueItem{}
	if item.Terminal() {
		t.Error("fresh item should not be terminal")
	}
	item.Synced = true
	if !item.Terminal() {
		t.Error("synced item should be terminal")
	}
	item = &QueueItem{DeadLettered: true}
	if !item.Terminal() {
		t.Error("dead-lettered item should be terminal")
	}
}

func TestTimeRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 589_000_000, time.UTC)
	parsed, err := parseTime(formatTime(now))
	if err != nil {
		t.Fatalf("parseTime() error: %v", err)
	}
	if !parsed.Equal(now) {
		t.Errorf("round trip = %v, want %v", parsed, now)
	}
}
