package store

import (
	"errors"
	"testing"
)

func TestStats(t *testing.T) {
	s := testStore(t)
	now := testNow()

	mustEnqueue(t, s, packRequest("pack-1"))
	synced := mustEnqueue(t, s, packRequest("pack-2"))
	dead := mustEnqueue(t, s, EnqueueRequest{
		EntityType: EntityShift, EntityID: "shift-1", Operation: OpCreate,
	})

	if _, err := s.MarkSynced(synced.ID, 200, "", "/sync/pack", now); err != nil {
		t.Fatalf("MarkSynced() error: %v", err)
	}
	if _, err := s.MarkDeadLettered(dead.ID, FailureRecord{
		Error: "422", Category: CategoryPermanent, AttemptAt: now,
	}); err != nil {
		t.Fatalf("MarkDeadLettered() error: %v", err)
	}

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats() error: %v", err)
	}
	if stats.Pending != 1 || stats.Synced != 1 || stats.DeadLettered != 1 {
		t.Errorf("totals = %d/%d/%d, want 1/1/1",
			stats.Pending, stats.Synced, stats.DeadLettered)
	}

	byType := map[string]EntityTypeStats{}
	for _, es := range stats.ByEntityType {
		byType[es.EntityType] = es
	}
	if got := byType[EntityPack]; got.Pending != 1 || got.Synced != 1 {
		t.Errorf("pack stats = %+v, want pending=1 synced=1", got)
	}
	if got := byType[EntityShift]; got.DeadLettered != 1 {
		t.Errorf("shift stats = %+v, want dead_lettered=1", got)
	}
}

func TestListDeadLettered(t *testing.T) {
	s := testStore(t)
	now := testNow()

	pack := mustEnqueue(t, s, packRequest("pack-1"))
	shift := mustEnqueue(t, s, EnqueueRequest{
		EntityType: EntityShift, EntityID: "shift-1", Operation: OpCreate,
	})
	for _, id := range []string{pack.ID, shift.ID} {
		if _, err := s.MarkDeadLettered(id, FailureRecord{
			Error: "validation failed", Category: CategoryPermanent, AttemptAt: now,
		}); err != nil {
			t.Fatalf("MarkDeadLettered(%q) error: %v", id, err)
		}
	}

	all, err := s.ListDeadLettered("")
	if err != nil {
		t.Fatalf("ListDeadLettered() error: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("len(all) = %d, want 2", len(all))
	}

	packs, err := s.ListDeadLettered(EntityPack)
	if err != nil {
		t.Fatalf("ListDeadLettered(pack) error: %v", err)
	}
	if len(packs) != 1 || packs[0].ID != pack.ID {
		t.Errorf("filtered list = %+v, want the one pack row", packs)
	}

	if _, err := s.ListDeadLettered("invoice"); !errors.Is(err, ErrUnknownEntityType) {
		t.Errorf("ListDeadLettered(invoice) error = %v, want ErrUnknownEntityType", err)
	}
}
