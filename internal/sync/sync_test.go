package sync

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/edgetill/possync/internal/api"
	"github.com/edgetill/possync/internal/store"
)

// fakeClock is a settable clock for deterministic scheduling tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type pushResponse struct {
	result *api.PushResult
	err    error
}

type pushCall struct {
	entityType string
	operation  string
	payload    json.RawMessage
}

type pullCall struct {
	entityType string
	since      *time.Time
}

// fakeClient scripts remote behavior. Push responses pop off a shared queue
// in call order; pull pages pop per entity type. Exhausted scripts default
// to a 200 push and an empty pull page.
type fakeClient struct {
	mu        sync.Mutex
	pushQueue []pushResponse
	pushCalls []pushCall
	pullPages map[string][]*api.PullResult
	pullErrs  map[string]error
	pullCalls []pullCall
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		pullPages: map[string][]*api.PullResult{},
		pullErrs:  map[string]error{},
	}
}

func (c *fakeClient) scriptPush(responses ...pushResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pushQueue = append(c.pushQueue, responses...)
}

func (c *fakeClient) scriptPull(entityType string, pages ...*api.PullResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pullPages[entityType] = append(c.pullPages[entityType], pages...)
}

func (c *fakeClient) Push(_ context.Context, entityType, operation string, payload json.RawMessage) (*api.PushResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pushCalls = append(c.pushCalls, pushCall{entityType, operation, payload})
	if len(c.pushQueue) == 0 {
		return &api.PushResult{HTTPStatus: 200, Body: `{"ok":true}`}, nil
	}
	resp := c.pushQueue[0]
	c.pushQueue = c.pushQueue[1:]
	return resp.result, resp.err
}

func (c *fakeClient) Pull(_ context.Context, entityType string, since *time.Time) (*api.PullResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pullCalls = append(c.pullCalls, pullCall{entityType, since})
	if err := c.pullErrs[entityType]; err != nil {
		return nil, err
	}
	pages := c.pullPages[entityType]
	if len(pages) == 0 {
		return &api.PullResult{}, nil
	}
	page := pages[0]
	c.pullPages[entityType] = pages[1:]
	return page, nil
}

func status500() pushResponse {
	return pushResponse{result: &api.PushResult{
		HTTPStatus: 500, Body: `{"error":"internal"}`, Category: store.CategoryServer,
	}}
}

func status200() pushResponse {
	return pushResponse{result: &api.PushResult{HTTPStatus: 200, Body: `{"ok":true}`}}
}

func testStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return store.NewStore(db, "store-1")
}

// testPolicy disables jitter so retry deadlines are exact.
func testPolicy() *BackoffPolicy {
	return &BackoffPolicy{
		BaseDelay: 5 * time.Second,
		MaxDelay:  10 * time.Minute,
	}
}

func testStart() time.Time {
	return time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
}

func enqueuePush(t *testing.T, s *store.Store, entityType, entityID, operation string, payload string) *store.QueueItem {
	t.Helper()
	item, existing, err := s.Enqueue(store.EnqueueRequest{
		EntityType: entityType,
		EntityID:   entityID,
		Operation:  operation,
		Direction:  store.DirectionPush,
		Payload:    json.RawMessage(payload),
	})
	if err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	if existing {
		t.Fatalf("Enqueue() returned existing item, want new")
	}
	return item
}
