package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/edgetill/possync/internal/api"
	"github.com/edgetill/possync/internal/scheduler"
	"github.com/edgetill/possync/internal/store"
	enginepkg "github.com/edgetill/possync/internal/sync"
)

type stubClient struct{}

func (stubClient) Push(context.Context, string, string, json.RawMessage) (*api.PushResult, error) {
	return &api.PushResult{HTTPStatus: 200, Body: `{"ok":true}`}, nil
}

func (stubClient) Pull(context.Context, string, *time.Time) (*api.PullResult, error) {
	return &api.PullResult{}, nil
}

func testServer(t *testing.T) (*Server, *enginepkg.Engine, *scheduler.Scheduler) {
	t.Helper()
	db, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	s := store.NewStore(db, "store-1")
	engine := enginepkg.NewEngine(s, stubClient{}, nil, nil)
	sched := scheduler.New(engine, scheduler.Config{Interval: time.Hour})
	return New(engine, sched, "127.0.0.1:0"), engine, sched
}

func doRequest(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHealthz(t *testing.T) {
	srv, _, _ := testServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	srv, engine, _ := testServer(t)

	if _, _, err := engine.Enqueue(store.EnqueueRequest{
		EntityType: store.EntityPack,
		EntityID:   "pack-1",
		Operation:  store.OpCreate,
		Payload:    json.RawMessage(`{"id":"pack-1"}`),
	}); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var stats store.QueueStats
	decodeBody(t, rec, &stats)
	if stats.Pending != 1 {
		t.Errorf("pending = %d, want 1", stats.Pending)
	}
}

func TestEnqueueEndpoint(t *testing.T) {
	srv, _, _ := testServer(t)

	req := store.EnqueueRequest{
		EntityType: store.EntityPack,
		EntityID:   "pack-1",
		Operation:  store.OpActivate,
		Payload:    json.RawMessage(`{"id":"pack-1","status":"ACTIVE"}`),
	}
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/enqueue", req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	// Duplicate tuple returns the existing row with 200.
	rec = doRequest(t, srv, http.MethodPost, "/api/v1/enqueue", req)
	if rec.Code != http.StatusOK {
		t.Errorf("duplicate status = %d, want 200", rec.Code)
	}
	var resp struct {
		Existing bool `json:"existing"`
	}
	decodeBody(t, rec, &resp)
	if !resp.Existing {
		t.Error("existing = false, want true on duplicate enqueue")
	}
}

func TestEnqueueEndpointRejectsBadInput(t *testing.T) {
	srv, _, _ := testServer(t)

	cases := []struct {
		name string
		req  store.EnqueueRequest
		want int
		code string
	}{
		{
			name: "unknown entity type",
			req:  store.EnqueueRequest{EntityType: "invoice", EntityID: "x", Operation: store.OpCreate},
			want: http.StatusBadRequest,
			code: "UNKNOWN_ENTITY_TYPE",
		},
		{
			name: "schema violation",
			req: store.EnqueueRequest{
				EntityType: store.EntityPack, EntityID: "pack-1", Operation: store.OpCreate,
				Payload: json.RawMessage(`{"status":"EXPLODED"}`),
			},
			want: http.StatusUnprocessableEntity,
			code: "INVALID_PAYLOAD",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, srv, http.MethodPost, "/api/v1/enqueue", tc.req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tc.want, rec.Body.String())
			}
			var errResp struct {
				Code string `json:"code"`
			}
			decodeBody(t, rec, &errResp)
			if errResp.Code != tc.code {
				t.Errorf("code = %q, want %q", errResp.Code, tc.code)
			}
		})
	}
}

func TestTriggerEndpoint(t *testing.T) {
	srv, _, sched := testServer(t)

	// Stopped scheduler refuses the trigger.
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/sync/trigger", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("stopped status = %d, want 409", rec.Code)
	}

	sched.Start()
	defer sched.Stop()
	rec = doRequest(t, srv, http.MethodPost, "/api/v1/sync/trigger", nil)
	if rec.Code != http.StatusAccepted {
		t.Errorf("running status = %d, want 202", rec.Code)
	}
}

func deadLetterOne(t *testing.T, engine *enginepkg.Engine, entityID string) *store.QueueItem {
	t.Helper()
	item, _, err := engine.Store().Enqueue(store.EnqueueRequest{
		EntityType: store.EntityPack,
		EntityID:   entityID,
		Operation:  store.OpCreate,
		Payload:    json.RawMessage(`{"id":"` + entityID + `"}`),
	})
	if err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	if _, err := engine.Store().MarkDeadLettered(item.ID, store.FailureRecord{
		Error: "validation failed", Category: store.CategoryPermanent, AttemptAt: time.Now(),
	}); err != nil {
		t.Fatalf("MarkDeadLettered() error: %v", err)
	}
	return item
}

func TestDeadLetterEndpoints(t *testing.T) {
	srv, engine, _ := testServer(t)
	dead := deadLetterOne(t, engine, "pack-1")

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/deadletter", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rec.Code)
	}
	var list struct {
		Items []store.QueueItem `json:"items"`
		Count int               `json:"count"`
	}
	decodeBody(t, rec, &list)
	if list.Count != 1 || len(list.Items) != 1 {
		t.Fatalf("list = %+v, want one item", list)
	}
	if list.Items[0].ID != dead.ID {
		t.Errorf("listed item = %q, want %q", list.Items[0].ID, dead.ID)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/deadletter/"+dead.ID+"/requeue", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("requeue status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var requeued struct {
		Item store.QueueItem `json:"item"`
	}
	decodeBody(t, rec, &requeued)
	if requeued.Item.ID == dead.ID {
		t.Error("requeue reused the dead row ID")
	}
}

func TestRequeueEndpointErrors(t *testing.T) {
	srv, engine, _ := testServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/deadletter/itm_missing/requeue", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing status = %d, want 404", rec.Code)
	}

	live, _, err := engine.Store().Enqueue(store.EnqueueRequest{
		EntityType: store.EntityPack, EntityID: "pack-live", Operation: store.OpCreate,
		Payload: json.RawMessage(`{"id":"pack-live"}`),
	})
	if err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	rec = doRequest(t, srv, http.MethodPost, "/api/v1/deadletter/"+live.ID+"/requeue", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("live status = %d, want 409", rec.Code)
	}
}

func TestRequeueBulkEndpoint(t *testing.T) {
	srv, engine, _ := testServer(t)
	deadLetterOne(t, engine, "pack-1")
	deadLetterOne(t, engine, "pack-2")

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/deadletter/requeue",
		map[string]string{"entity_type": store.EntityPack})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Requeued int `json:"requeued"`
	}
	decodeBody(t, rec, &resp)
	if resp.Requeued != 2 {
		t.Errorf("requeued = %d, want 2", resp.Requeued)
	}
}

func TestListDeadLetteredEmpty(t *testing.T) {
	srv, _, _ := testServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/api/v1/deadletter", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var list struct {
		Items []store.QueueItem `json:"items"`
		Count int               `json:"count"`
	}
	decodeBody(t, rec, &list)
	if list.Items == nil {
		t.Error("items = null, want empty array")
	}
}
