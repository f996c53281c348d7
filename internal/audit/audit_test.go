package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/opsdash/internal/db"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewStore(database)
}

func TestLogAndGetByID(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	entry := Entry{
		ID:         "test-1",
		ActorID:    "ada@example.com",
		Tenant:     "acme",
		Action:     ActionAgentDefaultSet,
		Target:     "v2",
		Detail:     "previous default v1",
		RemoteAddr: "10.0.0.1",
	}
	if err := store.Log(ctx, entry); err != nil {
		t.Fatalf("Log: %v", err)
	}

	got, err := store.GetByID(ctx, "test-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.ActorID != "ada@example.com" {
		t.Errorf("ActorID = %q, want %q", got.ActorID, "ada@example.com")
	}
	if got.Action != ActionAgentDefaultSet {
		t.Errorf("Action = %q, want %q", got.Action, ActionAgentDefaultSet)
	}
	if got.Target != "v2" {
		t.Errorf("Target = %q, want %q", got.Target, "v2")
	}
	if got.Outcome != OutcomeOK {
		t.Errorf("Outcome = %q, want default %q", got.Outcome, OutcomeOK)
	}
	if got.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
}

func TestGetByIDNotFound(t *testing.T) {
	store := setupStore(t)
	_, err := store.GetByID(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestLogGeneratesUUID(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	if err := store.Log(ctx, Entry{ActorID: "ada", Action: ActionLogin}); err != nil {
		t.Fatalf("Log: %v", err)
	}

	entries, err := store.Query(ctx, QueryFilter{ActorID: "ada"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].ID == "" {
		t.Error("expected generated ID, got empty string")
	}
}

func TestQueryFilters(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	seed := []Entry{
		{ActorID: "ada", Tenant: "acme", Action: ActionLogin},
		{ActorID: "bob", Tenant: "acme", Action: ActionLoginFailed, Outcome: OutcomeFailed},
		{ActorID: "ada", Tenant: "acme", Action: ActionAgentDeleted, Target: "v1"},
		{ActorID: "eve", Tenant: "other", Action: ActionLogin},
	}
	for _, e := range seed {
		if err := store.Log(ctx, e); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}

	tests := []struct {
		name   string
		filter QueryFilter
		want   int
	}{
		{"all", QueryFilter{}, 4},
		{"actor", QueryFilter{ActorID: "ada"}, 2},
		{"tenant", QueryFilter{Tenant: "acme"}, 3},
		{"scoped empty tenant", QueryFilter{ScopeTenant: true}, 0},
		{"action", QueryFilter{Action: ActionLogin}, 2},
		{"outcome", QueryFilter{Outcome: OutcomeFailed}, 1},
		{"limit", QueryFilter{Limit: 2}, 2},
		{"offset", QueryFilter{Limit: 10, Offset: 3}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := store.Query(ctx, tt.filter)
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if len(entries) != tt.want {
				t.Errorf("got %d entries, want %d", len(entries), tt.want)
			}
		})
	}
}

func TestQueryNewestFirst(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i, target := range []string{"v1", "v2", "v3"} {
		if err := store.Log(ctx, Entry{
			ActorID:   "ada",
			Action:    ActionAgentUploaded,
			Target:    target,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}

	since := base.Add(time.Minute)
	entries, err := store.Query(ctx, QueryFilter{Since: &since})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries since %v, got %d", since, len(entries))
	}
	if entries[0].Target != "v3" {
		t.Errorf("first entry = %q, want newest v3", entries[0].Target)
	}
	if !entries[0].Timestamp.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("timestamp = %v", entries[0].Timestamp)
	}
}

func setupRouter(t *testing.T) (*chi.Mux, *Store) {
	t.Helper()
	store := setupStore(t)
	r := chi.NewRouter()
	RegisterRoutes(r, store, func(*http.Request) (string, bool) { return "acme", true })
	return r, store
}

func TestHTTPGetByID(t *testing.T) {
	r, store := setupRouter(t)
	ctx := context.Background()

	if err := store.Log(ctx, Entry{ID: "http-1", ActorID: "ada", Tenant: "acme", Action: ActionLogout}); err != nil {
		t.Fatalf("Log: %v", err)
	}
	if err := store.Log(ctx, Entry{ID: "http-2", ActorID: "eve", Tenant: "other", Action: ActionLogout}); err != nil {
		t.Fatalf("Log: %v", err)
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/audit/http-1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var got Entry
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != "http-1" || got.Action != ActionLogout {
		t.Errorf("got %+v", got)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/audit/http-2", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("other tenant status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHTTPGetByIDNotFound(t *testing.T) {
	r, _ := setupRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/audit/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHTTPQueryScopedToTenant(t *testing.T) {
	r, store := setupRouter(t)
	ctx := context.Background()

	for _, e := range []Entry{
		{ActorID: "ada", Tenant: "acme", Action: ActionLogin},
		{ActorID: "bob", Tenant: "acme", Action: ActionLogin},
		{ActorID: "ada", Tenant: "acme", Action: ActionLogout},
		{ActorID: "eve", Tenant: "other", Action: ActionLogin},
	} {
		if err := store.Log(ctx, e); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/audit", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var entries []Entry
	if err := json.NewDecoder(rec.Body).Decode(&entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("expected 3 acme entries, got %d", len(entries))
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/audit?actor=ada&limit=10", nil))
	entries = nil
	if err := json.NewDecoder(rec.Body).Decode(&entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 entries for ada, got %d", len(entries))
	}
}
