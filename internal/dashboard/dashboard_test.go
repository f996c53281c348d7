package dashboard

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/opsdash/internal/agents"
	"github.com/ziadkadry99/opsdash/internal/apiclient"
	"github.com/ziadkadry99/opsdash/internal/audit"
	"github.com/ziadkadry99/opsdash/internal/db"
	"github.com/ziadkadry99/opsdash/internal/runs"
	"github.com/ziadkadry99/opsdash/internal/session"
	"github.com/ziadkadry99/opsdash/internal/views"
)

// fakeBackend is an in-process stand-in for the platform API.
type fakeBackend struct {
	mu sync.Mutex

	versionsRequireAnon bool // answer 401 to authenticated version listings
	meFailures          int  // answer 503 to this many profile requests
	defaultVersion      string
	versions            []string

	meAuth       []string
	metricsCalls int
	logsCalls    int
	versionCalls []string // "auth" or "anon" per GET /api/agents/versions
	deleted      []string
	uploaded     []string
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("grant_type") != "password" || r.PostForm.Get("password") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			writeBody(w, map[string]string{"detail": "Incorrect username or password"})
			return
		}
		writeBody(w, map[string]string{"access_token": "abc", "token_type": "bearer"})
	})
	mux.HandleFunc("GET /api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.meAuth = append(b.meAuth, r.Header.Get("Authorization"))
		failing := b.meFailures > 0
		if failing {
			b.meFailures--
		}
		b.mu.Unlock()
		if failing {
			w.WriteHeader(http.StatusServiceUnavailable)
			writeBody(w, map[string]string{"detail": "profile service unavailable"})
			return
		}
		writeBody(w, apiclient.Profile{ID: 4, Name: "ada", Email: "ada@example.com", Tenant: "acme"})
	})
	mux.HandleFunc("GET /api/runs", func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, []apiclient.Run{{ID: 1, Name: "r1", Status: "done", Framework: "torch"}})
	})
	mux.HandleFunc("GET /api/runs/1/metrics", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.metricsCalls++
		b.mu.Unlock()
		writeBody(w, map[string]any{"series": []any{map[string]any{
			"name":   r.URL.Query().Get("name"),
			"points": []any{map[string]any{"step": 1, "value": 0.5001}},
		}}})
	})
	mux.HandleFunc("GET /api/runs/1/logs", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.logsCalls++
		b.mu.Unlock()
		writeBody(w, map[string]any{"items": []apiclient.LogEntry{{TS: 0, Level: "INFO", Msg: "started"}}})
	})
	mux.HandleFunc("GET /api/dashboards", func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, []apiclient.Dashboard{})
	})
	mux.HandleFunc("GET /api/agents/versions", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		authed := r.Header.Get("Authorization") != ""
		if authed {
			b.versionCalls = append(b.versionCalls, "auth")
		} else {
			b.versionCalls = append(b.versionCalls, "anon")
		}
		if authed && b.versionsRequireAnon {
			w.WriteHeader(http.StatusUnauthorized)
			writeBody(w, map[string]string{"detail": "Not authenticated"})
			return
		}
		out := make([]apiclient.AgentVersion, 0, len(b.versions))
		for _, v := range b.versions {
			out = append(out, apiclient.AgentVersion{Version: v})
		}
		writeBody(w, out)
	})
	mux.HandleFunc("GET /api/agents/versions/default", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		writeBody(w, map[string]string{"default": b.defaultVersion})
	})
	mux.HandleFunc("POST /api/agents/versions/default", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Version string `json:"version"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		b.mu.Lock()
		defer b.mu.Unlock()
		b.defaultVersion = body.Version
		writeBody(w, map[string]string{"default": body.Version})
	})
	mux.HandleFunc("DELETE /api/agents/versions/{version}", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.deleted = append(b.deleted, r.PathValue("version"))
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /api/agents/versions/upload", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		b.uploaded = append(b.uploaded, r.FormValue("version")+"/"+header.Filename)
		writeBody(w, map[string]string{"status": "ok"})
	})
	return mux
}

func writeBody(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type testEnv struct {
	router   chi.Router
	backend  *fakeBackend
	sessions *session.Store
	audit    *audit.Store
}

func setupTest(t *testing.T, b *fakeBackend) *testEnv {
	t.Helper()

	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	srv := httptest.NewServer(b.handler())
	t.Cleanup(srv.Close)

	renderer, err := views.NewRenderer()
	if err != nil {
		t.Fatalf("parsing templates: %v", err)
	}

	sessions := session.NewStore(database, time.Hour)
	auditStore := audit.NewStore(database)
	d := New(Options{
		Backend:  apiclient.New(srv.URL),
		Sessions: sessions,
		Audit:    auditStore,
		Views: views.Standard(views.Deps{
			Audit:    auditStore,
			Agents:   agents.ChainConfig{PlaceholderVersions: []string{"v0.1", "v0.2"}, PlaceholderDefault: "v0.2"},
			Location: time.UTC,
		}),
		Renderer:       renderer,
		GrafanaURL:     "http://localhost:3000",
		MaxUploadBytes: 1 << 20,
	})

	r := chi.NewRouter()
	d.RegisterRoutes(r)
	d.RegisterStreams(r)
	return &testEnv{router: r, backend: b, sessions: sessions, audit: auditStore}
}

func (e *testEnv) do(req *http.Request, cookie *http.Cookie) *httptest.ResponseRecorder {
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) get(path string, cookie *http.Cookie) *httptest.ResponseRecorder {
	return e.do(httptest.NewRequest(http.MethodGet, path, nil), cookie)
}

func (e *testEnv) postForm(path string, form url.Values, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return e.do(req, cookie)
}

// login signs in and returns the session cookie.
func (e *testEnv) login(t *testing.T) *http.Cookie {
	t.Helper()
	w := e.postForm("/login", url.Values{"email": {"ada@example.com"}, "password": {"secret"}}, nil)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("login: expected 303, got %d: %s", w.Code, w.Body.String())
	}
	for _, c := range w.Result().Cookies() {
		if c.Name == DefaultCookieName && c.Value != "" {
			return c
		}
	}
	t.Fatalf("login: no session cookie set")
	return nil
}

func TestViewsRequireSession(t *testing.T) {
	env := setupTest(t, &fakeBackend{})

	for _, path := range []string{"/", "/views/dashboard", "/views/training", "/views/nope", "/api/audit", "/ws/runs/1/logs"} {
		w := env.get(path, nil)
		assert.Equal(t, http.StatusSeeOther, w.Code, path)
		assert.Equal(t, "/login", w.Header().Get("Location"), path)
	}

	w := env.get("/views/dashboard", &http.Cookie{Name: DefaultCookieName, Value: "bogus"})
	assert.Equal(t, http.StatusSeeOther, w.Code)
}

func TestLoginStoresTokenAndProfile(t *testing.T) {
	env := setupTest(t, &fakeBackend{})
	cookie := env.login(t)

	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)

	st, err := env.sessions.Load(t.Context(), cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, "abc", st.Token)
	require.NotNil(t, st.User)
	assert.Equal(t, "ada", st.User.Name)
	assert.Equal(t, []string{"Bearer abc"}, env.backend.meAuth)

	entries, err := env.audit.Query(t.Context(), audit.QueryFilter{Action: audit.ActionLogin})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ada@example.com", entries[0].ActorID)
	assert.Equal(t, "acme", entries[0].Tenant)
}

func TestLoginFailure(t *testing.T) {
	env := setupTest(t, &fakeBackend{})

	w := env.postForm("/login", url.Values{"email": {"ada@example.com"}, "password": {"wrong"}}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), loginFailedMessage)
	assert.Empty(t, w.Result().Cookies())

	entries, err := env.audit.Query(t.Context(), audit.QueryFilter{Action: audit.ActionLoginFailed})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.OutcomeFailed, entries[0].Outcome)

	w = env.postForm("/login", url.Values{"email": {"ada@example.com"}}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginPageRedirectsWhenSignedIn(t *testing.T) {
	env := setupTest(t, &fakeBackend{})

	w := env.get("/login", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `action="/login"`)

	cookie := env.login(t)
	w = env.get("/login", cookie)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
}

func TestLogoutClearsSession(t *testing.T) {
	env := setupTest(t, &fakeBackend{})
	cookie := env.login(t)

	w := env.do(httptest.NewRequest(http.MethodPost, "/logout", nil), cookie)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))

	_, err := env.sessions.Load(t.Context(), cookie.Value)
	assert.ErrorIs(t, err, session.ErrNotFound)

	w = env.get("/views/dashboard", cookie)
	assert.Equal(t, http.StatusSeeOther, w.Code)
}

func TestRootRedirectsToDashboard(t *testing.T) {
	env := setupTest(t, &fakeBackend{})
	cookie := env.login(t)

	w := env.get("/?grafana=http://g:3000", cookie)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/views/dashboard?grafana=http%3A%2F%2Fg%3A3000", w.Header().Get("Location"))
}

func TestUnknownViewIs404InLayout(t *testing.T) {
	env := setupTest(t, &fakeBackend{})
	cookie := env.login(t)

	w := env.get("/views/nope", cookie)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `There is no view named "nope"`)
	assert.NotContains(t, w.Body.String(), `aria-current="page"`)
}

func TestTrainingRunTableAndDetail(t *testing.T) {
	env := setupTest(t, &fakeBackend{})
	cookie := env.login(t)

	w := env.get("/views/training", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Equal(t, 1, strings.Count(body, `<tr data-run=`))
	for _, cell := range []string{"<td>1</td>", "<td>r1</td>", "<td>done</td>", "<td>torch</td>"} {
		assert.Contains(t, body, cell)
	}
	assert.Zero(t, env.backend.metricsCalls)

	w = env.get("/views/training?run=1", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	body = w.Body.String()
	assert.Contains(t, body, "(1, 0.500)")
	assert.Contains(t, body, "[00:00:00] INFO: started")
	assert.Equal(t, 1, env.backend.metricsCalls)
	assert.Equal(t, 1, env.backend.logsCalls)
}

func TestAgentVersions401RetriesAnonymouslyOnce(t *testing.T) {
	env := setupTest(t, &fakeBackend{versionsRequireAnon: true, versions: []string{"1.0.0"}, defaultVersion: "1.0.0"})
	cookie := env.login(t)

	w := env.get("/views/agents?tab=versions", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"auth", "anon"}, env.backend.versionCalls)
	assert.Contains(t, w.Body.String(), `data-version="1.0.0"`)
	assert.Contains(t, w.Body.String(), "primary-anonymous")
}

func TestSetDefaultMarksVersionOnce(t *testing.T) {
	env := setupTest(t, &fakeBackend{versions: []string{"1.0.0", "1.1.0", "1.1.0"}, defaultVersion: "1.0.0"})
	cookie := env.login(t)

	w := env.postForm("/views/agents/default", url.Values{"version": {"1.1.0"}}, cookie)
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/views/agents?tab=versions", w.Header().Get("Location"))

	w = env.get(w.Header().Get("Location"), cookie)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Equal(t, 1, strings.Count(body, `class="row-default"`))
	assert.Equal(t, 1, strings.Count(body, `data-version="1.1.0"`))
	assert.Contains(t, body, "Default agent version set to 1.1.0")

	// The flash is shown once.
	w = env.get("/views/agents?tab=versions", cookie)
	assert.NotContains(t, w.Body.String(), "Default agent version set to")

	entries, err := env.audit.Query(t.Context(), audit.QueryFilter{Action: audit.ActionAgentDefaultSet})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "1.1.0", entries[0].Target)
}

func TestSetDefaultKeepsGrafanaOverride(t *testing.T) {
	env := setupTest(t, &fakeBackend{versions: []string{"1.0.0"}})
	cookie := env.login(t)

	w := env.postForm("/views/agents/default", url.Values{"version": {"1.0.0"}, "grafana": {"http://g:3000"}}, cookie)
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/views/agents?grafana=http%3A%2F%2Fg%3A3000&tab=versions", w.Header().Get("Location"))
}

func TestDeleteVersion(t *testing.T) {
	env := setupTest(t, &fakeBackend{versions: []string{"1.0.0"}})
	cookie := env.login(t)

	w := env.get("/views/agents/versions/1.0.0/delete", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Uninstall 1.0.0?")
	assert.Empty(t, env.backend.deleted)

	w = env.do(httptest.NewRequest(http.MethodPost, "/views/agents/versions/1.0.0/delete", nil), cookie)
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, []string{"1.0.0"}, env.backend.deleted)

	entries, err := env.audit.Query(t.Context(), audit.QueryFilter{Action: audit.ActionAgentDeleted})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.OutcomeOK, entries[0].Outcome)
}

func zipWith(t *testing.T, names ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		f, err := zw.Create(name)
		require.NoError(t, err)
		_, err = io.WriteString(f, "print('hi')\n")
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func uploadRequest(t *testing.T, version, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("version", version))
	if content != nil {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/views/agents/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadForwardsValidArchive(t *testing.T) {
	env := setupTest(t, &fakeBackend{})
	cookie := env.login(t)

	w := env.do(uploadRequest(t, "2.0.0", "agent-2.0.0.zip", zipWith(t, "bundle/agent.py", "bundle/agent.yaml")), cookie)
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, []string{"2.0.0/agent-2.0.0.zip"}, env.backend.uploaded)

	w = env.get("/views/agents?tab=versions", cookie)
	assert.Contains(t, w.Body.String(), "Agent version 2.0.0 uploaded")
}

func TestUploadRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		version string
		content []byte
		want    string
	}{
		{"no version", "", nil, agents.ErrNoVersion.Error()},
		{"no file", "2.0.0", nil, agents.ErrNoFile.Error()},
		{"not a zip", "2.0.0", []byte("plain text"), agents.ErrNotZip.Error()},
		{"no agent.py", "2.0.0", nil, agents.ErrNoAgentEntry.Error()},
		{"too large", "2.0.0", bytes.Repeat([]byte("x"), 3<<20), agents.ErrTooLarge.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTest(t, &fakeBackend{})
			cookie := env.login(t)

			content := tt.content
			if tt.name == "no agent.py" {
				content = zipWith(t, "README.md")
			}
			w := env.do(uploadRequest(t, tt.version, "bundle.zip", content), cookie)
			require.Equal(t, http.StatusSeeOther, w.Code)
			assert.Empty(t, env.backend.uploaded)

			w = env.get("/views/agents?tab=versions", cookie)
			assert.Contains(t, w.Body.String(), "Upload failed: "+tt.want)

			entries, err := env.audit.Query(t.Context(), audit.QueryFilter{Action: audit.ActionAgentUploaded})
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, audit.OutcomeFailed, entries[0].Outcome)
		})
	}
}

func TestAuditRoutesAreTenantScoped(t *testing.T) {
	env := setupTest(t, &fakeBackend{})
	cookie := env.login(t)
	require.NoError(t, env.audit.Log(t.Context(), audit.Entry{ActorID: "eve", Tenant: "other", Action: audit.ActionLogin}))

	w := env.get("/api/audit", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	var entries []audit.Entry
	require.NoError(t, json.NewDecoder(w.Body).Decode(&entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "ada@example.com", entries[0].ActorID)
}

func TestFollowLogsRejectsBadRunID(t *testing.T) {
	env := setupTest(t, &fakeBackend{})
	cookie := env.login(t)

	w := env.get("/ws/runs/abc/logs", cookie)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProfileFetchedWhenMissing(t *testing.T) {
	env := setupTest(t, &fakeBackend{meFailures: 1})
	cookie := env.login(t)
	require.Len(t, env.backend.meAuth, 1)

	w := env.get("/views/dashboard", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), ">A</summary>")

	env.get("/views/training", cookie)
	env.get("/views/settings", cookie)
	assert.Equal(t, []string{"Bearer abc", "Bearer abc"}, env.backend.meAuth)
}

func TestAuditRoutesForbiddenWithoutProfile(t *testing.T) {
	env := setupTest(t, &fakeBackend{meFailures: 100})
	cookie := env.login(t)
	require.NoError(t, env.audit.Log(t.Context(), audit.Entry{
		ID: "globex-1", ActorID: "bob@globex.com", Tenant: "globex", Action: audit.ActionAgentDeleted, Target: "v9",
	}))

	w := env.get("/api/audit", cookie)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.NotContains(t, w.Body.String(), "globex")

	w = env.get("/api/audit/globex-1", cookie)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestFollowLogsResumesAfterRenderedEntries(t *testing.T) {
	env := setupTest(t, &fakeBackend{})
	cookie := env.login(t)
	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	dial := func(from string) *websocket.Conn {
		header := http.Header{"Cookie": {cookie.String()}}
		conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/runs/1/logs?from="+from, header)
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })
		return conn
	}

	var msg runs.FollowMessage
	fresh := dial("0")
	require.NoError(t, fresh.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, fresh.ReadJSON(&msg))
	assert.True(t, strings.HasSuffix(msg.Line, "INFO: started"), msg.Line)

	resumed := dial("1")
	require.NoError(t, resumed.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	assert.Error(t, resumed.ReadJSON(&msg), "the rendered entry was sent again")
}
