// Package dashboard serves the operations dashboard: the login gate, the
// views and the agent version mutations.
package dashboard

import (
	"context"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/opsdash/internal/apiclient"
	"github.com/ziadkadry99/opsdash/internal/audit"
	"github.com/ziadkadry99/opsdash/internal/runs"
	"github.com/ziadkadry99/opsdash/internal/session"
	"github.com/ziadkadry99/opsdash/internal/views"
)

// DefaultCookieName is used when Options.CookieName is empty.
const DefaultCookieName = "opsdash_session"

// Options configures a Dashboard.
type Options struct {
	Backend  *apiclient.Client // unauthenticated client for the primary backend
	Sessions *session.Store
	Audit    *audit.Store // optional
	Views    *views.Registry
	Renderer *views.Renderer
	Follower *runs.Follower

	GrafanaURL     string
	CookieName     string
	SecureCookie   bool
	MaxUploadBytes int64
}

// Dashboard provides the server-rendered dashboard.
type Dashboard struct {
	backend    *apiclient.Client
	sessions   *session.Store
	audit      *audit.Store
	views      *views.Registry
	renderer   *views.Renderer
	follower   *runs.Follower
	grafanaURL string
	cookieName string
	secure     bool
	maxUpload  int64
}

// New creates a new Dashboard.
func New(opts Options) *Dashboard {
	d := &Dashboard{
		backend:    opts.Backend,
		sessions:   opts.Sessions,
		audit:      opts.Audit,
		views:      opts.Views,
		renderer:   opts.Renderer,
		follower:   opts.Follower,
		grafanaURL: opts.GrafanaURL,
		cookieName: opts.CookieName,
		secure:     opts.SecureCookie,
		maxUpload:  opts.MaxUploadBytes,
	}
	if d.cookieName == "" {
		d.cookieName = DefaultCookieName
	}
	if d.follower == nil {
		d.follower = &runs.Follower{}
	}
	return d
}

// RegisterRoutes mounts the page, form and audit routes onto the given router.
func (d *Dashboard) RegisterRoutes(r chi.Router) {
	r.Get("/login", d.handleLoginPage)
	r.Post("/login", d.handleLogin)
	r.Post("/logout", d.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(d.RequireSession)
		r.Get("/", d.handleRoot)
		r.Get("/views/{name}", d.handleView)
		r.Post("/views/agents/default", d.handleSetDefault)
		r.Post("/views/agents/upload", d.handleUpload)
		r.Get("/views/agents/versions/{version}/delete", d.handleConfirmDelete)
		r.Post("/views/agents/versions/{version}/delete", d.handleDelete)
		if d.audit != nil {
			audit.RegisterRoutes(r, d.audit, tenantOf)
		}
	})
}

// RegisterStreams mounts the long-lived websocket routes. They must not sit
// behind a request timeout.
func (d *Dashboard) RegisterStreams(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(d.RequireSession)
		r.Get("/ws/runs/{id}/logs", d.handleFollowLogs)
	})
}

type ctxKey struct{}

func withState(ctx context.Context, st *session.State) context.Context {
	return context.WithValue(ctx, ctxKey{}, st)
}

// StateFrom returns the session attached by RequireSession.
func StateFrom(ctx context.Context) *session.State {
	st, _ := ctx.Value(ctxKey{}).(*session.State)
	return st
}
