package dashboard

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ziadkadry99/opsdash/internal/apiclient"
	"github.com/ziadkadry99/opsdash/internal/audit"
	"github.com/ziadkadry99/opsdash/internal/session"
	"github.com/ziadkadry99/opsdash/internal/views"
)

const (
	loginFailedMessage  = "Login failed, please try again"
	loginMissingMessage = "Email and password are required"
)

// RequireSession redirects to /login unless the request carries a session
// with a cached token. A missing profile is fetched and cached.
func (d *Dashboard) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st := d.loadSession(r)
		if !st.Authenticated() {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		if st.User == nil {
			d.fetchProfile(r.Context(), st)
		}
		next.ServeHTTP(w, r.WithContext(withState(r.Context(), st)))
	})
}

// fetchProfile loads the caller's profile and caches it in the session.
// Failures are logged and leave st.User nil.
func (d *Dashboard) fetchProfile(ctx context.Context, st *session.State) {
	profile, err := d.backend.WithToken(st.Token).Me(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("fetching profile")
		return
	}
	if err := d.sessions.SetUser(ctx, st.ID, profile); err != nil {
		log.Warn().Err(err).Msg("storing profile")
		return
	}
	st.User = profile
}

func (d *Dashboard) loadSession(r *http.Request) *session.State {
	c, err := r.Cookie(d.cookieName)
	if err != nil || c.Value == "" {
		return nil
	}
	st, err := d.sessions.Load(r.Context(), c.Value)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			log.Warn().Err(err).Msg("loading session")
		}
		return nil
	}
	return st
}

func (d *Dashboard) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if d.loadSession(r).Authenticated() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	d.renderer.RenderLogin(w, http.StatusOK, views.LoginData{})
}

func (d *Dashboard) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	email := strings.TrimSpace(r.PostFormValue("email"))
	password := r.PostFormValue("password")
	if email == "" || password == "" {
		d.renderer.RenderLogin(w, http.StatusBadRequest, views.LoginData{Email: email, Error: loginMissingMessage})
		return
	}

	token, err := d.backend.Login(ctx, email, password)
	if err != nil {
		log.Info().Err(err).Str("email", email).Msg("login failed")
		d.record(r, audit.Entry{ActorID: email, Action: audit.ActionLoginFailed, Outcome: audit.OutcomeFailed, Detail: err.Error()})
		d.renderer.RenderLogin(w, http.StatusUnauthorized, views.LoginData{Email: email, Error: loginFailedMessage})
		return
	}

	// A successful login always starts a fresh session.
	if old := d.loadSession(r); old != nil {
		if err := d.sessions.Clear(ctx, old.ID); err != nil {
			log.Warn().Err(err).Msg("clearing previous session")
		}
	}
	st, err := d.sessions.Create(ctx)
	if err == nil {
		err = d.sessions.SetToken(ctx, st.ID, token)
	}
	if err != nil {
		log.Error().Err(err).Msg("storing session")
		d.renderer.RenderLogin(w, http.StatusInternalServerError, views.LoginData{Email: email, Error: loginFailedMessage})
		return
	}

	st.Token = token
	d.fetchProfile(ctx, st)

	d.record(r, audit.Entry{ActorID: actor(st.User, email), Tenant: tenantOfProfile(st.User), Action: audit.ActionLogin})
	log.Info().Str("actor", actor(st.User, email)).Msg("user logged in")

	http.SetCookie(w, session.Cookie(d.cookieName, st, d.secure))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (d *Dashboard) handleLogout(w http.ResponseWriter, r *http.Request) {
	if st := d.loadSession(r); st != nil {
		if err := d.sessions.Clear(r.Context(), st.ID); err != nil {
			log.Warn().Err(err).Msg("clearing session")
		}
		if st.Authenticated() {
			d.record(r, audit.Entry{ActorID: actor(st.User, ""), Tenant: tenantOfProfile(st.User), Action: audit.ActionLogout})
		}
	}
	http.SetCookie(w, session.ExpiredCookie(d.cookieName, d.secure))
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// record writes an audit entry. Failures are logged, never surfaced.
func (d *Dashboard) record(r *http.Request, e audit.Entry) {
	if d.audit == nil {
		return
	}
	e.RemoteAddr = r.RemoteAddr
	if err := d.audit.Log(r.Context(), e); err != nil {
		log.Warn().Err(err).Str("action", string(e.Action)).Msg("writing audit entry")
	}
}

func actor(p *apiclient.Profile, fallback string) string {
	if p == nil && fallback != "" {
		return fallback
	}
	return views.ActorID(p)
}

func tenantOfProfile(p *apiclient.Profile) string {
	if p == nil {
		return ""
	}
	return p.Tenant
}

// tenantOf scopes the audit routes. Without a cached profile the tenant
// is unknown.
func tenantOf(r *http.Request) (string, bool) {
	st := StateFrom(r.Context())
	if st == nil || st.User == nil {
		return "", false
	}
	return st.User.Tenant, true
}
