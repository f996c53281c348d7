package dashboard

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/ziadkadry99/opsdash/internal/grafana"
	"github.com/ziadkadry99/opsdash/internal/metrics"
	"github.com/ziadkadry99/opsdash/internal/session"
	"github.com/ziadkadry99/opsdash/internal/views"
)

func (d *Dashboard) handleRoot(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, views.ViewURL(views.DefaultView, grafana.Override(r.URL.Query())), http.StatusFound)
}

func (d *Dashboard) handleView(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	st := StateFrom(r.Context())
	data := d.layout(r, st, name)

	view, ok := d.views.Lookup(name)
	if !ok {
		metrics.ViewRendersTotal.WithLabelValues("unknown", "not_found").Inc()
		data.Title = "Not found"
		d.renderer.Render(w, http.StatusNotFound, "notfound", data)
		return
	}

	req := &views.Request{
		Session:         st,
		Client:          d.backend.WithToken(st.Token),
		Query:           r.URL.Query(),
		GrafanaBase:     grafana.ResolveBase(data.GrafanaOverride, d.grafanaURL),
		GrafanaOverride: data.GrafanaOverride,
	}
	page, err := view.Render(r.Context(), req)
	if err != nil {
		metrics.ViewRendersTotal.WithLabelValues(name, "error").Inc()
		log.Warn().Err(err).Str("view", name).Msg("rendering view")
		data.Title = view.Title
		data.Error = views.NewErrorPanel(err)
		d.renderer.Render(w, http.StatusOK, "error", data)
		return
	}

	metrics.ViewRendersTotal.WithLabelValues(name, "ok").Inc()
	data.Title = page.Title
	data.Page = page.Data
	d.renderer.Render(w, http.StatusOK, page.Template, data)
}

// layout builds the chrome around a page and consumes the pending flash.
func (d *Dashboard) layout(r *http.Request, st *session.State, current string) views.LayoutData {
	override := grafana.Override(r.URL.Query())
	data := views.LayoutData{
		ViewName:        current,
		Nav:             d.views.Nav(current, override),
		GrafanaOverride: override,
		Initials:        views.Initials(nil),
	}
	if st == nil {
		return data
	}
	data.User = st.User
	data.Initials = views.Initials(st.User)
	flash, err := d.sessions.PopFlash(r.Context(), st.ID)
	if err != nil {
		log.Warn().Err(err).Msg("reading flash")
	}
	data.Flash = flash
	return data
}

func (d *Dashboard) setFlash(r *http.Request, st *session.State, kind, message string) {
	if err := d.sessions.SetFlash(r.Context(), st.ID, session.Flash{Kind: kind, Message: message}); err != nil {
		log.Warn().Err(err).Msg("storing flash")
	}
}
