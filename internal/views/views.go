// Package views renders the dashboard's pages.
//
// Every page is a named view in a Registry. A view's render function gets
// the caller's session and a backend client and returns the page to show;
// errors are rendered inside the layout and never affect other views.
package views

import (
	"context"
	"net/url"

	"github.com/ziadkadry99/opsdash/internal/apiclient"
	"github.com/ziadkadry99/opsdash/internal/grafana"
	"github.com/ziadkadry99/opsdash/internal/session"
)

// Request carries what a view needs to render.
type Request struct {
	Session *session.State
	Client  *apiclient.Client // authenticated with the session token
	Query   url.Values

	// GrafanaBase is the resolved Grafana origin for embedded panels.
	GrafanaBase string
	// GrafanaOverride is the validated ?grafana= value, "" when absent.
	GrafanaOverride string
}

// Page is a rendered view model.
type Page struct {
	Template string // page template name without extension
	Title    string
	Data     any
}

// RenderFunc builds the page of a view.
type RenderFunc func(ctx context.Context, req *Request) (*Page, error)

// View is one entry of the navigation.
type View struct {
	Name   string
	Title  string
	Group  string // navigation section, "" for top level
	Render RenderFunc
}

// NavItem is a navigation link.
type NavItem struct {
	Name   string
	Title  string
	Group  string
	URL    string
	Active bool
}

// Registry maps view names to views and keeps navigation order.
type Registry struct {
	views map[string]View
	order []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{views: make(map[string]View)}
}

// Register adds a view. Registering a name twice replaces the view but
// keeps its navigation position.
func (r *Registry) Register(v View) {
	if _, ok := r.views[v.Name]; !ok {
		r.order = append(r.order, v.Name)
	}
	r.views[v.Name] = v
}

// Lookup returns the view registered under name.
func (r *Registry) Lookup(name string) (View, bool) {
	v, ok := r.views[name]
	return v, ok
}

// Names returns view names in navigation order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Nav returns the navigation with exactly the current view marked active.
// A Grafana override is carried on every link.
func (r *Registry) Nav(current, grafanaOverride string) []NavItem {
	items := make([]NavItem, 0, len(r.order))
	for _, name := range r.order {
		v := r.views[name]
		items = append(items, NavItem{
			Name:   v.Name,
			Title:  v.Title,
			Group:  v.Group,
			URL:    ViewURL(v.Name, grafanaOverride),
			Active: v.Name == current,
		})
	}
	return items
}

// ViewURL is the path of a view, with the Grafana override when set.
func ViewURL(name, grafanaOverride string, extra ...string) string {
	q := url.Values{}
	if grafanaOverride != "" {
		q.Set(grafana.QueryParam, grafanaOverride)
	}
	for i := 0; i+1 < len(extra); i += 2 {
		q.Set(extra[i], extra[i+1])
	}
	u := "/views/" + url.PathEscape(name)
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}
