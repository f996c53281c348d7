package views

import (
	"context"
	"fmt"
	"html/template"
	"net/url"
	"strconv"
	"time"

	"github.com/ziadkadry99/opsdash/internal/agents"
	"github.com/ziadkadry99/opsdash/internal/apiclient"
	"github.com/ziadkadry99/opsdash/internal/audit"
	"github.com/ziadkadry99/opsdash/internal/grafana"
	"github.com/ziadkadry99/opsdash/internal/runs"
)

// Deps are the collaborators of the standard views.
type Deps struct {
	Audit        *audit.Store
	Agents       agents.ChainConfig
	NetronURL    string
	InstallBase  string
	InstallToken string
	Location     *time.Location // log timestamps, time.Local when nil
}

// Navigation groups.
const (
	GroupOverview = ""
	GroupAPM      = "APM"
	GroupAdmin    = "Admin"
)

// DefaultView is where "/" lands.
const DefaultView = "dashboard"

// Standard returns the registry with every dashboard view.
func Standard(d Deps) *Registry {
	r := NewRegistry()
	r.Register(View{Name: "dashboard", Title: "Dashboard", Render: d.dashboard})
	r.Register(View{Name: "training", Title: "Training runs", Render: d.training})
	r.Register(View{Name: "model", Title: "Model viewer", Render: d.model})
	r.Register(View{Name: "events", Title: "Events", Render: info("Events", "Cluster and job events will be listed here once the event feed is connected.")})
	r.Register(View{Name: "nodes", Title: "Nodes", Render: info("Nodes", "Node inventory and health come from the node exporter; see the Dashboard view for live panels.")})
	r.Register(View{Name: "agents", Title: "Agents", Render: d.agents})
	r.Register(View{Name: "alerts", Title: "Alerts", Render: info("Alerts", "Alert rules are managed in Grafana. Firing alerts will be listed here.")})
	r.Register(View{Name: "apm-overview", Title: "Overview", Group: GroupAPM, Render: apmOverview})
	r.Register(View{Name: "apm-metrics", Title: "Metrics", Group: GroupAPM, Render: panels("APM / Metrics", grafana.APMMetricsPanels)})
	r.Register(View{Name: "apm-traces", Title: "Traces", Group: GroupAPM, Render: panels("APM / Traces", grafana.APMTracesPanels)})
	r.Register(View{Name: "apm-logs", Title: "Logs", Group: GroupAPM, Render: panels("APM / Logs", grafana.APMLogsPanels)})
	r.Register(View{Name: "tenants", Title: "Tenants", Group: GroupAdmin, Render: tenants})
	r.Register(View{Name: "settings", Title: "Settings", Group: GroupAdmin, Render: d.settings})
	return r
}

type dashboardPage struct {
	Panels        []grafana.Panel
	Dashboards    []apiclient.Dashboard
	DashboardsErr *ErrorPanel
}

func (d Deps) dashboard(ctx context.Context, req *Request) (*Page, error) {
	p := dashboardPage{Panels: grafana.DashboardPanels(req.GrafanaBase)}
	list, err := req.Client.Dashboards(ctx)
	p.Dashboards, p.DashboardsErr = list, NewErrorPanel(err)
	return &Page{Template: "dashboard", Title: "Dashboard", Data: p}, nil
}

// RunDetail is the metrics and logs section of the training view.
type RunDetail struct {
	RunID      int
	Metric     string
	By         string
	LogQuery   string
	Series     []SeriesText
	MetricsErr *ErrorPanel
	Logs       []string
	LogsErr    *ErrorPanel
	FollowURL  string
}

// SeriesText is a metric series rendered as coordinate text.
type SeriesText struct {
	Name   string
	Points string
	Count  int
}

type trainingPage struct {
	Runs      []apiclient.Run
	RunsErr   *ErrorPanel
	Detail    *RunDetail
	DetailErr *ErrorPanel
}

func (d Deps) training(ctx context.Context, req *Request) (*Page, error) {
	var p trainingPage
	list, err := req.Client.ListRuns(ctx)
	p.Runs, p.RunsErr = list, NewErrorPanel(err)

	if raw := req.Query.Get("run"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil || id <= 0 {
			p.DetailErr = &ErrorPanel{Title: "Invalid run", Message: fmt.Sprintf("%q is not a run id", raw)}
		} else {
			p.Detail = d.runDetail(ctx, req, id)
		}
	}
	return &Page{Template: "training", Title: "Training runs", Data: p}, nil
}

func (d Deps) runDetail(ctx context.Context, req *Request, id int) *RunDetail {
	detail := runs.LoadDetail(ctx, req.Client, runs.Query{
		RunID:  id,
		Metric: req.Query.Get("metric"),
		By:     req.Query.Get("by"),
		Logs:   req.Query.Get("q"),
	})

	out := &RunDetail{
		RunID:      id,
		Metric:     detail.Query.Metric,
		By:         detail.Query.By,
		LogQuery:   detail.Query.Logs,
		MetricsErr: NewErrorPanel(detail.MetricsErr),
		LogsErr:    NewErrorPanel(detail.LogsErr),
		Logs:       runs.FormatLogs(detail.Logs, d.Location),
	}
	// The follower resumes after the entries rendered here.
	follow := url.Values{"from": {strconv.Itoa(len(detail.Logs))}}
	if detail.Query.Logs != "" {
		follow.Set("q", detail.Query.Logs)
	}
	out.FollowURL = fmt.Sprintf("/ws/runs/%d/logs?%s", id, follow.Encode())
	for _, s := range detail.Series {
		out.Series = append(out.Series, SeriesText{Name: s.Name, Points: runs.FormatPoints(s.Points), Count: len(s.Points)})
	}
	return out
}

type modelPage struct {
	NetronURL string
}

func (d Deps) model(context.Context, *Request) (*Page, error) {
	return &Page{Template: "model", Title: "Model viewer", Data: modelPage{NetronURL: d.NetronURL}}, nil
}

type infoPage struct {
	Heading string
	Text    string
}

func info(heading, text string) RenderFunc {
	return func(context.Context, *Request) (*Page, error) {
		return &Page{Template: "info", Title: heading, Data: infoPage{Heading: heading, Text: text}}, nil
	}
}

// Agent view tabs.
const (
	TabOverview = "overview"
	TabVersions = "versions"
)

type agentsPage struct {
	Tab      string
	Overview template.HTML
	Rows     []agents.Row
	Source   agents.Source
	Fallback bool
}

func (d Deps) agents(ctx context.Context, req *Request) (*Page, error) {
	p := agentsPage{Tab: TabOverview}
	if req.Query.Get("tab") == TabVersions {
		p.Tab = TabVersions
	}

	if p.Tab == TabOverview {
		html, err := agents.Overview(d.InstallBase, d.InstallToken)
		if err != nil {
			return nil, err
		}
		p.Overview = html
		return &Page{Template: "agents", Title: "Agents", Data: p}, nil
	}

	listing, _, err := agents.NewChain(req.Client, d.Agents).Resolve(ctx)
	if err != nil {
		return nil, err
	}
	p.Rows = agents.Rows(listing)
	p.Source = listing.Source
	p.Fallback = listing.Source != agents.SourcePrimary
	return &Page{Template: "agents", Title: "Agents", Data: p}, nil
}

type panelsPage struct {
	Heading string
	Intro   bool
	Panels  []grafana.Panel
}

func panels(heading string, build func(base string) []grafana.Panel) RenderFunc {
	return func(_ context.Context, req *Request) (*Page, error) {
		return &Page{Template: "panels", Title: heading, Data: panelsPage{Heading: heading, Panels: build(req.GrafanaBase)}}, nil
	}
}

func apmOverview(_ context.Context, req *Request) (*Page, error) {
	return &Page{Template: "panels", Title: "APM / Overview", Data: panelsPage{
		Heading: "APM / Overview",
		Intro:   true,
		Panels:  grafana.APMOverviewPanels(req.GrafanaBase),
	}}, nil
}

type tenantsPage struct {
	Tenant string
}

func tenants(_ context.Context, req *Request) (*Page, error) {
	var p tenantsPage
	if req.Session != nil && req.Session.User != nil {
		p.Tenant = req.Session.User.Tenant
	}
	return &Page{Template: "tenants", Title: "Tenants", Data: p}, nil
}

// settingsAuditLimit is how many of the user's audit entries settings shows.
const settingsAuditLimit = 20

type settingsPage struct {
	User      *apiclient.Profile
	ExpiresAt time.Time
	Entries   []audit.Entry
	AuditErr  *ErrorPanel
}

func (d Deps) settings(ctx context.Context, req *Request) (*Page, error) {
	p := settingsPage{}
	if req.Session != nil {
		p.User = req.Session.User
		p.ExpiresAt = req.Session.ExpiresAt
	}
	if d.Audit != nil {
		filter := audit.QueryFilter{ActorID: ActorID(p.User), Limit: settingsAuditLimit}
		if p.User != nil {
			filter.Tenant, filter.ScopeTenant = p.User.Tenant, true
		}
		entries, err := d.Audit.Query(ctx, filter)
		p.Entries, p.AuditErr = entries, NewErrorPanel(err)
	}
	return &Page{Template: "settings", Title: "Settings", Data: p}, nil
}

// ActorID identifies a user in the audit trail.
func ActorID(p *apiclient.Profile) string {
	switch {
	case p == nil:
		return "unknown"
	case p.Email != "":
		return p.Email
	case p.Name != "":
		return p.Name
	default:
		return strconv.Itoa(p.ID)
	}
}
