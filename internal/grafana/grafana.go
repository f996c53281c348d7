// Package grafana builds the embedded Grafana panel URLs.
package grafana

import (
	"net/url"
	"strings"
)

// QueryParam is the page query parameter that overrides the Grafana base URL.
const QueryParam = "grafana"

// Fixed Grafana paths.
const (
	NodeExporterDashboard    = "/d/000000012/node-exporter-full?orgId=1&refresh=10s"
	NodeExporterAPMDashboard = "/d/rYdddlPWk/node-exporter-full?orgId=1&refresh=10s"
	Explore                  = "/explore?orgId=1"
	ExploreEmptyPanes        = "/explore?orgId=1&schemaVersion=1&panes=%7B%7D"
	TempoLastHour            = "/explore?orgId=1&left=%5B%22now-1h%22,%22now%22,%22Tempo%22,%7B%7D%5D"
	LokiLastHour             = "/explore?orgId=1&left=%5B%22now-1h%22,%22now%22,%22Loki%22,%7B%7D%5D"
	TempoLastSixHours        = "/explore?orgId=1&left=%5B%22now-6h%22,%22now%22,%22Tempo%22,%7B%7D%5D"
	LokiLastSixHours         = "/explore?orgId=1&left=%5B%22now-6h%22,%22now%22,%22Loki%22,%7B%7D%5D"
)

// Panel is one embedded iframe.
type Panel struct {
	Title string
	URL   string
}

// ResolveBase returns override when it is an absolute http(s) URL and
// fallback otherwise. The trailing slash is trimmed.
func ResolveBase(override, fallback string) string {
	if valid(override) {
		return strings.TrimRight(override, "/")
	}
	return strings.TrimRight(fallback, "/")
}

// Override returns the validated override from the page query, "" if absent or invalid.
func Override(q url.Values) string {
	if v := q.Get(QueryParam); valid(v) {
		return strings.TrimRight(v, "/")
	}
	return ""
}

func valid(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func panel(title, base, path string) Panel {
	return Panel{Title: title, URL: base + path}
}

// DashboardPanels are the two panels of the landing view.
func DashboardPanels(base string) []Panel {
	return []Panel{
		panel("Node exporter", base, NodeExporterDashboard),
		panel("Explore", base, Explore),
	}
}

// APMOverviewPanels are the metrics, traces and logs previews.
func APMOverviewPanels(base string) []Panel {
	return []Panel{
		panel("Metrics", base, NodeExporterAPMDashboard),
		panel("Traces (Tempo)", base, TempoLastHour),
		panel("Logs (Loki)", base, LokiLastHour),
	}
}

// APMMetricsPanels embed the node exporter dashboard and an empty explore pane.
func APMMetricsPanels(base string) []Panel {
	return []Panel{
		panel("Node exporter", base, NodeExporterDashboard),
		panel("Explore", base, ExploreEmptyPanes),
	}
}

// APMTracesPanels embed Tempo explore over the last six hours.
func APMTracesPanels(base string) []Panel {
	return []Panel{panel("Traces (Tempo)", base, TempoLastSixHours)}
}

// APMLogsPanels embed Loki explore over the last six hours.
func APMLogsPanels(base string) []Panel {
	return []Panel{panel("Logs (Loki)", base, LokiLastSixHours)}
}
