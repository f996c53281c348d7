package apiclient

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// ListRuns returns the runs visible to the caller's tenant.
func (c *Client) ListRuns(ctx context.Context) ([]Run, error) {
	var out []Run
	if err := c.getJSON(ctx, "list_runs", "/api/runs", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RunMetrics returns the named metric series of a run. The backend keys
// every point by the requested dimension ("step" or "epoch"); points
// missing that key or a value are dropped.
func (c *Client) RunMetrics(ctx context.Context, runID int, name, by string) ([]Series, error) {
	q := url.Values{}
	q.Set("name", name)
	q.Set("by", by)
	path := fmt.Sprintf("/api/runs/%d/metrics?%s", runID, q.Encode())

	var payload struct {
		Series []struct {
			Name   string               `json:"name"`
			Points []map[string]*float64 `json:"points"`
		} `json:"series"`
	}
	if err := c.getJSON(ctx, "run_metrics", path, &payload); err != nil {
		return nil, err
	}

	out := make([]Series, 0, len(payload.Series))
	for _, s := range payload.Series {
		series := Series{Name: s.Name, Points: make([]Point, 0, len(s.Points))}
		for _, raw := range s.Points {
			step, value := raw[by], raw["value"]
			if step == nil || value == nil {
				continue
			}
			series.Points = append(series.Points, Point{Step: *step, Value: *value})
		}
		out = append(out, series)
	}
	return out, nil
}

// RunLogs returns a run's log lines in backend order, optionally filtered by query.
func (c *Client) RunLogs(ctx context.Context, runID int, query string) ([]LogEntry, error) {
	path := "/api/runs/" + strconv.Itoa(runID) + "/logs"
	if query != "" {
		path += "?" + url.Values{"query": {query}}.Encode()
	}

	var payload struct {
		Items []LogEntry `json:"items"`
	}
	if err := c.getJSON(ctx, "run_logs", path, &payload); err != nil {
		return nil, err
	}
	return payload.Items, nil
}
