package runs

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/ziadkadry99/opsdash/internal/apiclient"
)

// Defaults for the run detail query parameters.
const (
	DefaultMetric = "loss"
	DefaultBy     = "step"
)

// Fetcher loads the two halves of a run detail.
type Fetcher interface {
	RunMetrics(ctx context.Context, runID int, name, by string) ([]apiclient.Series, error)
	RunLogs(ctx context.Context, runID int, query string) ([]apiclient.LogEntry, error)
}

// Query selects what the run detail shows.
type Query struct {
	RunID  int
	Metric string
	By     string // "step" or "epoch"
	Logs   string // log filter, empty for all
}

// Normalize fills in defaults.
func (q Query) Normalize() Query {
	if q.Metric == "" {
		q.Metric = DefaultMetric
	}
	if q.By != "epoch" {
		q.By = DefaultBy
	}
	return q
}

// Detail is a run's metrics and logs. Each half carries its own error.
type Detail struct {
	Query      Query
	Series     []apiclient.Series
	MetricsErr error
	Logs       []apiclient.LogEntry
	LogsErr    error
}

// LoadDetail fetches metrics and logs concurrently, once each. A failure
// in one half does not cancel or hide the other.
func LoadDetail(ctx context.Context, f Fetcher, q Query) *Detail {
	q = q.Normalize()
	d := &Detail{Query: q}

	var g errgroup.Group
	g.Go(func() error {
		d.Series, d.MetricsErr = f.RunMetrics(ctx, q.RunID, q.Metric, q.By)
		return nil
	})
	g.Go(func() error {
		d.Logs, d.LogsErr = f.RunLogs(ctx, q.RunID, q.Logs)
		return nil
	})
	_ = g.Wait()
	return d
}
