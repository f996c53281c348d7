package runs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/opsdash/internal/apiclient"
)

func TestFormatValueTruncates(t *testing.T) {
	tests := map[float64]string{
		0.5001:     "0.500",
		0.9999:     "0.999",
		1:          "1.000",
		0.29:       "0.290",
		-0.1239:    "-0.123",
		-0.0001:    "0.000",
		12.3456:    "12.345",
		0.4999996:  "0.499",
		0.9999999:  "0.999",
		0.0009995:  "0.000",
		-2.0009999: "-2.000",
		3:          "3.000",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatValue(in), "value %v", in)
	}
}

func TestFormatPoints(t *testing.T) {
	assert.Equal(t, "(1, 0.500)", FormatPoint(apiclient.Point{Step: 1, Value: 0.5001}))
	assert.Equal(t, "(1, 0.500) (2, 0.250) (2.5, 0.125)", FormatPoints([]apiclient.Point{
		{Step: 1, Value: 0.5},
		{Step: 2, Value: 0.25},
		{Step: 2.5, Value: 0.125},
	}))
	assert.Equal(t, "", FormatPoints(nil))
}

func TestFormatLog(t *testing.T) {
	ts := float64(time.Date(2026, 3, 4, 13, 5, 9, 0, time.UTC).Unix())
	got := FormatLog(apiclient.LogEntry{TS: ts, Level: "WARN", Msg: "grad norm high"}, time.UTC)
	assert.Equal(t, "[13:05:09] WARN: grad norm high", got)
}

func TestFormatLogsKeepsOrder(t *testing.T) {
	lines := FormatLogs([]apiclient.LogEntry{
		{TS: 20, Level: "INFO", Msg: "second"},
		{TS: 10, Level: "INFO", Msg: "first"},
	}, time.UTC)
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], "second"))
}

type countingFetcher struct {
	metricsCalls, logsCalls atomic.Int32
	metricsErr, logsErr     error
	gotMetric, gotBy        string
	gotQuery                string
	mu                      sync.Mutex
}

func (f *countingFetcher) RunMetrics(_ context.Context, _ int, name, by string) ([]apiclient.Series, error) {
	f.metricsCalls.Add(1)
	f.mu.Lock()
	f.gotMetric, f.gotBy = name, by
	f.mu.Unlock()
	if f.metricsErr != nil {
		return nil, f.metricsErr
	}
	return []apiclient.Series{{Name: name, Points: []apiclient.Point{{Step: 1, Value: 0.5001}}}}, nil
}

func (f *countingFetcher) RunLogs(_ context.Context, _ int, query string) ([]apiclient.LogEntry, error) {
	f.logsCalls.Add(1)
	f.mu.Lock()
	f.gotQuery = query
	f.mu.Unlock()
	if f.logsErr != nil {
		return nil, f.logsErr
	}
	return []apiclient.LogEntry{{TS: 1, Level: "INFO", Msg: "ok"}}, nil
}

func TestLoadDetailFetchesEachOnce(t *testing.T) {
	f := &countingFetcher{}
	d := LoadDetail(context.Background(), f, Query{RunID: 1, Logs: "loss"})

	assert.EqualValues(t, 1, f.metricsCalls.Load())
	assert.EqualValues(t, 1, f.logsCalls.Load())
	assert.Equal(t, "loss", f.gotMetric)
	assert.Equal(t, "step", f.gotBy)
	assert.Equal(t, "loss", f.gotQuery)
	require.NoError(t, d.MetricsErr)
	require.NoError(t, d.LogsErr)
	assert.Equal(t, "(1, 0.500)", FormatPoints(d.Series[0].Points))
}

func TestLoadDetailHalvesFailIndependently(t *testing.T) {
	f := &countingFetcher{metricsErr: errors.New("metrics down")}
	d := LoadDetail(context.Background(), f, Query{RunID: 1, By: "epoch", Metric: "acc"})

	assert.Error(t, d.MetricsErr)
	assert.NoError(t, d.LogsErr)
	assert.Len(t, d.Logs, 1)
	assert.Equal(t, "epoch", d.Query.By)
	assert.Equal(t, "acc", d.Query.Metric)
}

func TestQueryNormalize(t *testing.T) {
	q := Query{By: "bogus"}.Normalize()
	assert.Equal(t, DefaultBy, q.By)
	assert.Equal(t, DefaultMetric, q.Metric)
}

// growingLogs returns one more entry on every call.
type growingLogs struct {
	calls atomic.Int32
}

func (g *growingLogs) RunLogs(context.Context, int, string) ([]apiclient.LogEntry, error) {
	n := int(g.calls.Add(1))
	out := make([]apiclient.LogEntry, n)
	for i := range out {
		out[i] = apiclient.LogEntry{TS: float64(i), Level: "INFO", Msg: "line-" + string(rune('a'+i))}
	}
	return out, nil
}

func TestFollowerSendsOnlyNewEntries(t *testing.T) {
	fetch := &growingLogs{}
	f := &Follower{Interval: 10 * time.Millisecond, Location: time.UTC}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.Serve(w, r, fetch, 1, "", 0)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	var got []string
	for len(got) < 3 {
		var msg FollowMessage
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		require.NoError(t, conn.ReadJSON(&msg))
		require.Equal(t, "line", msg.Type)
		got = append(got, msg.Line)
	}
	assert.Equal(t, []string{
		"[00:00:00] INFO: line-a",
		"[00:00:01] INFO: line-b",
		"[00:00:02] INFO: line-c",
	}, got)
}

// staticLogs always returns the same entries.
type staticLogs []apiclient.LogEntry

func (s staticLogs) RunLogs(context.Context, int, string) ([]apiclient.LogEntry, error) {
	return s, nil
}

func TestFollowerSkipsAlreadyRenderedEntries(t *testing.T) {
	fetch := &growingLogs{}
	f := &Follower{Interval: 10 * time.Millisecond, Location: time.UTC}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.Serve(w, r, fetch, 1, "", 1)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	var msg FollowMessage
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "[00:00:01] INFO: line-b", msg.Line)
}

func TestFollowerSendsNothingWhenCaughtUp(t *testing.T) {
	fetch := staticLogs{{TS: 0, Level: "INFO", Msg: "already-rendered"}}
	f := &Follower{Interval: 5 * time.Millisecond, Location: time.UTC}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.Serve(w, r, fetch, 1, "", 1)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	var msg FollowMessage
	err = conn.ReadJSON(&msg)
	require.Error(t, err, "unexpected frame %+v", msg)
}

func TestFollowerStopsWhenClientLeaves(t *testing.T) {
	fetch := &growingLogs{}
	done := make(chan struct{})
	f := &Follower{Interval: 5 * time.Millisecond}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.Serve(w, r, fetch, 1, "", 0)
		close(done)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	var msg FollowMessage
	require.NoError(t, conn.ReadJSON(&msg))
	conn.Close()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("follower kept polling after the socket closed")
	}
}
