// Package runs loads and formats training run metrics and logs.
package runs

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ziadkadry99/opsdash/internal/apiclient"
)

// FormatValue renders v with exactly three decimals, truncating instead of
// rounding: 0.5001 → "0.500", 0.9999 → "0.999".
func FormatValue(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return s
	}
	whole, frac, _ := strings.Cut(s, ".")
	s = whole + "." + (frac + "000")[:3]
	if s == "-0.000" {
		return "0.000"
	}
	return s
}

// FormatPoint renders a point as "(step, value)".
func FormatPoint(p apiclient.Point) string {
	return fmt.Sprintf("(%s, %s)", strconv.FormatFloat(p.Step, 'f', -1, 64), FormatValue(p.Value))
}

// FormatPoints renders points as space separated coordinates.
func FormatPoints(points []apiclient.Point) string {
	parts := make([]string, len(points))
	for i, p := range points {
		parts[i] = FormatPoint(p)
	}
	return strings.Join(parts, " ")
}

// FormatLog renders an entry as "[HH:MM:SS] LEVEL: msg" in loc.
func FormatLog(e apiclient.LogEntry, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	sec := int64(e.TS)
	nsec := int64((e.TS - float64(sec)) * float64(time.Second))
	ts := time.Unix(sec, nsec).In(loc).Format(time.TimeOnly)
	return fmt.Sprintf("[%s] %s: %s", ts, e.Level, e.Msg)
}

// FormatLogs renders entries in the order given.
func FormatLogs(entries []apiclient.LogEntry, loc *time.Location) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = FormatLog(e, loc)
	}
	return out
}
