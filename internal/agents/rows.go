package agents

import (
	"fmt"
	"sort"

	"github.com/ziadkadry99/opsdash/internal/apiclient"
)

// ExporterSummary is one exporter of a version with its platform count.
type ExporterSummary struct {
	Name      string
	Platforms int
}

func (e ExporterSummary) String() string {
	return fmt.Sprintf("%s · %d platforms", e.Name, e.Platforms)
}

// Row is one line of the versions table.
type Row struct {
	Version   string
	Exporters []ExporterSummary
	IsDefault bool
}

// Rows turns a listing into table rows. Versions are de-duplicated so the
// default is marked at most once.
func Rows(l *Listing) []Row {
	if l == nil {
		return nil
	}
	versions := Dedupe(l.Versions)
	rows := make([]Row, 0, len(versions))
	for _, v := range versions {
		rows = append(rows, Row{
			Version:   v.Version,
			Exporters: summarize(v.Exporters),
			IsDefault: l.Default != "" && v.Version == l.Default,
		})
	}
	return rows
}

func summarize(exporters map[string]apiclient.Exporter) []ExporterSummary {
	out := make([]ExporterSummary, 0, len(exporters))
	for name, e := range exporters {
		out = append(out, ExporterSummary{Name: name, Platforms: len(e.Releases)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
