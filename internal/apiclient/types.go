package apiclient

// Profile is the authenticated user as returned by /api/auth/me.
type Profile struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role,omitempty"`
	Tenant string `json:"tenant"`
}

// Run is a single training run.
type Run struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	Framework string `json:"framework"`
}

// Series is one named metric series of a run.
type Series struct {
	Name   string
	Points []Point
}

// Point is a metric sample. Step holds the value of the requested "by" dimension.
type Point struct {
	Step  float64
	Value float64
}

// LogEntry is a single run log line. TS is in epoch seconds.
type LogEntry struct {
	TS    float64 `json:"ts"`
	Level string  `json:"level"`
	Msg   string  `json:"msg"`
}

// AgentVersion is an uploaded agent bundle.
type AgentVersion struct {
	Version   string              `json:"version"`
	Exporters map[string]Exporter `json:"exporters"`
}

// Exporter lists the release download URLs of one exporter, keyed by platform.
type Exporter struct {
	Releases map[string]string `json:"releases"`
}

// Dashboard is a saved monitoring dashboard.
type Dashboard struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}
