package runs

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ziadkadry99/opsdash/internal/apiclient"
)

// LogFetcher loads a run's logs.
type LogFetcher interface {
	RunLogs(ctx context.Context, runID int, query string) ([]apiclient.LogEntry, error)
}

// FollowMessage is one websocket frame of a live log tail.
type FollowMessage struct {
	Type  string `json:"type"` // "line" or "error"
	Line  string `json:"line,omitempty"`
	Level string `json:"level,omitempty"`
	Error string `json:"error,omitempty"`
}

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{}

// Follower streams new log lines of a run over a websocket.
type Follower struct {
	Interval time.Duration
	Location *time.Location
}

// Serve upgrades the request and polls the backend until the socket closes.
// from is how many entries the client already shows; only entries past the
// last delivered index are sent.
func (f *Follower) Serve(w http.ResponseWriter, r *http.Request, fetch LogFetcher, runID int, query string, from int) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("log follow: websocket upgrade")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The read pump only notices the peer closing the socket.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	interval := f.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	delivered := max(from, 0)
	for {
		entries, err := fetch.RunLogs(ctx, runID, query)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if !f.send(conn, FollowMessage{Type: "error", Error: err.Error()}) {
				return
			}
		} else {
			if len(entries) < delivered {
				// The backend trimmed its buffer; start over from its new head.
				delivered = 0
			}
			for _, e := range entries[delivered:] {
				if !f.send(conn, FollowMessage{Type: "line", Line: FormatLog(e, f.Location), Level: e.Level}) {
					return
				}
			}
			delivered = len(entries)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (f *Follower) send(conn *websocket.Conn, msg FollowMessage) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		log.Debug().Err(err).Msg("log follow: websocket write")
		return false
	}
	return true
}
