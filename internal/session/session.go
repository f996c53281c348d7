// Package session keeps per-browser dashboard state in SQLite.
//
// Each browser session holds the cached bearer token (os_token) and the
// cached profile (os_user). The profile is fetched once after login and
// never reconciled with the backend for the lifetime of the session.
package session

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ziadkadry99/opsdash/internal/apiclient"
	"github.com/ziadkadry99/opsdash/internal/db"
)

// Storage keys.
const (
	KeyToken = "os_token"
	KeyUser  = "os_user"
	KeyFlash = "flash"
)

// ErrNotFound is returned for unknown or expired sessions.
var ErrNotFound = errors.New("session not found")

// State is the session of one browser, loaded per request.
type State struct {
	ID        string
	Token     string
	User      *apiclient.Profile
	ExpiresAt time.Time
}

// Authenticated reports whether a token is cached.
func (s *State) Authenticated() bool {
	return s != nil && s.Token != ""
}

// Flash is a one-shot message shown after a redirect.
type Flash struct {
	Kind    string `json:"kind"` // "ok" or "error"
	Message string `json:"message"`
}

// Store persists sessions in the sessions and session_values tables.
type Store struct {
	db  *db.DB
	ttl time.Duration
	now func() time.Time
}

// NewStore creates a session store whose sessions live for ttl.
func NewStore(database *db.DB, ttl time.Duration) *Store {
	return &Store{db: database, ttl: ttl, now: time.Now}
}

// TTL returns the lifetime of new sessions.
func (s *Store) TTL() time.Duration { return s.ttl }

// Create starts a new empty session.
func (s *Store) Create(ctx context.Context) (*State, error) {
	id := randomID(32)
	if id == "" {
		return nil, fmt.Errorf("generating session id")
	}
	expires := s.now().Add(s.ttl).UTC().Truncate(time.Second)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, created_at, expires_at) VALUES (?, ?, ?)`,
		id, s.now().UTC().Format(time.DateTime), expires.Format(time.DateTime),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting session: %w", err)
	}
	log.Debug().Str("session", shortID(id)).Time("expires", expires).Msg("session created")
	return &State{ID: id, ExpiresAt: expires}, nil
}

// Load returns the session with the given id. Expired sessions are
// removed and reported as ErrNotFound.
func (s *Store) Load(ctx context.Context, id string) (*State, error) {
	if id == "" {
		return nil, ErrNotFound
	}

	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT expires_at FROM sessions WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}

	st := &State{ID: id, ExpiresAt: parseTime(raw)}
	if !s.now().Before(st.ExpiresAt) {
		if err := s.delete(ctx, id); err != nil {
			return nil, err
		}
		log.Debug().Str("session", shortID(id)).Msg("session expired")
		return nil, ErrNotFound
	}

	values, err := s.values(ctx, id)
	if err != nil {
		return nil, err
	}
	st.Token = values[KeyToken]
	if u, ok := values[KeyUser]; ok {
		var p apiclient.Profile
		if err := json.Unmarshal([]byte(u), &p); err == nil {
			st.User = &p
		}
	}
	return st, nil
}

func (s *Store) values(ctx context.Context, id string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM session_values WHERE session_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("loading session values: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scanning session value: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (s *Store) set(ctx context.Context, id, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_values (session_id, key, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(session_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		id, key, value, s.now().UTC().Format(time.DateTime),
	)
	if err != nil {
		return fmt.Errorf("storing %s: %w", key, err)
	}
	return nil
}

// SetToken caches the bearer token as os_token.
func (s *Store) SetToken(ctx context.Context, id, token string) error {
	return s.set(ctx, id, KeyToken, token)
}

// SetUser caches the profile as os_user.
func (s *Store) SetUser(ctx context.Context, id string, p *apiclient.Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}
	return s.set(ctx, id, KeyUser, string(data))
}

// Clear removes the cached token and profile along with the session itself.
func (s *Store) Clear(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM session_values WHERE session_id = ? AND key IN (?, ?)`, id, KeyToken, KeyUser,
	); err != nil {
		return fmt.Errorf("clearing session values: %w", err)
	}
	return s.delete(ctx, id)
}

func (s *Store) delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// SetFlash stores a message to be shown on the next page render.
func (s *Store) SetFlash(ctx context.Context, id string, f Flash) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encoding flash: %w", err)
	}
	return s.set(ctx, id, KeyFlash, string(data))
}

// PopFlash returns and removes the pending flash message, if any.
func (s *Store) PopFlash(ctx context.Context, id string) (*Flash, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`DELETE FROM session_values WHERE session_id = ? AND key = ? RETURNING value`, id, KeyFlash,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("popping flash: %w", err)
	}
	var f Flash
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		return nil, nil
	}
	return &f, nil
}

// PurgeExpired deletes every expired session and returns how many were removed.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at <= ?`, s.now().UTC().Format(time.DateTime),
	)
	if err != nil {
		return 0, fmt.Errorf("purging sessions: %w", err)
	}
	return res.RowsAffected()
}

// RunJanitor purges expired sessions every interval until ctx is done.
func (s *Store) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PurgeExpired(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("purging expired sessions")
				continue
			}
			if n > 0 {
				log.Debug().Int64("count", n).Msg("expired sessions purged")
			}
		}
	}
}

// Cookie returns the browser cookie carrying the session id.
func Cookie(name string, st *State, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    st.ID,
		Path:     "/",
		Expires:  st.ExpiresAt,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ExpiredCookie returns a cookie that removes the session cookie.
func ExpiredCookie(name string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func randomID(size int) string {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func parseTime(raw string) time.Time {
	if t, err := time.Parse(time.DateTime, raw); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t
	}
	return time.Time{}
}
