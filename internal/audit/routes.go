package audit

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// TenantFunc returns the tenant whose entries a request may see. ok is
// false when the caller's tenant is unknown.
type TenantFunc func(r *http.Request) (tenant string, ok bool)

// RegisterRoutes mounts audit endpoints under /api/audit on the given router.
// Results are restricted to the tenant returned by tenantOf; callers with
// an unknown tenant get 403.
func RegisterRoutes(r chi.Router, store *Store, tenantOf TenantFunc) {
	r.Route("/api/audit", func(r chi.Router) {
		r.Get("/", handleQuery(store, tenantOf))
		r.Get("/{id}", handleGetByID(store, tenantOf))
	})
}

func handleQuery(store *Store, tenantOf TenantFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := tenantOf(r)
		if !ok {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		q := r.URL.Query()

		filter := QueryFilter{
			ActorID:     q.Get("actor"),
			Tenant:      tenant,
			ScopeTenant: true,
			Action:      Action(q.Get("action")),
			Outcome:     Outcome(q.Get("outcome")),
			Limit:       100,
		}
		if v := q.Get("since"); v != "" {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				filter.Since = &t
			}
		}
		if v := q.Get("until"); v != "" {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				filter.Until = &t
			}
		}
		if v := q.Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				filter.Limit = n
			}
		}
		if v := q.Get("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				filter.Offset = n
			}
		}

		entries, err := store.Query(r.Context(), filter)
		if err != nil {
			log.Error().Err(err).Msg("querying audit entries")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, entries)
	}
}

func handleGetByID(store *Store, tenantOf TenantFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := tenantOf(r)
		if !ok {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		entry, err := store.GetByID(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, ErrNotFound) || (err == nil && entry.Tenant != tenant) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err != nil {
			log.Error().Err(err).Msg("loading audit entry")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, entry)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
