package dashboard

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func (d *Dashboard) handleFollowLogs(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		http.Error(w, "invalid run id", http.StatusBadRequest)
		return
	}
	q := r.URL.Query()
	from, err := strconv.Atoi(q.Get("from"))
	if err != nil || from < 0 {
		from = 0
	}
	st := StateFrom(r.Context())
	d.follower.Serve(w, r, d.backend.WithToken(st.Token), id, q.Get("q"), from)
}
