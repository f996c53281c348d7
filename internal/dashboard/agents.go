package dashboard

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/ziadkadry99/opsdash/internal/agents"
	"github.com/ziadkadry99/opsdash/internal/audit"
	"github.com/ziadkadry99/opsdash/internal/grafana"
	"github.com/ziadkadry99/opsdash/internal/session"
	"github.com/ziadkadry99/opsdash/internal/views"
)

const (
	flashOK    = "ok"
	flashError = "error"

	// uploadMemory is how much of a multipart upload is kept in memory;
	// the rest spills to a temporary file.
	uploadMemory = 8 << 20
)

func versionsURL(r *http.Request) string {
	_ = r.ParseForm()
	return views.ViewURL("agents", grafana.Override(r.Form), "tab", views.TabVersions)
}

func (d *Dashboard) handleSetDefault(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st := StateFrom(ctx)
	_ = r.ParseForm()

	version, err := agents.ValidateVersion(r.PostFormValue("version"))
	if err == nil {
		err = d.backend.WithToken(st.Token).SetDefaultVersion(ctx, version)
	}
	d.finishMutation(r, st, audit.ActionAgentDefaultSet, version, err,
		fmt.Sprintf("Default agent version set to %s", version),
		"Could not set the default version")
	http.Redirect(w, r, versionsURL(r), http.StatusSeeOther)
}

func (d *Dashboard) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st := StateFrom(ctx)

	version, err := d.upload(w, r, st)
	d.finishMutation(r, st, audit.ActionAgentUploaded, version, err,
		fmt.Sprintf("Agent version %s uploaded", version),
		"Upload failed")
	http.Redirect(w, r, versionsURL(r), http.StatusSeeOther)
}

// upload validates the multipart form and forwards the archive.
func (d *Dashboard) upload(w http.ResponseWriter, r *http.Request, st *session.State) (string, error) {
	if d.maxUpload > 0 {
		// Leave room for the other form fields and multipart framing.
		limit := d.maxUpload + 1<<20
		if r.ContentLength > limit {
			return "", agents.ErrTooLarge
		}
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	if err := r.ParseMultipartForm(uploadMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return "", agents.ErrTooLarge
		}
		if errors.Is(err, http.ErrNotMultipart) {
			return "", agents.ErrNoFile
		}
		return "", fmt.Errorf("reading upload form: %w", err)
	}
	defer r.MultipartForm.RemoveAll()

	version, err := agents.ValidateVersion(r.FormValue("version"))
	if err != nil {
		return "", err
	}

	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return version, agents.ErrNoFile
	}
	if err != nil {
		return version, fmt.Errorf("reading upload file: %w", err)
	}
	defer file.Close()

	if err := agents.ValidateArchive(file, header.Size, d.maxUpload); err != nil {
		return version, err
	}
	if err := rewind(file); err != nil {
		return version, err
	}
	return version, d.backend.WithToken(st.Token).UploadVersion(r.Context(), version, header.Filename, file)
}

func rewind(f multipart.File) error {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding upload: %w", err)
	}
	return nil
}

func (d *Dashboard) handleConfirmDelete(w http.ResponseWriter, r *http.Request) {
	st := StateFrom(r.Context())
	version, err := versionParam(r)
	if err != nil {
		d.setFlash(r, st, flashError, err.Error())
		http.Redirect(w, r, versionsURL(r), http.StatusSeeOther)
		return
	}

	data := d.layout(r, st, "agents")
	data.Title = "Uninstall agent version"
	data.Page = views.ConfirmDelete{Version: version}
	d.renderer.Render(w, http.StatusOK, "confirm_delete", data)
}

func (d *Dashboard) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st := StateFrom(ctx)
	_ = r.ParseForm()

	version, err := versionParam(r)
	if err == nil {
		err = d.backend.WithToken(st.Token).DeleteVersion(ctx, version)
	}
	d.finishMutation(r, st, audit.ActionAgentDeleted, version, err,
		fmt.Sprintf("Agent version %s uninstalled", version),
		"Could not uninstall the version")
	http.Redirect(w, r, versionsURL(r), http.StatusSeeOther)
}

func versionParam(r *http.Request) (string, error) {
	raw, err := url.PathUnescape(chi.URLParam(r, "version"))
	if err != nil {
		return "", agents.ErrBadVersion
	}
	return agents.ValidateVersion(raw)
}

// finishMutation audits an agent mutation and leaves a flash for the
// page the user is redirected to.
func (d *Dashboard) finishMutation(r *http.Request, st *session.State, action audit.Action, version string, err error, okMsg, failMsg string) {
	entry := audit.Entry{ActorID: actor(st.User, ""), Tenant: tenantOfProfile(st.User), Action: action, Target: version}
	if err != nil {
		entry.Outcome = audit.OutcomeFailed
		entry.Detail = err.Error()
		d.record(r, entry)
		log.Warn().Err(err).Str("action", string(action)).Str("version", version).Msg("agent mutation failed")
		d.setFlash(r, st, flashError, failMsg+": "+views.NewErrorPanel(err).Message)
		return
	}
	d.record(r, entry)
	log.Info().Str("action", string(action)).Str("version", version).Msg("agent mutation")
	d.setFlash(r, st, flashOK, okMsg)
}
