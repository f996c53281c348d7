package apiclient

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
)

// ListAgentVersions returns the uploaded agent versions.
func (c *Client) ListAgentVersions(ctx context.Context) ([]AgentVersion, error) {
	var out []AgentVersion
	if err := c.getJSON(ctx, "list_agent_versions", "/api/agents/versions", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DefaultVersion returns the default agent version, "" when none is set.
func (c *Client) DefaultVersion(ctx context.Context) (string, error) {
	var payload struct {
		Default *string `json:"default"`
	}
	if err := c.getJSON(ctx, "default_agent_version", "/api/agents/versions/default", &payload); err != nil {
		return "", err
	}
	if payload.Default == nil {
		return "", nil
	}
	return *payload.Default, nil
}

// SetDefaultVersion marks version as the default agent version.
func (c *Client) SetDefaultVersion(ctx context.Context, version string) error {
	body := map[string]string{"version": version}
	return c.sendJSON(ctx, "set_default_agent_version", http.MethodPost, "/api/agents/versions/default", body, nil)
}

// DeleteVersion removes an uploaded agent version.
func (c *Client) DeleteVersion(ctx context.Context, version string) error {
	return c.do(ctx, "delete_agent_version", http.MethodDelete, "/api/agents/versions/"+url.PathEscape(version), nil, "", nil)
}

// UploadVersion streams a zipped agent bundle as multipart form fields
// "version" and "file".
func (c *Client) UploadVersion(ctx context.Context, version, filename string, content io.Reader) error {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeUploadForm(mw, version, filename, content))
	}()

	err := c.do(ctx, "upload_agent_version", http.MethodPost, "/api/agents/versions/upload", pr, mw.FormDataContentType(), nil)
	// Unblocks the writer when the request failed before draining the body.
	pr.Close()
	return err
}

func writeUploadForm(mw *multipart.Writer, version, filename string, content io.Reader) error {
	if err := mw.WriteField("version", version); err != nil {
		return fmt.Errorf("writing version field: %w", err)
	}
	part, err := mw.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return fmt.Errorf("creating file part: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return fmt.Errorf("copying archive: %w", err)
	}
	return mw.Close()
}
