// Package apiclient talks to the ops backend REST API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/ziadkadry99/opsdash/internal/metrics"
)

const defaultTimeout = 15 * time.Second

// maxErrorBody bounds how much of a failed response is read for its detail.
const maxErrorBody = 4 << 10

// Client calls the backend on behalf of one user. The zero token means
// anonymous: requests carry no Authorization header. Clients are immutable;
// WithToken, Anonymous and WithOrigin return modified copies.
type Client struct {
	baseURL string
	token   string
	timeout time.Duration
	base    http.RoundTripper
	hc      *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds every request made by the client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithTransport replaces the underlying round tripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		if rt != nil {
			c.base = rt
		}
	}
}

// New returns an anonymous client for the backend at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: defaultTimeout,
		base:    NewTransport(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.hc = c.buildHTTPClient()
	return c
}

// BaseURL returns the backend origin the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// Authenticated reports whether requests carry a bearer token.
func (c *Client) Authenticated() bool { return c.token != "" }

// WithToken returns a copy that authenticates with the bearer token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	cp.hc = cp.buildHTTPClient()
	return &cp
}

// Anonymous returns a copy that sends no Authorization header.
func (c *Client) Anonymous() *Client {
	return c.WithToken("")
}

// WithOrigin returns a copy that targets another backend origin.
func (c *Client) WithOrigin(baseURL string) *Client {
	cp := *c
	cp.baseURL = strings.TrimRight(baseURL, "/")
	return &cp
}

func (c *Client) buildHTTPClient() *http.Client {
	rt := c.base
	if c.token != "" {
		rt = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: c.token, TokenType: "Bearer"}),
			Base:   c.base,
		}
	}
	return &http.Client{Transport: rt, Timeout: c.timeout}
}

// do performs a request and decodes a JSON response into out when out is non-nil.
func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, contentType string, out any) (err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = string(KindOf(err))
		}
		metrics.ObserveBackend(op, outcome, time.Since(start))
		if err != nil {
			log.Debug().Err(err).Str("op", op).Str("origin", c.baseURL).Bool("auth", c.Authenticated()).Msg("backend call failed")
		}
	}()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &Error{Kind: KindClient, Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return &Error{Kind: KindNetwork, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(op, resp.StatusCode, resp.Body)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Kind: KindDecode, Op: op, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, out any) error {
	return c.do(ctx, op, http.MethodGet, path, nil, "", out)
}

func (c *Client) sendJSON(ctx context.Context, op, method, path string, in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return &Error{Kind: KindClient, Op: op, Err: fmt.Errorf("encoding request: %w", err)}
	}
	return c.do(ctx, op, method, path, bytes.NewReader(data), "application/json", out)
}

// statusError builds an *Error from a non-2xx response, lifting the
// backend's {"detail": ...} message when present.
func statusError(op string, code int, body io.Reader) *Error {
	e := &Error{Kind: kindForStatus(code), Op: op, StatusCode: code}
	data, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))
	e.Message = detailMessage(data)
	return e
}

func detailMessage(data []byte) string {
	var payload struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(data, &payload); err == nil {
		if s, ok := payload.Detail.(string); ok {
			return s
		}
	}
	return ""
}

// Login exchanges credentials for a bearer token via the OAuth2
// password grant against /api/auth/login.
func (c *Client) Login(ctx context.Context, username, password string) (token string, err error) {
	const op = "login"
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = string(KindOf(err))
		}
		metrics.ObserveBackend(op, outcome, time.Since(start))
	}()

	conf := &oauth2.Config{
		Endpoint: oauth2.Endpoint{
			TokenURL:  c.baseURL + "/api/auth/login",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: c.base, Timeout: c.timeout})

	tok, err := conf.PasswordCredentialsToken(ctx, username, password)
	if err != nil {
		return "", loginError(err)
	}
	return tok.AccessToken, nil
}

func loginError(err error) *Error {
	const op = "login"
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		e := &Error{Kind: kindForStatus(re.Response.StatusCode), Op: op, StatusCode: re.Response.StatusCode, Err: err}
		e.Message = detailMessage(re.Body)
		return e
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return &Error{Kind: KindNetwork, Op: op, Err: err}
	}
	return &Error{Kind: KindDecode, Op: op, Err: err}
}

// Me returns the profile of the token's owner.
func (c *Client) Me(ctx context.Context) (*Profile, error) {
	var p Profile
	if err := c.getJSON(ctx, "me", "/api/auth/me", &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Dashboards lists the saved monitoring dashboards.
func (c *Client) Dashboards(ctx context.Context) ([]Dashboard, error) {
	var out []Dashboard
	if err := c.getJSON(ctx, "list_dashboards", "/api/dashboards", &out); err != nil {
		return nil, err
	}
	return out, nil
}
