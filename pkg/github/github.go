// Package github is the remote repository client used during resolution. It
// talks to the GitHub REST API for tag and branch lookups and to the raw
// content host for formula metadata and requirements files.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/salt-formulas/shaker/pkg/version"
)

// TokenEnvVar holds the bearer credential for all API calls. There is no
// unauthenticated mode: formula repositories are commonly private.
const TokenEnvVar = "GITHUB_TOKEN"

// maxTagPageSize bounds the tag listing to a single page.
const maxTagPageSize = 1000

// ErrNotFound reports a ref or file that legitimately does not exist on the
// remote. Callers treat it as an absence signal, not a failure.
var ErrNotFound = errors.New("not found on remote")

// ConnectionError reports that the remote could not be used at all: a missing
// token, bad credentials, or a lockout. It is fatal to a resolution run.
type ConnectionError struct {
	Op      string
	Status  int
	Message string
}

func (e *ConnectionError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("github: %s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("github: %s: HTTP %d: %s", e.Op, e.Status, e.Message)
}

// Tag is one entry from a repository tag listing.
type Tag struct {
	Name string
	SHA  string
}

// Ref is a named revision (tag or branch head) with its commit sha.
type Ref struct {
	Name string
	SHA  string
}

// Client calls the GitHub API for a fixed token. The zero value is not
// usable; construct with NewClient or NewClientFromEnv.
type Client struct {
	token   string
	apiBase string
	rawBase string
	http    *http.Client
	log     *slog.Logger
}

// Option adjusts a Client at construction.
type Option func(*Client)

// WithBaseURLs points the client at alternate API and raw-content hosts.
// Used by tests to target an httptest server.
func WithBaseURLs(apiBase, rawBase string) Option {
	return func(c *Client) {
		c.apiBase = apiBase
		c.rawBase = rawBase
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		token:   token,
		apiBase: "https://api.github.com",
		rawBase: "https://raw.githubusercontent.com",
		http:    http.DefaultClient,
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// NewClientFromEnv builds a client from the GITHUB_TOKEN environment
// variable. A missing token is a fatal precondition: resolution cannot run
// offline, so this is checked once up front rather than per call.
func NewClientFromEnv(opts ...Option) (*Client, error) {
	token := os.Getenv(TokenEnvVar)
	if token == "" {
		return nil, &ConnectionError{
			Op:      "auth",
			Message: "no github token found, set the " + TokenEnvVar + " environment variable",
		}
	}
	return NewClient(token, opts...), nil
}

type tagResponse struct {
	Name   string `json:"name"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

type branchResponse struct {
	Name   string `json:"name"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

// ListTags returns every tag of the repository with its commit sha, in the
// order the API reports them.
func (c *Client) ListTags(ctx context.Context, org, name string) ([]Tag, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/tags?per_page=%d", c.apiBase, org, name, maxTagPageSize)
	var data []tagResponse
	if err := c.getJSON(ctx, url, &data); err != nil {
		return nil, err
	}
	tags := make([]Tag, 0, len(data))
	for _, t := range data {
		tags = append(tags, Tag{Name: t.Name, SHA: t.Commit.SHA})
	}
	c.log.Debug("listed repository tags", "org", org, "name", name, "count", len(tags))
	return tags, nil
}

// Branch returns the head of a named branch, or ErrNotFound when the branch
// does not exist.
func (c *Client) Branch(ctx context.Context, org, name, branch string) (*Ref, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/branches/%s", c.apiBase, org, name, branch)
	var data branchResponse
	if err := c.getJSON(ctx, url, &data); err != nil {
		return nil, err
	}
	return &Ref{Name: data.Name, SHA: data.Commit.SHA}, nil
}

// FetchFile downloads a single file at a resolved ref from the raw content
// host. Returns ErrNotFound when the file is absent at that ref.
func (c *Client) FetchFile(ctx context.Context, org, name, ref, path string) ([]byte, error) {
	url := fmt.Sprintf("%s/%s/%s/%s/%s", c.rawBase, org, name, ref, path)
	resp, err := c.get(ctx, url, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck
	if err := c.checkStatus(resp, url); err != nil {
		return nil, err
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", url, err)
	}
	return body, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	resp, err := c.get(ctx, url, "application/vnd.github.v3+json")
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck
	if err := c.checkStatus(resp, url); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode JSON from %q: %w", url, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, url, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %q: %w", url, err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", version.FullVersion)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &ConnectionError{Op: "get " + url, Message: err.Error()}
	}
	return resp, nil
}

// checkStatus maps the known GitHub failure responses. Bad credentials and
// lockouts are connection errors; a 404 is the ErrNotFound absence signal.
func (c *Client) checkStatus(resp *http.Response, url string) error {
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		c.log.Debug("remote returned 404", "url", url)
		return ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return &ConnectionError{Op: "get " + url, Status: resp.StatusCode, Message: apiMessage(resp)}
	default:
		return &ConnectionError{Op: "get " + url, Status: resp.StatusCode, Message: apiMessage(resp)}
	}
}

// apiMessage pulls the "message" field from a GitHub error body, if any.
func apiMessage(resp *http.Response) string {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return resp.Status
	}
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Message == "" {
		return resp.Status
	}
	return payload.Message
}
