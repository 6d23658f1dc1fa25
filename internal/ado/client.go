// Package ado is a minimal Azure DevOps REST client covering work items,
// attachments, comments, classification nodes and process states.
package ado

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

	"github.com/lherron/orgsync/internal/config"
	"github.com/lherron/orgsync/internal/domain"
	"github.com/lherron/orgsync/internal/logging"
)

const (
	defaultAPIVersion  = "7.0"
	commentsAPIVersion = "7.0-preview.3"
	defaultTimeout     = 60 * time.Second

	contentJSON      = "application/json"
	contentJSONPatch = "application/json-patch+json"
	contentOctet     = "application/octet-stream"
)

// Options tune a Client.
type Options struct {
	APIVersion string
	Timeout    time.Duration
	// HTTPClient overrides the transport; Timeout is ignored when set.
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// Client talks to one organization/project.
type Client struct {
	baseURL    string
	org        string
	project    string
	pat        string
	apiVersion string
	http       *http.Client
	log        *logging.Logger
}

// New creates a client for ep.
func New(ep config.Endpoint, opts Options) (*Client, error) {
	base := strings.TrimRight(ep.URL, "/")
	if base == "" {
		return nil, fmt.Errorf("endpoint url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid endpoint url %q: %w", ep.URL, err)
	}
	if ep.Project == "" {
		return nil, fmt.Errorf("endpoint project is required")
	}

	c := &Client{
		baseURL:    base,
		org:        ep.Organization(),
		project:    ep.Project,
		pat:        ep.PAT,
		apiVersion: opts.APIVersion,
		http:       opts.HTTPClient,
		log:        opts.Logger,
	}
	if c.apiVersion == "" {
		c.apiVersion = defaultAPIVersion
	}
	if c.http == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		c.http = &http.Client{Timeout: timeout}
	}
	if c.log == nil {
		c.log = logging.Discard()
	}
	return c, nil
}

// Organization returns the organization name parsed from the endpoint URL.
func (c *Client) Organization() string { return c.org }

// Project returns the project name.
func (c *Client) Project() string { return c.project }

// StatusError is a non-success HTTP response.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 300 {
		body = body[:300] + "..."
	}
	return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode), body)
}

// Is makes 404 responses match domain.ErrNotFound.
func (e *StatusError) Is(target error) bool {
	return target == domain.ErrNotFound && e.StatusCode == http.StatusNotFound
}

// projectURL builds {base}/{project}/_apis/{path}.
func (c *Client) projectURL(path string, query url.Values) string {
	return c.buildURL(c.baseURL+"/"+url.PathEscape(c.project)+"/_apis/"+path, query, c.apiVersion)
}

// orgURL builds {base}/_apis/{path}.
func (c *Client) orgURL(path string, query url.Values) string {
	return c.buildURL(c.baseURL+"/_apis/"+path, query, c.apiVersion)
}

func (c *Client) buildURL(base string, query url.Values, version string) string {
	if query == nil {
		query = url.Values{}
	}
	if query.Get("api-version") == "" {
		query.Set("api-version", version)
	}
	return base + "?" + query.Encode()
}

// send performs a request and returns the response when its status is 2xx.
// The caller closes the body.
func (c *Client) send(ctx context.Context, method, rawURL, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth("", c.pat)
	req.Header.Set("Accept", contentJSON)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, redact(rawURL), err)
	}
	c.log.Debugf("%s %s -> %d (%s)", method, redact(rawURL), resp.StatusCode, time.Since(start).Round(time.Millisecond))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		resp.Body.Close()
		return nil, &StatusError{Method: method, URL: redact(rawURL), StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	return resp, nil
}

// do sends a JSON request and decodes the JSON response into out (if non-nil).
func (c *Client) do(ctx context.Context, method, rawURL, contentType string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
		if contentType == "" {
			contentType = contentJSON
		}
	}

	resp, err := c.send(ctx, method, rawURL, contentType, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	return nil
}

// redact strips the query string so logs and errors stay short.
func redact(rawURL string) string {
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}

// isRevisionConflict reports a failed "test /rev" operation.
func isRevisionConflict(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.StatusCode == http.StatusPreconditionFailed ||
		(se.StatusCode == http.StatusBadRequest && strings.Contains(se.Body, "TF26071"))
}
