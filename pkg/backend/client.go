// Package backend is the HTTP client for the mindmap generation and node
// expansion endpoints.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ha1tch/conceptmap/pkg/logging"
	"github.com/ha1tch/conceptmap/pkg/mindmap"
	"github.com/ha1tch/conceptmap/pkg/validate"
)

const (
	generatePath = "/api/mindmap/generate"
	expandPath   = "/api/mindmap/expand"

	// maxErrorBody bounds how much of an error response is kept.
	maxErrorBody = 4096
)

// GenerateRequest asks for a whole concept map.
type GenerateRequest struct {
	CourseID   string   `json:"courseId" validate:"notblank"`
	BookID     string   `json:"bookId,omitempty"`
	Topic      string   `json:"topic,omitempty"`
	FocusAreas []string `json:"focusAreas,omitempty"`
}

// ExpandRequest asks for new children of the last node in NodePath.
type ExpandRequest struct {
	CourseID string   `json:"courseId" validate:"notblank"`
	BookID   string   `json:"bookId,omitempty"`
	NodePath []string `json:"nodePath" validate:"min=1,dive,notblank"`
	Prompt   string   `json:"prompt,omitempty"`
}

// ExpandResponse carries the returned child descriptors.
type ExpandResponse struct {
	ExpandedNodes []mindmap.NodeDoc `json:"expandedNodes"`
	SourcesUsed   []string          `json:"sourcesUsed,omitempty"`
}

// HTTPError is a non-2xx response.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend returned %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("backend returned %d %s: %s", e.Status, http.StatusText(e.Status), e.Body)
}

// Temporary reports whether retrying later could succeed.
func (e *HTTPError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// ErrDecode reports a response body that is not the expected JSON.
var ErrDecode = errors.New("backend: malformed response")

// Doer is satisfied by *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client calls the backend endpoints.
type Client struct {
	baseURL string
	token   string
	http    Doer
	log     *logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithToken sends a bearer token with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the transport.
func WithHTTPClient(d Doer) Option {
	return func(c *Client) { c.http = d }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http = &http.Client{Timeout: d} }
}

// New creates a client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	c.log = logging.OrDefault(c.log).WithField("component", "backend")
	return c
}

// Generate requests a whole concept map.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*mindmap.Document, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	var doc mindmap.Document
	if err := c.post(ctx, generatePath, req, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Expand requests new children for the node at the end of req.NodePath.
func (c *Client) Expand(ctx context.Context, req ExpandRequest) (*ExpandResponse, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	var resp ExpandResponse
	if err := c.post(ctx, expandPath, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) post(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("backend: encode request: %w", err)
	}

	reqID := logging.RequestID(ctx)
	if reqID == "" {
		reqID = uuid.NewString()
		ctx = logging.WithRequestID(ctx, reqID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	c.log.DebugContext(ctx, "POST %s", path)
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.WarnContext(ctx, "POST %s failed: %v", path, err)
		return fmt.Errorf("backend: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		herr := &HTTPError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
		c.log.WarnContext(ctx, "POST %s: %v", path, herr)
		return herr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDecode, path, err)
	}
	c.log.DebugContext(ctx, "POST %s ok in %v", path, time.Since(start).Round(time.Millisecond))
	return nil
}
