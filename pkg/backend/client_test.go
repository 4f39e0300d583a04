package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ha1tch/conceptmap/pkg/logging"
	"github.com/ha1tch/conceptmap/pkg/validate"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	return New(srv.URL+"/", opts...)
}

func TestGenerate(t *testing.T) {
	var got GenerateRequest
	var headers http.Header
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/mindmap/generate", r.URL.Path)
		headers = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"title": "Biology",
			"overview": "Life",
			"nodes": [{"id": "root", "title": "Biology", "children": [
				{"id": "cells", "title": "Cells", "priority": 2, "children": []}
			]}],
			"studyPlan": [{"phase": 1, "title": "Basics", "nodeIds": ["cells"]}]
		}`))
	}, WithToken("tok"))

	doc, err := c.Generate(context.Background(), GenerateRequest{CourseID: "bio", BookID: "b1", Topic: "cells"})
	require.NoError(t, err)
	assert.Equal(t, "Biology", doc.Title)
	require.Len(t, doc.Nodes, 1)
	require.Len(t, doc.Nodes[0].Children, 1)
	assert.Equal(t, 2, doc.Nodes[0].Children[0].Priority)
	require.Len(t, doc.StudyPlan, 1)

	assert.Equal(t, GenerateRequest{CourseID: "bio", BookID: "b1", Topic: "cells"}, got)
	assert.Equal(t, "Bearer tok", headers.Get("Authorization"))
	assert.Equal(t, "application/json", headers.Get("Content-Type"))
	_, err = uuid.Parse(headers.Get("X-Request-ID"))
	assert.NoError(t, err, "request id is a uuid")
}

func TestRequestIDFromContext(t *testing.T) {
	var id string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		id = r.Header.Get("X-Request-ID")
		_, _ = w.Write([]byte(`{"expandedNodes": []}`))
	})
	ctx := logging.WithRequestID(context.Background(), "fixed-id")
	_, err := c.Expand(ctx, ExpandRequest{CourseID: "bio", NodePath: []string{"Biology"}})
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", id)
}

func TestExpand(t *testing.T) {
	var got ExpandRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/mindmap/expand", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"expandedNodes": [
			{"id": "m1", "title": "Mitosis", "children": []},
			{"id": "m2", "title": "Meiosis", "aiHint": "compare", "children": []}
		], "sourcesUsed": ["ch. 4"]}`))
	})

	resp, err := c.Expand(context.Background(), ExpandRequest{
		CourseID: "bio",
		NodePath: []string{"Biology", "Cells", "Division"},
		Prompt:   "focus on phases",
	})
	require.NoError(t, err)
	require.Len(t, resp.ExpandedNodes, 2)
	assert.Equal(t, "compare", resp.ExpandedNodes[1].AIHint)
	assert.Equal(t, []string{"ch. 4"}, resp.SourcesUsed)
	assert.Equal(t, []string{"Biology", "Cells", "Division"}, got.NodePath)
	assert.Equal(t, "focus on phases", got.Prompt)
}

func TestHTTPError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	})
	_, err := c.Generate(context.Background(), GenerateRequest{CourseID: "bio"})
	var herr *HTTPError
	require.True(t, errors.As(err, &herr), "got %v", err)
	assert.Equal(t, http.StatusServiceUnavailable, herr.Status)
	assert.Equal(t, "model overloaded", herr.Body)
	assert.True(t, herr.Temporary())
	assert.Contains(t, herr.Error(), "503")
}

func TestMalformedResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	})
	_, err := c.Generate(context.Background(), GenerateRequest{CourseID: "bio"})
	assert.ErrorIs(t, err, ErrDecode)
}

func TestValidation(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { called = true })

	_, err := c.Generate(context.Background(), GenerateRequest{CourseID: "  "})
	var verr *validate.Error
	assert.True(t, errors.As(err, &verr))

	_, err = c.Expand(context.Background(), ExpandRequest{CourseID: "bio"})
	assert.True(t, errors.As(err, &verr))

	_, err = c.Expand(context.Background(), ExpandRequest{CourseID: "bio", NodePath: []string{"A", ""}})
	assert.True(t, errors.As(err, &verr))

	assert.False(t, called, "invalid requests never reach the server")
}

func TestContextCancel(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Expand(ctx, ExpandRequest{CourseID: "bio", NodePath: []string{"A"}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
