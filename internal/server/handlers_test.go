// Copyright (C) 2025 Taskweave Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskweave/taskweave/internal/index"
	"github.com/taskweave/taskweave/internal/orchestrator"
	"github.com/taskweave/taskweave/internal/project"
	"github.com/taskweave/taskweave/internal/settings"
	"github.com/taskweave/taskweave/internal/snapshot"
	"github.com/taskweave/taskweave/internal/task"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) (*Server, *index.Indexer) {
	t.Helper()
	root := t.TempDir()

	snap := settings.Default(root)
	snap.Orchestrator.Workers = 2
	snap.Orchestrator.RequestTimeout = 2 * time.Second
	snap.Orchestrator.QueueInterval = 0

	resolver, err := project.NewResolver(snap.ResolverOptions(), nil)
	require.NoError(t, err)

	orch := orchestrator.New(snap, resolver, nil, nil)
	orch.Start(context.Background())
	t.Cleanup(orch.Close)

	store, err := snapshot.Open(snapshot.Config{InMemory: true}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	idx := index.NewIndexer(nil)
	srv := New(Options{
		Indexer:   idx,
		Orch:      orch,
		Snapshots: store,
		VaultID:   root,
		Addr:      "127.0.0.1:0",
	})
	_ = os.MkdirAll(filepath.Join(root, "notes"), 0o755)
	return srv, idx
}

func seedIndex(idx *index.Indexer) {
	src := task.MarkdownSource{Line: 0}
	done := task.MarkdownSource{Line: 1}
	idx.UpdateIndexWithTasks("a.md", []task.Task{
		{
			ID: src.TaskID("a.md"), Content: "water plants",
			FilePath: "a.md", Status: " ", Source: src,
			Metadata: task.Metadata{Tags: []string{"garden"}, Priority: 4},
		},
		{
			ID: done.TaskID("a.md"), Content: "mow lawn", Line: 1,
			FilePath: "a.md", Completed: true, Status: "x", Source: done,
			Metadata: task.Metadata{Tags: []string{"garden"}},
		},
	}, 100)
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthReportsTaskCount(t *testing.T) {
	srv, idx := newTestServer(t)
	seedIndex(idx)

	w := doJSON(t, srv, http.MethodGet, "/v1/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 2, body["tasks"])
}

func TestQueryFiltersAndSorts(t *testing.T) {
	srv, idx := newTestServer(t)
	seedIndex(idx)

	w := doJSON(t, srv, http.MethodPost, "/v1/tasks/query", QueryRequest{
		Filters: []index.Filter{{Type: "tag", Operator: "=", Value: "garden"}},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp QueryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Count)
	// Default sort puts the open task first.
	assert.Equal(t, "water plants", resp.Tasks[0].Content)
}

func TestQueryRejectsUnknownFilterType(t *testing.T) {
	srv, idx := newTestServer(t)
	seedIndex(idx)

	w := doJSON(t, srv, http.MethodPost, "/v1/tasks/query", QueryRequest{
		Filters: []index.Filter{{Type: "flavor", Operator: "=", Value: "sour"}},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "UNKNOWN_FILTER_TYPE", resp.Code)
}

func TestGetTaskByID(t *testing.T) {
	srv, idx := newTestServer(t)
	seedIndex(idx)

	w := doJSON(t, srv, http.MethodGet, "/v1/tasks/a.md:L0", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got task.Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "water plants", got.Content)

	w = doJSON(t, srv, http.MethodGet, "/v1/tasks/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProjectEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	root := srv.vaultID
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes", "plan.md"),
		[]byte("---\nproject: Greenhouse\n---\n- [ ] x\n"), 0o644))

	w := doJSON(t, srv, http.MethodGet, "/v1/project?path=notes%2Fplan.md", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var data project.CachedProjectData
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &data))
	require.NotNil(t, data.TgProject)
	assert.Equal(t, "Greenhouse", data.TgProject.Name)

	w = doJSON(t, srv, http.MethodGet, "/v1/project", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProjectBatchEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	root := srv.vaultID
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes", "a.md"),
		[]byte("---\nproject: Alpha\n---\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes", "b.md"),
		[]byte("---\nproject: Beta\n---\n"), 0o644))

	w := doJSON(t, srv, http.MethodPost, "/v1/project/batch", BatchProjectRequest{
		Paths: []string{"notes/a.md", "notes/b.md"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Projects map[string]project.CachedProjectData `json:"projects"`
		Errors   map[string]string                    `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Projects, 2)
	assert.Empty(t, body.Errors)

	w = doJSON(t, srv, http.MethodPost, "/v1/project/batch", BatchProjectRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSnapshotSaveAndRestore(t *testing.T) {
	srv, idx := newTestServer(t)
	seedIndex(idx)

	w := doJSON(t, srv, http.MethodPost, "/v1/snapshot/save", nil)
	require.Equal(t, http.StatusOK, w.Code)

	idx.RemoveFileFromIndex("a.md")
	require.Equal(t, 0, idx.TaskCount())

	w = doJSON(t, srv, http.MethodPost, "/v1/snapshot/restore", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, idx.TaskCount())
}

func TestSnapshotRestoreMissing(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doJSON(t, srv, http.MethodPost, "/v1/snapshot/restore", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOrchestratorStatsRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)

	_, err := srv.orch.ParseFile(context.Background(), orchestrator.FileContent{
		Path:    "x.md",
		Content: "- [ ] thing",
	})
	require.NoError(t, err)

	w := doJSON(t, srv, http.MethodGet, "/v1/orchestrator/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats map[string]orchestrator.ClassStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.EqualValues(t, 1, stats[string(orchestrator.OpParseFile)].Success)

	w = doJSON(t, srv, http.MethodPost, "/v1/orchestrator/stats/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, srv, http.MethodGet, "/v1/orchestrator/stats", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.EqualValues(t, 0, stats[string(orchestrator.OpParseFile)].Success)
}

func TestMetricsEndpointServes(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doJSON(t, srv, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
