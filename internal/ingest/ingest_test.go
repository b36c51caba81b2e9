package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/swarmguard/leviathan/internal/event"
	"github.com/swarmguard/leviathan/internal/graph"
	"github.com/swarmguard/leviathan/internal/journal"
)

const testToken = "s3cr3t-token"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	j, err := journal.OpenNDJSON(filepath.Join(t.TempDir(), "journal.ndjson"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	return &Server{
		Journal:           j,
		Graph:             graph.New(),
		ControlPlaneToken: testToken,
		AutonomyEnabled:   true,
		AutonomySource:    "config",
	}
}

func authed(req *http.Request) *http.Request {
	req.Header.Set("Authorization", "Bearer "+testToken)
	return req
}

func TestHealthzRequiresNoAuth(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestIngestRejectsMissingToken(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/events/ingest", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIngestAppendsEventsAndProjectsGraph(t *testing.T) {
	s := newTestServer(t)

	body := bundleRequest{
		Target:   "demo",
		BundleID: "bundle-1",
		Events: []event.Event{
			event.New("e1", event.TaskCreated, "scheduler", event.Payload{"id": "taskA", "status": "pending"}),
		},
	}
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := authed(httptest.NewRequest(http.MethodPost, "/v1/events/ingest", bytes.NewReader(data)))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.EqualValues(t, 1, resp["ingested"])

	require.NotNil(t, s.Graph.GetNode("taskA"))
}

func TestIngestReingestingSameEventIDDoesNotDoubleCount(t *testing.T) {
	s := newTestServer(t)

	body := bundleRequest{
		Target:   "demo",
		BundleID: "bundle-1",
		Events: []event.Event{
			event.New("attempt-created-1", event.AttemptCreated, "worker", event.Payload{"attempt_id": "attempt-1", "task_id": "taskA", "status": "created"}),
		},
	}
	data, err := json.Marshal(body)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		req := authed(httptest.NewRequest(http.MethodPost, "/v1/events/ingest", bytes.NewReader(data)))
		rec := httptest.NewRecorder()
		s.Router().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.EqualValues(t, 1, resp["ingested"])
	}

	events, err := s.Journal.Scan(context.Background(), "", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestGraphSummaryReturnsCounts(t *testing.T) {
	s := newTestServer(t)
	applied, err := s.Journal.Append(context.Background(), event.New("e1", event.TaskCreated, "scheduler", event.Payload{"id": "taskA"}))
	require.NoError(t, err)
	graph.Apply(s.Graph, applied)

	req := authed(httptest.NewRequest(http.MethodGet, "/v1/graph/summary", nil))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "node_counts")
}

func TestGetAttemptNotFound(t *testing.T) {
	s := newTestServer(t)
	req := authed(httptest.NewRequest(http.MethodGet, "/v1/attempts/does-not-exist", nil))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInvalidateAppendsInvalidatedEvent(t *testing.T) {
	s := newTestServer(t)
	applied, err := s.Journal.Append(context.Background(), event.New("e1", event.AttemptCreated, "scheduler", event.Payload{"attempt_id": "attempt-1", "task_id": "taskA"}))
	require.NoError(t, err)
	graph.Apply(s.Graph, applied)

	req := authed(httptest.NewRequest(http.MethodPost, "/v1/attempts/attempt-1/invalidate", bytes.NewBufferString(`{"reason":"bad output"}`)))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	node := s.Graph.GetNode("attempt-1")
	require.NotNil(t, node)
	require.Equal(t, "invalidated", node.Properties["status"])
}

func TestAutonomyStatusReflectsConfig(t *testing.T) {
	s := newTestServer(t)
	req := authed(httptest.NewRequest(http.MethodGet, "/v1/autonomy/status", nil))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, true, resp["autonomy_enabled"])
}
