// Package ingest implements the authenticated HTTP surface (§4.8) that
// accepts worker-reported event bundles, appends and projects them, and
// serves graph summary/attempt/failure queries.
package ingest

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/swarmguard/leviathan/internal/artifact"
	"github.com/swarmguard/leviathan/internal/event"
	"github.com/swarmguard/leviathan/internal/graph"
	"github.com/swarmguard/leviathan/internal/journal"
)

// Sink forwards an ingested bundle best-effort to an observability
// sink; implemented by obssink.NATSForwarder.
type Sink interface {
	Forward(bundle []byte) error
}

// Server wires the journal, graph projection, and optional sink behind
// chi routes guarded by a constant-time bearer-token comparison.
type Server struct {
	Journal         journal.Journal
	Graph           *graph.Graph
	Sink            Sink
	ControlPlaneToken string
	AutonomyEnabled bool
	AutonomySource  string
	Logger          *slog.Logger
}

type bundleRequest struct {
	Target    string                  `json:"target"`
	BundleID  string                  `json:"bundle_id"`
	Events    []event.Event           `json:"events"`
	Artifacts []artifact.Coordinates  `json:"artifacts"`
}

// Router builds the chi mux.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Post("/v1/events/ingest", s.handleIngest)
		r.Get("/v1/graph/summary", s.handleGraphSummary)
		r.Get("/v1/attempts", s.handleListAttempts)
		r.Get("/v1/attempts/{id}", s.handleGetAttempt)
		r.Get("/v1/failures", s.handleFailures)
		r.Post("/v1/attempts/{id}/invalidate", s.handleInvalidate)
		r.Get("/v1/autonomy/status", s.handleAutonomyStatus)
	})

	return r
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := extractBearer(r.Header.Get("Authorization"))
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.ControlPlaneToken)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractBearer(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req bundleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}

	ingested := 0
	for _, e := range req.Events {
		applied, err := s.Journal.Append(r.Context(), e)
		switch {
		case errors.Is(err, journal.ErrDuplicateEvent):
			// Already durably appended and projected by an earlier delivery
			// of this event_id (e.g. a worker crash-retry re-posting the
			// same bundle) — idempotent no-op, not a failure.
			ingested++
			continue
		case err != nil:
			s.logger().Warn("skipping event that failed to append", "event_type", e.EventType, "error", err)
			continue
		}
		graph.Apply(s.Graph, applied)
		ingested++
	}

	if s.Sink != nil {
		go s.forwardBestEffort(req)
	}

	writeJSON(w, http.StatusOK, map[string]any{"ingested": ingested, "bundle_id": req.BundleID, "status": "ok"})
}

func (s *Server) forwardBestEffort(req bundleRequest) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		data, err := json.Marshal(req)
		if err != nil {
			return
		}
		if err := s.Sink.Forward(data); err != nil {
			s.logger().Debug("observability sink forward failed", "error", err)
		}
	}()
	select {
	case <-done:
	case <-time.After(1 * time.Second):
	}
}

func (s *Server) handleGraphSummary(w http.ResponseWriter, r *http.Request) {
	nodeCounts := s.Graph.NodeCounts()
	edgeCounts := s.Graph.EdgeCounts()

	events, err := s.Journal.Scan(r.Context(), "", 0)
	if err != nil {
		http.Error(w, "failed to scan journal", http.StatusInternalServerError)
		return
	}
	recent := lastN(events, 20)

	writeJSON(w, http.StatusOK, map[string]any{
		"node_counts": nodeCounts,
		"edge_counts": edgeCounts,
		"recent_events": recent,
	})
}

func (s *Server) handleListAttempts(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r.URL.Query().Get("limit"), 50)
	attempts := s.Graph.QueryNodes(graph.Attempt, nil)

	sort.Slice(attempts, func(i, j int) bool {
		return str(attempts[i].Properties["timestamp"]) > str(attempts[j].Properties["timestamp"])
	})
	if len(attempts) > limit {
		attempts = attempts[:limit]
	}
	writeJSON(w, http.StatusOK, attempts)
}

func (s *Server) handleGetAttempt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	node := s.Graph.GetNode(id)
	if node == nil {
		http.Error(w, "attempt not found", http.StatusNotFound)
		return
	}

	events, err := s.Journal.Scan(r.Context(), "", 0)
	if err != nil {
		http.Error(w, "failed to scan journal", http.StatusInternalServerError)
		return
	}
	var related []event.Event
	for _, e := range events {
		if str(e.Payload["attempt_id"]) == id {
			related = append(related, e)
		}
	}

	var artifacts []*graph.Node
	for _, edge := range s.Graph.QueryEdges(id, "", graph.Produced) {
		if n := s.Graph.GetNode(edge.To); n != nil {
			artifacts = append(artifacts, n)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"attempt": node, "events": related, "artifacts": artifacts})
}

func (s *Server) handleFailures(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r.URL.Query().Get("limit"), 50)
	events, err := s.Journal.Scan(r.Context(), "", 0)
	if err != nil {
		http.Error(w, "failed to scan journal", http.StatusInternalServerError)
		return
	}

	var failures []event.Event
	for _, e := range events {
		if e.EventType == event.AttemptFailed {
			failures = append(failures, e)
		}
	}
	sort.Slice(failures, func(i, j int) bool { return failures[i].Timestamp.After(failures[j].Timestamp) })
	if len(failures) > limit {
		failures = failures[:limit]
	}
	writeJSON(w, http.StatusOK, failures)
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	node := s.Graph.GetNode(id)
	if node == nil || node.Type != graph.Attempt {
		http.Error(w, "attempt not found", http.StatusNotFound)
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	e := event.New(event.DeterministicID(id, "invalidated"), event.AttemptInvalidated, "ingest", event.Payload{
		"attempt_id": id, "status": "invalidated", "reason": body.Reason,
	})
	applied, err := s.Journal.Append(r.Context(), e)
	if err != nil && !errors.Is(err, journal.ErrDuplicateEvent) {
		http.Error(w, "failed to append invalidation event", http.StatusInternalServerError)
		return
	}
	if err == nil {
		graph.Apply(s.Graph, applied)
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (s *Server) handleAutonomyStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"autonomy_enabled": s.AutonomyEnabled, "source": s.AutonomySource})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseLimit(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func lastN(events []event.Event, n int) []event.Event {
	if len(events) <= n {
		reversed := make([]event.Event, len(events))
		for i, e := range events {
			reversed[len(events)-1-i] = e
		}
		return reversed
	}
	tail := events[len(events)-n:]
	reversed := make([]event.Event, len(tail))
	for i, e := range tail {
		reversed[len(tail)-1-i] = e
	}
	return reversed
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
