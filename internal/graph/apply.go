package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/swarmguard/leviathan/internal/event"
)

// Apply folds one event into the graph per the exhaustive rule set of
// §4.3. Unknown event types are pure journal events and mutate no state.
func Apply(g *Graph, e event.Event) {
	switch e.EventType {
	case event.TargetRegistered:
		id := str(e.Payload["name"])
		g.UpsertNode(id, Target, e.Payload)

	case event.TaskCreated:
		id := str(e.Payload["id"])
		g.UpsertNode(id, Task, e.Payload)
		if target := str(e.Payload["target"]); target != "" {
			g.AddEdge(id, DependsOn, target)
		}

	case event.TaskUpdated, event.TaskCompleted, event.TaskBlocked:
		id := str(e.Payload["id"])
		g.UpsertNode(id, Task, e.Payload)

	case event.AttemptCreated:
		id := str(e.Payload["attempt_id"])
		g.UpsertNode(id, Attempt, e.Payload)
		if task := str(e.Payload["task_id"]); task != "" {
			g.AddEdge(id, DependsOn, task)
		}

	case event.AttemptStarted, event.AttemptSucceeded, event.AttemptFailed, event.AttemptInvalidated:
		id := str(e.Payload["attempt_id"])
		g.UpsertNode(id, Attempt, e.Payload)

	case event.ArtifactCreated:
		hash := str(e.Payload["sha256"])
		g.UpsertNode(hash, Artifact, e.Payload)
		if attempt := str(e.Payload["attempt_id"]); attempt != "" {
			g.AddEdge(attempt, Produced, hash)
		}

	case event.PRCreated:
		id := prNodeID(e)
		g.UpsertNode(id, PullRequest, e.Payload)
		if attempt := str(e.Payload["attempt_id"]); attempt != "" {
			g.AddEdge(attempt, Produced, id)
		}

	default:
		// pure journal event; no graph state changes.
	}

	g.setLastHash(e.Hash)
}

// prNodeID implements the precise identifier-selection rule of §4.3: a
// numeric PR number wins, else a deterministic hash of a non-empty URL,
// else the leading chars of the event_id.
func prNodeID(e event.Event) string {
	if num, ok := numericPRNumber(e.Payload["pr_number"]); ok {
		return "pr-" + num
	}
	if url := str(e.Payload["pr_url"]); url != "" {
		sum := sha256.Sum256([]byte(url))
		return "pr-" + hex.EncodeToString(sum[:])[:12]
	}
	id := e.EventID
	if len(id) > 12 {
		id = id[:12]
	}
	return "pr-" + id
}

func numericPRNumber(v any) (string, bool) {
	switch n := v.(type) {
	case int:
		return strconv.Itoa(n), true
	case int64:
		return strconv.FormatInt(n, 10), true
	case float64:
		if n == float64(int(n)) {
			return strconv.Itoa(int(n)), true
		}
	}
	return "", false
}

// Rebuild clears g and replays every event in order, satisfying G1: the
// result is a pure function of the given event sequence.
func Rebuild(g *Graph, events []event.Event) {
	g.Clear()
	for _, e := range events {
		Apply(g, e)
	}
}
