package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/swarmguard/leviathan/internal/event"
)

func scenarioEvents() []event.Event {
	return []event.Event{
		event.New("e1", event.TargetRegistered, "operator", event.Payload{"name": "radix"}),
		event.New("e2", event.TaskCreated, "scheduler", event.Payload{"id": "t1", "target": "radix"}),
		event.New("e3", event.AttemptCreated, "scheduler", event.Payload{"attempt_id": "a1", "task_id": "t1"}),
	}
}

func TestRebuildDeterminism(t *testing.T) {
	events := scenarioEvents()

	g1 := New()
	Rebuild(g1, events)

	require.Len(t, g1.QueryNodes("", nil), 3)
	require.NotNil(t, g1.GetNode("radix"))
	require.NotNil(t, g1.GetNode("t1"))
	require.NotNil(t, g1.GetNode("a1"))

	edges := g1.QueryEdges("", "", "")
	require.Len(t, edges, 2)

	g2 := New()
	Rebuild(g2, events)
	require.Equal(t, g1.NodeCounts(), g2.NodeCounts())
	require.Equal(t, g1.EdgeCounts(), g2.EdgeCounts())
}

func TestPRNodeIDFallbackOnURL(t *testing.T) {
	g := New()
	e := event.New("evt-pr-1", event.PRCreated, "worker-a1", event.Payload{
		"pr_url": "https://host/repo/pull/placeholder",
	})
	Apply(g, e)

	sum := sha256.Sum256([]byte("https://host/repo/pull/placeholder"))
	wantID := "pr-" + hex.EncodeToString(sum[:])[:12]

	nodes := g.QueryNodes(PullRequest, nil)
	require.Len(t, nodes, 1)
	require.Equal(t, wantID, nodes[0].ID)

	// Re-ingesting the same URL must not create a duplicate node.
	e2 := event.New("evt-pr-2", event.PRCreated, "worker-a1", event.Payload{
		"pr_url": "https://host/repo/pull/placeholder",
	})
	Apply(g, e2)
	require.Len(t, g.QueryNodes(PullRequest, nil), 1)
}

func TestPRNodeIDPrefersNumber(t *testing.T) {
	g := New()
	e := event.New("evt-pr-1", event.PRCreated, "worker-a1", event.Payload{
		"pr_number": 42,
		"pr_url":    "https://host/repo/pull/42",
	})
	Apply(g, e)
	require.NotNil(t, g.GetNode("pr-42"))
}
