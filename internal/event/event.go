// Package event defines the immutable, hash-chained Event record that is
// the system's sole source of truth, and the closed set of event types.
package event

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Type is a namespaced event type drawn from a closed set.
type Type string

const (
	TargetRegistered    Type = "target.registered"
	TaskCreated         Type = "task.created"
	TaskUpdated         Type = "task.updated"
	TaskCompleted       Type = "task.completed"
	TaskBlocked         Type = "task.blocked"
	AttemptCreated      Type = "attempt.created"
	AttemptStarted      Type = "attempt.started"
	AttemptSucceeded    Type = "attempt.succeeded"
	AttemptFailed       Type = "attempt.failed"
	AttemptInvalidated  Type = "attempt.invalidated"
	ArtifactCreated     Type = "artifact.created"
	PRCreated           Type = "pr.created"
	PRMerged            Type = "pr.merged"
	PRClosed            Type = "pr.closed"
	TestsStarted        Type = "tests.started"
	TestsPassed         Type = "tests.passed"
	TestsFailed         Type = "tests.failed"
	ModelCallStarted    Type = "model.call_started"
	ModelCallCompleted  Type = "model.call_completed"
	BootstrapStarted    Type = "bootstrap.started"
	BootstrapCompleted  Type = "bootstrap.completed"
	RepoIndexed         Type = "repo.indexed"
	FileDiscovered      Type = "file.discovered"
	WorkflowDiscovered  Type = "workflow.discovered"
	APIRouteDiscovered  Type = "api.route.discovered"
	RetryScheduled      Type = "retry.scheduled"
)

// Payload is an opaque ordered map of primitive fields.
type Payload map[string]any

// Event is the immutable, hash-chained record appended to the journal.
type Event struct {
	EventID   string    `json:"event_id"`
	EventType Type      `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	ActorID   string    `json:"actor_id"`
	Payload   Payload   `json:"payload"`
	PrevHash  string    `json:"prev_hash"`
	Hash      string    `json:"hash"`
}

// New constructs an event with hashes unset; Journal.Append fills them in.
func New(id string, typ Type, actorID string, payload Payload) Event {
	if payload == nil {
		payload = Payload{}
	}
	return Event{
		EventID:   id,
		EventType: typ,
		Timestamp: time.Now().UTC(),
		ActorID:   actorID,
		Payload:   payload,
	}
}

// Canonicalize produces the deterministic byte representation hashed to
// form Hash: sorted payload keys, stable separators, RFC3339Nano timestamp.
func Canonicalize(e Event) []byte {
	var b strings.Builder
	b.WriteString(e.EventID)
	b.WriteByte('|')
	b.WriteString(string(e.EventType))
	b.WriteByte('|')
	b.WriteString(e.Timestamp.UTC().Format(time.RFC3339Nano))
	b.WriteByte('|')
	b.WriteString(e.ActorID)
	b.WriteByte('|')
	b.WriteString(canonicalPayload(e.Payload))
	b.WriteByte('|')
	b.WriteString(e.PrevHash)
	return []byte(b.String())
}

func canonicalPayload(p Payload) string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		v, err := json.Marshal(p[k])
		if err != nil {
			v = []byte(fmt.Sprintf("%q", fmt.Sprintf("%v", p[k])))
		}
		b.WriteString(fmt.Sprintf("%q:%s", k, v))
	}
	b.WriteByte('}')
	return b.String()
}

// ComputeHash returns SHA256(Canonicalize(e)) hex-encoded, satisfying H1.
func ComputeHash(e Event) string {
	sum := sha256.Sum256(Canonicalize(e))
	return hex.EncodeToString(sum[:])
}

// DeterministicID derives an event_id purely from its logical identity,
// used by the worker so a crashed-and-restarted attempt with the same
// attempt_id does not double count (idempotence, §4.6).
func DeterministicID(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])[:32]
}
