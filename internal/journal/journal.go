// Package journal implements the append-only, hash-chained event log with
// interchangeable ndjson and Postgres back-ends.
package journal

import (
	"context"
	"errors"
	"fmt"

	"github.com/swarmguard/leviathan/internal/event"
)

// ErrDuplicateEvent is returned by Append when an event with the same
// EventID has already been durably appended. The ingest API (§4.8)
// relies on this to make a worker's crash-and-retry bundle re-post
// idempotent: re-appending the same attempt_id's events must not
// double-count them in the graph projection or scheduler counters.
var ErrDuplicateEvent = errors.New("event already appended")

// Journal is the append-only ordered log of events.
type Journal interface {
	// Append assigns prev_hash/hash and durably writes e, returning the
	// completed record. Concurrent callers are serialized. If an event
	// with the same EventID was already appended, Append returns the
	// previously-stored record alongside ErrDuplicateEvent instead of
	// writing a second time.
	Append(ctx context.Context, e event.Event) (event.Event, error)
	// Scan returns events in append order, optionally after `since` and
	// bounded by limit (0 means unbounded).
	Scan(ctx context.Context, since string, limit int) ([]event.Event, error)
	// LastHash returns the hash of the most recently appended event, or
	// "" if the journal is empty.
	LastHash(ctx context.Context) (string, error)
	// Verify traverses the entire log checking H1 and H2.
	Verify(ctx context.Context) (bool, error)
	Close() error
}

// VerifyError is returned by Verify on failure, naming the offending event.
type VerifyError struct {
	EventID string
	Reason  string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("journal verify failed at event %s: %s", e.EventID, e.Reason)
}

// verifyChain is the back-end-agnostic H1/H2 check shared by both
// implementations, given events in append order.
func verifyChain(events []event.Event) (bool, error) {
	var prevHash string
	for i, e := range events {
		if i == 0 {
			if e.PrevHash != "" {
				return false, &VerifyError{EventID: e.EventID, Reason: "first event has non-empty prev_hash"}
			}
		} else if e.PrevHash != prevHash {
			return false, &VerifyError{EventID: e.EventID, Reason: "prev_hash does not match predecessor's hash"}
		}

		want := event.ComputeHash(e)
		if want != e.Hash {
			return false, &VerifyError{EventID: e.EventID, Reason: "hash does not match canonical recomputation"}
		}
		prevHash = e.Hash
	}
	return true, nil
}
