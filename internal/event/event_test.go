package event

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeHashDeterministic(t *testing.T) {
	e := New("evt-1", TaskCreated, "scheduler", Payload{"id": "t1", "target": "radix"})
	e.PrevHash = "abc"

	h1 := ComputeHash(e)
	h2 := ComputeHash(e)
	require.Equal(t, h1, h2)
}

func TestComputeHashPayloadKeyOrderIndependent(t *testing.T) {
	e1 := New("evt-1", TaskCreated, "scheduler", Payload{"a": 1, "b": 2})
	e2 := New("evt-1", TaskCreated, "scheduler", Payload{"b": 2, "a": 1})
	e1.Timestamp = e2.Timestamp

	require.Equal(t, ComputeHash(e1), ComputeHash(e2))
}

func TestDeterministicIDStable(t *testing.T) {
	id1 := DeterministicID("attempt-123", "created")
	id2 := DeterministicID("attempt-123", "created")
	id3 := DeterministicID("attempt-456", "created")

	require.Equal(t, id1, id2)
	require.NotEqual(t, id1, id3)
}
