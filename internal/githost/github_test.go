package githost

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractTaskIDAllThreeVariants(t *testing.T) {
	id, ok := ExtractTaskID("agent/taskA")
	require.True(t, ok)
	require.Equal(t, "taskA", id)

	id, ok = ExtractTaskID("agent/taskA-20260730120000")
	require.True(t, ok)
	require.Equal(t, "taskA", id)

	id, ok = ExtractTaskID("agent/task-exec-attempt-taskA-abc12345")
	require.True(t, ok)
	require.Equal(t, "taskA", id)
}

func TestExtractTaskIDRejectsNonAgentBranch(t *testing.T) {
	_, ok := ExtractTaskID("feature/something")
	require.False(t, ok)
}
