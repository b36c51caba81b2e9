package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/swarmguard/leviathan/internal/event"
)

func TestNDJSONAppendRejectsDuplicateEventID(t *testing.T) {
	j, err := OpenNDJSON(filepath.Join(t.TempDir(), "journal.ndjson"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	ctx := context.Background()
	e := event.New("dup-1", event.TaskCreated, "scheduler", event.Payload{"id": "taskA"})

	first, err := j.Append(ctx, e)
	require.NoError(t, err)

	second, err := j.Append(ctx, e)
	require.True(t, errors.Is(err, ErrDuplicateEvent))
	require.Equal(t, first.Hash, second.Hash)

	events, err := j.Scan(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestNDJSONAppendRejectsDuplicateAfterReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.ndjson")
	j, err := OpenNDJSON(path)
	require.NoError(t, err)

	ctx := context.Background()
	e := event.New("dup-2", event.TaskCreated, "scheduler", event.Payload{"id": "taskB"})
	_, err = j.Append(ctx, e)
	require.NoError(t, err)
	require.NoError(t, j.Close())

	reopened, err := OpenNDJSON(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	_, err = reopened.Append(ctx, e)
	require.True(t, errors.Is(err, ErrDuplicateEvent))
}
