package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakePRFiles struct {
	byNumber map[int][]string
}

func (f *fakePRFiles) ListPRFiles(ctx context.Context, number int) ([]string, error) {
	return f.byNumber[number], nil
}

func TestHotFileConflictDetected(t *testing.T) {
	lister := &fakePRFiles{byNumber: map[int][]string{7: {"tools/leviathan/runner.go"}}}
	hot := []string{"tools/leviathan/runner.go"}

	conflict, err := hotFileConflict(context.Background(), lister, []int{7}, []string{"tools/leviathan/runner.go"}, hot)
	require.NoError(t, err)
	require.True(t, conflict)
}

func TestHotFileConflictNoneWhenTaskDoesNotTouchHotFile(t *testing.T) {
	lister := &fakePRFiles{byNumber: map[int][]string{7: {"tools/leviathan/runner.go"}}}
	hot := []string{"tools/leviathan/runner.go"}

	conflict, err := hotFileConflict(context.Background(), lister, []int{7}, []string{"docs/guide.md"}, hot)
	require.NoError(t, err)
	require.False(t, conflict)
}

func TestHotFileConflictNoneWhenNoOpenPRTouchesIt(t *testing.T) {
	lister := &fakePRFiles{byNumber: map[int][]string{7: {"docs/other.md"}}}
	hot := []string{"tools/leviathan/runner.go"}

	conflict, err := hotFileConflict(context.Background(), lister, []int{7}, []string{"tools/leviathan/runner.go"}, hot)
	require.NoError(t, err)
	require.False(t, conflict)
}
