package backlog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseWrappedShape(t *testing.T) {
	data := []byte(`
version: "1"
max_open_prs: 3
tasks:
  - id: t1
    title: Add docs
    scope: docs
    ready: true
    allowed_paths: ["docs/"]
`)
	b, err := Parse(data)
	require.NoError(t, err)
	require.Equal(t, 3, b.MaxOpenPRs)
	require.Len(t, b.Tasks, 1)
	require.Equal(t, "t1", b.Tasks[0].ID)
}

func TestParseBareSequenceShape(t *testing.T) {
	data := []byte(`
- task_id: legacy-1
  title: Fix CI
  scope: ci
  ready: true
`)
	b, err := Parse(data)
	require.NoError(t, err)
	require.Len(t, b.Tasks, 1)
	require.Equal(t, "legacy-1", b.Tasks[0].ID)
}

func TestParseRejectsMissingID(t *testing.T) {
	data := []byte(`
tasks:
  - title: No id here
`)
	_, err := Parse(data)
	require.Error(t, err)
}
