package policy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWritePermittedHonorsSegmentBoundary(t *testing.T) {
	require.True(t, WritePermitted("docs/readme.md", []string{"docs/"}))
	require.False(t, WritePermitted("docsite/readme.md", []string{"docs"}))
	require.False(t, WritePermitted("src/main.py", []string{"docs/"}))
}

func TestScopePermittedDenyWins(t *testing.T) {
	allow := []Pattern{"services/*"}
	deny := []Pattern{"services/secrets/*"}

	require.True(t, ScopePermitted([]string{"services/api/"}, allow, deny))
	require.False(t, ScopePermitted([]string{"services/secrets/keys.yaml"}, allow, deny))
}

func TestScopePermittedEmptyAllowListPermitsAnythingNotDenied(t *testing.T) {
	deny := []Pattern{"infra/"}
	require.True(t, ScopePermitted([]string{"docs/"}, nil, deny))
	require.False(t, ScopePermitted([]string{"infra/network.tf"}, nil, deny))
}
