package worker

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/swarmguard/leviathan/internal/failure"
)

func TestResolveScopeAcceptsMatchingDeclaredScope(t *testing.T) {
	scope, err := ResolveScope("docs", []string{"docs/a.md"})
	require.NoError(t, err)
	require.Equal(t, "docs", scope)
}

func TestResolveScopeRejectsDeclaredScopeDisagreeingWithChangedFiles(t *testing.T) {
	_, err := ResolveScope("docs", []string{"infra/terraform/main.tf"})
	require.Error(t, err)
	ferr, ok := err.(*failure.Error)
	require.True(t, ok)
	require.Equal(t, failure.ScopeMismatch, ferr.Kind)
}

func TestResolveScopeRejectsFilesSpanningMultipleScopes(t *testing.T) {
	_, err := ResolveScope("mixed", []string{"docs/a.md", "infra/main.tf"})
	require.Error(t, err)
	ferr, ok := err.(*failure.Error)
	require.True(t, ok)
	require.Equal(t, failure.ScopeMismatch, ferr.Kind)
}

func TestResolveScopeFallsBackToDeclaredWhenNothingInferable(t *testing.T) {
	scope, err := ResolveScope("topology", []string{"topology.yaml"})
	require.NoError(t, err)
	require.Equal(t, "topology", scope)
}
