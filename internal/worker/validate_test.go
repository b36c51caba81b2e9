package worker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/swarmguard/leviathan/internal/failure"
)

func TestValidateScopeServicesRejectsForbiddenCommand(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "services/billing"), 0o755))
	deployScript := "services/billing/deploy.sh"
	require.NoError(t, os.WriteFile(filepath.Join(dir, deployScript), []byte("kubectl apply -f deploy.yaml\n"), 0o644))

	_, err := ValidateScope(dir, "services", []string{deployScript})
	require.Error(t, err)
	ferr, ok := err.(*failure.Error)
	require.True(t, ok)
	require.Equal(t, failure.UnsafeCommand, ferr.Kind)
}

func TestValidateScopeServicesPassesCleanCommands(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "services/billing"), 0o755))
	readmePath := "services/billing/README.md"
	require.NoError(t, os.WriteFile(filepath.Join(dir, readmePath), []byte("# billing service\n"), 0o644))

	// No _test.go/test-named files in allowedPaths, so validateTestSubset
	// skips running `go test` entirely and this exercises only the
	// forbidden-command guard ahead of it.
	_, err := ValidateScope(dir, "services", []string{readmePath})
	require.NoError(t, err)
}
