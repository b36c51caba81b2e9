package worker

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/swarmguard/leviathan/internal/failure"
)

// ValidateScope runs the per-scope validator on the subset of files in
// allowedPaths, rooted at dir (§4.6 step 6).
func ValidateScope(dir, scope string, allowedPaths []string) (output string, err error) {
	switch scope {
	case "ci":
		return validateCI(dir, allowedPaths)
	case "docs":
		return validateDocs(dir, allowedPaths)
	case "tests", "tools":
		return validateTestSubset(dir, allowedPaths)
	case "services":
		// services (like infra) can change deploy/ops-adjacent code, so it
		// gets the same shell-command guard as infra, in addition to its
		// normal test execution.
		if _, err := validateNoForbiddenCommands(dir, allowedPaths); err != nil {
			return "", err
		}
		return validateTestSubset(dir, allowedPaths)
	case "infra":
		return validateNoForbiddenCommands(dir, allowedPaths)
	default:
		return "", nil
	}
}

func validateCI(dir string, allowedPaths []string) (string, error) {
	var out strings.Builder
	for _, p := range allowedPaths {
		full := filepath.Join(dir, p)
		switch {
		case strings.HasSuffix(p, ".sh"):
			cmd := exec.Command("sh", "-n", full)
			b, err := cmd.CombinedOutput()
			out.Write(b)
			if err != nil {
				return out.String(), failure.Wrap(failure.WorkerError, "shellcheck syntax failed for "+p, err)
			}
		case strings.HasSuffix(p, ".yml"), strings.HasSuffix(p, ".yaml"):
			data, err := os.ReadFile(full)
			if err != nil {
				return out.String(), failure.Wrap(failure.WorkerError, "read yaml for "+p, err)
			}
			var v any
			if err := yaml.Unmarshal(data, &v); err != nil {
				return out.String(), failure.Wrap(failure.WorkerError, "yaml parse failed for "+p, err)
			}
		}
	}
	return out.String(), nil
}

func validateDocs(dir string, allowedPaths []string) (string, error) {
	for _, p := range allowedPaths {
		full := filepath.Join(dir, p)
		if _, err := os.Stat(full); err != nil {
			return "", failure.Wrap(failure.WorkerError, "expected doc file missing: "+p, err)
		}
	}
	return "", nil
}

// validateTestSubset runs the project's test runner restricted to the
// test files named in allowedPaths; an empty test list is a pass-by-skip.
func validateTestSubset(dir string, allowedPaths []string) (string, error) {
	var testFiles []string
	for _, p := range allowedPaths {
		if strings.HasSuffix(p, "_test.go") || strings.Contains(p, "test") {
			testFiles = append(testFiles, p)
		}
	}
	if len(testFiles) == 0 {
		return "", nil
	}

	args := append([]string{"test"}, testFiles...)
	cmd := exec.Command("go", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), failure.Wrap(failure.WorkerError, "test subset failed", err)
	}
	return string(out), nil
}

func validateNoForbiddenCommands(dir string, allowedPaths []string) (string, error) {
	for _, p := range allowedPaths {
		data, err := os.ReadFile(filepath.Join(dir, p))
		if err != nil {
			continue
		}
		for _, line := range strings.Split(string(data), "\n") {
			if IsForbiddenCommand(line) {
				return "", failure.New(failure.UnsafeCommand, fmt.Sprintf("forbidden command in %s: %s", p, strings.TrimSpace(line)))
			}
		}
	}
	return "", nil
}
