package worker

import (
	"fmt"
	"strings"

	"github.com/swarmguard/leviathan/internal/oracle"
)

// builtinScopes names the task scopes that run a built-in executor
// instead of calling out to the code-generation oracle (§4.6 step 4).
var builtinScopes = map[string]bool{
	"docs":      true,
	"tests":     true,
	"bootstrap": true,
	"topology":  true,
}

// HasBuiltinExecutor reports whether scope is handled in-process.
func HasBuiltinExecutor(scope string) bool {
	return builtinScopes[scope]
}

// RunBuiltinExecutor produces the file set for scopes with no need for
// a model call: simple, deterministic content generators grounded in
// the task's declared metadata.
func RunBuiltinExecutor(scope, taskID, title string, allowedPaths []string) ([]oracle.FileEdit, error) {
	switch scope {
	case "docs":
		return docsExecutor(taskID, title, allowedPaths), nil
	case "tests":
		return testsExecutor(taskID, title, allowedPaths), nil
	case "bootstrap":
		return bootstrapExecutor(taskID, title, allowedPaths), nil
	case "topology":
		return topologyExecutor(taskID, title, allowedPaths), nil
	default:
		return nil, fmt.Errorf("no builtin executor for scope %q", scope)
	}
}

func docsExecutor(taskID, title string, allowedPaths []string) []oracle.FileEdit {
	edits := make([]oracle.FileEdit, 0, len(allowedPaths))
	for _, p := range allowedPaths {
		content := fmt.Sprintf("# %s\n\nTask-ID: %s\n", title, taskID)
		edits = append(edits, oracle.FileEdit{Path: p, Content: []byte(content)})
	}
	return edits
}

func testsExecutor(taskID, title string, allowedPaths []string) []oracle.FileEdit {
	edits := make([]oracle.FileEdit, 0, len(allowedPaths))
	for _, p := range allowedPaths {
		var content string
		if strings.HasSuffix(p, ".go") {
			content = fmt.Sprintf("package autogen\n\n// %s (Task-ID: %s)\n", title, taskID)
		} else {
			content = fmt.Sprintf("# %s\n# Task-ID: %s\n", title, taskID)
		}
		edits = append(edits, oracle.FileEdit{Path: p, Content: []byte(content)})
	}
	return edits
}

func bootstrapExecutor(taskID, title string, allowedPaths []string) []oracle.FileEdit {
	edits := make([]oracle.FileEdit, 0, len(allowedPaths))
	for _, p := range allowedPaths {
		content := fmt.Sprintf("# bootstrap: %s\n# Task-ID: %s\nversion: 1\n", title, taskID)
		edits = append(edits, oracle.FileEdit{Path: p, Content: []byte(content)})
	}
	return edits
}

func topologyExecutor(taskID, title string, allowedPaths []string) []oracle.FileEdit {
	edits := make([]oracle.FileEdit, 0, len(allowedPaths))
	for _, p := range allowedPaths {
		content := fmt.Sprintf("# topology: %s\n# Task-ID: %s\nnodes: []\nedges: []\n", title, taskID)
		edits = append(edits, oracle.FileEdit{Path: p, Content: []byte(content)})
	}
	return edits
}

// IsReservedSystemTaskID reports whether taskID matches a reserved
// system-scope pattern synthesized when the backlog has no matching
// entry (§4.6 step 3).
func IsReservedSystemTaskID(taskID, target string) bool {
	return strings.HasPrefix(taskID, "topology-"+target+"-v1") ||
		strings.HasPrefix(taskID, "bootstrap-"+target+"-v1")
}
