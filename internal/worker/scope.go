package worker

import (
	"fmt"
	"sort"
	"strings"

	"github.com/swarmguard/leviathan/internal/failure"
)

// InferScopes infers the scope(s) touched by a set of changed files
// using the same sentinel path-prefix rules as the declared-scope
// fallback (§10 supplemental, grounded in infer_scope_from_files).
func InferScopes(files []string) map[string]bool {
	scopes := map[string]bool{}
	for _, f := range files {
		switch {
		case strings.HasPrefix(f, "docs/"):
			scopes["docs"] = true
		case strings.HasPrefix(f, "tests/"):
			scopes["tests"] = true
		case strings.HasPrefix(f, ".github/workflows/"), strings.HasPrefix(f, "scripts/ci/"):
			scopes["ci"] = true
		case strings.HasPrefix(f, "services/"):
			scopes["services"] = true
		case strings.HasPrefix(f, "infra/"):
			scopes["infra"] = true
		case strings.HasPrefix(f, "tools/"):
			scopes["tools"] = true
		}
	}
	return scopes
}

// ResolveScope always infers scope from changedFiles and validates it
// against declared, rather than trusting declared outright — per
// infer_scope_from_files, inference is unconditional, which is what
// makes the ScopeMismatch guardrail mean anything. It fails with
// ScopeMismatch when changedFiles span more than one inferred scope,
// and when a non-empty, non-"mixed" declared scope disagrees with the
// single inferred scope. When no scope can be inferred at all (e.g. a
// builtin executor writing outside the conventional scope directories),
// declared is trusted as a fallback if set.
func ResolveScope(declared string, changedFiles []string) (string, error) {
	scopes := InferScopes(changedFiles)
	if len(scopes) > 1 {
		names := make([]string, 0, len(scopes))
		for s := range scopes {
			names = append(names, s)
		}
		sort.Strings(names)
		return "", failure.New(failure.ScopeMismatch, fmt.Sprintf("changed files span multiple scopes: %s", strings.Join(names, ", ")))
	}
	if len(scopes) == 0 {
		if declared != "" && declared != "mixed" {
			return declared, nil
		}
		return "", failure.New(failure.ScopeMismatch, "could not infer scope from changed files")
	}

	var inferred string
	for s := range scopes {
		inferred = s
	}
	if declared != "" && declared != "mixed" && declared != inferred {
		return "", failure.New(failure.ScopeMismatch, fmt.Sprintf("declared scope %q does not match inferred scope %q from changed files", declared, inferred))
	}
	return inferred, nil
}
