// Package policy implements the pure path guard (§4.4) plus an optional
// advisory OPA evaluator that never gates a decision.
package policy

import "strings"

// Pattern is a simple prefix, optionally trailing with "*" to mean
// "this prefix and anything under it".
type Pattern string

func (p Pattern) matches(path string) bool {
	prefix := strings.TrimSuffix(string(p), "*")
	return strings.HasPrefix(path, prefix)
}

// ScopePermitted answers whether every path in allowedPaths is permitted
// by the target's allow/deny lists: not matching any deny pattern, and,
// when the allow list is non-empty, matching at least one allow pattern.
func ScopePermitted(allowedPaths []string, allow, deny []Pattern) bool {
	for _, p := range allowedPaths {
		if matchesAny(p, deny) {
			return false
		}
		if len(allow) > 0 && !matchesAny(p, allow) {
			return false
		}
	}
	return true
}

// WritePermitted answers whether a single file path a worker intends to
// write falls under at least one of the task's allowed_paths, honoring
// segment boundaries (so "docs" does not permit "docsite/x").
func WritePermitted(path string, allowedPaths []string) bool {
	for _, ap := range allowedPaths {
		if pathUnderPrefix(path, ap) {
			return true
		}
	}
	return false
}

func pathUnderPrefix(path, prefix string) bool {
	prefix = strings.TrimSuffix(prefix, "*")
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	if len(path) == len(prefix) {
		return true
	}
	// Segment boundary: the prefix must end on a path separator, or the
	// next rune in path after the prefix must be a separator.
	if strings.HasSuffix(prefix, "/") {
		return true
	}
	return path[len(prefix)] == '/'
}

func matchesAny(path string, patterns []Pattern) bool {
	for _, p := range patterns {
		if p.matches(path) {
			return true
		}
	}
	return false
}
