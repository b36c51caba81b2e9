package worker

import "strings"

// CommitPrefix derives the conventional-commit prefix for a task's
// scope (§4.6 step 7). Services-scope geo-prefixed task IDs get a
// distinct prefix from the rest of the services scope.
func CommitPrefix(scope, taskID string) string {
	switch scope {
	case "docs":
		return "docs"
	case "ci":
		return "fix(ci)"
	case "tools":
		return "feat(tools)"
	case "services":
		if strings.HasPrefix(taskID, "geo-") {
			return "feat(geo)"
		}
		return "feat(research)"
	case "infra":
		return "chore(infra)"
	default:
		return "chore"
	}
}

// CommitMessage builds the full commit message body per §4.6 step 7.
func CommitMessage(scope, taskID, title string) string {
	return CommitPrefix(scope, taskID) + ": " + title + "\n\nTask-ID: " + taskID
}
