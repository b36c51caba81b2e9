package scheduler

import "context"

// PRFilesLister is satisfied by githost.Client; narrowed here so the
// hot-file check is independently testable.
type PRFilesLister interface {
	ListPRFiles(ctx context.Context, number int) ([]string, error)
}

// hotFileConflict reports whether any path in allowedPaths is a hot file
// and, if so, whether any of the given open PRs already touches a hot
// file (not necessarily the same one) — so the
// scheduler can skip dispatch before the mergeability-probe stage
// discovers the same conflict far more expensively (§10 supplemental,
// grounded in conflict_prevention.py's HOT_FILES check).
func hotFileConflict(ctx context.Context, lister PRFilesLister, openPRNumbers []int, allowedPaths, hotFiles []string) (bool, error) {
	hot := map[string]bool{}
	for _, f := range hotFiles {
		hot[f] = true
	}

	var taskTouchesHotFile bool
	for _, p := range allowedPaths {
		if hot[p] {
			taskTouchesHotFile = true
			break
		}
	}
	if !taskTouchesHotFile {
		return false, nil
	}

	for _, number := range openPRNumbers {
		files, err := lister.ListPRFiles(ctx, number)
		if err != nil {
			return false, err
		}
		for _, f := range files {
			if hot[f] {
				return true, nil
			}
		}
	}
	return false, nil
}
