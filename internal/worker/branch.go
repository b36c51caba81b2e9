package worker

import (
	"context"
	"fmt"
	"time"
)

// BranchExistsChecker is satisfied by githost.Client; narrowed to an
// interface so branch naming is testable without a live remote.
type BranchExistsChecker interface {
	BranchExists(ctx context.Context, branch string) (bool, error)
}

// ResolveBranchName returns "agent/<task_id>" if that name is free on
// the remote, else the UTC-timestamp-suffixed variant, mirroring
// compute_branch_name's collision probe (§4.6 step 7, §10 supplemental).
func ResolveBranchName(ctx context.Context, client BranchExistsChecker, taskID string) (string, error) {
	base := "agent/" + taskID
	exists, err := client.BranchExists(ctx, base)
	if err != nil {
		return "", fmt.Errorf("probe branch existence for %s: %w", base, err)
	}
	if !exists {
		return base, nil
	}
	return fmt.Sprintf("%s-%s", base, time.Now().UTC().Format("20060102150405")), nil
}
