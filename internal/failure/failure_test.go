package failure

import "testing"

func TestWireValueIsSnakeCase(t *testing.T) {
	cases := map[Kind]string{
		PathViolation:          "path_violation",
		UnsafeCommand:          "unsafe_command",
		ScopeMismatch:          "scope_mismatch",
		ModelOutputInvalid:     "model_output_invalid",
		BacklogInvalid:         "backlog_invalid",
		GithubError:            "github_error",
		GitError:               "git_error",
		JobSubmitError:         "job_submit_error",
		Timeout:                "timeout",
		WorkerError:            "worker_error",
		MergeConflictPredicted: "merge_conflict_predicted",
		TaskNotFound:           "task_not_found",
	}
	for kind, want := range cases {
		if got := kind.WireValue(); got != want {
			t.Errorf("Kind(%s).WireValue() = %q, want %q", kind, got, want)
		}
	}
}

func TestErrorFailureTypeUsesWireValue(t *testing.T) {
	err := New(JobSubmitError, "no runner available")
	if got := err.FailureType(); got != "job_submit_error" {
		t.Errorf("FailureType() = %q, want %q", got, "job_submit_error")
	}
}
