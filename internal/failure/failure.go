// Package failure defines the closed set of typed failure kinds carried
// in attempt.failed event payloads (§2A, §7).
package failure

import "fmt"

// Kind is a stable, closed failure classification.
type Kind string

const (
	PathViolation          Kind = "PathViolation"
	UnsafeCommand          Kind = "UnsafeCommand"
	ScopeMismatch          Kind = "ScopeMismatch"
	ModelOutputInvalid     Kind = "ModelOutputInvalid"
	BacklogInvalid         Kind = "BacklogInvalid"
	GithubError            Kind = "GithubError"
	GitError               Kind = "GitError"
	JobSubmitError         Kind = "JobSubmitError"
	Timeout                Kind = "Timeout"
	WorkerError            Kind = "WorkerError"
	MergeConflictPredicted Kind = "MergeConflictPredicted"
	TaskNotFound           Kind = "TaskNotFound"
)

// wireValues maps each Kind to the snake_case string written into an
// event payload's failure_type field (spec.md:154/159). The Kind
// constants themselves stay PascalCase for readability in Go code and
// log lines; only the wire form needs to match the on-disk convention.
var wireValues = map[Kind]string{
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

// WireValue returns the snake_case form of k used in event payloads. An
// unrecognized Kind (which should never occur for a closed enum) falls
// back to its own PascalCase string rather than panicking.
func (k Kind) WireValue() string {
	if v, ok := wireValues[k]; ok {
		return v
	}
	return string(k)
}

// Error is a typed failure carrying a stable Kind alongside the usual
// wrapped cause, so callers can branch on FailureType() without string
// matching an error message.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// FailureType returns the snake_case wire string written to the
// attempt.failed event's failure_type field.
func (e *Error) FailureType() string { return e.Kind.WireValue() }

// New constructs a failure.Error with no wrapped cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap constructs a failure.Error wrapping cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}
