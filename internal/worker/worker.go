// Package worker implements the isolated attempt executor (§4.6): one
// invocation per attempt, running the 11-step state machine from a
// cloned workspace through to a reported event bundle.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/swarmguard/leviathan/internal/artifact"
	"github.com/swarmguard/leviathan/internal/backlog"
	"github.com/swarmguard/leviathan/internal/event"
	"github.com/swarmguard/leviathan/internal/failure"
	"github.com/swarmguard/leviathan/internal/githost"
	"github.com/swarmguard/leviathan/internal/oracle"
	"github.com/swarmguard/leviathan/internal/policy"
)

// Workspace is the subset of workspace.Local the worker depends on,
// narrowed to an interface so the state machine is testable without a
// real git remote.
type Workspace interface {
	Clone(ctx context.Context) error
	Dir() string
	CreateBranch(name string) error
	Commit(message, authorName, authorEmail string) (string, error)
	PredictsMergeConflict(ctx context.Context, branchFiles []string) (bool, error)
	Push(ctx context.Context, branch string) error
	Cleanup() error
}

// GitHost is the subset of githost.Client the worker depends on.
type GitHost interface {
	BranchExistsChecker
	FindOpenPRByHead(ctx context.Context, head string) (*githost.PullRequest, error)
	CreatePullRequest(ctx context.Context, title, body, head, base string) (githost.PullRequest, error)
}

// Oracle is the subset of oracle.Client the worker depends on.
type Oracle interface {
	Generate(ctx context.Context, req oracle.Request) ([]oracle.FileEdit, error)
}

// Bundle is the wire shape the worker posts to the ingest endpoint's
// /v1/events/ingest (§6 ingest bundle wire format).
type Bundle struct {
	Target    string               `json:"target"`
	BundleID  string               `json:"bundle_id"`
	Events    []event.Event        `json:"events"`
	Artifacts []artifact.Coordinates `json:"artifacts"`
}

// Reporter posts the finished bundle to the ingest API.
type Reporter interface {
	Report(ctx context.Context, bundle Bundle) error
}

// Params are the parameters injected into one worker invocation (§4.6).
type Params struct {
	TargetName        string
	TargetRepoURL     string
	TargetDefaultBranch string
	TaskID            string
	AttemptID         string
	ControlPlaneURL   string
	ControlPlaneToken string
	GitCredential     string
	WorkspaceBase     string
	ArtifactKind      artifact.Kind
}

// Worker executes one attempt to completion.
type Worker struct {
	Workspace Workspace
	GitHost   GitHost
	Oracle    Oracle
	Artifacts artifact.Store
	Reporter  Reporter
	Logger    *slog.Logger
}

func (w *Worker) logger() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.Default()
}

// Run executes the full state machine, posts the terminal bundle via
// w.Reporter (on success and on failure), and returns it; the caller,
// typically cmd/workerd, uses the returned error to pick the process
// exit code.
func (w *Worker) Run(ctx context.Context, params Params, bl backlog.Backlog) (Bundle, error) {
	bundle := Bundle{Target: params.TargetName, BundleID: uuid.NewString()}

	emit := func(typ event.Type, payload event.Payload) {
		id := event.DeterministicID(params.AttemptID, string(typ))
		bundle.Events = append(bundle.Events, event.New(id, typ, "worker", payload))
	}

	// Step 1: init.
	emit(event.AttemptCreated, event.Payload{"attempt_id": params.AttemptID, "task_id": params.TaskID, "status": "created"})
	emit(event.AttemptStarted, event.Payload{"attempt_id": params.AttemptID, "status": "running"})

	fail := func(kind failure.Kind, msg string, cause error) (Bundle, error) {
		ferr := failure.Wrap(kind, msg, cause)
		emit(event.AttemptFailed, event.Payload{
			"attempt_id": params.AttemptID, "status": "failed",
			"failure_type": ferr.FailureType(), "error": ferr.Error(),
		})
		if w.Reporter != nil {
			_ = w.Reporter.Report(ctx, bundle)
		}
		return bundle, ferr
	}

	// Step 2: clone.
	cloneCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()
	if err := w.Workspace.Clone(cloneCtx); err != nil {
		return fail(failure.GitError, "clone target repository", err)
	}
	defer func() {
		if err := w.Workspace.Cleanup(); err != nil {
			w.logger().Warn("workspace cleanup failed", "attempt_id", params.AttemptID, "error", err)
		}
	}()

	// Step 3: load task.
	task, err := w.loadTask(params, bl)
	if err != nil {
		if ferr, ok := err.(*failure.Error); ok {
			return fail(ferr.Kind, ferr.Msg, ferr.Cause)
		}
		return fail(failure.BacklogInvalid, "load task", err)
	}

	// Step 4: generate.
	edits, err := w.generate(ctx, task)
	if err != nil {
		if ferr, ok := err.(*failure.Error); ok {
			return fail(ferr.Kind, ferr.Msg, ferr.Cause)
		}
		return fail(failure.ModelOutputInvalid, "generate file set", err)
	}

	// Step 5: apply.
	if err := w.apply(params.AttemptID, task.AllowedPaths, edits); err != nil {
		return fail(failure.PathViolation, "apply generated files", err)
	}

	// Step 6: test.
	testOutput, err := ValidateScope(w.Workspace.Dir(), task.Scope, task.AllowedPaths)
	if err != nil {
		if ferr, ok := err.(*failure.Error); ok {
			return fail(ferr.Kind, ferr.Msg, ferr.Cause)
		}
		return fail(failure.WorkerError, "validate scope", err)
	}
	emit(event.TestsPassed, event.Payload{"attempt_id": params.AttemptID, "output_excerpt": excerpt(testOutput)})

	// Step 7: commit.
	branch, err := ResolveBranchName(ctx, w.GitHost, params.TaskID)
	if err != nil {
		return fail(failure.GithubError, "resolve branch name", err)
	}
	if err := w.Workspace.CreateBranch(branch); err != nil {
		return fail(failure.GitError, "create branch", err)
	}
	commitMsg := CommitMessage(task.Scope, params.TaskID, task.Title)
	sha, err := w.Workspace.Commit(commitMsg, "leviathan-agent", "agent@leviathan.invalid")
	if err != nil {
		return fail(failure.GitError, "commit changes", err)
	}

	// Step 8: mergeability probe.
	changedFiles := editPaths(edits)
	conflict, err := w.Workspace.PredictsMergeConflict(ctx, changedFiles)
	if err != nil {
		return fail(failure.GitError, "mergeability probe", err)
	}
	if conflict {
		return fail(failure.MergeConflictPredicted, "merge conflict predicted", fmt.Errorf("changed files overlap with default branch tip"))
	}

	// Step 9: push & PR.
	pushCtx, pushCancel := context.WithTimeout(ctx, 5*time.Minute)
	defer pushCancel()
	if err := w.Workspace.Push(pushCtx, branch); err != nil {
		return fail(failure.GitError, "push branch", err)
	}

	resolvedScope, err := ResolveScope(task.Scope, changedFiles)
	if err != nil {
		return fail(failure.ScopeMismatch, "resolve scope from changed files", err)
	}

	pr, err := w.openOrReusePR(ctx, branch, params.TargetDefaultBranch, resolvedScope, params.TaskID, task.Title)
	if err != nil {
		return fail(failure.GithubError, "open pull request", err)
	}
	emit(event.PRCreated, event.Payload{"attempt_id": params.AttemptID, "pr_number": pr.Number, "pr_url": pr.URL, "branch": branch})

	// Step 10: artifacts.
	coords, err := w.storeArtifacts(ctx, params, testOutput)
	if err != nil {
		return fail(failure.WorkerError, "store artifacts", err)
	}
	for _, c := range coords {
		bundle.Artifacts = append(bundle.Artifacts, c)
		emit(event.ArtifactCreated, event.Payload{"attempt_id": params.AttemptID, "sha256": c.Hash, "kind": string(c.Kind), "uri": c.URI, "size": c.Size})
	}

	emit(event.AttemptSucceeded, event.Payload{
		"attempt_id": params.AttemptID, "status": "succeeded", "branch": branch, "commit": sha, "pr_number": pr.Number,
	})

	// Step 11: report.
	if w.Reporter != nil {
		if err := w.Reporter.Report(ctx, bundle); err != nil {
			return bundle, fmt.Errorf("report event bundle: %w", err)
		}
	}
	return bundle, nil
}

func (w *Worker) loadTask(params Params, bl backlog.Backlog) (backlog.Task, error) {
	for _, t := range bl.Tasks {
		if t.ID == params.TaskID {
			return t, nil
		}
	}
	if IsReservedSystemTaskID(params.TaskID, params.TargetName) {
		return backlog.Task{ID: params.TaskID, Title: params.TaskID, Scope: "topology", Ready: true, AllowedPaths: nil}, nil
	}
	return backlog.Task{}, failure.New(failure.TaskNotFound, "task "+params.TaskID+" not found in backlog")
}

func (w *Worker) generate(ctx context.Context, task backlog.Task) ([]oracle.FileEdit, error) {
	if HasBuiltinExecutor(task.Scope) {
		return RunBuiltinExecutor(task.Scope, task.ID, task.Title, task.AllowedPaths)
	}
	if w.Oracle == nil {
		return nil, failure.New(failure.ModelOutputInvalid, "no oracle configured for non-builtin scope "+task.Scope)
	}

	files := make([]oracle.FileContext, 0, len(task.AllowedPaths))
	for _, p := range task.AllowedPaths {
		data, err := os.ReadFile(filepath.Join(w.Workspace.Dir(), p))
		if err != nil {
			files = append(files, oracle.FileContext{Path: p, Content: ""})
			continue
		}
		files = append(files, oracle.TruncateFile(p, data))
	}

	req := oracle.Request{
		TaskID: task.ID, Title: task.Title, Scope: task.Scope, Priority: task.Priority,
		EstimatedSize: task.EstimatedSize, AllowedPaths: task.AllowedPaths,
		AcceptanceCriteria: task.AcceptanceCriteria, Files: files,
	}
	return w.Oracle.Generate(ctx, req)
}

func (w *Worker) apply(attemptID string, allowedPaths []string, edits []oracle.FileEdit) error {
	for _, e := range edits {
		if !policy.WritePermitted(e.Path, allowedPaths) {
			return fmt.Errorf("path %q is outside allowed_paths for attempt %s", e.Path, attemptID)
		}
		full := filepath.Join(w.Workspace.Dir(), e.Path)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return fmt.Errorf("create directory for %s: %w", e.Path, err)
		}

		content := e.Content
		if len(content) > 0 && content[len(content)-1] != '\n' {
			content = append(content, '\n')
		}

		tmp := full + ".tmp"
		if err := os.WriteFile(tmp, content, 0o644); err != nil {
			return fmt.Errorf("write temp file for %s: %w", e.Path, err)
		}
		if err := os.Rename(tmp, full); err != nil {
			return fmt.Errorf("rename into place for %s: %w", e.Path, err)
		}
	}
	return nil
}

func (w *Worker) openOrReusePR(ctx context.Context, branch, base, scope, taskID, title string) (githost.PullRequest, error) {
	if existing, err := w.GitHost.FindOpenPRByHead(ctx, branch); err == nil && existing != nil {
		return *existing, nil
	}
	prTitle := CommitPrefix(scope, taskID) + ": " + title
	body := "Task-ID: " + taskID
	return w.GitHost.CreatePullRequest(ctx, prTitle, body, branch, base)
}

func (w *Worker) storeArtifacts(ctx context.Context, params Params, testOutput string) ([]artifact.Coordinates, error) {
	if w.Artifacts == nil || testOutput == "" {
		return nil, nil
	}
	coords, err := w.Artifacts.Put(ctx, []byte(testOutput), artifact.KindTestOutput)
	if err != nil {
		return nil, fmt.Errorf("put test output artifact: %w", err)
	}
	return []artifact.Coordinates{coords}, nil
}

func editPaths(edits []oracle.FileEdit) []string {
	paths := make([]string, 0, len(edits))
	for _, e := range edits {
		paths = append(paths, e.Path)
	}
	return paths
}

func excerpt(s string) string {
	const max = 2048
	if len(s) <= max {
		return s
	}
	return s[:max] + "...[truncated]"
}
