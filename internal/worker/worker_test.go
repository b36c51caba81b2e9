package worker

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/swarmguard/leviathan/internal/backlog"
	"github.com/swarmguard/leviathan/internal/githost"
)

type fakeWorkspace struct {
	dir             string
	branchCreated   string
	committed       bool
	pushedBranch    string
	conflict        bool
	cleanupCalled   bool
	cloneErr        error
}

func (f *fakeWorkspace) Clone(ctx context.Context) error { return f.cloneErr }
func (f *fakeWorkspace) Dir() string                      { return f.dir }
func (f *fakeWorkspace) CreateBranch(name string) error {
	f.branchCreated = name
	return nil
}
func (f *fakeWorkspace) Commit(message, authorName, authorEmail string) (string, error) {
	f.committed = true
	return "deadbeef", nil
}
func (f *fakeWorkspace) PredictsMergeConflict(ctx context.Context, branchFiles []string) (bool, error) {
	return f.conflict, nil
}
func (f *fakeWorkspace) Push(ctx context.Context, branch string) error {
	f.pushedBranch = branch
	return nil
}
func (f *fakeWorkspace) Cleanup() error {
	f.cleanupCalled = true
	return nil
}

type fakeGitHost struct {
	branchExists bool
	existingPR   *githost.PullRequest
}

func (f *fakeGitHost) BranchExists(ctx context.Context, branch string) (bool, error) {
	return f.branchExists, nil
}
func (f *fakeGitHost) FindOpenPRByHead(ctx context.Context, head string) (*githost.PullRequest, error) {
	return f.existingPR, nil
}
func (f *fakeGitHost) CreatePullRequest(ctx context.Context, title, body, head, base string) (githost.PullRequest, error) {
	return githost.PullRequest{Number: 42, URL: "https://example.invalid/pr/42", Branch: head, State: "open"}, nil
}

type fakeReporter struct {
	bundle Bundle
	called bool
}

func (f *fakeReporter) Report(ctx context.Context, bundle Bundle) error {
	f.bundle = bundle
	f.called = true
	return nil
}

func newDocsTask() backlog.Task {
	return backlog.Task{ID: "taskA", Title: "Add docs", Scope: "docs", Ready: true, AllowedPaths: []string{"docs/a.md"}}
}

func TestRunSucceedsForBuiltinDocsScope(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "docs"), 0o755))

	ws := &fakeWorkspace{dir: dir}
	gh := &fakeGitHost{branchExists: false}
	reporter := &fakeReporter{}

	w := &Worker{Workspace: ws, GitHost: gh, Reporter: reporter}
	bl := backlog.Backlog{Tasks: []backlog.Task{newDocsTask()}}

	bundle, err := w.Run(context.Background(), Params{TargetName: "demo", TaskID: "taskA", AttemptID: "attempt-1", TargetDefaultBranch: "main"}, bl)
	require.NoError(t, err)
	require.True(t, reporter.called)
	require.Equal(t, "agent/taskA", ws.branchCreated)
	require.True(t, ws.committed)
	require.Equal(t, "agent/taskA", ws.pushedBranch)
	require.True(t, ws.cleanupCalled)

	data, err := os.ReadFile(filepath.Join(dir, "docs/a.md"))
	require.NoError(t, err)
	require.Contains(t, string(data), "Task-ID: taskA")

	var sawSucceeded bool
	for _, e := range bundle.Events {
		if string(e.EventType) == "attempt.succeeded" {
			sawSucceeded = true
		}
	}
	require.True(t, sawSucceeded)
}

func TestRunUsesCollisionSuffixedBranchWhenBaseExists(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "docs"), 0o755))

	ws := &fakeWorkspace{dir: dir}
	gh := &fakeGitHost{branchExists: true}
	w := &Worker{Workspace: ws, GitHost: gh, Reporter: &fakeReporter{}}
	bl := backlog.Backlog{Tasks: []backlog.Task{newDocsTask()}}

	_, err := w.Run(context.Background(), Params{TargetName: "demo", TaskID: "taskA", AttemptID: "attempt-1", TargetDefaultBranch: "main"}, bl)
	require.NoError(t, err)
	require.NotEqual(t, "agent/taskA", ws.branchCreated)
	require.Contains(t, ws.branchCreated, "agent/taskA-")
}

func TestRunFailsOnMergeConflictPrediction(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "docs"), 0o755))

	ws := &fakeWorkspace{dir: dir, conflict: true}
	gh := &fakeGitHost{}
	reporter := &fakeReporter{}
	w := &Worker{Workspace: ws, GitHost: gh, Reporter: reporter}
	bl := backlog.Backlog{Tasks: []backlog.Task{newDocsTask()}}

	_, err := w.Run(context.Background(), Params{TargetName: "demo", TaskID: "taskA", AttemptID: "attempt-1", TargetDefaultBranch: "main"}, bl)
	require.Error(t, err)
	require.True(t, reporter.called)
	require.True(t, ws.cleanupCalled)

	var sawFailed bool
	for _, e := range reporter.bundle.Events {
		if string(e.EventType) == "attempt.failed" {
			sawFailed = true
		}
	}
	require.True(t, sawFailed)
}

func TestRunFailsWhenTaskNotFound(t *testing.T) {
	ws := &fakeWorkspace{dir: t.TempDir()}
	w := &Worker{Workspace: ws, GitHost: &fakeGitHost{}, Reporter: &fakeReporter{}}

	_, err := w.Run(context.Background(), Params{TargetName: "demo", TaskID: "does-not-exist", AttemptID: "attempt-1"}, backlog.Backlog{})
	require.Error(t, err)
}

func TestRunSynthesizesReservedSystemTask(t *testing.T) {
	ws := &fakeWorkspace{dir: t.TempDir()}
	w := &Worker{Workspace: ws, GitHost: &fakeGitHost{}, Reporter: &fakeReporter{}}

	_, err := w.Run(context.Background(), Params{TargetName: "demo", TaskID: "topology-demo-v1", AttemptID: "attempt-1", TargetDefaultBranch: "main"}, backlog.Backlog{})
	require.NoError(t, err)
}
