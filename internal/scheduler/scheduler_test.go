package scheduler

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/swarmguard/leviathan/internal/backlog"
	"github.com/swarmguard/leviathan/internal/event"
	"github.com/swarmguard/leviathan/internal/githost"
	"github.com/swarmguard/leviathan/internal/graph"
	"github.com/swarmguard/leviathan/internal/journal"
)

type fakeGitHost struct {
	openCount int
	prs       []githost.PullRequest
}

func (f *fakeGitHost) AgentOwnedCount(ctx context.Context) (int, error) { return f.openCount, nil }
func (f *fakeGitHost) ListOpenPullRequests(ctx context.Context) ([]githost.PullRequest, error) {
	return f.prs, nil
}

type fakeDispatcher struct {
	succeed     bool
	failureType string
	calls       int
	lastTaskID  string
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, params AttemptParams) (bool, event.Payload, string) {
	f.calls++
	f.lastTaskID = params.TaskID
	return f.succeed, event.Payload{}, f.failureType
}

func newTestScheduler(t *testing.T, gh GitHostClient, d Dispatcher) (*Scheduler, journal.Journal) {
	t.Helper()
	j, err := journal.OpenNDJSON(filepath.Join(t.TempDir(), "journal.ndjson"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })

	return &Scheduler{
		Journal:    j,
		Graph:      graph.New(),
		GitHost:    gh,
		Dispatcher: d,
	}, j
}

func oneTaskBacklog() backlog.Backlog {
	return backlog.Backlog{Tasks: []backlog.Task{
		{ID: "taskA", Title: "Add docs", Scope: "docs", Priority: "high", Ready: true, AllowedPaths: []string{"docs/"}},
	}}
}

// TestOpenPRCapSkipsTick grounds S5: when the open-PR cap is reached, no
// new attempt is dispatched even though an eligible task exists.
func TestOpenPRCapSkipsTick(t *testing.T) {
	d := &fakeDispatcher{succeed: true}
	s, _ := newTestScheduler(t, &fakeGitHost{openCount: 1}, d)

	err := s.Tick(context.Background(), "demo", oneTaskBacklog(), Limits{MaxOpenPRs: 1, MaxAttemptsPerTask: 3})
	require.NoError(t, err)
	require.Equal(t, 0, d.calls)
}

// TestInFlightTaskPreferredOverPriority grounds S6: a task already backed
// by an open agent PR is skipped even though it would otherwise be the
// highest-priority candidate.
func TestInFlightTaskPreferredOverPriority(t *testing.T) {
	d := &fakeDispatcher{succeed: true}
	gh := &fakeGitHost{
		openCount: 0,
		prs:       []githost.PullRequest{{Number: 1, Branch: "agent/taskA-20260101000000", State: "open"}},
	}
	s, _ := newTestScheduler(t, gh, d)

	bl := backlog.Backlog{Tasks: []backlog.Task{
		{ID: "taskA", Priority: "high", Ready: true, AllowedPaths: []string{"docs/"}},
		{ID: "taskB", Priority: "low", Ready: true, AllowedPaths: []string{"docs/"}},
	}}

	err := s.Tick(context.Background(), "demo", bl, Limits{MaxOpenPRs: 5, MaxAttemptsPerTask: 3})
	require.NoError(t, err)
	require.Equal(t, 1, d.calls)
	require.Equal(t, "taskB", d.lastTaskID)
}

func TestSuccessfulAttemptCompletesTask(t *testing.T) {
	d := &fakeDispatcher{succeed: true}
	s, j := newTestScheduler(t, &fakeGitHost{}, d)

	err := s.Tick(context.Background(), "demo", oneTaskBacklog(), Limits{MaxOpenPRs: 5, MaxAttemptsPerTask: 3})
	require.NoError(t, err)
	require.Equal(t, 1, d.calls)

	events, err := j.Scan(context.Background(), "", 0)
	require.NoError(t, err)

	var sawCompleted bool
	for _, e := range events {
		if e.EventType == event.TaskCompleted && e.Payload["status"] == "completed" {
			sawCompleted = true
		}
	}
	require.True(t, sawCompleted)
}

func TestFailedAttemptSchedulesRetry(t *testing.T) {
	d := &fakeDispatcher{succeed: false, failureType: "TestFailure"}
	s, j := newTestScheduler(t, &fakeGitHost{}, d)

	err := s.Tick(context.Background(), "demo", oneTaskBacklog(), Limits{MaxOpenPRs: 5, MaxAttemptsPerTask: 3, BackoffSeconds: 30})
	require.NoError(t, err)

	events, err := j.Scan(context.Background(), "", 0)
	require.NoError(t, err)

	var sawRetry bool
	for _, e := range events {
		if e.EventType == event.RetryScheduled {
			sawRetry = true
		}
	}
	require.True(t, sawRetry)
}

func TestMaxAttemptsExceededCompletesTaskAsFailed(t *testing.T) {
	d := &fakeDispatcher{succeed: false, failureType: "TestFailure"}
	s, _ := newTestScheduler(t, &fakeGitHost{}, d)

	bl := oneTaskBacklog()
	// Simulate two prior failed attempts already recorded against taskA.
	for i := 0; i < 2; i++ {
		applied, err := s.Journal.Append(context.Background(), event.New("prior-attempt-"+string(rune('a'+i)), event.AttemptCreated, "scheduler", event.Payload{
			"attempt_id": "prior-" + string(rune('a'+i)), "task_id": "taskA", "status": "created",
		}))
		require.NoError(t, err)
		graph.Apply(s.Graph, applied)
	}

	err := s.Tick(context.Background(), "demo", bl, Limits{MaxOpenPRs: 5, MaxAttemptsPerTask: 3})
	require.NoError(t, err)
	require.Equal(t, 1, d.calls)

	events, err := s.Journal.Scan(context.Background(), "", 0)
	require.NoError(t, err)
	var sawFailedCompletion bool
	for _, e := range events {
		if e.EventType == event.TaskCompleted && e.Payload["status"] == "failed" {
			sawFailedCompletion = true
		}
	}
	require.True(t, sawFailedCompletion)
}

func TestGuardRejectsOutOfScopeTask(t *testing.T) {
	d := &fakeDispatcher{succeed: true}
	s, _ := newTestScheduler(t, &fakeGitHost{}, d)
	s.Guard = func(allowedPaths []string) bool { return false }

	err := s.Tick(context.Background(), "demo", oneTaskBacklog(), Limits{MaxOpenPRs: 5, MaxAttemptsPerTask: 3})
	require.NoError(t, err)
	require.Equal(t, 0, d.calls)
}
