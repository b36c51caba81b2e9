// Package scheduler implements the graph-driven per-tick selection
// algorithm with guardrails (§4.5).
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/swarmguard/leviathan/internal/backlog"
	"github.com/swarmguard/leviathan/internal/event"
	"github.com/swarmguard/leviathan/internal/githost"
	"github.com/swarmguard/leviathan/internal/graph"
	"github.com/swarmguard/leviathan/internal/journal"
	"github.com/swarmguard/leviathan/internal/resilience"
)

// Dispatcher runs one attempt given its parameters and returns the
// outcome event payloads to emit; it is satisfied by the worker's
// in-process entrypoint or a container-job submission. failureType, when
// succeeded is false, must already be a failure.Kind's snake_case
// WireValue() — the scheduler writes it into attempt.failed's
// failure_type field verbatim, with no further conversion.
type Dispatcher interface {
	Dispatch(ctx context.Context, params AttemptParams) (succeeded bool, payload event.Payload, failureType string)
}

// GitHostClient is the subset of githost.Client the scheduler depends on,
// narrowed to an interface so ticks can be exercised without a live
// GitHub connection.
type GitHostClient interface {
	AgentOwnedCount(ctx context.Context) (int, error)
	ListOpenPullRequests(ctx context.Context) ([]githost.PullRequest, error)
}

// AttemptParams is what the scheduler hands to a dispatched attempt.
type AttemptParams struct {
	TargetName    string
	TargetRepoURL string
	TargetBranch  string
	TaskID        string
	AttemptID     string
	AttemptNumber int
}

// Limits are the per-target guardrail parameters (§6 autonomy config).
type Limits struct {
	MaxOpenPRs             int
	MaxAttemptsPerTask     int
	BackoffSeconds         int
	CircuitBreakerFailures int
}

// Scheduler drives one tick of the per-target selection algorithm.
type Scheduler struct {
	Journal    journal.Journal
	Graph      *graph.Graph
	GitHost    GitHostClient
	Guard      func(allowedPaths []string) bool
	Dispatcher Dispatcher
	Breaker    *resilience.CircuitBreaker
	Logger     *slog.Logger

	// PRFiles and HotFiles enable the hot-file conflict check (§10
	// supplemental); both are optional, and the check is skipped when
	// either is unset.
	PRFiles  PRFilesLister
	HotFiles []string
}

// Tick runs steps 1-10 of §4.5 once for the given target and backlog.
func (s *Scheduler) Tick(ctx context.Context, target string, bl backlog.Backlog, limits Limits) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Step 1: open-PR cap.
	openCount, err := s.GitHost.AgentOwnedCount(ctx)
	if err != nil {
		return fmt.Errorf("count open agent prs: %w", err)
	}
	if openCount >= limits.MaxOpenPRs {
		logger.Info("tick skipped: open-pr cap reached", "target", target, "open", openCount, "max", limits.MaxOpenPRs)
		return nil
	}

	// Step 2: ingest backlog as task.created events for tasks not yet known.
	if err := s.ingestBacklog(ctx, target, bl); err != nil {
		return fmt.Errorf("ingest backlog: %w", err)
	}

	// Step 3: in-flight task IDs from open agent PR branches.
	inFlight, err := s.inFlightTaskIDs(ctx)
	if err != nil {
		return fmt.Errorf("compute in-flight tasks: %w", err)
	}

	// Circuit breaker: refuse to dispatch when open.
	if s.Breaker != nil && !s.Breaker.Allow() {
		logger.Warn("tick skipped: circuit breaker open", "target", target)
		return nil
	}

	// Step 4-5: select next eligible task, skipping any that would
	// conflict with an already-open PR on a hot file.
	task, err := s.selectTask(ctx, bl, inFlight, limits)
	if err != nil {
		return fmt.Errorf("select task: %w", err)
	}
	if task == nil {
		logger.Debug("tick idle: no eligible task", "target", target)
		return nil
	}

	attemptNumber := s.attemptCount(task.ID) + 1

	// Step 6: emit attempt.created.
	attemptID := uuid.NewString()
	if _, err := s.appendAndApply(ctx, event.New(uuid.NewString(), event.AttemptCreated, "scheduler", event.Payload{
		"attempt_id":     attemptID,
		"task_id":        task.ID,
		"attempt_number": attemptNumber,
		"status":         "created",
	})); err != nil {
		return fmt.Errorf("emit attempt.created: %w", err)
	}

	// Step 7: dispatch.
	if _, err := s.appendAndApply(ctx, event.New(uuid.NewString(), event.AttemptStarted, "scheduler", event.Payload{
		"attempt_id": attemptID,
		"status":     "running",
	})); err != nil {
		return fmt.Errorf("emit attempt.started: %w", err)
	}

	params := AttemptParams{TargetName: target, TaskID: task.ID, AttemptID: attemptID, AttemptNumber: attemptNumber}
	succeeded, outcome, failureType := s.Dispatcher.Dispatch(ctx, params)

	// Step 8: record outcome.
	if s.Breaker != nil {
		s.Breaker.RecordResult(succeeded)
	}
	if succeeded {
		outcome["attempt_id"] = attemptID
		outcome["status"] = "succeeded"
		if _, err := s.appendAndApply(ctx, event.New(uuid.NewString(), event.AttemptSucceeded, "scheduler", outcome)); err != nil {
			return fmt.Errorf("emit attempt.succeeded: %w", err)
		}
		// Step 10.
		_, err = s.appendAndApply(ctx, event.New(uuid.NewString(), event.TaskCompleted, "scheduler", event.Payload{
			"id": task.ID, "status": "completed",
		}))
		return err
	}

	outcome["attempt_id"] = attemptID
	outcome["status"] = "failed"
	outcome["failure_type"] = failureType
	if _, err := s.appendAndApply(ctx, event.New(uuid.NewString(), event.AttemptFailed, "scheduler", outcome)); err != nil {
		return fmt.Errorf("emit attempt.failed: %w", err)
	}

	// Step 9: retry policy.
	if attemptNumber < limits.MaxAttemptsPerTask {
		backoffTarget := time.Now().UTC().Add(time.Duration(limits.BackoffSeconds) * time.Second)
		_, err = s.appendAndApply(ctx, event.New(uuid.NewString(), event.RetryScheduled, "scheduler", event.Payload{
			"task_id":     task.ID,
			"not_before":  backoffTarget.Format(time.RFC3339),
		}))
		return err
	}

	_, err = s.appendAndApply(ctx, event.New(uuid.NewString(), event.TaskCompleted, "scheduler", event.Payload{
		"id": task.ID, "status": "failed", "reason": "max_attempts_exceeded",
	}))
	return err
}

func (s *Scheduler) ingestBacklog(ctx context.Context, target string, bl backlog.Backlog) error {
	for _, t := range bl.Tasks {
		if s.Graph.GetNode(t.ID) != nil {
			continue
		}
		_, err := s.appendAndApply(ctx, event.New(uuid.NewString(), event.TaskCreated, "scheduler", event.Payload{
			"id":                  t.ID,
			"target":              target,
			"title":               t.Title,
			"scope":               t.Scope,
			"priority":            t.Priority,
			"estimated_size":      t.EstimatedSize,
			"allowed_paths":       t.AllowedPaths,
			"acceptance_criteria": t.AcceptanceCriteria,
			"ready":               t.Ready,
			"dependencies":        t.Dependencies,
			"status":              "pending",
		}))
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) inFlightTaskIDs(ctx context.Context) (map[string]bool, error) {
	prs, err := s.GitHost.ListOpenPullRequests(ctx)
	if err != nil {
		return nil, err
	}
	inFlight := map[string]bool{}
	for _, pr := range prs {
		if id, ok := githost.ExtractTaskID(pr.Branch); ok {
			inFlight[id] = true
		}
	}
	return inFlight, nil
}

// selectTask implements §4.5 step 4: highest priority first, then
// backlog order, among tasks passing every eligibility predicate,
// additionally skipping a task that would conflict with an open PR on
// a hot file (§10 supplemental).
func (s *Scheduler) selectTask(ctx context.Context, bl backlog.Backlog, inFlight map[string]bool, limits Limits) (*backlog.Task, error) {
	priorityRank := map[string]int{"high": 0, "medium": 1, "low": 2}

	events, err := s.Journal.Scan(ctx, "", 0)
	if err != nil {
		return nil, err
	}
	notBefore := map[string]string{}
	for _, e := range events {
		if e.EventType == event.RetryScheduled {
			id, _ := e.Payload["task_id"].(string)
			notBefore[id], _ = e.Payload["not_before"].(string)
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)

	candidates := make([]backlog.Task, 0, len(bl.Tasks))
	for _, t := range bl.Tasks {
		if !t.Ready {
			continue
		}
		if nb := notBefore[t.ID]; nb != "" && nb > now {
			continue
		}
		if t.Status != "" && t.Status != "pending" {
			continue
		}
		if len(t.Dependencies) > 0 {
			s.markBlockedIfUnsatisfiable(t)
			continue
		}
		if !s.guardPermits(t.AllowedPaths) {
			continue
		}
		if inFlight[t.ID] {
			continue
		}
		if s.attemptCount(t.ID) >= limits.MaxAttemptsPerTask {
			continue
		}
		candidates = append(candidates, t)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return priorityRank[candidates[i].Priority] < priorityRank[candidates[j].Priority]
	})

	if s.PRFiles == nil || len(s.HotFiles) == 0 {
		if len(candidates) == 0 {
			return nil, nil
		}
		return &candidates[0], nil
	}

	openPRNumbers, err := s.openAgentPRNumbers(ctx)
	if err != nil {
		return nil, err
	}
	for i := range candidates {
		conflict, err := hotFileConflict(ctx, s.PRFiles, openPRNumbers, candidates[i].AllowedPaths, s.HotFiles)
		if err != nil {
			return nil, err
		}
		if !conflict {
			return &candidates[i], nil
		}
	}
	return nil, nil
}

func (s *Scheduler) openAgentPRNumbers(ctx context.Context) ([]int, error) {
	prs, err := s.GitHost.ListOpenPullRequests(ctx)
	if err != nil {
		return nil, err
	}
	numbers := make([]int, 0, len(prs))
	for _, pr := range prs {
		if _, ok := githost.ExtractTaskID(pr.Branch); !ok {
			continue
		}
		numbers = append(numbers, pr.Number)
	}
	return numbers, nil
}

func (s *Scheduler) guardPermits(allowedPaths []string) bool {
	if s.Guard == nil {
		return true
	}
	return s.Guard(allowedPaths)
}

// markBlockedIfUnsatisfiable emits task.blocked for a task whose
// dependencies can never be resolved under the current no-op dependency
// policy (§9 Open Questions decision).
func (s *Scheduler) markBlockedIfUnsatisfiable(t backlog.Task) {
	node := s.Graph.GetNode(t.ID)
	if node != nil && node.Properties["status"] == "blocked" {
		return
	}
	_, _ = s.appendAndApply(context.Background(), event.New(uuid.NewString(), event.TaskBlocked, "scheduler", event.Payload{
		"id": t.ID, "status": "blocked", "reason": "unsatisfiable_dependencies",
	}))
}

func (s *Scheduler) attemptCount(taskID string) int {
	count := 0
	for _, n := range s.Graph.QueryNodes(graph.Attempt, nil) {
		if v, ok := graph.AsAttempt(n); ok && v.TaskID() == taskID {
			count++
		}
	}
	return count
}

func (s *Scheduler) appendAndApply(ctx context.Context, e event.Event) (event.Event, error) {
	applied, err := s.Journal.Append(ctx, e)
	if err != nil {
		return event.Event{}, err
	}
	graph.Apply(s.Graph, applied)
	return applied, nil
}
