// Command schedulerd runs the per-target scheduling loop (§4.5): on a
// cron cadence, or once for a single external tick, it ingests the
// backlog, selects the next eligible task, and dispatches an attempt as
// a Kubernetes job.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/swarmguard/leviathan/internal/backlog"
	"github.com/swarmguard/leviathan/internal/config"
	"github.com/swarmguard/leviathan/internal/event"
	"github.com/swarmguard/leviathan/internal/failure"
	"github.com/swarmguard/leviathan/internal/githost"
	"github.com/swarmguard/leviathan/internal/graph"
	"github.com/swarmguard/leviathan/internal/journal"
	"github.com/swarmguard/leviathan/internal/logging"
	"github.com/swarmguard/leviathan/internal/otelinit"
	"github.com/swarmguard/leviathan/internal/resilience"
	"github.com/swarmguard/leviathan/internal/scheduler"
	"github.com/swarmguard/leviathan/internal/workspace"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
)

func main() {
	service := "schedulerd"
	logger := logging.Init(service)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTrace, err := otelinit.InitTracer(ctx, service)
	if err != nil {
		logger.Error("tracer init failed", "error", err)
		os.Exit(1)
	}
	shutdownMetrics, metrics, err := otelinit.InitMetrics(ctx, service)
	if err != nil {
		logger.Error("metrics init failed", "error", err)
		os.Exit(1)
	}
	defer otelinit.Flush(context.Background(), shutdownTrace)
	defer shutdownMetrics(context.Background())

	targetPath := flag.String("target-config", os.Getenv("LEVIATHAN_TARGET_CONFIG"), "path to target.yaml")
	autonomyPath := flag.String("autonomy-config", os.Getenv("LEVIATHAN_AUTONOMY_CONFIG"), "path to autonomy.yaml")
	once := flag.Bool("once", os.Getenv("LEVIATHAN_TICK_ONCE") == "1", "run a single tick and exit")
	flag.Parse()

	target, err := config.LoadTarget(*targetPath)
	if err != nil {
		logger.Error("load target config failed", "error", err)
		os.Exit(1)
	}

	autonomyWatcher, err := config.WatchAutonomy(*autonomyPath)
	if err != nil {
		logger.Error("load autonomy config failed", "error", err)
		os.Exit(1)
	}
	defer autonomyWatcher.Close()

	j, err := journal.OpenNDJSON(target.LocalCacheDir + "/.leviathan/journal.ndjson")
	if err != nil {
		logger.Error("open journal failed", "error", err)
		os.Exit(1)
	}
	defer j.Close()

	g := graph.New()
	loaded := false
	if snap, err := graph.OpenSnapshotStore(target.LocalCacheDir + "/.leviathan/graph.bbolt"); err == nil {
		if err := snap.Load(g); err != nil {
			logger.Warn("graph snapshot load failed, rebuilding from journal", "error", err)
		} else {
			loaded = true
		}
		snap.Close()
	}
	events, err := j.Scan(ctx, "", 0)
	if err != nil {
		logger.Error("journal scan failed", "error", err)
		os.Exit(1)
	}
	replayed := false
	if last := g.LastAppliedHash(); loaded && last != "" {
		for i, e := range events {
			if e.Hash == last {
				for _, tail := range events[i+1:] {
					graph.Apply(g, tail)
				}
				replayed = true
				break
			}
		}
	}
	if !replayed {
		graph.Rebuild(g, events)
	}

	gh := githost.NewClient(ctx, os.Getenv("LEVIATHAN_GITHUB_TOKEN"), os.Getenv("LEVIATHAN_GITHUB_OWNER"), os.Getenv("LEVIATHAN_GITHUB_REPO"))

	var jobRunner *workspace.ContainerJob
	if kc, err := rest.InClusterConfig(); err == nil {
		if clientset, err := kubernetes.NewForConfig(kc); err == nil {
			jobRunner = workspace.NewContainerJob(clientset)
		} else {
			logger.Warn("kubernetes client init failed; attempts will fail with job_submit_error", "error", err)
		}
	} else {
		logger.Warn("not running in-cluster; attempts will fail with job_submit_error", "error", err)
	}

	minSamples := 5
	if n := autonomyWatcher.Current().CircuitBreakerFailures; n > 0 {
		minSamples = n
	}
	breaker := resilience.NewCircuitBreaker(time.Minute, 10*time.Second, 30*time.Second, 0.5, minSamples)
	breaker.OnTransition(func(from, to string) {
		if to == "open" && metrics != nil {
			metrics.CircuitOpenTransitions.Add(ctx, 1)
		}
	})

	sched := &scheduler.Scheduler{
		Journal:    j,
		Graph:      g,
		GitHost:    gh,
		Dispatcher: &jobDispatcher{job: jobRunner, autonomy: autonomyWatcher, logger: logger},
		Breaker:    breaker,
		Logger:     logger,
		PRFiles:    gh,
		HotFiles:   []string{"go.mod", "go.sum"},
	}

	runOnce := func() {
		a := autonomyWatcher.Current()
		bl, err := loadBacklog(target)
		if err != nil {
			logger.Error("backlog load failed", "error", err)
			return
		}
		limits := scheduler.Limits{
			MaxOpenPRs:             a.MaxOpenPRs,
			MaxAttemptsPerTask:     a.MaxAttemptsPerTask,
			BackoffSeconds:         60,
			CircuitBreakerFailures: a.CircuitBreakerFailures,
		}
		if err := sched.Tick(ctx, target.Name, bl, limits); err != nil {
			logger.Error("tick failed", "error", err, "target", target.Name)
		}
		if snap, err := graph.OpenSnapshotStore(target.LocalCacheDir + "/.leviathan/graph.bbolt"); err == nil {
			_ = snap.Save(g)
			snap.Close()
		}
	}

	if *once {
		runOnce()
		return
	}

	c := cron.New()
	schedule := os.Getenv("LEVIATHAN_SCHEDULE_CRON")
	if schedule == "" {
		schedule = "* * * * *"
	}
	if _, err := c.AddFunc(schedule, runOnce); err != nil {
		logger.Error("invalid cron schedule", "error", err, "schedule", schedule)
		os.Exit(1)
	}
	c.Start()
	logger.Info("scheduler started", "target", target.Name, "schedule", schedule)

	<-ctx.Done()
	logger.Info("shutdown initiated")
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(10 * time.Second):
	}
	logger.Info("shutdown complete")
}

func loadBacklog(target config.Target) (backlog.Backlog, error) {
	data, err := os.ReadFile(target.BacklogPath)
	if err != nil {
		return backlog.Backlog{}, fmt.Errorf("read backlog: %w", err)
	}
	return backlog.Parse(data)
}

// jobDispatcher submits one attempt as a Kubernetes job and blocks for
// its outcome, translating the job result into the scheduler's
// Dispatch contract. When no in-cluster job runner is available (local
// development), it reports a JobSubmitError failure rather than
// silently fabricating success.
type jobDispatcher struct {
	job      *workspace.ContainerJob
	autonomy *config.AutonomyWatcher
	logger   *slog.Logger
}

func (d *jobDispatcher) Dispatch(ctx context.Context, params scheduler.AttemptParams) (bool, event.Payload, string) {
	if d.job == nil {
		d.logger.Error("no job runner configured; cannot dispatch attempt", "task_id", params.TaskID)
		return false, event.Payload{}, failure.JobSubmitError.WireValue()
	}

	a := d.autonomy.Current()
	jobName := "leviathan-attempt-" + params.AttemptID
	spec := workspace.JobSpec{
		Name:      jobName,
		Namespace: a.WorkerNamespace,
		Image:     a.WorkerImage,
		Env: map[string]string{
			"LEVIATHAN_TARGET_NAME":     params.TargetName,
			"LEVIATHAN_TASK_ID":         params.TaskID,
			"LEVIATHAN_ATTEMPT_ID":      params.AttemptID,
			"LEVIATHAN_CONTROL_PLANE_URL": a.ControlPlaneURL,
		},
		TTLAfterFinish: 5 * time.Minute,
	}
	if err := d.job.Submit(ctx, spec); err != nil {
		d.logger.Error("job submission failed", "error", err, "task_id", params.TaskID)
		return false, event.Payload{}, failure.JobSubmitError.WireValue()
	}

	succeeded, err := d.job.Wait(ctx, a.WorkerNamespace, jobName, 5*time.Second)
	defer d.job.Cleanup(ctx, a.WorkerNamespace, jobName)
	if err != nil {
		d.logger.Error("job wait failed", "error", err, "task_id", params.TaskID)
		return false, event.Payload{}, failure.WorkerError.WireValue()
	}
	if !succeeded {
		logs, _ := d.job.PodLogs(ctx, a.WorkerNamespace, jobName)
		var tail string
		if len(logs) > 2000 {
			tail = logs[len(logs)-2000:]
		} else {
			tail = logs
		}
		return false, event.Payload{"log_excerpt": tail}, failure.WorkerError.WireValue()
	}
	return true, event.Payload{}, ""
}
