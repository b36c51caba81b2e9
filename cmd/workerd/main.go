// Command workerd runs exactly one attempt to completion: clone, load
// task, generate, apply, test, commit, push, open PR, store artifacts,
// report. It is the process schedulerd submits as a Kubernetes job
// (§4.6), one invocation per attempt, exiting non-zero on failure so the
// job's terminal state reflects the attempt's outcome.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/swarmguard/leviathan/internal/artifact"
	"github.com/swarmguard/leviathan/internal/backlog"
	"github.com/swarmguard/leviathan/internal/githost"
	"github.com/swarmguard/leviathan/internal/logging"
	"github.com/swarmguard/leviathan/internal/oracle"
	"github.com/swarmguard/leviathan/internal/otelinit"
	"github.com/swarmguard/leviathan/internal/worker"
	"github.com/swarmguard/leviathan/internal/workspace"
)

func main() {
	service := "workerd"
	logger := logging.Init(service)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTrace, err := otelinit.InitTracer(ctx, service)
	if err != nil {
		logger.Error("tracer init failed", "error", err)
		os.Exit(1)
	}
	defer otelinit.Flush(context.Background(), shutdownTrace)

	shutdownMetrics, metrics, err := otelinit.InitMetrics(ctx, service)
	if err != nil {
		logger.Error("metrics init failed", "error", err)
		os.Exit(1)
	}
	defer shutdownMetrics(context.Background())

	params := worker.Params{
		TargetName:          mustEnv(logger, "LEVIATHAN_TARGET_NAME"),
		TargetRepoURL:       mustEnv(logger, "LEVIATHAN_TARGET_REPO_URL"),
		TargetDefaultBranch: envOr("LEVIATHAN_TARGET_DEFAULT_BRANCH", "main"),
		TaskID:              mustEnv(logger, "LEVIATHAN_TASK_ID"),
		AttemptID:           mustEnv(logger, "LEVIATHAN_ATTEMPT_ID"),
		ControlPlaneURL:     mustEnv(logger, "LEVIATHAN_CONTROL_PLANE_URL"),
		ControlPlaneToken:   os.Getenv("LEVIATHAN_CONTROL_PLANE_TOKEN"),
		GitCredential:       os.Getenv("LEVIATHAN_GIT_TOKEN"),
		WorkspaceBase:       envOr("LEVIATHAN_WORKSPACE_BASE", ""),
		ArtifactKind:        artifact.KindLog,
	}

	bl, err := loadBacklogFromEnv()
	if err != nil {
		logger.Error("load backlog failed", "error", err)
		os.Exit(1)
	}

	ws, err := workspace.NewLocal(params.WorkspaceBase, params.AttemptID, params.TargetRepoURL, params.TargetDefaultBranch, params.GitCredential)
	if err != nil {
		logger.Error("workspace init failed", "error", err)
		os.Exit(1)
	}

	gh := githost.NewClient(ctx, params.GitCredential, os.Getenv("LEVIATHAN_GITHUB_OWNER"), os.Getenv("LEVIATHAN_GITHUB_REPO"))

	var oracleClient worker.Oracle
	if baseURL := os.Getenv("LEVIATHAN_ORACLE_URL"); baseURL != "" {
		oracleClient = oracle.NewClient(baseURL, os.Getenv("LEVIATHAN_ORACLE_API_KEY"), os.Getenv("LEVIATHAN_ORACLE_MODEL"))
	}

	artifactIndex, err := artifact.OpenIndex(envOr("LEVIATHAN_ARTIFACT_INDEX_DIR", "/var/lib/leviathan/artifact-index"))
	if err != nil {
		logger.Error("artifact index open failed", "error", err)
		os.Exit(1)
	}
	defer artifactIndex.Close()
	store, err := artifact.NewFileStore(envOr("LEVIATHAN_ARTIFACT_DIR", "/var/lib/leviathan/artifacts"), artifactIndex)
	if err != nil {
		logger.Error("artifact store open failed", "error", err)
		os.Exit(1)
	}

	w := &worker.Worker{
		Workspace: ws,
		GitHost:   gh,
		Oracle:    oracleClient,
		Artifacts: store,
		Reporter: &worker.HTTPReporter{
			BaseURL: params.ControlPlaneURL,
			Token:   params.ControlPlaneToken,
		},
		Logger: logger,
	}

	runCtx, runCancel := context.WithTimeout(ctx, 20*time.Minute)
	defer runCancel()

	bundle, err := w.Run(runCtx, params, bl)
	if err != nil {
		metrics.AttemptsFailed.Add(ctx, 1)
		logger.Error("attempt failed", "error", err, "task_id", params.TaskID, "attempt_id", params.AttemptID)
		os.Exit(1)
	}
	metrics.AttemptsDispatched.Add(ctx, 1)
	logger.Info("attempt succeeded", "task_id", params.TaskID, "attempt_id", params.AttemptID, "events", len(bundle.Events))
}

func mustEnv(logger interface {
	Error(msg string, args ...any)
}, key string) string {
	v := os.Getenv(key)
	if v == "" {
		logger.Error("missing required environment variable", "key", key)
		os.Exit(1)
	}
	return v
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func loadBacklogFromEnv() (backlog.Backlog, error) {
	path := os.Getenv("LEVIATHAN_BACKLOG_PATH")
	if path == "" {
		return backlog.Backlog{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return backlog.Backlog{}, err
	}
	return backlog.Parse(data)
}
