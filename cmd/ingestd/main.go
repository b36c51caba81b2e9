// Command ingestd serves the authenticated HTTP ingest/query API (§4.8):
// workers post event bundles here, and operators query graph summaries,
// attempts, and failures.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/swarmguard/leviathan/internal/config"
	"github.com/swarmguard/leviathan/internal/graph"
	"github.com/swarmguard/leviathan/internal/ingest"
	"github.com/swarmguard/leviathan/internal/journal"
	"github.com/swarmguard/leviathan/internal/logging"
	"github.com/swarmguard/leviathan/internal/obssink"
	"github.com/swarmguard/leviathan/internal/otelinit"
)

func main() {
	service := "ingestd"
	logger := logging.Init(service)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTrace, err := otelinit.InitTracer(ctx, service)
	if err != nil {
		logger.Error("tracer init failed", "error", err)
		os.Exit(1)
	}
	shutdownMetrics, _, err := otelinit.InitMetrics(ctx, service)
	if err != nil {
		logger.Error("metrics init failed", "error", err)
		os.Exit(1)
	}
	defer otelinit.Flush(context.Background(), shutdownTrace)
	defer shutdownMetrics(context.Background())

	journalPath := envOr("LEVIATHAN_JOURNAL_PATH", "/var/lib/leviathan/journal.ndjson")
	j, err := journal.OpenNDJSON(journalPath)
	if err != nil {
		logger.Error("open journal failed", "error", err)
		os.Exit(1)
	}
	defer j.Close()

	g := graph.New()
	events, err := j.Scan(ctx, "", 0)
	if err != nil {
		logger.Error("journal scan failed", "error", err)
		os.Exit(1)
	}
	graph.Rebuild(g, events)

	var sink ingest.Sink
	if natsURL := os.Getenv("LEVIATHAN_NATS_URL"); natsURL != "" {
		forwarder, err := obssink.NewNATSForwarder(natsURL, envOr("LEVIATHAN_NATS_SUBJECT", "leviathan.events.ingested"))
		if err != nil {
			logger.Warn("nats forwarder init failed, observability forwarding disabled", "error", err)
		} else {
			sink = forwarder
			defer forwarder.Close()
		}
	}

	autonomyEnabled := os.Getenv("LEVIATHAN_AUTONOMY_ENABLED") == "1"
	if path := os.Getenv("LEVIATHAN_AUTONOMY_CONFIG"); path != "" {
		a, err := config.LoadAutonomy(path)
		if err != nil {
			logger.Error("load autonomy config failed", "error", err)
			os.Exit(1)
		}
		autonomyEnabled = a.AutonomyEnabled
	}

	server := &ingest.Server{
		Journal:           j,
		Graph:             g,
		Sink:              sink,
		ControlPlaneToken: os.Getenv("LEVIATHAN_CONTROL_PLANE_TOKEN"),
		AutonomyEnabled:   autonomyEnabled,
		AutonomySource:    envOr("LEVIATHAN_AUTONOMY_SOURCE", "config"),
		Logger:            logger,
	}

	addr := envOr("LEVIATHAN_LISTEN_ADDR", ":8080")
	httpServer := &http.Server{Addr: addr, Handler: server.Router()}

	go func() {
		logger.Info("ingest api listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	logger.Info("shutdown complete")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
