// Package main is the entry point for the omrs-core Temporal worker: it
// registers the refresh-round-trip and batch-ingestion workflows/activities
// defined in internal/temporal. Grounded directly on the teacher's
// cmd/worker/main.go: dial a Temporal client, build a worker.Worker on the
// configured task queue, register activities/workflows, run until signalled.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/nucleus/omrs-core/internal/collection"
	"github.com/nucleus/omrs-core/internal/config"
	"github.com/nucleus/omrs-core/internal/eventproc"
	"github.com/nucleus/omrs-core/internal/exchange"
	"github.com/nucleus/omrs-core/internal/security"
	temporal_internal "github.com/nucleus/omrs-core/internal/temporal"
	"github.com/nucleus/omrs-core/internal/typedefs"
	"github.com/nucleus/omrs-core/internal/validator"
	"github.com/nucleus/omrs-core/internal/wrapper"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	types := typedefs.NewMemoryRegistry()

	var store collection.MetadataCollection
	if cfg.DatabaseURL != "" {
		pg, err := collection.NewPostgresCollection(ctx, cfg.DatabaseURL, cfg.MigrationsPath, cfg.LocalMetadataCollectionID, cfg.LocalMetadataCollectionName, types)
		if err != nil {
			log.Fatalf("failed to connect to database: %v", err)
		}
		store = pg
	} else {
		store = collection.NewMemoryCollection(cfg.LocalMetadataCollectionID, cfg.LocalMetadataCollectionName, types)
	}

	v := validator.New(types)
	w := wrapper.New(store, types, v, security.AllowAllVerifier{}, nil, cfg.LocalMetadataCollectionID, cfg.LocalMetadataCollectionName, false)
	rule := exchange.New(cfg)
	proc := eventproc.New(w, store, v, types, rule, nil, nil, cfg.LocalMetadataCollectionID, slog.Default())

	activities := temporal_internal.NewActivities(w, store, proc)

	c, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
	})
	if err != nil {
		log.Fatalf("failed to create Temporal client: %v", err)
	}
	defer c.Close()

	wk := worker.New(c, cfg.TemporalTaskQueue, worker.Options{})

	wk.RegisterActivityWithOptions(activities.RequestRefresh, activity.RegisterOptions{Name: "RequestRefresh"})
	wk.RegisterActivityWithOptions(activities.CheckReferenceCopy, activity.RegisterOptions{Name: "CheckReferenceCopy"})
	wk.RegisterActivityWithOptions(activities.IngestEntity, activity.RegisterOptions{Name: "IngestEntity"})
	wk.RegisterActivityWithOptions(activities.IngestRelationship, activity.RegisterOptions{Name: "IngestRelationship"})

	wk.RegisterWorkflowWithOptions(temporal_internal.RefreshReferenceCopyWorkflowFunc, workflow.RegisterOptions{Name: temporal_internal.RefreshReferenceCopyWorkflowName})
	wk.RegisterWorkflowWithOptions(temporal_internal.BatchReferenceCopyWorkflowFunc, workflow.RegisterOptions{Name: temporal_internal.BatchReferenceCopyWorkflowName})

	errCh := make(chan error, 1)
	go func() {
		errCh <- wk.Run(worker.InterruptCh())
	}()

	log.Printf("omrs-core Temporal worker started on task queue: %s", cfg.TemporalTaskQueue)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("received signal %s, shutting down...", sig)
		cancel()
	case err := <-errCh:
		if err != nil {
			log.Printf("worker error: %v", err)
		}
	}
}
