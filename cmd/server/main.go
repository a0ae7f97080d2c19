// Package main is the entry point for the omrs-core API server: the local
// repository wrapper (C7), the enterprise federator (C10), and the JSON API
// surface (internal/apiserver) wired together into a single process.
// Grounded directly on the teacher's cmd/server/main.go: load config, open
// the storage engine, run migrations, build the HTTP mux, serve with
// graceful shutdown on SIGINT/SIGTERM.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nucleus/omrs-core/internal/apiserver"
	"github.com/nucleus/omrs-core/internal/cohortbus"
	"github.com/nucleus/omrs-core/internal/collection"
	"github.com/nucleus/omrs-core/internal/config"
	"github.com/nucleus/omrs-core/internal/eventproc"
	"github.com/nucleus/omrs-core/internal/events"
	"github.com/nucleus/omrs-core/internal/exchange"
	"github.com/nucleus/omrs-core/internal/federator"
	"github.com/nucleus/omrs-core/internal/registry"
	"github.com/nucleus/omrs-core/internal/security"
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

	bus := cohortbus.New()
	emitter := events.NewEmitter(bus, cfg.EventQueueDepth, cfg.EventQueueOverflow, slog.Default())
	defer emitter.Close()

	v := validator.New(types)

	var authn security.Verifier = security.AllowAllVerifier{}
	var jwtVerifier *security.JWTVerifier
	if cfg.JWKSUrl != "" {
		jwtVerifier = security.NewJWTVerifier(cfg)
		authn = jwtVerifier
	}

	w := wrapper.New(store, types, v, authn, emitter, cfg.LocalMetadataCollectionID, cfg.LocalMetadataCollectionName, cfg.ProduceEventsForRealConnector)

	reg := registry.New()
	reg.SetLocalConnector(store)

	rule := exchange.New(cfg)
	proc := eventproc.New(w, store, v, types, rule, emitter, nil, cfg.LocalMetadataCollectionID, slog.Default())

	fed := federator.New(reg, proc, slog.Default())

	sub := bus.Subscribe(cfg.LocalMetadataCollectionID, cfg.EventQueueDepth)
	go cohortbus.Consume(ctx, sub, proc)

	srv := apiserver.New(fed, w, authn, slog.Default())
	mux := http.NewServeMux()
	srv.Routes(mux)

	handler := http.Handler(mux)
	if jwtVerifier != nil {
		handler = apiserver.Middleware(jwtVerifier)(mux)
	}

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("shutting down...")
		cancel()
		if err := httpServer.Shutdown(context.Background()); err != nil {
			log.Printf("error shutting down server: %v", err)
		}
	}()

	log.Printf("omrs-core listening on :%s (collection %s)", cfg.Port, cfg.LocalMetadataCollectionID)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}
