package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/crowdbracket/crowdbracket/internal/api"
	"github.com/crowdbracket/crowdbracket/internal/broadcast"
	"github.com/crowdbracket/crowdbracket/internal/config"
	"github.com/crowdbracket/crowdbracket/internal/live"
	"github.com/crowdbracket/crowdbracket/internal/repository/postgres"
	"github.com/crowdbracket/crowdbracket/internal/service"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Initialize database
	db, err := postgres.NewConnection(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	// Initialize repositories and services
	repos := postgres.NewRepositories(db)
	services := service.NewServices(repos, cfg)

	// Broadcast pipeline: votes flow through the broadcaster and land
	// in Postgres via the persister.
	persister := service.NewVotePersister(services.Vote)
	broadcaster := broadcast.NewService(broadcast.Config{
		Cooldown:          cfg.VoteCooldown,
		PruneHorizon:      cfg.RateLimitHorizon,
		PruneInterval:     cfg.RateLimitHorizon / 2,
		BatchWindow:       cfg.BatchWindow,
		FastBatchWindow:   cfg.FastBatchWindow,
		AdaptiveThreshold: cfg.AdaptiveThreshold,
		MaxBatch:          cfg.MaxBatchSize,
		PersistTimeout:    cfg.PersistTimeout,
	}, persister)

	manager := live.NewManager(repos.Participant, broadcaster, services.Checkpoint, cfg.ChatGatewayURL, cfg.ChatOperator)
	broadcaster.SetMatchIndexFunc(manager.CurrentMatchIndex)

	router := api.NewRouter(services, broadcaster, manager, repos)

	srv := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return broadcaster.Run(ctx)
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Println("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		manager.StopAll()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("server error: %v", err)
	}

	log.Println("Server stopped")
}
