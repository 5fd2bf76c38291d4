package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/factgraph/factgraph/internal/config"
	"github.com/factgraph/factgraph/internal/graph"
	"github.com/factgraph/factgraph/internal/server/api"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("loading configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	store, err := graph.OpenStaging(ctx, graph.StagingConfig{
		Path:        cfg.Staging.Path,
		MaxRetries:  cfg.Staging.MaxRetries,
		BackoffBase: cfg.Staging.BackoffBase(),
		Logger:      logger,
	})
	if err != nil {
		logger.Error("opening staging store", "path", cfg.Staging.Path, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Each sync run gets its own remote connection, released when the
	// run finishes.
	dial := func(ctx context.Context) (graph.RemoteStore, error) {
		return graph.NewNeo4jStore(ctx, graph.Neo4jConfig{
			URI:      cfg.Neo4j.URI,
			Username: cfg.Neo4j.Username,
			Password: cfg.Neo4j.Password,
			Database: cfg.Neo4j.Database,
		})
	}

	apiServer := api.New(store, dial, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      apiServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "addr", srv.Addr, "staging", cfg.Staging.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server exited")
}
