// Command factgraph researches a company with an LLM agent, stages the
// extracted entities locally and pushes the resulting subgraph to Neo4j.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/factgraph/factgraph/internal/config"
	"github.com/factgraph/factgraph/internal/graph"
	"github.com/factgraph/factgraph/internal/research"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "factgraph: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	company := flag.String("company", "", "company name to research")
	configPath := flag.String("config", "", "path to YAML config file")
	skipSync := flag.Bool("skip-sync", false, "stage locally without pushing to Neo4j")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	if *company == "" {
		return fmt.Errorf("-company is required")
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if cfg.Research.AnthropicAPIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is not set")
	}
	if cfg.Research.TavilyAPIKey == "" {
		return fmt.Errorf("TAVILY_API_KEY is not set")
	}

	ctx := context.Background()
	store, err := graph.OpenStaging(ctx, graph.StagingConfig{
		Path:        cfg.Staging.Path,
		MaxRetries:  cfg.Staging.MaxRetries,
		BackoffBase: cfg.Staging.BackoffBase(),
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("opening staging store: %w", err)
	}
	defer store.Close()

	researcher := research.NewResearcher(
		research.NewAnthropicClient(cfg.Research.AnthropicAPIKey, cfg.Research.AnthropicModel),
		research.NewTavilyClient(cfg.Research.TavilyAPIKey),
		research.NewEdgarClient(cfg.Research.EdgarIdentity),
		store,
		logger,
	)

	logger.Info("researching company", "company", *company)
	result, err := researcher.Run(ctx, *company)
	if err != nil {
		return fmt.Errorf("research failed: %w", err)
	}

	fmt.Printf("Staged %d entities for %s\n", result.Staged, result.Company)
	if result.Summary != "" {
		fmt.Println(result.Summary)
	}

	if *skipSync {
		return nil
	}
	if result.RootKey == "" {
		return fmt.Errorf("no company node was staged, nothing to sync")
	}

	remote, err := graph.NewNeo4jStore(ctx, graph.Neo4jConfig{
		URI:      cfg.Neo4j.URI,
		Username: cfg.Neo4j.Username,
		Password: cfg.Neo4j.Password,
		Database: cfg.Neo4j.Database,
	})
	if err != nil {
		return fmt.Errorf("connecting to neo4j: %w", err)
	}

	syncer := graph.NewSyncer(store, remote, logger)
	defer syncer.Close(ctx)

	handle, err := syncer.StoreSubgraph(ctx, "OrganizationUnit", result.RootKey)
	if err != nil {
		return fmt.Errorf("pushing subgraph: %w", err)
	}

	fmt.Printf("Synced subgraph rooted at %s/%s\n", handle.Collection, handle.Key)
	return nil
}
