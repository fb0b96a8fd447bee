// Command ingest runs ingestion batches and template seeding from the shell.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"finsight/internal/cache"
	"finsight/internal/config"
	"finsight/internal/database"
	"finsight/internal/ingestion"
	"finsight/internal/logger"
	"finsight/internal/observability"
)

func main() {
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type globalFlags struct {
	concurrency int
}

func rootCmd() *cobra.Command {
	g := &globalFlags{}

	cmd := &cobra.Command{
		Use:           "ingest",
		Short:         "Fetch and store provider data",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().IntVar(&g.concurrency, "concurrency", 0, "Maximum tickers processed at once (default INGEST_CONCURRENCY)")

	cmd.AddCommand(
		financialsCmd(g),
		filingsCmd(g),
		coverageCmd(g),
		checkCmd(),
		seedTemplatesCmd(),
	)
	return cmd
}

// env holds the connections a subcommand needs. close releases them.
type env struct {
	cfg     *config.Config
	db      *gorm.DB
	rdb     *redis.Client
	metrics *observability.Metrics
	close   func()
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	dbManager, err := database.NewManager(database.NewConfig(cfg))
	if err != nil {
		return nil, err
	}

	rdb, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		_ = dbManager.Close()
		return nil, err
	}

	return &env{
		cfg:     cfg,
		db:      dbManager.DB(),
		rdb:     rdb,
		metrics: observability.NewMetrics(cfg.MetricsNamespace),
		close: func() {
			_ = rdb.Close()
			_ = dbManager.Close()
		},
	}, nil
}

func (e *env) orchestrator(concurrency int) (*ingestion.Orchestrator, error) {
	factory, err := ingestion.FromConfig(e.cfg, e.db, e.rdb, e.metrics)
	if err != nil {
		return nil, err
	}
	if concurrency < 1 {
		concurrency = e.cfg.Concurrency
	}
	return ingestion.NewOrchestrator(factory, concurrency, e.metrics), nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
