// Package main runs the queue worker that executes imports and webhook fan-out.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"product-importer/app"
	"product-importer/config"
	"product-importer/dispatch"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var requeueOrphans bool

var rootCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume product import and webhook tasks from the durable queue",
	Long: `The worker pulls tasks published by the API from the configured broker
(QUEUE_BROKER=redis or sqs), runs CSV imports against Postgres and delivers
webhook notifications. Progress is written to the same Redis store the API reads.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return runWorker(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.Flags().BoolVar(&requeueOrphans, "requeue-orphans", true,
		"move tasks left in the Redis processing list back onto the queue before consuming")
}

func runWorker(ctx context.Context, cfg *config.Config) error {
	logger, err := app.InitLogger(ctx, cfg, "worker")
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	deps, err := app.Bootstrap(startCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	if err := deps.RequireSharedProgress(); err != nil {
		return err
	}
	broker, err := dispatch.ProbeBroker(startCtx, deps.Broker)
	if err != nil {
		return fmt.Errorf("worker needs a reachable broker (QUEUE_BROKER=%s): %w", cfg.QueueBroker, err)
	}

	if rb, ok := broker.(*dispatch.RedisBroker); ok && requeueOrphans {
		n, err := rb.RequeueOrphans(startCtx)
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Info("requeued orphaned tasks", zap.Int("count", n))
		}
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	worker := dispatch.NewWorker(broker, deps.Stager, deps.Handler, deps.Metrics, logger)
	return worker.Run(sigCtx)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
