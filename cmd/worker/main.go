/**
 * @description
 * Run-feed worker.
 * Subscribes to the Redis completion channel and logs every finished run, flagging runs
 * where some prompts came back degraded. Requires REDIS_URL.
 *
 * @dependencies
 * - backend/internal/config
 * - backend/internal/db
 * - backend/internal/services
 */

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/stockscope/backend/internal/config"
	"github.com/stockscope/backend/internal/db"
	"github.com/stockscope/backend/internal/logger"
	"github.com/stockscope/backend/internal/services"
)

func main() {
	// 1. Load Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}
	logger.Configure(cfg.Server.Env)
	defer logger.Sync()

	// 2. Context with Cancellation
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Connect Redis
	rdb, err := db.ConnectRedis(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to connect to Redis: %v", err)
	}
	if rdb == nil {
		logger.Fatal("REDIS_URL is not set; the worker has nothing to listen to")
	}
	defer rdb.Close()

	// 4. Listen until shutdown
	feed := services.NewRunFeed(rdb, cfg.Analysis.RecentRuns)
	logger.Info("👂 Listening for completed runs on %s", services.RunCompletedChannel)
	err = feed.Listen(ctx, nil, func(d services.RunDigest) {
		logger.Info("Run %s %s: %s (avg %.1f, target $%.2f)",
			d.RunID, d.Ticker, d.OverallRating, d.AverageScore, d.OverallTargetPrice)
		if d.DegradedCount > 0 {
			logger.Warn("Run %s %s: %d of %d prompts degraded", d.RunID, d.Ticker, d.DegradedCount, d.PromptCount)
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Listener stopped: %v", err)
	}
	logger.Info("Worker exited.")
}
