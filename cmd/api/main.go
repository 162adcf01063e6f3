/**
 * @description
 * Main entry point for the Stockscope web server.
 * Loads configuration, opens the database (and Redis when configured), loads prompt
 * definitions and serves the ticker form plus the JSON API.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2: Web framework
 * - backend/internal/config: Config loader
 * - backend/internal/db: Database connections
 * - backend/internal/api: Routes
 */

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stockscope/backend/internal/api"
	"github.com/stockscope/backend/internal/config"
	"github.com/stockscope/backend/internal/db"
	"github.com/stockscope/backend/internal/logger"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}
	logger.Configure(cfg.Server.Env)
	defer logger.Sync()

	// 2. Initialize Database Connections
	gdb, err := db.Connect(cfg)
	if err != nil {
		logger.Fatal("Failed to open database: %v", err)
	}
	defer db.Close(gdb)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, err := db.ConnectRedis(ctx, cfg)
	if err != nil {
		// The feed is optional; the page falls back to the run table.
		logger.Error("Redis connection failed, recent runs feed disabled: %v", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// 3. Initialize Fiber App + Routes
	app := api.NewApp(cfg)
	if _, err := api.SetupRoutes(app, gdb, redisClient, cfg); err != nil {
		logger.Fatal("Failed to set up routes: %v", err)
	}

	// 4. Graceful shutdown
	go func() {
		<-ctx.Done()
		logger.Info("Shutting down...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Error("Shutdown error: %v", err)
		}
	}()

	// 5. Start Server
	logger.Info("🚀 Starting Stockscope on port %s", cfg.Server.Port)
	if err := app.Listen(":" + cfg.Server.Port); err != nil {
		logger.Fatal("Failed to start server: %v", err)
	}
}
