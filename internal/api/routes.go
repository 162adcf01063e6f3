/**
 * @description
 * Fiber app construction and route definitions.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - backend/internal/api/handlers
 * - backend/internal/services
 * - backend/internal/prompts
 */

package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"github.com/stockscope/backend/internal/api/handlers"
	"github.com/stockscope/backend/internal/api/views"
	"github.com/stockscope/backend/internal/config"
	"github.com/stockscope/backend/internal/integrations/openai"
	"github.com/stockscope/backend/internal/prompts"
	"github.com/stockscope/backend/internal/services"
	"gorm.io/gorm"
)

// NewApp creates the Fiber app with the page engine and global middleware.
func NewApp(cfg *config.Config) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:       "Stockscope",
		StrictRouting: true,
		CaseSensitive: true,
		Views:         views.NewEngine(),
	})

	app.Use(recover.New()) // Panic recovery
	if cfg.Server.Env != "test" {
		app.Use(fiberlogger.New()) // Request logging
	}
	app.Use("/api", cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	return app
}

// SetupRoutes wires services and handlers onto the app. rdb may be nil.
func SetupRoutes(app *fiber.App, db *gorm.DB, rdb *redis.Client, cfg *config.Config) (*prompts.Store, error) {
	// 1. Load prompt definitions
	promptStore := prompts.NewStore(cfg.Prompts.Dir)
	if _, err := promptStore.Reload(); err != nil {
		return nil, err
	}

	// 2. Initialize Services
	runStore := services.NewRunStore(db)
	feed := services.NewRunFeed(rdb, cfg.Analysis.RecentRuns)
	model := openai.NewModelClient(cfg)
	analysisService := services.NewAnalysisService(cfg, promptStore, model, runStore, feed)

	// 3. Initialize Handlers
	analysisHandler := handlers.NewAnalysisHandler(analysisService, runStore, feed, cfg.Analysis.RecentRuns)
	promptHandler := handlers.NewPromptHandler(promptStore)

	// 4. Pages
	app.Get("/", analysisHandler.Index)
	app.Post("/", analysisHandler.Submit)
	app.Get("/runs/:id", analysisHandler.ShowRun)

	// 5. JSON API
	v1 := app.Group("/api/v1")
	v1.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"model":   model.Model(),
			"prompts": len(promptStore.Definitions()),
			"feed":    feed.Enabled(),
		})
	})
	v1.Post("/analyze", analysisHandler.AnalyzeJSON)
	v1.Get("/runs", analysisHandler.ListRuns)
	v1.Get("/runs/:id", analysisHandler.GetRun)
	v1.Get("/prompts", promptHandler.ListPrompts)
	v1.Post("/prompts/reload", promptHandler.ReloadPrompts)

	return promptStore, nil
}
