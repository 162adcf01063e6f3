package main

import (
	"fmt"

	"github.com/stockscope/backend/internal/config"
	"github.com/stockscope/backend/internal/db"
	"github.com/stockscope/backend/internal/integrations/openai"
	"github.com/stockscope/backend/internal/prompts"
	"github.com/stockscope/backend/internal/services"
	"gorm.io/gorm"
)

// pipeline bundles what a command needs to run or read analyses. The CLI never
// publishes to the Redis feed; only the server does.
type pipeline struct {
	cfg      *config.Config
	db       *gorm.DB
	prompts  *prompts.Store
	runs     *services.RunStore
	analysis *services.AnalysisService
}

func openPipeline(promptsDir string, concurrency int) (*pipeline, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if promptsDir != "" {
		cfg.Prompts.Dir = promptsDir
	}
	if concurrency > 0 {
		cfg.Analysis.Concurrency = concurrency
	}

	gdb, err := db.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening results database: %w", err)
	}

	store := prompts.NewStore(cfg.Prompts.Dir)
	if _, err := store.Reload(); err != nil {
		db.Close(gdb)
		return nil, fmt.Errorf("loading prompts: %w", err)
	}

	runs := services.NewRunStore(gdb)
	model := openai.NewModelClient(cfg)
	return &pipeline{
		cfg:      cfg,
		db:       gdb,
		prompts:  store,
		runs:     runs,
		analysis: services.NewAnalysisService(cfg, store, model, runs, nil),
	}, nil
}

func (p *pipeline) Close() {
	db.Close(p.db)
}
