package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/stockscope/backend/internal/analysis"
	"github.com/stockscope/backend/internal/prompts"
)

type PromptHandler struct {
	Store *prompts.Store
}

func NewPromptHandler(store *prompts.Store) *PromptHandler {
	return &PromptHandler{Store: store}
}

type promptSummary struct {
	ID        string           `json:"prompt_id"`
	Name      string           `json:"name"`
	Version   int              `json:"version"`
	HasSchema bool             `json:"has_schema"`
	Schema    *analysis.Schema `json:"schema,omitempty"`
	Source    string           `json:"source"`
}

func summarize(defs []prompts.Definition) []promptSummary {
	out := make([]promptSummary, 0, len(defs))
	for _, d := range defs {
		out = append(out, promptSummary{
			ID:        d.ID,
			Name:      d.Name,
			Version:   d.Version,
			HasSchema: d.Schema != nil,
			Schema:    d.Schema,
			Source:    d.Source,
		})
	}
	return out
}

// ListPrompts returns the currently loaded definitions
// GET /api/v1/prompts
func (h *PromptHandler) ListPrompts(c *fiber.Ctx) error {
	return c.JSON(summarize(h.Store.Definitions()))
}

// ReloadPrompts rescans the prompt directory
// POST /api/v1/prompts/reload
func (h *PromptHandler) ReloadPrompts(c *fiber.Ctx) error {
	defs, err := h.Store.Reload()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to reload prompts: " + err.Error()})
	}
	return c.JSON(fiber.Map{"loaded": len(defs), "prompts": summarize(defs)})
}
