/**
 * @description
 * Analysis handlers.
 * Serves the ticker form, runs the analysis pipeline on submission and renders stored runs,
 * both as HTML pages and as JSON under /api/v1.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - backend/internal/services
 */

package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stockscope/backend/internal/api/views"
	"github.com/stockscope/backend/internal/logger"
	"github.com/stockscope/backend/internal/models"
	"github.com/stockscope/backend/internal/services"
)

// analysisFailedMessage is shown for persistence failures; the cause is only logged.
const analysisFailedMessage = "Analysis failed: results could not be saved. Please try again later."

type AnalysisHandler struct {
	Service     *services.AnalysisService
	Runs        *services.RunStore
	Feed        *services.RunFeed
	RecentLimit int
}

func NewAnalysisHandler(service *services.AnalysisService, runs *services.RunStore, feed *services.RunFeed, recentLimit int) *AnalysisHandler {
	return &AnalysisHandler{Service: service, Runs: runs, Feed: feed, RecentLimit: recentLimit}
}

// Index renders the ticker form with the most recent runs.
// GET /
func (h *AnalysisHandler) Index(c *fiber.Ctx) error {
	return h.renderForm(c, fiber.StatusOK, "", "")
}

// Submit runs the pipeline for the submitted ticker and renders the results.
// POST /
func (h *AnalysisHandler) Submit(c *fiber.Ctx) error {
	raw := c.FormValue("ticker")
	run, err := h.Service.Analyze(c.UserContext(), raw)
	if err != nil {
		if isTickerError(err) {
			return h.renderForm(c, fiber.StatusUnprocessableEntity, strings.TrimSpace(raw), capitalize(err.Error()))
		}
		return renderError(c, fiber.StatusInternalServerError, analysisFailedMessage)
	}
	return renderRun(c, run)
}

// ShowRun re-renders a stored run.
// GET /runs/:id
func (h *AnalysisHandler) ShowRun(c *fiber.Ctx) error {
	run, status, msg := h.lookupRun(c.UserContext(), c.Params("id"))
	if run == nil {
		return renderError(c, status, msg)
	}
	return renderRun(c, run)
}

// AnalyzeJSON runs the pipeline and returns the run as JSON.
// POST /api/v1/analyze
func (h *AnalysisHandler) AnalyzeJSON(c *fiber.Ctx) error {
	var req struct {
		Ticker string `json:"ticker" form:"ticker"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	run, err := h.Service.Analyze(c.UserContext(), req.Ticker)
	if err != nil {
		if isTickerError(err) {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": analysisFailedMessage})
	}
	return c.JSON(run)
}

// GetRun returns a stored run with its results.
// GET /api/v1/runs/:id
func (h *AnalysisHandler) GetRun(c *fiber.Ctx) error {
	run, status, msg := h.lookupRun(c.UserContext(), c.Params("id"))
	if run == nil {
		return c.Status(status).JSON(fiber.Map{"error": msg})
	}
	return c.JSON(run)
}

// ListRuns returns recent runs, optionally filtered by ticker.
// GET /api/v1/runs?ticker=AAPL&limit=20
func (h *AnalysisHandler) ListRuns(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	var (
		runs []models.Run
		err  error
	)
	if ticker := c.Query("ticker"); ticker != "" {
		normalized, terr := services.NormalizeTicker(ticker)
		if terr != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": terr.Error()})
		}
		runs, err = h.Runs.ListRunsForTicker(c.UserContext(), normalized, limit)
	} else {
		runs, err = h.Runs.ListRecentRuns(c.UserContext(), limit)
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch runs"})
	}
	return c.JSON(runs)
}

func (h *AnalysisHandler) lookupRun(ctx context.Context, rawID string) (*models.Run, int, string) {
	id, err := uuid.Parse(strings.TrimSpace(rawID))
	if err != nil {
		return nil, fiber.StatusNotFound, "run not found"
	}
	run, err := h.Runs.GetRun(ctx, id)
	if err != nil {
		if errors.Is(err, services.ErrRunNotFound) {
			return nil, fiber.StatusNotFound, "run not found"
		}
		return nil, fiber.StatusInternalServerError, "failed to load run"
	}
	return run, fiber.StatusOK, ""
}

func (h *AnalysisHandler) renderForm(c *fiber.Ctx, status int, ticker, errMsg string) error {
	return c.Status(status).Render("index", fiber.Map{
		"Title":       "Analyse a ticker",
		"Ticker":      ticker,
		"Error":       errMsg,
		"Recent":      h.recent(c.UserContext()),
		"PromptCount": len(h.Service.Prompts.Definitions()),
	}, views.Layout)
}

// recent prefers the Redis feed and falls back to the run table.
func (h *AnalysisHandler) recent(ctx context.Context) []services.RunDigest {
	if h.Feed.Enabled() {
		digests, err := h.Feed.Recent(ctx)
		if err == nil {
			return digests
		}
		logger.Warn("Recent runs feed unavailable, falling back to database: %v", err)
	}
	runs, err := h.Runs.ListRecentRuns(ctx, h.RecentLimit)
	if err != nil {
		return nil
	}
	digests := make([]services.RunDigest, 0, len(runs))
	for i := range runs {
		digests = append(digests, services.DigestOf(&runs[i]))
	}
	return digests
}

func renderRun(c *fiber.Ctx, run *models.Run) error {
	return c.Status(fiber.StatusOK).Render("results", fiber.Map{
		"Title": run.Ticker,
		"Run":   run,
	}, views.Layout)
}

func renderError(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).Render("error", fiber.Map{
		"Title":   "Error",
		"Message": msg,
	}, views.Layout)
}

func isTickerError(err error) bool {
	return errors.Is(err, services.ErrEmptyTicker) || errors.Is(err, services.ErrInvalidTicker)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
