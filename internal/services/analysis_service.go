/**
 * @description
 * Analysis Service.
 * Runs one ticker through every loaded prompt definition:
 * 1. Render each template with the run context
 * 2. Call the model (bounded parallelism, per-call timeout)
 * 3. Parse and validate each response
 * 4. Aggregate, persist atomically, publish to the recent-runs feed
 *
 * @dependencies
 * - backend/internal/prompts
 * - backend/internal/integrations/openai
 * - backend/internal/analysis
 * - golang.org/x/sync/errgroup
 *
 * @notes
 * - Prompt-level failures degrade that prompt's result; only a persistence failure fails the run.
 */

package services

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stockscope/backend/internal/analysis"
	"github.com/stockscope/backend/internal/config"
	"github.com/stockscope/backend/internal/integrations/openai"
	"github.com/stockscope/backend/internal/logger"
	"github.com/stockscope/backend/internal/models"
	"github.com/stockscope/backend/internal/prompts"
	"golang.org/x/sync/errgroup"
)

var (
	ErrEmptyTicker   = errors.New("please enter a stock ticker")
	ErrInvalidTicker = errors.New("ticker must be 1-10 letters, digits, dots or dashes")
)

var tickerRe = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-]{0,9}$`)

// RunState names the stages of a run, logged as the pipeline advances.
type RunState string

const (
	StateStarted       RunState = "STARTED"
	StatePromptsLoaded RunState = "PROMPTS_LOADED"
	StateProcessing    RunState = "PER_PROMPT_PROCESSING"
	StateAggregated    RunState = "AGGREGATED"
	StatePersisted     RunState = "PERSISTED"
	StateDone          RunState = "DONE"
)

// PromptState names the sub-stages of one prompt inside PER_PROMPT_PROCESSING.
type PromptState string

const (
	PromptRendered    PromptState = "RENDERED"
	PromptModelCalled PromptState = "MODEL_CALLED"
	PromptParsed      PromptState = "PARSED"
)

// DefinitionSource provides the current prompt definitions.
type DefinitionSource interface {
	Definitions() []prompts.Definition
}

// RunSaver persists a finished run.
type RunSaver interface {
	SaveRun(ctx context.Context, run *models.Run) error
}

type AnalysisService struct {
	Prompts     DefinitionSource
	Model       openai.ModelClient
	Runs        RunSaver
	Feed        *RunFeed
	Timeout     time.Duration
	Concurrency int

	now func() time.Time
}

func NewAnalysisService(cfg *config.Config, defs DefinitionSource, model openai.ModelClient, runs RunSaver, feed *RunFeed) *AnalysisService {
	return &AnalysisService{
		Prompts:     defs,
		Model:       model,
		Runs:        runs,
		Feed:        feed,
		Timeout:     cfg.Model.Timeout,
		Concurrency: cfg.Analysis.Concurrency,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// NormalizeTicker upper-cases and validates a ticker symbol.
func NormalizeTicker(raw string) (string, error) {
	ticker := strings.ToUpper(strings.TrimSpace(raw))
	if ticker == "" {
		return "", ErrEmptyTicker
	}
	if !tickerRe.MatchString(ticker) {
		return "", ErrInvalidTicker
	}
	return ticker, nil
}

// Analyze runs every prompt definition against the ticker and persists the run.
// The returned error is either a ticker validation error or a *PersistenceError.
func (s *AnalysisService) Analyze(ctx context.Context, rawTicker string) (*models.Run, error) {
	ticker, err := NormalizeTicker(rawTicker)
	if err != nil {
		return nil, err
	}

	run := &models.Run{
		RunID:     uuid.New(),
		Ticker:    ticker,
		StartedAt: s.clock(),
	}
	s.trace(run, StateStarted)

	defs := s.Prompts.Definitions()
	if len(defs) == 0 {
		logger.Warn("Run %s: no prompt definitions loaded", run.RunID)
	}
	s.trace(run, StatePromptsLoaded)

	vars := s.renderContext(ticker, run.StartedAt)
	run.ContextJSON = vars["context_json"]

	s.trace(run, StateProcessing)
	results := make([]models.PromptResult, len(defs))
	parsed := make([]analysis.Result, len(defs))

	concurrency := s.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	// The group only bounds concurrency. runPrompt folds every failure into a degraded
	// result, so workers never return an error and one bad prompt never cancels the rest.
	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, def := range defs {
		g.Go(func() error {
			results[i], parsed[i] = s.runPrompt(ctx, run.RunID, i, def, vars)
			return nil
		})
	}
	g.Wait()

	agg := analysis.Summarize(parsed)
	run.AverageScore = agg.AverageScore
	run.OverallRating = agg.OverallRating
	run.OverallTargetPrice = agg.OverallTargetPrice
	run.PromptCount = agg.PromptCount
	run.DegradedCount = agg.DegradedCount
	run.Results = results
	run.EndedAt = s.clock()
	s.trace(run, StateAggregated)

	if err := s.Runs.SaveRun(ctx, run); err != nil {
		logger.Error("Run %s for %s could not be persisted: %v", run.RunID, ticker, err)
		return nil, err
	}
	s.trace(run, StatePersisted)

	if err := s.Feed.Publish(ctx, run); err != nil {
		logger.Warn("Run %s: recent runs feed update failed: %v", run.RunID, err)
	}

	s.trace(run, StateDone)
	logger.Info("Run %s for %s: %d prompts (%d degraded), average %.1f, %s, target %.2f",
		run.RunID, ticker, run.PromptCount, run.DegradedCount, run.AverageScore, run.OverallRating, run.OverallTargetPrice)
	return run, nil
}

func (s *AnalysisService) runPrompt(ctx context.Context, runID uuid.UUID, position int, def prompts.Definition, vars map[string]string) (models.PromptResult, analysis.Result) {
	rendered := def.Render(vars)
	logger.Debug("Run %s prompt %s@%d %s", runID, def.ID, def.Version, PromptRendered)

	callCtx := ctx
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	raw, err := s.Model.Complete(callCtx, rendered.Text)
	logger.Debug("Run %s prompt %s@%d %s", runID, def.ID, def.Version, PromptModelCalled)

	var res analysis.Result
	if err != nil {
		logger.Warn("Run %s prompt %s@%d: model call failed: %v", runID, def.ID, def.Version, err)
		res = analysis.ModelFailure(err)
	} else {
		res = analysis.Parse(raw, def.Schema)
		if res.Degraded {
			logger.Warn("Run %s prompt %s@%d: degraded result (flags %v)", runID, def.ID, def.Version, res.Flags)
		}
	}
	logger.Debug("Run %s prompt %s@%d %s", runID, def.ID, def.Version, PromptParsed)

	row := models.NewPromptResult(runID, position, def.ID, def.Name, def.Version, raw, res)
	row.CreatedAt = s.clock()
	return row, res
}

// renderContext builds the placeholder values for a run. "context" is bound to the ticker.
func (s *AnalysisService) renderContext(ticker string, at time.Time) map[string]string {
	ctxJSON, _ := json.Marshal(map[string]string{"ticker": ticker})
	return map[string]string{
		"context":      ticker,
		"ticker":       ticker,
		"date":         at.Format("2006-01-02"),
		"context_json": string(ctxJSON),
	}
}

func (s *AnalysisService) trace(run *models.Run, state RunState) {
	logger.Debug("Run %s (%s): %s", run.RunID, run.Ticker, state)
}

func (s *AnalysisService) clock() time.Time {
	if s.now == nil {
		return time.Now().UTC()
	}
	return s.now()
}
