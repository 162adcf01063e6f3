package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stockscope/backend/internal/analysis"
	"github.com/stockscope/backend/internal/config"
	"github.com/stockscope/backend/internal/integrations/openai"
	"github.com/stockscope/backend/internal/models"
	"github.com/stockscope/backend/internal/prompts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type staticDefs []prompts.Definition

func (s staticDefs) Definitions() []prompts.Definition { return s }

// scriptedModel answers by the first word of the rendered prompt.
type scriptedModel struct {
	mu      sync.Mutex
	replies map[string]string
	fail    map[string]error
	block   map[string]bool
	seen    []string
}

func (m *scriptedModel) Model() string { return "scripted" }

func (m *scriptedModel) Complete(ctx context.Context, prompt string) (string, error) {
	key := strings.Fields(prompt)[0]
	m.mu.Lock()
	m.seen = append(m.seen, prompt)
	m.mu.Unlock()

	if m.block[key] {
		<-ctx.Done()
		return "", &openai.ModelCallError{Model: "scripted", Err: ctx.Err()}
	}
	if err := m.fail[key]; err != nil {
		return "", err
	}
	return m.replies[key], nil
}

type recordingSaver struct {
	err   error
	saved *models.Run
}

func (r *recordingSaver) SaveRun(ctx context.Context, run *models.Run) error {
	if r.err != nil {
		return r.err
	}
	r.saved = run
	return nil
}

func newTestService(defs []prompts.Definition, model openai.ModelClient, saver RunSaver) *AnalysisService {
	cfg := &config.Config{
		Model:    config.ModelConfig{Timeout: 200 * time.Millisecond},
		Analysis: config.AnalysisConfig{Concurrency: 3},
	}
	return NewAnalysisService(cfg, staticDefs(defs), model, saver, nil)
}

func TestAnalyzeAggregatesAndPersists(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	defs := []prompts.Definition{
		{ID: "value", Name: "Value", Version: 1, Template: "value {{ context }}"},
		{ID: "growth", Name: "Growth", Version: 2, Template: "growth {{ticker}} on {{ date }}"},
		{ID: "prose", Name: "Prose", Version: 1, Template: "prose {{ missing }}"},
		{ID: "broken", Name: "Broken", Version: 1, Template: "broken {{ context }}"},
		{ID: "slow", Name: "Slow", Version: 1, Template: "slow {{ context }}"},
	}
	model := &scriptedModel{
		replies: map[string]string{
			"value":  `{"score":80,"rating":"BUY","target_buy_price":100,"rationale":"cheap"}`,
			"growth": "```json\n{\"score\":95,\"rating\":\"SELL\",\"target_buy_price\":\"$140\",\"rationale\":\"fast\"}\n```",
			"prose":  "I cannot say much about this one.",
		},
		fail:  map[string]error{"broken": &openai.ModelCallError{Model: "scripted", StatusCode: 500, Err: errors.New("upstream exploded")}},
		block: map[string]bool{"slow": true},
	}
	saver := &recordingSaver{}
	svc := newTestService(defs, model, saver)

	run, err := svc.Analyze(context.Background(), "  aapl ")
	require.NoError(t, err)
	require.NotNil(t, saver.saved)
	assert.Same(t, run, saver.saved)

	assert.Equal(t, "AAPL", run.Ticker)
	assert.JSONEq(t, `{"ticker":"AAPL"}`, run.ContextJSON)
	assert.Equal(t, 5, run.PromptCount)
	assert.Equal(t, 3, run.DegradedCount)
	// (80 + 95 + 50 + 50 + 50) / 5
	assert.Equal(t, 65.0, run.AverageScore)
	assert.Equal(t, analysis.RatingHold, run.OverallRating)
	assert.Equal(t, 120.0, run.OverallTargetPrice)
	assert.False(t, run.EndedAt.Before(run.StartedAt))

	require.Len(t, run.Results, 5)
	for i, r := range run.Results {
		assert.Equal(t, defs[i].ID, r.PromptID, "results keep definition order")
		assert.Equal(t, i, r.Position)
		assert.Equal(t, run.RunID, r.RunID)
		assert.NotEmpty(t, r.Rationale)
	}

	growth := run.Results[1]
	assert.Equal(t, analysis.RatingBuy, growth.Rating)
	assert.Contains(t, growth.Flags, analysis.FlagRatingOverridden)
	assert.Equal(t, 2, growth.PromptVersion)
	assert.Equal(t, "Growth", growth.PromptName)

	assert.True(t, run.Results[2].Degraded)
	assert.Equal(t, "I cannot say much about this one.", run.Results[2].RawResponse)
	assert.Contains(t, run.Results[3].Flags, analysis.FlagModelCallFailed)
	assert.Contains(t, run.Results[3].Rationale, "upstream exploded")
	assert.Contains(t, run.Results[4].Rationale, "deadline exceeded")

	assert.Contains(t, model.seen, "value AAPL")
	assert.Contains(t, model.seen, "prose ")
	assert.Contains(t, model.seen, "growth AAPL on "+run.StartedAt.Format("2006-01-02"))
}

func TestAnalyzeNoDefinitions(t *testing.T) {
	saver := &recordingSaver{}
	run, err := newTestService(nil, &scriptedModel{}, saver).Analyze(context.Background(), "MSFT")
	require.NoError(t, err)

	assert.Equal(t, 0.0, run.AverageScore)
	assert.Equal(t, analysis.RatingHold, run.OverallRating)
	assert.Equal(t, 0.0, run.OverallTargetPrice)
	assert.Empty(t, run.Results)
	assert.NotNil(t, saver.saved)
}

func TestAnalyzePersistenceFailureIsFatal(t *testing.T) {
	defs := []prompts.Definition{{ID: "value", Name: "Value", Version: 1, Template: "value {{ context }}"}}
	model := &scriptedModel{replies: map[string]string{"value": `{"score":70}`}}
	saver := &recordingSaver{err: &PersistenceError{Op: "save run", Err: errors.New("disk full")}}

	run, err := newTestService(defs, model, saver).Analyze(context.Background(), "TSLA")
	assert.Nil(t, run)
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
}

func TestAnalyzeRejectsBadTicker(t *testing.T) {
	svc := newTestService(nil, &scriptedModel{}, &recordingSaver{})

	_, err := svc.Analyze(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyTicker)

	_, err = svc.Analyze(context.Background(), "DROP TABLE runs;")
	assert.ErrorIs(t, err, ErrInvalidTicker)
}

func TestAnalyzeWithStubModel(t *testing.T) {
	defs := []prompts.Definition{
		{ID: "a", Name: "A", Version: 1, Template: "Analyse {{ context }} fundamentals"},
		{ID: "b", Name: "B", Version: 1, Template: "Analyse {{ context }} momentum"},
	}
	saver := &recordingSaver{}
	run, err := newTestService(defs, openai.NewStub(), saver).Analyze(context.Background(), "brk.b")
	require.NoError(t, err)

	assert.Equal(t, "BRK.B", run.Ticker)
	assert.Zero(t, run.DegradedCount)
	assert.Greater(t, run.OverallTargetPrice, 0.0)
	assert.Equal(t, analysis.DeriveRating(run.AverageScore), run.OverallRating)
}

func TestNormalizeTicker(t *testing.T) {
	tests := map[string]string{"aapl": "AAPL", " brk.b ": "BRK.B", "rds-a": "RDS-A"}
	for in, want := range tests {
		got, err := NormalizeTicker(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := NormalizeTicker("WAYTOOLONGTICKER")
	assert.ErrorIs(t, err, ErrInvalidTicker)
}

// countingModel records peak concurrency and whether any call saw a cancelled context.
type countingModel struct {
	mu        sync.Mutex
	inFlight  int
	peak      int
	cancelled int
}

func (m *countingModel) Model() string { return "counting" }

func (m *countingModel) Complete(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.inFlight++
	if m.inFlight > m.peak {
		m.peak = m.inFlight
	}
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if strings.HasPrefix(prompt, "fail") {
		return "", &openai.ModelCallError{Model: "counting", StatusCode: 502, Err: errors.New("bad gateway")}
	}
	time.Sleep(20 * time.Millisecond)
	if ctx.Err() != nil {
		m.mu.Lock()
		m.cancelled++
		m.mu.Unlock()
	}
	return `{"score":72,"rating":"BUY","target_buy_price":30,"rationale":"steady"}`, nil
}

func TestAnalyzeFailedPromptDoesNotCancelOthers(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	defs := []prompts.Definition{
		{ID: "fail", Name: "Fail", Version: 1, Template: "fail {{ context }}"},
	}
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		defs = append(defs, prompts.Definition{ID: id, Name: id, Version: 1, Template: id + " {{ context }}"})
	}
	model := &countingModel{}
	saver := &recordingSaver{}
	svc := newTestService(defs, model, saver)
	svc.Concurrency = 2

	run, err := svc.Analyze(context.Background(), "KO")
	require.NoError(t, err)

	assert.Equal(t, 6, run.PromptCount)
	assert.Equal(t, 1, run.DegradedCount)
	assert.True(t, run.Results[0].Degraded)
	for _, r := range run.Results[1:] {
		assert.False(t, r.Degraded, r.PromptID)
		assert.Equal(t, 72, r.Score, r.PromptID)
	}
	assert.Zero(t, model.cancelled, "a failed prompt must not cancel its siblings")
	assert.LessOrEqual(t, model.peak, 2)
}
