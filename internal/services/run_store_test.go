package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/stockscope/backend/internal/analysis"
	"github.com/stockscope/backend/internal/config"
	"github.com/stockscope/backend/internal/db"
	"github.com/stockscope/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	cfg := &config.Config{
		Server: config.ServerConfig{Env: "test"},
		DB:     config.DBConfig{URL: filepath.Join(t.TempDir(), "results.db")},
	}
	gdb, err := db.Connect(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(gdb) })
	return gdb
}

func sampleRun(ticker string, started time.Time) *models.Run {
	id := uuid.New()
	return &models.Run{
		RunID:              id,
		Ticker:             ticker,
		ContextJSON:        `{"ticker":"` + ticker + `"}`,
		StartedAt:          started,
		EndedAt:            started.Add(1500 * time.Millisecond),
		AverageScore:       62.5,
		OverallRating:      analysis.RatingHold,
		OverallTargetPrice: 187.125,
		PromptCount:        2,
		DegradedCount:      1,
		Results: []models.PromptResult{
			{
				RunID: id, PromptID: "valuation", PromptVersion: 2, Position: 0, PromptName: "Valuation",
				Score: 81, Rating: analysis.RatingBuy, TargetBuyPrice: 187.125, Rationale: "cheap vs peers",
				RawResponse: `{"score":81}`, Flags: models.StringArray{analysis.FlagRatingOverridden},
				CreatedAt: started.Add(time.Second),
			},
			{
				RunID: id, PromptID: "momentum", PromptVersion: 1, Position: 1, PromptName: "Momentum",
				Score: 44, Rating: analysis.RatingHold, TargetBuyPrice: 0, Rationale: "⚠ degraded result (unparseable response)",
				RawResponse: "no idea", Degraded: true,
				Flags:     models.StringArray{analysis.FlagUnparseable, analysis.FlagPriceMissing},
				CreatedAt: started.Add(1200 * time.Millisecond),
			},
		},
	}
}

func TestRunStoreRoundTrip(t *testing.T) {
	store := NewRunStore(openTestDB(t))
	ctx := context.Background()
	started := time.Date(2026, 3, 14, 15, 9, 26, 535897000, time.UTC)

	run := sampleRun("AAPL", started)
	require.NoError(t, store.SaveRun(ctx, run))

	got, err := store.GetRun(ctx, run.RunID)
	require.NoError(t, err)

	if diff := cmp.Diff(run, got, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestRunStoreGetRunNotFound(t *testing.T) {
	store := NewRunStore(openTestDB(t))

	_, err := store.GetRun(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestRunStoreSaveIsAtomic(t *testing.T) {
	store := NewRunStore(openTestDB(t))
	ctx := context.Background()

	run := sampleRun("MSFT", time.Now().UTC())
	// Same (run_id, prompt_id, prompt_version) twice violates the primary key.
	run.Results[1].PromptID = run.Results[0].PromptID
	run.Results[1].PromptVersion = run.Results[0].PromptVersion

	err := store.SaveRun(ctx, run)
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)

	_, err = store.GetRun(ctx, run.RunID)
	assert.ErrorIs(t, err, ErrRunNotFound, "summary row must be rolled back with the results")
}

func TestRunStoreUnavailable(t *testing.T) {
	gdb := openTestDB(t)
	store := NewRunStore(gdb)
	db.Close(gdb)

	err := store.SaveRun(context.Background(), sampleRun("NVDA", time.Now().UTC()))
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "save run", perr.Op)
}

func TestRunStoreListings(t *testing.T) {
	store := NewRunStore(openTestDB(t))
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)

	older := sampleRun("AAPL", base)
	newer := sampleRun("AAPL", base.Add(time.Hour))
	other := sampleRun("TSLA", base.Add(30*time.Minute))
	for _, r := range []*models.Run{older, newer, other} {
		require.NoError(t, store.SaveRun(ctx, r))
	}

	recent, err := store.ListRecentRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, newer.RunID, recent[0].RunID)
	assert.Equal(t, other.RunID, recent[1].RunID)
	assert.Empty(t, recent[0].Results)

	history, err := store.ListRunsForTicker(ctx, "AAPL", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, newer.RunID, history[0].RunID)
	assert.Equal(t, older.RunID, history[1].RunID)
}
