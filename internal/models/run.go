/**
 * @description
 * Analysis run database models.
 * Maps to the 'runs' and 'prompt_results' tables.
 *
 * @dependencies
 * - gorm.io/gorm
 * - github.com/google/uuid
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/stockscope/backend/internal/analysis"
	"gorm.io/gorm"
)

// Run is the summary of one end-to-end analysis of a ticker.
// A Run owns its PromptResults through RunID.
type Run struct {
	RunID              uuid.UUID       `gorm:"column:run_id;primaryKey;type:varchar(36)" json:"run_id"`
	Ticker             string          `gorm:"column:ticker;not null;index:idx_runs_ticker_started" json:"ticker"`
	ContextJSON        string          `gorm:"column:context_json;type:text" json:"context_json,omitempty"`
	StartedAt          time.Time       `gorm:"column:started_at;index:idx_runs_ticker_started" json:"started_at"`
	EndedAt            time.Time       `gorm:"column:ended_at" json:"ended_at"`
	AverageScore       float64         `gorm:"column:average_score" json:"average_score"`
	OverallRating      analysis.Rating `gorm:"column:overall_rating;type:varchar(8)" json:"overall_rating"`
	OverallTargetPrice float64         `gorm:"column:overall_target_price" json:"overall_target_price"`
	PromptCount        int             `gorm:"column:prompt_count" json:"prompt_count"`
	DegradedCount      int             `gorm:"column:degraded_count" json:"degraded_count"`

	Results []PromptResult `gorm:"foreignKey:RunID;references:RunID;constraint:OnDelete:CASCADE" json:"results,omitempty"`
}

// TableName overrides the table name used by Run to `runs`
func (Run) TableName() string {
	return "runs"
}

// BeforeCreate ensures a run id is present
func (r *Run) BeforeCreate(tx *gorm.DB) (err error) {
	if r.RunID == uuid.Nil {
		r.RunID = uuid.New()
	}
	return
}

// Duration is the wall-clock time the run took.
func (r Run) Duration() time.Duration {
	if r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// PromptResult is the parsed outcome of one prompt within a run.
// Keyed by (run_id, prompt_id, prompt_version).
type PromptResult struct {
	RunID          uuid.UUID       `gorm:"column:run_id;primaryKey;type:varchar(36)" json:"run_id"`
	PromptID       string          `gorm:"column:prompt_id;primaryKey" json:"prompt_id"`
	PromptVersion  int             `gorm:"column:prompt_version;primaryKey;autoIncrement:false" json:"prompt_version"`
	Position       int             `gorm:"column:position" json:"position"`
	PromptName     string          `gorm:"column:prompt_name" json:"prompt_name"`
	Score          int             `gorm:"column:score" json:"score"`
	Rating         analysis.Rating `gorm:"column:rating;type:varchar(8)" json:"rating"`
	TargetBuyPrice float64         `gorm:"column:target_buy_price" json:"target_buy_price"`
	Rationale      string          `gorm:"column:rationale;type:text" json:"rationale"`
	RawResponse    string          `gorm:"column:raw_response;type:text" json:"raw_response"`
	Degraded       bool            `gorm:"column:degraded;default:false" json:"degraded"`
	Flags          StringArray     `gorm:"column:flags;type:text" json:"flags"`
	CreatedAt      time.Time       `gorm:"column:created_at" json:"created_at"`
}

// TableName overrides the table name used by PromptResult to `prompt_results`
func (PromptResult) TableName() string {
	return "prompt_results"
}

// NewPromptResult copies a parsed result into its persisted form.
func NewPromptResult(runID uuid.UUID, position int, promptID, promptName string, version int, raw string, res analysis.Result) PromptResult {
	return PromptResult{
		RunID:          runID,
		PromptID:       promptID,
		PromptVersion:  version,
		Position:       position,
		PromptName:     promptName,
		Score:          res.Score,
		Rating:         res.Rating,
		TargetBuyPrice: res.TargetBuyPrice,
		Rationale:      res.Rationale,
		RawResponse:    raw,
		Degraded:       res.Degraded,
		Flags:          StringArray(res.Flags),
	}
}
