/**
 * @description
 * Recent-runs feed backed by Redis.
 * Completed runs are pushed onto a capped list (shown on the landing page) and published
 * on a channel for any listener. A nil feed or client turns every call into a no-op.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9
 */

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stockscope/backend/internal/analysis"
	"github.com/stockscope/backend/internal/logger"
	"github.com/stockscope/backend/internal/models"
)

const (
	RecentRunsKey       = "stockscope:runs:recent"
	RunCompletedChannel = "stockscope:runs:completed"
)

// RunDigest is the compact form of a run kept in the feed.
type RunDigest struct {
	RunID              string          `json:"run_id"`
	Ticker             string          `json:"ticker"`
	AverageScore       float64         `json:"average_score"`
	OverallRating      analysis.Rating `json:"overall_rating"`
	OverallTargetPrice float64         `json:"overall_target_price"`
	PromptCount        int             `json:"prompt_count"`
	DegradedCount      int             `json:"degraded_count"`
	EndedAt            time.Time       `json:"ended_at"`
}

func DigestOf(run *models.Run) RunDigest {
	return RunDigest{
		RunID:              run.RunID.String(),
		Ticker:             run.Ticker,
		AverageScore:       run.AverageScore,
		OverallRating:      run.OverallRating,
		OverallTargetPrice: run.OverallTargetPrice,
		PromptCount:        run.PromptCount,
		DegradedCount:      run.DegradedCount,
		EndedAt:            run.EndedAt,
	}
}

type RunFeed struct {
	Redis *redis.Client
	Max   int
}

func NewRunFeed(rdb *redis.Client, max int) *RunFeed {
	if max <= 0 {
		max = 10
	}
	return &RunFeed{Redis: rdb, Max: max}
}

// Enabled reports whether the feed has a Redis backend.
func (f *RunFeed) Enabled() bool {
	return f != nil && f.Redis != nil
}

// Publish records a completed run.
func (f *RunFeed) Publish(ctx context.Context, run *models.Run) error {
	if !f.Enabled() {
		return nil
	}
	payload, err := json.Marshal(DigestOf(run))
	if err != nil {
		return err
	}

	pipe := f.Redis.TxPipeline()
	pipe.LPush(ctx, RecentRunsKey, payload)
	pipe.LTrim(ctx, RecentRunsKey, 0, int64(f.Max-1))
	pipe.Publish(ctx, RunCompletedChannel, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish run %s: %w", run.RunID, err)
	}
	return nil
}

// Recent returns the newest digests first.
func (f *RunFeed) Recent(ctx context.Context) ([]RunDigest, error) {
	if !f.Enabled() {
		return nil, nil
	}
	items, err := f.Redis.LRange(ctx, RecentRunsKey, 0, int64(f.Max-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read recent runs: %w", err)
	}
	digests := make([]RunDigest, 0, len(items))
	for _, item := range items {
		var d RunDigest
		if err := json.Unmarshal([]byte(item), &d); err != nil {
			continue
		}
		digests = append(digests, d)
	}
	return digests, nil
}

// ErrFeedDisabled is returned by Listen when no Redis backend is configured.
var ErrFeedDisabled = errors.New("run feed is not configured")

// Listen calls fn for every run completed after the subscription is confirmed, until ctx
// is cancelled. ready, when non-nil, is closed once the subscription is live.
func (f *RunFeed) Listen(ctx context.Context, ready chan<- struct{}, fn func(RunDigest)) error {
	if !f.Enabled() {
		return ErrFeedDisabled
	}
	sub := f.Redis.Subscribe(ctx, RunCompletedChannel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", RunCompletedChannel, err)
	}
	if ready != nil {
		close(ready)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var d RunDigest
			if err := json.Unmarshal([]byte(msg.Payload), &d); err != nil {
				logger.Warn("Dropping malformed run digest: %v", err)
				continue
			}
			fn(d)
		}
	}
}
