package analysis

import (
	"math"
	"strings"
)

// Rating is the recommendation attached to a prompt result or a whole run.
type Rating string

const (
	RatingBuy  Rating = "BUY"
	RatingHold Rating = "HOLD"
	RatingSell Rating = "SELL"
)

// Score thresholds shared by per-prompt normalization and run aggregation.
const (
	BuyThreshold  = 70
	HoldThreshold = 40

	MinScore     = 1
	MaxScore     = 100
	DefaultScore = 50
)

// DeriveRating maps a score onto the threshold table:
// [70,100] BUY, [40,70) HOLD, below 40 SELL.
func DeriveRating(score float64) Rating {
	switch {
	case score >= BuyThreshold:
		return RatingBuy
	case score >= HoldThreshold:
		return RatingHold
	default:
		return RatingSell
	}
}

// ParseRating matches a rating keyword case-insensitively.
func ParseRating(s string) (Rating, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY", "STRONG BUY", "STRONG_BUY":
		return RatingBuy, true
	case "HOLD", "NEUTRAL":
		return RatingHold, true
	case "SELL", "STRONG SELL", "STRONG_SELL":
		return RatingSell, true
	}
	return "", false
}

func (r Rating) String() string { return string(r) }

// Valid reports whether r is one of BUY, HOLD or SELL.
func (r Rating) Valid() bool {
	return r == RatingBuy || r == RatingHold || r == RatingSell
}

// ClampScore bounds score to [1,100]. It works on floats so that out-of-range values
// (including ±Inf) are bounded before any integer conversion.
func ClampScore(score float64) float64 {
	return math.Max(MinScore, math.Min(MaxScore, score))
}
