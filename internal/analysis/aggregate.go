package analysis

// Aggregate is the run-level summary computed from all prompt results.
type Aggregate struct {
	AverageScore       float64
	OverallRating      Rating
	OverallTargetPrice float64
	PromptCount        int
	DegradedCount      int
}

// Summarize combines per-prompt results. The overall rating is derived from the average
// score, not voted. Results with a non-positive target price are left out of the price
// average. The computation does not depend on input order.
func Summarize(results []Result) Aggregate {
	agg := Aggregate{OverallRating: RatingHold, PromptCount: len(results)}
	if len(results) == 0 {
		return agg
	}

	var scoreSum, priceSum float64
	priced := 0
	for _, r := range results {
		scoreSum += float64(r.Score)
		if r.TargetBuyPrice > 0 {
			priceSum += r.TargetBuyPrice
			priced++
		}
		if r.Degraded {
			agg.DegradedCount++
		}
	}

	agg.AverageScore = scoreSum / float64(len(results))
	agg.OverallRating = DeriveRating(agg.AverageScore)
	if priced > 0 {
		agg.OverallTargetPrice = priceSum / float64(priced)
	}
	return agg
}
