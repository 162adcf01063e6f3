/**
 * @description
 * Response parser for model output.
 * Turns raw completion text into a validated Result, falling back to best-effort extraction
 * and permissive defaults when the model output is malformed. Parse never fails.
 */

package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Flags recorded on a Result. Flags marked degraded make the result a degraded-quality result.
const (
	FlagUnparseable      = "unparseable_response" // degraded
	FlagScoreMissing     = "score_missing"        // degraded
	FlagSchemaViolation  = "schema_violation"     // degraded
	FlagModelCallFailed  = "model_call_failed"    // degraded
	FlagScoreClamped     = "score_clamped"
	FlagRatingDerived    = "rating_derived"
	FlagRatingOverridden = "rating_overridden"
	FlagPriceMissing     = "target_price_missing"
)

// DegradedMarker prefixes the rationale of degraded results.
const DegradedMarker = "⚠ "

const maxRationaleRunes = 4000

// ErrNoJSONObject is returned by decodeObject when the text holds no JSON object.
var ErrNoJSONObject = errors.New("no JSON object in model output")

// Result is the validated outcome of one prompt invocation.
type Result struct {
	Score          int
	Rating         Rating
	TargetBuyPrice float64
	Rationale      string
	Degraded       bool
	Flags          []string
	// Violations lists schema check failures, if any.
	Violations []Violation
}

// HasFlag reports whether the result carries the given flag.
func (r Result) HasFlag(flag string) bool {
	for _, f := range r.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

var (
	scoreLabelRe = regexp.MustCompile(`(?i)\bscore\b[^0-9\n]{0,12}(\d{1,3}(?:\.\d+)?)`)
	scoreRatioRe = regexp.MustCompile(`\b(\d{1,3})\s*/\s*100\b`)
	ratingRe     = regexp.MustCompile(`(?i)\b(strong[ _]buy|strong[ _]sell|buy|hold|sell)\b`)
	priceLabelRe = regexp.MustCompile(`(?i)\b(?:target|price)\b[^0-9$\n]{0,30}\$?\s*(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?)`)
	priceSignRe  = regexp.MustCompile(`\$\s*(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?)`)
)

// Parse extracts score, rating, target buy price and rationale from raw model output.
// Structured JSON is tried first; on failure the raw text is scanned. Missing or invalid
// values fall back to defaults and are flagged rather than rejected.
func Parse(raw string, schema *Schema) Result {
	var (
		res    Result
		fields map[string]any
	)

	obj, err := decodeObject(raw)
	if err != nil {
		res.flag(FlagUnparseable, true)
		fields = scanFields(raw)
	} else {
		fields = obj
	}

	// Score
	score, ok := numberField(fields, "score")
	if !ok {
		res.flag(FlagScoreMissing, true)
		res.Score = DefaultScore
	} else {
		// Clamp before converting so huge or infinite scores cannot overflow int.
		rounded := math.Round(score)
		clamped := ClampScore(rounded)
		res.Score = int(clamped)
		if clamped != rounded {
			res.flag(FlagScoreClamped, false)
		}
	}

	// Rating: the score-derived rating takes precedence over the model's own.
	derived := DeriveRating(float64(res.Score))
	stated, ok := ParseRating(stringField(fields, "rating", "recommendation"))
	switch {
	case !ok:
		res.flag(FlagRatingDerived, false)
	case stated != derived:
		res.flag(FlagRatingOverridden, false)
	}
	res.Rating = derived

	// Target buy price
	if price, ok := numberField(fields, "target_buy_price", "target_price", "targetBuyPrice"); ok && price > 0 && !math.IsInf(price, 0) {
		res.TargetBuyPrice = price
	} else {
		res.flag(FlagPriceMissing, false)
		res.TargetBuyPrice = 0
	}

	if obj != nil {
		res.Rationale = strings.TrimSpace(stringField(fields, "rationale", "reasoning", "explanation"))
	} else {
		res.Rationale = truncateRunes(strings.TrimSpace(raw), maxRationaleRunes)
	}

	if violations := schema.Validate(fields); len(violations) > 0 {
		res.Violations = violations
		res.flag(FlagSchemaViolation, true)
	}

	if res.Degraded {
		res.Rationale = degradedRationale(res)
	}
	return res
}

// ModelFailure builds the degraded result used when the model call itself failed.
func ModelFailure(err error) Result {
	res := Result{
		Score:          DefaultScore,
		Rating:         DeriveRating(DefaultScore),
		TargetBuyPrice: 0,
		Rationale:      fmt.Sprintf("model call failed: %v", err),
	}
	res.flag(FlagModelCallFailed, true)
	res.flag(FlagScoreMissing, true)
	res.flag(FlagPriceMissing, false)
	res.Rationale = degradedRationale(res)
	return res
}

func (r *Result) flag(name string, degrades bool) {
	if !r.HasFlag(name) {
		r.Flags = append(r.Flags, name)
	}
	if degrades {
		r.Degraded = true
	}
}

func degradedRationale(r Result) string {
	var reasons []string
	for _, f := range r.Flags {
		switch f {
		case FlagUnparseable, FlagScoreMissing, FlagSchemaViolation, FlagModelCallFailed:
			reasons = append(reasons, strings.ReplaceAll(f, "_", " "))
		}
	}
	for _, v := range r.Violations {
		reasons = append(reasons, v.String())
	}
	msg := DegradedMarker + "degraded result (" + strings.Join(reasons, "; ") + ")"
	if r.Rationale != "" {
		msg += ": " + r.Rationale
	}
	return msg
}

// decodeObject pulls the first top-level JSON object out of the text and decodes it.
func decodeObject(raw string) (map[string]any, error) {
	cleaned := extractJSONObject(cleanJSONFence(raw))
	if !strings.HasPrefix(cleaned, "{") {
		return nil, ErrNoJSONObject
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(cleaned), &obj); err != nil {
		return nil, fmt.Errorf("decode model output: %w", err)
	}
	return obj, nil
}

// scanFields performs best-effort extraction from prose.
func scanFields(raw string) map[string]any {
	fields := map[string]any{}
	if m := scoreLabelRe.FindStringSubmatch(raw); m != nil {
		if n, err := strconv.ParseFloat(m[1], 64); err == nil {
			fields["score"] = n
		}
	} else if m := scoreRatioRe.FindStringSubmatch(raw); m != nil {
		if n, err := strconv.ParseFloat(m[1], 64); err == nil {
			fields["score"] = n
		}
	}
	if m := ratingRe.FindStringSubmatch(raw); m != nil {
		fields["rating"] = m[1]
	}
	for _, re := range []*regexp.Regexp{priceLabelRe, priceSignRe} {
		if m := re.FindStringSubmatch(raw); m != nil {
			if n, ok := parseMoney(m[1]); ok {
				fields["target_buy_price"] = n
				break
			}
		}
	}
	return fields
}

func numberField(fields map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		v, ok := fields[k]
		if !ok || v == nil {
			continue
		}
		switch n := v.(type) {
		case string:
			if f, ok := parseMoney(n); ok {
				return f, true
			}
		default:
			if f, ok := toFloat(n); ok && !math.IsNaN(f) {
				return f, true
			}
		}
	}
	return 0, false
}

func stringField(fields map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := fields[k].(string); ok {
			return s
		}
	}
	return ""
}

func parseMoney(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

func cleanJSONFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// extractJSONObject tries to pull the first top-level JSON object from a string.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return s
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return strings.TrimSpace(s[start : i+1])
			}
		}
	}
	return s[start:]
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
