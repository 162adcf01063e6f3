package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"
)

// StubModel is the model name reported by Stub.
const StubModel = "offline-stub"

// Stub is a deterministic offline ModelClient. The canned response is derived from a hash of
// the prompt so the same prompt always yields the same, syntactically valid JSON.
type Stub struct{}

func NewStub() *Stub { return &Stub{} }

func (s *Stub) Model() string { return StubModel }

func (s *Stub) Complete(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &ModelCallError{Model: StubModel, Err: err}
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.TrimSpace(prompt)))
	sum := h.Sum64()

	score := int(sum%100) + 1
	rating := "SELL"
	switch {
	case score >= 70:
		rating = "BUY"
	case score >= 40:
		rating = "HOLD"
	}
	// 10.00 .. 199.99
	cents := 1000 + int((sum>>8)%19000)

	body, err := json.Marshal(map[string]any{
		"score":            score,
		"rating":           rating,
		"target_buy_price": float64(cents) / 100,
		"rationale": fmt.Sprintf(
			"Offline placeholder response (no OPENAI_API_KEY configured). Deterministic score %d for this prompt.", score),
	})
	if err != nil {
		return "", &ModelCallError{Model: StubModel, Err: err}
	}
	return string(body), nil
}
