// Package judge defines the contract for verifying abstractive claims
// against cited code. The judge call is the only point in the pipeline
// that may cross a network boundary; callers invoke it with an explicit
// timeout and treat unavailability as inconclusive, never as failure.
package judge

import (
	"context"
	"strings"
)

// Judgment is the judge's verdict on a single claim.
type Judgment struct {
	Supports   bool
	Confidence string // high|medium|low
	Reasoning  string
}

// Judge decides whether cited code supports a claim.
type Judge interface {
	Judge(ctx context.Context, claim, citedCode string) (Judgment, error)
}

// Stub is a deterministic Judge for tests and offline runs. It supports a
// claim when more than half of the claim's words of four or more
// characters appear in the cited code.
type Stub struct{}

func (Stub) Judge(_ context.Context, claim, citedCode string) (Judgment, error) {
	code := strings.ToLower(citedCode)
	total, found := 0, 0
	for _, w := range strings.Fields(strings.ToLower(claim)) {
		w = strings.Trim(w, ".,;:!?`\"'()[]")
		if len(w) < 4 {
			continue
		}
		total++
		if strings.Contains(code, w) {
			found++
		}
	}
	if total == 0 {
		return Judgment{Supports: false, Confidence: "low", Reasoning: "claim has no checkable terms"}, nil
	}
	if found*2 > total {
		return Judgment{Supports: true, Confidence: "medium", Reasoning: "majority of claim terms present in cited code"}, nil
	}
	return Judgment{Supports: false, Confidence: "medium", Reasoning: "claim terms largely absent from cited code"}, nil
}
