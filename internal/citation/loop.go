package citation

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"scribe/internal/store"
)

// Drafter produces a report draft. Implementations range from LLM
// callers to scripted fakes in tests.
type Drafter interface {
	Draft(ctx context.Context, req DraftRequest) (string, error)
}

// DraftRequest carries everything a drafter needs for one iteration.
// Evidence holds the resolved content of citations that validated on
// the previous pass; Feedback lists the ones that did not.
type DraftRequest struct {
	Prompt    string
	Evidence  []string
	Feedback  string
	Iteration int
}

// LoopResult is the outcome of a bounded revise loop.
type LoopResult struct {
	RunID      string
	Report     string
	Iterations int
	Clean      bool // every citation structurally valid
	Results    []Verification
}

const defaultMaxIterations = 3

// Loop drives draft-verify-revise cycles until the report's citations
// all validate or the iteration bound is reached. Every draft is
// persisted as a report version. When the gate is met, the gate-meeting
// draft is returned; when the bound runs out, the best draft seen is,
// never a later regression.
type Loop struct {
	store    store.Store
	verifier *Verifier
	drafter  Drafter
	maxIter  int
	logger   *zap.Logger
}

func NewLoop(st store.Store, v *Verifier, d Drafter, logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{store: st, verifier: v, drafter: d, maxIter: defaultMaxIterations, logger: logger}
}

// SetMaxIterations overrides the default bound. Values below 1 are ignored.
func (l *Loop) SetMaxIterations(n int) {
	if n >= 1 {
		l.maxIter = n
	}
}

func (l *Loop) Run(ctx context.Context, prompt string) (*LoopResult, error) {
	runID := uuid.NewString()

	var (
		best        string
		bestResults []Verification
		bestValid   = -1
		evidence    []string
		feedback    string
	)

	for iter := 1; iter <= l.maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		draft, err := l.drafter.Draft(ctx, DraftRequest{
			Prompt:    prompt,
			Evidence:  evidence,
			Feedback:  feedback,
			Iteration: iter,
		})
		if err != nil {
			return nil, fmt.Errorf("draft iteration %d: %w", iter, err)
		}

		results, err := l.verifier.VerifyReport(ctx, draft)
		if err != nil {
			return nil, fmt.Errorf("verify iteration %d: %w", iter, err)
		}

		valid, invalid := tally(results)
		if _, err := l.store.SaveReportVersion(store.ReportVersion{
			RunID:            runID,
			Iteration:        iter,
			Content:          draft,
			ValidCitations:   valid,
			InvalidCitations: invalid,
		}); err != nil {
			return nil, fmt.Errorf("save version %d: %w", iter, err)
		}
		l.logger.Info("draft verified",
			zap.String("run_id", runID),
			zap.Int("iteration", iter),
			zap.Int("valid", valid),
			zap.Int("invalid", invalid))

		// The gate returns the draft that met it, even when an earlier
		// draft scored more valid citations: Clean promises the returned
		// report itself has none invalid.
		if invalid == 0 {
			return &LoopResult{RunID: runID, Report: draft, Iterations: iter, Clean: true, Results: results}, nil
		}

		// Strictly-better drafts replace the best; ties keep the earlier one.
		if valid > bestValid || (valid == bestValid && invalid < countInvalid(bestResults)) {
			best, bestResults, bestValid = draft, results, valid
		}
		evidence = collectEvidence(results)
		feedback = buildFeedback(results)
	}

	return &LoopResult{RunID: runID, Report: best, Iterations: l.maxIter, Clean: false, Results: bestResults}, nil
}

func tally(results []Verification) (valid, invalid int) {
	for _, r := range results {
		if r.Valid {
			valid++
		} else {
			invalid++
		}
	}
	return
}

func countInvalid(results []Verification) int {
	_, invalid := tally(results)
	return invalid
}

func collectEvidence(results []Verification) []string {
	var ev []string
	for _, r := range results {
		if r.Valid && r.Content != "" {
			ev = append(ev, fmt.Sprintf("%s\n%s", r.Citation.String(), r.Content))
		}
	}
	return ev
}

// buildFeedback turns structural failures into revision instructions.
func buildFeedback(results []Verification) string {
	var b strings.Builder
	b.WriteString("The following citations are invalid and must be fixed or removed:\n")
	for _, r := range results {
		if r.Valid {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", r.Citation.String(), r.Detail)
	}
	b.WriteString("Only cite files and line ranges that exist in the indexed codebase.")
	return b.String()
}
