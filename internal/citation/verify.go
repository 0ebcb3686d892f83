package citation

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"scribe/internal/judge"
	"scribe/internal/store"
)

// Verdict is the outcome of semantic verification.
type Verdict string

const (
	VerdictSupports    Verdict = "supports"
	VerdictPartial     Verdict = "partial"
	VerdictNotSupports Verdict = "not_supports"
	VerdictUnverified  Verdict = "unverified"
)

// Verification is the full per-citation result: structural validation,
// claim classification, and (for valid citations) a semantic verdict.
type Verification struct {
	ValidationResult
	Claim   string
	Kind    ClaimKind
	Verdict Verdict
	Reason  string
}

const judgeTimeout = 30 * time.Second

// Verifier checks extracted citations against indexed content.
type Verifier struct {
	store  store.Store
	judge  judge.Judge
	logger *zap.Logger
}

func NewVerifier(st store.Store, j judge.Judge, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{store: st, judge: j, logger: logger}
}

// VerifyReport extracts every citation from text and verifies each one.
// Structural failures short-circuit: an invalid citation gets no verdict.
func (v *Verifier) VerifyReport(ctx context.Context, text string) ([]Verification, error) {
	found := Extract(text)
	out := make([]Verification, 0, len(found))
	for _, f := range found {
		ver, err := v.Verify(ctx, f)
		if err != nil {
			return nil, err
		}
		out = append(out, ver)
	}
	return out, nil
}

// Verify runs a single citation through validation, classification
// and the matching verification strategy.
func (v *Verifier) Verify(ctx context.Context, f Found) (Verification, error) {
	res, err := Validate(v.store, f.Citation)
	if err != nil {
		return Verification{}, err
	}
	ver := Verification{ValidationResult: res, Claim: f.Claim}
	if !res.Valid {
		return ver, nil
	}

	ver.Kind = Classify(f.Claim)
	switch ver.Kind {
	case Extractive:
		ver.Verdict, ver.Reason = verifyExtractive(f.Claim, res.Content)
	case Abstractive:
		ver.Verdict, ver.Reason = v.verifyAbstractive(ctx, f.Claim, res.Content)
	default:
		ver.Verdict, ver.Reason = verifyExtractive(f.Claim, res.Content)
	}
	return ver, nil
}

var (
	spanPattern  = regexp.MustCompile("`([^`]+)`|\"([^\"]+)\"")
	identPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]{2,}`)
)

// keyTerms pulls the checkable parts of a claim: backticked and quoted
// spans plus identifier-shaped tokens, common prose words removed.
func keyTerms(claim string) []string {
	seen := map[string]bool{}
	var terms []string
	add := func(t string) {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] || stopWords[strings.ToLower(t)] {
			return
		}
		seen[t] = true
		terms = append(terms, t)
	}
	for _, m := range spanPattern.FindAllStringSubmatch(claim, -1) {
		if m[1] != "" {
			add(m[1])
		} else {
			add(m[2])
		}
	}
	stripped := spanPattern.ReplaceAllString(claim, " ")
	for _, t := range identPattern.FindAllString(stripped, -1) {
		add(t)
	}
	return terms
}

var stopWords = map[string]bool{
	"the": true, "and": true, "that": true, "this": true, "with": true,
	"for": true, "from": true, "which": true, "are": true, "has": true,
	"have": true, "its": true, "was": true, "were": true, "then": true,
	"when": true, "where": true, "into": true, "also": true, "each": true,
	"function": true, "method": true, "class": true, "type": true,
	"returns": true, "takes": true, "defined": true, "declared": true,
}

// verifyExtractive checks what fraction of the claim's key terms appear
// in the cited lines.
func verifyExtractive(claim, content string) (Verdict, string) {
	terms := keyTerms(claim)
	if len(terms) == 0 {
		return VerdictUnverified, "no checkable terms in claim"
	}
	lower := strings.ToLower(content)
	found := 0
	var missing []string
	for _, t := range terms {
		if strings.Contains(lower, strings.ToLower(t)) {
			found++
		} else {
			missing = append(missing, t)
		}
	}
	frac := float64(found) / float64(len(terms))
	switch {
	case frac >= 0.8:
		return VerdictSupports, "claim terms present in cited lines"
	case frac >= 0.5:
		return VerdictPartial, "missing terms: " + strings.Join(missing, ", ")
	default:
		return VerdictNotSupports, "missing terms: " + strings.Join(missing, ", ")
	}
}

// verifyAbstractive delegates to the judge. A judge failure is never a
// verification failure: the citation stays Unverified.
func (v *Verifier) verifyAbstractive(ctx context.Context, claim, content string) (Verdict, string) {
	if v.judge == nil {
		return VerdictUnverified, "no judge configured"
	}
	jctx, cancel := context.WithTimeout(ctx, judgeTimeout)
	defer cancel()
	j, err := v.judge.Judge(jctx, claim, content)
	if err != nil {
		v.logger.Warn("judge call failed", zap.Error(err))
		return VerdictUnverified, "judge unavailable: " + err.Error()
	}
	if j.Supports {
		if j.Confidence == "low" {
			return VerdictPartial, j.Reasoning
		}
		return VerdictSupports, j.Reasoning
	}
	return VerdictNotSupports, j.Reasoning
}
