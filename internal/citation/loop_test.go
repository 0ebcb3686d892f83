package citation_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scribe/internal/citation"
	"scribe/internal/store"
)

// scriptedDrafter returns pre-baked drafts in order and records the
// requests it received.
type scriptedDrafter struct {
	drafts   []string
	requests []citation.DraftRequest
}

func (d *scriptedDrafter) Draft(_ context.Context, req citation.DraftRequest) (string, error) {
	d.requests = append(d.requests, req)
	i := len(d.requests) - 1
	if i >= len(d.drafts) {
		i = len(d.drafts) - 1
	}
	return d.drafts[i], nil
}

func newLoop(t *testing.T, s store.Store, d citation.Drafter) *citation.Loop {
	t.Helper()
	return citation.NewLoop(s, citation.NewVerifier(s, nil, nil), d, nil)
}

func TestLoop_StopsWhenAllCitationsValid(t *testing.T) {
	t.Parallel()
	s := tenLineStore(t)
	drafter := &scriptedDrafter{drafts: []string{
		"Fact one [a.py:1-2]. Fact two [a.py:3-5].",
	}}

	res, err := newLoop(t, s, drafter).Run(context.Background(), "write a report")
	require.NoError(t, err)
	assert.True(t, res.Clean)
	assert.Equal(t, 1, res.Iterations)
	assert.Len(t, drafter.requests, 1)
	assert.Empty(t, drafter.requests[0].Feedback)
}

func TestLoop_FeedbackNamesInvalidCitations(t *testing.T) {
	t.Parallel()
	s := tenLineStore(t)
	drafter := &scriptedDrafter{drafts: []string{
		"Good [a.py:1-2]. Bad [a.py:11-12]. Missing [b.py:1-2].",
		"Good [a.py:1-2].",
	}}

	res, err := newLoop(t, s, drafter).Run(context.Background(), "write a report")
	require.NoError(t, err)
	assert.True(t, res.Clean)
	assert.Equal(t, 2, res.Iterations)

	require.Len(t, drafter.requests, 2)
	feedback := drafter.requests[1].Feedback
	assert.Contains(t, feedback, "[a.py:11-12]")
	assert.Contains(t, feedback, "[b.py:1-2]")
	assert.NotContains(t, feedback, "[a.py:1-2]")
	// Valid evidence carries over to the revision.
	require.NotEmpty(t, drafter.requests[1].Evidence)
	assert.Contains(t, drafter.requests[1].Evidence[0], "line 1")
}

func TestLoop_TerminatesAtBound(t *testing.T) {
	t.Parallel()
	s := tenLineStore(t)
	drafter := &scriptedDrafter{drafts: []string{
		"Never valid [a.py:99-100].",
	}}

	res, err := newLoop(t, s, drafter).Run(context.Background(), "write a report")
	require.NoError(t, err)
	assert.False(t, res.Clean)
	assert.Equal(t, 3, res.Iterations)
	assert.Len(t, drafter.requests, 3)
}

func TestLoop_NeverRegresses(t *testing.T) {
	t.Parallel()
	s := tenLineStore(t)
	// The second draft is strictly worse; the third never arrives because
	// the bound is hit, and the first draft must win.
	drafter := &scriptedDrafter{drafts: []string{
		"Two good [a.py:1-2] [a.py:3-4], one bad [b.py:1-1].",
		"All bad [b.py:1-1] [c.py:2-2].",
		"Still bad [b.py:1-1].",
	}}

	res, err := newLoop(t, s, drafter).Run(context.Background(), "write a report")
	require.NoError(t, err)
	assert.False(t, res.Clean)
	assert.Contains(t, res.Report, "[a.py:1-2]")
}

func TestLoop_CleanResultHasNoInvalidCitations(t *testing.T) {
	t.Parallel()
	s := tenLineStore(t)
	// The first draft scores more valid citations but carries an invalid
	// one; the second meets the gate. A clean result must be the
	// gate-meeting draft, not the higher-scoring dirty one.
	drafter := &scriptedDrafter{drafts: []string{
		"Good [a.py:1-2] and good [a.py:3-4] but bad [b.py:1-1].",
		"Good [a.py:1-2].",
	}}

	res, err := newLoop(t, s, drafter).Run(context.Background(), "write a report")
	require.NoError(t, err)
	assert.True(t, res.Clean)
	assert.Equal(t, 2, res.Iterations)
	assert.NotContains(t, res.Report, "[b.py:1-1]")
	for _, r := range res.Results {
		assert.True(t, r.Valid)
	}
}

func TestLoop_PersistsEveryIteration(t *testing.T) {
	t.Parallel()
	s := tenLineStore(t)
	drafter := &scriptedDrafter{drafts: []string{
		"Bad [b.py:1-2].",
		"Good [a.py:1-2].",
	}}

	res, err := newLoop(t, s, drafter).Run(context.Background(), "write a report")
	require.NoError(t, err)
	assert.True(t, res.Clean)

	versions, err := s.ListReportVersions()
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, res.RunID, versions[0].RunID)
	assert.Equal(t, 1, versions[0].Iteration)
	assert.Equal(t, 2, versions[1].Iteration)
	assert.Equal(t, 0, versions[0].ValidCitations)
	assert.Equal(t, 1, versions[1].ValidCitations)
}

func TestLoop_MaxIterationsOverride(t *testing.T) {
	t.Parallel()
	s := tenLineStore(t)
	drafter := &scriptedDrafter{drafts: []string{"Bad [b.py:1-2]."}}

	loop := newLoop(t, s, drafter)
	loop.SetMaxIterations(1)
	res, err := loop.Run(context.Background(), "write a report")
	require.NoError(t, err)
	assert.False(t, res.Clean)
	assert.Equal(t, 1, res.Iterations)
}
