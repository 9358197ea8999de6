package research

import (
	"context"
	"testing"

	"github.com/spigell/hh-researcher/internal/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const twoGaps = `Info 1:
Type: market-value
Description: Salary level for senior Go engineers
Search query: Go engineer salary Tokyo 2026
Importance: low
Rationale: The memo mentions a tight budget

**Info 2:**
- Type: requirement-check
- Description: Whether Acme runs Kubernetes in production
- Search query: "Acme Kubernetes production"
- Importance: high
- Rationale: Kubernetes is a required item
`

func TestStopEarly(t *testing.T) {
	t.Parallel()

	tests := []struct {
		score      int
		confidence ai.Confidence
		want       bool
	}{
		{95, ai.ConfidenceMedium, true},
		{94, ai.ConfidenceMedium, false},
		{20, ai.ConfidenceHigh, true},
		{20, ai.ConfidenceMedium, false},
		{21, ai.ConfidenceHigh, false},
		{85, ai.ConfidenceHigh, true},
		{84, ai.ConfidenceHigh, false},
		{100, ai.ConfidenceLow, true},
	}
	for _, tt := range tests {
		got, reason := StopEarly(tt.score, tt.confidence)
		assert.Equal(t, tt.want, got, "%d %s", tt.score, tt.confidence)
		assert.Equal(t, tt.want, reason != "")
	}
}

func TestParseGaps(t *testing.T) {
	t.Parallel()

	gaps := ParseGaps(twoGaps)
	require.Len(t, gaps, 2)
	assert.Equal(t, ai.InformationGap{
		InfoType:    ai.InfoMarketValue,
		Description: "Salary level for senior Go engineers",
		SearchQuery: "Go engineer salary Tokyo 2026",
		Importance:  ai.ImportanceLow,
		Rationale:   "The memo mentions a tight budget",
	}, gaps[0])
	assert.Equal(t, ai.InfoRequirementCheck, gaps[1].InfoType)
	assert.Equal(t, "Acme Kubernetes production", gaps[1].SearchQuery)

	assert.Nil(t, ParseGaps("No additional information needed."))
	assert.Nil(t, ParseGaps("追加情報不要"))

	// A block without a query cannot be searched.
	partial := ParseGaps("Info 1:\nType: other\nDescription: nothing to search\n\nInfo 2:\nSearch query: acme funding\n")
	require.Len(t, partial, 1)
	assert.Equal(t, ai.InfoOther, partial[0].InfoType)
	assert.Equal(t, ai.ImportanceMedium, partial[0].Importance)
}

func TestSortGaps(t *testing.T) {
	t.Parallel()

	in := []ai.InformationGap{
		{SearchQuery: "a", Importance: ai.ImportanceLow},
		{SearchQuery: "b", Importance: ai.ImportanceHigh},
		{SearchQuery: "c", Importance: ai.ImportanceMedium},
		{SearchQuery: "d", Importance: ai.ImportanceHigh},
	}
	out := SortGaps(in)
	require.Len(t, out, MaxGaps)
	assert.Equal(t, "b", out[0].SearchQuery)
	assert.Equal(t, "d", out[1].SearchQuery)
	assert.Equal(t, "c", out[2].SearchQuery)
	assert.Equal(t, "a", in[0].SearchQuery)
}

func newGapState(t *testing.T, score int, confidence ai.Confidence) *State {
	t.Helper()

	s := newTestState(3)
	s.SetEvaluation(&EvaluationResult{Score: score, Confidence: confidence, Concerns: []string{"Limited people management"}})
	return s
}

func TestGapAnalyzerStopsWithoutModelCall(t *testing.T) {
	t.Parallel()

	llm := newScriptedLLM().on(callGaps, twoGaps)
	g := NewGapAnalyzer(llm, zaptest.NewLogger(t), fixedClock, 0)

	s := newGapState(t, 90, ai.ConfidenceHigh)
	require.NoError(t, g.Process(context.Background(), s))
	assert.False(t, s.ShouldContinue())
	assert.Empty(t, s.Gaps())
	assert.Zero(t, llm.calls(callGaps))
}

func TestGapAnalyzerModelGaps(t *testing.T) {
	t.Parallel()

	llm := newScriptedLLM().on(callGaps, twoGaps)
	g := NewGapAnalyzer(llm, zaptest.NewLogger(t), fixedClock, 0)

	s := newGapState(t, 60, ai.ConfidenceMedium)
	require.NoError(t, g.Process(context.Background(), s))

	gaps := s.Gaps()
	require.Len(t, gaps, 2)
	assert.Equal(t, ai.InfoRequirementCheck, gaps[0].InfoType)
	assert.True(t, s.ShouldContinue())

	prompt := llm.prompt(callGaps, 0)
	assert.Contains(t, prompt, "Score: 60")
	assert.Contains(t, prompt, "- Limited people management")
	assert.Contains(t, prompt, "Candidate's current company: Acme Corp")
	assert.Contains(t, prompt, "(nothing yet)")
}

func TestGapAnalyzerDefaultGaps(t *testing.T) {
	t.Parallel()

	llm := newScriptedLLM().on(callGaps, "No additional information needed")
	g := NewGapAnalyzer(llm, zaptest.NewLogger(t), fixedClock, 0)

	s := newGapState(t, 65, ai.ConfidenceMedium)
	require.NoError(t, g.Process(context.Background(), s))

	gaps := s.Gaps()
	require.Len(t, gaps, 2)
	assert.Equal(t, ai.InfoEnvironmentalFit, gaps[0].InfoType)
	assert.Equal(t, "Acme company size employees 2026", gaps[0].SearchQuery)
	assert.Equal(t, ai.ImportanceHigh, gaps[0].Importance)
	assert.Equal(t, ai.InfoPracticalAbility, gaps[1].InfoType)
	assert.Equal(t, "Go demand market value 2026", gaps[1].SearchQuery)
	assert.True(t, s.ShouldContinue())
}

func TestGapAnalyzerLaterCycleSkipsSearchedDefaults(t *testing.T) {
	t.Parallel()

	llm := newScriptedLLM().on(callGaps, "No additional information needed")
	g := NewGapAnalyzer(llm, zaptest.NewLogger(t), fixedClock, 0)

	s := newGapState(t, 65, ai.ConfidenceMedium)
	s.AddSearchResult(ai.InfoEnvironmentalFit, &ai.SearchResult{Query: "Acme company size employees 2026", Summary: "About 300 staff."})
	s.CompleteCycle(0)

	require.NoError(t, g.Process(context.Background(), s))
	gaps := s.Gaps()
	require.Len(t, gaps, 1)
	assert.Equal(t, ai.InfoPracticalAbility, gaps[0].InfoType)
	assert.True(t, s.ShouldContinue())

	s.AddSearchResult(ai.InfoPracticalAbility, &ai.SearchResult{Query: gaps[0].SearchQuery, Summary: "High demand."})
	s.CompleteCycle(0)
	require.NoError(t, g.Process(context.Background(), s))
	assert.Empty(t, s.Gaps())
	assert.False(t, s.ShouldContinue())
}

func TestGapAnalyzerLowScoreWithoutGapsStops(t *testing.T) {
	t.Parallel()

	llm := newScriptedLLM().on(callGaps, "No additional information needed")
	g := NewGapAnalyzer(llm, zaptest.NewLogger(t), fixedClock, 0)

	s := newGapState(t, 30, ai.ConfidenceMedium)
	require.NoError(t, g.Process(context.Background(), s))
	assert.Empty(t, s.Gaps())
	assert.False(t, s.ShouldContinue())
	assert.Equal(t, 1, llm.calls(callGaps))
}

func TestGapAnalyzerModelFailureStopsGracefully(t *testing.T) {
	t.Parallel()

	llm := newScriptedLLM().fail(callGaps, errProvider)
	g := NewGapAnalyzer(llm, zaptest.NewLogger(t), fixedClock, 0)

	// Outside the middle band nothing is injected.
	s := newGapState(t, 40, ai.ConfidenceLow)
	require.NoError(t, g.Process(context.Background(), s))
	assert.False(t, s.ShouldContinue())
}

func TestGapAnalyzerContradictionGap(t *testing.T) {
	t.Parallel()

	req := baseRequest()
	req.Candidate.Resume = "Backend engineer with 3 years of Go."
	req.MaxCycles = 3
	s := NewState(req, InitialStrategy(req))
	s.SetEvaluation(&EvaluationResult{Score: 65, Confidence: ai.ConfidenceMedium})
	s.AddSearchResult(ai.InfoRoleExpectation, &ai.SearchResult{
		Query:   "backend engineer expectations",
		Summary: "Typical hires have 8 years experience in payments.",
	})

	llm := newScriptedLLM().on(callGaps, twoGaps)
	g := NewGapAnalyzer(llm, zaptest.NewLogger(t), fixedClock, 0)
	require.NoError(t, g.Process(context.Background(), s))

	gaps := s.Gaps()
	require.Len(t, gaps, MaxGaps)
	assert.Equal(t, ai.InfoContradictionResolution, gaps[0].InfoType)
	assert.Equal(t, ai.ImportanceHigh, gaps[0].Importance)
	assert.Equal(t, "Sources disagree on: experience_years", gaps[0].Description)
	assert.Equal(t, "Backend engineer required skills experience", gaps[0].SearchQuery)
	assert.Equal(t, ai.InfoRequirementCheck, gaps[1].InfoType)
}
