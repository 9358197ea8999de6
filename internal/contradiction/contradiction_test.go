package contradiction

import (
	"strings"
	"testing"

	"github.com/spigell/hh-researcher/internal/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func searchResult(summary string, reliabilities ...float64) *ai.SearchResult {
	sr := &ai.SearchResult{Summary: summary}
	for _, r := range reliabilities {
		sr.Results = append(sr.Results, ai.WebResult{Reliability: r})
	}
	return sr
}

func unresolved(r Report) int {
	n := 0
	for _, c := range r.Contradictions {
		if !c.Resolved {
			n++
		}
	}
	return n
}

func TestCompanySizeContradictionBetweenSources(t *testing.T) {
	t.Parallel()

	report := Analyze(Input{
		ResumeText: "Backend engineer at a 50-person startup.",
		Search: map[ai.InfoType]*ai.SearchResult{
			ai.InfoEnvironmentalFit: searchResult("The company is a large enterprise with over 5000 employees.", 0.8),
			ai.InfoMarketValue:      searchResult("Sources describe it as an SME with about 120 employees.", 0.5),
		},
	})

	require.Len(t, report.Contradictions, 1)
	c := report.Contradictions[0]
	assert.Equal(t, KindScale, c.Kind)
	assert.Equal(t, TopicCompanySize, c.Topic)
	assert.Equal(t, StrategyRange, c.Strategy)
	assert.True(t, c.Resolved)
	assert.Equal(t, "large~SME", c.ResolvedValue)

	assert.LessOrEqual(t, report.OverallConfidence, 0.7)
	assert.Equal(t, unresolved(report), report.UnresolvedCount)
	assert.False(t, report.HasHighSeverity())

	found := false
	for _, rec := range report.Recommendations {
		if strings.Contains(rec, "verify the company size") {
			found = true
		}
	}
	assert.True(t, found, "recommendations: %v", report.Recommendations)
}

func TestNumericalContradictionResolution(t *testing.T) {
	t.Parallel()

	in := Input{
		ResumeText: "Senior developer with 10 years of Go.",
		Search: map[ai.InfoType]*ai.SearchResult{
			ai.InfoMarketValue: searchResult("Comparable roles typically ask for 5 years.", 0.8),
		},
	}

	found := Detect(in)
	require.Len(t, found, 1)
	assert.Equal(t, KindNumerical, found[0].Kind)
	assert.Equal(t, SeverityHigh, found[0].Severity)

	weighted := Resolve(found, Reliabilities(in.Search))
	c := weighted.Contradictions[0]
	assert.Equal(t, StrategyWeightedAverage, c.Strategy)
	assert.Equal(t, "6.9", c.ResolvedValue)
	assert.InDelta(t, 0.8, c.Confidence, 1e-9)

	ranged := Resolve(found, nil)
	c = ranged.Contradictions[0]
	assert.Equal(t, StrategyRange, c.Strategy)
	assert.Equal(t, "5-10", c.ResolvedValue)
	assert.InDelta(t, 0.6, ranged.OverallConfidence, 1e-9)
}

func TestTemporalOverlapIsUnresolved(t *testing.T) {
	t.Parallel()

	report := Analyze(Input{
		ResumeText: "2018/04 - 2021/06 Acme Corp, backend\n2020/01 - 2023/03 Beta Inc, platform\n2023/04 - present Gamma",
	})

	require.Len(t, report.Contradictions, 1)
	c := report.Contradictions[0]
	assert.Equal(t, KindTemporal, c.Kind)
	assert.Equal(t, StrategyManualVerification, c.Strategy)
	assert.False(t, c.Resolved)
	assert.Equal(t, 1, report.UnresolvedCount)
	assert.InDelta(t, 0.3, report.OverallConfidence, 1e-9)
	assert.Equal(t, []string{TopicCareerTimeline}, report.HighSeverityTopics())
}

func TestEvaluationSentimentMismatch(t *testing.T) {
	t.Parallel()

	text := "Score: 80\nConfidence: high\nLacks Kafka. Missing tests. Weak ownership. Risk of churn. Limited scope."
	report := Analyze(Input{EvaluationText: text})

	require.Len(t, report.Contradictions, 1)
	c := report.Contradictions[0]
	assert.Equal(t, TopicEvaluationConsistency, c.Topic)
	assert.Equal(t, KindSemantic, c.Kind)
	assert.Equal(t, "negative", c.Second.Value)
	assert.False(t, c.Resolved)
	assert.Equal(t, report.UnresolvedCount, unresolved(report))
}

func TestCategoricalResolution(t *testing.T) {
	t.Parallel()

	found := []Contradiction{
		{Topic: TopicJobRole, Kind: KindCategorical, Severity: SeverityHigh,
			First: Source{Name: "a", Value: "manager"}, Second: Source{Name: "b", Value: "engineer"}},
		{Topic: TopicJobRole, Kind: KindCategorical, Severity: SeverityHigh,
			First: Source{Name: ResumeSource, Value: "lead"}, Second: Source{Name: "c", Value: "engineer"}},
	}

	report := Resolve(found, map[string]float64{"a": 0.4, "b": 0.9, ResumeSource: 0.5, "c": 0.5})
	assert.Equal(t, "engineer", report.Contradictions[0].ResolvedValue)
	assert.Equal(t, StrategyMostReliable, report.Contradictions[0].Strategy)
	assert.Equal(t, "lead", report.Contradictions[1].ResolvedValue)
	assert.Equal(t, StrategyPrimarySource, report.Contradictions[1].Strategy)

	noWeights := Resolve(found[:1], nil)
	assert.False(t, noWeights.Contradictions[0].Resolved)
	assert.Equal(t, StrategyExpertJudgment, noWeights.Contradictions[0].Strategy)
}

func TestNoContradictions(t *testing.T) {
	t.Parallel()

	report := Analyze(Input{ResumeText: "Go developer", Search: map[ai.InfoType]*ai.SearchResult{
		ai.InfoPracticalAbility: searchResult("Go is widely used for backend services.", 0.7),
	}})
	assert.Empty(t, report.Contradictions)
	assert.InDelta(t, 1.0, report.OverallConfidence, 1e-9)
	assert.Zero(t, report.UnresolvedCount)
	assert.Empty(t, report.Recommendations)
}

func TestCompanySize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want string
	}{
		{text: "a large enterprise in retail", want: SizeLarge},
		{text: "中小企業向けのSaaS", want: SizeSME},
		{text: "small and medium-sized enterprises", want: SizeSME},
		{text: "a mid-size logistics firm", want: SizeMid},
		{text: "early stage startup", want: SizeStartup},
		{text: "従業員数は1200名以上の規模", want: SizeLarge},
		{text: "about 400 employees", want: SizeMid},
		{text: "a company in Tokyo", want: ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CompanySize(tt.text), tt.text)
	}
}

func TestFormatListsContradictions(t *testing.T) {
	t.Parallel()

	report := Resolve([]Contradiction{{
		Topic: TopicCompanySize, Kind: KindScale, Severity: SeverityMedium,
		First: Source{Name: "x", Value: SizeLarge}, Second: Source{Name: "y", Value: SizeStartup},
	}}, nil)

	out := report.Format()
	assert.Contains(t, out, "company_size")
	assert.Contains(t, out, "large~startup")
	assert.Contains(t, out, "Overall confidence: 60%")
}
