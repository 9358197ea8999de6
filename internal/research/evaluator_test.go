package research

import (
	"context"
	"errors"
	"testing"

	"github.com/spigell/hh-researcher/internal/ai"
	"github.com/spigell/hh-researcher/internal/weights"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestAdjustScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		score     int
		penalty   float64
		factor    float64
		want      int
		deduction int
		delta     int
	}{
		{name: "no adjustment", score: 80, penalty: 0, factor: 1, want: 80},
		{name: "career penalty", score: 80, penalty: 0.2, factor: 1, want: 70, deduction: 10},
		{name: "penalty capped", score: 80, penalty: 0.5, factor: 1, want: 64, deduction: 16},
		{name: "tenure discount", score: 80, penalty: 0, factor: 0.8, want: 64, delta: -16},
		{name: "tenure bonus clamped", score: 100, penalty: 0, factor: 1.25, want: 100, delta: 25},
		{name: "both", score: 70, penalty: 0.2, factor: 0.85, want: 51, deduction: 9, delta: -10},
		{name: "zero factor ignored", score: 40, penalty: 0, factor: 0, want: 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, deduction, delta := AdjustScore(tt.score, tt.penalty, tt.factor)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.deduction, deduction)
			assert.Equal(t, tt.delta, delta)
		})
	}
}

func TestEnforceRequired(t *testing.T) {
	t.Parallel()

	ev := &EvaluationResult{
		Score:    70,
		Concerns: []string{"No Terraform exposure"},
		Breakdown: map[weights.Dimension]CategoryScore{
			weights.RequiredSkills: {Score: 20, Max: 45, Items: []Item{
				{Name: "Go development", Score: 20, Max: 15},
				{Name: "Terraform", Score: 0, Max: 15},
			}},
		},
	}
	resume := "Go developer who runs PostgreSQL clusters."
	missing := enforceRequired(ev, []string{"Go", "Terraform", "PostgreSQL", "Settlement ledger design"}, resume)

	assert.Equal(t, []string{"Terraform", "Settlement ledger design"}, missing)
	assert.Equal(t, missing, ev.Missing)
	assert.Equal(t, 2, ev.Adjustment.RequiredMissed)

	items := ev.Breakdown[weights.RequiredSkills].Items
	require.Len(t, items, 3)
	assert.Equal(t, Item{Name: "Settlement ledger design", Score: 0, Max: 11.3, Evidence: "not evidenced in the résumé"}, items[2])

	// Terraform is already a concern, so only the unlisted item is prepended.
	assert.Equal(t, []string{
		"Required item not evidenced: Settlement ledger design",
		"No Terraform exposure",
	}, ev.Concerns)
}

func TestEnforceRequiredMatchesWholeTerms(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		item     string
		required string
		resume   string
		missing  []string
	}{
		{
			name:     "javascript is not java",
			item:     "JavaScript",
			required: "Java",
			resume:   "8 years of JavaScript and React",
			missing:  []string{"Java"},
		},
		{
			name:     "django is not go",
			item:     "Django",
			required: "Go",
			resume:   "Python developer building Django services; left the last job two years ago.",
			missing:  []string{"Go"},
		},
		{
			name:     "item names the skill",
			item:     "Go development",
			required: "Go",
			resume:   "Backend engineer",
		},
		{
			name:     "alias in the resume",
			item:     "Delivery",
			required: "Go",
			resume:   "Golang microservices for five years",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ev := &EvaluationResult{
				Score: 80,
				Breakdown: map[weights.Dimension]CategoryScore{
					weights.RequiredSkills: {Score: 40, Max: 45, Items: []Item{{Name: tt.item, Score: 40, Max: 45}}},
				},
			}
			assert.Equal(t, tt.missing, enforceRequired(ev, []string{tt.required}, tt.resume))
			assert.Equal(t, tt.missing, ev.Missing)
		})
	}
}

func TestEnforceRequiredWithoutStructuredSkills(t *testing.T) {
	t.Parallel()

	ev := &EvaluationResult{Score: 70}
	assert.Nil(t, enforceRequired(ev, nil, "anything"))
	assert.Empty(t, ev.Missing)
	assert.Nil(t, ev.Breakdown)
}

func TestMentions(t *testing.T) {
	t.Parallel()

	assert.True(t, mentions("Built services in Go and Kubernetes", "kubernetes"))
	assert.True(t, mentions("Kubernetes operators; ran production clusters", "production Kubernetes"))
	assert.False(t, mentions("Java developer", "Kotlin"))
	assert.False(t, mentions("決済システムの開発", "決済台帳の設計"))
	assert.False(t, mentions("8 years of JavaScript and React", "Java"))
	assert.False(t, mentions("Python developer building Django services; left two years ago.", "Go"))
}

func TestRuleScore(t *testing.T) {
	t.Parallel()

	req := baseRequest()
	// Both required skills, no preferred list, 7 of 5 years: 60 + 12.5 + 15.
	assert.Equal(t, 88, RuleScore(req, 7))

	req.Job.Structured.PreferredSkills = []string{"Kafka", "Go"}
	// Half of the preferred list, 2.5 of 5 years: 60 + 12.5 + 7.5.
	assert.Equal(t, 80, RuleScore(req, 2.5))

	req.Candidate.Resume = "Java developer"
	assert.Equal(t, 15, RuleScore(req, 10))

	// Django and "ago" do not count as Go.
	req.Job.Structured.PreferredSkills = nil
	req.Candidate.Resume = "Django and Kubernetes, started three years ago"
	assert.Equal(t, 58, RuleScore(req, 10))
}

func TestExperienceYears(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		resume string
		want   float64
	}{
		{name: "stated", resume: "Backend engineer with 7 years of Go.", want: 7},
		{name: "stated with plus", resume: "10+ years in payments", want: 10},
		{name: "timeline", resume: "2018年4月～2024年3月 株式会社テック エンジニア", want: 5.9},
		{name: "open ended", resume: "2024/10 - present Acme Corp. engineer", want: 2},
		{name: "larger of both", resume: "3 years of Go\n2015/1 - 2020/1 Globex Ltd. developer", want: 5},
		{name: "nothing", resume: "Enthusiastic engineer.", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.InDelta(t, tt.want, ExperienceYears(tt.resume, now), 1e-9)
		})
	}
}

func TestEvaluatorProcess(t *testing.T) {
	t.Parallel()

	llm := newScriptedLLM().on(callEvaluate, evaluationText(82, "high", "Go", "Kubernetes"))
	ev := NewEvaluator(llm, zaptest.NewLogger(t), WithEnhanced(false), WithEvaluatorClock(fixedClock))

	s := newTestState(3)
	require.NoError(t, ev.Process(context.Background(), s))

	got := s.Evaluation()
	require.NotNil(t, got)
	assert.Equal(t, 82, got.Score)
	assert.Equal(t, 82, got.Adjustment.ModelScore)
	assert.Equal(t, ai.ConfidenceHigh, got.Confidence)
	assert.Empty(t, got.Missing)
	assert.Nil(t, got.Career)
	assert.Nil(t, got.Tenure)
	assert.Nil(t, got.Contradictions)
	assert.InDelta(t, 7, got.ExperienceYears, 1e-9)
	assert.Equal(t, s.Strategy().Weights.Profile, got.Weights)

	prompt := llm.prompt(callEvaluate, 0)
	assert.Contains(t, prompt, "Required skills (45 points, weight")
	assert.Contains(t, prompt, "## Structured job data")
	assert.Contains(t, prompt, "- Required items: Go; Kubernetes")
	assert.Contains(t, prompt, "No research has been done yet.")
	assert.Contains(t, prompt, "This is the first cycle.")
	assert.NotContains(t, prompt, "{{")
	assert.NotContains(t, prompt, "Your previous answer could not be read")
}

func TestEvaluatorHybrid(t *testing.T) {
	t.Parallel()

	llm := newScriptedLLM().on(callEvaluate, evaluationText(70, "medium", "Go", "Kubernetes"))
	ev := NewEvaluator(llm, zaptest.NewLogger(t),
		WithEnhanced(false), WithHybrid(true), WithEvaluatorClock(fixedClock))

	s := newTestState(3)
	require.NoError(t, ev.Process(context.Background(), s))

	got := s.Evaluation()
	require.NotNil(t, got.Adjustment.RuleScore)
	assert.Equal(t, 88, *got.Adjustment.RuleScore)
	// round(0.4*88 + 0.6*70) = round(77.2)
	assert.Equal(t, 77, got.Score)
	assert.Equal(t, 70, got.Adjustment.ModelScore)
}

func TestEvaluatorEnhanced(t *testing.T) {
	t.Parallel()

	llm := newScriptedLLM().on(callEvaluate, evaluationText(80, "medium", "Go", "Kubernetes"))
	ev := NewEvaluator(llm, zaptest.NewLogger(t), WithEvaluatorClock(fixedClock))

	s := newTestState(3)
	require.NoError(t, ev.Process(context.Background(), s))

	got := s.Evaluation()
	require.NotNil(t, got.Career)
	require.NotNil(t, got.Tenure)
	assert.Equal(t, 1.0, got.Adjustment.TenureFactor)
	assert.LessOrEqual(t, got.Score, 80)
	assert.Contains(t, llm.prompt(callEvaluate, 0), "Score:")
}

func TestEvaluatorErrors(t *testing.T) {
	t.Parallel()

	t.Run("no model", func(t *testing.T) {
		t.Parallel()

		err := NewEvaluator(nil, nil).Process(context.Background(), newTestState(1))
		require.Error(t, err)
	})

	t.Run("provider failure", func(t *testing.T) {
		t.Parallel()

		llm := newScriptedLLM().fail(callEvaluate, errProvider)
		s := newTestState(1)
		err := NewEvaluator(llm, zaptest.NewLogger(t), WithEnhanced(false)).Process(context.Background(), s)
		require.ErrorIs(t, err, errProvider)
		assert.Nil(t, s.Evaluation())
	})

	t.Run("unreadable answer then repair", func(t *testing.T) {
		t.Parallel()

		llm := newScriptedLLM().on(callEvaluate, "I would rather not say.", evaluationText(66, "medium", "Go", "Kubernetes"))
		e := NewEvaluator(llm, zaptest.NewLogger(t), WithEnhanced(false))
		s := newTestState(1)

		err := e.Process(context.Background(), s)
		require.True(t, errors.Is(err, ErrEvaluationParse))
		require.NoError(t, e.Repair(context.Background(), s, err))

		assert.Equal(t, 66, s.Evaluation().Score)
		assert.Contains(t, llm.prompt(callEvaluate, 1), "Your previous answer could not be read")
	})
}
