package weights

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int { return &n }

func assertNormalised(t *testing.T, p Profile) {
	t.Helper()
	assert.InDelta(t, 1.0, p.Sum(), 1e-6)
	for _, d := range Dimensions {
		assert.GreaterOrEqual(t, p.Get(d), 0.0, d)
		assert.LessOrEqual(t, p.Get(d), 1.0, d)
	}
}

func TestDefaultProfileUnchangedWithoutSignals(t *testing.T) {
	t.Parallel()

	r := Adjust(Job{Title: "Clerk", Description: "General duties."})
	assert.Empty(t, r.Applied)
	assert.InDelta(t, 0.45, r.Profile.RequiredSkills, 1e-9)
	assert.InDelta(t, 0.05, r.Profile.OutstandingCareer, 1e-9)
	assertNormalised(t, r.Profile)
	assert.Contains(t, r.Explanation, "top: required skills (45%)")
}

func TestAdjustITEngineer(t *testing.T) {
	t.Parallel()

	r := Adjust(Job{
		Title:       "Backend engineer",
		Description: "SaaS software company. 5年以上の開発経験。",
	})
	require.Equal(t, []string{"industry profile: IT", "role: engineer", "experience band: mid"}, r.Applied)
	assertNormalised(t, r.Profile)

	// 0.50*1.2*1.1, 0.25*1.1, 0.15, 0.05*0.8, 0.05 before normalisation.
	raw := Profile{RequiredSkills: 0.66, PracticalAbility: 0.275, PreferredSkills: 0.15, OrganisationalFit: 0.04, OutstandingCareer: 0.05}
	want := raw.Normalize()
	for _, d := range Dimensions {
		assert.InDelta(t, want.Get(d), r.Profile.Get(d), 1e-9, d)
	}
	assert.Contains(t, r.Explanation, "technical requirements weigh heavily")
}

func TestStructuredSignalsWin(t *testing.T) {
	t.Parallel()

	r := Adjust(Job{
		Title:              "Relationship manager",
		Description:        "Software for banks, 3 years",
		Industry:           "銀行",
		ExperienceYearsMin: intPtr(12),
		SalaryMax:          intPtr(12_000_000),
	})
	assert.Equal(t, []string{
		"industry profile: finance",
		"role: manager",
		"experience band: senior",
		"salary band: high",
	}, r.Applied)
	assertNormalised(t, r.Profile)
	assert.Greater(t, r.Profile.OrganisationalFit, 0.15)
}

func TestKeywordMultipliersCompose(t *testing.T) {
	t.Parallel()

	r := Adjust(Job{Title: "Planner", Memo: "即戦力 and leadership wanted"})
	assert.Contains(t, r.Applied, "keywords: immediate-impact, leadership")
	assertNormalised(t, r.Profile)
	assert.Greater(t, r.Profile.PracticalAbility, Default().PracticalAbility)
}

func TestPipelineIsPure(t *testing.T) {
	t.Parallel()

	job := Job{Title: "Engineer", Description: "startup, 10 years", SalaryMax: intPtr(8_000_000)}
	first := Adjust(job)
	second := Adjust(job)
	assert.Equal(t, first, second)
	assert.Equal(t, 0.45, Default().RequiredSkills)
}

func TestDetectIndustry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		job  Job
		want string
	}{
		{job: Job{Description: "大手銀行の勘定系システム。金融知識歓迎"}, want: "finance"},
		{job: Job{Description: "Fast-growing startup building AI tools"}, want: "startup"},
		{job: Job{Title: "Maintainer"}, want: ""},
		{job: Job{Industry: "IT"}, want: "IT"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectIndustry(tt.job), tt.job)
	}
}

func TestNormalizeZeroFallsBackToDefault(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Default(), Profile{}.Normalize())
}
