package export

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spigell/hh-researcher/internal/ai"
	"github.com/spigell/hh-researcher/internal/research"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleResult() *research.Result {
	score := 82
	return &research.Result{
		RequestID: "req-42",
		FinalJudgment: research.FinalJudgement{
			Recommendation:    research.GradeB,
			Reason:            "Strong Go background.",
			Strengths:         []string{"Go", "Kubernetes"},
			Concerns:          []string{"Notice period"},
			OverallAssessment: "Worth an interview.",
		},
		EvaluationHistory: []research.CycleSummary{
			{Cycle: 1, Score: 70, Confidence: ai.ConfidenceMedium, GapsFound: 2, SearchesPerformed: 2, Duration: 1.5},
			{Cycle: 2, Score: 82, Confidence: ai.ConfidenceHigh},
		},
		TotalCycles:     2,
		TotalSearches:   2,
		FinalScore:      &score,
		FinalConfidence: ai.ConfidenceHigh,
		ModelVersion:    "gemini-2.5-pro",
	}
}

func TestToXLSX(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	path, err := ToXLSX(sampleResult(), filepath.Join(t.TempDir(), "report"), now)
	require.NoError(t, err)
	assert.Equal(t, ".xlsx", filepath.Ext(path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SummarySheet, HistorySheet}, f.GetSheetList())

	cell := func(sheet, name string) string {
		t.Helper()
		v, err := f.GetCellValue(sheet, name)
		require.NoError(t, err)
		return v
	}

	assert.Equal(t, "req-42", cell(SummarySheet, "B1"))
	assert.Equal(t, "2026-03-01T09:00:00Z", cell(SummarySheet, "B2"))
	assert.Equal(t, "Recommendation", cell(SummarySheet, "A4"))
	assert.Equal(t, "B", cell(SummarySheet, "B4"))
	assert.Equal(t, "82", cell(SummarySheet, "B6"))
	assert.Equal(t, "Go\nKubernetes", cell(SummarySheet, "B10"))

	assert.Equal(t, "Cycle", cell(HistorySheet, "A1"))
	assert.Equal(t, "70", cell(HistorySheet, "B2"))
	assert.Equal(t, "medium", cell(HistorySheet, "C2"))
	assert.Equal(t, "1.5", cell(HistorySheet, "F2"))
	assert.Equal(t, "high", cell(HistorySheet, "C3"))
}

func TestToXLSXKeepsExtensionAndHandlesNoScore(t *testing.T) {
	t.Parallel()

	res := sampleResult()
	res.FinalScore = nil
	res.EvaluationHistory = nil

	target := filepath.Join(t.TempDir(), "report.XLSX")
	path, err := ToXLSX(res, target, time.Now())
	require.NoError(t, err)
	assert.Equal(t, target, path)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	v, err := f.GetCellValue(SummarySheet, "B6")
	require.NoError(t, err)
	assert.Equal(t, "n/a", v)
}

func TestToXLSXRequiresResult(t *testing.T) {
	t.Parallel()

	_, err := ToXLSX(nil, filepath.Join(t.TempDir(), "x"), time.Now())
	require.Error(t, err)
}
