package research

import (
	"context"
	"testing"

	"github.com/spigell/hh-researcher/internal/embedding"
	"github.com/spigell/hh-researcher/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fixedBackend struct {
	vector []float32
	texts  []string
}

func (b *fixedBackend) Embed(_ context.Context, text string, _ embedding.Intent) ([]float32, error) {
	b.texts = append(b.texts, text)
	return append([]float32(nil), b.vector...), nil
}

func boolPtr(v bool) *bool { return &v }

func seedCases(t *testing.T) *vectorstore.Store {
	t.Helper()

	store, err := vectorstore.New(vectorstore.Config{Collection: "cases"}, zaptest.NewLogger(t))
	require.NoError(t, err)

	cases := []struct {
		c      Case
		vector []float32
	}{
		{Case{ID: "c1", Position: "Backend engineer", AIRecommendation: "A", ClientEvaluation: "B",
			ClientComment: "Client wanted more leadership experience."}, []float32{1, 0, 0}},
		{Case{ID: "c2", Position: "Backend engineer", AIRecommendation: "B", ClientEvaluation: "B",
			Reasoning: "Solid Go background with payments work."}, []float32{0.95, 0.05, 0}},
		{Case{ID: "c3", Position: "Platform engineer", AIRecommendation: "C", ClientEvaluation: "B"}, []float32{0.9, 0.2, 0}},
		{Case{ID: "c4", Position: "Sales manager", AIRecommendation: "D", ClientEvaluation: "D"}, []float32{0, 1, 0}},
	}
	var items []vectorstore.Item
	for _, tc := range cases {
		items = append(items, vectorstore.Item{ID: tc.c.ID, Content: tc.c.Document(), Vector: tc.vector, Metadata: tc.c.Metadata()})
	}
	resumeOnly := Case{ID: "c5", Position: "Backend engineer", AIRecommendation: "A", ClientEvaluation: "A"}.Metadata()
	resumeOnly["vector_type"] = "resume"
	items = append(items, vectorstore.Item{ID: "c5", Content: "resume", Vector: []float32{1, 0, 0}, Metadata: resumeOnly})

	require.NoError(t, store.Upsert(context.Background(), items))
	return store
}

func TestRetrieverBuildsInsights(t *testing.T) {
	t.Parallel()

	backend := &fixedBackend{vector: []float32{1, 0, 0}}
	client, err := embedding.New(backend, embedding.Config{}, zaptest.NewLogger(t))
	require.NoError(t, err)

	r := NewRetriever(client, seedCases(t), zaptest.NewLogger(t))
	require.True(t, r.Configured())

	s := newTestState(3)
	require.NoError(t, r.Process(context.Background(), s))

	in := s.Insights()
	require.NotNil(t, in)
	assert.Equal(t, 3, in.TotalCases)
	assert.Equal(t, "B", in.ClientTendency)
	assert.InDelta(t, 100, in.TendencyShare, 1e-9)
	assert.Equal(t, []string{"AI:A → Client:B: Client wanted more leadership experience."}, in.RiskPatterns)
	assert.Equal(t, []string{"Backend engineer (B): Solid Go background with payments work."}, in.SuccessPatterns)

	require.Len(t, backend.texts, 1)
	assert.Contains(t, backend.texts[0], "Position: Backend engineer")
	assert.Contains(t, backend.texts[0], "Candidate: Backend engineer with 7 years")

	formatted := in.Format()
	assert.Contains(t, formatted, "3 similar past cases were found.")
	assert.Contains(t, formatted, "Clients most often graded them B (100.0%).")
}

func TestRetrieverNotConfigured(t *testing.T) {
	t.Parallel()

	r := NewRetriever(nil, nil, zaptest.NewLogger(t))
	assert.False(t, r.Configured())

	s := newTestState(1)
	require.NoError(t, r.Process(context.Background(), s))
	assert.Nil(t, s.Insights())
}

func TestBuildInsights(t *testing.T) {
	t.Parallel()

	empty := BuildInsights(nil)
	assert.Zero(t, empty.TotalCases)
	assert.Empty(t, empty.Format())

	in := BuildInsights([]Case{
		{Position: "SRE", AIRecommendation: "B", ClientEvaluation: "C", ClientComment: "Too junior", Match: boolPtr(false)},
		{Position: "SRE", AIRecommendation: "B", ClientEvaluation: "B", Reasoning: "Strong on-call record"},
		{Position: "SRE", AIRecommendation: "A", ClientEvaluation: "C", ClientComment: "Salary mismatch"},
		{Position: "SRE", AIRecommendation: "D", ClientEvaluation: ""},
	})
	assert.Equal(t, 4, in.TotalCases)
	// C leads 2 to 1 among the three labelled cases.
	assert.Equal(t, "C", in.ClientTendency)
	assert.InDelta(t, 66.7, in.TendencyShare, 1e-9)
	assert.Len(t, in.RiskPatterns, 2)
	assert.Equal(t, []string{"SRE (B): Strong on-call record"}, in.SuccessPatterns)

	// Ties go to the label seen first.
	tie := BuildInsights([]Case{{ClientEvaluation: "A"}, {ClientEvaluation: "C"}})
	assert.Equal(t, "A", tie.ClientTendency)
	assert.InDelta(t, 50, tie.TendencyShare, 1e-9)
}

func TestDecodeCase(t *testing.T) {
	t.Parallel()

	original := Case{ID: "x1", Position: "SRE", AIRecommendation: "B", ClientEvaluation: "B", AIScore: 72.5}
	decoded, err := DecodeCase(original.Metadata())
	require.NoError(t, err)
	assert.Equal(t, "x1", decoded.ID)
	assert.Equal(t, VectorTypeCombined, decoded.VectorType)
	assert.InDelta(t, 72.5, decoded.AIScore, 1e-9)
	require.NotNil(t, decoded.Match)
	assert.True(t, *decoded.Match)
	assert.True(t, decoded.Agrees())
}
