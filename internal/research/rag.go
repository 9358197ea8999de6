package research

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spigell/hh-researcher/internal/embedding"
	"github.com/spigell/hh-researcher/internal/vectorstore"
	"go.uber.org/zap"
)

const (
	VectorTypeCombined = "combined"

	ragTopK          = 10
	ragMinSimilarity = 0.7
	riskPatterns     = 3
	successPatterns  = 2
	patternTextLimit = 100

	embedTimeout = 15 * time.Second
	queryTimeout = 10 * time.Second
)

// Embedder turns text into a vector; *embedding.Client implements it.
type Embedder interface {
	Embed(ctx context.Context, text string, intent embedding.Intent) ([]float32, error)
}

// CaseIndex is the similarity search over past cases; *vectorstore.Store
// implements it.
type CaseIndex interface {
	Query(ctx context.Context, vector []float32, topK int, filter vectorstore.Filter) ([]vectorstore.Hit, error)
}

// Case is one historical evaluation as stored in the vector index metadata.
type Case struct {
	ID               string  `json:"case_id" mapstructure:"case_id"`
	VectorType       string  `json:"vector_type,omitempty" mapstructure:"vector_type"`
	Position         string  `json:"position" mapstructure:"position"`
	Resume           string  `json:"resume,omitempty" mapstructure:"-"`
	Job              string  `json:"job,omitempty" mapstructure:"-"`
	AIRecommendation string  `json:"ai_recommendation" mapstructure:"ai_recommendation"`
	ClientEvaluation string  `json:"client_evaluation" mapstructure:"client_evaluation"`
	ClientComment    string  `json:"client_comment,omitempty" mapstructure:"client_comment"`
	Reasoning        string  `json:"reasoning,omitempty" mapstructure:"reasoning"`
	Match            *bool   `json:"evaluation_match,omitempty" mapstructure:"evaluation_match"`
	AIScore          float64 `json:"ai_score,omitempty" mapstructure:"ai_score"`
	Similarity       float64 `json:"-" mapstructure:"-"`
}

// Agrees reports whether the AI and the client graded the case alike.
func (c Case) Agrees() bool {
	if c.Match != nil {
		return *c.Match
	}
	return c.AIRecommendation != "" && strings.EqualFold(c.AIRecommendation, c.ClientEvaluation)
}

// Document is the text embedded for the combined vector of the case.
func (c Case) Document() string {
	return strings.TrimSpace(fmt.Sprintf("Position: %s\nRequirements: %s\nCandidate: %s", c.Position, c.Job, c.Resume))
}

// Metadata is what the index stores next to the vector.
func (c Case) Metadata() map[string]string {
	return map[string]string{
		"case_id":           c.ID,
		"vector_type":       VectorTypeCombined,
		"position":          c.Position,
		"ai_recommendation": c.AIRecommendation,
		"client_evaluation": c.ClientEvaluation,
		"client_comment":    c.ClientComment,
		"reasoning":         c.Reasoning,
		"evaluation_match":  strconv.FormatBool(c.Agrees()),
		"ai_score":          strconv.FormatFloat(c.AIScore, 'f', -1, 64),
	}
}

// DecodeCase reads a case back from index metadata.
func DecodeCase(metadata map[string]string) (Case, error) {
	var c Case
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &c,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return Case{}, fmt.Errorf("create case decoder: %w", err)
	}
	if err := dec.Decode(metadata); err != nil {
		return Case{}, fmt.Errorf("decode case: %w", err)
	}
	return c, nil
}

// Insights summarise the past cases most similar to the current request.
type Insights struct {
	TotalCases      int      `json:"total_cases"`
	ClientTendency  string   `json:"client_tendency,omitempty"`
	TendencyShare   float64  `json:"tendency_share"`
	RiskPatterns    []string `json:"risk_patterns,omitempty"`
	SuccessPatterns []string `json:"success_patterns,omitempty"`
}

// BuildInsights expects cases ordered by similarity, most similar first.
func BuildInsights(cases []Case) *Insights {
	in := &Insights{TotalCases: len(cases)}
	if len(cases) == 0 {
		return in
	}

	counts := make(map[string]int)
	var order []string
	labelled := 0
	for _, c := range cases {
		label := strings.TrimSpace(c.ClientEvaluation)
		if label == "" {
			continue
		}
		if counts[label] == 0 {
			order = append(order, label)
		}
		counts[label]++
		labelled++
	}
	for _, label := range order {
		if counts[label] > counts[in.ClientTendency] {
			in.ClientTendency = label
		}
	}
	if labelled > 0 {
		in.TendencyShare = math.Round(float64(counts[in.ClientTendency])/float64(labelled)*1000) / 10
	}

	for _, c := range cases {
		if len(in.RiskPatterns) < riskPatterns && !c.Agrees() && c.ClientComment != "" {
			in.RiskPatterns = append(in.RiskPatterns, fmt.Sprintf("AI:%s → Client:%s: %s",
				c.AIRecommendation, c.ClientEvaluation, headline(c.ClientComment, patternTextLimit)))
		}
		if len(in.SuccessPatterns) < successPatterns && c.Agrees() && isHighGrade(c.ClientEvaluation) {
			in.SuccessPatterns = append(in.SuccessPatterns, fmt.Sprintf("%s (%s): %s",
				c.Position, c.ClientEvaluation, headline(c.Reasoning, patternTextLimit)))
		}
	}
	return in
}

func isHighGrade(label string) bool {
	label = strings.ToUpper(strings.TrimSpace(label))
	return label == string(GradeA) || label == string(GradeB)
}

// Format renders the insights for the evaluator prompt.
func (in *Insights) Format() string {
	if in == nil || in.TotalCases == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d similar past cases were found.\n", in.TotalCases)
	if in.ClientTendency != "" {
		fmt.Fprintf(&b, "Clients most often graded them %s (%.1f%%).\n", in.ClientTendency, in.TendencyShare)
	}
	if len(in.RiskPatterns) > 0 {
		b.WriteString("\nCases where the client disagreed with the AI:\n")
		for _, p := range in.RiskPatterns {
			fmt.Fprintf(&b, "- %s\n", p)
		}
	}
	if len(in.SuccessPatterns) > 0 {
		b.WriteString("\nCases graded well by both:\n")
		for _, p := range in.SuccessPatterns {
			fmt.Fprintf(&b, "- %s\n", p)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// Retriever looks up similar past cases once per run.
type Retriever struct {
	embedder Embedder
	index    CaseIndex
	logger   *zap.Logger
}

// NewRetriever returns a retriever; with a nil embedder or index it is a
// no-op.
func NewRetriever(embedder Embedder, index CaseIndex, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{embedder: embedder, index: index, logger: logger}
}

func (r *Retriever) Name() string { return "rag" }

func (r *Retriever) Configured() bool {
	return r != nil && r.embedder != nil && r.index != nil
}

func (r *Retriever) Process(ctx context.Context, s *State) error {
	if !r.Configured() {
		r.logger.Info("vector store not configured, skipping similar cases")
		return nil
	}

	embedCtx, cancel := context.WithTimeout(ctx, embedTimeout)
	vector, err := r.embedder.Embed(embedCtx, caseQuery(s.Request()), embedding.IntentQuery)
	cancel()
	if err != nil {
		return fmt.Errorf("embed case query: %w", err)
	}

	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	hits, err := r.index.Query(queryCtx, vector, ragTopK, vectorstore.Filter{
		Equals: map[string]string{"vector_type": VectorTypeCombined},
	})
	cancel()
	if err != nil {
		return fmt.Errorf("query similar cases: %w", err)
	}

	cases := make([]Case, 0, len(hits))
	for _, h := range hits {
		if h.Similarity < ragMinSimilarity {
			continue
		}
		c, err := DecodeCase(h.Metadata)
		if err != nil {
			r.logger.Warn("skipping unreadable case", zap.String("id", h.ID), zap.Error(err))
			continue
		}
		if c.ID == "" {
			c.ID = h.ID
		}
		c.Similarity = h.Similarity
		cases = append(cases, c)
	}

	insights := BuildInsights(cases)
	s.SetInsights(insights)
	r.logger.Info("similar cases retrieved",
		zap.Int("hits", len(hits)),
		zap.Int("used", len(cases)),
		zap.String("client_tendency", insights.ClientTendency),
	)
	return nil
}

func caseQuery(req Request) string {
	return Case{
		Position: jobSignals(req).Title,
		Job:      req.Job.Requirements(),
		Resume:   req.Candidate.Resume,
	}.Document()
}
