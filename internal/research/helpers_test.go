package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spigell/hh-researcher/internal/ai"
	"github.com/spigell/hh-researcher/internal/websearch"
)

var now = time.Date(2026, time.October, 18, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return now }

func intPtr(n int) *int { return &n }

const (
	callEvaluate = "evaluate"
	callGaps     = "gaps"
	callReport   = "report"
	callSummary  = "summary"
	callSkill    = "skill"
)

// scriptedLLM answers each kind of prompt from its own queue. The last
// answer of a queue is repeated once the queue runs dry.
type scriptedLLM struct {
	mu        sync.Mutex
	answers   map[string][]string
	failures  map[string]error
	prompts   map[string][]string
	summaryFn func(prompt string) string
}

func newScriptedLLM() *scriptedLLM {
	return &scriptedLLM{
		answers:  make(map[string][]string),
		failures: make(map[string]error),
		prompts:  make(map[string][]string),
	}
}

func (l *scriptedLLM) on(kind string, answers ...string) *scriptedLLM {
	l.answers[kind] = append(l.answers[kind], answers...)
	return l
}

func (l *scriptedLLM) fail(kind string, err error) *scriptedLLM {
	l.failures[kind] = err
	return l
}

func (l *scriptedLLM) calls(kind string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.prompts[kind])
}

func (l *scriptedLLM) prompt(kind string, i int) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i >= len(l.prompts[kind]) {
		return ""
	}
	return l.prompts[kind][i]
}

func classifyPrompt(prompt string) string {
	switch {
	case strings.Contains(prompt, "screening one position"):
		return callSkill
	case strings.Contains(prompt, "# Scoring categories"):
		return callEvaluate
	case strings.Contains(prompt, "Info 1:"):
		return callGaps
	case strings.Contains(prompt, "# Grading rules"):
		return callReport
	default:
		return callSummary
	}
}

func (l *scriptedLLM) Complete(_ context.Context, prompt string, _ ai.Tier) (string, error) {
	kind := classifyPrompt(prompt)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.prompts[kind] = append(l.prompts[kind], prompt)
	if err := l.failures[kind]; err != nil {
		return "", err
	}
	if kind == callSummary && l.summaryFn != nil {
		return l.summaryFn(prompt), nil
	}
	queue := l.answers[kind]
	if len(queue) == 0 {
		return "", fmt.Errorf("no scripted answer for %s", kind)
	}
	answer := queue[0]
	if len(queue) > 1 {
		l.answers[kind] = queue[1:]
	}
	return answer, nil
}

// stubWeb returns canned results per query.
type stubWeb struct {
	mu      sync.Mutex
	results map[string][]ai.WebResult
	errs    map[string]error
	queries []string
}

func newStubWeb() *stubWeb {
	return &stubWeb{results: make(map[string][]ai.WebResult), errs: make(map[string]error)}
}

func (w *stubWeb) Search(_ context.Context, query string, _ websearch.Depth, _ int) ([]ai.WebResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.queries = append(w.queries, query)
	if err := w.errs[query]; err != nil {
		return nil, err
	}
	if r, ok := w.results[query]; ok {
		return r, nil
	}
	published := now.AddDate(0, -1, 0)
	return []ai.WebResult{{
		Title:       "Result for " + query,
		Content:     "Detailed article about " + query + " with figures from 2026.",
		URL:         "https://example.org/" + strings.ReplaceAll(query, " ", "-"),
		PublishedAt: &published,
		Source:      ai.SourceWeb,
	}}, nil
}

func (w *stubWeb) searched() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.queries...)
}

var errProvider = errors.New("provider exploded")

func evaluationText(score int, confidence string, required ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Score: %d\nConfidence: %s\n\n## Required skills (45 points)\n", score, confidence)
	for _, r := range required {
		fmt.Fprintf(&b, "- %s: 20/22.5 - used daily in production\n", r)
	}
	b.WriteString("- Subtotal: 40/45\n\n## Practical ability (25 points)\n- Delivery: 20/25 - shipped several services\n\n")
	b.WriteString("## Organisational fit (10 points)\n- Company size: 6/10 - similar sized employers\n\n")
	b.WriteString("Strengths:\n- Strong backend experience\n- Production Kubernetes\n\n")
	b.WriteString("Concerns:\n- Limited people management\n\n")
	b.WriteString("Summary: Solid engineer for the role.\n")
	return b.String()
}

func baseRequest() Request {
	return Request{
		Candidate: CandidateSpec{
			Resume:  "Backend engineer with 7 years of Go and Kubernetes experience at Acme Corp.",
			Company: "Acme Corp",
		},
		Job: JobSpec{
			Description: "Backend engineer\nBuild payment services in Go.",
			Memo:        "Needs Go and Kubernetes.",
			Structured: &StructuredJob{
				Position:           "Backend engineer",
				RequiredSkills:     []string{"Go", "Kubernetes"},
				ExperienceYearsMin: intPtr(5),
			},
		},
	}
}
