package research

import (
	"fmt"
	"strings"

	"github.com/spigell/hh-researcher/internal/weights"
)

// Report renders the evaluation with its full breakdown as markdown.
func (e *EvaluationResult) Report() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# Evaluation\n\nScore: %d/100 (%s confidence)\n", e.Score, e.Confidence)
	if e.Adjustment.ModelScore != e.Score {
		fmt.Fprintf(&b, "Model score: %d", e.Adjustment.ModelScore)
		if e.Adjustment.RuleScore != nil {
			fmt.Fprintf(&b, ", rule score: %d", *e.Adjustment.RuleScore)
		}
		if e.Adjustment.CareerPenalty > 0 {
			fmt.Fprintf(&b, ", career gap -%d", e.Adjustment.CareerPenalty)
		}
		if e.Adjustment.TenureDelta != 0 {
			fmt.Fprintf(&b, ", tenure %+d (x%.2f)", e.Adjustment.TenureDelta, e.Adjustment.TenureFactor)
		}
		b.WriteString("\n")
	}

	for _, dim := range weights.Dimensions {
		cat, ok := e.Breakdown[dim]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "\n## %s: %g/%g (weight %s)\n\n", capitalise(dim.Label()), cat.Score, cat.Max, percent(e.Weights.Get(dim)))
		for _, it := range cat.Items {
			fmt.Fprintf(&b, "- %s: %g/%g", it.Name, it.Score, it.Max)
			if it.Evidence != "" {
				fmt.Fprintf(&b, " - %s", it.Evidence)
			}
			b.WriteString("\n")
		}
		if cat.Reasoning != "" {
			fmt.Fprintf(&b, "\n%s\n", cat.Reasoning)
		}
	}

	section := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(&b, "\n## %s\n\n", title)
		for _, it := range items {
			fmt.Fprintf(&b, "- %s\n", it)
		}
	}
	section("Strengths", e.Strengths)
	section("Concerns", e.Concerns)
	section("Required items not evidenced", e.Missing)

	if e.Summary != "" {
		fmt.Fprintf(&b, "\n## Summary\n\n%s\n", e.Summary)
	}
	for _, extra := range []string{e.Career.Format(), e.Tenure.Format(), e.Uncertainty.Format(), e.Contradictions.Format()} {
		if extra = strings.TrimSpace(extra); extra != "" {
			fmt.Fprintf(&b, "\n%s\n", extra)
		}
	}
	return b.String()
}

func capitalise(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
