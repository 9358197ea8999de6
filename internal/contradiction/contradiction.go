// Package contradiction detects conflicting facts between the résumé, search
// summaries and the evaluation text, and reconciles them where possible.
package contradiction

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spigell/hh-researcher/internal/ai"
)

// Kind is the class of a contradiction.
type Kind string

const (
	KindNumerical   Kind = "numerical"
	KindTemporal    Kind = "temporal"
	KindCategorical Kind = "categorical"
	KindSemantic    Kind = "semantic"
	KindScale       Kind = "scale"
)

// Severity ranks how much a contradiction matters for the verdict.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Strategy names how a contradiction was (or was not) resolved.
type Strategy string

const (
	StrategyWeightedAverage    Strategy = "weighted_average"
	StrategyRange              Strategy = "range"
	StrategyMostReliable       Strategy = "most_reliable"
	StrategyPrimarySource      Strategy = "primary_source"
	StrategyManualVerification Strategy = "manual_verification"
	StrategyExpertJudgment     Strategy = "expert_judgment"
)

// ResumeSource is the source name used for facts taken from the résumé.
const ResumeSource = "resume"

// Topics reported by the detectors.
const (
	TopicExperienceYears       = "experience_years"
	TopicSkills                = "skills"
	TopicCompanySize           = "company_size"
	TopicJobRole               = "job_role"
	TopicEvaluationConsistency = "evaluation_consistency"
	TopicConfidenceConsistency = "confidence_consistency"
	TopicCareerTimeline        = "career_timeline"
)

const (
	defaultReliability = 0.5
	rangeConfidence    = 0.6
	primaryConfidence  = 0.7
	expertConfidence   = 0.4
	timelineConfidence = 0.3
)

// Source is one side of a contradiction.
type Source struct {
	Name   string  `json:"name"`
	Value  string  `json:"value"`
	Number float64 `json:"number,omitempty"`
}

// Contradiction is a detected conflict together with its resolution.
type Contradiction struct {
	Topic         string   `json:"topic"`
	Kind          Kind     `json:"kind"`
	Severity      Severity `json:"severity"`
	First         Source   `json:"source1"`
	Second        Source   `json:"source2"`
	Strategy      Strategy `json:"resolution_strategy,omitempty"`
	Resolved      bool     `json:"resolved"`
	ResolvedValue string   `json:"resolved_value,omitempty"`
	Confidence    float64  `json:"confidence"`
	Explanation   string   `json:"explanation,omitempty"`
}

// Report summarises every contradiction found for one evaluation.
type Report struct {
	Contradictions    []Contradiction `json:"contradictions"`
	OverallConfidence float64         `json:"overall_confidence"`
	UnresolvedCount   int             `json:"unresolved_count"`
	Recommendations   []string        `json:"recommendations"`
}

// HasHighSeverity reports whether any contradiction is high severity.
func (r *Report) HasHighSeverity() bool {
	if r == nil {
		return false
	}
	for _, c := range r.Contradictions {
		if c.Severity == SeverityHigh {
			return true
		}
	}
	return false
}

// HighSeverityTopics lists the distinct topics of high severity contradictions.
func (r *Report) HighSeverityTopics() []string {
	if r == nil {
		return nil
	}
	var topics []string
	seen := make(map[string]struct{})
	for _, c := range r.Contradictions {
		if c.Severity != SeverityHigh {
			continue
		}
		if _, ok := seen[c.Topic]; ok {
			continue
		}
		seen[c.Topic] = struct{}{}
		topics = append(topics, c.Topic)
	}
	return topics
}

// Input is what the detectors look at.
type Input struct {
	ResumeText     string
	Search         map[ai.InfoType]*ai.SearchResult
	EvaluationText string
}

// Analyze detects and resolves contradictions in one pass, using the mean
// reliability of each search result as its source weight.
func Analyze(in Input) Report {
	return Resolve(Detect(in), Reliabilities(in.Search))
}

// Reliabilities maps each search source name to the mean reliability of its
// results. Sources without results are omitted.
func Reliabilities(search map[ai.InfoType]*ai.SearchResult) map[string]float64 {
	out := make(map[string]float64, len(search))
	for infoType, sr := range search {
		if sr == nil || len(sr.Results) == 0 {
			continue
		}
		var sum float64
		for _, r := range sr.Results {
			sum += r.Reliability
		}
		out[string(infoType)] = sum / float64(len(sr.Results))
	}
	return out
}

// Detect runs all detectors. Search sources are visited in info type order so
// the output is deterministic.
func Detect(in Input) []Contradiction {
	names := make([]string, 0, len(in.Search))
	for infoType, sr := range in.Search {
		if sr != nil {
			names = append(names, string(infoType))
		}
	}
	sort.Strings(names)

	summaries := make([]namedText, 0, len(names))
	for _, name := range names {
		summaries = append(summaries, namedText{name: name, text: in.Search[ai.InfoType(name)].Summary})
	}

	var out []Contradiction
	if len(summaries) > 0 {
		out = append(out, resumeVsSearch(in.ResumeText, summaries)...)
	}
	if len(summaries) > 1 {
		out = append(out, betweenSearches(summaries)...)
	}
	out = append(out, withinEvaluation(in.EvaluationText)...)
	out = append(out, timelineOverlaps(in.ResumeText)...)
	return out
}

type namedText struct {
	name string
	text string
}

// Resolve applies the per-kind resolution strategy to every contradiction.
func Resolve(found []Contradiction, reliability map[string]float64) Report {
	resolved := make([]Contradiction, len(found))
	unresolved := 0
	var confidenceSum float64
	for i, c := range found {
		c = resolveOne(c, reliability)
		if !c.Resolved {
			unresolved++
		}
		confidenceSum += c.Confidence
		resolved[i] = c
	}

	overall := 1.0
	if len(resolved) > 0 {
		overall = confidenceSum / float64(len(resolved))
	}

	return Report{
		Contradictions:    resolved,
		OverallConfidence: overall,
		UnresolvedCount:   unresolved,
		Recommendations:   recommendations(resolved, unresolved),
	}
}

func resolveOne(c Contradiction, reliability map[string]float64) Contradiction {
	switch c.Kind {
	case KindNumerical:
		if len(reliability) > 0 {
			w1 := weightOf(reliability, c.First.Name)
			w2 := weightOf(reliability, c.Second.Name)
			if w1+w2 > 0 {
				c.Resolved = true
				c.Strategy = StrategyWeightedAverage
				c.ResolvedValue = formatNumber((c.First.Number*w1 + c.Second.Number*w2) / (w1 + w2))
				c.Confidence = max(w1, w2)
				c.Explanation = fmt.Sprintf("weighted by source reliability (%.2f:%.2f)", w1, w2)
				return c
			}
		}
		lo, hi := min(c.First.Number, c.Second.Number), max(c.First.Number, c.Second.Number)
		c.Resolved = true
		c.Strategy = StrategyRange
		c.ResolvedValue = formatNumber(lo) + "-" + formatNumber(hi)
		c.Confidence = rangeConfidence
		c.Explanation = "expressed as a range"

	case KindCategorical:
		if len(reliability) > 0 {
			w1 := weightOf(reliability, c.First.Name)
			w2 := weightOf(reliability, c.Second.Name)
			if w1 != w2 {
				pick, conf := c.First, w1
				if w2 > w1 {
					pick, conf = c.Second, w2
				}
				c.Resolved = true
				c.Strategy = StrategyMostReliable
				c.ResolvedValue = pick.Value
				c.Confidence = conf
				c.Explanation = fmt.Sprintf("took %s (reliability %.2f)", pick.Name, conf)
				return c
			}
		}
		switch {
		case c.First.Name == ResumeSource || c.Second.Name == ResumeSource:
			pick := c.First
			if c.Second.Name == ResumeSource {
				pick = c.Second
			}
			c.Resolved = true
			c.Strategy = StrategyPrimarySource
			c.ResolvedValue = pick.Value
			c.Confidence = primaryConfidence
			c.Explanation = "résumé preferred on equal reliability"
		case len(reliability) > 0:
			c.Resolved = true
			c.Strategy = StrategyMostReliable
			c.ResolvedValue = c.First.Value
			c.Confidence = weightOf(reliability, c.First.Name)
			c.Explanation = "sources equally reliable, first source kept"
		default:
			c.Strategy = StrategyExpertJudgment
			c.Confidence = expertConfidence
			c.Explanation = "needs expert judgement"
		}

	case KindTemporal:
		c.Resolved = false
		c.Strategy = StrategyManualVerification
		c.Confidence = timelineConfidence
		c.Explanation = "employment periods overlap, verify manually"

	case KindSemantic:
		c.Resolved = false
		c.Strategy = StrategyManualVerification
		if c.Topic == TopicSkills {
			c.Strategy = StrategyExpertJudgment
		}
		c.Confidence = expertConfidence
		c.Explanation = "meaning conflicts, needs review"

	case KindScale:
		c.Resolved = true
		c.Strategy = StrategyRange
		c.ResolvedValue = c.First.Value + "~" + c.Second.Value
		c.Confidence = rangeConfidence
		c.Explanation = "sources disagree, expressed as a range"
	}
	return c
}

func weightOf(reliability map[string]float64, name string) float64 {
	if w, ok := reliability[name]; ok {
		return w
	}
	return defaultReliability
}

func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.1f", v)
}

func recommendations(found []Contradiction, unresolved int) []string {
	var out []string
	if unresolved > 0 {
		out = append(out, fmt.Sprintf("%d unresolved contradiction(s); confirm them in the interview.", unresolved))
	}

	r := Report{Contradictions: found}
	if topics := r.HighSeverityTopics(); len(topics) > 0 {
		out = append(out, fmt.Sprintf("High severity contradictions detected: %s. Review them carefully.", strings.Join(topics, ", ")))
	}

	var temporal, numerical, manual int
	var scale []Contradiction
	for _, c := range found {
		switch c.Kind {
		case KindTemporal:
			temporal++
		case KindNumerical:
			numerical++
		case KindScale:
			scale = append(scale, c)
		}
		if c.Strategy == StrategyManualVerification {
			manual++
		}
	}

	if temporal > 0 {
		out = append(out, "Employment periods overlap; re-check the career history.")
	}
	if numerical > 0 {
		out = append(out, "Numeric facts such as years of experience disagree; confirm the exact figures.")
	}
	for _, c := range scale {
		out = append(out, fmt.Sprintf("Company size differs between sources (%s vs %s); verify the company size with the client or official filings.", c.First.Value, c.Second.Value))
	}
	if manual > 0 {
		out = append(out, fmt.Sprintf("%d item(s) need manual verification.", manual))
	}
	return out
}

// Format renders the report as markdown for prompts and logs.
func (r *Report) Format() string {
	if r == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("# Contradiction report\n")
	fmt.Fprintf(&b, "\nOverall confidence: %.0f%%\n", r.OverallConfidence*100)

	if len(r.Contradictions) > 0 {
		fmt.Fprintf(&b, "\n## Detected contradictions (%d)\n", len(r.Contradictions))
		for _, sev := range []Severity{SeverityHigh, SeverityMedium, SeverityLow} {
			for _, c := range r.Contradictions {
				if c.Severity != sev {
					continue
				}
				fmt.Fprintf(&b, "\n**%s** (%s, %s)\n", c.Topic, c.Kind, c.Severity)
				fmt.Fprintf(&b, "- %s: %s\n", c.First.Name, c.First.Value)
				fmt.Fprintf(&b, "- %s: %s\n", c.Second.Name, c.Second.Value)
				if c.Resolved {
					fmt.Fprintf(&b, "- resolved: %s (%s, confidence %.0f%%)\n", c.ResolvedValue, c.Strategy, c.Confidence*100)
				} else {
					fmt.Fprintf(&b, "- unresolved: %s\n", c.Strategy)
				}
			}
		}
	}

	if len(r.Recommendations) > 0 {
		b.WriteString("\n## Recommendations\n")
		for _, rec := range r.Recommendations {
			fmt.Fprintf(&b, "- %s\n", rec)
		}
	}
	return b.String()
}
