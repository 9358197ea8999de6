// Package uncertainty decomposes how certain an evaluation is into five
// weighted factors.
package uncertainty

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/spigell/hh-researcher/internal/ai"
)

const (
	weightMissing       = 0.30
	weightAmbiguous     = 0.25
	weightContradictory = 0.20
	weightIndirect      = 0.15
	weightTemporal      = 0.10

	maxRequirementKeywords = 20
)

// Level is the coarse uncertainty label.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Factors are the five uncertainty sources, each in [0,1].
type Factors struct {
	MissingInformation   float64 `json:"missing_information"`
	AmbiguousExperience  float64 `json:"ambiguous_experience"`
	ContradictorySignals float64 `json:"contradictory_signals"`
	IndirectEvidence     float64 `json:"indirect_evidence"`
	TemporalUncertainty  float64 `json:"temporal_uncertainty"`
}

// Total is the weighted sum, capped at 1.
func (f Factors) Total() float64 {
	sum := f.MissingInformation*weightMissing +
		f.AmbiguousExperience*weightAmbiguous +
		f.ContradictorySignals*weightContradictory +
		f.IndirectEvidence*weightIndirect +
		f.TemporalUncertainty*weightTemporal
	return math.Min(sum, 1.0)
}

// Report is the uncertainty decomposition of one evaluation.
type Report struct {
	Factors         Factors  `json:"factors"`
	Total           float64  `json:"total_uncertainty"`
	Confidence      float64  `json:"confidence_level"`
	Level           Level    `json:"uncertainty_level"`
	KeyFactors      []string `json:"key_uncertainties"`
	Recommendations []string `json:"recommendations"`
}

// Input carries the texts the heuristics read.
type Input struct {
	EvaluationText string
	ResumeText     string
	// Requirements is the free-text job requirement section. RequiredSkills,
	// when set, replaces keyword extraction from it.
	Requirements   string
	RequiredSkills []string
	Search         map[ai.InfoType]*ai.SearchResult
}

type keyword struct {
	re     *regexp.Regexp
	weight float64
}

func words(weight float64, list ...string) []keyword {
	out := make([]keyword, 0, len(list))
	for _, w := range list {
		out = append(out, keyword{re: termPattern(w), weight: weight})
	}
	return out
}

// termPattern matches ASCII terms on word boundaries and everything else as a
// plain substring.
func termPattern(term string) *regexp.Regexp {
	quoted := regexp.QuoteMeta(term)
	for _, r := range term {
		if r > 127 {
			return regexp.MustCompile(quoted)
		}
	}
	return regexp.MustCompile(`(?i)\b` + quoted + `\b`)
}

func countMatches(text string, keywords []keyword) int {
	n := 0
	for _, k := range keywords {
		if k.re.MatchString(text) {
			n++
		}
	}
	return n
}

var (
	uncertaintyKeywords = concat(
		words(0.8, "推測", "かもしれない", "確認できない", "曖昧", "might", "cannot confirm", "not stated", "ambiguous"),
		words(0.7, "可能性", "思われる", "判断が難しい", "明確でない", "推定", "想定", "unclear", "possibly", "presumably", "assume"),
		words(0.9, "不明", "unknown"),
		words(0.6, "おそらく", "恐らく", "だろう", "予想", "probably", "seems"),
	)
	missingPhrases = words(0.2, "情報が不足", "確認できない", "記載がない", "不明", "判断材料が少ない",
		"insufficient information", "not mentioned", "not stated", "unknown", "cannot confirm", "no information")
	experienceMarkers = words(0, "経験", "実績", "担当", "開発", "プロジェクト",
		"experience", "project", "projects", "developed", "responsible", "worked", "built", "led")
	ambiguousMarkers = words(0, "関わった", "サポート", "補助", "一部", "など", "等", "様々な", "いくつかの", "複数の",
		"involved in", "supported", "assisted", "helped", "various", "several", "etc", "some")
	contradictionMarkers = words(0.15, "一方で", "しかし", "ただし", "反面", "逆に", "矛盾", "不一致",
		"however", "on the other hand", "although", "contradicts", "inconsistent", "mismatch")
	searchConflictMarkers = words(0.2, "矛盾", "不一致", "contradict", "contradictory", "inconsistent", "conflicting")
	indirectMarkers       = words(0.1, "類似", "関連", "近い", "似た", "代替", "転用可能", "応用可能",
		"similar", "related", "comparable", "transferable", "adjacent", "equivalent")
	noDirectPattern = regexp.MustCompile(`(?i)直接的な経験.*ない|\bno direct experience\b|\blacks? direct\b|\bwithout direct\b`)
	yearsAgoPattern = regexp.MustCompile(`(?i)(\d+)\s*年前|(\d+)\s*years?\s+ago`)
	temporalMarkers = concat(
		words(0.1, "最近", "recently"),
		words(0.0, "現在", "currently"),
		words(0.3, "過去に", "in the past"),
		words(0.4, "以前", "previously", "formerly"),
	)
	oldExperiencePattern = regexp.MustCompile(`(?i)過去の経験|以前の|\bpast experience\b`)
	requirementLine      = regexp.MustCompile(`(?im)^\s*(?:必須|必要|求める|required|requirements?|must)\s*[:：]\s*(.+)$`)
	bulletLine           = regexp.MustCompile(`(?m)^\s*(?:・|-|\*|•)\s*(.+)$`)
)

func concat(groups ...[]keyword) []keyword {
	var out []keyword
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// Quantify computes the uncertainty report.
func Quantify(in Input) Report {
	f := Factors{
		MissingInformation:   missingInformation(in),
		AmbiguousExperience:  ambiguousExperience(in.ResumeText, in.EvaluationText),
		ContradictorySignals: contradictorySignals(in.EvaluationText, in.Search),
		IndirectEvidence:     indirectEvidence(in.EvaluationText),
		TemporalUncertainty:  temporalUncertainty(in.ResumeText, in.EvaluationText),
	}

	total := f.Total()
	level := LevelHigh
	switch {
	case total < 0.3:
		level = LevelLow
	case total < 0.6:
		level = LevelMedium
	}

	r := Report{
		Factors:    f,
		Total:      total,
		Confidence: 1 - total,
		Level:      level,
	}

	checks := []struct {
		value     float64
		threshold float64
		factor    string
		advice    string
	}{
		{f.MissingInformation, 0.5, "important information is missing", "Confirm the missing information in the interview."},
		{f.AmbiguousExperience, 0.5, "experience details are ambiguous", "Ask for concrete achievements and the candidate's exact role."},
		{f.ContradictorySignals, 0.3, "contradictory signals are present", "Clarify the contradictions with the candidate."},
		{f.IndirectEvidence, 0.4, "direct evidence is lacking", "Consider a skills test or practical assignment."},
		{f.TemporalUncertainty, 0.5, "experience is dated and current ability is unclear", "Check recent experience and current skill level."},
	}
	for _, c := range checks {
		if c.value > c.threshold {
			r.KeyFactors = append(r.KeyFactors, c.factor)
			r.Recommendations = append(r.Recommendations, c.advice)
		}
	}
	return r
}

func missingInformation(in Input) float64 {
	required := in.RequiredSkills
	if len(required) == 0 {
		required = RequirementKeywords(in.Requirements)
	}

	var u float64
	if len(required) > 0 {
		resume := strings.ToLower(in.ResumeText)
		uncovered := 0
		for _, kw := range required {
			if !strings.Contains(resume, strings.ToLower(strings.TrimSpace(kw))) {
				uncovered++
			}
		}
		u += float64(uncovered) / float64(len(required)) * 0.6
	}
	if countMatches(in.EvaluationText, missingPhrases) > 0 {
		u += 0.2
	}
	return math.Min(u, 1)
}

// RequirementKeywords extracts requirement items from free text: labelled
// requirement lines and bullet points.
func RequirementKeywords(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, re := range []*regexp.Regexp{requirementLine, bulletLine} {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			item := strings.TrimSpace(m[1])
			if item == "" {
				continue
			}
			key := strings.ToLower(item)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, item)
			if len(out) == maxRequirementKeywords {
				return out
			}
		}
	}
	return out
}

func ambiguousExperience(resume, evaluation string) float64 {
	var u float64
	total, ambiguous := 0, 0
	for _, line := range strings.Split(resume, "\n") {
		if countMatches(line, experienceMarkers) == 0 {
			continue
		}
		total++
		if countMatches(line, ambiguousMarkers) > 0 {
			ambiguous++
		}
	}
	if total > 0 {
		u += float64(ambiguous) / float64(total) * 0.5
	}
	for _, k := range uncertaintyKeywords {
		if k.re.MatchString(evaluation) {
			u += k.weight * 0.1
		}
	}
	return math.Min(u, 1)
}

func contradictorySignals(evaluation string, search map[ai.InfoType]*ai.SearchResult) float64 {
	u := float64(countMatches(evaluation, contradictionMarkers)) * 0.15
	for _, sr := range search {
		if sr != nil && countMatches(sr.Summary, searchConflictMarkers) > 0 {
			u += 0.2
			break
		}
	}
	return math.Min(u, 1)
}

func indirectEvidence(evaluation string) float64 {
	u := float64(countMatches(evaluation, indirectMarkers)) * 0.1
	if noDirectPattern.MatchString(evaluation) {
		u += 0.3
	}
	return math.Min(u, 1)
}

func temporalUncertainty(resume, evaluation string) float64 {
	text := resume + " " + evaluation
	var u float64
	for _, m := range yearsAgoPattern.FindAllStringSubmatch(text, -1) {
		raw := m[1]
		if raw == "" {
			raw = m[2]
		}
		if n, err := strconv.Atoi(raw); err == nil {
			u = math.Max(u, math.Min(float64(n)*0.1, 0.8))
		}
	}
	for _, k := range temporalMarkers {
		if k.re.MatchString(text) {
			u = math.Max(u, k.weight)
		}
	}
	if oldExperiencePattern.MatchString(evaluation) {
		u = math.Max(u, 0.3)
	}
	return math.Min(u, 1)
}

// Format renders a compact summary for prompts and reports.
func (r *Report) Format() string {
	if r == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Evaluation confidence: %.0f%% (uncertainty %s)\n", r.Confidence*100, r.Level)
	if len(r.KeyFactors) > 0 {
		b.WriteString("\nKey uncertainties:\n")
		for _, k := range r.KeyFactors {
			fmt.Fprintf(&b, "- %s\n", k)
		}
	}
	if len(r.Recommendations) > 0 {
		b.WriteString("\nRecommended actions:\n")
		for _, rec := range r.Recommendations {
			fmt.Fprintf(&b, "- %s\n", rec)
		}
	}
	b.WriteString("\nBreakdown:\n")
	fmt.Fprintf(&b, "- missing information: %.0f%%\n", r.Factors.MissingInformation*100)
	fmt.Fprintf(&b, "- ambiguous experience: %.0f%%\n", r.Factors.AmbiguousExperience*100)
	fmt.Fprintf(&b, "- contradictory signals: %.0f%%\n", r.Factors.ContradictorySignals*100)
	fmt.Fprintf(&b, "- indirect evidence: %.0f%%\n", r.Factors.IndirectEvidence*100)
	fmt.Fprintf(&b, "- temporal: %.0f%%\n", r.Factors.TemporalUncertainty*100)
	return b.String()
}
