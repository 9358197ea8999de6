package research

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/spigell/hh-researcher/internal/ai"
	"github.com/spigell/hh-researcher/internal/utils"
	"github.com/spigell/hh-researcher/internal/weights"
)

const maxListItems = 5

var (
	scoreLine      = regexp.MustCompile(`(?i)^(?:適合度スコア|(?:fit |overall |final |match )?score)\s*[:：]\s*(\d{1,3})`)
	confidenceLine = regexp.MustCompile(`(?i)^(?:確信度|confidence)\s*[:：]\s*(.+)$`)
	itemLine       = regexp.MustCompile(`^(.+?)\s*[:：]\s*(\d+(?:\.\d+)?)\s*/\s*(\d+(?:\.\d+)?)\s*(?:点|points?|pts)?\s*(?:[-–—]\s*(.*))?$`)
	subtotalName   = regexp.MustCompile(`(?i)^(?:小計|sub-?total|total)$`)
	pointsMarker   = regexp.MustCompile(`(?i)\d+\s*(?:点満点|points|pts)`)

	strengthsHeader = regexp.MustCompile(`(?i)^(?:主な強み|key strengths|strengths)\s*[:：]?\s*$`)
	concernsHeader  = regexp.MustCompile(`(?i)^(?:主な懸念点?|key concerns|concerns)\s*[:：]?\s*$`)
	summaryHeader   = regexp.MustCompile(`(?i)^(?:評価サマリー|evaluation summary|summary)\s*[:：]?\s*(.*)$`)
)

var categoryHeaders = []struct {
	dim weights.Dimension
	re  *regexp.Regexp
}{
	{dim: weights.RequiredSkills, re: regexp.MustCompile(`(?i)必須要件|required`)},
	{dim: weights.PracticalAbility, re: regexp.MustCompile(`(?i)実務遂行能力|practical`)},
	{dim: weights.PreferredSkills, re: regexp.MustCompile(`(?i)歓迎要件|preferred`)},
	{dim: weights.OrganisationalFit, re: regexp.MustCompile(`(?i)組織適合|organi[sz]ational fit|culture fit`)},
	{dim: weights.OutstandingCareer, re: regexp.MustCompile(`(?i)突出した経歴|outstanding`)},
}

type section int

const (
	sectionNone section = iota
	sectionStrengths
	sectionConcerns
	sectionSummary
)

// ParseEvaluation reads the evaluator response. Labelled sections are
// preferred; a JSON answer is accepted as a fallback. Only a missing score is
// an error.
func ParseEvaluation(text string) (*EvaluationResult, error) {
	ev := &EvaluationResult{Raw: text}
	score, hasScore := -1, false
	confidence := ""
	var summary []string

	current := sectionNone
	var category weights.Dimension
	subtotal := map[weights.Dimension]bool{}

	for _, rawLine := range strings.Split(text, "\n") {
		line := strings.TrimSpace(strings.ReplaceAll(rawLine, "**", ""))
		if line == "" {
			continue
		}
		label := strings.TrimSpace(strings.TrimLeft(line, "#"))
		item, bullet := bulletText(line)

		if !bullet {
			if m := scoreLine.FindStringSubmatch(label); m != nil {
				if !hasScore {
					score, _ = strconv.Atoi(m[1])
					hasScore = true
				}
				continue
			}
			if m := confidenceLine.FindStringSubmatch(label); m != nil {
				confidence = m[1]
				continue
			}
			switch {
			case strengthsHeader.MatchString(label):
				current, category = sectionStrengths, ""
				continue
			case concernsHeader.MatchString(label):
				current, category = sectionConcerns, ""
				continue
			}
			if m := summaryHeader.FindStringSubmatch(label); m != nil {
				current, category = sectionSummary, ""
				if rest := strings.TrimSpace(m[1]); rest != "" {
					summary = append(summary, rest)
				}
				continue
			}
			if dim, ok := categoryHeader(line); ok {
				current, category = sectionNone, dim
				if ev.Breakdown == nil {
					ev.Breakdown = make(map[weights.Dimension]CategoryScore)
				}
				ev.Breakdown[dim] = CategoryScore{Max: CategoryMax[dim]}
				continue
			}
		}

		if category != "" {
			if m := itemLine.FindStringSubmatch(item); m != nil {
				name := strings.TrimSpace(m[1])
				got, _ := strconv.ParseFloat(m[2], 64)
				limit, _ := strconv.ParseFloat(m[3], 64)
				cat := ev.Breakdown[category]
				if subtotalName.MatchString(name) {
					cat.Score = got
					subtotal[category] = true
				} else {
					cat.Items = append(cat.Items, Item{Name: name, Score: got, Max: limit, Evidence: strings.TrimSpace(m[4])})
				}
				ev.Breakdown[category] = cat
				continue
			}
			if !bullet {
				cat := ev.Breakdown[category]
				cat.Reasoning = strings.TrimSpace(cat.Reasoning + " " + line)
				ev.Breakdown[category] = cat
			}
			continue
		}

		switch current {
		case sectionStrengths:
			if bullet && len(ev.Strengths) < maxListItems {
				ev.Strengths = append(ev.Strengths, item)
			}
		case sectionConcerns:
			if bullet && len(ev.Concerns) < maxListItems {
				ev.Concerns = append(ev.Concerns, item)
			}
		case sectionSummary:
			summary = append(summary, item)
		}
	}

	for dim, cat := range ev.Breakdown {
		if subtotal[dim] {
			continue
		}
		for _, it := range cat.Items {
			cat.Score += it.Score
		}
		cat.Score = math.Min(cat.Score, cat.Max)
		ev.Breakdown[dim] = cat
	}

	if !hasScore {
		fallback, ok := parseEvaluationJSON(text)
		if !ok {
			return nil, &ParseError{Reason: "no score found", Raw: text}
		}
		return fallback, nil
	}

	ev.Score = clampScore(score)
	ev.Confidence = confidenceOrLow(confidence)
	ev.Summary = strings.Join(summary, " ")
	return ev, nil
}

func bulletText(line string) (string, bool) {
	for _, prefix := range []string{"- ", "* ", "・", "• ", "+ "} {
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, prefix)), true
		}
	}
	return line, false
}

func categoryHeader(line string) (weights.Dimension, bool) {
	if !strings.HasPrefix(line, "#") {
		if !pointsMarker.MatchString(line) || itemLine.MatchString(line) {
			return "", false
		}
	}
	for _, h := range categoryHeaders {
		if h.re.MatchString(line) {
			return h.dim, true
		}
	}
	return "", false
}

func confidenceOrLow(raw string) ai.Confidence {
	if strings.TrimSpace(raw) == "" {
		return ai.ConfidenceLow
	}
	return ai.ParseConfidence(raw)
}

func clampScore(score int) int {
	return max(0, min(100, score))
}

type jsonItem struct {
	Name     string `json:"name"`
	Score    any    `json:"score"`
	Max      any    `json:"max_score"`
	Evidence string `json:"evidence"`
}

type jsonCategory struct {
	Score     any        `json:"score"`
	Items     []jsonItem `json:"items"`
	Reasoning string     `json:"reasoning"`
}

type jsonEvaluation struct {
	Score      any                     `json:"score"`
	Confidence any                     `json:"confidence"`
	Strengths  []string                `json:"strengths"`
	Concerns   []string                `json:"concerns"`
	Summary    string                  `json:"summary"`
	Breakdown  map[string]jsonCategory `json:"breakdown"`
}

func parseEvaluationJSON(text string) (*EvaluationResult, bool) {
	if !strings.ContainsAny(text, "{") {
		return nil, false
	}
	var decoded jsonEvaluation
	if err := utils.DecodeLenient(text, &decoded); err != nil {
		return nil, false
	}
	score := utils.CoerceFloat(decoded.Score)
	if math.IsNaN(score) {
		return nil, false
	}

	ev := &EvaluationResult{
		Score:      clampScore(int(math.Round(score))),
		Confidence: confidenceOrLow(utils.CoerceString(decoded.Confidence)),
		Strengths:  limit(decoded.Strengths, maxListItems),
		Concerns:   limit(decoded.Concerns, maxListItems),
		Summary:    strings.TrimSpace(decoded.Summary),
		Raw:        text,
	}
	for _, dim := range weights.Dimensions {
		cat, ok := decoded.Breakdown[string(dim)]
		if !ok {
			continue
		}
		if ev.Breakdown == nil {
			ev.Breakdown = make(map[weights.Dimension]CategoryScore)
		}
		out := CategoryScore{Max: CategoryMax[dim], Reasoning: cat.Reasoning}
		for _, it := range cat.Items {
			out.Items = append(out.Items, Item{
				Name:     it.Name,
				Score:    nonNaN(utils.CoerceFloat(it.Score)),
				Max:      nonNaN(utils.CoerceFloat(it.Max)),
				Evidence: it.Evidence,
			})
		}
		out.Score = nonNaN(utils.CoerceFloat(cat.Score))
		ev.Breakdown[dim] = out
	}
	return ev, true
}

func nonNaN(f float64) float64 {
	if math.IsNaN(f) {
		return 0
	}
	return f
}

func limit(items []string, n int) []string {
	if len(items) > n {
		return append([]string(nil), items[:n]...)
	}
	return items
}
