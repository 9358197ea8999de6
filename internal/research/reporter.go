package research

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	_ "embed"

	"github.com/spigell/hh-researcher/internal/ai"
	"github.com/spigell/hh-researcher/internal/tenure"
	"github.com/spigell/hh-researcher/internal/utils"
	"go.uber.org/zap"
)

//go:embed reporter_prompt.md
var reporterTemplate string

const (
	maxReportItems = 3

	gradeAScore       = 71
	gradeBScore       = 51
	gradeCScore       = 31
	gradeAExperience  = 5.0
	gradeBRequiredMin = 0.7
)

var (
	recommendationLabel = regexp.MustCompile(`(?i)^(?:推奨度|recommendation)\s*[:：]\s*(.*)$`)
	reasonLabel         = regexp.MustCompile(`(?i)^(?:判定理由|reason)\s*[:：]\s*(.*)$`)
	reportStrengths     = regexp.MustCompile(`(?i)^(?:主な強み|強み|strengths)\s*[:：]?\s*$`)
	reportConcerns      = regexp.MustCompile(`(?i)^(?:主な懸念点?|懸念点?|concerns)\s*[:：]?\s*$`)
	overallLabel        = regexp.MustCompile(`(?i)^(?:総合評価|overall assessment)\s*[:：]?\s*(.*)$`)
	gradeLetter         = regexp.MustCompile(`(?:^|[^A-Za-z])([ABCD])(?:[^A-Za-z]|$)`)
	tenureMention       = regexp.MustCompile(`(?i)tenure|job change|job-hopping|転職|在籍`)
)

var bandSentences = map[Grade]string{
	GradeA: "Based on this experience the candidate is a strong fit for the position.",
	GradeB: "The candidate broadly meets the requirements and is expected to perform well in the role.",
	GradeC: "Some requirements are met, but the details need to be confirmed in an interview.",
	GradeD: "The candidate's fit with the required items is currently low.",
}

// Reporter turns the final evaluation into a graded recommendation.
type Reporter struct {
	llm       ai.Completer
	maxLogLen int
	logger    *zap.Logger
}

func NewReporter(llm ai.Completer, logger *zap.Logger, maxLogLength int) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	return &Reporter{llm: llm, maxLogLen: maxLogLength, logger: logger}
}

func (r *Reporter) Name() string { return "report" }

// Process never fails: when the model is unavailable the judgement is built
// from the evaluation alone.
func (r *Reporter) Process(ctx context.Context, s *State) error {
	ev := s.Evaluation()
	if ev == nil || r.llm == nil || ctx.Err() != nil {
		s.SetFinal(Fallback(ev))
		return nil
	}
	band := Band(ev)

	prompt := r.buildPrompt(s, ev, band)
	r.logger.Debug("report request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, r.maxLogLen)),
	)
	raw, err := r.llm.Complete(ctx, prompt, ai.TierDeep)
	if err != nil {
		r.logger.Warn("report generation failed, using deterministic report", zap.Error(err))
		s.SetFinal(Fallback(ev))
		return nil
	}
	r.logger.Debug("report response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, r.maxLogLen)),
	)

	j := ParseJudgement(raw)
	if j.Recommendation < band {
		r.logger.Info("recommendation capped",
			zap.String("model", string(j.Recommendation)),
			zap.String("allowed", string(band)),
		)
	}
	s.SetFinal(finalise(j, ev, band))
	return nil
}

// Band is the best grade the rules allow for ev.
func Band(ev *EvaluationResult) Grade {
	if ev == nil || len(ev.Missing) > 0 {
		return GradeD
	}
	coverage, ok := ev.RequiredCoverage()
	if !ok {
		coverage = 1
	}
	var g Grade
	switch {
	case ev.Score < gradeCScore:
		g = GradeD
	case ev.Score >= gradeAScore && coverage == 1 && ev.ExperienceYears >= gradeAExperience:
		g = GradeA
	case ev.Score >= gradeBScore && coverage >= gradeBRequiredMin:
		g = GradeB
	default:
		g = GradeC
	}
	if g == GradeA && tenureRisk(ev.Tenure) {
		g = GradeB
	}
	return g
}

func tenureRisk(t *tenure.Assessment) bool {
	return t != nil && t.Frequency == tenure.FrequencyTooMany
}

// Fallback builds the judgement without a model call.
func Fallback(ev *EvaluationResult) FinalJudgement {
	if ev == nil {
		return FinalJudgement{
			Recommendation:    GradeD,
			Reason:            "No evaluation could be completed.",
			OverallAssessment: "The candidate could not be evaluated, so no recommendation can be made.",
		}
	}
	j := FinalJudgement{
		Recommendation: Band(ev),
		Reason:         fmt.Sprintf("Score %d with %s confidence.", ev.Score, ev.Confidence),
		Strengths:      limit(ev.Strengths, maxReportItems),
		Concerns:       limit(ev.Concerns, maxReportItems),
	}
	return finalise(j, ev, j.Recommendation)
}

// finalise caps the grade at band and makes sure missing required items and
// tenure risk are named among the concerns.
func finalise(j FinalJudgement, ev *EvaluationResult, band Grade) FinalJudgement {
	if j.Recommendation == "" || j.Recommendation < band {
		j.Recommendation = band
	}
	if strings.TrimSpace(j.Reason) == "" {
		j.Reason = headline(ev.Summary, 200)
	}
	j.Strengths = limit(j.Strengths, maxReportItems)

	concerns := append([]string(nil), j.Concerns...)
	if len(ev.Missing) > 0 && !anyContains(concerns, ev.Missing[0]) {
		concerns = append([]string{"Required item not evidenced: " + ev.Missing[0]}, concerns...)
	}
	if t := ev.Tenure; t != nil && (t.Frequency == tenure.FrequencyTooMany || t.Frequency == tenure.FrequencySlightlyMany) && !mentionsTenure(concerns) {
		note := "Tenure: frequent job changes for the candidate's age"
		if len(t.RiskFactors) > 0 {
			note = "Tenure: " + t.RiskFactors[0]
		}
		if len(concerns) >= maxReportItems {
			concerns = concerns[:maxReportItems-1]
		}
		concerns = append(concerns, note)
	}
	j.Concerns = limit(concerns, maxReportItems)

	if strings.TrimSpace(j.OverallAssessment) == "" {
		j.OverallAssessment = fallbackAssessment(j.Reason, j.Recommendation)
	}
	return j
}

func mentionsTenure(list []string) bool {
	for _, s := range list {
		if tenureMention.MatchString(s) {
			return true
		}
	}
	return false
}

func fallbackAssessment(reason string, g Grade) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "See the strengths and concerns for the details of the evaluation."
	}
	return reason + " " + bandSentences[g]
}

// ParseJudgement reads the reporter response; anything missing stays empty
// except the recommendation, which defaults to C.
func ParseJudgement(text string) FinalJudgement {
	j := FinalJudgement{Recommendation: GradeC}
	current := sectionNone
	var overall []string
	inOverall := false

	for _, rawLine := range strings.Split(text, "\n") {
		line := strings.TrimSpace(strings.ReplaceAll(rawLine, "**", ""))
		label := strings.TrimSpace(strings.TrimLeft(line, "#"))
		item, bullet := bulletText(line)
		if line == "" {
			continue
		}

		if !bullet {
			if m := recommendationLabel.FindStringSubmatch(label); m != nil {
				if g := gradeLetter.FindStringSubmatch(strings.ToUpper(m[1])); g != nil {
					j.Recommendation = Grade(g[1])
				}
				current, inOverall = sectionNone, false
				continue
			}
			if m := reasonLabel.FindStringSubmatch(label); m != nil {
				j.Reason = strings.TrimSpace(m[1])
				current, inOverall = sectionNone, false
				continue
			}
			switch {
			case reportStrengths.MatchString(label):
				current, inOverall = sectionStrengths, false
				continue
			case reportConcerns.MatchString(label):
				current, inOverall = sectionConcerns, false
				continue
			}
			if m := overallLabel.FindStringSubmatch(label); m != nil {
				current, inOverall = sectionNone, true
				if rest := strings.TrimSpace(m[1]); rest != "" {
					overall = append(overall, rest)
				}
				continue
			}
		}

		switch {
		case inOverall:
			overall = append(overall, line)
		case current == sectionStrengths && bullet && len(j.Strengths) < maxReportItems:
			j.Strengths = append(j.Strengths, item)
		case current == sectionConcerns && bullet && len(j.Concerns) < maxReportItems:
			j.Concerns = append(j.Concerns, item)
		}
	}
	j.OverallAssessment = strings.Join(overall, "\n")
	return j
}

func (r *Reporter) buildPrompt(s *State, ev *EvaluationResult, band Grade) string {
	req := s.Request()
	missing := "(none)"
	if len(ev.Missing) > 0 {
		missing = bulletList(ev.Missing)
	}
	uncertaintyText, contradictionText := "", ""
	if ev.Uncertainty != nil {
		uncertaintyText = ev.Uncertainty.Format() + "\n"
	}
	if ev.Contradictions != nil && len(ev.Contradictions.Contradictions) > 0 {
		contradictionText = ev.Contradictions.Format() + "\n"
	}
	return strings.NewReplacer(
		"{{SCORE}}", fmt.Sprint(ev.Score),
		"{{CONFIDENCE}}", string(ev.Confidence),
		"{{EXPERIENCE}}", fmt.Sprintf("%.1f", ev.ExperienceYears),
		"{{BAND}}", string(band),
		"{{SUMMARY}}", ev.Summary,
		"{{STRENGTHS}}", bulletList(ev.Strengths),
		"{{CONCERNS}}", bulletList(ev.Concerns),
		"{{MISSING}}", missing,
		"{{UNCERTAINTY}}", uncertaintyText,
		"{{CONTRADICTIONS}}", contradictionText,
		"{{JOURNEY}}", Journey(s.History()),
		"{{JOB}}", req.Job.Requirements(),
	).Replace(reporterTemplate)
}

func bulletList(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return "- " + strings.Join(items, "\n- ")
}

// Journey describes how the score moved from cycle to cycle.
func Journey(history []CycleResult) string {
	if len(history) == 0 {
		return "No cycle was completed."
	}
	var b strings.Builder
	prev := -1
	for _, c := range history {
		if c.Evaluation == nil {
			continue
		}
		fmt.Fprintf(&b, "- Cycle %d: score %d", c.Cycle, c.Evaluation.Score)
		if prev >= 0 {
			fmt.Fprintf(&b, " (%+d)", c.Evaluation.Score-prev)
		}
		fmt.Fprintf(&b, ", %s confidence", c.Evaluation.Confidence)
		if len(c.Searches) > 0 {
			fmt.Fprintf(&b, ", researched %s", strings.Join(infoTypeNames(searchKeys(c.Searches)), ", "))
		}
		b.WriteString("\n")
		prev = c.Evaluation.Score
	}
	return strings.TrimRight(b.String(), "\n")
}

func infoTypeNames(types []ai.InfoType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}
