package research

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	_ "embed"

	"github.com/spigell/hh-researcher/internal/ai"
	"github.com/spigell/hh-researcher/internal/career"
	"github.com/spigell/hh-researcher/internal/contradiction"
	"github.com/spigell/hh-researcher/internal/tenure"
	"github.com/spigell/hh-researcher/internal/uncertainty"
	"github.com/spigell/hh-researcher/internal/utils"
	"github.com/spigell/hh-researcher/internal/weights"
	"go.uber.org/zap"
)

//go:embed evaluator_prompt.md
var evaluatorTemplate string

const (
	defaultMaxLogLength = 200

	maxCareerPenalty = 0.30
	realismFactor    = 0.67

	ruleWeight = 0.4
	llmWeight  = 0.6
)

// Evaluator scores the candidate with the deep model tier and applies the
// career and tenure adjustments to the model's score.
type Evaluator struct {
	llm       ai.Completer
	career    *career.Analyzer
	tenure    *tenure.Analyzer
	enhanced  bool
	hybrid    bool
	now       func() time.Time
	maxLogLen int
	logger    *zap.Logger
}

type EvaluatorOption func(*Evaluator)

// WithCareerAnalyzer replaces the keyword-only career analyser.
func WithCareerAnalyzer(a *career.Analyzer) EvaluatorOption {
	return func(e *Evaluator) {
		if a != nil {
			e.career = a
		}
	}
}

// WithEnhanced toggles the career and tenure analyses.
func WithEnhanced(on bool) EvaluatorOption {
	return func(e *Evaluator) { e.enhanced = on }
}

// WithHybrid blends a keyword rule score into the model score.
func WithHybrid(on bool) EvaluatorOption {
	return func(e *Evaluator) { e.hybrid = on }
}

func WithEvaluatorClock(now func() time.Time) EvaluatorOption {
	return func(e *Evaluator) {
		if now != nil {
			e.now = now
		}
	}
}

func WithMaxLogLength(n int) EvaluatorOption {
	return func(e *Evaluator) {
		if n > 0 {
			e.maxLogLen = n
		}
	}
}

func NewEvaluator(llm ai.Completer, logger *zap.Logger, opts ...EvaluatorOption) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Evaluator{
		llm:       llm,
		enhanced:  true,
		now:       time.Now,
		maxLogLen: defaultMaxLogLength,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.career == nil {
		e.career = career.New(logger, career.WithClock(e.now))
	}
	e.tenure = tenure.New(e.now)
	return e
}

func (e *Evaluator) Name() string { return "evaluator" }

func (e *Evaluator) Process(ctx context.Context, s *State) error {
	return e.evaluate(ctx, s, nil)
}

// Repair re-runs the evaluation with a prompt that restates the output format
// after cause made the previous answer unreadable.
func (e *Evaluator) Repair(ctx context.Context, s *State, cause error) error {
	return e.evaluate(ctx, s, cause)
}

func (e *Evaluator) evaluate(ctx context.Context, s *State, cause error) error {
	if e.llm == nil {
		return errors.New("evaluator has no model")
	}
	req := s.Request()
	strategy := s.Strategy()
	required := requiredSkills(req.Job)

	var (
		careerAssessment *career.Assessment
		tenureAssessment *tenure.Assessment
	)
	if e.enhanced {
		var err error
		careerAssessment, err = e.career.Analyze(ctx, career.Input{
			ResumeText:         req.Candidate.Resume,
			RequiredSkills:     required,
			RequiredExperience: req.Job.Requirements(),
		})
		if err != nil {
			return fmt.Errorf("career analysis: %w", err)
		}
		companies := 0
		if req.Candidate.Companies != nil {
			companies = *req.Candidate.Companies
		}
		tenureAssessment = e.tenure.Analyze(tenure.Input{
			Age:        req.Candidate.Age,
			Companies:  companies,
			ResumeText: req.Candidate.Resume,
		})
	}

	prompt := e.buildPrompt(s, strategy, careerAssessment, tenureAssessment, cause)
	e.logger.Debug("evaluation request",
		zap.Int("cycle", s.Cycle()+1),
		zap.Bool("repair", cause != nil),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, e.maxLogLen)),
	)

	raw, err := e.llm.Complete(ctx, prompt, ai.TierDeep)
	if err != nil {
		return fmt.Errorf("generate evaluation: %w", err)
	}
	e.logger.Debug("evaluation response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, e.maxLogLen)),
	)

	ev, err := ParseEvaluation(raw)
	if err != nil {
		return err
	}
	ev.Weights = strategy.Weights.Profile
	ev.Career = careerAssessment
	ev.Tenure = tenureAssessment
	ev.ExperienceYears = ExperienceYears(req.Candidate.Resume, e.now())

	if missing := enforceRequired(ev, req.Job.RequiredSkills(), req.Candidate.Resume); len(missing) > 0 {
		e.logger.Info("required items not evidenced", zap.Strings("items", missing))
	}

	score := ev.Score
	ev.Adjustment.ModelScore = score
	if e.hybrid {
		rule := RuleScore(req, ev.ExperienceYears)
		ev.Adjustment.RuleScore = &rule
		score = int(math.Round(ruleWeight*float64(rule) + llmWeight*float64(score)))
	}

	penalty, factor := 0.0, 1.0
	if careerAssessment != nil {
		penalty = careerAssessment.Penalty
	}
	if tenureAssessment != nil {
		factor = tenureAssessment.AdjustmentFactor
	}
	ev.Score, ev.Adjustment.CareerPenalty, ev.Adjustment.TenureDelta = AdjustScore(score, penalty, factor)
	ev.Adjustment.TenureFactor = factor

	if search := s.SearchResults(); len(search) > 0 {
		report := contradiction.Analyze(contradiction.Input{
			ResumeText:     req.Candidate.Resume,
			Search:         search,
			EvaluationText: raw,
		})
		ev.Contradictions = &report
	}

	s.SetEvaluation(ev)
	e.logger.Info("evaluation completed",
		zap.Int("score", ev.Score),
		zap.Int("model_score", ev.Adjustment.ModelScore),
		zap.String("confidence", string(ev.Confidence)),
		zap.Int("career_deduction", ev.Adjustment.CareerPenalty),
		zap.Int("tenure_delta", ev.Adjustment.TenureDelta),
	)
	return nil
}

// AdjustScore applies the career penalty, then the tenure factor, and clamps
// the result to [0, 100]. It returns the final score, the points taken by the
// career penalty and the change made by the tenure factor.
func AdjustScore(score int, penalty, factor float64) (int, int, int) {
	deduction := 0
	if penalty > 0 {
		deduction = int(float64(score) * math.Min(penalty, maxCareerPenalty) * realismFactor)
		score = max(0, score-deduction)
	}
	delta := 0
	if factor > 0 && factor != 1 {
		adjusted := int(float64(score) * factor)
		delta = adjusted - score
		score = adjusted
	}
	return clampScore(score), deduction, delta
}

func requiredSkills(job JobSpec) []string {
	if skills := job.RequiredSkills(); len(skills) > 0 {
		return skills
	}
	return uncertainty.RequirementKeywords(job.Requirements())
}

// enforceRequired zeroes structured required items that the model scored 0
// or that the résumé never mentions, and lists them as concerns.
func enforceRequired(ev *EvaluationResult, required []string, resume string) []string {
	if len(required) == 0 {
		return nil
	}
	if ev.Breakdown == nil {
		ev.Breakdown = make(map[weights.Dimension]CategoryScore)
	}
	cat, ok := ev.Breakdown[weights.RequiredSkills]
	if !ok {
		cat = CategoryScore{Max: CategoryMax[weights.RequiredSkills]}
	}
	perItem := math.Round(CategoryMax[weights.RequiredSkills]/float64(len(required))*10) / 10

	var missing []string
	for _, skill := range required {
		skill = strings.TrimSpace(skill)
		if skill == "" {
			continue
		}
		idx := findItem(cat.Items, skill)
		switch {
		case idx >= 0 && cat.Items[idx].Score > 0:
			continue
		case idx >= 0:
			missing = append(missing, skill)
		case mentions(resume, skill):
			continue
		default:
			cat.Items = append(cat.Items, Item{Name: skill, Score: 0, Max: perItem, Evidence: "not evidenced in the résumé"})
			missing = append(missing, skill)
		}
	}
	ev.Breakdown[weights.RequiredSkills] = cat
	ev.Adjustment.RequiredMissed = len(missing)
	if len(missing) == 0 {
		return nil
	}

	var prefix []string
	for _, skill := range missing {
		if !anyContains(ev.Concerns, skill) {
			prefix = append(prefix, "Required item not evidenced: "+skill)
		}
	}
	ev.Concerns = limit(append(prefix, ev.Concerns...), maxListItems)
	ev.Missing = append(ev.Missing, missing...)
	return missing
}

func findItem(items []Item, skill string) int {
	for i, it := range items {
		if strings.TrimSpace(it.Name) == "" {
			continue
		}
		if utils.SameTerm(it.Name, skill) {
			return i
		}
	}
	return -1
}

var asciiWord = regexp.MustCompile(`[a-z0-9+#.]{2,}`)

// mentions reports whether text names skill as a whole term or names every
// ASCII word of it.
func mentions(text, skill string) bool {
	if utils.ContainsTerm(text, skill) {
		return true
	}
	skill = strings.ToLower(skill)
	words := asciiWord.FindAllString(skill, -1)
	if len(words) == 0 || len(words) != len(strings.Fields(skill)) {
		return false
	}
	for _, w := range words {
		if !utils.ContainsTerm(text, w) {
			return false
		}
	}
	return true
}

func anyContains(list []string, needle string) bool {
	for _, s := range list {
		if utils.ContainsTerm(s, needle) {
			return true
		}
	}
	return false
}

// RuleScore is the keyword path of the hybrid evaluator: required coverage
// out of 60, preferred coverage out of 25 and experience fit out of 15.
func RuleScore(req Request, experienceYears float64) int {
	resume := req.Candidate.Resume
	requiredCoverage := coverage(requiredSkills(req.Job), resume, 0.5)

	var preferred []string
	experienceFit := 1.0
	if sj := req.Job.Structured; sj != nil {
		preferred = sj.PreferredSkills
		if sj.ExperienceYearsMin != nil && *sj.ExperienceYearsMin > 0 {
			experienceFit = math.Min(1, experienceYears/float64(*sj.ExperienceYearsMin))
		}
	}
	preferredCoverage := coverage(preferred, resume, 0.5)

	return clampScore(int(math.Round(requiredCoverage*60 + preferredCoverage*25 + experienceFit*15)))
}

func coverage(skills []string, text string, empty float64) float64 {
	if len(skills) == 0 {
		return empty
	}
	hit := 0
	for _, s := range skills {
		if mentions(text, s) {
			hit++
		}
	}
	return float64(hit) / float64(len(skills))
}

var statedYears = regexp.MustCompile(`(?i)(?:^|[^\d])(\d{1,2})\s*\+?\s*(?:years?|yrs?|年)`)

// ExperienceYears is the larger of the longest stated experience ("7 years",
// "7年") and the summed length of the dated positions in the résumé.
func ExperienceYears(resume string, now time.Time) float64 {
	best := 0.0
	for _, m := range statedYears.FindAllStringSubmatch(resume, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil && float64(n) > best && n < 60 {
			best = float64(n)
		}
	}
	months := 0
	for _, p := range career.ExtractTimeline(resume) {
		end := now
		if p.End != nil {
			end = *p.End
		}
		months += career.MonthsBetween(p.Start, end)
	}
	return math.Max(best, math.Round(float64(months)/12*10)/10)
}

func (e *Evaluator) buildPrompt(s *State, st Strategy, ca *career.Assessment, ta *tenure.Assessment, cause error) string {
	req := s.Request()
	p := st.Weights.Profile

	repair := ""
	if cause != nil {
		repair = fmt.Sprintf("Your previous answer could not be read (%v). Follow the output format at the end exactly and start with the line \"Score: <integer>\".\n\n", cause)
	}
	careerText, tenureText := "", ""
	if ca != nil {
		careerText = ca.Format() + "\n"
	}
	if ta != nil {
		tenureText = ta.Format() + "\n"
	}
	ragText := "No similar cases are available."
	if in := s.Insights(); in != nil && in.TotalCases > 0 {
		ragText = in.Format()
	}
	description := strings.TrimSpace(req.Job.Description)
	if description == "" {
		description = "(no job description provided)"
	}

	r := strings.NewReplacer(
		"{{REPAIR}}", repair,
		"{{W_REQUIRED}}", percent(p.RequiredSkills),
		"{{W_PRACTICAL}}", percent(p.PracticalAbility),
		"{{W_PREFERRED}}", percent(p.PreferredSkills),
		"{{W_FIT}}", percent(p.OrganisationalFit),
		"{{W_OUTSTANDING}}", percent(p.OutstandingCareer),
		"{{WEIGHT_EXPLANATION}}", st.Weights.Explanation,
		"{{JOB_DESCRIPTION}}", description,
		"{{JOB_MEMO}}", req.Job.Memo,
		"{{STRUCTURED_JOB}}", structuredBlock(req.Job.Structured),
		"{{CANDIDATE}}", candidateBlock(req.Candidate),
		"{{RESUME}}", req.Candidate.Resume,
		"{{CAREER}}", careerText,
		"{{TENURE}}", tenureText,
		"{{SEARCH}}", searchBlock(s.SearchResults()),
		"{{HISTORY}}", historyBlock(s.History()),
		"{{RAG}}", ragText,
	)
	return r.Replace(evaluatorTemplate)
}

func percent(w float64) string {
	return strconv.Itoa(int(math.Round(w*100))) + "%"
}

func structuredBlock(sj *StructuredJob) string {
	if sj == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Structured job data\n\n")
	line := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&b, "- %s: %s\n", label, value)
		}
	}
	line("Position", sj.Position)
	line("Employment type", sj.EmploymentType)
	line("Location", sj.Location)
	line("Industry", sj.Industry)
	if sj.SalaryMin != nil || sj.SalaryMax != nil {
		line("Salary", salaryRange(sj.SalaryMin, sj.SalaryMax))
	}
	if sj.ExperienceYearsMin != nil {
		line("Minimum experience", fmt.Sprintf("%d years", *sj.ExperienceYearsMin))
	}
	line("Required items", strings.Join(sj.RequiredSkills, "; "))
	line("Preferred items", strings.Join(sj.PreferredSkills, "; "))
	b.WriteString("\n")
	return b.String()
}

func salaryRange(lo, hi *int) string {
	switch {
	case lo != nil && hi != nil:
		return fmt.Sprintf("%d - %d", *lo, *hi)
	case lo != nil:
		return fmt.Sprintf("from %d", *lo)
	default:
		return fmt.Sprintf("up to %d", *hi)
	}
}

func candidateBlock(c CandidateSpec) string {
	var b strings.Builder
	if c.Age != nil {
		fmt.Fprintf(&b, "- Age: %d\n", *c.Age)
	}
	if c.Gender != "" {
		fmt.Fprintf(&b, "- Gender: %s\n", c.Gender)
	}
	if c.Company != "" {
		fmt.Fprintf(&b, "- Current company: %s\n", c.Company)
	}
	if c.Companies != nil {
		fmt.Fprintf(&b, "- Employers so far: %d\n", *c.Companies)
	}
	if b.Len() == 0 {
		return "No candidate details were provided."
	}
	return strings.TrimRight(b.String(), "\n")
}

func searchBlock(results map[ai.InfoType]*ai.SearchResult) string {
	if len(results) == 0 {
		return "No research has been done yet."
	}
	var b strings.Builder
	for _, t := range searchKeys(results) {
		r := results[t]
		fmt.Fprintf(&b, "## %s\n\nQuery: %s\n", t, r.Query)
		if r.Simulated() {
			b.WriteString("(simulated)\n")
		}
		fmt.Fprintf(&b, "%s\n", strings.TrimSpace(r.Summary))
		if len(r.Sources) > 0 {
			fmt.Fprintf(&b, "Sources: %s\n", strings.Join(r.Sources, ", "))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func historyBlock(history []CycleResult) string {
	if len(history) == 0 {
		return "This is the first cycle."
	}
	var b strings.Builder
	for _, c := range history {
		if c.Evaluation == nil {
			continue
		}
		fmt.Fprintf(&b, "- Cycle %d: score %d (%s confidence), %d gaps, %d searches",
			c.Cycle, c.Evaluation.Score, c.Evaluation.Confidence, len(c.Gaps), len(c.Searches))
		if len(c.Evaluation.Concerns) > 0 {
			fmt.Fprintf(&b, "; main concern: %s", c.Evaluation.Concerns[0])
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
