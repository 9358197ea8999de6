package research

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	_ "embed"

	"github.com/spigell/hh-researcher/internal/ai"
	"github.com/spigell/hh-researcher/internal/contradiction"
	"github.com/spigell/hh-researcher/internal/utils"
	"github.com/spigell/hh-researcher/internal/weights"
	"go.uber.org/zap"
)

//go:embed gap_prompt.md
var gapTemplate string

const (
	MaxGaps = 3

	stopScore          = 95
	lowStopScore       = 20
	confidentStopScore = 85
	middleBandLow      = 45
	middleBandHigh     = 80
)

var (
	noGapsMarker = regexp.MustCompile(`(?i)no additional information (?:is )?needed|追加情報不要|追加の情報は不要`)
	gapHeader    = regexp.MustCompile(`(?i)^(?:info(?:rmation)?|情報)\s*\d+\s*[:：]?\s*$`)
	gapField     = regexp.MustCompile(`(?i)^(type|info type|種類|description|説明|search query|query|検索クエリ|importance|重要度|rationale|reason|理由)\s*[:：]\s*(.*)$`)
)

// GapAnalyzer decides whether another cycle is worth running and which
// searches it should make.
type GapAnalyzer struct {
	llm       ai.Completer
	now       func() time.Time
	maxLogLen int
	logger    *zap.Logger
}

func NewGapAnalyzer(llm ai.Completer, logger *zap.Logger, now func() time.Time, maxLogLength int) *GapAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	return &GapAnalyzer{llm: llm, now: now, maxLogLen: maxLogLength, logger: logger}
}

func (g *GapAnalyzer) Name() string { return "gap_analysis" }

func (g *GapAnalyzer) Process(ctx context.Context, s *State) error {
	ev := s.Evaluation()
	if ev == nil {
		s.SetGaps(nil, false)
		return nil
	}

	if stop, reason := StopEarly(ev.Score, ev.Confidence); stop {
		g.logger.Info("research finished", zap.String("reason", reason), zap.Int("score", ev.Score))
		s.SetGaps(nil, false)
		return nil
	}

	gaps, err := g.identify(ctx, s, ev)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		g.logger.Warn("gap identification failed", zap.Error(err))
	}

	search := s.SearchResults()
	gaps, proceed := g.decide(s, ev, gaps, search)

	if len(search) > 0 {
		report := contradiction.Analyze(contradiction.Input{
			ResumeText:     s.Request().Candidate.Resume,
			Search:         search,
			EvaluationText: ev.Raw,
		})
		if report.HasHighSeverity() {
			topics := report.HighSeverityTopics()
			gaps = append([]ai.InformationGap{g.resolutionGap(s.Request(), topics)}, gaps...)
			if len(gaps) > MaxGaps {
				gaps = gaps[:MaxGaps]
			}
			g.logger.Info("contradiction gap added", zap.Strings("topics", topics))
		}
	}

	s.SetGaps(gaps, proceed)
	g.logger.Info("gap analysis completed",
		zap.Int("gaps", len(gaps)),
		zap.Bool("continue", proceed),
	)
	return nil
}

// StopEarly applies the stop rules that do not depend on the gaps found:
// a near-perfect score, a confident very low score, or a confident high one.
func StopEarly(score int, confidence ai.Confidence) (bool, string) {
	switch {
	case score >= stopScore:
		return true, "score is high enough"
	case score <= lowStopScore && confidence == ai.ConfidenceHigh:
		return true, "confidently unsuitable"
	case confidence == ai.ConfidenceHigh && score >= confidentStopScore:
		return true, "confidently suitable"
	}
	return false, ""
}

func (g *GapAnalyzer) decide(s *State, ev *EvaluationResult, gaps []ai.InformationGap, search map[ai.InfoType]*ai.SearchResult) ([]ai.InformationGap, bool) {
	gaps = SortGaps(gaps)
	middle := ev.Score >= middleBandLow && ev.Score <= middleBandHigh
	if !middle {
		return gaps, len(gaps) > 0
	}
	if len(gaps) > 0 {
		return gaps, true
	}

	defaults := g.defaultGaps(s.Request())
	if s.Cycle() == 0 {
		g.logger.Info("default gaps injected", zap.Int("score", ev.Score))
		return defaults, true
	}
	// Later cycles only get the defaults nobody has searched for yet.
	var fresh []ai.InformationGap
	for _, gap := range defaults {
		if _, done := search[gap.InfoType]; !done {
			fresh = append(fresh, gap)
		}
	}
	return fresh, len(fresh) > 0
}

// SortGaps orders gaps by importance, keeping the model's order within one
// importance, and keeps at most MaxGaps.
func SortGaps(gaps []ai.InformationGap) []ai.InformationGap {
	out := append([]ai.InformationGap(nil), gaps...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Importance.Rank() > out[j].Importance.Rank()
	})
	if len(out) > MaxGaps {
		out = out[:MaxGaps]
	}
	return out
}

func (g *GapAnalyzer) defaultGaps(req Request) []ai.InformationGap {
	year := g.now().Year()
	job := jobSignals(req)

	company := req.Candidate.Company
	if company == "" {
		company = job.Title
	}
	skill := job.Title
	if skills := requiredSkills(req.Job); len(skills) > 0 {
		skill = skills[0]
	}
	industry := job.Industry
	if industry == "" {
		industry = weights.DetectIndustry(job)
	}

	return []ai.InformationGap{
		{
			InfoType:    ai.InfoEnvironmentalFit,
			Description: "Size and culture of the candidate's current employer compared with the hiring company",
			SearchQuery: CompanyQuery(company, AspectSize, year),
			Importance:  ai.ImportanceHigh,
			Rationale:   "Organisational fit depends on how similar the employers are",
		},
		{
			InfoType:    ai.InfoPracticalAbility,
			Description: "Market demand and typical level of the most important required skill",
			SearchQuery: SkillQuery(skill, industry, year),
			Importance:  ai.ImportanceMedium,
			Rationale:   "Shows how the candidate's practical experience compares with the market",
		},
	}
}

func (g *GapAnalyzer) resolutionGap(req Request, topics []string) ai.InformationGap {
	query := ""
	for _, topic := range topics {
		if topic == "company_size" && req.Candidate.Company != "" {
			query = CompanyQuery(req.Candidate.Company, AspectSize, g.now().Year())
			break
		}
	}
	if query == "" {
		job := jobSignals(req)
		query = RoleQuery(job.Title, contradiction.CompanySize(req.Candidate.Resume))
	}
	return ai.InformationGap{
		InfoType:    ai.InfoContradictionResolution,
		Description: "Sources disagree on: " + strings.Join(topics, ", "),
		SearchQuery: query,
		Importance:  ai.ImportanceHigh,
		Rationale:   "A high severity contradiction makes the current score unreliable",
	}
}

func (g *GapAnalyzer) identify(ctx context.Context, s *State, ev *EvaluationResult) ([]ai.InformationGap, error) {
	if g.llm == nil {
		return nil, errors.New("gap analyser has no model")
	}
	prompt := g.buildPrompt(s, ev)
	g.logger.Debug("gap request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, g.maxLogLen)),
	)
	raw, err := g.llm.Complete(ctx, prompt, ai.TierFast)
	if err != nil {
		return nil, fmt.Errorf("generate gaps: %w", err)
	}
	g.logger.Debug("gap response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, g.maxLogLen)),
	)
	return ParseGaps(raw), nil
}

func (g *GapAnalyzer) buildPrompt(s *State, ev *EvaluationResult) string {
	req := s.Request()
	concerns := "(none)"
	if len(ev.Concerns) > 0 {
		concerns = "- " + strings.Join(ev.Concerns, "\n- ")
	}
	company := req.Candidate.Company
	if company == "" {
		company = "(unknown)"
	}
	searched := "(nothing yet)"
	if results := s.SearchResults(); len(results) > 0 {
		var lines []string
		for _, t := range searchKeys(results) {
			lines = append(lines, fmt.Sprintf("- %s: %s", t, results[t].Query))
		}
		searched = strings.Join(lines, "\n")
	}
	r := strings.NewReplacer(
		"{{CYCLE}}", strconv.Itoa(s.Cycle()+1),
		"{{SCORE}}", strconv.Itoa(ev.Score),
		"{{CONFIDENCE}}", string(ev.Confidence),
		"{{CONCERNS}}", concerns,
		"{{SUMMARY}}", ev.Summary,
		"{{JOB}}", req.Job.Requirements(),
		"{{COMPANY}}", company,
		"{{SEARCHED}}", searched,
	)
	return r.Replace(gapTemplate)
}

// ParseGaps reads "Info N:" blocks. Blocks without a search query are
// dropped; an unknown importance counts as medium.
func ParseGaps(text string) []ai.InformationGap {
	var (
		gaps    []ai.InformationGap
		current *ai.InformationGap
	)
	flush := func() {
		if current != nil && strings.TrimSpace(current.SearchQuery) != "" {
			if current.Importance == "" {
				current.Importance = ai.ImportanceMedium
			}
			if current.InfoType == "" {
				current.InfoType = ai.InfoOther
			}
			gaps = append(gaps, *current)
		}
		current = nil
	}

	for _, rawLine := range strings.Split(text, "\n") {
		line := strings.TrimSpace(strings.ReplaceAll(rawLine, "**", ""))
		line, _ = bulletText(line)
		line = strings.TrimSpace(strings.TrimLeft(line, "#"))
		if line == "" {
			continue
		}
		if gapHeader.MatchString(line) {
			flush()
			current = &ai.InformationGap{}
			continue
		}
		m := gapField.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if current == nil {
			current = &ai.InformationGap{}
		}
		value := strings.Trim(strings.TrimSpace(m[2]), `"「」`)
		switch strings.ToLower(m[1]) {
		case "type", "info type", "種類":
			current.InfoType = ai.ParseInfoType(value)
		case "description", "説明":
			current.Description = value
		case "search query", "query", "検索クエリ":
			current.SearchQuery = value
		case "importance", "重要度":
			if imp, ok := ai.ParseImportance(value); ok {
				current.Importance = imp
			}
		default:
			current.Rationale = value
		}
	}
	flush()

	if len(gaps) == 0 && noGapsMarker.MatchString(text) {
		return nil
	}
	return gaps
}
