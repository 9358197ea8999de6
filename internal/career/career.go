// Package career measures how recent and continuous a candidate's relevant
// experience is and turns gaps, career changes and transfers into a score
// penalty.
package career

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	MaxPenalty = 0.5

	decayRate         = 0.02
	retentionFloor    = 0.3
	unknownRetention  = 0.5 // no relevant period
	noRelevantPenalty = 0.3

	careerChangePenalty   = 0.10
	careerChangeSkillCost = 0.05
	departmentPenalty     = 0.03

	recentMonths = 6
)

var (
	careerChangeIndicators = []string{"キャリアチェンジ", "業界変更", "職種変更", "未経験", "ジョブチェンジ",
		"career change", "changed careers", "career switch", "new field"}
	departmentChangeIndicators = []string{"異動", "配属変更", "部署移動", "ローテーション", "出向", "転籍",
		"transferred to", "internal transfer", "rotation", "reassigned"}
)

// Input is what the analyser reads.
type Input struct {
	ResumeText         string
	RequiredSkills     []string
	RequiredExperience string
}

// Assessment is the continuity verdict for one candidate.
type Assessment struct {
	HasRecentRelevant   bool     `json:"has_recent_relevant_experience"`
	MonthsSinceRelevant *int     `json:"months_since_relevant_experience"`
	LatestRelevant      *Period  `json:"latest_relevant,omitempty"`
	CareerChange        bool     `json:"career_change_detected"`
	DepartmentChange    bool     `json:"department_change_detected"`
	SkillRetention      float64  `json:"skill_retention_score"`
	Penalty             float64  `json:"penalty_score"`
	Explanation         string   `json:"explanation"`
	Recommendations     []string `json:"recommendations"`
	Timeline            []Period `json:"career_timeline"`
}

type Analyzer struct {
	matcher  Matcher
	fallback Matcher
	now      func() time.Time
	logger   *zap.Logger
}

type Option func(*Analyzer)

// WithMatcher sets the primary relevance matcher. Keyword matching stays the
// fallback when it fails.
func WithMatcher(m Matcher) Option {
	return func(a *Analyzer) {
		if m != nil {
			a.matcher = m
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) {
		if now != nil {
			a.now = now
		}
	}
}

func New(logger *zap.Logger, opts ...Option) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Analyzer{
		matcher:  KeywordMatcher{},
		fallback: KeywordMatcher{},
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze walks the timeline newest first and stops at the first relevant
// period; only context errors are returned.
func (a *Analyzer) Analyze(ctx context.Context, in Input) (*Assessment, error) {
	timeline := ExtractTimeline(in.ResumeText)

	var latest *Period
	for i := range timeline {
		v, err := a.verdict(ctx, in, timeline[i])
		if err != nil {
			return nil, err
		}
		if v.Relevant() {
			timeline[i].Relevant = true
			latest = &timeline[i]
			break
		}
	}

	out := &Assessment{
		CareerChange:     careerChange(in.ResumeText, timeline),
		DepartmentChange: departmentChange(in.ResumeText, timeline),
		Timeline:         timeline,
	}
	if latest != nil {
		months := 0
		if latest.End != nil {
			months = MonthsBetween(*latest.End, a.now())
		}
		out.MonthsSinceRelevant = &months
		out.HasRecentRelevant = months <= recentMonths
		p := *latest
		out.LatestRelevant = &p
	}

	out.SkillRetention = SkillRetention(out.MonthsSinceRelevant)
	out.Penalty = Penalty(out.MonthsSinceRelevant, out.CareerChange, out.DepartmentChange, out.SkillRetention)
	out.Explanation = explanation(out)
	out.Recommendations = recommendations(out)

	a.logger.Debug("career continuity analysed",
		zap.Int("periods", len(timeline)),
		zap.Bool("career_change", out.CareerChange),
		zap.Bool("department_change", out.DepartmentChange),
		zap.Float64("penalty", out.Penalty),
	)
	return out, nil
}

func (a *Analyzer) verdict(ctx context.Context, in Input, p Period) (Verdict, error) {
	v, err := a.matcher.Match(ctx, in.RequiredSkills, in.RequiredExperience, p)
	if err == nil {
		return v, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Verdict{}, err
	}
	a.logger.Warn("semantic skill matching failed, using keyword matching",
		zap.String("company", p.Company),
		zap.Error(err),
	)
	return a.fallback.Match(ctx, in.RequiredSkills, in.RequiredExperience, p)
}

// MonthsBetween counts calendar months from from to to, never negative.
func MonthsBetween(from, to time.Time) int {
	months := (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
	if months < 0 {
		return 0
	}
	return months
}

// SkillRetention decays 2% per month since the last relevant period with a
// floor of 0.3. A nil gap means no relevant period was found.
func SkillRetention(months *int) float64 {
	if months == nil {
		return unknownRetention
	}
	return math.Max(retentionFloor, math.Pow(1-decayRate, float64(*months)))
}

// Penalty is the share of the score to take away, in [0, MaxPenalty].
func Penalty(months *int, careerChange, departmentChange bool, retention float64) float64 {
	var p float64
	switch {
	case months == nil:
		p = noRelevantPenalty
	case *months <= 3:
		p = 0
	case *months <= 6:
		p = 0.05
	case *months <= 12:
		p = 0.10
	case *months <= 24:
		p = 0.15
	default:
		p = 0.20
	}

	if careerChange {
		p += careerChangePenalty + (1-retention)*careerChangeSkillCost
	}
	if departmentChange && !careerChange {
		p += departmentPenalty
	}

	p *= 2 - retention
	return math.Min(p, MaxPenalty)
}

func careerChange(resume string, timeline []Period) bool {
	if containsAny(resume, careerChangeIndicators) {
		return true
	}
	if len(timeline) < 2 {
		return false
	}
	current, previous := timeline[0], timeline[1]
	if a, b := ClassifyIndustry(current.Company), ClassifyIndustry(previous.Company); a != "" && b != "" && a != b {
		return true
	}
	a, b := ClassifyRole(current.Role), ClassifyRole(previous.Role)
	return a != "" && b != "" && a != b
}

func departmentChange(resume string, timeline []Period) bool {
	if containsAny(resume, departmentChangeIndicators) {
		return true
	}
	for i := 0; i+1 < len(timeline); i++ {
		cur, next := timeline[i], timeline[i+1]
		if cur.Company != unknown && cur.Company == next.Company &&
			cur.Department != "" && next.Department != "" && cur.Department != next.Department {
			return true
		}
	}
	return false
}

func containsAny(text string, needles []string) bool {
	lower := strings.ToLower(text)
	for _, n := range needles {
		if strings.Contains(lower, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

func explanation(a *Assessment) string {
	var parts []string
	switch m := a.MonthsSinceRelevant; {
	case m == nil:
		parts = append(parts, "No work history relevant to the required experience was found.")
	case *m == 0:
		parts = append(parts, "The candidate currently works in a relevant role.")
	case *m <= 6:
		parts = append(parts, fmt.Sprintf("There is a %d-month gap since the last relevant role.", *m))
	case *m <= 12:
		parts = append(parts, fmt.Sprintf("%d months have passed since the last relevant role; skills may be going stale.", *m))
	default:
		parts = append(parts, fmt.Sprintf("%d months (%d years %d months) have passed since the last relevant role.", *m, *m/12, *m%12))
	}
	if a.CareerChange {
		parts = append(parts, "A career change was detected.")
	}
	if a.DepartmentChange {
		parts = append(parts, "A department transfer changed the scope of work.")
	}
	if a.LatestRelevant != nil {
		parts = append(parts, fmt.Sprintf("Last relevant role: %s %s.", a.LatestRelevant.Company, a.LatestRelevant.Role))
	}
	return strings.Join(parts, " ")
}

func recommendations(a *Assessment) []string {
	var out []string
	if m := a.MonthsSinceRelevant; m != nil && *m > recentMonths {
		out = append(out,
			"Check the candidate's current skill level in the interview.",
			"Ask about familiarity with recent technology trends.",
		)
	}
	if a.CareerChange {
		out = append(out,
			"Confirm the motivation behind the career change.",
			"Ask how past experience transfers to the new role.",
		)
	}
	if a.DepartmentChange {
		out = append(out, "Ask how the candidate adapted after the transfer.")
	}
	if a.MonthsSinceRelevant == nil {
		out = append(out,
			"Verify in detail whether any relevant experience exists.",
			"Focus the assessment on potential and learning ability.",
		)
	}
	return out
}

// Format renders the assessment as a markdown section for prompts.
func (a *Assessment) Format() string {
	if a == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("# Career continuity\n\n## Summary\n")
	if a.HasRecentRelevant {
		b.WriteString("- Recent relevant experience: yes\n")
	} else {
		b.WriteString("- Recent relevant experience: no\n")
	}
	if a.CareerChange {
		b.WriteString("- Career change detected\n")
	}
	if a.DepartmentChange {
		b.WriteString("- Department transfer detected\n")
	}

	b.WriteString("\n## Details\n")
	if a.MonthsSinceRelevant != nil {
		fmt.Fprintf(&b, "- Months since relevant experience: %d\n", *a.MonthsSinceRelevant)
	} else {
		b.WriteString("- Months since relevant experience: not measurable\n")
	}
	fmt.Fprintf(&b, "- Skill retention: %.0f%%\n", a.SkillRetention*100)
	fmt.Fprintf(&b, "- Penalty: %.0f%%\n", a.Penalty*100)

	if len(a.Timeline) > 0 {
		b.WriteString("\n## Timeline\n")
		for _, p := range a.Timeline {
			end := "present"
			if p.End != nil {
				end = p.End.Format("2006-01")
			}
			mark := ""
			if p.Relevant {
				mark = " (relevant)"
			}
			fmt.Fprintf(&b, "- %s to %s: %s, %s%s\n", p.Start.Format("2006-01"), end, p.Company, p.Role, mark)
		}
	}

	b.WriteString("\n## Assessment\n")
	b.WriteString(a.Explanation)
	b.WriteString("\n")

	if len(a.Recommendations) > 0 {
		b.WriteString("\n## Recommendations\n")
		for _, r := range a.Recommendations {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}
	return b.String()
}
