// Package tenure judges whether a candidate's number of employers is
// reasonable for their age and turns that into a score multiplier.
package tenure

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Frequency classifies how often a candidate has changed jobs.
type Frequency string

const (
	FrequencyTooFew       Frequency = "too-few"
	FrequencyAppropriate  Frequency = "appropriate"
	FrequencySlightlyMany Frequency = "slightly-many"
	FrequencyTooMany      Frequency = "too-many"
	FrequencyUnknown      Frequency = "undetermined"
)

const (
	MinAdjustment = 0.5
	MaxAdjustment = 1.2

	careerStartAge        = 22
	defaultCurrentTenure  = 2.0
	highStability         = 0.8
	lowStability          = 0.4
	shortTenureYears      = 1.0
	longTenureYears       = 5.0
	riskyStability        = 0.5
	shortTenureRiskYears  = 2.0
	oneEmployerConcernAge = 35
)

type standard struct {
	age     int
	min     int
	optimal int
	max     int
}

// Job change thresholds per age bucket; the nearest bucket applies.
var standards = []standard{
	{age: 20, min: 0, optimal: 1, max: 2},
	{age: 25, min: 0, optimal: 2, max: 3},
	{age: 30, min: 1, optimal: 3, max: 4},
	{age: 35, min: 2, optimal: 3, max: 5},
	{age: 40, min: 2, optimal: 4, max: 6},
	{age: 45, min: 3, optimal: 4, max: 6},
	{age: 50, min: 3, optimal: 5, max: 7},
}

func standardFor(age int) standard {
	best := standards[0]
	for _, s := range standards[1:] {
		if abs(s.age-age) < abs(best.age-age) {
			best = s
		}
	}
	return best
}

// Input describes the candidate. Age and CurrentTenureYears are optional.
type Input struct {
	Age                *int
	Companies          int
	ResumeText         string
	CurrentTenureYears *float64
}

// Assessment is the tenure verdict.
type Assessment struct {
	Age              *int      `json:"candidate_age"`
	Companies        int       `json:"total_companies"`
	CareerYears      *int      `json:"career_years"`
	AverageTenure    *float64  `json:"average_tenure"`
	Frequency        Frequency `json:"job_change_frequency"`
	Stability        float64   `json:"stability_score"`
	AdjustmentFactor float64   `json:"adjustment_factor"`
	Explanation      string    `json:"explanation"`
	Recommendations  []string  `json:"recommendations"`
	RiskFactors      []string  `json:"risk_factors"`
}

type Analyzer struct {
	now func() time.Time
}

func New(now func() time.Time) *Analyzer {
	if now == nil {
		now = time.Now
	}
	return &Analyzer{now: now}
}

// Analyze never fails; missing inputs narrow what can be judged.
func (a *Analyzer) Analyze(in Input) *Assessment {
	companies := in.Companies
	if companies <= 0 {
		companies = 1
	}

	out := &Assessment{
		Age:       in.Age,
		Companies: companies,
	}
	out.CareerYears = a.careerYears(in.Age, in.ResumeText)
	out.AverageTenure = averageTenure(out.CareerYears, companies, in.CurrentTenureYears)
	out.Frequency = Classify(in.Age, companies)
	out.Stability = stability(out.Frequency, out.AverageTenure)
	out.AdjustmentFactor = adjustment(out.Frequency, out.Stability, out.AverageTenure)
	out.Explanation = explanation(out)
	out.Recommendations = recommendations(out)
	out.RiskFactors = riskFactors(in.Age, companies, out.AverageTenure)
	return out
}

// Classify compares job changes (companies - 1) with the age bucket.
func Classify(age *int, companies int) Frequency {
	if age == nil || *age <= 0 {
		return FrequencyUnknown
	}
	s := standardFor(*age)
	changes := companies - 1
	switch {
	case changes <= s.min:
		return FrequencyTooFew
	case changes <= s.optimal:
		return FrequencyAppropriate
	case changes <= s.max:
		return FrequencySlightlyMany
	default:
		return FrequencyTooMany
	}
}

var firstJobPattern = regexp.MustCompile(`(\d{4})\s*(?:年|[/.\-])?\s*(?:\d{1,2})?\s*月?\s*(?:～|〜|~|-|\x{2013}|\x{2014})`)

func (a *Analyzer) careerYears(age *int, resume string) *int {
	if age == nil || *age <= 0 {
		return nil
	}
	years := *age - careerStartAge
	if first, ok := firstJobYear(resume); ok {
		years = a.now().Year() - first
	}
	if years < 0 {
		years = 0
	}
	return &years
}

func firstJobYear(resume string) (int, bool) {
	first := 0
	for _, m := range firstJobPattern.FindAllStringSubmatch(resume, -1) {
		y, err := strconv.Atoi(m[1])
		if err != nil || y < 1950 {
			continue
		}
		if first == 0 || y < first {
			first = y
		}
	}
	return first, first != 0
}

func averageTenure(careerYears *int, companies int, current *float64) *float64 {
	if careerYears == nil || *careerYears == 0 {
		return nil
	}
	total := float64(*careerYears)
	if companies == 1 {
		if current != nil && *current > 0 {
			return current
		}
		return &total
	}

	currentYears := defaultCurrentTenure
	if current != nil && *current > 0 {
		currentYears = *current
	}
	past := math.Max(0, total-currentYears)
	avg := (past + currentYears) / float64(companies)
	return &avg
}

func stability(f Frequency, avgTenure *float64) float64 {
	score := 1.0
	switch f {
	case FrequencySlightlyMany:
		score -= 0.1
	case FrequencyTooMany:
		score -= 0.3
	case FrequencyTooFew:
		score -= 0.05
	}

	if avgTenure != nil {
		switch t := *avgTenure; {
		case t >= 4:
			score += 0.2
		case t >= 3:
			score += 0.1
		case t >= 2:
		case t >= 1.5:
			score -= 0.1
		default:
			score -= 0.2
		}
	}
	return math.Max(0, math.Min(1, score))
}

func adjustment(f Frequency, stability float64, avgTenure *float64) float64 {
	// Nothing to judge without age.
	if f == FrequencyUnknown && avgTenure == nil {
		return 1
	}
	factor := 1.0
	switch f {
	case FrequencySlightlyMany:
		factor *= 0.95
	case FrequencyTooMany:
		factor *= 0.8
	case FrequencyTooFew:
		factor *= 0.9
	}

	switch {
	case stability >= highStability:
		factor *= 1.1
	case stability <= lowStability:
		factor *= 0.9
	}

	if avgTenure != nil {
		switch {
		case *avgTenure < shortTenureYears:
			factor *= 0.85
		case *avgTenure > longTenureYears:
			factor *= 1.05
		}
	}
	return math.Max(MinAdjustment, math.Min(MaxAdjustment, factor))
}

var frequencyMessages = map[Frequency]string{
	FrequencyAppropriate:  "Job change frequency is within the normal range",
	FrequencySlightlyMany: "Job changes are somewhat frequent but acceptable",
	FrequencyTooMany:      "Job changes may be too frequent",
	FrequencyTooFew:       "Few job changes; exposure to different environments may be limited",
}

func explanation(a *Assessment) string {
	var parts []string
	if a.Age != nil {
		parts = append(parts, fmt.Sprintf("%d companies by age %d", a.Companies, *a.Age))
	} else {
		parts = append(parts, fmt.Sprintf("%d companies", a.Companies))
	}
	if a.CareerYears != nil && *a.CareerYears > 0 {
		parts = append(parts, fmt.Sprintf("estimated career length %d years", *a.CareerYears))
	}
	if a.AverageTenure != nil {
		parts = append(parts, fmt.Sprintf("average tenure %.1f years", *a.AverageTenure))
	}
	msg, ok := frequencyMessages[a.Frequency]
	if !ok {
		msg = "Job change frequency cannot be judged without the candidate's age"
	}
	parts = append(parts, msg)
	return strings.Join(parts, ". ") + "."
}

func recommendations(a *Assessment) []string {
	var out []string
	switch a.Frequency {
	case FrequencyTooMany:
		out = append(out,
			"Ask in detail about the reasons and motivation for each job change.",
			"Confirm willingness to stay and the long-term career plan.",
			"Check whether past reasons for leaving are consistent.",
		)
	case FrequencySlightlyMany:
		out = append(out,
			"Check that the reasons for changing jobs are reasonable.",
			"Confirm the intention to stay long-term this time.",
		)
	case FrequencyTooFew:
		out = append(out,
			"Check adaptability to new environments in the interview.",
			"Assess appetite for new challenges and learning ability.",
		)
	}
	if a.Stability < riskyStability {
		out = append(out, "Weigh the retention risk carefully.")
	}
	if a.AverageTenure != nil && *a.AverageTenure < shortTenureRiskYears {
		out = append(out,
			"Probe the risk of early departure in the interview.",
			"Agree explicitly on the expected commitment period.",
		)
	}
	return out
}

func riskFactors(age *int, companies int, avgTenure *float64) []string {
	var risks []string
	if age != nil && *age > 0 {
		changes := companies - 1
		switch {
		case *age < 30 && changes >= 4:
			risks = append(risks, "many job changes while in their twenties")
		case *age < 40 && changes >= 6:
			risks = append(risks, "excessive job changes while in their thirties")
		case changes >= 8:
			risks = append(risks, "very high number of job changes")
		}
	}
	if avgTenure != nil {
		switch {
		case *avgTenure < 1.0:
			risks = append(risks, "average tenure under one year")
		case *avgTenure < 1.5:
			risks = append(risks, "tendency toward short tenures")
		}
	}
	if companies == 1 && age != nil && *age > oneEmployerConcernAge {
		risks = append(risks, "single employer so far; adaptability to a new organisation is unproven")
	}
	return risks
}

// Format renders the assessment as a markdown section for prompts.
func (a *Assessment) Format() string {
	if a == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("# Age and tenure\n\n## Summary\n")
	if a.Age != nil {
		fmt.Fprintf(&b, "- Age: %d\n", *a.Age)
	}
	fmt.Fprintf(&b, "- Companies: %d\n", a.Companies)
	if a.CareerYears != nil {
		fmt.Fprintf(&b, "- Estimated career length: %d years\n", *a.CareerYears)
	}
	if a.AverageTenure != nil {
		fmt.Fprintf(&b, "- Average tenure: %.1f years\n", *a.AverageTenure)
	}

	b.WriteString("\n## Result\n")
	fmt.Fprintf(&b, "- Job change frequency: %s\n", a.Frequency)
	fmt.Fprintf(&b, "- Stability: %.0f%%\n", a.Stability*100)
	fmt.Fprintf(&b, "- Adjustment factor: %.2f\n", a.AdjustmentFactor)

	b.WriteString("\n## Explanation\n")
	b.WriteString(a.Explanation)
	b.WriteString("\n")

	if len(a.RiskFactors) > 0 {
		b.WriteString("\n## Risk factors\n")
		for _, r := range a.RiskFactors {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}
	if len(a.Recommendations) > 0 {
		b.WriteString("\n## Recommendations\n")
		for _, r := range a.Recommendations {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}
	return b.String()
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
