package contradiction

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

var experiencePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(\d+)\s*年以上の経験`),
	regexp.MustCompile(`経験\s*(\d+)\s*年`),
	regexp.MustCompile(`(\d+)\s*年間`),
	regexp.MustCompile(`(?i)(\d+)\+?\s*years?`),
}

func experienceYears(text string) (int, bool) {
	for _, re := range experiencePatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

var skillPattern = regexp.MustCompile(`(?i)\b(python|java|javascript|typescript|go|ruby|php|swift|react|vue|angular|django|flask|spring|rails|laravel|mysql|postgresql)\b`)

var canonicalSkills = map[string]string{
	"react":      "React",
	"vue":        "Vue",
	"angular":    "Angular",
	"django":     "Django",
	"rails":      "Rails",
	"mysql":      "MySQL",
	"postgresql": "PostgreSQL",
}

var competingStacks = [][2]string{
	{"React", "Vue"},
	{"Angular", "React"},
	{"Django", "Rails"},
	{"MySQL", "PostgreSQL"},
}

func skillSet(text string) map[string]bool {
	out := make(map[string]bool)
	for _, m := range skillPattern.FindAllString(text, -1) {
		if name, ok := canonicalSkills[strings.ToLower(m)]; ok {
			out[name] = true
		}
	}
	return out
}

func competingSkills(resume, other map[string]bool) [][2]string {
	var out [][2]string
	for _, pair := range competingStacks {
		switch {
		case resume[pair[0]] && other[pair[1]] && !resume[pair[1]]:
			out = append(out, [2]string{pair[0], pair[1]})
		case resume[pair[1]] && other[pair[0]] && !resume[pair[0]]:
			out = append(out, [2]string{pair[1], pair[0]})
		}
	}
	return out
}

func resumeVsSearch(resume string, summaries []namedText) []Contradiction {
	var out []Contradiction

	if years, ok := experienceYears(resume); ok {
		for _, s := range summaries {
			other, ok := experienceYears(s.text)
			if !ok || abs(years-other) <= 2 {
				continue
			}
			out = append(out, Contradiction{
				Topic:    TopicExperienceYears,
				Kind:     KindNumerical,
				Severity: SeverityHigh,
				First:    Source{Name: ResumeSource, Value: fmt.Sprintf("%d years", years), Number: float64(years)},
				Second:   Source{Name: s.name, Value: fmt.Sprintf("%d years", other), Number: float64(other)},
			})
		}
	}

	resumeSkills := skillSet(resume)
	for _, s := range summaries {
		for _, pair := range competingSkills(resumeSkills, skillSet(s.text)) {
			out = append(out, Contradiction{
				Topic:    TopicSkills,
				Kind:     KindSemantic,
				Severity: SeverityMedium,
				First:    Source{Name: ResumeSource, Value: pair[0]},
				Second:   Source{Name: s.name, Value: pair[1]},
			})
		}
	}
	return out
}

// Company size buckets.
const (
	SizeLarge   = "large"
	SizeMid     = "mid-size"
	SizeSME     = "SME"
	SizeStartup = "startup"
)

type labelledPattern struct {
	re    *regexp.Regexp
	label string
}

var sizePatterns = []labelledPattern{
	{regexp.MustCompile(`(?i)大企業|大手|\blarge (?:enterprise|company|corporation)s?\b|\bmajor corporations?\b|\bconglomerate\b`), SizeLarge},
	{regexp.MustCompile(`(?i)中小企業|小規模|\bSMEs?\b|\bsmall and medium|\bsmall business`), SizeSME},
	{regexp.MustCompile(`(?i)中堅企業|中規模|\bmid-?sized?\b|\bmedium-sized\b`), SizeMid},
	{regexp.MustCompile(`(?i)ベンチャー|スタートアップ|\bstart-?ups?\b|\bventure\b`), SizeStartup},
}

var (
	jpHeadcount = regexp.MustCompile(`(\d[\d,]*)\s*(?:人|名)(?:以上|規模)`)
	enHeadcount = regexp.MustCompile(`(?i)(\d[\d,]*)\+?\s*(?:employees|staff)`)
)

// CompanySize classifies the company size mentioned in text, or "".
func CompanySize(text string) string {
	for _, p := range sizePatterns {
		if p.re.MatchString(text) {
			return p.label
		}
	}
	for _, re := range []*regexp.Regexp{jpHeadcount, enHeadcount} {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
		if err != nil {
			continue
		}
		return SizeBucket(n)
	}
	return ""
}

// SizeBucket maps a headcount onto a company size bucket.
func SizeBucket(employees int) string {
	switch {
	case employees >= 1000:
		return SizeLarge
	case employees >= 300:
		return SizeMid
	case employees >= 50:
		return SizeSME
	default:
		return SizeStartup
	}
}

var contradictorySizes = map[[2]string]bool{
	{SizeLarge, SizeStartup}: true,
	{SizeLarge, SizeSME}:     true,
	{SizeMid, SizeStartup}:   true,
}

func sizesConflict(a, b string) bool {
	return contradictorySizes[[2]string{a, b}] || contradictorySizes[[2]string{b, a}]
}

var rolePatterns = []labelledPattern{
	{regexp.MustCompile(`\bCEO\b|代表取締役|社長`), "CEO"},
	{regexp.MustCompile(`\bCTO\b|技術責任者`), "CTO"},
	{regexp.MustCompile(`(?i)\bdirector\b|部長|ディレクター`), "director"},
	{regexp.MustCompile(`(?i)\bmanager\b|課長|マネージャー`), "manager"},
	{regexp.MustCompile(`(?i)\bteam lead\b|\btech lead\b|リーダー|主任`), "lead"},
	{regexp.MustCompile(`(?i)\bengineers?\b|\bdevelopers?\b|エンジニア|開発者`), "engineer"},
	{regexp.MustCompile(`(?i)\banalysts?\b|アナリスト`), "analyst"},
}

func role(text string) string {
	for _, p := range rolePatterns {
		if p.re.MatchString(text) {
			return p.label
		}
	}
	return ""
}

func betweenSearches(summaries []namedText) []Contradiction {
	var out []Contradiction
	for i := 0; i < len(summaries); i++ {
		for j := i + 1; j < len(summaries); j++ {
			a, b := summaries[i], summaries[j]

			if s1, s2 := CompanySize(a.text), CompanySize(b.text); s1 != "" && s2 != "" && sizesConflict(s1, s2) {
				out = append(out, Contradiction{
					Topic:    TopicCompanySize,
					Kind:     KindScale,
					Severity: SeverityMedium,
					First:    Source{Name: a.name, Value: s1},
					Second:   Source{Name: b.name, Value: s2},
				})
			}

			if r1, r2 := role(a.text), role(b.text); r1 != "" && r2 != "" && r1 != r2 {
				out = append(out, Contradiction{
					Topic:    TopicJobRole,
					Kind:     KindCategorical,
					Severity: SeverityHigh,
					First:    Source{Name: a.name, Value: r1},
					Second:   Source{Name: b.name, Value: r2},
				})
			}
		}
	}
	return out
}

var (
	evalScorePattern      = regexp.MustCompile(`(?i)(?:適合度スコア|score)\s*[:：]\s*(\d{1,3})`)
	evalConfidencePattern = regexp.MustCompile(`(?i)(?:確信度|confidence)\s*[:：]\s*(high|medium|low|高|中|低)`)
	negativePattern       = regexp.MustCompile(`(?i)\b(?:lack(?:s|ing)?|missing|insufficient|concerns?|risks?|weak|difficult|limited)\b|不足|欠如|難しい|懸念|リスク|低い|弱い`)
	positivePattern       = regexp.MustCompile(`(?i)\b(?:excellent|extensive|strong|high|match(?:es)?|fits?|proven|solid)\b|優秀|豊富|高い|強い|適合|マッチ|期待できる`)
	hedgingPattern        = regexp.MustCompile(`(?i)\b(?:may|might|possibly|probably|unclear|unknown|ambiguous|seems)\b|可能性|思われる|かもしれない|推測|不明|曖昧`)
)

func withinEvaluation(text string) []Contradiction {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var out []Contradiction
	if m := evalScorePattern.FindStringSubmatch(text); m != nil {
		score, _ := strconv.Atoi(m[1])
		negative := len(negativePattern.FindAllString(text, -1))
		positive := len(positivePattern.FindAllString(text, -1))

		sentiment := ""
		switch {
		case score >= 70 && negative > positive*2:
			sentiment = "negative"
		case score <= 30 && positive > negative*2:
			sentiment = "positive"
		}
		if sentiment != "" {
			out = append(out, Contradiction{
				Topic:    TopicEvaluationConsistency,
				Kind:     KindSemantic,
				Severity: SeverityHigh,
				First:    Source{Name: "score", Value: strconv.Itoa(score), Number: float64(score)},
				Second:   Source{Name: "text_sentiment", Value: sentiment},
			})
		}
	}

	if m := evalConfidencePattern.FindStringSubmatch(text); m != nil {
		label := strings.ToLower(m[1])
		hedges := len(hedgingPattern.FindAllString(text, -1))
		if (label == "high" || label == "高") && hedges > 3 {
			out = append(out, Contradiction{
				Topic:    TopicConfidenceConsistency,
				Kind:     KindSemantic,
				Severity: SeverityMedium,
				First:    Source{Name: "stated_confidence", Value: "high"},
				Second:   Source{Name: "uncertainty_expressions", Value: strconv.Itoa(hedges), Number: float64(hedges)},
			})
		}
	}
	return out
}

var periodPattern = regexp.MustCompile(`(?i)(\d{4})\s*[年/.\-]\s*(\d{1,2})\s*月?\s*(?:-|~|〜|\x{2013}|to|から)\s*(?:(\d{4})\s*[年/.\-]\s*(\d{1,2})\s*月?|現在|present|now|current)`)

type period struct {
	start time.Time
	end   *time.Time
	raw   string
}

func periods(text string) []period {
	var out []period
	for _, m := range periodPattern.FindAllStringSubmatch(text, -1) {
		start, ok := yearMonth(m[1], m[2])
		if !ok {
			continue
		}
		p := period{start: start, raw: strings.TrimSpace(m[0])}
		if m[3] != "" {
			if end, ok := yearMonth(m[3], m[4]); ok {
				p.end = &end
			}
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].start.Before(out[j].start) })
	return out
}

func yearMonth(year, month string) (time.Time, bool) {
	y, err := strconv.Atoi(year)
	if err != nil || y < 1950 {
		return time.Time{}, false
	}
	m, err := strconv.Atoi(month)
	if err != nil || m < 1 || m > 12 {
		return time.Time{}, false
	}
	return time.Date(y, time.Month(m), 1, 0, 0, 0, 0, time.UTC), true
}

func timelineOverlaps(resume string) []Contradiction {
	ps := periods(resume)
	var out []Contradiction
	for i := 0; i+1 < len(ps); i++ {
		cur, next := ps[i], ps[i+1]
		if cur.end == nil || !cur.end.After(next.start) {
			continue
		}
		out = append(out, Contradiction{
			Topic:    TopicCareerTimeline,
			Kind:     KindTemporal,
			Severity: SeverityHigh,
			First:    Source{Name: "position1", Value: cur.raw},
			Second:   Source{Name: "position2", Value: next.raw},
		})
	}
	return out
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
