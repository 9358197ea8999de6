// Package weights derives the evaluation category weights for a job.
//
// Adjust runs a fixed sequence of pure steps over a Profile value. Each step
// returns a new profile and the result is renormalised after every step, so
// the order of steps is the only state.
package weights

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Dimension names one evaluation category.
type Dimension string

const (
	RequiredSkills    Dimension = "required_skills"
	PracticalAbility  Dimension = "practical_ability"
	PreferredSkills   Dimension = "preferred_skills"
	OrganisationalFit Dimension = "organisational_fit"
	OutstandingCareer Dimension = "outstanding_career"
)

// Dimensions lists the categories in presentation order.
var Dimensions = []Dimension{RequiredSkills, PracticalAbility, PreferredSkills, OrganisationalFit, OutstandingCareer}

var labels = map[Dimension]string{
	RequiredSkills:    "required skills",
	PracticalAbility:  "practical ability",
	PreferredSkills:   "preferred skills",
	OrganisationalFit: "organisational fit",
	OutstandingCareer: "outstanding career",
}

// Label is the human-readable category name.
func (d Dimension) Label() string { return labels[d] }

// Profile holds one weight per category.
type Profile struct {
	RequiredSkills    float64 `json:"required_skills"`
	PracticalAbility  float64 `json:"practical_ability"`
	PreferredSkills   float64 `json:"preferred_skills"`
	OrganisationalFit float64 `json:"organisational_fit"`
	OutstandingCareer float64 `json:"outstanding_career"`
}

func Default() Profile {
	return Profile{
		RequiredSkills:    0.45,
		PracticalAbility:  0.25,
		PreferredSkills:   0.15,
		OrganisationalFit: 0.10,
		OutstandingCareer: 0.05,
	}
}

func (p Profile) Get(d Dimension) float64 {
	switch d {
	case RequiredSkills:
		return p.RequiredSkills
	case PracticalAbility:
		return p.PracticalAbility
	case PreferredSkills:
		return p.PreferredSkills
	case OrganisationalFit:
		return p.OrganisationalFit
	case OutstandingCareer:
		return p.OutstandingCareer
	}
	return 0
}

func (p Profile) with(d Dimension, v float64) Profile {
	switch d {
	case RequiredSkills:
		p.RequiredSkills = v
	case PracticalAbility:
		p.PracticalAbility = v
	case PreferredSkills:
		p.PreferredSkills = v
	case OrganisationalFit:
		p.OrganisationalFit = v
	case OutstandingCareer:
		p.OutstandingCareer = v
	}
	return p
}

func (p Profile) Sum() float64 {
	return p.RequiredSkills + p.PracticalAbility + p.PreferredSkills + p.OrganisationalFit + p.OutstandingCareer
}

// Normalize scales the profile to sum to 1. A zero profile becomes Default.
func (p Profile) Normalize() Profile {
	total := p.Sum()
	if total <= 0 {
		return Default()
	}
	for _, d := range Dimensions {
		p = p.with(d, p.Get(d)/total)
	}
	return p
}

// Multipliers scales selected dimensions; missing dimensions are unchanged.
type Multipliers map[Dimension]float64

func (p Profile) Scale(m Multipliers) Profile {
	for d, f := range m {
		p = p.with(d, p.Get(d)*f)
	}
	return p
}

// Job carries the signals the adjuster reads. Structured fields win over text
// extraction when set.
type Job struct {
	Title              string
	Description        string
	Memo               string
	Industry           string
	ExperienceYearsMin *int
	SalaryMax          *int
}

// Result is the adjusted profile with a terse explanation.
type Result struct {
	Profile     Profile  `json:"profile"`
	Applied     []string `json:"applied"`
	Explanation string   `json:"explanation"`
}

// step returns the adjusted profile and a note, or ok=false when it does not
// apply to the job.
type step func(Profile, Job) (Profile, string, bool)

var pipeline = []step{
	industryStep,
	roleStep,
	keywordStep,
	experienceStep,
	salaryStep,
}

// Adjust runs the pipeline from the default profile.
func Adjust(job Job) Result {
	p := Default()
	var applied []string
	for _, s := range pipeline {
		next, note, ok := s(p, job)
		if !ok {
			continue
		}
		p = next.Normalize()
		applied = append(applied, note)
	}
	return Result{
		Profile:     p,
		Applied:     applied,
		Explanation: Explain(p, applied),
	}
}

// terms matches ASCII keywords on word boundaries and other keywords as
// substrings.
func terms(list ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(list))
	for _, t := range list {
		quoted := regexp.QuoteMeta(t)
		ascii := true
		for _, r := range t {
			if r > 127 {
				ascii = false
				break
			}
		}
		if ascii {
			out = append(out, regexp.MustCompile(`(?i)\b`+quoted+`\b`))
		} else {
			out = append(out, regexp.MustCompile(quoted))
		}
	}
	return out
}

func countTerms(text string, list []*regexp.Regexp) int {
	n := 0
	for _, re := range list {
		if re.MatchString(text) {
			n++
		}
	}
	return n
}

type industry struct {
	name     string
	keywords []*regexp.Regexp
	profile  *Profile
}

// Industries with a nil profile are recognised but keep the current weights.
var industries = []industry{
	{"finance", terms("金融", "銀行", "証券", "保険", "ファイナンス", "投資", "資産運用", "finance", "banking", "bank", "insurance", "securities", "fintech"),
		&Profile{RequiredSkills: 0.40, PracticalAbility: 0.20, PreferredSkills: 0.10, OrganisationalFit: 0.25, OutstandingCareer: 0.05}},
	{"manufacturing", terms("製造", "メーカー", "工場", "生産", "品質管理", "製品開発", "量産", "manufacturing", "factory", "production"),
		&Profile{RequiredSkills: 0.45, PracticalAbility: 0.30, PreferredSkills: 0.10, OrganisationalFit: 0.10, OutstandingCareer: 0.05}},
	{"consulting", terms("コンサル", "戦略立案", "アドバイザリー", "経営支援", "業務改善", "consulting", "advisory"),
		&Profile{RequiredSkills: 0.40, PracticalAbility: 0.25, PreferredSkills: 0.15, OrganisationalFit: 0.10, OutstandingCareer: 0.10}},
	{"startup", terms("スタートアップ", "ベンチャー", "創業", "急成長", "新規事業", "startup", "start-up", "early stage", "fast-growing"),
		&Profile{RequiredSkills: 0.35, PracticalAbility: 0.30, PreferredSkills: 0.10, OrganisationalFit: 0.15, OutstandingCareer: 0.10}},
	{"retail", terms("小売", "流通", "販売", "店舗", "リテール", "retail", "e-commerce"), nil},
	{"healthcare", terms("医療", "病院", "クリニック", "製薬", "ヘルスケア", "医薬品", "healthcare", "pharma", "hospital"), nil},
	{"real estate", terms("不動産", "建設", "ゼネコン", "デベロッパー", "賃貸", "real estate", "construction"), nil},
	{"IT", terms("ソフトウェア開発", "プログラミング", "エンジニア", "IT企業", "テック企業", "SaaS", "AI", "機械学習", "software", "engineering", "machine learning", "cloud"),
		&Profile{RequiredSkills: 0.50, PracticalAbility: 0.25, PreferredSkills: 0.15, OrganisationalFit: 0.05, OutstandingCareer: 0.05}},
}

// DetectIndustry picks the industry with the most keyword hits in the job
// text, or the structured industry when it names a known one. Ties keep
// table order.
func DetectIndustry(job Job) string {
	if job.Industry != "" {
		for _, ind := range industries {
			if countTerms(job.Industry, ind.keywords) > 0 || strings.EqualFold(job.Industry, ind.name) {
				return ind.name
			}
		}
	}
	text := job.Description + " " + job.Title
	best, bestHits := "", 0
	for _, ind := range industries {
		if hits := countTerms(text, ind.keywords); hits > bestHits {
			best, bestHits = ind.name, hits
		}
	}
	return best
}

func industryStep(p Profile, job Job) (Profile, string, bool) {
	name := DetectIndustry(job)
	for _, ind := range industries {
		if ind.name == name && ind.profile != nil {
			return *ind.profile, "industry profile: " + name, true
		}
	}
	return p, "", false
}

type role struct {
	name        string
	keywords    []*regexp.Regexp
	multipliers Multipliers
}

var roles = []role{
	{"engineer", terms("エンジニア", "開発", "プログラマ", "developer", "engineer", "programmer"),
		Multipliers{RequiredSkills: 1.2, OrganisationalFit: 0.8}},
	{"manager", terms("マネージャー", "管理", "リーダー", "課長", "部長", "manager", "team lead", "head of"),
		Multipliers{PracticalAbility: 1.2, OrganisationalFit: 1.1}},
	{"executive", terms("執行役員", "取締役", "CTO", "CFO", "COO", "経営", "executive", "vice president", "VP"),
		Multipliers{OrganisationalFit: 1.3, OutstandingCareer: 1.5}},
	{"sales", terms("営業", "セールス", "アカウント", "sales", "account executive"),
		Multipliers{PracticalAbility: 1.2, PreferredSkills: 0.9}},
	{"planning", terms("企画", "プランナー", "ストラテジスト", "マーケティング", "planner", "strategist", "marketing"),
		Multipliers{RequiredSkills: 0.9, PracticalAbility: 1.1, OutstandingCareer: 1.2}},
}

func roleStep(p Profile, job Job) (Profile, string, bool) {
	for _, r := range roles {
		if countTerms(job.Title, r.keywords) > 0 {
			return p.Scale(r.multipliers), "role: " + r.name, true
		}
	}
	return p, "", false
}

var keywords = []role{
	{"immediate-impact", terms("即戦力", "immediate impact", "hit the ground running", "ready to contribute"),
		Multipliers{PracticalAbility: 1.3, RequiredSkills: 1.1}},
	{"potential", terms("ポテンシャル", "potential"),
		Multipliers{OrganisationalFit: 1.2, PreferredSkills: 1.1, RequiredSkills: 0.9}},
	{"leadership", terms("リーダーシップ", "leadership"),
		Multipliers{PracticalAbility: 1.2, OutstandingCareer: 1.2}},
	{"expertise", terms("専門性", "expertise", "specialist"),
		Multipliers{RequiredSkills: 1.3, PracticalAbility: 1.1}},
	{"teamwork", terms("チームワーク", "teamwork", "collaboration"),
		Multipliers{OrganisationalFit: 1.3, PracticalAbility: 0.9}},
	{"innovation", terms("イノベーション", "innovation", "innovative"),
		Multipliers{OutstandingCareer: 1.4, PreferredSkills: 1.2}},
}

func keywordStep(p Profile, job Job) (Profile, string, bool) {
	text := job.Description + " " + job.Memo + " " + job.Title
	var hit []string
	for _, k := range keywords {
		if countTerms(text, k.keywords) > 0 {
			p = p.Scale(k.multipliers)
			hit = append(hit, k.name)
		}
	}
	if len(hit) == 0 {
		return p, "", false
	}
	return p, "keywords: " + strings.Join(hit, ", "), true
}

var experiencePattern = regexp.MustCompile(`(?i)(\d+)\s*年以上|(\d+)\+?\s*years?`)

// ExperienceYears returns the minimum years of experience a job asks for.
func ExperienceYears(job Job) (int, bool) {
	if job.ExperienceYearsMin != nil && *job.ExperienceYearsMin > 0 {
		return *job.ExperienceYearsMin, true
	}
	m := experiencePattern.FindStringSubmatch(job.Description)
	if m == nil {
		return 0, false
	}
	raw := m[1]
	if raw == "" {
		raw = m[2]
	}
	var n int
	if _, err := fmt.Sscanf(raw, "%d", &n); err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func experienceStep(p Profile, job Job) (Profile, string, bool) {
	years, ok := ExperienceYears(job)
	if !ok {
		return p, "", false
	}
	switch {
	case years >= 10:
		return p.Scale(Multipliers{PracticalAbility: 1.2, OrganisationalFit: 1.2, OutstandingCareer: 1.3}), "experience band: senior", true
	case years >= 5:
		return p.Scale(Multipliers{RequiredSkills: 1.1, PracticalAbility: 1.1}), "experience band: mid", true
	default:
		return p.Scale(Multipliers{RequiredSkills: 1.2, PreferredSkills: 1.1}), "experience band: junior", true
	}
}

const (
	highSalary = 10_000_000
	midSalary  = 7_000_000
)

func salaryStep(p Profile, job Job) (Profile, string, bool) {
	if job.SalaryMax == nil {
		return p, "", false
	}
	switch top := *job.SalaryMax; {
	case top >= highSalary:
		return p.Scale(Multipliers{RequiredSkills: 1.1, PracticalAbility: 1.2, OrganisationalFit: 1.2, OutstandingCareer: 1.3}), "salary band: high", true
	case top >= midSalary:
		return p.Scale(Multipliers{PracticalAbility: 1.15, RequiredSkills: 1.05}), "salary band: mid", true
	}
	return p, "", false
}

// Explain names the two heaviest categories and notable emphases.
func Explain(p Profile, applied []string) string {
	ordered := append([]Dimension(nil), Dimensions...)
	sort.SliceStable(ordered, func(i, j int) bool { return p.Get(ordered[i]) > p.Get(ordered[j]) })

	parts := []string{
		fmt.Sprintf("top: %s (%.0f%%)", ordered[0].Label(), p.Get(ordered[0])*100),
		fmt.Sprintf("next: %s (%.0f%%)", ordered[1].Label(), p.Get(ordered[1])*100),
	}
	if p.RequiredSkills > 0.5 {
		parts = append(parts, "technical requirements weigh heavily")
	}
	if p.OrganisationalFit > 0.15 {
		parts = append(parts, "culture fit emphasised")
	}
	if p.OutstandingCareer > 0.1 {
		parts = append(parts, "distinctive careers rewarded")
	}
	if len(applied) > 0 {
		parts = append(parts, "applied "+strings.Join(applied, "; "))
	}
	return strings.Join(parts, " / ")
}
