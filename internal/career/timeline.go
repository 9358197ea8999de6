package career

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Period is one position on the candidate's timeline. A nil End means the
// position is current.
type Period struct {
	Role       string     `json:"role"`
	Company    string     `json:"company"`
	Department string     `json:"department,omitempty"`
	Start      time.Time  `json:"start"`
	End        *time.Time `json:"end,omitempty"`
	Skills     []string   `json:"skills"`
	Text       string     `json:"-"`
	Relevant   bool       `json:"relevant"`
}

// Current reports whether the period has no end date.
func (p Period) Current() bool { return p.End == nil }

const unknown = "unknown"

var (
	periodLine = regexp.MustCompile(`(?i)(\d{4})\s*(?:年|[/.\-])?\s*(\d{1,2})?\s*月?\s*(?:～|〜|~|-|\x{2013}|\x{2014}|to|から)\s*(?:(\d{4})\s*(?:年|[/.\-])?\s*(\d{1,2})?\s*月?|現在|present|now|current)`)
	detailLine = regexp.MustCompile(`^(?:-|・|\*|•)\s*`)

	companyPattern = regexp.MustCompile(`株式会社[ァ-ヶー一-龥A-Za-z0-9]+|[ァ-ヶー一-龥A-Za-z0-9]+株式会社|[ァ-ヶー一-龥A-Za-z0-9]+(?:会社|ソフトウェア|システム|テック)|[A-Z][A-Za-z0-9&]*(?:\s+[A-Z][A-Za-z0-9&]*)*\s+(?:Inc|Corp|Ltd|LLC|GmbH|Co)\.?`)

	rolePatterns = []*regexp.Regexp{
		regexp.MustCompile(`エンジニア|プログラマー?|開発者|\bSE\b`),
		regexp.MustCompile(`マネージャー?|リーダー?|主任|係長|課長|部長`),
		regexp.MustCompile(`営業|企画|管理|コンサルタント|担当`),
		regexp.MustCompile(`(?i)\b(?:software |backend |frontend |platform |data )?(?:engineer|developer|programmer|architect)\b`),
		regexp.MustCompile(`(?i)\b(?:engineering |product |project )?(?:manager|director|team lead|tech lead)\b`),
		regexp.MustCompile(`(?i)\b(?:sales|account executive|consultant|analyst|marketer|planner)\b`),
	}

	departmentPatterns = []*regexp.Regexp{
		regexp.MustCompile(`開発部|営業部|企画部|管理部|システム部|技術部|設計部|製造部`),
		regexp.MustCompile(`[ァ-ヶー一-龥]+(?:部|チーム|課)`),
		regexp.MustCompile(`(?i)\b[A-Za-z]+\s+(?:department|dept\.?|division|team)\b`),
	}

	techSkills     = regexp.MustCompile(`\b(?:Python|Java|JavaScript|TypeScript|Go|Golang|Ruby|PHP|Swift|Kotlin|Rust|React|Vue|Angular|Django|Flask|Spring|Rails|Laravel|AWS|Azure|GCP|Docker|Kubernetes|Terraform|Kafka|PostgreSQL|MySQL)\b|C\+\+|C#`)
	businessSkills = []string{"マネジメント", "リーダーシップ", "プロジェクト管理", "営業", "マーケティング",
		"management", "leadership", "project management", "sales", "marketing"}
)

// ExtractTimeline parses dated position lines and the bullet lines under
// them. Periods are returned newest first.
func ExtractTimeline(resume string) []Period {
	var timeline []Period
	current := -1

	for _, line := range strings.Split(resume, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if m := periodLine.FindStringSubmatchIndex(line); m != nil {
			start, ok := parseYearMonth(group(line, m, 1), group(line, m, 2))
			if !ok {
				continue
			}
			p := Period{
				Role:       firstMatch(line, rolePatterns, unknown),
				Company:    companyName(line),
				Department: firstMatch(line, departmentPatterns, ""),
				Start:      start,
				Text:       line,
			}
			if year := group(line, m, 3); year != "" {
				if end, ok := parseYearMonth(year, group(line, m, 4)); ok {
					p.End = &end
				}
			}
			p.Skills = extractSkills(line)
			timeline = append(timeline, p)
			current = len(timeline) - 1
			continue
		}

		if current >= 0 && detailLine.MatchString(line) {
			p := &timeline[current]
			p.Text += "\n" + line
			p.Skills = appendUnique(p.Skills, extractSkills(line)...)
		}
	}

	sort.SliceStable(timeline, func(i, j int) bool {
		return timeline[i].Start.After(timeline[j].Start)
	})
	return timeline
}

func group(s string, loc []int, n int) string {
	if loc[2*n] < 0 {
		return ""
	}
	return s[loc[2*n]:loc[2*n+1]]
}

func parseYearMonth(year, month string) (time.Time, bool) {
	y, err := strconv.Atoi(year)
	if err != nil || y < 1950 || y > 2100 {
		return time.Time{}, false
	}
	m, err := strconv.Atoi(month)
	if err != nil || m < 1 || m > 12 {
		m = 1
	}
	return time.Date(y, time.Month(m), 1, 0, 0, 0, 0, time.UTC), true
}

func companyName(line string) string {
	if name := companyPattern.FindString(line); name != "" {
		return strings.TrimSpace(name)
	}
	return unknown
}

func firstMatch(line string, patterns []*regexp.Regexp, fallback string) string {
	for _, re := range patterns {
		if m := re.FindString(line); m != "" {
			return strings.TrimSpace(m)
		}
	}
	return fallback
}

func extractSkills(text string) []string {
	skills := appendUnique(nil, techSkills.FindAllString(text, -1)...)
	lower := strings.ToLower(text)
	for _, s := range businessSkills {
		if strings.Contains(lower, s) {
			skills = appendUnique(skills, s)
		}
	}
	return skills
}

func appendUnique(dst []string, items ...string) []string {
	for _, item := range items {
		dup := false
		for _, existing := range dst {
			if strings.EqualFold(existing, item) {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, item)
		}
	}
	return dst
}

// Industry is a coarse industry bucket inferred from a company name.
type Industry string

const (
	IndustryIT            Industry = "IT"
	IndustryFinance       Industry = "finance"
	IndustryManufacturing Industry = "manufacturing"
)

// RoleFamily groups roles for career-change detection.
type RoleFamily string

const (
	FamilyTechnical  RoleFamily = "technical"
	FamilyBusiness   RoleFamily = "business"
	FamilyManagement RoleFamily = "management"
)

type classifier[T ~string] struct {
	label T
	re    *regexp.Regexp
}

// Checked in order, first hit wins.
var (
	industries = []classifier[Industry]{
		{IndustryManufacturing, regexp.MustCompile(`(?i)製造|メーカー|工業|製作|manufactur|industries|motors`)},
		{IndustryFinance, regexp.MustCompile(`(?i)銀行|証券|保険|金融|bank|securities|insurance|financial`)},
		{IndustryIT, regexp.MustCompile(`(?i)システム|ソフトウェア|テクノロジー|テック|software|systems|technolog|tech|(?-i:IT)`)},
	}
	roleFamilies = []classifier[RoleFamily]{
		{FamilyManagement, regexp.MustCompile(`(?i)マネージャー|リーダー|管理|ディレクター|課長|部長|manager|lead|director`)},
		{FamilyBusiness, regexp.MustCompile(`(?i)営業|マーケティング|企画|コンサル|sales|marketing|consultant|planner`)},
		{FamilyTechnical, regexp.MustCompile(`(?i)エンジニア|開発|プログラマ|設計|engineer|developer|programmer|architect`)},
	}
)

func classify[T ~string](text string, table []classifier[T]) T {
	for _, c := range table {
		if c.re.MatchString(text) {
			return c.label
		}
	}
	var zero T
	return zero
}

// ClassifyIndustry returns the industry bucket of a company name, or "".
func ClassifyIndustry(company string) Industry { return classify(company, industries) }

// ClassifyRole returns the family of a role title, or "".
func ClassifyRole(role string) RoleFamily { return classify(role, roleFamilies) }
