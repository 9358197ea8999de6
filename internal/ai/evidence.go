package ai

import (
	"strings"
	"time"
)

// InfoType tags what kind of information a gap asks for.
type InfoType string

const (
	InfoEnvironmentalFit        InfoType = "environmental-fit"
	InfoPracticalAbility        InfoType = "practical-ability"
	InfoRoleExpectation         InfoType = "role-expectation"
	InfoMarketValue             InfoType = "market-value"
	InfoRequirementCheck        InfoType = "requirement-check"
	InfoContradictionResolution InfoType = "contradiction-resolution"
	InfoOther                   InfoType = "other"
)

var infoTypeAliases = map[InfoType][]string{
	InfoEnvironmentalFit:        {"environmental", "environment", "company size", "company-size", "culture", "企業規模", "環境適合", "環境"},
	InfoPracticalAbility:        {"practical", "ability", "実務", "実績"},
	InfoRoleExpectation:         {"role", "expectation", "役割", "期待"},
	InfoMarketValue:             {"market", "salary", "trend", "市場", "技術トレンド", "業界標準"},
	InfoRequirementCheck:        {"requirement", "skill", "必須", "スキル要件", "要件"},
	InfoContradictionResolution: {"contradiction", "conflict", "矛盾"},
}

// ParseInfoType maps a label produced by a model onto the closed tag set.
func ParseInfoType(raw string) InfoType {
	s := normalizeLabel(raw)
	if s == "" {
		return InfoOther
	}
	for _, known := range []InfoType{
		InfoEnvironmentalFit, InfoPracticalAbility, InfoRoleExpectation,
		InfoMarketValue, InfoRequirementCheck, InfoContradictionResolution, InfoOther,
	} {
		if s == string(known) {
			return known
		}
	}
	// contradiction first: "contradiction in requirement" is still a contradiction gap
	for _, candidate := range []InfoType{
		InfoContradictionResolution, InfoEnvironmentalFit, InfoPracticalAbility,
		InfoRoleExpectation, InfoMarketValue, InfoRequirementCheck,
	} {
		if hasAny(s, infoTypeAliases[candidate]...) {
			return candidate
		}
	}
	return InfoOther
}

// InformationGap is a missing piece of evidence together with the query that
// should fill it.
type InformationGap struct {
	InfoType    InfoType   `json:"info_type"`
	Description string     `json:"description"`
	SearchQuery string     `json:"search_query"`
	Importance  Importance `json:"importance"`
	Rationale   string     `json:"rationale"`
}

// Source values for WebResult.
const (
	SourceWeb       = "web"
	SourceSimulated = "simulated"
)

// WebResult is a single ranked hit, enriched with its reliability.
type WebResult struct {
	Title         string     `json:"title"`
	Content       string     `json:"content"`
	URL           string     `json:"url"`
	ProviderScore float64    `json:"provider_score"`
	PublishedAt   *time.Time `json:"published_at,omitempty"`
	Source        string     `json:"source"`
	Reliability   float64    `json:"reliability_score"`
	Warnings      []string   `json:"warnings,omitempty"`
}

// SearchResult is the summarised outcome of executing one gap query.
type SearchResult struct {
	Query     string      `json:"query"`
	Results   []WebResult `json:"results"`
	Summary   string      `json:"summary"`
	Sources   []string    `json:"sources"`
	Timestamp time.Time   `json:"timestamp"`
}

// Clone returns a deep copy.
func (s *SearchResult) Clone() *SearchResult {
	if s == nil {
		return nil
	}
	out := *s
	out.Results = make([]WebResult, len(s.Results))
	for i, r := range s.Results {
		r.Warnings = append([]string(nil), r.Warnings...)
		if r.PublishedAt != nil {
			t := *r.PublishedAt
			r.PublishedAt = &t
		}
		out.Results[i] = r
	}
	out.Sources = append([]string(nil), s.Sources...)
	return &out
}

// Simulated reports whether every result was synthesised instead of fetched.
func (s *SearchResult) Simulated() bool {
	if s == nil || len(s.Results) == 0 {
		return false
	}
	for _, r := range s.Results {
		if r.Source != SourceSimulated {
			return false
		}
	}
	return true
}

func normalizeLabel(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, "[]()「」*`\"' ")
	return strings.ToLower(strings.TrimSpace(s))
}

func hasAny(s string, needles ...string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(s, n) {
			return true
		}
	}
	return false
}
