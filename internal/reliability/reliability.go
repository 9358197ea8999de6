// Package reliability scores web sources on domain trust, freshness, content
// quality and internal consistency.
package reliability

import (
	"math"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spigell/hh-researcher/internal/ai"
)

const (
	weightDomain      = 0.4
	weightFreshness   = 0.3
	weightQuality     = 0.2
	weightConsistency = 0.1

	// DefaultThreshold is the reliability a result needs to be used without a caveat.
	DefaultThreshold = 0.6

	unknownScore    = 0.5
	httpsScore      = 0.65
	freshnessWindow = 500
)

const (
	WarnLowTrustDomain = "low trust domain"
	WarnOutdated       = "information may be outdated"
	WarnLowQuality     = "content quality may be poor"
	WarnInconsistent   = "content contains hedged or conflicting statements"
)

type domainScore struct {
	domain string
	score  float64
}

// Entries starting with a dot are suffix matches (".go.jp" matches "www.meti.go.jp").
var trustedDomains = []domainScore{
	{"nikkei.com", 0.9},
	{"reuters.com", 0.9},
	{"bloomberg.com", 0.9},
	{"toyokeizai.net", 0.85},
	{"diamond.jp", 0.85},
	{"ft.com", 0.9},
	{"wsj.com", 0.9},
	{"kabutan.jp", 0.85},
	{"ullet.com", 0.85},
	{"shikiho.jp", 0.9},
	{"crunchbase.com", 0.8},
	{"github.com", 0.85},
	{"stackoverflow.com", 0.8},
	{"qiita.com", 0.75},
	{"zenn.dev", 0.75},
	{"dev.to", 0.7},
	{".go.jp", 0.95},
	{".gov", 0.95},
	{".gov.uk", 0.95},
	{"indeed.com", 0.8},
	{"linkedin.com", 0.8},
	{"bizreach.jp", 0.8},
	{"rikunabi.com", 0.75},
	{"mynavi.jp", 0.75},
	{"glassdoor.com", 0.75},
}

var untrustedDomains = []domainScore{
	{"wikipedia.org", 0.6},
	{"yahoo.co.jp", 0.5},
	{"5ch.net", 0.3},
	{"reddit.com", 0.4},
	{"twitter.com", 0.4},
	{"x.com", 0.4},
	{"facebook.com", 0.4},
	{"instagram.com", 0.4},
	{"tiktok.com", 0.35},
}

var (
	citationMarkers = []string{"出典", "引用", "ソース", "参考", "参照", "による", "発表", "according to", "source:", "reported", "survey"}
	adMarkers       = []string{"PR", "広告", "スポンサー", "今すぐ", "無料", "クリック", "sponsored", "advertisement", "buy now", "click here", "free trial"}
	hedgeMarkers    = []string{
		"しかし", "ただし", "一方で", "異なる", "矛盾", "不確実", "不明", "推測", "可能性", "かもしれない",
		"however", "although", "uncertain", "unclear", "unknown", "might", "may be", "reportedly", "allegedly", "conflicting",
	}
)

var (
	numberPattern = regexp.MustCompile(`\d+(?:\.\d+)?[%％]?`)
	ymdPattern    = regexp.MustCompile(`(\d{4})[年/.\-](\d{1,2})[月/.\-](\d{1,2})`)
	mdyPattern    = regexp.MustCompile(`(\d{1,2})/(\d{1,2})/(\d{4})`)
)

// Factors are the four sub-scores, each in [0,1].
type Factors struct {
	DomainTrust    float64 `json:"domain_trust"`
	Freshness      float64 `json:"freshness"`
	ContentQuality float64 `json:"content_quality"`
	Consistency    float64 `json:"consistency"`
}

// Assessment is the reliability verdict for one source.
type Assessment struct {
	Score    float64  `json:"reliability_score"`
	Factors  Factors  `json:"factors"`
	Warnings []string `json:"warnings,omitempty"`
}

// Scorer computes reliability. The zero value is not usable; call New.
type Scorer struct {
	now func() time.Time
}

// Option customises a Scorer.
type Option func(*Scorer)

// WithClock sets the reference time for freshness.
func WithClock(now func() time.Time) Option {
	return func(s *Scorer) { s.now = now }
}

func New(opts ...Option) *Scorer {
	s := &Scorer{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score rates a single web result.
func (s *Scorer) Score(r ai.WebResult) Assessment {
	f := Factors{
		DomainTrust:    DomainTrust(r.URL),
		Freshness:      s.freshness(r),
		ContentQuality: ContentQuality(r.Content),
		Consistency:    Consistency(r.Content),
	}

	total := f.DomainTrust*weightDomain +
		f.Freshness*weightFreshness +
		f.ContentQuality*weightQuality +
		f.Consistency*weightConsistency

	var warnings []string
	if f.DomainTrust < 0.5 {
		warnings = append(warnings, WarnLowTrustDomain)
	}
	if f.Freshness < 0.5 {
		warnings = append(warnings, WarnOutdated)
	}
	if f.ContentQuality < 0.5 {
		warnings = append(warnings, WarnLowQuality)
	}
	if f.Consistency < 0.5 {
		warnings = append(warnings, WarnInconsistent)
	}

	return Assessment{
		Score:    round2(clamp01(total)),
		Factors:  f,
		Warnings: warnings,
	}
}

// Rank scores every result, stores the score and warnings on it and returns a
// copy ordered by reliability descending. Equal scores keep provider order.
func (s *Scorer) Rank(results []ai.WebResult) []ai.WebResult {
	out := make([]ai.WebResult, len(results))
	for i, r := range results {
		a := s.Score(r)
		r.Reliability = a.Score
		r.Warnings = append(append([]string(nil), r.Warnings...), a.Warnings...)
		out[i] = r
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Reliability > out[j].Reliability })
	return out
}

// DomainTrust looks the host up in the trust tables, falling back to an HTTPS
// bonus.
func DomainTrust(rawURL string) float64 {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return unknownScore
	}
	host := strings.ToLower(u.Hostname())

	for _, table := range [][]domainScore{trustedDomains, untrustedDomains} {
		for _, d := range table {
			if matchesDomain(host, d.domain) {
				return d.score
			}
		}
	}

	if u.Scheme == "https" {
		return httpsScore
	}
	return unknownScore
}

func matchesDomain(host, domain string) bool {
	if strings.HasPrefix(domain, ".") {
		return strings.HasSuffix(host, domain)
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}

func (s *Scorer) freshness(r ai.WebResult) float64 {
	published := r.PublishedAt
	if published == nil {
		published = extractDate(r.URL)
	}
	if published == nil {
		published = extractDate(prefix(r.Content, freshnessWindow))
	}
	if published == nil {
		return unknownScore
	}

	days := int(s.now().Sub(*published).Hours() / 24)
	switch {
	case days < 30:
		return 1.0
	case days < 90:
		return 0.8
	case days < 180:
		return 0.6
	case days < 365:
		return 0.4
	default:
		return 0.2
	}
}

func extractDate(text string) *time.Time {
	if m := ymdPattern.FindStringSubmatch(text); m != nil {
		if t, ok := makeDate(m[1], m[2], m[3]); ok {
			return &t
		}
	}
	if m := mdyPattern.FindStringSubmatch(text); m != nil {
		if t, ok := makeDate(m[3], m[1], m[2]); ok {
			return &t
		}
	}
	return nil
}

func makeDate(year, month, day string) (time.Time, bool) {
	y, _ := strconv.Atoi(year)
	m, _ := strconv.Atoi(month)
	d, _ := strconv.Atoi(day)
	if y < 1900 || m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	// reject normalised overflow such as 2024-02-31
	if t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

// ContentQuality rewards longer, data-backed and cited text and penalises
// advertising.
func ContentQuality(content string) float64 {
	score := 1.0
	if utf8.RuneCountInString(content) < 200 {
		score -= 0.2
	}
	if len(numberPattern.FindAllString(content, -1)) > 2 {
		score += 0.1
	}
	lower := strings.ToLower(content)
	if containsAny(lower, citationMarkers) {
		score += 0.1
	}
	if strings.Contains(content, "PR") || containsAny(lower, adMarkers[1:]) {
		score -= 0.2
	}
	return clamp01(score)
}

// Consistency drops 0.1 per hedging marker present, with a floor of 0.3.
func Consistency(content string) float64 {
	lower := strings.ToLower(content)
	count := 0
	for _, m := range hedgeMarkers {
		if strings.Contains(lower, m) {
			count++
		}
	}
	return math.Max(0.3, 1.0-float64(count)*0.1)
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

func prefix(s string, runes int) string {
	if utf8.RuneCountInString(s) <= runes {
		return s
	}
	return string([]rune(s)[:runes])
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
