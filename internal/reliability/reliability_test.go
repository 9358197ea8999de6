package reliability

import (
	"strings"
	"testing"
	"time"

	"github.com/spigell/hh-researcher/internal/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var refTime = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func daysAgo(n int) *time.Time {
	t := refTime.AddDate(0, 0, -n)
	return &t
}

func TestDomainTrust(t *testing.T) {
	t.Parallel()

	tests := map[string]float64{
		"https://www.nikkei.com/article/1":  0.9,
		"https://sub.github.com/org/repo":   0.85,
		"https://www.meti.go.jp/press/2026": 0.95,
		"https://5ch.net/thread":            0.3,
		"https://x.com/someone/status/1":    0.4,
		"https://example.org/about":         0.65,
		"http://example.org/about":          0.5,
		"simulated://industry-knowledge":    0.5,
		"not a url":                         0.5,
	}

	for raw, want := range tests {
		assert.InDelta(t, want, DomainTrust(raw), 1e-9, raw)
	}
}

func TestFreshnessBuckets(t *testing.T) {
	t.Parallel()

	s := New(WithClock(func() time.Time { return refTime }))
	tests := []struct {
		age  int
		want float64
	}{
		{age: 10, want: 1.0},
		{age: 60, want: 0.8},
		{age: 120, want: 0.6},
		{age: 200, want: 0.4},
		{age: 400, want: 0.2},
	}

	for _, tt := range tests {
		got := s.Score(ai.WebResult{URL: "https://example.org", PublishedAt: daysAgo(tt.age)})
		assert.InDelta(t, tt.want, got.Factors.Freshness, 1e-9, "age %d", tt.age)
	}
}

func TestFreshnessExtractsDates(t *testing.T) {
	t.Parallel()

	s := New(WithClock(func() time.Time { return refTime }))

	fromURL := s.Score(ai.WebResult{URL: "https://example.org/2025/01/05/news"})
	assert.InDelta(t, 0.2, fromURL.Factors.Freshness, 1e-9)

	fromSnippet := s.Score(ai.WebResult{URL: "https://example.org", Content: "Published 2026.10.01 by the editors"})
	assert.InDelta(t, 1.0, fromSnippet.Factors.Freshness, 1e-9)

	usFormat := s.Score(ai.WebResult{URL: "https://example.org", Content: "Updated 10/01/2026"})
	assert.InDelta(t, 1.0, usFormat.Factors.Freshness, 1e-9)

	unknown := s.Score(ai.WebResult{URL: "https://example.org", Content: "no dates here"})
	assert.InDelta(t, 0.5, unknown.Factors.Freshness, 1e-9)
}

func TestScoreTrustedSource(t *testing.T) {
	t.Parallel()

	content := "According to the annual report the company employs 5200 people across 14 offices " +
		"and grew revenue by 12% in 2025. " + strings.Repeat("The bank operates retail and corporate divisions. ", 4)

	s := New(WithClock(func() time.Time { return refTime }))
	got := s.Score(ai.WebResult{URL: "https://www.nikkei.com/article/1", Content: content, PublishedAt: daysAgo(10)})

	assert.InDelta(t, 0.96, got.Score, 1e-9)
	assert.Empty(t, got.Warnings)
}

func TestScoreUntrustedSourceWarns(t *testing.T) {
	t.Parallel()

	s := New(WithClock(func() time.Time { return refTime }))
	got := s.Score(ai.WebResult{URL: "https://twitter.com/someone", Content: "Buy now and click here"})

	assert.InDelta(t, 0.6, got.Factors.ContentQuality, 1e-9)
	assert.InDelta(t, 0.53, got.Score, 1e-9)
	assert.Equal(t, []string{WarnLowTrustDomain}, got.Warnings)
}

func TestConsistencyFloor(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 1.0, Consistency("The company has 300 employees."), 1e-9)
	assert.InDelta(t, 0.8, Consistency("However, the size is uncertain."), 1e-9)
	assert.InDelta(t, 0.3, Consistency("However, although uncertain and unclear, it might be unknown and conflicting."), 1e-9)
}

func TestRankOrdersByReliability(t *testing.T) {
	t.Parallel()

	s := New(WithClock(func() time.Time { return refTime }))
	results := []ai.WebResult{
		{URL: "https://5ch.net/thread", Content: "rumour"},
		{URL: "https://www.reuters.com/markets", Content: "Reuters reported 5000 staff in 2026 and 3 subsidiaries.", PublishedAt: daysAgo(5)},
		{URL: "https://example.org", Content: "plain"},
	}

	ranked := s.Rank(results)
	require.Len(t, ranked, 3)
	assert.Equal(t, "https://www.reuters.com/markets", ranked[0].URL)
	assert.Equal(t, "https://5ch.net/thread", ranked[2].URL)
	for i, r := range ranked {
		assert.GreaterOrEqual(t, r.Reliability, 0.0)
		assert.LessOrEqual(t, r.Reliability, 1.0)
		if i > 0 {
			assert.GreaterOrEqual(t, ranked[i-1].Reliability, r.Reliability)
		}
	}
	assert.Contains(t, ranked[2].Warnings, WarnLowTrustDomain)

	// input slice is left untouched
	assert.Zero(t, results[0].Reliability)
}
