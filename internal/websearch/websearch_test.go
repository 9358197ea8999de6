package websearch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spigell/hh-researcher/internal/ai"
	"go.uber.org/zap"
)

func newTestBrave(t *testing.T, handler http.HandlerFunc) *Brave {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	b := NewBrave(BraveConfig{APIKey: "token", BaseURL: srv.URL}, srv.Client(), zap.NewNop())
	b.backoff = func(int) time.Duration { return 0 }
	return b
}

func TestBraveSearchParsesResults(t *testing.T) {
	t.Parallel()

	b := newTestBrave(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/web/search" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("X-Subscription-Token"); got != "token" {
			t.Errorf("unexpected token header %q", got)
		}
		q := r.URL.Query()
		if q.Get("q") != "acme employees 2026" || q.Get("count") != "3" || q.Get("extra_snippets") != "1" {
			t.Errorf("unexpected query params %v", q)
		}
		fmt.Fprint(w, `{"web":{"results":[
			{"url":"https://example.com/a","title":"A","description":"first","extra_snippets":["more"],"page_age":"2026-09-01T10:00:00"},
			{"url":"https://example.com/a","title":"dup","description":"dup"},
			{"url":"https://example.com/b","title":"","description":"second"}
		]}}`)
	})

	results, err := b.Search(context.Background(), "acme employees 2026", DepthAdvanced, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 deduplicated results, got %d", len(results))
	}

	first := results[0]
	if first.Content != "first\nmore" {
		t.Fatalf("expected extra snippets to be appended, got %q", first.Content)
	}
	if first.PublishedAt == nil || first.PublishedAt.Format("2006-01-02") != "2026-09-01" {
		t.Fatalf("unexpected published date %v", first.PublishedAt)
	}
	if first.Source != ai.SourceWeb || first.ProviderScore != 1 {
		t.Fatalf("unexpected source/score: %+v", first)
	}
	if results[1].Title != "https://example.com/b" {
		t.Fatalf("expected url as title fallback, got %q", results[1].Title)
	}
	if results[1].ProviderScore != 0.5 {
		t.Fatalf("expected rank based score 0.5, got %v", results[1].ProviderScore)
	}
}

func TestBraveSearchErrorKinds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		wantKind  ai.ErrorKind
		wantCalls int32
	}{
		{name: "rate limit is not retried", status: http.StatusTooManyRequests, wantKind: ai.KindQuota, wantCalls: 1},
		{name: "server error is retried", status: http.StatusBadGateway, wantKind: ai.KindTransient, wantCalls: 3},
		{name: "bad request is not retried", status: http.StatusBadRequest, wantKind: ai.KindInvalid, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int32
			b := newTestBrave(t, func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				http.Error(w, "nope", tt.status)
			})

			_, err := b.Search(context.Background(), "query", DepthBasic, 5)
			if !ai.IsKind(err, tt.wantKind) {
				t.Fatalf("expected %s error, got %v", tt.wantKind, err)
			}
			var apiErr APIError
			if !errors.As(err, &apiErr) || apiErr.StatusCode != tt.status {
				t.Fatalf("expected wrapped APIError with %d, got %v", tt.status, err)
			}
			if got := calls.Load(); got != tt.wantCalls {
				t.Fatalf("expected %d calls, got %d", tt.wantCalls, got)
			}
		})
	}
}

func TestBraveWithoutKey(t *testing.T) {
	t.Parallel()

	b := NewBrave(BraveConfig{}, nil, zap.NewNop())
	if _, err := b.Search(context.Background(), "q", DepthBasic, 1); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestClientSimulatesWhenUnconfigured(t *testing.T) {
	t.Parallel()

	var prompts []string
	llm := ai.CompleterFunc(func(_ context.Context, prompt string, tier ai.Tier) (string, error) {
		if tier != ai.TierFast {
			t.Errorf("expected fast tier, got %v", tier)
		}
		prompts = append(prompts, prompt)
		return "  Typical banks of this size run formal change management.  ", nil
	})
	fixed := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	client := New(NewBrave(BraveConfig{}, nil, zap.NewNop()), llm, zap.NewNop(), WithClock(func() time.Time { return fixed }))
	if !client.Simulating() {
		t.Fatalf("expected client to simulate without api key")
	}

	results, err := client.Search(context.Background(), "bank company size", DepthAdvanced, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected a single simulated result, got %d", len(results))
	}
	r := results[0]
	if r.Source != ai.SourceSimulated {
		t.Fatalf("expected simulated source, got %q", r.Source)
	}
	if r.Content != "Typical banks of this size run formal change management." {
		t.Fatalf("unexpected content %q", r.Content)
	}
	if r.PublishedAt == nil || !r.PublishedAt.Equal(fixed) {
		t.Fatalf("unexpected published date %v", r.PublishedAt)
	}
	if len(prompts) != 1 || !strings.Contains(prompts[0], "bank company size") {
		t.Fatalf("prompt does not carry the query: %v", prompts)
	}
}

func TestClientUsesProvider(t *testing.T) {
	t.Parallel()

	b := newTestBrave(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"web":{"results":[{"url":"https://example.com","title":"T","description":"D"}]}}`)
	})
	llm := ai.CompleterFunc(func(context.Context, string, ai.Tier) (string, error) {
		t.Errorf("llm must not be called when provider is configured")
		return "", nil
	})

	results, err := New(b, llm, zap.NewNop()).Search(context.Background(), "query", DepthBasic, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].Source != ai.SourceWeb {
		t.Fatalf("unexpected results %+v", results)
	}
}

func TestClientRejectsEmptyQuery(t *testing.T) {
	t.Parallel()

	_, err := New(nil, nil, zap.NewNop()).Search(context.Background(), "  ", DepthBasic, 5)
	if !ai.IsKind(err, ai.KindInvalid) {
		t.Fatalf("expected invalid error, got %v", err)
	}
}
