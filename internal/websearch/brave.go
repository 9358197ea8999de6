package websearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spigell/hh-researcher/internal/ai"
	"github.com/spigell/hh-researcher/internal/logger"
	"github.com/spigell/hh-researcher/internal/utils"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL    = "https://api.search.brave.com/res/v1"
	maxErrorBodyBytes = 8 * 1024
	maxQueryWords     = 50
	defaultMaxResults = 5
	defaultAttempts   = 3
)

var ErrMissingAPIKey = errors.New("search api key is not configured")

// APIError is a non-2xx answer from the search provider.
type APIError struct {
	StatusCode int
	Body       string
}

func (e APIError) Error() string {
	return fmt.Sprintf("search provider returned %d: %s", e.StatusCode, e.Body)
}

// BraveConfig configures the Brave Search client.
type BraveConfig struct {
	APIKey  string
	BaseURL string
	// Attempts bounds retries on transient failures.
	Attempts int
}

// Brave queries the Brave Search web endpoint.
type Brave struct {
	apiKey     string
	baseURL    string
	attempts   int
	httpClient *http.Client
	backoff    func(attempt int) time.Duration
	logger     *zap.Logger
}

type braveResponse struct {
	Web struct {
		Results []braveResult `json:"results"`
	} `json:"web"`
	Results []braveResult `json:"results"`
}

type braveResult struct {
	URL           string   `json:"url"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Snippet       string   `json:"snippet"`
	ExtraSnippets []string `json:"extra_snippets"`
	PageAge       string   `json:"page_age"`
}

func NewBrave(cfg BraveConfig, httpClient *http.Client, log *zap.Logger) *Brave {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	return &Brave{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    baseURL,
		attempts:   attempts,
		httpClient: httpClient,
		backoff:    func(attempt int) time.Duration { return time.Duration(1<<(attempt-1)) * time.Second },
		logger:     logger.WithFields(log, zap.String("search_provider", "brave")),
	}
}

// Configured reports whether an API key is present.
func (b *Brave) Configured() bool { return b != nil && b.apiKey != "" }

// Search runs the query, retrying transient failures.
func (b *Brave) Search(ctx context.Context, query string, depth Depth, maxResults int) ([]ai.WebResult, error) {
	if !b.Configured() {
		return nil, ErrMissingAPIKey
	}

	var lastErr error
	for attempt := 1; attempt <= b.attempts; attempt++ {
		results, err := b.searchOnce(ctx, query, depth, maxResults)
		if err == nil {
			return results, nil
		}

		kind := classify(err)
		lastErr = ai.NewError(kind, "web search", err)
		if kind != ai.KindTransient || ctx.Err() != nil || attempt == b.attempts {
			break
		}

		b.logger.Debug("retrying web search", zap.Int("attempt", attempt), zap.Error(err))
		if err := utils.WaitFor(ctx, b.backoff(attempt)); err != nil {
			return nil, ai.NewError(ai.KindTransient, "web search", err)
		}
	}

	return nil, lastErr
}

func (b *Brave) searchOnce(ctx context.Context, query string, depth Depth, maxResults int) ([]ai.WebResult, error) {
	trimmed := trimToWordLimit(query, maxQueryWords)
	if trimmed == "" {
		return nil, nil
	}
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	endpoint, err := url.Parse(b.baseURL + "/web/search")
	if err != nil {
		return nil, fmt.Errorf("parse search endpoint: %w", err)
	}

	params := endpoint.Query()
	params.Set("q", trimmed)
	params.Set("count", strconv.Itoa(maxResults))
	params.Set("spellcheck", "0")
	params.Set("text_decorations", "0")
	if depth == DepthAdvanced {
		params.Set("extra_snippets", "1")
	}
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.apiKey)

	b.logger.Debug("make request", zap.String("url", endpoint.String()))
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request search provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var parsed braveResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	raw := parsed.Web.Results
	if len(raw) == 0 {
		raw = parsed.Results
	}

	results := make([]ai.WebResult, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, item := range raw {
		link := strings.TrimSpace(item.URL)
		if link == "" {
			continue
		}
		if _, dup := seen[link]; dup {
			continue
		}
		seen[link] = struct{}{}

		title := strings.TrimSpace(item.Title)
		if title == "" {
			title = link
		}

		content := strings.TrimSpace(item.Description)
		if content == "" {
			content = strings.TrimSpace(item.Snippet)
		}
		if depth == DepthAdvanced {
			for _, extra := range item.ExtraSnippets {
				if extra = strings.TrimSpace(extra); extra != "" {
					content = strings.TrimSpace(content + "\n" + extra)
				}
			}
		} else if content == "" && len(item.ExtraSnippets) > 0 {
			content = strings.TrimSpace(item.ExtraSnippets[0])
		}

		results = append(results, ai.WebResult{
			Title:         title,
			Content:       content,
			URL:           link,
			PublishedAt:   parsePageAge(item.PageAge),
			Source:        ai.SourceWeb,
		})

		if len(results) >= maxResults {
			break
		}
	}

	// Brave does not score hits; derive a rank based score in (0,1].
	for i := range results {
		results[i].ProviderScore = 1 - float64(i)/float64(len(results))
	}

	return results, nil
}

func classify(err error) ai.ErrorKind {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return ai.KindQuota
		case apiErr.StatusCode >= http.StatusInternalServerError:
			return ai.KindTransient
		default:
			return ai.KindInvalid
		}
	}
	if errors.Is(err, context.Canceled) {
		return ai.KindInvalid
	}
	return ai.KindTransient
}

var pageAgeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parsePageAge(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range pageAgeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

func trimToWordLimit(input string, maxWords int) string {
	words := strings.Fields(strings.TrimSpace(input))
	if len(words) > maxWords {
		words = words[:maxWords]
	}
	return strings.Join(words, " ")
}
