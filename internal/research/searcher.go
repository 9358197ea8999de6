package research

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	_ "embed"

	"github.com/spigell/hh-researcher/internal/ai"
	"github.com/spigell/hh-researcher/internal/reliability"
	"github.com/spigell/hh-researcher/internal/utils"
	"github.com/spigell/hh-researcher/internal/websearch"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	//go:embed summary_prompt.md
	summaryTemplate string
	//go:embed company_size_prompt.md
	companySizeTemplate string
)

const (
	SearchesPerCycle     = 2
	DefaultSearchTimeout = 30 * time.Second
	DefaultReliability   = 0.6

	resultsPerSearch = 5
	summarySnippets  = 3
	snippetLength    = 200
)

// WebSearcher runs one web query; *websearch.Client implements it.
type WebSearcher interface {
	Search(ctx context.Context, query string, depth websearch.Depth, maxResults int) ([]ai.WebResult, error)
}

// Searcher executes the most important gaps of the cycle and stores one
// summarised SearchResult per gap.
type Searcher struct {
	web       WebSearcher
	llm       ai.Completer
	scorer    *reliability.Scorer
	timeout   time.Duration
	threshold float64
	now       func() time.Time
	maxLogLen int
	logger    *zap.Logger
}

type SearcherOption func(*Searcher)

func WithSearchTimeout(d time.Duration) SearcherOption {
	return func(s *Searcher) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithReliabilityThreshold sets the score below which a result set is
// reported as unreliable.
func WithReliabilityThreshold(v float64) SearcherOption {
	return func(s *Searcher) {
		if v > 0 {
			s.threshold = v
		}
	}
}

func WithSearcherClock(now func() time.Time) SearcherOption {
	return func(s *Searcher) {
		if now != nil {
			s.now = now
		}
	}
}

func NewSearcher(web WebSearcher, llm ai.Completer, logger *zap.Logger, opts ...SearcherOption) *Searcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Searcher{
		web:       web,
		llm:       llm,
		timeout:   DefaultSearchTimeout,
		threshold: DefaultReliability,
		now:       time.Now,
		maxLogLen: defaultMaxLogLength,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.scorer = reliability.New(reliability.WithClock(s.now))
	return s
}

func (sr *Searcher) Name() string { return "search" }

// Process never fails because of a single search: a gap whose search or
// summary fails is left out of the cycle.
func (sr *Searcher) Process(ctx context.Context, s *State) error {
	gaps := SortGaps(s.Gaps())
	if len(gaps) > SearchesPerCycle {
		gaps = gaps[:SearchesPerCycle]
	}
	if len(gaps) == 0 {
		return nil
	}
	depth := s.Strategy().Depth
	if depth == "" {
		depth = websearch.DepthAdvanced
	}

	results := make([]*ai.SearchResult, len(gaps))
	var g errgroup.Group
	for i, gap := range gaps {
		g.Go(func() error {
			taskCtx, cancel := context.WithTimeout(ctx, sr.timeout)
			defer cancel()
			r, err := sr.searchGap(taskCtx, gap, depth)
			if err != nil {
				sr.logger.Warn("search failed",
					zap.String("info_type", string(gap.InfoType)),
					zap.String("query", gap.SearchQuery),
					zap.String("kind", string(ai.KindOf(err))),
					zap.Error(err),
				)
				return nil
			}
			results[i] = r
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}

	stored := 0
	for i, r := range results {
		if r == nil {
			continue
		}
		s.AddSearchResult(gaps[i].InfoType, r)
		stored++
	}
	sr.logger.Info("searches completed", zap.Int("requested", len(gaps)), zap.Int("stored", stored))
	return nil
}

func (sr *Searcher) searchGap(ctx context.Context, gap ai.InformationGap, depth websearch.Depth) (*ai.SearchResult, error) {
	if sr.web == nil {
		return nil, fmt.Errorf("no web searcher configured")
	}
	found, err := sr.web.Search(ctx, gap.SearchQuery, depth, resultsPerSearch)
	if err != nil {
		return nil, err
	}
	ranked := sr.scorer.Rank(found)
	if !anyReliable(ranked, sr.threshold) {
		sr.logger.Warn("no reliable search result",
			zap.String("query", gap.SearchQuery),
			zap.Float64("threshold", sr.threshold),
		)
	}

	summary, err := sr.summarise(ctx, gap, ranked)
	if err != nil {
		return nil, err
	}

	var sources []string
	for _, r := range ranked {
		if len(sources) == summarySnippets {
			break
		}
		if r.URL != "" {
			sources = append(sources, r.URL)
		}
	}
	return &ai.SearchResult{
		Query:     gap.SearchQuery,
		Results:   ranked,
		Summary:   summary,
		Sources:   sources,
		Timestamp: sr.now(),
	}, nil
}

func anyReliable(results []ai.WebResult, threshold float64) bool {
	for _, r := range results {
		if r.Reliability >= threshold {
			return true
		}
	}
	return false
}

func (sr *Searcher) summarise(ctx context.Context, gap ai.InformationGap, ranked []ai.WebResult) (string, error) {
	if len(ranked) == 0 {
		return "No results were found.", nil
	}
	if sr.llm == nil {
		return ranked[0].Content, nil
	}

	var snippets strings.Builder
	for i, r := range ranked {
		if i == summarySnippets {
			break
		}
		fmt.Fprintf(&snippets, "%d. %s (reliability %.2f)\n%s\n", i+1, r.Title, r.Reliability, snippet(r.Content))
	}
	template := summaryTemplate
	if gap.InfoType == ai.InfoEnvironmentalFit {
		template = companySizeTemplate
	}
	prompt := strings.NewReplacer(
		"{{DESCRIPTION}}", gap.Description,
		"{{RATIONALE}}", gap.Rationale,
		"{{QUERY}}", gap.SearchQuery,
		"{{SNIPPETS}}", strings.TrimRight(snippets.String(), "\n"),
	).Replace(template)

	sr.logger.Debug("summary request",
		zap.String("info_type", string(gap.InfoType)),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, sr.maxLogLen)),
	)
	text, err := sr.llm.Complete(ctx, prompt, ai.TierFast)
	if err != nil {
		return "", fmt.Errorf("summarise search: %w", err)
	}
	return strings.TrimSpace(text), nil
}

func snippet(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	if utf8.RuneCountInString(content) <= snippetLength {
		return content
	}
	return string([]rune(content)[:snippetLength]) + "..."
}
