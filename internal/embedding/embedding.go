package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spigell/hh-researcher/internal/ai"
	"github.com/spigell/hh-researcher/internal/logger"
	"github.com/spigell/hh-researcher/internal/tokens"
	"go.uber.org/zap"
)

// Intent tells the provider how the vector will be used.
type Intent string

const (
	IntentDocument Intent = "document"
	IntentQuery    Intent = "query"
)

const (
	defaultCacheSize = 10000
	defaultMaxTokens = 2048
)

// Backend performs the actual outbound embedding call.
type Backend interface {
	Embed(ctx context.Context, text string, intent Intent) ([]float32, error)
}

// Config configures a Client.
type Config struct {
	CacheSize int
	MaxTokens int
}

// Client embeds text through a Backend, caching vectors per (intent, text)
// digest and trimming long inputs to the token budget.
type Client struct {
	backend   Backend
	cache     *lru.Cache[string, []float32]
	maxTokens int
	logger    *zap.Logger
}

func New(backend Backend, cfg Config, log *zap.Logger) (*Client, error) {
	if backend == nil {
		return nil, errors.New("embedding backend is required")
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultCacheSize
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}

	cache, err := lru.New[string, []float32](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}

	return &Client{
		backend:   backend,
		cache:     cache,
		maxTokens: cfg.MaxTokens,
		logger:    logger.WithFields(log),
	}, nil
}

// Embed returns the vector for text. Repeated calls with the same text and
// intent are served from the cache.
func (c *Client) Embed(ctx context.Context, text string, intent Intent) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ai.NewError(ai.KindInvalid, "embed", errors.New("text must not be empty"))
	}

	key := cacheKey(text, intent)
	if cached, ok := c.cache.Get(key); ok {
		return copyVector(cached), nil
	}

	input := SemanticTruncate(text, c.maxTokens)
	vector, err := c.backend.Embed(ctx, input, intent)
	if err != nil && ai.IsKind(err, ai.KindInvalid) {
		reduced := KeyInformation(text)
		if reduced == "" || reduced == input {
			return nil, err
		}
		c.logger.Debug("embedding input rejected, retrying with key information",
			zap.Int("original_tokens", tokens.Count(input)),
			zap.Int("reduced_tokens", tokens.Count(reduced)),
			zap.Error(err),
		)
		vector, err = c.backend.Embed(ctx, SemanticTruncate(reduced, c.maxTokens), intent)
	}
	if err != nil {
		return nil, err
	}

	c.cache.Add(key, copyVector(vector))
	return vector, nil
}

// Len returns the number of cached vectors.
func (c *Client) Len() int { return c.cache.Len() }

func cacheKey(text string, intent Intent) string {
	sum := sha256.Sum256([]byte(string(intent) + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

func copyVector(v []float32) []float32 {
	return append([]float32(nil), v...)
}

var priorityMarkers = []string{
	"必須", "required", "requirement", "must",
	"【", "ポジション", "position", "role", "title",
	"経験", "experience",
	"スキル", "skill",
}

// SemanticTruncate keeps paragraphs that carry priority markers first, then
// appends the rest in order while they fit into maxTokens.
func SemanticTruncate(text string, maxTokens int) string {
	if tokens.Count(text) <= maxTokens {
		return text
	}

	paragraphs := splitParagraphs(text)
	var priority, rest []string
	for _, p := range paragraphs {
		if isPriority(p) {
			priority = append(priority, p)
		} else {
			rest = append(rest, p)
		}
	}

	var kept []string
	used := 0
	for _, group := range [][]string{priority, rest} {
		for _, p := range group {
			cost := tokens.Count(p)
			if used+cost > maxTokens {
				continue
			}
			kept = append(kept, p)
			used += cost
		}
	}

	if len(kept) == 0 {
		return tokens.Truncate(text, maxTokens)
	}
	return strings.Join(kept, "\n\n")
}

var keyInfoPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^.*(【必須|必須|[Rr]equired|[Mm]ust).*$`),
	regexp.MustCompile(`(?m)^.*(ポジション|[Pp]osition|[Rr]ole|[Tt]itle).*$`),
	regexp.MustCompile(`(?m)^.*(\d+\s*(年|years?)).*$`),
	regexp.MustCompile(`(?m)^.*(スキル|[Ss]kills?|[Ss]tack).*$`),
}

// KeyInformation extracts the lines that describe requirements, role,
// experience length and skills. It returns "" when nothing matches.
func KeyInformation(text string) string {
	seen := make(map[string]struct{})
	var lines []string
	for _, re := range keyInfoPatterns {
		for _, match := range re.FindAllString(text, -1) {
			line := strings.TrimSpace(match)
			if line == "" {
				continue
			}
			if _, ok := seen[line]; ok {
				continue
			}
			seen[line] = struct{}{}
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func splitParagraphs(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isPriority(paragraph string) bool {
	lower := strings.ToLower(paragraph)
	for _, m := range priorityMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
