// Package websearch fetches external evidence for information gaps.
package websearch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spigell/hh-researcher/internal/ai"
	"github.com/spigell/hh-researcher/internal/logger"
	"github.com/spigell/hh-researcher/internal/utils"
	"go.uber.org/zap"
)

// Depth controls how much content the provider returns per hit.
type Depth string

const (
	DepthBasic    Depth = "basic"
	DepthAdvanced Depth = "advanced"
)

const simulatedURL = "simulated://industry-knowledge"

// Provider runs a web search.
type Provider interface {
	Search(ctx context.Context, query string, depth Depth, maxResults int) ([]ai.WebResult, error)
}

// Client searches through the provider when it is configured and falls back
// to an LLM generated summary otherwise.
type Client struct {
	provider  Provider
	llm       ai.Completer
	now       func() time.Time
	maxLogLen int
	logger    *zap.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithClock overrides the clock used to stamp simulated results.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a Client. provider may be nil, in which case every search is
// simulated through llm.
func New(provider Provider, llm ai.Completer, log *zap.Logger, opts ...Option) *Client {
	c := &Client{
		provider:  provider,
		llm:       llm,
		now:       time.Now,
		maxLogLen: 200,
		logger:    logger.WithFields(log),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Simulating reports whether searches will be answered by the fallback.
func (c *Client) Simulating() bool {
	if c.provider == nil {
		return true
	}
	if b, ok := c.provider.(*Brave); ok {
		return !b.Configured()
	}
	return false
}

// Search runs query. An unconfigured provider yields one simulated result.
func (c *Client) Search(ctx context.Context, query string, depth Depth, maxResults int) ([]ai.WebResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ai.NewError(ai.KindInvalid, "web search", errors.New("query must not be empty"))
	}

	if !c.Simulating() {
		results, err := c.provider.Search(ctx, query, depth, maxResults)
		if !errors.Is(err, ErrMissingAPIKey) {
			if err != nil {
				return nil, err
			}
			c.logger.Debug("web search finished", zap.String("query", query), zap.Int("results", len(results)))
			return results, nil
		}
	}

	return c.simulate(ctx, query)
}

func (c *Client) simulate(ctx context.Context, query string) ([]ai.WebResult, error) {
	if c.llm == nil {
		return nil, fmt.Errorf("simulate search: %w", ErrMissingAPIKey)
	}

	c.logger.Info("search provider is not configured, simulating result", zap.String("query", query))
	text, err := c.llm.Complete(ctx, simulationPrompt(query), ai.TierFast)
	if err != nil {
		return nil, fmt.Errorf("simulate search: %w", err)
	}
	text = strings.TrimSpace(text)
	c.logger.Debug("simulated search result", zap.String("response_preview", utils.TruncateForLog(text, c.maxLogLen)))

	published := c.now()
	return []ai.WebResult{{
		Title:         "Industry knowledge: " + query,
		Content:       text,
		URL:           simulatedURL,
		ProviderScore: 0.5,
		PublishedAt:   &published,
		Source:        ai.SourceSimulated,
	}}, nil
}

func simulationPrompt(query string) string {
	var b strings.Builder
	b.WriteString("Based on general industry knowledge, give concise information for the search query below.\n\n")
	b.WriteString("Query: ")
	b.WriteString(query)
	b.WriteString("\n\nAnswer in about 200 characters covering:\n")
	b.WriteString("1. Industry standard\n")
	b.WriteString("2. Practical advice\n")
	b.WriteString("3. Points to verify\n")
	b.WriteString("\nDo not invent company specific facts. State plainly that this is general knowledge.")
	return b.String()
}
