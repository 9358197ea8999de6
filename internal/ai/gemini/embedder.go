package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spigell/hh-researcher/internal/ai"
	"github.com/spigell/hh-researcher/internal/embedding"
	"github.com/spigell/hh-researcher/internal/logger"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	defaultEmbeddingModel   = "text-embedding-004"
	defaultEmbeddingTimeout = 15 * time.Second
	defaultEmbeddingDim     = 768
)

type embedModels interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// EmbedderOptions configures an Embedder.
type EmbedderOptions struct {
	Model      string
	Dimensions int
	MaxRetries int
	Timeout    time.Duration
}

// Embedder turns text into vectors with the Gemini embedding endpoint. It
// implements embedding.Backend.
type Embedder struct {
	models     embedModels
	model      string
	dim        int
	maxRetries int
	timeout    time.Duration
	logger     *zap.Logger
}

func NewEmbedder(ctx context.Context, apiKey string, opts EmbedderOptions, log *zap.Logger) (*Embedder, error) {
	client, err := newClient(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	e := &Embedder{
		models:     client.Models,
		model:      strings.TrimSpace(opts.Model),
		dim:        opts.Dimensions,
		maxRetries: opts.MaxRetries,
		timeout:    opts.Timeout,
	}
	if e.model == "" {
		e.model = defaultEmbeddingModel
	}
	if e.dim <= 0 {
		e.dim = defaultEmbeddingDim
	}
	e.logger = logger.WithCommonFields(log, providerName, e.model)
	return e, nil
}

// Dimensions returns the configured vector size.
func (e *Embedder) Dimensions() int { return e.dim }

// Embed returns the embedding of text for the given intent.
func (e *Embedder) Embed(ctx context.Context, text string, intent embedding.Intent) ([]float32, error) {
	if e == nil || e.models == nil {
		return nil, errors.New("gemini embedder is not initialized")
	}

	taskType := "RETRIEVAL_DOCUMENT"
	if intent == embedding.IntentQuery {
		taskType = "RETRIEVAL_QUERY"
	}
	dim := int32(e.dim)
	cfg := &genai.EmbedContentConfig{
		TaskType:             taskType,
		OutputDimensionality: &dim,
	}

	attempts := e.maxRetries
	if attempts <= 0 {
		attempts = defaultMaxRetries
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		vector, err := e.embedOnce(ctx, text, cfg)
		if err == nil {
			return vector, nil
		}

		kind := classify(err)
		if isTooLong(err) {
			kind = ai.KindInvalid
		}
		lastErr = ai.NewError(kind, "embed content", err)
		if kind != ai.KindTransient || ctx.Err() != nil || attempt == attempts {
			break
		}

		e.logger.Debug("retrying embedding request", zap.Int("attempt", attempt), zap.Error(err))
		if err := sleep(ctx, backoff(attempt)); err != nil {
			return nil, ai.NewError(ai.KindTransient, "embed content", err)
		}
	}

	return nil, lastErr
}

func (e *Embedder) embedOnce(ctx context.Context, text string, cfg *genai.EmbedContentConfig) ([]float32, error) {
	timeout := e.timeout
	if timeout <= 0 {
		timeout = defaultEmbeddingTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := e.models.EmbedContent(callCtx, e.model, genai.Text(text), cfg)
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("gemini embedding response is empty")
	}

	return resp.Embeddings[0].Values, nil
}

func isTooLong(err error) bool {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	msg := strings.ToLower(apiErr.Message)
	return strings.Contains(msg, "too long") || strings.Contains(msg, "exceeds") || strings.Contains(msg, "token")
}
