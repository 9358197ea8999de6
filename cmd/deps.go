package cmd

import (
	"context"
	"fmt"

	"github.com/spigell/hh-researcher/internal/ai/gemini"
	"github.com/spigell/hh-researcher/internal/embedding"
	"github.com/spigell/hh-researcher/internal/secrets"
	"github.com/spigell/hh-researcher/internal/vectorstore"
	"github.com/spigell/hh-researcher/internal/websearch"

	"go.uber.org/zap"
)

func llmKey(cfg *LLMConfig) (string, error) {
	key, err := secrets.Load(secrets.Source{
		Name:  "llm api key",
		Value: cfg.APIKey,
		File:  cfg.APIKeyFile,
	})
	if err != nil {
		return "", fmt.Errorf("%w (set llm.api-key-file or LLM_API_KEY)", err)
	}
	return key, nil
}

func newGenerator(ctx context.Context, cfg *LLMConfig, logger *zap.Logger) (*gemini.Generator, error) {
	key, err := llmKey(cfg)
	if err != nil {
		return nil, err
	}

	return gemini.NewGenerator(ctx, key, gemini.Options{
		Model:      cfg.Model,
		FastModel:  cfg.FastModel,
		MaxRetries: cfg.MaxRetries,
	}, logger.With(zap.Int("ai_retry_attempts", cfg.MaxRetries)))
}

func newEmbedder(ctx context.Context, cfg *LLMConfig, logger *zap.Logger) (*embedding.Client, error) {
	key, err := llmKey(cfg)
	if err != nil {
		return nil, err
	}

	backend, err := gemini.NewEmbedder(ctx, key, gemini.EmbedderOptions{
		Model:      cfg.EmbeddingModel,
		Dimensions: cfg.DefaultEmbeddingDim,
		MaxRetries: cfg.MaxRetries,
	}, logger)
	if err != nil {
		return nil, err
	}

	return embedding.New(backend, embedding.Config{}, logger.Named("embedding"))
}

// newCaseStore opens the vector store. It returns nil when no path is
// configured, which disables similar case retrieval.
func newCaseStore(cfg *VectorStoreConfig, logger *zap.Logger) (*vectorstore.Store, error) {
	if cfg.Path == "" {
		return nil, nil
	}

	return vectorstore.New(vectorstore.Config{
		PersistPath: cfg.Path,
		Collection:  cfg.Collection,
	}, logger.Named("vectorstore"))
}

// newWebSearch falls back to simulated search when no search key is set.
func newWebSearch(cfg *SearchConfig, gen *gemini.Generator, logger *zap.Logger) *websearch.Client {
	key, err := secrets.Optional(secrets.Source{
		Name:  "search api key",
		Value: cfg.APIKey,
		File:  cfg.APIKeyFile,
	})
	if err != nil {
		logger.Warn("ignoring search api key", zap.Error(err))
	}
	if key == "" {
		logger.Info("web search will be simulated", zap.String("hint", "set SEARCH_API_KEY or search.api-key-file"))
	}

	brave := websearch.NewBrave(websearch.BraveConfig{
		APIKey:  key,
		BaseURL: cfg.BaseURL,
	}, nil, logger)

	return websearch.New(brave, gen, logger.Named("websearch"))
}
