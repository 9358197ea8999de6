package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spigell/hh-researcher/internal/ai"
	"github.com/spigell/hh-researcher/internal/logger"
	"github.com/spigell/hh-researcher/internal/tokens"
	"github.com/spigell/hh-researcher/internal/utils"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	defaultModel      = "gemini-2.5-pro"
	defaultFastModel  = "gemini-2.5-flash"
	defaultMaxRetries = 3
	defaultTimeout    = 60 * time.Second
	// Gemini 2.5 accepts ~1M tokens, but evaluation prompts stay far below.
	defaultPromptTokenBudget = 120000

	providerName = "gemini"
)

// sleep waits out a retry backoff; it returns early when ctx is done.
var sleep = utils.WaitFor

type chatSession interface {
	SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type chatCreator interface {
	Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error)
}

type genaiChats struct {
	chats *genai.Chats
}

func (g genaiChats) Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error) {
	chat, err := g.chats.Create(ctx, model, config, history)
	if err != nil {
		return nil, err
	}
	return chat, nil
}

// Options configures a Generator.
type Options struct {
	Model       string
	FastModel   string
	MaxRetries  int
	Timeout     time.Duration
	TokenBudget int
}

// Generator wraps the Google GenAI client and implements ai.Completer.
type Generator struct {
	chats       chatCreator
	model       string
	fastModel   string
	maxRetries  int
	timeout     time.Duration
	tokenBudget int
	logger      *zap.Logger
}

// NewGenerator creates a Generator configured for the Gemini API backend.
func NewGenerator(ctx context.Context, apiKey string, opts Options, log *zap.Logger) (*Generator, error) {
	client, err := newClient(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	g := &Generator{
		chats:       genaiChats{chats: client.Chats},
		model:       strings.TrimSpace(opts.Model),
		fastModel:   strings.TrimSpace(opts.FastModel),
		maxRetries:  opts.MaxRetries,
		timeout:     opts.Timeout,
		tokenBudget: opts.TokenBudget,
	}
	if g.model == "" {
		g.model = defaultModel
	}
	if g.fastModel == "" {
		g.fastModel = defaultFastModel
	}
	g.logger = logger.WithCommonFields(log, providerName, g.model)

	return g, nil
}

func newClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return client, nil
}

// Complete sends the prompt to the model selected by tier.
func (g *Generator) Complete(ctx context.Context, prompt string, tier ai.Tier) (string, error) {
	return g.send(ctx, g.modelFor(tier), "", prompt)
}

// GenerateContent sends a message with an optional system instruction to the deep model.
func (g *Generator) GenerateContent(ctx context.Context, system, message string) (string, error) {
	return g.send(ctx, g.modelFor(ai.TierDeep), system, message)
}

func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.model
}

func (g *Generator) modelFor(tier ai.Tier) string {
	if tier == ai.TierFast && g.fastModel != "" {
		return g.fastModel
	}
	return g.model
}

func (g *Generator) send(ctx context.Context, model, system, message string) (string, error) {
	if g == nil || g.chats == nil {
		return "", errors.New("gemini generator is not initialized")
	}

	message = strings.TrimSpace(message)
	if message == "" {
		return "", ai.NewError(ai.KindInvalid, "generate content", errors.New("prompt must not be empty"))
	}

	budget := g.tokenBudget
	if budget <= 0 {
		budget = defaultPromptTokenBudget
	}
	if count := tokens.Count(message); count > budget {
		return "", ai.NewError(ai.KindInvalid, "generate content",
			fmt.Errorf("prompt has %d tokens, budget is %d", count, budget))
	}

	var config *genai.GenerateContentConfig
	if system = strings.TrimSpace(system); system != "" {
		config = &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
		}
	}

	attempts := g.maxRetries
	if attempts <= 0 {
		attempts = defaultMaxRetries
	}

	log := logger.WithFields(g.logger, zap.String("request_model", model))

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		output, err := g.sendOnce(ctx, model, config, message)
		if err == nil {
			return output, nil
		}

		kind := classify(err)
		lastErr = ai.NewError(kind, "generate content", err)

		if kind != ai.KindTransient || ctx.Err() != nil {
			log.Warn("gemini request failed",
				zap.Int("attempt", attempt),
				zap.String("kind", string(kind)),
				zap.Error(err),
			)
			return "", lastErr
		}

		if attempt == attempts {
			break
		}

		delay := backoff(attempt)
		log.Debug("retrying gemini request",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := sleep(ctx, delay); err != nil {
			return "", ai.NewError(ai.KindTransient, "generate content", err)
		}
	}

	return "", fmt.Errorf("gemini retries exhausted after %d attempts: %w", attempts, lastErr)
}

func (g *Generator) sendOnce(ctx context.Context, model string, config *genai.GenerateContentConfig, message string) (string, error) {
	timeout := g.timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	chat, err := g.chats.Create(callCtx, model, config, nil)
	if err != nil {
		return "", fmt.Errorf("create chat: %w", err)
	}

	resp, err := chat.SendMessage(callCtx, genai.Part{Text: message})
	if err != nil {
		return "", err
	}

	return responseText(resp)
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", errEmptyResponse
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		return "", errEmptyResponse
	}

	return output, nil
}

var errEmptyResponse = errors.New("gemini api returned empty response")

func classify(err error) ai.ErrorKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, errEmptyResponse) {
		return ai.KindTransient
	}
	if errors.Is(err, context.Canceled) {
		return ai.KindInvalid
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests || strings.EqualFold(apiErr.Status, "RESOURCE_EXHAUSTED"):
			return ai.KindQuota
		case apiErr.Code >= http.StatusInternalServerError, apiErr.Code == http.StatusRequestTimeout:
			return ai.KindTransient
		default:
			return ai.KindInvalid
		}
	}

	// network resets and other non-API failures
	return ai.KindTransient
}

func backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(1<<(attempt-1)) * time.Second
}
