package gemini

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/spigell/hh-researcher/internal/ai"
	"github.com/spigell/hh-researcher/internal/embedding"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

type fakeChatCreator struct {
	mu    sync.Mutex
	calls []chatCallRecord
	queue map[string][]fakeChatResponse
}

type chatCallRecord struct {
	model  string
	config *genai.GenerateContentConfig
	chat   *fakeChat
}

type fakeChatResponse struct {
	resp *genai.GenerateContentResponse
	err  error
}

type fakeChat struct {
	mu       sync.Mutex
	response fakeChatResponse
	messages []string
}

func (f *fakeChat) SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, part := range parts {
		f.messages = append(f.messages, part.Text)
	}
	return f.response.resp, f.response.err
}

func newFakeChatCreator() *fakeChatCreator {
	return &fakeChatCreator{queue: make(map[string][]fakeChatResponse)}
}

func (f *fakeChatCreator) enqueue(model string, resp *genai.GenerateContentResponse, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue[model] = append(f.queue[model], fakeChatResponse{resp: resp, err: err})
}

func (f *fakeChatCreator) Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	responses := f.queue[model]
	if len(responses) == 0 {
		return nil, errors.New("unexpected call")
	}
	res := responses[0]
	f.queue[model] = responses[1:]
	chat := &fakeChat{response: res}
	f.calls = append(f.calls, chatCallRecord{model: model, config: config, chat: chat})
	return chat, nil
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func noSleep(t *testing.T) *[]time.Duration {
	t.Helper()
	var delays []time.Duration
	originalSleep := sleep
	sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	t.Cleanup(func() { sleep = originalSleep })
	return &delays
}

func TestGeneratorRetriesOnTemporaryError(t *testing.T) {
	delays := noSleep(t)

	chats := newFakeChatCreator()
	tempErr := genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"}
	chats.enqueue("gemini-pro", nil, tempErr)
	chats.enqueue("gemini-pro", textResponse("retry ok"), nil)

	g := &Generator{
		chats:      chats,
		model:      "gemini-pro",
		maxRetries: 2,
		logger:     zap.NewNop(),
	}

	output, err := g.GenerateContent(context.Background(), "system", "message")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if output != "retry ok" {
		t.Fatalf("unexpected output: %q", output)
	}

	if len(chats.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(chats.calls))
	}

	if len(*delays) != 1 || (*delays)[0] != time.Second {
		t.Fatalf("expected a single 1s backoff, got %v", *delays)
	}

	for _, call := range chats.calls {
		if call.config == nil || call.config.SystemInstruction == nil {
			t.Fatalf("expected system instruction to be set")
		}
		if got := call.config.SystemInstruction.Parts[0].Text; got != "system" {
			t.Fatalf("unexpected system instruction: %q", got)
		}
		if len(call.chat.messages) != 1 || call.chat.messages[0] != "message" {
			t.Fatalf("unexpected chat message: %+v", call.chat.messages)
		}
	}
}

func TestGeneratorBackoffStopsOnCancellation(t *testing.T) {
	chats := newFakeChatCreator()
	tempErr := genai.APIError{Code: http.StatusServiceUnavailable, Status: "UNAVAILABLE"}
	chats.enqueue("gemini-pro", nil, tempErr)
	chats.enqueue("gemini-pro", textResponse("too late"), nil)

	g := &Generator{
		chats:      chats,
		model:      "gemini-pro",
		maxRetries: 3,
		logger:     zap.NewNop(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	started := time.Now()
	_, err := g.GenerateContent(ctx, "system", "message")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(started); elapsed >= time.Second {
		t.Fatalf("backoff was not interrupted, waited %s", elapsed)
	}
	if len(chats.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(chats.calls))
	}
}

type failingModels struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *failingModels) EmbedContent(context.Context, string, []*genai.Content, *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil, f.err
}

func TestEmbedderBackoffStopsOnCancellation(t *testing.T) {
	models := &failingModels{err: genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"}}
	e := &Embedder{
		models:     models,
		model:      "text-embedding-004",
		dim:        8,
		maxRetries: 3,
		logger:     zap.NewNop(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	started := time.Now()
	_, err := e.Embed(ctx, "Go engineer", embedding.IntentDocument)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(started); elapsed >= time.Second {
		t.Fatalf("backoff was not interrupted, waited %s", elapsed)
	}
	if models.calls != 1 {
		t.Fatalf("expected 1 call, got %d", models.calls)
	}
}

func TestGeneratorStopsAfterRetriesExhausted(t *testing.T) {
	delays := noSleep(t)

	chats := newFakeChatCreator()
	tempErr := genai.APIError{Code: http.StatusServiceUnavailable, Status: "UNAVAILABLE"}
	for i := 0; i < 3; i++ {
		chats.enqueue("gemini-pro", nil, tempErr)
	}

	g := &Generator{
		chats:  chats,
		model:  "gemini-pro",
		logger: zap.NewNop(),
	}

	_, err := g.Complete(context.Background(), "msg", ai.TierDeep)
	if err == nil {
		t.Fatal("expected error after retries exhausted")
	}

	if !ai.IsKind(err, ai.KindTransient) {
		t.Fatalf("expected transient kind, got %v", err)
	}

	if len(chats.calls) != 3 {
		t.Fatalf("expected 3 calls with default retry budget, got %d", len(chats.calls))
	}

	if len(*delays) != 2 || (*delays)[1] != 2*time.Second {
		t.Fatalf("expected exponential backoff 1s,2s got %v", *delays)
	}
}

func TestGeneratorDoesNotRetryOnQuota(t *testing.T) {
	chats := newFakeChatCreator()
	quotaErr := genai.APIError{
		Code:    http.StatusTooManyRequests,
		Status:  "RESOURCE_EXHAUSTED",
		Message: "quota exhausted, retry after 60 seconds",
	}
	chats.enqueue("gemini-pro", nil, quotaErr)

	g := &Generator{
		chats:      chats,
		model:      "gemini-pro",
		maxRetries: 3,
		logger:     zap.NewNop(),
	}

	_, err := g.Complete(context.Background(), "msg", ai.TierDeep)
	if !ai.IsKind(err, ai.KindQuota) {
		t.Fatalf("expected quota error, got %v", err)
	}

	if len(chats.calls) != 1 {
		t.Fatalf("expected single call, got %d", len(chats.calls))
	}
}

func TestGeneratorDoesNotRetryInvalidInput(t *testing.T) {
	chats := newFakeChatCreator()
	chats.enqueue("gemini-pro", nil, genai.APIError{Code: http.StatusBadRequest, Status: "INVALID_ARGUMENT"})

	g := &Generator{chats: chats, model: "gemini-pro", logger: zap.NewNop()}

	_, err := g.Complete(context.Background(), "msg", ai.TierDeep)
	if !ai.IsKind(err, ai.KindInvalid) {
		t.Fatalf("expected invalid error, got %v", err)
	}
	if len(chats.calls) != 1 {
		t.Fatalf("expected single call, got %d", len(chats.calls))
	}
}

func TestGeneratorRejectsPromptOverBudget(t *testing.T) {
	chats := newFakeChatCreator()
	g := &Generator{chats: chats, model: "gemini-pro", tokenBudget: 2, logger: zap.NewNop()}

	_, err := g.Complete(context.Background(), "this prompt is clearly longer than two tokens", ai.TierDeep)
	if !ai.IsKind(err, ai.KindInvalid) {
		t.Fatalf("expected invalid error, got %v", err)
	}
	if len(chats.calls) != 0 {
		t.Fatalf("expected no outbound call, got %d", len(chats.calls))
	}
}

func TestGeneratorSelectsModelByTier(t *testing.T) {
	chats := newFakeChatCreator()
	chats.enqueue("flash", textResponse("fast answer"), nil)
	chats.enqueue("pro", textResponse("deep answer"), nil)

	g := &Generator{chats: chats, model: "pro", fastModel: "flash", logger: zap.NewNop()}

	fast, err := g.Complete(context.Background(), "q", ai.TierFast)
	if err != nil || fast != "fast answer" {
		t.Fatalf("unexpected fast result %q, %v", fast, err)
	}
	deep, err := g.Complete(context.Background(), "q", ai.TierDeep)
	if err != nil || deep != "deep answer" {
		t.Fatalf("unexpected deep result %q, %v", deep, err)
	}
	if chats.calls[0].config != nil {
		t.Fatalf("expected no system instruction for plain completions")
	}
}

func TestGeneratorRejectsEmptyPrompt(t *testing.T) {
	g := &Generator{chats: newFakeChatCreator(), model: "pro", logger: zap.NewNop()}
	if _, err := g.Complete(context.Background(), "   ", ai.TierFast); !ai.IsKind(err, ai.KindInvalid) {
		t.Fatalf("expected invalid error for empty prompt, got %v", err)
	}
}
