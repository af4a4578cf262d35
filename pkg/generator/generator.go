// Package generator provides content generation collaborators for the
// GenerateAIContent action.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/dukex/packflow/pkg/protocol"
)

var (
	// ErrUnknownProvider is returned when no generator is registered for a provider.
	ErrUnknownProvider = errors.New("unknown generation provider")
	// ErrEmptyCompletion is returned when the provider answers without content.
	ErrEmptyCompletion = errors.New("provider returned no content")
)

const maxResponseBytes = 4 << 20

// ChatConfig configures a ChatGenerator.
type ChatConfig struct {
	Name         string `validate:"required"`
	BaseURL      string `validate:"required,url"`
	APIKey       string
	DefaultModel string
}

// ChatGenerator calls a chat completions endpoint that speaks the common
// {"model", "messages"} request shape.
type ChatGenerator struct {
	config ChatConfig
	http   protocol.HTTPDoer
	logger *slog.Logger
}

var _ protocol.Generator = (*ChatGenerator)(nil)

func NewChatGenerator(config ChatConfig, doer protocol.HTTPDoer, logger *slog.Logger) *ChatGenerator {
	if doer == nil {
		doer = http.DefaultClient
	}

	return &ChatGenerator{
		config: config,
		http:   doer,
		logger: logger.With("module", "generator", "provider", config.Name),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage map[string]any `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (g *ChatGenerator) Generate(ctx context.Context, req protocol.GenerationRequest) (*protocol.GenerationResult, error) {
	model := req.Model
	if model == "" {
		model = g.config.DefaultModel
	}

	payload := chatRequest{Model: model, MaxTokens: req.MaxTokens, Temperature: req.Temperature}
	if req.System != "" {
		payload.Messages = append(payload.Messages, chatMessage{Role: "system", Content: req.System})
	}

	payload.Messages = append(payload.Messages, chatMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode generation request: %w", err)
	}

	endpoint := strings.TrimRight(g.config.BaseURL, "/") + "/chat/completions"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create generation request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	if g.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.config.APIKey)
	}

	resp, err := g.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("generation request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read generation response: %w", err)
	}

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode generation response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		message := http.StatusText(resp.StatusCode)
		if decoded.Error != nil && decoded.Error.Message != "" {
			message = decoded.Error.Message
		}

		return nil, fmt.Errorf("%s returned status %d: %s", g.config.Name, resp.StatusCode, message)
	}

	if len(decoded.Choices) == 0 || decoded.Choices[0].Message.Content == "" {
		return nil, ErrEmptyCompletion
	}

	if decoded.Model != "" {
		model = decoded.Model
	}

	g.logger.DebugContext(ctx, "Content generated", "model", model)

	return &protocol.GenerationResult{
		Text:     decoded.Choices[0].Message.Content,
		Provider: g.config.Name,
		Model:    model,
		Usage:    decoded.Usage,
	}, nil
}

// Router dispatches a request to the generator registered for its provider.
// Requests without a provider go to the default.
type Router struct {
	mu        sync.RWMutex
	providers map[string]protocol.Generator
	fallback  string
}

var _ protocol.Generator = (*Router)(nil)

func NewRouter() *Router {
	return &Router{providers: map[string]protocol.Generator{}}
}

// Register adds a generator. The first registered provider becomes the default.
func (r *Router) Register(name string, generator protocol.Generator) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.fallback == "" {
		r.fallback = name
	}

	r.providers[name] = generator
}

// Providers returns the registered provider names in order.
func (r *Router) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

func (r *Router) Generate(ctx context.Context, req protocol.GenerationRequest) (*protocol.GenerationResult, error) {
	r.mu.RLock()

	name := req.Provider
	if name == "" {
		name = r.fallback
	}

	generator, ok := r.providers[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}

	return generator.Generate(ctx, req)
}

// Echo returns the prompt as the generated text. It stands in for a real
// provider in development and tests.
type Echo struct{}

var _ protocol.Generator = Echo{}

func (Echo) Generate(_ context.Context, req protocol.GenerationRequest) (*protocol.GenerationResult, error) {
	return &protocol.GenerationResult{Text: req.Prompt, Provider: "echo", Model: req.Model}, nil
}
