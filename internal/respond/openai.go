package respond

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/sony/gobreaker/v2"
)

const (
	defaultModel       = "llama-3.3-70b-versatile"
	defaultTemperature = 0.7
	defaultMaxTokens   = 500
)

// LLMProvider answers via an OpenAI-compatible chat completion API. Calls
// go through a circuit breaker; while the breaker is open, or when a call
// fails, the reply comes from the fallback provider instead, so the agent
// keeps talking even with the model down.
type LLMProvider struct {
	client   openai.Client
	model    string
	name     string
	roleDesc string
	breaker  *gobreaker.CircuitBreaker[string]
	fallback Provider
	logger   *log.Logger
}

// LLMOption configures an LLMProvider.
type LLMOption func(*LLMProvider)

// WithModel overrides the chat model.
func WithModel(model string) LLMOption {
	return func(p *LLMProvider) { p.model = model }
}

// WithFallback sets the provider used when the model is unreachable.
func WithFallback(fb Provider) LLMOption {
	return func(p *LLMProvider) { p.fallback = fb }
}

// NewLLMProvider builds a provider speaking to baseURL with the given API
// key. The agent name and role description frame every prompt.
func NewLLMProvider(apiKey, baseURL, name, roleDesc string, logger *log.Logger, opts ...LLMOption) *LLMProvider {
	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(baseURL))
	}

	p := &LLMProvider{
		client:   openai.NewClient(clientOpts...),
		model:    defaultModel,
		name:     name,
		roleDesc: roleDesc,
		logger:   logger,
	}
	for _, o := range opts {
		o(p)
	}

	p.breaker = gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "llm-" + name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(bn string, from, to gobreaker.State) {
			logger.Printf("breaker %s: %s -> %s", bn, from, to)
		},
	})
	return p
}

// GetResponse asks the model for a reply. Any fault, including an open
// breaker, falls through to the fallback provider; without one the fault
// is returned.
func (p *LLMProvider) GetResponse(ctx context.Context, prompt, note string) (string, error) {
	reply, err := p.breaker.Execute(func() (string, error) {
		return p.complete(ctx, prompt, note)
	})
	if err == nil {
		return reply, nil
	}

	if errors.Is(err, gobreaker.ErrOpenState) {
		p.logger.Printf("llm %s: breaker open, using fallback", p.name)
	} else {
		p.logger.Printf("llm %s: %v", p.name, err)
	}
	if p.fallback != nil {
		return p.fallback.GetResponse(ctx, prompt, note)
	}
	return "", err
}

func (p *LLMProvider) complete(ctx context.Context, prompt, note string) (string, error) {
	if note == "" {
		note = "Starting new conversation"
	}
	user := fmt.Sprintf(`You are %s, a %s.

Context: %s

User Request: %s

Respond as %s would, focusing on your expertise. Be specific and helpful.`,
		p.name, p.roleDesc, note, prompt, p.name)

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(fmt.Sprintf("You are %s, %s", p.name, p.roleDesc)),
			openai.UserMessage(user),
		},
		Model:               openai.ChatModel(p.model),
		Temperature:         openai.Float(defaultTemperature),
		MaxCompletionTokens: openai.Int(defaultMaxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}
