// Package openai adapts an OpenAI-compatible chat-completion endpoint to
// the ports.Generator interface. Any backend speaking the same wire format
// (vLLM, LiteLLM, gateway proxies) works through the BaseURL override.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	backend "github.com/sashabaranov/go-openai"

	"github.com/ordesk/ordesk/pkg/domain"
	"github.com/ordesk/ordesk/pkg/guard"
)

// Config is the per-provider connection configuration. It is supplied at
// construction time; the adapter reads no environment globals.
type Config struct {
	APIKey      string
	BaseURL     string // optional; empty means the public endpoint
	Model       string
	Temperature float32
	MaxTokens   int
}

// Generator implements ports.Generator on top of the chat-completion API.
type Generator struct {
	client *backend.Client
	model  string
	temp   float32
	maxTok int
}

// NewGenerator builds the adapter from explicit configuration.
func NewGenerator(cfg Config) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai: model is required")
	}

	clientCfg := backend.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Generator{
		client: backend.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		temp:   cfg.Temperature,
		maxTok: cfg.MaxTokens,
	}, nil
}

// wireReply is the structured answer the model is instructed to emit.
type wireReply struct {
	Reply     string `json:"reply"`
	NextState string `json:"next_state"`
	Intent    string `json:"intent,omitempty"`
}

// Generate sends the transcript plus a state-directive system prompt and
// parses the structured answer. The proposed state is advisory; the guard
// validates it downstream, so a malformed answer degrades to "stay put"
// rather than failing the turn.
func (g *Generator) Generate(ctx context.Context, req domain.GenerationRequest) (domain.GenerationResponse, error) {
	messages := make([]backend.ChatCompletionMessage, 0, len(req.Messages)+1)
	messages = append(messages, backend.ChatCompletionMessage{
		Role:    backend.ChatMessageRoleSystem,
		Content: systemPrompt(req.State),
	})
	for _, m := range req.Messages {
		messages = append(messages, backend.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	chatReq := backend.ChatCompletionRequest{
		Model:    g.model,
		Messages: messages,
		ResponseFormat: &backend.ChatCompletionResponseFormat{
			Type: backend.ChatCompletionResponseFormatTypeJSONObject,
		},
	}
	if g.temp > 0 {
		chatReq.Temperature = g.temp
	}
	if g.maxTok > 0 {
		chatReq.MaxCompletionTokens = g.maxTok
	}

	resp, err := g.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return domain.GenerationResponse{}, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return domain.GenerationResponse{}, fmt.Errorf("backend returned no choices")
	}

	return ParseReply(resp.Choices[0].Message.Content, req.State), nil
}

// ParseReply decodes the model's structured answer. Unparsable content or
// an unknown state falls back to the raw text and the current state.
func ParseReply(content string, current domain.StateID) domain.GenerationResponse {
	var wire wireReply
	if err := json.Unmarshal([]byte(content), &wire); err != nil || wire.Reply == "" {
		return domain.GenerationResponse{
			Reply:         strings.TrimSpace(content),
			ProposedState: current,
		}
	}

	proposed := domain.StateID(wire.NextState)
	if !proposed.IsValid() {
		proposed = current
	}
	return domain.GenerationResponse{
		Reply:         wire.Reply,
		ProposedState: proposed,
		Intent:        wire.Intent,
	}
}

// Preflight lists models, a cheap call that fails on bad credentials or
// exhausted quota without spending completion tokens.
func (g *Generator) Preflight(ctx context.Context) error {
	if _, err := g.client.ListModels(ctx); err != nil {
		return fmt.Errorf("preflight against %s failed: %w", g.model, err)
	}
	return nil
}

// systemPrompt directs the model to answer as the sales agent and to pick
// the next dialogue state from the legal targets only.
func systemPrompt(state domain.StateID) string {
	targets := guard.LegalTargets(state)
	names := make([]string, len(targets))
	for i, t := range targets {
		names[i] = string(t)
	}

	return fmt.Sprintf(
		`You are a retail storefront sales assistant. The dialogue is in state %q.
Respond with a JSON object: {"reply": <your answer to the customer>, "next_state": <one of: %s>, "intent": <short intent label>}.`,
		state, strings.Join(names, ", "),
	)
}
