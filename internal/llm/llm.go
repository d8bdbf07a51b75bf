// Package llm is the language-model capability used by the turn orchestrator.
// Adapters translate a provider-neutral Request into the Gemini, OpenAI or
// Anthropic SDK call and return the model's text and tool calls.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"amble/internal/config"
)

// Role of a message in the conversation sent to the model.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is one function invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// Message is one conversation entry. Assistant messages may carry ToolCalls;
// tool messages answer exactly one call through ToolCallID and Name.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	Name       string
}

// ToolDefinition describes a callable tool. Parameters is a JSON schema object.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// Request is one model call.
type Request struct {
	System   string
	Messages []Message
	Tools    []ToolDefinition
}

// Response is the model's reply: final text, tool calls, or both.
type Response struct {
	Text      string
	ToolCalls []ToolCall
}

// Model generates one response for a request.
type Model interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// ErrNoKeys is returned when no API key is configured or every key is cooling down.
var ErrNoKeys = errors.New("no api key available")

// New builds the adapter selected by cfg.LLMProvider.
func New(ctx context.Context, cfg *config.Config) (Model, error) {
	switch strings.ToLower(cfg.LLMProvider) {
	case "", "gemini", "google":
		if len(cfg.GoogleAPIKeys) == 0 {
			return nil, fmt.Errorf("gemini provider: %w", ErrNoKeys)
		}
		return NewGemini(NewKeyPool(cfg.GoogleAPIKeys, cfg.KeyCooldown), GeminiOptions{
			Model:       cfg.LLMModel,
			Temperature: cfg.LLMTemperature,
			MaxTokens:   cfg.LLMMaxTokens,
		}), nil
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider: %w", ErrNoKeys)
		}
		return NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, OpenAIOptions{
			Model:       cfg.LLMModel,
			Temperature: cfg.LLMTemperature,
			MaxTokens:   cfg.LLMMaxTokens,
		}), nil
	case "anthropic", "claude":
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("anthropic provider: %w", ErrNoKeys)
		}
		return NewAnthropic(cfg.AnthropicAPIKey, AnthropicOptions{
			Model:       cfg.LLMModel,
			Temperature: cfg.LLMTemperature,
			MaxTokens:   cfg.LLMMaxTokens,
		}), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
}

// decodeArgs turns raw tool arguments into a map. Empty or invalid input yields an empty map.
func decodeArgs(raw json.RawMessage) map[string]interface{} {
	args := map[string]interface{}{}
	if len(raw) == 0 {
		return args
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return map[string]interface{}{}
	}
	return args
}

// encodeArgs marshals provider-decoded arguments back to raw JSON.
func encodeArgs(v interface{}) json.RawMessage {
	if v == nil {
		return json.RawMessage("{}")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return b
}

// toolResultPayload wraps a tool message body for providers that want an object.
func toolResultPayload(content string) map[string]interface{} {
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(content), &obj); err == nil {
		return obj
	}
	return map[string]interface{}{"result": content}
}
