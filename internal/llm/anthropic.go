package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
)

// AnthropicOptions configure the Anthropic adapter.
type AnthropicOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Anthropic calls the Claude Messages API.
type Anthropic struct {
	client *anthropic.Client
	opts   AnthropicOptions
}

// NewAnthropic creates an Anthropic adapter.
func NewAnthropic(apiKey string, opts AnthropicOptions) *Anthropic {
	if opts.Model == "" {
		opts.Model = string(anthropic.ModelClaude3_5Sonnet20241022)
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1024
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Anthropic{client: &client, opts: opts}
}

// Generate sends one non-streaming message request.
func (a *Anthropic) Generate(ctx context.Context, req Request) (*Response, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(a.opts.Model),
		Messages:    anthropicMessages(req.Messages),
		MaxTokens:   int64(a.opts.MaxTokens),
		Temperature: anthropic.Float(a.opts.Temperature),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = anthropicTools(req.Tools)
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	out := &Response{}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			out.Text += block.AsText().Text
		case "tool_use":
			tu := block.AsToolUse()
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        tu.ID,
				Name:      tu.Name,
				Arguments: encodeArgs(tu.Input),
			})
		}
	}
	return out, nil
}

// anthropicMessages maps messages to Claude turns. Tool results must travel
// in a user turn, so consecutive tool messages share one.
func anthropicMessages(msgs []Message) []anthropic.MessageParam {
	var (
		out     []anthropic.MessageParam
		results []anthropic.ContentBlockParamUnion
	)
	flush := func() {
		if len(results) > 0 {
			out = append(out, anthropic.NewUserMessage(results...))
			results = nil
		}
	}

	for _, m := range msgs {
		switch m.Role {
		case RoleTool:
			results = append(results, anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false))
		case RoleUser:
			flush()
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case RoleAssistant:
			flush()
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, decodeArgs(tc.Arguments), tc.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		}
	}
	flush()
	return out
}

func anthropicTools(defs []ToolDefinition) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, len(defs))
	for i, d := range defs {
		schema := anthropic.ToolInputSchemaParam{Type: constant.Object("object")}
		if props, ok := d.Parameters["properties"]; ok {
			schema.Properties = props
		}
		switch req := d.Parameters["required"].(type) {
		case []string:
			schema.Required = req
		case []interface{}:
			for _, r := range req {
				if s, ok := r.(string); ok {
					schema.Required = append(schema.Required, s)
				}
			}
		}
		tool := anthropic.ToolUnionParamOfTool(schema, d.Name)
		if tool.OfTool != nil && d.Description != "" {
			tool.OfTool.Description = anthropic.String(d.Description)
		}
		tools[i] = tool
	}
	return tools
}
