package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"google.golang.org/genai"
)

// GeminiOptions configure the Gemini adapter.
type GeminiOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Gemini calls the Gemini API through google.golang.org/genai, rotating keys
// from a KeyPool when a key reports quota exhaustion.
type Gemini struct {
	pool *KeyPool
	opts GeminiOptions

	mu      sync.Mutex
	clients map[string]*genai.Client
}

// NewGemini creates a Gemini adapter over pool.
func NewGemini(pool *KeyPool, opts GeminiOptions) *Gemini {
	if opts.Model == "" {
		opts.Model = "gemini-2.5-flash"
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1024
	}
	return &Gemini{pool: pool, opts: opts, clients: make(map[string]*genai.Client)}
}

func (g *Gemini) client(ctx context.Context, key string) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if c, ok := g.clients[key]; ok {
		return c, nil
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	g.clients[key] = c
	return c, nil
}

// Generate sends req, moving to the next key on quota errors until the pool is exhausted.
func (g *Gemini) Generate(ctx context.Context, req Request) (*Response, error) {
	contents := geminiContents(req.Messages)
	cfg := g.config(req)

	var lastErr error
	for attempt := 0; attempt < g.pool.Size(); attempt++ {
		key, err := g.pool.Next()
		if err != nil {
			break
		}
		client, err := g.client(ctx, key)
		if err != nil {
			return nil, err
		}

		resp, err := client.Models.GenerateContent(ctx, g.opts.Model, contents, cfg)
		if err != nil {
			if IsQuotaError(err) {
				g.pool.MarkExhausted(key, "quota_exceeded")
				lastErr = err
				continue
			}
			return nil, fmt.Errorf("gemini api error: %w", err)
		}
		return geminiResponse(resp)
	}

	if lastErr != nil {
		log.Printf("❌ [GEMINI] All keys exhausted: %v", lastErr)
		return nil, fmt.Errorf("gemini: %w: %v", ErrNoKeys, lastErr)
	}
	return nil, fmt.Errorf("gemini: %w", ErrNoKeys)
}

func (g *Gemini) config(req Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(g.opts.Temperature)),
		MaxOutputTokens: int32(g.opts.MaxTokens),
	}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, len(req.Tools))
		for i, t := range req.Tools {
			decls[i] = &genai.FunctionDeclaration{
				Name:                 t.Name,
				Description:          t.Description,
				ParametersJsonSchema: t.Parameters,
			}
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	return cfg
}

// geminiContents maps messages to Gemini contents. Consecutive tool results
// are folded into one user content, which is what the API expects after a
// model turn with several function calls.
func geminiContents(msgs []Message) []*genai.Content {
	var out []*genai.Content
	for _, m := range msgs {
		switch m.Role {
		case RoleUser:
			out = append(out, &genai.Content{Role: string(genai.RoleUser), Parts: []*genai.Part{{Text: m.Content}}})
		case RoleAssistant:
			c := &genai.Content{Role: string(genai.RoleModel)}
			if m.Content != "" {
				c.Parts = append(c.Parts, &genai.Part{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				c.Parts = append(c.Parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   tc.ID,
					Name: tc.Name,
					Args: decodeArgs(tc.Arguments),
				}})
			}
			out = append(out, c)
		case RoleTool:
			part := &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       m.ToolCallID,
				Name:     m.Name,
				Response: toolResultPayload(m.Content),
			}}
			if n := len(out); n > 0 && out[n-1].Role == string(genai.RoleUser) && isFunctionResponses(out[n-1]) {
				out[n-1].Parts = append(out[n-1].Parts, part)
				continue
			}
			out = append(out, &genai.Content{Role: string(genai.RoleUser), Parts: []*genai.Part{part}})
		}
	}
	return out
}

func isFunctionResponses(c *genai.Content) bool {
	for _, p := range c.Parts {
		if p.FunctionResponse == nil {
			return false
		}
	}
	return len(c.Parts) > 0
}

func geminiResponse(resp *genai.GenerateContentResponse) (*Response, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("gemini returned no candidates")
	}
	out := &Response{}
	for i, p := range resp.Candidates[0].Content.Parts {
		if p == nil {
			continue
		}
		if p.FunctionCall != nil {
			id := p.FunctionCall.ID
			if id == "" {
				id = fmt.Sprintf("call_%d_%s", i, p.FunctionCall.Name)
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        id,
				Name:      p.FunctionCall.Name,
				Arguments: encodeArgs(p.FunctionCall.Args),
			})
			continue
		}
		if p.Text != "" && !p.Thought {
			out.Text += p.Text
		}
	}
	return out, nil
}
