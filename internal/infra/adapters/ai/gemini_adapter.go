package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"tenant-ai-agents/internal/domain"
	"tenant-ai-agents/internal/domain/model"
	"tenant-ai-agents/internal/domain/ports/adapter"
)

var _ adapter.ModelProvider = (*GeminiAdapter)(nil)

// GeminiAdapter implements adapter.ModelProvider using the official SDK.
type GeminiAdapter struct {
	client *genai.Client
}

func NewGeminiAdapter(ctx context.Context, apiKey string) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &GeminiAdapter{client: c}, nil
}

func (g *GeminiAdapter) Execute(ctx context.Context, req adapter.ExecuteRequest) (*adapter.ExecuteResult, error) {
	config := &genai.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  toGenAISchema(t.Parameters),
			})
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	contents, err := toGenAIContents(req.Messages)
	if err != nil {
		return nil, err
	}

	resp, err := g.client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini: %v: %w", err, domain.ErrProviderFailure)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("gemini: empty candidates: %w", domain.ErrProviderFailure)
	}

	out := &adapter.ExecuteResult{}
	for i, fc := range resp.FunctionCalls() {
		args, err := marshalArgs(fc.Args)
		if err != nil {
			return nil, fmt.Errorf("gemini: bad function call args: %w", domain.ErrProviderFailure)
		}
		id := fc.ID
		if id == "" {
			id = fmt.Sprintf("call_%d", i)
		}
		out.ToolCalls = append(out.ToolCalls, model.ToolCall{ID: id, ToolID: fc.Name, Arguments: args})
	}
	out.Text = resp.Text()
	if resp.UsageMetadata != nil {
		out.Usage = adapter.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return out, nil
}

// CountTokens is a local estimate; the exact Gemini counter needs a network
// round trip which would double per-turn latency.
func (g *GeminiAdapter) CountTokens(modelName string, messages []adapter.Message) (int, error) {
	return estimateTokens(modelName, messages)
}

func toGenAIContents(msgs []adapter.Message) ([]*genai.Content, error) {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "assistant":
			parts := []*genai.Part{}
			if m.Content != "" {
				parts = append(parts, &genai.Part{Text: m.Content})
			}
			for _, c := range m.ToolCalls {
				args, err := c.ParsedArguments()
				if err != nil {
					return nil, err
				}
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   c.ID,
					Name: c.ToolID,
					Args: args,
				}})
			}
			out = append(out, &genai.Content{Role: genai.RoleModel, Parts: parts})
		case "tool":
			resp := map[string]any{}
			name := ""
			if m.ToolResult != nil {
				name = m.ToolResult.ToolID
				resp["success"] = m.ToolResult.Success
				if m.ToolResult.Output != nil {
					resp["output"] = m.ToolResult.Output
				}
				if m.ToolResult.Error != "" {
					resp["error"] = m.ToolResult.Error
				}
			}
			out = append(out, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{{
				FunctionResponse: &genai.FunctionResponse{
					ID:       m.ToolCallID,
					Name:     name,
					Response: resp,
				},
			}}})
		default:
			// system turns inside history are folded into user turns;
			// the real system prompt travels via SystemInstruction.
			out = append(out, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{{Text: m.Content}}})
		}
	}
	return out, nil
}

func toGenAISchema(s model.ParamSchema) *genai.Schema {
	props := map[string]*genai.Schema{}
	for name, p := range s.Properties {
		props[name] = &genai.Schema{
			Type:        genAIType(p.Type),
			Description: p.Description,
			Enum:        p.Enum,
		}
	}
	return &genai.Schema{
		Type:       genai.TypeObject,
		Properties: props,
		Required:   s.Required,
	}
}

func marshalArgs(args map[string]any) (string, error) {
	if len(args) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func genAIType(t string) genai.Type {
	switch t {
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	default:
		return genai.TypeString
	}
}
