package gemini

import (
	"context"
	"strings"

	apperrors "github.com/harunnryd/odoo-agent/internal/errors"
	"github.com/harunnryd/odoo-agent/internal/model/contract"

	"google.golang.org/genai"
)

type Provider struct {
	client *genai.Client
}

func New(apiKey string) (*Provider, error) {
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	return &Provider{client: client}, nil
}

func (p *Provider) Complete(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	resp, err := p.client.Models.GenerateContent(ctx, req.Model, toContents(req.Messages), cfg)
	if err != nil {
		return nil, apperrors.Wrap(err, "gemini request failed")
	}

	var text strings.Builder
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part != nil {
				text.WriteString(part.Text)
			}
		}
	}
	return &contract.CompletionResponse{Content: text.String(), Model: req.Model}, nil
}

func toContents(history []contract.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(history))
	for _, m := range history {
		role := "user"
		if m.Role == contract.RoleAssistant {
			role = "model"
		}
		out = append(out, &genai.Content{Role: role, Parts: []*genai.Part{{Text: m.Content}}})
	}
	return out
}
