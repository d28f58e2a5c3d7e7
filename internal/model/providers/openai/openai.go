package openai

import (
	"context"
	"errors"
	"net/http"
	"strings"

	apperrors "github.com/harunnryd/odoo-agent/internal/errors"
	"github.com/harunnryd/odoo-agent/internal/model/contract"

	"github.com/sashabaranov/go-openai"
)

// Provider serves OpenAI and any OpenAI-compatible endpoint such as Ollama.
type Provider struct {
	client *openai.Client
}

func New(apiKey, baseURL string) *Provider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	return &Provider{client: openai.NewClientWithConfig(cfg)}
}

func (p *Provider) Complete(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     req.Model,
		Messages:  toMessages(req.System, req.Messages),
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, apperrors.Internal("openai returned no choices")
	}

	return &contract.CompletionResponse{
		Content: resp.Choices[0].Message.Content,
		Model:   resp.Model,
	}, nil
}

func toMessages(system string, history []contract.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.Role == contract.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}

// classify marks rate-limit and server-side failures as transient.
func classify(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	if status == http.StatusTooManyRequests || status >= 500 {
		return apperrors.WrapWithCategory(err, "openai request failed", apperrors.ErrTransient)
	}
	return apperrors.Wrap(err, "openai request failed")
}
