package openai

import (
	"context"
	"errors"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/kiranshivaraju/mdmdedup/internal/ai"
	"github.com/kiranshivaraju/mdmdedup/internal/config"
	"github.com/kiranshivaraju/mdmdedup/pkg/models"
)

const defaultModel = "gpt-4o-mini"

// Provider implements models.AIProvider over the OpenAI chat completions API.
// The Azure and vLLM adapters reuse it with their own client configuration.
type Provider struct {
	name   string
	model  string
	client *goopenai.Client
}

// NewProvider creates an OpenAI provider authenticated with a bearer token.
func NewProvider(cfg config.ProviderConfig) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai provider %q: api key is required", cfg.Name)
	}
	cc := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		cc.BaseURL = cfg.Endpoint
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	return NewFromClientConfig(cfg.Name, model, cc), nil
}

// NewFromClientConfig creates a Provider from a prepared go-openai client config.
func NewFromClientConfig(name, model string, cc goopenai.ClientConfig) *Provider {
	return &Provider{
		name:   name,
		model:  model,
		client: goopenai.NewClientWithConfig(cc),
	}
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Complete(ctx context.Context, prompt models.Prompt) (string, error) {
	var messages []goopenai.ChatCompletionMessage
	if prompt.System != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: prompt.System,
		})
	}
	messages = append(messages, goopenai.ChatCompletionMessage{
		Role:    goopenai.ChatMessageRoleUser,
		Content: prompt.User,
	})

	req := goopenai.ChatCompletionRequest{
		Model:               p.model,
		Messages:            messages,
		MaxCompletionTokens: prompt.MaxTokens,
	}
	if prompt.JSONMode {
		req.ResponseFormat = &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", p.mapError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &ai.TransientProviderError{Provider: p.name, Err: errors.New("no choices in response")}
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *Provider) mapError(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return ai.ClassifyStatus(p.name, apiErr.HTTPStatusCode, err)
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return ai.ClassifyStatus(p.name, reqErr.HTTPStatusCode, err)
	}
	return ai.ClassifyTransport(p.name, err)
}

var _ models.AIProvider = (*Provider)(nil)
