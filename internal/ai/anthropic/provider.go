package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/kiranshivaraju/mdmdedup/internal/ai"
	"github.com/kiranshivaraju/mdmdedup/internal/config"
	"github.com/kiranshivaraju/mdmdedup/pkg/models"
)

const defaultModel = "claude-sonnet-4-5-20250929"

// Provider implements models.AIProvider using the Anthropic Messages API.
type Provider struct {
	name   string
	model  string
	client *anthropic.Client
}

// NewProvider creates an Anthropic provider from config.
func NewProvider(cfg config.ProviderConfig) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic provider %q: api key is required", cfg.Name)
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}
	client := anthropic.NewClient(opts...)

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	return &Provider{name: cfg.Name, model: model, client: &client}, nil
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Complete(ctx context.Context, prompt models.Prompt) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(prompt.MaxTokens),
		Messages: []anthropic.MessageParam{{
			Role:    anthropic.MessageParamRoleUser,
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(prompt.User)},
		}},
	}
	if prompt.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: prompt.System}}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", p.mapError(err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", &ai.TransientProviderError{Provider: p.name, Err: errors.New("no text content in response")}
	}
	return sb.String(), nil
}

func (p *Provider) mapError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return ai.ClassifyStatus(p.name, apiErr.StatusCode, err)
	}
	return ai.ClassifyTransport(p.name, err)
}

var _ models.AIProvider = (*Provider)(nil)
