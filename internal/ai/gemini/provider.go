package gemini

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/kiranshivaraju/mdmdedup/internal/ai"
	"github.com/kiranshivaraju/mdmdedup/internal/config"
	"github.com/kiranshivaraju/mdmdedup/pkg/models"
)

const defaultModel = "gemini-2.0-flash"

// Provider implements models.AIProvider using the Gemini API (API-key auth).
type Provider struct {
	name   string
	model  string
	client *genai.Client
}

// NewProvider creates a Gemini provider. The client is built eagerly so that
// configuration errors surface at startup.
func NewProvider(ctx context.Context, cfg config.ProviderConfig) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini provider %q: api key is required", cfg.Name)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini provider %q: create client: %w", cfg.Name, err)
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	return &Provider{name: cfg.Name, model: model, client: client}, nil
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Complete(ctx context.Context, prompt models.Prompt) (string, error) {
	gc := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(prompt.MaxTokens),
	}
	if prompt.System != "" {
		gc.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: prompt.System}}}
	}
	if prompt.JSONMode {
		gc.ResponseMIMEType = "application/json"
	}
	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: prompt.User}},
	}}

	result, err := p.client.Models.GenerateContent(ctx, p.model, contents, gc)
	if err != nil {
		return "", classifyError(p.name, err)
	}
	text := result.Text()
	if text == "" {
		return "", &ai.TransientProviderError{Provider: p.name, Err: errors.New("empty response")}
	}
	return text, nil
}

// classifyError maps a genai error to the provider error taxonomy. The SDK
// returns APIError by value; the pointer form is accepted as well.
func classifyError(provider string, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return ai.ClassifyStatus(provider, apiErr.Code, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return ai.ClassifyStatus(provider, apiErrPtr.Code, err)
	}
	return ai.ClassifyTransport(provider, err)
}

var _ models.AIProvider = (*Provider)(nil)
