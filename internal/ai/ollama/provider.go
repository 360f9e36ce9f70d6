package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/mdmdedup/internal/ai"
	"github.com/kiranshivaraju/mdmdedup/internal/config"
	"github.com/kiranshivaraju/mdmdedup/pkg/models"
)

const (
	defaultBaseURL = "http://localhost:11434"
	defaultModel   = "llama3"
)

// Provider implements models.AIProvider against Ollama's native /api/generate.
type Provider struct {
	name    string
	baseURL string
	model   string
	client  *http.Client
}

// NewProvider creates an Ollama provider. Request deadlines come from the
// caller's context.
func NewProvider(cfg config.ProviderConfig) *Provider {
	baseURL := cfg.Endpoint
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	return &Provider{
		name:    cfg.Name,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{},
	}
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	System  string          `json:"system,omitempty"`
	Stream  bool            `json:"stream"`
	Format  string          `json:"format,omitempty"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	NumPredict int `json:"num_predict,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Complete(ctx context.Context, prompt models.Prompt) (string, error) {
	body := generateRequest{
		Model:   p.model,
		Prompt:  prompt.User,
		System:  prompt.System,
		Options: generateOptions{NumPredict: prompt.MaxTokens},
	}
	if prompt.JSONMode {
		body.Format = "json"
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encoding ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", ai.ClassifyTransport(p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", ai.ClassifyStatus(p.name, resp.StatusCode,
			fmt.Errorf("ollama status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &ai.TransientProviderError{Provider: p.name, Err: fmt.Errorf("decoding ollama response: %w", err)}
	}
	if out.Error != "" {
		return "", &ai.PermanentProviderError{Provider: p.name, Err: errors.New(out.Error)}
	}
	return out.Response, nil
}

var _ models.AIProvider = (*Provider)(nil)
