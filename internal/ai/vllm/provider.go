// Package vllm talks to a vLLM server through its OpenAI-compatible API.
package vllm

import (
	"fmt"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/kiranshivaraju/mdmdedup/internal/ai/openai"
	"github.com/kiranshivaraju/mdmdedup/internal/config"
)

// vLLM accepts any bearer token unless started with --api-key.
const placeholderKey = "EMPTY"

// NewProvider creates a provider for the vLLM server at cfg.Endpoint.
func NewProvider(cfg config.ProviderConfig) (*openai.Provider, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("vllm provider %q: endpoint is required", cfg.Name)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("vllm provider %q: model is required", cfg.Name)
	}

	key := cfg.APIKey
	if key == "" {
		key = placeholderKey
	}
	cc := goopenai.DefaultConfig(key)
	cc.BaseURL = strings.TrimRight(cfg.Endpoint, "/")
	if !strings.HasSuffix(cc.BaseURL, "/v1") {
		cc.BaseURL += "/v1"
	}
	return openai.NewFromClientConfig(cfg.Name, cfg.Model, cc), nil
}
