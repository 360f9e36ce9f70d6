// Package azure adapts Azure OpenAI deployments (endpoint + deployment +
// api-key + api-version) to the OpenAI chat provider.
package azure

import (
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/kiranshivaraju/mdmdedup/internal/ai/openai"
	"github.com/kiranshivaraju/mdmdedup/internal/config"
)

const defaultAPIVersion = "2024-06-01"

// NewProvider creates a provider bound to one Azure OpenAI deployment.
func NewProvider(cfg config.ProviderConfig) (*openai.Provider, error) {
	switch {
	case cfg.APIKey == "":
		return nil, fmt.Errorf("azure provider %q: api key is required", cfg.Name)
	case cfg.Endpoint == "":
		return nil, fmt.Errorf("azure provider %q: endpoint is required", cfg.Name)
	case cfg.Deployment == "":
		return nil, fmt.Errorf("azure provider %q: deployment is required", cfg.Name)
	}

	cc := goopenai.DefaultAzureConfig(cfg.APIKey, cfg.Endpoint)
	cc.APIVersion = cfg.APIVersion
	if cc.APIVersion == "" {
		cc.APIVersion = defaultAPIVersion
	}
	deployment := cfg.Deployment
	cc.AzureModelMapperFunc = func(string) string { return deployment }

	model := cfg.Model
	if model == "" {
		model = deployment
	}
	return openai.NewFromClientConfig(cfg.Name, model, cc), nil
}
