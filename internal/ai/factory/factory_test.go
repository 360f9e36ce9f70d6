package factory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/mdmdedup/internal/ai"
	"github.com/kiranshivaraju/mdmdedup/internal/ai/factory"
	"github.com/kiranshivaraju/mdmdedup/internal/config"
)

// --- NewProvider ---

func TestNewProvider_Kinds(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.ProviderConfig
	}{
		{"ollama", config.ProviderConfig{Name: "local", Type: "ollama", Endpoint: "http://localhost:11434"}},
		{"vllm", config.ProviderConfig{Name: "gpu", Type: "vllm", Endpoint: "http://localhost:8000", Model: "mistral-7b"}},
		{"openai", config.ProviderConfig{Name: "oai", Type: "openai", APIKey: "sk-test"}},
		{"azure", config.ProviderConfig{Name: "az", Type: "azure", APIKey: "k", Endpoint: "https://x.openai.azure.com", Deployment: "gpt4o"}},
		{"anthropic", config.ProviderConfig{Name: "claude", Type: "anthropic", APIKey: "sk-ant-test"}},
		{"mock", config.ProviderConfig{Name: "fake", Type: "mock"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := factory.NewProvider(context.Background(), tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.cfg.Name, p.Name())
		})
	}
}

func TestNewProvider_RateLimitedWrapper(t *testing.T) {
	p, err := factory.NewProvider(context.Background(), config.ProviderConfig{
		Name: "fake", Type: "mock", RequestsPerSecond: 2,
	})
	require.NoError(t, err)
	_, ok := p.(*ai.RateLimited)
	assert.True(t, ok)
	assert.Equal(t, "fake", p.Name())
}

func TestNewProvider_Unknown(t *testing.T) {
	_, err := factory.NewProvider(context.Background(), config.ProviderConfig{Name: "x", Type: "bard"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown AI provider type")
	assert.Contains(t, err.Error(), "bard")
}

func TestNewProvider_MissingCredentials(t *testing.T) {
	_, err := factory.NewProvider(context.Background(), config.ProviderConfig{Name: "oai", Type: "openai"})
	assert.Error(t, err)

	_, err = factory.NewProvider(context.Background(), config.ProviderConfig{Name: "az", Type: "azure", APIKey: "k"})
	assert.Error(t, err)
}

// --- BuildRegistry ---

func TestBuildRegistry(t *testing.T) {
	off := false
	cfg := config.AIConfig{Providers: []config.ProviderConfig{
		{Name: "backup", Type: "mock", Priority: 2},
		{Name: "primary", Type: "mock", Priority: 1},
		{Name: "parked", Type: "mock", Priority: 0, Enabled: &off},
	}}

	reg, err := factory.BuildRegistry(context.Background(), cfg, nil)
	require.NoError(t, err)

	status := reg.Status()
	assert.Equal(t, "primary", status.CurrentProvider)
	require.Len(t, status.AllProviders, 2)
	assert.Equal(t, "primary", status.AllProviders[0].Name)
	assert.Equal(t, "backup", status.AllProviders[1].Name)
}

func TestBuildRegistry_PropagatesErrors(t *testing.T) {
	cfg := config.AIConfig{Providers: []config.ProviderConfig{{Name: "oai", Type: "openai"}}}
	_, err := factory.BuildRegistry(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `creating provider "oai"`)
}
