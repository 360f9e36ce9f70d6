package factory

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kiranshivaraju/mdmdedup/internal/ai"
	"github.com/kiranshivaraju/mdmdedup/internal/ai/anthropic"
	"github.com/kiranshivaraju/mdmdedup/internal/ai/azure"
	"github.com/kiranshivaraju/mdmdedup/internal/ai/gemini"
	"github.com/kiranshivaraju/mdmdedup/internal/ai/mock"
	"github.com/kiranshivaraju/mdmdedup/internal/ai/ollama"
	"github.com/kiranshivaraju/mdmdedup/internal/ai/openai"
	"github.com/kiranshivaraju/mdmdedup/internal/ai/vllm"
	"github.com/kiranshivaraju/mdmdedup/internal/config"
	"github.com/kiranshivaraju/mdmdedup/pkg/models"
)

// NewProvider constructs the AI provider described by cfg. Providers with a
// requests_per_second setting are wrapped in a rate limiter.
func NewProvider(ctx context.Context, cfg config.ProviderConfig) (models.AIProvider, error) {
	var (
		p   models.AIProvider
		err error
	)
	switch models.ProviderKind(cfg.Type) {
	case models.ProviderAnthropic:
		p, err = anthropic.NewProvider(cfg)
	case models.ProviderOpenAI:
		p, err = openai.NewProvider(cfg)
	case models.ProviderAzure:
		p, err = azure.NewProvider(cfg)
	case models.ProviderGemini:
		p, err = gemini.NewProvider(ctx, cfg)
	case models.ProviderVLLM:
		p, err = vllm.NewProvider(cfg)
	case models.ProviderOllama:
		p = ollama.NewProvider(cfg)
	case models.ProviderMock:
		p = mock.NewMockProvider(cfg.Name)
	default:
		return nil, fmt.Errorf("unknown AI provider type %q: must be one of azure, openai, gemini, anthropic, vllm, ollama, mock", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	return ai.NewRateLimited(p, cfg.RequestsPerSecond, 1), nil
}

// BuildRegistry creates every enabled provider in cfg and registers it.
// Disabled providers are skipped.
func BuildRegistry(ctx context.Context, cfg config.AIConfig, logger *zap.Logger) (*ai.Registry, error) {
	if logger == nil {
		logger = zap.L()
	}
	reg := ai.NewRegistry(logger)
	for _, pc := range cfg.Providers {
		if !pc.IsEnabled() {
			logger.Info("ai provider disabled", zap.String("provider", pc.Name))
			continue
		}
		p, err := NewProvider(ctx, pc)
		if err != nil {
			return nil, fmt.Errorf("creating provider %q: %w", pc.Name, err)
		}
		if err := reg.Register(p, models.ProviderKind(pc.Type), pc.Priority); err != nil {
			return nil, err
		}
		logger.Info("ai provider registered",
			zap.String("provider", pc.Name),
			zap.String("type", pc.Type),
			zap.Int("priority", pc.Priority))
	}
	return reg, nil
}
