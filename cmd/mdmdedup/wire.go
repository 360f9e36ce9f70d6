package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kiranshivaraju/mdmdedup/internal/ai"
	"github.com/kiranshivaraju/mdmdedup/internal/ai/factory"
	"github.com/kiranshivaraju/mdmdedup/internal/config"
	"github.com/kiranshivaraju/mdmdedup/internal/rules"
	"github.com/kiranshivaraju/mdmdedup/internal/ruletest"
	"github.com/kiranshivaraju/mdmdedup/pkg/models"
)

// baseRules returns the built-in rules followed by those in the configured
// rules file.
func baseRules(cfg *config.Config) ([]models.BusinessRule, error) {
	set := rules.DefaultRules()
	if cfg.Rules.File == "" {
		return set, nil
	}
	fromFile, err := rules.LoadFile(cfg.Rules.File)
	if err != nil {
		return nil, err
	}
	return append(set, fromFile...), nil
}

// newEngine builds a rule engine loaded with base plus extra.
func newEngine(base []models.BusinessRule, extra ...models.BusinessRule) (*rules.Engine, error) {
	engine, err := rules.NewEngine(zap.L())
	if err != nil {
		return nil, err
	}
	set := append(append([]models.BusinessRule{}, base...), extra...)
	if err := engine.SetRules(set); err != nil {
		return nil, eris.Wrap(err, "load rules")
	}
	return engine, nil
}

// newOrchestrator registers the configured providers and wires the failover loop.
func newOrchestrator(ctx context.Context, cfg *config.Config, engine *rules.Engine) (*ai.Orchestrator, error) {
	reg, err := factory.BuildRegistry(ctx, cfg.AI, zap.L())
	if err != nil {
		return nil, err
	}
	validator, err := ai.NewResponseValidator()
	if err != nil {
		return nil, err
	}
	return ai.NewOrchestrator(reg, engine, validator,
		ai.WithTimeout(cfg.AI.InferenceTimeout),
		ai.WithLogger(zap.L()),
		ai.WithPromptBuilder(&ai.PromptBuilder{MaxTokens: cfg.AI.MaxTokens}),
	), nil
}

func newHarness(cfg *config.Config, engine *rules.Engine) *ruletest.Harness {
	return ruletest.New(engine,
		ruletest.WithTolerance(cfg.Rules.ScoreTolerance),
		ruletest.WithLogger(zap.L()))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
