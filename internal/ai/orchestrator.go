package ai

import (
	"context"
	"errors"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/kiranshivaraju/mdmdedup/pkg/models"
)

const (
	// DefaultMaxRetries bounds the number of provider hops per analysis.
	DefaultMaxRetries = 2
	// DefaultInferenceTimeout bounds a single backend call.
	DefaultInferenceTimeout = 20 * time.Second
	// RulesProvider names outcomes decided without any backend call.
	RulesProvider = "rules"
)

var tracer = otel.Tracer("mdmdedup-ai")

// SmartAnalyzer produces the rule-driven verdict that accompanies every prompt.
type SmartAnalyzer interface {
	AnalyzeRecords(req models.AnalysisRequest) models.SmartAnalysisResult
}

// Outcome is a completed analysis together with who produced it.
type Outcome struct {
	Output *models.AnalysisOutput
	// Provider is the backend whose reply was accepted, or RulesProvider
	// for a short-circuit.
	Provider     string
	ShortCircuit bool
	// Calls counts backend calls made, failed ones included.
	Calls int
}

type state int

const (
	stateTry state = iota
	stateRetrySame
	stateFailover
	stateExhausted
)

// Orchestrator drives one analysis across providers: prompt, call, validate,
// classify, retry once, fail over.
type Orchestrator struct {
	registry  *Registry
	rules     SmartAnalyzer
	prompts   *PromptBuilder
	validator *ResponseValidator
	timeout   time.Duration
	logger    *zap.Logger
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithTimeout sets the per-call inference timeout.
func WithTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLogger sets the logger used for provider selection events.
func WithLogger(l *zap.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithPromptBuilder replaces the default PromptBuilder.
func WithPromptBuilder(b *PromptBuilder) OrchestratorOption {
	return func(o *Orchestrator) {
		if b != nil {
			o.prompts = b
		}
	}
}

// NewOrchestrator wires the registry, rule engine and validator together.
func NewOrchestrator(registry *Registry, rules SmartAnalyzer, validator *ResponseValidator, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		registry:  registry,
		rules:     rules,
		prompts:   NewPromptBuilder(),
		validator: validator,
		timeout:   DefaultInferenceTimeout,
		logger:    zap.L(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Registry exposes the provider registry for status and switch operations.
func (o *Orchestrator) Registry() *Registry { return o.registry }

// AnalyzeWithFallback analyses a record pair, retrying a retryable failure once
// on the same provider and failing over to the next eligible provider
// otherwise. At most maxRetries providers are tried.
func (o *Orchestrator) AnalyzeWithFallback(ctx context.Context, req models.AnalysisRequest, maxRetries int) (*models.AnalysisOutput, error) {
	oc, err := o.Analyze(ctx, req, maxRetries)
	if err != nil {
		return nil, err
	}
	return oc.Output, nil
}

// Analyze is AnalyzeWithFallback reporting which provider answered. The
// attribution comes from the call itself, so it stays correct while other
// analyses move the registry's current provider.
func (o *Orchestrator) Analyze(ctx context.Context, req models.AnalysisRequest, maxRetries int) (*Outcome, error) {
	if maxRetries <= 0 {
		return nil, &RetriesExhaustedError{MaxRetries: maxRetries}
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "ai.AnalyzeWithFallback",
		trace.WithAttributes(attribute.Int("ai.max_retries", maxRetries)))
	defer span.End()

	oc, err := o.run(ctx, req, maxRetries)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("ai.answered_by", oc.Provider))
	return oc, nil
}

func (o *Orchestrator) run(ctx context.Context, req models.AnalysisRequest, maxRetries int) (*Outcome, error) {
	var (
		attemptsLeft = maxRetries
		st           = stateTry
		provider     models.AIProvider
		built        *BuildResult
		lastErr      error
		calls        int
	)
	answered := func(out *models.AnalysisOutput) *Outcome {
		return &Outcome{Output: out, Provider: provider.Name(), Calls: calls}
	}

	for {
		switch st {
		case stateTry:
			if attemptsLeft <= 0 {
				st = stateExhausted
				continue
			}
			provider = o.registry.Current()
			if provider == nil {
				return nil, &NoHealthyProviderError{}
			}
			o.logger.Debug("ai provider selected",
				zap.String("provider", provider.Name()),
				zap.Int("attempts_left", attemptsLeft))

			if built == nil {
				smart := o.rules.AnalyzeRecords(req)
				b := o.prompts.Build(req, smart)
				built = &b
			}
			if built.ShortCircuit != nil {
				return &Outcome{Output: built.ShortCircuit, Provider: RulesProvider, ShortCircuit: true}, nil
			}

			calls++
			out, err := o.attempt(ctx, provider, built.Prompt)
			if err == nil {
				return answered(out), nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			lastErr = err
			if Classify(err) == Retryable {
				o.logger.Warn("ai provider call failed, retrying same provider",
					zap.String("provider", provider.Name()), zap.Error(err))
				st = stateRetrySame
			} else {
				o.logger.Warn("ai provider call failed permanently",
					zap.String("provider", provider.Name()), zap.Error(err))
				st = stateFailover
			}

		case stateRetrySame:
			calls++
			out, err := o.attempt(ctx, provider, built.Prompt)
			if err == nil {
				return answered(out), nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			lastErr = err
			st = stateFailover

		case stateFailover:
			next, ok := o.registry.FailoverFrom(provider.Name())
			if !ok {
				o.logger.Error("all ai providers exhausted",
					zap.String("last_provider", provider.Name()), zap.Error(lastErr))
				return nil, &AllProvidersExhaustedError{LastProvider: provider.Name(), Err: lastErr}
			}
			o.logger.Info("ai provider failover",
				zap.String("from", provider.Name()),
				zap.String("to", next.Name()))
			attemptsLeft--
			st = stateTry

		case stateExhausted:
			return nil, &RetriesExhaustedError{MaxRetries: maxRetries, Err: lastErr}
		}
	}
}

// attempt performs one bounded call and validates the reply.
func (o *Orchestrator) attempt(ctx context.Context, p models.AIProvider, prompt models.Prompt) (*models.AnalysisOutput, error) {
	ctx, span := tracer.Start(ctx, "ai.attempt",
		trace.WithAttributes(attribute.String("ai.provider", p.Name())))
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	raw, err := p.Complete(callCtx, prompt)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = &TimeoutError{Provider: p.Name(), After: o.timeout}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	out, err := o.validator.Parse(raw)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	o.logger.Debug("ai provider answered",
		zap.String("provider", p.Name()),
		zap.Duration("duration", time.Since(start)))
	return out, nil
}

func validateRequest(req models.AnalysisRequest) error {
	if req.Record1 == nil {
		return &InvalidInputError{Field: "record1", Reason: "is required"}
	}
	if req.Record2 == nil {
		return &InvalidInputError{Field: "record2", Reason: "is required"}
	}
	if math.IsNaN(req.FuzzyScore) || math.IsInf(req.FuzzyScore, 0) {
		return &InvalidInputError{Field: "fuzzyScore", Reason: "must be a number"}
	}
	if req.FuzzyScore < 0 || req.FuzzyScore > 1 {
		return &InvalidInputError{Field: "fuzzyScore", Reason: "must be within [0, 1]"}
	}
	return nil
}
