// Package ruletest runs business rules against their test cases and scores
// how well they behave before deployment.
package ruletest

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kiranshivaraju/mdmdedup/internal/rules"
	"github.com/kiranshivaraju/mdmdedup/pkg/models"
)

const (
	// DefaultScoreTolerance is the largest confidence score difference still
	// counted as a match.
	DefaultScoreTolerance = 0.05
	// DefaultBenchmarkIterations is used when RunBenchmark gets a non-positive count.
	DefaultBenchmarkIterations = 100

	lowAccuracyWarning = 50.0
	suggestionCutoff   = 95.0
)

// recordDefaults fill fields a partial test record leaves out.
var recordDefaults = models.Record{
	"name":    "Test Company",
	"address": "1 Test Way",
	"city":    "Testville",
	"country": "US",
}

// Harness runs rule test cases through the rule engine's evaluators.
type Harness struct {
	engine    *rules.Engine
	tolerance float64
	logger    *zap.Logger
}

// Option configures a Harness.
type Option func(*Harness)

// WithTolerance sets the confidence score tolerance. Negative values are ignored.
func WithTolerance(t float64) Option {
	return func(h *Harness) {
		if t >= 0 {
			h.tolerance = t
		}
	}
}

// WithLogger sets the harness logger.
func WithLogger(l *zap.Logger) Option {
	return func(h *Harness) {
		if l != nil {
			h.logger = l
		}
	}
}

// New creates a Harness backed by engine.
func New(engine *rules.Engine, opts ...Option) *Harness {
	h := &Harness{
		engine:    engine,
		tolerance: DefaultScoreTolerance,
		logger:    zap.L(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// TestRule runs the rule's test cases, or the category defaults when it has
// none. A failing case never aborts the run; its error is recorded on it.
func (h *Harness) TestRule(ctx context.Context, rule models.BusinessRule) models.TestResult {
	cases := rule.TestCases
	if len(cases) == 0 {
		cases = DefaultTestCases(rule.Category)
	}

	result := models.TestResult{
		ID:         uuid.New(),
		RuleID:     rule.ID,
		TotalTests: len(cases),
		Results:    make([]models.TestCaseResult, 0, len(cases)),
		CreatedAt:  time.Now().UTC(),
	}

	eval, compileErr := h.engine.Evaluator(rule)

	var totalMs float64
	for _, tc := range cases {
		var cr models.TestCaseResult
		switch {
		case ctx.Err() != nil:
			cr = failedCase(tc, &rules.RuleEvaluationError{Rule: rule.Name, TestCaseID: tc.ID, Err: ctx.Err()})
		case compileErr != nil:
			cr = failedCase(tc, &rules.RuleEvaluationError{Rule: rule.Name, TestCaseID: tc.ID, Err: compileErr})
		default:
			cr = h.runCase(rule.Name, eval, tc)
		}
		if cr.Passed {
			result.Passed++
		} else {
			result.Failed++
		}
		totalMs += cr.ExecutionTimeMs
		result.Results = append(result.Results, cr)
	}

	if result.TotalTests > 0 {
		result.Accuracy = 100 * float64(result.Passed) / float64(result.TotalTests)
		result.AvgExecutionTimeMs = totalMs / float64(result.TotalTests)
	}
	if result.Accuracy < suggestionCutoff {
		reason := fmt.Sprintf("accuracy %.1f%% is below %.0f%%", result.Accuracy, suggestionCutoff)
		result.SuggestedTests = h.GenerateAdditionalTestCases(rule, reason)
	}

	h.logger.Debug("rule tested",
		zap.String("rule", rule.Name),
		zap.Int("passed", result.Passed),
		zap.Int("total", result.TotalTests))
	return result
}

func (h *Harness) runCase(ruleName string, eval rules.EvaluatorFunc, tc models.TestCase) (cr models.TestCaseResult) {
	r1 := materialize(tc.Record1)
	r2 := materialize(tc.Record2)

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			cr = failedCase(tc, &rules.RuleEvaluationError{
				Rule: ruleName, TestCaseID: tc.ID, Err: fmt.Errorf("panic: %v", p),
			})
			cr.ExecutionTimeMs = elapsedMs(start)
		}
	}()

	actual, err := eval(r1, r2)
	elapsed := elapsedMs(start)
	if err != nil {
		cr = failedCase(tc, &rules.RuleEvaluationError{Rule: ruleName, TestCaseID: tc.ID, Err: err})
		cr.ExecutionTimeMs = elapsed
		return cr
	}

	return models.TestCaseResult{
		TestCaseID:      tc.ID,
		Passed:          h.matches(tc.Expected, actual),
		Expected:        tc.Expected,
		Actual:          &actual,
		ExecutionTimeMs: elapsed,
	}
}

// matches compares recommendation and confidence exactly and the score
// within the tolerance.
func (h *Harness) matches(expected, actual models.RuleResult) bool {
	return expected.Recommendation == actual.Recommendation &&
		expected.Confidence == actual.Confidence &&
		math.Abs(expected.ConfidenceScore-actual.ConfidenceScore) < h.tolerance
}

func failedCase(tc models.TestCase, err error) models.TestCaseResult {
	msg := err.Error()
	return models.TestCaseResult{
		TestCaseID: tc.ID,
		Passed:     false,
		Expected:   tc.Expected,
		Error:      &msg,
	}
}

// materialize fills absent fields of a partial record from recordDefaults.
// Fields present with an empty value stay empty.
func materialize(partial models.Record) models.Record {
	out := make(models.Record, len(recordDefaults)+len(partial))
	for k, v := range recordDefaults {
		out[k] = v
	}
	for k, v := range partial {
		out[k] = v
	}
	return out
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Nanoseconds()) / 1e6
}

// ValidateRule checks the rule's structure, runs its tests and estimates its
// cost. Structural gaps are warnings; only compile failures are errors.
func (h *Harness) ValidateRule(ctx context.Context, rule models.BusinessRule) models.RuleValidationResult {
	res := models.RuleValidationResult{
		Errors:   []string{},
		Warnings: []string{},
	}

	if strings.TrimSpace(rule.Name) == "" {
		res.Warnings = append(res.Warnings, "Rule name is empty")
	}
	if strings.TrimSpace(rule.Description) == "" {
		res.Warnings = append(res.Warnings, "Rule description is empty")
	}
	if strings.TrimSpace(rule.Category) == "" {
		res.Warnings = append(res.Warnings, "Rule category is empty")
	}
	if rule.Priority < 1 || rule.Priority > 10 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("Priority %d is outside 1-10", rule.Priority))
	}
	if len(rule.Conditions) == 0 && rule.Logic != models.LogicComplex {
		res.Warnings = append(res.Warnings, "Rule has no conditions")
	}
	if len(rule.Actions) == 0 {
		res.Warnings = append(res.Warnings, "Rule has no actions")
	}

	if _, err := h.engine.Compile(rule); err != nil {
		res.Errors = append(res.Errors, err.Error())
	}

	tr := h.TestRule(ctx, rule)
	res.TestResults = &tr
	if tr.Accuracy < lowAccuracyWarning {
		res.Warnings = append(res.Warnings, fmt.Sprintf("Test accuracy %.1f%% is below %.0f%%", tr.Accuracy, lowAccuracyWarning))
	}

	res.Complexity = Complexity(rule)
	res.Performance = EstimatePerformance(res.Complexity)
	res.IsValid = len(res.Errors) == 0
	return res
}

// Complexity buckets a rule by its condition and action count.
func Complexity(rule models.BusinessRule) string {
	n := len(rule.Conditions) + len(rule.Actions)
	switch {
	case n <= 3:
		return models.ComplexityLow
	case n <= 6:
		return models.ComplexityMedium
	default:
		return models.ComplexityHigh
	}
}

// EstimatePerformance returns the fixed estimate for a complexity bucket.
func EstimatePerformance(complexity string) models.PerformanceEstimate {
	switch complexity {
	case models.ComplexityLow:
		return models.PerformanceEstimate{EstimatedExecutionTime: "< 1ms", MemoryUsage: "Low", Scalability: "Excellent"}
	case models.ComplexityMedium:
		return models.PerformanceEstimate{EstimatedExecutionTime: "1-5ms", MemoryUsage: "Medium", Scalability: "Good"}
	default:
		return models.PerformanceEstimate{EstimatedExecutionTime: "5-20ms", MemoryUsage: "High", Scalability: "Fair"}
	}
}
