package ruletest

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/kiranshivaraju/mdmdedup/internal/rules"
	"github.com/kiranshivaraju/mdmdedup/pkg/models"
)

// DefaultTestCases returns the built-in cases for a rule category.
func DefaultTestCases(category string) []models.TestCase {
	switch category {
	case rules.CategoryBusinessRelationship:
		return []models.TestCase{
			{
				ID:          "energy-divisions-same-address",
				Description: "Different divisions of one energy company at the same address",
				Record1:     models.Record{"name": "Shell Chemical", "address": "123 Energy St"},
				Record2:     models.Record{"name": "Shell Oil", "address": "123 Energy St"},
				Expected: models.RuleResult{
					Recommendation:  models.RecommendationReject,
					Confidence:      "high",
					ConfidenceScore: 0.95,
				},
			},
			{
				ID:          "same-division-same-address",
				Description: "Identical division names at the same address",
				Record1:     models.Record{"name": "Chevron Oil", "address": "123 Energy St"},
				Record2:     models.Record{"name": "Chevron Oil", "address": "123 Energy St"},
				Expected: models.RuleResult{
					Recommendation:  models.RecommendationNotApplicable,
					Confidence:      "low",
					ConfidenceScore: 0,
				},
			},
		}
	default:
		return nil
	}
}

// GenerateAdditionalTestCases derives edge-case tests from the rule's first
// test case: one per condition field with that field blanked in record1, and
// one with both records upper-cased and punctuated. The results are drafts
// for a human to review before they join the rule's test cases.
func (h *Harness) GenerateAdditionalTestCases(rule models.BusinessRule, reason string) []models.TestCase {
	base, ok := baseCase(rule)
	if !ok {
		return []models.TestCase{}
	}

	generated := []models.TestCase{}
	for _, field := range conditionFields(rule) {
		r1 := base.Record1.Clone()
		if r1 == nil {
			r1 = models.Record{}
		}
		r1[field] = ""
		generated = append(generated, models.TestCase{
			ID:          fmt.Sprintf("%s-missing-%s", base.ID, field),
			Description: fmt.Sprintf("Generated (%s): %s missing from record1", reason, field),
			Record1:     r1,
			Record2:     base.Record2.Clone(),
			Expected:    rules.NotApplicable(),
		})
	}

	generated = append(generated, models.TestCase{
		ID:          base.ID + "-formatting",
		Description: fmt.Sprintf("Generated (%s): upper case and trailing punctuation", reason),
		Record1:     reformat(base.Record1),
		Record2:     reformat(base.Record2),
		Expected:    base.Expected,
	})
	return generated
}

func baseCase(rule models.BusinessRule) (models.TestCase, bool) {
	cases := rule.TestCases
	if len(cases) == 0 {
		cases = DefaultTestCases(rule.Category)
	}
	if len(cases) == 0 {
		return models.TestCase{}, false
	}
	return cases[0], true
}

func conditionFields(rule models.BusinessRule) []string {
	seen := map[string]bool{}
	var fields []string
	for _, c := range rule.Conditions {
		if !seen[c.Field] {
			seen[c.Field] = true
			fields = append(fields, c.Field)
		}
	}
	sort.Strings(fields)
	return fields
}

func reformat(r models.Record) models.Record {
	out := make(models.Record, len(r))
	for k, v := range r {
		if v == "" {
			out[k] = v
			continue
		}
		out[k] = strings.ToUpper(v) + "."
	}
	return out
}

// benchmarkPair is the fixed synthetic pair RunBenchmark evaluates.
var benchmarkPair = [2]models.Record{
	{"name": "Shell Chemical Company", "address": "123 Energy St", "city": "Houston", "country": "US", "phone": "555-0100"},
	{"name": "Shell Oil Company", "address": "123 Energy St", "city": "Houston", "country": "US", "phone": "555-0199"},
}

// RunBenchmark evaluates the rule repeatedly against a fixed pair and
// reports latency in milliseconds and throughput in evaluations per second.
func (h *Harness) RunBenchmark(ctx context.Context, rule models.BusinessRule, iterations int) (models.BenchmarkResult, error) {
	if iterations <= 0 {
		iterations = DefaultBenchmarkIterations
	}
	eval, err := h.engine.Evaluator(rule)
	if err != nil {
		return models.BenchmarkResult{}, &rules.RuleEvaluationError{Rule: rule.Name, Err: err}
	}

	res := models.BenchmarkResult{MinTimeMs: math.MaxFloat64}
	var totalMs float64
	for i := 0; i < iterations; i++ {
		if err := ctx.Err(); err != nil {
			return models.BenchmarkResult{}, err
		}
		start := time.Now()
		if _, err := eval(benchmarkPair[0], benchmarkPair[1]); err != nil {
			return models.BenchmarkResult{}, &rules.RuleEvaluationError{Rule: rule.Name, Err: err}
		}
		ms := elapsedMs(start)
		totalMs += ms
		res.MinTimeMs = math.Min(res.MinTimeMs, ms)
		res.MaxTimeMs = math.Max(res.MaxTimeMs, ms)
		res.Iterations++
	}

	res.AvgExecutionTimeMs = totalMs / float64(res.Iterations)
	if totalMs > 0 {
		res.Throughput = float64(res.Iterations) / (totalMs / 1000)
	}
	return res, nil
}
