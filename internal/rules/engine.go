// Package rules evaluates business duplicate rules against record pairs.
package rules

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"go.uber.org/zap"

	"github.com/kiranshivaraju/mdmdedup/internal/ai"
	"github.com/kiranshivaraju/mdmdedup/pkg/models"
)

// Confidence bands over the 0-100 running score.
const (
	HighThreshold   = 85.0
	MediumThreshold = 60.0
)

// Scores a fired rule reports when it sets a level without an explicit score.
var levelScores = map[string]float64{
	"high":   0.9,
	"medium": 0.7,
	"low":    0.3,
}

// Engine holds the active rule set. AnalyzeRecords is safe for concurrent use
// with SetRules.
type Engine struct {
	mu     sync.RWMutex
	env    *cel.Env
	rules  []*CompiledRule
	logger *zap.Logger
}

// CompiledRule is a BusinessRule with its conditions and expression compiled.
type CompiledRule struct {
	Rule       models.BusinessRule
	conditions []compiledCondition
	program    cel.Program
}

// EvaluatorFunc is the per-rule function the test harness runs.
type EvaluatorFunc func(r1, r2 models.Record) (models.RuleResult, error)

// NewEngine creates an engine with no rules. A nil logger falls back to zap.L().
func NewEngine(logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.L()
	}
	// COMPLEX expressions see both records, the fuzzy score and the
	// condition results in declaration order.
	opts := append([]cel.EnvOption{
		cel.Variable("r1", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("r2", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("fuzzy", cel.DoubleType),
		cel.Variable("c", cel.ListType(cel.BoolType)),
	}, nameFunctions()...)
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &Engine{env: env, logger: logger}, nil
}

// SetRules compiles the enabled rules and replaces the active set. On any
// compile error the previous set is kept.
func (e *Engine) SetRules(rules []models.BusinessRule) error {
	compiled := make([]*CompiledRule, 0, len(rules))
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		cr, err := e.Compile(r)
		if err != nil {
			return err
		}
		compiled = append(compiled, cr)
	}
	// Ascending priority: higher-priority rules apply last and win the
	// recommendation.
	sort.SliceStable(compiled, func(i, j int) bool {
		return compiled[i].Rule.Priority < compiled[j].Rule.Priority
	})

	e.mu.Lock()
	e.rules = compiled
	e.mu.Unlock()
	return nil
}

// Rules returns the active rules in application order.
func (e *Engine) Rules() []models.BusinessRule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.BusinessRule, len(e.rules))
	for i, cr := range e.rules {
		out[i] = cr.Rule
	}
	return out
}

// Compile validates rule and prepares it for evaluation.
func (e *Engine) Compile(rule models.BusinessRule) (*CompiledRule, error) {
	cr := &CompiledRule{Rule: rule}
	for i, c := range rule.Conditions {
		cc, err := compileCondition(c)
		if err != nil {
			return nil, fmt.Errorf("rule %q: condition %d: %w", rule.Name, i, err)
		}
		cr.conditions = append(cr.conditions, cc)
	}

	switch rule.Logic {
	case "", models.LogicAnd, models.LogicOr:
	case models.LogicComplex:
		if strings.TrimSpace(rule.Expression) == "" {
			return nil, fmt.Errorf("rule %q: COMPLEX logic requires an expression", rule.Name)
		}
		ast, issues := e.env.Compile(rule.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("rule %q: failed to compile expression: %w", rule.Name, issues.Err())
		}
		if ast.OutputType() != cel.BoolType {
			return nil, fmt.Errorf("rule %q: expression must return bool, got %s", rule.Name, ast.OutputType())
		}
		prg, err := e.env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("rule %q: failed to create program: %w", rule.Name, err)
		}
		cr.program = prg
	default:
		return nil, fmt.Errorf("rule %q: unknown logic %q", rule.Name, rule.Logic)
	}

	for i, a := range rule.Actions {
		if err := validateAction(a); err != nil {
			return nil, fmt.Errorf("rule %q: action %d: %w", rule.Name, i, err)
		}
	}
	return cr, nil
}

func validateAction(a models.Action) error {
	switch a.Type {
	case models.ActionSetConfidence:
		if a.Value == "" && a.Score == 0 {
			return fmt.Errorf("set_confidence needs a level or a score")
		}
		if a.Value != "" {
			if _, ok := levelScores[strings.ToLower(a.Value)]; !ok {
				return fmt.Errorf("unknown confidence level %q", a.Value)
			}
		}
		if a.Score < 0 || a.Score > 1 {
			return fmt.Errorf("score %v outside [0, 1]", a.Score)
		}
	case models.ActionAddFlag, models.ActionSetRecommendation, models.ActionExemption:
		if strings.TrimSpace(a.Value) == "" {
			return fmt.Errorf("%s requires a value", a.Type)
		}
	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
	return nil
}

// Matches reports whether the rule's conditions hold for the pair.
func (c *CompiledRule) Matches(r1, r2 models.Record, fuzzy float64) (bool, error) {
	results := make([]bool, len(c.conditions))
	for i, cond := range c.conditions {
		results[i] = cond.eval(r1, r2)
	}

	switch c.Rule.Logic {
	case models.LogicOr:
		for _, ok := range results {
			if ok {
				return true, nil
			}
		}
		return false, nil
	case models.LogicComplex:
		out, _, err := c.program.Eval(map[string]any{
			"r1":    map[string]string(r1),
			"r2":    map[string]string(r2),
			"fuzzy": fuzzy,
			"c":     results,
		})
		if err != nil {
			return false, fmt.Errorf("rule %q: evaluation error: %w", c.Rule.Name, err)
		}
		b, ok := out.(types.Bool)
		if !ok {
			return false, fmt.Errorf("rule %q: expression returned %v", c.Rule.Name, out.Type())
		}
		return bool(b), nil
	default:
		if len(results) == 0 {
			return false, nil
		}
		for _, ok := range results {
			if !ok {
				return false, nil
			}
		}
		return true, nil
	}
}

// Evaluate returns the rule's own verdict when it fires and the
// not-applicable result otherwise.
func (c *CompiledRule) Evaluate(r1, r2 models.Record, fuzzy float64) (models.RuleResult, error) {
	fired, err := c.Matches(r1, r2, fuzzy)
	if err != nil {
		return models.RuleResult{}, err
	}
	if !fired {
		return NotApplicable(), nil
	}
	return c.firedResult(), nil
}

func (c *CompiledRule) firedResult() models.RuleResult {
	res := models.RuleResult{
		Recommendation:        models.RecommendationReview,
		Confidence:            "medium",
		BusinessJustification: c.Rule.Description,
	}
	var score float64
	for _, a := range c.Rule.Actions {
		switch a.Type {
		case models.ActionSetConfidence:
			if a.Value != "" {
				res.Confidence = strings.ToLower(a.Value)
			}
			if a.Score > 0 {
				score = a.Score
			}
		case models.ActionSetRecommendation:
			res.Recommendation = a.Value
		case models.ActionAddFlag:
			res.DataQualityIssues = append(res.DataQualityIssues, a.Value)
		case models.ActionExemption:
			res.SuggestedActions = append(res.SuggestedActions, a.Value)
		}
	}
	if score == 0 {
		score = levelScores[res.Confidence]
	}
	res.ConfidenceScore = score
	return res
}

// NotApplicable is the result of a rule that did not fire.
func NotApplicable() models.RuleResult {
	return models.RuleResult{
		Recommendation:  models.RecommendationNotApplicable,
		Confidence:      "low",
		ConfidenceScore: 0,
	}
}

// Evaluator compiles rule and returns its test evaluator. The fuzzy score is
// zero; test cases carry records only.
func (e *Engine) Evaluator(rule models.BusinessRule) (EvaluatorFunc, error) {
	cr, err := e.Compile(rule)
	if err != nil {
		return nil, err
	}
	return func(r1, r2 models.Record) (models.RuleResult, error) {
		return cr.Evaluate(r1, r2, 0)
	}, nil
}

// AnalyzeRecords applies the active rules to the pair and blends their
// effects with the fuzzy score. Identifier fields are filtered first, the
// same way prompts are built.
func (e *Engine) AnalyzeRecords(req models.AnalysisRequest) models.SmartAnalysisResult {
	e.mu.RLock()
	active := e.rules
	e.mu.RUnlock()

	r1, r2 := ai.FilterRecords(req.Record1, req.Record2)

	fuzzy := req.FuzzyScore
	if math.IsNaN(fuzzy) {
		fuzzy = 0
	}
	score := clampScore(fuzzy * 100)

	res := models.SmartAnalysisResult{
		AppliedRules: []models.AppliedRule{},
		RiskFactors:  []string{},
		Exemptions:   []string{},
	}
	var level, recommendation string

	for _, cr := range active {
		fired, err := cr.Matches(r1, r2, fuzzy)
		if err != nil {
			e.logger.Warn("business rule skipped", zap.String("rule", cr.Rule.Name), zap.Error(err))
			continue
		}
		if !fired {
			continue
		}

		reasoning := cr.Rule.Description
		if reasoning == "" {
			reasoning = "All rule conditions matched"
		}
		res.AppliedRules = append(res.AppliedRules, models.AppliedRule{RuleName: cr.Rule.Name, Reasoning: reasoning})

		for _, a := range cr.Rule.Actions {
			switch a.Type {
			case models.ActionSetConfidence:
				if a.Score > 0 {
					score = clampScore(a.Score * 100)
				}
				if a.Value != "" {
					level = canonicalLevel(a.Value)
				}
			case models.ActionAddFlag:
				res.RiskFactors = appendUnique(res.RiskFactors, a.Value)
			case models.ActionSetRecommendation:
				recommendation = a.Value
			case models.ActionExemption:
				res.Exemptions = appendUnique(res.Exemptions, a.Value)
			}
		}
	}

	res.FinalConfidenceScore = score
	if level == "" {
		level = band(score)
	}
	res.FinalConfidence = level
	if recommendation == "" {
		recommendation = defaultRecommendation(score)
	}
	res.Recommendation = recommendation
	res.BusinessContext = businessContext(res.AppliedRules)
	return res
}

func clampScore(s float64) float64 {
	return math.Max(0, math.Min(100, s))
}

func band(score float64) string {
	switch {
	case score >= HighThreshold:
		return models.ConfidenceHigh
	case score >= MediumThreshold:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

func defaultRecommendation(score float64) string {
	switch {
	case score >= HighThreshold:
		return models.RecommendationMerge
	case score >= MediumThreshold:
		return models.RecommendationReview
	default:
		return models.RecommendationKeepSeparate
	}
}

func canonicalLevel(v string) string {
	switch strings.ToLower(v) {
	case "high":
		return models.ConfidenceHigh
	case "medium":
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

func businessContext(applied []models.AppliedRule) string {
	if len(applied) == 0 {
		return "No business rules matched; confidence follows the fuzzy score"
	}
	names := make([]string, len(applied))
	for i, a := range applied {
		names[i] = a.RuleName
	}
	return fmt.Sprintf("Matched %d business rule(s): %s", len(applied), strings.Join(names, ", "))
}
