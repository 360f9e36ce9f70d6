package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kiranshivaraju/mdmdedup/internal/api/response"
	"github.com/kiranshivaraju/mdmdedup/internal/store"
	"github.com/kiranshivaraju/mdmdedup/pkg/models"
)

// RuleStore is the persistence the rule endpoints need.
type RuleStore interface {
	ListRules(ctx context.Context, filter store.RuleFilter) ([]*models.BusinessRule, error)
	CreateRule(ctx context.Context, rule *models.BusinessRule) error
	GetRule(ctx context.Context, id uuid.UUID) (*models.BusinessRule, error)
	CreateTestResult(ctx context.Context, result *models.TestResult) error
	ListTestResults(ctx context.Context, ruleID uuid.UUID, limit int) ([]*models.TestResult, error)
}

// RuleTester runs, validates and benchmarks rules.
type RuleTester interface {
	TestRule(ctx context.Context, rule models.BusinessRule) models.TestResult
	ValidateRule(ctx context.Context, rule models.BusinessRule) models.RuleValidationResult
	RunBenchmark(ctx context.Context, rule models.BusinessRule, iterations int) (models.BenchmarkResult, error)
	GenerateAdditionalTestCases(rule models.BusinessRule, reason string) []models.TestCase
}

// Rules serves the /api/v1/rules endpoints.
type Rules struct {
	store  RuleStore
	tester RuleTester
	reload func(ctx context.Context) error
	logger *zap.Logger
}

// NewRules creates the rule handlers. reload, when non-nil, is called after a
// rule is created so the live engine picks it up.
func NewRules(st RuleStore, tester RuleTester, reload func(ctx context.Context) error) *Rules {
	return &Rules{store: st, tester: tester, reload: reload, logger: zap.L()}
}

// ruleTarget names the rule an operation acts on: a stored rule by ID or an
// inline draft.
type ruleTarget struct {
	RuleID *uuid.UUID           `json:"ruleId"`
	Rule   *models.BusinessRule `json:"rule"`
}

// resolve loads the target rule. stored reports whether it came from the
// database.
func (h *Rules) resolve(ctx context.Context, t ruleTarget) (rule models.BusinessRule, stored bool, err error) {
	switch {
	case t.RuleID != nil && t.Rule != nil:
		return rule, false, errBothTargets
	case t.RuleID != nil:
		r, err := h.store.GetRule(ctx, *t.RuleID)
		if err != nil {
			return rule, false, err
		}
		return *r, true, nil
	case t.Rule != nil:
		return *t.Rule, false, nil
	default:
		return rule, false, errNoTarget
	}
}

type targetError string

func (e targetError) Error() string { return string(e) }

const (
	errBothTargets = targetError("give either ruleId or rule, not both")
	errNoTarget    = targetError("ruleId or rule is required")
)

func (h *Rules) writeResolveError(w http.ResponseWriter, err error) {
	if te, ok := err.(targetError); ok {
		response.BadRequest(w, te.Error())
		return
	}
	writeError(w, err)
}

// List handles GET /api/v1/rules. Filters: ?category=, ?enabled=true.
func (h *Rules) List(w http.ResponseWriter, r *http.Request) {
	filter := store.RuleFilter{Category: r.URL.Query().Get("category")}
	if v := r.URL.Query().Get("enabled"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			response.BadRequest(w, "enabled must be a boolean")
			return
		}
		filter.EnabledOnly = enabled
	}

	list, err := h.store.ListRules(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []*models.BusinessRule{}
	}
	response.List(w, list, len(list))
}

// Create handles POST /api/v1/rules. The rule must validate before it is stored.
func (h *Rules) Create(w http.ResponseWriter, r *http.Request) {
	var rule models.BusinessRule
	if err := response.Decode(w, r, &rule); err != nil {
		response.BadRequest(w, err.Error())
		return
	}
	if rule.Name == "" {
		response.BadRequest(w, "name is required")
		return
	}

	validation := h.tester.ValidateRule(r.Context(), rule)
	if !validation.IsValid {
		response.Error(w, http.StatusUnprocessableEntity, "RULE_INVALID", "Rule failed validation", validation.Errors)
		return
	}

	if err := h.store.CreateRule(r.Context(), &rule); err != nil {
		writeError(w, err)
		return
	}
	if h.reload != nil {
		if err := h.reload(r.Context()); err != nil {
			h.logger.Error("failed to reload rules after create", zap.String("rule", rule.Name), zap.Error(err))
		}
	}
	response.Created(w, rule)
}

// Get handles GET /api/v1/rules/{ruleID}.
func (h *Rules) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ruleIDParam(w, r)
	if !ok {
		return
	}
	rule, err := h.store.GetRule(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, rule)
}

// Test handles POST /api/v1/rules/test. Results for stored rules are recorded.
func (h *Rules) Test(w http.ResponseWriter, r *http.Request) {
	var body ruleTarget
	if err := response.Decode(w, r, &body); err != nil {
		response.BadRequest(w, err.Error())
		return
	}
	rule, stored, err := h.resolve(r.Context(), body)
	if err != nil {
		h.writeResolveError(w, err)
		return
	}

	result := h.tester.TestRule(r.Context(), rule)
	if stored {
		if err := h.store.CreateTestResult(r.Context(), &result); err != nil {
			h.logger.Warn("failed to record test result", zap.String("rule_id", rule.ID.String()), zap.Error(err))
		}
	}
	response.JSON(w, result)
}

// Validate handles POST /api/v1/rules/validate.
func (h *Rules) Validate(w http.ResponseWriter, r *http.Request) {
	var body ruleTarget
	if err := response.Decode(w, r, &body); err != nil {
		response.BadRequest(w, err.Error())
		return
	}
	rule, _, err := h.resolve(r.Context(), body)
	if err != nil {
		h.writeResolveError(w, err)
		return
	}
	response.JSON(w, h.tester.ValidateRule(r.Context(), rule))
}

// Benchmark handles POST /api/v1/rules/benchmark.
func (h *Rules) Benchmark(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ruleTarget
		Iterations int `json:"iterations"`
	}
	if err := response.Decode(w, r, &body); err != nil {
		response.BadRequest(w, err.Error())
		return
	}
	if body.Iterations < 0 || body.Iterations > maxBenchmarkIterations {
		response.BadRequest(w, "iterations must be between 0 and "+strconv.Itoa(maxBenchmarkIterations))
		return
	}
	rule, _, err := h.resolve(r.Context(), body.ruleTarget)
	if err != nil {
		h.writeResolveError(w, err)
		return
	}

	res, err := h.tester.RunBenchmark(r.Context(), rule, body.Iterations)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, res)
}

const maxBenchmarkIterations = 100000

// GenerateTests handles POST /api/v1/rules/generate-tests.
func (h *Rules) GenerateTests(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ruleTarget
		Reason string `json:"reason"`
	}
	if err := response.Decode(w, r, &body); err != nil {
		response.BadRequest(w, err.Error())
		return
	}
	rule, _, err := h.resolve(r.Context(), body.ruleTarget)
	if err != nil {
		h.writeResolveError(w, err)
		return
	}

	cases := h.tester.GenerateAdditionalTestCases(rule, body.Reason)
	response.List(w, cases, len(cases))
}

// TestResults handles GET /api/v1/rules/{ruleID}/test-results?limit=N.
func (h *Rules) TestResults(w http.ResponseWriter, r *http.Request) {
	id, ok := ruleIDParam(w, r)
	if !ok {
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			response.BadRequest(w, "limit must be an integer")
			return
		}
		limit = n
	}

	if _, err := h.store.GetRule(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	results, err := h.store.ListTestResults(r.Context(), id, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if results == nil {
		results = []*models.TestResult{}
	}
	response.List(w, results, len(results))
}

func ruleIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "ruleID"))
	if err != nil {
		response.BadRequest(w, "Invalid rule ID format")
		return uuid.Nil, false
	}
	return id, true
}
