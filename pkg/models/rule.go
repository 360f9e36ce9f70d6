package models

import (
	"time"

	"github.com/google/uuid"
)

// Operator is a condition comparison.
type Operator string

const (
	OpEquals     Operator = "equals"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "startsWith"
	OpEndsWith   Operator = "endsWith"
	OpMatches    Operator = "matches"
)

// Scope selects which record values a condition inspects.
type Scope string

const (
	ScopeBoth    Scope = "both"
	ScopeEither  Scope = "either"
	ScopeRecord1 Scope = "record1"
	ScopeRecord2 Scope = "record2"
	// ScopeAcross compares record1's value against record2's value; Value is ignored.
	ScopeAcross Scope = "across"
)

// Logic combines condition results.
type Logic string

const (
	LogicAnd     Logic = "AND"
	LogicOr      Logic = "OR"
	LogicComplex Logic = "COMPLEX"
)

// ActionType is the kind of effect a rule has when it fires.
type ActionType string

const (
	ActionSetConfidence     ActionType = "set_confidence"
	ActionAddFlag           ActionType = "add_flag"
	ActionSetRecommendation ActionType = "set_recommendation"
	ActionExemption         ActionType = "exemption"
)

// Recommendation values produced by rules and the harness.
const (
	RecommendationMerge         = "merge"
	RecommendationReview        = "review"
	RecommendationKeepSeparate  = "keep_separate"
	RecommendationReject        = "reject"
	RecommendationNotApplicable = "not_applicable"
	RecommendationRemove        = "REMOVE FROM ANALYSIS"
)

// Condition is a field/operator/value test.
type Condition struct {
	Field         string   `json:"field"                   yaml:"field"`
	Operator      Operator `json:"operator"                yaml:"operator"`
	Value         string   `json:"value,omitempty"         yaml:"value,omitempty"`
	CaseSensitive bool     `json:"caseSensitive,omitempty" yaml:"caseSensitive,omitempty"`
	Scope         Scope    `json:"scope,omitempty"         yaml:"scope,omitempty"`
}

// Action is an effect applied when a rule's conditions hold.
//
// For set_confidence, Value is a level ("high", "medium", "low") and Score,
// when non-zero, is the absolute confidence in [0,1].
type Action struct {
	Type  ActionType `json:"type"            yaml:"type"`
	Value string     `json:"value,omitempty" yaml:"value,omitempty"`
	Score float64    `json:"score,omitempty" yaml:"score,omitempty"`
}

// BusinessRule is a user-authored duplicate rule.
type BusinessRule struct {
	ID          uuid.UUID   `db:"id"          json:"id"                   yaml:"id"`
	Name        string      `db:"name"        json:"name"                 yaml:"name"`
	Description string      `db:"description" json:"description"          yaml:"description"`
	Category    string      `db:"category"    json:"category"             yaml:"category"`
	Priority    int         `db:"priority"    json:"priority"             yaml:"priority"`
	Enabled     bool        `db:"enabled"     json:"enabled"              yaml:"enabled"`
	Version     int         `db:"version"     json:"version"              yaml:"version"`
	Logic       Logic       `db:"logic"       json:"logic,omitempty"      yaml:"logic,omitempty"`
	Expression  string      `db:"expression"  json:"expression,omitempty" yaml:"expression,omitempty"`
	Conditions  []Condition `db:"conditions"  json:"conditions"           yaml:"conditions"`
	Actions     []Action    `db:"actions"     json:"actions"              yaml:"actions"`
	TestCases   []TestCase  `db:"test_cases"  json:"testCases,omitempty"  yaml:"testCases,omitempty"`
	CreatedAt   time.Time   `db:"created_at"  json:"created_at"           yaml:"-"`
	UpdatedAt   time.Time   `db:"updated_at"  json:"updated_at"           yaml:"-"`
}

// RuleResult is the verdict a rule evaluator returns for one record pair.
type RuleResult struct {
	Recommendation        string   `json:"recommendation"                  yaml:"recommendation"`
	Confidence            string   `json:"confidence"                      yaml:"confidence"`
	ConfidenceScore       float64  `json:"confidenceScore"                 yaml:"confidenceScore"`
	BusinessJustification string   `json:"businessJustification,omitempty" yaml:"businessJustification,omitempty"`
	DataQualityIssues     []string `json:"dataQualityIssues,omitempty"     yaml:"dataQualityIssues,omitempty"`
	SuggestedActions      []string `json:"suggestedActions,omitempty"      yaml:"suggestedActions,omitempty"`
}

// TestCase pairs two partial records with the result a rule should produce.
type TestCase struct {
	ID          string     `json:"id"                    yaml:"id"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Record1     Record     `json:"record1"               yaml:"record1"`
	Record2     Record     `json:"record2"               yaml:"record2"`
	Expected    RuleResult `json:"expected"              yaml:"expected"`
}
