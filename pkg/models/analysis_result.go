package models

import (
	"time"

	"github.com/google/uuid"
)

// Confidence levels shared by the rule engine and the LLM output.
const (
	ConfidenceHigh   = "High"
	ConfidenceMedium = "Medium"
	ConfidenceLow    = "Low"
)

// AppliedRule records one business rule that fired during smart analysis.
type AppliedRule struct {
	RuleName  string `json:"ruleName"`
	Reasoning string `json:"reasoning"`
}

// SmartAnalysisResult is the deterministic, rule-driven verdict for a record pair.
// Produced once per AnalysisRequest and never mutated afterwards.
type SmartAnalysisResult struct {
	FinalConfidence      string        `json:"finalConfidence"`
	FinalConfidenceScore float64       `json:"finalConfidenceScore"`
	Recommendation       string        `json:"recommendation"`
	AppliedRules         []AppliedRule `json:"appliedRules"`
	RiskFactors          []string      `json:"riskFactors"`
	Exemptions           []string      `json:"exemptions"`
	BusinessContext      string        `json:"businessContext"`
}

// AnalysisOutput is the canonical result returned to callers regardless of
// which provider answered.
type AnalysisOutput struct {
	ConfidenceLevel  string               `json:"confidenceLevel"`
	What             string               `json:"what"`
	Why              string               `json:"why"`
	Recommendation   string               `json:"recommendation"`
	ConfidenceChange *string              `json:"confidenceChange,omitempty"`
	BusinessContext  string               `json:"businessContext,omitempty"`
	RiskFactors      []string             `json:"riskFactors"`
	ExemptionReasons []string             `json:"exemptionReasons"`
	RulesApplied     []string             `json:"rulesApplied"`
	SmartAnalysis    *SmartAnalysisResult `json:"smartAnalysis,omitempty"`
}

// AnalysisRecord is a persisted analysis of one record pair.
type AnalysisRecord struct {
	ID          uuid.UUID      `db:"id"          json:"id"`
	Fingerprint string         `db:"fingerprint" json:"fingerprint"`
	Provider    string         `db:"provider"    json:"provider"`
	FuzzyScore  float64        `db:"fuzzy_score" json:"fuzzy_score"`
	Output      AnalysisOutput `db:"output"      json:"output"`
	CreatedAt   time.Time      `db:"created_at"  json:"created_at"`
}
