package models

import (
	"time"

	"github.com/google/uuid"
)

// TestCaseResult is the outcome of one test case.
type TestCaseResult struct {
	TestCaseID      string      `json:"testCaseId"`
	Passed          bool        `json:"passed"`
	Expected        RuleResult  `json:"expected"`
	Actual          *RuleResult `json:"actual,omitempty"`
	ExecutionTimeMs float64     `json:"executionTimeMs"`
	Error           *string     `json:"error"`
}

// TestResult aggregates a run of a rule's test cases.
type TestResult struct {
	ID                 uuid.UUID        `db:"id"                   json:"id"`
	RuleID             uuid.UUID        `db:"rule_id"              json:"ruleId"`
	Accuracy           float64          `db:"accuracy"             json:"accuracy"`
	Passed             int              `db:"passed"               json:"passed"`
	Failed             int              `db:"failed"               json:"failed"`
	TotalTests         int              `db:"total_tests"          json:"totalTests"`
	AvgExecutionTimeMs float64          `db:"avg_execution_time_ms" json:"avgExecutionTime"`
	Results            []TestCaseResult `db:"results"              json:"results"`
	SuggestedTests     []TestCase       `db:"suggested_tests"      json:"suggestedTests,omitempty"`
	CreatedAt          time.Time        `db:"created_at"           json:"created_at"`
}

// Complexity buckets.
const (
	ComplexityLow    = "low"
	ComplexityMedium = "medium"
	ComplexityHigh   = "high"
)

// PerformanceEstimate is a coarse cost estimate derived from rule complexity.
type PerformanceEstimate struct {
	EstimatedExecutionTime string `json:"estimatedExecutionTime"`
	MemoryUsage            string `json:"memoryUsage"`
	Scalability            string `json:"scalability"`
}

// RuleValidationResult is the structural and behavioural verdict on a rule.
type RuleValidationResult struct {
	IsValid     bool                `json:"isValid"`
	Errors      []string            `json:"errors"`
	Warnings    []string            `json:"warnings"`
	TestResults *TestResult         `json:"testResults,omitempty"`
	Complexity  string              `json:"complexity"`
	Performance PerformanceEstimate `json:"performance"`
}

// BenchmarkResult characterises rule evaluation latency.
type BenchmarkResult struct {
	Iterations         int     `json:"iterations"`
	AvgExecutionTimeMs float64 `json:"avgExecutionTime"`
	MinTimeMs          float64 `json:"minTime"`
	MaxTimeMs          float64 `json:"maxTime"`
	// Throughput is evaluations per second.
	Throughput float64 `json:"throughput"`
}
