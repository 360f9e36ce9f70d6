package rules

import "fmt"

// RuleEvaluationError reports a rule that could not be compiled or evaluated
// for one test case. The harness records it on that case and moves on.
type RuleEvaluationError struct {
	Rule       string
	TestCaseID string
	Err        error
}

func (e *RuleEvaluationError) Error() string {
	if e.TestCaseID == "" {
		return fmt.Sprintf("rule %q: %v", e.Rule, e.Err)
	}
	return fmt.Sprintf("rule %q, test case %s: %v", e.Rule, e.TestCaseID, e.Err)
}

func (e *RuleEvaluationError) Unwrap() error { return e.Err }
