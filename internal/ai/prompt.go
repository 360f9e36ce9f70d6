package ai

import (
	"fmt"
	"strings"

	"github.com/kiranshivaraju/mdmdedup/pkg/models"
)

const defaultMaxTokens = 1024

// invalidNames are name values, after lowercase and trim, that mark a record
// as unusable for analysis.
var invalidNames = map[string]bool{
	"nan":       true,
	"null":      true,
	"undefined": true,
	"":          true,
	"n/a":       true,
	"na":        true,
	"none":      true,
	"unknown":   true,
}

// identifierMarkers flag identifier-like field names (matched on the lowercased name).
var identifierMarkers = []string{"tpi", "id", "uid", "rownumber"}

const systemPrompt = `You are a master data management analyst. Decide whether two customer
records describe the same real-world business entity. Weigh the business rule
analysis you are given; explain any disagreement with it. Answer with a single
JSON object and nothing else.`

// BuildResult is either a prompt for a backend or a deterministic answer that
// needs no backend call.
type BuildResult struct {
	Prompt       models.Prompt
	ShortCircuit *models.AnalysisOutput
}

// PromptBuilder turns a record pair and its smart analysis into a backend request.
type PromptBuilder struct {
	MaxTokens int
}

// NewPromptBuilder returns a PromptBuilder with default settings.
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{MaxTokens: defaultMaxTokens}
}

// Build returns the short-circuit output when either record has an invalid
// name, otherwise the prompt for the backend.
func (b *PromptBuilder) Build(req models.AnalysisRequest, smart models.SmartAnalysisResult) BuildResult {
	name1, ok1 := req.Record1.Get("name")
	name2, ok2 := req.Record2.Get("name")
	if IsInvalidName(name1, ok1) || IsInvalidName(name2, ok2) {
		out := InvalidNameOutput(smart)
		return BuildResult{ShortCircuit: &out}
	}

	r1, r2 := FilterRecords(req.Record1, req.Record2)

	var sb strings.Builder
	sb.WriteString("Record 1:\n")
	writeRecord(&sb, r1)
	sb.WriteString("\nRecord 2:\n")
	writeRecord(&sb, r2)
	fmt.Fprintf(&sb, "\nFuzzy match score: %.4f\n", req.FuzzyScore)

	sb.WriteString("\nBusiness rule analysis:\n")
	fmt.Fprintf(&sb, "- finalConfidence: %s\n", smart.FinalConfidence)
	fmt.Fprintf(&sb, "- finalConfidenceScore: %.1f\n", smart.FinalConfidenceScore)
	fmt.Fprintf(&sb, "- recommendation: %s\n", smart.Recommendation)
	if len(smart.AppliedRules) > 0 {
		sb.WriteString("- appliedRules:\n")
		for _, ar := range smart.AppliedRules {
			fmt.Fprintf(&sb, "  - %s: %s\n", ar.RuleName, ar.Reasoning)
		}
	}
	if len(smart.RiskFactors) > 0 {
		fmt.Fprintf(&sb, "- riskFactors: %s\n", strings.Join(smart.RiskFactors, "; "))
	}

	sb.WriteString("\nRespond with a JSON object matching this schema:\n")
	sb.WriteString(outputSchemaJSON)

	maxTokens := b.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return BuildResult{Prompt: models.Prompt{
		System:    systemPrompt,
		User:      sb.String(),
		MaxTokens: maxTokens,
		JSONMode:  true,
	}}
}

// IsInvalidName reports whether a name is missing or a known placeholder.
func IsInvalidName(name string, present bool) bool {
	if !present {
		return true
	}
	return invalidNames[strings.ToLower(strings.TrimSpace(name))]
}

// InvalidNameOutput is the fixed answer for records with unusable names.
func InvalidNameOutput(smart models.SmartAnalysisResult) models.AnalysisOutput {
	return models.AnalysisOutput{
		ConfidenceLevel:  models.ConfidenceLow,
		What:             "One or both records have a missing or placeholder name",
		Why:              "Records without a usable name cannot be reliably compared",
		Recommendation:   models.RecommendationRemove,
		BusinessContext:  "Data quality issue: name field is empty or contains a placeholder value",
		RiskFactors:      []string{"Invalid name data", "Poor data quality"},
		ExemptionReasons: []string{},
		RulesApplied:     []string{"Data Quality Rule: Invalid name detection"},
		SmartAnalysis:    &smart,
	}
}

// FilterRecords drops identifier-like fields unless both records carry the
// same value for them. Other fields pass through unchanged.
func FilterRecords(r1, r2 models.Record) (models.Record, models.Record) {
	return filterRecord(r1, r2), filterRecord(r2, r1)
}

func filterRecord(r, other models.Record) models.Record {
	out := make(models.Record, len(r))
	for k, v := range r {
		if isIdentifierField(k) {
			ov, ok := other[k]
			if !ok || ov != v {
				continue
			}
		}
		out[k] = v
	}
	return out
}

func isIdentifierField(name string) bool {
	lower := strings.ToLower(name)
	for _, m := range identifierMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func writeRecord(sb *strings.Builder, r models.Record) {
	for _, k := range r.Keys() {
		fmt.Fprintf(sb, "  %s: %s\n", k, r[k])
	}
}
