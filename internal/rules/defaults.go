package rules

import (
	"github.com/google/uuid"

	"github.com/kiranshivaraju/mdmdedup/pkg/models"
)

// Rule categories used by the built-in rules and harness defaults.
const (
	CategoryBusinessRelationship = "business-relationship"
	CategoryDataQuality          = "data-quality"
	CategoryIdentity             = "identity"
)

// energyDivisionPattern matches names of energy-sector divisions.
const energyDivisionPattern = `\b(chemical|oil|gas|energy|power|petroleum|refining|lubricants)\b`

// energyDivisionsExpr: same address, both names are energy divisions, the
// names differ, the company word matches and the division words differ.
const energyDivisionsExpr = `c[0] && c[1] && !c[2]` +
	` && firstWord(r1["name"]) == firstWord(r2["name"])` +
	` && findIn(r1["name"], r"` + energyDivisionPattern + `") != findIn(r2["name"], r"` + energyDivisionPattern + `")`

// ruleID derives a stable ID for a built-in rule from its name.
func ruleID(name string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("mdmdedup/rule/"+name))
}

// EnergyDivisionsRule flags distinct divisions of one energy company that
// share a site address. They are separate legal entities and must not merge.
// The rule fires only when both names start with the same company word and
// name different divisions.
func EnergyDivisionsRule() models.BusinessRule {
	const name = "different energy divisions, same address"
	return models.BusinessRule{
		ID:          ruleID(name),
		Name:        name,
		Description: "Different business divisions of an energy company at one address are separate entities",
		Category:    CategoryBusinessRelationship,
		Priority:    9,
		Enabled:     true,
		Version:     1,
		Logic:       models.LogicComplex,
		Expression:  energyDivisionsExpr,
		Conditions: []models.Condition{
			{Field: "address", Operator: models.OpEquals, Scope: models.ScopeAcross},
			{Field: "name", Operator: models.OpMatches, Value: energyDivisionPattern, Scope: models.ScopeBoth},
			{Field: "name", Operator: models.OpEquals, Scope: models.ScopeAcross},
		},
		Actions: []models.Action{
			{Type: models.ActionSetRecommendation, Value: models.RecommendationReject},
			{Type: models.ActionSetConfidence, Value: "high", Score: 0.95},
			{Type: models.ActionAddFlag, Value: "Different business divisions at the same address"},
		},
	}
}

// DefaultRules returns the built-in rule set.
func DefaultRules() []models.BusinessRule {
	sameTaxID := "same tax identifier"
	diffCountry := "different countries"
	return []models.BusinessRule{
		{
			ID:          ruleID(diffCountry),
			Name:        diffCountry,
			Description: "Records registered in different countries are rarely the same legal entity",
			Category:    CategoryDataQuality,
			Priority:    2,
			Enabled:     true,
			Version:     1,
			Logic:       models.LogicComplex,
			Expression:  `"country" in r1 && "country" in r2 && r1["country"] != "" && r2["country"] != "" && !c[0]`,
			Conditions: []models.Condition{
				{Field: "country", Operator: models.OpEquals, Scope: models.ScopeAcross},
			},
			Actions: []models.Action{
				{Type: models.ActionAddFlag, Value: "Records are in different countries"},
				{Type: models.ActionSetConfidence, Value: "low", Score: 0.4},
				{Type: models.ActionSetRecommendation, Value: models.RecommendationReview},
			},
		},
		{
			ID:          ruleID(sameTaxID),
			Name:        sameTaxID,
			Description: "A shared tax identifier points to one legal entity",
			Category:    CategoryIdentity,
			Priority:    5,
			Enabled:     true,
			Version:     1,
			Conditions: []models.Condition{
				{Field: "taxId", Operator: models.OpEquals, Scope: models.ScopeAcross},
			},
			Actions: []models.Action{
				{Type: models.ActionSetConfidence, Value: "high", Score: 0.95},
				{Type: models.ActionSetRecommendation, Value: models.RecommendationMerge},
			},
		},
		EnergyDivisionsRule(),
	}
}
