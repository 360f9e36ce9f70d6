package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kiranshivaraju/mdmdedup/pkg/models"
)

// compiledCondition is a Condition with its pattern and case folding resolved.
type compiledCondition struct {
	field         string
	op            models.Operator
	value         string
	caseSensitive bool
	scope         models.Scope
	re            *regexp.Regexp
}

func compileCondition(c models.Condition) (compiledCondition, error) {
	if strings.TrimSpace(c.Field) == "" {
		return compiledCondition{}, fmt.Errorf("condition field is required")
	}

	scope := c.Scope
	if scope == "" {
		scope = models.ScopeBoth
	}
	switch scope {
	case models.ScopeBoth, models.ScopeEither, models.ScopeRecord1, models.ScopeRecord2, models.ScopeAcross:
	default:
		return compiledCondition{}, fmt.Errorf("condition on %q: unknown scope %q", c.Field, c.Scope)
	}

	cc := compiledCondition{
		field:         c.Field,
		op:            c.Operator,
		value:         c.Value,
		caseSensitive: c.CaseSensitive,
		scope:         scope,
	}

	switch c.Operator {
	case models.OpEquals, models.OpContains, models.OpStartsWith, models.OpEndsWith:
		if scope != models.ScopeAcross && strings.TrimSpace(c.Value) == "" {
			return compiledCondition{}, fmt.Errorf("condition on %q: value is required for %s", c.Field, c.Operator)
		}
		if !cc.caseSensitive {
			cc.value = strings.ToLower(cc.value)
		}
	case models.OpMatches:
		if scope == models.ScopeAcross {
			return compiledCondition{}, fmt.Errorf("condition on %q: matches cannot compare across records", c.Field)
		}
		pattern := c.Value
		if !c.CaseSensitive && !strings.HasPrefix(pattern, "(?i)") {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return compiledCondition{}, fmt.Errorf("condition on %q: invalid pattern: %w", c.Field, err)
		}
		cc.re = re
	default:
		return compiledCondition{}, fmt.Errorf("condition on %q: unknown operator %q", c.Field, c.Operator)
	}
	return cc, nil
}

// eval reports whether the condition holds for the record pair. Missing or
// blank values never satisfy a condition.
func (c compiledCondition) eval(r1, r2 models.Record) bool {
	v1 := strings.TrimSpace(r1[c.field])
	v2 := strings.TrimSpace(r2[c.field])

	switch c.scope {
	case models.ScopeRecord1:
		return c.test(v1)
	case models.ScopeRecord2:
		return c.test(v2)
	case models.ScopeEither:
		return c.test(v1) || c.test(v2)
	case models.ScopeAcross:
		if v1 == "" || v2 == "" {
			return false
		}
		if !c.caseSensitive {
			v1, v2 = strings.ToLower(v1), strings.ToLower(v2)
		}
		return compare(c.op, v1, v2)
	default:
		return c.test(v1) && c.test(v2)
	}
}

func (c compiledCondition) test(v string) bool {
	if v == "" {
		return false
	}
	if c.op == models.OpMatches {
		return c.re.MatchString(v)
	}
	if !c.caseSensitive {
		v = strings.ToLower(v)
	}
	return compare(c.op, v, c.value)
}

func compare(op models.Operator, v, target string) bool {
	switch op {
	case models.OpEquals:
		return v == target
	case models.OpContains:
		return strings.Contains(v, target)
	case models.OpStartsWith:
		return strings.HasPrefix(v, target)
	case models.OpEndsWith:
		return strings.HasSuffix(v, target)
	}
	return false
}
