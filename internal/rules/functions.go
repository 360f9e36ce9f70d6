package rules

import (
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// nameFunctions are the helpers COMPLEX expressions may call on field values:
//
//	firstWord(s)      lowercased first alphanumeric word of s, or ""
//	findIn(s, regex)  lowercased first case-insensitive match of regex in s, or ""
func nameFunctions() []cel.EnvOption {
	return []cel.EnvOption{
		cel.Function("firstWord",
			cel.Overload("firstWord_string", []*cel.Type{cel.StringType}, cel.StringType,
				cel.UnaryBinding(func(v ref.Val) ref.Val {
					s, ok := v.(types.String)
					if !ok {
						return types.MaybeNoSuchOverloadErr(v)
					}
					return types.String(firstWord(string(s)))
				}))),
		cel.Function("findIn",
			cel.Overload("findIn_string_string", []*cel.Type{cel.StringType, cel.StringType}, cel.StringType,
				cel.BinaryBinding(func(lhs, rhs ref.Val) ref.Val {
					s, ok := lhs.(types.String)
					if !ok {
						return types.MaybeNoSuchOverloadErr(lhs)
					}
					pattern, ok := rhs.(types.String)
					if !ok {
						return types.MaybeNoSuchOverloadErr(rhs)
					}
					re, err := patternCache.get(string(pattern))
					if err != nil {
						return types.NewErr("findIn: %v", err)
					}
					return types.String(strings.ToLower(re.FindString(string(s))))
				}))),
	}
}

func firstWord(s string) string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[0])
}

// regexCache holds compiled case-insensitive patterns keyed by source.
type regexCache struct {
	mu sync.Mutex
	m  map[string]*regexp.Regexp
}

var patternCache = &regexCache{m: map[string]*regexp.Regexp{}}

func (c *regexCache) get(pattern string) (*regexp.Regexp, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if re, ok := c.m[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, err
	}
	c.m[pattern] = re
	return re, nil
}
