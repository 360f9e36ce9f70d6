package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/kiranshivaraju/mdmdedup/pkg/models"
)

const (
	outputSchemaURL = "schema://analysis-output.json"
	snippetMaxBytes = 200
	// maxSuffixRetries bounds the earlier closing braces tried after the
	// greedy extraction fails.
	maxSuffixRetries = 16
)

// outputSchemaJSON describes the AnalysisOutput contract. It is sent to
// backends and used to validate their replies.
const outputSchemaJSON = `{
  "type": "object",
  "required": ["confidenceLevel", "what", "why", "recommendation"],
  "properties": {
    "confidenceLevel": {"type": "string"},
    "what": {"type": "string"},
    "why": {"type": "string"},
    "recommendation": {"type": "string"},
    "confidenceChange": {"type": ["string", "null"]},
    "businessContext": {"type": "string"},
    "riskFactors": {"type": "array", "items": {"type": "string"}},
    "exemptionReasons": {"type": "array", "items": {"type": "string"}},
    "rulesApplied": {"type": "array", "items": {"type": "string"}},
    "smartAnalysis": {"type": ["object", "null"]}
  }
}
`

var requiredStrings = []string{"confidenceLevel", "what", "why", "recommendation"}

// defaultedArrays are optional list fields that default to an empty list.
var defaultedArrays = []string{"riskFactors", "exemptionReasons", "rulesApplied"}

// reJSONObject is greedy: first '{' through last '}'.
var reJSONObject = regexp.MustCompile(`(?s)\{.*\}`)

// ResponseValidator parses backend replies into AnalysisOutput.
type ResponseValidator struct {
	schema *jsonschema.Schema
}

// NewResponseValidator compiles the output schema.
func NewResponseValidator() (*ResponseValidator, error) {
	var doc any
	if err := json.Unmarshal([]byte(outputSchemaJSON), &doc); err != nil {
		return nil, fmt.Errorf("parse output schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(outputSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add output schema: %w", err)
	}
	compiled, err := c.Compile(outputSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile output schema: %w", err)
	}
	return &ResponseValidator{schema: compiled}, nil
}

// Parse locates a JSON object in raw, applies defaults and validates it.
// It tries a direct decode first, then the greedy brace extraction.
func (v *ResponseValidator) Parse(raw string) (*models.AnalysisOutput, error) {
	doc, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}

	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, &SchemaError{Reason: "reply is not an object"}
	}
	for _, f := range defaultedArrays {
		if val, present := obj[f]; !present || val == nil {
			obj[f] = []any{}
		}
	}

	for _, f := range requiredStrings {
		val, present := obj[f]
		if !present {
			return nil, &SchemaError{Field: f, Reason: "missing required field"}
		}
		if _, isString := val.(string); !isString {
			return nil, &SchemaError{Field: f, Reason: "must be a string"}
		}
	}
	if err := v.schema.Validate(obj); err != nil {
		return nil, schemaErrorFrom(err)
	}

	// Round-trip through JSON to land in the typed struct.
	b, err := json.Marshal(obj)
	if err != nil {
		return nil, &SchemaError{Reason: err.Error()}
	}
	var out models.AnalysisOutput
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, &SchemaError{Reason: err.Error()}
	}
	return &out, nil
}

func decodeObject(raw string) (any, error) {
	var doc any
	firstErr := json.Unmarshal([]byte(raw), &doc)
	if firstErr == nil {
		return doc, nil
	}

	candidate := reJSONObject.FindString(raw)
	if candidate == "" {
		return nil, &ParseError{Snippet: truncateString(raw, snippetMaxBytes), Err: firstErr}
	}
	greedyErr := json.Unmarshal([]byte(candidate), &doc)
	if greedyErr == nil {
		return doc, nil
	}
	// Trailing prose may itself contain a closing brace. Retry with the
	// candidate cut at earlier closing braces.
	end := len(candidate) - 1
	for i := 0; i < maxSuffixRetries; i++ {
		end = strings.LastIndexByte(candidate[:end], '}')
		if end <= 0 {
			break
		}
		doc = nil
		if json.Unmarshal([]byte(candidate[:end+1]), &doc) == nil {
			return doc, nil
		}
	}
	return nil, &ParseError{Snippet: truncateString(raw, snippetMaxBytes), Err: greedyErr}
}

func schemaErrorFrom(err error) *SchemaError {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return &SchemaError{Reason: err.Error()}
	}
	// Report the deepest cause; it names the offending field.
	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	return &SchemaError{
		Field:  strings.Join(leaf.InstanceLocation, "/"),
		Reason: "does not match the output schema",
	}
}

// truncateString truncates s to maxBytes without splitting UTF-8 runes.
func truncateString(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
