package llm

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// decisionSchemaJSON is the JSON Schema every generative classification
// decision must satisfy before its contents are trusted. Parameter fields
// accept strings as well as their natural types because models routinely
// quote numbers; coercion happens downstream via jsonutil.
const decisionSchemaJSON = `{
  "type": "object",
  "required": ["tool", "confidence"],
  "properties": {
    "tool": {"type": "string", "minLength": 1},
    "confidence": {"type": ["number", "string"]},
    "collection": {"type": ["string", "null"]},
    "group_by": {"type": ["string", "null"]},
    "field": {"type": ["string", "null"]},
    "sort_by": {"type": ["string", "null"]},
    "sort_desc": {"type": ["boolean", "string", "null"]},
    "limit": {"type": ["integer", "number", "string", "null"]},
    "days": {"type": ["integer", "number", "string", "null"]},
    "filters": {
      "type": ["object", "null"],
      "additionalProperties": {"type": ["string", "number", "boolean"]}
    },
    "reasoning": {"type": ["string", "null"]}
  },
  "additionalProperties": false
}`

var (
	decisionSchemaOnce sync.Once
	decisionSchema     *gojsonschema.Schema
	decisionSchemaErr  error
)

// ValidateDecisionJSON checks a generative classification decision against
// the decision schema. The input must already be extracted, valid JSON (see
// ExtractJSON). Returns a parse-classified *Error listing every violation so
// the caller falls back instead of retrying.
func ValidateDecisionJSON(jsonStr string) error {
	decisionSchemaOnce.Do(func() {
		decisionSchema, decisionSchemaErr = gojsonschema.NewSchema(
			gojsonschema.NewStringLoader(decisionSchemaJSON))
	})
	if decisionSchemaErr != nil {
		return fmt.Errorf("compile decision schema: %w", decisionSchemaErr)
	}

	result, err := decisionSchema.Validate(gojsonschema.NewStringLoader(jsonStr))
	if err != nil {
		return NewParseError("decision is not valid JSON", err)
	}

	if !result.Valid() {
		violations := make([]string, len(result.Errors()))
		for i, verr := range result.Errors() {
			violations[i] = verr.String()
		}
		return NewParseError(
			fmt.Sprintf("decision failed schema validation: %s", strings.Join(violations, "; ")),
			nil)
	}

	return nil
}
