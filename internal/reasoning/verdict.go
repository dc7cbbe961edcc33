package reasoning

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Verdict is the structured judgment the reasoning service must return.
type Verdict struct {
	Verdict string         `json:"verdict"`
	Issues  []VerdictIssue `json:"issues,omitempty"`
}

// VerdictIssue is one finding; Chain/Thought locate it when applicable.
type VerdictIssue struct {
	Message string `json:"message"`
	Chain   int    `json:"chain,omitempty"`
	Thought int    `json:"thought,omitempty"`
}

// Passed reports whether the verdict is an affirmative pass.
func (v *Verdict) Passed() bool { return v.Verdict == "pass" }

const verdictSchema = `{
  "type": "object",
  "required": ["verdict"],
  "additionalProperties": true,
  "properties": {
    "verdict": {"type": "string", "enum": ["pass", "fail"]},
    "issues": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["message"],
        "properties": {
          "message": {"type": "string"},
          "chain": {"type": "integer", "minimum": 1},
          "thought": {"type": "integer", "minimum": 1}
        }
      }
    }
  }
}`

var verdictSchemaLoader = gojsonschema.NewStringLoader(verdictSchema)

// ParseVerdict validates and decodes a raw provider response. Any failure
// here is treated by callers as a transient, retryable condition.
func ParseVerdict(raw string) (*Verdict, error) {
	clean := ExtractJSON(raw)

	result, err := gojsonschema.Validate(verdictSchemaLoader, gojsonschema.NewStringLoader(clean))
	if err != nil {
		return nil, fmt.Errorf("reasoning.ParseVerdict: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("reasoning.ParseVerdict: schema violation: %s", strings.Join(msgs, "; "))
	}

	var v Verdict
	if err := json.Unmarshal([]byte(clean), &v); err != nil {
		return nil, fmt.Errorf("reasoning.ParseVerdict: %w", err)
	}
	return &v, nil
}
