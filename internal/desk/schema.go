package desk

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// submissionSchema is the pipeline input contract for dispatched snapshots.
const submissionSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": [
    "requestId", "email", "companyName", "projectName", "processType",
    "processSteps", "painPointCategories", "impactAssessment", "outcomePriorities",
    "businessImpact", "timelinePriority", "costPriority"
  ],
  "properties": {
    "requestId": {"type": "string", "pattern": "^[0-9]+-[0-9a-z]+$"},
    "email": {"type": "string"},
    "requesterEmail": {"type": "string"},
    "companyName": {"type": "string"},
    "department": {"type": "string"},
    "projectName": {"type": "string"},
    "requesterName": {"type": "string"},
    "processType": {"type": "string"},
    "otherProcessName": {"type": "string"},
    "customProcessDescription": {"type": "string"},
    "processSteps": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["description"],
        "properties": {
          "description": {"type": "string", "minLength": 1},
          "automationVision": {"type": "string"},
          "painPoints": {"type": "array", "items": {"type": "string"}},
          "attachments": {"type": "array", "maxItems": 3}
        }
      }
    },
    "painPointCategories": {"type": "array", "items": {"type": "string"}},
    "impactAssessment": {
      "type": "object",
      "additionalProperties": {"type": "integer", "minimum": 0, "maximum": 100}
    },
    "frequency": {"type": "string"},
    "outcomePriorities": {"type": "array", "items": {"type": "string"}},
    "successMetrics": {"type": "string"},
    "additionalGoals": {"type": "string"},
    "businessImpact": {"type": "integer", "minimum": 0, "maximum": 100},
    "timelinePriority": {"type": "integer", "minimum": 0, "maximum": 100},
    "costPriority": {"type": "integer", "minimum": 0, "maximum": 100}
  }
}`

var compiledSchema = mustCompile(submissionSchema)

func mustCompile(schema string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schema))
	if err != nil {
		panic(fmt.Sprintf("compile submission schema: %v", err))
	}
	return s
}

// FieldError is a single schema violation
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// SchemaError lists every violation found in a submission
type SchemaError struct {
	Errors []FieldError
}

func (e *SchemaError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return "submission does not match schema: " + strings.Join(parts, "; ")
}

// ValidateSubmission checks payload against the pipeline input contract.
func ValidateSubmission(payload map[string]any) error {
	result, err := compiledSchema.Validate(gojsonschema.NewGoLoader(payload))
	if err != nil {
		return fmt.Errorf("failed to validate submission: %w", err)
	}
	if result.Valid() {
		return nil
	}

	out := &SchemaError{Errors: make([]FieldError, 0, len(result.Errors()))}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		out.Errors = append(out.Errors, FieldError{Field: field, Message: desc.Description()})
	}
	return out
}
