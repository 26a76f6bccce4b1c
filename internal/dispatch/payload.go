package dispatch

import (
	"github.com/squadhq/intake/internal/form/model"
)

const defaultPriority = 50

// payload defaults for keys the pipeline always expects.
var stringFields = []string{
	"companyName", "department", "projectName", "requesterName",
	"processType", "otherProcessName", "customProcessDescription",
	"frequency", "successMetrics", "additionalGoals",
}

var listFields = []string{
	model.FieldProcessSteps, "painPointCategories", "outcomePriorities",
}

var priorityFields = []string{
	"businessImpact", "timelinePriority", "costPriority",
}

// BuildPayload returns the snapshot sent to the pipeline: every record field,
// the request id, an "email" alias of requesterEmail, and defaults for the
// fields the pipeline always reads.
func BuildPayload(record model.FormRecord, requestID string) map[string]any {
	payload := map[string]any(record.Clone())

	for _, f := range stringFields {
		if _, ok := payload[f]; !ok {
			payload[f] = ""
		}
	}
	for _, f := range listFields {
		if payload[f] == nil {
			payload[f] = []any{}
		}
	}
	for _, f := range priorityFields {
		if _, ok := payload[f]; !ok {
			payload[f] = defaultPriority
		}
	}
	if payload["impactAssessment"] == nil {
		payload["impactAssessment"] = map[string]any{}
	}

	email := record.String(model.FieldRequesterEmail)
	if email == "" {
		email = record.String("email")
	}
	payload["email"] = email
	payload[model.FieldRequestID] = requestID

	return payload
}
