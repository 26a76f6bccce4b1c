package wizard

import (
	"encoding/json"

	"github.com/squadhq/intake/internal/form/model"
)

type summaryStep struct {
	Description      string `json:"description"`
	AutomationVision string `json:"automationVision"`
}

type technicalContext struct {
	ExistingTools        []string `json:"existingTools"`
	DataSource           string   `json:"dataSource"`
	OutputDestination    string   `json:"outputDestination"`
	Timeline             string   `json:"timeline"`
	Budget               string   `json:"budget"`
	TechnicalConstraints string   `json:"technicalConstraints"`
	NiceToHave           []string `json:"niceToHave"`
	SecurityRequirements string   `json:"securityRequirements"`
	ScalabilityNeeds     string   `json:"scalabilityNeeds"`
}

type localSummary struct {
	Project          string           `json:"project"`
	Company          string           `json:"company"`
	ProcessType      string           `json:"processType"`
	ProcessSteps     []summaryStep    `json:"processSteps"`
	PainPoints       []string         `json:"painPoints"`
	Goals            []string         `json:"goals"`
	Metrics          string           `json:"metrics"`
	TechnicalContext technicalContext `json:"technicalContext"`
}

// GenerateSummary renders the record as the indented JSON summary shown when
// no analysis is available.
func GenerateSummary(record model.FormRecord) string {
	var src struct {
		model.ProjectBasics
		model.ProcessDiscovery
		model.PainPointAnalysis
		model.GoalsVision
		technicalContext
	}
	// Fields of the wrong type are left at their zero value.
	_ = record.Decode(&src)

	s := localSummary{
		Project:          src.ProjectName,
		Company:          src.CompanyName,
		ProcessType:      src.ProcessType,
		ProcessSteps:     make([]summaryStep, 0, len(src.ProcessSteps)),
		PainPoints:       nonNil(src.PainPointCategories),
		Goals:            nonNil(src.OutcomePriorities),
		Metrics:          src.SuccessMetrics,
		TechnicalContext: src.technicalContext,
	}
	for _, st := range src.ProcessSteps {
		s.ProcessSteps = append(s.ProcessSteps, summaryStep{Description: st.Description, AutomationVision: st.AutomationVision})
	}
	s.TechnicalContext.ExistingTools = nonNil(s.TechnicalContext.ExistingTools)
	s.TechnicalContext.NiceToHave = nonNil(s.TechnicalContext.NiceToHave)

	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return ""
	}
	return string(raw)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
