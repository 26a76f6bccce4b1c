package desk

import (
	"fmt"
	"strings"

	"github.com/squadhq/intake/internal/form/model"
)

// Draft writes the client-facing proposal the desk delivers when auto-draft is on.
func Draft(payload model.FormRecord) string {
	var in struct {
		model.ProjectBasics
		model.ProcessDiscovery
		model.PainPointAnalysis
		model.GoalsVision
	}
	// fields of the wrong type stay empty
	_ = payload.Decode(&in)

	process := model.TitleFor(model.ProcessTypes, in.ProcessType)
	if in.IsCustom() && strings.TrimSpace(in.OtherProcessName) != "" {
		process = in.OtherProcessName
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Automation proposal for %s", orDefault(in.ProjectName, "your project"))
	if in.CompanyName != "" {
		fmt.Fprintf(&b, " at %s", in.CompanyName)
	}
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Process: %s", orDefault(process, "not specified"))
	if n := len(in.ProcessSteps); n > 0 {
		fmt.Fprintf(&b, " (%d documented step%s)", n, plural(n))
	}
	b.WriteString("\n")

	if len(in.PainPointCategories) > 0 {
		fmt.Fprintf(&b, "Main problems: %s\n", titles(model.PainPointCategories, in.PainPointCategories))
	}
	if in.Frequency != "" {
		fmt.Fprintf(&b, "Happens: %s\n", strings.ToLower(model.TitleFor(model.Frequencies, in.Frequency)))
	}
	fmt.Fprintf(&b, "Business impact: %s\n", model.ImpactLabel(in.BusinessImpact))

	if len(in.OutcomePriorities) > 0 {
		fmt.Fprintf(&b, "Goals, in priority order: %s\n", titles(model.Outcomes, in.OutcomePriorities))
	}
	if in.SuccessMetrics != "" {
		fmt.Fprintf(&b, "Success looks like: %s\n", in.SuccessMetrics)
	}
	fmt.Fprintf(&b, "Timeline: %s. Budget: %s.\n", model.PriorityLabel(in.TimelinePriority), model.PriorityLabel(in.CostPriority))

	b.WriteString("\nNext step: our team will map each step to an automation and confirm scope with you.")
	return b.String()
}

func titles(options []model.Option, values []string) string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, model.TitleFor(options, v))
	}
	return strings.Join(out, ", ")
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
