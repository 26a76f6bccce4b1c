package model

// Option is a selectable value with a display title.
type Option struct {
	Value       string `json:"value"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Departments available in the project basics step.
var Departments = []string{
	"Marketing",
	"Sales",
	"Operations",
	"Human Resources",
	"Finance",
	"Customer Success",
	"Design",
	"Business Development",
	"Legal",
	"Other",
}

const (
	ProcessTypeHRRecruitment   = "hr_recruitment"
	ProcessTypeCustomerService = "customer_service"
	ProcessTypeSalesProcess    = "sales_process"
	ProcessTypeFinanceAdmin    = "finance_admin"
	ProcessTypeCustom          = "custom_process"
)

var ProcessTypes = []Option{
	{Value: ProcessTypeHRRecruitment, Title: "HR & Hiring"},
	{Value: ProcessTypeCustomerService, Title: "Customer Support"},
	{Value: ProcessTypeSalesProcess, Title: "Sales & Leads"},
	{Value: ProcessTypeFinanceAdmin, Title: "Finance & Admin"},
	{Value: ProcessTypeCustom, Title: "Other Process"},
}

// StepPainPoints are the tags a single process step can carry.
var StepPainPoints = []string{
	"Time consuming",
	"Error prone",
	"Repetitive",
	"Manual data entry",
	"Waiting for approvals",
	"Communication delays",
	"File management issues",
	"Compliance concerns",
}

var PainPointCategories = []Option{
	{Value: "time_consumption", Title: "Takes Too Long", Description: "Process takes too much time to complete"},
	{Value: "too_many_mistakes", Title: "Too Many Mistakes", Description: "Lots of errors and things going wrong"},
	{Value: "needs_many_people", Title: "Needs Too Many People", Description: "Requires too many people or resources"},
	{Value: "costs_too_much", Title: "Costs Too Much", Description: "Expensive to keep doing the current way"},
	{Value: "hard_to_grow", Title: "Hard to Handle More Work", Description: "Difficult when you get busier or grow"},
	{Value: "poor_communication", Title: "Poor Communication", Description: "Information gets lost between people"},
	{Value: "messy_files", Title: "Messy Files & Records", Description: "Hard to find or organize documents"},
	{Value: "rule_compliance", Title: "Hard to Follow Rules", Description: "Difficult to meet required standards"},
}

// Frequencies carry their impact level in Description.
var Frequencies = []Option{
	{Value: "multiple_daily", Title: "Many times per day", Description: "Very High"},
	{Value: "daily", Title: "Every day", Description: "High"},
	{Value: "weekly", Title: "Every week", Description: "Medium"},
	{Value: "monthly", Title: "Every month", Description: "Low"},
	{Value: "quarterly", Title: "Every few months", Description: "Very Low"},
	{Value: "as_needed", Title: "Only when needed", Description: "Variable"},
}

var Outcomes = []Option{
	{Value: "reduce_time", Title: "Save Time", Description: "Make tasks faster and quicker to complete"},
	{Value: "eliminate_errors", Title: "Reduce Mistakes", Description: "Make fewer errors and improve accuracy"},
	{Value: "improve_compliance", Title: "Follow Rules Better", Description: "Meet required standards more easily"},
	{Value: "scale_operations", Title: "Handle More Work", Description: "Deal with growth and increased volume"},
	{Value: "enhance_experience", Title: "Make People Happier", Description: "Improve experience for users and customers"},
	{Value: "increase_visibility", Title: "Better Tracking", Description: "See what's happening and get better reports"},
}

// Values returns the option values in order.
func Values(options []Option) []string {
	values := make([]string, len(options))
	for i, o := range options {
		values[i] = o.Value
	}
	return values
}

// TitleFor returns the title of the option with the given value, or the value itself.
func TitleFor(options []Option, value string) string {
	for _, o := range options {
		if o.Value == value {
			return o.Title
		}
	}
	return value
}

// PriorityLabel describes a timeline or cost slider position.
func PriorityLabel(value int) string {
	switch {
	case value <= 0:
		return "Flexible"
	case value <= 50:
		return "Standard"
	default:
		return "Urgent"
	}
}

// ImpactLabel describes an impact assessment score.
func ImpactLabel(value int) string {
	switch {
	case value < 25:
		return "Minor Issue"
	case value < 75:
		return "Significant Issue"
	default:
		return "Critical Issue"
	}
}
