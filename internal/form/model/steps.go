package model

import (
	"errors"
	"slices"
	"strings"
	"time"
)

// MaxAttachmentsPerStep caps the files attached to one process step.
const MaxAttachmentsPerStep = 3

var ErrEmptyStepDescription = errors.New("process step description is required")

// ProjectBasics is the data collected by the first step.
type ProjectBasics struct {
	CompanyName    string `json:"companyName" validate:"nonblank"`
	Department     string `json:"department" validate:"nonblank"`
	ProjectName    string `json:"projectName" validate:"nonblank"`
	RequesterName  string `json:"requesterName" validate:"nonblank"`
	RequesterEmail string `json:"requesterEmail" validate:"nonblank,simpleemail"`
}

// Attachment references a file stored through the uploads service.
type Attachment struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
}

// ProcessStep is one step of the client's current manual process.
type ProcessStep struct {
	ID               int64        `json:"id"`
	Description      string       `json:"description" validate:"nonblank"`
	AutomationVision string       `json:"automationVision"`
	EstimatedTime    string       `json:"estimatedTime"`
	PeopleInvolved   string       `json:"peopleInvolved"`
	Frequency        string       `json:"frequency"`
	PainPoints       []string     `json:"painPoints" validate:"dive,steppainpoint"`
	Attachments      []Attachment `json:"attachments" validate:"max=3"`
}

// ProcessDiscovery is the data collected by the second step.
type ProcessDiscovery struct {
	ProcessType              string        `json:"processType" validate:"required,processtype"`
	OtherProcessName         string        `json:"otherProcessName"`
	CustomProcessDescription string        `json:"customProcessDescription"`
	ProcessSteps             []ProcessStep `json:"processSteps" validate:"dive"`
	// LastStepID is the highest step id ever issued, including removed steps.
	LastStepID               int64         `json:"lastStepId,omitempty"`
}

// AddStep appends a new process step built from draft. Text fields are
// trimmed and a draft without a description is rejected. The id is the
// creation time in milliseconds, bumped past every id issued so far so a
// removed step's id is never handed out again.
func (d *ProcessDiscovery) AddStep(draft ProcessStep, now time.Time) (ProcessStep, error) {
	description := strings.TrimSpace(draft.Description)
	if description == "" {
		return ProcessStep{}, ErrEmptyStepDescription
	}

	issued := d.LastStepID
	for _, s := range d.ProcessSteps {
		issued = max(issued, s.ID)
	}
	id := now.UnixMilli()
	if id <= issued {
		id = issued + 1
	}
	d.LastStepID = id

	step := ProcessStep{
		ID:               id,
		Description:      description,
		AutomationVision: strings.TrimSpace(draft.AutomationVision),
		EstimatedTime:    strings.TrimSpace(draft.EstimatedTime),
		PeopleInvolved:   strings.TrimSpace(draft.PeopleInvolved),
		Frequency:        strings.TrimSpace(draft.Frequency),
		PainPoints:       slices.Clone(draft.PainPoints),
		Attachments:      slices.Clone(draft.Attachments),
	}
	if step.PainPoints == nil {
		step.PainPoints = []string{}
	}
	if step.Attachments == nil {
		step.Attachments = []Attachment{}
	}
	d.ProcessSteps = append(d.ProcessSteps, step)
	return step, nil
}

// RemoveStep drops the process step with the given id and reports whether it existed.
func (d *ProcessDiscovery) RemoveStep(id int64) bool {
	before := len(d.ProcessSteps)
	d.ProcessSteps = slices.DeleteFunc(d.ProcessSteps, func(s ProcessStep) bool {
		return s.ID == id
	})
	return len(d.ProcessSteps) != before
}

// IsCustom reports whether the client described a process outside the catalogue.
func (d ProcessDiscovery) IsCustom() bool {
	return d.ProcessType == ProcessTypeCustom
}

// PainPointAnalysis is the data collected by the third step.
type PainPointAnalysis struct {
	PainPointCategories []string       `json:"painPointCategories" validate:"min=1,dive,painpoint"`
	ImpactAssessment    map[string]int `json:"impactAssessment" validate:"dive,min=0,max=100"`
	Frequency           string         `json:"frequency" validate:"required,frequency"`
	BusinessImpact      int            `json:"businessImpact" validate:"min=0,max=100"`
}

// TogglePainPoint selects or deselects a category. Selecting starts its impact
// assessment at zero, deselecting drops the assessment.
func (p *PainPointAnalysis) TogglePainPoint(category string) {
	if p.ImpactAssessment == nil {
		p.ImpactAssessment = map[string]int{}
	}
	if i := slices.Index(p.PainPointCategories, category); i >= 0 {
		p.PainPointCategories = slices.Delete(p.PainPointCategories, i, i+1)
		delete(p.ImpactAssessment, category)
		return
	}
	p.PainPointCategories = append(p.PainPointCategories, category)
	p.ImpactAssessment[category] = 0
}

// GoalsVision is the data collected by the fourth step.
type GoalsVision struct {
	OutcomePriorities []string `json:"outcomePriorities" validate:"min=1,dive,outcome"`
	SuccessMetrics    string   `json:"successMetrics"`
	TimelinePriority  int      `json:"timelinePriority" validate:"min=0,max=100"`
	CostPriority      int      `json:"costPriority" validate:"min=0,max=100"`
	AdditionalGoals   string   `json:"additionalGoals"`
}

// NewGoalsVision returns goals with both sliders at their midpoint.
func NewGoalsVision() GoalsVision {
	return GoalsVision{
		OutcomePriorities: []string{},
		TimelinePriority:  50,
		CostPriority:      50,
	}
}

// ToggleOutcome adds the outcome at the lowest priority or removes it.
func (g *GoalsVision) ToggleOutcome(outcome string) {
	if i := slices.Index(g.OutcomePriorities, outcome); i >= 0 {
		g.OutcomePriorities = slices.Delete(g.OutcomePriorities, i, i+1)
		return
	}
	g.OutcomePriorities = append(g.OutcomePriorities, outcome)
}

// MoveOutcome swaps the outcome with its neighbour. up moves it towards the
// highest priority. Moves past either end are ignored.
func (g *GoalsVision) MoveOutcome(outcome string, up bool) {
	i := slices.Index(g.OutcomePriorities, outcome)
	if i < 0 {
		return
	}
	j := i + 1
	if up {
		j = i - 1
	}
	if j < 0 || j >= len(g.OutcomePriorities) {
		return
	}
	g.OutcomePriorities[i], g.OutcomePriorities[j] = g.OutcomePriorities[j], g.OutcomePriorities[i]
}
