package wizard

// Step is a position in the intake flow.
type Step int

const (
	StepProjectBasics Step = iota + 1
	StepProcessDiscovery
	StepPainPoints
	StepGoals
	StepReview
	// StepCompleted is terminal; only Reset leaves it.
	StepCompleted
)

// StepInfo describes a step for progress displays.
type StepInfo struct {
	Step     Step   `json:"id"`
	Title    string `json:"title"`
	Estimate string `json:"estimate"`
}

var catalogue = []StepInfo{
	{Step: StepProjectBasics, Title: "Project Basics", Estimate: "2 min"},
	{Step: StepProcessDiscovery, Title: "Process Discovery", Estimate: "4-6 min"},
	{Step: StepPainPoints, Title: "Pain Point Analysis", Estimate: "3-5 min"},
	{Step: StepGoals, Title: "Goals & Vision", Estimate: "3-5 min"},
	{Step: StepReview, Title: "Summary Review", Estimate: "1-2 min"},
}

// Steps returns the ordered data-collection steps.
func Steps() []StepInfo {
	out := make([]StepInfo, len(catalogue))
	copy(out, catalogue)
	return out
}

func (s Step) String() string {
	if s == StepCompleted {
		return "Completed"
	}
	for _, info := range catalogue {
		if info.Step == s {
			return info.Title
		}
	}
	return "Unknown"
}

// validTransitions lists every move the controller may make.
var validTransitions = map[Step][]Step{
	StepProjectBasics:    {StepProcessDiscovery},
	StepProcessDiscovery: {StepProjectBasics, StepPainPoints},
	StepPainPoints:       {StepProcessDiscovery, StepGoals},
	StepGoals:            {StepPainPoints, StepReview},
	StepReview:           {StepGoals, StepCompleted},
	StepCompleted:        {},
}

func canTransition(from, to Step) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
