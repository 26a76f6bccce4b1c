package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/squadhq/intake/internal/dispatch"
	"github.com/squadhq/intake/internal/form/model"
	"github.com/squadhq/intake/internal/form/validation"
	"github.com/squadhq/intake/internal/wizard"
)

// Driver walks a wizard session in the terminal.
type Driver struct {
	session *wizard.Session
	prompt  Prompter
	out     io.Writer
	now     func() time.Time
}

func NewDriver(session *wizard.Session, prompt Prompter, out io.Writer) *Driver {
	return &Driver{session: session, prompt: prompt, out: out, now: time.Now}
}

// Run drives the session until the client finishes and declines to start
// another request, or until a prompt fails.
func (d *Driver) Run(ctx context.Context) error {
	for {
		var err error
		step := d.session.Current()
		if step != wizard.StepCompleted {
			info := wizard.Steps()[step-1]
			d.printf("\n== Step %d of %d: %s (%s) ==\n", step, len(wizard.Steps()), info.Title, info.Estimate)
		}

		switch step {
		case wizard.StepProjectBasics:
			err = d.projectBasics(ctx)
		case wizard.StepProcessDiscovery:
			err = d.processDiscovery(ctx)
		case wizard.StepPainPoints:
			err = d.painPoints(ctx)
		case wizard.StepGoals:
			err = d.goals(ctx)
		case wizard.StepReview:
			err = d.review(ctx)
		case wizard.StepCompleted:
			again, cerr := d.completed(ctx)
			if cerr != nil || !again {
				return cerr
			}
		}
		if err != nil {
			return err
		}
	}
}

// submitted reports whether err is nil; validation errors are printed and
// reported as a retry.
func (d *Driver) submitted(err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	if fe, ok := validation.AsErrors(err); ok {
		d.printf("Please fix the following:\n")
		for _, key := range sortedKeys(fe) {
			d.printf("  - %s: %s\n", key, fe[key])
		}
		return false, nil
	}
	return false, err
}

func (d *Driver) projectBasics(ctx context.Context) error {
	var in model.ProjectBasics
	_ = d.session.Load(&in)

	for {
		var err error
		if in.CompanyName, err = d.input(ctx, "Company name", in.CompanyName); err != nil {
			return err
		}
		dept, err := d.prompt.Select(ctx, SelectConfig{
			Message:      "Department",
			Options:      model.Departments,
			DefaultIndex: max(slices.Index(model.Departments, in.Department), 0),
		})
		if err != nil {
			return err
		}
		in.Department = model.Departments[dept]
		if in.ProjectName, err = d.input(ctx, "Project name", in.ProjectName); err != nil {
			return err
		}
		if in.RequesterName, err = d.input(ctx, "Your name", in.RequesterName); err != nil {
			return err
		}
		if in.RequesterEmail, err = d.input(ctx, "Your email", in.RequesterEmail); err != nil {
			return err
		}

		if ok, err := d.submitted(d.session.SubmitProjectBasics(in)); ok || err != nil {
			return err
		}
	}
}

func (d *Driver) processDiscovery(ctx context.Context) error {
	var in model.ProcessDiscovery
	_ = d.session.Load(&in)

	for {
		idx, err := d.prompt.Select(ctx, SelectConfig{
			Message:      "Which process would you like to automate?",
			Options:      titlesOf(model.ProcessTypes),
			DefaultIndex: max(indexOfValue(model.ProcessTypes, in.ProcessType), 0),
		})
		if err != nil {
			return err
		}
		in.ProcessType = model.ProcessTypes[idx].Value

		if in.IsCustom() {
			if in.OtherProcessName, err = d.input(ctx, "Name of the process", in.OtherProcessName); err != nil {
				return err
			}
			if in.CustomProcessDescription, err = d.prompt.TextArea(ctx, TextAreaConfig{
				Message: "Describe the process",
				Default: in.CustomProcessDescription,
			}); err != nil {
				return err
			}
		}

		if err := d.editSteps(ctx, &in); err != nil {
			return err
		}

		if ok, err := d.submitted(d.session.SubmitProcessDiscovery(in)); ok || err != nil {
			return err
		}
	}
}

func (d *Driver) editSteps(ctx context.Context, in *model.ProcessDiscovery) error {
	for _, s := range in.ProcessSteps {
		d.printf("  step: %s\n", s.Description)
	}
	for {
		more, err := d.prompt.Confirm(ctx, ConfirmConfig{
			Message: "Add a process step?",
			Default: len(in.ProcessSteps) == 0,
		})
		if err != nil || !more {
			return err
		}

		var draft model.ProcessStep
		if draft.Description, err = d.input(ctx, "What happens in this step?", ""); err != nil {
			return err
		}
		if draft.AutomationVision, err = d.input(ctx, "How should it work once automated?", ""); err != nil {
			return err
		}
		tags, err := d.prompt.MultiSelect(ctx, SelectConfig{
			Message: "What makes this step painful?",
			Options: model.StepPainPoints,
		})
		if err != nil {
			return err
		}
		for _, i := range tags {
			draft.PainPoints = append(draft.PainPoints, model.StepPainPoints[i])
		}

		if _, err := in.AddStep(draft, d.now()); err != nil {
			d.printf("Step not added: %v\n", err)
		}
	}
}

func (d *Driver) painPoints(ctx context.Context) error {
	var prev model.PainPointAnalysis
	_ = d.session.Load(&prev)

	for {
		var defaults []int
		for _, v := range prev.PainPointCategories {
			if i := indexOfValue(model.PainPointCategories, v); i >= 0 {
				defaults = append(defaults, i)
			}
		}
		picked, err := d.prompt.MultiSelect(ctx, SelectConfig{
			Message:  "What problems does this process cause?",
			Options:  titlesOf(model.PainPointCategories),
			Defaults: defaults,
		})
		if err != nil {
			return err
		}

		in := model.PainPointAnalysis{ImpactAssessment: map[string]int{}}
		for _, i := range picked {
			opt := model.PainPointCategories[i]
			in.TogglePainPoint(opt.Value)
			score, err := d.score(ctx, fmt.Sprintf("How serious is %q? (0-100)", opt.Title), valueOr(prev.ImpactAssessment, opt.Value, 50))
			if err != nil {
				return err
			}
			in.ImpactAssessment[opt.Value] = score
		}

		freqOptions := make([]string, len(model.Frequencies))
		for i, f := range model.Frequencies {
			freqOptions[i] = fmt.Sprintf("%s (%s)", f.Title, f.Description)
		}
		freq, err := d.prompt.Select(ctx, SelectConfig{
			Message:      "How often does this process happen?",
			Options:      freqOptions,
			DefaultIndex: max(indexOfValue(model.Frequencies, prev.Frequency), 0),
		})
		if err != nil {
			return err
		}
		in.Frequency = model.Frequencies[freq].Value

		if in.BusinessImpact, err = d.score(ctx, "Overall business impact (0-100)", prev.BusinessImpact); err != nil {
			return err
		}
		d.printf("Impact: %s\n", model.ImpactLabel(in.BusinessImpact))

		if ok, err := d.submitted(d.session.SubmitPainPoints(in)); ok || err != nil {
			return err
		}
		prev = in
	}
}

func (d *Driver) goals(ctx context.Context) error {
	in := model.NewGoalsVision()
	_ = d.session.Load(&in)

	for {
		var defaults []int
		for _, v := range in.OutcomePriorities {
			if i := indexOfValue(model.Outcomes, v); i >= 0 {
				defaults = append(defaults, i)
			}
		}
		picked, err := d.prompt.MultiSelect(ctx, SelectConfig{
			Message:  "What outcomes matter to you?",
			Options:  titlesOf(model.Outcomes),
			Defaults: defaults,
		})
		if err != nil {
			return err
		}
		in.OutcomePriorities = []string{}
		for _, i := range picked {
			in.ToggleOutcome(model.Outcomes[i].Value)
		}
		if len(in.OutcomePriorities) > 1 {
			if err := d.pickTopOutcome(ctx, &in); err != nil {
				return err
			}
		}

		if in.SuccessMetrics, err = d.prompt.TextArea(ctx, TextAreaConfig{
			Message: "How will you measure success?",
			Default: in.SuccessMetrics,
		}); err != nil {
			return err
		}
		if in.TimelinePriority, err = d.score(ctx, "Timeline urgency (0 flexible - 100 urgent)", in.TimelinePriority); err != nil {
			return err
		}
		if in.CostPriority, err = d.score(ctx, "Budget priority (0 flexible - 100 urgent)", in.CostPriority); err != nil {
			return err
		}
		d.printf("Timeline: %s, budget: %s\n", model.PriorityLabel(in.TimelinePriority), model.PriorityLabel(in.CostPriority))
		if in.AdditionalGoals, err = d.input(ctx, "Anything else we should know?", in.AdditionalGoals); err != nil {
			return err
		}

		ok, err := d.submitGoals(ctx, in)
		if ok || err != nil {
			return err
		}
	}
}

// pickTopOutcome moves the outcome the client cares about most to the front.
func (d *Driver) pickTopOutcome(ctx context.Context, in *model.GoalsVision) error {
	titles := make([]string, len(in.OutcomePriorities))
	for i, v := range in.OutcomePriorities {
		titles[i] = model.TitleFor(model.Outcomes, v)
	}
	top, err := d.prompt.Select(ctx, SelectConfig{Message: "Which outcome matters most?", Options: titles})
	if err != nil {
		return err
	}
	chosen := in.OutcomePriorities[top]
	for range top {
		in.MoveOutcome(chosen, true)
	}
	return nil
}

func (d *Driver) submitGoals(ctx context.Context, in model.GoalsVision) (bool, error) {
	for {
		_, err := d.session.SubmitGoals(ctx, in)
		var transportErr *dispatch.TransportError
		if !errors.As(err, &transportErr) {
			return d.submitted(err)
		}

		d.printf("We could not send your request: %v\n", transportErr.Err)
		retry, perr := d.prompt.Confirm(ctx, ConfirmConfig{Message: "Try again?", Default: true})
		if perr != nil {
			return false, perr
		}
		if !retry {
			return false, err
		}
	}
}

func (d *Driver) review(ctx context.Context) error {
	review := d.session.Review()
	if review == nil {
		d.session.Back()
		return nil
	}

	if review.Status() == wizard.ReviewLoading {
		d.printf("Analyzing your request, this can take a couple of minutes...\n")
	}
	if _, err := review.Wait(ctx); err != nil {
		return err
	}

	for {
		d.printf("\n--- Summary ---\n%s\n---------------\n", review.Summary())

		options := []string{"Approve summary", "Request changes", "Go back"}
		if review.Status() == wizard.ReviewTimedOut {
			options = []string{"Finish", "Go back"}
		}
		choice, err := d.prompt.Select(ctx, SelectConfig{Message: "What would you like to do?", Options: options})
		if err != nil {
			return err
		}

		switch options[choice] {
		case "Approve summary":
			return d.session.Approve()
		case "Finish":
			return d.session.Finish()
		case "Go back":
			d.session.Back()
			return nil
		case "Request changes":
			note, err := d.prompt.TextArea(ctx, TextAreaConfig{Message: "What should change?"})
			if err != nil {
				return err
			}
			if _, err := d.submitted(d.session.RequestChanges(note)); err != nil {
				return err
			}
		}
	}
}

func (d *Driver) completed(ctx context.Context) (bool, error) {
	rec := d.session.Controller().Record()
	d.printf("\nThank you! Your request %s has been submitted.\n", rec.RequestID())
	again, err := d.prompt.Confirm(ctx, ConfirmConfig{Message: "Start another request?"})
	if err != nil || !again {
		return false, err
	}
	d.session.StartNew()
	return true, nil
}

func (d *Driver) input(ctx context.Context, message, def string) (string, error) {
	s, err := d.prompt.Input(ctx, InputConfig{Message: message, Default: def})
	return strings.TrimSpace(s), err
}

func (d *Driver) score(ctx context.Context, message string, def int) (int, error) {
	s, err := d.prompt.Input(ctx, InputConfig{
		Message:   message,
		Default:   strconv.Itoa(def),
		Validator: validateScore,
	})
	if err != nil {
		return 0, err
	}
	if err := validateScore(s); err != nil {
		return def, nil
	}
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n, nil
}

func (d *Driver) printf(format string, args ...any) {
	fmt.Fprintf(d.out, format, args...)
}

func validateScore(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 || n > 100 {
		return errors.New("enter a number between 0 and 100")
	}
	return nil
}

func titlesOf(options []model.Option) []string {
	out := make([]string, len(options))
	for i, o := range options {
		out[i] = o.Title
	}
	return out
}

func indexOfValue(options []model.Option, value string) int {
	return slices.IndexFunc(options, func(o model.Option) bool { return o.Value == value })
}

func valueOr(m map[string]int, key string, def int) int {
	if v, ok := m[key]; ok {
		return v
	}
	return def
}

func sortedKeys(m validation.Errors) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
