package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/squadhq/intake/internal/form/model"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Errors maps a field name to the message shown next to it.
type Errors map[string]string

func (e Errors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = fmt.Sprintf("%s: %s", f, e[f])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Has reports whether the field has an error.
func (e Errors) Has(field string) bool {
	_, ok := e[field]
	return ok
}

// AsErrors extracts field errors from err.
func AsErrors(err error) (Errors, bool) {
	var fe Errors
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// messages keyed by field then failing tag.
var messages = map[string]map[string]string{
	"companyName":              {"nonblank": "Company name is required"},
	"department":               {"nonblank": "Department is required"},
	"projectName":              {"nonblank": "Project name is required"},
	"requesterName":            {"nonblank": "Requester name is required"},
	"requesterEmail":           {"nonblank": "Email is required", "simpleemail": "Please enter a valid email address"},
	"processType":              {"required": "Please select a process type", "processtype": "Unknown process type"},
	"otherProcessName":         {"custom_name": "Process name is required"},
	"customProcessDescription": {"custom_detail": "Describe the process or add at least one step"},
	"painPointCategories":      {"min": "Select at least one pain point"},
	"frequency":                {"required": "Please select how often this process happens", "frequency": "Unknown frequency"},
	"outcomePriorities":        {"min": "Select at least one outcome"},
	"description":              {"nonblank": "Step description is required"},
	"attachments":              {"max": fmt.Sprintf("At most %d files can be attached", model.MaxAttachmentsPerStep)},
}

// Validator runs the per-step gates.
type Validator struct {
	validate *validator.Validate
}

// New builds a Validator with the intake tags registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	mustRegister(v, "nonblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	mustRegister(v, "simpleemail", func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	})
	mustRegister(v, "processtype", oneOf(model.Values(model.ProcessTypes)))
	mustRegister(v, "painpoint", oneOf(model.Values(model.PainPointCategories)))
	mustRegister(v, "steppainpoint", oneOf(model.StepPainPoints))
	mustRegister(v, "frequency", oneOf(model.Values(model.Frequencies)))
	mustRegister(v, "outcome", oneOf(model.Values(model.Outcomes)))

	v.RegisterStructValidation(customProcessRule, model.ProcessDiscovery{})

	return &Validator{validate: v}
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register validation %q: %v", tag, err))
	}
}

func oneOf(values []string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return slices.Contains(values, fl.Field().String())
	}
}

// customProcessRule requires a name plus either a description or at least one
// recorded step when the client picked a process outside the catalogue.
func customProcessRule(sl validator.StructLevel) {
	d := sl.Current().Interface().(model.ProcessDiscovery)
	if !d.IsCustom() {
		return
	}
	if strings.TrimSpace(d.OtherProcessName) == "" {
		sl.ReportError(d.OtherProcessName, "otherProcessName", "OtherProcessName", "custom_name", "")
	}
	if strings.TrimSpace(d.CustomProcessDescription) == "" && len(d.ProcessSteps) == 0 {
		sl.ReportError(d.CustomProcessDescription, "customProcessDescription", "CustomProcessDescription", "custom_detail", "")
	}
}

// Struct validates one step struct and returns Errors, or nil when the gate passes.
// The full error set is recomputed on every call.
func (v *Validator) Struct(step any) error {
	err := v.validate.Struct(step)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("failed to validate step: %w", err)
	}

	out := make(Errors, len(verrs))
	for _, fe := range verrs {
		key := fieldKey(fe.Namespace())
		if _, exists := out[key]; exists {
			continue
		}
		out[key] = message(fe)
	}
	return out
}

// fieldKey drops the leading struct name from a namespace such as
// "ProcessDiscovery.processSteps[0].description".
func fieldKey(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

func message(fe validator.FieldError) string {
	if byTag, ok := messages[fe.Field()]; ok {
		if msg, ok := byTag[fe.Tag()]; ok {
			return msg
		}
	}
	switch fe.Tag() {
	case "min", "max":
		return fmt.Sprintf("%s is out of range", fe.Field())
	case "steppainpoint", "painpoint", "outcome":
		return fmt.Sprintf("%q is not a recognised option", fe.Value())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
