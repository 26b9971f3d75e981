// Package forms is a pure, schema-driven validator for the map-shaped form
// data flows accumulate. The UI layer calls Validate and renders the
// returned error map; nothing here touches the network.
package forms

import (
	"fmt"
	"regexp"

	validatorv10 "github.com/go-playground/validator/v10"
)

var (
	vnPhoneRe = regexp.MustCompile(`^(0|\+84)[3|5|7|8|9][0-9]{8}$`)
	slugRe    = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
)

// ValidPhone reports whether s is a well-formed Vietnamese mobile number.
func ValidPhone(s string) bool {
	return vnPhoneRe.MatchString(s)
}

// newValidate returns a validator with the storefront's custom format
// checks registered.
func newValidate() *validatorv10.Validate {
	v := validatorv10.New()
	_ = v.RegisterValidation("vn_phone", func(fl validatorv10.FieldLevel) bool {
		return vnPhoneRe.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("slug", func(fl validatorv10.FieldLevel) bool {
		return slugRe.MatchString(fl.Field().String())
	})
	return v
}

// Rule constrains one field.
type Rule struct {
	// Required rejects missing/empty values unconditionally.
	Required bool
	// RequiredWhen makes the field required only for matching form data
	// (e.g. shipping address only when delivery_method == "delivery").
	RequiredWhen func(data map[string]any) bool
	// Tag is a validator/v10 tag chain applied to non-empty values,
	// e.g. "email", "vn_phone", "gte=1,lte=99".
	Tag string
	// Message overrides the default error message for tag failures.
	Message string
}

// Refinement is a whole-object check referencing two or more fields. It
// returns field -> message for everything it rejects.
type Refinement func(data map[string]any) map[string]string

// Schema describes a form.
type Schema struct {
	Fields map[string]Rule
	Refine []Refinement

	v *validatorv10.Validate
}

// NewSchema builds a schema with the custom validators wired in.
func NewSchema(fields map[string]Rule, refine ...Refinement) *Schema {
	return &Schema{Fields: fields, Refine: refine, v: newValidate()}
}

// Result of a validation pass.
type Result struct {
	Valid  bool
	Errors map[string]string
}

// Validate checks every field in the schema plus all refinements.
func (s *Schema) Validate(data map[string]any) Result {
	fields := make([]string, 0, len(s.Fields))
	for f := range s.Fields {
		fields = append(fields, f)
	}
	errs := s.ValidateFields(data, fields)
	return Result{Valid: len(errs) == 0, Errors: errs}
}

// ValidateFields checks only the listed fields; refinements still run but
// only their messages for listed fields are reported. This is the gate the
// step controller calls before a forward transition.
func (s *Schema) ValidateFields(data map[string]any, fields []string) map[string]string {
	errs := map[string]string{}
	requested := map[string]bool{}
	for _, f := range fields {
		requested[f] = true
	}

	for _, field := range fields {
		rule, ok := s.Fields[field]
		if !ok {
			continue
		}
		value, present := data[field]
		if isEmpty(value) {
			present = false
		}

		required := rule.Required
		if rule.RequiredWhen != nil {
			required = required || rule.RequiredWhen(data)
		}
		if !present {
			if required {
				errs[field] = field + " is required"
			}
			continue
		}
		if rule.Tag == "" {
			continue
		}
		if err := s.v.Var(value, rule.Tag); err != nil {
			if rule.Message != "" {
				errs[field] = rule.Message
			} else {
				errs[field] = fmt.Sprintf("%s is invalid", field)
			}
		}
	}

	for _, refine := range s.Refine {
		for field, msg := range refine(data) {
			if requested[field] && errs[field] == "" {
				errs[field] = msg
			}
		}
	}
	return errs
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	default:
		return false
	}
}
