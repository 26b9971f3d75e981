// Package flow drives a linear sequence of form steps toward one final
// submission: checkout, address add/edit, and similar multi-step forms.
package flow

import (
	"errors"
	"fmt"
)

// Step is one named stop in a flow. Fields lists the form-data keys the
// step collects; they are validated before the flow advances past it.
// SkipWhen, if set, removes the step from the sequence for the current
// form data (e.g. a guest-info step skipped for authenticated users).
type Step struct {
	ID       string
	Label    string
	Fields   []string
	SkipWhen func(data map[string]any) bool
}

// Validator gates forward transitions. It is pure and synchronous;
// failures come back as a field -> message map, never as an error.
type Validator interface {
	ValidateFields(data map[string]any, fields []string) map[string]string
}

// Controller holds the flow state: current step, accumulated form data,
// and per-field validation errors. It is not safe for concurrent use; a
// flow belongs to one UI surface.
type Controller struct {
	steps        []Step
	validator    Validator
	current      int
	formData     map[string]any
	errors       map[string]string
	isSubmitting bool
}

var errNoSteps = errors.New("flow needs at least one step")

// NewController builds a controller positioned at the first non-skipped step.
func NewController(steps []Step, v Validator) (*Controller, error) {
	if len(steps) == 0 {
		return nil, errNoSteps
	}
	seen := map[string]bool{}
	for _, s := range steps {
		if s.ID == "" {
			return nil, errors.New("step id must not be empty")
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("duplicate step id %q", s.ID)
		}
		seen[s.ID] = true
	}
	c := &Controller{
		steps:     steps,
		validator: v,
		formData:  map[string]any{},
		errors:    map[string]string{},
	}
	c.current = c.firstActive()
	return c, nil
}

func (c *Controller) skipped(i int) bool {
	return c.steps[i].SkipWhen != nil && c.steps[i].SkipWhen(c.formData)
}

func (c *Controller) firstActive() int {
	for i := range c.steps {
		if !c.skipped(i) {
			return i
		}
	}
	return 0
}

// CurrentStepID reports the step the flow is on.
func (c *Controller) CurrentStepID() string {
	return c.steps[c.current].ID
}

// CurrentStep returns the full definition of the current step.
func (c *Controller) CurrentStep() Step {
	return c.steps[c.current]
}

// NextStep validates the current step's fields and advances on success.
// On failure it records field errors and stays put; at the last step it is
// a no-op. Returns whether the flow moved.
func (c *Controller) NextStep() bool {
	step := c.steps[c.current]
	// A step that became skipped after mounting (e.g. the user signed in
	// mid-checkout) no longer gates the transition.
	if !c.skipped(c.current) && c.validator != nil && len(step.Fields) > 0 {
		if errs := c.validator.ValidateFields(c.formData, step.Fields); len(errs) > 0 {
			for f, msg := range errs {
				c.errors[f] = msg
			}
			return false
		}
	}
	for _, f := range step.Fields {
		delete(c.errors, f)
	}
	for i := c.current + 1; i < len(c.steps); i++ {
		if !c.skipped(i) {
			c.current = i
			return true
		}
	}
	return false
}

// PreviousStep retreats unconditionally; no validation on the way back.
// No-op at the first step.
func (c *Controller) PreviousStep() bool {
	for i := c.current - 1; i >= 0; i-- {
		if !c.skipped(i) {
			c.current = i
			return true
		}
	}
	return false
}

// UpdateFormData shallow-merges partial into the accumulated form data.
// Errors for edited fields clear immediately as a UX affordance; they
// reappear on the next failed validation pass.
func (c *Controller) UpdateFormData(partial map[string]any) {
	for k, v := range partial {
		c.formData[k] = v
		delete(c.errors, k)
	}
}

// FormData returns a copy of the accumulated data.
func (c *Controller) FormData() map[string]any {
	out := make(map[string]any, len(c.formData))
	for k, v := range c.formData {
		out[k] = v
	}
	return out
}

// Errors returns a copy of the current field errors.
func (c *Controller) Errors() map[string]string {
	out := make(map[string]string, len(c.errors))
	for k, v := range c.errors {
		out[k] = v
	}
	return out
}

// ValidateAll runs the validator over every active step's fields, filling
// the error map. Used before final submission.
func (c *Controller) ValidateAll() bool {
	if c.validator == nil {
		return true
	}
	var fields []string
	for i, s := range c.steps {
		if c.skipped(i) {
			continue
		}
		fields = append(fields, s.Fields...)
	}
	errs := c.validator.ValidateFields(c.formData, fields)
	for f, msg := range errs {
		c.errors[f] = msg
	}
	return len(errs) == 0
}

// SetSubmitting toggles the submission flag for the owning UI.
func (c *Controller) SetSubmitting(v bool) { c.isSubmitting = v }

// IsSubmitting reports whether a submission is in flight.
func (c *Controller) IsSubmitting() bool { return c.isSubmitting }

// Reset restores the flow to its initial step with empty data and errors.
func (c *Controller) Reset() {
	c.formData = map[string]any{}
	c.errors = map[string]string{}
	c.isSubmitting = false
	c.current = c.firstActive()
}
