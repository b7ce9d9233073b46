package validation

import (
	"fmt"
	"strings"

	"rate-limiter/internal/common/errors"
)

// FluentValidator accumulates validation errors across several checks
type FluentValidator struct {
	errors []ValidationError
	prefix string
}

// NewFluentValidator creates an empty fluent validator
func NewFluentValidator() *FluentValidator {
	return &FluentValidator{errors: make([]ValidationError, 0)}
}

// NewFluentValidatorWithPrefix creates a fluent validator with error prefix
func NewFluentValidatorWithPrefix(prefix string) *FluentValidator {
	return &FluentValidator{errors: make([]ValidationError, 0), prefix: prefix}
}

// RequireString validates that a string is not empty (trimmed)
func (fv *FluentValidator) RequireString(value, name string) *FluentValidator {
	if strings.TrimSpace(value) == "" {
		fv.addError(name, "required", value, fmt.Sprintf("%s is required", name))
	}
	return fv
}

// RequirePositive validates that an integer is positive
func (fv *FluentValidator) RequirePositive(value int, name string) *FluentValidator {
	if value <= 0 {
		fv.addError(name, "min", fmt.Sprintf("%d", value), fmt.Sprintf("%s must be positive", name))
	}
	return fv
}

// RequireRange validates that a value is within a range
func (fv *FluentValidator) RequireRange(value, min, max int, name string) *FluentValidator {
	if value < min || value > max {
		fv.addError(name, "range", fmt.Sprintf("%d", value), fmt.Sprintf("%s must be between %d and %d", name, min, max))
	}
	return fv
}

// RequireOneOf validates that a value is one of the allowed values
func (fv *FluentValidator) RequireOneOf(value string, allowed []string, name string) *FluentValidator {
	for _, a := range allowed {
		if value == a {
			return fv
		}
	}
	fv.addError(name, "oneof", value, fmt.Sprintf("%s must be one of: %s", name, strings.Join(allowed, ", ")))
	return fv
}

// RequireTag validates a value against a validator tag such as cron_expression
func (fv *FluentValidator) RequireTag(value interface{}, tag, name string) *FluentValidator {
	if err := ValidateVar(value, tag); err != nil {
		fv.addError(name, tag, fmt.Sprintf("%v", value), fmt.Sprintf("%s is invalid: %v", name, value))
	}
	return fv
}

// ValidateIf runs a validation function if a condition is true
func (fv *FluentValidator) ValidateIf(condition bool, fn func() error) *FluentValidator {
	if !condition {
		return fv
	}
	if err := fn(); err != nil {
		fv.addError("custom", "custom", "", err.Error())
	}
	return fv
}

// HasErrors returns true if there are validation errors
func (fv *FluentValidator) HasErrors() bool {
	return len(fv.errors) > 0
}

// Error returns the validation error or nil if there are no errors
func (fv *FluentValidator) Error() error {
	if !fv.HasErrors() {
		return nil
	}

	if len(fv.errors) == 1 {
		return errors.ValidationError(fv.errors[0].Message)
	}

	messages := make([]string, len(fv.errors))
	for i, e := range fv.errors {
		messages[i] = e.Message
	}

	return errors.ValidationError(fmt.Sprintf("validation failed: %s", strings.Join(messages, "; ")))
}

func (fv *FluentValidator) addError(field, tag, value, message string) {
	if fv.prefix != "" {
		message = fmt.Sprintf("%s: %s", fv.prefix, message)
		field = fmt.Sprintf("%s.%s", fv.prefix, field)
	}

	fv.errors = append(fv.errors, ValidationError{
		Field:   field,
		Tag:     tag,
		Value:   value,
		Message: message,
	})
}
