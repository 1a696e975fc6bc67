package binding

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validation patterns.
var (
	bindingNamePattern  = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9_]*|\$return)$`)
	functionNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]{0,127}$`)
	timeSpanPattern     = regexp.MustCompile(`^(\d+\.)?\d{1,2}:\d{2}:\d{2}$`)
	appSettingPattern   = regexp.MustCompile(`^%[^%]+%$`)
	cronFieldPattern    = regexp.MustCompile(`^[0-9A-Za-z*/,\-?]+$`)
)

// NCRONTAB expressions carry a seconds field.
const cronFieldCount = 6

// validate is the singleton validator instance.
var validate *validator.Validate

func init() {
	validate = validator.New()
	registerCustomValidators(validate)
}

// registerCustomValidators registers custom validation functions.
func registerCustomValidators(v *validator.Validate) {
	_ = v.RegisterValidation("bindingname", func(fl validator.FieldLevel) bool {
		return bindingNamePattern.MatchString(fl.Field().String())
	})

	_ = v.RegisterValidation("functionname", func(fl validator.FieldLevel) bool {
		return functionNamePattern.MatchString(fl.Field().String())
	})

	_ = v.RegisterValidation("schedule", func(fl validator.FieldLevel) bool {
		return IsValidSchedule(fl.Field().String())
	})
}

// IsValidSchedule reports whether s is a six-field NCRONTAB expression, a
// TimeSpan ("hh:mm:ss") or an app setting reference ("%Name%").
func IsValidSchedule(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	if appSettingPattern.MatchString(s) || timeSpanPattern.MatchString(s) {
		return true
	}

	fields := strings.Fields(s)
	if len(fields) != cronFieldCount {
		return false
	}
	for _, f := range fields {
		if !cronFieldPattern.MatchString(f) {
			return false
		}
	}
	return true
}

// Validate checks the required fields and enumerations of a binding.
func Validate(b Binding) error {
	if b == nil {
		return fmt.Errorf("%w: nil binding", ErrInvalidBinding)
	}
	if err := WrapValidationErrors(validate.Struct(b)); err != nil {
		return fmt.Errorf("%w: %s %q: %w", ErrInvalidBinding, b.GetType(), b.GetName(), err)
	}
	if _, ok := b.(*CustomBinding); ok {
		if owner, claimed := DefaultRegistry().Claims(b.GetType(), b.GetDirection()); claimed {
			return fmt.Errorf("%w: %s %q: %w (%s)",
				ErrInvalidBinding, b.GetType(), b.GetName(), ErrReservedBindingType, owner.Annotation)
		}
	}
	return nil
}

// ValidateStruct validates any struct with the shared validator, including
// the custom "bindingname", "functionname" and "schedule" rules.
func ValidateStruct(v any) error {
	return WrapValidationErrors(validate.Struct(v))
}

// ValidationError wraps validation errors with context.
type ValidationError struct {
	Field   string
	Tag     string
	Value   interface{}
	Message string
}

// Error returns the error message.
func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s': %s (value: %v)",
		e.Field, e.Message, e.Value)
}

// WrapValidationErrors converts validator.ValidationErrors to a readable error.
func WrapValidationErrors(err error) error {
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	if len(validationErrors) == 0 {
		return nil
	}

	// Return the first validation error for clarity.
	fe := validationErrors[0]
	return ValidationError{
		Field:   fe.Field(),
		Tag:     fe.Tag(),
		Value:   fe.Value(),
		Message: formatValidationMessage(fe),
	}
}

// formatValidationMessage creates a human-readable validation message.
func formatValidationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "oneof", "oneofci":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "numeric":
		return "must be numeric"
	case "bindingname":
		return "must start with a letter and contain only letters, digits and underscores, or be $return"
	case "functionname":
		return "must start with a letter and contain only letters, digits, '_' and '-' (max 128)"
	case "schedule":
		return "must be a six-field NCRONTAB expression, a hh:mm:ss TimeSpan or a %AppSetting% reference"
	default:
		return fmt.Sprintf("failed validation '%s'", fe.Tag())
	}
}
