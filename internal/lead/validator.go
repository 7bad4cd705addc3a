package lead

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldError names a single failing field and why it failed.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError enumerates every violated rule of a submission.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, f.Field)
	}
	return "invalid submission: " + strings.Join(names, ", ")
}

// FieldNames returns the failing field names in declaration order.
func (e *ValidationError) FieldNames() []string {
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, f.Field)
	}
	return names
}

// Validator checks inbound submissions against the form contract.
type Validator struct {
	validate *validator.Validate
}

// NewValidator builds a Validator with the submission rule set registered.
func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// Registration only fails for a blank tag or nil func.
	_ = v.RegisterValidation("phonedigits", func(fl validator.FieldLevel) bool {
		return len(Digits(fl.Field().String())) >= 10
	})
	return &Validator{validate: v}
}

// Validate returns nil when the submission is acceptable, otherwise a
// ValidationError listing every failing field. Optional fields pass through
// untouched.
func (v *Validator) Validate(s Submission) *ValidationError {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return &ValidationError{Fields: []FieldError{{Field: "payload", Message: "malformed payload"}}}
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{
			Field:   fe.Field(),
			Message: ruleMessage(fe),
		})
	}
	return out
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "email":
		return "must be a valid email address"
	case "phonedigits":
		return "must contain at least 10 digits"
	case "eq":
		return "must be true"
	default:
		return "is invalid"
	}
}
