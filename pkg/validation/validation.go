// Package validation holds the validator instance and the custom tags shared
// by the profile, booking and availability validators.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"studyreg/pkg/logger"
	"studyreg/pkg/model"

	"github.com/go-playground/validator/v10"
)

const (
	TagAcademicLevel = "academic_level"
	TagCalendarDate  = "calendar_date"
	TagDayPart       = "day_part"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

// Fields maps field name to message, for error details.
func (v ValidationErrors) Fields() map[string]any {
	out := make(map[string]any, len(v))
	for _, e := range v {
		out[e.Field] = e.Message
	}
	return out
}

// New builds a validator that reports fields by their json name.
func New(log *logger.Logger) *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})

	custom := map[string]validator.Func{
		TagAcademicLevel: validateAcademicLevel,
		TagCalendarDate:  validateCalendarDate,
		TagDayPart:       validateDayPart,
	}
	for tag, fn := range custom {
		if err := v.RegisterValidation(tag, fn); err != nil {
			log.Fatal("Failed to register validator", "tag", tag, "error", err)
		}
	}
	return v
}

func validateAcademicLevel(fl validator.FieldLevel) bool {
	return slices.Contains(model.AcademicLevels, fl.Field().String())
}

func validateCalendarDate(fl validator.FieldLevel) bool {
	_, err := model.ParseDate(fl.Field().String())
	return err == nil
}

func validateDayPart(fl validator.FieldLevel) bool {
	return model.IsDayPart(fl.Field().String())
}

// Struct validates s and translates failures into ValidationErrors.
func Struct(v *validator.Validate, s any) error {
	if err := v.Struct(s); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return Translate(validationErrs)
		}
		return err
	}
	return nil
}

func Translate(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
		case "email":
			message = fmt.Sprintf("%s must be a valid email address", err.Field())
		case "oneof":
			message = fmt.Sprintf("%s must be one of: %s", err.Field(), err.Param())
		case TagAcademicLevel:
			message = fmt.Sprintf("%s must be one of: %s", err.Field(), strings.Join(model.AcademicLevels, ", "))
		case TagCalendarDate:
			message = fmt.Sprintf("%s must be a date in YYYY-MM-DD format", err.Field())
		case TagDayPart:
			message = fmt.Sprintf("%s must be one of the offered session times", err.Field())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
