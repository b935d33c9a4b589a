package validator

import (
	"studyreg/pkg/logger"
	"studyreg/pkg/model"
	"studyreg/pkg/validation"

	"github.com/go-playground/validator/v10"
)

type RegistrationValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewRegistrationValidator(log *logger.Logger) *RegistrationValidator {
	return &RegistrationValidator{
		validate: validation.New(log),
		logger:   log,
	}
}

// ValidateProfile checks the profile step guard: names, email, age range,
// academic level and major. Phone is free-form.
func (v *RegistrationValidator) ValidateProfile(profile *model.Profile) error {
	return validation.Struct(v.validate, profile)
}
