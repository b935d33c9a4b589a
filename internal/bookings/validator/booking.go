package validator

import (
	"studyreg/pkg/logger"
	"studyreg/pkg/model"
	"studyreg/pkg/validation"

	"github.com/go-playground/validator/v10"
)

type BookingValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewBookingValidator(log *logger.Logger) *BookingValidator {
	return &BookingValidator{
		validate: validation.New(log),
		logger:   log,
	}
}

func (v *BookingValidator) Validate(booking *model.Booking) error {
	return validation.Struct(v.validate, booking)
}

func (v *BookingValidator) ValidateProfile(profile *model.Profile) error {
	return validation.Struct(v.validate, profile)
}
