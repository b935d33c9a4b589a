package validator

import (
	"studyreg/pkg/logger"
	"studyreg/pkg/validation"

	"github.com/go-playground/validator/v10"
)

type SlotsInput struct {
	Date  string   `json:"date" validate:"required,calendar_date"`
	Times []string `json:"times" validate:"dive,day_part"`
}

type TimeInput struct {
	Date string `json:"date" validate:"required,calendar_date"`
	Time string `json:"time" validate:"required,day_part"`
}

// AdjustInput is one press of the collector portal's +/- control, or a
// batch of them.
type AdjustInput struct {
	Delta int `json:"delta" validate:"min=-1000,max=1000"`
}

type AvailabilityValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewAvailabilityValidator(log *logger.Logger) *AvailabilityValidator {
	return &AvailabilityValidator{
		validate: validation.New(log),
		logger:   log,
	}
}

func (v *AvailabilityValidator) ValidateSlots(in *SlotsInput) error {
	return validation.Struct(v.validate, in)
}

func (v *AvailabilityValidator) ValidateTime(in *TimeInput) error {
	return validation.Struct(v.validate, in)
}

func (v *AvailabilityValidator) ValidateAdjust(in *AdjustInput) error {
	return validation.Struct(v.validate, in)
}

func (v *AvailabilityValidator) ValidateDate(date string) error {
	return validation.Struct(v.validate, &SlotsInput{Date: date})
}
