package service

import (
	"context"
	"errors"
	"time"

	"studyreg/internal/notifications"
	registrationerrors "studyreg/internal/registration/errors"
	"studyreg/internal/registration/repository"
	"studyreg/internal/registration/validator"
	"studyreg/pkg/config"
	apperrors "studyreg/pkg/errors"
	"studyreg/pkg/model"
	"studyreg/pkg/sanitizer"
	"studyreg/pkg/validation"

	"github.com/google/uuid"
)

// SlotReader is the read side of the availability model the scheduling
// guards consult.
type SlotReader interface {
	Collector(collectorID string) (model.Collector, error)
	ListOpenDates(ctx context.Context, collectorID string) ([]string, error)
	HasSlot(ctx context.Context, collectorID, date, timeLabel string) (bool, error)
}

// Ledger appends confirmed bookings.
type Ledger interface {
	Append(ctx context.Context, booking *model.Booking) (*model.Booking, error)
}

type RegistrationService interface {
	Start(ctx context.Context) (*model.Registration, error)
	Get(ctx context.Context, id string) (*model.Registration, error)

	SubmitProfile(ctx context.Context, id string, profile model.Profile) (*model.Registration, error)
	Consent(ctx context.Context, id string) (*model.Registration, error)
	Decline(ctx context.Context, id string) (*model.Registration, error)
	Reconsider(ctx context.Context, id string) (*model.Registration, error)
	Back(ctx context.Context, id string) (*model.Registration, error)

	SelectCollector(ctx context.Context, id, collectorID string) (*model.Registration, error)
	SelectDate(ctx context.Context, id, date string) (*model.Registration, error)
	SelectTime(ctx context.Context, id, timeLabel string) (*model.Registration, error)
	Review(ctx context.Context, id string) (*model.Registration, error)

	// Confirm appends the booking. A stale slot sends the registration back
	// to scheduling; any other refusal leaves it in review.
	Confirm(ctx context.Context, id string) (*model.Registration, error)
}

type registrationService struct {
	repo       repository.SessionRepository
	slots      SlotReader
	ledger     Ledger
	dispatcher notifications.Dispatcher
	validator  *validator.RegistrationValidator
	cfg        *config.Config
	now        func() time.Time
}

func NewRegistrationService(
	repo repository.SessionRepository,
	slots SlotReader,
	ledger Ledger,
	dispatcher notifications.Dispatcher,
	validator *validator.RegistrationValidator,
	cfg *config.Config,
) RegistrationService {
	return &registrationService{
		repo:       repo,
		slots:      slots,
		ledger:     ledger,
		dispatcher: dispatcher,
		validator:  validator,
		cfg:        cfg,
		now:        time.Now,
	}
}

func (s *registrationService) Start(ctx context.Context) (*model.Registration, error) {
	now := s.now().UTC()
	reg := &model.Registration{
		ID:        uuid.NewString(),
		Step:      model.StepProfile,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, reg); err != nil {
		s.cfg.Log.Error("Failed to start registration", "error", err)
		return nil, apperrors.Unavailable("Registration")
	}
	s.cfg.Log.Debug("Registration started", "registration_id", reg.ID)
	return reg, nil
}

func (s *registrationService) Get(ctx context.Context, id string) (*model.Registration, error) {
	reg, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, s.sessionError(id, err)
	}
	return reg, nil
}

func (s *registrationService) SubmitProfile(ctx context.Context, id string, profile model.Profile) (*model.Registration, error) {
	p := profile
	p.FirstName = sanitizer.NormalizeName(p.FirstName)
	p.LastName = sanitizer.NormalizeName(p.LastName)
	p.Email = sanitizer.NormalizeEmail(p.Email)
	p.Level = sanitizer.NormalizeLevel(p.Level, model.AcademicLevels)
	p.Major = sanitizer.TrimAndNormalize(p.Major)
	p.Phone = sanitizer.NormalizePhone(p.Phone)

	return s.transition(ctx, id, ActionSubmitProfile, func(reg *model.Registration) error {
		if err := s.validator.ValidateProfile(&p); err != nil {
			var verrs validation.ValidationErrors
			if errors.As(err, &verrs) {
				return apperrors.Validation("Please complete all required fields", verrs.Fields())
			}
			return apperrors.Validation("Please complete all required fields", map[string]any{"error": err.Error()})
		}
		reg.Profile = &p
		return nil
	})
}

func (s *registrationService) Consent(ctx context.Context, id string) (*model.Registration, error) {
	return s.transition(ctx, id, ActionConsent, func(reg *model.Registration) error {
		reg.ConsentedAt = s.now().UTC()
		return nil
	})
}

// Decline ends the flow without writing anything to the store. The profile
// stays on the session so reconsidering does not lose it.
func (s *registrationService) Decline(ctx context.Context, id string) (*model.Registration, error) {
	return s.transition(ctx, id, ActionDecline, func(reg *model.Registration) error {
		reg.ConsentedAt = time.Time{}
		return nil
	})
}

func (s *registrationService) Reconsider(ctx context.Context, id string) (*model.Registration, error) {
	return s.transition(ctx, id, ActionReconsider, nil)
}

func (s *registrationService) Back(ctx context.Context, id string) (*model.Registration, error) {
	return s.transition(ctx, id, ActionBack, nil)
}

func (s *registrationService) SelectCollector(ctx context.Context, id, collectorID string) (*model.Registration, error) {
	collectorID = sanitizer.TrimAndNormalize(collectorID)
	return s.transition(ctx, id, ActionSelect, func(reg *model.Registration) error {
		if _, err := s.slots.Collector(collectorID); err != nil {
			return apperrors.Validation("Please choose a data collector", map[string]any{"collector_id": "unknown collector"})
		}
		if reg.CollectorID != collectorID {
			reg.ClearSelection()
		}
		reg.CollectorID = collectorID
		return nil
	})
}

func (s *registrationService) SelectDate(ctx context.Context, id, date string) (*model.Registration, error) {
	date = sanitizer.TrimAndNormalize(date)
	return s.transition(ctx, id, ActionSelect, func(reg *model.Registration) error {
		if reg.CollectorID == "" {
			return apperrors.Validation("Please choose a data collector first", map[string]any{"collector_id": "required"})
		}
		open, err := s.isOpenDate(ctx, reg.CollectorID, date)
		if err != nil {
			return err
		}
		if !open {
			return apperrors.Validation("That date is not available", map[string]any{"date": "not an open date for this collector"})
		}
		if reg.Date != date {
			reg.Time = ""
		}
		reg.Date = date
		return nil
	})
}

func (s *registrationService) SelectTime(ctx context.Context, id, timeLabel string) (*model.Registration, error) {
	timeLabel = sanitizer.NormalizeTimeLabel(timeLabel)
	return s.transition(ctx, id, ActionSelect, func(reg *model.Registration) error {
		if reg.CollectorID == "" || reg.Date == "" {
			return apperrors.Validation("Please choose a date first", map[string]any{"date": "required"})
		}
		ok, err := s.slots.HasSlot(ctx, reg.CollectorID, reg.Date, timeLabel)
		if err != nil {
			return s.readError(err)
		}
		if !ok {
			return apperrors.Validation("That time is not available", map[string]any{"time": "not offered on this date"})
		}
		reg.Time = timeLabel
		return nil
	})
}

// Review re-checks the whole selection against the live calendar, since it
// may have changed since each piece was chosen.
func (s *registrationService) Review(ctx context.Context, id string) (*model.Registration, error) {
	return s.transition(ctx, id, ActionReview, func(reg *model.Registration) error {
		fields := map[string]any{}
		if reg.CollectorID == "" {
			fields["collector_id"] = "required"
		}
		if reg.Date == "" {
			fields["date"] = "required"
		}
		if reg.Time == "" {
			fields["time"] = "required"
		}
		if len(fields) > 0 {
			return apperrors.Validation("Please choose a collector, date and time", fields)
		}

		open, err := s.isOpenDate(ctx, reg.CollectorID, reg.Date)
		if err != nil {
			return err
		}
		if !open {
			return apperrors.Validation("That date is no longer available", map[string]any{"date": "not an open date for this collector"})
		}
		ok, err := s.slots.HasSlot(ctx, reg.CollectorID, reg.Date, reg.Time)
		if err != nil {
			return s.readError(err)
		}
		if !ok {
			return apperrors.Validation("That time is no longer available", map[string]any{"time": "not offered on this date"})
		}
		return nil
	})
}

func (s *registrationService) Confirm(ctx context.Context, id string) (*model.Registration, error) {
	var event *model.BookingConfirmedEvent

	reg, err := s.repo.Update(ctx, id, func(reg *model.Registration) error {
		// a repeated confirm returns the booking already made
		if reg.Step == model.StepConfirmed && reg.Booking != nil {
			return nil
		}
		if _, err := next(reg.Step, ActionConfirm); err != nil {
			return err
		}
		if reg.Profile == nil {
			return apperrors.Validation("Profile is missing", map[string]any{"profile": "required"})
		}

		collector, err := s.slots.Collector(reg.CollectorID)
		if err != nil {
			return err
		}

		draft := model.NewBooking(*reg.Profile, collector, reg.Date, reg.Time)
		booking, err := s.ledger.Append(ctx, &draft)
		if err != nil {
			return s.refuse(ctx, reg, err)
		}

		reg.Booking = booking
		reg.Step = model.StepConfirmed
		reg.UpdatedAt = s.now().UTC()
		event = &model.BookingConfirmedEvent{
			EventID:   uuid.NewString(),
			Booking:   *booking,
			Collector: collector,
			CreatedAt: reg.UpdatedAt,
		}
		return nil
	})
	if err != nil {
		if reg == nil {
			return nil, s.sessionError(id, err)
		}
		return reg, err
	}

	// after the commit, outside the session lock
	if event != nil {
		s.dispatcher.Dispatch(*event)
		s.cfg.Log.Info("Registration confirmed",
			"registration_id", reg.ID,
			"booking_id", event.Booking.ID,
			"collector_id", event.Booking.CollectorID,
		)
	}
	return reg, nil
}

// refuse applies the step change a failed append calls for.
func (s *registrationService) refuse(ctx context.Context, reg *model.Registration, err error) error {
	if !apperrors.HasCode(err, apperrors.CodeStaleSlot) {
		s.cfg.Log.Warn("Confirmation refused",
			"registration_id", reg.ID,
			"collector_id", reg.CollectorID,
			"error", err,
		)
		return err
	}

	s.cfg.Log.Warn("Selected slot went stale, returning to scheduling",
		"registration_id", reg.ID,
		"collector_id", reg.CollectorID,
		"date", reg.Date,
		"time", reg.Time,
	)
	reg.Step = model.StepScheduling
	reg.Time = ""
	if open, openErr := s.isOpenDate(ctx, reg.CollectorID, reg.Date); openErr != nil || !open {
		reg.Date = ""
	}
	reg.UpdatedAt = s.now().UTC()
	return err
}

// transition checks the action against the flow, runs guard, and moves the
// step only when guard passes. guard may be nil.
func (s *registrationService) transition(ctx context.Context, id string, action Action, guard func(reg *model.Registration) error) (*model.Registration, error) {
	reg, err := s.repo.Update(ctx, id, func(reg *model.Registration) error {
		to, err := next(reg.Step, action)
		if err != nil {
			return err
		}
		if guard != nil {
			if err := guard(reg); err != nil {
				return err
			}
		}
		reg.Step = to
		reg.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		if reg == nil {
			return nil, s.sessionError(id, err)
		}
		s.cfg.Log.Debug("Registration action refused",
			"registration_id", id,
			"action", action,
			"step", reg.Step,
			"error", err,
		)
		return reg, err
	}
	return reg, nil
}

func (s *registrationService) isOpenDate(ctx context.Context, collectorID, date string) (bool, error) {
	dates, err := s.slots.ListOpenDates(ctx, collectorID)
	if err != nil {
		return false, s.readError(err)
	}
	for _, d := range dates {
		if d == date {
			return true, nil
		}
	}
	return false, nil
}

func (s *registrationService) readError(err error) error {
	if apperrors.IsAppError(err) {
		return err
	}
	return apperrors.Internal("Failed to read availability", err)
}

func (s *registrationService) sessionError(id string, err error) error {
	switch {
	case errors.Is(err, registrationerrors.ErrSessionNotFound):
		return apperrors.NotFoundWithID("Registration", id)
	case errors.Is(err, registrationerrors.ErrRegistryClosed):
		return apperrors.Unavailable("Registration")
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Timeout("Registration request timed out")
	case apperrors.IsAppError(err):
		return err
	default:
		return apperrors.Internal("Registration failed", err)
	}
}
