package service

import (
	"context"
	"errors"
	"fmt"
	"slices"

	availabilityerrors "studyreg/internal/availability/errors"
	"studyreg/internal/availability/repository"
	"studyreg/internal/availability/validator"
	"studyreg/pkg/config"
	apperrors "studyreg/pkg/errors"
	"studyreg/pkg/model"
	"studyreg/pkg/sanitizer"
	"studyreg/pkg/validation"
)

// BookingCounter reports confirmed bookings. An empty time label counts
// every booking on the date.
type BookingCounter interface {
	CountFor(ctx context.Context, collectorID string) (int, error)
	CountForSlot(ctx context.Context, collectorID, date, timeLabel string) (int, error)
}

// SlotChange is the outcome of a calendar edit. AffectedBookings counts
// confirmed bookings that reference a date or time the edit removed; those
// bookings are kept as they are.
type SlotChange struct {
	Calendar         *model.Calendar `json:"calendar"`
	Removed          []string        `json:"removed,omitempty"`
	AffectedBookings int             `json:"affected_bookings"`
}

type CapacityChange struct {
	Capacity  model.Capacity `json:"capacity"`
	Requested int            `json:"requested"`
	Clamped   bool           `json:"clamped"`
}

// Snapshot is every calendar and capacity, keyed by collector, as used by
// the admin overview and export.
type Snapshot struct {
	Calendars  map[string]*model.Calendar `json:"calendars"`
	Capacities map[string]model.Capacity  `json:"capacities"`
}

type AvailabilityService interface {
	Roster() model.Roster
	Collector(collectorID string) (model.Collector, error)

	Calendar(ctx context.Context, collectorID string) (*model.Calendar, error)
	ListOpenDates(ctx context.Context, collectorID string) ([]string, error)
	ListTimes(ctx context.Context, collectorID, date string) ([]string, error)
	HasSlot(ctx context.Context, collectorID, date, timeLabel string) (bool, error)

	SetSlots(ctx context.Context, collectorID, date string, times []string) (*SlotChange, error)
	AddDate(ctx context.Context, collectorID, date string) (*SlotChange, error)
	ToggleTime(ctx context.Context, collectorID, date, timeLabel string) (*SlotChange, error)
	RemoveDate(ctx context.Context, collectorID, date string) (*SlotChange, error)

	Capacity(ctx context.Context, collectorID string) (*model.Capacity, error)
	SetCapacity(ctx context.Context, collectorID string, value int) (*CapacityChange, error)
	AdjustCapacity(ctx context.Context, collectorID string, delta int) (*CapacityChange, error)
	Capacities(ctx context.Context) (map[string]model.Capacity, error)

	// Reserve checks capacity and the slot, then counts one more booking.
	// It must run inside the ledger's append transaction.
	Reserve(ctx context.Context, collectorID, date, timeLabel string) (*model.Capacity, error)

	Snapshot(ctx context.Context) (*Snapshot, error)
	Seed(ctx context.Context) error
}

type availabilityService struct {
	repo      repository.AvailabilityRepository
	counter   BookingCounter
	validator *validator.AvailabilityValidator
	cfg       *config.Config
}

func NewAvailabilityService(
	repo repository.AvailabilityRepository,
	counter BookingCounter,
	validator *validator.AvailabilityValidator,
	cfg *config.Config,
) AvailabilityService {
	return &availabilityService{
		repo:      repo,
		counter:   counter,
		validator: validator,
		cfg:       cfg,
	}
}

func (s *availabilityService) Roster() model.Roster {
	return s.cfg.Roster
}

func (s *availabilityService) Collector(collectorID string) (model.Collector, error) {
	c, ok := s.cfg.Roster.Find(collectorID)
	if !ok {
		return model.Collector{}, apperrors.NotFoundWithID("Collector", collectorID)
	}
	return c, nil
}

func (s *availabilityService) Calendar(ctx context.Context, collectorID string) (*model.Calendar, error) {
	if _, err := s.Collector(collectorID); err != nil {
		return nil, err
	}
	cal, err := s.loadCalendar(ctx, collectorID)
	if err != nil {
		return nil, apperrors.Internal("Failed to load availability", err)
	}
	return cal, nil
}

func (s *availabilityService) ListOpenDates(ctx context.Context, collectorID string) ([]string, error) {
	cal, err := s.Calendar(ctx, collectorID)
	if err != nil {
		return nil, err
	}
	return cal.OpenDates(), nil
}

func (s *availabilityService) ListTimes(ctx context.Context, collectorID, date string) ([]string, error) {
	cal, err := s.Calendar(ctx, collectorID)
	if err != nil {
		return nil, err
	}
	times := cal.Times(date)
	if times == nil {
		times = []string{}
	}
	return times, nil
}

func (s *availabilityService) HasSlot(ctx context.Context, collectorID, date, timeLabel string) (bool, error) {
	cal, err := s.Calendar(ctx, collectorID)
	if err != nil {
		return false, err
	}
	return cal.Has(date, timeLabel), nil
}

func (s *availabilityService) SetSlots(ctx context.Context, collectorID, date string, times []string) (*SlotChange, error) {
	in := &validator.SlotsInput{
		Date:  sanitizer.TrimAndNormalize(date),
		Times: sanitizer.NormalizeTimeLabels(times),
	}
	if err := s.validator.ValidateSlots(in); err != nil {
		return nil, s.validationError("Invalid availability", err)
	}

	return s.editCalendar(ctx, collectorID, func(cal *model.Calendar) {
		cal.Dates[in.Date] = model.SortTimes(in.Times)
	})
}

// AddDate adds a date with no times. An existing date is left untouched.
func (s *availabilityService) AddDate(ctx context.Context, collectorID, date string) (*SlotChange, error) {
	date = sanitizer.TrimAndNormalize(date)
	if err := s.validator.ValidateDate(date); err != nil {
		return nil, s.validationError("Invalid date", err)
	}

	return s.editCalendar(ctx, collectorID, func(cal *model.Calendar) {
		if _, ok := cal.Dates[date]; !ok {
			cal.Dates[date] = []string{}
		}
	})
}

func (s *availabilityService) ToggleTime(ctx context.Context, collectorID, date, timeLabel string) (*SlotChange, error) {
	in := &validator.TimeInput{
		Date: sanitizer.TrimAndNormalize(date),
		Time: sanitizer.NormalizeTimeLabel(timeLabel),
	}
	if err := s.validator.ValidateTime(in); err != nil {
		return nil, s.validationError("Invalid session time", err)
	}

	return s.editCalendar(ctx, collectorID, func(cal *model.Calendar) {
		times := cal.Dates[in.Date]
		if slices.Contains(times, in.Time) {
			cal.Dates[in.Date] = slices.DeleteFunc(slices.Clone(times), func(t string) bool { return t == in.Time })
			return
		}
		cal.Dates[in.Date] = model.SortTimes(append(slices.Clone(times), in.Time))
	})
}

func (s *availabilityService) RemoveDate(ctx context.Context, collectorID, date string) (*SlotChange, error) {
	date = sanitizer.TrimAndNormalize(date)
	if err := s.validator.ValidateDate(date); err != nil {
		return nil, s.validationError("Invalid date", err)
	}

	return s.editCalendar(ctx, collectorID, func(cal *model.Calendar) {
		delete(cal.Dates, date)
	})
}

// editCalendar applies edit in a read-modify-write transaction and reports
// what it removed.
func (s *availabilityService) editCalendar(ctx context.Context, collectorID string, edit func(cal *model.Calendar)) (*SlotChange, error) {
	if _, err := s.Collector(collectorID); err != nil {
		return nil, err
	}

	var before, after *model.Calendar
	err := s.repo.ExecuteTransaction(ctx, func(ctx context.Context) error {
		cal, err := s.loadCalendar(ctx, collectorID)
		if err != nil {
			return err
		}
		before = &model.Calendar{CollectorID: cal.CollectorID, Dates: cloneDates(cal.Dates)}
		edit(cal)
		if cal.Dates == nil {
			cal.Dates = map[string][]string{}
		}
		if err := s.repo.SaveCalendar(ctx, cal); err != nil {
			return err
		}
		after = cal
		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Failed to update availability", "collector_id", collectorID, "error", err)
		return nil, apperrors.Internal("Failed to update availability", err)
	}

	change := &SlotChange{Calendar: after}
	affected, removed, err := s.affectedBookings(ctx, collectorID, before, after)
	if err != nil {
		s.cfg.Log.Warn("Failed to count bookings on removed slots", "collector_id", collectorID, "error", err)
	}
	change.Removed = removed
	change.AffectedBookings = affected

	if affected > 0 {
		s.cfg.Log.Warn("Removed availability that already has confirmed bookings",
			"collector_id", collectorID,
			"removed", removed,
			"affected_bookings", affected,
		)
	}
	s.cfg.Log.Info("Availability updated",
		"collector_id", collectorID,
		"dates", len(after.Dates),
		"slots", after.SlotCount(),
	)
	return change, nil
}

// affectedBookings counts bookings on dates and times present in before but
// not in after. Removed entries are "date" for a whole date or "date time".
func (s *availabilityService) affectedBookings(ctx context.Context, collectorID string, before, after *model.Calendar) (int, []string, error) {
	var removed []string
	total := 0
	for _, date := range before.AllDates() {
		afterTimes, kept := after.Dates[date]
		if !kept {
			removed = append(removed, date)
			n, err := s.counter.CountForSlot(ctx, collectorID, date, "")
			if err != nil {
				return total, removed, err
			}
			total += n
			continue
		}
		for _, t := range before.Dates[date] {
			if slices.Contains(afterTimes, t) {
				continue
			}
			removed = append(removed, date+" "+t)
			n, err := s.counter.CountForSlot(ctx, collectorID, date, t)
			if err != nil {
				return total, removed, err
			}
			total += n
		}
	}
	return total, removed, nil
}

func (s *availabilityService) Capacity(ctx context.Context, collectorID string) (*model.Capacity, error) {
	if _, err := s.Collector(collectorID); err != nil {
		return nil, err
	}
	c, err := s.loadCapacity(ctx, collectorID)
	if err != nil {
		return nil, apperrors.Internal("Failed to load capacity", err)
	}
	return c, nil
}

// SetCapacity never lowers the ceiling below the confirmed-booking count or
// zero; such requests are clamped, not refused.
func (s *availabilityService) SetCapacity(ctx context.Context, collectorID string, value int) (*CapacityChange, error) {
	return s.changeCapacity(ctx, collectorID, func(*model.Capacity) int { return value })
}

// AdjustCapacity moves the ceiling by delta, with the same clamp as
// SetCapacity. Delta is bounded so the sum cannot wrap.
func (s *availabilityService) AdjustCapacity(ctx context.Context, collectorID string, delta int) (*CapacityChange, error) {
	if err := s.validator.ValidateAdjust(&validator.AdjustInput{Delta: delta}); err != nil {
		return nil, s.validationError("Invalid capacity adjustment", err)
	}
	return s.changeCapacity(ctx, collectorID, func(c *model.Capacity) int { return c.Ceiling + delta })
}

func (s *availabilityService) changeCapacity(ctx context.Context, collectorID string, requested func(*model.Capacity) int) (*CapacityChange, error) {
	if _, err := s.Collector(collectorID); err != nil {
		return nil, err
	}

	change := &CapacityChange{}
	err := s.repo.ExecuteTransaction(ctx, func(ctx context.Context) error {
		c, err := s.loadCapacity(ctx, collectorID)
		if err != nil {
			return err
		}
		change.Requested = requested(c)
		c.Ceiling = sanitizer.ClampCapacity(change.Requested, c.Booked)
		change.Clamped = c.Ceiling != change.Requested
		if err := s.repo.SaveCapacity(ctx, c); err != nil {
			return err
		}
		change.Capacity = *c
		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Failed to update capacity", "collector_id", collectorID, "error", err)
		return nil, apperrors.Internal("Failed to update capacity", err)
	}

	if change.Clamped {
		s.cfg.Log.Warn("Capacity request clamped",
			"collector_id", collectorID,
			"requested", change.Requested,
			"capacity", change.Capacity.Ceiling,
			"booked", change.Capacity.Booked,
		)
	}
	s.cfg.Log.Info("Capacity updated", "collector_id", collectorID, "capacity", change.Capacity.Ceiling)
	return change, nil
}

func (s *availabilityService) Reserve(ctx context.Context, collectorID, date, timeLabel string) (*model.Capacity, error) {
	if _, err := s.Collector(collectorID); err != nil {
		return nil, err
	}

	var reserved *model.Capacity
	err := s.repo.ExecuteTransaction(ctx, func(ctx context.Context) error {
		c, err := s.loadCapacity(ctx, collectorID)
		if err != nil {
			return apperrors.Internal("Failed to load capacity", err)
		}
		if c.Booked >= c.Ceiling {
			return apperrors.CapacityExceeded(collectorID, c.Booked, c.Ceiling)
		}

		cal, err := s.loadCalendar(ctx, collectorID)
		if err != nil {
			return apperrors.Internal("Failed to load availability", err)
		}
		if !cal.Has(date, timeLabel) {
			return apperrors.StaleSlot(collectorID, date, timeLabel)
		}

		c.Booked++
		if err := s.repo.SaveCapacity(ctx, c); err != nil {
			return apperrors.Internal("Failed to update capacity", err)
		}
		reserved = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reserved, nil
}

func (s *availabilityService) Capacities(ctx context.Context) (map[string]model.Capacity, error) {
	out := make(map[string]model.Capacity, len(s.cfg.Roster))
	for _, c := range s.cfg.Roster {
		capacity, err := s.loadCapacity(ctx, c.ID)
		if err != nil {
			return nil, apperrors.Internal("Failed to load capacity", err)
		}
		out[c.ID] = *capacity
	}
	return out, nil
}

func (s *availabilityService) Snapshot(ctx context.Context) (*Snapshot, error) {
	capacities, err := s.Capacities(ctx)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{
		Calendars:  make(map[string]*model.Calendar, len(s.cfg.Roster)),
		Capacities: capacities,
	}
	for _, c := range s.cfg.Roster {
		cal, err := s.loadCalendar(ctx, c.ID)
		if err != nil {
			return nil, apperrors.Internal("Failed to load availability", err)
		}
		snap.Calendars[c.ID] = cal
	}
	return snap, nil
}

// Seed writes default calendars and capacities for collectors that have
// none, and resets every booked counter to the ledger's count.
func (s *availabilityService) Seed(ctx context.Context) error {
	calendars := model.DefaultCalendars()
	ceilings := model.DefaultCeilings()

	for _, c := range s.cfg.Roster {
		err := s.repo.ExecuteTransaction(ctx, func(ctx context.Context) error {
			if _, err := s.repo.FindCalendar(ctx, c.ID); errors.Is(err, availabilityerrors.ErrCalendarNotFound) {
				cal := model.NewCalendar(c.ID)
				for date, times := range calendars[c.ID] {
					cal.Dates[date] = model.SortTimes(times)
				}
				if err := s.repo.SaveCalendar(ctx, cal); err != nil {
					return err
				}
			} else if err != nil {
				return err
			}

			booked, err := s.counter.CountFor(ctx, c.ID)
			if err != nil {
				return err
			}
			capacity, err := s.repo.FindCapacity(ctx, c.ID)
			switch {
			case errors.Is(err, availabilityerrors.ErrCapacityNotFound):
				ceiling, ok := ceilings[c.ID]
				if !ok {
					ceiling = s.cfg.DefaultCapacity
				}
				capacity = &model.Capacity{CollectorID: c.ID, Ceiling: ceiling}
			case err != nil:
				return err
			case capacity.Booked == booked:
				return nil
			default:
				s.cfg.Log.Warn("Booked counter out of step with ledger, resetting",
					"collector_id", c.ID,
					"counter", capacity.Booked,
					"ledger", booked,
				)
			}
			capacity.Booked = booked
			capacity.Ceiling = sanitizer.ClampCapacity(capacity.Ceiling, booked)
			return s.repo.SaveCapacity(ctx, capacity)
		})
		if err != nil {
			return fmt.Errorf("seed collector %s: %w", c.ID, err)
		}
	}

	s.cfg.Log.Info("Availability seeded", "collectors", len(s.cfg.Roster))
	return nil
}

// --- Helpers ---

func (s *availabilityService) loadCalendar(ctx context.Context, collectorID string) (*model.Calendar, error) {
	cal, err := s.repo.FindCalendar(ctx, collectorID)
	if errors.Is(err, availabilityerrors.ErrCalendarNotFound) {
		return model.NewCalendar(collectorID), nil
	}
	return cal, err
}

// loadCapacity falls back to the default ceiling and a ledger count when the
// collector has no capacity document yet.
func (s *availabilityService) loadCapacity(ctx context.Context, collectorID string) (*model.Capacity, error) {
	c, err := s.repo.FindCapacity(ctx, collectorID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, availabilityerrors.ErrCapacityNotFound) {
		return nil, err
	}

	booked, err := s.counter.CountFor(ctx, collectorID)
	if err != nil {
		return nil, err
	}
	ceiling, ok := model.DefaultCeilings()[collectorID]
	if !ok {
		ceiling = s.cfg.DefaultCapacity
	}
	return &model.Capacity{CollectorID: collectorID, Ceiling: max(ceiling, booked), Booked: booked}, nil
}

func (s *availabilityService) validationError(msg string, err error) error {
	var verrs validation.ValidationErrors
	if errors.As(err, &verrs) {
		s.cfg.Log.Warn(msg, "error", err)
		return apperrors.Validation(msg, verrs.Fields())
	}
	return apperrors.Validation(msg, map[string]any{"error": err.Error()})
}

func cloneDates(dates map[string][]string) map[string][]string {
	out := make(map[string][]string, len(dates))
	for d, times := range dates {
		out[d] = slices.Clone(times)
	}
	return out
}
