package service

import (
	"context"
	"errors"
	"time"

	bookingserrors "studyreg/internal/bookings/errors"
	"studyreg/internal/bookings/repository"
	"studyreg/internal/bookings/validator"
	"studyreg/pkg/config"
	apperrors "studyreg/pkg/errors"
	"studyreg/pkg/model"
	"studyreg/pkg/sanitizer"
	"studyreg/pkg/store"
	"studyreg/pkg/validation"

	"github.com/google/uuid"
)

// SlotReserver is the availability side of an append: it checks the
// collector's capacity and calendar and counts the booking.
type SlotReserver interface {
	Collector(collectorID string) (model.Collector, error)
	Reserve(ctx context.Context, collectorID, date, timeLabel string) (*model.Capacity, error)
}

type BookingService interface {
	// Append confirms a booking. The capacity check, the slot check and the
	// insert commit together or not at all.
	Append(ctx context.Context, booking *model.Booking) (*model.Booking, error)
	GetByID(ctx context.Context, id string) (*model.Booking, error)
	All(ctx context.Context) ([]model.Booking, error)
	ListFor(ctx context.Context, collectorID string) ([]model.Booking, error)
	CountFor(ctx context.Context, collectorID string) (int, error)
	Watch(ctx context.Context) (*Feed, error)
}

type bookingService struct {
	repo      repository.BookingRepository
	slots     SlotReserver
	validator *validator.BookingValidator
	cfg       *config.Config
	now       func() time.Time
}

func NewBookingService(
	repo repository.BookingRepository,
	slots SlotReserver,
	validator *validator.BookingValidator,
	cfg *config.Config,
) BookingService {
	return &bookingService{
		repo:      repo,
		slots:     slots,
		validator: validator,
		cfg:       cfg,
		now:       time.Now,
	}
}

func (s *bookingService) Append(ctx context.Context, booking *model.Booking) (*model.Booking, error) {
	collector, err := s.slots.Collector(booking.CollectorID)
	if err != nil {
		return nil, err
	}

	b := *booking
	b.ID = ""
	s.sanitize(&b)
	b.CollectorName = collector.Name
	b.CollectorEmail = collector.Email
	b.Name = b.Profile().FullName()

	if err := s.validate(&b); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	err = s.repo.ExecuteTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.slots.Reserve(ctx, b.CollectorID, b.Date, b.Time); err != nil {
			return err
		}

		b.ID = uuid.NewString()
		b.RegisteredAt = s.now().UTC().Truncate(time.Millisecond)
		if err := s.repo.Insert(ctx, &b); err != nil {
			if errors.Is(err, bookingserrors.ErrDuplicateID) {
				return apperrors.Conflict("Booking already exists")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, s.appendError(ctx, &b, err)
	}

	s.cfg.Log.Info("Booking confirmed",
		"booking_id", b.ID,
		"collector_id", b.CollectorID,
		"date", b.Date,
		"time", b.Time,
	)
	return &b, nil
}

func (s *bookingService) appendError(ctx context.Context, b *model.Booking, err error) error {
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		s.cfg.Log.Warn("Booking refused",
			"collector_id", b.CollectorID,
			"date", b.Date,
			"time", b.Time,
			"error_code", appErr.Code,
		)
		return appErr
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		s.cfg.Log.Error("Booking confirmation timed out", "collector_id", b.CollectorID, "error", err)
		return apperrors.Timeout("Booking confirmation timed out, please try again")
	case errors.Is(err, store.ErrUnavailable):
		s.cfg.Log.Error("Booking store unavailable", "collector_id", b.CollectorID, "error", err)
		return apperrors.Unavailable("Booking store")
	default:
		s.cfg.Log.Error("Failed to append booking", "collector_id", b.CollectorID, "error", err)
		return apperrors.Internal("Failed to confirm booking", err)
	}
}

func (s *bookingService) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	b, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Booking", id)
		}
		return nil, apperrors.Internal("Failed to load booking", err)
	}
	return b, nil
}

func (s *bookingService) All(ctx context.Context) ([]model.Booking, error) {
	bookings, err := s.repo.All(ctx)
	if err != nil {
		s.cfg.Log.Error("Failed to list bookings", "error", err)
		return nil, apperrors.Internal("Failed to list bookings", err)
	}
	return bookings, nil
}

func (s *bookingService) ListFor(ctx context.Context, collectorID string) ([]model.Booking, error) {
	if _, err := s.slots.Collector(collectorID); err != nil {
		return nil, err
	}
	bookings, err := s.repo.ListFor(ctx, collectorID)
	if err != nil {
		s.cfg.Log.Error("Failed to list bookings", "collector_id", collectorID, "error", err)
		return nil, apperrors.Internal("Failed to list bookings", err)
	}
	return bookings, nil
}

func (s *bookingService) CountFor(ctx context.Context, collectorID string) (int, error) {
	n, err := s.repo.CountFor(ctx, collectorID)
	if err != nil {
		return 0, apperrors.Internal("Failed to count bookings", err)
	}
	return n, nil
}

// Watch opens a feed of ledger snapshots, newest booking first. The first
// snapshot is the ledger as of the call.
func (s *bookingService) Watch(ctx context.Context) (*Feed, error) {
	sub, err := s.repo.Subscribe(ctx)
	if err != nil {
		s.cfg.Log.Error("Failed to watch bookings", "error", err)
		return nil, apperrors.Unavailable("Booking feed")
	}
	return &Feed{sub: sub}, nil
}

func (s *bookingService) sanitize(b *model.Booking) {
	b.FirstName = sanitizer.NormalizeName(b.FirstName)
	b.LastName = sanitizer.NormalizeName(b.LastName)
	b.Email = sanitizer.NormalizeEmail(b.Email)
	b.Level = sanitizer.NormalizeLevel(b.Level, model.AcademicLevels)
	b.Major = sanitizer.TrimAndNormalize(b.Major)
	b.Phone = sanitizer.NormalizePhone(b.Phone)
	b.CollectorID = sanitizer.TrimAndNormalize(b.CollectorID)
	b.Date = sanitizer.TrimAndNormalize(b.Date)
	b.Time = sanitizer.NormalizeTimeLabel(b.Time)
}

func (s *bookingService) validate(b *model.Booking) error {
	if err := s.validator.Validate(b); err != nil {
		var verrs validation.ValidationErrors
		if errors.As(err, &verrs) {
			s.cfg.Log.Warn("Booking validation failed", "error", err)
			return apperrors.Validation("Invalid booking", verrs.Fields())
		}
		return apperrors.Validation("Invalid booking", map[string]any{"error": err.Error()})
	}
	return nil
}

// Feed delivers ledger snapshots. A slow reader skips to the newest one.
type Feed struct {
	sub *store.Subscription
}

// Next blocks until the next snapshot, ctx is done or the feed closes.
func (f *Feed) Next(ctx context.Context) ([]model.Booking, error) {
	select {
	case snap, ok := <-f.sub.C:
		if !ok {
			return nil, bookingserrors.ErrFeedClosed
		}
		bookings := []model.Booking{}
		if err := snap.Decode(&bookings); err != nil {
			return nil, err
		}
		return bookings, nil
	case <-f.sub.Done():
		return nil, bookingserrors.ErrFeedClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *Feed) Close() {
	f.sub.Close()
}
