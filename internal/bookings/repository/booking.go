package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingserrors "studyreg/internal/bookings/errors"
	"studyreg/pkg/config"
	"studyreg/pkg/model"
	"studyreg/pkg/store"
)

const fieldCollectorID = "collector_id"

// BookingRepository is append-only: there is no update or delete.
type BookingRepository interface {
	Insert(ctx context.Context, booking *model.Booking) error
	FindByID(ctx context.Context, id string) (*model.Booking, error)
	All(ctx context.Context) ([]model.Booking, error)
	ListFor(ctx context.Context, collectorID string) ([]model.Booking, error)
	CountFor(ctx context.Context, collectorID string) (int, error)
	CountForSlot(ctx context.Context, collectorID, date, timeLabel string) (int, error)
	Subscribe(ctx context.Context) (*store.Subscription, error)
	ExecuteTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type storeBookingRepository struct {
	cfg   *config.Config
	store store.Store
}

func NewStoreBookingRepository(cfg *config.Config, s store.Store) BookingRepository {
	return &storeBookingRepository{cfg: cfg, store: s}
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func (r *storeBookingRepository) Insert(ctx context.Context, booking *model.Booking) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	id, err := r.store.Add(ctx, store.CollectionBookings, booking)
	if err != nil {
		if booking.ID != "" && r.exists(ctx, booking.ID) {
			return bookingserrors.ErrDuplicateID
		}
		return fmt.Errorf("insert booking: %w", err)
	}
	booking.ID = id
	return nil
}

func (r *storeBookingRepository) exists(ctx context.Context, id string) bool {
	var b model.Booking
	return r.store.Get(ctx, store.CollectionBookings, id, &b) == nil
}

func (r *storeBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var b model.Booking
	if err := r.store.Get(ctx, store.CollectionBookings, id, &b); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, bookingserrors.ErrNotFound
		}
		return nil, fmt.Errorf("find booking %s: %w", id, err)
	}
	return &b, nil
}

func (r *storeBookingRepository) All(ctx context.Context) ([]model.Booking, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	bookings := []model.Booking{}
	if err := r.store.List(ctx, store.CollectionBookings, &bookings); err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return bookings, nil
}

func (r *storeBookingRepository) ListFor(ctx context.Context, collectorID string) ([]model.Booking, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	bookings := []model.Booking{}
	if err := r.store.ListBy(ctx, store.CollectionBookings, fieldCollectorID, collectorID, &bookings); err != nil {
		return nil, fmt.Errorf("list bookings for %s: %w", collectorID, err)
	}
	return bookings, nil
}

func (r *storeBookingRepository) CountFor(ctx context.Context, collectorID string) (int, error) {
	bookings, err := r.ListFor(ctx, collectorID)
	if err != nil {
		return 0, err
	}
	return len(bookings), nil
}

// CountForSlot counts bookings on date, or on date at timeLabel when it is
// not empty.
func (r *storeBookingRepository) CountForSlot(ctx context.Context, collectorID, date, timeLabel string) (int, error) {
	bookings, err := r.ListFor(ctx, collectorID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, b := range bookings {
		if b.Date == date && (timeLabel == "" || b.Time == timeLabel) {
			n++
		}
	}
	return n, nil
}

func (r *storeBookingRepository) Subscribe(ctx context.Context) (*store.Subscription, error) {
	return r.store.Subscribe(ctx, store.CollectionBookings)
}

func (r *storeBookingRepository) ExecuteTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.store.Transact(ctx, fn)
}
