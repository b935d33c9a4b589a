package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	availabilityerrors "studyreg/internal/availability/errors"
	"studyreg/pkg/config"
	"studyreg/pkg/model"
	"studyreg/pkg/store"
)

type AvailabilityRepository interface {
	FindCalendar(ctx context.Context, collectorID string) (*model.Calendar, error)
	SaveCalendar(ctx context.Context, calendar *model.Calendar) error
	ListCalendars(ctx context.Context) ([]model.Calendar, error)
	FindCapacity(ctx context.Context, collectorID string) (*model.Capacity, error)
	SaveCapacity(ctx context.Context, capacity *model.Capacity) error
	ListCapacities(ctx context.Context) ([]model.Capacity, error)
	ExecuteTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type storeAvailabilityRepository struct {
	cfg   *config.Config
	store store.Store
}

func NewStoreAvailabilityRepository(cfg *config.Config, s store.Store) AvailabilityRepository {
	return &storeAvailabilityRepository{cfg: cfg, store: s}
}

// withTimeout applies timeout unless ctx already carries an earlier deadline.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func (r *storeAvailabilityRepository) FindCalendar(ctx context.Context, collectorID string) (*model.Calendar, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var cal model.Calendar
	if err := r.store.Get(ctx, store.CollectionAvailability, collectorID, &cal); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, availabilityerrors.ErrCalendarNotFound
		}
		return nil, fmt.Errorf("find calendar %s: %w", collectorID, err)
	}
	if cal.Dates == nil {
		cal.Dates = map[string][]string{}
	}
	return &cal, nil
}

func (r *storeAvailabilityRepository) SaveCalendar(ctx context.Context, calendar *model.Calendar) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	calendar.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)
	if err := r.store.Set(ctx, store.CollectionAvailability, calendar.CollectorID, calendar); err != nil {
		return fmt.Errorf("save calendar %s: %w", calendar.CollectorID, err)
	}
	return nil
}

func (r *storeAvailabilityRepository) ListCalendars(ctx context.Context) ([]model.Calendar, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var calendars []model.Calendar
	if err := r.store.List(ctx, store.CollectionAvailability, &calendars); err != nil {
		return nil, fmt.Errorf("list calendars: %w", err)
	}
	for i := range calendars {
		if calendars[i].Dates == nil {
			calendars[i].Dates = map[string][]string{}
		}
	}
	return calendars, nil
}

func (r *storeAvailabilityRepository) FindCapacity(ctx context.Context, collectorID string) (*model.Capacity, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var c model.Capacity
	if err := r.store.Get(ctx, store.CollectionCapacity, collectorID, &c); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, availabilityerrors.ErrCapacityNotFound
		}
		return nil, fmt.Errorf("find capacity %s: %w", collectorID, err)
	}
	return &c, nil
}

func (r *storeAvailabilityRepository) SaveCapacity(ctx context.Context, capacity *model.Capacity) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	capacity.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)
	if err := r.store.Set(ctx, store.CollectionCapacity, capacity.CollectorID, capacity); err != nil {
		return fmt.Errorf("save capacity %s: %w", capacity.CollectorID, err)
	}
	return nil
}

func (r *storeAvailabilityRepository) ListCapacities(ctx context.Context) ([]model.Capacity, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var capacities []model.Capacity
	if err := r.store.List(ctx, store.CollectionCapacity, &capacities); err != nil {
		return nil, fmt.Errorf("list capacities: %w", err)
	}
	return capacities, nil
}

func (r *storeAvailabilityRepository) ExecuteTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.store.Transact(ctx, fn)
}
