package service

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"studyreg/internal/availability/repository"
	"studyreg/internal/availability/validator"
	"studyreg/pkg/config"
	apperrors "studyreg/pkg/errors"
	"studyreg/pkg/logger"
	"studyreg/pkg/model"
	"studyreg/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCounter stands in for the booking ledger.
type fakeCounter struct {
	mu    sync.Mutex
	total map[string]int
	slots map[string]int
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{total: map[string]int{}, slots: map[string]int{}}
}

func (f *fakeCounter) book(collectorID, date, timeLabel string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.total[collectorID]++
	f.slots[collectorID+"|"+date+"|"+timeLabel]++
	f.slots[collectorID+"|"+date+"|"]++
}

func (f *fakeCounter) CountFor(_ context.Context, collectorID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.total[collectorID], nil
}

func (f *fakeCounter) CountForSlot(_ context.Context, collectorID, date, timeLabel string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.slots[collectorID+"|"+date+"|"+timeLabel], nil
}

func newTestService(t *testing.T) (AvailabilityService, *fakeCounter, store.Store) {
	t.Helper()
	log := logger.Discard()
	cfg := &config.Config{
		Log:             log,
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
		DefaultCapacity: 20,
		Roster: model.Roster{
			{ID: "c1", Name: "Casey One", Code: "1111"},
			{ID: "c2", Name: "Drew Two", Code: "2222"},
		},
	}
	s := store.NewMemory()
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	counter := newFakeCounter()
	svc := NewAvailabilityService(
		repository.NewStoreAvailabilityRepository(cfg, s),
		counter,
		validator.NewAvailabilityValidator(log),
		cfg,
	)
	return svc, counter, s
}

func TestToggleTime_EmptyDateThenToggle(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddDate(ctx, "c1", "2026-04-01")
	require.NoError(t, err)

	times, err := svc.ListTimes(ctx, "c1", "2026-04-01")
	require.NoError(t, err)
	assert.Empty(t, times)

	dates, err := svc.ListOpenDates(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, dates, "a date with no times is not open")

	_, err = svc.ToggleTime(ctx, "c1", "2026-04-01", "2:00 PM")
	require.NoError(t, err)
	times, err = svc.ListTimes(ctx, "c1", "2026-04-01")
	require.NoError(t, err)
	assert.Equal(t, []string{"2:00 PM"}, times)

	_, err = svc.ToggleTime(ctx, "c1", "2026-04-01", "2:00 PM")
	require.NoError(t, err)
	times, err = svc.ListTimes(ctx, "c1", "2026-04-01")
	require.NoError(t, err)
	assert.Equal(t, []string{}, times)

	cal, err := svc.Calendar(ctx, "c1")
	require.NoError(t, err)
	assert.Contains(t, cal.Dates, "2026-04-01", "toggling off the last time keeps the date")
}

func TestAddDate_KeepsExistingTimes(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SetSlots(ctx, "c1", "2026-04-01", []string{"9:00 AM"})
	require.NoError(t, err)
	_, err = svc.AddDate(ctx, "c1", "2026-04-01")
	require.NoError(t, err)

	times, err := svc.ListTimes(ctx, "c1", "2026-04-01")
	require.NoError(t, err)
	assert.Equal(t, []string{"9:00 AM"}, times)
}

func TestSetSlots_SortsAndDedupes(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SetSlots(ctx, "c1", "2026-03-02", []string{"2:00 PM", " 9:00 am", "10:00 AM", "2:00 PM"})
	require.NoError(t, err)

	times, err := svc.ListTimes(ctx, "c1", "2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, []string{"9:00 AM", "10:00 AM", "2:00 PM"}, times)
}

func TestSetSlots_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		date  string
		times []string
	}{
		{"bad date", "03/02/2026", []string{"9:00 AM"}},
		{"missing date", "", nil},
		{"off-list time", "2026-03-02", []string{"7:00 AM"}},
		{"garbage time", "2026-03-02", []string{"soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SetSlots(ctx, "c1", tt.date, tt.times)
			assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation), "got %v", err)
		})
	}
}

func TestUnknownCollector(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.SetSlots(context.Background(), "nobody", "2026-03-02", nil)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	_, err = svc.ListOpenDates(context.Background(), "nobody")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestRemoveDate_ReportsAffectedBookings(t *testing.T) {
	svc, counter, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SetSlots(ctx, "c1", "2026-03-02", []string{"9:00 AM", "10:00 AM"})
	require.NoError(t, err)
	counter.book("c1", "2026-03-02", "9:00 AM")
	counter.book("c1", "2026-03-02", "9:00 AM")

	change, err := svc.RemoveDate(ctx, "c1", "2026-03-02")
	require.NoError(t, err, "removal with bookings is allowed")
	assert.Equal(t, 2, change.AffectedBookings)
	assert.Equal(t, []string{"2026-03-02"}, change.Removed)

	dates, err := svc.ListOpenDates(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, dates)
}

func TestToggleTime_ReportsAffectedBookings(t *testing.T) {
	svc, counter, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SetSlots(ctx, "c1", "2026-03-02", []string{"9:00 AM", "10:00 AM"})
	require.NoError(t, err)
	counter.book("c1", "2026-03-02", "10:00 AM")

	change, err := svc.ToggleTime(ctx, "c1", "2026-03-02", "9:00 AM")
	require.NoError(t, err)
	assert.Zero(t, change.AffectedBookings)

	change, err = svc.ToggleTime(ctx, "c1", "2026-03-02", "10:00 AM")
	require.NoError(t, err)
	assert.Equal(t, 1, change.AffectedBookings)
	assert.Equal(t, []string{"2026-03-02 10:00 AM"}, change.Removed)
}

func TestSetCapacity_ClampsToBooked(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SetSlots(ctx, "c1", "2026-03-02", []string{"9:00 AM", "10:00 AM"})
	require.NoError(t, err)
	change, err := svc.SetCapacity(ctx, "c1", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, change.Capacity.Ceiling)
	assert.False(t, change.Clamped)

	_, err = svc.Reserve(ctx, "c1", "2026-03-02", "9:00 AM")
	require.NoError(t, err)
	_, err = svc.Reserve(ctx, "c1", "2026-03-02", "10:00 AM")
	require.NoError(t, err)

	change, err = svc.SetCapacity(ctx, "c1", 1)
	require.NoError(t, err)
	assert.True(t, change.Clamped)
	assert.Equal(t, 1, change.Requested)
	assert.Equal(t, 2, change.Capacity.Ceiling)

	change, err = svc.SetCapacity(ctx, "c1", 2)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, change.Capacity.Ceiling, 2)
}

func TestAdjustCapacity(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SetCapacity(ctx, "c2", 5)
	require.NoError(t, err)

	change, err := svc.AdjustCapacity(ctx, "c2", 1)
	require.NoError(t, err)
	assert.Equal(t, 6, change.Capacity.Ceiling)

	change, err = svc.AdjustCapacity(ctx, "c2", -10)
	require.NoError(t, err)
	assert.Equal(t, 0, change.Capacity.Ceiling, "never below zero")
	assert.True(t, change.Clamped)
}

func TestAdjustCapacity_RejectsOutOfRangeDelta(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SetCapacity(ctx, "c1", 20)
	require.NoError(t, err)

	for _, delta := range []int{math.MaxInt, math.MinInt, 1001, -1001} {
		_, err := svc.AdjustCapacity(ctx, "c1", delta)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation), "delta %d: got %v", delta, err)
	}

	after, err := svc.Capacity(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 20, after.Ceiling)

	change, err := svc.AdjustCapacity(ctx, "c1", 1000)
	require.NoError(t, err)
	assert.Equal(t, 1020, change.Capacity.Ceiling)
}

func TestReserve_CapacityExceeded(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SetSlots(ctx, "c1", "2026-03-02", []string{"9:00 AM", "10:00 AM"})
	require.NoError(t, err)
	_, err = svc.SetCapacity(ctx, "c1", 1)
	require.NoError(t, err)

	c, err := svc.Reserve(ctx, "c1", "2026-03-02", "9:00 AM")
	require.NoError(t, err)
	assert.Equal(t, 1, c.Booked)

	_, err = svc.Reserve(ctx, "c1", "2026-03-02", "10:00 AM")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeCapacityExceeded))

	after, err := svc.Capacity(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, after.Booked)
}

func TestReserve_StaleSlot(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SetSlots(ctx, "c1", "2026-03-02", []string{"9:00 AM"})
	require.NoError(t, err)
	_, err = svc.ToggleTime(ctx, "c1", "2026-03-02", "9:00 AM")
	require.NoError(t, err)

	_, err = svc.Reserve(ctx, "c1", "2026-03-02", "9:00 AM")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeStaleSlot))

	after, err := svc.Capacity(ctx, "c1")
	require.NoError(t, err)
	assert.Zero(t, after.Booked, "a refused reservation leaves the counter alone")
}

func TestReserve_Concurrent(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SetSlots(ctx, "c1", "2026-03-02", []string{"9:00 AM"})
	require.NoError(t, err)
	_, err = svc.SetCapacity(ctx, "c1", 5)
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, full int
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Reserve(ctx, "c1", "2026-03-02", "9:00 AM")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case apperrors.HasCode(err, apperrors.CodeCapacityExceeded):
				full++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, ok)
	assert.Equal(t, 15, full)
}

func TestSeed(t *testing.T) {
	svc, counter, _ := newTestService(t)
	ctx := context.Background()

	counter.book("c2", "2026-03-02", "10:00 AM")
	require.NoError(t, svc.Seed(ctx))

	c1, err := svc.Capacity(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 20, c1.Ceiling)
	assert.Zero(t, c1.Booked)

	c2, err := svc.Capacity(ctx, "c2")
	require.NoError(t, err)
	assert.Equal(t, 1, c2.Booked)

	_, err = svc.SetSlots(ctx, "c1", "2026-05-01", []string{"9:00 AM"})
	require.NoError(t, err)
	require.NoError(t, svc.Seed(ctx))
	has, err := svc.HasSlot(ctx, "c1", "2026-05-01", "9:00 AM")
	require.NoError(t, err)
	assert.True(t, has, "seeding again leaves existing calendars alone")
}

func TestSnapshot(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SetSlots(ctx, "c1", "2026-03-02", []string{"9:00 AM"})
	require.NoError(t, err)

	snap, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Calendars, 2)
	assert.Len(t, snap.Capacities, 2)
	assert.Equal(t, 1, snap.Calendars["c1"].SlotCount())
	assert.Equal(t, 0, snap.Calendars["c2"].SlotCount())
}

func TestCapacities(t *testing.T) {
	svc, counter, _ := newTestService(t)
	ctx := context.Background()

	counter.book("c2", "2026-03-02", "9:00 AM")
	_, err := svc.SetCapacity(ctx, "c1", 7)
	require.NoError(t, err)

	caps, err := svc.Capacities(ctx)
	require.NoError(t, err)
	require.Len(t, caps, 2)
	assert.Equal(t, 7, caps["c1"].Ceiling)
	assert.Equal(t, 1, caps["c2"].Booked, "unsaved capacity counts the ledger")
	assert.Equal(t, 20, caps["c2"].Ceiling)
}

func TestReads_Idempotent(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SetSlots(ctx, "c1", "2026-03-02", []string{"9:00 AM", "1:00 PM"})
	require.NoError(t, err)

	first, err := svc.Calendar(ctx, "c1")
	require.NoError(t, err)
	second, err := svc.Calendar(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
