package service

import (
	"context"
	"sync"
	"testing"
	"time"

	availabilityrepo "studyreg/internal/availability/repository"
	availabilityservice "studyreg/internal/availability/service"
	availabilityvalidator "studyreg/internal/availability/validator"
	"studyreg/internal/bookings/repository"
	"studyreg/internal/bookings/validator"
	"studyreg/pkg/config"
	apperrors "studyreg/pkg/errors"
	"studyreg/pkg/logger"
	"studyreg/pkg/model"
	"studyreg/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	bookings BookingService
	slots    availabilityservice.AvailabilityService
	store    store.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logger.Discard()
	cfg := &config.Config{
		Log:             log,
		ReadTimeout:     time.Second,
		WriteTimeout:    2 * time.Second,
		DefaultCapacity: 20,
		Roster: model.Roster{
			{ID: "c1", Name: "Casey One", Email: "casey@example.edu", Code: "1111"},
			{ID: "c2", Name: "Drew Two", Email: "drew@example.edu", Code: "2222"},
		},
	}
	s := store.NewMemory()
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	repo := repository.NewStoreBookingRepository(cfg, s)
	slots := availabilityservice.NewAvailabilityService(
		availabilityrepo.NewStoreAvailabilityRepository(cfg, s),
		repo,
		availabilityvalidator.NewAvailabilityValidator(log),
		cfg,
	)
	return &fixture{
		bookings: NewBookingService(repo, slots, validator.NewBookingValidator(log), cfg),
		slots:    slots,
		store:    s,
	}
}

func participant(first, collectorID, date, timeLabel string) *model.Booking {
	return &model.Booking{
		FirstName:   first,
		LastName:    "Tester",
		Email:       first + "@example.com",
		Age:         21,
		Level:       "Junior",
		Major:       "Psychology",
		CollectorID: collectorID,
		Date:        date,
		Time:        timeLabel,
	}
}

func TestAppend_CapacityExceeded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.slots.SetSlots(ctx, "c1", "2026-03-02", []string{"9:00 AM", "10:00 AM"})
	require.NoError(t, err)
	_, err = f.slots.SetCapacity(ctx, "c1", 1)
	require.NoError(t, err)

	b, err := f.bookings.Append(ctx, participant("Ana", "c1", "2026-03-02", "9:00 AM"))
	require.NoError(t, err)
	assert.NotEmpty(t, b.ID)
	assert.Equal(t, "Ana Tester", b.Name)
	assert.Equal(t, "Casey One", b.CollectorName)
	assert.Equal(t, "casey@example.edu", b.CollectorEmail)
	assert.False(t, b.RegisteredAt.IsZero())

	_, err = f.bookings.Append(ctx, participant("Ben", "c1", "2026-03-02", "10:00 AM"))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeCapacityExceeded), "got %v", err)

	all, err := f.bookings.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	n, err := f.bookings.CountFor(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAppend_StaleSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.slots.SetSlots(ctx, "c1", "2026-03-02", []string{"9:00 AM", "10:00 AM"})
	require.NoError(t, err)
	_, err = f.slots.ToggleTime(ctx, "c1", "2026-03-02", "9:00 AM")
	require.NoError(t, err)

	_, err = f.bookings.Append(ctx, participant("Ana", "c1", "2026-03-02", "9:00 AM"))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeStaleSlot), "got %v", err)

	all, err := f.bookings.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	capacity, err := f.slots.Capacity(ctx, "c1")
	require.NoError(t, err)
	assert.Zero(t, capacity.Booked)
}

func TestAppend_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.slots.SetSlots(ctx, "c1", "2026-03-02", []string{"9:00 AM"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(b *model.Booking)
		code   string
	}{
		{"too young", func(b *model.Booking) { b.Age = 17 }, apperrors.CodeValidation},
		{"too old", func(b *model.Booking) { b.Age = 31 }, apperrors.CodeValidation},
		{"bad email", func(b *model.Booking) { b.Email = "nope" }, apperrors.CodeValidation},
		{"unknown level", func(b *model.Booking) { b.Level = "Postdoc" }, apperrors.CodeValidation},
		{"blank major", func(b *model.Booking) { b.Major = "   " }, apperrors.CodeValidation},
		{"unknown collector", func(b *model.Booking) { b.CollectorID = "zz" }, apperrors.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := participant("Ana", "c1", "2026-03-02", "9:00 AM")
			tt.mutate(b)
			_, err := f.bookings.Append(ctx, b)
			assert.True(t, apperrors.HasCode(err, tt.code), "got %v", err)
		})
	}

	all, err := f.bookings.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestAppend_NormalizesInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.slots.SetSlots(ctx, "c1", "2026-03-02", []string{"9:00 AM"})
	require.NoError(t, err)

	in := participant("Ana", "c1", "2026-03-02", " 9:00 am ")
	in.Email = "  Ana@Example.COM "
	in.Level = "graduate student"
	in.CollectorName = "spoofed"

	b, err := f.bookings.Append(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", b.Email)
	assert.Equal(t, "Graduate Student", b.Level)
	assert.Equal(t, "9:00 AM", b.Time)
	assert.Equal(t, "Casey One", b.CollectorName)
}

func TestAppend_ConcurrentNeverOverbooks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.slots.SetSlots(ctx, "c1", "2026-03-02", []string{"9:00 AM", "10:00 AM"})
	require.NoError(t, err)
	_, err = f.slots.SetCapacity(ctx, "c1", 3)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 12 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			timeLabel := "9:00 AM"
			if i%2 == 0 {
				timeLabel = "10:00 AM"
			}
			_, _ = f.bookings.Append(ctx, participant("Pat", "c1", "2026-03-02", timeLabel))
		}()
	}
	wg.Wait()

	list, err := f.bookings.ListFor(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, list, 3)

	capacity, err := f.slots.Capacity(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 3, capacity.Booked)
}

func TestAppend_Timeout(t *testing.T) {
	f := newFixture(t)
	_, err := f.slots.SetSlots(context.Background(), "c1", "2026-03-02", []string{"9:00 AM"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	_, err = f.bookings.Append(ctx, participant("Ana", "c1", "2026-03-02", "9:00 AM"))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeTimeout), "got %v", err)
}

func TestAll_NewestFirstAndIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.slots.SetSlots(ctx, "c1", "2026-03-02", []string{"9:00 AM"})
	require.NoError(t, err)
	_, err = f.slots.SetSlots(ctx, "c2", "2026-03-03", []string{"1:00 PM"})
	require.NoError(t, err)

	svc := f.bookings.(*bookingService)
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	for i, b := range []*model.Booking{
		participant("First", "c1", "2026-03-02", "9:00 AM"),
		participant("Second", "c2", "2026-03-03", "1:00 PM"),
		participant("Third", "c1", "2026-03-02", "9:00 AM"),
	} {
		svc.now = func() time.Time { return base.Add(time.Duration(i) * time.Minute) }
		_, err := f.bookings.Append(ctx, b)
		require.NoError(t, err)
	}

	first, err := f.bookings.All(ctx)
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.Equal(t, "Third", first[0].FirstName)
	assert.Equal(t, "First", first[2].FirstName)

	second, err := f.bookings.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	mine, err := f.bookings.ListFor(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}

func TestWatch_DeliversAppends(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := f.slots.SetSlots(ctx, "c1", "2026-03-02", []string{"9:00 AM"})
	require.NoError(t, err)

	feed, err := f.bookings.Watch(ctx)
	require.NoError(t, err)
	defer feed.Close()

	initial, err := feed.Next(ctx)
	require.NoError(t, err)
	assert.Empty(t, initial)

	_, err = f.bookings.Append(ctx, participant("Ana", "c1", "2026-03-02", "9:00 AM"))
	require.NoError(t, err)

	next, err := feed.Next(ctx)
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.Equal(t, "Ana", next[0].FirstName)

	feed.Close()
	_, err = feed.Next(ctx)
	assert.Error(t, err)
}

func TestGetByID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.slots.SetSlots(ctx, "c1", "2026-03-02", []string{"9:00 AM"})
	require.NoError(t, err)

	b, err := f.bookings.Append(ctx, participant("Ana", "c1", "2026-03-02", "9:00 AM"))
	require.NoError(t, err)

	got, err := f.bookings.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.Email, got.Email)

	_, err = f.bookings.GetByID(ctx, "missing")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}
