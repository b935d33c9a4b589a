package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	registrationerrors "studyreg/internal/registration/errors"
	"studyreg/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestSessionRepository_CreateGetUpdate(t *testing.T) {
	r := newMemorySessionRepository(time.Hour, time.Now)
	ctx := context.Background()

	require.NoError(t, r.Create(ctx, &model.Registration{ID: "r1", Step: model.StepProfile}))

	got, err := r.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, model.StepProfile, got.Step)

	// returned copies are detached
	got.Step = model.StepReview
	again, err := r.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, model.StepProfile, again.Step)

	boom := errors.New("guard failed")
	updated, err := r.Update(ctx, "r1", func(reg *model.Registration) error {
		reg.Step = model.StepConsent
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, model.StepConsent, updated.Step, "changes are kept alongside the error")

	_, err = r.Get(ctx, "missing")
	assert.ErrorIs(t, err, registrationerrors.ErrSessionNotFound)
}

func TestSessionRepository_ExpiresIdleSessions(t *testing.T) {
	c := &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	r := newMemorySessionRepository(time.Minute, c.Now)
	ctx := context.Background()

	require.NoError(t, r.Create(ctx, &model.Registration{ID: "idle"}))
	require.NoError(t, r.Create(ctx, &model.Registration{ID: "busy"}))

	c.Advance(40 * time.Second)
	_, err := r.Get(ctx, "busy")
	require.NoError(t, err)

	c.Advance(40 * time.Second)
	r.sweep()
	assert.Equal(t, 1, r.Len())

	_, err = r.Get(ctx, "idle")
	assert.ErrorIs(t, err, registrationerrors.ErrSessionNotFound)
	_, err = r.Get(ctx, "busy")
	assert.NoError(t, err)

	c.Advance(2 * time.Minute)
	_, err = r.Get(ctx, "busy")
	assert.ErrorIs(t, err, registrationerrors.ErrSessionNotFound, "lazy expiry on access")
}

func TestSessionRepository_SerializesPerSession(t *testing.T) {
	r := newMemorySessionRepository(time.Hour, time.Now)
	ctx := context.Background()
	require.NoError(t, r.Create(ctx, &model.Registration{ID: "r1"}))

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.Update(ctx, "r1", func(reg *model.Registration) error {
				counter++
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}

func TestSessionRepository_Stopped(t *testing.T) {
	r := NewMemorySessionRepository(time.Hour)
	r.Stop()
	r.Stop()
	err := r.Create(context.Background(), &model.Registration{ID: "r1"})
	assert.ErrorIs(t, err, registrationerrors.ErrRegistryClosed)
}
