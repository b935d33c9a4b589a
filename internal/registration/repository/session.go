package repository

import (
	"context"
	"sync"
	"time"

	registrationerrors "studyreg/internal/registration/errors"
	"studyreg/pkg/model"
)

// SessionRepository keeps registrations in process memory. Each session is
// guarded by its own mutex; sessions never coordinate with each other.
type SessionRepository interface {
	Create(ctx context.Context, reg *model.Registration) error
	Get(ctx context.Context, id string) (*model.Registration, error)
	// Update runs fn on the stored registration while holding that session's
	// lock. Changes fn makes are kept even when it returns an error, so fn
	// must only mutate what it means to keep.
	Update(ctx context.Context, id string, fn func(reg *model.Registration) error) (*model.Registration, error)
	Len() int
	Stop()
}

type sessionEntry struct {
	mu       sync.Mutex
	reg      *model.Registration
	lastSeen time.Time
}

type memorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry
	ttl      time.Duration
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewMemorySessionRepository starts a janitor that evicts sessions idle for
// longer than ttl.
func NewMemorySessionRepository(ttl time.Duration) SessionRepository {
	r := newMemorySessionRepository(ttl, time.Now)
	go r.cleanup()
	return r
}

func newMemorySessionRepository(ttl time.Duration, now func() time.Time) *memorySessionRepository {
	return &memorySessionRepository{
		sessions: make(map[string]*sessionEntry),
		ttl:      ttl,
		now:      now,
		stopCh:   make(chan struct{}),
	}
}

func (r *memorySessionRepository) Create(ctx context.Context, reg *model.Registration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-r.stopCh:
		return registrationerrors.ErrRegistryClosed
	default:
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[reg.ID] = &sessionEntry{reg: reg.Clone(), lastSeen: r.now()}
	return nil
}

func (r *memorySessionRepository) Get(ctx context.Context, id string) (*model.Registration, error) {
	var out *model.Registration
	_, err := r.Update(ctx, id, func(reg *model.Registration) error {
		out = reg.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *memorySessionRepository) Update(ctx context.Context, id string, fn func(reg *model.Registration) error) (*model.Registration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entry := r.entry(id)
	if entry == nil {
		return nil, registrationerrors.ErrSessionNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	// evicted while we waited for the lock
	if entry.reg == nil {
		return nil, registrationerrors.ErrSessionNotFound
	}

	err := fn(entry.reg)
	entry.lastSeen = r.now()
	return entry.reg.Clone(), err
}

func (r *memorySessionRepository) entry(id string) *sessionEntry {
	r.mu.RLock()
	entry, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	entry.mu.Lock()
	expired := r.now().Sub(entry.lastSeen) > r.ttl
	entry.mu.Unlock()
	if expired {
		r.evict(id, entry)
		return nil
	}
	return entry
}

func (r *memorySessionRepository) evict(id string, entry *sessionEntry) {
	r.mu.Lock()
	if r.sessions[id] == entry {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	entry.mu.Lock()
	entry.reg = nil
	entry.mu.Unlock()
}

func (r *memorySessionRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *memorySessionRepository) sweep() {
	r.mu.RLock()
	var stale []string
	for id, entry := range r.sessions {
		// a locked entry is in use, not idle
		if !entry.mu.TryLock() {
			continue
		}
		if r.now().Sub(entry.lastSeen) > r.ttl {
			stale = append(stale, id)
		}
		entry.mu.Unlock()
	}
	r.mu.RUnlock()

	for _, id := range stale {
		r.mu.RLock()
		entry := r.sessions[id]
		r.mu.RUnlock()
		if entry != nil {
			r.evict(id, entry)
		}
	}
}

func (r *memorySessionRepository) cleanup() {
	interval := r.ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweep()
		case <-r.stopCh:
			return
		}
	}
}

func (r *memorySessionRepository) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}
