package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"studyreg/pkg/logger"
)

// Fallback sends every call to the primary store until the primary reports
// ErrUnavailable. From then on the secondary serves every call, reads
// included, for the rest of the process, and feeds opened on the primary are
// closed so their readers resubscribe. Calls made inside a transaction stay
// on the backend that runs the transaction.
type Fallback struct {
	primary   Store
	secondary Store
	log       *logger.Logger

	degraded atomic.Bool
	mu       sync.Mutex
	feeds    map[*Subscription]struct{}
}

type pinKey struct{}

type pin struct {
	owner *Fallback
	store Store
}

func NewFallback(primary, secondary Store, log *logger.Logger) *Fallback {
	return &Fallback{
		primary:   primary,
		secondary: secondary,
		log:       log,
		feeds:     make(map[*Subscription]struct{}),
	}
}

// Degraded reports whether the secondary has taken over.
func (f *Fallback) Degraded() bool {
	return f.degraded.Load()
}

func (f *Fallback) degrade(op string, err error) {
	if !f.degraded.CompareAndSwap(false, true) {
		return
	}
	f.log.Error("Primary store unavailable, switching to local store for this process",
		"op", op,
		"primary", f.primary.Backend(),
		"secondary", f.secondary.Backend(),
		"error", err,
	)

	f.mu.Lock()
	feeds := make([]*Subscription, 0, len(f.feeds))
	for sub := range f.feeds {
		feeds = append(feeds, sub)
	}
	f.feeds = make(map[*Subscription]struct{})
	f.mu.Unlock()

	for _, sub := range feeds {
		sub.Close()
	}
}

func (f *Fallback) track(sub *Subscription) {
	f.mu.Lock()
	f.feeds[sub] = struct{}{}
	f.mu.Unlock()

	go func() {
		<-sub.Done()
		f.mu.Lock()
		delete(f.feeds, sub)
		f.mu.Unlock()
	}()
}

func (f *Fallback) Backend() string {
	if f.degraded.Load() {
		return fmt.Sprintf("%s (%s down)", f.secondary.Backend(), f.primary.Backend())
	}
	return fmt.Sprintf("%s+%s", f.primary.Backend(), f.secondary.Backend())
}

func (f *Fallback) pinned(ctx context.Context) Store {
	if p, ok := ctx.Value(pinKey{}).(pin); ok && p.owner == f {
		return p.store
	}
	return nil
}

func (f *Fallback) pin(ctx context.Context, s Store) context.Context {
	return context.WithValue(ctx, pinKey{}, pin{owner: f, store: s})
}

func (f *Fallback) do(ctx context.Context, op string, call func(s Store) error) error {
	if s := f.pinned(ctx); s != nil {
		return call(s)
	}

	if f.degraded.Load() {
		return call(f.secondary)
	}

	err := call(f.primary)
	if err == nil || !errors.Is(err, ErrUnavailable) || ctx.Err() != nil {
		return err
	}

	f.degrade(op, err)
	return call(f.secondary)
}

func (f *Fallback) Get(ctx context.Context, collection, key string, out any) error {
	return f.do(ctx, "get", func(s Store) error {
		return s.Get(ctx, collection, key, out)
	})
}

func (f *Fallback) Set(ctx context.Context, collection, key string, doc any) error {
	return f.do(ctx, "set", func(s Store) error {
		return s.Set(ctx, collection, key, doc)
	})
}

func (f *Fallback) Add(ctx context.Context, collection string, doc any) (string, error) {
	var id string
	err := f.do(ctx, "add", func(s Store) error {
		var err error
		id, err = s.Add(ctx, collection, doc)
		return err
	})
	return id, err
}

func (f *Fallback) List(ctx context.Context, collection string, out any) error {
	return f.do(ctx, "list", func(s Store) error {
		return s.List(ctx, collection, out)
	})
}

func (f *Fallback) ListBy(ctx context.Context, collection, field string, value any, out any) error {
	return f.do(ctx, "list_by", func(s Store) error {
		return s.ListBy(ctx, collection, field, value, out)
	})
}

func (f *Fallback) Subscribe(ctx context.Context, collection string) (*Subscription, error) {
	var sub *Subscription
	err := f.do(ctx, "subscribe", func(s Store) error {
		var err error
		sub, err = s.Subscribe(ctx, collection)
		if err == nil && s == f.primary {
			f.track(sub)
			// a failover that raced this call already closed the others
			if f.degraded.Load() {
				sub.Close()
			}
		}
		return err
	})
	return sub, err
}

func (f *Fallback) Transact(ctx context.Context, fn func(ctx context.Context) error) error {
	return f.do(ctx, "transact", func(s Store) error {
		return s.Transact(f.pin(ctx, s), fn)
	})
}

// Ping checks the backend currently serving requests, falling back to the
// secondary while the primary is still active.
func (f *Fallback) Ping(ctx context.Context) error {
	if f.degraded.Load() {
		return f.secondary.Ping(ctx)
	}
	err := f.primary.Ping(ctx)
	if err == nil {
		return nil
	}
	f.log.Warn("Primary store ping failed", "primary", f.primary.Backend(), "error", err)
	return f.secondary.Ping(ctx)
}

func (f *Fallback) Close(ctx context.Context) error {
	return errors.Join(f.primary.Close(ctx), f.secondary.Close(ctx))
}
