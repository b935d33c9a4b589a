package store

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
)

// Snapshot is the full ordered contents of a collection at one point in the
// store's write order.
type Snapshot struct {
	Collection string
	Seq        uint64
	docs       []bson.Raw
}

func (s Snapshot) Len() int {
	return len(s.docs)
}

// Decode decodes the documents into out, a pointer to a slice.
func (s Snapshot) Decode(out any) error {
	return decodeList(s.docs, out)
}

// Subscription receives snapshots on C. Only the newest undelivered snapshot
// is kept, so a slow reader skips intermediate states but never sees them out
// of order. Nothing is delivered after Close returns.
type Subscription struct {
	C <-chan Snapshot

	ch         chan Snapshot
	collection string
	hub        *hub
	done       chan struct{}
	once       sync.Once
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
		close(s.done)
	})
}

// Done is closed once the subscription has been closed.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

type loader func(ctx context.Context) ([]bson.Raw, error)

// hub fans snapshots out to subscribers. Loads for one collection are
// serialized, so each published snapshot reflects at least every write
// reflected by the previous one.
type hub struct {
	mu     sync.Mutex
	subs   map[string]map[*Subscription]struct{}
	loadMu map[string]*sync.Mutex
	seq    map[string]uint64
	closed bool
}

func newHub() *hub {
	return &hub{
		subs:   make(map[string]map[*Subscription]struct{}),
		loadMu: make(map[string]*sync.Mutex),
		seq:    make(map[string]uint64),
	}
}

func (h *hub) collectionLock(collection string) *sync.Mutex {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.loadMu[collection]
	if !ok {
		m = &sync.Mutex{}
		h.loadMu[collection] = m
	}
	return m
}

// subscribe registers a subscriber and delivers the current contents to it.
func (h *hub) subscribe(ctx context.Context, collection string, load loader) (*Subscription, error) {
	lock := h.collectionLock(collection)
	lock.Lock()
	defer lock.Unlock()

	docs, err := load(ctx)
	if err != nil {
		return nil, err
	}

	ch := make(chan Snapshot, 1)
	sub := &Subscription{C: ch, ch: ch, collection: collection, hub: h, done: make(chan struct{})}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	if h.subs[collection] == nil {
		h.subs[collection] = make(map[*Subscription]struct{})
	}
	h.subs[collection][sub] = struct{}{}
	h.seq[collection]++
	h.offer(sub, Snapshot{Collection: collection, Seq: h.seq[collection], docs: docs})
	h.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

func (h *hub) hasSubscribers(collection string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[collection]) > 0
}

// refresh loads the collection and publishes it to every subscriber.
func (h *hub) refresh(ctx context.Context, collection string, load loader) error {
	if !h.hasSubscribers(collection) {
		return nil
	}
	lock := h.collectionLock(collection)
	lock.Lock()
	defer lock.Unlock()

	docs, err := load(ctx)
	if err != nil {
		return err
	}
	h.publish(collection, docs)
	return nil
}

func (h *hub) publish(collection string, docs []bson.Raw) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq[collection]++
	snap := Snapshot{Collection: collection, Seq: h.seq[collection], docs: docs}
	for sub := range h.subs[collection] {
		h.offer(sub, snap)
	}
}

// offer replaces any undelivered snapshot. Callers hold h.mu.
func (h *hub) offer(sub *Subscription, snap Snapshot) {
	select {
	case <-sub.ch:
	default:
	}
	sub.ch <- snap
}

func (h *hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[sub.collection], sub)
	select {
	case <-sub.ch:
	default:
	}
	close(sub.ch)
}

func (h *hub) close() {
	h.mu.Lock()
	h.closed = true
	var all []*Subscription
	for _, subs := range h.subs {
		for sub := range subs {
			all = append(all, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range all {
		sub.Close()
	}
}
