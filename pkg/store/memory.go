package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.mongodb.org/mongo-driver/bson"
)

// Memory is the single-process backend used in demo mode and as the local
// fallback. Writers are serialized; a transaction stages its writes and
// applies them on commit, so a failed transaction leaves no trace.
type Memory struct {
	writeMu sync.Mutex
	mu      sync.RWMutex
	data    map[string]map[string]bson.Raw
	hub     *hub
	closed  atomic.Bool
}

type memTxKey struct{}

type memTx struct {
	owner  *Memory
	writes map[string]map[string]bson.Raw
}

func NewMemory() *Memory {
	return &Memory{
		data: make(map[string]map[string]bson.Raw),
		hub:  newHub(),
	}
}

func (m *Memory) Backend() string {
	return "memory"
}

func (m *Memory) tx(ctx context.Context) *memTx {
	if t, ok := ctx.Value(memTxKey{}).(*memTx); ok && t.owner == m {
		return t
	}
	return nil
}

func (m *Memory) check(ctx context.Context) error {
	if m.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}

func (m *Memory) read(ctx context.Context, collection, key string) (bson.Raw, bool) {
	if t := m.tx(ctx); t != nil {
		if raw, ok := t.writes[collection][key]; ok {
			return raw, true
		}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	raw, ok := m.data[collection][key]
	return raw, ok
}

func (m *Memory) write(ctx context.Context, collection, key string, raw bson.Raw) {
	if t := m.tx(ctx); t != nil {
		if t.writes[collection] == nil {
			t.writes[collection] = make(map[string]bson.Raw)
		}
		t.writes[collection][key] = raw
		return
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	m.commit(map[string]map[string]bson.Raw{collection: {key: raw}})
}

// commit applies staged writes and publishes the touched collections.
// Callers hold writeMu.
func (m *Memory) commit(writes map[string]map[string]bson.Raw) {
	m.mu.Lock()
	for collection, docs := range writes {
		if m.data[collection] == nil {
			m.data[collection] = make(map[string]bson.Raw)
		}
		for key, raw := range docs {
			m.data[collection][key] = raw
		}
	}
	m.mu.Unlock()

	for collection := range writes {
		_ = m.hub.refresh(context.Background(), collection, m.loader(collection))
	}
}

func (m *Memory) docs(t *memTx, collection string) []bson.Raw {
	m.mu.RLock()
	merged := make(map[string]bson.Raw, len(m.data[collection]))
	for k, v := range m.data[collection] {
		merged[k] = v
	}
	m.mu.RUnlock()

	if t != nil {
		for k, v := range t.writes[collection] {
			merged[k] = v
		}
	}

	out := make([]bson.Raw, 0, len(merged))
	for _, v := range merged {
		out = append(out, v)
	}
	sortNewestFirst(out)
	return out
}

func (m *Memory) loader(collection string) loader {
	return func(context.Context) ([]bson.Raw, error) {
		return m.docs(nil, collection), nil
	}
}

func (m *Memory) Get(ctx context.Context, collection, key string, out any) error {
	if err := m.check(ctx); err != nil {
		return err
	}
	raw, ok := m.read(ctx, collection, key)
	if !ok {
		return ErrNotFound
	}
	if err := bson.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s/%s: %w", collection, key, err)
	}
	return nil
}

func (m *Memory) Set(ctx context.Context, collection, key string, doc any) error {
	if err := m.check(ctx); err != nil {
		return err
	}
	raw, err := keyed(doc, key)
	if err != nil {
		return err
	}
	if existing, ok := m.read(ctx, collection, key); ok {
		if raw, err = merge(existing, raw); err != nil {
			return err
		}
	}
	m.write(ctx, collection, key, raw)
	return nil
}

func (m *Memory) Add(ctx context.Context, collection string, doc any) (string, error) {
	if err := m.check(ctx); err != nil {
		return "", err
	}
	d, id, err := withID(doc)
	if err != nil {
		return "", err
	}
	if _, exists := m.read(ctx, collection, id); exists {
		return "", fmt.Errorf("document %s/%s already exists", collection, id)
	}
	raw, err := encode(d)
	if err != nil {
		return "", err
	}
	m.write(ctx, collection, id, raw)
	return id, nil
}

func (m *Memory) List(ctx context.Context, collection string, out any) error {
	if err := m.check(ctx); err != nil {
		return err
	}
	return decodeList(m.docs(m.tx(ctx), collection), out)
}

func (m *Memory) ListBy(ctx context.Context, collection, field string, value any, out any) error {
	if err := m.check(ctx); err != nil {
		return err
	}
	all := m.docs(m.tx(ctx), collection)
	matched := all[:0]
	for _, raw := range all {
		if fieldEquals(raw, field, value) {
			matched = append(matched, raw)
		}
	}
	return decodeList(matched, out)
}

func (m *Memory) Subscribe(ctx context.Context, collection string) (*Subscription, error) {
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	return m.hub.subscribe(ctx, collection, m.loader(collection))
}

// Transact joins an enclosing transaction on the same store.
func (m *Memory) Transact(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := m.check(ctx); err != nil {
		return err
	}
	if m.tx(ctx) != nil {
		return fn(ctx)
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	t := &memTx{owner: m, writes: make(map[string]map[string]bson.Raw)}
	if err := fn(context.WithValue(ctx, memTxKey{}, t)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.commit(t.writes)
	return nil
}

func (m *Memory) Ping(ctx context.Context) error {
	return m.check(ctx)
}

func (m *Memory) Close(context.Context) error {
	if m.closed.Swap(true) {
		return nil
	}
	m.hub.close()
	return nil
}
