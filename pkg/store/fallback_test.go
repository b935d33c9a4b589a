package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"studyreg/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// downStore fails every call the way an unreachable remote backend does.
type downStore struct {
	err   error
	calls int
}

func (d *downStore) fail() error {
	d.calls++
	return d.err
}

func (d *downStore) Get(context.Context, string, string, any) error { return d.fail() }
func (d *downStore) Set(context.Context, string, string, any) error { return d.fail() }
func (d *downStore) Add(context.Context, string, any) (string, error) {
	return "", d.fail()
}
func (d *downStore) List(context.Context, string, any) error                { return d.fail() }
func (d *downStore) ListBy(context.Context, string, string, any, any) error { return d.fail() }
func (d *downStore) Subscribe(context.Context, string) (*Subscription, error) {
	return nil, d.fail()
}
func (d *downStore) Transact(context.Context, func(context.Context) error) error {
	return d.fail()
}
func (d *downStore) Ping(context.Context) error  { return d.fail() }
func (d *downStore) Backend() string             { return "down" }
func (d *downStore) Close(context.Context) error { return nil }

func TestFallback_ReroutesWhenUnavailable(t *testing.T) {
	ctx := context.Background()
	primary := &downStore{err: ErrUnavailable}
	local := NewMemory()
	f := NewFallback(primary, local, logger.Discard())

	require.NoError(t, f.Set(ctx, "counters", "a", counterDoc{Value: 3}))

	var doc counterDoc
	require.NoError(t, f.Get(ctx, "counters", "a", &doc))
	assert.Equal(t, 3, doc.Value)
	assert.Equal(t, 1, primary.calls, "primary is skipped after the first failure")

	require.NoError(t, local.Get(ctx, "counters", "a", &doc))
	assert.NoError(t, f.Ping(ctx))
	assert.True(t, f.Degraded())
	assert.Equal(t, "memory (down down)", f.Backend())
}

// noTxStore serves plain reads and writes but refuses transactions, the way
// a standalone MongoDB server does.
type noTxStore struct {
	Store
	txCalls int
}

func (n *noTxStore) Transact(context.Context, func(context.Context) error) error {
	n.txCalls++
	return fmt.Errorf("%w: transactions need a replica set", ErrUnavailable)
}

func (n *noTxStore) Backend() string { return "no-tx" }

func TestFallback_TransactionFailureMovesReadsToo(t *testing.T) {
	ctx := context.Background()
	remote := &noTxStore{Store: NewMemory()}
	local := NewMemory()
	f := NewFallback(remote, local, logger.Discard())

	require.NoError(t, f.Set(ctx, "counters", "before", counterDoc{Value: 1}))
	assert.False(t, f.Degraded())

	err := f.Transact(ctx, func(ctx context.Context) error {
		return f.Set(ctx, "counters", "a", counterDoc{Value: 7})
	})
	require.NoError(t, err)
	assert.True(t, f.Degraded())
	assert.Equal(t, 1, remote.txCalls)

	var doc counterDoc
	require.NoError(t, f.Get(ctx, "counters", "a", &doc), "read after a rerouted write sees it")
	assert.Equal(t, 7, doc.Value)

	var docs []counterDoc
	require.NoError(t, f.List(ctx, "counters", &docs))
	assert.Len(t, docs, 1, "reads no longer reach the primary")

	require.NoError(t, f.Transact(ctx, func(ctx context.Context) error {
		return f.Set(ctx, "counters", "b", counterDoc{Value: 2})
	}))
	assert.Equal(t, 1, remote.txCalls, "primary is not retried")
	assert.ErrorIs(t, remote.Get(ctx, "counters", "b", &doc), ErrNotFound)
}

func TestFallback_FailoverClosesPrimaryFeeds(t *testing.T) {
	ctx := context.Background()
	remote := &noTxStore{Store: NewMemory()}
	f := NewFallback(remote, NewMemory(), logger.Discard())

	sub, err := f.Subscribe(ctx, "counters")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, f.Transact(ctx, func(ctx context.Context) error {
		return f.Set(ctx, "counters", "a", counterDoc{Value: 1})
	}))

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("primary feed still open after failover")
	}

	local, err := f.Subscribe(ctx, "counters")
	require.NoError(t, err)
	defer local.Close()

	select {
	case snap := <-local.C:
		assert.Equal(t, 1, snap.Len())
	case <-time.After(time.Second):
		t.Fatal("no snapshot from the local store")
	}
}

func TestFallback_DoesNotRerouteOtherErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("schema validation failed")
	f := NewFallback(&downStore{err: boom}, NewMemory(), logger.Discard())

	err := f.Set(ctx, "counters", "a", counterDoc{Value: 1})
	assert.ErrorIs(t, err, boom)
}

func TestFallback_TransactionStaysOnOneBackend(t *testing.T) {
	ctx := context.Background()
	local := NewMemory()
	f := NewFallback(&downStore{err: ErrUnavailable}, local, logger.Discard())

	err := f.Transact(ctx, func(ctx context.Context) error {
		if err := f.Set(ctx, "counters", "a", counterDoc{Value: 1}); err != nil {
			return err
		}
		var doc counterDoc
		if err := f.Get(ctx, "counters", "a", &doc); err != nil {
			return err
		}
		doc.Value++
		return f.Set(ctx, "counters", "a", doc)
	})
	require.NoError(t, err)

	var doc counterDoc
	require.NoError(t, local.Get(ctx, "counters", "a", &doc))
	assert.Equal(t, 2, doc.Value)
}

func TestFallback_DomainErrorFromTransactionIsReturned(t *testing.T) {
	ctx := context.Background()
	f := NewFallback(NewMemory(), NewMemory(), logger.Discard())
	refused := errors.New("refused")

	err := f.Transact(ctx, func(context.Context) error { return refused })
	assert.ErrorIs(t, err, refused)
}

func TestClassify(t *testing.T) {
	assert.ErrorIs(t, classify(context.DeadlineExceeded), context.DeadlineExceeded)
	assert.NotErrorIs(t, classify(context.DeadlineExceeded), ErrUnavailable)
	assert.ErrorIs(t, classify(errors.New("server selection timeout")), ErrUnavailable)
	assert.ErrorIs(t, classify(ErrNotFound), ErrNotFound)
	assert.Nil(t, classify(nil))
}
