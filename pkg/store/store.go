// Package store is the document-store adapter shared by the availability
// model and the booking ledger. Documents cross this boundary as BSON and are
// decoded into typed records by the caller.
package store

import (
	"context"
	"errors"
)

var (
	ErrNotFound    = errors.New("document not found")
	ErrUnavailable = errors.New("store unavailable")
	ErrClosed      = errors.New("store closed")
)

const (
	CollectionBookings     = "bookings"
	CollectionAvailability = "availability"
	CollectionCapacity     = "capacity"

	FieldID           = "_id"
	FieldRegisteredAt = "registered_at"
)

// Store is implemented by the Mongo backend, the in-process memory backend
// and the fallback wrapper that combines the two.
type Store interface {
	// Get decodes the document with the given key into out. It returns
	// ErrNotFound when there is no such document.
	Get(ctx context.Context, collection, key string, out any) error
	// Set upserts the document. Top-level fields are merged into an
	// existing document.
	Set(ctx context.Context, collection, key string, doc any) error
	// Add inserts a new document and returns its id, generating one when
	// the document has none.
	Add(ctx context.Context, collection string, doc any) (string, error)
	// List decodes every document, newest registered_at first, into out,
	// which must be a pointer to a slice.
	List(ctx context.Context, collection string, out any) error
	ListBy(ctx context.Context, collection, field string, value any, out any) error
	// Subscribe delivers the current ordered contents of the collection and
	// a fresh copy after each change.
	Subscribe(ctx context.Context, collection string) (*Subscription, error)
	// Transact runs fn atomically. Store calls made with the ctx passed to
	// fn take part in the transaction.
	Transact(ctx context.Context, fn func(ctx context.Context) error) error
	Ping(ctx context.Context) error
	Backend() string
	Close(ctx context.Context) error
}
