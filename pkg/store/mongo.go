package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	dbmongo "studyreg/pkg/db/mongo"
	"studyreg/pkg/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Mongo is the durable backend. Transactions use the session-backed
// transaction manager and need a replica set; change streams push remote
// writes to subscribers.
type Mongo struct {
	db  *mongo.Database
	tm  dbmongo.TransactionManager
	hub *hub
	log *logger.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	watchMu  sync.Mutex
	watching map[string]bool
}

type mongoTxKey struct{}

type mongoTx struct {
	owner   *Mongo
	mu      sync.Mutex
	touched map[string]struct{}
}

func NewMongo(client *mongo.Client, database string, log *logger.Logger) *Mongo {
	ctx, cancel := context.WithCancel(context.Background())
	return &Mongo{
		db:       client.Database(database),
		tm:       dbmongo.NewTransactionManager(client),
		hub:      newHub(),
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		watching: make(map[string]bool),
	}
}

func (m *Mongo) Backend() string {
	return "mongo"
}

// classify marks connectivity failures with ErrUnavailable. Server-side
// errors and context errors pass through unchanged.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUnavailable):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, dbmongo.ErrTransactionsUnsupported),
		errors.Is(err, mongo.ErrClientDisconnected), mongo.IsNetworkError(err), mongo.IsTimeout(err):
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

func (m *Mongo) tx(ctx context.Context) *mongoTx {
	if t, ok := ctx.Value(mongoTxKey{}).(*mongoTx); ok && t.owner == m {
		return t
	}
	return nil
}

// touched publishes after a write, or defers publishing to commit when the
// write is part of a transaction.
func (m *Mongo) touched(ctx context.Context, collection string) {
	if t := m.tx(ctx); t != nil {
		t.mu.Lock()
		t.touched[collection] = struct{}{}
		t.mu.Unlock()
		return
	}
	m.publish(collection)
}

func (m *Mongo) publish(collection string) {
	if err := m.hub.refresh(m.ctx, collection, m.loader(collection, nil)); err != nil && m.ctx.Err() == nil {
		m.log.Warn("Failed to refresh subscribers", "collection", collection, "error", err)
	}
}

func (m *Mongo) loader(collection string, filter bson.D) loader {
	return func(ctx context.Context) ([]bson.Raw, error) {
		if filter == nil {
			filter = bson.D{}
		}
		opts := options.Find().SetSort(bson.D{{Key: FieldRegisteredAt, Value: -1}, {Key: FieldID, Value: 1}})
		cursor, err := m.db.Collection(collection).Find(ctx, filter, opts)
		if err != nil {
			return nil, classify(err)
		}
		defer cursor.Close(ctx)

		var docs []bson.Raw
		for cursor.Next(ctx) {
			docs = append(docs, append(bson.Raw(nil), cursor.Current...))
		}
		if err := cursor.Err(); err != nil {
			return nil, classify(err)
		}
		return docs, nil
	}
}

func (m *Mongo) Get(ctx context.Context, collection, key string, out any) error {
	err := m.db.Collection(collection).FindOne(ctx, bson.D{{Key: FieldID, Value: key}}).Decode(out)
	return classify(err)
}

func (m *Mongo) Set(ctx context.Context, collection, key string, doc any) error {
	d, err := fields(doc)
	if err != nil {
		return err
	}
	update := bson.D{{Key: "$set", Value: d}}
	if len(d) == 0 {
		update = bson.D{{Key: "$setOnInsert", Value: bson.D{{Key: FieldID, Value: key}}}}
	}

	_, err = m.db.Collection(collection).UpdateOne(ctx,
		bson.D{{Key: FieldID, Value: key}},
		update,
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return classify(err)
	}
	m.touched(ctx, collection)
	return nil
}

func (m *Mongo) Add(ctx context.Context, collection string, doc any) (string, error) {
	d, id, err := withID(doc)
	if err != nil {
		return "", err
	}
	if _, err := m.db.Collection(collection).InsertOne(ctx, d); err != nil {
		return "", classify(err)
	}
	m.touched(ctx, collection)
	return id, nil
}

func (m *Mongo) List(ctx context.Context, collection string, out any) error {
	docs, err := m.loader(collection, nil)(ctx)
	if err != nil {
		return err
	}
	return decodeList(docs, out)
}

func (m *Mongo) ListBy(ctx context.Context, collection, field string, value any, out any) error {
	docs, err := m.loader(collection, bson.D{{Key: field, Value: value}})(ctx)
	if err != nil {
		return err
	}
	return decodeList(docs, out)
}

// Subscribe starts one change stream per collection. Deployments without
// change streams still see this process's own writes.
func (m *Mongo) Subscribe(ctx context.Context, collection string) (*Subscription, error) {
	sub, err := m.hub.subscribe(ctx, collection, m.loader(collection, nil))
	if err != nil {
		return nil, err
	}
	m.watch(collection)
	return sub, nil
}

func (m *Mongo) watch(collection string) {
	m.watchMu.Lock()
	defer m.watchMu.Unlock()
	if m.watching[collection] {
		return
	}

	stream, err := m.db.Collection(collection).Watch(m.ctx, mongo.Pipeline{})
	if err != nil {
		m.log.Warn("Change streams unavailable, subscribers will only see local writes",
			"collection", collection,
			"error", err,
		)
		return
	}
	m.watching[collection] = true

	go func() {
		defer func() {
			_ = stream.Close(context.Background())
			m.watchMu.Lock()
			delete(m.watching, collection)
			m.watchMu.Unlock()
		}()
		for stream.Next(m.ctx) {
			m.publish(collection)
		}
		if err := stream.Err(); err != nil && m.ctx.Err() == nil {
			m.log.Error("Change stream stopped", "collection", collection, "error", err)
		}
	}()
}

func (m *Mongo) Transact(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.tx(ctx) != nil {
		return fn(ctx)
	}

	t := &mongoTx{owner: m, touched: make(map[string]struct{})}
	var fnErr error
	err := m.tm.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		fnErr = fn(context.WithValue(sessCtx, mongoTxKey{}, t))
		return fnErr
	})
	if err != nil {
		if fnErr != nil && errors.Is(err, fnErr) {
			return fnErr
		}
		return classify(err)
	}

	for collection := range t.touched {
		m.publish(collection)
	}
	return nil
}

// SupportsTransactions reports whether the server is a replica set member or
// a mongos router. Standalone servers refuse multi-document transactions.
func (m *Mongo) SupportsTransactions(ctx context.Context) (bool, error) {
	var hello struct {
		SetName string `bson:"setName"`
		Msg     string `bson:"msg"`
	}
	if err := m.db.RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&hello); err != nil {
		return false, classify(err)
	}
	return hello.SetName != "" || hello.Msg == "isdbgrid", nil
}

func (m *Mongo) Ping(ctx context.Context) error {
	return classify(m.db.Client().Ping(ctx, readpref.Primary()))
}

// Close stops change streams and subscribers. The client is owned by the
// caller.
func (m *Mongo) Close(context.Context) error {
	m.cancel()
	m.hub.close()
	return nil
}
