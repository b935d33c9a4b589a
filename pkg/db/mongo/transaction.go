package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "studyreg/pkg/errors"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

const defaultMaxCommitTime = 5 * time.Second

// ErrTransactionsUnsupported is returned when the server is a standalone
// mongod. Capacity checks and ledger appends need a replica set.
var ErrTransactionsUnsupported = errors.New("mongo transactions need a replica set")

type TransactionFunc func(ctx mongo.SessionContext) error

type TransactionManager interface {
	ExecuteTransaction(ctx context.Context, fn TransactionFunc) error
}

type mongoTransactionManager struct {
	client        *mongo.Client
	maxCommitTime time.Duration
}

func NewTransactionManager(client *mongo.Client) TransactionManager {
	return &mongoTransactionManager{
		client:        client,
		maxCommitTime: defaultMaxCommitTime,
	}
}

// ExecuteTransaction runs fn in a snapshot/majority transaction. The driver
// retries fn on transient write conflicts, so two appends racing for a
// collector's last seat serialize and the loser re-reads the new count.
// Errors fn returns, AppErrors included, come back unwrapped.
func (m *mongoTransactionManager) ExecuteTransaction(ctx context.Context, fn TransactionFunc) error {
	session, err := m.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	opts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority()).
		SetMaxCommitTime(&m.maxCommitTime)

	var fnErr error
	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (any, error) {
		fnErr = fn(sessCtx)
		return nil, fnErr
	}, opts)

	switch {
	case err == nil:
		return nil
	case apperrors.IsAppError(err):
		return err
	case fnErr != nil && errors.Is(err, fnErr):
		return fnErr
	case unsupported(err):
		return fmt.Errorf("%w: %v", ErrTransactionsUnsupported, err)
	default:
		return fmt.Errorf("transaction failed: %w", err)
	}
}

func unsupported(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && cmdErr.Code == 20 {
		return strings.Contains(cmdErr.Message, "replica set")
	}
	return strings.Contains(err.Error(), "Transaction numbers are only allowed on a replica set")
}
