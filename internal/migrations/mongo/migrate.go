package mongo

import (
	"context"
	"fmt"

	"studyreg/internal/migrations/mongo/validators"
	"studyreg/pkg/logger"
	"studyreg/pkg/store"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type collectionDef struct {
	Indexes   []mongo.IndexModel
	Validator bson.M
}

var (
	// BookingsIndexes serve the collector roster, the per-slot counts behind
	// calendar edits and the newest-first admin listing.
	BookingsIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "collector_id", Value: 1}, {Key: "registered_at", Value: -1}}},
		{Keys: bson.D{
			{Key: "collector_id", Value: 1},
			{Key: "date", Value: 1},
			{Key: "time", Value: 1},
		}},
		{Keys: bson.D{{Key: "registered_at", Value: -1}}},
	}

	Collections = map[string]collectionDef{
		store.CollectionBookings: {
			Indexes:   BookingsIndexes,
			Validator: validators.BookingValidator,
		},
		store.CollectionAvailability: {
			Validator: validators.AvailabilityValidator,
		},
		store.CollectionCapacity: {
			Validator: validators.CapacityValidator,
		},
	}
)

// RunMigration creates the collections with their schema validators, or
// updates the validators of existing ones, and ensures indexes.
func RunMigration(ctx context.Context, db *mongo.Database, log *logger.Logger) error {
	log.Info("Running Mongo migrations", "database", db.Name())

	for name, def := range Collections {
		if err := ensureCollection(ctx, db, name, def.Validator, log); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", name, err)
		}
		if err := ensureIndexes(ctx, db, name, def.Indexes, log); err != nil {
			return fmt.Errorf("failed to ensure indexes for %s: %w", name, err)
		}
	}

	log.Info("All migrations applied successfully")
	return nil
}

func ensureCollection(ctx context.Context, db *mongo.Database, name string, validator bson.M, log *logger.Logger) error {
	existing, err := db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return err
	}

	if len(existing) == 0 {
		log.Info("Creating collection", "collection", name)
		opts := options.CreateCollection().SetValidator(validator)
		if err := db.CreateCollection(ctx, name, opts); err != nil {
			return fmt.Errorf("failed creating %s: %w", name, err)
		}
		return nil
	}

	log.Info("Collection exists, updating validator", "collection", name)
	command := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
	}
	if err := db.RunCommand(ctx, command).Err(); err != nil {
		log.Warn("Failed updating validator", "collection", name, "error", err)
	}
	return nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database, name string, models []mongo.IndexModel, log *logger.Logger) error {
	if len(models) == 0 {
		return nil
	}
	if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
		return err
	}
	log.Info("Ensured indexes", "collection", name, "count", len(models))
	return nil
}
