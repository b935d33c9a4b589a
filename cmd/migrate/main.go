package main

import (
	"context"
	"time"

	mongoMigration "studyreg/internal/migrations/mongo"
	"studyreg/pkg/config"
)

const (
	JobName          = "mongo-migration"
	migrationTimeout = 120 * time.Second
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), migrationTimeout)
	defer cancel()

	cfg := config.Load(JobName)
	if cfg.StoreDemoMode() {
		cfg.Log.Fatal("MONGO_URI is not set, nothing to migrate")
	}
	cfg.SetMongo()
	if cfg.Client.Mongo == nil {
		cfg.Log.Fatal("MongoDB is unreachable")
	}

	cfg.Log.Info("Starting Mongo migration job")
	err := mongoMigration.RunMigration(ctx, cfg.Client.Mongo.Database(cfg.MongoDatabaseName), cfg.Log)
	cfg.GracefulShutdown()
	if err != nil {
		cfg.Log.Fatal("Migration failed", "error", err)
	}
	cfg.Log.Info("Migration completed successfully")
}
