package config

import "time"

const (
	DefaultMongoDatabaseName = "studyreg"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultPort     = "8080"
	DefaultLogLevel = "info"

	DefaultRateLimitRequests = 30
	DefaultRateLimitWindow   = 1 * time.Minute

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 64 * 1024

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultSessionTTL          = 2 * time.Hour
	DefaultNotificationTimeout = 15 * time.Second
	DefaultCapacity            = 20

	DefaultEmailFromName = "Research Study Team"
	DefaultIRBNumber     = "IRB-2025-304"

	DefaultAdminCode = "0000"
	DefaultTokenTTL  = 12 * time.Hour
)
