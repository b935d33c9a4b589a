package config

const (
	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvSessionTTL          = "SESSION_TTL"
	EnvNotificationTimeout = "NOTIFICATION_TIMEOUT"
	EnvDefaultCapacity     = "DEFAULT_CAPACITY"

	EnvSendGridAPIKey        = "SENDGRID_API_KEY"
	EnvEmailFromAddress      = "EMAIL_FROM_ADDRESS"
	EnvEmailFromName         = "EMAIL_FROM_NAME"
	EnvParticipantTemplateID = "EMAIL_PARTICIPANT_TEMPLATE_ID"
	EnvCollectorTemplateID   = "EMAIL_COLLECTOR_TEMPLATE_ID"
	EnvIRBNumber             = "IRB_NUMBER"

	EnvAdminCode      = "ADMIN_CODE"
	EnvCollectorCodes = "COLLECTOR_CODES"
	EnvTokenKey       = "TOKEN_KEY"
	EnvTokenTTL       = "TOKEN_TTL"

	EnvKafkaEnabled = "KAFKA_ENABLED"
)
