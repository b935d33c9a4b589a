package kafka_config

import "time"

const (
	DefaultKafkaBrokers  = "localhost:9092"
	DefaultKafkaTopic    = "studyreg.booking-confirmed"
	DefaultKafkaDLQTopic = "studyreg.booking-confirmed.dlq"
	DefaultKafkaGroupID  = "studyreg-notifier"

	DefaultProducerMaxAttempts  = 3
	DefaultProducerBatchTimeout = 10 * time.Millisecond
	DefaultProducerRequireAcks  = -1 // all in-sync replicas
	DefaultProducerCompression  = "snappy"

	DefaultConsumerStartOffset    = -2 // oldest, so nothing published before the first start is skipped
	DefaultConsumerMaxWait        = 500 * time.Millisecond
	DefaultConsumerCommitInterval = 0 // synchronous commits
	DefaultConsumerMaxRetries     = 3
	DefaultConsumerRetryBackoff   = 2 * time.Second
)
