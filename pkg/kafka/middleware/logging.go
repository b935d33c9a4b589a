package kafka_middleware

import (
	"context"
	"time"

	"studyreg/pkg/kafka"
	"studyreg/pkg/logger"
)

func LoggingProducerMiddleware(log *logger.Logger) kafka.ProducerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next func(ctx context.Context, msg kafka.Message) error) error {
		start := time.Now()
		err := next(ctx, msg)

		attrs := []any{
			"topic", msg.Topic,
			"key", msg.Key,
			"event_id", msg.EventID(),
			"event_type", msg.EventType(),
			"request_id", msg.RequestID(),
			"duration", time.Since(start),
		}
		if err != nil {
			log.Error("kafka publish failed", append(attrs, "error", err)...)
		} else {
			log.Debug("kafka message published", attrs...)
		}
		return err
	}
}

func LoggingConsumerMiddleware(log *logger.Logger) kafka.ConsumerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next kafka.MessageHandler) error {
		start := time.Now()
		err := next(ctx, msg)

		attrs := []any{
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", msg.Key,
			"event_id", msg.EventID(),
			"retry_count", msg.RetryCount(),
			"duration", time.Since(start),
		}
		if err != nil {
			log.Warn("kafka message handler failed", append(attrs, "error", err)...)
		} else {
			log.Info("kafka message processed", attrs...)
		}
		return err
	}
}
