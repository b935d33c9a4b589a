package kafka_middleware

import (
	"context"
	"sync/atomic"
	"time"

	"studyreg/pkg/kafka"
)

// Metrics counts publish and consume outcomes. One instance is shared by the
// middlewares of a process and reported through Snapshot.
type Metrics struct {
	published     atomic.Int64
	publishFailed atomic.Int64
	publishNanos  atomic.Int64
	consumed      atomic.Int64
	consumeFailed atomic.Int64
	consumeNanos  atomic.Int64
}

type MetricsSnapshot struct {
	Published          int64         `json:"published"`
	PublishFailed      int64         `json:"publish_failed"`
	AvgPublishDuration time.Duration `json:"avg_publish_duration"`
	Consumed           int64         `json:"consumed"`
	ConsumeFailed      int64         `json:"consume_failed"`
	AvgConsumeDuration time.Duration `json:"avg_consume_duration"`
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Published:     m.published.Load(),
		PublishFailed: m.publishFailed.Load(),
		Consumed:      m.consumed.Load(),
		ConsumeFailed: m.consumeFailed.Load(),
	}
	if total := s.Published + s.PublishFailed; total > 0 {
		s.AvgPublishDuration = time.Duration(m.publishNanos.Load() / total)
	}
	if total := s.Consumed + s.ConsumeFailed; total > 0 {
		s.AvgConsumeDuration = time.Duration(m.consumeNanos.Load() / total)
	}
	return s
}

// LogValues flattens the snapshot into slog key/value pairs.
func (s MetricsSnapshot) LogValues() []any {
	return []any{
		"published", s.Published,
		"publish_failed", s.PublishFailed,
		"avg_publish_duration", s.AvgPublishDuration,
		"consumed", s.Consumed,
		"consume_failed", s.ConsumeFailed,
		"avg_consume_duration", s.AvgConsumeDuration,
	}
}

func (m *Metrics) ProducerMiddleware() kafka.ProducerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next func(ctx context.Context, msg kafka.Message) error) error {
		start := time.Now()
		err := next(ctx, msg)
		m.publishNanos.Add(int64(time.Since(start)))
		if err != nil {
			m.publishFailed.Add(1)
		} else {
			m.published.Add(1)
		}
		return err
	}
}

func (m *Metrics) ConsumerMiddleware() kafka.ConsumerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next kafka.MessageHandler) error {
		start := time.Now()
		err := next(ctx, msg)
		m.consumeNanos.Add(int64(time.Since(start)))
		if err != nil {
			m.consumeFailed.Add(1)
		} else {
			m.consumed.Add(1)
		}
		return err
	}
}
