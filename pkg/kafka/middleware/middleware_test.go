package kafka_middleware

import (
	"context"
	"errors"
	"testing"

	"studyreg/pkg/kafka"
	"studyreg/pkg/logger"

	"github.com/stretchr/testify/assert"
)

func TestMetrics_CountsOutcomes(t *testing.T) {
	m := NewMetrics()
	produce := m.ProducerMiddleware()
	consume := m.ConsumerMiddleware()

	ok := func(context.Context, kafka.Message) error { return nil }
	fail := func(context.Context, kafka.Message) error { return errors.New("boom") }

	_ = produce(context.Background(), kafka.Message{}, ok)
	_ = produce(context.Background(), kafka.Message{}, fail)
	_ = consume(context.Background(), kafka.Message{}, ok)

	s := m.Snapshot()
	assert.Equal(t, int64(1), s.Published)
	assert.Equal(t, int64(1), s.PublishFailed)
	assert.Equal(t, int64(1), s.Consumed)
	assert.Equal(t, int64(0), s.ConsumeFailed)
	assert.Len(t, s.LogValues(), 12)
}

func TestLoggingMiddleware_PassesErrorThrough(t *testing.T) {
	want := errors.New("boom")
	mw := LoggingConsumerMiddleware(logger.Discard())
	err := mw(context.Background(), kafka.Message{}, func(context.Context, kafka.Message) error { return want })
	assert.ErrorIs(t, err, want)

	pmw := LoggingProducerMiddleware(logger.Discard())
	assert.NoError(t, pmw(context.Background(), kafka.Message{}, func(context.Context, kafka.Message) error { return nil }))
}
