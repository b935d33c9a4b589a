package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	kafka_config "studyreg/pkg/kafka/config"
	"studyreg/pkg/logger"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu     sync.Mutex
	err    error
	msgs   []kafka.Message
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func (w *fakeWriter) written() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

type fakeReader struct {
	msgs      chan kafka.Message
	mu        sync.Mutex
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case m := <-r.msgs:
		return m, nil
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func testConfig() *kafka_config.Config {
	return &kafka_config.Config{
		Brokers:            []string{"localhost:9092"},
		Topic:              "bookings",
		DLQTopic:           "bookings.dlq",
		GroupID:            "notifier",
		ConsumerMaxRetries: 2,
	}
}

func TestMessageBuilder(t *testing.T) {
	msg, err := NewMessage().
		WithKey("s1").
		WithValue(map[string]string{"id": "b1"}).
		WithEventType("booking.confirmed").
		WithRequestID("req-1").
		Build()
	require.NoError(t, err)

	assert.Equal(t, "s1", msg.Key)
	assert.JSONEq(t, `{"id":"b1"}`, string(msg.Value))
	assert.NotEmpty(t, msg.EventID())
	assert.Equal(t, "booking.confirmed", msg.EventType())
	assert.Equal(t, "req-1", msg.RequestID())
	assert.NotEmpty(t, msg.Headers[HeaderTimestamp])
}

func TestMessageBuilder_EncodingError(t *testing.T) {
	_, err := NewMessage().WithKey("k").WithValue(make(chan int)).Build()
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestMessage_RetryCount(t *testing.T) {
	msg := Message{}
	assert.Equal(t, 0, msg.RetryCount())
	for i := 0; i < 12; i++ {
		msg.IncrementRetryCount()
	}
	assert.Equal(t, 12, msg.RetryCount())
	assert.Equal(t, "12", msg.Headers[HeaderRetryCount])
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"nil", nil, ErrorTypeUnknown},
		{"explicit transient", NewTransientError("x", nil), ErrorTypeTransient},
		{"explicit permanent", NewPermanentError("x", nil), ErrorTypePermanent},
		{"deadline", context.DeadlineExceeded, ErrorTypeTransient},
		{"refused", errors.New("dial tcp: Connection Refused"), ErrorTypeTransient},
		{"unknown", errors.New("bad template"), ErrorTypePermanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(tt.err))
		})
	}

	assert.True(t, ShouldRetry(context.DeadlineExceeded, 0, 3))
	assert.False(t, ShouldRetry(context.DeadlineExceeded, 3, 3))
	assert.False(t, ShouldRetry(errors.New("bad template"), 0, 3))
}

func TestProducer_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, nil, "bookings", logger.Discard())

	var seen []string
	p.Use(func(ctx context.Context, msg Message, next func(context.Context, Message) error) error {
		seen = append(seen, msg.Topic)
		return next(ctx, msg)
	})

	msg, err := NewMessage().WithKey("s1").WithValue("hello").Build()
	require.NoError(t, err)
	require.NoError(t, p.Publish(context.Background(), msg))

	written := w.written()
	require.Len(t, written, 1)
	assert.Equal(t, "s1", string(written[0].Key))
	assert.Equal(t, []string{"bookings"}, seen)

	assert.ErrorIs(t, p.Publish(context.Background(), Message{Value: []byte("x")}), ErrEmptyKey)
	assert.ErrorIs(t, p.Publish(context.Background(), Message{Key: "k"}), ErrEmptyValue)

	require.NoError(t, p.Close())
	assert.ErrorIs(t, p.Publish(context.Background(), msg), ErrProducerClosed)
}

func TestProducer_FailureGoesToDLQ(t *testing.T) {
	w := &fakeWriter{err: errors.New("connection refused")}
	dlq := &fakeWriter{}
	p := newProducer(w, dlq, "bookings", logger.Discard())

	msg, err := NewMessage().WithKey("s1").WithValue("hello").Build()
	require.NoError(t, err)

	err = p.Publish(context.Background(), msg)
	require.Error(t, err)
	assert.Equal(t, ErrorTypeTransient, ClassifyError(err))

	parked := dlq.written()
	require.Len(t, parked, 1)
	headers := fromKafkaMessage(parked[0]).Headers
	assert.Equal(t, "bookings", headers[HeaderOriginalTopic])
	assert.Contains(t, headers[HeaderDLQError], "connection refused")
	assert.Empty(t, msg.Headers[HeaderDLQError], "caller's headers are not mutated")
}

func TestConsumer_RetriesTransientThenCommits(t *testing.T) {
	reader := &fakeReader{msgs: make(chan kafka.Message, 1)}
	dlq := &fakeWriter{}

	var mu sync.Mutex
	attempts := 0
	handler := func(ctx context.Context, msg Message) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 2 {
			return NewTransientError("smtp hiccup", nil)
		}
		return nil
	}

	c := newConsumer(reader, dlq, testConfig(), handler, logger.Discard())
	reader.msgs <- kafka.Message{Offset: 7, Key: []byte("s1"), Value: []byte("{}")}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	require.Eventually(t, func() bool { return len(reader.commits()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
	require.NoError(t, c.Close())

	assert.Equal(t, []int64{7}, reader.commits())
	assert.Equal(t, 2, attempts)
	assert.Empty(t, dlq.written())
}

func TestConsumer_PermanentFailureParksOnDLQ(t *testing.T) {
	reader := &fakeReader{msgs: make(chan kafka.Message, 1)}
	dlq := &fakeWriter{}
	handler := func(ctx context.Context, msg Message) error {
		var v struct{}
		return msg.DecodeValue(&v)
	}

	c := newConsumer(reader, dlq, testConfig(), handler, logger.Discard())
	reader.msgs <- kafka.Message{Offset: 3, Key: []byte("s1"), Value: []byte("not json")}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Start(ctx) }()

	require.Eventually(t, func() bool { return len(reader.commits()) == 1 }, time.Second, 5*time.Millisecond)

	parked := dlq.written()
	require.Len(t, parked, 1)
	assert.Equal(t, "notifier", fromKafkaMessage(parked[0]).Headers[HeaderDLQGroup])
}

func TestSleep_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, sleep(ctx, time.Hour))
	assert.True(t, sleep(context.Background(), 0))
}
