package notifications

import (
	"context"
	"errors"
	"sync"
	"time"

	"studyreg/pkg/kafka"
	"studyreg/pkg/logger"
	"studyreg/pkg/model"
)

const (
	EventTypeBookingConfirmed = "booking.confirmed"
	eventSchemaVersion        = "1"
	eventSource               = "studyreg-registration"
)

// Publisher is the part of *kafka.Producer the dispatcher needs.
type Publisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

// KafkaDispatcher hands booking events to the notifier service through
// Kafka. When publishing fails the event is delivered locally instead.
type KafkaDispatcher struct {
	publisher Publisher
	fallback  Dispatcher
	timeout   time.Duration
	log       *logger.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewKafkaDispatcher(publisher Publisher, fallback Dispatcher, timeout time.Duration, log *logger.Logger) *KafkaDispatcher {
	return &KafkaDispatcher{
		publisher: publisher,
		fallback:  fallback,
		timeout:   timeout,
		log:       log,
	}
}

func (d *KafkaDispatcher) Dispatch(event model.BookingConfirmedEvent) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.fallback.Dispatch(event)
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.publish(ctx, event); err != nil {
			d.log.Warn("booking event publish failed, delivering locally",
				"booking_id", event.Booking.ID,
				"error", err,
			)
			d.fallback.Dispatch(event)
		}
	}()
}

func (d *KafkaDispatcher) publish(ctx context.Context, event model.BookingConfirmedEvent) error {
	msg, err := NewBookingConfirmedMessage(event, "")
	if err != nil {
		return err
	}
	return d.publisher.Publish(ctx, msg)
}

// Close waits for pending publishes, then closes the fallback.
func (d *KafkaDispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return d.fallback.Close(ctx)
}

// NewBookingConfirmedMessage wraps an event for the booking topic, keyed by
// collector so one collector's notifications stay in order.
func NewBookingConfirmedMessage(event model.BookingConfirmedEvent, requestID string) (kafka.Message, error) {
	b := kafka.NewMessage().
		WithKey(event.Booking.CollectorID).
		WithValue(event).
		WithEventType(EventTypeBookingConfirmed).
		WithSchemaVersion(eventSchemaVersion).
		WithSource(eventSource).
		WithRequestID(requestID)
	if event.EventID != "" {
		b = b.WithHeader(kafka.HeaderEventID, event.EventID)
	}
	return b.Build()
}

// NewEventHandler returns the notifier's consumer handler. Provider
// rejections and undecodable payloads are permanent; anything else is
// retried by the consumer.
func NewEventHandler(sender Sender, timeout time.Duration, log *logger.Logger) kafka.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		if t := msg.EventType(); t != "" && t != EventTypeBookingConfirmed {
			log.Debug("ignoring unrelated event", "event_type", t, "event_id", msg.EventID())
			return nil
		}

		var event model.BookingConfirmedEvent
		if err := msg.DecodeValue(&event); err != nil {
			return err
		}
		if event.Booking.ID == "" {
			return kafka.NewPermanentError("booking event without booking id", kafka.ErrInvalidMessage)
		}

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		if err := Deliver(ctx, sender, event.Booking, event.Collector); err != nil {
			if errors.Is(err, ErrRejected) {
				return kafka.NewPermanentError("notification rejected", err)
			}
			return kafka.NewTransientError("notification send failed", err)
		}
		log.Info("notifications sent", "booking_id", event.Booking.ID, "event_id", msg.EventID())
		return nil
	}
}
