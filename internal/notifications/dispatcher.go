package notifications

import (
	"context"
	"sync"
	"time"

	"studyreg/pkg/logger"
	"studyreg/pkg/model"
)

// Dispatcher runs the post-commit notification task. Dispatch never blocks
// on delivery and never reports back to the caller.
type Dispatcher interface {
	Dispatch(event model.BookingConfirmedEvent)
	Close(ctx context.Context) error
}

// LocalDispatcher delivers in a goroutine per event, each bounded by its own
// timeout.
type LocalDispatcher struct {
	sender  Sender
	timeout time.Duration
	log     *logger.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewLocalDispatcher(sender Sender, timeout time.Duration, log *logger.Logger) *LocalDispatcher {
	return &LocalDispatcher{
		sender:  sender,
		timeout: timeout,
		log:     log,
	}
}

func (d *LocalDispatcher) Dispatch(event model.BookingConfirmedEvent) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.log.Warn("notification dropped, dispatcher closed", "booking_id", event.Booking.ID)
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		d.deliver(ctx, event)
	}()
}

func (d *LocalDispatcher) deliver(ctx context.Context, event model.BookingConfirmedEvent) {
	start := time.Now()
	if err := Deliver(ctx, d.sender, event.Booking, event.Collector); err != nil {
		d.log.Error("notification send failed",
			"error_code", CodeNotificationFailure,
			"booking_id", event.Booking.ID,
			"collector_id", event.Booking.CollectorID,
			"duration", time.Since(start),
			"error", err,
		)
		return
	}
	d.log.Info("notifications sent",
		"booking_id", event.Booking.ID,
		"collector_id", event.Booking.CollectorID,
		"duration", time.Since(start),
	)
}

// Close stops accepting events and waits for in-flight sends or ctx.
func (d *LocalDispatcher) Close(ctx context.Context) error {
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
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
