package notifications

import (
	"context"

	"studyreg/pkg/logger"
	"studyreg/pkg/model"
)

// ConsoleSender renders the messages and logs them instead of sending. It is
// the demo-mode sender and never fails on delivery.
type ConsoleSender struct {
	irb string
	log *logger.Logger
}

func NewConsoleSender(irb string, log *logger.Logger) *ConsoleSender {
	return &ConsoleSender{irb: irb, log: log}
}

func (s *ConsoleSender) SendParticipantConfirmation(ctx context.Context, booking model.Booking, collector model.Collector) error {
	email, err := renderParticipantEmail(newTemplateData(booking, collector, s.irb))
	if err != nil {
		return err
	}
	s.logEmail("participant_confirmation", booking.ID, email)
	return nil
}

func (s *ConsoleSender) SendCollectorNotification(ctx context.Context, booking model.Booking, collector model.Collector) error {
	email, err := renderCollectorEmail(newTemplateData(booking, collector, s.irb))
	if err != nil {
		return err
	}
	s.logEmail("collector_notification", booking.ID, email)
	return nil
}

func (s *ConsoleSender) logEmail(kind, bookingID string, email Email) {
	s.log.Info("simulated email",
		"kind", kind,
		"booking_id", bookingID,
		"to", email.To,
		"subject", email.Subject,
		"body", email.Body,
	)
}
