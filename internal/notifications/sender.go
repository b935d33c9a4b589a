package notifications

import (
	"context"
	"fmt"

	"studyreg/pkg/config"
	"studyreg/pkg/logger"
	"studyreg/pkg/model"
)

// CodeNotificationFailure tags log lines for sends that failed after the
// booking committed. Such failures are never returned to the participant.
const CodeNotificationFailure = "NOTIFICATION_FAILURE"

// Sender delivers the two messages that follow a confirmed booking.
type Sender interface {
	SendParticipantConfirmation(ctx context.Context, booking model.Booking, collector model.Collector) error
	SendCollectorNotification(ctx context.Context, booking model.Booking, collector model.Collector) error
}

// NewSender returns the SendGrid sender when credentials are configured and
// the console sender otherwise.
func NewSender(cfg *config.Config, log *logger.Logger) Sender {
	if cfg.EmailDemoMode() {
		log.Warn("email credentials missing or placeholder, notifications are simulated")
		return NewConsoleSender(cfg.IRBNumber, log)
	}
	return NewSendGridSender(SendGridConfig{
		APIKey:                cfg.SendGridAPIKey,
		FromAddress:           cfg.EmailFromAddress,
		FromName:              cfg.EmailFromName,
		ParticipantTemplateID: cfg.ParticipantTemplateID,
		CollectorTemplateID:   cfg.CollectorTemplateID,
		IRBNumber:             cfg.IRBNumber,
	}, log)
}

// Deliver sends both messages. The collector message is attempted even when
// the participant message fails.
func Deliver(ctx context.Context, sender Sender, booking model.Booking, collector model.Collector) error {
	participantErr := sender.SendParticipantConfirmation(ctx, booking, collector)
	collectorErr := sender.SendCollectorNotification(ctx, booking, collector)

	switch {
	case participantErr != nil && collectorErr != nil:
		return fmt.Errorf("participant: %w; collector: %v", participantErr, collectorErr)
	case participantErr != nil:
		return fmt.Errorf("participant: %w", participantErr)
	case collectorErr != nil:
		return fmt.Errorf("collector: %w", collectorErr)
	}
	return nil
}

// TemplateData is the dynamic data both email templates are rendered with.
type TemplateData struct {
	ParticipantName  string `json:"participant_name"`
	ParticipantEmail string `json:"participant_email"`
	ParticipantAge   string `json:"participant_age"`
	ParticipantLevel string `json:"participant_level"`
	ParticipantPhone string `json:"participant_phone"`
	CollectorName    string `json:"collector_name"`
	CollectorEmail   string `json:"collector_email"`
	SessionDate      string `json:"session_date"`
	SessionTime      string `json:"session_time"`
	SecondSession    string `json:"second_session_date"`
	RegistrationID   string `json:"registration_id"`
	IRBNumber        string `json:"irb_number"`
	ToEmail          string `json:"to_email"`
	ToName           string `json:"to_name"`
	HasPhone         bool   `json:"-"`
}

func newTemplateData(b model.Booking, c model.Collector, irb string) TemplateData {
	phone := b.Phone
	if phone == "" {
		phone = "Not provided"
	}
	collectorEmail := c.Email
	if collectorEmail == "" {
		collectorEmail = b.CollectorEmail
	}
	collectorName := c.Name
	if collectorName == "" {
		collectorName = b.CollectorName
	}
	return TemplateData{
		ParticipantName:  b.Name,
		ParticipantEmail: b.Email,
		ParticipantAge:   b.AgeString(),
		ParticipantLevel: b.Level + " · " + b.Major,
		ParticipantPhone: phone,
		CollectorName:    collectorName,
		CollectorEmail:   collectorEmail,
		SessionDate:      model.ReadableDate(b.Date),
		SessionTime:      b.Time,
		SecondSession:    model.ReadableDate(model.AddDays(b.Date, 3)),
		RegistrationID:   b.ID,
		IRBNumber:        irb,
		HasPhone:         b.Phone != "",
	}
}

// forParticipant addresses the data to the participant.
func (d TemplateData) forParticipant() TemplateData {
	d.ToEmail = d.ParticipantEmail
	d.ToName = d.ParticipantName
	return d
}

// forCollector addresses the data to the collector.
func (d TemplateData) forCollector() TemplateData {
	d.ToEmail = d.CollectorEmail
	d.ToName = d.CollectorName
	return d
}

// Map returns the data keyed by its JSON names for template engines that
// take a plain map.
func (d TemplateData) Map() map[string]any {
	return map[string]any{
		"participant_name":    d.ParticipantName,
		"participant_email":   d.ParticipantEmail,
		"participant_age":     d.ParticipantAge,
		"participant_level":   d.ParticipantLevel,
		"participant_phone":   d.ParticipantPhone,
		"collector_name":      d.CollectorName,
		"collector_email":     d.CollectorEmail,
		"session_date":        d.SessionDate,
		"session_time":        d.SessionTime,
		"second_session_date": d.SecondSession,
		"registration_id":     d.RegistrationID,
		"irb_number":          d.IRBNumber,
		"to_email":            d.ToEmail,
		"to_name":             d.ToName,
	}
}
