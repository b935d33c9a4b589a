package notifications

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"studyreg/pkg/logger"
	"studyreg/pkg/model"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	sendGridHost     = "https://api.sendgrid.com"
	sendGridEndpoint = "/v3/mail/send"
)

// ErrRejected marks a send the provider refused outright (4xx). Retrying it
// will not help.
var ErrRejected = errors.New("email rejected by provider")

type SendGridConfig struct {
	APIKey                string
	FromAddress           string
	FromName              string
	ParticipantTemplateID string
	CollectorTemplateID   string
	IRBNumber             string
	// Host overrides the API host. Empty means the public SendGrid API.
	Host string
}

// SendGridSender delivers through SendGrid. With a template ID configured
// the message uses that dynamic template; without one the plain-text
// rendering is sent.
type SendGridSender struct {
	cfg  SendGridConfig
	from *sgmail.Email
	log  *logger.Logger
}

func NewSendGridSender(cfg SendGridConfig, log *logger.Logger) *SendGridSender {
	if cfg.Host == "" {
		cfg.Host = sendGridHost
	}
	return &SendGridSender{
		cfg:  cfg,
		from: sgmail.NewEmail(cfg.FromName, cfg.FromAddress),
		log:  log,
	}
}

func (s *SendGridSender) SendParticipantConfirmation(ctx context.Context, booking model.Booking, collector model.Collector) error {
	data := newTemplateData(booking, collector, s.cfg.IRBNumber)
	email, err := renderParticipantEmail(data)
	if err != nil {
		return err
	}
	return s.send(ctx, s.prepare(email, s.cfg.ParticipantTemplateID, data.forParticipant()))
}

func (s *SendGridSender) SendCollectorNotification(ctx context.Context, booking model.Booking, collector model.Collector) error {
	data := newTemplateData(booking, collector, s.cfg.IRBNumber)
	email, err := renderCollectorEmail(data)
	if err != nil {
		return err
	}
	if email.To == "" {
		return fmt.Errorf("%w: collector %s has no email address", ErrRejected, booking.CollectorID)
	}
	return s.send(ctx, s.prepare(email, s.cfg.CollectorTemplateID, data.forCollector()))
}

func (s *SendGridSender) prepare(email Email, templateID string, data TemplateData) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.AddTos(sgmail.NewEmail(email.ToName, email.To))

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)

	if templateID != "" {
		m.SetTemplateID(templateID)
		for k, v := range data.Map() {
			p.SetDynamicTemplateData(k, v)
		}
	} else {
		p.Subject = email.Subject
		m.AddContent(sgmail.NewContent("text/plain", email.Body))
	}

	m.AddPersonalizations(p)
	return m
}

func (s *SendGridSender) send(ctx context.Context, m *sgmail.SGMailV3) error {
	req := sendgrid.GetRequest(s.cfg.APIKey, sendGridEndpoint, s.cfg.Host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(m)

	res, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	switch {
	case res.StatusCode >= http.StatusInternalServerError || res.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("sendgrid: status %d: %s", res.StatusCode, res.Body)
	case res.StatusCode >= http.StatusBadRequest:
		return fmt.Errorf("%w: status %d: %s", ErrRejected, res.StatusCode, res.Body)
	}
	s.log.Debug("email accepted by sendgrid", "status", res.StatusCode)
	return nil
}
