package notifications

import (
	"bytes"
	"fmt"
	"text/template"
)

// Email is a rendered plain-text message.
type Email struct {
	To      string
	ToName  string
	Subject string
	Body    string
}

var (
	participantSubject = template.Must(template.New("participant_subject").Parse(
		`Study Registration Confirmed - {{.IRBNumber}}`))

	participantBody = template.Must(template.New("participant_body").Parse(`Dear {{.ParticipantName}},

Thank you for registering for the Cognitive Fatigue & Test Performance Study.

YOUR SESSION DETAILS
------------------------------------
  Data Collector : {{.CollectorName}}
  Session 1      : {{.SessionDate}} at {{.SessionTime}}
  Session 2      : {{.SecondSession}} (same time slot)
  Location       : TBD (we will follow up)
{{- if .HasPhone}}

  We may send reminders to {{.ParticipantPhone}}.
{{- end}}
------------------------------------
Please arrive 5 minutes early for sensor setup. If you need to reschedule or
withdraw, contact us at any time.

Best regards,
Study Management Team
{{.IRBNumber}}
`))

	collectorSubject = template.Must(template.New("collector_subject").Parse(
		`New Booking - {{.SessionDate}} at {{.SessionTime}}`))

	collectorBody = template.Must(template.New("collector_body").Parse(`Hi {{.CollectorName}},

A new participant has just booked a session with you.

PARTICIPANT DETAILS
------------------------------------
  Name    : {{.ParticipantName}}
  Email   : {{.ParticipantEmail}}
  Age     : {{.ParticipantAge}}
  Level   : {{.ParticipantLevel}}
{{- if .HasPhone}}
  Phone   : {{.ParticipantPhone}}
{{- end}}
  Reg. ID : {{.RegistrationID}}
------------------------------------
SESSION
  Date    : {{.SessionDate}}
  Time    : {{.SessionTime}}
------------------------------------

Please confirm your materials are ready for this session.

Best,
Study Management System
{{.IRBNumber}}
`))
)

func renderParticipantEmail(d TemplateData) (Email, error) {
	d = d.forParticipant()
	return render(d, participantSubject, participantBody)
}

func renderCollectorEmail(d TemplateData) (Email, error) {
	d = d.forCollector()
	return render(d, collectorSubject, collectorBody)
}

func render(d TemplateData, subject, body *template.Template) (Email, error) {
	var s, b bytes.Buffer
	if err := subject.Execute(&s, d); err != nil {
		return Email{}, fmt.Errorf("render %s: %w", subject.Name(), err)
	}
	if err := body.Execute(&b, d); err != nil {
		return Email{}, fmt.Errorf("render %s: %w", body.Name(), err)
	}
	return Email{
		To:      d.ToEmail,
		ToName:  d.ToName,
		Subject: s.String(),
		Body:    b.String(),
	}, nil
}
