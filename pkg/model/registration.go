package model

import "time"

// Step is a state of the participant registration flow.
type Step string

const (
	StepProfile    Step = "profile"
	StepConsent    Step = "consent"
	StepScheduling Step = "scheduling"
	StepReview     Step = "review"
	StepConfirmed  Step = "confirmed"
	StepDeclined   Step = "declined"
)

func (s Step) Terminal() bool {
	return s == StepConfirmed || s == StepDeclined
}

// Registration is one participant's pass through the flow. It holds the
// current step and the values collected so far; it is never persisted.
type Registration struct {
	ID          string    `json:"id"`
	Step        Step      `json:"step"`
	Profile     *Profile  `json:"profile,omitempty"`
	ConsentedAt time.Time `json:"consented_at,omitzero"`
	CollectorID string    `json:"collector_id,omitempty"`
	Date        string    `json:"date,omitempty"`
	Time        string    `json:"time,omitempty"`
	Booking     *Booking  `json:"booking,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Clone returns a deep copy safe to hand outside the owning session lock.
func (r *Registration) Clone() *Registration {
	c := *r
	if r.Profile != nil {
		p := *r.Profile
		c.Profile = &p
	}
	if r.Booking != nil {
		b := *r.Booking
		c.Booking = &b
	}
	return &c
}

// ClearSelection drops collector, date and time.
func (r *Registration) ClearSelection() {
	r.CollectorID = ""
	r.Date = ""
	r.Time = ""
}
