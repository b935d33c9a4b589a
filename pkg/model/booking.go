package model

import (
	"strconv"
	"time"
)

var AcademicLevels = []string{"Freshman", "Sophomore", "Junior", "Senior", "Graduate Student"}

const (
	MinParticipantAge = 18
	MaxParticipantAge = 30
)

type Profile struct {
	FirstName string `json:"first_name" bson:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" bson:"last_name" validate:"required,max=100"`
	Email     string `json:"email" bson:"email" validate:"required,email"`
	Age       int    `json:"age" bson:"age" validate:"required,min=18,max=30"`
	Level     string `json:"level" bson:"level" validate:"required,academic_level"`
	Major     string `json:"major" bson:"major" validate:"required,max=100"`
	Phone     string `json:"phone,omitempty" bson:"phone,omitempty"`
}

func (p Profile) FullName() string {
	return p.FirstName + " " + p.LastName
}

// Booking is one confirmed participant-to-slot assignment. Collector name and
// email are captured at booking time.
type Booking struct {
	ID             string    `json:"id" bson:"_id,omitempty"`
	RegisteredAt   time.Time `json:"registered_at" bson:"registered_at"`
	Name           string    `json:"name" bson:"name"`
	FirstName      string    `json:"first_name" bson:"first_name" validate:"required"`
	LastName       string    `json:"last_name" bson:"last_name" validate:"required"`
	Email          string    `json:"email" bson:"email" validate:"required,email"`
	Age            int       `json:"age" bson:"age" validate:"min=18,max=30"`
	Level          string    `json:"level" bson:"level" validate:"required,academic_level"`
	Major          string    `json:"major" bson:"major" validate:"required"`
	Phone          string    `json:"phone,omitempty" bson:"phone,omitempty"`
	CollectorID    string    `json:"collector_id" bson:"collector_id" validate:"required"`
	CollectorName  string    `json:"collector_name" bson:"collector_name"`
	CollectorEmail string    `json:"collector_email" bson:"collector_email"`
	Date           string    `json:"date" bson:"date" validate:"required,calendar_date"`
	Time           string    `json:"time" bson:"time" validate:"required,day_part"`
}

// NewBooking assembles a booking from a participant profile and a slot.
func NewBooking(p Profile, c Collector, date, timeLabel string) Booking {
	return Booking{
		Name:           p.FullName(),
		FirstName:      p.FirstName,
		LastName:       p.LastName,
		Email:          p.Email,
		Age:            p.Age,
		Level:          p.Level,
		Major:          p.Major,
		Phone:          p.Phone,
		CollectorID:    c.ID,
		CollectorName:  c.Name,
		CollectorEmail: c.Email,
		Date:           date,
		Time:           timeLabel,
	}
}

func (b Booking) Profile() Profile {
	return Profile{
		FirstName: b.FirstName,
		LastName:  b.LastName,
		Email:     b.Email,
		Age:       b.Age,
		Level:     b.Level,
		Major:     b.Major,
		Phone:     b.Phone,
	}
}

func (b Booking) AgeString() string {
	return strconv.Itoa(b.Age)
}

// BookingConfirmedEvent is handed to the notification task after a booking
// commits.
type BookingConfirmedEvent struct {
	EventID   string    `json:"event_id"`
	Booking   Booking   `json:"booking"`
	Collector Collector `json:"collector"`
	CreatedAt time.Time `json:"created_at"`
}
