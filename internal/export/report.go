package export

import (
	"fmt"
	"math"
	"strings"
	"time"

	"studyreg/pkg/model"
)

const (
	SheetParticipants = "Participant Registrations"
	SheetBookings     = "Session Bookings"
	SheetAvailability = "Collector Availability"
	SheetSummary      = "Summary"

	// SecondSessionGapDays is how long after the first session the second
	// one is held, at the same time of day.
	SecondSessionGapDays = 3

	timestampLayout = "2006-01-02 15:04:05"
)

// Input is everything the workbook is projected from.
type Input struct {
	Roster          model.Roster
	Bookings        []model.Booking // newest first, as the ledger returns them
	Calendars       map[string]*model.Calendar
	Capacities      map[string]model.Capacity
	DefaultCapacity int
	GeneratedAt     time.Time
	Location        *time.Location
}

type Sheet struct {
	Name    string
	Headers []string
	Rows    [][]any
	Widths  []float64
}

type Report struct {
	GeneratedAt time.Time
	Sheets      []Sheet
}

// FileName is the download name for a workbook generated at t.
func FileName(t time.Time) string {
	return fmt.Sprintf("study-data-%s.xlsx", t.UTC().Format(model.DateLayout))
}

// Build projects the ledger and availability into the four report sheets.
// It does no I/O.
func Build(in Input) Report {
	if in.Location == nil {
		in.Location = time.UTC
	}
	booked := make(map[string]int, len(in.Roster))
	for _, b := range in.Bookings {
		booked[b.CollectorID]++
	}

	return Report{
		GeneratedAt: in.GeneratedAt,
		Sheets: []Sheet{
			participantSheet(in),
			bookingSheet(in),
			availabilitySheet(in, booked),
			summarySheet(in, booked),
		},
	}
}

func participantSheet(in Input) Sheet {
	s := Sheet{
		Name:    SheetParticipants,
		Headers: []string{"#", "Registration ID", "Registered At", "First Name", "Last Name", "Email", "Age", "Academic Level", "Major", "Phone"},
		Widths:  []float64{4, 14, 20, 12, 14, 28, 5, 16, 22, 15},
	}
	for i, b := range in.Bookings {
		s.Rows = append(s.Rows, []any{
			i + 1, b.ID, timestamp(b.RegisteredAt, in.Location),
			b.FirstName, b.LastName, b.Email, b.Age, b.Level, b.Major, b.Phone,
		})
	}
	return placeholder(s, "No registrations yet")
}

func bookingSheet(in Input) Sheet {
	s := Sheet{
		Name: SheetBookings,
		Headers: []string{"#", "Registration ID", "Participant Name", "Email", "Data Collector", "Collector Email",
			"Session 1 Date", "Session 1 Time", "Session 2 Date", "Session 2 Time", "Registered At"},
		Widths: []float64{4, 14, 22, 26, 22, 26, 14, 10, 14, 10, 20},
	}
	for i, b := range in.Bookings {
		s.Rows = append(s.Rows, []any{
			i + 1, b.ID, b.Name, b.Email, b.CollectorName, b.CollectorEmail,
			b.Date, b.Time, model.AddDays(b.Date, SecondSessionGapDays), b.Time,
			timestamp(b.RegisteredAt, in.Location),
		})
	}
	return placeholder(s, "No bookings yet")
}

func availabilitySheet(in Input, booked map[string]int) Sheet {
	s := Sheet{
		Name:    SheetAvailability,
		Headers: []string{"Collector", "Collector Email", "Date", "Date (Readable)", "Available Times", "Slot Count", "Capacity", "Booked", "Remaining"},
		Widths:  []float64{22, 26, 12, 22, 40, 10, 10, 8, 10},
	}
	for _, c := range in.Roster {
		cal := in.Calendars[c.ID]
		if cal == nil {
			continue
		}
		ceiling := ceilingFor(in, c.ID)
		for _, date := range cal.AllDates() {
			times := cal.Times(date)
			s.Rows = append(s.Rows, []any{
				c.Name, c.Email, date, model.ReadableDate(date),
				strings.Join(times, ", "), len(times),
				ceiling, booked[c.ID], ceiling - booked[c.ID],
			})
		}
	}
	return placeholder(s, "No availability set")
}

func summarySheet(in Input, booked map[string]int) Sheet {
	s := Sheet{
		Name:    SheetSummary,
		Headers: []string{"Collector", "Email", "Capacity", "Total Booked", "Remaining", "Fill Rate", "Available Days", "Open Slots"},
		Widths:  []float64{22, 26, 10, 13, 10, 10, 14, 11},
	}

	var totalCapacity, totalBooked, totalRemaining, totalOpen int
	for _, c := range in.Roster {
		ceiling := ceilingFor(in, c.ID)
		n := booked[c.ID]
		days, open := 0, 0
		if cal := in.Calendars[c.ID]; cal != nil {
			days = len(cal.Dates)
			open = cal.SlotCount()
		}
		s.Rows = append(s.Rows, []any{
			c.Name, c.Email, ceiling, n, ceiling - n, FillRate(n, ceiling), days, open,
		})
		totalCapacity += ceiling
		totalBooked += n
		totalRemaining += ceiling - n
		totalOpen += open
	}
	s.Rows = append(s.Rows, []any{"TOTAL", "", totalCapacity, totalBooked, totalRemaining, "", "", totalOpen})
	return s
}

// FillRate renders booked/ceiling as a rounded percentage.
func FillRate(booked, ceiling int) string {
	if ceiling <= 0 {
		return "-"
	}
	return fmt.Sprintf("%d%%", int(math.Round(float64(booked)/float64(ceiling)*100)))
}

func ceilingFor(in Input, collectorID string) int {
	if c, ok := in.Capacities[collectorID]; ok {
		return c.Ceiling
	}
	return in.DefaultCapacity
}

// placeholder swaps an empty sheet for a single titled column.
func placeholder(s Sheet, title string) Sheet {
	if len(s.Rows) > 0 {
		return s
	}
	return Sheet{
		Name:    s.Name,
		Headers: []string{title},
		Widths:  []float64{24},
	}
}

func timestamp(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	return t.In(loc).Format(timestampLayout)
}
