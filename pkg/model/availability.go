package model

import (
	"slices"
	"time"
)

const (
	DateLayout    = "2006-01-02"
	DayPartLayout = "3:04 PM"
)

// DayParts is the canonical list of offerable times, in day order.
var DayParts = []string{
	"8:00 AM", "9:00 AM", "10:00 AM", "11:00 AM", "12:00 PM",
	"1:00 PM", "2:00 PM", "3:00 PM", "4:00 PM", "5:00 PM", "6:00 PM",
}

func IsDayPart(label string) bool {
	return slices.Contains(DayParts, label)
}

// Calendar is one collector's availability: date -> sorted distinct times.
type Calendar struct {
	CollectorID string              `json:"collector_id" bson:"_id"`
	Dates       map[string][]string `json:"dates" bson:"dates"`
	UpdatedAt   time.Time           `json:"updated_at" bson:"updated_at"`
}

func NewCalendar(collectorID string) *Calendar {
	return &Calendar{CollectorID: collectorID, Dates: map[string][]string{}}
}

// OpenDates returns the sorted dates that have at least one time.
func (c *Calendar) OpenDates() []string {
	dates := make([]string, 0, len(c.Dates))
	for d, times := range c.Dates {
		if len(times) > 0 {
			dates = append(dates, d)
		}
	}
	slices.Sort(dates)
	return dates
}

// AllDates returns every configured date, including empty ones, sorted.
func (c *Calendar) AllDates() []string {
	dates := make([]string, 0, len(c.Dates))
	for d := range c.Dates {
		dates = append(dates, d)
	}
	slices.Sort(dates)
	return dates
}

func (c *Calendar) Times(date string) []string {
	return slices.Clone(c.Dates[date])
}

func (c *Calendar) Has(date, timeLabel string) bool {
	return slices.Contains(c.Dates[date], timeLabel)
}

func (c *Calendar) SlotCount() int {
	n := 0
	for _, times := range c.Dates {
		n += len(times)
	}
	return n
}

// Capacity is the per-collector ceiling together with the confirmed-booking
// counter maintained by the ledger.
type Capacity struct {
	CollectorID string    `json:"collector_id" bson:"_id"`
	Ceiling     int       `json:"ceiling" bson:"ceiling"`
	Booked      int       `json:"booked" bson:"booked"`
	UpdatedAt   time.Time `json:"updated_at" bson:"updated_at"`
}

func (c Capacity) Remaining() int {
	return max(0, c.Ceiling-c.Booked)
}

// CapacityMap is collectorID -> ceiling.
type CapacityMap map[string]int

// SortTimes orders labels by time of day, drops duplicates and anything that
// does not parse as a day part.
func SortTimes(times []string) []string {
	seen := make(map[string]struct{}, len(times))
	out := make([]string, 0, len(times))
	for _, t := range times {
		if _, ok := seen[t]; ok {
			continue
		}
		if _, err := time.Parse(DayPartLayout, t); err != nil {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b string) int {
		ta, _ := time.Parse(DayPartLayout, a)
		tb, _ := time.Parse(DayPartLayout, b)
		return ta.Compare(tb)
	})
	return out
}

func ParseDate(date string) (time.Time, error) {
	return time.Parse(DateLayout, date)
}

// ReadableDate renders 2026-03-02 as "March 2, 2026". Unparseable input is
// returned as is.
func ReadableDate(date string) string {
	t, err := ParseDate(date)
	if err != nil {
		return date
	}
	return t.Format("January 2, 2006")
}

// AddDays shifts a YYYY-MM-DD date by n days.
func AddDays(date string, n int) string {
	t, err := ParseDate(date)
	if err != nil {
		return date
	}
	return t.AddDate(0, 0, n).Format(DateLayout)
}
