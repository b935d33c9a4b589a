package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortTimes(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"already sorted", []string{"9:00 AM", "10:00 AM"}, []string{"9:00 AM", "10:00 AM"}},
		{"noon and afternoon", []string{"2:00 PM", "12:00 PM", "11:00 AM"}, []string{"11:00 AM", "12:00 PM", "2:00 PM"}},
		{"duplicates dropped", []string{"1:00 PM", "1:00 PM"}, []string{"1:00 PM"}},
		{"garbage dropped", []string{"noon", "8:00 AM"}, []string{"8:00 AM"}},
		{"empty", nil, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SortTimes(tt.in))
		})
	}
}

func TestCalendar_OpenDates(t *testing.T) {
	cal := NewCalendar("s1")
	cal.Dates["2026-04-01"] = []string{}
	cal.Dates["2026-03-02"] = []string{"9:00 AM"}
	cal.Dates["2026-03-01"] = []string{"1:00 PM", "2:00 PM"}

	assert.Equal(t, []string{"2026-03-01", "2026-03-02"}, cal.OpenDates())
	assert.Equal(t, []string{"2026-03-01", "2026-03-02", "2026-04-01"}, cal.AllDates())
	assert.Equal(t, 3, cal.SlotCount())
	assert.True(t, cal.Has("2026-03-02", "9:00 AM"))
	assert.False(t, cal.Has("2026-04-01", "9:00 AM"))
}

func TestDateHelpers(t *testing.T) {
	assert.Equal(t, "March 2, 2026", ReadableDate("2026-03-02"))
	assert.Equal(t, "2026-03-05", AddDays("2026-03-02", 3))
	assert.Equal(t, "2026-03-02", AddDays("2026-02-27", 3))
	assert.Equal(t, "not-a-date", ReadableDate("not-a-date"))
}

func TestDayPartsAreSorted(t *testing.T) {
	assert.Equal(t, DayParts, SortTimes(DayParts))
	assert.True(t, IsDayPart("6:00 PM"))
	assert.False(t, IsDayPart("7:00 PM"))
}

func TestRoster(t *testing.T) {
	roster := DefaultRoster()

	c, ok := roster.Find("s2")
	assert.True(t, ok)
	assert.Equal(t, "JL", c.Initials())

	_, ok = roster.Find("nobody")
	assert.False(t, ok)
	assert.Equal(t, []string{"s1", "s2", "s3"}, roster.IDs())
}

func TestNewBooking_DenormalizesCollector(t *testing.T) {
	p := Profile{FirstName: "Sam", LastName: "Park", Email: "sam@example.edu", Age: 20, Level: "Junior", Major: "Biology"}
	c := Collector{ID: "s1", Name: "Avery Morgan", Email: "amorgan@example.edu"}

	b := NewBooking(p, c, "2026-03-02", "9:00 AM")

	assert.Equal(t, "Sam Park", b.Name)
	assert.Equal(t, "Avery Morgan", b.CollectorName)
	assert.Equal(t, "amorgan@example.edu", b.CollectorEmail)
	assert.Equal(t, p, b.Profile())
}
