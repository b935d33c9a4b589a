package model

// DefaultRoster is the roster used when none is configured.
func DefaultRoster() Roster {
	return Roster{
		{ID: "s1", Name: "Avery Morgan", Role: "Lead Data Collector", Color: "#2D6A4F", Code: "1234", Email: "amorgan@example.edu"},
		{ID: "s2", Name: "Jordan Lee", Role: "Data Collector", Color: "#1B4965", Code: "5678", Email: "jlee@example.edu"},
		{ID: "s3", Name: "Riley Santos", Role: "Data Collector", Color: "#6B2737", Code: "9012", Email: "rsantos@example.edu"},
	}
}

// DefaultCalendars seeds a fresh deployment with example availability.
func DefaultCalendars() map[string]map[string][]string {
	return map[string]map[string][]string{
		"s1": {
			"2026-03-02": {"9:00 AM", "10:00 AM", "2:00 PM", "3:00 PM"},
			"2026-03-03": {"11:00 AM", "1:00 PM", "4:00 PM"},
			"2026-03-05": {"1:00 PM", "2:00 PM", "3:00 PM"},
			"2026-03-09": {"9:00 AM", "11:00 AM", "2:00 PM"},
			"2026-03-10": {"10:00 AM", "1:00 PM", "3:00 PM"},
		},
		"s2": {
			"2026-03-02": {"10:00 AM", "11:00 AM", "3:00 PM"},
			"2026-03-03": {"9:00 AM", "2:00 PM", "4:00 PM"},
			"2026-03-05": {"10:00 AM", "11:00 AM", "1:00 PM"},
			"2026-03-09": {"9:00 AM", "10:00 AM", "2:00 PM"},
			"2026-03-12": {"10:00 AM", "1:00 PM", "2:00 PM"},
		},
		"s3": {
			"2026-03-03": {"10:00 AM", "11:00 AM", "3:00 PM", "4:00 PM"},
			"2026-03-04": {"1:00 PM", "2:00 PM", "3:00 PM"},
			"2026-03-09": {"11:00 AM", "1:00 PM", "3:00 PM"},
			"2026-03-11": {"9:00 AM", "10:00 AM", "1:00 PM", "2:00 PM"},
		},
	}
}

func DefaultCeilings() CapacityMap {
	return CapacityMap{"s1": 20, "s2": 18, "s3": 15}
}
