package model

// Collector is a staff member who offers session slots. The roster is static
// reference data loaded from configuration.
type Collector struct {
	ID    string `json:"id" bson:"_id"`
	Name  string `json:"name" bson:"name"`
	Role  string `json:"role" bson:"role"`
	Email string `json:"email" bson:"email"`
	Color string `json:"color" bson:"color"`
	Code  string `json:"-" bson:"-"`
}

func (c Collector) Initials() string {
	var out []rune
	start := true
	for _, r := range c.Name {
		if r == ' ' {
			start = true
			continue
		}
		if start {
			out = append(out, r)
			start = false
		}
	}
	return string(out)
}

type Roster []Collector

func (r Roster) Find(id string) (Collector, bool) {
	for _, c := range r {
		if c.ID == id {
			return c, true
		}
	}
	return Collector{}, false
}

func (r Roster) IDs() []string {
	ids := make([]string, 0, len(r))
	for _, c := range r {
		ids = append(ids, c.ID)
	}
	return ids
}
