package validation

import (
	"errors"
	"testing"

	"studyreg/pkg/logger"
	"studyreg/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type slot struct {
	Date string `json:"date" validate:"required,calendar_date"`
	Time string `json:"time" validate:"required,day_part"`
}

func TestCustomTags(t *testing.T) {
	v := New(logger.Discard())

	tests := []struct {
		name   string
		value  any
		fields []string
	}{
		{"valid slot", slot{Date: "2026-03-02", Time: "9:00 AM"}, nil},
		{"bad date", slot{Date: "2026-02-30", Time: "9:00 AM"}, []string{"date"}},
		{"time outside day parts", slot{Date: "2026-03-02", Time: "7:00 PM"}, []string{"time"}},
		{"both missing", slot{}, []string{"date", "time"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct(v, tt.value)
			if tt.fields == nil {
				assert.NoError(t, err)
				return
			}
			var verrs ValidationErrors
			require.True(t, errors.As(err, &verrs))
			var got []string
			for _, e := range verrs {
				got = append(got, e.Field)
			}
			assert.ElementsMatch(t, tt.fields, got)
		})
	}
}

func TestProfileMessages(t *testing.T) {
	v := New(logger.Discard())

	err := Struct(v, model.Profile{
		FirstName: "Sam",
		LastName:  "Park",
		Email:     "not-an-email",
		Age:       31,
		Level:     "Postdoc",
		Major:     "Biology",
	})

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	fields := verrs.Fields()
	assert.Equal(t, "email must be a valid email address", fields["email"])
	assert.Equal(t, "age must be at most 30", fields["age"])
	assert.Contains(t, fields["level"], "Graduate Student")
	assert.Len(t, fields, 3)
}
