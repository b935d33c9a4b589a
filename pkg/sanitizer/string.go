package sanitizer

import (
	"strings"
	"unicode"
)

type Strategy func(string) string

type Pipeline []Strategy

func (p Pipeline) Apply(s string) string {
	for _, fn := range p {
		s = fn(s)
	}
	return s
}

func TrimAndNormalize(s string) string {
	s = strings.TrimSpace(s)

	if s == "" {
		return ""
	}

	var result strings.Builder
	var lastWasSpace bool

	for _, r := range s {
		if unicode.IsSpace(r) {
			if !lastWasSpace {
				result.WriteRune(' ')
				lastWasSpace = true
			}
		} else {
			result.WriteRune(r)
			lastWasSpace = false
		}
	}

	return result.String()
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// NormalizeName cleans a person's name or a free-text field such as a major.
func NormalizeName(name string) string {
	return Pipeline{stripControl, TrimAndNormalize}.Apply(name)
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone keeps the number as typed apart from surrounding and
// repeated whitespace. Phone is optional and free-form.
func NormalizePhone(phone string) string {
	return Pipeline{stripControl, TrimAndNormalize}.Apply(phone)
}

// NormalizeTimeLabel turns " 9:00 am" into "9:00 AM".
func NormalizeTimeLabel(label string) string {
	return strings.ToUpper(TrimAndNormalize(label))
}

// NormalizeLevel matches an academic level case-insensitively against the
// known levels, returning the canonical spelling when found.
func NormalizeLevel(level string, known []string) string {
	level = TrimAndNormalize(level)
	for _, k := range known {
		if strings.EqualFold(level, k) {
			return k
		}
	}
	return level
}
