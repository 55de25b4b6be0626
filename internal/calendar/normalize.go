package calendar

import (
	"fmt"
	"strings"
	"time"
)

// Date is a calendar day with a zero-indexed month (0 = January).
type Date struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

// fallbackLayouts are tried when a string does not split into three
// delimited parts.
var fallbackLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	time.RFC1123,
	time.RFC1123Z,
	time.RFC850,
	time.ANSIC,
	time.UnixDate,
	"Mon Jan 2 2006",
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"2 January 2006",
	"2 Jan 2006",
	"20060102",
}

// Normalize parses a date-like string into a Date. Strings with a slash or
// dash delimiter are always read year first. It never fails: anything it
// cannot read becomes the zero Date.
func Normalize(s string) Date {
	str := strings.TrimSpace(s)
	if str == "" {
		return Date{}
	}

	clean := str
	if i := strings.Index(clean, "T"); i >= 0 {
		clean = clean[:i]
	}

	sep := "-"
	if strings.Contains(clean, "/") {
		sep = "/"
	}

	if parts := strings.Split(clean, sep); len(parts) >= 3 {
		year, okY := leadingInt(parts[0])
		month, okM := leadingInt(parts[1])
		day, okD := leadingInt(parts[2])
		if okY && okM && okD {
			return Date{Year: year, Month: month - 1, Day: day}
		}
	}

	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, str); err == nil {
			return FromTime(t)
		}
	}

	return Date{}
}

// FromTime returns the Date of t in t's own location.
func FromTime(t time.Time) Date {
	return Date{Year: t.Year(), Month: int(t.Month()) - 1, Day: t.Day()}
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool {
	return d == Date{}
}

// Valid reports whether d names a real calendar day.
func (d Date) Valid() bool {
	if d.Year <= 0 || d.Month < 0 || d.Month > 11 || d.Day < 1 {
		return false
	}
	t := time.Date(d.Year, time.Month(d.Month+1), d.Day, 0, 0, 0, 0, time.UTC)
	return t.Year() == d.Year && int(t.Month())-1 == d.Month && t.Day() == d.Day
}

// Compare orders dates chronologically, returning -1, 0 or +1.
func (d Date) Compare(other Date) int {
	switch {
	case d.Year != other.Year:
		return sign(d.Year - other.Year)
	case d.Month != other.Month:
		return sign(d.Month - other.Month)
	default:
		return sign(d.Day - other.Day)
	}
}

// String formats d as YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month+1, d.Day)
}

// maxDigits bounds a digit run so it always fits in an int
const maxDigits = 9

// leadingInt reads an optionally signed run of leading digits, ignoring
// surrounding whitespace and anything after the digits. Runs longer than
// maxDigits are unreadable.
func leadingInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	neg := false
	if s != "" && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}
	n, digits := 0, 0
	for digits < len(s) && s[digits] >= '0' && s[digits] <= '9' {
		n = n*10 + int(s[digits]-'0')
		digits++
		if digits > maxDigits {
			return 0, false
		}
	}
	if digits == 0 {
		return 0, false
	}
	if neg {
		n = -n
	}
	return n, true
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}
