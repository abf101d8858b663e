package core

// convert.go turns loosely formatted cell text into typed values.
//
// Uploaded files come from spreadsheets, registries and hand-edited CSVs,
// so dates arrive as ISO strings, slashed dates in either day or month
// order, month names or two-digit years. Numeric dates are read both ways:
// when only one order gives a real date it is used, and when both do and
// they disagree (01/02/1990) the value is rejected as ambiguous. Bare
// numbers are never dates; spreadsheet date cells are read as the text
// Excel displays for them.

import (
	"bytes"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// DateLayout is the canonical wire format for calendar dates.
const DateLayout = "2006-01-02"

// TwoDigitYearPivot moves two-digit years that land more than this many
// years in the future into the previous century.
var TwoDigitYearPivot = 20

var (
	fixedLayouts = []string{
		DateLayout, "2006/01/02", "2006.01.02",
		"Jan 2, 2006", "January 2, 2006", "2 Jan 2006", "2 January 2006", "02-Jan-2006",
		"20060102",
		time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05",
	}
	monthFirstLayouts = []string{"1/2/2006", "1-2-2006", "1.2.2006"}
	dayFirstLayouts   = []string{"2/1/2006", "2-1-2006", "2.1.2006"}

	fixedShortLayouts      = []string{"2-Jan-06"}
	monthFirstShortLayouts = []string{"1/2/06", "1-2-06", "1.2.06"}
	dayFirstShortLayouts   = []string{"2/1/06", "2-1-06", "2.1.06"}
)

// Date is a calendar date without time of day. It marshals as YYYY-MM-DD.
type Date struct {
	time.Time
}

// NewDate truncates t to midnight UTC.
func NewDate(t time.Time) Date {
	return Date{time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.Format(DateLayout) + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, ok := ParseDate(s)
	if !ok {
		return fmt.Errorf("invalid date %q", s)
	}
	*d = parsed
	return nil
}

// ParseDate parses a calendar date in any of the accepted layouts.
func ParseDate(s string) (Date, bool) {
	s = CleanCell(s)
	if s == "" {
		return Date{}, false
	}

	if t, ok := parseFirst(s, fixedLayouts); ok {
		return NewDate(t), true
	}
	if t, ok := parseEitherOrder(s, monthFirstLayouts, dayFirstLayouts); ok {
		return NewDate(t), true
	}

	var (
		t  time.Time
		ok bool
	)
	if t, ok = parseFirst(s, fixedShortLayouts); !ok {
		t, ok = parseEitherOrder(s, monthFirstShortLayouts, dayFirstShortLayouts)
	}
	if !ok {
		return Date{}, false
	}
	if t.Year() > time.Now().Year()+TwoDigitYearPivot {
		t = t.AddDate(-100, 0, 0)
	}
	return NewDate(t), true
}

func parseFirst(s string, layouts []string) (time.Time, bool) {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseEitherOrder reads s month-first and day-first. Two valid readings
// must agree.
func parseEitherOrder(s string, monthFirst, dayFirst []string) (time.Time, bool) {
	mf, mfOK := parseFirst(s, monthFirst)
	df, dfOK := parseFirst(s, dayFirst)
	switch {
	case mfOK && dfOK:
		if !mf.Equal(df) {
			return time.Time{}, false
		}
		return mf, true
	case mfOK:
		return mf, true
	case dfOK:
		return df, true
	}
	return time.Time{}, false
}

// CleanCell trims whitespace and strips the ="..." wrapper spreadsheets add
// to keep leading zeros.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`) && len(s) >= 3 {
		s = s[2 : len(s)-1]
	}
	return strings.TrimSpace(s)
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// normalizeText drops a leading UTF-8 BOM and replaces invalid UTF-8 byte
// sequences with U+FFFD so header keys and cells compare cleanly.
func normalizeText(data []byte) []byte {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune(utf8.RuneError)
		} else {
			buf.Write(data[:size])
		}
		data = data[size:]
	}
	return buf.Bytes()
}
