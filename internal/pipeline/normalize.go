package pipeline

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/araddon/dateparse"
	"github.com/shopspring/decimal"
)

// dateLayouts are tried in order before falling back to dateparse.
// Ambiguous numeric dates are read month-first; day-first layouts only
// match once the month-first reading has failed.
var dateLayouts = []string{
	"2006-01-02",
	"2006-1-2",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"1/2/2006",
	"1/2/06",
	"2006/1/2",
	"1-2-2006",
	"2/1/2006",
	"2/1/06",
	"2-1-2006",
	"2-Jan-2006",
	"2-Jan-06",
	"2 Jan 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 2 2006",
	"January 2 2006",
}

var (
	currencySymbols = strings.NewReplacer("$", "", "£", "", "€", "")
	groupedNumber   = regexp.MustCompile(`^-?\d{1,3}(,\d{3})+(\.\d+)?$`)
	plainNumber     = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
)

// ParseDate parses a free-form date string into a UTC time. Timestamps
// carrying an offset keep their wall clock, so the calendar day printed
// on the statement is the day stored.
func ParseDate(text string) (time.Time, error) {
	s := strings.TrimSpace(text)
	if s == "" || strings.IndexFunc(s, unicode.IsDigit) < 0 {
		return time.Time{}, invalidDate(text)
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return wallClockUTC(t), nil
		}
	}

	t, err := dateparse.ParseIn(s, time.UTC, dateparse.RetryAmbiguousDateWithSwap(true))
	if err != nil {
		return time.Time{}, invalidDate(text)
	}
	return wallClockUTC(t), nil
}

func wallClockUTC(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// ParseAmount parses a currency-formatted amount. Parenthesised values are
// negative. Commas are accepted only as thousands separators: "€45,00"
// (comma as decimal mark) is rejected rather than read as 4500.
func ParseAmount(text string) (decimal.Decimal, error) {
	s := currencySymbols.Replace(strings.TrimSpace(text))
	s = strings.Join(strings.Fields(s), "")

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") && len(s) > 2 {
		negative = true
		s = s[1 : len(s)-1]
		if strings.HasPrefix(s, "-") {
			return decimal.Decimal{}, invalidAmount(text)
		}
	}
	s = strings.TrimPrefix(s, "+")

	if strings.Contains(s, ",") {
		if !groupedNumber.MatchString(s) {
			return decimal.Decimal{}, invalidAmount(text)
		}
		s = strings.ReplaceAll(s, ",", "")
	}

	if !plainNumber.MatchString(s) {
		return decimal.Decimal{}, invalidAmount(text)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, invalidAmount(text)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

func invalidDate(raw string) *IngestError {
	return newError(KindInvalidDate, "unable to parse date "+strconv.Quote(raw), map[string]any{"value": raw})
}

func invalidAmount(raw string) *IngestError {
	return newError(KindInvalidAmount, "invalid amount format "+strconv.Quote(raw), map[string]any{"value": raw})
}

