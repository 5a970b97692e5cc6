// Package money parses the locale-formatted amounts shown by the portal
// and compares them against stored fixed-point values.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned when a portal amount has no parsable number.
var ErrInvalidAmount = errors.New("invalid amount")

// DefaultTolerance is the absolute difference under which two amounts match.
var DefaultTolerance = decimal.RequireFromString("0.001")

// Normalize converts portal text such as "R$ 1.234,56" or "1234.56" into a
// decimal. The rightmost of ',' and '.' is the decimal separator when both
// appear; a lone separator followed by exactly three digits is read as a
// thousands separator, matching pt-BR formatting.
func Normalize(text string) (decimal.Decimal, error) {
	var b strings.Builder
	for _, r := range text {
		if (r >= '0' && r <= '9') || r == ',' || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	s := strings.Trim(b.String(), ".,")
	if s == "" || s == "-" {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, text)
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		s = normalizeSingleSeparator(s, ",")
	case lastDot >= 0:
		s = normalizeSingleSeparator(s, ".")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q: %v", ErrInvalidAmount, text, err)
	}
	return d, nil
}

func normalizeSingleSeparator(s, sep string) string {
	if strings.Count(s, sep) > 1 {
		return strings.ReplaceAll(s, sep, "")
	}
	idx := strings.Index(s, sep)
	if len(s)-idx-1 == 3 {
		return strings.Replace(s, sep, "", 1)
	}
	return strings.Replace(s, sep, ".", 1)
}

// Matches reports whether the portal text denotes expected within tolerance.
// Unparsable text never matches.
func Matches(expected decimal.Decimal, portalText string, tolerance decimal.Decimal) bool {
	got, err := Normalize(portalText)
	if err != nil {
		return false
	}
	return expected.Sub(got).Abs().LessThan(tolerance)
}
