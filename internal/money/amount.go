// Package money implements a fixed-point decimal type for receipt amounts.
//
// Receipt amounts always carry at most two fractional digits, but parsing
// them as float64 risks the usual binary-rounding surprises ("5.78" becoming
// "5.7800000000000002" in a JSON payload). Amount stores the value as an
// integer number of cents instead, matching the spec's "two fractional
// digits, fixed-point" requirement exactly.
package money

import (
	"fmt"
	"strconv"
	"strings"
)

// Amount is a signed, fixed-point decimal with exactly two fractional
// digits, stored internally as a count of cents.
type Amount struct {
	cents int64
	valid bool
}

// Zero is the zero-valued Amount (0.00).
var Zero = Amount{valid: true}

// Parse parses a decimal string with up to two fractional digits, e.g.
// "5.78", "-1.00", "6", into an Amount. It rejects more than two fractional
// digits so a classifier bug cannot silently truncate precision.
func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, fmt.Errorf("money: empty amount")
	}

	neg := false
	if s[0] == '-' {
		neg = true
		s = s[1:]
	} else if s[0] == '+' {
		s = s[1:]
	}

	whole, frac, hasFrac := strings.Cut(s, ".")
	if hasFrac && len(frac) > 2 {
		return Amount{}, fmt.Errorf("money: %q has more than two fractional digits", s)
	}
	if whole == "" {
		whole = "0"
	}
	for len(frac) < 2 {
		frac += "0"
	}

	wholeN, err := strconv.ParseInt(whole, 10, 63)
	if err != nil {
		return Amount{}, fmt.Errorf("money: invalid amount %q: %w", s, err)
	}
	fracN, err := strconv.ParseInt(frac, 10, 32)
	if err != nil {
		return Amount{}, fmt.Errorf("money: invalid amount %q: %w", s, err)
	}

	cents := wholeN*100 + fracN
	if neg {
		cents = -cents
	}
	return Amount{cents: cents, valid: true}, nil
}

// FromCents builds an Amount directly from an integer cent count.
func FromCents(cents int64) Amount {
	return Amount{cents: cents, valid: true}
}

// Valid reports whether the Amount was actually parsed/set, as opposed to
// the zero Go value (used by callers that need "absent" distinct from "0.00").
func (a Amount) Valid() bool {
	return a.valid
}

// Cents returns the underlying integer cent count.
func (a Amount) Cents() int64 {
	return a.cents
}

// Add returns the sum of two amounts.
func (a Amount) Add(b Amount) Amount {
	return Amount{cents: a.cents + b.cents, valid: true}
}

// Float64 returns the amount as a float64, for JSON encoding where the
// upstream intake expects a numeric field rather than a string.
func (a Amount) Float64() float64 {
	return float64(a.cents) / 100.0
}

// String renders the amount with exactly two fractional digits.
func (a Amount) String() string {
	neg := a.cents < 0
	c := a.cents
	if neg {
		c = -c
	}
	s := fmt.Sprintf("%d.%02d", c/100, c%100)
	if neg {
		s = "-" + s
	}
	return s
}

// MarshalJSON encodes the amount as a bare JSON number (e.g. 5.78), matching
// the line/summary payload shapes the upstream intake expects.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts both a JSON number and a JSON string.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
