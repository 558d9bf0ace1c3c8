// Package core holds the bill model and the arithmetic behind it.
//
// This file contains the Charge type: a charge keeps the text the user typed
// and is only coerced to a number when totals are computed or amounts shown.
package core

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Charge is a raw charge value as entered in the form.
type Charge string

// numericPrefix matches the longest leading decimal literal, the same prefix
// a lenient float parser would consume. Groups: sign, mantissa, exponent.
var numericPrefix = regexp.MustCompile(`^([+-]?)(\d+(?:\.\d*)?|\.\d+)(?:[eE]([+-]?\d+))?`)

// Coercion bounds. A charge whose leading digit sits above maxMagnitude is past
// float64 range and overflows; one below minMagnitude is zero. Digits beyond
// maxSignificant are dropped.
const (
	maxMagnitude   = 309
	minMagnitude   = -324
	maxSignificant = 34
)

// Value coerces the charge to a number. Empty or non-numeric input is zero;
// input with a numeric prefix ("12abc") yields that prefix. A charge past
// float64 range has no finite value and reads as zero here; Float reports it
// as an infinity.
//
// Examples:
//
//	Charge("1625").Value()   -> 1625
//	Charge(" 12.5kg").Value() -> 12.5
//	Charge("abc").Value()    -> 0
func (c Charge) Value() decimal.Decimal {
	d, _ := c.coerce()
	return d
}

// Float is the charge as a float64, +Inf or -Inf when it overflows.
func (c Charge) Float() float64 {
	d, inf := c.coerce()
	if inf != 0 {
		return math.Inf(inf)
	}
	return d.InexactFloat64()
}

// coerce returns the finite value, or the sign of the overflow in inf.
func (c Charge) coerce() (d decimal.Decimal, inf int) {
	m := numericPrefix.FindStringSubmatch(strings.TrimSpace(string(c)))
	if m == nil {
		return decimal.Zero, 0
	}
	sign, mantissa, exp := m[1], m[2], m[3]

	intPart, fracPart, _ := strings.Cut(mantissa, ".")
	digits := intPart + fracPart
	first := strings.IndexFunc(digits, func(r rune) bool { return r != '0' })
	if first < 0 {
		return decimal.Zero, 0
	}

	e := 0
	if exp != "" {
		n, err := strconv.Atoi(exp)
		if err != nil {
			// Exponent out of int range.
			if strings.HasPrefix(exp, "-") {
				return decimal.Zero, 0
			}
			return decimal.Zero, signOf(sign)
		}
		e = n
	}

	// The value is 0.<sig> x 10^magnitude.
	magnitude := int64(len(intPart)-first) + int64(e)
	if magnitude > maxMagnitude {
		return decimal.Zero, signOf(sign)
	}
	if magnitude < minMagnitude {
		return decimal.Zero, 0
	}

	sig := strings.TrimRight(digits[first:], "0")
	if len(sig) > maxSignificant {
		sig = sig[:maxSignificant]
	}
	d, err := decimal.NewFromString(sign + sig + "e" + strconv.FormatInt(magnitude-int64(len(sig)), 10))
	if err != nil {
		return decimal.Zero, 0
	}
	return d, 0
}

func signOf(sign string) int {
	if sign == "-" {
		return -1
	}
	return 1
}

// Total sums charges after coercion. Overflowing charges make the total
// infinite; opposite infinities give NaN.
func Total(charges ...Charge) float64 {
	sum := decimal.Zero
	pos, neg := false, false
	for _, c := range charges {
		d, inf := c.coerce()
		switch {
		case inf > 0:
			pos = true
		case inf < 0:
			neg = true
		default:
			sum = sum.Add(d)
		}
	}
	switch {
	case pos && neg:
		return math.NaN()
	case pos:
		return math.Inf(1)
	case neg:
		return math.Inf(-1)
	}
	return sum.InexactFloat64()
}

// IsFinite reports whether v is neither infinite nor NaN.
func IsFinite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}

// SameAmount is float equality where NaN equals NaN.
func SameAmount(a, b float64) bool {
	return a == b || (math.IsNaN(a) && math.IsNaN(b))
}

// maxNumberLen caps the charges written as JSON numbers.
const maxNumberLen = 64

// MarshalJSON writes short canonical numbers as JSON numbers and everything
// else as a string, so typed text survives a save/load cycle unchanged.
func (c Charge) MarshalJSON() ([]byte, error) {
	s := string(c)
	if len(s) > maxNumberLen || strings.ContainsAny(s, "eE") {
		return json.Marshal(s)
	}
	if d, err := decimal.NewFromString(s); err == nil && d.String() == s {
		return []byte(s), nil
	}
	return json.Marshal(s)
}

func (c *Charge) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	switch {
	case raw == "null":
		*c = ""
	case strings.HasPrefix(raw, `"`):
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Charge(s)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*c = Charge(n.String())
	}
	return nil
}

// FormatAmount renders the integer part of an amount with Bangladeshi digit
// grouping: the last three digits, then pairs ("1,00,000"). Non-finite
// amounts render as "Infinity", "-Infinity" or "NaN".
func FormatAmount(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	}
	return groupDigits(decimal.NewFromFloat(v))
}

// FormatCharge renders a charge the way FormatAmount renders a total.
func FormatCharge(c Charge) string {
	d, inf := c.coerce()
	if inf != 0 {
		return FormatAmount(math.Inf(inf))
	}
	return groupDigits(d)
}

func groupDigits(d decimal.Decimal) string {
	digits := d.Truncate(0).String()
	neg := strings.HasPrefix(digits, "-")
	digits = strings.TrimPrefix(digits, "-")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	if len(digits) <= 3 {
		b.WriteString(digits)
		return b.String()
	}
	head, tail := digits[:len(digits)-3], digits[len(digits)-3:]
	lead := len(head) % 2
	if lead == 1 {
		b.WriteString(head[:1])
	}
	for i := lead; i < len(head); i += 2 {
		if b.Len() > 0 && !(neg && b.Len() == 1) {
			b.WriteByte(',')
		}
		b.WriteString(head[i : i+2])
	}
	b.WriteByte(',')
	b.WriteString(tail)
	return b.String()
}
