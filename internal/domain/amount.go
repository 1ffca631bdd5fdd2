package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// DisplayPlaces is the precision of every derived amount.
const DisplayPlaces = 2

// Input bounds. Anything larger parses to the empty amount.
const (
	maxExponent = 15
	maxDigits   = 30
)

var numericPrefix = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

// Amount is an optional, non-negative quantity of one currency.
// The zero value is the empty amount.
type Amount struct {
	value   decimal.Decimal
	valid   bool
	derived bool // computed from the paired field, shown with DisplayPlaces
}

// NewAmount wraps a user-authoritative value.
func NewAmount(d decimal.Decimal) Amount {
	return Amount{value: d, valid: true}
}

func derivedAmount(d decimal.Decimal) Amount {
	return Amount{value: Round2(d), valid: true, derived: true}
}

// ParseAmount reads raw field input the way a numeric text box does: the
// longest numeric prefix wins, "," is accepted as the decimal separator, and
// anything unparsable, negative or out of bounds yields the empty amount.
func ParseAmount(raw string) Amount {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, " ", "")
	if !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}

	match := numericPrefix.FindString(s)
	if match == "" {
		return Amount{}
	}
	mantissa, exp, hasExp := strings.Cut(strings.ToLower(match), "e")
	mantissa = strings.TrimSuffix(mantissa, ".")
	if strings.HasPrefix(mantissa, ".") {
		mantissa = "0" + mantissa
	}
	if countDigits(mantissa) > maxDigits {
		return Amount{}
	}
	if hasExp {
		n, err := strconv.Atoi(exp)
		if err != nil || n > maxExponent || n < -maxExponent {
			return Amount{}
		}
		mantissa += "e" + exp
	}

	d, err := decimal.NewFromString(mantissa)
	if err != nil || d.IsNegative() {
		return Amount{}
	}
	return NewAmount(d)
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

// Decimal returns the value and whether the amount is set.
func (a Amount) Decimal() (decimal.Decimal, bool) {
	return a.value, a.valid
}

// IsEmpty reports whether the amount is unset.
func (a Amount) IsEmpty() bool {
	return !a.valid
}

// IsPositive reports whether the amount is set and strictly above zero.
func (a Amount) IsPositive() bool {
	return a.valid && a.value.IsPositive()
}

// IsDerived reports whether the amount was computed from the paired field.
func (a Amount) IsDerived() bool {
	return a.valid && a.derived
}

// String renders the amount for an input field. Empty renders as "".
func (a Amount) String() string {
	if !a.valid {
		return ""
	}
	if a.derived {
		return a.value.StringFixed(DisplayPlaces)
	}
	return a.value.String()
}

// Equal compares value and presence, ignoring how the amount was obtained.
func (a Amount) Equal(b Amount) bool {
	if a.valid != b.valid {
		return false
	}
	return !a.valid || a.value.Equal(b.value)
}

// MarshalJSON encodes the field text, or null when empty.
func (a Amount) MarshalJSON() ([]byte, error) {
	if !a.valid {
		return []byte("null"), nil
	}
	return json.Marshal(a.String())
}

// Round2 rounds half away from zero to DisplayPlaces.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(DisplayPlaces)
}

// QuoteToTarget converts a quote amount at rate (quote units per target unit).
func QuoteToTarget(quote, rate decimal.Decimal) decimal.Decimal {
	return Round2(quote.Mul(rate))
}

// TargetToQuote is the inverse of QuoteToTarget.
func TargetToQuote(target, rate decimal.Decimal) decimal.Decimal {
	return Round2(target.Div(rate))
}

// ExchangeRate is fixed for the lifetime of a session.
type ExchangeRate struct {
	Rate   decimal.Decimal
	Quote  string // Currency the user gives, e.g. "RUB"
	Target string // Currency the user gets
}

// Validate checks the rate is usable for conversions in both directions.
func (r ExchangeRate) Validate() error {
	if !r.Rate.IsPositive() {
		return fmt.Errorf("exchange rate must be positive, got %s", r.Rate)
	}
	return nil
}

// AmountPair holds both user-facing fields. Every transition returns a new
// pair; exactly one side is authoritative after an edit.
type AmountPair struct {
	Quote  Amount `json:"quote"`
	Target Amount `json:"target"`
}

// EmptyPair is the pair before terms load and after a cancel.
func EmptyPair() AmountPair {
	return AmountPair{}
}

// SeedPair fills the pair from the order minimum.
func SeedPair(minimum decimal.Decimal, rate ExchangeRate) AmountPair {
	return AmountPair{
		Quote:  NewAmount(minimum),
		Target: derivedAmount(minimum.Mul(rate.Rate)),
	}
}

// WithQuote applies a quote field edit and derives the target field. An
// empty or invalid edit leaves the quote empty and the target at 0.00.
func (p AmountPair) WithQuote(raw string, rate ExchangeRate) AmountPair {
	q := ParseAmount(raw)
	v, ok := q.Decimal()
	if !ok {
		return AmountPair{Quote: q, Target: derivedAmount(decimal.Zero)}
	}
	return AmountPair{Quote: q, Target: derivedAmount(v.Mul(rate.Rate))}
}

// WithTarget applies a target field edit and derives the quote field.
func (p AmountPair) WithTarget(raw string, rate ExchangeRate) AmountPair {
	t := ParseAmount(raw)
	v, ok := t.Decimal()
	if !ok {
		return AmountPair{Quote: derivedAmount(decimal.Zero), Target: t}
	}
	return AmountPair{Quote: derivedAmount(v.Div(rate.Rate)), Target: t}
}

// CanConfirm is the UI gate: at least one side strictly positive.
func (p AmountPair) CanConfirm() bool {
	return p.Quote.IsPositive() || p.Target.IsPositive()
}

// IsEmpty reports whether both fields are unset.
func (p AmountPair) IsEmpty() bool {
	return p.Quote.IsEmpty() && p.Target.IsEmpty()
}

// Equal compares both fields by value.
func (p AmountPair) Equal(o AmountPair) bool {
	return p.Quote.Equal(o.Quote) && p.Target.Equal(o.Target)
}
