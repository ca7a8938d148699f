// Package types provides the numeric value types shared by the ledger.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Money represents a monetary value with full precision.
// Uses decimal.Decimal to avoid floating-point errors.
type Money = decimal.Decimal

// NewMoneyFromString creates a Money value from a string.
// This is the preferred method for monetary values.
func NewMoneyFromString(s string) (Money, error) {
	return decimal.NewFromString(s)
}

// MustMoney creates a Money value from a string, panics on error.
// Use only for constants and tests.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Zero returns zero Money value.
func Zero() Money {
	return decimal.Zero
}

// Quantity is a fixed-point quantity with 4 decimal places (scale = 1e4).
//
// Stored as BIGINT (scaled integer) so that replays sum exactly, whatever the
// order in which movements are added.
type Quantity int64

const QuantityScale int64 = 10_000

func NewQuantityFromFloat64(v float64) Quantity {
	return Quantity(math.Round(v * float64(QuantityScale)))
}

// NewQuantity builds a whole-unit quantity.
func NewQuantity(units int64) Quantity { return Quantity(units * QuantityScale) }

func NewQuantityFromInt64Scaled(v int64) Quantity { return Quantity(v) }

func (q Quantity) Int64Scaled() int64 { return int64(q) }

func (q Quantity) Float64() float64 { return float64(q) / float64(QuantityScale) }

// Decimal converts the quantity to an exact decimal for monetary products.
func (q Quantity) Decimal() decimal.Decimal { return decimal.New(int64(q), -4) }

// Value returns q × unit, the monetary value of q units at the given unit amount.
func (q Quantity) Value(unit Money) Money { return unit.Mul(q.Decimal()) }

func (q Quantity) IsZero() bool { return q == 0 }

func (q Quantity) IsPositive() bool { return q > 0 }

func (q Quantity) IsNegative() bool { return q < 0 }

func (q Quantity) Neg() Quantity { return -q }

func (q Quantity) Abs() Quantity {
	if q < 0 {
		return -q
	}
	return q
}

// String returns a decimal string with 4 fractional digits.
func (q Quantity) String() string {
	neg := q < 0
	v := q
	if neg {
		v = -v
	}
	intPart := int64(v) / QuantityScale
	frac := int64(v) % QuantityScale
	if neg {
		return fmt.Sprintf("-%d.%04d", intPart, frac)
	}
	return fmt.Sprintf("%d.%04d", intPart, frac)
}

// MarshalJSON encodes Quantity as JSON number (not string), preserving 4 digits.
func (q Quantity) MarshalJSON() ([]byte, error) {
	return []byte(q.String()), nil
}

// UnmarshalJSON accepts either a JSON number or string and parses to fixed-point (4 digits).
func (q *Quantity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*q = 0
		return nil
	}

	if len(data) >= 2 && data[0] == '"' && data[len(data)-1] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(s)
	}

	parsed, err := ParseQuantity(string(data))
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}

// ParseQuantity parses a decimal string ("12", "12.5", "-0.25", "1.5e2") into
// a Quantity. Extra fractional digits beyond the fourth are truncated; values
// outside the int64 range of the scaled representation are rejected.
func ParseQuantity(s string) (Quantity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty quantity")
	}

	if strings.ContainsAny(s, "eE") {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return 0, fmt.Errorf("parse quantity %q: %w", s, err)
		}
		scaled := d.Shift(4).Truncate(0)
		if !scaled.BigInt().IsInt64() {
			return 0, fmt.Errorf("quantity %q out of range", s)
		}
		return Quantity(scaled.IntPart()), nil
	}

	digits := s
	neg := false
	switch digits[0] {
	case '-':
		neg = true
		digits = digits[1:]
	case '+':
		digits = digits[1:]
	}

	intStr, fracStr, _ := strings.Cut(digits, ".")
	if intStr == "" && fracStr == "" {
		return 0, fmt.Errorf("quantity %q has no digits", s)
	}
	if !allDigits(intStr) || !allDigits(fracStr) {
		return 0, fmt.Errorf("quantity %q is not a decimal number", s)
	}

	var whole int64
	if intStr != "" {
		var err error
		whole, err = strconv.ParseInt(intStr, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("quantity %q out of range", s)
		}
	}

	fracStr = (fracStr + "0000")[:4]
	frac, _ := strconv.ParseInt(fracStr, 10, 64)

	if whole > (math.MaxInt64-frac)/QuantityScale {
		return 0, fmt.Errorf("quantity %q out of range", s)
	}
	v := whole*QuantityScale + frac
	if neg {
		v = -v
	}
	return Quantity(v), nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
