// Package money provides the fixed-point decimal type used for every
// monetary quantity in KeryxFlow. Indicator values and other non-money
// scalars stay as float64; money never crosses into binary floating point
// except at the explicit quant-engine sizing boundary (see internal/quant).
package money

import (
	"database/sql/driver"
	"fmt"

	"github.com/shopspring/decimal"
)

// Amount wraps decimal.Decimal so callers import internal/money instead of
// reaching for shopspring/decimal directly, keeping the money/float boundary
// in one place.
type Amount struct {
	d decimal.Decimal
}

// Zero is the additive identity.
var Zero = Amount{}

// New builds an Amount from an integer number of minor units and a scale
// (number of decimal places), e.g. New(10050, 2) == 100.50.
func New(minorUnits int64, scale int32) Amount {
	return Amount{d: decimal.New(minorUnits, -scale)}
}

// FromFloat converts a float64 into an Amount. Used only at I/O boundaries
// (config, adapter responses) — never for intermediate arithmetic.
func FromFloat(f float64) Amount {
	return Amount{d: decimal.NewFromFloat(f)}
}

// FromString parses a decimal string, e.g. "100.50".
func FromString(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("money: parse %q: %w", s, err)
	}
	return Amount{d: d}, nil
}

func (a Amount) Add(b Amount) Amount { return Amount{d: a.d.Add(b.d)} }
func (a Amount) Sub(b Amount) Amount { return Amount{d: a.d.Sub(b.d)} }
func (a Amount) Neg() Amount         { return Amount{d: a.d.Neg()} }
func (a Amount) Abs() Amount         { return Amount{d: a.d.Abs()} }

// Mul multiplies by a dimensionless fraction (e.g. a risk percentage).
func (a Amount) Mul(fraction float64) Amount {
	return Amount{d: a.d.Mul(decimal.NewFromFloat(fraction))}
}

// MulAmount multiplies two money amounts, e.g. price × quantity.
func (a Amount) MulAmount(b Amount) Amount { return Amount{d: a.d.Mul(b.d)} }

// Div divides by a dimensionless divisor. Returns Zero if divisor is zero.
func (a Amount) Div(divisor float64) Amount {
	if divisor == 0 {
		return Zero
	}
	return Amount{d: a.d.Div(decimal.NewFromFloat(divisor))}
}

func (a Amount) Cmp(b Amount) int      { return a.d.Cmp(b.d) }
func (a Amount) GreaterThan(b Amount) bool { return a.d.GreaterThan(b.d) }
func (a Amount) LessThan(b Amount) bool    { return a.d.LessThan(b.d) }
func (a Amount) GTE(b Amount) bool         { return a.d.GreaterThanOrEqual(b.d) }
func (a Amount) LTE(b Amount) bool         { return a.d.LessThanOrEqual(b.d) }
func (a Amount) IsZero() bool              { return a.d.IsZero() }
func (a Amount) IsNegative() bool          { return a.d.IsNegative() }
func (a Amount) IsPositive() bool          { return a.d.IsPositive() }

// Float64 converts to a float64. Only used at the quant-engine boundary or
// for JSON/log output — never as an intermediate in money arithmetic.
func (a Amount) Float64() float64 {
	f, _ := a.d.Float64()
	return f
}

// MinorUnits returns the integer minor-unit representation at the given
// scale, truncated toward zero (the floor for non-negative amounts).
func (a Amount) MinorUnits(scale int32) int64 {
	return a.d.Shift(scale).Truncate(0).IntPart()
}

func (a Amount) String() string { return a.d.StringFixed(8) }

func (a Amount) MarshalJSON() ([]byte, error) { return a.d.MarshalJSON() }

func (a *Amount) UnmarshalJSON(data []byte) error { return a.d.UnmarshalJSON(data) }

// Value implements driver.Valuer so Amount can be written directly by
// database/sql as a string, preserving exact decimal precision.
func (a Amount) Value() (driver.Value, error) { return a.d.String(), nil }

// Scan implements sql.Scanner.
func (a *Amount) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return err
		}
		a.d = d
		return nil
	case []byte:
		d, err := decimal.NewFromString(string(v))
		if err != nil {
			return err
		}
		a.d = d
		return nil
	case int64:
		a.d = decimal.NewFromInt(v)
		return nil
	case float64:
		a.d = decimal.NewFromFloat(v)
		return nil
	case nil:
		a.d = decimal.Zero
		return nil
	default:
		return fmt.Errorf("money: cannot scan %T", src)
	}
}

// Max returns the larger of a and b.
func Max(a, b Amount) Amount {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// Min returns the smaller of a and b.
func Min(a, b Amount) Amount {
	if a.LessThan(b) {
		return a
	}
	return b
}
