package money

import (
	"database/sql/driver"
	"fmt"

	"github.com/shopspring/decimal"
)

// Places is the number of fractional digits stored for currency amounts
const Places = 2

// Amount represents a currency amount with cent precision
type Amount struct {
	value decimal.Decimal
}

// FromFloat creates an Amount from a float64, rounding half away from zero to cents
func FromFloat(f float64) Amount {
	return Amount{value: decimal.NewFromFloat(f).Round(Places)}
}

// Mul multiplies the amount by a factor and rounds to cents
func (a Amount) Mul(factor float64) Amount {
	return Amount{value: a.value.Mul(decimal.NewFromFloat(factor)).Round(Places)}
}

// Cap returns the smaller of a and limit
func (a Amount) Cap(limit Amount) Amount {
	if a.value.GreaterThan(limit.value) {
		return limit
	}
	return a
}

// String returns the amount with exactly two fractional digits
func (a Amount) String() string {
	return a.value.StringFixed(Places)
}

// MarshalJSON encodes the amount as a JSON number with two fractional digits
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts both quoted and bare numbers
func (a *Amount) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}
	a.value = d.Round(Places)
	return nil
}

// Value implements driver.Valuer for NUMERIC columns
func (a Amount) Value() (driver.Value, error) {
	return a.String(), nil
}

// Scan implements sql.Scanner for NUMERIC columns
func (a *Amount) Scan(src interface{}) error {
	var d decimal.Decimal
	if err := d.Scan(src); err != nil {
		return err
	}
	a.value = d.Round(Places)
	return nil
}
