package values

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Money represents a monetary amount with cent precision. Auction amounts are
// single-currency; the currency code travels with the value for invoices.
type Money struct {
	amount   decimal.Decimal
	currency string
}

// USD is the default currency for all auction amounts.
const USD = "USD"

// NewMoney creates a Money value object.
func NewMoney(amount decimal.Decimal, currency string) (Money, error) {
	if currency == "" {
		return Money{}, fmt.Errorf("currency cannot be empty")
	}
	if len(currency) != 3 {
		return Money{}, fmt.Errorf("currency code must be 3 characters")
	}
	return Money{amount: amount, currency: currency}, nil
}

// NewMoneyFromString creates Money from a decimal string amount.
func NewMoneyFromString(amount, currency string) (Money, error) {
	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount: %w", err)
	}
	return NewMoney(dec, currency)
}

// NewMoneyFromCents creates Money from integer cents.
func NewMoneyFromCents(cents int64, currency string) (Money, error) {
	return NewMoney(decimal.NewFromInt(cents).Div(decimal.NewFromInt(100)), currency)
}

// MustMoney creates Money and panics on error. For constants and tests.
func MustMoney(amount decimal.Decimal, currency string) Money {
	m, err := NewMoney(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// MustMoneyFromString creates USD Money from a string and panics on error.
func MustMoneyFromString(amount string) Money {
	m, err := NewMoneyFromString(amount, USD)
	if err != nil {
		panic(err)
	}
	return m
}

// Zero returns a zero Money value in the given currency.
func Zero(currency string) Money {
	return MustMoney(decimal.Zero, currency)
}

// Amount returns the decimal amount.
func (m Money) Amount() decimal.Decimal { return m.amount }

// Currency returns the currency code.
func (m Money) Currency() string { return m.currency }

// String returns the amount with two decimal places and the currency code.
func (m Money) String() string {
	return m.amount.StringFixed(2) + " " + m.currency
}

func (m Money) IsZero() bool     { return m.amount.IsZero() }
func (m Money) IsPositive() bool { return m.amount.IsPositive() }
func (m Money) IsNegative() bool { return m.amount.IsNegative() }

// Equal checks amount and currency equality.
func (m Money) Equal(other Money) bool {
	return m.amount.Equal(other.amount) && m.currency == other.currency
}

// Compare returns -1, 0, or 1. Panics on currency mismatch; amounts in one
// lot's bidding history are always same-currency.
func (m Money) Compare(other Money) int {
	if m.currency != other.currency {
		panic(fmt.Sprintf("cannot compare different currencies: %s vs %s", m.currency, other.currency))
	}
	return m.amount.Cmp(other.amount)
}

// LessThan reports m < other.
func (m Money) LessThan(other Money) bool { return m.Compare(other) < 0 }

// GreaterOrEqual reports m >= other.
func (m Money) GreaterOrEqual(other Money) bool { return m.Compare(other) >= 0 }

// Add adds two Money values of the same currency.
func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("cannot add different currencies: %s and %s", m.currency, other.currency)
	}
	return Money{amount: m.amount.Add(other.amount), currency: m.currency}, nil
}

// MustAdd adds and panics on currency mismatch.
func (m Money) MustAdd(other Money) Money {
	sum, err := m.Add(other)
	if err != nil {
		panic(err)
	}
	return sum
}

// Sub subtracts other from m.
func (m Money) Sub(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("cannot subtract different currencies: %s and %s", m.currency, other.currency)
	}
	return Money{amount: m.amount.Sub(other.amount), currency: m.currency}, nil
}

// Mul multiplies by a decimal factor without rounding. Callers that produce
// user-visible amounts must round with RoundHalfUpCents afterwards.
func (m Money) Mul(factor decimal.Decimal) Money {
	return Money{amount: m.amount.Mul(factor), currency: m.currency}
}

// Min returns the smaller of two Money values.
func (m Money) Min(other Money) Money {
	if m.Compare(other) <= 0 {
		return m
	}
	return other
}

// RoundHalfUpCents rounds to two decimal places, half away from zero. This is
// the rounding rule for every invoice line computation.
func (m Money) RoundHalfUpCents() Money {
	return Money{amount: m.amount.Round(2), currency: m.currency}
}

// ToCents converts to integer cents, truncating sub-cent precision.
func (m Money) ToCents() int64 {
	return m.amount.Mul(decimal.NewFromInt(100)).IntPart()
}

// Float64 converts to float64 for metrics only, never for arithmetic.
func (m Money) Float64() float64 {
	f, _ := m.amount.Float64()
	return f
}

// MarshalJSON emits {"amount":"123.45","currency":"USD"}.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
	}{m.amount.StringFixed(2), m.currency})
}

// UnmarshalJSON accepts the MarshalJSON shape and a bare decimal string.
func (m *Money) UnmarshalJSON(data []byte) error {
	var obj struct {
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
	}
	if err := json.Unmarshal(data, &obj); err == nil && obj.Amount != "" {
		if obj.Currency == "" {
			obj.Currency = USD
		}
		money, err := NewMoneyFromString(obj.Amount, obj.Currency)
		if err != nil {
			return err
		}
		*m = money
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid money payload: %s", data)
	}
	money, err := NewMoneyFromString(s, USD)
	if err != nil {
		return err
	}
	*m = money
	return nil
}

// Scan implements sql.Scanner for NUMERIC columns.
func (m *Money) Scan(value interface{}) error {
	if value == nil {
		*m = Zero(USD)
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return m.scanString(string(v))
	case string:
		return m.scanString(v)
	case float64:
		*m = Money{amount: decimal.NewFromFloat(v), currency: USD}
		return nil
	case int64:
		*m = Money{amount: decimal.NewFromInt(v), currency: USD}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Money", value)
	}
}

// Value implements driver.Valuer; stored as a plain decimal string.
func (m Money) Value() (driver.Value, error) {
	return m.amount.StringFixed(2), nil
}

func (m *Money) scanString(s string) error {
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("invalid money format %q: %w", s, err)
	}
	*m = Money{amount: amount, currency: USD}
	return nil
}
