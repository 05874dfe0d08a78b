package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
)

// Money errors
var (
	ErrCurrencyMismatch = errors.New("currency mismatch")
	ErrNegativeMoney    = errors.New("money amount cannot be negative")
	ErrInvalidCurrency  = errors.New("currency must be a 3-letter ISO code")
)

// Money is a non-negative fixed-point amount in a single currency
type Money struct {
	amount   decimal.Decimal
	currency string
}

// NewMoney creates a Money value, rejecting negative amounts and malformed currencies
func NewMoney(amount decimal.Decimal, currency string) (Money, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if !IsValidCurrency(currency) {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidCurrency, currency)
	}
	if amount.IsNegative() {
		return Money{}, ErrNegativeMoney
	}
	return Money{amount: amount, currency: currency}, nil
}

// MustMoney parses a decimal string and panics on error. Intended for constants and tests.
func MustMoney(amount, currency string) Money {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		panic(err)
	}
	m, err := NewMoney(d, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// ZeroMoney returns a zero amount in the given currency
func ZeroMoney(currency string) Money {
	return Money{amount: decimal.Zero, currency: strings.ToUpper(currency)}
}

// IsValidCurrency reports whether code looks like an ISO 4217 code
func IsValidCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func (m Money) Amount() decimal.Decimal { return m.amount }
func (m Money) Currency() string        { return m.currency }

// IsZero reports whether the amount is zero (an unset Money is also zero)
func (m Money) IsZero() bool { return m.amount.IsZero() }

// IsSet reports whether the value carries a currency
func (m Money) IsSet() bool { return m.currency != "" }

func (m Money) sameCurrency(other Money) error {
	if m.currency != other.currency {
		return fmt.Errorf("%w: %s and %s", ErrCurrencyMismatch, m.currency, other.currency)
	}
	return nil
}

// Add returns m + other
func (m Money) Add(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{amount: m.amount.Add(other.amount), currency: m.currency}, nil
}

// Subtract returns m - other, failing when the result would be negative
func (m Money) Subtract(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	result := m.amount.Sub(other.amount)
	if result.IsNegative() {
		return Money{}, ErrNegativeMoney
	}
	return Money{amount: result, currency: m.currency}, nil
}

// SubtractFloor returns max(0, m - other)
func (m Money) SubtractFloor(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	result := m.amount.Sub(other.amount)
	if result.IsNegative() {
		result = decimal.Zero
	}
	return Money{amount: result, currency: m.currency}, nil
}

// Multiply returns m × qty
func (m Money) Multiply(qty int) Money {
	if qty < 0 {
		qty = 0
	}
	return Money{amount: m.amount.Mul(decimal.NewFromInt(int64(qty))), currency: m.currency}
}

// Percent returns pct percent of m, rounded to cents
func (m Money) Percent(pct decimal.Decimal) Money {
	if pct.IsNegative() {
		pct = decimal.Zero
	}
	return Money{
		amount:   m.amount.Mul(pct).Div(decimal.NewFromInt(100)).Round(2),
		currency: m.currency,
	}
}

// LessThanOrEqual compares two amounts of the same currency
func (m Money) LessThanOrEqual(other Money) (bool, error) {
	if err := m.sameCurrency(other); err != nil {
		return false, err
	}
	return m.amount.LessThanOrEqual(other.amount), nil
}

// Equal reports whether both amount and currency match
func (m Money) Equal(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.amount.StringFixed(2), m.currency)
}

type moneyDocument struct {
	Amount   string `json:"amount" bson:"amount"`
	Currency string `json:"currency" bson:"currency"`
}

// document writes at least two decimal places and never drops sub-cent digits
func (m Money) document() moneyDocument {
	amount := m.amount.StringFixed(2)
	if m.amount.Exponent() < -2 {
		amount = m.amount.String()
	}
	return moneyDocument{Amount: amount, Currency: m.currency}
}

func (m *Money) fromDocument(doc moneyDocument) error {
	amount := decimal.Zero
	if doc.Amount != "" {
		d, err := decimal.NewFromString(doc.Amount)
		if err != nil {
			return fmt.Errorf("invalid money amount %q: %w", doc.Amount, err)
		}
		amount = d
	}
	if doc.Currency == "" && amount.IsZero() {
		*m = Money{}
		return nil
	}
	parsed, err := NewMoney(amount, doc.Currency)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// MarshalJSON encodes money as {"amount":"12.50","currency":"USD"}
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.document())
}

// UnmarshalJSON accepts the amount as a string or a JSON number
func (m *Money) UnmarshalJSON(data []byte) error {
	var raw struct {
		Amount   json.Number `json:"amount"`
		Currency string      `json:"currency"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return m.fromDocument(moneyDocument{Amount: raw.Amount.String(), Currency: raw.Currency})
}

// MarshalBSON stores the amount as a decimal string
func (m Money) MarshalBSON() ([]byte, error) {
	return bson.Marshal(m.document())
}

func (m *Money) UnmarshalBSON(data []byte) error {
	var doc moneyDocument
	if err := bson.Unmarshal(data, &doc); err != nil {
		return err
	}
	return m.fromDocument(doc)
}
