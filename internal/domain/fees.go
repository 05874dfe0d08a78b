package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// FeeType identifies a deduction from the refund
type FeeType string

const (
	FeeTypeRestocking FeeType = "restocking"
	FeeTypeShipping   FeeType = "shipping"
)

// Fee is a single deduction applied to a return
type Fee struct {
	Type        FeeType `json:"type" bson:"type"`
	Description string  `json:"description" bson:"description"`
	Amount      Money   `json:"amount" bson:"amount"`
}

// FeeRules are the fee settings a policy enforces
type FeeRules struct {
	RestockingEnabled bool
	RestockingPercent decimal.Decimal
	ShippingEnabled   bool
	ShippingAmount    Money
}

// FeeQuote is the outcome of applying fee rules to a return value
type FeeQuote struct {
	Value  Money
	Fees   []Fee
	Total  Money
	Refund Money
}

// FeeCalculator is the single implementation of fee and refund arithmetic,
// shared by the eligibility pipeline and the rules engine.
type FeeCalculator struct{}

// NewFeeCalculator creates a new fee calculator
func NewFeeCalculator() *FeeCalculator {
	return &FeeCalculator{}
}

// Quote computes fees over value and the refund left after them.
// A zero value produces no fees.
func (c *FeeCalculator) Quote(value Money, rules FeeRules) (FeeQuote, error) {
	quote := FeeQuote{
		Value:  value,
		Total:  ZeroMoney(value.Currency()),
		Refund: value,
	}
	if value.IsZero() {
		return quote, nil
	}

	if rules.RestockingEnabled && rules.RestockingPercent.IsPositive() {
		quote.Fees = append(quote.Fees, Fee{
			Type:        FeeTypeRestocking,
			Description: fmt.Sprintf("Restocking fee (%s%%)", rules.RestockingPercent.String()),
			Amount:      value.Percent(rules.RestockingPercent),
		})
	}
	if rules.ShippingEnabled && rules.ShippingAmount.IsSet() && !rules.ShippingAmount.IsZero() {
		quote.Fees = append(quote.Fees, Fee{
			Type:        FeeTypeShipping,
			Description: "Return shipping fee",
			Amount:      rules.ShippingAmount,
		})
	}

	for _, fee := range quote.Fees {
		total, err := quote.Total.Add(fee.Amount)
		if err != nil {
			return FeeQuote{}, fmt.Errorf("failed to total %s fee: %w", fee.Type, err)
		}
		quote.Total = total
	}

	refund, err := value.SubtractFloor(quote.Total)
	if err != nil {
		return FeeQuote{}, err
	}
	quote.Refund = refund
	return quote, nil
}
