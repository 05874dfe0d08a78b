package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func daysAgo(days int) *time.Time {
	t := testNow.Add(-time.Duration(days) * 24 * time.Hour)
	return &t
}

func usd(amount string) Money { return MustMoney(amount, "USD") }

func testPolicyParams() PolicySnapshotParams {
	return PolicySnapshotParams{
		PolicyVersion:        1,
		Currency:             "USD",
		ReturnWindowDays:     30,
		RestockFeePercent:    decimal.Zero,
		AutoApproveThreshold: usd("100"),
		CreatedAt:            testNow,
	}
}

func testPolicy(t *testing.T, mutate ...func(*PolicySnapshotParams)) PolicySnapshot {
	t.Helper()
	params := testPolicyParams()
	for _, m := range mutate {
		m(&params)
	}
	p, err := NewPolicySnapshot(params)
	require.NoError(t, err)
	return p
}

func testOrder(fulfilledDaysAgo int) OrderSnapshot {
	return OrderSnapshot{
		OrderID:       "ORD-1001",
		TenantID:      "tenant-a",
		CustomerEmail: "shopper@example.com",
		Currency:      "USD",
		Dates: OrderDates{
			OrderDate:   *daysAgo(fulfilledDaysAgo + 2),
			FulfilledAt: daysAgo(fulfilledDaysAgo),
		},
		Items: []FulfilledItem{
			{
				LineItemID: "LI-1",
				SKU:        "SKU-SHIRT",
				Title:      "Shirt",
				Quantity:   2,
				UnitPrice:  usd("50"),
				Category:   "apparel",
			},
			{
				LineItemID: "LI-2",
				SKU:        "SKU-CARD",
				Title:      "Gift card",
				Quantity:   1,
				UnitPrice:  usd("25"),
				Category:   "gift_cards",
				Tags:       []string{"final-sale"},
			},
		},
	}
}

func testItem(lineItemID string, qty int, price, reason string) ReturnLineItem {
	return ReturnLineItem{
		LineItemID: lineItemID,
		SKU:        "SKU-" + lineItemID,
		Title:      "Item " + lineItemID,
		Quantity:   qty,
		UnitPrice:  usd(price),
		Reason:     ReturnReason{Code: reason},
		Condition:  ConditionNew,
	}
}

// requestedReturn builds a return that has already been submitted
func requestedReturn(t *testing.T, policy PolicySnapshot, order OrderSnapshot) *Return {
	t.Helper()
	r, err := NewReturn("tenant-a", order, "shopper@example.com", ChannelCustomer, MethodPrepaidLabel, policy)
	require.NoError(t, err)
	require.NoError(t, r.AddLineItem(testItem("LI-1", 2, "50", "wrong_size")))

	decision := NewEligibilityEvaluator().Evaluate(r.Items, order, policy)
	require.True(t, decision.Eligible, decision.Reasons)
	require.NoError(t, r.Submit("shopper@example.com", decision))
	r.ClearDomainEvents()
	return r
}

// recentOrder is an order fulfilled a few days before the real clock, for aggregate tests
func recentOrder() OrderSnapshot {
	o := testOrder(0)
	fulfilled := time.Now().UTC().Add(-5 * 24 * time.Hour)
	o.Dates = OrderDates{OrderDate: fulfilled.Add(-48 * time.Hour), FulfilledAt: &fulfilled}
	return o
}

// testConfig is a valid merchant policy: 30-day window, refunds and exchanges, fraud screening, $100 auto-approve
func testConfig() PolicyConfig {
	return PolicyConfig{
		Name:         "standard",
		Currency:     "USD",
		ReturnWindow: WindowConfig{Type: WindowTypeLimited, Days: []int{30}, CalculationFrom: string(AnchorFulfillmentDate)},
		Refunds:      RefundConfig{Enabled: true, Methods: RefundMethods{OriginalPayment: true}},
		Exchanges:    ToggleConfig{Enabled: true},
		Fraud:        FraudConfig{Enabled: true},
		Automation:   AutomationConfig{AutoApproveEnabled: true, AutoApproveThreshold: DecimalFromInt(100)},
	}
}
