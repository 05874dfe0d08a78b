package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, cfg PolicyConfig) *RulesEngine {
	t.Helper()
	engine, err := NewRulesEngine(cfg, WithEngineClock(fixedClock))
	require.NoError(t, err)
	return engine
}

func TestRulesEngine_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.ReturnWindow.Days = nil

	_, err := NewRulesEngine(cfg)
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestRulesEngine_AutoApproves(t *testing.T) {
	engine := newTestEngine(t, testConfig())

	decision := engine.Evaluate(RuleInput{
		Items: []ReturnLineItem{testItem("LI-1", 1, "50", "wrong_size")},
		Order: testOrder(10),
	})

	assert.Equal(t, DecisionApproved, decision.Outcome)
	assert.Equal(t, 0.95, decision.Confidence)
	assert.Equal(t, StepAutomation, decision.DecidedBy)
	assert.Equal(t, []string{StepWindow, StepExclusions, StepConditions, StepFraud, StepOutcome, StepFees, StepAutomation}, decision.StepsEvaluated)
	assert.Equal(t, []Outcome{OutcomeRefund, OutcomeExchange}, decision.AvailableOutcomes)
	assert.Equal(t, OutcomeRefund, decision.SelectedOutcome)
	require.NotNil(t, decision.Fraud)
	assert.Equal(t, 0, decision.Fraud.Score)
	assert.True(t, decision.EstimatedRefund.Equal(usd("50")))
	assert.Equal(t, testNow, decision.EvaluatedAt)
}

func TestRulesEngine_ShortCircuits(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*PolicyConfig)
		input      RuleInput
		outcome    DecisionOutcome
		confidence float64
		decidedBy  string
		reason     string
	}{
		{
			name:       "expired window",
			input:      RuleInput{Items: []ReturnLineItem{testItem("LI-1", 1, "50", "wrong_size")}, Order: testOrder(35)},
			outcome:    DecisionDenied,
			confidence: 1.0,
			decidedBy:  StepWindow,
			reason:     "return window expired",
		},
		{
			name:       "excluded category",
			mutate:     func(c *PolicyConfig) { c.Exclusions.Categories = []string{"gift_cards"} },
			input:      RuleInput{Items: []ReturnLineItem{testItem("LI-2", 1, "25", "wrong_size")}, Order: testOrder(5)},
			outcome:    DecisionDenied,
			confidence: 1.0,
			decidedBy:  StepExclusions,
			reason:     `category "gift_cards" is not returnable`,
		},
		{
			name:       "quantity above returnable",
			input:      RuleInput{Items: []ReturnLineItem{testItem("LI-1", 5, "50", "wrong_size")}, Order: testOrder(5)},
			outcome:    DecisionDenied,
			confidence: 1.0,
			decidedBy:  StepExclusions,
			reason:     "exceeds returnable quantity",
		},
		{
			name:       "missing photos",
			mutate:     func(c *PolicyConfig) { c.Conditions.PhotoRequiredReasons = []string{"damaged"} },
			input:      RuleInput{Items: []ReturnLineItem{testItem("LI-1", 1, "50", "damaged")}, Order: testOrder(5)},
			outcome:    DecisionDenied,
			confidence: 0.9,
			decidedBy:  StepConditions,
			reason:     "photos are required",
		},
		{
			name:   "condition needs inspection",
			mutate: func(c *PolicyConfig) { c.Conditions.AcceptedConditions = []Condition{ConditionNew} },
			input: func() RuleInput {
				item := testItem("LI-1", 1, "50", "wrong_size")
				item.Condition = ConditionDamaged
				return RuleInput{Items: []ReturnLineItem{item}, Order: testOrder(5)}
			}(),
			outcome:    DecisionManualReview,
			confidence: 0.6,
			decidedBy:  StepConditions,
			reason:     `condition "damaged" needs inspection`,
		},
		{
			name: "high fraud risk",
			input: func() RuleInput {
				order := testOrder(5)
				order.ShippingCountry, order.BillingCountry = "US", "NG"
				return RuleInput{
					Items: []ReturnLineItem{testItem("LI-1", 1, "50", "defective")},
					Order: order,
					Customer: &CustomerProfile{
						ReturnsLast90Days: 8,
						AccountCreatedAt:  daysAgo(2),
						PriorReasonCodes:  []string{"defective", "defective"},
					},
				}
			}(),
			outcome:    DecisionDenied,
			confidence: 0.85,
			decidedBy:  StepFraud,
			reason:     "fraud risk score 80 is in the high band",
		},
		{
			name:       "high risk reason",
			input:      RuleInput{Items: []ReturnLineItem{testItem("LI-1", 1, "50", "abuse")}, Order: testOrder(5)},
			outcome:    DecisionManualReview,
			confidence: 0.7,
			decidedBy:  StepAutomation,
			reason:     `reason "abuse" is high risk`,
		},
		{
			name:       "configured review reason",
			mutate:     func(c *PolicyConfig) { c.Automation.ManualReviewReasons = []string{"Not_As_Described"} },
			input:      RuleInput{Items: []ReturnLineItem{testItem("LI-1", 1, "50", "not_as_described")}, Order: testOrder(5)},
			outcome:    DecisionManualReview,
			confidence: 0.7,
			decidedBy:  StepAutomation,
			reason:     "always requires review",
		},
		{
			name:       "above threshold falls through",
			input:      RuleInput{Items: []ReturnLineItem{testItem("LI-1", 2, "60", "wrong_size")}, Order: testOrder(5)},
			outcome:    DecisionManualReview,
			confidence: 0.5,
			decidedBy:  "",
			reason:     "no rule reached a decision",
		},
		{
			name:       "no items",
			input:      RuleInput{Order: testOrder(5)},
			outcome:    DecisionDenied,
			confidence: 1.0,
			decidedBy:  "input",
			reason:     "no items were requested",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}
			decision := newTestEngine(t, cfg).Evaluate(tt.input)

			assert.Equal(t, tt.outcome, decision.Outcome)
			assert.Equal(t, tt.confidence, decision.Confidence)
			assert.Equal(t, tt.decidedBy, decision.DecidedBy)
			require.NotEmpty(t, decision.Reasons)
			assert.Contains(t, decision.Reasons[0], tt.reason)
			if tt.decidedBy != "" && tt.decidedBy != "input" {
				assert.Equal(t, tt.decidedBy, decision.StepsEvaluated[len(decision.StepsEvaluated)-1])
			}
		})
	}
}

func TestRulesEngine_FraudDisabledSkipsStep(t *testing.T) {
	cfg := testConfig()
	cfg.Fraud.Enabled = false
	decision := newTestEngine(t, cfg).Evaluate(RuleInput{
		Items:    []ReturnLineItem{testItem("LI-1", 1, "50", "defective")},
		Order:    testOrder(5),
		Customer: &CustomerProfile{ReturnsLast90Days: 50, AccountCreatedAt: daysAgo(1)},
	})

	assert.NotContains(t, decision.StepsEvaluated, StepFraud)
	assert.Nil(t, decision.Fraud)
	assert.Equal(t, DecisionApproved, decision.Outcome)
}

func TestRulesEngine_RestrictOutcomes(t *testing.T) {
	cfg := testConfig()
	cfg.Fraud.Actions.Medium = RiskActionRestrictOutcomes

	decision := newTestEngine(t, cfg).Evaluate(RuleInput{
		Items:            []ReturnLineItem{testItem("LI-1", 1, "50", "wrong_size")},
		Order:            testOrder(5),
		Customer:         &CustomerProfile{ReturnsLast90Days: 6, AccountCreatedAt: daysAgo(3)},
		PreferredOutcome: OutcomeRefund,
	})

	assert.Equal(t, []Outcome{OutcomeExchange}, decision.AvailableOutcomes)
	assert.Equal(t, OutcomeExchange, decision.SelectedOutcome)
	assert.Len(t, decision.Warnings, 2)
	// restricted cases never auto-approve
	assert.Equal(t, DecisionManualReview, decision.Outcome)
}

func TestRulesEngine_KeepItem(t *testing.T) {
	cfg := testConfig()
	cfg.KeepItem = KeepItemConfig{Enabled: true, MaxValue: DecimalFromInt(20)}
	cfg.Fees.Shipping = FlatFeeConfig{Enabled: true, Amount: DecimalFromInt(5)}

	cheap := newTestEngine(t, cfg).Evaluate(RuleInput{
		Items:            []ReturnLineItem{testItem("LI-2", 1, "15", "wrong_size")},
		Order:            testOrder(5),
		PreferredOutcome: OutcomeKeepItem,
	})
	assert.Contains(t, cheap.AvailableOutcomes, OutcomeKeepItem)
	assert.Equal(t, OutcomeKeepItem, cheap.SelectedOutcome)
	assert.Empty(t, cheap.Fees)
	assert.True(t, cheap.EstimatedRefund.Equal(usd("15")))

	pricey := newTestEngine(t, cfg).Evaluate(RuleInput{
		Items:            []ReturnLineItem{testItem("LI-1", 1, "50", "wrong_size")},
		Order:            testOrder(5),
		PreferredOutcome: OutcomeKeepItem,
	})
	assert.NotContains(t, pricey.AvailableOutcomes, OutcomeKeepItem)
	assert.Equal(t, OutcomeRefund, pricey.SelectedOutcome)
	assert.Contains(t, pricey.Warnings, "preferred outcome keep_item is not available; offering refund")
	require.Len(t, pricey.Fees, 1)
	assert.True(t, pricey.EstimatedRefund.Equal(usd("45")))
}

func TestRulesEngine_FallbackAnchorWarns(t *testing.T) {
	cfg := testConfig()
	cfg.ReturnWindow.CalculationFrom = string(AnchorDeliveryDate)

	decision := newTestEngine(t, cfg).Evaluate(RuleInput{
		Items: []ReturnLineItem{testItem("LI-1", 1, "50", "wrong_size")},
		Order: testOrder(5),
	})
	assert.Contains(t, decision.Warnings, "delivery not recorded; return window counted from an earlier milestone")
}

func TestRulesEngine_AgreesWithEligibilityOnMoney(t *testing.T) {
	cfg := testConfig()
	cfg.Fees.Restocking = PercentFeeConfig{Enabled: true, Percent: MustDecimal("12.5")}
	cfg.Fees.Shipping = FlatFeeConfig{Enabled: true, Amount: MustDecimal("4.99")}
	cfg.Automation.AutoApproveThreshold = DecimalFromInt(1000)
	items := []ReturnLineItem{testItem("LI-1", 2, "50", "wrong_size")}

	for _, days := range []int{1, 15, 27, 30} {
		order := testOrder(days)
		snapshot, err := cfg.Snapshot(1, testNow)
		require.NoError(t, err)

		eligibility := newTestEvaluator().Evaluate(items, order, snapshot)
		decision := newTestEngine(t, cfg).Evaluate(RuleInput{Items: items, Order: order})

		assert.True(t, eligibility.Eligible)
		assert.Equal(t, DecisionApproved, decision.Outcome, "day %d", days)
		assert.True(t, eligibility.EstimatedRefund.Equal(decision.EstimatedRefund),
			"day %d: %s vs %s", days, eligibility.EstimatedRefund, decision.EstimatedRefund)
		assert.Equal(t, len(eligibility.Fees), len(decision.Fees))
	}
}
