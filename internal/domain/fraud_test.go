package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScorer() *FraudScorer {
	s := NewFraudScorer(DefaultFraudThresholds())
	s.now = fixedClock
	return s
}

func TestFraudScorer_Rules(t *testing.T) {
	tests := []struct {
		name  string
		input FraudInput
		rule  string
		score int
	}{
		{
			name:  "clean",
			input: FraudInput{ReturnValue: usd("40"), Order: testOrder(5), Customer: &CustomerProfile{Email: "a@b.c"}},
			score: 0,
		},
		{
			name:  "frequent returner",
			input: FraudInput{ReturnValue: usd("40"), Order: testOrder(5), Customer: &CustomerProfile{ReturnsLast90Days: 5}},
			rule:  FraudRuleHighReturnFrequency,
			score: 30,
		},
		{
			name:  "high value",
			input: FraudInput{ReturnValue: usd("500"), Order: testOrder(5)},
			rule:  FraudRuleHighValue,
			score: 20,
		},
		{
			name:  "new account",
			input: FraudInput{ReturnValue: usd("10"), Order: testOrder(5), Customer: &CustomerProfile{AccountCreatedAt: daysAgo(3)}},
			rule:  FraudRuleNewAccount,
			score: 15,
		},
		{
			name: "repeated defect",
			input: FraudInput{
				ReturnValue: usd("10"),
				ReasonCodes: []string{"Defective"},
				Order:       testOrder(5),
				Customer:    &CustomerProfile{PriorReasonCodes: []string{"defective", "defective"}},
			},
			rule:  FraudRuleRepeatedDefect,
			score: 25,
		},
		{
			name: "geographic mismatch",
			input: func() FraudInput {
				o := testOrder(5)
				o.ShippingCountry, o.BillingCountry = "US", "ca"
				return FraudInput{ReturnValue: usd("10"), Order: o}
			}(),
			rule:  FraudRuleGeographicMismatch,
			score: 10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := newTestScorer().Score(tt.input)
			assert.Equal(t, tt.score, got.Score)
			if tt.rule == "" {
				assert.Empty(t, got.TriggeredRules)
				return
			}
			assert.Equal(t, []string{tt.rule}, got.TriggeredRules)
		})
	}
}

func TestFraudScorer_AccountAgeFallsBackToOrder(t *testing.T) {
	order := testOrder(5)
	order.CustomerSince = daysAgo(2)

	got := newTestScorer().Score(FraudInput{ReturnValue: usd("10"), Order: order})
	assert.Equal(t, []string{FraudRuleNewAccount}, got.TriggeredRules)
}

func TestFraudScorer_EverythingFiresAndClamps(t *testing.T) {
	order := testOrder(5)
	order.ShippingCountry, order.BillingCountry = "US", "GB"
	in := FraudInput{
		ReturnValue: usd("900"),
		ReasonCodes: []string{"defective"},
		Order:       order,
		Customer: &CustomerProfile{
			ReturnsLast90Days: 9,
			AccountCreatedAt:  daysAgo(1),
			PriorReasonCodes:  []string{"defective", "defective", "defective"},
		},
	}

	got := newTestScorer().Assess(in, DefaultRiskBands())

	assert.Equal(t, MaxFraudScore, got.Score)
	assert.Len(t, got.TriggeredRules, 5)
	assert.Equal(t, RiskBandHigh, got.Band)
	assert.Equal(t, RiskActionAutoReject, got.Action)
}

func TestRiskBands_Classify(t *testing.T) {
	bands := DefaultRiskBands()

	tests := []struct {
		score  int
		band   RiskBand
		action RiskAction
	}{
		{0, RiskBandLow, RiskActionAutoApprove},
		{30, RiskBandLow, RiskActionAutoApprove},
		{31, RiskBandMedium, RiskActionManualReview},
		{70, RiskBandMedium, RiskActionManualReview},
		{71, RiskBandHigh, RiskActionAutoReject},
		{100, RiskBandHigh, RiskActionAutoReject},
	}
	for _, tt := range tests {
		band, action := bands.Classify(tt.score)
		assert.Equal(t, tt.band, band, "score %d", tt.score)
		assert.Equal(t, tt.action, action, "score %d", tt.score)
	}
}

func TestRiskBands_GapGoesToManualReview(t *testing.T) {
	bands, err := ParseRiskBands("0-20", "40-60", "80-100", map[RiskBand]RiskAction{
		RiskBandLow:  RiskActionAutoApprove,
		RiskBandHigh: RiskActionAutoReject,
	})
	require.NoError(t, err)

	band, action := bands.Classify(30)
	assert.Equal(t, RiskBand(""), band)
	assert.Equal(t, RiskActionManualReview, action)

	// a band without a configured action also falls back to review
	band, action = bands.Classify(50)
	assert.Equal(t, RiskBandMedium, band)
	assert.Equal(t, RiskActionManualReview, action)
}

func TestParseScoreRange(t *testing.T) {
	r, err := ParseScoreRange(" 10 - 40 ")
	require.NoError(t, err)
	assert.Equal(t, ScoreRange{Min: 10, Max: 40}, r)
	assert.Equal(t, "10-40", r.String())

	for _, bad := range []string{"", "10", "a-b", "40-10", "30-30", "0-101", "1-2-3"} {
		_, err := ParseScoreRange(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseRiskBands_Overlap(t *testing.T) {
	_, err := ParseRiskBands("0-40", "30-70", "71-100", nil)
	assert.ErrorContains(t, err, "overlaps")

	_, err = ParseRiskBands("0-30", "31-80", "71-100", nil)
	assert.ErrorContains(t, err, "overlaps")

	_, err = ParseRiskBands("0-30", "31-70", "71-100", map[RiskBand]RiskAction{RiskBandLow: "shrug"})
	assert.ErrorContains(t, err, "unknown risk action")
}
