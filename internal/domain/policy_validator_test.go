package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func issueFields(issues []ValidationIssue) []string {
	fields := make([]string, len(issues))
	for i, issue := range issues {
		fields[i] = issue.Field
	}
	return fields
}

func TestPolicyValidator_ValidConfig(t *testing.T) {
	result := NewPolicyValidator().Validate(testConfig())

	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)
	assert.NoError(t, result.Err())
}

func TestPolicyValidator_CollectsAllErrors(t *testing.T) {
	cfg := testConfig()
	cfg.Currency = "dollars"
	cfg.ReturnWindow.Type = "forever"
	cfg.ReturnWindow.CalculationFrom = "ship_date"
	cfg.Fees.Restocking.Percent = DecimalFromInt(150)
	cfg.Fees.Shipping.Amount = DecimalFromInt(-2)
	cfg.Refunds.Methods = RefundMethods{}

	result := NewPolicyValidator().Validate(cfg)

	assert.False(t, result.Valid)
	assert.Equal(t, []string{
		"currency",
		"returnWindow.type",
		"returnWindow.calculationFrom",
		"fees.restocking.percent",
		"fees.shipping.amount",
		"refunds.methods",
	}, issueFields(result.Errors))

	var vErr *ValidationError
	require.True(t, errors.As(result.Err(), &vErr))
	assert.Contains(t, vErr.Message, "refunds.methods")
}

func TestPolicyValidator_Window(t *testing.T) {
	tests := []struct {
		name   string
		window WindowConfig
		errors []string
		warns  []string
	}{
		{name: "limited without days", window: WindowConfig{Type: "limited"}, errors: []string{"returnWindow.days"}},
		{name: "non-positive day", window: WindowConfig{Type: "limited", Days: []int{30, 0}}, errors: []string{"returnWindow.days[1]"}},
		{name: "unlimited warns", window: WindowConfig{Type: "unlimited"}, warns: []string{"returnWindow.type"}},
		{name: "every anchor", window: WindowConfig{Type: "limited", Days: []int{14}, CalculationFrom: "first_delivery_attempt"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.ReturnWindow = tt.window
			result := NewPolicyValidator().Validate(cfg)

			if tt.errors == nil {
				assert.Empty(t, result.Errors)
			} else {
				assert.Equal(t, tt.errors, issueFields(result.Errors))
			}
			if tt.warns == nil {
				assert.Empty(t, result.Warnings)
			} else {
				assert.Equal(t, tt.warns, issueFields(result.Warnings))
			}
		})
	}
}

func TestPolicyValidator_Outcomes(t *testing.T) {
	cfg := testConfig()
	cfg.Refunds.Enabled = false
	cfg.Exchanges.Enabled = false

	result := NewPolicyValidator().Validate(cfg)
	assert.Equal(t, []string{"outcomes"}, issueFields(result.Errors))

	cfg = testConfig()
	cfg.StoreCredit = StoreCreditConfig{Enabled: true, BonusPercent: DecimalFromInt(120)}
	cfg.KeepItem = KeepItemConfig{Enabled: true, MaxValue: DecimalFromInt(-1)}
	result = NewPolicyValidator().Validate(cfg)
	assert.Equal(t, []string{"storeCredit.bonusPercent", "keepItem.maxValue"}, issueFields(result.Errors))
}

func TestPolicyValidator_Fraud(t *testing.T) {
	t.Run("overlapping bands are errors", func(t *testing.T) {
		cfg := testConfig()
		cfg.Fraud.RiskBands = RiskBandConfig{Low: "0-40", Medium: "30-70", High: "71-100"}

		result := NewPolicyValidator().Validate(cfg)
		assert.False(t, result.Valid)
		assert.Equal(t, []string{"fraud.riskBands"}, issueFields(result.Errors))
	})

	t.Run("malformed band", func(t *testing.T) {
		cfg := testConfig()
		cfg.Fraud.RiskBands = RiskBandConfig{Low: "0-30", Medium: "high", High: "71-100"}

		result := NewPolicyValidator().Validate(cfg)
		assert.Equal(t, []string{"fraud.riskBands.medium"}, issueFields(result.Errors))
	})

	t.Run("gaps are warnings", func(t *testing.T) {
		cfg := testConfig()
		cfg.Fraud.RiskBands = RiskBandConfig{Low: "0-20", Medium: "30-60", High: "80-100"}

		result := NewPolicyValidator().Validate(cfg)
		assert.True(t, result.Valid)
		require.Len(t, result.Warnings, 2)
		assert.Contains(t, result.Warnings[0].Message, "scores 21-29")
		assert.Contains(t, result.Warnings[1].Message, "scores 61-79")
	})

	t.Run("unknown action", func(t *testing.T) {
		cfg := testConfig()
		cfg.Fraud.Actions.High = "ban"

		result := NewPolicyValidator().Validate(cfg)
		assert.Equal(t, []string{"fraud.actions.high"}, issueFields(result.Errors))
	})

	t.Run("auto approval without screening warns", func(t *testing.T) {
		cfg := testConfig()
		cfg.Fraud.Enabled = false

		result := NewPolicyValidator().Validate(cfg)
		assert.True(t, result.Valid)
		assert.Equal(t, []string{"fraud.enabled"}, issueFields(result.Warnings))
	})
}

func TestPolicyValidator_WarningsDoNotBlock(t *testing.T) {
	cfg := testConfig()
	cfg.Fees.Restocking = PercentFeeConfig{Enabled: true, Percent: DecimalFromInt(30)}
	cfg.Automation.AutoApproveThreshold = Decimal{}

	result := NewPolicyValidator().Validate(cfg)

	assert.True(t, result.Valid)
	assert.Equal(t, []string{"fees.restocking.percent", "automation.autoApproveThreshold"}, issueFields(result.Warnings))
}

func TestValidationResult_Merge(t *testing.T) {
	result := ValidationResult{Valid: true}
	result.Merge(ValidationResult{Errors: []ValidationIssue{{Field: "schema", Message: "bad"}}})

	assert.False(t, result.Valid)
	assert.Equal(t, "schema: bad", result.Errors[0].String())
}

func TestPolicyConfig_Snapshot(t *testing.T) {
	cfg := testConfig()
	cfg.Currency = "usd"
	cfg.ReturnWindow.Days = []int{45, 90}
	cfg.Fees.Shipping = FlatFeeConfig{Enabled: true, Amount: MustDecimal("6.5")}
	cfg.ReturnMethods = []ReturnMethod{MethodDropOff}

	snap, err := cfg.Snapshot(3, testNow)
	require.NoError(t, err)

	assert.Equal(t, 3, snap.PolicyVersion())
	assert.Equal(t, "USD", snap.Currency())
	assert.Equal(t, 45, snap.ReturnWindowDays())
	assert.True(t, snap.ShippingFeeAmount().Equal(usd("6.50")))
	assert.True(t, snap.AutoApproveThreshold().Equal(usd("100")))
	assert.True(t, snap.AllowsOutcome(OutcomeExchange))
	assert.False(t, snap.AllowsOutcome(OutcomeKeepItem))
	assert.False(t, snap.AllowsMethod(MethodPrepaidLabel))

	cfg.ReturnWindow = WindowConfig{Type: WindowTypeUnlimited}
	snap, err = cfg.Snapshot(4, testNow)
	require.NoError(t, err)
	assert.Equal(t, UnlimitedWindowDays, snap.ReturnWindowDays())
}
