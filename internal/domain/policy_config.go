package domain

import (
	"strings"
	"time"
)

// Window types
const (
	WindowTypeLimited   = "limited"
	WindowTypeUnlimited = "unlimited"
)

// UnlimitedWindowDays is the snapshot window used for policies without a limit
const UnlimitedWindowDays = 3650

// PolicyConfig is a merchant-authored return policy document
type PolicyConfig struct {
	Name          string            `json:"name" yaml:"name"`
	Currency      string            `json:"currency" yaml:"currency"`
	ReturnWindow  WindowConfig      `json:"returnWindow" yaml:"returnWindow"`
	Refunds       RefundConfig      `json:"refunds" yaml:"refunds"`
	Exchanges     ToggleConfig      `json:"exchanges" yaml:"exchanges"`
	StoreCredit   StoreCreditConfig `json:"storeCredit" yaml:"storeCredit"`
	KeepItem      KeepItemConfig    `json:"keepItem" yaml:"keepItem"`
	Fees          FeeConfig         `json:"fees" yaml:"fees"`
	Exclusions    ExclusionConfig   `json:"exclusions" yaml:"exclusions"`
	Conditions    ConditionConfig   `json:"conditions" yaml:"conditions"`
	Fraud         FraudConfig       `json:"fraud" yaml:"fraud"`
	Automation    AutomationConfig  `json:"automation" yaml:"automation"`
	ReturnMethods []ReturnMethod    `json:"returnMethods" yaml:"returnMethods"`
}

type WindowConfig struct {
	Type            string `json:"type" yaml:"type"`
	Days            []int  `json:"days" yaml:"days"`
	CalculationFrom string `json:"calculationFrom" yaml:"calculationFrom"`
}

type ToggleConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

type RefundConfig struct {
	Enabled bool          `json:"enabled" yaml:"enabled"`
	Methods RefundMethods `json:"methods" yaml:"methods"`
}

type RefundMethods struct {
	OriginalPayment bool `json:"originalPayment" yaml:"originalPayment"`
	StoreCredit     bool `json:"storeCredit" yaml:"storeCredit"`
	GiftCard        bool `json:"giftCard" yaml:"giftCard"`
}

// Any reports whether at least one refund method is enabled
func (m RefundMethods) Any() bool {
	return m.OriginalPayment || m.StoreCredit || m.GiftCard
}

type StoreCreditConfig struct {
	Enabled      bool    `json:"enabled" yaml:"enabled"`
	BonusPercent Decimal `json:"bonusPercent" yaml:"bonusPercent"`
}

type KeepItemConfig struct {
	Enabled  bool    `json:"enabled" yaml:"enabled"`
	MaxValue Decimal `json:"maxValue" yaml:"maxValue"`
}

type FeeConfig struct {
	Restocking PercentFeeConfig `json:"restocking" yaml:"restocking"`
	Shipping   FlatFeeConfig    `json:"shipping" yaml:"shipping"`
}

type PercentFeeConfig struct {
	Enabled bool    `json:"enabled" yaml:"enabled"`
	Percent Decimal `json:"percent" yaml:"percent"`
}

type FlatFeeConfig struct {
	Enabled bool    `json:"enabled" yaml:"enabled"`
	Amount  Decimal `json:"amount" yaml:"amount"`
}

type ExclusionConfig struct {
	Categories []string `json:"categories" yaml:"categories"`
	Tags       []string `json:"tags" yaml:"tags"`
}

type ConditionConfig struct {
	PhotoRequiredReasons []string    `json:"photoRequiredReasons" yaml:"photoRequiredReasons"`
	AcceptedConditions   []Condition `json:"acceptedConditions" yaml:"acceptedConditions"`
}

type FraudConfig struct {
	Enabled                  bool             `json:"enabled" yaml:"enabled"`
	ReturnFrequencyThreshold int              `json:"returnFrequencyThreshold" yaml:"returnFrequencyThreshold"`
	HighValueThreshold       Decimal          `json:"highValueThreshold" yaml:"highValueThreshold"`
	NewAccountDays           int              `json:"newAccountDays" yaml:"newAccountDays"`
	RepeatedDefectThreshold  int              `json:"repeatedDefectThreshold" yaml:"repeatedDefectThreshold"`
	RiskBands                RiskBandConfig   `json:"riskBands" yaml:"riskBands"`
	Actions                  RiskActionConfig `json:"actions" yaml:"actions"`
}

// RiskBandConfig holds bands in their "min-max" string form
type RiskBandConfig struct {
	Low    string `json:"low" yaml:"low"`
	Medium string `json:"medium" yaml:"medium"`
	High   string `json:"high" yaml:"high"`
}

func (c RiskBandConfig) isEmpty() bool {
	return c.Low == "" && c.Medium == "" && c.High == ""
}

type RiskActionConfig struct {
	Low    RiskAction `json:"low" yaml:"low"`
	Medium RiskAction `json:"medium" yaml:"medium"`
	High   RiskAction `json:"high" yaml:"high"`
}

type AutomationConfig struct {
	AutoApproveEnabled   bool     `json:"autoApproveEnabled" yaml:"autoApproveEnabled"`
	AutoApproveThreshold Decimal  `json:"autoApproveThreshold" yaml:"autoApproveThreshold"`
	ManualReviewReasons  []string `json:"manualReviewReasons" yaml:"manualReviewReasons"`
}

// Window returns the return window the config describes. The first listed day count is the standard window.
func (c PolicyConfig) Window() ReturnWindow {
	anchor := WindowAnchor(c.ReturnWindow.CalculationFrom)
	if anchor == "" {
		anchor = AnchorFulfillmentDate
	}
	w := ReturnWindow{Anchor: anchor}
	if strings.EqualFold(c.ReturnWindow.Type, WindowTypeUnlimited) {
		w.Unlimited = true
		w.Days = UnlimitedWindowDays
		return w
	}
	if len(c.ReturnWindow.Days) > 0 {
		w.Days = c.ReturnWindow.Days[0]
	}
	return w
}

// FeeRules converts fee settings to the calculator's form
func (c PolicyConfig) FeeRules() FeeRules {
	currency := strings.ToUpper(c.Currency)
	shipping := ZeroMoney(currency)
	if amount := c.Fees.Shipping.Amount.Decimal; !amount.IsNegative() {
		shipping = Money{amount: amount, currency: currency}
	}
	return FeeRules{
		RestockingEnabled: c.Fees.Restocking.Enabled,
		RestockingPercent: c.Fees.Restocking.Percent.Decimal,
		ShippingEnabled:   c.Fees.Shipping.Enabled,
		ShippingAmount:    shipping,
	}
}

// EnabledOutcomes lists the outcomes the config offers, in preference order
func (c PolicyConfig) EnabledOutcomes() []Outcome {
	var out []Outcome
	if c.Refunds.Enabled {
		out = append(out, OutcomeRefund)
	}
	if c.Exchanges.Enabled {
		out = append(out, OutcomeExchange)
	}
	if c.StoreCredit.Enabled {
		out = append(out, OutcomeStoreCredit)
	}
	if c.KeepItem.Enabled {
		out = append(out, OutcomeKeepItem)
	}
	return out
}

// AutoApproveThreshold is the configured ceiling, or zero when auto approval is off
func (c PolicyConfig) AutoApproveThreshold() Money {
	currency := strings.ToUpper(c.Currency)
	if !c.Automation.AutoApproveEnabled || !c.Automation.AutoApproveThreshold.IsPositive() {
		return ZeroMoney(currency)
	}
	return Money{amount: c.Automation.AutoApproveThreshold.Decimal, currency: currency}
}

// KeepItemMax is the largest return value that may be kept instead of shipped back
func (c PolicyConfig) KeepItemMax() Money {
	currency := strings.ToUpper(c.Currency)
	if !c.KeepItem.MaxValue.IsPositive() {
		return ZeroMoney(currency)
	}
	return Money{amount: c.KeepItem.MaxValue.Decimal, currency: currency}
}

// RiskBands parses the configured bands, falling back to the defaults when none are set
func (c PolicyConfig) RiskBands() (RiskBands, error) {
	defaults := DefaultRiskBands()
	actions := map[RiskBand]RiskAction{}
	for band, action := range defaults.Actions {
		actions[band] = action
	}
	if c.Fraud.Actions.Low != "" {
		actions[RiskBandLow] = c.Fraud.Actions.Low
	}
	if c.Fraud.Actions.Medium != "" {
		actions[RiskBandMedium] = c.Fraud.Actions.Medium
	}
	if c.Fraud.Actions.High != "" {
		actions[RiskBandHigh] = c.Fraud.Actions.High
	}
	bands := c.Fraud.RiskBands
	if bands.isEmpty() {
		bands = RiskBandConfig{Low: defaults.Low.String(), Medium: defaults.Medium.String(), High: defaults.High.String()}
	}
	return ParseRiskBands(bands.Low, bands.Medium, bands.High, actions)
}

// FraudThresholds returns configured thresholds with defaults for unset values
func (c PolicyConfig) FraudThresholds() FraudThresholds {
	t := DefaultFraudThresholds()
	if c.Fraud.ReturnFrequencyThreshold > 0 {
		t.ReturnFrequency = c.Fraud.ReturnFrequencyThreshold
	}
	if c.Fraud.HighValueThreshold.IsPositive() {
		t.HighValue = c.Fraud.HighValueThreshold.Decimal
	}
	if c.Fraud.NewAccountDays > 0 {
		t.NewAccountAge = time.Duration(c.Fraud.NewAccountDays) * 24 * time.Hour
	}
	if c.Fraud.RepeatedDefectThreshold > 0 {
		t.RepeatedDefect = c.Fraud.RepeatedDefectThreshold
	}
	return t
}

// Snapshot converts a validated config into the immutable snapshot attached to new returns
func (c PolicyConfig) Snapshot(version int, now time.Time) (PolicySnapshot, error) {
	window := c.Window()
	var bands RiskBands
	if c.Fraud.Enabled {
		parsed, err := c.RiskBands()
		if err != nil {
			return PolicySnapshot{}, newValidationError("fraud.riskBands", "%v", err)
		}
		bands = parsed
	}
	return NewPolicySnapshot(PolicySnapshotParams{
		PolicyVersion:        version,
		Currency:             strings.ToUpper(c.Currency),
		ReturnWindowDays:     window.Days,
		WindowAnchor:         window.Anchor,
		RestockFeeEnabled:    c.Fees.Restocking.Enabled,
		RestockFeePercent:    c.Fees.Restocking.Percent.Decimal,
		ShippingFeeEnabled:   c.Fees.Shipping.Enabled,
		ShippingFeeAmount:    c.FeeRules().ShippingAmount,
		PhotoRequiredReasons: c.Conditions.PhotoRequiredReasons,
		ExcludedCategories:   c.Exclusions.Categories,
		ExcludedTags:         c.Exclusions.Tags,
		AutoApproveThreshold: c.AutoApproveThreshold(),
		EligibleOutcomes:     c.EnabledOutcomes(),
		EligibleMethods:      c.ReturnMethods,
		FraudEnabled:         c.Fraud.Enabled,
		FraudThresholds:      c.FraudThresholds(),
		RiskBands:            bands,
		CreatedAt:            now,
	})
}
