package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ValidationIssue is a single finding about a policy config
type ValidationIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (i ValidationIssue) String() string {
	if i.Field == "" {
		return i.Message
	}
	return i.Field + ": " + i.Message
}

// ValidationResult holds every error and warning found. Errors block activation; warnings do not.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Errors   []ValidationIssue `json:"errors"`
	Warnings []ValidationIssue `json:"warnings"`
}

func (r *ValidationResult) addError(field, format string, args ...interface{}) {
	r.Errors = append(r.Errors, ValidationIssue{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (r *ValidationResult) addWarning(field, format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, ValidationIssue{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Merge appends another result's findings
func (r *ValidationResult) Merge(other ValidationResult) {
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
	r.Valid = len(r.Errors) == 0
}

// Err returns a ValidationError summarising the errors, or nil when valid
func (r ValidationResult) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	msgs := make([]string, len(r.Errors))
	for i, issue := range r.Errors {
		msgs[i] = issue.String()
	}
	return &ValidationError{Field: "policy", Message: strings.Join(msgs, "; ")}
}

// HighRestockingFeePercent triggers a warning above this level
const HighRestockingFeePercent = 25

// PolicyValidator checks a PolicyConfig before it can be activated
type PolicyValidator struct{}

// NewPolicyValidator creates a new validator
func NewPolicyValidator() *PolicyValidator {
	return &PolicyValidator{}
}

// Validate runs every check and returns all findings
func (v *PolicyValidator) Validate(cfg PolicyConfig) ValidationResult {
	result := ValidationResult{Errors: []ValidationIssue{}, Warnings: []ValidationIssue{}}

	if !IsValidCurrency(strings.ToUpper(cfg.Currency)) {
		result.addError("currency", "must be a 3-letter ISO currency code")
	}

	v.validateWindow(cfg.ReturnWindow, &result)
	v.validateFees(cfg.Fees, &result)
	v.validateOutcomes(cfg, &result)
	v.validateConditions(cfg.Conditions, &result)
	v.validateFraud(cfg, &result)
	v.validateAutomation(cfg, &result)

	for i, m := range cfg.ReturnMethods {
		if !m.IsValid() {
			result.addError(fmt.Sprintf("returnMethods[%d]", i), "unknown return method %q", m)
		}
	}

	result.Valid = len(result.Errors) == 0
	return result
}

func (v *PolicyValidator) validateWindow(w WindowConfig, result *ValidationResult) {
	switch strings.ToLower(w.Type) {
	case WindowTypeLimited:
		if len(w.Days) == 0 {
			result.addError("returnWindow.days", "limited windows require at least one day count")
		}
		for i, d := range w.Days {
			if d <= 0 {
				result.addError(fmt.Sprintf("returnWindow.days[%d]", i), "must be a positive integer, got %d", d)
			}
		}
	case WindowTypeUnlimited:
		result.addWarning("returnWindow.type", "unlimited return windows increase exposure to return abuse")
	default:
		result.addError("returnWindow.type", "must be one of limited, unlimited, got %q", w.Type)
	}

	if w.CalculationFrom != "" && !WindowAnchor(w.CalculationFrom).IsValid() {
		result.addError("returnWindow.calculationFrom",
			"must be one of order_date, fulfillment_date, delivery_date, first_delivery_attempt, got %q", w.CalculationFrom)
	}
}

func (v *PolicyValidator) validateFees(f FeeConfig, result *ValidationResult) {
	if f.Restocking.Percent.IsNegative() || f.Restocking.Percent.GreaterThan(hundred) {
		result.addError("fees.restocking.percent", "must be between 0 and 100, got %v", f.Restocking.Percent)
	} else if f.Restocking.Enabled && f.Restocking.Percent.GreaterThan(decimal.NewFromInt(HighRestockingFeePercent)) {
		result.addWarning("fees.restocking.percent", "restocking fee above %d%% may deter customers", HighRestockingFeePercent)
	}
	if f.Shipping.Amount.IsNegative() {
		result.addError("fees.shipping.amount", "must not be negative, got %v", f.Shipping.Amount)
	}
}

func (v *PolicyValidator) validateOutcomes(cfg PolicyConfig, result *ValidationResult) {
	if cfg.Refunds.Enabled && !cfg.Refunds.Methods.Any() {
		result.addError("refunds.methods", "at least one refund method must be enabled when refunds are enabled")
	}
	if cfg.StoreCredit.BonusPercent.IsNegative() || cfg.StoreCredit.BonusPercent.GreaterThan(hundred) {
		result.addError("storeCredit.bonusPercent", "must be between 0 and 100, got %v", cfg.StoreCredit.BonusPercent)
	}
	if cfg.KeepItem.MaxValue.IsNegative() {
		result.addError("keepItem.maxValue", "must not be negative, got %v", cfg.KeepItem.MaxValue)
	}
	if len(cfg.EnabledOutcomes()) == 0 {
		result.addError("outcomes", "at least one of refunds, exchanges, storeCredit or keepItem must be enabled")
	}
}

func (v *PolicyValidator) validateConditions(c ConditionConfig, result *ValidationResult) {
	for i, cond := range c.AcceptedConditions {
		if !cond.IsValid() {
			result.addError(fmt.Sprintf("conditions.acceptedConditions[%d]", i), "unknown condition %q", cond)
		}
	}
}

func (v *PolicyValidator) validateFraud(cfg PolicyConfig, result *ValidationResult) {
	f := cfg.Fraud
	if f.HighValueThreshold.IsNegative() {
		result.addError("fraud.highValueThreshold", "must not be negative, got %v", f.HighValueThreshold)
	}
	if f.ReturnFrequencyThreshold < 0 {
		result.addError("fraud.returnFrequencyThreshold", "must not be negative, got %d", f.ReturnFrequencyThreshold)
	}

	actions := map[string]RiskAction{"low": f.Actions.Low, "medium": f.Actions.Medium, "high": f.Actions.High}
	for _, band := range []string{"low", "medium", "high"} {
		if a := actions[band]; a != "" && !a.IsValid() {
			result.addError("fraud.actions."+band, "unknown risk action %q", a)
		}
	}

	if !f.RiskBands.isEmpty() {
		ranges := map[string]string{"low": f.RiskBands.Low, "medium": f.RiskBands.Medium, "high": f.RiskBands.High}
		parsed := map[string]ScoreRange{}
		for _, band := range []string{"low", "medium", "high"} {
			r, err := ParseScoreRange(ranges[band])
			if err != nil {
				result.addError("fraud.riskBands."+band, "%v", err)
				continue
			}
			parsed[band] = r
		}
		low, okLow := parsed["low"]
		medium, okMedium := parsed["medium"]
		high, okHigh := parsed["high"]
		if okLow && okMedium {
			if low.Max >= medium.Min {
				result.addError("fraud.riskBands", "low band %s overlaps medium band %s", low, medium)
			} else if medium.Min-low.Max > 1 {
				result.addWarning("fraud.riskBands", "scores %d-%d fall between low and medium bands and go to manual review", low.Max+1, medium.Min-1)
			}
		}
		if okMedium && okHigh {
			if medium.Max >= high.Min {
				result.addError("fraud.riskBands", "medium band %s overlaps high band %s", medium, high)
			} else if high.Min-medium.Max > 1 {
				result.addWarning("fraud.riskBands", "scores %d-%d fall between medium and high bands and go to manual review", medium.Max+1, high.Min-1)
			}
		}
	}

	if !f.Enabled && cfg.Automation.AutoApproveEnabled {
		result.addWarning("fraud.enabled", "auto approval is enabled without fraud screening")
	}
}

func (v *PolicyValidator) validateAutomation(cfg PolicyConfig, result *ValidationResult) {
	a := cfg.Automation
	if a.AutoApproveThreshold.IsNegative() {
		result.addError("automation.autoApproveThreshold", "must not be negative, got %v", a.AutoApproveThreshold)
	} else if a.AutoApproveEnabled && a.AutoApproveThreshold.IsZero() {
		result.addWarning("automation.autoApproveThreshold", "auto approval is enabled with a zero threshold and will never approve")
	}
}
