package domain

import (
	"fmt"
	"time"
)

// EligibilityResult is the structured decision for a return request
type EligibilityResult struct {
	Eligible        bool              `json:"eligible" bson:"eligible"`
	Reasons         []string          `json:"reasons" bson:"reasons"`
	Fees            []Fee             `json:"fees" bson:"fees"`
	EligibleValue   Money             `json:"eligibleValue" bson:"eligibleValue"`
	EstimatedRefund Money             `json:"estimatedRefund" bson:"estimatedRefund"`
	AutoApprove     bool              `json:"autoApprove" bson:"autoApprove"`
	Warnings        []string          `json:"warnings" bson:"warnings"`
	Items           []ItemEligibility `json:"items" bson:"items"`
	Outcomes        []Outcome         `json:"outcomes" bson:"outcomes"`
	Fraud           *FraudAssessment  `json:"fraud,omitempty" bson:"fraud,omitempty"`
	EvaluatedAt     time.Time         `json:"evaluatedAt" bson:"evaluatedAt"`
}

// ItemEligibility is the per-item part of a decision
type ItemEligibility struct {
	LineItemID string   `json:"lineItemId" bson:"lineItemId"`
	Eligible   bool     `json:"eligible" bson:"eligible"`
	Reasons    []string `json:"reasons,omitempty" bson:"reasons,omitempty"`
}

// Clone returns a deep copy
func (r EligibilityResult) Clone() EligibilityResult {
	out := r
	out.Reasons = append([]string(nil), r.Reasons...)
	out.Fees = append([]Fee(nil), r.Fees...)
	out.Warnings = append([]string(nil), r.Warnings...)
	out.Outcomes = append([]Outcome(nil), r.Outcomes...)
	if r.Fraud != nil {
		fraud := *r.Fraud
		fraud.TriggeredRules = append([]string(nil), r.Fraud.TriggeredRules...)
		out.Fraud = &fraud
	}
	out.Items = make([]ItemEligibility, len(r.Items))
	for i, item := range r.Items {
		item.Reasons = append([]string(nil), item.Reasons...)
		out.Items[i] = item
	}
	return out
}

// eligibilityBuilder accumulates findings across checks without short-circuiting
type eligibilityBuilder struct {
	reasons  []string
	warnings []string
	items    []ItemEligibility
}

func (b *eligibilityBuilder) deny(reason string) {
	b.reasons = append(b.reasons, reason)
}

func (b *eligibilityBuilder) warn(warning string) {
	for _, w := range b.warnings {
		if w == warning {
			return
		}
	}
	b.warnings = append(b.warnings, warning)
}

func (b *eligibilityBuilder) item(lineItemID string, reasons []string) {
	b.items = append(b.items, ItemEligibility{
		LineItemID: lineItemID,
		Eligible:   len(reasons) == 0,
		Reasons:    reasons,
	})
	b.reasons = append(b.reasons, reasons...)
}

// EligibilityEvaluator runs the customer-facing, per-item eligibility pipeline
type EligibilityEvaluator struct {
	fees *FeeCalculator
	now  func() time.Time
}

// EvaluatorOption configures an EligibilityEvaluator
type EvaluatorOption func(*EligibilityEvaluator)

// WithClock overrides the evaluator's notion of now
func WithClock(now func() time.Time) EvaluatorOption {
	return func(e *EligibilityEvaluator) { e.now = now }
}

// NewEligibilityEvaluator creates a new evaluator
func NewEligibilityEvaluator(opts ...EvaluatorOption) *EligibilityEvaluator {
	e := &EligibilityEvaluator{
		fees: NewFeeCalculator(),
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate decides eligibility for the requested items against an order and policy.
// Every item is checked; one ineligible item does not stop evaluation of the rest.
func (e *EligibilityEvaluator) Evaluate(items []ReturnLineItem, order OrderSnapshot, policy PolicySnapshot) EligibilityResult {
	return e.EvaluateFor(items, order, policy, nil)
}

// EvaluateFor is Evaluate with the customer's recent returns available to the fraud gate.
// customer may be nil.
func (e *EligibilityEvaluator) EvaluateFor(items []ReturnLineItem, order OrderSnapshot, policy PolicySnapshot, customer *CustomerProfile) EligibilityResult {
	now := e.now()
	currency := policy.Currency()
	b := &eligibilityBuilder{}

	if len(items) == 0 {
		b.deny("no items were requested for return")
	}

	window := policy.Window()
	windowStatus := window.Evaluate(order.Dates, now)
	windowReason := ""
	if windowStatus.Expired {
		windowReason = windowStatus.DenialReason(window.Days)
	} else if windowStatus.ClosingSoon {
		b.warn(windowStatus.Warning())
	}

	eligibleValue := ZeroMoney(currency)
	requestedValue := ZeroMoney(currency)
	highRisk := false
	for _, item := range items {
		if item.Reason.IsHighRisk() {
			highRisk = true
		}
		if next, err := requestedValue.Add(item.Value()); err == nil {
			requestedValue = next
		}
		reasons := e.checkItem(item, order, policy, windowReason)
		b.item(item.LineItemID, reasons)
		if len(reasons) > 0 {
			continue
		}
		// currency already checked, so Add cannot fail here
		if next, err := eligibleValue.Add(item.Value()); err == nil {
			eligibleValue = next
		}
	}

	result := EligibilityResult{
		Reasons:         b.reasons,
		Warnings:        b.warnings,
		Items:           b.items,
		EligibleValue:   eligibleValue,
		EstimatedRefund: ZeroMoney(currency),
		EvaluatedAt:     now,
	}

	anyEligible := false
	for _, item := range b.items {
		if item.Eligible {
			anyEligible = true
			break
		}
	}
	result.Eligible = len(b.reasons) == 0 && anyEligible

	quote, err := e.fees.Quote(eligibleValue, policy.FeeRules())
	if err != nil {
		result.Eligible = false
		result.Reasons = append(result.Reasons, fmt.Sprintf("fees could not be calculated: %v", err))
		return e.finalize(result)
	}
	result.Fees = quote.Fees
	result.EstimatedRefund = quote.Refund

	// auto-approval is decided last so the high-risk list can veto it
	if result.Eligible && !highRisk {
		if ok, err := quote.Refund.LessThanOrEqual(policy.AutoApproveThreshold()); err == nil && ok && !policy.AutoApproveThreshold().IsZero() {
			result.AutoApprove = true
		}
	}

	result.Outcomes = policy.OfferedOutcomes()
	if policy.FraudEnabled() && len(items) > 0 {
		e.screenFraud(&result, items, order, policy, customer, requestedValue)
	}
	return e.finalize(result)
}

// screenFraud scores the request and applies the band's action. Any action other
// than auto_approve sends the return to manual review.
func (e *EligibilityEvaluator) screenFraud(result *EligibilityResult, items []ReturnLineItem, order OrderSnapshot, policy PolicySnapshot, customer *CustomerProfile, value Money) {
	codes := make([]string, 0, len(items))
	for _, item := range items {
		codes = append(codes, item.Reason.Code)
	}
	scorer := NewFraudScorer(policy.FraudThresholds())
	scorer.now = e.now
	assessment := scorer.Assess(FraudInput{
		ReturnValue: value,
		ReasonCodes: codes,
		Order:       order,
		Customer:    customer,
	}, policy.RiskBands())
	result.Fraud = &assessment

	switch assessment.Action {
	case RiskActionAutoApprove:
		return
	case RiskActionRestrictOutcomes:
		outcomes := make([]Outcome, 0, len(result.Outcomes))
		for _, o := range result.Outcomes {
			if o != OutcomeRefund {
				outcomes = append(outcomes, o)
			}
		}
		result.Outcomes = outcomes
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("fraud risk score %d restricts outcomes to exchange or store credit", assessment.Score))
	default:
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("fraud risk score %d requires manual review", assessment.Score))
	}
	result.AutoApprove = false
}

func (e *EligibilityEvaluator) finalize(r EligibilityResult) EligibilityResult {
	if r.Reasons == nil {
		r.Reasons = []string{}
	}
	if r.Warnings == nil {
		r.Warnings = []string{}
	}
	if r.Fees == nil {
		r.Fees = []Fee{}
	}
	if r.Outcomes == nil {
		r.Outcomes = []Outcome{}
	}
	return r
}

func (e *EligibilityEvaluator) checkItem(item ReturnLineItem, order OrderSnapshot, policy PolicySnapshot, windowReason string) []string {
	var reasons []string
	label := item.LineItemID
	if item.SKU != "" {
		label = fmt.Sprintf("%s (%s)", item.LineItemID, item.SKU)
	}

	if item.UnitPrice.Currency() != policy.Currency() {
		reasons = append(reasons, fmt.Sprintf("item %s: priced in %s but the policy uses %s",
			label, item.UnitPrice.Currency(), policy.Currency()))
	}

	category, tags := item.Category, item.Tags
	fulfilled, found := order.FindItem(item.LineItemID)
	if !found {
		reasons = append(reasons, fmt.Sprintf("item %s: not found on order %s", label, order.OrderID))
	} else {
		if item.Quantity > fulfilled.ReturnableQuantity() {
			reasons = append(reasons, fmt.Sprintf("item %s: requested quantity %d exceeds returnable quantity %d",
				label, item.Quantity, fulfilled.ReturnableQuantity()))
		}
		if category == "" {
			category = fulfilled.Category
		}
		if len(tags) == 0 {
			tags = fulfilled.Tags
		}
	}

	if windowReason != "" {
		reasons = append(reasons, fmt.Sprintf("item %s: %s", label, windowReason))
	}

	if policy.ExcludesCategory(category) {
		reasons = append(reasons, fmt.Sprintf("item %s: category %q is not returnable", label, category))
	}
	if tag, excluded := policy.ExcludedTag(tags); excluded {
		reasons = append(reasons, fmt.Sprintf("item %s: items tagged %q are not returnable", label, tag))
	}

	if policy.RequiresPhoto(item.Reason.Code) && len(item.Photos) == 0 {
		reasons = append(reasons, fmt.Sprintf("item %s: photos are required for return reason %q", label, item.Reason.Code))
	}
	return reasons
}
