package domain

import (
	"fmt"
	"time"
)

// DecisionOutcome is the verdict of the configurable rules engine
type DecisionOutcome string

const (
	DecisionApproved     DecisionOutcome = "approved"
	DecisionDenied       DecisionOutcome = "denied"
	DecisionManualReview DecisionOutcome = "manual_review"
)

// Rule step names, in evaluation order
const (
	StepWindow     = "window"
	StepExclusions = "exclusions"
	StepConditions = "conditions"
	StepFraud      = "fraud"
	StepOutcome    = "outcome"
	StepFees       = "fees"
	StepAutomation = "automation"
)

// defaultConfidence applies when no step reaches a verdict
const defaultConfidence = 0.5

// RuleInput is the order-level request the rules engine decides on
type RuleInput struct {
	Items            []ReturnLineItem
	Order            OrderSnapshot
	Customer         *CustomerProfile
	PreferredOutcome Outcome
}

// PolicyDecision is the result of a rules engine run
type PolicyDecision struct {
	Outcome           DecisionOutcome  `json:"outcome"`
	Confidence        float64          `json:"confidence"`
	DecidedBy         string           `json:"decidedBy"`
	StepsEvaluated    []string         `json:"stepsEvaluated"`
	Reasons           []string         `json:"reasons"`
	Warnings          []string         `json:"warnings"`
	AvailableOutcomes []Outcome        `json:"availableOutcomes"`
	SelectedOutcome   Outcome          `json:"selectedOutcome,omitempty"`
	Fees              []Fee            `json:"fees"`
	ReturnValue       Money            `json:"returnValue"`
	EstimatedRefund   Money            `json:"estimatedRefund"`
	Fraud             *FraudAssessment `json:"fraud,omitempty"`
	EvaluatedAt       time.Time        `json:"evaluatedAt"`
}

type verdict struct {
	outcome    DecisionOutcome
	confidence float64
	reasons    []string
}

func deny(confidence float64, reasons ...string) *verdict {
	return &verdict{outcome: DecisionDenied, confidence: confidence, reasons: reasons}
}

func review(confidence float64, reasons ...string) *verdict {
	return &verdict{outcome: DecisionManualReview, confidence: confidence, reasons: reasons}
}

// ruleContext carries state between steps of one evaluation
type ruleContext struct {
	input          RuleInput
	now            time.Time
	value          Money
	restrictRefund bool
	decision       *PolicyDecision
}

func (c *ruleContext) warn(format string, args ...interface{}) {
	c.decision.Warnings = append(c.decision.Warnings, fmt.Sprintf(format, args...))
}

type ruleStep struct {
	name    string
	enabled bool
	run     func(*ruleContext) *verdict
}

// RulesEngine runs the configuration-driven, short-circuiting policy pipeline
type RulesEngine struct {
	cfg    PolicyConfig
	bands  RiskBands
	scorer *FraudScorer
	fees   *FeeCalculator
	now    func() time.Time
	steps  []ruleStep
}

// RulesEngineOption configures a RulesEngine
type RulesEngineOption func(*RulesEngine)

// WithEngineClock overrides the engine's notion of now
func WithEngineClock(now func() time.Time) RulesEngineOption {
	return func(e *RulesEngine) {
		e.now = now
		e.scorer.now = now
	}
}

// NewRulesEngine compiles a policy config into an engine. The config must validate.
func NewRulesEngine(cfg PolicyConfig, opts ...RulesEngineOption) (*RulesEngine, error) {
	if res := NewPolicyValidator().Validate(cfg); !res.Valid {
		return nil, res.Err()
	}
	bands, err := cfg.RiskBands()
	if err != nil {
		return nil, newValidationError("fraud.riskBands", "%v", err)
	}

	e := &RulesEngine{
		cfg:    cfg,
		bands:  bands,
		scorer: NewFraudScorer(cfg.FraudThresholds()),
		fees:   NewFeeCalculator(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	e.steps = []ruleStep{
		{name: StepWindow, enabled: true, run: e.checkWindow},
		{name: StepExclusions, enabled: true, run: e.checkExclusions},
		{name: StepConditions, enabled: true, run: e.checkConditions},
		{name: StepFraud, enabled: cfg.Fraud.Enabled, run: e.checkFraud},
		{name: StepOutcome, enabled: true, run: e.determineOutcome},
		{name: StepFees, enabled: true, run: e.calculateFees},
		{name: StepAutomation, enabled: true, run: e.automate},
	}
	return e, nil
}

// Evaluate runs the steps in order until one reaches a verdict
func (e *RulesEngine) Evaluate(in RuleInput) PolicyDecision {
	currency := e.cfg.FeeRules().ShippingAmount.Currency()
	now := e.now()
	decision := &PolicyDecision{
		StepsEvaluated:  []string{},
		Reasons:         []string{},
		Warnings:        []string{},
		Fees:            []Fee{},
		ReturnValue:     ZeroMoney(currency),
		EstimatedRefund: ZeroMoney(currency),
		EvaluatedAt:     now,
	}
	ctx := &ruleContext{input: in, now: now, decision: decision, value: ZeroMoney(currency)}

	if len(in.Items) == 0 {
		return e.finish(ctx, "input", deny(1.0, "no items were requested for return"))
	}
	for _, item := range in.Items {
		next, err := ctx.value.Add(item.Value())
		if err != nil {
			return e.finish(ctx, "input", deny(1.0, fmt.Sprintf("item %s: %v", item.LineItemID, err)))
		}
		ctx.value = next
	}
	decision.ReturnValue = ctx.value
	decision.EstimatedRefund = ctx.value

	for _, step := range e.steps {
		if !step.enabled {
			continue
		}
		decision.StepsEvaluated = append(decision.StepsEvaluated, step.name)
		if v := step.run(ctx); v != nil {
			return e.finish(ctx, step.name, v)
		}
	}
	return e.finish(ctx, "", review(defaultConfidence, "no rule reached a decision"))
}

func (e *RulesEngine) finish(ctx *ruleContext, step string, v *verdict) PolicyDecision {
	d := ctx.decision
	d.Outcome = v.outcome
	d.Confidence = v.confidence
	d.DecidedBy = step
	d.Reasons = append(d.Reasons, v.reasons...)
	return *d
}

func (e *RulesEngine) checkWindow(ctx *ruleContext) *verdict {
	window := e.cfg.Window()
	status := window.Evaluate(ctx.input.Order.Dates, ctx.now)
	if status.FellBack {
		ctx.warn("%s not recorded; return window counted from an earlier milestone", anchorLabel(window.Anchor))
	}
	if status.Expired {
		return deny(1.0, status.DenialReason(window.Days))
	}
	if status.ClosingSoon {
		ctx.warn("%s", status.Warning())
	}
	return nil
}

func (e *RulesEngine) checkExclusions(ctx *ruleContext) *verdict {
	var reasons []string
	categories := normalizedSet(e.cfg.Exclusions.Categories)
	tags := normalizedSet(e.cfg.Exclusions.Tags)
	for _, item := range ctx.input.Items {
		category, itemTags := item.Category, item.Tags
		fulfilled, found := ctx.input.Order.FindItem(item.LineItemID)
		if !found {
			reasons = append(reasons, fmt.Sprintf("item %s: not found on order %s", item.LineItemID, ctx.input.Order.OrderID))
			continue
		}
		if item.Quantity > fulfilled.ReturnableQuantity() {
			reasons = append(reasons, fmt.Sprintf("item %s: requested quantity %d exceeds returnable quantity %d",
				item.LineItemID, item.Quantity, fulfilled.ReturnableQuantity()))
		}
		if category == "" {
			category = fulfilled.Category
		}
		if len(itemTags) == 0 {
			itemTags = fulfilled.Tags
		}
		if category != "" && containsCode(categories, category) {
			reasons = append(reasons, fmt.Sprintf("item %s: category %q is not returnable", item.LineItemID, category))
		}
		for _, tag := range itemTags {
			if containsCode(tags, tag) {
				reasons = append(reasons, fmt.Sprintf("item %s: items tagged %q are not returnable", item.LineItemID, tag))
				break
			}
		}
	}
	if len(reasons) > 0 {
		return deny(1.0, reasons...)
	}
	return nil
}

func (e *RulesEngine) checkConditions(ctx *ruleContext) *verdict {
	photoReasons := normalizedSet(e.cfg.Conditions.PhotoRequiredReasons)
	var missingPhotos, unaccepted []string
	for _, item := range ctx.input.Items {
		if containsCode(photoReasons, item.Reason.Code) && len(item.Photos) == 0 {
			missingPhotos = append(missingPhotos,
				fmt.Sprintf("item %s: photos are required for return reason %q", item.LineItemID, item.Reason.Code))
		}
		if len(e.cfg.Conditions.AcceptedConditions) > 0 && !conditionAccepted(e.cfg.Conditions.AcceptedConditions, item.Condition) {
			unaccepted = append(unaccepted,
				fmt.Sprintf("item %s: condition %q needs inspection", item.LineItemID, item.Condition))
		}
	}
	if len(missingPhotos) > 0 {
		return deny(0.9, missingPhotos...)
	}
	if len(unaccepted) > 0 {
		return review(0.6, unaccepted...)
	}
	return nil
}

func conditionAccepted(accepted []Condition, c Condition) bool {
	for _, a := range accepted {
		if a == c {
			return true
		}
	}
	return false
}

func (e *RulesEngine) checkFraud(ctx *ruleContext) *verdict {
	codes := make([]string, 0, len(ctx.input.Items))
	for _, item := range ctx.input.Items {
		codes = append(codes, item.Reason.Code)
	}
	assessment := e.scorer.Assess(FraudInput{
		ReturnValue: ctx.value,
		ReasonCodes: codes,
		Order:       ctx.input.Order,
		Customer:    ctx.input.Customer,
	}, e.bands)
	ctx.decision.Fraud = &assessment

	switch assessment.Action {
	case RiskActionAutoReject:
		return deny(0.85, fmt.Sprintf("fraud risk score %d is in the %s band", assessment.Score, assessment.Band))
	case RiskActionManualReview:
		return review(0.6, fmt.Sprintf("fraud risk score %d requires manual review", assessment.Score))
	case RiskActionRestrictOutcomes:
		ctx.restrictRefund = true
		ctx.warn("fraud risk score %d restricts outcomes to exchange or store credit", assessment.Score)
	}
	return nil
}

func (e *RulesEngine) determineOutcome(ctx *ruleContext) *verdict {
	var available []Outcome
	for _, o := range e.cfg.EnabledOutcomes() {
		switch o {
		case OutcomeRefund:
			if ctx.restrictRefund {
				continue
			}
		case OutcomeKeepItem:
			if ok, err := ctx.value.LessThanOrEqual(e.cfg.KeepItemMax()); err != nil || !ok {
				continue
			}
		}
		available = append(available, o)
	}
	if len(available) == 0 {
		return deny(1.0, "no return outcome is available for this request")
	}
	ctx.decision.AvailableOutcomes = available

	selected := available[0]
	if preferred := ctx.input.PreferredOutcome; preferred != "" {
		found := false
		for _, o := range available {
			if o == preferred {
				selected, found = o, true
				break
			}
		}
		if !found {
			ctx.warn("preferred outcome %s is not available; offering %s", preferred, selected)
		}
	}
	ctx.decision.SelectedOutcome = selected
	return nil
}

func (e *RulesEngine) calculateFees(ctx *ruleContext) *verdict {
	rules := e.cfg.FeeRules()
	if ctx.decision.SelectedOutcome == OutcomeKeepItem {
		// nothing is shipped or restocked
		rules = FeeRules{}
	}
	quote, err := e.fees.Quote(ctx.value, rules)
	if err != nil {
		return review(0.5, fmt.Sprintf("fees could not be calculated: %v", err))
	}
	ctx.decision.Fees = quote.Fees
	if ctx.decision.Fees == nil {
		ctx.decision.Fees = []Fee{}
	}
	ctx.decision.EstimatedRefund = quote.Refund
	return nil
}

func (e *RulesEngine) automate(ctx *ruleContext) *verdict {
	reviewReasons := normalizedSet(e.cfg.Automation.ManualReviewReasons)
	for _, item := range ctx.input.Items {
		if item.Reason.IsHighRisk() {
			return review(0.7, fmt.Sprintf("item %s: reason %q is high risk", item.LineItemID, item.Reason.Code))
		}
		if containsCode(reviewReasons, item.Reason.Code) {
			return review(0.7, fmt.Sprintf("item %s: reason %q always requires review", item.LineItemID, item.Reason.Code))
		}
	}

	if !e.cfg.Automation.AutoApproveEnabled {
		return nil
	}
	if f := ctx.decision.Fraud; f != nil && f.Action != RiskActionAutoApprove {
		return nil
	}
	threshold := e.cfg.AutoApproveThreshold()
	if threshold.IsZero() {
		return nil
	}
	if ok, err := ctx.decision.EstimatedRefund.LessThanOrEqual(threshold); err == nil && ok {
		return &verdict{
			outcome:    DecisionApproved,
			confidence: 0.95,
			reasons:    []string{fmt.Sprintf("refund %s is within the auto-approve threshold %s", ctx.decision.EstimatedRefund, threshold)},
		}
	}
	return nil
}
