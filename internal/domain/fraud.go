package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Fraud rule names
const (
	FraudRuleHighReturnFrequency = "high_return_frequency"
	FraudRuleHighValue           = "high_value"
	FraudRuleNewAccount          = "new_account"
	FraudRuleRepeatedDefect      = "repeated_defect"
	FraudRuleGeographicMismatch  = "geographic_mismatch"
)

// Rule weights, summed and clamped to MaxFraudScore
const (
	weightHighReturnFrequency = 30
	weightHighValue           = 20
	weightNewAccount          = 15
	weightRepeatedDefect      = 25
	weightGeographicMismatch  = 10

	MaxFraudScore = 100
)

// RiskBand is a named score range
type RiskBand string

const (
	RiskBandLow    RiskBand = "low"
	RiskBandMedium RiskBand = "medium"
	RiskBandHigh   RiskBand = "high"
)

// RiskAction is what the rules engine does with a band
type RiskAction string

const (
	RiskActionAutoApprove      RiskAction = "auto_approve"
	RiskActionManualReview     RiskAction = "manual_review"
	RiskActionAutoReject       RiskAction = "auto_reject"
	RiskActionRestrictOutcomes RiskAction = "restrict_outcomes"
)

func (a RiskAction) IsValid() bool {
	switch a {
	case RiskActionAutoApprove, RiskActionManualReview, RiskActionAutoReject, RiskActionRestrictOutcomes:
		return true
	}
	return false
}

// ScoreRange is an inclusive score interval
type ScoreRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// ParseScoreRange parses "min-max" where 0 <= min < max <= 100
func ParseScoreRange(s string) (ScoreRange, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 2 {
		return ScoreRange{}, fmt.Errorf("risk band %q must have the form min-max", s)
	}
	lo, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return ScoreRange{}, fmt.Errorf("risk band %q: min is not an integer", s)
	}
	hi, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return ScoreRange{}, fmt.Errorf("risk band %q: max is not an integer", s)
	}
	if lo < 0 || hi > MaxFraudScore {
		return ScoreRange{}, fmt.Errorf("risk band %q: bounds must be within 0-%d", s, MaxFraudScore)
	}
	if lo >= hi {
		return ScoreRange{}, fmt.Errorf("risk band %q: min must be less than max", s)
	}
	return ScoreRange{Min: lo, Max: hi}, nil
}

func (r ScoreRange) Contains(score int) bool {
	return score >= r.Min && score <= r.Max
}

func (r ScoreRange) String() string {
	return fmt.Sprintf("%d-%d", r.Min, r.Max)
}

// RiskBands maps score ranges to bands and bands to actions
type RiskBands struct {
	Low     ScoreRange
	Medium  ScoreRange
	High    ScoreRange
	Actions map[RiskBand]RiskAction
}

// DefaultRiskBands is used when a policy does not configure its own
func DefaultRiskBands() RiskBands {
	return RiskBands{
		Low:    ScoreRange{Min: 0, Max: 30},
		Medium: ScoreRange{Min: 31, Max: 70},
		High:   ScoreRange{Min: 71, Max: 100},
		Actions: map[RiskBand]RiskAction{
			RiskBandLow:    RiskActionAutoApprove,
			RiskBandMedium: RiskActionManualReview,
			RiskBandHigh:   RiskActionAutoReject,
		},
	}
}

// ParseRiskBands builds bands from "min-max" strings and validates that they ascend without overlap
func ParseRiskBands(low, medium, high string, actions map[RiskBand]RiskAction) (RiskBands, error) {
	var bands RiskBands
	var err error
	if bands.Low, err = ParseScoreRange(low); err != nil {
		return RiskBands{}, fmt.Errorf("low: %w", err)
	}
	if bands.Medium, err = ParseScoreRange(medium); err != nil {
		return RiskBands{}, fmt.Errorf("medium: %w", err)
	}
	if bands.High, err = ParseScoreRange(high); err != nil {
		return RiskBands{}, fmt.Errorf("high: %w", err)
	}
	if bands.Low.Max >= bands.Medium.Min {
		return RiskBands{}, fmt.Errorf("low band %s overlaps medium band %s", bands.Low, bands.Medium)
	}
	if bands.Medium.Max >= bands.High.Min {
		return RiskBands{}, fmt.Errorf("medium band %s overlaps high band %s", bands.Medium, bands.High)
	}
	bands.Actions = make(map[RiskBand]RiskAction, len(actions))
	for band, action := range actions {
		if !action.IsValid() {
			return RiskBands{}, fmt.Errorf("%s: unknown risk action %q", band, action)
		}
		bands.Actions[band] = action
	}
	return bands, nil
}

// Classify resolves a score to its band and action. Scores outside every band go to manual review.
func (b RiskBands) Classify(score int) (RiskBand, RiskAction) {
	var band RiskBand
	switch {
	case b.Low.Contains(score):
		band = RiskBandLow
	case b.Medium.Contains(score):
		band = RiskBandMedium
	case b.High.Contains(score):
		band = RiskBandHigh
	default:
		return "", RiskActionManualReview
	}
	action, ok := b.Actions[band]
	if !ok {
		action = RiskActionManualReview
	}
	return band, action
}

// FraudThresholds tune when each rule fires
type FraudThresholds struct {
	ReturnFrequency int
	HighValue       decimal.Decimal
	NewAccountAge   time.Duration
	RepeatedDefect  int
}

// DefaultFraudThresholds returns the standard rule thresholds
func DefaultFraudThresholds() FraudThresholds {
	return FraudThresholds{
		ReturnFrequency: 5,
		HighValue:       decimal.NewFromInt(500),
		NewAccountAge:   30 * 24 * time.Hour,
		RepeatedDefect:  2,
	}
}

// FraudInput collects the signals the scorer looks at
type FraudInput struct {
	ReturnValue Money
	ReasonCodes []string
	Order       OrderSnapshot
	Customer    *CustomerProfile
}

// FraudAssessment is the scorer's output
type FraudAssessment struct {
	Score          int        `json:"score" bson:"score"`
	TriggeredRules []string   `json:"triggeredRules" bson:"triggeredRules"`
	Band           RiskBand   `json:"band,omitempty" bson:"band,omitempty"`
	Action         RiskAction `json:"action,omitempty" bson:"action,omitempty"`
}

// FraudScorer is a stateless additive risk scorer
type FraudScorer struct {
	thresholds FraudThresholds
	now        func() time.Time
}

// NewFraudScorer creates a scorer with the given thresholds
func NewFraudScorer(thresholds FraudThresholds) *FraudScorer {
	return &FraudScorer{
		thresholds: thresholds,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Score computes a 0-100 risk score and the rules that contributed to it
func (s *FraudScorer) Score(in FraudInput) FraudAssessment {
	score := 0
	triggered := make([]string, 0)
	fire := func(rule string, weight int) {
		score += weight
		triggered = append(triggered, rule)
	}

	if c := in.Customer; c != nil && s.thresholds.ReturnFrequency > 0 && c.ReturnsLast90Days >= s.thresholds.ReturnFrequency {
		fire(FraudRuleHighReturnFrequency, weightHighReturnFrequency)
	}

	if in.ReturnValue.IsSet() && s.thresholds.HighValue.IsPositive() && in.ReturnValue.Amount().GreaterThanOrEqual(s.thresholds.HighValue) {
		fire(FraudRuleHighValue, weightHighValue)
	}

	if created := s.accountCreatedAt(in); created != nil && s.now().Sub(*created) < s.thresholds.NewAccountAge {
		fire(FraudRuleNewAccount, weightNewAccount)
	}

	if in.Customer != nil && s.thresholds.RepeatedDefect > 0 && repeatedReason(in.ReasonCodes, in.Customer.PriorReasonCodes, s.thresholds.RepeatedDefect) {
		fire(FraudRuleRepeatedDefect, weightRepeatedDefect)
	}

	ship, bill := strings.ToUpper(in.Order.ShippingCountry), strings.ToUpper(in.Order.BillingCountry)
	if ship != "" && bill != "" && ship != bill {
		fire(FraudRuleGeographicMismatch, weightGeographicMismatch)
	}

	if score > MaxFraudScore {
		score = MaxFraudScore
	}
	return FraudAssessment{Score: score, TriggeredRules: triggered}
}

// Assess scores the input and classifies it against bands
func (s *FraudScorer) Assess(in FraudInput, bands RiskBands) FraudAssessment {
	assessment := s.Score(in)
	assessment.Band, assessment.Action = bands.Classify(assessment.Score)
	return assessment
}

func (s *FraudScorer) accountCreatedAt(in FraudInput) *time.Time {
	if in.Customer != nil && in.Customer.AccountCreatedAt != nil {
		return in.Customer.AccountCreatedAt
	}
	return in.Order.CustomerSince
}

func repeatedReason(current, prior []string, threshold int) bool {
	counts := make(map[string]int, len(prior))
	for _, code := range prior {
		counts[normalizeCode(code)]++
	}
	for _, code := range current {
		if counts[normalizeCode(code)] >= threshold {
			return true
		}
	}
	return false
}
