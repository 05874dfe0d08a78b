package domain

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
)

// PolicySnapshotParams holds the raw values a PolicySnapshot is built from
type PolicySnapshotParams struct {
	PolicyVersion        int
	Currency             string
	ReturnWindowDays     int
	WindowAnchor         WindowAnchor
	RestockFeeEnabled    bool
	RestockFeePercent    decimal.Decimal
	ShippingFeeEnabled   bool
	ShippingFeeAmount    Money
	PhotoRequiredReasons []string
	ExcludedCategories   []string
	ExcludedTags         []string
	AutoApproveThreshold Money
	EligibleOutcomes     []Outcome
	EligibleMethods      []ReturnMethod
	FraudEnabled         bool
	FraudThresholds      FraudThresholds
	RiskBands            RiskBands
	CreatedAt            time.Time
}

// PolicySnapshot is the immutable policy captured when a return decision is made.
// Accessors return copies; there are no mutators.
type PolicySnapshot struct {
	policyVersion        int
	currency             string
	returnWindowDays     int
	windowAnchor         WindowAnchor
	restockFeeEnabled    bool
	restockFeePercent    decimal.Decimal
	shippingFeeEnabled   bool
	shippingFeeAmount    Money
	photoRequiredReasons []string
	excludedCategories   []string
	excludedTags         []string
	autoApproveThreshold Money
	eligibleOutcomes     []Outcome
	eligibleMethods      []ReturnMethod
	fraudEnabled         bool
	fraudThresholds      FraudThresholds
	riskBands            RiskBands
	createdAt            time.Time
}

var hundred = decimal.NewFromInt(100)

// NewPolicySnapshot validates params and builds a snapshot
func NewPolicySnapshot(p PolicySnapshotParams) (PolicySnapshot, error) {
	if !IsValidCurrency(p.Currency) {
		return PolicySnapshot{}, newValidationError("currency", "must be a 3-letter ISO code, got %q", p.Currency)
	}
	if p.ReturnWindowDays <= 0 {
		return PolicySnapshot{}, newValidationError("returnWindowDays", "must be greater than 0, got %d", p.ReturnWindowDays)
	}
	if p.RestockFeePercent.IsNegative() || p.RestockFeePercent.GreaterThan(hundred) {
		return PolicySnapshot{}, newValidationError("restockFeePercent", "must be between 0 and 100, got %s", p.RestockFeePercent)
	}
	if p.ShippingFeeEnabled && p.ShippingFeeAmount.Currency() != p.Currency {
		return PolicySnapshot{}, newValidationError("shippingFeeAmount", "currency must be %s", p.Currency)
	}
	if p.AutoApproveThreshold.IsSet() && p.AutoApproveThreshold.Currency() != p.Currency {
		return PolicySnapshot{}, newValidationError("autoApproveThreshold", "currency must be %s", p.Currency)
	}
	anchor := p.WindowAnchor
	if anchor == "" {
		anchor = AnchorFulfillmentDate
	}
	if !anchor.IsValid() {
		return PolicySnapshot{}, newValidationError("windowAnchor", "unknown anchor %q", anchor)
	}
	for _, o := range p.EligibleOutcomes {
		if !o.IsValid() {
			return PolicySnapshot{}, newValidationError("eligibleOutcomes", "unknown outcome %q", o)
		}
	}
	for _, m := range p.EligibleMethods {
		if !m.IsValid() {
			return PolicySnapshot{}, newValidationError("eligibleMethods", "unknown return method %q", m)
		}
	}

	bands := p.RiskBands
	if p.FraudEnabled {
		if bands.Actions == nil && bands.High.Max == 0 {
			bands = DefaultRiskBands()
		}
		checked, err := ParseRiskBands(bands.Low.String(), bands.Medium.String(), bands.High.String(), bands.Actions)
		if err != nil {
			return PolicySnapshot{}, newValidationError("riskBands", "%v", err)
		}
		bands = checked
	}

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	threshold := p.AutoApproveThreshold
	if !threshold.IsSet() {
		threshold = ZeroMoney(p.Currency)
	}
	shipping := p.ShippingFeeAmount
	if !shipping.IsSet() {
		shipping = ZeroMoney(p.Currency)
	}

	return PolicySnapshot{
		policyVersion:        p.PolicyVersion,
		currency:             p.Currency,
		returnWindowDays:     p.ReturnWindowDays,
		windowAnchor:         anchor,
		restockFeeEnabled:    p.RestockFeeEnabled,
		restockFeePercent:    p.RestockFeePercent,
		shippingFeeEnabled:   p.ShippingFeeEnabled,
		shippingFeeAmount:    shipping,
		photoRequiredReasons: normalizedSet(p.PhotoRequiredReasons),
		excludedCategories:   normalizedSet(p.ExcludedCategories),
		excludedTags:         normalizedSet(p.ExcludedTags),
		autoApproveThreshold: threshold,
		eligibleOutcomes:     append([]Outcome(nil), p.EligibleOutcomes...),
		eligibleMethods:      append([]ReturnMethod(nil), p.EligibleMethods...),
		fraudEnabled:         p.FraudEnabled,
		fraudThresholds:      p.FraudThresholds,
		riskBands:            bands,
		createdAt:            createdAt.UTC(),
	}, nil
}

func normalizedSet(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = normalizeCode(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func containsCode(set []string, code string) bool {
	code = normalizeCode(code)
	for _, v := range set {
		if v == code {
			return true
		}
	}
	return false
}

func (p PolicySnapshot) PolicyVersion() int                  { return p.policyVersion }
func (p PolicySnapshot) Currency() string                    { return p.currency }
func (p PolicySnapshot) ReturnWindowDays() int               { return p.returnWindowDays }
func (p PolicySnapshot) WindowAnchor() WindowAnchor          { return p.windowAnchor }
func (p PolicySnapshot) RestockFeeEnabled() bool             { return p.restockFeeEnabled }
func (p PolicySnapshot) RestockFeePercent() decimal.Decimal  { return p.restockFeePercent }
func (p PolicySnapshot) ShippingFeeEnabled() bool            { return p.shippingFeeEnabled }
func (p PolicySnapshot) ShippingFeeAmount() Money            { return p.shippingFeeAmount }
func (p PolicySnapshot) AutoApproveThreshold() Money         { return p.autoApproveThreshold }
func (p PolicySnapshot) CreatedAt() time.Time                { return p.createdAt }
func (p PolicySnapshot) IsZero() bool                        { return p.returnWindowDays == 0 }
func (p PolicySnapshot) PhotoRequiredReasons() []string      { return append([]string(nil), p.photoRequiredReasons...) }
func (p PolicySnapshot) ExcludedCategories() []string        { return append([]string(nil), p.excludedCategories...) }
func (p PolicySnapshot) ExcludedTags() []string              { return append([]string(nil), p.excludedTags...) }
func (p PolicySnapshot) EligibleOutcomes() []Outcome         { return append([]Outcome(nil), p.eligibleOutcomes...) }
func (p PolicySnapshot) EligibleMethods() []ReturnMethod     { return append([]ReturnMethod(nil), p.eligibleMethods...) }
func (p PolicySnapshot) FraudEnabled() bool                  { return p.fraudEnabled }
func (p PolicySnapshot) FraudThresholds() FraudThresholds    { return p.fraudThresholds }

// RiskBands returns the fraud bands with a private copy of the action map
func (p PolicySnapshot) RiskBands() RiskBands {
	out := p.riskBands
	out.Actions = make(map[RiskBand]RiskAction, len(p.riskBands.Actions))
	for band, action := range p.riskBands.Actions {
		out.Actions[band] = action
	}
	return out
}

// OfferedOutcomes lists the outcomes the policy offers. An empty set offers all.
func (p PolicySnapshot) OfferedOutcomes() []Outcome {
	if len(p.eligibleOutcomes) == 0 {
		return []Outcome{OutcomeRefund, OutcomeExchange, OutcomeStoreCredit, OutcomeKeepItem}
	}
	return p.EligibleOutcomes()
}

// RequiresPhoto reports whether a reason code needs photo evidence
func (p PolicySnapshot) RequiresPhoto(reasonCode string) bool {
	return containsCode(p.photoRequiredReasons, reasonCode)
}

// ExcludesCategory reports whether a product category is not returnable
func (p PolicySnapshot) ExcludesCategory(category string) bool {
	return category != "" && containsCode(p.excludedCategories, category)
}

// ExcludedTag returns the first item tag that the policy excludes
func (p PolicySnapshot) ExcludedTag(tags []string) (string, bool) {
	for _, tag := range tags {
		if containsCode(p.excludedTags, tag) {
			return tag, true
		}
	}
	return "", false
}

// AllowsMethod reports whether a return method is permitted. An empty set permits all.
func (p PolicySnapshot) AllowsMethod(method ReturnMethod) bool {
	if len(p.eligibleMethods) == 0 {
		return true
	}
	for _, m := range p.eligibleMethods {
		if m == method {
			return true
		}
	}
	return false
}

// AllowsOutcome reports whether an outcome is offered. An empty set permits all.
func (p PolicySnapshot) AllowsOutcome(outcome Outcome) bool {
	if len(p.eligibleOutcomes) == 0 {
		return true
	}
	for _, o := range p.eligibleOutcomes {
		if o == outcome {
			return true
		}
	}
	return false
}

// Window returns the return window this snapshot enforces
func (p PolicySnapshot) Window() ReturnWindow {
	return ReturnWindow{Days: p.returnWindowDays, Anchor: p.windowAnchor}
}

// FeeRules returns the fee settings this snapshot enforces
func (p PolicySnapshot) FeeRules() FeeRules {
	return FeeRules{
		RestockingEnabled: p.restockFeeEnabled,
		RestockingPercent: p.restockFeePercent,
		ShippingEnabled:   p.shippingFeeEnabled,
		ShippingAmount:    p.shippingFeeAmount,
	}
}

type policySnapshotDocument struct {
	PolicyVersion        int            `json:"policyVersion" bson:"policyVersion"`
	Currency             string         `json:"currency" bson:"currency"`
	ReturnWindowDays     int            `json:"returnWindowDays" bson:"returnWindowDays"`
	WindowAnchor         WindowAnchor   `json:"windowAnchor" bson:"windowAnchor"`
	RestockFeeEnabled    bool           `json:"restockFeeEnabled" bson:"restockFeeEnabled"`
	RestockFeePercent    string         `json:"restockFeePercent" bson:"restockFeePercent"`
	ShippingFeeEnabled   bool           `json:"shippingFeeEnabled" bson:"shippingFeeEnabled"`
	ShippingFeeAmount    Money          `json:"shippingFeeAmount" bson:"shippingFeeAmount"`
	PhotoRequiredReasons []string       `json:"photoRequiredReasons" bson:"photoRequiredReasons"`
	ExcludedCategories   []string       `json:"excludedCategories" bson:"excludedCategories"`
	ExcludedTags         []string       `json:"excludedTags" bson:"excludedTags"`
	AutoApproveThreshold Money          `json:"autoApproveThreshold" bson:"autoApproveThreshold"`
	EligibleOutcomes     []Outcome      `json:"eligibleOutcomes" bson:"eligibleOutcomes"`
	EligibleMethods      []ReturnMethod `json:"eligibleMethods" bson:"eligibleMethods"`
	Fraud                *fraudDocument `json:"fraud,omitempty" bson:"fraud,omitempty"`
	CreatedAt            time.Time      `json:"createdAt" bson:"createdAt"`
}

type fraudDocument struct {
	ReturnFrequency int               `json:"returnFrequency" bson:"returnFrequency"`
	HighValue       string            `json:"highValue" bson:"highValue"`
	NewAccountHours int               `json:"newAccountHours" bson:"newAccountHours"`
	RepeatedDefect  int               `json:"repeatedDefect" bson:"repeatedDefect"`
	LowBand         string            `json:"lowBand" bson:"lowBand"`
	MediumBand      string            `json:"mediumBand" bson:"mediumBand"`
	HighBand        string            `json:"highBand" bson:"highBand"`
	Actions         map[string]string `json:"actions" bson:"actions"`
}

func (p PolicySnapshot) fraudDoc() *fraudDocument {
	if !p.fraudEnabled {
		return nil
	}
	actions := make(map[string]string, len(p.riskBands.Actions))
	for band, action := range p.riskBands.Actions {
		actions[string(band)] = string(action)
	}
	return &fraudDocument{
		ReturnFrequency: p.fraudThresholds.ReturnFrequency,
		HighValue:       p.fraudThresholds.HighValue.String(),
		NewAccountHours: int(p.fraudThresholds.NewAccountAge / time.Hour),
		RepeatedDefect:  p.fraudThresholds.RepeatedDefect,
		LowBand:         p.riskBands.Low.String(),
		MediumBand:      p.riskBands.Medium.String(),
		HighBand:        p.riskBands.High.String(),
		Actions:         actions,
	}
}

func (d *fraudDocument) params(p *PolicySnapshotParams) error {
	if d == nil {
		return nil
	}
	highValue := decimal.Zero
	if d.HighValue != "" {
		parsed, err := decimal.NewFromString(d.HighValue)
		if err != nil {
			return newValidationError("fraud.highValue", "invalid decimal %q", d.HighValue)
		}
		highValue = parsed
	}
	actions := make(map[RiskBand]RiskAction, len(d.Actions))
	for band, action := range d.Actions {
		actions[RiskBand(band)] = RiskAction(action)
	}
	bands, err := ParseRiskBands(d.LowBand, d.MediumBand, d.HighBand, actions)
	if err != nil {
		return newValidationError("fraud.riskBands", "%v", err)
	}
	p.FraudEnabled = true
	p.FraudThresholds = FraudThresholds{
		ReturnFrequency: d.ReturnFrequency,
		HighValue:       highValue,
		NewAccountAge:   time.Duration(d.NewAccountHours) * time.Hour,
		RepeatedDefect:  d.RepeatedDefect,
	}
	p.RiskBands = bands
	return nil
}

func (p PolicySnapshot) document() policySnapshotDocument {
	return policySnapshotDocument{
		PolicyVersion:        p.policyVersion,
		Currency:             p.currency,
		ReturnWindowDays:     p.returnWindowDays,
		WindowAnchor:         p.windowAnchor,
		RestockFeeEnabled:    p.restockFeeEnabled,
		RestockFeePercent:    p.restockFeePercent.String(),
		ShippingFeeEnabled:   p.shippingFeeEnabled,
		ShippingFeeAmount:    p.shippingFeeAmount,
		PhotoRequiredReasons: p.PhotoRequiredReasons(),
		ExcludedCategories:   p.ExcludedCategories(),
		ExcludedTags:         p.ExcludedTags(),
		AutoApproveThreshold: p.autoApproveThreshold,
		EligibleOutcomes:     p.EligibleOutcomes(),
		EligibleMethods:      p.EligibleMethods(),
		Fraud:                p.fraudDoc(),
		CreatedAt:            p.createdAt,
	}
}

func (p *PolicySnapshot) fromDocument(doc policySnapshotDocument) error {
	if doc.ReturnWindowDays == 0 && doc.Currency == "" {
		*p = PolicySnapshot{}
		return nil
	}
	pct := decimal.Zero
	if doc.RestockFeePercent != "" {
		parsed, err := decimal.NewFromString(doc.RestockFeePercent)
		if err != nil {
			return newValidationError("restockFeePercent", "invalid decimal %q", doc.RestockFeePercent)
		}
		pct = parsed
	}
	params := PolicySnapshotParams{
		PolicyVersion:        doc.PolicyVersion,
		Currency:             doc.Currency,
		ReturnWindowDays:     doc.ReturnWindowDays,
		WindowAnchor:         doc.WindowAnchor,
		RestockFeeEnabled:    doc.RestockFeeEnabled,
		RestockFeePercent:    pct,
		ShippingFeeEnabled:   doc.ShippingFeeEnabled,
		ShippingFeeAmount:    doc.ShippingFeeAmount,
		PhotoRequiredReasons: doc.PhotoRequiredReasons,
		ExcludedCategories:   doc.ExcludedCategories,
		ExcludedTags:         doc.ExcludedTags,
		AutoApproveThreshold: doc.AutoApproveThreshold,
		EligibleOutcomes:     doc.EligibleOutcomes,
		EligibleMethods:      doc.EligibleMethods,
		CreatedAt:            doc.CreatedAt,
	}
	if err := doc.Fraud.params(&params); err != nil {
		return err
	}
	snapshot, err := NewPolicySnapshot(params)
	if err != nil {
		return err
	}
	*p = snapshot
	return nil
}

func (p PolicySnapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.document())
}

func (p *PolicySnapshot) UnmarshalJSON(data []byte) error {
	var doc policySnapshotDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	return p.fromDocument(doc)
}

func (p PolicySnapshot) MarshalBSON() ([]byte, error) {
	return bson.Marshal(p.document())
}

func (p *PolicySnapshot) UnmarshalBSON(data []byte) error {
	var doc policySnapshotDocument
	if err := bson.Unmarshal(data, &doc); err != nil {
		return err
	}
	return p.fromDocument(doc)
}
