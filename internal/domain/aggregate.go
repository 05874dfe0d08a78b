package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AuditActionStatusChanged is recorded once per accepted transition
const AuditActionStatusChanged = "status_changed"

// ReturnLineItem is a single product being returned
type ReturnLineItem struct {
	LineItemID string       `json:"lineItemId" bson:"lineItemId"`
	SKU        string       `json:"sku" bson:"sku"`
	Title      string       `json:"title" bson:"title"`
	Variant    string       `json:"variant,omitempty" bson:"variant,omitempty"`
	Quantity   int          `json:"quantity" bson:"quantity"`
	UnitPrice  Money        `json:"unitPrice" bson:"unitPrice"`
	Reason     ReturnReason `json:"reason" bson:"reason"`
	Condition  Condition    `json:"condition" bson:"condition"`
	Photos     []string     `json:"photos,omitempty" bson:"photos,omitempty"`
	Notes      string       `json:"notes,omitempty" bson:"notes,omitempty"`
	Category   string       `json:"category,omitempty" bson:"category,omitempty"`
	Tags       []string     `json:"tags,omitempty" bson:"tags,omitempty"`
}

// Value is unit price × quantity
func (i ReturnLineItem) Value() Money {
	return i.UnitPrice.Multiply(i.Quantity)
}

// Validate checks the item in isolation
func (i ReturnLineItem) Validate() error {
	if strings.TrimSpace(i.LineItemID) == "" {
		return newValidationError("lineItemId", "is required")
	}
	if strings.TrimSpace(i.SKU) == "" {
		return newValidationError("sku", "is required")
	}
	if i.Quantity < 1 {
		return newValidationError("quantity", "must be at least 1, got %d", i.Quantity)
	}
	if !i.UnitPrice.IsSet() {
		return newValidationError("unitPrice", "is required")
	}
	if strings.TrimSpace(i.Reason.Code) == "" {
		return newValidationError("reason.code", "is required")
	}
	if !i.Condition.IsValid() {
		return newValidationError("condition", "must be one of new, used, damaged")
	}
	return nil
}

// AuditEntry is an append-only record of something that happened to a return
type AuditEntry struct {
	Timestamp     time.Time              `json:"timestamp" bson:"timestamp"`
	Actor         string                 `json:"actor" bson:"actor"`
	Action        string                 `json:"action" bson:"action"`
	Details       map[string]interface{} `json:"details,omitempty" bson:"details,omitempty"`
	CorrelationID string                 `json:"correlationId,omitempty" bson:"correlationId,omitempty"`
}

// Return is the aggregate root for a merchandise return
type Return struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	ReturnID           string             `bson:"returnId" json:"returnId"`
	TenantID           string             `bson:"tenantId" json:"tenantId"`
	OrderID            string             `bson:"orderId" json:"orderId"`
	OrderDates         OrderDates         `bson:"orderDates" json:"orderDates"`
	Channel            Channel            `bson:"channel" json:"channel"`
	Status             Status             `bson:"status" json:"status"`
	CustomerEmail      string             `bson:"customerEmail" json:"customerEmail"`
	Items              []ReturnLineItem   `bson:"items" json:"items"`
	Method             ReturnMethod       `bson:"method" json:"method"`
	PreferredOutcome   Outcome            `bson:"preferredOutcome,omitempty" json:"preferredOutcome,omitempty"`
	Policy             PolicySnapshot     `bson:"policy" json:"policy"`
	EstimatedRefund    Money              `bson:"estimatedRefund" json:"estimatedRefund"`
	FinalRefund        *Money             `bson:"finalRefund,omitempty" json:"finalRefund,omitempty"`
	Decision           *EligibilityResult `bson:"decision,omitempty" json:"decision,omitempty"`
	SubmittedBy        string             `bson:"submittedBy,omitempty" json:"submittedBy,omitempty"`
	ProcessedBy        string             `bson:"processedBy,omitempty" json:"processedBy,omitempty"`
	DeclineReason      string             `bson:"declineReason,omitempty" json:"declineReason,omitempty"`
	ApprovalNotes      string             `bson:"approvalNotes,omitempty" json:"approvalNotes,omitempty"`
	PolicyOverridden   bool               `bson:"policyOverridden" json:"policyOverridden"`
	TrackingNumber     string             `bson:"trackingNumber,omitempty" json:"trackingNumber,omitempty"`
	ReplacementOrderID string             `bson:"replacementOrderId,omitempty" json:"replacementOrderId,omitempty"`
	Audit              []AuditEntry       `bson:"auditLog" json:"auditLog"`
	Version            int64              `bson:"version" json:"version"`
	CreatedAt          time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt          time.Time          `bson:"updatedAt" json:"updatedAt"`
	SubmittedAt        *time.Time         `bson:"submittedAt,omitempty" json:"submittedAt,omitempty"`
	ApprovedAt         *time.Time         `bson:"approvedAt,omitempty" json:"approvedAt,omitempty"`
	DeclinedAt         *time.Time         `bson:"declinedAt,omitempty" json:"declinedAt,omitempty"`
	InTransitAt        *time.Time         `bson:"inTransitAt,omitempty" json:"inTransitAt,omitempty"`
	ReceivedAt         *time.Time         `bson:"receivedAt,omitempty" json:"receivedAt,omitempty"`
	RefundedAt         *time.Time         `bson:"refundedAt,omitempty" json:"refundedAt,omitempty"`
	ExchangedAt        *time.Time         `bson:"exchangedAt,omitempty" json:"exchangedAt,omitempty"`
	CanceledAt         *time.Time         `bson:"canceledAt,omitempty" json:"canceledAt,omitempty"`
	ClosedAt           *time.Time         `bson:"closedAt,omitempty" json:"closedAt,omitempty"`

	correlationID string
	domainEvents  []DomainEvent
}

// NewReturn creates a draft return for an order under the given policy snapshot
func NewReturn(tenantID string, order OrderSnapshot, customerEmail string, channel Channel, method ReturnMethod, policy PolicySnapshot) (*Return, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, newValidationError("tenantId", "is required")
	}
	if strings.TrimSpace(order.OrderID) == "" {
		return nil, newValidationError("orderId", "is required")
	}
	if !strings.Contains(customerEmail, "@") {
		return nil, newValidationError("customerEmail", "must be a valid email address")
	}
	if !channel.IsValid() {
		return nil, newValidationError("channel", "unknown channel %q", channel)
	}
	if !method.IsValid() {
		return nil, newValidationError("method", "unknown return method %q", method)
	}
	if policy.IsZero() {
		return nil, newValidationError("policy", "a policy snapshot is required")
	}
	if !policy.AllowsMethod(method) {
		return nil, newValidationError("method", "return method %q is not offered by the policy", method)
	}

	now := time.Now().UTC()
	return &Return{
		ReturnID:        "RMA-" + strings.ToUpper(uuid.New().String()),
		TenantID:        tenantID,
		OrderID:         order.OrderID,
		OrderDates:      order.Dates,
		Channel:         channel,
		Status:          StatusDraft,
		CustomerEmail:   strings.ToLower(strings.TrimSpace(customerEmail)),
		Items:           make([]ReturnLineItem, 0),
		Method:          method,
		Policy:          policy,
		EstimatedRefund: ZeroMoney(policy.Currency()),
		Audit:           make([]AuditEntry, 0),
		CreatedAt:       now,
		UpdatedAt:       now,
		domainEvents:    make([]DomainEvent, 0),
	}, nil
}

// SetCorrelationID tags subsequent audit entries and events with a correlation id
func (r *Return) SetCorrelationID(id string) {
	r.correlationID = id
}

// SetPreferredOutcome records what the customer asked for. Draft only.
func (r *Return) SetPreferredOutcome(outcome Outcome) error {
	if r.Status != StatusDraft {
		return ErrItemsFrozen
	}
	if !outcome.IsValid() {
		return newValidationError("preferredOutcome", "unknown outcome %q", outcome)
	}
	if !r.Policy.AllowsOutcome(outcome) {
		return newValidationError("preferredOutcome", "outcome %q is not offered by the policy", outcome)
	}
	r.PreferredOutcome = outcome
	return nil
}

// AddLineItem adds an item while the return is a draft
func (r *Return) AddLineItem(item ReturnLineItem) error {
	if r.Status != StatusDraft {
		return ErrItemsFrozen
	}
	if err := item.Validate(); err != nil {
		return err
	}
	if item.UnitPrice.Currency() != r.Policy.Currency() {
		return fmt.Errorf("%w: item %s priced in %s, policy uses %s",
			ErrCurrencyMismatch, item.LineItemID, item.UnitPrice.Currency(), r.Policy.Currency())
	}
	for _, existing := range r.Items {
		if existing.LineItemID == item.LineItemID {
			return fmt.Errorf("%w: %s", ErrDuplicateLineItem, item.LineItemID)
		}
	}

	item.Photos = append([]string(nil), item.Photos...)
	item.Tags = append([]string(nil), item.Tags...)
	r.Items = append(r.Items, item)
	r.touch()
	return nil
}

// RemoveLineItem removes an item while the return is a draft
func (r *Return) RemoveLineItem(lineItemID string) error {
	if r.Status != StatusDraft {
		return ErrItemsFrozen
	}
	for i, existing := range r.Items {
		if existing.LineItemID == lineItemID {
			r.Items = append(r.Items[:i:i], r.Items[i+1:]...)
			r.touch()
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrLineItemNotFound, lineItemID)
}

// Submit moves a draft to REQUESTED using the eligibility decision for its items
func (r *Return) Submit(actor string, decision EligibilityResult) error {
	if !r.Status.CanTransitionTo(StatusRequested) {
		return &InvalidTransitionError{From: r.Status, To: StatusRequested}
	}
	if len(r.Items) == 0 {
		return ErrNoLineItems
	}
	if !decision.Eligible {
		return &IneligibleReturnError{Reasons: append([]string(nil), decision.Reasons...)}
	}
	if decision.EstimatedRefund.Currency() != r.Policy.Currency() {
		return fmt.Errorf("%w: decision in %s, policy uses %s",
			ErrCurrencyMismatch, decision.EstimatedRefund.Currency(), r.Policy.Currency())
	}

	d := decision.Clone()
	r.Decision = &d
	r.EstimatedRefund = decision.EstimatedRefund
	r.SubmittedBy = actor
	r.applyTransition(StatusRequested, actor, "", map[string]interface{}{
		"estimatedRefund": decision.EstimatedRefund.String(),
		"autoApprove":     decision.AutoApprove,
	})
	return nil
}

// ChangeStatus moves the return to target if the state machine allows it
func (r *Return) ChangeStatus(target Status, actor, reason string) error {
	if !r.Status.CanTransitionTo(target) {
		return &InvalidTransitionError{From: r.Status, To: target}
	}
	switch target {
	case StatusDeclined:
		r.DeclineReason = reason
		r.ProcessedBy = actor
	case StatusApproved:
		r.ProcessedBy = actor
	case StatusRequested:
		r.SubmittedBy = actor
	case StatusRefunded:
		if r.FinalRefund == nil {
			refund := r.EstimatedRefund
			r.FinalRefund = &refund
		}
	}
	r.applyTransition(target, actor, reason, nil)
	return nil
}

// Approve approves a requested return. Overriding policy requires notes.
func (r *Return) Approve(actor string, overridePolicy bool, notes string) error {
	notes = strings.TrimSpace(notes)
	if overridePolicy && notes == "" {
		return ErrPolicyOverrideRequiresNotes
	}
	if r.Status != StatusRequested {
		return &NotApprovableError{Status: r.Status, Reasons: []string{"return is not awaiting approval"}}
	}
	if !overridePolicy {
		if violations := r.PolicyViolations(time.Now().UTC()); len(violations) > 0 {
			return &NotApprovableError{Status: r.Status, Reasons: violations}
		}
	}

	r.ApprovalNotes = notes
	r.PolicyOverridden = overridePolicy
	r.ProcessedBy = actor
	details := map[string]interface{}{"policyOverridden": overridePolicy}
	if notes != "" {
		details["notes"] = notes
	}
	r.applyTransition(StatusApproved, actor, "", details)
	return nil
}

// Reject declines a requested return
func (r *Return) Reject(actor, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrReasonRequired
	}
	if !r.Status.CanTransitionTo(StatusDeclined) {
		return &InvalidTransitionError{From: r.Status, To: StatusDeclined}
	}
	r.DeclineReason = reason
	r.ProcessedBy = actor
	r.applyTransition(StatusDeclined, actor, reason, nil)
	return nil
}

// MarkInTransit records that the customer shipped the items
func (r *Return) MarkInTransit(actor, trackingNumber string) error {
	if !r.Status.CanTransitionTo(StatusInTransit) {
		return &InvalidTransitionError{From: r.Status, To: StatusInTransit}
	}
	r.TrackingNumber = strings.TrimSpace(trackingNumber)
	var details map[string]interface{}
	if r.TrackingNumber != "" {
		details = map[string]interface{}{"trackingNumber": r.TrackingNumber}
	}
	r.applyTransition(StatusInTransit, actor, "", details)
	return nil
}

// Receive records that the items arrived at the warehouse
func (r *Return) Receive(actor, notes string) error {
	if !r.Status.CanTransitionTo(StatusReceived) {
		return &InvalidTransitionError{From: r.Status, To: StatusReceived}
	}
	r.applyTransition(StatusReceived, actor, notes, nil)
	return nil
}

// Refund records the final refund amount
func (r *Return) Refund(actor string, amount Money) error {
	if !r.Status.CanTransitionTo(StatusRefunded) {
		return &InvalidTransitionError{From: r.Status, To: StatusRefunded}
	}
	if amount.Currency() != r.Policy.Currency() {
		return fmt.Errorf("%w: refund in %s, policy uses %s", ErrCurrencyMismatch, amount.Currency(), r.Policy.Currency())
	}
	r.FinalRefund = &amount
	r.ProcessedBy = actor
	r.applyTransition(StatusRefunded, actor, "", map[string]interface{}{"finalRefund": amount.String()})
	return nil
}

// Exchange records that a replacement order was issued
func (r *Return) Exchange(actor, replacementOrderID string) error {
	if !r.Status.CanTransitionTo(StatusExchanged) {
		return &InvalidTransitionError{From: r.Status, To: StatusExchanged}
	}
	if strings.TrimSpace(replacementOrderID) == "" {
		return newValidationError("replacementOrderId", "is required")
	}
	r.ReplacementOrderID = replacementOrderID
	r.ProcessedBy = actor
	r.applyTransition(StatusExchanged, actor, "", map[string]interface{}{"replacementOrderId": replacementOrderID})
	return nil
}

// Close finishes a refunded or exchanged return
func (r *Return) Close(actor string) error {
	if !r.Status.CanTransitionTo(StatusClosed) {
		return &InvalidTransitionError{From: r.Status, To: StatusClosed}
	}
	r.applyTransition(StatusClosed, actor, "", nil)
	return nil
}

// Cancel abandons the return
func (r *Return) Cancel(actor, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrReasonRequired
	}
	if !r.Status.CanTransitionTo(StatusCanceled) {
		return &InvalidTransitionError{From: r.Status, To: StatusCanceled}
	}
	r.applyTransition(StatusCanceled, actor, reason, nil)
	return nil
}

// PolicyViolations lists why the return no longer satisfies its own policy snapshot
func (r *Return) PolicyViolations(now time.Time) []string {
	var violations []string
	if len(r.Items) == 0 {
		violations = append(violations, "return has no line items")
	}
	window := r.Policy.Window()
	if status := window.Evaluate(r.OrderDates, now); status.Expired {
		violations = append(violations, status.DenialReason(window.Days))
	}
	for _, item := range r.Items {
		if strings.TrimSpace(item.Reason.Code) == "" {
			violations = append(violations, fmt.Sprintf("line item %s has no reason code", item.LineItemID))
		}
	}
	return violations
}

// applyTransition performs an already-validated transition: status, timestamp, one audit entry, one event
func (r *Return) applyTransition(target Status, actor, reason string, extra map[string]interface{}) {
	from := r.Status
	now := time.Now().UTC()

	r.Status = target
	r.UpdatedAt = now
	r.stampMilestone(target, now)

	details := map[string]interface{}{
		"fromStatus": string(from),
		"toStatus":   string(target),
	}
	if reason != "" {
		details["reason"] = reason
	}
	for k, v := range extra {
		details[k] = v
	}
	r.Audit = append(r.Audit, AuditEntry{
		Timestamp:     now,
		Actor:         actor,
		Action:        AuditActionStatusChanged,
		Details:       details,
		CorrelationID: r.correlationID,
	})

	switch target {
	case StatusRequested:
		r.addDomainEvent(NewReturnCreatedEvent(r, now))
	case StatusApproved:
		r.addDomainEvent(NewReturnApprovedEvent(r, actor, now))
	case StatusDeclined:
		r.addDomainEvent(NewReturnRejectedEvent(r, actor, reason, now))
	default:
		r.addDomainEvent(NewReturnStatusChangedEvent(r, from, target, actor, reason, now))
	}
}

func (r *Return) stampMilestone(status Status, at time.Time) {
	t := at
	switch status {
	case StatusRequested:
		r.SubmittedAt = &t
	case StatusApproved:
		r.ApprovedAt = &t
	case StatusDeclined:
		r.DeclinedAt = &t
	case StatusInTransit:
		r.InTransitAt = &t
	case StatusReceived:
		r.ReceivedAt = &t
	case StatusRefunded:
		r.RefundedAt = &t
	case StatusExchanged:
		r.ExchangedAt = &t
	case StatusCanceled:
		r.CanceledAt = &t
	case StatusClosed:
		r.ClosedAt = &t
	}
}

func (r *Return) touch() {
	r.UpdatedAt = time.Now().UTC()
}

// TotalQuantity returns the number of units on the return
func (r *Return) TotalQuantity() int {
	total := 0
	for _, item := range r.Items {
		total += item.Quantity
	}
	return total
}

// TotalValue sums the value of all line items
func (r *Return) TotalValue() (Money, error) {
	total := ZeroMoney(r.Policy.Currency())
	for _, item := range r.Items {
		next, err := total.Add(item.Value())
		if err != nil {
			return Money{}, err
		}
		total = next
	}
	return total, nil
}

// AuditLog returns a copy of the audit trail
func (r *Return) AuditLog() []AuditEntry {
	out := make([]AuditEntry, len(r.Audit))
	copy(out, r.Audit)
	return out
}

func (r *Return) addDomainEvent(event DomainEvent) {
	r.domainEvents = append(r.domainEvents, event)
}

// DomainEvents returns pending domain events
func (r *Return) DomainEvents() []DomainEvent {
	out := make([]DomainEvent, len(r.domainEvents))
	copy(out, r.domainEvents)
	return out
}

// ClearDomainEvents drops pending events once they have been persisted
func (r *Return) ClearDomainEvents() {
	r.domainEvents = nil
}
