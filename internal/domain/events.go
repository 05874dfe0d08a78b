package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	EventTypeReturnCreated       = "wms.return.created"
	EventTypeReturnApproved      = "wms.return.approved"
	EventTypeReturnRejected      = "wms.return.rejected"
	EventTypeReturnStatusChanged = "wms.return.status-changed"
)

// DomainEvent represents a domain event
type DomainEvent interface {
	EventType() string
	OccurredAt() time.Time
	AggregateID() string
	Tenant() string
	Correlation() string
}

// BaseDomainEvent contains common event fields
type BaseDomainEvent struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	AggregateId   string    `json:"aggregateId"`
	TenantID      string    `json:"tenantId"`
	CorrelationID string    `json:"correlationId,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

func (e BaseDomainEvent) EventType() string     { return e.Type }
func (e BaseDomainEvent) OccurredAt() time.Time { return e.Timestamp }
func (e BaseDomainEvent) AggregateID() string   { return e.AggregateId }
func (e BaseDomainEvent) Tenant() string        { return e.TenantID }
func (e BaseDomainEvent) Correlation() string   { return e.CorrelationID }

func newBaseEvent(eventType string, r *Return, at time.Time) BaseDomainEvent {
	return BaseDomainEvent{
		ID:            uuid.New().String(),
		Type:          eventType,
		AggregateId:   r.ReturnID,
		TenantID:      r.TenantID,
		CorrelationID: r.correlationID,
		Timestamp:     at,
	}
}

// ReturnCreatedEvent is raised when a return is submitted and enters REQUESTED
type ReturnCreatedEvent struct {
	BaseDomainEvent
	ReturnID        string       `json:"returnId"`
	OrderID         string       `json:"orderId"`
	CustomerEmail   string       `json:"customerEmail"`
	Channel         Channel      `json:"channel"`
	Method          ReturnMethod `json:"method"`
	ItemCount       int          `json:"itemCount"`
	EstimatedRefund Money        `json:"estimatedRefund"`
}

// NewReturnCreatedEvent creates a new ReturnCreatedEvent
func NewReturnCreatedEvent(r *Return, at time.Time) *ReturnCreatedEvent {
	return &ReturnCreatedEvent{
		BaseDomainEvent: newBaseEvent(EventTypeReturnCreated, r, at),
		ReturnID:        r.ReturnID,
		OrderID:         r.OrderID,
		CustomerEmail:   r.CustomerEmail,
		Channel:         r.Channel,
		Method:          r.Method,
		ItemCount:       r.TotalQuantity(),
		EstimatedRefund: r.EstimatedRefund,
	}
}

// ReturnApprovedEvent is raised when a return is approved
type ReturnApprovedEvent struct {
	BaseDomainEvent
	ReturnID         string `json:"returnId"`
	ApprovedBy       string `json:"approvedBy"`
	PolicyOverridden bool   `json:"policyOverridden"`
	Notes            string `json:"notes,omitempty"`
	EstimatedRefund  Money  `json:"estimatedRefund"`
}

// NewReturnApprovedEvent creates a new ReturnApprovedEvent
func NewReturnApprovedEvent(r *Return, actor string, at time.Time) *ReturnApprovedEvent {
	return &ReturnApprovedEvent{
		BaseDomainEvent:  newBaseEvent(EventTypeReturnApproved, r, at),
		ReturnID:         r.ReturnID,
		ApprovedBy:       actor,
		PolicyOverridden: r.PolicyOverridden,
		Notes:            r.ApprovalNotes,
		EstimatedRefund:  r.EstimatedRefund,
	}
}

// ReturnRejectedEvent is raised when a return is declined
type ReturnRejectedEvent struct {
	BaseDomainEvent
	ReturnID   string `json:"returnId"`
	RejectedBy string `json:"rejectedBy"`
	Reason     string `json:"reason"`
}

// NewReturnRejectedEvent creates a new ReturnRejectedEvent
func NewReturnRejectedEvent(r *Return, actor, reason string, at time.Time) *ReturnRejectedEvent {
	return &ReturnRejectedEvent{
		BaseDomainEvent: newBaseEvent(EventTypeReturnRejected, r, at),
		ReturnID:        r.ReturnID,
		RejectedBy:      actor,
		Reason:          reason,
	}
}

// ReturnStatusChangedEvent is raised for every other accepted transition
type ReturnStatusChangedEvent struct {
	BaseDomainEvent
	ReturnID    string `json:"returnId"`
	FromStatus  Status `json:"fromStatus"`
	ToStatus    Status `json:"toStatus"`
	ChangedBy   string `json:"changedBy"`
	Reason      string `json:"reason,omitempty"`
	FinalRefund *Money `json:"finalRefund,omitempty"`
}

// NewReturnStatusChangedEvent creates a new ReturnStatusChangedEvent
func NewReturnStatusChangedEvent(r *Return, from, to Status, actor, reason string, at time.Time) *ReturnStatusChangedEvent {
	return &ReturnStatusChangedEvent{
		BaseDomainEvent: newBaseEvent(EventTypeReturnStatusChanged, r, at),
		ReturnID:        r.ReturnID,
		FromStatus:      from,
		ToStatus:        to,
		ChangedBy:       actor,
		Reason:          reason,
		FinalRefund:     r.FinalRefund,
	}
}
