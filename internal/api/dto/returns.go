package dto

import (
	"encoding/json"
	"time"

	"github.com/wms-platform/returns-service/internal/application"
	"github.com/wms-platform/returns-service/internal/domain"
)

// CreateReturnRequest opens a draft return against an order
type CreateReturnRequest struct {
	OrderID          string                      `json:"orderId" binding:"required,safe_string" example:"ORD-1001"`
	CustomerEmail    string                      `json:"customerEmail,omitempty" binding:"omitempty,email"`
	Channel          string                      `json:"channel,omitempty" binding:"omitempty,channel" example:"customer"`
	Method           string                      `json:"method" binding:"required,oneof=prepaid_label customer_shipped drop_off in_store keep_item" example:"prepaid_label"`
	PreferredOutcome string                      `json:"preferredOutcome,omitempty" binding:"omitempty,oneof=refund exchange store_credit keep_item"`
	Items            []application.LineItemInput `json:"items" binding:"omitempty,dive"`
}

// ApproveReturnRequest approves a requested return. Overriding the policy requires notes.
type ApproveReturnRequest struct {
	OverridePolicy bool   `json:"overridePolicy"`
	Notes          string `json:"notes,omitempty" binding:"max=2000"`
}

// ReasonRequest carries the reason for a decline or cancellation
type ReasonRequest struct {
	Reason string `json:"reason" binding:"max=2000" example:"Customer changed their mind"`
}

// ChangeStatusRequest moves a return along the state machine
type ChangeStatusRequest struct {
	Status             string `json:"status" binding:"required,return_status" example:"RECEIVED"`
	Reason             string `json:"reason,omitempty" binding:"max=2000"`
	ReplacementOrderID string `json:"replacementOrderId,omitempty" binding:"max=100,safe_string" example:"ORD-2002"`
}

// InTransitRequest records the shipment of a return
type InTransitRequest struct {
	TrackingNumber string `json:"trackingNumber,omitempty" binding:"max=100,safe_string" example:"1Z999AA10123456784"`
}

// ReceiveRequest records arrival at the warehouse
type ReceiveRequest struct {
	Notes string `json:"notes,omitempty" binding:"max=2000"`
}

// RefundRequest records the final refund. Without an amount the estimate is refunded.
type RefundRequest struct {
	Amount *domain.Money `json:"amount,omitempty"`
}

// ExchangeRequest records the replacement order
type ExchangeRequest struct {
	ReplacementOrderID string `json:"replacementOrderId" binding:"required,safe_string" example:"ORD-2002"`
}

// EligibilityPreviewRequest evaluates items without creating a return
type EligibilityPreviewRequest struct {
	OrderID string                      `json:"orderId" binding:"required,safe_string"`
	Method  string                      `json:"method,omitempty" binding:"omitempty,oneof=prepaid_label customer_shipped drop_off in_store keep_item"`
	Items   []application.LineItemInput `json:"items" binding:"required,min=1,dive"`
}

// DecisionPreviewRequest runs the rules engine. Policy is an optional draft document.
type DecisionPreviewRequest struct {
	OrderID          string                      `json:"orderId" binding:"required,safe_string"`
	PreferredOutcome string                      `json:"preferredOutcome,omitempty" binding:"omitempty,oneof=refund exchange store_credit keep_item"`
	Items            []application.LineItemInput `json:"items" binding:"required,min=1,dive"`
	Policy           json.RawMessage             `json:"policy,omitempty"`
}

// ListReturnsRequest holds the search query parameters
type ListReturnsRequest struct {
	Status        string    `form:"status" binding:"omitempty,return_status"`
	OrderID       string    `form:"orderId" binding:"omitempty,safe_string"`
	CustomerEmail string    `form:"customerEmail" binding:"omitempty,email"`
	CreatedFrom   time.Time `form:"createdFrom" time_format:"2006-01-02T15:04:05Z07:00"`
	CreatedTo     time.Time `form:"createdTo" time_format:"2006-01-02T15:04:05Z07:00"`
	Page          int64     `form:"page" binding:"omitempty,gte=1"`
	PageSize      int64     `form:"pageSize" binding:"omitempty,gte=1,lte=100"`
}

// ToQuery converts the request to an application query for tenantID
func (r ListReturnsRequest) ToQuery(tenantID string) application.ListReturnsQuery {
	q := application.ListReturnsQuery{
		TenantID: tenantID,
		Page:     r.Page,
		PageSize: r.PageSize,
	}
	if r.Status != "" {
		q.Status = &r.Status
	}
	if r.OrderID != "" {
		q.OrderID = &r.OrderID
	}
	if r.CustomerEmail != "" {
		q.CustomerEmail = &r.CustomerEmail
	}
	if !r.CreatedFrom.IsZero() {
		q.CreatedFrom = &r.CreatedFrom
	}
	if !r.CreatedTo.IsZero() {
		q.CreatedTo = &r.CreatedTo
	}
	return q
}

// PolicyValidationResponse reports the findings for a policy document
type PolicyValidationResponse struct {
	Valid    bool                     `json:"valid"`
	Errors   []domain.ValidationIssue `json:"errors"`
	Warnings []domain.ValidationIssue `json:"warnings"`
	Config   *domain.PolicyConfig     `json:"config,omitempty"`
}
