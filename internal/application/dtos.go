package application

import (
	"time"

	"github.com/wms-platform/returns-service/internal/domain"
)

// LineItemInput identifies an order line to return. Product data is copied from the order;
// SKU, title and unit price are only needed for lines the order lookup does not know.
type LineItemInput struct {
	LineItemID  string        `json:"lineItemId" binding:"required,safe_string"`
	Quantity    int           `json:"quantity" binding:"required,gte=1"`
	ReasonCode  string        `json:"reasonCode" binding:"required,safe_string"`
	ReasonText  string        `json:"reasonDescription,omitempty"`
	Condition   string        `json:"condition" binding:"required,condition"`
	Photos      []string      `json:"photos,omitempty" binding:"omitempty,dive,url"`
	Notes       string        `json:"notes,omitempty"`
	SKU         string        `json:"sku,omitempty"`
	Title       string        `json:"title,omitempty"`
	UnitPrice   *domain.Money `json:"unitPrice,omitempty"`
}

// CreateReturnCommand opens a draft return against an order
type CreateReturnCommand struct {
	TenantID         string
	Actor            string
	CorrelationID    string
	OrderID          string
	CustomerEmail    string
	Channel          string
	Method           string
	PreferredOutcome string
	Items            []LineItemInput
}

// AddLineItemCommand adds one item to a draft
type AddLineItemCommand struct {
	TenantID      string
	ReturnID      string
	CorrelationID string
	Item          LineItemInput
}

// RemoveLineItemCommand removes one item from a draft
type RemoveLineItemCommand struct {
	TenantID      string
	ReturnID      string
	CorrelationID string
	LineItemID    string
}

// ReturnCommand addresses one return on behalf of an actor. Reason carries notes,
// tracking numbers or replacement order ids depending on the operation.
type ReturnCommand struct {
	TenantID      string
	ReturnID      string
	Actor         string
	CorrelationID string
	Reason        string
}

// ApproveReturnCommand approves a requested return
type ApproveReturnCommand struct {
	ReturnCommand
	OverridePolicy bool
	Notes          string
}

// ChangeStatusCommand moves a return to any status the state machine allows.
// ReplacementOrderID is required when the target is EXCHANGED.
type ChangeStatusCommand struct {
	ReturnCommand
	Status             string
	ReplacementOrderID string
}

// RefundReturnCommand records the final refund. A nil amount refunds the estimate.
type RefundReturnCommand struct {
	ReturnCommand
	Amount *domain.Money
}

// PreviewEligibilityQuery evaluates items without creating a return
type PreviewEligibilityQuery struct {
	TenantID string
	OrderID  string
	Method   string
	Items    []LineItemInput
}

// ListReturnsQuery filters a tenant's returns
type ListReturnsQuery struct {
	TenantID      string
	Status        *string
	OrderID       *string
	CustomerEmail *string
	CreatedFrom   *time.Time
	CreatedTo     *time.Time
	Page          int64
	PageSize      int64
}

// ReturnDTO is the API view of a return
type ReturnDTO struct {
	ReturnID           string                    `json:"returnId"`
	TenantID           string                    `json:"tenantId"`
	OrderID            string                    `json:"orderId"`
	Status             domain.Status             `json:"status"`
	AllowedTransitions []domain.Status           `json:"allowedTransitions"`
	Channel            domain.Channel            `json:"channel"`
	Method             domain.ReturnMethod       `json:"method"`
	PreferredOutcome   domain.Outcome            `json:"preferredOutcome,omitempty"`
	CustomerEmail      string                    `json:"customerEmail"`
	Items              []domain.ReturnLineItem   `json:"items"`
	PolicyVersion      int                       `json:"policyVersion"`
	EstimatedRefund    domain.Money              `json:"estimatedRefund"`
	FinalRefund        *domain.Money             `json:"finalRefund,omitempty"`
	Decision           *domain.EligibilityResult `json:"decision,omitempty"`
	ApprovalNotes      string                    `json:"approvalNotes,omitempty"`
	PolicyOverridden   bool                      `json:"policyOverridden"`
	DeclineReason      string                    `json:"declineReason,omitempty"`
	TrackingNumber     string                    `json:"trackingNumber,omitempty"`
	ReplacementOrderID string                    `json:"replacementOrderId,omitempty"`
	AuditLog           []domain.AuditEntry       `json:"auditLog"`
	Version            int64                     `json:"version"`
	CreatedAt          time.Time                 `json:"createdAt"`
	UpdatedAt          time.Time                 `json:"updatedAt"`
	SubmittedAt        *time.Time                `json:"submittedAt,omitempty"`
	ApprovedAt         *time.Time                `json:"approvedAt,omitempty"`
	ClosedAt           *time.Time                `json:"closedAt,omitempty"`
}

// ToReturnDTO converts a return to its API view
func ToReturnDTO(r *domain.Return) *ReturnDTO {
	items := r.Items
	if items == nil {
		items = []domain.ReturnLineItem{}
	}
	return &ReturnDTO{
		ReturnID:           r.ReturnID,
		TenantID:           r.TenantID,
		OrderID:            r.OrderID,
		Status:             r.Status,
		AllowedTransitions: r.Status.AllowedTransitions(),
		Channel:            r.Channel,
		Method:             r.Method,
		PreferredOutcome:   r.PreferredOutcome,
		CustomerEmail:      r.CustomerEmail,
		Items:              items,
		PolicyVersion:      r.Policy.PolicyVersion(),
		EstimatedRefund:    r.EstimatedRefund,
		FinalRefund:        r.FinalRefund,
		Decision:           r.Decision,
		ApprovalNotes:      r.ApprovalNotes,
		PolicyOverridden:   r.PolicyOverridden,
		DeclineReason:      r.DeclineReason,
		TrackingNumber:     r.TrackingNumber,
		ReplacementOrderID: r.ReplacementOrderID,
		AuditLog:           r.AuditLog(),
		Version:            r.Version,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
		SubmittedAt:        r.SubmittedAt,
		ApprovedAt:         r.ApprovedAt,
		ClosedAt:           r.ClosedAt,
	}
}

// ReturnListResponse is one page of returns
type ReturnListResponse struct {
	Returns    []ReturnDTO `json:"returns"`
	Total      int64       `json:"total"`
	Page       int64       `json:"page"`
	PageSize   int64       `json:"pageSize"`
	TotalPages int64       `json:"totalPages"`
}

// ActivatePolicyCommand stores a policy document as the tenant's next version
type ActivatePolicyCommand struct {
	TenantID string
	Actor    string
	Document []byte
}

// PreviewDecisionQuery runs the rules engine. An empty Policy uses the active one.
type PreviewDecisionQuery struct {
	TenantID         string
	OrderID          string
	PreferredOutcome string
	Items            []LineItemInput
	Policy           []byte
}

// PolicyDTO is the API view of a stored policy version
type PolicyDTO struct {
	TenantID    string              `json:"tenantId"`
	Version     int                 `json:"version"`
	Config      domain.PolicyConfig `json:"config"`
	ActivatedBy string              `json:"activatedBy"`
	ActivatedAt time.Time           `json:"activatedAt"`
	Default     bool                `json:"default"`

	Warnings []domain.ValidationIssue `json:"warnings,omitempty"`
}

// ToPolicyDTO converts a stored policy version to its API view
func ToPolicyDTO(v *domain.PolicyVersion) *PolicyDTO {
	return &PolicyDTO{
		TenantID:    v.TenantID,
		Version:     v.Version,
		Config:      v.Config,
		ActivatedBy: v.ActivatedBy,
		ActivatedAt: v.ActivatedAt,
		Default:     v.Version == 0,
	}
}
