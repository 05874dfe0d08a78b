package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors
var (
	ErrPolicyOverrideRequiresNotes = errors.New("policy override requires notes")
	ErrReasonRequired              = errors.New("reason is required")
	ErrItemsFrozen                 = errors.New("line items can only be changed while the return is a draft")
	ErrNoLineItems                 = errors.New("return has no line items")
	ErrDuplicateLineItem           = errors.New("line item already on return")
	ErrLineItemNotFound            = errors.New("line item not found on return")

	ErrReturnNotFound         = errors.New("return not found")
	ErrPolicyNotFound         = errors.New("no active return policy")
	ErrOrderNotFound          = errors.New("order not found")
	ErrCrossTenantAccess      = errors.New("return belongs to another tenant")
	ErrConcurrentModification = errors.New("return was modified concurrently")
)

// ValidationError reports malformed input for a single field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func newValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// InvalidTransitionError is returned when the state machine forbids a transition
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}

// IneligibleReturnError carries every reason the pipeline denied a return
type IneligibleReturnError struct {
	Reasons []string
}

func (e *IneligibleReturnError) Error() string {
	if len(e.Reasons) == 0 {
		return "return is not eligible"
	}
	return "return is not eligible: " + strings.Join(e.Reasons, "; ")
}

// NotApprovableError explains why a return cannot be approved as-is
type NotApprovableError struct {
	Status  Status
	Reasons []string
}

func (e *NotApprovableError) Error() string {
	return fmt.Sprintf("return in status %s cannot be approved: %s", e.Status, strings.Join(e.Reasons, "; "))
}
