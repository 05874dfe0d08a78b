package tenant

import (
	"context"
	"errors"
)

type contextKey string

const (
	tenantIDKey contextKey = "tenantId"
	userIDKey   contextKey = "userId"
)

var (
	ErrMissingTenantContext = errors.New("tenant context is required")
	ErrTenantMismatch       = errors.New("resource tenant does not match request tenant")
)

// Context scopes every query and command to the merchant that owns the data.
type Context struct {
	// TenantID identifies the merchant
	TenantID string `json:"tenantId"`

	// UserID is the acting user or system, recorded as the actor on audit entries
	UserID string `json:"userId,omitempty"`
}

// IsEmpty reports whether no tenant is set
func (c *Context) IsEmpty() bool {
	return c == nil || c.TenantID == ""
}

// Actor returns the user id, or fallback when the request carried none
func (c *Context) Actor(fallback string) string {
	if c == nil || c.UserID == "" {
		return fallback
	}
	return c.UserID
}

// FromContext extracts the tenant context. A missing tenant is an error.
func FromContext(ctx context.Context) (*Context, error) {
	tc := &Context{}
	if v, ok := ctx.Value(tenantIDKey).(string); ok {
		tc.TenantID = v
	}
	if v, ok := ctx.Value(userIDKey).(string); ok {
		tc.UserID = v
	}
	if tc.TenantID == "" {
		return nil, ErrMissingTenantContext
	}
	return tc, nil
}

// ToContext stores tc on ctx
func ToContext(ctx context.Context, tc *Context) context.Context {
	if tc == nil {
		return ctx
	}
	if tc.TenantID != "" {
		ctx = context.WithValue(ctx, tenantIDKey, tc.TenantID)
	}
	if tc.UserID != "" {
		ctx = context.WithValue(ctx, userIDKey, tc.UserID)
	}
	return ctx
}

// WithTenantID is shorthand for ToContext with only a tenant
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return ToContext(ctx, &Context{TenantID: tenantID})
}

// GetTenantID returns the tenant on ctx, or "" when absent
func GetTenantID(ctx context.Context) string {
	v, _ := ctx.Value(tenantIDKey).(string)
	return v
}

// VerifyOwnership checks that a loaded resource belongs to the tenant on ctx.
// A context without a tenant is not checked.
func VerifyOwnership(ctx context.Context, resourceTenantID string) error {
	requested := GetTenantID(ctx)
	if requested == "" || requested == resourceTenantID {
		return nil
	}
	return ErrTenantMismatch
}
