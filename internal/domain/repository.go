package domain

import (
	"context"
	"time"
)

// ReturnRepository persists returns. Every call is scoped to a tenant.
type ReturnRepository interface {
	// Save inserts or updates a return with an optimistic version check, writes its
	// pending events to the outbox in the same transaction and clears them on success.
	Save(ctx context.Context, r *Return) error

	// FindByID loads a return. A return owned by another tenant yields ErrCrossTenantAccess.
	FindByID(ctx context.Context, tenantID, returnID string) (*Return, error)

	Search(ctx context.Context, filter ReturnFilter, pagination Pagination) ([]*Return, int64, error)

	// CustomerHistory summarises a customer's returns since a point in time
	CustomerHistory(ctx context.Context, tenantID, customerEmail string, since time.Time) (*CustomerProfile, error)
}

// PolicyRepository stores tenants' policy configurations
type PolicyRepository interface {
	// Save stores cfg as the tenant's next active policy version
	Save(ctx context.Context, tenantID string, cfg PolicyConfig, activatedBy string) (*PolicyVersion, error)

	// GetActive returns the tenant's active policy, or ErrPolicyNotFound
	GetActive(ctx context.Context, tenantID string) (*PolicyVersion, error)
}

// OrderLookup fetches the order a return is raised against
type OrderLookup interface {
	GetOrder(ctx context.Context, tenantID, orderID string) (*OrderSnapshot, error)
}

// PolicyVersion is a stored policy configuration
type PolicyVersion struct {
	TenantID    string       `json:"tenantId" bson:"tenantId"`
	Version     int          `json:"version" bson:"version"`
	Config      PolicyConfig `json:"config" bson:"config"`
	Active      bool         `json:"active" bson:"active"`
	ActivatedBy string       `json:"activatedBy" bson:"activatedBy"`
	ActivatedAt time.Time    `json:"activatedAt" bson:"activatedAt"`
}

// Snapshot builds the immutable snapshot new returns are decided against
func (v PolicyVersion) Snapshot(now time.Time) (PolicySnapshot, error) {
	return v.Config.Snapshot(v.Version, now)
}

// ReturnFilter narrows a search. TenantID is required.
type ReturnFilter struct {
	TenantID      string
	Status        *Status
	OrderID       *string
	CustomerEmail *string
	CreatedFrom   *time.Time
	CreatedTo     *time.Time
}

// Pagination holds pagination parameters
type Pagination struct {
	Page     int64
	PageSize int64
}

// DefaultPagination returns default pagination settings
func DefaultPagination() Pagination {
	return Pagination{Page: 1, PageSize: 20}
}

// Skip returns the number of documents to skip
func (p Pagination) Skip() int64 {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.PageSize
}

// Limit returns the page size, bounded to 100
func (p Pagination) Limit() int64 {
	if p.PageSize <= 0 {
		return 20
	}
	if p.PageSize > 100 {
		return 100
	}
	return p.PageSize
}
