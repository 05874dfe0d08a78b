package application

import (
	"context"
	"errors"
	"time"

	"github.com/wms-platform/returns-service/internal/domain"
)

// defaultPolicyActor marks the built-in policy served to tenants that never activated one
const defaultPolicyActor = "system:default-policy"

// policySource resolves a tenant's active policy, falling back to the configured default
type policySource struct {
	repo     domain.PolicyRepository
	fallback *domain.PolicyConfig
}

func (p policySource) active(ctx context.Context, tenantID string) (*domain.PolicyVersion, error) {
	version, err := p.repo.GetActive(ctx, tenantID)
	if err == nil {
		return version, nil
	}
	if !errors.Is(err, domain.ErrPolicyNotFound) || p.fallback == nil {
		return nil, err
	}
	return &domain.PolicyVersion{
		TenantID:    tenantID,
		Version:     0,
		Config:      *p.fallback,
		Active:      true,
		ActivatedBy: defaultPolicyActor,
	}, nil
}

func (p policySource) snapshot(ctx context.Context, tenantID string, now time.Time) (domain.PolicySnapshot, error) {
	version, err := p.active(ctx, tenantID)
	if err != nil {
		return domain.PolicySnapshot{}, err
	}
	return version.Snapshot(now)
}
