package activities

import (
	"context"
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/activity"

	"github.com/wms-platform/returns-service/internal/workflows"
	"github.com/wms-platform/returns-service/pkg/tenant"
)

// AuthorizationExpirer cancels approved returns that were never shipped
type AuthorizationExpirer interface {
	ExpireAuthorization(ctx context.Context, tenantID, returnID string) (bool, error)
}

// AuthorizationActivities contains the activities of the return authorization workflow
type AuthorizationActivities struct {
	expirer AuthorizationExpirer
	logger  *slog.Logger
}

// NewAuthorizationActivities creates a new AuthorizationActivities instance
func NewAuthorizationActivities(expirer AuthorizationExpirer, logger *slog.Logger) *AuthorizationActivities {
	return &AuthorizationActivities{
		expirer: expirer,
		logger:  logger,
	}
}

// ExpireAuthorization cancels the return if it is still waiting for shipment.
// It returns false when the return had already moved on.
func (a *AuthorizationActivities) ExpireAuthorization(ctx context.Context, input workflows.ExpireAuthorizationInput) (bool, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Expiring return authorization", "returnId", input.ReturnID, "tenantId", input.TenantID)

	ctx = tenant.WithTenantID(ctx, input.TenantID)
	canceled, err := a.expirer.ExpireAuthorization(ctx, input.TenantID, input.ReturnID)
	if err != nil {
		a.logger.Error("Failed to expire return authorization", "returnId", input.ReturnID, "error", err)
		return false, fmt.Errorf("failed to expire authorization for %s: %w", input.ReturnID, err)
	}

	if !canceled {
		logger.Info("Return already left the approved state", "returnId", input.ReturnID)
	}
	return canceled, nil
}
