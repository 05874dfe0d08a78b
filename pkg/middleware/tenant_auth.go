package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/wms-platform/returns-service/pkg/errors"
	"github.com/wms-platform/returns-service/pkg/logging"
	"github.com/wms-platform/returns-service/pkg/tenant"
)

// Tenant headers, as sent by the WMS gateway
const (
	HeaderWMSTenantID = "X-WMS-Tenant-ID"
	HeaderWMSUserID   = "X-WMS-User-ID"
)

const (
	ContextKeyTenantID      = "tenantId"
	contextKeyTenantContext = "tenantContext"
)

// TenantAuthConfig holds configuration for tenant middleware
type TenantAuthConfig struct {
	// Required rejects requests without a tenant header
	Required bool

	// DefaultTenantID is used when Required is false and no header is sent
	DefaultTenantID string
}

// TenantAuth extracts the tenant and acting user from headers onto the request context
func TenantAuth(config *TenantAuthConfig) gin.HandlerFunc {
	if config == nil {
		config = &TenantAuthConfig{Required: true}
	}

	return func(c *gin.Context) {
		tenantID := c.GetHeader(HeaderWMSTenantID)
		if tenantID == "" && !config.Required {
			tenantID = config.DefaultTenantID
		}
		if tenantID == "" {
			AbortWithAppError(c, errors.ErrUnauthorized("tenant context is required").
				WithDetail("header", HeaderWMSTenantID))
			return
		}

		tc := &tenant.Context{
			TenantID: tenantID,
			UserID:   c.GetHeader(HeaderWMSUserID),
		}

		ctx := tenant.ToContext(c.Request.Context(), tc)
		ctx = logging.ContextWithTenantID(ctx, tenantID)
		if tc.UserID != "" {
			ctx = logging.ContextWithUserID(ctx, tc.UserID)
		}
		c.Request = c.Request.WithContext(ctx)

		c.Set(contextKeyTenantContext, tc)
		c.Set(ContextKeyTenantID, tenantID)

		c.Next()
	}
}

// GetTenantContext retrieves the tenant context set by TenantAuth
func GetTenantContext(c *gin.Context) *tenant.Context {
	if val, exists := c.Get(contextKeyTenantContext); exists {
		if tc, ok := val.(*tenant.Context); ok {
			return tc
		}
	}
	return &tenant.Context{TenantID: c.GetString(ContextKeyTenantID)}
}
