package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/wms-platform/returns-service/pkg/middleware"
)

// RegisterRoutes mounts the tenant-scoped API under /api/v1
func RegisterRoutes(router *gin.Engine, returns *ReturnHandler, policies *PolicyHandler) *gin.RouterGroup {
	v1 := router.Group("/api/v1")
	v1.Use(middleware.TenantAuth(&middleware.TenantAuthConfig{Required: true}))

	returns.RegisterRoutes(v1)
	policies.RegisterRoutes(v1)
	return v1
}
