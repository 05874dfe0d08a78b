package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/returns-service/internal/api/dto"
	"github.com/wms-platform/returns-service/internal/application"
	"github.com/wms-platform/returns-service/internal/domain"
	"github.com/wms-platform/returns-service/pkg/errors"
	"github.com/wms-platform/returns-service/pkg/logging"
	"github.com/wms-platform/returns-service/pkg/middleware"
)

// PolicyHandler handles HTTP requests for return policies
type PolicyHandler struct {
	service *application.PolicyService
	logger  *logging.Logger
}

// NewPolicyHandler creates a new PolicyHandler
func NewPolicyHandler(service *application.PolicyService, logger *logging.Logger) *PolicyHandler {
	return &PolicyHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the policy routes
func (h *PolicyHandler) RegisterRoutes(r *gin.RouterGroup) {
	policies := r.Group("/policies")
	{
		policies.POST("/validate", h.ValidatePolicy)
		policies.PUT("/active", h.ActivatePolicy)
		policies.GET("/active", h.GetActivePolicy)
		policies.POST("/preview", h.PreviewDecision)
	}
}

// ValidatePolicy handles POST /api/v1/policies/validate.
// Findings are reported with 200; only an unreadable body is a client error.
func (h *PolicyHandler) ValidatePolicy(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	document, appErr := readDocument(c)
	if appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	cfg, result := h.service.ValidatePolicy(c.Request.Context(), document)
	resp := dto.PolicyValidationResponse{
		Valid:    result.Valid,
		Errors:   nonNilIssues(result.Errors),
		Warnings: nonNilIssues(result.Warnings),
	}
	if result.Valid {
		resp.Config = &cfg
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// ActivatePolicy handles PUT /api/v1/policies/active
func (h *PolicyHandler) ActivatePolicy(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	document, appErr := readDocument(c)
	if appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	tc := middleware.GetTenantContext(c)
	result, err := h.service.ActivatePolicy(c.Request.Context(), application.ActivatePolicyCommand{
		TenantID: tc.TenantID,
		Actor:    tc.Actor(actorAPI),
		Document: document,
	})
	if err != nil {
		responder.RespondWithAppError(toAppError(err))
		return
	}

	middleware.AddSpanAttributes(c, map[string]interface{}{
		"tenant.id":      tc.TenantID,
		"policy.version": result.Version,
	})
	c.JSON(http.StatusOK, gin.H{"data": result})
}

// GetActivePolicy handles GET /api/v1/policies/active
func (h *PolicyHandler) GetActivePolicy(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	result, err := h.service.GetActivePolicy(c.Request.Context(), middleware.GetTenantContext(c).TenantID)
	if err != nil {
		responder.RespondWithAppError(toAppError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// PreviewDecision handles POST /api/v1/policies/preview
func (h *PolicyHandler) PreviewDecision(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req dto.DecisionPreviewRequest
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	result, err := h.service.PreviewDecision(c.Request.Context(), application.PreviewDecisionQuery{
		TenantID:         middleware.GetTenantContext(c).TenantID,
		OrderID:          req.OrderID,
		PreferredOutcome: req.PreferredOutcome,
		Items:            req.Items,
		Policy:           req.Policy,
	})
	if err != nil {
		responder.RespondWithAppError(toAppError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// readDocument reads a raw JSON or YAML policy document
func readDocument(c *gin.Context) ([]byte, *errors.AppError) {
	document, err := c.GetRawData()
	if err != nil {
		return nil, errors.ErrBadRequest("failed to read request body").Wrap(err)
	}
	if len(document) == 0 {
		return nil, errors.ErrValidation("policy document is required")
	}
	return document, nil
}

func nonNilIssues(issues []domain.ValidationIssue) []domain.ValidationIssue {
	if issues == nil {
		return []domain.ValidationIssue{}
	}
	return issues
}
