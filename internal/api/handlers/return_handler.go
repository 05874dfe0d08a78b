package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/returns-service/internal/api/dto"
	"github.com/wms-platform/returns-service/internal/application"
	"github.com/wms-platform/returns-service/pkg/errors"
	"github.com/wms-platform/returns-service/pkg/logging"
	"github.com/wms-platform/returns-service/pkg/middleware"
)

// actorAPI is recorded in the audit log when the gateway sends no user header
const actorAPI = "api"

// ReturnHandler handles HTTP requests for returns
type ReturnHandler struct {
	service *application.ReturnService
	logger  *logging.Logger
}

// NewReturnHandler creates a new ReturnHandler
func NewReturnHandler(service *application.ReturnService, logger *logging.Logger) *ReturnHandler {
	return &ReturnHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the return routes
func (h *ReturnHandler) RegisterRoutes(r *gin.RouterGroup) {
	returns := r.Group("/returns")
	{
		returns.POST("", h.CreateReturn)
		returns.GET("", h.ListReturns)
		returns.GET("/:returnId", h.GetReturn)
		returns.POST("/:returnId/items", h.AddLineItem)
		returns.DELETE("/:returnId/items/:lineItemId", h.RemoveLineItem)
		returns.POST("/:returnId/submit", h.SubmitReturn)
		returns.POST("/:returnId/approve", h.ApproveReturn)
		returns.POST("/:returnId/reject", h.RejectReturn)
		returns.POST("/:returnId/status", h.ChangeStatus)
		returns.POST("/:returnId/in-transit", h.MarkInTransit)
		returns.POST("/:returnId/receive", h.ReceiveReturn)
		returns.POST("/:returnId/refund", h.RefundReturn)
		returns.POST("/:returnId/exchange", h.ExchangeReturn)
		returns.POST("/:returnId/close", h.CloseReturn)
		returns.POST("/:returnId/cancel", h.CancelReturn)
	}

	r.POST("/eligibility/preview", h.PreviewEligibility)
}

// CreateReturn handles POST /api/v1/returns
func (h *ReturnHandler) CreateReturn(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req dto.CreateReturnRequest
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	tc := middleware.GetTenantContext(c)
	middleware.AddSpanAttributes(c, map[string]interface{}{
		"tenant.id":    tc.TenantID,
		"order.id":     req.OrderID,
		"return.items": len(req.Items),
	})

	result, err := h.service.CreateReturn(c.Request.Context(), application.CreateReturnCommand{
		TenantID:         tc.TenantID,
		Actor:            tc.Actor(actorAPI),
		CorrelationID:    middleware.GetCorrelationID(c),
		OrderID:          req.OrderID,
		CustomerEmail:    req.CustomerEmail,
		Channel:          req.Channel,
		Method:           req.Method,
		PreferredOutcome: req.PreferredOutcome,
		Items:            req.Items,
	})
	if err != nil {
		responder.RespondWithAppError(toAppError(err))
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": result})
}

// ListReturns handles GET /api/v1/returns
func (h *ReturnHandler) ListReturns(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req dto.ListReturnsRequest
	if appErr := middleware.BindQuery(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	tenantID := middleware.GetTenantContext(c).TenantID
	result, err := h.service.ListReturns(c.Request.Context(), req.ToQuery(tenantID))
	if err != nil {
		responder.RespondWithAppError(toAppError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// GetReturn handles GET /api/v1/returns/:returnId
func (h *ReturnHandler) GetReturn(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	returnID := c.Param("returnId")
	middleware.AddSpanAttributes(c, map[string]interface{}{
		"return.id": returnID,
	})

	result, err := h.service.GetReturn(c.Request.Context(), middleware.GetTenantContext(c).TenantID, returnID)
	if err != nil {
		responder.RespondWithAppError(toAppError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// AddLineItem handles POST /api/v1/returns/:returnId/items
func (h *ReturnHandler) AddLineItem(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var item application.LineItemInput
	if appErr := middleware.BindAndValidate(c, &item); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	result, err := h.service.AddLineItem(c.Request.Context(), application.AddLineItemCommand{
		TenantID:      middleware.GetTenantContext(c).TenantID,
		ReturnID:      c.Param("returnId"),
		CorrelationID: middleware.GetCorrelationID(c),
		Item:          item,
	})
	if err != nil {
		responder.RespondWithAppError(toAppError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// RemoveLineItem handles DELETE /api/v1/returns/:returnId/items/:lineItemId
func (h *ReturnHandler) RemoveLineItem(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	result, err := h.service.RemoveLineItem(c.Request.Context(), application.RemoveLineItemCommand{
		TenantID:      middleware.GetTenantContext(c).TenantID,
		ReturnID:      c.Param("returnId"),
		CorrelationID: middleware.GetCorrelationID(c),
		LineItemID:    c.Param("lineItemId"),
	})
	if err != nil {
		responder.RespondWithAppError(toAppError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// SubmitReturn handles POST /api/v1/returns/:returnId/submit
func (h *ReturnHandler) SubmitReturn(c *gin.Context) {
	h.transition(c, "submit", h.service.SubmitReturn)
}

// ApproveReturn handles POST /api/v1/returns/:returnId/approve
func (h *ReturnHandler) ApproveReturn(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req dto.ApproveReturnRequest
	if appErr := bindOptional(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	middleware.AddSpanAttributes(c, map[string]interface{}{
		"return.id":       c.Param("returnId"),
		"policy.override": req.OverridePolicy,
	})

	result, err := h.service.ApproveReturn(c.Request.Context(), application.ApproveReturnCommand{
		ReturnCommand:  h.command(c, ""),
		OverridePolicy: req.OverridePolicy,
		Notes:          req.Notes,
	})
	if err != nil {
		responder.RespondWithAppError(toAppError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// RejectReturn handles POST /api/v1/returns/:returnId/reject
func (h *ReturnHandler) RejectReturn(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req dto.ReasonRequest
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	result, err := h.service.RejectReturn(c.Request.Context(), h.command(c, req.Reason))
	if err != nil {
		responder.RespondWithAppError(toAppError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// ChangeStatus handles POST /api/v1/returns/:returnId/status
func (h *ReturnHandler) ChangeStatus(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req dto.ChangeStatusRequest
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	middleware.AddSpanAttributes(c, map[string]interface{}{
		"return.id":     c.Param("returnId"),
		"return.status": req.Status,
	})

	result, err := h.service.ChangeStatus(c.Request.Context(), application.ChangeStatusCommand{
		ReturnCommand:      h.command(c, req.Reason),
		Status:             req.Status,
		ReplacementOrderID: req.ReplacementOrderID,
	})
	if err != nil {
		responder.RespondWithAppError(toAppError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// MarkInTransit handles POST /api/v1/returns/:returnId/in-transit
func (h *ReturnHandler) MarkInTransit(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req dto.InTransitRequest
	if appErr := bindOptional(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	result, err := h.service.MarkInTransit(c.Request.Context(), h.command(c, req.TrackingNumber))
	if err != nil {
		responder.RespondWithAppError(toAppError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// ReceiveReturn handles POST /api/v1/returns/:returnId/receive
func (h *ReturnHandler) ReceiveReturn(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req dto.ReceiveRequest
	if appErr := bindOptional(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	result, err := h.service.ReceiveReturn(c.Request.Context(), h.command(c, req.Notes))
	if err != nil {
		responder.RespondWithAppError(toAppError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// RefundReturn handles POST /api/v1/returns/:returnId/refund
func (h *ReturnHandler) RefundReturn(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req dto.RefundRequest
	if appErr := bindOptional(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	result, err := h.service.RefundReturn(c.Request.Context(), application.RefundReturnCommand{
		ReturnCommand: h.command(c, ""),
		Amount:        req.Amount,
	})
	if err != nil {
		responder.RespondWithAppError(toAppError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// ExchangeReturn handles POST /api/v1/returns/:returnId/exchange
func (h *ReturnHandler) ExchangeReturn(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req dto.ExchangeRequest
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	result, err := h.service.ExchangeReturn(c.Request.Context(), h.command(c, req.ReplacementOrderID))
	if err != nil {
		responder.RespondWithAppError(toAppError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// CloseReturn handles POST /api/v1/returns/:returnId/close
func (h *ReturnHandler) CloseReturn(c *gin.Context) {
	h.transition(c, "close", h.service.CloseReturn)
}

// CancelReturn handles POST /api/v1/returns/:returnId/cancel
func (h *ReturnHandler) CancelReturn(c *gin.Context) {
	h.transition(c, "cancel", h.service.CancelReturn)
}

// PreviewEligibility handles POST /api/v1/eligibility/preview
func (h *ReturnHandler) PreviewEligibility(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req dto.EligibilityPreviewRequest
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	result, err := h.service.PreviewEligibility(c.Request.Context(), application.PreviewEligibilityQuery{
		TenantID: middleware.GetTenantContext(c).TenantID,
		OrderID:  req.OrderID,
		Method:   req.Method,
		Items:    req.Items,
	})
	if err != nil {
		responder.RespondWithAppError(toAppError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// transition runs a status change whose only input is an optional reason
func (h *ReturnHandler) transition(c *gin.Context, operation string, fn func(context.Context, application.ReturnCommand) (*application.ReturnDTO, error)) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req dto.ReasonRequest
	if appErr := bindOptional(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	middleware.AddSpanAttributes(c, map[string]interface{}{
		"return.id":        c.Param("returnId"),
		"return.operation": operation,
	})

	result, err := fn(c.Request.Context(), h.command(c, req.Reason))
	if err != nil {
		responder.RespondWithAppError(toAppError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (h *ReturnHandler) command(c *gin.Context, reason string) application.ReturnCommand {
	tc := middleware.GetTenantContext(c)
	return application.ReturnCommand{
		TenantID:      tc.TenantID,
		ReturnID:      c.Param("returnId"),
		Actor:         tc.Actor(actorAPI),
		CorrelationID: middleware.GetCorrelationID(c),
		Reason:        reason,
	}
}

// bindOptional binds a JSON body only when one was sent
func bindOptional(c *gin.Context, obj interface{}) *errors.AppError {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	return middleware.BindAndValidate(c, obj)
}
