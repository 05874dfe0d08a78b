package workflows

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/workflow"

	"github.com/wms-platform/returns-service/pkg/temporal"
)

// Signal and activity names shared with the scheduler and the worker
const (
	SignalReturnShipped         = "return-shipped"
	ActivityExpireAuthorization = "ExpireAuthorization"
)

// AuthorizationWorkflowID is the workflow id used for a return's authorization timer
func AuthorizationWorkflowID(returnID string) string {
	return "return-authorization-" + returnID
}

// ReturnAuthorizationInput starts the authorization timer of an approved return
type ReturnAuthorizationInput struct {
	TenantID string        `json:"tenantId"`
	ReturnID string        `json:"returnId"`
	Window   time.Duration `json:"window"`
}

// ExpireAuthorizationInput is passed to the expiry activity
type ExpireAuthorizationInput struct {
	TenantID string `json:"tenantId"`
	ReturnID string `json:"returnId"`
}

// ReturnShippedSignal stops the authorization timer
type ReturnShippedSignal struct {
	ReturnID string `json:"returnId"`
}

// ReturnAuthorizationResult reports how the authorization ended
type ReturnAuthorizationResult struct {
	ReturnID string `json:"returnId"`
	Shipped  bool   `json:"shipped"`
	Expired  bool   `json:"expired"`
}

// ReturnAuthorizationWorkflow waits for an approved return to ship. If the window
// passes first, the return is canceled through the expiry activity.
func ReturnAuthorizationWorkflow(ctx workflow.Context, input ReturnAuthorizationInput) (*ReturnAuthorizationResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting return authorization workflow", "returnId", input.ReturnID, "window", input.Window)

	result := &ReturnAuthorizationResult{ReturnID: input.ReturnID}
	if input.Window <= 0 {
		return result, fmt.Errorf("authorization window must be positive, got %s", input.Window)
	}

	timerCtx, cancelTimer := workflow.WithCancel(ctx)
	defer cancelTimer()

	shipped := workflow.GetSignalChannel(ctx, SignalReturnShipped)
	selector := workflow.NewSelector(ctx)
	selector.AddReceive(shipped, func(c workflow.ReceiveChannel, more bool) {
		var signal ReturnShippedSignal
		c.Receive(ctx, &signal)
		result.Shipped = true
	})
	selector.AddFuture(workflow.NewTimer(timerCtx, input.Window), func(f workflow.Future) {
		logger.Warn("Return authorization window elapsed", "returnId", input.ReturnID)
	})
	selector.Select(ctx)

	if result.Shipped {
		logger.Info("Return shipped within authorization window", "returnId", input.ReturnID)
		return result, nil
	}

	ctx = workflow.WithActivityOptions(ctx, temporal.DefaultActivityOptions())
	var canceled bool
	err := workflow.ExecuteActivity(ctx, ActivityExpireAuthorization, ExpireAuthorizationInput{
		TenantID: input.TenantID,
		ReturnID: input.ReturnID,
	}).Get(ctx, &canceled)
	if err != nil {
		return result, fmt.Errorf("failed to expire authorization: %w", err)
	}

	result.Expired = canceled
	logger.Info("Return authorization expired", "returnId", input.ReturnID, "canceled", canceled)
	return result, nil
}
