package temporal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	"github.com/wms-platform/returns-service/internal/workflows"
	"github.com/wms-platform/returns-service/pkg/logging"
	pkgtemporal "github.com/wms-platform/returns-service/pkg/temporal"
)

// AuthorizationScheduler implements application.LifecycleScheduler on Temporal.
// Each approved return gets one authorization workflow keyed by its id.
type AuthorizationScheduler struct {
	client    client.Client
	taskQueue string
	logger    *logging.Logger
}

// NewAuthorizationScheduler creates a scheduler that starts workflows on taskQueue
func NewAuthorizationScheduler(c client.Client, taskQueue string, logger *logging.Logger) *AuthorizationScheduler {
	if taskQueue == "" {
		taskQueue = pkgtemporal.TaskQueues.Returns
	}
	return &AuthorizationScheduler{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger.WithComponent("authorization-scheduler"),
	}
}

// ScheduleAuthorizationExpiry starts the authorization workflow for an approved return
func (s *AuthorizationScheduler) ScheduleAuthorizationExpiry(ctx context.Context, tenantID, returnID string, window time.Duration) error {
	workflowID := workflows.AuthorizationWorkflowID(returnID)
	opts := client.StartWorkflowOptions{
		ID:                    workflowID,
		TaskQueue:             s.taskQueue,
		WorkflowIDReusePolicy: enums.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE_FAILED_ONLY,
		// a day of slack so the expiry activity can still run after the timer fires
		WorkflowExecutionTimeout: window + 24*time.Hour,
	}

	input := workflows.ReturnAuthorizationInput{
		TenantID: tenantID,
		ReturnID: returnID,
		Window:   window,
	}
	if _, err := s.client.ExecuteWorkflow(ctx, opts, pkgtemporal.WorkflowNames.ReturnAuthorization, input); err != nil {
		return fmt.Errorf("failed to start workflow %s: %w", workflowID, err)
	}

	s.logger.WithContext(ctx).Info("Scheduled authorization expiry",
		"returnId", returnID,
		"workflowId", workflowID,
		"window", window.String(),
	)
	return nil
}

// CompleteAuthorization signals the authorization workflow that the return moved on.
// A workflow that already finished is not an error.
func (s *AuthorizationScheduler) CompleteAuthorization(ctx context.Context, returnID string) error {
	workflowID := workflows.AuthorizationWorkflowID(returnID)
	err := s.client.SignalWorkflow(ctx, workflowID, "", workflows.SignalReturnShipped, workflows.ReturnShippedSignal{ReturnID: returnID})
	if err != nil {
		var notFound *serviceerror.NotFound
		if errors.As(err, &notFound) {
			s.logger.WithContext(ctx).Debug("Authorization workflow already closed", "workflowId", workflowID)
			return nil
		}
		return fmt.Errorf("failed to signal workflow %s: %w", workflowID, err)
	}
	return nil
}
