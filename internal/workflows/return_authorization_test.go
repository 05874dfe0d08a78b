package workflows

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"
)

func registerExpiry(env *testsuite.TestWorkflowEnvironment, calls *[]ExpireAuthorizationInput, canceled bool) {
	env.RegisterActivityWithOptions(func(ctx context.Context, input ExpireAuthorizationInput) (bool, error) {
		*calls = append(*calls, input)
		return canceled, nil
	}, activity.RegisterOptions{Name: ActivityExpireAuthorization})
}

func TestReturnAuthorizationWorkflow_ShippedInTime(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()

	var calls []ExpireAuthorizationInput
	env.RegisterWorkflow(ReturnAuthorizationWorkflow)
	registerExpiry(env, &calls, true)

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalReturnShipped, ReturnShippedSignal{ReturnID: "RET-1"})
	}, 24*time.Hour)

	env.ExecuteWorkflow(ReturnAuthorizationWorkflow, ReturnAuthorizationInput{
		TenantID: "tenant-a",
		ReturnID: "RET-1",
		Window:   14 * 24 * time.Hour,
	})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result ReturnAuthorizationResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.True(t, result.Shipped)
	assert.False(t, result.Expired)
	assert.Empty(t, calls)
}

func TestReturnAuthorizationWorkflow_Expires(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()

	var calls []ExpireAuthorizationInput
	env.RegisterWorkflow(ReturnAuthorizationWorkflow)
	registerExpiry(env, &calls, true)

	env.ExecuteWorkflow(ReturnAuthorizationWorkflow, ReturnAuthorizationInput{
		TenantID: "tenant-a",
		ReturnID: "RET-2",
		Window:   time.Hour,
	})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result ReturnAuthorizationResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.False(t, result.Shipped)
	assert.True(t, result.Expired)
	require.Len(t, calls, 1)
	assert.Equal(t, ExpireAuthorizationInput{TenantID: "tenant-a", ReturnID: "RET-2"}, calls[0])
}

func TestReturnAuthorizationWorkflow_AlreadyResolved(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()

	var calls []ExpireAuthorizationInput
	env.RegisterWorkflow(ReturnAuthorizationWorkflow)
	registerExpiry(env, &calls, false)

	env.ExecuteWorkflow(ReturnAuthorizationWorkflow, ReturnAuthorizationInput{
		TenantID: "tenant-a",
		ReturnID: "RET-3",
		Window:   time.Hour,
	})
	require.NoError(t, env.GetWorkflowError())

	var result ReturnAuthorizationResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.False(t, result.Expired)
	assert.Len(t, calls, 1)
}

func TestReturnAuthorizationWorkflow_RejectsEmptyWindow(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(ReturnAuthorizationWorkflow)

	env.ExecuteWorkflow(ReturnAuthorizationWorkflow, ReturnAuthorizationInput{ReturnID: "RET-4"})

	require.True(t, env.IsWorkflowCompleted())
	assert.Error(t, env.GetWorkflowError())
}

func TestAuthorizationWorkflowID(t *testing.T) {
	assert.Equal(t, "return-authorization-RET-9", AuthorizationWorkflowID("RET-9"))
}
