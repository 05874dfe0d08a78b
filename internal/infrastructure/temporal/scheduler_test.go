package temporal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"

	"github.com/wms-platform/returns-service/internal/workflows"
	"github.com/wms-platform/returns-service/pkg/logging"
)

func TestScheduleAuthorizationExpiry(t *testing.T) {
	c := &mocks.Client{}
	c.On("ExecuteWorkflow", mock.Anything,
		mock.MatchedBy(func(opts client.StartWorkflowOptions) bool {
			return opts.ID == "return-authorization-RET-1" && opts.TaskQueue == "returns-queue"
		}),
		"ReturnAuthorizationWorkflow",
		workflows.ReturnAuthorizationInput{TenantID: "tenant-a", ReturnID: "RET-1", Window: 72 * time.Hour},
	).Return(&mocks.WorkflowRun{}, nil).Once()

	s := NewAuthorizationScheduler(c, "", logging.NewNop())
	err := s.ScheduleAuthorizationExpiry(context.Background(), "tenant-a", "RET-1", 72*time.Hour)

	require.NoError(t, err)
	c.AssertExpectations(t)
}

func TestScheduleAuthorizationExpiry_StartFails(t *testing.T) {
	c := &mocks.Client{}
	c.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("frontend unavailable"))

	s := NewAuthorizationScheduler(c, "returns-queue", logging.NewNop())
	err := s.ScheduleAuthorizationExpiry(context.Background(), "tenant-a", "RET-1", time.Hour)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "return-authorization-RET-1")
}

func TestCompleteAuthorization(t *testing.T) {
	tests := []struct {
		name      string
		signalErr error
		wantErr   bool
	}{
		{name: "signals running workflow"},
		{name: "closed workflow is ignored", signalErr: serviceerror.NewNotFound("workflow not found")},
		{name: "other errors surface", signalErr: errors.New("deadline exceeded"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &mocks.Client{}
			c.On("SignalWorkflow", mock.Anything, "return-authorization-RET-1", "",
				workflows.SignalReturnShipped, workflows.ReturnShippedSignal{ReturnID: "RET-1"},
			).Return(tt.signalErr).Once()

			s := NewAuthorizationScheduler(c, "", logging.NewNop())
			err := s.CompleteAuthorization(context.Background(), "RET-1")

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			c.AssertExpectations(t)
		})
	}
}
