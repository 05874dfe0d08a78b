package application

import (
	"context"
	"time"
)

// LifecycleScheduler runs the timers attached to a return's lifecycle
type LifecycleScheduler interface {
	// ScheduleAuthorizationExpiry cancels an approved return that is not shipped within window
	ScheduleAuthorizationExpiry(ctx context.Context, tenantID, returnID string, window time.Duration) error

	// CompleteAuthorization stops the expiry timer once the return ships or is canceled
	CompleteAuthorization(ctx context.Context, returnID string) error
}

// NopScheduler is used when no workflow engine is configured
type NopScheduler struct{}

func (NopScheduler) ScheduleAuthorizationExpiry(context.Context, string, string, time.Duration) error {
	return nil
}

func (NopScheduler) CompleteAuthorization(context.Context, string) error { return nil }
