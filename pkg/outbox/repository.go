package outbox

import "context"

// Repository persists outbox events. Save and SaveAll join the caller's transaction when ctx carries a session.
type Repository interface {
	Save(ctx context.Context, event *OutboxEvent) error
	SaveAll(ctx context.Context, events []*OutboxEvent) error

	// FindUnpublished returns the oldest unpublished events that still have retries left
	FindUnpublished(ctx context.Context, limit int) ([]*OutboxEvent, error)

	MarkPublished(ctx context.Context, eventID string) error
	IncrementRetry(ctx context.Context, eventID string, errorMsg string) error

	FindByAggregateID(ctx context.Context, aggregateID string) ([]*OutboxEvent, error)
}
