package cloudevents

import (
	"time"

	"github.com/google/uuid"
)

// EventFactory creates CloudEvents for one source
type EventFactory struct {
	source string
	now    func() time.Time
}

// NewEventFactory creates a new EventFactory for a specific source
func NewEventFactory(source string) *EventFactory {
	return &EventFactory{
		source: source,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateEvent builds an event with a fresh id
func (f *EventFactory) CreateEvent(eventType, subject string, data interface{}) *WMSCloudEvent {
	return &WMSCloudEvent{
		SpecVersion:     SpecVersion,
		Type:            eventType,
		Source:          f.source,
		Subject:         subject,
		ID:              uuid.New().String(),
		Time:            f.now(),
		DataContentType: "application/json",
		Data:            data,
	}
}

// CreateTenantEvent builds an event carrying the tenant and correlation extensions.
// occurredAt, when set, replaces the creation time.
func (f *EventFactory) CreateTenantEvent(eventType, subject, tenantID, correlationID string, occurredAt time.Time, data interface{}) *WMSCloudEvent {
	event := f.CreateEvent(eventType, subject, data)
	event.TenantID = tenantID
	event.CorrelationID = correlationID
	if !occurredAt.IsZero() {
		event.Time = occurredAt.UTC()
	}
	return event
}
