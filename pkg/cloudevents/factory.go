package cloudevents

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// EventFactory creates CloudEvents for one source
type EventFactory struct {
	source string
	now    func() time.Time
}

// NewEventFactory creates a new EventFactory for a specific source
func NewEventFactory(source string) *EventFactory {
	return &EventFactory{source: source, now: time.Now}
}

// CreateEvent builds an event and copies the W3C trace parent from ctx
func (f *EventFactory) CreateEvent(ctx context.Context, eventType, subject string, data interface{}) *Event {
	event := &Event{
		SpecVersion:     "1.0",
		Type:            eventType,
		Source:          f.source,
		Subject:         subject,
		ID:              uuid.New().String(),
		Time:            f.now().UTC(),
		DataContentType: "application/json",
		Data:            data,
	}

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	event.TraceParent = carrier.Get("traceparent")
	return event
}

// CreateExportEvent builds an export-completed or export-failed event
// for a console session.
func (f *EventFactory) CreateExportEvent(ctx context.Context, sessionID, correlationID string, success bool, data ExportData) *Event {
	eventType := FinanceExportCompleted
	if !success {
		eventType = FinanceExportFailed
	}
	if data.At.IsZero() {
		data.At = f.now().UTC()
	}
	event := f.CreateEvent(ctx, eventType, "finance-session/"+sessionID, data)
	event.SessionID = sessionID
	event.CorrelationID = correlationID
	return event
}
