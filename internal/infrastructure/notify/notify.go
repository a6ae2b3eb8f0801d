// Package notify delivers finance page notifications to the service log
// and, when Kafka is enabled, to the console's event stream.
package notify

import (
	"context"

	"github.com/market-console/finance-portal/internal/domain"
	"github.com/market-console/finance-portal/pkg/cloudevents"
	"github.com/market-console/finance-portal/pkg/kafka"
	"github.com/market-console/finance-portal/pkg/logging"
)

// Notifier receives user-facing notifications
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification)
}

// LogNotifier writes notifications as structured log events
type LogNotifier struct {
	logger *logging.Logger
}

// NewLogNotifier creates a LogNotifier
func NewLogNotifier(logger *logging.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.WithComponent("notify")}
}

// Notify implements Notifier
func (l *LogNotifier) Notify(ctx context.Context, n domain.Notification) {
	l.logger.Event(ctx, "finance.notification", map[string]any{
		"level":     string(n.Level),
		"title":     n.Title,
		"message":   n.Message,
		"sessionId": n.SessionID,
		"filename":  n.Filename,
		"rows":      n.Rows,
	})
}

// EventNotifier publishes export outcomes as CloudEvents
type EventNotifier struct {
	publisher kafka.Publisher
	factory   *cloudevents.EventFactory
	topic     string
	logger    *logging.Logger
}

// NewEventNotifier creates an EventNotifier publishing to topic
func NewEventNotifier(publisher kafka.Publisher, factory *cloudevents.EventFactory, topic string, logger *logging.Logger) *EventNotifier {
	return &EventNotifier{
		publisher: publisher,
		factory:   factory,
		topic:     topic,
		logger:    logger.WithComponent("notify"),
	}
}

// Notify implements Notifier. Publish failures are logged, never returned.
func (e *EventNotifier) Notify(ctx context.Context, n domain.Notification) {
	event := e.factory.CreateExportEvent(ctx, n.SessionID, logging.CorrelationIDFromContext(ctx),
		n.Level == domain.NotificationSuccess,
		cloudevents.ExportData{
			Filename: n.Filename,
			Rows:     n.Rows,
			Message:  n.Message,
		})

	if err := e.publisher.PublishEvent(ctx, e.topic, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Warn("Failed to publish export event",
			"topic", e.topic,
			"eventType", event.Type,
			"sessionId", n.SessionID,
		)
	}
}

// Multi fans a notification out to every notifier in order
type Multi []Notifier

// Notify implements Notifier
func (m Multi) Notify(ctx context.Context, n domain.Notification) {
	for _, notifier := range m {
		if notifier != nil {
			notifier.Notify(ctx, n)
		}
	}
}
