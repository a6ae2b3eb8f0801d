package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/market-console/finance-portal/internal/domain"
	"github.com/market-console/finance-portal/pkg/cloudevents"
	"github.com/market-console/finance-portal/pkg/logging"
)

type capturePublisher struct {
	topic  string
	events []*cloudevents.Event
	err    error
}

func (c *capturePublisher) PublishEvent(_ context.Context, topic string, event *cloudevents.Event) error {
	c.topic = topic
	c.events = append(c.events, event)
	return c.err
}

type recorder struct{ got []domain.Notification }

func (r *recorder) Notify(_ context.Context, n domain.Notification) { r.got = append(r.got, n) }

func bufferLogger(buf *bytes.Buffer) *logging.Logger {
	cfg := logging.DefaultConfig("test")
	cfg.Output = buf
	return logging.New(cfg)
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(bufferLogger(&buf))

	n.Notify(context.Background(), domain.Notification{
		Level:     domain.NotificationSuccess,
		Title:     "Xuất CSV thành công",
		SessionID: "s-1",
		Filename:  "giao-dich_20240501-20240531.csv",
		Rows:      3,
	})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry))
	assert.Equal(t, "finance.notification", entry["eventType"])
	assert.Equal(t, "success", entry["level"])
	assert.Equal(t, "giao-dich_20240501-20240531.csv", entry["filename"])
	assert.EqualValues(t, 3, entry["rows"])
}

func TestEventNotifierPublishesExportEvent(t *testing.T) {
	pub := &capturePublisher{}
	n := NewEventNotifier(pub, cloudevents.NewEventFactory(cloudevents.SourceFinancePortal), "market.finance.exports", logging.Discard())
	ctx := logging.ContextWithCorrelationID(context.Background(), "corr-1")

	n.Notify(ctx, domain.Notification{Level: domain.NotificationSuccess, SessionID: "s-1", Filename: "a.csv", Rows: 2})
	n.Notify(ctx, domain.Notification{Level: domain.NotificationError, SessionID: "s-1", Message: "boom"})

	require.Len(t, pub.events, 2)
	assert.Equal(t, "market.finance.exports", pub.topic)
	assert.Equal(t, cloudevents.FinanceExportCompleted, pub.events[0].Type)
	assert.Equal(t, cloudevents.FinanceExportFailed, pub.events[1].Type)
	assert.Equal(t, "corr-1", pub.events[0].CorrelationID)
	assert.Equal(t, "s-1", pub.events[0].SessionID)

	data, ok := pub.events[0].Data.(cloudevents.ExportData)
	require.True(t, ok)
	assert.Equal(t, "a.csv", data.Filename)
	assert.Equal(t, 2, data.Rows)
}

func TestEventNotifierSwallowsPublishError(t *testing.T) {
	var buf bytes.Buffer
	pub := &capturePublisher{err: errors.New("broker down")}
	n := NewEventNotifier(pub, cloudevents.NewEventFactory(cloudevents.SourceFinancePortal), "t", bufferLogger(&buf))

	assert.NotPanics(t, func() {
		n.Notify(context.Background(), domain.Notification{Level: domain.NotificationError})
	})
	assert.Contains(t, buf.String(), "broker down")
}

func TestMultiFansOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	m := Multi{a, nil, b}

	m.Notify(context.Background(), domain.Notification{Title: "x"})

	assert.Len(t, a.got, 1)
	assert.Len(t, b.got, 1)
}
