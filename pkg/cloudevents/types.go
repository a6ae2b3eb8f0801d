package cloudevents

import (
	"time"
)

// Event types emitted by the finance portal
const (
	FinanceExportCompleted = "market.finance.export-completed"
	FinanceExportFailed    = "market.finance.export-failed"
)

// SourceFinancePortal is the CloudEvents source of this service
const SourceFinancePortal = "/market/finance-portal"

// Extension attribute names, also used as Kafka header suffixes
const (
	ExtCorrelationID = "marketcorrelationid"
	ExtSessionID     = "marketsessionid"
	ExtTraceParent   = "traceparent"
)

// Event is a CloudEvents v1.0 envelope
type Event struct {
	SpecVersion     string      `json:"specversion"`
	Type            string      `json:"type"`
	Source          string      `json:"source"`
	Subject         string      `json:"subject,omitempty"`
	ID              string      `json:"id"`
	Time            time.Time   `json:"time"`
	DataContentType string      `json:"datacontenttype"`
	Data            interface{} `json:"data"`

	CorrelationID string `json:"marketcorrelationid,omitempty"`
	SessionID     string `json:"marketsessionid,omitempty"`
	TraceParent   string `json:"traceparent,omitempty"`
}

// ExportData is the payload of the export events
type ExportData struct {
	Filename string    `json:"filename,omitempty"`
	Rows     int       `json:"rows"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}
