package domain

// NotificationLevel is the severity of a user-facing notification.
type NotificationLevel string

const (
	NotificationSuccess NotificationLevel = "success"
	NotificationError   NotificationLevel = "error"
)

// Notification is a message for the console's toast surface.
type Notification struct {
	Level     NotificationLevel `json:"level"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	SessionID string            `json:"sessionId,omitempty"`
	Filename  string            `json:"filename,omitempty"`
	Rows      int               `json:"rows"`
}
