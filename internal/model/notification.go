package model

import "time"

// NotificationType controls how a notification and its toast are styled.
type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationInfo    NotificationType = "info"
	NotificationWarning NotificationType = "warning"
	NotificationError   NotificationType = "error"
)

// Valid reports whether t is one of the known notification types.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationSuccess, NotificationInfo, NotificationWarning, NotificationError:
		return true
	}
	return false
}

// Notification is a server-generated alert delivered over the stream
// or pulled from the notifications endpoint.
type Notification struct {
	// ID is the server-assigned identifier used for deduplication.
	ID string `json:"id"`

	Title   string           `json:"title"`
	Message string           `json:"message"`
	Type    NotificationType `json:"type"`

	// IsRead flips to true once the user acknowledges the notification.
	IsRead bool `json:"isRead"`

	// ReadAt is set together with IsRead.
	ReadAt *time.Time `json:"readAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// NotificationSettings are the per-user delivery preferences.
type NotificationSettings struct {
	EmailEnabled  bool `json:"emailEnabled"`
	PushEnabled   bool `json:"pushEnabled"`
	CostAlerts    bool `json:"costAlerts"`
	AdvanceAlerts bool `json:"advanceAlerts"`
}
