package core

import "time"

const (
	NotificationWeather  NotificationType = "weather"
	NotificationSystem   NotificationType = "system"
	NotificationDeadline NotificationType = "deadline"

	RoleAdmin   UserRole = "admin"
	RoleStaff   UserRole = "staff"
	RolePending UserRole = "pending"
)

// TimestampLayout renders fixed-width UTC timestamps so that their string
// order matches their chronological order.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

type (
	NotificationType string
	UserRole         string

	AppNotification struct {
		ID      string           `json:"id"`
		UserID  string           `json:"userId,omitempty"`
		Title   string           `json:"title"`
		Message string           `json:"message"`
		Date    string           `json:"date"`
		IsRead  bool             `json:"isRead"`
		Type    NotificationType `json:"type"`
	}

	// AppUser is owned by the identity provider and only read here.
	AppUser struct {
		UID         string   `json:"uid"`
		Email       string   `json:"email"`
		DisplayName string   `json:"displayName"`
		PhotoURL    string   `json:"photoURL,omitempty"`
		Role        UserRole `json:"role"`
		CreatedAt   int64    `json:"createdAt"`
	}
)

// FormatTimestamp renders t as an ISO timestamp in UTC with millisecond precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

func NewNotification(id string, kind NotificationType, title, message string, at time.Time) AppNotification {
	return AppNotification{
		ID:      id,
		Title:   title,
		Message: message,
		Date:    FormatTimestamp(at),
		Type:    kind,
	}
}

func (n NotificationType) Valid() bool {
	return n == NotificationWeather || n == NotificationSystem || n == NotificationDeadline
}

func (u AppUser) IsAdmin() bool {
	return u.Role == RoleAdmin
}
