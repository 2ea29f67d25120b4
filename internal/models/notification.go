package models

// NotificationVariant selects how a notification is styled
type NotificationVariant string

const (
	NotificationDefault     NotificationVariant = "default"
	NotificationDestructive NotificationVariant = "destructive"
)

// Notification is a transient user-visible message ("toast")
type Notification struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Variant     NotificationVariant `json:"variant"`
}

// Success builds a default notification
func Success(title, description string) Notification {
	return Notification{Title: title, Description: description, Variant: NotificationDefault}
}

// Failure builds a destructive notification
func Failure(title, description string) Notification {
	return Notification{Title: title, Description: description, Variant: NotificationDestructive}
}
