package dto

// CreateReminderRequest defines the payload for attaching a reminder to a date.
type CreateReminderRequest struct {
	Date             string `json:"date" validate:"required,datetime=2006-01-02"`
	Plans            string `json:"plans" validate:"required"`
	Time             string `json:"time"`
	Importance       string `json:"importance" validate:"required,oneof=Low Medium High"`
	AssociatedPeople string `json:"associatedPeople"`
}

// UpdateReminderRequest carries mutable reminder fields. Nil fields are left
// unchanged.
type UpdateReminderRequest struct {
	Plans            *string `json:"plans,omitempty"`
	Time             *string `json:"time,omitempty"`
	Importance       *string `json:"importance,omitempty" validate:"omitempty,oneof=Low Medium High"`
	AssociatedPeople *string `json:"associatedPeople,omitempty"`
}

// ReminderItem represents a reminder in API responses, including the derived
// calendar highlight color.
type ReminderItem struct {
	ID               string `json:"id"`
	Date             string `json:"date"`
	Plans            string `json:"plans"`
	Time             string `json:"time,omitempty"`
	Importance       string `json:"importance"`
	AssociatedPeople string `json:"associatedPeople,omitempty"`
	Color            string `json:"color,omitempty"`
}
