package models

import "time"

// ReminderImportance enumerates the priority levels a reminder can carry.
type ReminderImportance string

const (
	ImportanceLow    ReminderImportance = "Low"
	ImportanceMedium ReminderImportance = "Medium"
	ImportanceHigh   ReminderImportance = "High"
)

// Reminder is a user-owned note attached to one calendar date. Each owner may
// hold at most one reminder per date.
type Reminder struct {
	ID               string             `db:"id" json:"id"`
	OwnerID          string             `db:"owner_id" json:"owner_id"`
	Date             time.Time          `db:"date" json:"date"`
	Plans            string             `db:"plans" json:"plans"`
	Time             string             `db:"time" json:"time"`
	Importance       ReminderImportance `db:"importance" json:"importance"`
	AssociatedPeople string             `db:"associated_people" json:"associated_people"`
	CreatedAt        time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time          `db:"updated_at" json:"updated_at"`
}

// HighlightColor maps importance to the calendar cell color. Unknown values
// yield an empty string, meaning no highlight.
func HighlightColor(importance ReminderImportance) string {
	switch importance {
	case ImportanceLow:
		return "green"
	case ImportanceMedium:
		return "yellow"
	case ImportanceHigh:
		return "red"
	default:
		return ""
	}
}
