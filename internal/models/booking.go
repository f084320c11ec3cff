package models

import "time"

// Booking reserves a room for a half-open interval [StartTime, EndTime).
type Booking struct {
	ID              string    `db:"id" json:"id"`
	RoomID          string    `db:"room_id" json:"room_id"`
	StartTime       time.Time `db:"start_time" json:"start_time"`
	EndTime         time.Time `db:"end_time" json:"end_time"`
	Topic           string    `db:"topic" json:"topic"`
	Department      string    `db:"department" json:"department"`
	HostID          string    `db:"host_id" json:"host_id"`
	HostName        string    `db:"host_name" json:"host_name"`
	HostDesignation string    `db:"host_designation" json:"host_designation"`
	Attendees       int       `db:"attendees" json:"attendees"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// Overlaps reports whether the booking intersects [start, end).
func (b Booking) Overlaps(start, end time.Time) bool {
	return start.Before(b.EndTime) && b.StartTime.Before(end)
}

// Covers reports whether the booking is in progress at the given instant.
func (b Booking) Covers(at time.Time) bool {
	return !at.Before(b.StartTime) && at.Before(b.EndTime)
}

// BookingFilter narrows down booking listings.
type BookingFilter struct {
	RoomID     string
	HostID     string
	Department string
	From       *time.Time
	To         *time.Time
	Page       int
	PageSize   int
}

// Availability is the outcome of an availability probe for a room interval.
type Availability struct {
	RoomID    string   `json:"room_id"`
	Available bool     `json:"available"`
	Conflict  *Booking `json:"conflict,omitempty"`
}
