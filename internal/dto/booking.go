package dto

import "time"

// CreateBookingRequest defines the payload for reserving a room.
type CreateBookingRequest struct {
	RoomID     string    `json:"roomId" validate:"required"`
	StartTime  time.Time `json:"startTime" validate:"required"`
	EndTime    time.Time `json:"endTime" validate:"required"`
	Topic      string    `json:"topic" validate:"required"`
	Department string    `json:"department"`
	Attendees  int       `json:"attendees" validate:"omitempty,min=1"`
}

// UpdateBookingRequest carries mutable booking fields. Nil fields are left
// unchanged.
type UpdateBookingRequest struct {
	StartTime  *time.Time `json:"startTime,omitempty"`
	EndTime    *time.Time `json:"endTime,omitempty"`
	Topic      *string    `json:"topic,omitempty"`
	Department *string    `json:"department,omitempty"`
	Attendees  *int       `json:"attendees,omitempty" validate:"omitempty,min=1"`
}

// AvailabilityRequest captures query parameters of an availability probe.
type AvailabilityRequest struct {
	RoomID    string
	StartTime time.Time
	EndTime   time.Time
}
