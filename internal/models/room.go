package models

import "time"

// Room represents a bookable meeting room.
type Room struct {
	ID        string    `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	Capacity  int       `db:"capacity" json:"capacity"`
	Location  string    `db:"location" json:"location"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// RoomOccupancy pairs a room with its booking state at a reference instant.
type RoomOccupancy struct {
	Room        Room     `json:"room"`
	Booked      bool     `json:"booked"`
	Current     *Booking `json:"current_booking,omitempty"`
	NextBooking *Booking `json:"next_booking,omitempty"`
}

// RoomFilter narrows down room listings.
type RoomFilter struct {
	Active   *bool
	Search   string
	Page     int
	PageSize int
}
