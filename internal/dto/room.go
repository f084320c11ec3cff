package dto

// CreateRoomRequest defines the payload for registering a room.
type CreateRoomRequest struct {
	Code     string `json:"code" validate:"required"`
	Name     string `json:"name" validate:"required"`
	Capacity int    `json:"capacity" validate:"omitempty,min=1"`
	Location string `json:"location"`
}

// UpdateRoomRequest carries mutable room fields. Nil fields are left unchanged.
type UpdateRoomRequest struct {
	Name     *string `json:"name,omitempty"`
	Capacity *int    `json:"capacity,omitempty" validate:"omitempty,min=1"`
	Location *string `json:"location,omitempty"`
	Active   *bool   `json:"active,omitempty"`
}
