package dto

// CreateExportRequest defines the payload for a booking-schedule export.
type CreateExportRequest struct {
	Format string `json:"format" validate:"required,oneof=csv pdf"`
	RoomID string `json:"roomId,omitempty"`
	From   string `json:"from,omitempty" validate:"omitempty,datetime=2006-01-02"`
	To     string `json:"to,omitempty" validate:"omitempty,datetime=2006-01-02"`
}
