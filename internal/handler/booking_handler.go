package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/workstead/portal-api/internal/dto"
	"github.com/workstead/portal-api/internal/models"
	appErrors "github.com/workstead/portal-api/pkg/errors"
	"github.com/workstead/portal-api/pkg/response"
)

type bookingService interface {
	Create(ctx context.Context, claims *models.JWTClaims, req dto.CreateBookingRequest) (*models.Booking, error)
	Availability(ctx context.Context, req dto.AvailabilityRequest) (*models.Availability, error)
	Get(ctx context.Context, id string) (*models.Booking, error)
	List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, *models.Pagination, error)
	Update(ctx context.Context, claims *models.JWTClaims, id string, req dto.UpdateBookingRequest) (*models.Booking, error)
	Delete(ctx context.Context, claims *models.JWTClaims, id string) error
	RenderCalendar(ctx context.Context, id string) ([]byte, string, error)
}

// BookingHandler wires HTTP endpoints to the booking service.
type BookingHandler struct {
	service bookingService
}

// NewBookingHandler creates a new handler.
func NewBookingHandler(svc bookingService) *BookingHandler {
	return &BookingHandler{service: svc}
}

// Create godoc
// @Summary Book a room
// @Description Reserve a room for a time range; fails with 409 when the range overlaps an existing booking
// @Tags Bookings
// @Accept json
// @Produce json
// @Param payload body dto.CreateBookingRequest true "Booking payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /bookings [post]
func (h *BookingHandler) Create(c *gin.Context) {
	var req dto.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid booking payload"))
		return
	}

	booking, err := h.service.Create(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, booking)
}

// List godoc
// @Summary List bookings
// @Description List bookings filtered by room, host, department, or time range
// @Tags Bookings
// @Produce json
// @Param roomId query string false "Room ID"
// @Param mine query bool false "Only the caller's bookings"
// @Param from query string false "Range start (RFC3339)"
// @Param to query string false "Range end (RFC3339)"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /bookings [get]
func (h *BookingHandler) List(c *gin.Context) {
	filter, err := bookingFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	bookings, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, bookings, pagination)
}

// Get godoc
// @Summary Get a booking
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /bookings/{id} [get]
func (h *BookingHandler) Get(c *gin.Context) {
	booking, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}

// Update godoc
// @Summary Update a booking
// @Description Change a booking's time range or details; only the host or an admin may update
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param payload body dto.UpdateBookingRequest true "Booking changes"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /bookings/{id} [patch]
func (h *BookingHandler) Update(c *gin.Context) {
	var req dto.UpdateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid booking payload"))
		return
	}

	booking, err := h.service.Update(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, booking, nil)
}

// Delete godoc
// @Summary Cancel a booking
// @Description Cancel a booking, freeing the room for that range; only the host or an admin may cancel
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /bookings/{id} [delete]
func (h *BookingHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), claimsFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Availability godoc
// @Summary Check room availability
// @Description Probe whether a room is free for a time range without creating a booking
// @Tags Bookings
// @Produce json
// @Param id path string true "Room ID"
// @Param start query string true "Range start (RFC3339)"
// @Param end query string true "Range end (RFC3339)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /rooms/{id}/availability [get]
func (h *BookingHandler) Availability(c *gin.Context) {
	start, err := time.Parse(time.RFC3339, c.Query("start"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "start must be an RFC3339 timestamp"))
		return
	}
	end, err := time.Parse(time.RFC3339, c.Query("end"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "end must be an RFC3339 timestamp"))
		return
	}

	availability, err := h.service.Availability(c.Request.Context(), dto.AvailabilityRequest{
		RoomID:    c.Param("id"),
		StartTime: start,
		EndTime:   end,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, availability, nil)
}

// Calendar godoc
// @Summary Export a booking as iCalendar
// @Description Download a booking as a .ics file for external calendar apps
// @Tags Bookings
// @Produce text/calendar
// @Param id path string true "Booking ID"
// @Success 200 {string} string "iCalendar document"
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /bookings/{id}/calendar [get]
func (h *BookingHandler) Calendar(c *gin.Context) {
	content, filename, err := h.service.RenderCalendar(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", content)
}

func bookingFilterFromQuery(c *gin.Context) (models.BookingFilter, error) {
	filter := models.BookingFilter{
		RoomID:     c.Query("roomId"),
		Department: c.Query("department"),
	}

	if c.Query("mine") == "true" {
		if claims := claimsFromContext(c); claims != nil {
			filter.HostID = claims.UserID
		}
	}

	if raw := c.Query("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, appErrors.Clone(appErrors.ErrValidation, "from must be an RFC3339 timestamp")
		}
		filter.From = &from
	}
	if raw := c.Query("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, appErrors.Clone(appErrors.ErrValidation, "to must be an RFC3339 timestamp")
		}
		filter.To = &to
	}

	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("pageSize", "50"))

	return filter, nil
}
