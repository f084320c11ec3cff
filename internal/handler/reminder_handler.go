package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/workstead/portal-api/internal/dto"
	"github.com/workstead/portal-api/internal/models"
	appErrors "github.com/workstead/portal-api/pkg/errors"
	"github.com/workstead/portal-api/pkg/response"
)

type reminderService interface {
	List(ctx context.Context, claims *models.JWTClaims) ([]dto.ReminderItem, error)
	Create(ctx context.Context, claims *models.JWTClaims, req dto.CreateReminderRequest) (*dto.ReminderItem, error)
	Update(ctx context.Context, claims *models.JWTClaims, id string, req dto.UpdateReminderRequest) (*dto.ReminderItem, error)
	Delete(ctx context.Context, claims *models.JWTClaims, id string) error
}

// ReminderHandler wires HTTP endpoints to the reminder service.
type ReminderHandler struct {
	service reminderService
}

// NewReminderHandler creates a new handler.
func NewReminderHandler(svc reminderService) *ReminderHandler {
	return &ReminderHandler{service: svc}
}

// List godoc
// @Summary List my reminders
// @Description List the caller's reminders ordered by date, each with its highlight color
// @Tags Reminders
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /reminders [get]
func (h *ReminderHandler) List(c *gin.Context) {
	items, err := h.service.List(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Create godoc
// @Summary Create a reminder
// @Description Attach a reminder to a date; each user gets at most one reminder per date
// @Tags Reminders
// @Accept json
// @Produce json
// @Param payload body dto.CreateReminderRequest true "Reminder payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /reminders [post]
func (h *ReminderHandler) Create(c *gin.Context) {
	var req dto.CreateReminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid reminder payload"))
		return
	}

	item, err := h.service.Create(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, item)
}

// Update godoc
// @Summary Update a reminder
// @Description Change a reminder's plans, time, importance, or people; the date is immutable
// @Tags Reminders
// @Accept json
// @Produce json
// @Param id path string true "Reminder ID"
// @Param payload body dto.UpdateReminderRequest true "Reminder changes"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /reminders/{id} [patch]
func (h *ReminderHandler) Update(c *gin.Context) {
	var req dto.UpdateReminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid reminder payload"))
		return
	}

	item, err := h.service.Update(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, item, nil)
}

// Delete godoc
// @Summary Delete a reminder
// @Description Remove a reminder, freeing its date for a new one
// @Tags Reminders
// @Produce json
// @Param id path string true "Reminder ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /reminders/{id} [delete]
func (h *ReminderHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), claimsFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
