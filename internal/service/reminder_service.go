package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/workstead/portal-api/internal/dto"
	"github.com/workstead/portal-api/internal/models"
	"github.com/workstead/portal-api/internal/repository"
	appErrors "github.com/workstead/portal-api/pkg/errors"
)

const reminderDateLayout = "2006-01-02"

type reminderRepository interface {
	ListByOwner(ctx context.Context, ownerID string) ([]models.Reminder, error)
	GetByID(ctx context.Context, id string) (*models.Reminder, error)
	Create(ctx context.Context, reminder *models.Reminder) error
	Update(ctx context.Context, reminder *models.Reminder) error
	Delete(ctx context.Context, id string) error
}

// ReminderService manages personal calendar reminders. Every operation is
// scoped to the authenticated owner; no user ever sees another's reminders.
type ReminderService struct {
	repo      reminderRepository
	audit     auditLogWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewReminderService constructs a reminder service.
func NewReminderService(repo reminderRepository, audit auditLogWriter, validate *validator.Validate, logger *zap.Logger) *ReminderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ReminderService{repo: repo, audit: audit, validator: validate, logger: logger}
}

// List returns the owner's reminders ordered by date, each with its derived
// highlight color.
func (s *ReminderService) List(ctx context.Context, claims *models.JWTClaims) ([]dto.ReminderItem, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	reminders, err := s.repo.ListByOwner(ctx, claims.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reminders")
	}
	items := make([]dto.ReminderItem, 0, len(reminders))
	for _, r := range reminders {
		items = append(items, toReminderItem(r))
	}
	return items, nil
}

// Create attaches a reminder to a date. Each owner gets at most one reminder
// per date; the second write for the same date gets CONFLICT regardless of
// which client raced it there.
func (s *ReminderService) Create(ctx context.Context, claims *models.JWTClaims, req dto.CreateReminderRequest) (*dto.ReminderItem, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reminder payload")
	}
	date, err := time.ParseInLocation(reminderDateLayout, req.Date, time.UTC)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date must be formatted as YYYY-MM-DD")
	}

	reminder := &models.Reminder{
		ID:               uuid.NewString(),
		OwnerID:          claims.UserID,
		Date:             date,
		Plans:            req.Plans,
		Time:             req.Time,
		Importance:       models.ReminderImportance(req.Importance),
		AssociatedPeople: req.AssociatedPeople,
	}
	if err := s.repo.Create(ctx, reminder); err != nil {
		if errors.Is(err, repository.ErrDuplicateReminder) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "a reminder already exists for this date")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create reminder")
	}

	s.recordAudit(ctx, claims, reminder.ID)

	item := toReminderItem(*reminder)
	return &item, nil
}

// Update mutates a reminder's content. The date is fixed at creation; to move
// a reminder to another day, delete and recreate it.
func (s *ReminderService) Update(ctx context.Context, claims *models.JWTClaims, id string, req dto.UpdateReminderRequest) (*dto.ReminderItem, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reminder payload")
	}

	reminder, err := s.load(ctx, claims, id)
	if err != nil {
		return nil, err
	}
	if req.Plans != nil {
		reminder.Plans = *req.Plans
	}
	if req.Time != nil {
		reminder.Time = *req.Time
	}
	if req.Importance != nil {
		reminder.Importance = models.ReminderImportance(*req.Importance)
	}
	if req.AssociatedPeople != nil {
		reminder.AssociatedPeople = *req.AssociatedPeople
	}

	if err := s.repo.Update(ctx, reminder); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update reminder")
	}

	s.recordAudit(ctx, claims, reminder.ID)

	item := toReminderItem(*reminder)
	return &item, nil
}

// Delete removes a reminder, freeing its date for a new one.
func (s *ReminderService) Delete(ctx context.Context, claims *models.JWTClaims, id string) error {
	if claims == nil {
		return appErrors.ErrUnauthorized
	}
	reminder, err := s.load(ctx, claims, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, reminder.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete reminder")
	}

	s.recordAudit(ctx, claims, reminder.ID)

	return nil
}

// load fetches a reminder and verifies the caller owns it.
func (s *ReminderService) load(ctx context.Context, claims *models.JWTClaims, id string) (*models.Reminder, error) {
	reminder, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "reminder not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reminder")
	}
	if reminder.OwnerID != claims.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "reminder belongs to another user")
	}
	return reminder, nil
}

func (s *ReminderService) recordAudit(ctx context.Context, claims *models.JWTClaims, reminderID string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &claims.UserID,
		Action:     models.AuditActionReminderWrite,
		Resource:   "reminder",
		ResourceID: &reminderID,
	}); err != nil {
		s.logger.Warn("failed to record reminder audit log", zap.Error(err))
	}
}

func toReminderItem(r models.Reminder) dto.ReminderItem {
	return dto.ReminderItem{
		ID:               r.ID,
		Date:             r.Date.Format(reminderDateLayout),
		Plans:            r.Plans,
		Time:             r.Time,
		Importance:       string(r.Importance),
		AssociatedPeople: r.AssociatedPeople,
		Color:            models.HighlightColor(r.Importance),
	}
}
