package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/workstead/portal-api/internal/dto"
	"github.com/workstead/portal-api/internal/models"
	"github.com/workstead/portal-api/internal/repository"
	appErrors "github.com/workstead/portal-api/pkg/errors"
	"github.com/workstead/portal-api/pkg/jobs"
)

// roomOccupancyCachePattern matches every cached room-occupancy payload.
const roomOccupancyCachePattern = "rooms:occupancy:*"

type bookingRepository interface {
	Create(ctx context.Context, booking *models.Booking) (*models.Booking, error)
	Update(ctx context.Context, booking *models.Booking) (*models.Booking, error)
	GetByID(ctx context.Context, id string) (*models.Booking, error)
	Delete(ctx context.Context, id string) error
	FindOverlap(ctx context.Context, roomID string, start, end time.Time) (*models.Booking, error)
	List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, int, error)
}

type bookingRoomReader interface {
	GetByID(ctx context.Context, id string) (*models.Room, error)
}

type auditLogWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// BookingNotification is the payload handed to the notification queue when a
// booking is created or cancelled.
type BookingNotification struct {
	BookingID string
	RoomID    string
	HostName  string
	Topic     string
	StartTime time.Time
	EndTime   time.Time
	Event     string
}

// BookingConfig tunes booking validation behaviour.
type BookingConfig struct {
	DefaultCapacity int
	AllowPastStart  bool
}

// BookingService implements the availability checker and booking writer.
type BookingService struct {
	repo      bookingRepository
	rooms     bookingRoomReader
	audit     auditLogWriter
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
	cache     *CacheService
	notifier  jobEnqueuer
	config    BookingConfig
}

// NewBookingService constructs a booking service.
func NewBookingService(repo bookingRepository, rooms bookingRoomReader, audit auditLogWriter, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService, cache *CacheService, notifier jobEnqueuer, config BookingConfig) *BookingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.DefaultCapacity <= 0 {
		config.DefaultCapacity = 20
	}
	return &BookingService{
		repo:      repo,
		rooms:     rooms,
		audit:     audit,
		validator: validate,
		logger:    logger,
		metrics:   metrics,
		cache:     cache,
		notifier:  notifier,
		config:    config,
	}
}

// Create reserves a room for the host identified by the claims. The overlap
// check and the write are atomic in the repository; a losing concurrent
// request gets CONFLICT, never a silent overwrite.
func (s *BookingService) Create(ctx context.Context, claims *models.JWTClaims, req dto.CreateBookingRequest) (*models.Booking, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		s.metrics.RecordBookingOutcome("rejected")
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking payload")
	}
	if err := s.validateRange(req.StartTime, req.EndTime); err != nil {
		s.metrics.RecordBookingOutcome("rejected")
		return nil, err
	}

	room, err := s.loadRoom(ctx, req.RoomID)
	if err != nil {
		s.metrics.RecordBookingOutcome("rejected")
		return nil, err
	}
	if err := s.checkCapacity(room, req.Attendees); err != nil {
		s.metrics.RecordBookingOutcome("rejected")
		return nil, err
	}

	booking := &models.Booking{
		ID:              uuid.NewString(),
		RoomID:          room.ID,
		StartTime:       req.StartTime.UTC(),
		EndTime:         req.EndTime.UTC(),
		Topic:           req.Topic,
		Department:      req.Department,
		HostID:          claims.UserID,
		HostName:        claims.FullName,
		HostDesignation: claims.Designation,
		Attendees:       req.Attendees,
	}

	start := time.Now()
	conflict, err := s.repo.Create(ctx, booking)
	s.metrics.ObserveDBQuery("booking_create", time.Since(start))
	if err != nil {
		if errors.Is(err, repository.ErrBookingConflict) {
			s.metrics.RecordBookingOutcome("conflict")
			return nil, conflictError(room.Code, conflict)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create booking")
	}
	s.metrics.RecordBookingOutcome("created")

	s.invalidateOccupancy(ctx)
	s.recordAudit(ctx, claims, models.AuditActionBookingCreate, booking.ID, booking)
	s.notify(booking, "created")

	return booking, nil
}

// Availability answers "is the room free for [start, end)?", returning the
// conflicting booking's details when it is not.
func (s *BookingService) Availability(ctx context.Context, req dto.AvailabilityRequest) (*models.Availability, error) {
	if req.RoomID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "room id is required")
	}
	if err := s.validateRange(req.StartTime, req.EndTime); err != nil {
		return nil, err
	}
	room, err := s.loadRoom(ctx, req.RoomID)
	if err != nil {
		return nil, err
	}

	conflict, err := s.repo.FindOverlap(ctx, room.ID, req.StartTime.UTC(), req.EndTime.UTC())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check availability")
	}

	return &models.Availability{
		RoomID:    room.ID,
		Available: conflict == nil,
		Conflict:  conflict,
	}, nil
}

// Get fetches one booking.
func (s *BookingService) Get(ctx context.Context, id string) (*models.Booking, error) {
	booking, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "booking not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booking")
	}
	return booking, nil
}

// List returns bookings matching the filter.
func (s *BookingService) List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, *models.Pagination, error) {
	bookings, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list bookings")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	return bookings, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Update mutates a booking. Only the original host or an admin may do so.
func (s *BookingService) Update(ctx context.Context, claims *models.JWTClaims, id string, req dto.UpdateBookingRequest) (*models.Booking, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking payload")
	}

	booking, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeHost(claims, booking.HostID); err != nil {
		return nil, err
	}

	if req.StartTime != nil {
		booking.StartTime = req.StartTime.UTC()
	}
	if req.EndTime != nil {
		booking.EndTime = req.EndTime.UTC()
	}
	if req.Topic != nil {
		booking.Topic = *req.Topic
	}
	if req.Department != nil {
		booking.Department = *req.Department
	}
	if req.Attendees != nil {
		booking.Attendees = *req.Attendees
	}

	if err := s.validateRange(booking.StartTime, booking.EndTime); err != nil {
		return nil, err
	}
	room, err := s.loadRoom(ctx, booking.RoomID)
	if err != nil {
		return nil, err
	}
	if err := s.checkCapacity(room, booking.Attendees); err != nil {
		return nil, err
	}

	conflict, err := s.repo.Update(ctx, booking)
	if err != nil {
		if errors.Is(err, repository.ErrBookingConflict) {
			return nil, conflictError(room.Code, conflict)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update booking")
	}

	s.invalidateOccupancy(ctx)
	s.recordAudit(ctx, claims, models.AuditActionBookingUpdate, booking.ID, booking)

	return booking, nil
}

// Delete cancels a booking, reverting the room to available for that range.
func (s *BookingService) Delete(ctx context.Context, claims *models.JWTClaims, id string) error {
	if claims == nil {
		return appErrors.ErrUnauthorized
	}
	booking, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := authorizeHost(claims, booking.HostID); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete booking")
	}

	s.invalidateOccupancy(ctx)
	s.recordAudit(ctx, claims, models.AuditActionBookingDelete, booking.ID, nil)
	s.notify(booking, "cancelled")

	return nil
}

// RenderCalendar produces a read-only iCalendar export for one booking,
// suitable for "add to external calendar" links. This is a plain export, not
// a write-back integration.
func (s *BookingService) RenderCalendar(ctx context.Context, id string) ([]byte, string, error) {
	booking, err := s.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}

	var b strings.Builder
	writeLine := func(line string) {
		b.WriteString(line)
		b.WriteString("\r\n")
	}
	const stampLayout = "20060102T150405Z"

	writeLine("BEGIN:VCALENDAR")
	writeLine("VERSION:2.0")
	writeLine("PRODID:-//workstead//portal-api//EN")
	writeLine("BEGIN:VEVENT")
	writeLine("UID:" + booking.ID + "@portal-api")
	writeLine("DTSTAMP:" + time.Now().UTC().Format(stampLayout))
	writeLine("DTSTART:" + booking.StartTime.UTC().Format(stampLayout))
	writeLine("DTEND:" + booking.EndTime.UTC().Format(stampLayout))
	writeLine("SUMMARY:" + escapeICalText(booking.Topic))
	writeLine("LOCATION:" + escapeICalText(booking.RoomID))
	writeLine("ORGANIZER;CN=" + escapeICalText(booking.HostName) + ":MAILTO:noreply@portal")
	writeLine("END:VEVENT")
	writeLine("END:VCALENDAR")

	filename := fmt.Sprintf("booking-%s.ics", booking.ID)
	return []byte(b.String()), filename, nil
}

func (s *BookingService) validateRange(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return appErrors.Clone(appErrors.ErrValidation, "start and end times are required")
	}
	if !end.After(start) {
		return appErrors.Clone(appErrors.ErrValidation, "end time must be after start time")
	}
	if !s.config.AllowPastStart && start.Before(time.Now().UTC()) {
		return appErrors.Clone(appErrors.ErrValidation, "booking cannot start in the past")
	}
	return nil
}

func (s *BookingService) checkCapacity(room *models.Room, attendees int) error {
	capacity := room.Capacity
	if capacity <= 0 {
		capacity = s.config.DefaultCapacity
	}
	if attendees > capacity {
		return appErrors.Clone(appErrors.ErrCapacityExceeded, fmt.Sprintf("room %s holds at most %d attendees", room.Code, capacity))
	}
	return nil
}

func (s *BookingService) loadRoom(ctx context.Context, roomID string) (*models.Room, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "room not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room")
	}
	if !room.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "room is not available for booking")
	}
	return room, nil
}

func (s *BookingService) invalidateOccupancy(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, roomOccupancyCachePattern); err != nil {
		s.logger.Warn("failed to invalidate occupancy cache", zap.Error(err))
	}
}

func (s *BookingService) recordAudit(ctx context.Context, claims *models.JWTClaims, action, resourceID string, booking *models.Booking) {
	if s.audit == nil {
		return
	}
	var values []byte
	if booking != nil {
		values = []byte(fmt.Sprintf(`{"room_id":%q,"start":%q,"end":%q}`, booking.RoomID, booking.StartTime.Format(time.RFC3339), booking.EndTime.Format(time.RFC3339)))
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &claims.UserID,
		Action:     action,
		Resource:   "booking",
		ResourceID: &resourceID,
		NewValues:  values,
	}); err != nil {
		s.logger.Warn("failed to record booking audit log", zap.Error(err))
	}
}

func (s *BookingService) notify(booking *models.Booking, event string) {
	if s.notifier == nil {
		return
	}
	job := jobs.Job{
		ID:   uuid.NewString(),
		Type: "booking_" + event,
		Payload: BookingNotification{
			BookingID: booking.ID,
			RoomID:    booking.RoomID,
			HostName:  booking.HostName,
			Topic:     booking.Topic,
			StartTime: booking.StartTime,
			EndTime:   booking.EndTime,
			Event:     event,
		},
	}
	if err := s.notifier.Enqueue(job); err != nil {
		s.logger.Warn("failed to enqueue booking notification", zap.Error(err))
	}
}

// NotificationHandler returns the queue handler that delivers booking
// notifications. Delivery is currently a structured log line; the payload
// already carries everything a mail or chat channel would need.
func NotificationHandler(logger *zap.Logger) jobs.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, job jobs.Job) error {
		notification, ok := job.Payload.(BookingNotification)
		if !ok {
			logger.Error("notification queue received unexpected payload", zap.String("job_id", job.ID))
			return nil
		}
		logger.Info("booking notification",
			zap.String("event", notification.Event),
			zap.String("booking_id", notification.BookingID),
			zap.String("room_id", notification.RoomID),
			zap.String("host", notification.HostName),
			zap.Time("start", notification.StartTime),
			zap.Time("end", notification.EndTime))
		return nil
	}
}

func authorizeHost(claims *models.JWTClaims, hostID string) error {
	if claims.Role == models.RoleAdmin {
		return nil
	}
	if claims.UserID != hostID {
		return appErrors.Clone(appErrors.ErrForbidden, "only the host or an admin may modify this booking")
	}
	return nil
}

func conflictError(roomCode string, conflict *models.Booking) error {
	if conflict == nil {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("room %s is already booked for the requested time", roomCode))
	}
	return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf(
		"room %s is already booked from %s to %s by %s",
		roomCode,
		conflict.StartTime.Format(time.RFC3339),
		conflict.EndTime.Format(time.RFC3339),
		conflict.HostName,
	))
}

func escapeICalText(raw string) string {
	replacer := strings.NewReplacer("\\", "\\\\", ";", "\\;", ",", "\\,", "\n", "\\n")
	return replacer.Replace(raw)
}
