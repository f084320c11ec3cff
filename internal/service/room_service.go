package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/workstead/portal-api/internal/dto"
	"github.com/workstead/portal-api/internal/models"
	appErrors "github.com/workstead/portal-api/pkg/errors"
)

type roomRepository interface {
	List(ctx context.Context, filter models.RoomFilter) ([]models.Room, int, error)
	GetByID(ctx context.Context, id string) (*models.Room, error)
	GetByCode(ctx context.Context, code string) (*models.Room, error)
	Create(ctx context.Context, room *models.Room) error
	Update(ctx context.Context, room *models.Room) error
	Delete(ctx context.Context, id string) error
}

type occupancyReader interface {
	CurrentAndNext(ctx context.Context, roomID string, at time.Time) (current, next *models.Booking, err error)
}

// RoomConfig tunes room listing behaviour.
type RoomConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// RoomService serves the room catalogue and its live occupancy view.
type RoomService struct {
	repo      roomRepository
	bookings  occupancyReader
	audit     auditLogWriter
	validator *validator.Validate
	logger    *zap.Logger
	cache     *CacheService
	config    RoomConfig
}

// NewRoomService constructs a room service.
func NewRoomService(repo roomRepository, bookings occupancyReader, audit auditLogWriter, validate *validator.Validate, logger *zap.Logger, cache *CacheService, config RoomConfig) *RoomService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = time.Minute
	}
	return &RoomService{
		repo:      repo,
		bookings:  bookings,
		audit:     audit,
		validator: validate,
		logger:    logger,
		cache:     cache,
		config:    config,
	}
}

// ListOccupancy returns all matching rooms together with whether each is
// currently booked, the booking occupying it, and the next upcoming booking.
// The occupancy view is short-lived cache material: bookings change often, so
// the TTL is kept to about a minute and every booking write invalidates it.
func (s *RoomService) ListOccupancy(ctx context.Context, filter models.RoomFilter, at time.Time) ([]models.RoomOccupancy, *models.Pagination, bool, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	cacheKey := occupancyCacheKey(filter, at)
	if s.config.CacheEnabled && s.cache.Enabled() {
		var cached occupancyPage
		hit, err := s.cache.Get(ctx, cacheKey, &cached)
		if err != nil {
			s.logger.Warn("occupancy cache read failed", zap.Error(err))
		} else if hit {
			return cached.Rooms, cached.Pagination, true, nil
		}
	}

	rooms, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list rooms")
	}

	occupancies := make([]models.RoomOccupancy, 0, len(rooms))
	for _, room := range rooms {
		current, next, err := s.bookings.CurrentAndNext(ctx, room.ID, at)
		if err != nil {
			return nil, nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve room occupancy")
		}
		occupancies = append(occupancies, models.RoomOccupancy{
			Room:        room,
			Booked:      current != nil,
			Current:     current,
			NextBooking: next,
		})
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	pagination := &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}

	if s.config.CacheEnabled && s.cache.Enabled() {
		if err := s.cache.Set(ctx, cacheKey, occupancyPage{Rooms: occupancies, Pagination: pagination}, s.config.CacheTTL); err != nil {
			s.logger.Warn("occupancy cache write failed", zap.Error(err))
		}
	}

	return occupancies, pagination, false, nil
}

// Get fetches one room.
func (s *RoomService) Get(ctx context.Context, id string) (*models.Room, error) {
	room, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "room not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room")
	}
	return room, nil
}

// Create registers a new room. Admin only; the handler enforces the role.
func (s *RoomService) Create(ctx context.Context, claims *models.JWTClaims, req dto.CreateRoomRequest) (*models.Room, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid room payload")
	}

	if existing, err := s.repo.GetByCode(ctx, req.Code); err == nil && existing != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("room code %s is already in use", req.Code))
	} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check room code")
	}

	room := &models.Room{
		ID:       uuid.NewString(),
		Code:     req.Code,
		Name:     req.Name,
		Capacity: req.Capacity,
		Location: req.Location,
		Active:   true,
	}
	if err := s.repo.Create(ctx, room); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create room")
	}

	s.invalidate(ctx)
	s.recordAudit(ctx, claims, room.ID)

	return room, nil
}

// Update mutates a room's metadata.
func (s *RoomService) Update(ctx context.Context, claims *models.JWTClaims, id string, req dto.UpdateRoomRequest) (*models.Room, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid room payload")
	}

	room, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		room.Name = *req.Name
	}
	if req.Capacity != nil {
		room.Capacity = *req.Capacity
	}
	if req.Location != nil {
		room.Location = *req.Location
	}
	if req.Active != nil {
		room.Active = *req.Active
	}

	if err := s.repo.Update(ctx, room); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update room")
	}

	s.invalidate(ctx)
	s.recordAudit(ctx, claims, room.ID)

	return room, nil
}

// Delete retires a room. Existing bookings are kept for history; the room
// simply stops accepting new ones.
func (s *RoomService) Delete(ctx context.Context, claims *models.JWTClaims, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete room")
	}

	s.invalidate(ctx)
	s.recordAudit(ctx, claims, id)

	return nil
}

type occupancyPage struct {
	Rooms      []models.RoomOccupancy `json:"rooms"`
	Pagination *models.Pagination     `json:"pagination"`
}

// occupancyCacheKey buckets the reference instant to the minute so that
// repeated dashboard polls within the TTL share one entry.
func occupancyCacheKey(filter models.RoomFilter, at time.Time) string {
	active := "all"
	if filter.Active != nil {
		active = fmt.Sprintf("%t", *filter.Active)
	}
	return fmt.Sprintf("rooms:occupancy:%s:%s:%d:%d:%s",
		active, filter.Search, filter.Page, filter.PageSize, at.UTC().Format("200601021504"))
}

func (s *RoomService) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, roomOccupancyCachePattern); err != nil {
		s.logger.Warn("failed to invalidate occupancy cache", zap.Error(err))
	}
}

func (s *RoomService) recordAudit(ctx context.Context, claims *models.JWTClaims, roomID string) {
	if s.audit == nil || claims == nil {
		return
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &claims.UserID,
		Action:     models.AuditActionRoomWrite,
		Resource:   "room",
		ResourceID: &roomID,
	}); err != nil {
		s.logger.Warn("failed to record room audit log", zap.Error(err))
	}
}
