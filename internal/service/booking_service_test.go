package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workstead/portal-api/internal/dto"
	"github.com/workstead/portal-api/internal/models"
	"github.com/workstead/portal-api/internal/repository"
	appErrors "github.com/workstead/portal-api/pkg/errors"
	"github.com/workstead/portal-api/pkg/jobs"
)

type bookingRepoStub struct {
	created     []*models.Booking
	updated     []*models.Booking
	deleted     []string
	conflict    *models.Booking
	createErr   error
	bookings    map[string]*models.Booking
	overlap     *models.Booking
	overlapErr  error
	listItems   []models.Booking
	listTotal   int
	listErr     error
}

func (s *bookingRepoStub) Create(ctx context.Context, booking *models.Booking) (*models.Booking, error) {
	if s.createErr != nil {
		return s.conflict, s.createErr
	}
	s.created = append(s.created, booking)
	return nil, nil
}

func (s *bookingRepoStub) Update(ctx context.Context, booking *models.Booking) (*models.Booking, error) {
	if s.createErr != nil {
		return s.conflict, s.createErr
	}
	s.updated = append(s.updated, booking)
	return nil, nil
}

func (s *bookingRepoStub) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	if b, ok := s.bookings[id]; ok {
		return b, nil
	}
	return nil, sql.ErrNoRows
}

func (s *bookingRepoStub) Delete(ctx context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *bookingRepoStub) FindOverlap(ctx context.Context, roomID string, start, end time.Time) (*models.Booking, error) {
	return s.overlap, s.overlapErr
}

func (s *bookingRepoStub) List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, int, error) {
	return s.listItems, s.listTotal, s.listErr
}

type roomReaderStub struct {
	rooms map[string]*models.Room
}

func (s roomReaderStub) GetByID(ctx context.Context, id string) (*models.Room, error) {
	if room, ok := s.rooms[id]; ok {
		return room, nil
	}
	return nil, sql.ErrNoRows
}

type auditStub struct {
	logs []*models.AuditLog
}

func (s *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.logs = append(s.logs, log)
	return nil
}

type enqueuerStub struct {
	jobs []jobs.Job
	err  error
}

func (s *enqueuerStub) Enqueue(job jobs.Job) error {
	if s.err != nil {
		return s.err
	}
	s.jobs = append(s.jobs, job)
	return nil
}

func employeeClaims() *models.JWTClaims {
	return &models.JWTClaims{
		UserID:      "user-1",
		Role:        models.RoleEmployee,
		Email:       "priya@corp.example",
		FullName:    "Priya Nair",
		Designation: "Engineer",
	}
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin, FullName: "Site Admin"}
}

func activeRoom() *models.Room {
	return &models.Room{ID: "room-1", Code: "CR-01", Name: "Board Room", Capacity: 10, Active: true}
}

func newTestBookingService(repo *bookingRepoStub, rooms roomReaderStub, audit *auditStub, notifier *enqueuerStub) *BookingService {
	return NewBookingService(repo, rooms, audit, nil, nil, nil, nil, notifier, BookingConfig{DefaultCapacity: 20})
}

func TestBookingServiceCreate(t *testing.T) {
	repo := &bookingRepoStub{}
	audit := &auditStub{}
	notifier := &enqueuerStub{}
	svc := newTestBookingService(repo, roomReaderStub{rooms: map[string]*models.Room{"room-1": activeRoom()}}, audit, notifier)

	start := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Minute)
	booking, err := svc.Create(context.Background(), employeeClaims(), dto.CreateBookingRequest{
		RoomID:    "room-1",
		StartTime: start,
		EndTime:   start.Add(time.Hour),
		Topic:     "Sprint planning",
		Attendees: 6,
	})
	require.NoError(t, err)
	require.NotNil(t, booking)

	assert.Equal(t, "user-1", booking.HostID)
	assert.Equal(t, "Priya Nair", booking.HostName)
	assert.Equal(t, "Engineer", booking.HostDesignation)
	require.Len(t, repo.created, 1)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionBookingCreate, audit.logs[0].Action)
	require.Len(t, notifier.jobs, 1)
	assert.Equal(t, "booking_created", notifier.jobs[0].Type)
}

func TestBookingServiceCreateConflict(t *testing.T) {
	winner := &models.Booking{
		ID:        "booking-9",
		RoomID:    "room-1",
		StartTime: time.Now().UTC().Add(24 * time.Hour),
		EndTime:   time.Now().UTC().Add(25 * time.Hour),
		HostName:  "Arif Rahman",
	}
	repo := &bookingRepoStub{conflict: winner, createErr: repository.ErrBookingConflict}
	svc := newTestBookingService(repo, roomReaderStub{rooms: map[string]*models.Room{"room-1": activeRoom()}}, &auditStub{}, &enqueuerStub{})

	start := time.Now().UTC().Add(24 * time.Hour)
	_, err := svc.Create(context.Background(), employeeClaims(), dto.CreateBookingRequest{
		RoomID:    "room-1",
		StartTime: start,
		EndTime:   start.Add(time.Hour),
		Topic:     "Clash",
	})
	require.Error(t, err)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "Arif Rahman")
}

func TestBookingServiceCreateRejectsInvertedRange(t *testing.T) {
	svc := newTestBookingService(&bookingRepoStub{}, roomReaderStub{rooms: map[string]*models.Room{"room-1": activeRoom()}}, &auditStub{}, &enqueuerStub{})

	start := time.Now().UTC().Add(24 * time.Hour)
	_, err := svc.Create(context.Background(), employeeClaims(), dto.CreateBookingRequest{
		RoomID:    "room-1",
		StartTime: start,
		EndTime:   start.Add(-time.Hour),
		Topic:     "Backwards",
	})
	require.Error(t, err)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestBookingServiceCreateRejectsPastStart(t *testing.T) {
	svc := newTestBookingService(&bookingRepoStub{}, roomReaderStub{rooms: map[string]*models.Room{"room-1": activeRoom()}}, &auditStub{}, &enqueuerStub{})

	start := time.Now().UTC().Add(-2 * time.Hour)
	_, err := svc.Create(context.Background(), employeeClaims(), dto.CreateBookingRequest{
		RoomID:    "room-1",
		StartTime: start,
		EndTime:   start.Add(time.Hour),
		Topic:     "Too late",
	})
	require.Error(t, err)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "past")
}

func TestBookingServiceCreateCapacityExceeded(t *testing.T) {
	svc := newTestBookingService(&bookingRepoStub{}, roomReaderStub{rooms: map[string]*models.Room{"room-1": activeRoom()}}, &auditStub{}, &enqueuerStub{})

	start := time.Now().UTC().Add(24 * time.Hour)
	_, err := svc.Create(context.Background(), employeeClaims(), dto.CreateBookingRequest{
		RoomID:    "room-1",
		StartTime: start,
		EndTime:   start.Add(time.Hour),
		Topic:     "Town hall",
		Attendees: 50,
	})
	require.Error(t, err)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrCapacityExceeded.Code, appErr.Code)
}

func TestBookingServiceCreateInactiveRoom(t *testing.T) {
	room := activeRoom()
	room.Active = false
	svc := newTestBookingService(&bookingRepoStub{}, roomReaderStub{rooms: map[string]*models.Room{"room-1": room}}, &auditStub{}, &enqueuerStub{})

	start := time.Now().UTC().Add(24 * time.Hour)
	_, err := svc.Create(context.Background(), employeeClaims(), dto.CreateBookingRequest{
		RoomID:    "room-1",
		StartTime: start,
		EndTime:   start.Add(time.Hour),
		Topic:     "Ghost room",
	})
	require.Error(t, err)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestBookingServiceUpdateForbiddenForOtherEmployee(t *testing.T) {
	start := time.Now().UTC().Add(24 * time.Hour)
	existing := &models.Booking{ID: "booking-1", RoomID: "room-1", HostID: "user-2", StartTime: start, EndTime: start.Add(time.Hour)}
	repo := &bookingRepoStub{bookings: map[string]*models.Booking{"booking-1": existing}}
	svc := newTestBookingService(repo, roomReaderStub{rooms: map[string]*models.Room{"room-1": activeRoom()}}, &auditStub{}, &enqueuerStub{})

	newTopic := "Hijacked"
	_, err := svc.Update(context.Background(), employeeClaims(), "booking-1", dto.UpdateBookingRequest{Topic: &newTopic})
	require.Error(t, err)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
	assert.Empty(t, repo.updated)
}

func TestBookingServiceUpdateAllowsAdmin(t *testing.T) {
	start := time.Now().UTC().Add(24 * time.Hour)
	existing := &models.Booking{ID: "booking-1", RoomID: "room-1", HostID: "user-2", StartTime: start, EndTime: start.Add(time.Hour), Attendees: 4}
	repo := &bookingRepoStub{bookings: map[string]*models.Booking{"booking-1": existing}}
	svc := newTestBookingService(repo, roomReaderStub{rooms: map[string]*models.Room{"room-1": activeRoom()}}, &auditStub{}, &enqueuerStub{})

	newTopic := "Rescheduled"
	updated, err := svc.Update(context.Background(), adminClaims(), "booking-1", dto.UpdateBookingRequest{Topic: &newTopic})
	require.NoError(t, err)
	assert.Equal(t, "Rescheduled", updated.Topic)
	require.Len(t, repo.updated, 1)
}

func TestBookingServiceDeleteByHost(t *testing.T) {
	start := time.Now().UTC().Add(24 * time.Hour)
	existing := &models.Booking{ID: "booking-1", RoomID: "room-1", HostID: "user-1", StartTime: start, EndTime: start.Add(time.Hour)}
	repo := &bookingRepoStub{bookings: map[string]*models.Booking{"booking-1": existing}}
	audit := &auditStub{}
	notifier := &enqueuerStub{}
	svc := newTestBookingService(repo, roomReaderStub{rooms: map[string]*models.Room{"room-1": activeRoom()}}, audit, notifier)

	err := svc.Delete(context.Background(), employeeClaims(), "booking-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"booking-1"}, repo.deleted)
	require.Len(t, notifier.jobs, 1)
	assert.Equal(t, "booking_cancelled", notifier.jobs[0].Type)
}

func TestBookingServiceAvailability(t *testing.T) {
	start := time.Now().UTC().Add(24 * time.Hour)
	busy := &models.Booking{ID: "booking-1", RoomID: "room-1", StartTime: start, EndTime: start.Add(time.Hour), HostName: "Arif Rahman"}
	repo := &bookingRepoStub{overlap: busy}
	svc := newTestBookingService(repo, roomReaderStub{rooms: map[string]*models.Room{"room-1": activeRoom()}}, &auditStub{}, &enqueuerStub{})

	availability, err := svc.Availability(context.Background(), dto.AvailabilityRequest{
		RoomID:    "room-1",
		StartTime: start.Add(30 * time.Minute),
		EndTime:   start.Add(90 * time.Minute),
	})
	require.NoError(t, err)
	assert.False(t, availability.Available)
	require.NotNil(t, availability.Conflict)
	assert.Equal(t, "booking-1", availability.Conflict.ID)

	repo.overlap = nil
	availability, err = svc.Availability(context.Background(), dto.AvailabilityRequest{
		RoomID:    "room-1",
		StartTime: start.Add(2 * time.Hour),
		EndTime:   start.Add(3 * time.Hour),
	})
	require.NoError(t, err)
	assert.True(t, availability.Available)
	assert.Nil(t, availability.Conflict)
}

// scheduleRepoStub keeps created bookings and enforces the overlap rule the
// way the real repository's transaction does, so sequential flows can be
// exercised through the service.
type scheduleRepoStub struct {
	bookingRepoStub
}

func (s *scheduleRepoStub) Create(ctx context.Context, booking *models.Booking) (*models.Booking, error) {
	if s.bookings == nil {
		s.bookings = make(map[string]*models.Booking)
	}
	for _, existing := range s.bookings {
		if existing.RoomID == booking.RoomID && existing.Overlaps(booking.StartTime, booking.EndTime) {
			return existing, repository.ErrBookingConflict
		}
	}
	s.bookings[booking.ID] = booking
	s.created = append(s.created, booking)
	return nil, nil
}

func (s *scheduleRepoStub) Delete(ctx context.Context, id string) error {
	delete(s.bookings, id)
	s.deleted = append(s.deleted, id)
	return nil
}

func TestBookingServiceSequentialBookings(t *testing.T) {
	repo := &scheduleRepoStub{}
	svc := NewBookingService(repo, roomReaderStub{rooms: map[string]*models.Room{"room-1": activeRoom()}}, &auditStub{}, nil, nil, nil, nil, &enqueuerStub{}, BookingConfig{DefaultCapacity: 20})

	day := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Hour)
	at := func(h, m int) time.Time { return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }

	first, err := svc.Create(context.Background(), employeeClaims(), dto.CreateBookingRequest{
		RoomID:    "room-1",
		StartTime: at(14, 0),
		EndTime:   at(15, 0),
		Topic:     "Standup",
		Attendees: 10,
	})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), employeeClaims(), dto.CreateBookingRequest{
		RoomID:    "room-1",
		StartTime: at(14, 30),
		EndTime:   at(15, 30),
		Topic:     "Clash",
	})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)

	// a back-to-back booking is not an overlap
	_, err = svc.Create(context.Background(), employeeClaims(), dto.CreateBookingRequest{
		RoomID:    "room-1",
		StartTime: at(15, 0),
		EndTime:   at(16, 0),
		Topic:     "Retro",
	})
	require.NoError(t, err)

	// cancelling frees the interval for a new booking
	require.NoError(t, svc.Delete(context.Background(), employeeClaims(), first.ID))
	_, err = svc.Create(context.Background(), employeeClaims(), dto.CreateBookingRequest{
		RoomID:    "room-1",
		StartTime: at(14, 15),
		EndTime:   at(14, 45),
		Topic:     "Replacement",
	})
	require.NoError(t, err)
}

func TestBookingServiceRenderCalendar(t *testing.T) {
	start := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	existing := &models.Booking{
		ID:        "booking-1",
		RoomID:    "room-1",
		HostID:    "user-1",
		HostName:  "Priya Nair",
		Topic:     "Budget, planning; kickoff",
		StartTime: start,
		EndTime:   start.Add(time.Hour),
	}
	repo := &bookingRepoStub{bookings: map[string]*models.Booking{"booking-1": existing}}
	svc := newTestBookingService(repo, roomReaderStub{rooms: map[string]*models.Room{"room-1": activeRoom()}}, &auditStub{}, &enqueuerStub{})

	content, filename, err := svc.RenderCalendar(context.Background(), "booking-1")
	require.NoError(t, err)
	assert.Equal(t, "booking-booking-1.ics", filename)

	ics := string(content)
	assert.True(t, strings.HasPrefix(ics, "BEGIN:VCALENDAR\r\n"))
	assert.Contains(t, ics, "DTSTART:20250314T090000Z")
	assert.Contains(t, ics, "DTEND:20250314T100000Z")
	assert.Contains(t, ics, `SUMMARY:Budget\, planning\; kickoff`)
	assert.Contains(t, ics, "END:VEVENT")
}
