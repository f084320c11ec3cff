package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workstead/portal-api/internal/dto"
	"github.com/workstead/portal-api/internal/models"
	appErrors "github.com/workstead/portal-api/pkg/errors"
)

type roomRepoStub struct {
	rooms   []models.Room
	byID    map[string]*models.Room
	byCode  map[string]*models.Room
	created []*models.Room
	updated []*models.Room
	deleted []string
}

func (s *roomRepoStub) List(ctx context.Context, filter models.RoomFilter) ([]models.Room, int, error) {
	return s.rooms, len(s.rooms), nil
}

func (s *roomRepoStub) GetByID(ctx context.Context, id string) (*models.Room, error) {
	if room, ok := s.byID[id]; ok {
		return room, nil
	}
	return nil, sql.ErrNoRows
}

func (s *roomRepoStub) GetByCode(ctx context.Context, code string) (*models.Room, error) {
	if room, ok := s.byCode[code]; ok {
		return room, nil
	}
	return nil, sql.ErrNoRows
}

func (s *roomRepoStub) Create(ctx context.Context, room *models.Room) error {
	s.created = append(s.created, room)
	return nil
}

func (s *roomRepoStub) Update(ctx context.Context, room *models.Room) error {
	s.updated = append(s.updated, room)
	return nil
}

func (s *roomRepoStub) Delete(ctx context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

type occupancyStub struct {
	current map[string]*models.Booking
	next    map[string]*models.Booking
}

func (s occupancyStub) CurrentAndNext(ctx context.Context, roomID string, at time.Time) (*models.Booking, *models.Booking, error) {
	return s.current[roomID], s.next[roomID], nil
}

func TestRoomServiceListOccupancy(t *testing.T) {
	at := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	repo := &roomRepoStub{rooms: []models.Room{
		{ID: "room-1", Code: "CR-01", Name: "Board Room", Active: true},
		{ID: "room-2", Code: "CR-02", Name: "Huddle", Active: true},
	}}
	bookings := occupancyStub{
		current: map[string]*models.Booking{
			"room-1": {ID: "booking-1", RoomID: "room-1", StartTime: at.Add(-time.Hour), EndTime: at.Add(time.Hour)},
		},
		next: map[string]*models.Booking{
			"room-2": {ID: "booking-2", RoomID: "room-2", StartTime: at.Add(2 * time.Hour), EndTime: at.Add(3 * time.Hour)},
		},
	}
	svc := NewRoomService(repo, bookings, &auditStub{}, nil, nil, nil, RoomConfig{})

	occupancies, pagination, cacheHit, err := svc.ListOccupancy(context.Background(), models.RoomFilter{}, at)
	require.NoError(t, err)
	require.Len(t, occupancies, 2)
	assert.False(t, cacheHit)
	assert.Equal(t, 2, pagination.TotalCount)

	assert.True(t, occupancies[0].Booked)
	require.NotNil(t, occupancies[0].Current)
	assert.Equal(t, "booking-1", occupancies[0].Current.ID)
	assert.Nil(t, occupancies[0].NextBooking)

	assert.False(t, occupancies[1].Booked)
	assert.Nil(t, occupancies[1].Current)
	require.NotNil(t, occupancies[1].NextBooking)
	assert.Equal(t, "booking-2", occupancies[1].NextBooking.ID)
}

func TestRoomServiceCreate(t *testing.T) {
	repo := &roomRepoStub{byCode: map[string]*models.Room{}}
	audit := &auditStub{}
	svc := NewRoomService(repo, occupancyStub{}, audit, nil, nil, nil, RoomConfig{})

	room, err := svc.Create(context.Background(), adminClaims(), dto.CreateRoomRequest{
		Code:     "CR-03",
		Name:     "War Room",
		Capacity: 8,
		Location: "3F east wing",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, room.ID)
	assert.True(t, room.Active)
	require.Len(t, repo.created, 1)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionRoomWrite, audit.logs[0].Action)
}

func TestRoomServiceCreateDuplicateCode(t *testing.T) {
	repo := &roomRepoStub{byCode: map[string]*models.Room{
		"CR-01": {ID: "room-1", Code: "CR-01"},
	}}
	svc := NewRoomService(repo, occupancyStub{}, &auditStub{}, nil, nil, nil, RoomConfig{})

	_, err := svc.Create(context.Background(), adminClaims(), dto.CreateRoomRequest{
		Code:     "CR-01",
		Name:     "Clone",
		Capacity: 4,
	})
	require.Error(t, err)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Empty(t, repo.created)
}

func TestRoomServiceUpdate(t *testing.T) {
	repo := &roomRepoStub{byID: map[string]*models.Room{
		"room-1": {ID: "room-1", Code: "CR-01", Name: "Board Room", Capacity: 10, Active: true},
	}}
	svc := NewRoomService(repo, occupancyStub{}, &auditStub{}, nil, nil, nil, RoomConfig{})

	capacity := 16
	active := false
	room, err := svc.Update(context.Background(), adminClaims(), "room-1", dto.UpdateRoomRequest{Capacity: &capacity, Active: &active})
	require.NoError(t, err)

	assert.Equal(t, 16, room.Capacity)
	assert.False(t, room.Active)
	require.Len(t, repo.updated, 1)
}

func TestRoomServiceDeleteMissing(t *testing.T) {
	svc := NewRoomService(&roomRepoStub{byID: map[string]*models.Room{}}, occupancyStub{}, &auditStub{}, nil, nil, nil, RoomConfig{})

	err := svc.Delete(context.Background(), adminClaims(), "room-99")
	require.Error(t, err)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}
