package service

import (
	"context"
	"database/sql"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workstead/portal-api/internal/dto"
	"github.com/workstead/portal-api/internal/models"
	appErrors "github.com/workstead/portal-api/pkg/errors"
	"github.com/workstead/portal-api/pkg/storage"
)

type exportRepoStub struct {
	records    map[string]*models.ScheduleExport
	processing []string
}

func newExportRepoStub() *exportRepoStub {
	return &exportRepoStub{records: make(map[string]*models.ScheduleExport)}
}

func (s *exportRepoStub) Create(ctx context.Context, export *models.ScheduleExport) error {
	s.records[export.ID] = export
	return nil
}

func (s *exportRepoStub) GetByID(ctx context.Context, id string) (*models.ScheduleExport, error) {
	if record, ok := s.records[id]; ok {
		return record, nil
	}
	return nil, sql.ErrNoRows
}

func (s *exportRepoStub) MarkProcessing(ctx context.Context, id string) error {
	s.processing = append(s.processing, id)
	if record, ok := s.records[id]; ok {
		record.Status = models.ExportStatusProcessing
	}
	return nil
}

func (s *exportRepoStub) MarkFinished(ctx context.Context, id, filePath, downloadURL string, finishedAt time.Time) error {
	if record, ok := s.records[id]; ok {
		record.Status = models.ExportStatusFinished
		record.FilePath = &filePath
		record.DownloadURL = &downloadURL
		record.FinishedAt = &finishedAt
	}
	return nil
}

func (s *exportRepoStub) MarkFailed(ctx context.Context, id, reason string, finishedAt time.Time) error {
	if record, ok := s.records[id]; ok {
		record.Status = models.ExportStatusFailed
		record.ErrorMessage = &reason
		record.FinishedAt = &finishedAt
	}
	return nil
}

type exportBookingsStub struct {
	bookings []models.Booking
}

func (s exportBookingsStub) List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, int, error) {
	if filter.Page > 1 {
		return nil, len(s.bookings), nil
	}
	return s.bookings, len(s.bookings), nil
}

func newTestExportService(t *testing.T, repo *exportRepoStub, bookings exportBookingsStub) (*ExportService, *enqueuerStub) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	svc := NewExportService(repo, bookings, store, signer, nil, nil)
	queue := &enqueuerStub{}
	svc.BindQueue(queue)
	return svc, queue
}

func TestExportServiceCreateQueuesJob(t *testing.T) {
	repo := newExportRepoStub()
	svc, queue := newTestExportService(t, repo, exportBookingsStub{})

	record, err := svc.Create(context.Background(), employeeClaims(), dto.CreateExportRequest{Format: "csv"})
	require.NoError(t, err)

	assert.Equal(t, models.ExportStatusQueued, record.Status)
	assert.Equal(t, "user-1", record.CreatedBy)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, "schedule_export", queue.jobs[0].Type)
}

func TestExportServiceCreateRejectsInvertedRange(t *testing.T) {
	repo := newExportRepoStub()
	svc, _ := newTestExportService(t, repo, exportBookingsStub{})

	_, err := svc.Create(context.Background(), employeeClaims(), dto.CreateExportRequest{
		Format: "csv",
		From:   "2025-03-31",
		To:     "2025-03-01",
	})
	require.Error(t, err)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestExportServiceHandleJobRendersCSV(t *testing.T) {
	start := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	repo := newExportRepoStub()
	svc, queue := newTestExportService(t, repo, exportBookingsStub{bookings: []models.Booking{
		{ID: "booking-1", RoomID: "room-1", StartTime: start, EndTime: start.Add(time.Hour), Topic: "Sprint planning", HostName: "Priya Nair", Department: "Platform", Attendees: 6},
	}})

	record, err := svc.Create(context.Background(), employeeClaims(), dto.CreateExportRequest{Format: "csv"})
	require.NoError(t, err)
	require.Len(t, queue.jobs, 1)

	require.NoError(t, svc.HandleJob(context.Background(), queue.jobs[0]))

	stored := repo.records[record.ID]
	assert.Equal(t, models.ExportStatusFinished, stored.Status)
	require.NotNil(t, stored.DownloadURL)
	assert.Contains(t, *stored.DownloadURL, "/exports/download?token=")
	assert.Equal(t, []string{record.ID}, repo.processing)

	token := strings.TrimPrefix(*stored.DownloadURL, "/api/v1/exports/download?token=")
	file, _, err := svc.ResolveDownload(context.Background(), token)
	require.NoError(t, err)
	defer file.Close()

	content, err := io.ReadAll(file)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Room,Start,End,Topic,Host,Department,Attendees", lines[0])
	assert.Equal(t, "room-1,2025-03-14T09:00:00Z,2025-03-14T10:00:00Z,Sprint planning,Priya Nair,Platform,6", lines[1])
}

func TestExportServiceStatusHiddenFromOtherUsers(t *testing.T) {
	repo := newExportRepoStub()
	svc, _ := newTestExportService(t, repo, exportBookingsStub{})

	record, err := svc.Create(context.Background(), employeeClaims(), dto.CreateExportRequest{Format: "pdf"})
	require.NoError(t, err)

	other := &models.JWTClaims{UserID: "user-2", Role: models.RoleEmployee}
	_, err = svc.Status(context.Background(), other, record.ID)
	require.Error(t, err)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)

	// the admin and the requester can both see it
	got, err := svc.Status(context.Background(), adminClaims(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.ID, got.ID)
}

func TestExportServiceResolveDownloadRejectsBadToken(t *testing.T) {
	repo := newExportRepoStub()
	svc, _ := newTestExportService(t, repo, exportBookingsStub{})

	_, _, err := svc.ResolveDownload(context.Background(), "not-a-real-token")
	require.Error(t, err)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
}
