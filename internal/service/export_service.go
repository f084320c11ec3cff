package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/workstead/portal-api/internal/dto"
	"github.com/workstead/portal-api/internal/models"
	appErrors "github.com/workstead/portal-api/pkg/errors"
	"github.com/workstead/portal-api/pkg/export"
	"github.com/workstead/portal-api/pkg/jobs"
	"github.com/workstead/portal-api/pkg/storage"
)

const exportDateLayout = "2006-01-02"

type exportRepository interface {
	Create(ctx context.Context, export *models.ScheduleExport) error
	GetByID(ctx context.Context, id string) (*models.ScheduleExport, error)
	MarkProcessing(ctx context.Context, id string) error
	MarkFinished(ctx context.Context, id, filePath, downloadURL string, finishedAt time.Time) error
	MarkFailed(ctx context.Context, id, reason string, finishedAt time.Time) error
}

type exportBookingLister interface {
	List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, int, error)
}

// exportJob is the queue payload carrying everything a worker needs to render
// one export without another round-trip to the request context.
type exportJob struct {
	ExportID string
	Format   models.ExportFormat
	Filter   models.BookingFilter
}

// ExportService renders booking schedules to CSV or PDF in the background and
// hands back signed, expiring download links.
type ExportService struct {
	repo      exportRepository
	bookings  exportBookingLister
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	store     *storage.LocalStorage
	signer    *storage.SignedURLSigner
	queue     jobEnqueuer
	validator *validator.Validate
	logger    *zap.Logger
}

// NewExportService constructs an export service. Call BindQueue afterwards to
// attach the worker queue; the queue needs the service's HandleJob as its
// handler, so the two are wired in two steps.
func NewExportService(repo exportRepository, bookings exportBookingLister, store *storage.LocalStorage, signer *storage.SignedURLSigner, validate *validator.Validate, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ExportService{
		repo:      repo,
		bookings:  bookings,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		store:     store,
		signer:    signer,
		validator: validate,
		logger:    logger,
	}
}

// BindQueue attaches the worker queue used for background rendering.
func (s *ExportService) BindQueue(queue jobEnqueuer) {
	s.queue = queue
}

// Create records an export request and queues it for rendering. The response
// is immediate; clients poll Status until the export finishes.
func (s *ExportService) Create(ctx context.Context, claims *models.JWTClaims, req dto.CreateExportRequest) (*models.ScheduleExport, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export payload")
	}
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "export workers are not running")
	}

	filter := models.BookingFilter{RoomID: req.RoomID, PageSize: 200}
	if req.From != "" {
		from, err := time.ParseInLocation(exportDateLayout, req.From, time.UTC)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "from must be formatted as YYYY-MM-DD")
		}
		filter.From = &from
	}
	if req.To != "" {
		to, err := time.ParseInLocation(exportDateLayout, req.To, time.UTC)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "to must be formatted as YYYY-MM-DD")
		}
		end := to.Add(24 * time.Hour)
		filter.To = &end
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "to must not precede from")
	}

	record := &models.ScheduleExport{
		ID:        uuid.NewString(),
		Format:    models.ExportFormat(req.Format),
		Status:    models.ExportStatusQueued,
		CreatedBy: claims.UserID,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create export")
	}

	job := jobs.Job{
		ID:      record.ID,
		Type:    "schedule_export",
		Payload: exportJob{ExportID: record.ID, Format: record.Format, Filter: filter},
	}
	if err := s.queue.Enqueue(job); err != nil {
		reason := "export queue is full"
		if markErr := s.repo.MarkFailed(ctx, record.ID, reason, time.Now().UTC()); markErr != nil {
			s.logger.Error("failed to mark export failed", zap.String("export_id", record.ID), zap.Error(markErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, reason)
	}

	return record, nil
}

// Status returns an export record. Only the requester or an admin may see it.
func (s *ExportService) Status(ctx context.Context, claims *models.JWTClaims, id string) (*models.ScheduleExport, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export")
	}
	if claims.Role != models.RoleAdmin && record.CreatedBy != claims.UserID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export not found")
	}
	return record, nil
}

// ResolveDownload validates a signed download token and opens the rendered
// file. Expired or tampered tokens fail closed.
func (s *ExportService) ResolveDownload(ctx context.Context, token string) (*os.File, string, error) {
	exportID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrUnauthorized, "download link is invalid or expired")
	}

	record, err := s.repo.GetByID(ctx, exportID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export")
	}
	if record.Status != models.ExportStatusFinished || record.FilePath == nil || *record.FilePath != relPath {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export file is not available")
	}

	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	return file, relPath, nil
}

// HandleJob is the queue handler. It renders one export and records the
// outcome; returning an error triggers the queue's retry policy.
func (s *ExportService) HandleJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(exportJob)
	if !ok {
		s.logger.Error("export queue received unexpected payload", zap.String("job_id", job.ID))
		return nil
	}

	if err := s.repo.MarkProcessing(ctx, payload.ExportID); err != nil {
		return err
	}

	data, err := s.renderDataset(ctx, payload.Filter)
	if err != nil {
		s.fail(ctx, payload.ExportID, err)
		return err
	}

	var (
		content  []byte
		filename string
	)
	switch payload.Format {
	case models.ExportFormatPDF:
		content, err = s.pdf.Render(data, "Room Booking Schedule")
		filename = fmt.Sprintf("schedule-%s.pdf", payload.ExportID)
	default:
		content, err = s.csv.Render(data)
		filename = fmt.Sprintf("schedule-%s.csv", payload.ExportID)
	}
	if err != nil {
		s.fail(ctx, payload.ExportID, err)
		return err
	}

	relPath, err := s.store.Save(filename, content)
	if err != nil {
		s.fail(ctx, payload.ExportID, err)
		return err
	}

	token, _, err := s.signer.Generate(payload.ExportID, relPath)
	if err != nil {
		s.fail(ctx, payload.ExportID, err)
		return err
	}
	downloadURL := "/api/v1/exports/download?token=" + token

	if err := s.repo.MarkFinished(ctx, payload.ExportID, relPath, downloadURL, time.Now().UTC()); err != nil {
		return err
	}

	s.logger.Info("schedule export finished",
		zap.String("export_id", payload.ExportID),
		zap.String("format", string(payload.Format)),
		zap.String("file", relPath))
	return nil
}

func (s *ExportService) renderDataset(ctx context.Context, filter models.BookingFilter) (export.Dataset, error) {
	data := export.Dataset{
		Headers: []string{"Room", "Start", "End", "Topic", "Host", "Department", "Attendees"},
	}

	page := 1
	for {
		filter.Page = page
		bookings, total, err := s.bookings.List(ctx, filter)
		if err != nil {
			return export.Dataset{}, err
		}
		for _, b := range bookings {
			data.Rows = append(data.Rows, map[string]string{
				"Room":       b.RoomID,
				"Start":      b.StartTime.UTC().Format(time.RFC3339),
				"End":        b.EndTime.UTC().Format(time.RFC3339),
				"Topic":      b.Topic,
				"Host":       b.HostName,
				"Department": b.Department,
				"Attendees":  fmt.Sprintf("%d", b.Attendees),
			})
		}
		if len(data.Rows) >= total || len(bookings) == 0 {
			return data, nil
		}
		page++
	}
}

func (s *ExportService) fail(ctx context.Context, exportID string, cause error) {
	if err := s.repo.MarkFailed(ctx, exportID, cause.Error(), time.Now().UTC()); err != nil {
		s.logger.Error("failed to mark export failed", zap.String("export_id", exportID), zap.Error(err))
	}
}
