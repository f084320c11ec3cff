package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/workstead/portal-api/internal/models"
)

const exportColumns = `id, format, status, file_path, download_url, created_by, created_at, finished_at, error_message`

// ExportRepository persists schedule export job metadata.
type ExportRepository struct {
	db *sqlx.DB
}

// NewExportRepository constructs an export repository.
func NewExportRepository(db *sqlx.DB) *ExportRepository {
	return &ExportRepository{db: db}
}

// Create inserts a queued export record.
func (r *ExportRepository) Create(ctx context.Context, export *models.ScheduleExport) error {
	if export.ID == "" {
		export.ID = uuid.NewString()
	}
	if export.CreatedAt.IsZero() {
		export.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO schedule_exports (` + exportColumns + `) VALUES (:id, :format, :status, :file_path, :download_url, :created_by, :created_at, :finished_at, :error_message)`
	if _, err := r.db.NamedExecContext(ctx, query, export); err != nil {
		return fmt.Errorf("create schedule export: %w", err)
	}
	return nil
}

// GetByID fetches an export record.
func (r *ExportRepository) GetByID(ctx context.Context, id string) (*models.ScheduleExport, error) {
	const query = `SELECT ` + exportColumns + ` FROM schedule_exports WHERE id = $1 LIMIT 1`
	var export models.ScheduleExport
	if err := r.db.GetContext(ctx, &export, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find schedule export: %w", err)
	}
	return &export, nil
}

// MarkProcessing flips a queued export into the processing state.
func (r *ExportRepository) MarkProcessing(ctx context.Context, id string) error {
	const query = `UPDATE schedule_exports SET status = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.ExportStatusProcessing); err != nil {
		return fmt.Errorf("mark export processing: %w", err)
	}
	return nil
}

// MarkFinished records the rendered file and signed download URL.
func (r *ExportRepository) MarkFinished(ctx context.Context, id, filePath, downloadURL string, finishedAt time.Time) error {
	const query = `UPDATE schedule_exports SET status = $2, file_path = $3, download_url = $4, finished_at = $5 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.ExportStatusFinished, filePath, downloadURL, finishedAt); err != nil {
		return fmt.Errorf("mark export finished: %w", err)
	}
	return nil
}

// MarkFailed records the failure reason.
func (r *ExportRepository) MarkFailed(ctx context.Context, id, reason string, finishedAt time.Time) error {
	const query = `UPDATE schedule_exports SET status = $2, error_message = $3, finished_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.ExportStatusFailed, reason, finishedAt); err != nil {
		return fmt.Errorf("mark export failed: %w", err)
	}
	return nil
}
