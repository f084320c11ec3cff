package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/workstead/portal-api/internal/models"
)

// ErrDuplicateReminder is returned when an owner already has a reminder on
// the requested date. The unique index on (owner_id, date) enforces this.
var ErrDuplicateReminder = errors.New("reminder already exists for this date")

const reminderColumns = `id, owner_id, date, plans, time, importance, associated_people, created_at, updated_at`

// ReminderRepository persists calendar reminders.
type ReminderRepository struct {
	db *sqlx.DB
}

// NewReminderRepository constructs a reminder repository.
func NewReminderRepository(db *sqlx.DB) *ReminderRepository {
	return &ReminderRepository{db: db}
}

// ListByOwner returns every reminder belonging to the owner, ordered by date.
func (r *ReminderRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.Reminder, error) {
	const query = `SELECT ` + reminderColumns + ` FROM reminders WHERE owner_id = $1 ORDER BY date ASC`
	var reminders []models.Reminder
	if err := r.db.SelectContext(ctx, &reminders, query, ownerID); err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	return reminders, nil
}

// GetByID fetches a reminder.
func (r *ReminderRepository) GetByID(ctx context.Context, id string) (*models.Reminder, error) {
	const query = `SELECT ` + reminderColumns + ` FROM reminders WHERE id = $1 LIMIT 1`
	var reminder models.Reminder
	if err := r.db.GetContext(ctx, &reminder, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find reminder by id: %w", err)
	}
	return &reminder, nil
}

// Create inserts a reminder. A duplicate (owner, date) pair yields
// ErrDuplicateReminder.
func (r *ReminderRepository) Create(ctx context.Context, reminder *models.Reminder) error {
	if reminder.ID == "" {
		reminder.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if reminder.CreatedAt.IsZero() {
		reminder.CreatedAt = now
	}
	reminder.UpdatedAt = now

	const query = `INSERT INTO reminders (` + reminderColumns + `) VALUES (:id, :owner_id, :date, :plans, :time, :importance, :associated_people, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, reminder); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateReminder
		}
		return fmt.Errorf("create reminder: %w", err)
	}
	return nil
}

// Update modifies a reminder's mutable fields. The date is fixed at creation.
func (r *ReminderRepository) Update(ctx context.Context, reminder *models.Reminder) error {
	reminder.UpdatedAt = time.Now().UTC()
	const query = `UPDATE reminders SET plans = :plans, time = :time, importance = :importance, associated_people = :associated_people, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, reminder); err != nil {
		return fmt.Errorf("update reminder: %w", err)
	}
	return nil
}

// Delete removes a reminder.
func (r *ReminderRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM reminders WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete reminder: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
