package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/workstead/portal-api/internal/models"
)

// ErrBookingConflict is returned when a requested interval overlaps an
// existing booking on the same room. The conflicting booking accompanies it.
var ErrBookingConflict = errors.New("booking interval conflicts with an existing booking")

const bookingColumns = `id, room_id, start_time, end_time, topic, department, host_id, host_name, host_designation, attendees, created_at, updated_at`

// BookingRepository persists room reservations.
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository constructs a booking repository.
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// Create inserts a booking after verifying the room is free for the interval.
// The overlap check and the insert run in one transaction that locks the room
// row, so two concurrent creates for the same room serialize; the loser
// receives ErrBookingConflict together with the winning booking. The exclusion
// constraint on (room_id, interval) backstops the check.
func (r *BookingRepository) Create(ctx context.Context, booking *models.Booking) (conflict *models.Booking, err error) {
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = now
	}
	booking.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin booking transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = lockRoomRow(ctx, tx, booking.RoomID); err != nil {
		return nil, err
	}

	conflict, err = findOverlap(ctx, tx, booking.RoomID, booking.StartTime, booking.EndTime, "")
	if err != nil {
		return nil, err
	}
	if conflict != nil {
		err = ErrBookingConflict
		return conflict, err
	}

	const insertQuery = `INSERT INTO bookings (` + bookingColumns + `) VALUES (:id, :room_id, :start_time, :end_time, :topic, :department, :host_id, :host_name, :host_designation, :attendees, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, insertQuery, booking); err != nil {
		if isOverlapViolation(err) {
			err = ErrBookingConflict
			return nil, err
		}
		return nil, fmt.Errorf("insert booking: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit booking: %w", err)
	}
	return nil, nil
}

// Update rewrites a booking's mutable fields under the same conflict rules as
// Create, ignoring the booking's own interval during the overlap check.
func (r *BookingRepository) Update(ctx context.Context, booking *models.Booking) (conflict *models.Booking, err error) {
	booking.UpdatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin booking transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = lockRoomRow(ctx, tx, booking.RoomID); err != nil {
		return nil, err
	}

	conflict, err = findOverlap(ctx, tx, booking.RoomID, booking.StartTime, booking.EndTime, booking.ID)
	if err != nil {
		return nil, err
	}
	if conflict != nil {
		err = ErrBookingConflict
		return conflict, err
	}

	const updateQuery = `UPDATE bookings SET start_time = :start_time, end_time = :end_time, topic = :topic, department = :department, attendees = :attendees, updated_at = :updated_at WHERE id = :id`
	if _, err = tx.NamedExecContext(ctx, updateQuery, booking); err != nil {
		if isOverlapViolation(err) {
			err = ErrBookingConflict
			return nil, err
		}
		return nil, fmt.Errorf("update booking: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit booking update: %w", err)
	}
	return nil, nil
}

// GetByID fetches a booking.
func (r *BookingRepository) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	const query = `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1 LIMIT 1`
	var booking models.Booking
	if err := r.db.GetContext(ctx, &booking, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find booking by id: %w", err)
	}
	return &booking, nil
}

// Delete removes a booking, freeing the interval for new reservations.
func (r *BookingRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM bookings WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete booking: %w", err)
	}
	return nil
}

// FindOverlap returns the first booking on the room that intersects
// [start, end), or nil when the room is free for that range.
func (r *BookingRepository) FindOverlap(ctx context.Context, roomID string, start, end time.Time) (*models.Booking, error) {
	return findOverlap(ctx, r.db, roomID, start, end, "")
}

// List returns bookings matching the filter with total count.
func (r *BookingRepository) List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, int, error) {
	baseQuery := `FROM bookings WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.RoomID != "" {
		conditions = append(conditions, fmt.Sprintf("room_id = $%d", len(args)+1))
		args = append(args, filter.RoomID)
	}
	if filter.HostID != "" {
		conditions = append(conditions, fmt.Sprintf("host_id = $%d", len(args)+1))
		args = append(args, filter.HostID)
	}
	if filter.Department != "" {
		conditions = append(conditions, fmt.Sprintf("department = $%d", len(args)+1))
		args = append(args, filter.Department)
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("end_time > $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("start_time < $%d", len(args)+1))
		args = append(args, *filter.To)
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT "+bookingColumns+" %s ORDER BY start_time ASC LIMIT %d OFFSET %d", baseQuery, pageSize, offset)

	var bookings []models.Booking
	if err := r.db.SelectContext(ctx, &bookings, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list bookings: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count bookings: %w", err)
	}

	return bookings, total, nil
}

// CurrentAndNext returns, for one room, the booking covering the reference
// instant (if any) and the next booking starting after it.
func (r *BookingRepository) CurrentAndNext(ctx context.Context, roomID string, at time.Time) (current, next *models.Booking, err error) {
	const currentQuery = `SELECT ` + bookingColumns + ` FROM bookings WHERE room_id = $1 AND start_time <= $2 AND end_time > $2 ORDER BY start_time ASC LIMIT 1`
	var cur models.Booking
	switch err = r.db.GetContext(ctx, &cur, currentQuery, roomID, at); {
	case err == nil:
		current = &cur
	case err == sql.ErrNoRows:
		// room is idle right now
	default:
		return nil, nil, fmt.Errorf("current booking: %w", err)
	}

	const nextQuery = `SELECT ` + bookingColumns + ` FROM bookings WHERE room_id = $1 AND start_time > $2 ORDER BY start_time ASC LIMIT 1`
	var nxt models.Booking
	switch err = r.db.GetContext(ctx, &nxt, nextQuery, roomID, at); {
	case err == nil:
		next = &nxt
	case err == sql.ErrNoRows:
	default:
		return nil, nil, fmt.Errorf("next booking: %w", err)
	}

	return current, next, nil
}

func lockRoomRow(ctx context.Context, tx *sqlx.Tx, roomID string) error {
	var id string
	const lockQuery = `SELECT id FROM rooms WHERE id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &id, lockQuery, roomID); err != nil {
		if err == sql.ErrNoRows {
			return err
		}
		return fmt.Errorf("lock room row: %w", err)
	}
	return nil
}

func findOverlap(ctx context.Context, q sqlx.QueryerContext, roomID string, start, end time.Time, excludeID string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE room_id = $1 AND start_time < $3 AND end_time > $2`
	args := []interface{}{roomID, start, end}
	if excludeID != "" {
		query += ` AND id <> $4`
		args = append(args, excludeID)
	}
	query += ` ORDER BY start_time ASC LIMIT 1`

	var booking models.Booking
	if err := sqlx.GetContext(ctx, q, &booking, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find overlapping booking: %w", err)
	}
	return &booking, nil
}

// isOverlapViolation detects the exclusion or unique constraint errors raised
// when the database itself rejects an overlapping interval.
func isOverlapViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23P01" || pqErr.Code == "23505"
	}
	return false
}
