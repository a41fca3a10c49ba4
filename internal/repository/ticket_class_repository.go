package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/driving-school-api/internal/models"
)

const ticketClassColumns = `id, class_type, to_char(date, 'YYYY-MM-DD') AS date, start_time, end_time, students, cupos, price, location_id, class_id, created_at, updated_at`

// TicketClassRepository persists ticket classes.
type TicketClassRepository struct {
	db *sqlx.DB
}

// NewTicketClassRepository builds repository.
func NewTicketClassRepository(db *sqlx.DB) *TicketClassRepository {
	return &TicketClassRepository{db: db}
}

func (r *TicketClassRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a ticket class, assigning an id when missing.
func (r *TicketClassRepository) Create(ctx context.Context, exec sqlx.ExtContext, tc *models.TicketClass) error {
	now := time.Now().UTC()
	if tc.ID == "" {
		tc.ID = uuid.NewString()
	}
	if len(tc.Students) == 0 {
		tc.Students = []byte("[]")
	}
	tc.CreatedAt = now
	tc.UpdatedAt = now

	const query = `
INSERT INTO ticket_classes (id, class_type, date, start_time, end_time, students, cupos, price, location_id, class_id, created_at, updated_at)
VALUES (:id, :class_type, :date, :start_time, :end_time, :students, :cupos, :price, :location_id, :class_id, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, tc); err != nil {
		return fmt.Errorf("create ticket class: %w", err)
	}
	return nil
}

// Update overwrites the mutable fields of a ticket class.
func (r *TicketClassRepository) Update(ctx context.Context, exec sqlx.ExtContext, tc *models.TicketClass) error {
	tc.UpdatedAt = time.Now().UTC()
	if len(tc.Students) == 0 {
		tc.Students = []byte("[]")
	}

	const query = `
UPDATE ticket_classes
SET class_type = :class_type,
    date = :date,
    start_time = :start_time,
    end_time = :end_time,
    students = :students,
    cupos = :cupos,
    price = :price,
    location_id = :location_id,
    class_id = :class_id,
    updated_at = :updated_at
WHERE id = :id`
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, tc)
	if err != nil {
		return fmt.Errorf("update ticket class: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("ticket class rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a ticket class. Missing rows are not an error.
func (r *TicketClassRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	const query = `DELETE FROM ticket_classes WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete ticket class: %w", err)
	}
	return nil
}

// FindByID fetches a ticket class.
func (r *TicketClassRepository) FindByID(ctx context.Context, id string) (*models.TicketClass, error) {
	query := `SELECT ` + ticketClassColumns + ` FROM ticket_classes WHERE id = $1`
	var tc models.TicketClass
	if err := r.db.GetContext(ctx, &tc, query, id); err != nil {
		return nil, err
	}
	return &tc, nil
}

// ListByIDs fetches several ticket classes at once.
func (r *TicketClassRepository) ListByIDs(ctx context.Context, ids []string) ([]models.TicketClass, error) {
	if len(ids) == 0 {
		return []models.TicketClass{}, nil
	}
	query := `SELECT ` + ticketClassColumns + ` FROM ticket_classes WHERE id = ANY($1) ORDER BY date ASC, start_time ASC`
	var classes []models.TicketClass
	if err := r.db.SelectContext(ctx, &classes, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list ticket classes: %w", err)
	}
	return classes, nil
}
