package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/driving-school-api/internal/models"
)

// InstructorSlotRepository stores the persisted schedule of each instructor.
type InstructorSlotRepository struct {
	db *sqlx.DB
}

// NewInstructorSlotRepository builds repository.
func NewInstructorSlotRepository(db *sqlx.DB) *InstructorSlotRepository {
	return &InstructorSlotRepository{db: db}
}

func (r *InstructorSlotRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// ListByInstructor returns the instructor's schedule ordered by date and start time.
func (r *InstructorSlotRepository) ListByInstructor(ctx context.Context, instructorID string) ([]models.InstructorSlot, error) {
	const query = `SELECT id, instructor_id, slot_id, to_char(date, 'YYYY-MM-DD') AS date, start_time, end_time, class_type, ticket_class_id, status, student_id, booked, amount, location_id, class_id, duration, recurrence, created_as_recurrence, recurrence_group, created_at
FROM instructor_slots WHERE instructor_id = $1 ORDER BY date ASC, start_time ASC`
	var rows []models.InstructorSlot
	if err := r.db.SelectContext(ctx, &rows, query, instructorID); err != nil {
		return nil, fmt.Errorf("list instructor slots: %w", err)
	}
	return rows, nil
}

// ReplaceForInstructor swaps the instructor's whole schedule for the given rows.
func (r *InstructorSlotRepository) ReplaceForInstructor(ctx context.Context, exec sqlx.ExtContext, instructorID string, rows []models.InstructorSlot) error {
	target := r.exec(exec)
	if _, err := target.ExecContext(ctx, `DELETE FROM instructor_slots WHERE instructor_id = $1`, instructorID); err != nil {
		return fmt.Errorf("clear instructor slots: %w", err)
	}

	const query = `
INSERT INTO instructor_slots (id, instructor_id, slot_id, date, start_time, end_time, class_type, ticket_class_id, status, student_id, booked, amount, location_id, class_id, duration, recurrence, created_as_recurrence, recurrence_group, created_at)
VALUES (:id, :instructor_id, :slot_id, :date, :start_time, :end_time, :class_type, :ticket_class_id, :status, :student_id, :booked, :amount, :location_id, :class_id, :duration, :recurrence, :created_as_recurrence, :recurrence_group, :created_at)`

	now := time.Now().UTC()
	for i := range rows {
		row := &rows[i]
		row.InstructorID = instructorID
		if row.ID == "" {
			row.ID = uuid.NewString()
		}
		if row.CreatedAt.IsZero() {
			row.CreatedAt = now
		}
		if _, err := sqlx.NamedExecContext(ctx, target, query, row); err != nil {
			return fmt.Errorf("insert instructor slot: %w", err)
		}
	}
	return nil
}
