package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// TicketClass is the persisted group class backing ticket-class slots.
type TicketClass struct {
	ID         string         `db:"id" json:"id"`
	ClassType  ClassType      `db:"class_type" json:"classType"`
	Date       string         `db:"date" json:"date"`
	StartTime  string         `db:"start_time" json:"start"`
	EndTime    string         `db:"end_time" json:"end"`
	Students   types.JSONText `db:"students" json:"students"`
	Cupos      int            `db:"cupos" json:"cupos"`
	Price      float64        `db:"price" json:"price"`
	LocationID string         `db:"location_id" json:"locationId"`
	ClassID    string         `db:"class_id" json:"classId"`
	CreatedAt  time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updatedAt"`
}

// InstructorSlot is the persisted row of an instructor's schedule.
type InstructorSlot struct {
	ID                  string    `db:"id" json:"id"`
	InstructorID        string    `db:"instructor_id" json:"instructorId"`
	SlotID              string    `db:"slot_id" json:"slotId"`
	Date                string    `db:"date" json:"date"`
	StartTime           string    `db:"start_time" json:"start"`
	EndTime             string    `db:"end_time" json:"end"`
	ClassType           string    `db:"class_type" json:"classType"`
	TicketClassID       *string   `db:"ticket_class_id" json:"ticketClassId,omitempty"`
	Status              string    `db:"status" json:"status"`
	StudentID           *string   `db:"student_id" json:"studentId,omitempty"`
	Booked              bool      `db:"booked" json:"booked"`
	Amount              *float64  `db:"amount" json:"amount,omitempty"`
	LocationID          *string   `db:"location_id" json:"locationId,omitempty"`
	ClassID             *string   `db:"class_id" json:"classId,omitempty"`
	Duration            string    `db:"duration" json:"duration"`
	Recurrence          string    `db:"recurrence" json:"recurrence"`
	CreatedAsRecurrence bool      `db:"created_as_recurrence" json:"createdAsRecurrence"`
	RecurrenceGroup     *string   `db:"recurrence_group" json:"originalRecurrenceGroup,omitempty"`
	CreatedAt           time.Time `db:"created_at" json:"createdAt"`
}
