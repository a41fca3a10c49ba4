package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/driving-school-api/internal/models"
)

func TestInstructorSlotRepositoryListByInstructor(t *testing.T) {
	db, mock, cleanup := newTicketClassRepoMock(t)
	defer cleanup()
	repo := NewInstructorSlotRepository(db)

	columns := []string{"id", "instructor_id", "slot_id", "date", "start_time", "end_time", "class_type", "ticket_class_id", "status", "student_id", "booked", "amount", "location_id", "class_id", "duration", "recurrence", "created_as_recurrence", "recurrence_group", "created_at"}
	rows := sqlmock.NewRows(columns).
		AddRow("row-1", "inst-1", "s1", "2024-02-01", "10:00", "12:00", "driving test", nil, "available", nil, false, nil, nil, nil, "2h", "None", false, nil, time.Now()).
		AddRow("row-2", "inst-1", "s2", "2024-02-02", "09:00", "11:00", "B.D.I", "tc-1", "available", nil, false, 45.0, "loc-1", "class-1", "2h", "Weekly", true, "grp-1", time.Now())
	mock.ExpectQuery(`SELECT .+ FROM instructor_slots WHERE instructor_id = \$1 ORDER BY date ASC, start_time ASC`).
		WithArgs("inst-1").
		WillReturnRows(rows)

	slots, err := repo.ListByInstructor(context.Background(), "inst-1")
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Nil(t, slots[0].TicketClassID)
	require.NotNil(t, slots[1].TicketClassID)
	assert.Equal(t, "tc-1", *slots[1].TicketClassID)
	assert.Equal(t, "grp-1", *slots[1].RecurrenceGroup)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInstructorSlotRepositoryReplaceForInstructor(t *testing.T) {
	db, mock, cleanup := newTicketClassRepoMock(t)
	defer cleanup()
	repo := NewInstructorSlotRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM instructor_slots WHERE instructor_id = $1")).
		WithArgs("inst-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO instructor_slots")).
		WithArgs(sqlmock.AnyArg(), "inst-1", "s1", "2024-02-01", "10:00", "12:00", "driving test", nil, "available", nil, false, nil, nil, nil, "2h", "None", false, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	rows := []models.InstructorSlot{{
		SlotID:     "s1",
		Date:       "2024-02-01",
		StartTime:  "10:00",
		EndTime:    "12:00",
		ClassType:  "driving test",
		Status:     "available",
		Duration:   "2h",
		Recurrence: "None",
	}}
	require.NoError(t, repo.ReplaceForInstructor(context.Background(), nil, "inst-1", rows))
	assert.Equal(t, "inst-1", rows[0].InstructorID)
	assert.NotEmpty(t, rows[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
