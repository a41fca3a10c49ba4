package service

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/driving-school-api/internal/models"
	"github.com/noah-isme/driving-school-api/internal/reconcile"
)

func slotFromRow(row models.InstructorSlot) models.Slot {
	slot := models.Slot{
		SlotID:              row.SlotID,
		Date:                reconcile.NormalizeDate(row.Date),
		Start:               reconcile.NormalizeTime(row.StartTime),
		End:                 reconcile.NormalizeTime(row.EndTime),
		ClassType:           models.ClassType(row.ClassType),
		Status:              models.SlotStatus(row.Status),
		Duration:            models.FlexString(row.Duration),
		Booked:              row.Booked,
		Recurrence:          models.Recurrence(row.Recurrence),
		CreatedAsRecurrence: row.CreatedAsRecurrence,
	}
	if ct := models.ParseClassType(row.ClassType); ct != "" {
		slot.ClassType = ct
	}
	if row.TicketClassID != nil {
		slot.TicketClassID = *row.TicketClassID
	}
	if row.StudentID != nil {
		slot.StudentID = models.Ref(*row.StudentID)
	}
	if row.Amount != nil {
		slot.Amount = models.FlexFloat(*row.Amount)
	}
	if row.LocationID != nil {
		slot.LocationID = models.Ref(*row.LocationID)
	}
	if row.ClassID != nil {
		slot.ClassID = models.Ref(*row.ClassID)
	}
	if row.RecurrenceGroup != nil {
		slot.OriginalRecurrenceGroup = *row.RecurrenceGroup
	}
	return slot
}

func slotsFromRows(rows []models.InstructorSlot) []models.Slot {
	out := make([]models.Slot, 0, len(rows))
	for _, row := range rows {
		out = append(out, slotFromRow(row))
	}
	return out
}

// rowFromSlot converts a resolved slot into its persisted row. Slots without an
// id get one so the (instructor, slot) key stays unique.
func rowFromSlot(slot models.Slot) models.InstructorSlot {
	n := reconcile.Normalize(slot)
	row := models.InstructorSlot{
		SlotID:              n.SlotID,
		Date:                n.Date,
		StartTime:           n.Start,
		EndTime:             n.End,
		ClassType:           strings.TrimSpace(string(slot.ClassType)),
		Status:              string(slot.Status),
		Booked:              n.Booked,
		Duration:            n.Duration,
		Recurrence:          string(slot.Recurrence),
		CreatedAsRecurrence: n.CreatedAsRecurrence,
		TicketClassID:       optionalString(n.TicketClassID),
		StudentID:           optionalString(n.StudentID),
		LocationID:          optionalString(n.LocationID),
		ClassID:             optionalString(n.ClassID),
		RecurrenceGroup:     optionalString(n.OriginalRecurrenceGroup),
	}
	if n.ClassType != "" {
		row.ClassType = string(n.ClassType)
	}
	if row.SlotID == "" {
		row.SlotID = uuid.NewString()
	}
	if row.Status == "" {
		row.Status = string(models.SlotStatusAvailable)
	}
	if row.Recurrence == "" {
		row.Recurrence = string(models.RecurrenceNone)
	}
	if strings.TrimSpace(string(slot.Amount)) != "" {
		amount := n.Amount
		row.Amount = &amount
	}
	return row
}

// ticketClassFromSlot builds the ticket class backing a ticket-class slot.
func ticketClassFromSlot(id string, slot models.Slot) models.TicketClass {
	n := reconcile.Normalize(slot)
	students, err := json.Marshal(n.Students)
	if err != nil || n.Students == nil {
		students = []byte("[]")
	}
	return models.TicketClass{
		ID:         id,
		ClassType:  n.ClassType,
		Date:       n.Date,
		StartTime:  n.Start,
		EndTime:    n.End,
		Students:   types.JSONText(students),
		Cupos:      n.Cupos,
		Price:      n.Amount,
		LocationID: n.LocationID,
		ClassID:    n.ClassID,
	}
}

// mergeTicketClass fills the ticket-class owned fields of a slot from its
// persisted ticket class.
func mergeTicketClass(slot models.Slot, tc models.TicketClass) models.Slot {
	out := slot.Clone()
	var students []string
	if len(tc.Students) > 0 {
		_ = json.Unmarshal(tc.Students, &students)
	}
	out.Students = make(models.StudentRefs, 0, len(students))
	for _, id := range students {
		out.Students = append(out.Students, models.Ref(id))
	}
	out.Cupos = models.FlexInt(tc.Cupos)
	out.Amount = models.FlexFloat(tc.Price)
	if tc.LocationID != "" {
		out.LocationID = models.Ref(tc.LocationID)
	}
	if tc.ClassID != "" {
		out.ClassID = models.Ref(tc.ClassID)
	}
	return out
}

func persistedTicketClassIDs(slots []models.Slot) []string {
	seen := make(map[string]struct{}, len(slots))
	ids := make([]string, 0, len(slots))
	for _, slot := range slots {
		if slot.Category() != models.CategoryTicketClass || !slot.HasPersistedTicketClass() {
			continue
		}
		if _, ok := seen[slot.TicketClassID]; ok {
			continue
		}
		seen[slot.TicketClassID] = struct{}{}
		ids = append(ids, slot.TicketClassID)
	}
	return ids
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
