package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// ClassType enumerates the closed set of schedulable class kinds.
type ClassType string

const (
	ClassTypeDrivingTest ClassType = "driving test"
	ClassTypeDate        ClassType = "D.A.T.E"
	ClassTypeBdi         ClassType = "B.D.I"
	ClassTypeAdi         ClassType = "A.D.I"
)

// ClassTypes lists every recognised class type.
var ClassTypes = []ClassType{ClassTypeDrivingTest, ClassTypeDate, ClassTypeBdi, ClassTypeAdi}

// ParseClassType resolves raw input case-insensitively against the closed set.
// Unknown values resolve to the empty class type.
func ParseClassType(raw string) ClassType {
	trimmed := strings.TrimSpace(raw)
	for _, ct := range ClassTypes {
		if strings.EqualFold(trimmed, string(ct)) {
			return ct
		}
	}
	return ""
}

// SlotCategory groups class types by the backing entity they need.
type SlotCategory string

const (
	CategoryTicketClass SlotCategory = "ticket_class"
	CategoryDrivingTest SlotCategory = "driving_test"
	CategoryGeneric     SlotCategory = "generic"
)

// Category maps a class type onto its slot category.
func (c ClassType) Category() SlotCategory {
	switch ParseClassType(string(c)) {
	case ClassTypeDate, ClassTypeBdi, ClassTypeAdi:
		return CategoryTicketClass
	case ClassTypeDrivingTest:
		return CategoryDrivingTest
	default:
		return CategoryGeneric
	}
}

// SlotStatus captures the booking state of a slot.
type SlotStatus string

const (
	SlotStatusAvailable SlotStatus = "available"
	SlotStatusCancelled SlotStatus = "cancelled"
	SlotStatusScheduled SlotStatus = "scheduled"
	SlotStatusFull      SlotStatus = "full"
)

// Recurrence describes how a slot was generated.
type Recurrence string

const (
	RecurrenceNone    Recurrence = "None"
	RecurrenceDaily   Recurrence = "Daily"
	RecurrenceWeekly  Recurrence = "Weekly"
	RecurrenceMonthly Recurrence = "Monthly"
)

// TemporaryTicketClassPrefix tags ticket class ids that were never persisted.
const TemporaryTicketClassPrefix = "temp-"

// Slot is one schedulable unit of instructor time as exchanged with the calendar.
type Slot struct {
	SlotID                  string      `json:"slotId,omitempty"`
	Date                    string      `json:"date" validate:"required"`
	Start                   string      `json:"start" validate:"required"`
	End                     string      `json:"end" validate:"required"`
	ClassType               ClassType   `json:"classType,omitempty"`
	TicketClassID           string      `json:"ticketClassId,omitempty"`
	Status                  SlotStatus  `json:"status,omitempty"`
	Students                StudentRefs `json:"students,omitempty"`
	Cupos                   FlexString  `json:"cupos,omitempty"`
	Amount                  FlexString  `json:"amount,omitempty"`
	LocationID              Ref         `json:"locationId,omitempty"`
	ClassID                 Ref         `json:"classId,omitempty"`
	Duration                FlexString  `json:"duration,omitempty"`
	StudentID               Ref         `json:"studentId,omitempty"`
	Booked                  bool        `json:"booked,omitempty"`
	Recurrence              Recurrence  `json:"recurrence,omitempty"`
	CreatedAsRecurrence     bool        `json:"createdAsRecurrence,omitempty"`
	OriginalRecurrenceGroup string      `json:"originalRecurrenceGroup,omitempty"`
	OriginalSlotID          string      `json:"originalSlotId,omitempty"`
	OriginalTicketClassID   string      `json:"originalTicketClassId,omitempty"`
}

// Category reports the slot category derived from its class type.
func (s Slot) Category() SlotCategory {
	return s.ClassType.Category()
}

// HasTemporaryTicketClass reports whether the slot points at an unsaved ticket class.
func (s Slot) HasTemporaryTicketClass() bool {
	return strings.HasPrefix(s.TicketClassID, TemporaryTicketClassPrefix)
}

// HasPersistedTicketClass reports whether the slot is backed by a saved ticket class.
func (s Slot) HasPersistedTicketClass() bool {
	return s.TicketClassID != "" && !s.HasTemporaryTicketClass()
}

// HasEditLineage reports whether the slot supersedes another slot.
func (s Slot) HasEditLineage() bool {
	return s.OriginalSlotID != "" || s.OriginalTicketClassID != ""
}

// Clone returns a deep copy so callers can mutate without aliasing slices.
func (s Slot) Clone() Slot {
	out := s
	if s.Students != nil {
		out.Students = append(StudentRefs(nil), s.Students...)
	}
	return out
}

// SlotUpdate pairs a persisted slot with its edited replacement.
type SlotUpdate struct {
	Old Slot `json:"old"`
	New Slot `json:"new"`
}

// DiffResult buckets the operations needed to reconcile two schedules.
type DiffResult struct {
	ToCreate []Slot       `json:"toCreate"`
	ToUpdate []SlotUpdate `json:"toUpdate"`
	ToDelete []Slot       `json:"toDelete"`
	ToKeep   []Slot       `json:"toKeep"`
}

// HasChanges reports whether any write operation is pending.
func (r DiffResult) HasChanges() bool {
	return len(r.ToCreate) > 0 || len(r.ToUpdate) > 0 || len(r.ToDelete) > 0
}

// Ref is an identifier that may arrive as a bare string or as an object reference.
type Ref string

// UnmarshalJSON accepts strings, numbers, null and objects carrying _id or id.
func (r *Ref) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*r = ""
		return nil
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*r = Ref(s)
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return err
		}
		for _, key := range []string{"_id", "id"} {
			if raw, ok := obj[key]; ok {
				return r.UnmarshalJSON(raw)
			}
		}
		*r = ""
	default:
		*r = Ref(string(trimmed))
	}
	return nil
}

// StudentRefs is a roster of student identifiers.
type StudentRefs []Ref

// FlexString holds a scalar that may arrive as a JSON number or string.
type FlexString string

// UnmarshalJSON accepts strings, numbers, booleans and null.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*f = ""
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	*f = FlexString(string(trimmed))
	return nil
}

// FlexInt renders an integer as a FlexString.
func FlexInt(v int) FlexString {
	return FlexString(strconv.Itoa(v))
}

// FlexFloat renders a float as a FlexString.
func FlexFloat(v float64) FlexString {
	return FlexString(strconv.FormatFloat(v, 'f', -1, 64))
}

// SlotPatch carries the fields an operator edited on an existing slot.
type SlotPatch struct {
	Date       *string      `json:"date,omitempty"`
	Start      *string      `json:"start,omitempty"`
	End        *string      `json:"end,omitempty"`
	ClassType  *ClassType   `json:"classType,omitempty"`
	Status     *SlotStatus  `json:"status,omitempty"`
	Students   *StudentRefs `json:"students,omitempty"`
	Cupos      *FlexString  `json:"cupos,omitempty"`
	Amount     *FlexString  `json:"amount,omitempty"`
	LocationID *Ref         `json:"locationId,omitempty"`
	ClassID    *Ref         `json:"classId,omitempty"`
	Duration   *FlexString  `json:"duration,omitempty"`
	StudentID  *Ref         `json:"studentId,omitempty"`
	Booked     *bool        `json:"booked,omitempty"`
}

// Apply overlays the patch on a copy of the slot.
func (p SlotPatch) Apply(slot Slot) Slot {
	out := slot.Clone()
	if p.Date != nil {
		out.Date = *p.Date
	}
	if p.Start != nil {
		out.Start = *p.Start
	}
	if p.End != nil {
		out.End = *p.End
	}
	if p.ClassType != nil {
		out.ClassType = *p.ClassType
	}
	if p.Status != nil {
		out.Status = *p.Status
	}
	if p.Students != nil {
		out.Students = append(StudentRefs(nil), (*p.Students)...)
	}
	if p.Cupos != nil {
		out.Cupos = *p.Cupos
	}
	if p.Amount != nil {
		out.Amount = *p.Amount
	}
	if p.LocationID != nil {
		out.LocationID = *p.LocationID
	}
	if p.ClassID != nil {
		out.ClassID = *p.ClassID
	}
	if p.Duration != nil {
		out.Duration = *p.Duration
	}
	if p.StudentID != nil {
		out.StudentID = *p.StudentID
	}
	if p.Booked != nil {
		out.Booked = *p.Booked
	}
	return out
}
