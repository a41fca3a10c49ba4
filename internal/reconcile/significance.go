package reconcile

import (
	"math"
	"slices"

	"github.com/noah-isme/driving-school-api/internal/models"
)

// amountTolerance is the smallest amount difference treated as a change.
const amountTolerance = 0.01

// SlotVariant is the category-specific view of a normalized slot. Each variant
// carries only the fields that matter for its category.
type SlotVariant interface {
	isSlotVariant()
}

// TicketClassVariant is the view of a slot backed by a ticket class.
type TicketClassVariant struct {
	Date       string
	Start      string
	End        string
	Students   []string
	Cupos      int
	Amount     float64
	LocationID string
	ClassID    string
}

// DrivingTestVariant is the view of a driving-test slot.
type DrivingTestVariant struct {
	Date      string
	Start     string
	End       string
	StudentID string
	Status    string
	Booked    bool
}

// GenericVariant is the view of any other slot.
type GenericVariant struct {
	Date      string
	Start     string
	End       string
	Status    string
	Booked    bool
	StudentID string
	Amount    float64
}

func (TicketClassVariant) isSlotVariant() {}
func (DrivingTestVariant) isSlotVariant() {}
func (GenericVariant) isSlotVariant()     {}

// Variant projects the normalized slot onto its category view.
func (n NormalizedSlot) Variant() SlotVariant {
	switch n.Category() {
	case models.CategoryTicketClass:
		return TicketClassVariant{
			Date: n.Date, Start: n.Start, End: n.End,
			Students: n.Students, Cupos: n.Cupos, Amount: n.Amount,
			LocationID: n.LocationID, ClassID: n.ClassID,
		}
	case models.CategoryDrivingTest:
		return DrivingTestVariant{
			Date: n.Date, Start: n.Start, End: n.End,
			StudentID: n.StudentID, Status: n.Status, Booked: n.Booked,
		}
	default:
		return GenericVariant{
			Date: n.Date, Start: n.Start, End: n.End,
			Status: n.Status, Booked: n.Booked, StudentID: n.StudentID, Amount: n.Amount,
		}
	}
}

// ChangedFields lists the category-relevant fields that differ between two
// normalized versions of a slot. Ticket-class date and time differences are
// reported under "schedule" because they are not significant on their own.
func ChangedFields(oldSlot, newSlot NormalizedSlot) []string {
	var changed []string
	add := func(cond bool, field string) {
		if cond {
			changed = append(changed, field)
		}
	}

	switch o := oldSlot.Variant().(type) {
	case TicketClassVariant:
		n, ok := newSlot.Variant().(TicketClassVariant)
		if !ok {
			return []string{"classType"}
		}
		add(!slices.Equal(o.Students, n.Students), "students")
		add(o.Cupos != n.Cupos, "cupos")
		add(amountDiffers(o.Amount, n.Amount), "amount")
		add(o.LocationID != n.LocationID, "locationId")
		add(o.ClassID != n.ClassID, "classId")
		add(o.Date != n.Date || o.Start != n.Start || o.End != n.End, "schedule")
	case DrivingTestVariant:
		n, ok := newSlot.Variant().(DrivingTestVariant)
		if !ok {
			return []string{"classType"}
		}
		add(o.Start != n.Start, "start")
		add(o.End != n.End, "end")
		add(o.Date != n.Date, "date")
		add(o.StudentID != n.StudentID, "studentId")
		add(o.Status != n.Status, "status")
		add(o.Booked != n.Booked, "booked")
	case GenericVariant:
		n, ok := newSlot.Variant().(GenericVariant)
		if !ok {
			return []string{"classType"}
		}
		add(o.Date != n.Date, "date")
		add(o.Start != n.Start, "start")
		add(o.End != n.End, "end")
		add(o.Status != n.Status, "status")
		add(o.Booked != n.Booked, "booked")
		add(o.StudentID != n.StudentID, "studentId")
		add(amountDiffers(o.Amount, n.Amount), "amount")
	}
	return changed
}

// IsSignificant reports whether the difference between two normalized slot
// versions warrants a persistence write.
func IsSignificant(oldSlot, newSlot NormalizedSlot) bool {
	for _, field := range ChangedFields(oldSlot, newSlot) {
		if field != "schedule" {
			return true
		}
	}
	return false
}

// HasScheduleOnlyDrift reports a ticket-class date/time change with nothing else.
func HasScheduleOnlyDrift(oldSlot, newSlot NormalizedSlot) bool {
	fields := ChangedFields(oldSlot, newSlot)
	return len(fields) == 1 && fields[0] == "schedule"
}

func amountDiffers(a, b float64) bool {
	return math.Abs(a-b) > amountTolerance
}
