package reconcile

import (
	"fmt"

	"github.com/noah-isme/driving-school-api/internal/models"
	appErrors "github.com/noah-isme/driving-school-api/pkg/errors"
)

// IsTicketClass reports whether the slot is backed by a ticket class.
func IsTicketClass(slot models.Slot) bool {
	return slot.Category() == models.CategoryTicketClass
}

// IsDrivingTest reports whether the slot is a driving test.
func IsDrivingTest(slot models.Slot) bool {
	return slot.Category() == models.CategoryDrivingTest
}

// IsRecurrenceBreak reports whether editing the slot detaches it from a recurrence group.
func IsRecurrenceBreak(slot models.Slot) bool {
	return slot.CreatedAsRecurrence || slot.OriginalRecurrenceGroup != ""
}

// Classify determines the semantic action and side effects of a change.
// For deletions newSlot is the slot being removed. Updates require oldSlot.
func Classify(kind models.ChangeKind, newSlot models.Slot, oldSlot *models.Slot) (models.ChangeAnalysis, error) {
	switch kind {
	case models.ChangeKindCreate:
		return classifyCreate(newSlot), nil
	case models.ChangeKindDelete:
		return classifyDelete(newSlot), nil
	case models.ChangeKindUpdate:
		if oldSlot == nil {
			return models.ChangeAnalysis{}, appErrors.ErrOriginalSlotRequired
		}
		return classifyUpdate(newSlot, *oldSlot), nil
	default:
		return models.ChangeAnalysis{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported change kind %q", kind))
	}
}

func classifyCreate(slot models.Slot) models.ChangeAnalysis {
	ticket := IsTicketClass(slot)
	return models.ChangeAnalysis{
		ActionType:           models.ActionSimpleSlotCreate,
		Description:          describe("Create", slot, false),
		RequiresTicketCreate: ticket,
		RequiresSlotCreate:   true,
	}
}

func classifyDelete(slot models.Slot) models.ChangeAnalysis {
	ticket := IsTicketClass(slot)
	breaking := IsRecurrenceBreak(slot)
	return models.ChangeAnalysis{
		ActionType:           models.ActionSimpleSlotDelete,
		Description:          describe("Delete", slot, breaking),
		RequiresTicketDelete: ticket,
		RequiresSlotDelete:   true,
		IsRecurrenceBreak:    breaking,
	}
}

func classifyUpdate(newSlot, oldSlot models.Slot) models.ChangeAnalysis {
	breaking := IsRecurrenceBreak(oldSlot)
	oldTicket := IsTicketClass(oldSlot)
	newTicket := IsTicketClass(newSlot)
	n := Normalize(newSlot)

	analysis := models.ChangeAnalysis{IsRecurrenceBreak: breaking}
	switch {
	case oldTicket && newTicket:
		analysis.ActionType = models.ActionDeleteTicketAndSlotCreateNew
		analysis.RequiresTicketDelete = true
		analysis.RequiresSlotDelete = true
		analysis.RequiresTicketCreate = true
		analysis.RequiresSlotCreate = true
		analysis.Description = fmt.Sprintf("Replace %s with %s on %s at %s", label(oldSlot), label(newSlot), n.Date, n.Start)
	case !oldTicket && newTicket:
		analysis.ActionType = models.ActionDeleteSlotCreateTicketAndSlot
		analysis.RequiresSlotDelete = true
		analysis.RequiresTicketCreate = true
		analysis.RequiresSlotCreate = true
		analysis.Description = fmt.Sprintf("Convert %s to %s on %s at %s", label(oldSlot), label(newSlot), n.Date, n.Start)
	case oldTicket && !newTicket:
		analysis.ActionType = models.ActionDeleteTicketAndSlotCreateSlot
		analysis.RequiresTicketDelete = true
		analysis.RequiresSlotDelete = true
		analysis.RequiresSlotCreate = true
		analysis.Description = fmt.Sprintf("Convert %s to %s on %s at %s", label(oldSlot), label(newSlot), n.Date, n.Start)
	default:
		analysis.ActionType = models.ActionSimpleSlotUpdate
		analysis.Description = describe("Update", newSlot, false)
	}
	if breaking {
		analysis.Description += " (breaking recurrence)"
	}
	return analysis
}

func describe(verb string, slot models.Slot, breaking bool) string {
	n := Normalize(slot)
	text := fmt.Sprintf("%s %s on %s at %s", verb, label(slot), n.Date, n.Start)
	if breaking {
		text += " (breaking recurrence)"
	}
	return text
}

func label(slot models.Slot) string {
	ct := models.ParseClassType(string(slot.ClassType))
	switch ct.Category() {
	case models.CategoryTicketClass:
		return string(ct) + " class"
	case models.CategoryDrivingTest:
		return string(ct)
	default:
		return "slot"
	}
}
