package reconcile

import (
	"github.com/noah-isme/driving-school-api/internal/models"
)

// Rule names reported when an unmatched original slot is kept.
const (
	RuleTicketClassPresent     = "ticket_class_present"
	RuleSlotIDPresent          = "slot_id_present"
	RuleTuplePresent           = "tuple_present"
	RuleEditedInPlace          = "edited_in_place"
	RulePartialRecurrenceEdit  = "partial_recurrence_edit"
	RuleCrossCategoryCreations = "cross_category_creations"
	RuleSymmetricSize          = "symmetric_size"
	RuleMassDeletion           = "mass_deletion"
)

// DeletionRule is one named "is it really gone" check. Rules are evaluated in
// order and the first one whose Keep predicate holds keeps the slot.
type DeletionRule struct {
	Name string
	// Guard marks policy heuristics that log a warning when they fire.
	Guard bool
	Keep  func(dc *deletionContext, candidate NormalizedSlot) bool
}

// DeletionVerdict records why an unmatched original slot was kept or deleted.
type DeletionVerdict struct {
	Key      string              `json:"key"`
	SlotID   string              `json:"slotId,omitempty"`
	Category models.SlotCategory `json:"category"`
	Keep     bool                `json:"keep"`
	Rule     string              `json:"rule,omitempty"`
}

type deletionContext struct {
	original     []NormalizedSlot
	current      []NormalizedSlot
	toCreate     []NormalizedSlot
	policy       Policy
	editedSlots  map[string]struct{}
	editedTicket map[string]struct{}
}

func newDeletionContext(original, current, toCreate []NormalizedSlot, policy Policy) *deletionContext {
	dc := &deletionContext{
		original:     original,
		current:      current,
		toCreate:     toCreate,
		policy:       policy,
		editedSlots:  make(map[string]struct{}),
		editedTicket: make(map[string]struct{}),
	}
	for _, n := range current {
		if n.OriginalSlotID != "" {
			dc.editedSlots[n.OriginalSlotID] = struct{}{}
		}
		if n.OriginalTicketClassID != "" {
			dc.editedTicket[n.OriginalTicketClassID] = struct{}{}
		}
	}
	return dc
}

func (dc *deletionContext) isEdited(n NormalizedSlot) bool {
	if n.SlotID != "" {
		if _, ok := dc.editedSlots[n.SlotID]; ok {
			return true
		}
	}
	if n.TicketClassID != "" {
		if _, ok := dc.editedTicket[n.TicketClassID]; ok {
			return true
		}
	}
	return false
}

// DeletionRules builds the ordered rule list for a policy.
func DeletionRules(policy Policy) []DeletionRule {
	rules := []DeletionRule{
		{Name: RuleTicketClassPresent, Keep: ticketClassPresent},
		{Name: RuleSlotIDPresent, Keep: slotIDPresent},
		{Name: RuleTuplePresent, Keep: tuplePresent},
		{Name: RuleEditedInPlace, Keep: editedInPlace},
		{Name: RulePartialRecurrenceEdit, Keep: partialRecurrenceEdit},
	}
	if policy.CrossCategoryGuard {
		rules = append(rules, DeletionRule{Name: RuleCrossCategoryCreations, Guard: true, Keep: crossCategoryCreations})
	}
	if policy.SymmetricSizeGuard {
		rules = append(rules, DeletionRule{Name: RuleSymmetricSize, Guard: true, Keep: symmetricSize})
	}
	if policy.MassDeletionGuard {
		rules = append(rules, DeletionRule{Name: RuleMassDeletion, Guard: true, Keep: massDeletion})
	}
	return rules
}

func ticketClassPresent(dc *deletionContext, candidate NormalizedSlot) bool {
	if candidate.TicketClassID == "" || IsTemporaryTicketClassID(candidate.TicketClassID) {
		return false
	}
	for _, n := range dc.current {
		if n.TicketClassID == candidate.TicketClassID {
			return true
		}
	}
	return false
}

func slotIDPresent(dc *deletionContext, candidate NormalizedSlot) bool {
	if candidate.SlotID == "" {
		return false
	}
	for _, n := range dc.current {
		if n.SlotID == candidate.SlotID {
			return true
		}
	}
	return false
}

func tuplePresent(dc *deletionContext, candidate NormalizedSlot) bool {
	for _, n := range dc.current {
		if n.Date != candidate.Date || n.Start != candidate.Start || n.End != candidate.End || n.ClassType != candidate.ClassType {
			continue
		}
		if candidate.TicketClassID != "" && n.TicketClassID != candidate.TicketClassID {
			continue
		}
		return true
	}
	return false
}

func editedInPlace(dc *deletionContext, candidate NormalizedSlot) bool {
	return dc.isEdited(candidate)
}

func partialRecurrenceEdit(dc *deletionContext, candidate NormalizedSlot) bool {
	group := candidate.OriginalRecurrenceGroup
	if group == "" {
		return false
	}
	siblings, edited := 0, 0
	for _, n := range dc.original {
		if n.OriginalRecurrenceGroup != group {
			continue
		}
		siblings++
		if dc.isEdited(n) {
			edited++
		}
	}
	return edited > 0 && edited < siblings
}

func crossCategoryCreations(dc *deletionContext, candidate NormalizedSlot) bool {
	if len(dc.toCreate) == 0 {
		return false
	}
	for _, n := range dc.toCreate {
		if n.Category() == candidate.Category() {
			return false
		}
	}
	return true
}

func symmetricSize(dc *deletionContext, _ NormalizedSlot) bool {
	return len(dc.original) == len(dc.current)
}

func massDeletion(dc *deletionContext, candidate NormalizedSlot) bool {
	category := candidate.Category()
	if countCategory(dc.current, category) > 0 {
		return false
	}
	if countCategory(dc.toCreate, category) > 0 {
		return false
	}
	return countCategory(dc.original, category) > dc.policy.MassDeletionMinOriginal
}

func countCategory(slots []NormalizedSlot, category models.SlotCategory) int {
	count := 0
	for _, n := range slots {
		if n.Category() == category {
			count++
		}
	}
	return count
}
