package service

import (
	"github.com/noah-isme/driving-school-api/internal/models"
	"github.com/noah-isme/driving-school-api/internal/reconcile"
)

// savePlan turns a reconciliation report into the writes of one save.
type savePlan struct {
	original []models.Slot
	current  []models.Slot
	report   reconcile.Report

	ticketCreates []models.Slot
	ticketUpdates []models.Slot

	bySlot  map[string]string
	byLocal map[string]string
}

func newSavePlan(original, current []models.Slot, report reconcile.Report) *savePlan {
	p := &savePlan{
		original: original,
		current:  current,
		report:   report,
		bySlot:   make(map[string]string),
		byLocal:  make(map[string]string),
	}
	for _, slot := range report.ToCreate {
		if slot.Category() == models.CategoryTicketClass && !slot.HasPersistedTicketClass() {
			p.ticketCreates = append(p.ticketCreates, slot)
		}
	}
	for _, upd := range report.ToUpdate {
		if upd.New.Category() == models.CategoryTicketClass && upd.New.HasPersistedTicketClass() {
			p.ticketUpdates = append(p.ticketUpdates, upd.New)
		}
	}
	return p
}

// resolve records the persisted ticket class created for a slot.
func (p *savePlan) resolve(slot models.Slot, ticketClassID string) {
	if slot.SlotID != "" {
		p.bySlot[slot.SlotID] = ticketClassID
	}
	if slot.TicketClassID != "" {
		p.byLocal[slot.TicketClassID] = ticketClassID
	}
}

// persistedSchedule is the live schedule with local ticket class ids resolved,
// plus the unmatched original slots a guard refused to delete.
func (p *savePlan) persistedSchedule() []models.Slot {
	out := make([]models.Slot, 0, len(p.current))
	seen := make(map[string]struct{}, len(p.current))
	add := func(slot models.Slot) {
		if slot.SlotID != "" {
			if _, dup := seen[slot.SlotID]; dup {
				return
			}
			seen[slot.SlotID] = struct{}{}
		}
		out = append(out, slot)
	}

	for _, slot := range p.current {
		resolved := slot.Clone()
		resolved.OriginalSlotID, resolved.OriginalTicketClassID = "", ""
		if resolved.Category() == models.CategoryTicketClass {
			if id, ok := p.bySlot[slot.SlotID]; ok && slot.SlotID != "" {
				resolved.TicketClassID = id
			} else if id, ok := p.byLocal[slot.TicketClassID]; ok {
				resolved.TicketClassID = id
			}
		} else {
			resolved.TicketClassID = ""
		}
		if resolved.HasTemporaryTicketClass() {
			resolved.TicketClassID = ""
		}
		add(resolved)
	}

	originals := make(map[string]models.Slot, len(p.original))
	for _, slot := range p.original {
		key := reconcile.KeyOf(slot, reconcile.RoleOriginal)
		if _, exists := originals[key]; !exists {
			originals[key] = slot
		}
	}
	for _, verdict := range p.report.Verdicts {
		if !verdict.Keep || !restoresOriginal(verdict.Rule) {
			continue
		}
		if slot, ok := originals[verdict.Key]; ok {
			add(slot.Clone())
		}
	}
	return out
}

// ticketDeletes lists persisted ticket classes of deleted slots that nothing in
// the persisted schedule still references.
func (p *savePlan) ticketDeletes(persisted []models.Slot) []string {
	referenced := make(map[string]struct{}, len(persisted))
	for _, slot := range persisted {
		if slot.TicketClassID != "" {
			referenced[slot.TicketClassID] = struct{}{}
		}
	}
	ids := make([]string, 0)
	for _, slot := range p.report.ToDelete {
		if slot.Category() != models.CategoryTicketClass || !slot.HasPersistedTicketClass() {
			continue
		}
		if _, ok := referenced[slot.TicketClassID]; ok {
			continue
		}
		referenced[slot.TicketClassID] = struct{}{}
		ids = append(ids, slot.TicketClassID)
	}
	return ids
}

func restoresOriginal(rule string) bool {
	switch rule {
	case reconcile.RulePartialRecurrenceEdit,
		reconcile.RuleCrossCategoryCreations,
		reconcile.RuleSymmetricSize,
		reconcile.RuleMassDeletion:
		return true
	default:
		return false
	}
}
