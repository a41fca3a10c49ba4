// Package reconcile computes the create/update/delete operations needed to bring
// a persisted instructor schedule in line with a locally edited copy, and keeps
// the ledger of pending operator changes.
package reconcile

import (
	"reflect"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/driving-school-api/internal/models"
)

// GuardObserver is notified whenever a deletion rule keeps a slot.
type GuardObserver interface {
	DeletionKept(rule string, category models.SlotCategory)
}

// Engine reconciles schedule snapshots. It is stateless apart from its
// configuration and safe to call repeatedly.
type Engine struct {
	policy   Policy
	rules    []DeletionRule
	logger   *zap.Logger
	observer GuardObserver
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithPolicy overrides the default guard policy.
func WithPolicy(policy Policy) EngineOption {
	return func(e *Engine) {
		e.policy = policy
	}
}

// WithLogger attaches a logger for guard warnings.
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithGuardObserver registers an observer for kept deletions.
func WithGuardObserver(observer GuardObserver) EngineOption {
	return func(e *Engine) {
		e.observer = observer
	}
}

// NewEngine builds an engine with the default policy unless overridden.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{policy: DefaultPolicy(), logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	e.rules = DeletionRules(e.policy)
	return e
}

// Policy returns the active guard policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// RuleNames lists the deletion rules in evaluation order.
func (e *Engine) RuleNames() []string {
	names := make([]string, 0, len(e.rules))
	for _, rule := range e.rules {
		names = append(names, rule.Name)
	}
	return names
}

// Report is a diff result together with the verdicts reached for every
// original slot that had no counterpart in the current schedule.
type Report struct {
	models.DiffResult
	Verdicts []DeletionVerdict `json:"verdicts"`
}

// Diff buckets the current schedule against the original one.
func (e *Engine) Diff(original, current []models.Slot) models.DiffResult {
	return e.Explain(original, current).DiffResult
}

// Explain runs the reconciliation and also reports deletion verdicts.
func (e *Engine) Explain(original, current []models.Slot) Report {
	report := Report{
		DiffResult: models.DiffResult{
			ToCreate: []models.Slot{},
			ToUpdate: []models.SlotUpdate{},
			ToDelete: []models.Slot{},
			ToKeep:   []models.Slot{},
		},
		Verdicts: []DeletionVerdict{},
	}

	origNorm := normalizeAll(original)
	curNorm := normalizeAll(current)

	if unchanged(origNorm, curNorm) && !anyTemporary(curNorm) {
		report.ToKeep = cloneSlots(current)
		return report
	}

	index := make(map[string]int, len(original))
	bySlotID := make(map[string]string, len(original))
	byTicketID := make(map[string]string, len(original))
	origKeys := make([]string, len(original))
	for i, n := range origNorm {
		key := originalKey(n)
		origKeys[i] = key
		if _, exists := index[key]; !exists {
			index[key] = i
		}
		if n.SlotID != "" {
			if _, exists := bySlotID[n.SlotID]; !exists {
				bySlotID[n.SlotID] = key
			}
		}
		if n.TicketClassID != "" && !IsTemporaryTicketClassID(n.TicketClassID) {
			if _, exists := byTicketID[n.TicketClassID]; !exists {
				byTicketID[n.TicketClassID] = key
			}
		}
	}

	processed := make(map[string]bool, len(original)+len(current))
	superseded := make(map[string]bool)
	createdNorm := make([]NormalizedSlot, 0)
	create := func(slot models.Slot) {
		report.ToCreate = append(report.ToCreate, slot)
		createdNorm = append(createdNorm, Normalize(slot))
	}
	lineage := func(n NormalizedSlot) (int, bool) {
		for _, key := range []string{bySlotID[n.OriginalSlotID], byTicketID[n.OriginalTicketClassID]} {
			if key == "" || processed[key] {
				continue
			}
			if idx, ok := index[key]; ok {
				return idx, true
			}
		}
		return 0, false
	}

	for i, slot := range current {
		cn := curNorm[i]
		key := currentKey(cn)
		temporary := IsTemporaryTicketClassID(cn.TicketClassID)
		edited := cn.OriginalSlotID != "" || cn.OriginalTicketClassID != ""

		switch {
		case temporary:
			create(slot.Clone())
			if edited {
				if idx, ok := lineage(cn); ok {
					report.ToDelete = append(report.ToDelete, original[idx].Clone())
					processed[origKeys[idx]] = true
					superseded[origKeys[idx]] = true
				}
			}
		case edited:
			idx, ok := lineage(cn)
			if !ok {
				create(slot.Clone())
				break
			}
			processed[origKeys[idx]] = true
			superseded[origKeys[idx]] = true
			e.pair(&report.DiffResult, original[idx], origNorm[idx], slot, cn, create)
		default:
			idx, ok := index[key]
			if !ok {
				create(slot.Clone())
				break
			}
			if superseded[key] {
				// the original was already reconciled against its edit
				e.logger.Warn("slot superseded by an edit is still in the schedule",
					zap.String("slot_key", key),
					zap.String("slot_id", cn.SlotID),
				)
				create(slot.Clone())
				break
			}
			e.pair(&report.DiffResult, original[idx], origNorm[idx], slot, cn, create)
		}
		processed[key] = true
	}

	dc := newDeletionContext(origNorm, curNorm, createdNorm, e.policy)
	for i, slot := range original {
		key := origKeys[i]
		if processed[key] {
			continue
		}
		verdict := e.evaluateDeletion(dc, key, origNorm[i])
		report.Verdicts = append(report.Verdicts, verdict)
		if verdict.Keep {
			report.ToKeep = append(report.ToKeep, slot.Clone())
			continue
		}
		report.ToDelete = append(report.ToDelete, slot.Clone())
	}

	e.filterSpuriousUpdates(&report.DiffResult)
	return report
}

func (e *Engine) pair(result *models.DiffResult, orig models.Slot, on NormalizedSlot, cur models.Slot, cn NormalizedSlot, create func(models.Slot)) {
	if !strings.EqualFold(strings.TrimSpace(string(orig.ClassType)), strings.TrimSpace(string(cur.ClassType))) {
		result.ToDelete = append(result.ToDelete, orig.Clone())
		create(stripBackendIdentity(cur))
		return
	}
	if on.Category() == models.CategoryTicketClass && HasScheduleOnlyDrift(on, cn) {
		e.logger.Warn("ticket class date or time changed without roster change",
			zap.String("ticket_class_id", on.TicketClassID),
			zap.String("old_date", on.Date), zap.String("new_date", cn.Date),
			zap.String("old_start", on.Start), zap.String("new_start", cn.Start),
		)
	}
	if IsSignificant(on, cn) {
		result.ToUpdate = append(result.ToUpdate, models.SlotUpdate{Old: orig.Clone(), New: cur.Clone()})
		return
	}
	result.ToKeep = append(result.ToKeep, cur.Clone())
}

func (e *Engine) evaluateDeletion(dc *deletionContext, key string, candidate NormalizedSlot) DeletionVerdict {
	verdict := DeletionVerdict{Key: key, SlotID: candidate.SlotID, Category: candidate.Category()}
	for _, rule := range e.rules {
		if !rule.Keep(dc, candidate) {
			continue
		}
		verdict.Keep = true
		verdict.Rule = rule.Name
		if rule.Guard {
			e.logger.Warn("deletion suppressed by safety guard",
				zap.String("rule", rule.Name),
				zap.String("slot_key", key),
				zap.String("category", string(candidate.Category())),
			)
		} else {
			e.logger.Debug("unmatched slot still present", zap.String("rule", rule.Name), zap.String("slot_key", key))
		}
		if e.observer != nil {
			e.observer.DeletionKept(rule.Name, candidate.Category())
		}
		return verdict
	}
	return verdict
}

// filterSpuriousUpdates moves ticket-class updates whose only differences lie
// outside the ticket-class significant set into the keep bucket.
func (e *Engine) filterSpuriousUpdates(result *models.DiffResult) {
	kept := result.ToUpdate[:0]
	for _, upd := range result.ToUpdate {
		on, cn := Normalize(upd.Old), Normalize(upd.New)
		if on.Category() == models.CategoryTicketClass && cn.Category() == models.CategoryTicketClass && !IsSignificant(on, cn) {
			result.ToKeep = append(result.ToKeep, upd.New)
			continue
		}
		kept = append(kept, upd)
	}
	result.ToUpdate = kept
}

// stripBackendIdentity drops the persisted ticket class link from a slot that
// changed type, since its backing entity no longer applies.
func stripBackendIdentity(slot models.Slot) models.Slot {
	out := slot.Clone()
	if !out.HasTemporaryTicketClass() {
		out.TicketClassID = ""
	}
	return out
}

func unchanged(original, current []NormalizedSlot) bool {
	if len(original) != len(current) {
		return false
	}
	for i := range original {
		if !normalizedEqual(original[i], current[i]) {
			return false
		}
	}
	return true
}

func anyTemporary(slots []NormalizedSlot) bool {
	for _, n := range slots {
		if IsTemporaryTicketClassID(n.TicketClassID) {
			return true
		}
	}
	return false
}

func normalizedEqual(a, b NormalizedSlot) bool {
	if !slices.Equal(a.Students, b.Students) {
		return false
	}
	a.Students, b.Students = nil, nil
	return reflect.DeepEqual(a, b)
}

func normalizeAll(slots []models.Slot) []NormalizedSlot {
	out := make([]NormalizedSlot, len(slots))
	for i, slot := range slots {
		out[i] = Normalize(slot)
	}
	return out
}

func cloneSlots(slots []models.Slot) []models.Slot {
	out := make([]models.Slot, len(slots))
	for i, slot := range slots {
		out[i] = slot.Clone()
	}
	return out
}
