package reconcile

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/driving-school-api/internal/models"
)

// DeleteOptions tunes RecordDelete.
type DeleteOptions struct {
	// BreakRecurrence detaches the slot from its recurrence group before the
	// deletion is recorded so siblings stay untouched.
	BreakRecurrence bool
}

// SessionSnapshot is a read-only copy of a session's state.
type SessionSnapshot struct {
	ID                string                 `json:"id"`
	InstructorID      string                 `json:"instructorId"`
	Original          []models.Slot          `json:"original"`
	Current           []models.Slot          `json:"current"`
	Pending           []models.PendingChange `json:"pending"`
	Summary           models.LedgerSummary   `json:"summary"`
	HasUnsavedChanges bool                   `json:"hasUnsavedChanges"`
	StartedAt         time.Time              `json:"startedAt"`
	TouchedAt         time.Time              `json:"touchedAt"`
}

// Session is one operator's edit session over an instructor schedule. It owns
// the live current schedule and the ledger of pending changes. A session is
// not safe for concurrent use; callers serialise access.
type Session struct {
	id           string
	instructorID string
	engine       *Engine
	logger       *zap.Logger
	now          func() time.Time
	newID        func() string
	onPurge      func(ticketClassID string)

	original   []models.Slot
	current    []models.Slot
	pending    map[string]models.PendingChange
	order      []string
	enrichment map[string]models.TicketClass
	startedAt  time.Time
	touchedAt  time.Time
}

// SessionOption configures a session.
type SessionOption func(*Session)

// WithEngine sets the diff engine used by the session.
func WithEngine(engine *Engine) SessionOption {
	return func(s *Session) {
		if engine != nil {
			s.engine = engine
		}
	}
}

// WithSessionLogger sets the session logger.
func WithSessionLogger(logger *zap.Logger) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides local id generation.
func WithIDGenerator(gen func() string) SessionOption {
	return func(s *Session) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithPurgeHook is invoked with the ticket class id of every deleted slot.
func WithPurgeHook(hook func(ticketClassID string)) SessionOption {
	return func(s *Session) {
		s.onPurge = hook
	}
}

// NewSession creates an empty session. Call Begin to load the persisted schedule.
func NewSession(id, instructorID string, opts ...SessionOption) *Session {
	s := &Session{
		id:           id,
		instructorID: instructorID,
		logger:       zap.NewNop(),
		now:          time.Now,
		newID:        uuid.NewString,
		pending:      make(map[string]models.PendingChange),
		enrichment:   make(map[string]models.TicketClass),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.engine == nil {
		s.engine = NewEngine(WithLogger(s.logger))
	}
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// InstructorID returns the instructor whose schedule is being edited.
func (s *Session) InstructorID() string { return s.instructorID }

// TouchedAt returns the time of the last recorded activity.
func (s *Session) TouchedAt() time.Time { return s.touchedAt }

// Begin loads the last persisted schedule and resets the ledger.
func (s *Session) Begin(original []models.Slot) {
	s.original = cloneSlots(original)
	s.current = cloneSlots(original)
	s.pending = make(map[string]models.PendingChange)
	s.order = nil
	s.enrichment = make(map[string]models.TicketClass)
	s.startedAt = s.now().UTC()
	s.touchedAt = s.startedAt
}

// Original returns a copy of the persisted snapshot.
func (s *Session) Original() []models.Slot { return cloneSlots(s.original) }

// Current returns a copy of the live edited schedule.
func (s *Session) Current() []models.Slot { return cloneSlots(s.current) }

// Find looks up a live slot by its slot id.
func (s *Session) Find(slotID string) (models.Slot, bool) {
	for _, slot := range s.current {
		if slot.SlotID == slotID {
			return slot.Clone(), true
		}
	}
	return models.Slot{}, false
}

// SetEnrichment caches display data for a ticket class.
func (s *Session) SetEnrichment(tc models.TicketClass) {
	s.enrichment[tc.ID] = tc
}

// Enrichment returns cached display data for a ticket class.
func (s *Session) Enrichment(ticketClassID string) (models.TicketClass, bool) {
	tc, ok := s.enrichment[ticketClassID]
	return tc, ok
}

// RecordCreate builds a new slot, logs the creation and appends it to the live
// schedule so it is visible immediately.
func (s *Session) RecordCreate(input models.Slot) models.Slot {
	slot := s.buildSlot(input)
	s.record(models.ChangeKindCreate, slot, nil)
	s.current = append(s.current, slot.Clone())
	return slot
}

// RecordCreateBatch records several creations at once, skipping any slot that
// duplicates the live schedule or an earlier member of the batch.
func (s *Session) RecordCreateBatch(inputs []models.Slot) []models.Slot {
	seen := make(map[string]struct{}, len(s.current)+len(inputs))
	for _, slot := range s.current {
		seen[fingerprint(slot)] = struct{}{}
	}
	created := make([]models.Slot, 0, len(inputs))
	for _, input := range inputs {
		fp := fingerprint(input)
		if _, dup := seen[fp]; dup {
			s.logger.Debug("skipping duplicate slot in batch", zap.String("fingerprint", fp))
			continue
		}
		seen[fp] = struct{}{}
		slot := s.buildSlot(input)
		s.record(models.ChangeKindCreate, slot, nil)
		created = append(created, slot)
	}
	for _, slot := range created {
		s.current = append(s.current, slot.Clone())
	}
	return created
}

// RecordUpdate merges the patch over the original slot under a new identity,
// detaches it from its recurrence group when needed and logs the change. The
// live schedule is left untouched; apply the result with ApplyUpdate.
func (s *Session) RecordUpdate(original models.Slot, patch models.SlotPatch) (models.Slot, error) {
	updated := patch.Apply(original)
	updated.SlotID = s.newID()
	updated.OriginalSlotID = original.SlotID
	updated.OriginalTicketClassID = original.TicketClassID
	if original.HasEditLineage() {
		// lineage always points at the persisted slot, never at an earlier edit
		updated.OriginalSlotID = original.OriginalSlotID
		updated.OriginalTicketClassID = original.OriginalTicketClassID
	}

	switch {
	case original.Category() == updated.Category():
		updated.TicketClassID = original.TicketClassID
	case updated.Category() == models.CategoryTicketClass:
		updated.TicketClassID = models.TemporaryTicketClassPrefix + s.newID()
	default:
		updated.TicketClassID = ""
	}

	if IsRecurrenceBreak(original) {
		updated.CreatedAsRecurrence = false
		updated.OriginalRecurrenceGroup = ""
		updated.Recurrence = models.RecurrenceNone
	}

	id := changeID(original)
	if existing, ok := s.pending[id]; ok && existing.Kind == models.ChangeKindCreate {
		// still unsaved, so the edit folds into the pending creation
		updated.SlotID = original.SlotID
		updated.OriginalSlotID, updated.OriginalTicketClassID = "", ""
		if updated.Category() == models.CategoryTicketClass && !updated.HasTemporaryTicketClass() {
			updated.TicketClassID = models.TemporaryTicketClassPrefix + s.newID()
		}
		s.store(id, models.PendingChange{Kind: models.ChangeKindCreate, Slot: updated.Clone(), Analysis: classifyCreate(updated)})
		return updated, nil
	}

	prev := original.Clone()
	if rootID := lineageChangeID(original); rootID != "" {
		if existing, ok := s.pending[rootID]; ok && existing.Kind == models.ChangeKindUpdate && existing.Previous != nil {
			id = rootID
			prev = existing.Previous.Clone()
		}
	}
	if err := s.recordWithKey(id, models.ChangeKindUpdate, updated, &prev); err != nil {
		return models.Slot{}, err
	}
	return updated, nil
}

// ApplyUpdate swaps the original slot for its replacement in the live schedule.
func (s *Session) ApplyUpdate(original, updated models.Slot) bool {
	idx := s.indexOf(original)
	if idx < 0 {
		return false
	}
	s.current[idx] = updated.Clone()
	s.touch()
	return true
}

// RecordDelete logs the deletion, removes the slot from the live schedule and
// purges cached enrichment for its ticket class.
func (s *Session) RecordDelete(slot models.Slot, opts DeleteOptions) {
	target := slot.Clone()
	analysis := classifyDelete(slot)
	if opts.BreakRecurrence {
		target.CreatedAsRecurrence = false
		target.OriginalRecurrenceGroup = ""
		target.Recurrence = models.RecurrenceNone
	}
	id := changeID(slot)
	if rootID := lineageChangeID(slot); rootID != "" {
		// deleting an edit deletes the persisted slot it replaced
		if existing, ok := s.pending[rootID]; ok && existing.Kind == models.ChangeKindUpdate && existing.Previous != nil {
			id = rootID
			target = existing.Previous.Clone()
			analysis = classifyDelete(target)
			if opts.BreakRecurrence {
				target.CreatedAsRecurrence = false
				target.OriginalRecurrenceGroup = ""
				target.Recurrence = models.RecurrenceNone
			}
		}
	}
	if existing, ok := s.pending[id]; ok && existing.Kind == models.ChangeKindCreate {
		s.drop(id)
	} else {
		s.store(id, models.PendingChange{Kind: models.ChangeKindDelete, Slot: target, Analysis: analysis})
	}

	if idx := s.indexOf(slot); idx >= 0 {
		s.current = append(s.current[:idx], s.current[idx+1:]...)
	}
	if slot.TicketClassID != "" {
		delete(s.enrichment, slot.TicketClassID)
		if s.onPurge != nil && slot.HasPersistedTicketClass() {
			s.onPurge(slot.TicketClassID)
		}
	}
}

// Count returns the number of pending changes.
func (s *Session) Count() int {
	return len(s.order)
}

// Pending returns the pending changes in recording order.
func (s *Session) Pending() []models.PendingChange {
	out := make([]models.PendingChange, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.pending[id])
	}
	return out
}

// Summary aggregates the pending changes.
func (s *Session) Summary() models.LedgerSummary {
	summary := models.LedgerSummary{Total: len(s.order)}
	for _, change := range s.Pending() {
		switch change.Kind {
		case models.ChangeKindCreate:
			summary.Creates++
		case models.ChangeKindUpdate:
			summary.Updates++
		case models.ChangeKindDelete:
			summary.Deletes++
		}
		switch change.Slot.Category() {
		case models.CategoryTicketClass:
			summary.TicketClassCount++
		case models.CategoryDrivingTest:
			summary.DrivingTestCount++
		}
	}
	return summary
}

// ByActionType groups pending changes by their classified action.
func (s *Session) ByActionType() map[models.ActionType][]models.PendingChange {
	out := make(map[models.ActionType][]models.PendingChange)
	for _, change := range s.Pending() {
		out[change.Analysis.ActionType] = append(out[change.Analysis.ActionType], change)
	}
	return out
}

// Diff reconciles the live schedule against the persisted snapshot.
func (s *Session) Diff() models.DiffResult {
	return s.engine.Diff(s.original, s.current)
}

// Explain is Diff with deletion verdicts.
func (s *Session) Explain() Report {
	return s.engine.Explain(s.original, s.current)
}

// HasUnsavedChanges reports whether the live schedule differs from the snapshot.
func (s *Session) HasUnsavedChanges() bool {
	return s.Diff().HasChanges()
}

// Snapshot copies the session state.
func (s *Session) Snapshot() SessionSnapshot {
	return SessionSnapshot{
		ID:                s.id,
		InstructorID:      s.instructorID,
		Original:          s.Original(),
		Current:           s.Current(),
		Pending:           s.Pending(),
		Summary:           s.Summary(),
		HasUnsavedChanges: s.HasUnsavedChanges(),
		StartedAt:         s.startedAt,
		TouchedAt:         s.touchedAt,
	}
}

// Commit adopts the persisted schedule as the new baseline and clears the ledger.
// A nil schedule adopts the live schedule as is.
func (s *Session) Commit(persisted []models.Slot) {
	if persisted == nil {
		persisted = s.current
	}
	s.original = cloneSlots(persisted)
	s.current = cloneSlots(persisted)
	s.Clear()
}

// Clear drops every pending change.
func (s *Session) Clear() {
	s.pending = make(map[string]models.PendingChange)
	s.order = nil
	s.touch()
}

func (s *Session) buildSlot(input models.Slot) models.Slot {
	slot := input.Clone()
	if slot.SlotID == "" {
		slot.SlotID = s.newID()
	}
	if slot.Category() == models.CategoryTicketClass && slot.TicketClassID == "" {
		slot.TicketClassID = models.TemporaryTicketClassPrefix + s.newID()
	}
	if slot.Status == "" {
		slot.Status = models.SlotStatusAvailable
	}
	if slot.Recurrence == "" {
		slot.Recurrence = models.RecurrenceNone
	}
	return slot
}

func (s *Session) record(kind models.ChangeKind, slot models.Slot, prev *models.Slot) {
	// create and delete never fail classification
	_ = s.recordWithKey(changeID(slot), kind, slot, prev)
}

func (s *Session) recordWithKey(id string, kind models.ChangeKind, slot models.Slot, prev *models.Slot) error {
	analysis, err := Classify(kind, slot, prev)
	if err != nil {
		return err
	}
	s.store(id, models.PendingChange{Kind: kind, Slot: slot.Clone(), Previous: prev, Analysis: analysis})
	return nil
}

func (s *Session) store(id string, change models.PendingChange) {
	change.ID = id
	change.RecordedAt = s.now().UTC()
	if _, exists := s.pending[id]; !exists {
		s.order = append(s.order, id)
	}
	s.pending[id] = change
	s.touch()
	s.logger.Debug("pending schedule change recorded",
		zap.String("session_id", s.id),
		zap.String("change_id", id),
		zap.String("action", string(change.Analysis.ActionType)),
	)
}

func (s *Session) drop(id string) {
	delete(s.pending, id)
	for i, candidate := range s.order {
		if candidate == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.touch()
}

func (s *Session) indexOf(slot models.Slot) int {
	for i, candidate := range s.current {
		if slot.SlotID != "" && candidate.SlotID == slot.SlotID {
			return i
		}
	}
	key := KeyOf(slot, RoleCurrent)
	for i, candidate := range s.current {
		if KeyOf(candidate, RoleCurrent) == key {
			return i
		}
	}
	return -1
}

func (s *Session) touch() {
	s.touchedAt = s.now().UTC()
}

func changeID(slot models.Slot) string {
	switch {
	case slot.SlotID != "":
		return slot.SlotID
	case slot.TicketClassID != "":
		return slot.TicketClassID
	default:
		return NormalizeDate(slot.Date) + "-" + NormalizeTime(slot.Start)
	}
}

// lineageChangeID is the change id of the persisted slot an edit descends from.
func lineageChangeID(slot models.Slot) string {
	if slot.OriginalSlotID != "" {
		return slot.OriginalSlotID
	}
	return slot.OriginalTicketClassID
}

func fingerprint(slot models.Slot) string {
	n := Normalize(slot)
	return n.Date + "|" + n.Start + "|" + n.End + "|" + string(n.ClassType)
}
