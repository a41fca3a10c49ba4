package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/driving-school-api/internal/dto"
	"github.com/noah-isme/driving-school-api/internal/models"
	"github.com/noah-isme/driving-school-api/internal/reconcile"
	appErrors "github.com/noah-isme/driving-school-api/pkg/errors"
)

// Save outcomes reported to metrics.
const (
	saveOutcomeCommitted = "committed"
	saveOutcomeNoop      = "noop"
	saveOutcomeFailed    = "failed"
)

type instructorSlotStore interface {
	ListByInstructor(ctx context.Context, instructorID string) ([]models.InstructorSlot, error)
	ReplaceForInstructor(ctx context.Context, exec sqlx.ExtContext, instructorID string, rows []models.InstructorSlot) error
}

type ticketClassWriter interface {
	Create(ctx context.Context, exec sqlx.ExtContext, tc *models.TicketClass) error
	Update(ctx context.Context, exec sqlx.ExtContext, tc *models.TicketClass) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type ticketClassEnricher interface {
	LookupMany(ctx context.Context, ids []string) (map[string]models.TicketClass, error)
	ScheduleRefresh(ids ...string)
	SchedulePurge(ids ...string)
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// ScheduleSyncConfig governs reconciliation behaviour.
type ScheduleSyncConfig struct {
	// Policy overrides the default deletion guards when set.
	Policy *reconcile.Policy
}

// ScheduleSyncService runs operator edit sessions over instructor schedules and
// persists the reconciled result.
type ScheduleSyncService struct {
	slots     instructorSlotStore
	tickets   ticketClassWriter
	enricher  ticketClassEnricher
	tx        txProvider
	store     *SessionStore
	engine    *reconcile.Engine
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	newID     func() string
}

// NewScheduleSyncService wires schedule sync dependencies.
func NewScheduleSyncService(
	slots instructorSlotStore,
	tickets ticketClassWriter,
	enricher ticketClassEnricher,
	tx txProvider,
	store *SessionStore,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg ScheduleSyncConfig,
) *ScheduleSyncService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if store == nil {
		store = NewSessionStore(SessionStoreConfig{})
	}
	policy := reconcile.DefaultPolicy()
	if cfg.Policy != nil {
		policy = *cfg.Policy
	}
	opts := []reconcile.EngineOption{reconcile.WithPolicy(policy), reconcile.WithLogger(logger.Named("reconcile"))}
	if metrics != nil {
		opts = append(opts, reconcile.WithGuardObserver(metrics))
	}
	return &ScheduleSyncService{
		slots:     slots,
		tickets:   tickets,
		enricher:  enricher,
		tx:        tx,
		store:     store,
		engine:    reconcile.NewEngine(opts...),
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		newID:     uuid.NewString,
	}
}

// BeginSession loads the persisted schedule of an instructor and opens an edit session over it.
func (s *ScheduleSyncService) BeginSession(ctx context.Context, req dto.BeginSessionRequest) (*reconcile.SessionSnapshot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	rows, err := s.slots.ListByInstructor(ctx, req.InstructorID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instructor schedule")
	}
	original := slotsFromRows(rows)

	var classes map[string]models.TicketClass
	if s.enricher != nil {
		classes, err = s.enricher.LookupMany(ctx, persistedTicketClassIDs(original))
		if err != nil {
			s.logger.Warn("ticket class enrichment unavailable", zap.String("instructor_id", req.InstructorID), zap.Error(err))
			classes = nil
		}
	}
	for i, slot := range original {
		if tc, ok := classes[slot.TicketClassID]; ok {
			original[i] = mergeTicketClass(slot, tc)
		}
	}

	session := reconcile.NewSession(s.newID(), req.InstructorID,
		reconcile.WithEngine(s.engine),
		reconcile.WithSessionLogger(s.logger),
		reconcile.WithPurgeHook(s.purgeTicketClass),
	)
	session.Begin(original)
	for _, tc := range classes {
		session.SetEnrichment(tc)
	}
	s.store.Put(session)

	s.logger.Info("schedule session opened",
		zap.String("session_id", session.ID()),
		zap.String("instructor_id", req.InstructorID),
		zap.Int("slots", len(original)),
	)
	snapshot := session.Snapshot()
	return &snapshot, nil
}

// GetSession returns the current state of a session.
func (s *ScheduleSyncService) GetSession(ctx context.Context, sessionID string) (*reconcile.SessionSnapshot, error) {
	var snapshot reconcile.SessionSnapshot
	err := s.store.With(sessionID, func(session *reconcile.Session) error {
		snapshot = session.Snapshot()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// RecordCreate adds one or more slots to the live schedule. Batches skip slots
// that duplicate an existing slot or an earlier member of the batch.
func (s *ScheduleSyncService) RecordCreate(ctx context.Context, sessionID string, req dto.RecordSlotsRequest) (*dto.RecordSlotsResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid slot payload")
	}
	resp := &dto.RecordSlotsResponse{}
	err := s.store.With(sessionID, func(session *reconcile.Session) error {
		if len(req.Slots) == 1 {
			resp.Created = []models.Slot{session.RecordCreate(req.Slots[0])}
		} else {
			resp.Created = session.RecordCreateBatch(req.Slots)
		}
		resp.Summary = session.Summary()
		return nil
	})
	if err != nil {
		return nil, err
	}
	resp.Skipped = len(req.Slots) - len(resp.Created)
	for range resp.Created {
		s.metrics.RecordPendingChange(models.ActionSimpleSlotCreate)
	}
	return resp, nil
}

// RecordUpdate applies an edit to a live slot. The edited slot replaces the
// original under a new identity.
func (s *ScheduleSyncService) RecordUpdate(ctx context.Context, sessionID, slotID string, patch models.SlotPatch) (*dto.RecordUpdateResponse, error) {
	resp := &dto.RecordUpdateResponse{}
	var action models.ActionType
	err := s.store.With(sessionID, func(session *reconcile.Session) error {
		original, ok := session.Find(slotID)
		if !ok {
			return appErrors.Clone(appErrors.ErrNotFound, "slot not found in session")
		}
		updated, err := session.RecordUpdate(original, patch)
		if err != nil {
			return err
		}
		session.ApplyUpdate(original, updated)
		action = lastAction(session, updated.SlotID)
		resp.Slot = updated
		resp.Summary = session.Summary()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordPendingChange(action)
	return resp, nil
}

// RecordDelete removes a slot from the live schedule.
func (s *ScheduleSyncService) RecordDelete(ctx context.Context, sessionID, slotID string, req dto.RecordDeleteRequest) (*dto.RecordDeleteResponse, error) {
	resp := &dto.RecordDeleteResponse{}
	err := s.store.With(sessionID, func(session *reconcile.Session) error {
		slot, ok := session.Find(slotID)
		if !ok {
			return appErrors.Clone(appErrors.ErrNotFound, "slot not found in session")
		}
		session.RecordDelete(slot, reconcile.DeleteOptions{BreakRecurrence: req.BreakRecurrence})
		resp.Slot = slot
		resp.Summary = session.Summary()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordPendingChange(models.ActionSimpleSlotDelete)
	return resp, nil
}

// Diff reconciles the live schedule of a session against its persisted snapshot.
func (s *ScheduleSyncService) Diff(ctx context.Context, sessionID string) (*dto.SessionDiffResponse, error) {
	resp := &dto.SessionDiffResponse{SessionID: sessionID}
	err := s.store.With(sessionID, func(session *reconcile.Session) error {
		resp.Report = s.explain(session.Original(), session.Current())
		resp.HasUnsavedChanges = resp.Report.HasChanges()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Summary aggregates the pending changes of a session.
func (s *ScheduleSyncService) Summary(ctx context.Context, sessionID string) (*dto.SessionSummaryResponse, error) {
	resp := &dto.SessionSummaryResponse{SessionID: sessionID}
	err := s.store.With(sessionID, func(session *reconcile.Session) error {
		resp.Summary = session.Summary()
		resp.ByAction = session.ByActionType()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Preview reconciles two schedules supplied by the caller.
func (s *ScheduleSyncService) Preview(ctx context.Context, req dto.PreviewDiffRequest) (*reconcile.Report, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid diff payload")
	}
	report := s.explain(req.Original, req.Current)
	return &report, nil
}

// Discard closes a session without saving.
func (s *ScheduleSyncService) Discard(ctx context.Context, sessionID string) error {
	if !s.store.Delete(sessionID) {
		return appErrors.ErrSessionExpired
	}
	s.logger.Info("schedule session discarded", zap.String("session_id", sessionID))
	return nil
}

// Save persists the reconciled schedule of a session in one transaction and
// makes the result the new baseline of the session.
func (s *ScheduleSyncService) Save(ctx context.Context, sessionID string) (*dto.SaveSessionResponse, error) {
	var resp *dto.SaveSessionResponse
	err := s.store.With(sessionID, func(session *reconcile.Session) error {
		out, err := s.persist(ctx, session)
		if err != nil {
			return err
		}
		resp = out
		return nil
	})
	if err != nil {
		if !errors.Is(err, appErrors.ErrSessionExpired) {
			s.metrics.RecordSave(saveOutcomeFailed)
		}
		return nil, err
	}
	return resp, nil
}

func (s *ScheduleSyncService) persist(ctx context.Context, session *reconcile.Session) (resp *dto.SaveSessionResponse, err error) {
	original := session.Original()
	current := session.Current()
	report := s.explain(original, current)

	resp = &dto.SaveSessionResponse{
		SessionID:            session.ID(),
		CreatedTicketClasses: map[string]string{},
		UpdatedTicketClasses: []string{},
		DeletedTicketClasses: []string{},
		Diff:                 report.DiffResult,
	}
	if !report.HasChanges() {
		s.metrics.RecordSave(saveOutcomeNoop)
		return resp, nil
	}
	if s.tx == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	plan := newSavePlan(original, current, report)

	for _, slot := range plan.ticketCreates {
		tc := ticketClassFromSlot("", slot)
		if err = s.tickets.Create(ctx, tx, &tc); err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create ticket class")
			return nil, err
		}
		plan.resolve(slot, tc.ID)
		local := slot.TicketClassID
		if local == "" {
			local = slot.SlotID
		}
		resp.CreatedTicketClasses[local] = tc.ID
	}

	for _, slot := range plan.ticketUpdates {
		tc := ticketClassFromSlot(slot.TicketClassID, slot)
		if err = s.tickets.Update(ctx, tx, &tc); err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update ticket class")
				return nil, err
			}
			if err = s.tickets.Create(ctx, tx, &tc); err != nil {
				err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to recreate ticket class")
				return nil, err
			}
		}
		resp.UpdatedTicketClasses = append(resp.UpdatedTicketClasses, tc.ID)
	}

	persisted := plan.persistedSchedule()
	rows := make([]models.InstructorSlot, 0, len(persisted))
	for _, slot := range persisted {
		rows = append(rows, rowFromSlot(slot))
	}
	for i := range persisted {
		persisted[i].SlotID = rows[i].SlotID
	}
	if err = s.slots.ReplaceForInstructor(ctx, tx, session.InstructorID(), rows); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist instructor schedule")
		return nil, err
	}

	for _, id := range plan.ticketDeletes(persisted) {
		if err = s.tickets.Delete(ctx, tx, id); err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete ticket class")
			return nil, err
		}
		resp.DeletedTicketClasses = append(resp.DeletedTicketClasses, id)
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit schedule transaction")
		return nil, err
	}

	session.Commit(persisted)
	resp.Saved = true
	resp.PersistedSlots = len(rows)
	s.metrics.RecordSave(saveOutcomeCommitted)

	if s.enricher != nil {
		refresh := append(mapValues(resp.CreatedTicketClasses), resp.UpdatedTicketClasses...)
		s.enricher.ScheduleRefresh(refresh...)
		s.enricher.SchedulePurge(resp.DeletedTicketClasses...)
	}

	s.logger.Info("schedule session saved",
		zap.String("session_id", session.ID()),
		zap.String("instructor_id", session.InstructorID()),
		zap.Int("created", len(report.ToCreate)),
		zap.Int("updated", len(report.ToUpdate)),
		zap.Int("deleted", len(report.ToDelete)),
		zap.Int("kept", len(report.ToKeep)),
	)
	return resp, nil
}

func (s *ScheduleSyncService) explain(original, current []models.Slot) reconcile.Report {
	start := time.Now()
	report := s.engine.Explain(original, current)
	s.metrics.ObserveDiff(report.DiffResult, time.Since(start))
	return report
}

func (s *ScheduleSyncService) purgeTicketClass(ticketClassID string) {
	if s.enricher != nil {
		s.enricher.SchedulePurge(ticketClassID)
	}
}

func lastAction(session *reconcile.Session, slotID string) models.ActionType {
	pending := session.Pending()
	for i := len(pending) - 1; i >= 0; i-- {
		if pending[i].Slot.SlotID == slotID {
			return pending[i].Analysis.ActionType
		}
	}
	return models.ActionSimpleSlotUpdate
}

func mapValues(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}
