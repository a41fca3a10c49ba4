package dto

import (
	"github.com/noah-isme/driving-school-api/internal/models"
	"github.com/noah-isme/driving-school-api/internal/reconcile"
)

// BeginSessionRequest opens an edit session over an instructor schedule.
type BeginSessionRequest struct {
	InstructorID string `json:"instructorId" validate:"required"`
}

// RecordSlotsRequest records one or more slot creations.
type RecordSlotsRequest struct {
	Slots []models.Slot `json:"slots" validate:"required,min=1,max=500,dive"`
}

// RecordSlotsResponse returns the slots as they were added to the live schedule.
type RecordSlotsResponse struct {
	Created []models.Slot        `json:"created"`
	Skipped int                  `json:"skipped"`
	Summary models.LedgerSummary `json:"summary"`
}

// RecordUpdateResponse returns the replacement slot for an edit.
type RecordUpdateResponse struct {
	Slot    models.Slot          `json:"slot"`
	Summary models.LedgerSummary `json:"summary"`
}

// RecordDeleteRequest tunes a slot deletion.
type RecordDeleteRequest struct {
	BreakRecurrence bool `form:"breakRecurrence"`
}

// RecordDeleteResponse echoes the removed slot.
type RecordDeleteResponse struct {
	Slot    models.Slot          `json:"slot"`
	Summary models.LedgerSummary `json:"summary"`
}

// SessionDiffResponse reports what saving the session would do.
type SessionDiffResponse struct {
	SessionID         string           `json:"sessionId"`
	HasUnsavedChanges bool             `json:"hasUnsavedChanges"`
	Report            reconcile.Report `json:"report"`
}

// SessionSummaryResponse aggregates the pending changes of a session.
type SessionSummaryResponse struct {
	SessionID string                                       `json:"sessionId"`
	Summary   models.LedgerSummary                         `json:"summary"`
	ByAction  map[models.ActionType][]models.PendingChange `json:"byAction"`
}

// PreviewDiffRequest reconciles two schedules without a session.
type PreviewDiffRequest struct {
	Original []models.Slot `json:"original" validate:"omitempty,dive"`
	Current  []models.Slot `json:"current" validate:"omitempty,dive"`
}

// SaveSessionResponse reports the outcome of persisting a session.
type SaveSessionResponse struct {
	SessionID            string            `json:"sessionId"`
	Saved                bool              `json:"saved"`
	CreatedTicketClasses map[string]string `json:"createdTicketClasses"`
	UpdatedTicketClasses []string          `json:"updatedTicketClasses"`
	DeletedTicketClasses []string          `json:"deletedTicketClasses"`
	PersistedSlots       int               `json:"persistedSlots"`
	Diff                 models.DiffResult `json:"diff"`
}

// ExportSessionQuery selects the export format.
type ExportSessionQuery struct {
	Format string `form:"format" validate:"omitempty,oneof=csv pdf"`
}
