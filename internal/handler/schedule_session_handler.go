package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/driving-school-api/internal/dto"
	"github.com/noah-isme/driving-school-api/internal/models"
	"github.com/noah-isme/driving-school-api/internal/reconcile"
	"github.com/noah-isme/driving-school-api/internal/service"
	appErrors "github.com/noah-isme/driving-school-api/pkg/errors"
	"github.com/noah-isme/driving-school-api/pkg/response"
)

type scheduleSessions interface {
	BeginSession(ctx context.Context, req dto.BeginSessionRequest) (*reconcile.SessionSnapshot, error)
	GetSession(ctx context.Context, sessionID string) (*reconcile.SessionSnapshot, error)
	RecordCreate(ctx context.Context, sessionID string, req dto.RecordSlotsRequest) (*dto.RecordSlotsResponse, error)
	RecordUpdate(ctx context.Context, sessionID, slotID string, patch models.SlotPatch) (*dto.RecordUpdateResponse, error)
	RecordDelete(ctx context.Context, sessionID, slotID string, req dto.RecordDeleteRequest) (*dto.RecordDeleteResponse, error)
	Diff(ctx context.Context, sessionID string) (*dto.SessionDiffResponse, error)
	Summary(ctx context.Context, sessionID string) (*dto.SessionSummaryResponse, error)
	Preview(ctx context.Context, req dto.PreviewDiffRequest) (*reconcile.Report, error)
	Save(ctx context.Context, sessionID string) (*dto.SaveSessionResponse, error)
	Discard(ctx context.Context, sessionID string) error
}

type sessionExporter interface {
	Export(ctx context.Context, sessionID, format string) (*service.ExportResult, error)
}

// ScheduleSessionHandler exposes instructor schedule edit sessions.
type ScheduleSessionHandler struct {
	service  scheduleSessions
	exporter sessionExporter
}

// NewScheduleSessionHandler constructs the handler.
func NewScheduleSessionHandler(svc *service.ScheduleSyncService, exporter *service.ExportService) *ScheduleSessionHandler {
	return &ScheduleSessionHandler{service: svc, exporter: exporter}
}

// Begin godoc
// @Summary Open an edit session over an instructor schedule
// @Description Loads the persisted schedule as the session baseline. Ticket-class slots are enriched with their roster, capacity and price.
// @Tags Schedule
// @Produce json
// @Param id path string true "Instructor ID"
// @Success 201 {object} response.Envelope
// @Router /instructors/{id}/schedule/sessions [post]
func (h *ScheduleSessionHandler) Begin(c *gin.Context) {
	snapshot, err := h.service.BeginSession(c.Request.Context(), dto.BeginSessionRequest{InstructorID: c.Param("id")})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, snapshot)
}

// Get godoc
// @Summary Get an edit session snapshot
// @Tags Schedule
// @Produce json
// @Param sessionId path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Router /schedule/sessions/{sessionId} [get]
func (h *ScheduleSessionHandler) Get(c *gin.Context) {
	snapshot, err := h.service.GetSession(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, snapshot, nil)
}

// CreateSlots godoc
// @Summary Record slot creations
// @Description A single slot is recorded as-is. Batches skip slots identical to a pending creation.
// @Tags Schedule
// @Accept json
// @Produce json
// @Param sessionId path string true "Session ID"
// @Param payload body dto.RecordSlotsRequest true "Slots to create"
// @Success 201 {object} response.Envelope
// @Router /schedule/sessions/{sessionId}/slots [post]
func (h *ScheduleSessionHandler) CreateSlots(c *gin.Context) {
	var req dto.RecordSlotsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid slots payload"))
		return
	}
	result, err := h.service.RecordCreate(c.Request.Context(), c.Param("sessionId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// UpdateSlot godoc
// @Summary Record a slot edit
// @Tags Schedule
// @Accept json
// @Produce json
// @Param sessionId path string true "Session ID"
// @Param slotId path string true "Slot ID"
// @Param payload body models.SlotPatch true "Edited fields"
// @Success 200 {object} response.Envelope
// @Router /schedule/sessions/{sessionId}/slots/{slotId} [put]
func (h *ScheduleSessionHandler) UpdateSlot(c *gin.Context) {
	var patch models.SlotPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid slot payload"))
		return
	}
	result, err := h.service.RecordUpdate(c.Request.Context(), c.Param("sessionId"), c.Param("slotId"), patch)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// DeleteSlot godoc
// @Summary Record a slot deletion
// @Tags Schedule
// @Produce json
// @Param sessionId path string true "Session ID"
// @Param slotId path string true "Slot ID"
// @Param breakRecurrence query bool false "Remove only this occurrence of a recurring slot"
// @Success 200 {object} response.Envelope
// @Router /schedule/sessions/{sessionId}/slots/{slotId} [delete]
func (h *ScheduleSessionHandler) DeleteSlot(c *gin.Context) {
	var req dto.RecordDeleteRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid delete parameters"))
		return
	}
	result, err := h.service.RecordDelete(c.Request.Context(), c.Param("sessionId"), c.Param("slotId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Diff godoc
// @Summary Reconcile the live schedule against the baseline
// @Tags Schedule
// @Produce json
// @Param sessionId path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /schedule/sessions/{sessionId}/diff [get]
func (h *ScheduleSessionHandler) Diff(c *gin.Context) {
	result, err := h.service.Diff(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Summary godoc
// @Summary Summarise pending changes
// @Tags Schedule
// @Produce json
// @Param sessionId path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /schedule/sessions/{sessionId}/summary [get]
func (h *ScheduleSessionHandler) Summary(c *gin.Context) {
	result, err := h.service.Summary(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Export godoc
// @Summary Download pending changes and the reconciliation plan
// @Tags Schedule
// @Produce text/csv
// @Produce application/pdf
// @Param sessionId path string true "Session ID"
// @Param format query string false "csv or pdf" Enums(csv, pdf)
// @Success 200 {file} file
// @Router /schedule/sessions/{sessionId}/export [get]
func (h *ScheduleSessionHandler) Export(c *gin.Context) {
	var query dto.ExportSessionQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export parameters"))
		return
	}
	result, err := h.exporter.Export(c.Request.Context(), c.Param("sessionId"), query.Format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, result.Filename, result.ContentType, result.Payload)
}

// Save godoc
// @Summary Persist the session
// @Description Runs the reconciliation once more and applies it in a single transaction.
// @Tags Schedule
// @Produce json
// @Param sessionId path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /schedule/sessions/{sessionId}/save [post]
func (h *ScheduleSessionHandler) Save(c *gin.Context) {
	result, err := h.service.Save(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Discard godoc
// @Summary Discard an edit session
// @Tags Schedule
// @Param sessionId path string true "Session ID"
// @Success 204
// @Router /schedule/sessions/{sessionId} [delete]
func (h *ScheduleSessionHandler) Discard(c *gin.Context) {
	if err := h.service.Discard(c.Request.Context(), c.Param("sessionId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Preview godoc
// @Summary Reconcile two schedules without a session
// @Tags Schedule
// @Accept json
// @Produce json
// @Param payload body dto.PreviewDiffRequest true "Original and current schedules"
// @Success 200 {object} response.Envelope
// @Router /schedule/diff [post]
func (h *ScheduleSessionHandler) Preview(c *gin.Context) {
	var req dto.PreviewDiffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid preview payload"))
		return
	}
	report, err := h.service.Preview(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// RegisterRoutes mounts the session endpoints on a router group.
func (h *ScheduleSessionHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("/instructors/:id/schedule/sessions", h.Begin)
	group.POST("/schedule/diff", h.Preview)

	sessions := group.Group("/schedule/sessions/:sessionId")
	sessions.GET("", h.Get)
	sessions.DELETE("", h.Discard)
	sessions.POST("/slots", h.CreateSlots)
	sessions.PUT("/slots/:slotId", h.UpdateSlot)
	sessions.DELETE("/slots/:slotId", h.DeleteSlot)
	sessions.GET("/diff", h.Diff)
	sessions.GET("/summary", h.Summary)
	sessions.GET("/export", h.Export)
	sessions.POST("/save", h.Save)
}
