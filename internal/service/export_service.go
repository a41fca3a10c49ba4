package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/driving-school-api/internal/dto"
	"github.com/noah-isme/driving-school-api/internal/models"
	"github.com/noah-isme/driving-school-api/internal/reconcile"
	appErrors "github.com/noah-isme/driving-school-api/pkg/errors"
	"github.com/noah-isme/driving-school-api/pkg/export"
)

// Export formats.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

type scheduleSessionReader interface {
	GetSession(ctx context.Context, sessionID string) (*reconcile.SessionSnapshot, error)
	Diff(ctx context.Context, sessionID string) (*dto.SessionDiffResponse, error)
}

type csvRenderer interface {
	RenderReport(report export.Report) ([]byte, error)
}

type pdfRenderer interface {
	RenderReport(report export.Report) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	Title string
}

// ExportResult is a rendered export ready to be streamed.
type ExportResult struct {
	Filename    string
	ContentType string
	Payload     []byte
}

var (
	pendingHeaders = []string{"#", "Kind", "Action", "Class Type", "Date", "Start", "End", "Ticket Class", "Description"}
	planHeaders    = []string{"Operation", "Class Type", "Date", "Start", "End", "Slot", "Ticket Class", "Rule"}
)

// ExportService renders the pending changes and reconciliation plan of a session.
type ExportService struct {
	sessions scheduleSessionReader
	csv      csvRenderer
	pdf      pdfRenderer
	logger   *zap.Logger
	cfg      ExportConfig
	now      func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(sessions scheduleSessionReader, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Title == "" {
		cfg.Title = "Instructor schedule changes"
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{sessions: sessions, csv: csv, pdf: pdf, logger: logger, cfg: cfg, now: time.Now}
}

// Export renders a session in the requested format. An empty format means CSV.
func (s *ExportService) Export(ctx context.Context, sessionID, format string) (*ExportResult, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = ExportFormatCSV
	}
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %s", format))
	}

	snapshot, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	diff, err := s.sessions.Diff(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	generated := s.now().UTC()
	report := export.Report{
		Title:    s.cfg.Title,
		Subtitle: fmt.Sprintf("instructor %s, session %s, generated %s", snapshot.InstructorID, snapshot.ID, generated.Format(time.RFC3339)),
		Sections: []export.Section{
			{Title: "Pending changes", Data: pendingDataset(snapshot.Pending)},
			{Title: "Reconciliation plan", Data: planDataset(diff.Report)},
		},
	}

	result := &ExportResult{Filename: exportFilename(snapshot.InstructorID, generated, format)}
	switch format {
	case ExportFormatPDF:
		result.ContentType = "application/pdf"
		result.Payload, err = s.pdf.RenderReport(report)
	default:
		result.ContentType = "text/csv"
		result.Payload, err = s.csv.RenderReport(report)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	s.logger.Debug("schedule export rendered",
		zap.String("session_id", sessionID),
		zap.String("format", format),
		zap.Int("bytes", len(result.Payload)),
	)
	return result, nil
}

func pendingDataset(changes []models.PendingChange) export.Dataset {
	rows := make([]map[string]string, 0, len(changes))
	for i, change := range changes {
		rows = append(rows, map[string]string{
			"#":            strconv.Itoa(i + 1),
			"Kind":         string(change.Kind),
			"Action":       string(change.Analysis.ActionType),
			"Class Type":   string(change.Slot.ClassType),
			"Date":         reconcile.NormalizeDate(change.Slot.Date),
			"Start":        reconcile.NormalizeTime(change.Slot.Start),
			"End":          reconcile.NormalizeTime(change.Slot.End),
			"Ticket Class": change.Slot.TicketClassID,
			"Description":  change.Analysis.Description,
		})
	}
	return export.Dataset{Headers: pendingHeaders, Rows: rows}
}

func planDataset(report reconcile.Report) export.Dataset {
	rules := make(map[string]string, len(report.Verdicts))
	for _, verdict := range report.Verdicts {
		if verdict.Keep && verdict.SlotID != "" {
			rules[verdict.SlotID] = verdict.Rule
		}
	}
	rows := make([]map[string]string, 0)
	add := func(op string, slot models.Slot) {
		rows = append(rows, map[string]string{
			"Operation":    op,
			"Class Type":   string(slot.ClassType),
			"Date":         reconcile.NormalizeDate(slot.Date),
			"Start":        reconcile.NormalizeTime(slot.Start),
			"End":          reconcile.NormalizeTime(slot.End),
			"Slot":         slot.SlotID,
			"Ticket Class": slot.TicketClassID,
			"Rule":         rules[slot.SlotID],
		})
	}
	for _, slot := range report.ToCreate {
		add("create", slot)
	}
	for _, upd := range report.ToUpdate {
		add("update", upd.New)
	}
	for _, slot := range report.ToDelete {
		add("delete", slot)
	}
	for _, slot := range report.ToKeep {
		if _, guarded := rules[slot.SlotID]; guarded {
			add("keep", slot)
		}
	}
	return export.Dataset{Headers: planHeaders, Rows: rows}
}

func exportFilename(instructorID string, at time.Time, format string) string {
	return fmt.Sprintf("schedule_%s_%s.%s", sanitizeFilename(instructorID), at.Format("20060102_150405"), format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_", "\"", "")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
