package service

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/college-attendance-api/internal/models"
	appErrors "github.com/noah-isme/college-attendance-api/pkg/errors"
	"github.com/noah-isme/college-attendance-api/pkg/export"
)

// ExportFormat names a downloadable sheet format.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ParseExportFormat normalises a query value, defaulting to CSV.
func ParseExportFormat(raw string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ExportFormatCSV:
		return ExportFormatCSV, nil
	case ExportFormatPDF:
		return ExportFormatPDF, nil
	default:
		return "", appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}

// ExportResult is a rendered file ready to be streamed to the client.
type ExportResult struct {
	Filename    string
	ContentType string
	Payload     []byte
}

type sheetRenderer interface {
	Render(sheet export.Sheet) ([]byte, error)
	ContentType() string
	Extension() string
}

// ExportService renders session attendance sheets.
type ExportService struct {
	renderers map[ExportFormat]sheetRenderer
	logger    *zap.Logger
}

// NewExportService constructs an ExportService. Nil renderers fall back to the package defaults.
func NewExportService(logger *zap.Logger, csv sheetRenderer, pdf sheetRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		renderers: map[ExportFormat]sheetRenderer{
			ExportFormatCSV: csv,
			ExportFormatPDF: pdf,
		},
		logger: logger,
	}
}

var sessionSheetHeaders = []string{"Roll Number", "Student", "Status", "Marked At"}

// RenderSession renders the attendance sheet of one session.
func (s *ExportService) RenderSession(session models.Session, rows []models.SessionAttendanceRow, format ExportFormat) (*ExportResult, error) {
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	present := 0
	dataRows := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		status := "Absent"
		if row.Present {
			status = "Present"
			present++
		}
		dataRows = append(dataRows, map[string]string{
			"Roll Number": row.RollNumber,
			"Student":     strings.TrimSpace(row.FirstName + " " + row.LastName),
			"Status":      status,
			"Marked At":   row.MarkedAt.UTC().Format("2006-01-02 15:04"),
		})
	}

	date := session.Date.Format("2006-01-02")
	summary := []string{fmt.Sprintf("Date: %s", date)}
	if session.Topic != nil {
		summary = append(summary, fmt.Sprintf("Topic: %s", *session.Topic))
	}
	summary = append(summary, fmt.Sprintf("Present: %d of %d (%d%%)", present, len(rows), models.Percentage(present, len(rows))))

	sheet := export.Sheet{
		Title:   fmt.Sprintf("Session Attendance %s", date),
		Summary: summary,
		Data:    export.Dataset{Headers: sessionSheetHeaders, Rows: dataRows},
	}
	payload, err := renderer.Render(sheet)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render attendance sheet")
	}
	s.logger.Debug("attendance sheet rendered", zap.String("session_id", session.ID), zap.String("format", string(format)), zap.Int("bytes", len(payload)))

	return &ExportResult{
		Filename:    fmt.Sprintf("attendance-%s-%s.%s", date, shortID(session.ID), renderer.Extension()),
		ContentType: renderer.ContentType(),
		Payload:     payload,
	}, nil
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
