package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cadenza-app/lesson-api/internal/models"
	"github.com/cadenza-app/lesson-api/pkg/export"
	appErrors "github.com/cadenza-app/lesson-api/pkg/errors"
)

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportFormat enumerates supported schedule export formats.
type ExportFormat string

const (
	FormatCSV ExportFormat = "csv"
	FormatPDF ExportFormat = "pdf"
)

// ExportResult carries a rendered schedule document.
type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders a teacher's effective schedule as CSV or PDF.
type ExportService struct {
	schedule teacherScheduleProvider
	csv      csvRenderer
	pdf      pdfRenderer
	logger   *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(schedule teacherScheduleProvider, csv csvRenderer, pdf pdfRenderer, logger *zap.Logger) *ExportService {
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{schedule: schedule, csv: csv, pdf: pdf, logger: logger}
}

// TeacherSchedule renders the teacher's effective schedule for the window.
func (s *ExportService) TeacherSchedule(ctx context.Context, teacherID string, from, to time.Time, format ExportFormat) (*ExportResult, error) {
	occurrences, err := s.schedule.EffectiveScheduleForTeacher(ctx, teacherID, from, to)
	if err != nil {
		return nil, err
	}

	dataset := scheduleDataset(occurrences)
	stamp := time.Now().UTC().Format("20060102T150405")

	switch format {
	case FormatCSV:
		data, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render CSV export")
		}
		return &ExportResult{
			Filename:    fmt.Sprintf("schedule_%s_%s.csv", teacherID, stamp),
			ContentType: "text/csv",
			Data:        data,
		}, nil
	case FormatPDF:
		title := fmt.Sprintf("Lesson Schedule %s - %s", from.Format("2006-01-02"), to.Format("2006-01-02"))
		data, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render PDF export")
		}
		return &ExportResult{
			Filename:    fmt.Sprintf("schedule_%s_%s.pdf", teacherID, stamp),
			ContentType: "application/pdf",
			Data:        data,
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
}

func scheduleDataset(occurrences []models.EffectiveOccurrence) export.Dataset {
	dataset := export.Dataset{
		Headers: []string{"Date", "Start", "Duration (min)", "Agreement", "Student", "Status"},
	}
	for _, occ := range occurrences {
		status := "scheduled"
		switch {
		case occ.Cancelled:
			status = "cancelled"
		case occ.Moved:
			status = fmt.Sprintf("moved from %s", occ.OriginalDate.Format("2006-01-02"))
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Date":           occ.Date.Format("2006-01-02"),
			"Start":          occ.StartTime,
			"Duration (min)": fmt.Sprintf("%d", occ.DurationMinutes),
			"Agreement":      shortID(occ.AgreementID),
			"Student":        shortID(occ.StudentID),
			"Status":         status,
		})
	}
	return dataset
}

// shortID truncates UUIDs to their first segment for readable documents.
func shortID(id string) string {
	if idx := strings.Index(id, "-"); idx > 0 {
		return id[:idx]
	}
	return id
}
