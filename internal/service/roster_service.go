package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/campusops/invigil-api/internal/models"
	apperrors "github.com/campusops/invigil-api/pkg/errors"
	"github.com/campusops/invigil-api/pkg/export"
)

// Export formats for duty rosters.
const (
	RosterFormatCSV = "csv"
	RosterFormatPDF = "pdf"
)

type rosterAllocationLister interface {
	ListByDate(ctx context.Context, date time.Time) ([]models.Allocation, error)
}

type rosterExamLister interface {
	List(ctx context.Context, filter models.ExamFilter) ([]models.Exam, error)
}

type rosterFacultyLister interface {
	List(ctx context.Context, filter models.FacultyFilter) ([]models.Faculty, error)
}

type rosterClassroomLister interface {
	ListActive(ctx context.Context, campus string) ([]models.Classroom, error)
}

// RosterService renders the daily duty roster as CSV or PDF.
type RosterService struct {
	allocs     rosterAllocationLister
	exams      rosterExamLister
	faculty    rosterFacultyLister
	classrooms rosterClassroomLister
	csv        *export.CSVExporter
	pdf        *export.PDFExporter
	logger     *zap.Logger
}

// NewRosterService constructs a RosterService.
func NewRosterService(allocs rosterAllocationLister, exams rosterExamLister, faculty rosterFacultyLister, classrooms rosterClassroomLister, csv *export.CSVExporter, pdf *export.PDFExporter, logger *zap.Logger) *RosterService {
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter("")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterService{
		allocs:     allocs,
		exams:      exams,
		faculty:    faculty,
		classrooms: classrooms,
		csv:        csv,
		pdf:        pdf,
		logger:     logger,
	}
}

var rosterHeaders = []string{"Date", "Time", "Room", "Invigilator", "Course", "Status", "Acknowledgment"}

// Export renders all non-cancelled duties for one date.
func (s *RosterService) Export(ctx context.Context, date time.Time, format string) ([]byte, string, error) {
	allocations, err := s.allocs.ListByDate(ctx, date)
	if err != nil {
		return nil, "", apperrors.FromError(err)
	}
	if len(allocations) == 0 {
		return nil, "", apperrors.Clone(apperrors.ErrNotFound, "no duties scheduled for the requested date")
	}

	dataset, err := s.buildDataset(ctx, allocations)
	if err != nil {
		return nil, "", err
	}

	switch strings.ToLower(format) {
	case RosterFormatCSV, "":
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, "", apperrors.FromError(err)
		}
		return payload, "text/csv", nil
	case RosterFormatPDF:
		title := fmt.Sprintf("Invigilation Duty Roster %s", dateKey(date))
		payload, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, "", apperrors.FromError(err)
		}
		return payload, "application/pdf", nil
	default:
		return nil, "", apperrors.Clone(apperrors.ErrValidation, fmt.Sprintf("unsupported roster format %q", format))
	}
}

func (s *RosterService) buildDataset(ctx context.Context, allocations []models.Allocation) (export.Dataset, error) {
	facultyNames, err := s.facultyNames(ctx)
	if err != nil {
		return export.Dataset{}, err
	}
	roomNumbers, err := s.roomNumbers(ctx)
	if err != nil {
		return export.Dataset{}, err
	}
	courseNames, err := s.courseNames(ctx, allocations)
	if err != nil {
		return export.Dataset{}, err
	}

	dataset := export.Dataset{Headers: rosterHeaders}
	for _, allocation := range allocations {
		room := ""
		if allocation.ClassroomID != nil {
			room = roomNumbers[*allocation.ClassroomID]
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Date":           dateKey(allocation.Date),
			"Time":           allocation.StartTime + "-" + allocation.EndTime,
			"Room":           room,
			"Invigilator":    facultyNames[allocation.FacultyID],
			"Course":         courseNames[allocation.ExamID],
			"Status":         string(allocation.Status),
			"Acknowledgment": string(allocation.AckStatus),
		})
	}
	return dataset, nil
}

func (s *RosterService) facultyNames(ctx context.Context) (map[string]string, error) {
	faculty, err := s.faculty.List(ctx, models.FacultyFilter{})
	if err != nil {
		return nil, apperrors.FromError(err)
	}
	names := make(map[string]string, len(faculty))
	for _, f := range faculty {
		names[f.ID] = f.FullName
	}
	return names, nil
}

func (s *RosterService) roomNumbers(ctx context.Context) (map[string]string, error) {
	rooms, err := s.classrooms.ListActive(ctx, "")
	if err != nil {
		return nil, apperrors.FromError(err)
	}
	numbers := make(map[string]string, len(rooms))
	for _, room := range rooms {
		numbers[room.ID] = room.Block + "-" + room.RoomNumber
	}
	return numbers, nil
}

func (s *RosterService) courseNames(ctx context.Context, allocations []models.Allocation) (map[string]string, error) {
	seen := make(map[string]bool)
	var ids []string
	for _, allocation := range allocations {
		if !seen[allocation.ExamID] {
			seen[allocation.ExamID] = true
			ids = append(ids, allocation.ExamID)
		}
	}
	exams, err := s.exams.List(ctx, models.ExamFilter{IDs: ids})
	if err != nil {
		return nil, apperrors.FromError(err)
	}
	names := make(map[string]string, len(exams))
	for _, exam := range exams {
		names[exam.ID] = exam.CourseCode + " " + exam.CourseName
	}
	return names, nil
}
