package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/college-attendance-api/internal/models"
	appErrors "github.com/noah-isme/college-attendance-api/pkg/errors"
)

type studentEnrollmentReader interface {
	ListActiveByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error)
	FindByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
}

type studentAttendanceReader interface {
	CountsByStudent(ctx context.Context, studentID string) ([]models.EnrollmentAttendanceCount, error)
	HistoryByEnrollment(ctx context.Context, enrollmentID string) ([]models.CourseAttendanceEntry, error)
}

type overviewCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// StudentAttendanceConfig tunes the dashboard.
type StudentAttendanceConfig struct {
	Thresholds models.StatusThresholds
	CacheTTL   time.Duration
}

// StudentAttendanceService serves a student's own enrollments and attendance.
type StudentAttendanceService struct {
	enrollments studentEnrollmentReader
	attendance  studentAttendanceReader
	cache       overviewCache
	logger      *zap.Logger
	cfg         StudentAttendanceConfig
}

// NewStudentAttendanceService constructs the dashboard service.
func NewStudentAttendanceService(enrollments studentEnrollmentReader, attendance studentAttendanceReader, cache overviewCache, logger *zap.Logger, cfg StudentAttendanceConfig) *StudentAttendanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Thresholds == (models.StatusThresholds{}) {
		cfg.Thresholds = models.DefaultStatusThresholds
	}
	return &StudentAttendanceService{
		enrollments: enrollments,
		attendance:  attendance,
		cache:       cache,
		logger:      logger,
		cfg:         cfg,
	}
}

// Enrollments lists the caller's active enrollments.
func (s *StudentAttendanceService) Enrollments(ctx context.Context, actor models.Actor) ([]models.EnrollmentDetail, error) {
	if err := requireStudent(actor); err != nil {
		return nil, err
	}
	enrollments, err := s.enrollments.ListActiveByStudent(ctx, actor.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollments")
	}
	if enrollments == nil {
		enrollments = []models.EnrollmentDetail{}
	}
	return enrollments, nil
}

// Overview returns per-course and overall attendance percentages for the caller.
func (s *StudentAttendanceService) Overview(ctx context.Context, actor models.Actor) (*models.AttendanceOverview, error) {
	if err := requireStudent(actor); err != nil {
		return nil, err
	}
	key := overviewCacheKey(actor.StudentID)
	if s.cache != nil {
		var cached models.AttendanceOverview
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	counts, err := s.attendance.CountsByStudent(ctx, actor.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance overview")
	}

	overview := &models.AttendanceOverview{
		StudentID: actor.StudentID,
		Courses:   make([]models.CourseAttendanceSummary, 0, len(counts)),
	}
	for _, count := range counts {
		overview.Courses = append(overview.Courses, s.summarise(count.EnrollmentID, count.CourseCode, count.CourseName, count.AttendedSessions, count.TotalSessions))
		overview.TotalSessions += count.TotalSessions
		overview.AttendedSessions += count.AttendedSessions
	}
	overview.Percentage = models.Percentage(overview.AttendedSessions, overview.TotalSessions)
	overview.Status = s.cfg.Thresholds.Classify(overview.Percentage)

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, overview, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("failed to cache attendance overview", zap.String("student_id", actor.StudentID), zap.Error(err))
		}
	}
	return overview, nil
}

// CourseAttendance returns the session history of one of the caller's enrollments.
func (s *StudentAttendanceService) CourseAttendance(ctx context.Context, actor models.Actor, enrollmentID string) (*models.CourseAttendance, error) {
	if err := requireStudent(actor); err != nil {
		return nil, err
	}
	enrollment, err := s.enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.StudentID != actor.StudentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not authorized to view this enrollment")
	}

	entries, err := s.attendance.HistoryByEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course attendance")
	}
	if entries == nil {
		entries = []models.CourseAttendanceEntry{}
	}
	attended := 0
	for _, entry := range entries {
		if entry.Present {
			attended++
		}
	}

	return &models.CourseAttendance{
		Enrollment: *enrollment,
		Entries:    entries,
		Summary:    s.summarise(enrollment.ID, enrollment.CourseCode, enrollment.CourseName, attended, len(entries)),
	}, nil
}

func (s *StudentAttendanceService) summarise(enrollmentID, code, name string, attended, total int) models.CourseAttendanceSummary {
	percentage := models.Percentage(attended, total)
	return models.CourseAttendanceSummary{
		EnrollmentID:     enrollmentID,
		CourseCode:       code,
		CourseName:       name,
		TotalSessions:    total,
		AttendedSessions: attended,
		Percentage:       percentage,
		Status:           s.cfg.Thresholds.Classify(percentage),
	}
}
