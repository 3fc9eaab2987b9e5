package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/college-attendance-api/internal/models"
	appErrors "github.com/noah-isme/college-attendance-api/pkg/errors"
)

const (
	reasonNotEnrolled      = "student not enrolled in this class section"
	reasonEnrollmentLookup = "failed to verify enrollment"
	reasonStorage          = "failed to record attendance"
	reasonUnknownRoll      = "roll number not found"
)

type enrollmentMatcher interface {
	FindActiveForStudent(ctx context.Context, studentID string, scope models.RosterScope) (*models.Enrollment, error)
}

type attendanceStore interface {
	Upsert(ctx context.Context, record *models.Attendance) (*models.Attendance, error)
	FindByID(ctx context.Context, id string) (*models.Attendance, error)
	UpdatePresence(ctx context.Context, id string, present bool, markedBy string, markedAt time.Time) (*models.Attendance, error)
	ListBySession(ctx context.Context, sessionID string) ([]models.SessionAttendanceRow, error)
	SessionStatsByAssignment(ctx context.Context, assignmentID string) ([]models.SessionStat, error)
	StudentStatsByAssignment(ctx context.Context, assignmentID string) ([]models.StudentStat, error)
}

type rollNumberResolver interface {
	FindByRollNumbers(ctx context.Context, rollNumbers []string) ([]models.Student, error)
}

type sessionSheetRenderer interface {
	RenderSession(session models.Session, rows []models.SessionAttendanceRow, format ExportFormat) (*ExportResult, error)
}

// ReconcileRequest is a teacher's batch of presence marks for one session.
type ReconcileRequest struct {
	Records []models.AttendanceMark `json:"attendance_records" validate:"required,min=1,dive"`
}

// UpdateAttendanceRequest flips a single attendance row.
type UpdateAttendanceRequest struct {
	Present *bool `json:"present" validate:"required"`
}

// MarkByRollNumbersRequest marks every listed roll number with the same presence.
type MarkByRollNumbersRequest struct {
	RollNumbers []string `json:"roll_numbers" validate:"required,min=1,dive,required"`
	Present     bool     `json:"present"`
}

// AttendanceServiceConfig tunes reconciliation.
type AttendanceServiceConfig struct {
	Concurrency int
}

// AttendanceService applies teacher marks to session rosters and reports on them.
type AttendanceService struct {
	sessions    sessionReader
	assignments assignmentReader
	enrollments enrollmentMatcher
	attendance  attendanceStore
	students    rollNumberResolver
	exporter    sessionSheetRenderer
	cache       cacheKeyDeleter
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         AttendanceServiceConfig
	now         func() time.Time
}

// NewAttendanceService wires attendance dependencies.
func NewAttendanceService(
	sessions sessionReader,
	assignments assignmentReader,
	enrollments enrollmentMatcher,
	attendance attendanceStore,
	students rollNumberResolver,
	exporter sessionSheetRenderer,
	cache cacheKeyDeleter,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg AttendanceServiceConfig,
) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if exporter == nil {
		exporter = NewExportService(logger, nil, nil)
	}
	return &AttendanceService{
		sessions:    sessions,
		assignments: assignments,
		enrollments: enrollments,
		attendance:  attendance,
		students:    students,
		exporter:    exporter,
		cache:       cache,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Reconcile applies each mark independently. A mark for a student without an active
// enrollment in the assignment's cohort fails alone; the others are still written.
// Outcomes are returned in submission order.
func (s *AttendanceService) Reconcile(ctx context.Context, actor models.Actor, sessionID string, req ReconcileRequest) (*models.ReconcileResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "attendance records array is required")
	}
	if err := ensureDistinctStudents(req.Records); err != nil {
		return nil, err
	}
	session, assignment, err := ownedSession(ctx, s.sessions, s.assignments, actor, sessionID)
	if err != nil {
		return nil, err
	}
	return s.reconcile(ctx, actor, session, assignment, req.Records), nil
}

func (s *AttendanceService) reconcile(ctx context.Context, actor models.Actor, session *models.Session, assignment *models.TeachingAssignment, marks []models.AttendanceMark) *models.ReconcileResult {
	start := time.Now()
	scope := assignment.RosterScope()
	markedAt := s.now()
	results := make([]models.AttendanceOutcome, len(marks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, mark := range marks {
		i, mark := i, mark
		g.Go(func() error {
			results[i] = s.reconcileOne(gctx, actor, session.ID, scope, mark, markedAt)
			return nil
		})
	}
	_ = g.Wait()

	result := &models.ReconcileResult{SessionID: session.ID, Results: results}
	result.Tally()

	s.invalidateStudents(ctx, results)
	s.metrics.ObserveReconcile(*result, time.Since(start))
	s.logger.Info("attendance reconciled",
		zap.String("session_id", session.ID),
		zap.Int("processed", result.Processed),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
	)
	return result
}

func (s *AttendanceService) reconcileOne(ctx context.Context, actor models.Actor, sessionID string, scope models.RosterScope, mark models.AttendanceMark, markedAt time.Time) models.AttendanceOutcome {
	outcome := models.AttendanceOutcome{StudentID: mark.StudentID, Status: models.OutcomeFailed}

	enrollment, err := s.enrollments.FindActiveForStudent(ctx, mark.StudentID, scope)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			outcome.Reason = reasonNotEnrolled
			return outcome
		}
		s.logger.Warn("enrollment lookup failed", zap.String("session_id", sessionID), zap.String("student_id", mark.StudentID), zap.Error(err))
		outcome.Reason = reasonEnrollmentLookup
		return outcome
	}

	record, err := s.attendance.Upsert(ctx, &models.Attendance{
		SessionID:    sessionID,
		StudentID:    mark.StudentID,
		EnrollmentID: enrollment.ID,
		Present:      mark.Present,
		MarkedBy:     actor.UserID,
		MarkedAt:     markedAt,
	})
	if err != nil {
		s.logger.Warn("attendance upsert failed", zap.String("session_id", sessionID), zap.String("student_id", mark.StudentID), zap.Error(err))
		outcome.Reason = reasonStorage
		return outcome
	}

	outcome.Status = models.OutcomeSuccess
	outcome.Attendance = record
	return outcome
}

// MarkByRollNumbers resolves roll numbers to students and reconciles them with one presence value.
// Unknown roll numbers are reported as failed outcomes in their submitted position.
func (s *AttendanceService) MarkByRollNumbers(ctx context.Context, actor models.Actor, sessionID string, req MarkByRollNumbersRequest) (*models.ReconcileResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "roll numbers are required")
	}
	rollNumbers := make([]string, 0, len(req.RollNumbers))
	seen := make(map[string]struct{}, len(req.RollNumbers))
	for _, raw := range req.RollNumbers {
		roll := strings.TrimSpace(raw)
		if roll == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "roll numbers must not be blank")
		}
		if _, dup := seen[roll]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, "duplicate roll number "+roll)
		}
		seen[roll] = struct{}{}
		rollNumbers = append(rollNumbers, roll)
	}

	session, assignment, err := ownedSession(ctx, s.sessions, s.assignments, actor, sessionID)
	if err != nil {
		return nil, err
	}

	students, err := s.students.FindByRollNumbers(ctx, rollNumbers)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve roll numbers")
	}
	byRoll := make(map[string]string, len(students))
	for _, student := range students {
		byRoll[student.RollNumber] = student.ID
	}

	marks := make([]models.AttendanceMark, 0, len(rollNumbers))
	for _, roll := range rollNumbers {
		if id, ok := byRoll[roll]; ok {
			marks = append(marks, models.AttendanceMark{StudentID: id, Present: req.Present})
		}
	}

	reconciled := s.reconcile(ctx, actor, session, assignment, marks)

	results := make([]models.AttendanceOutcome, 0, len(rollNumbers))
	next := 0
	for _, roll := range rollNumbers {
		if _, ok := byRoll[roll]; !ok {
			results = append(results, models.AttendanceOutcome{RollNumber: roll, Status: models.OutcomeFailed, Reason: reasonUnknownRoll})
			continue
		}
		outcome := reconciled.Results[next]
		outcome.RollNumber = roll
		results = append(results, outcome)
		next++
	}
	result := &models.ReconcileResult{SessionID: session.ID, Results: results}
	result.Tally()
	return result, nil
}

// UpdateRecord sets presence on one attendance row of an owned session.
func (s *AttendanceService) UpdateRecord(ctx context.Context, actor models.Actor, attendanceID string, req UpdateAttendanceRequest) (*models.Attendance, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "present is required")
	}
	if err := requireTeacher(actor); err != nil {
		return nil, err
	}
	record, err := s.attendance.FindByID(ctx, attendanceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance record")
	}
	if _, _, err := ownedSession(ctx, s.sessions, s.assignments, actor, record.SessionID); err != nil {
		return nil, err
	}

	updated, err := s.attendance.UpdatePresence(ctx, attendanceID, *req.Present, actor.UserID, s.now())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update attendance record")
	}
	s.invalidateKeys(ctx, overviewCacheKey(updated.StudentID))
	return updated, nil
}

// SessionAttendance lists an owned session's rows ordered by roll number.
func (s *AttendanceService) SessionAttendance(ctx context.Context, actor models.Actor, sessionID string) ([]models.SessionAttendanceRow, error) {
	_, rows, err := s.sessionRows(ctx, actor, sessionID)
	return rows, err
}

// ExportSession renders an owned session's attendance sheet.
func (s *AttendanceService) ExportSession(ctx context.Context, actor models.Actor, sessionID string, format ExportFormat) (*ExportResult, error) {
	session, rows, err := s.sessionRows(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	return s.exporter.RenderSession(*session, rows, format)
}

func (s *AttendanceService) sessionRows(ctx context.Context, actor models.Actor, sessionID string) (*models.Session, []models.SessionAttendanceRow, error) {
	session, _, err := ownedSession(ctx, s.sessions, s.assignments, actor, sessionID)
	if err != nil {
		return nil, nil, err
	}
	rows, err := s.attendance.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session attendance")
	}
	if rows == nil {
		rows = []models.SessionAttendanceRow{}
	}
	return session, rows, nil
}

// AssignmentStats summarises presence per session and per student for an owned assignment.
func (s *AttendanceService) AssignmentStats(ctx context.Context, actor models.Actor, assignmentID string) (*models.AssignmentStats, error) {
	if _, err := ownedAssignment(ctx, s.assignments, actor, assignmentID); err != nil {
		return nil, err
	}
	sessions, err := s.attendance.SessionStatsByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session statistics")
	}
	students, err := s.attendance.StudentStatsByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student statistics")
	}

	stats := &models.AssignmentStats{
		AssignmentID: assignmentID,
		Sessions:     make([]models.SessionStat, 0, len(sessions)),
		Students:     make([]models.StudentStat, 0, len(students)),
	}
	for _, stat := range sessions {
		stat.Rate = models.Percentage(stat.Present, stat.Present+stat.Absent)
		stats.TotalPresent += stat.Present
		stats.TotalMarks += stat.Present + stat.Absent
		stats.Sessions = append(stats.Sessions, stat)
	}
	for _, stat := range students {
		stat.Rate = models.Percentage(stat.Present, stat.Present+stat.Absent)
		stats.Students = append(stats.Students, stat)
	}
	stats.OverallRate = models.Percentage(stats.TotalPresent, stats.TotalMarks)
	return stats, nil
}

func (s *AttendanceService) invalidateStudents(ctx context.Context, outcomes []models.AttendanceOutcome) {
	keys := make([]string, 0, len(outcomes))
	for _, outcome := range outcomes {
		if outcome.Status == models.OutcomeSuccess {
			keys = append(keys, overviewCacheKey(outcome.StudentID))
		}
	}
	s.invalidateKeys(ctx, keys...)
}

func (s *AttendanceService) invalidateKeys(ctx context.Context, keys ...string) {
	if s.cache == nil || len(keys) == 0 {
		return
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.logger.Warn("failed to invalidate overview cache", zap.Int("keys", len(keys)), zap.Error(err))
	}
}

func ensureDistinctStudents(marks []models.AttendanceMark) error {
	seen := make(map[string]struct{}, len(marks))
	for _, mark := range marks {
		if _, dup := seen[mark.StudentID]; dup {
			return appErrors.Clone(appErrors.ErrValidation, "duplicate student "+mark.StudentID+" in attendance records")
		}
		seen[mark.StudentID] = struct{}{}
	}
	return nil
}
