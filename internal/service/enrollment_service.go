package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/college-attendance-api/internal/models"
	appErrors "github.com/noah-isme/college-attendance-api/pkg/errors"
)

type enrollmentWriter interface {
	UpsertActive(ctx context.Context, enrollment *models.Enrollment, keepSection bool) error
	UpsertActiveTx(ctx context.Context, tx *sqlx.Tx, enrollment *models.Enrollment, keepSection bool) error
}

type enrollmentStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.Student, error)
}

type enrollmentCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.Course, error)
}

// EnrollStudentRequest enrolls one student in one course.
type EnrollStudentRequest struct {
	StudentID    string `json:"student_id" validate:"required"`
	CourseID     string `json:"course_id" validate:"required"`
	Semester     int    `json:"semester" validate:"required,min=1,max=12"`
	AcademicYear string `json:"academic_year" validate:"required"`
	Section      string `json:"section" validate:"omitempty,oneof=A B C D"`
}

// BatchEnrollRequest enrolls every listed student in every listed course.
type BatchEnrollRequest struct {
	StudentIDs   []string `json:"student_ids" validate:"required,min=1,dive,required"`
	CourseIDs    []string `json:"course_ids" validate:"required,min=1,dive,required"`
	Semester     int      `json:"semester" validate:"required,min=1,max=12"`
	AcademicYear string   `json:"academic_year" validate:"required"`
	Section      string   `json:"section" validate:"omitempty,oneof=A B C D"`
}

// EnrollmentService creates and reactivates enrollments.
type EnrollmentService struct {
	repo      enrollmentWriter
	students  enrollmentStudentReader
	courses   enrollmentCourseReader
	tx        txProvider
	cache     cacheKeyDeleter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentWriter, students enrollmentStudentReader, courses enrollmentCourseReader, tx txProvider, cache cacheKeyDeleter, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, students: students, courses: courses, tx: tx, cache: cache, validator: validate, logger: logger}
}

// Enroll creates the enrollment or reactivates an existing one for the same term.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollStudentRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if _, err := s.courses.FindByID(ctx, req.CourseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	enrollment := &models.Enrollment{
		StudentID:    student.ID,
		CourseID:     req.CourseID,
		Semester:     req.Semester,
		AcademicYear: strings.TrimSpace(req.AcademicYear),
		Section:      enrollmentSection(req.Section, *student),
	}
	if err := s.repo.UpsertActive(ctx, enrollment, req.Section == ""); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll student")
	}
	s.invalidate(ctx, []string{student.ID})
	return enrollment, nil
}

// BatchEnroll upserts the cross product of students and courses in one transaction.
func (s *EnrollmentService) BatchEnroll(ctx context.Context, req BatchEnrollRequest) ([]models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch enrollment payload")
	}
	studentIDs := uniqueStrings(req.StudentIDs)
	courseIDs := uniqueStrings(req.CourseIDs)

	students, err := s.students.FindByIDs(ctx, studentIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load students")
	}
	studentByID := make(map[string]models.Student, len(students))
	for _, student := range students {
		studentByID[student.ID] = student
	}
	if missing := missingIDs(studentIDs, func(id string) bool { _, ok := studentByID[id]; return ok }); len(missing) > 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown students: "+strings.Join(missing, ", "))
	}

	courses, err := s.courses.FindByIDs(ctx, courseIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load courses")
	}
	knownCourses := make(map[string]struct{}, len(courses))
	for _, course := range courses {
		knownCourses[course.ID] = struct{}{}
	}
	if missing := missingIDs(courseIDs, func(id string) bool { _, ok := knownCourses[id]; return ok }); len(missing) > 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown courses: "+strings.Join(missing, ", "))
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

	academicYear := strings.TrimSpace(req.AcademicYear)
	keepSection := req.Section == ""
	enrollments := make([]models.Enrollment, 0, len(studentIDs)*len(courseIDs))
	for _, studentID := range studentIDs {
		student := studentByID[studentID]
		for _, courseID := range courseIDs {
			enrollment := models.Enrollment{
				StudentID:    studentID,
				CourseID:     courseID,
				Semester:     req.Semester,
				AcademicYear: academicYear,
				Section:      enrollmentSection(req.Section, student),
			}
			if err = s.repo.UpsertActiveTx(ctx, tx, &enrollment, keepSection); err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll students")
			}
			enrollments = append(enrollments, enrollment)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit enrollments")
	}
	s.invalidate(ctx, studentIDs)
	s.logger.Info("batch enrollment applied", zap.Int("students", len(studentIDs)), zap.Int("courses", len(courseIDs)), zap.Int("enrollments", len(enrollments)))
	return enrollments, nil
}

func (s *EnrollmentService) invalidate(ctx context.Context, studentIDs []string) {
	if s.cache == nil || len(studentIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(studentIDs))
	for _, id := range studentIDs {
		keys = append(keys, overviewCacheKey(id))
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.logger.Warn("failed to invalidate overview cache", zap.Int("keys", len(keys)), zap.Error(err))
	}
}

// enrollmentSection picks the requested section, falling back to the student's own.
// The fallback only applies to new rows; a reactivated enrollment keeps its section.
func enrollmentSection(requested string, student models.Student) models.Section {
	if requested != "" {
		return models.Section(requested)
	}
	return student.Section.EnrollableSection()
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func missingIDs(ids []string, known func(string) bool) []string {
	var missing []string
	for _, id := range ids {
		if !known(id) {
			missing = append(missing, id)
		}
	}
	return missing
}
