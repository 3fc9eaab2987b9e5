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
	"github.com/noah-isme/college-attendance-api/internal/repository"
	appErrors "github.com/noah-isme/college-attendance-api/pkg/errors"
)

type teachingAssignmentRepository interface {
	ListActiveByTeacher(ctx context.Context, teacherID string) ([]models.TeachingAssignmentDetail, error)
	DeactivateCohortTx(ctx context.Context, tx *sqlx.Tx, a *models.TeachingAssignment) error
	UpsertTx(ctx context.Context, tx *sqlx.Tx, a *models.TeachingAssignment) error
}

type teacherLookup interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
}

type courseLookup interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// CreateTeachingAssignmentRequest assigns a teacher to a course cohort.
type CreateTeachingAssignmentRequest struct {
	TeacherID    string `json:"teacher_id" validate:"required"`
	CourseID     string `json:"course_id" validate:"required"`
	BranchID     string `json:"branch_id" validate:"required"`
	Semester     int    `json:"semester" validate:"required,min=1,max=12"`
	AcademicYear string `json:"academic_year" validate:"required"`
	Section      string `json:"section" validate:"omitempty,oneof=A B C D"`
}

// TeachingAssignmentService manages which teacher teaches which cohort.
type TeachingAssignmentService struct {
	repo      teachingAssignmentRepository
	teachers  teacherLookup
	courses   courseLookup
	tx        txProvider
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTeachingAssignmentService constructs the service.
func NewTeachingAssignmentService(repo teachingAssignmentRepository, teachers teacherLookup, courses courseLookup, tx txProvider, validate *validator.Validate, logger *zap.Logger) *TeachingAssignmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeachingAssignmentService{repo: repo, teachers: teachers, courses: courses, tx: tx, validator: validate, logger: logger}
}

// Create hands the cohort to the given teacher: any active assignment for the same course,
// branch, semester, academic year and section is deactivated, then the new one is activated.
func (s *TeachingAssignmentService) Create(ctx context.Context, req CreateTeachingAssignmentRequest) (*models.TeachingAssignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teaching assignment payload")
	}
	if _, err := s.teachers.FindByID(ctx, req.TeacherID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	if _, err := s.courses.FindByID(ctx, req.CourseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if s.tx == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}

	section := models.Section(req.Section)
	if section == "" {
		section = models.SectionA
	}
	assignment := &models.TeachingAssignment{
		TeacherID:    req.TeacherID,
		CourseID:     req.CourseID,
		BranchID:     req.BranchID,
		Semester:     req.Semester,
		AcademicYear: strings.TrimSpace(req.AcademicYear),
		Section:      section,
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

	if err = s.repo.DeactivateCohortTx(ctx, tx, assignment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate previous assignments")
	}
	if err = s.repo.UpsertTx(ctx, tx, assignment); err != nil {
		if repository.IsForeignKeyViolation(err) {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "referenced record does not exist")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create teaching assignment")
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit teaching assignment")
	}

	s.logger.Info("teaching assignment created",
		zap.String("assignment_id", assignment.ID),
		zap.String("teacher_id", assignment.TeacherID),
		zap.String("course_id", assignment.CourseID),
	)
	return assignment, nil
}

// ListForTeacher returns the caller's active assignments.
func (s *TeachingAssignmentService) ListForTeacher(ctx context.Context, actor models.Actor) ([]models.TeachingAssignmentDetail, error) {
	if err := requireTeacher(actor); err != nil {
		return nil, err
	}
	assignments, err := s.repo.ListActiveByTeacher(ctx, actor.TeacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teaching assignments")
	}
	if assignments == nil {
		assignments = []models.TeachingAssignmentDetail{}
	}
	return assignments, nil
}
