package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/college-attendance-api/internal/models"
	"github.com/noah-isme/college-attendance-api/internal/repository"
	appErrors "github.com/noah-isme/college-attendance-api/pkg/errors"
)

type userStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	CreateTx(ctx context.Context, tx *sqlx.Tx, user *models.User) error
	FindProfile(ctx context.Context, id string) (*models.UserProfile, error)
	List(ctx context.Context, filter models.UserFilter) ([]models.UserProfile, int, error)
}

type studentProfileStore interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	CreateTx(ctx context.Context, tx *sqlx.Tx, student *models.Student) error
	UpdateSemesterTx(ctx context.Context, tx *sqlx.Tx, id string, semester int) error
}

type staffProfileStore interface {
	CreateTx(ctx context.Context, tx *sqlx.Tx, teacher *models.Teacher) error
	CreateAdminTx(ctx context.Context, tx *sqlx.Tx, admin *models.Admin) error
}

type enrollmentDeactivator interface {
	DeactivateOtherSemestersTx(ctx context.Context, tx *sqlx.Tx, studentID string, semester int) (int64, error)
}

// CreateUserRequest provisions a user with the profile matching its role.
type CreateUserRequest struct {
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=6"`
	FirstName       string `json:"first_name" validate:"required"`
	LastName        string `json:"last_name" validate:"required"`
	Role            string `json:"role" validate:"required,oneof=ADMIN TEACHER STUDENT"`
	RollNumber      string `json:"roll_number"`
	BranchID        string `json:"branch_id"`
	CurrentSemester int    `json:"current_semester" validate:"omitempty,min=1,max=12"`
	Section         string `json:"section" validate:"omitempty,oneof=A B C D NONE"`
	EmployeeID      string `json:"employee_id"`
}

// PromoteStudentRequest moves a student to another semester.
type PromoteStudentRequest struct {
	NewSemester  int    `json:"new_semester" validate:"required,min=1,max=12"`
	AcademicYear string `json:"academic_year"`
}

// PromotionResult reports the updated student and how many enrollments were closed.
type PromotionResult struct {
	Student                *models.Student `json:"student"`
	DeactivatedEnrollments int64           `json:"deactivated_enrollments"`
}

// UserService manages accounts and their role profiles.
type UserService struct {
	users       userStore
	students    studentProfileStore
	staff       staffProfileStore
	enrollments enrollmentDeactivator
	tx          txProvider
	cache       cacheKeyDeleter
	validator   *validator.Validate
	logger      *zap.Logger
	hashCost    int
}

// NewUserService constructs a UserService.
func NewUserService(users userStore, students studentProfileStore, staff staffProfileStore, enrollments enrollmentDeactivator, tx txProvider, cache cacheKeyDeleter, validate *validator.Validate, logger *zap.Logger) *UserService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{
		users:       users,
		students:    students,
		staff:       staff,
		enrollments: enrollments,
		tx:          tx,
		cache:       cache,
		validator:   validate,
		logger:      logger,
		hashCost:    bcrypt.DefaultCost,
	}
}

// Create inserts the user and its role profile in one transaction.
func (s *UserService) Create(ctx context.Context, req CreateUserRequest) (*models.UserProfile, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Role = strings.ToUpper(strings.TrimSpace(req.Role))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}
	role, _ := models.ParseUserRole(req.Role)
	switch role {
	case models.RoleStudent:
		if strings.TrimSpace(req.RollNumber) == "" || strings.TrimSpace(req.BranchID) == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "roll_number and branch_id are required for students")
		}
	case models.RoleTeacher:
		if strings.TrimSpace(req.EmployeeID) == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "employee_id is required for teachers")
		}
	}

	if _, err := s.users.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "user already exists with this email")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.hashCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
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

	user := &models.User{
		Email:        req.Email,
		PasswordHash: string(hash),
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Role:         role,
	}
	if err = s.users.CreateTx(ctx, tx, user); err != nil {
		return nil, mapDirectoryWriteError(err, "failed to create user")
	}

	profile := &models.UserProfile{User: *user}
	switch role {
	case models.RoleStudent:
		student := &models.Student{
			UserID:          user.ID,
			RollNumber:      strings.TrimSpace(req.RollNumber),
			CurrentSemester: req.CurrentSemester,
			BranchID:        strings.TrimSpace(req.BranchID),
			Section:         models.Section(req.Section),
		}
		if err = s.students.CreateTx(ctx, tx, student); err != nil {
			return nil, mapDirectoryWriteError(err, "failed to create student profile")
		}
		profile.Student = student
	case models.RoleTeacher:
		teacher := &models.Teacher{UserID: user.ID, EmployeeID: strings.TrimSpace(req.EmployeeID)}
		if err = s.staff.CreateTx(ctx, tx, teacher); err != nil {
			return nil, mapDirectoryWriteError(err, "failed to create teacher profile")
		}
		profile.Teacher = teacher
	case models.RoleAdmin:
		admin := &models.Admin{UserID: user.ID}
		if err = s.staff.CreateAdminTx(ctx, tx, admin); err != nil {
			return nil, mapDirectoryWriteError(err, "failed to create admin profile")
		}
		profile.Admin = admin
	}

	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit user")
	}
	s.logger.Info("user created", zap.String("user_id", user.ID), zap.String("role", string(role)))
	return profile, nil
}

// List returns users filtered by role and, for students, branch.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.UserProfile, *models.Pagination, error) {
	if filter.Role != nil && !filter.Role.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "role must be ADMIN, TEACHER or STUDENT")
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 200 {
		filter.PageSize = 50
	}
	users, total, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	if users == nil {
		users = []models.UserProfile{}
	}
	return users, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// PromoteStudent sets the student's current semester. When an academic year is supplied the
// student's enrollments in other semesters are deactivated in the same transaction.
func (s *UserService) PromoteStudent(ctx context.Context, studentID string, req PromoteStudentRequest) (*PromotionResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid promotion payload")
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

	if err = s.students.UpdateSemesterTx(ctx, tx, studentID, req.NewSemester); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update semester")
	}

	var deactivated int64
	if strings.TrimSpace(req.AcademicYear) != "" {
		deactivated, err = s.enrollments.DeactivateOtherSemestersTx(ctx, tx, studentID, req.NewSemester)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate enrollments")
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit promotion")
	}

	if s.cache != nil {
		if cacheErr := s.cache.Delete(ctx, overviewCacheKey(studentID)); cacheErr != nil {
			s.logger.Warn("failed to invalidate overview cache", zap.String("student_id", studentID), zap.Error(cacheErr))
		}
	}

	student, loadErr := s.students.FindByID(ctx, studentID)
	if loadErr != nil {
		return nil, appErrors.Wrap(loadErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	s.logger.Info("student promoted", zap.String("student_id", studentID), zap.Int("semester", req.NewSemester), zap.Int64("deactivated", deactivated))
	return &PromotionResult{Student: student, DeactivatedEnrollments: deactivated}, nil
}

func mapDirectoryWriteError(err error, message string) error {
	switch {
	case repository.IsUniqueViolation(err):
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "email, roll number or employee id already in use")
	case repository.IsForeignKeyViolation(err):
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "referenced record does not exist")
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
	}
}
