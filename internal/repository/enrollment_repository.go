package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/college-attendance-api/internal/models"
)

const enrollmentColumns = `e.id, e.student_id, e.course_id, e.semester, e.academic_year, e.section, e.active, e.created_at, e.updated_at`

const rosterQuery = `SELECT e.id AS enrollment_id, e.student_id
FROM enrollments e
JOIN students s ON s.id = e.student_id
WHERE e.course_id = $1 AND e.semester = $2 AND e.section = $3 AND s.branch_id = $4 AND e.active = TRUE
ORDER BY s.roll_number ASC`

// EnrollmentRepository manages enrollment persistence.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs an EnrollmentRepository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// ListActiveByScope returns the active enrollments of a cohort ordered by roll number.
func (r *EnrollmentRepository) ListActiveByScope(ctx context.Context, scope models.RosterScope) ([]models.RosterEntry, error) {
	return r.listActiveByScope(ctx, r.db, scope)
}

// ListActiveByScopeTx is ListActiveByScope inside tx.
func (r *EnrollmentRepository) ListActiveByScopeTx(ctx context.Context, tx *sqlx.Tx, scope models.RosterScope) ([]models.RosterEntry, error) {
	if tx == nil {
		return nil, fmt.Errorf("nil transaction provided")
	}
	return r.listActiveByScope(ctx, tx, scope)
}

func (r *EnrollmentRepository) listActiveByScope(ctx context.Context, q sqlx.QueryerContext, scope models.RosterScope) ([]models.RosterEntry, error) {
	var entries []models.RosterEntry
	if err := sqlx.SelectContext(ctx, q, &entries, rosterQuery, scope.CourseID, scope.Semester, scope.Section, scope.BranchID); err != nil {
		return nil, fmt.Errorf("list roster enrollments: %w", err)
	}
	return entries, nil
}

// FindActiveForStudent returns the student's active enrollment within scope.
func (r *EnrollmentRepository) FindActiveForStudent(ctx context.Context, studentID string, scope models.RosterScope) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + `
FROM enrollments e
JOIN students s ON s.id = e.student_id
WHERE e.student_id = $1 AND e.course_id = $2 AND e.semester = $3 AND e.section = $4 AND s.branch_id = $5 AND e.active = TRUE
LIMIT 1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, studentID, scope.CourseID, scope.Semester, scope.Section, scope.BranchID); err != nil {
		if err == sql.ErrNoRows || IsInvalidText(err) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find active enrollment: %w", err)
	}
	return &enrollment, nil
}

// ListActiveByStudent returns the student's active enrollments with course info.
func (r *EnrollmentRepository) ListActiveByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	query := `SELECT ` + enrollmentColumns + `, c.code AS course_code, c.name AS course_name
FROM enrollments e
JOIN courses c ON c.id = e.course_id
WHERE e.student_id = $1 AND e.active = TRUE
ORDER BY c.code ASC`
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return enrollments, nil
}

// FindByID returns an enrollment with course info.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	query := `SELECT ` + enrollmentColumns + `, c.code AS course_code, c.name AS course_name
FROM enrollments e
JOIN courses c ON c.id = e.course_id
WHERE e.id = $1`
	var enrollment models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		if err == sql.ErrNoRows || IsInvalidText(err) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find enrollment by id: %w", err)
	}
	return &enrollment, nil
}

// UpsertActive creates the enrollment or reactivates the existing row for the same
// student, course, semester and academic year. With keepSection a reactivated row keeps
// its stored section and enrollment.Section is updated to it.
func (r *EnrollmentRepository) UpsertActive(ctx context.Context, enrollment *models.Enrollment, keepSection bool) error {
	return r.upsertActive(ctx, r.db, enrollment, keepSection)
}

// UpsertActiveTx is UpsertActive inside tx.
func (r *EnrollmentRepository) UpsertActiveTx(ctx context.Context, tx *sqlx.Tx, enrollment *models.Enrollment, keepSection bool) error {
	if tx == nil {
		return fmt.Errorf("nil transaction provided")
	}
	return r.upsertActive(ctx, tx, enrollment, keepSection)
}

func (r *EnrollmentRepository) upsertActive(ctx context.Context, q sqlx.QueryerContext, enrollment *models.Enrollment, keepSection bool) error {
	now := time.Now().UTC()
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = now
	}
	enrollment.UpdatedAt = now
	enrollment.Active = true
	const query = `INSERT INTO enrollments (id, student_id, course_id, semester, academic_year, section, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7, $8)
ON CONFLICT (student_id, course_id, semester, academic_year)
DO UPDATE SET active = TRUE,
    section = CASE WHEN $9 THEN enrollments.section ELSE EXCLUDED.section END,
    updated_at = EXCLUDED.updated_at
RETURNING id, section, created_at`
	row := q.QueryRowxContext(ctx, query, enrollment.ID, enrollment.StudentID, enrollment.CourseID, enrollment.Semester,
		enrollment.AcademicYear, enrollment.Section, enrollment.CreatedAt, enrollment.UpdatedAt, keepSection)
	if err := row.Scan(&enrollment.ID, &enrollment.Section, &enrollment.CreatedAt); err != nil {
		return fmt.Errorf("upsert enrollment: %w", err)
	}
	return nil
}

// DeactivateOtherSemestersTx deactivates the student's enrollments outside semester.
func (r *EnrollmentRepository) DeactivateOtherSemestersTx(ctx context.Context, tx *sqlx.Tx, studentID string, semester int) (int64, error) {
	if tx == nil {
		return 0, fmt.Errorf("nil transaction provided")
	}
	const query = `UPDATE enrollments SET active = FALSE, updated_at = $3 WHERE student_id = $1 AND semester <> $2 AND active = TRUE`
	res, err := tx.ExecContext(ctx, query, studentID, semester, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("deactivate enrollments: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deactivate enrollments rows: %w", err)
	}
	return affected, nil
}
