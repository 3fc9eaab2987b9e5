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

const assignmentColumns = `id, teacher_id, course_id, branch_id, semester, academic_year, section, active, created_at`

// TeachingAssignmentRepository persists teacher to cohort assignments.
type TeachingAssignmentRepository struct {
	db *sqlx.DB
}

// NewTeachingAssignmentRepository constructs the repository.
func NewTeachingAssignmentRepository(db *sqlx.DB) *TeachingAssignmentRepository {
	return &TeachingAssignmentRepository{db: db}
}

// FindByID fetches an assignment regardless of its active flag.
func (r *TeachingAssignmentRepository) FindByID(ctx context.Context, id string) (*models.TeachingAssignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM teaching_assignments WHERE id = $1`
	var assignment models.TeachingAssignment
	if err := r.db.GetContext(ctx, &assignment, query, id); err != nil {
		if err == sql.ErrNoRows || IsInvalidText(err) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find teaching assignment: %w", err)
	}
	return &assignment, nil
}

// ListActiveByTeacher returns the teacher's active assignments ordered by course name.
func (r *TeachingAssignmentRepository) ListActiveByTeacher(ctx context.Context, teacherID string) ([]models.TeachingAssignmentDetail, error) {
	const query = `SELECT ta.id, ta.teacher_id, ta.course_id, ta.branch_id, ta.semester, ta.academic_year, ta.section, ta.active, ta.created_at,
c.code AS course_code, c.name AS course_name, b.name AS branch_name
FROM teaching_assignments ta
JOIN courses c ON c.id = ta.course_id
JOIN branches b ON b.id = ta.branch_id
WHERE ta.teacher_id = $1 AND ta.active = TRUE
ORDER BY c.name ASC`
	var assignments []models.TeachingAssignmentDetail
	if err := r.db.SelectContext(ctx, &assignments, query, teacherID); err != nil {
		return nil, fmt.Errorf("list teaching assignments: %w", err)
	}
	return assignments, nil
}

// DeactivateCohortTx turns off every active assignment teaching the same cohort.
func (r *TeachingAssignmentRepository) DeactivateCohortTx(ctx context.Context, tx *sqlx.Tx, a *models.TeachingAssignment) error {
	if tx == nil {
		return fmt.Errorf("nil transaction provided")
	}
	const query = `UPDATE teaching_assignments SET active = FALSE
WHERE course_id = $1 AND branch_id = $2 AND semester = $3 AND academic_year = $4 AND section = $5 AND active = TRUE`
	if _, err := tx.ExecContext(ctx, query, a.CourseID, a.BranchID, a.Semester, a.AcademicYear, a.Section); err != nil {
		return fmt.Errorf("deactivate teaching assignments: %w", err)
	}
	return nil
}

// UpsertTx inserts the assignment as active, reviving an existing row for the same
// teacher, course, branch, semester and academic year.
func (r *TeachingAssignmentRepository) UpsertTx(ctx context.Context, tx *sqlx.Tx, a *models.TeachingAssignment) error {
	if tx == nil {
		return fmt.Errorf("nil transaction provided")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	a.Active = true
	const query = `INSERT INTO teaching_assignments (id, teacher_id, course_id, branch_id, semester, academic_year, section, active, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8)
ON CONFLICT (teacher_id, course_id, branch_id, semester, academic_year)
DO UPDATE SET section = EXCLUDED.section, active = TRUE
RETURNING id, created_at`
	if err := tx.QueryRowxContext(ctx, query, a.ID, a.TeacherID, a.CourseID, a.BranchID, a.Semester, a.AcademicYear, a.Section, a.CreatedAt).Scan(&a.ID, &a.CreatedAt); err != nil {
		return fmt.Errorf("upsert teaching assignment: %w", err)
	}
	return nil
}
