package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/college-attendance-api/internal/models"
)

const courseColumns = `id, code, name, semester, branch_id, created_at`

// CourseRepository persists courses.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs a CourseRepository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// List returns courses with branch names filtered by branch and semester.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.BranchID != "" {
		where = append(where, fmt.Sprintf("c.branch_id = $%d", len(args)+1))
		args = append(args, filter.BranchID)
	}
	if filter.Semester != nil {
		where = append(where, fmt.Sprintf("c.semester = $%d", len(args)+1))
		args = append(args, *filter.Semester)
	}
	query := fmt.Sprintf(`SELECT c.id, c.code, c.name, c.semester, c.branch_id, c.created_at, b.name AS branch_name
FROM courses c JOIN branches b ON b.id = c.branch_id
WHERE %s ORDER BY c.semester ASC, c.code ASC`, strings.Join(where, " AND "))
	var courses []models.CourseDetail
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return courses, nil
}

// FindByID fetches a course.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses WHERE id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		if err == sql.ErrNoRows || IsInvalidText(err) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find course by id: %w", err)
	}
	return &course, nil
}

// FindByIDs fetches every course whose id is in ids.
func (r *CourseRepository) FindByIDs(ctx context.Context, ids []string) ([]models.Course, error) {
	ids = parseableIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + courseColumns + ` FROM courses WHERE id = ANY($1)`
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("find courses by ids: %w", err)
	}
	return courses, nil
}

// Create inserts a course.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	if course.CreatedAt.IsZero() {
		course.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO courses (id, code, name, semester, branch_id, created_at) VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.db.ExecContext(ctx, query, course.ID, course.Code, course.Name, course.Semester, course.BranchID, course.CreatedAt); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}
