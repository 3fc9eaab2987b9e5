package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/college-attendance-api/internal/models"
)

const studentColumns = `id, user_id, roll_number, current_semester, branch_id, section`

// StudentRepository handles persistence for student profiles.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindByID fetches a student by id.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE id = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		if err == sql.ErrNoRows || IsInvalidText(err) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find student by id: %w", err)
	}
	return &student, nil
}

// FindByIDs fetches every student whose id is in ids.
func (r *StudentRepository) FindByIDs(ctx context.Context, ids []string) ([]models.Student, error) {
	ids = parseableIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + studentColumns + ` FROM students WHERE id = ANY($1)`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("find students by ids: %w", err)
	}
	return students, nil
}

// FindByRollNumbers resolves roll numbers to student profiles.
func (r *StudentRepository) FindByRollNumbers(ctx context.Context, rollNumbers []string) ([]models.Student, error) {
	if len(rollNumbers) == 0 {
		return nil, nil
	}
	query := `SELECT ` + studentColumns + ` FROM students WHERE roll_number = ANY($1)`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, pq.Array(rollNumbers)); err != nil {
		return nil, fmt.Errorf("find students by roll numbers: %w", err)
	}
	return students, nil
}

// CreateTx inserts a student profile inside tx.
func (r *StudentRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, student *models.Student) error {
	if tx == nil {
		return fmt.Errorf("nil transaction provided")
	}
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	if student.CurrentSemester < 1 {
		student.CurrentSemester = 1
	}
	if student.Section == "" {
		student.Section = models.SectionNone
	}
	const query = `INSERT INTO students (id, user_id, roll_number, current_semester, branch_id, section) VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := tx.ExecContext(ctx, query, student.ID, student.UserID, student.RollNumber, student.CurrentSemester, student.BranchID, student.Section); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// UpdateSemesterTx sets the student's current semester inside tx.
func (r *StudentRepository) UpdateSemesterTx(ctx context.Context, tx *sqlx.Tx, id string, semester int) error {
	if tx == nil {
		return fmt.Errorf("nil transaction provided")
	}
	const query = `UPDATE students SET current_semester = $2 WHERE id = $1`
	res, err := tx.ExecContext(ctx, query, id, semester)
	if err != nil {
		if IsInvalidText(err) {
			return sql.ErrNoRows
		}
		return fmt.Errorf("update student semester: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update student semester rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
