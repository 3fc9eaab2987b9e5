package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/college-attendance-api/internal/models"
)

// TeacherRepository handles persistence for teacher and admin profiles.
type TeacherRepository struct {
	db *sqlx.DB
}

// NewTeacherRepository constructs a TeacherRepository.
func NewTeacherRepository(db *sqlx.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

// FindByID fetches a teacher profile.
func (r *TeacherRepository) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	const query = `SELECT id, user_id, employee_id FROM teachers WHERE id = $1`
	var teacher models.Teacher
	if err := r.db.GetContext(ctx, &teacher, query, id); err != nil {
		if err == sql.ErrNoRows || IsInvalidText(err) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find teacher by id: %w", err)
	}
	return &teacher, nil
}

// CreateTx inserts a teacher profile inside tx.
func (r *TeacherRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, teacher *models.Teacher) error {
	if tx == nil {
		return fmt.Errorf("nil transaction provided")
	}
	if teacher.ID == "" {
		teacher.ID = uuid.NewString()
	}
	const query = `INSERT INTO teachers (id, user_id, employee_id) VALUES ($1, $2, $3)`
	if _, err := tx.ExecContext(ctx, query, teacher.ID, teacher.UserID, teacher.EmployeeID); err != nil {
		return fmt.Errorf("create teacher: %w", err)
	}
	return nil
}

// CreateAdminTx inserts an admin profile inside tx.
func (r *TeacherRepository) CreateAdminTx(ctx context.Context, tx *sqlx.Tx, admin *models.Admin) error {
	if tx == nil {
		return fmt.Errorf("nil transaction provided")
	}
	if admin.ID == "" {
		admin.ID = uuid.NewString()
	}
	const query = `INSERT INTO admins (id, user_id) VALUES ($1, $2)`
	if _, err := tx.ExecContext(ctx, query, admin.ID, admin.UserID); err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	return nil
}
