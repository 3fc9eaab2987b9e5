package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/college-attendance-api/internal/models"
)

const userColumns = `id, email, password_hash, first_name, last_name, role, created_at, updated_at`

// UserRepository provides database access for user management.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail returns a user by email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, strings.ToLower(email)); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if err == sql.ErrNoRows || IsInvalidText(err) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// CreateTx inserts a user inside tx.
func (r *UserRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, user *models.User) error {
	if tx == nil {
		return fmt.Errorf("nil transaction provided")
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	user.Email = strings.ToLower(user.Email)

	const query = `INSERT INTO users (id, email, password_hash, first_name, last_name, role, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := tx.ExecContext(ctx, query, user.ID, user.Email, user.PasswordHash, user.FirstName, user.LastName, user.Role, user.CreatedAt, user.UpdatedAt); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

type userProfileRow struct {
	models.User
	StudentID       sql.NullString `db:"student_id"`
	RollNumber      sql.NullString `db:"roll_number"`
	CurrentSemester sql.NullInt64  `db:"current_semester"`
	BranchID        sql.NullString `db:"branch_id"`
	Section         sql.NullString `db:"section"`
	TeacherID       sql.NullString `db:"teacher_id"`
	EmployeeID      sql.NullString `db:"employee_id"`
	AdminID         sql.NullString `db:"admin_id"`
}

func (row userProfileRow) profile() models.UserProfile {
	p := models.UserProfile{User: row.User}
	if row.StudentID.Valid {
		p.Student = &models.Student{
			ID:              row.StudentID.String,
			UserID:          row.User.ID,
			RollNumber:      row.RollNumber.String,
			CurrentSemester: int(row.CurrentSemester.Int64),
			BranchID:        row.BranchID.String,
			Section:         models.Section(row.Section.String),
		}
	}
	if row.TeacherID.Valid {
		p.Teacher = &models.Teacher{ID: row.TeacherID.String, UserID: row.User.ID, EmployeeID: row.EmployeeID.String}
	}
	if row.AdminID.Valid {
		p.Admin = &models.Admin{ID: row.AdminID.String, UserID: row.User.ID}
	}
	return p
}

// FindProfile returns a user with its role profile.
func (r *UserRepository) FindProfile(ctx context.Context, id string) (*models.UserProfile, error) {
	query := profileSelect + ` WHERE u.id = $1 LIMIT 1`
	var row userProfileRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if err == sql.ErrNoRows || IsInvalidText(err) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find user profile: %w", err)
	}
	p := row.profile()
	return &p, nil
}

const profileSelect = `SELECT u.id, u.email, u.password_hash, u.first_name, u.last_name, u.role, u.created_at, u.updated_at,
s.id AS student_id, s.roll_number, s.current_semester, s.branch_id, s.section,
t.id AS teacher_id, t.employee_id, a.id AS admin_id
FROM users u
LEFT JOIN students s ON s.user_id = u.id
LEFT JOIN teachers t ON t.user_id = u.id
LEFT JOIN admins a ON a.user_id = u.id`

// List returns users with their profiles filtered by role and student branch.
func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]models.UserProfile, int, error) {
	var conditions []string
	var args []interface{}

	if filter.Role != nil {
		conditions = append(conditions, fmt.Sprintf("u.role = $%d", len(args)+1))
		args = append(args, *filter.Role)
	}
	if filter.BranchID != "" {
		conditions = append(conditions, fmt.Sprintf("s.branch_id = $%d", len(args)+1))
		args = append(args, filter.BranchID)
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("%s%s ORDER BY u.created_at DESC LIMIT %d OFFSET %d", profileSelect, where, pageSize, offset)
	var rows []userProfileRow
	if err := r.db.SelectContext(ctx, &rows, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	countQuery := `SELECT COUNT(*) FROM users u LEFT JOIN students s ON s.user_id = u.id` + where
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	profiles := make([]models.UserProfile, len(rows))
	for i, row := range rows {
		profiles[i] = row.profile()
	}
	return profiles, total, nil
}
