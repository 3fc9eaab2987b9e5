package models

import (
	"strings"
	"time"
)

// User represents an application user stored in the users table.
type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	FirstName    string    `db:"first_name" json:"first_name"`
	LastName     string    `db:"last_name" json:"last_name"`
	Role         UserRole  `db:"role" json:"role"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// FullName joins first and last name.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Student is the student profile attached to a STUDENT user.
type Student struct {
	ID              string  `db:"id" json:"id"`
	UserID          string  `db:"user_id" json:"user_id"`
	RollNumber      string  `db:"roll_number" json:"roll_number"`
	CurrentSemester int     `db:"current_semester" json:"current_semester"`
	BranchID        string  `db:"branch_id" json:"branch_id"`
	Section         Section `db:"section" json:"section"`
}

// Teacher is the teacher profile attached to a TEACHER user.
type Teacher struct {
	ID         string `db:"id" json:"id"`
	UserID     string `db:"user_id" json:"user_id"`
	EmployeeID string `db:"employee_id" json:"employee_id"`
}

// Admin is the admin profile attached to an ADMIN user.
type Admin struct {
	ID     string `db:"id" json:"id"`
	UserID string `db:"user_id" json:"user_id"`
}

// UserProfile is a user together with whichever role profile it owns.
type UserProfile struct {
	User
	Student *Student `json:"student,omitempty"`
	Teacher *Teacher `json:"teacher,omitempty"`
	Admin   *Admin   `json:"admin,omitempty"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role     *UserRole
	BranchID string
	Page     int
	PageSize int
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
