package models

import "time"

// Course is offered by a branch in a given semester.
type Course struct {
	ID        string    `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	Semester  int       `db:"semester" json:"semester"`
	BranchID  string    `db:"branch_id" json:"branch_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// CourseDetail adds the owning branch name.
type CourseDetail struct {
	Course
	BranchName string `db:"branch_name" json:"branch_name"`
}

// CourseFilter narrows course listings.
type CourseFilter struct {
	BranchID string
	Semester *int
}
