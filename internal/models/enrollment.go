package models

import "time"

// Enrollment registers a student for a course in one semester and academic year.
type Enrollment struct {
	ID           string    `db:"id" json:"id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	CourseID     string    `db:"course_id" json:"course_id"`
	Semester     int       `db:"semester" json:"semester"`
	AcademicYear string    `db:"academic_year" json:"academic_year"`
	Section      Section   `db:"section" json:"section"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// EnrollmentDetail enriches Enrollment with course info.
type EnrollmentDetail struct {
	Enrollment
	CourseCode string `db:"course_code" json:"course_code"`
	CourseName string `db:"course_name" json:"course_name"`
}

// RosterScope identifies the cohort of a teaching assignment: enrollments in the course,
// semester and section whose student belongs to the branch.
type RosterScope struct {
	CourseID string
	Semester int
	Section  Section
	BranchID string
}

// RosterEntry is one eligible enrollment captured by a roster query.
type RosterEntry struct {
	EnrollmentID string `db:"enrollment_id"`
	StudentID    string `db:"student_id"`
}
