package models

import "time"

// TeachingAssignment means a teacher teaches a course to one cohort for one term.
type TeachingAssignment struct {
	ID           string    `db:"id" json:"id"`
	TeacherID    string    `db:"teacher_id" json:"teacher_id"`
	CourseID     string    `db:"course_id" json:"course_id"`
	BranchID     string    `db:"branch_id" json:"branch_id"`
	Semester     int       `db:"semester" json:"semester"`
	AcademicYear string    `db:"academic_year" json:"academic_year"`
	Section      Section   `db:"section" json:"section"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// RosterScope returns the cohort whose enrollments feed this assignment's sessions.
func (a TeachingAssignment) RosterScope() RosterScope {
	return RosterScope{
		CourseID: a.CourseID,
		Semester: a.Semester,
		Section:  a.Section,
		BranchID: a.BranchID,
	}
}

// TeachingAssignmentDetail enriches assignments with course and branch fields.
type TeachingAssignmentDetail struct {
	TeachingAssignment
	CourseCode  string `db:"course_code" json:"course_code"`
	CourseName  string `db:"course_name" json:"course_name"`
	BranchName  string `db:"branch_name" json:"branch_name"`
	TeacherName string `db:"teacher_name" json:"teacher_name,omitempty"`
}
