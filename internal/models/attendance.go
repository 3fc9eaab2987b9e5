package models

import (
	"math"
	"time"
)

// Attendance is one student's presence in one session. Unique per (session, student).
type Attendance struct {
	ID           string    `db:"id" json:"id"`
	SessionID    string    `db:"session_id" json:"session_id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	EnrollmentID string    `db:"enrollment_id" json:"enrollment_id"`
	Present      bool      `db:"present" json:"present"`
	MarkedBy     string    `db:"marked_by" json:"marked_by"`
	MarkedAt     time.Time `db:"marked_at" json:"marked_at"`
}

// AttendanceMark is a teacher-submitted presence flag for a student.
type AttendanceMark struct {
	StudentID string `json:"student_id" validate:"required"`
	Present   bool   `json:"present"`
}

// OutcomeStatus is the per-item result of a reconciliation.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeFailed  OutcomeStatus = "failed"
)

// AttendanceOutcome reports what happened to a single submitted mark.
type AttendanceOutcome struct {
	StudentID  string        `json:"student_id"`
	RollNumber string        `json:"roll_number,omitempty"`
	Status     OutcomeStatus `json:"status"`
	Attendance *Attendance   `json:"attendance,omitempty"`
	Reason     string        `json:"reason,omitempty"`
}

// ReconcileResult lists outcomes in submission order with tallies.
type ReconcileResult struct {
	SessionID string              `json:"session_id"`
	Results   []AttendanceOutcome `json:"results"`
	Processed int                 `json:"processed"`
	Succeeded int                 `json:"succeeded"`
	Failed    int                 `json:"failed"`
}

// Tally recomputes the counters from Results.
func (r *ReconcileResult) Tally() {
	r.Processed = len(r.Results)
	r.Succeeded, r.Failed = 0, 0
	for _, outcome := range r.Results {
		if outcome.Status == OutcomeSuccess {
			r.Succeeded++
		} else {
			r.Failed++
		}
	}
}

// SessionAttendanceRow is an attendance row joined with student identity.
type SessionAttendanceRow struct {
	Attendance
	RollNumber string `db:"roll_number" json:"roll_number"`
	FirstName  string `db:"first_name" json:"first_name"`
	LastName   string `db:"last_name" json:"last_name"`
}

// SessionStat aggregates presence for one session of an assignment.
type SessionStat struct {
	SessionID string    `db:"session_id" json:"session_id"`
	Date      time.Time `db:"date" json:"date"`
	Topic     *string   `db:"topic" json:"topic,omitempty"`
	Present   int       `db:"present" json:"present"`
	Absent    int       `db:"absent" json:"absent"`
	Rate      int       `db:"-" json:"rate"`
}

// StudentStat aggregates presence for one student across an assignment's sessions.
type StudentStat struct {
	StudentID  string `db:"student_id" json:"student_id"`
	RollNumber string `db:"roll_number" json:"roll_number"`
	FirstName  string `db:"first_name" json:"first_name"`
	LastName   string `db:"last_name" json:"last_name"`
	Present    int    `db:"present" json:"present"`
	Absent     int    `db:"absent" json:"absent"`
	Rate       int    `db:"-" json:"rate"`
}

// AssignmentStats is the teacher analytics view of one assignment.
type AssignmentStats struct {
	AssignmentID string        `json:"assignment_id"`
	Sessions     []SessionStat `json:"sessions"`
	Students     []StudentStat `json:"students"`
	TotalPresent int           `json:"total_present"`
	TotalMarks   int           `json:"total_marks"`
	OverallRate  int           `json:"overall_rate"`
}

// AttendanceStatus buckets an attendance percentage.
type AttendanceStatus string

const (
	StatusGood     AttendanceStatus = "Good"
	StatusWarning  AttendanceStatus = "Warning"
	StatusCritical AttendanceStatus = "Critical"
)

// StatusThresholds holds the minimum percentages for Good and Warning.
type StatusThresholds struct {
	Good    int
	Warning int
}

// DefaultStatusThresholds mirrors the dashboard colour bands.
var DefaultStatusThresholds = StatusThresholds{Good: 75, Warning: 50}

// Classify returns the status bucket for percentage.
func (t StatusThresholds) Classify(percentage int) AttendanceStatus {
	switch {
	case percentage >= t.Good:
		return StatusGood
	case percentage >= t.Warning:
		return StatusWarning
	default:
		return StatusCritical
	}
}

// Percentage returns attended/total as a whole percentage rounded half up. Zero total yields 0.
func Percentage(attended, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Floor(float64(attended)*100/float64(total) + 0.5))
}

// EnrollmentAttendanceCount is the raw per-enrollment tally read from storage.
type EnrollmentAttendanceCount struct {
	EnrollmentID     string `db:"enrollment_id"`
	CourseCode       string `db:"course_code"`
	CourseName       string `db:"course_name"`
	TotalSessions    int    `db:"total_sessions"`
	AttendedSessions int    `db:"attended_sessions"`
}

// CourseAttendanceSummary is one row of the student overview.
type CourseAttendanceSummary struct {
	EnrollmentID     string           `json:"enrollment_id"`
	CourseCode       string           `json:"course_code"`
	CourseName       string           `json:"course_name"`
	TotalSessions    int              `json:"total_sessions"`
	AttendedSessions int              `json:"attended_sessions"`
	Percentage       int              `json:"percentage"`
	Status           AttendanceStatus `json:"status"`
}

// AttendanceOverview is the student dashboard payload.
type AttendanceOverview struct {
	StudentID        string                    `json:"student_id"`
	Courses          []CourseAttendanceSummary `json:"courses"`
	TotalSessions    int                       `json:"total_sessions"`
	AttendedSessions int                       `json:"attended_sessions"`
	Percentage       int                       `json:"percentage"`
	Status           AttendanceStatus          `json:"status"`
}

// CourseAttendanceEntry is the student's mark for one session of a course.
type CourseAttendanceEntry struct {
	SessionID string    `db:"session_id" json:"session_id"`
	Date      time.Time `db:"date" json:"date"`
	Topic     *string   `db:"topic" json:"topic,omitempty"`
	Present   bool      `db:"present" json:"present"`
	MarkedAt  time.Time `db:"marked_at" json:"marked_at"`
}

// CourseAttendance is the session-by-session history for one enrollment.
type CourseAttendance struct {
	Enrollment EnrollmentDetail        `json:"enrollment"`
	Entries    []CourseAttendanceEntry `json:"entries"`
	Summary    CourseAttendanceSummary `json:"summary"`
}
