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

const attendanceColumns = `id, session_id, student_id, enrollment_id, present, marked_by, marked_at`

const upsertAttendanceQuery = `INSERT INTO attendance (id, session_id, student_id, enrollment_id, present, marked_by, marked_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (session_id, student_id)
DO UPDATE SET present = EXCLUDED.present, marked_by = EXCLUDED.marked_by, marked_at = EXCLUDED.marked_at
RETURNING ` + attendanceColumns

// AttendanceRepository persists per-session attendance rows.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs an AttendanceRepository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// BulkCreateTx inserts roster rows inside tx. Any failure aborts the batch.
func (r *AttendanceRepository) BulkCreateTx(ctx context.Context, tx *sqlx.Tx, rows []models.Attendance) error {
	if tx == nil {
		return fmt.Errorf("nil transaction provided")
	}
	const query = `INSERT INTO attendance (id, session_id, student_id, enrollment_id, present, marked_by, marked_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	now := time.Now().UTC()
	for i := range rows {
		row := &rows[i]
		if row.ID == "" {
			row.ID = uuid.NewString()
		}
		if row.MarkedAt.IsZero() {
			row.MarkedAt = now
		}
		if _, err := tx.ExecContext(ctx, query, row.ID, row.SessionID, row.StudentID, row.EnrollmentID, row.Present, row.MarkedBy, row.MarkedAt); err != nil {
			return fmt.Errorf("bulk insert attendance for student %s: %w", row.StudentID, err)
		}
	}
	return nil
}

// Upsert creates or updates the row keyed by (session_id, student_id). An existing
// row keeps its enrollment_id.
func (r *AttendanceRepository) Upsert(ctx context.Context, record *models.Attendance) (*models.Attendance, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.MarkedAt.IsZero() {
		record.MarkedAt = time.Now().UTC()
	}
	var stored models.Attendance
	if err := r.db.GetContext(ctx, &stored, upsertAttendanceQuery, record.ID, record.SessionID, record.StudentID, record.EnrollmentID, record.Present, record.MarkedBy, record.MarkedAt); err != nil {
		return nil, fmt.Errorf("upsert attendance: %w", err)
	}
	return &stored, nil
}

// FindByID fetches an attendance row.
func (r *AttendanceRepository) FindByID(ctx context.Context, id string) (*models.Attendance, error) {
	query := `SELECT ` + attendanceColumns + ` FROM attendance WHERE id = $1`
	var record models.Attendance
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		if err == sql.ErrNoRows || IsInvalidText(err) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find attendance by id: %w", err)
	}
	return &record, nil
}

// UpdatePresence overwrites present, marked_by and marked_at of a single row.
func (r *AttendanceRepository) UpdatePresence(ctx context.Context, id string, present bool, markedBy string, markedAt time.Time) (*models.Attendance, error) {
	query := `UPDATE attendance SET present = $2, marked_by = $3, marked_at = $4 WHERE id = $1 RETURNING ` + attendanceColumns
	var record models.Attendance
	if err := r.db.GetContext(ctx, &record, query, id, present, markedBy, markedAt); err != nil {
		if err == sql.ErrNoRows || IsInvalidText(err) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("update attendance: %w", err)
	}
	return &record, nil
}

// ListBySession returns the session's rows with student identity ordered by roll number.
func (r *AttendanceRepository) ListBySession(ctx context.Context, sessionID string) ([]models.SessionAttendanceRow, error) {
	const query = `SELECT a.id, a.session_id, a.student_id, a.enrollment_id, a.present, a.marked_by, a.marked_at,
s.roll_number, u.first_name, u.last_name
FROM attendance a
JOIN students s ON s.id = a.student_id
JOIN users u ON u.id = s.user_id
WHERE a.session_id = $1
ORDER BY s.roll_number ASC`
	var rows []models.SessionAttendanceRow
	if err := r.db.SelectContext(ctx, &rows, query, sessionID); err != nil {
		return nil, fmt.Errorf("list session attendance: %w", err)
	}
	return rows, nil
}

// SessionStatsByAssignment tallies presence per session, oldest first.
func (r *AttendanceRepository) SessionStatsByAssignment(ctx context.Context, assignmentID string) ([]models.SessionStat, error) {
	const query = `SELECT se.id AS session_id, se.date, se.topic,
COALESCE(SUM(CASE WHEN a.present THEN 1 ELSE 0 END), 0) AS present,
COUNT(a.id) - COALESCE(SUM(CASE WHEN a.present THEN 1 ELSE 0 END), 0) AS absent
FROM sessions se
LEFT JOIN attendance a ON a.session_id = se.id
WHERE se.assignment_id = $1
GROUP BY se.id
ORDER BY se.date ASC, se.created_at ASC`
	var stats []models.SessionStat
	if err := r.db.SelectContext(ctx, &stats, query, assignmentID); err != nil {
		return nil, fmt.Errorf("session attendance stats: %w", err)
	}
	return stats, nil
}

// StudentStatsByAssignment tallies presence per student across the assignment's sessions.
func (r *AttendanceRepository) StudentStatsByAssignment(ctx context.Context, assignmentID string) ([]models.StudentStat, error) {
	const query = `SELECT a.student_id, s.roll_number, u.first_name, u.last_name,
COALESCE(SUM(CASE WHEN a.present THEN 1 ELSE 0 END), 0) AS present,
COALESCE(SUM(CASE WHEN a.present THEN 0 ELSE 1 END), 0) AS absent
FROM attendance a
JOIN sessions se ON se.id = a.session_id
JOIN students s ON s.id = a.student_id
JOIN users u ON u.id = s.user_id
WHERE se.assignment_id = $1
GROUP BY a.student_id, s.roll_number, u.first_name, u.last_name
ORDER BY s.roll_number ASC`
	var stats []models.StudentStat
	if err := r.db.SelectContext(ctx, &stats, query, assignmentID); err != nil {
		return nil, fmt.Errorf("student attendance stats: %w", err)
	}
	return stats, nil
}

// CountsByStudent tallies attendance rows per active enrollment of the student.
func (r *AttendanceRepository) CountsByStudent(ctx context.Context, studentID string) ([]models.EnrollmentAttendanceCount, error) {
	const query = `SELECT e.id AS enrollment_id, c.code AS course_code, c.name AS course_name,
COUNT(a.id) AS total_sessions,
COALESCE(SUM(CASE WHEN a.present THEN 1 ELSE 0 END), 0) AS attended_sessions
FROM enrollments e
JOIN courses c ON c.id = e.course_id
LEFT JOIN attendance a ON a.enrollment_id = e.id
WHERE e.student_id = $1 AND e.active = TRUE
GROUP BY e.id, c.code, c.name
ORDER BY c.code ASC`
	var counts []models.EnrollmentAttendanceCount
	if err := r.db.SelectContext(ctx, &counts, query, studentID); err != nil {
		return nil, fmt.Errorf("count student attendance: %w", err)
	}
	return counts, nil
}

// HistoryByEnrollment lists the session marks recorded against an enrollment.
func (r *AttendanceRepository) HistoryByEnrollment(ctx context.Context, enrollmentID string) ([]models.CourseAttendanceEntry, error) {
	const query = `SELECT a.session_id, se.date, se.topic, a.present, a.marked_at
FROM attendance a
JOIN sessions se ON se.id = a.session_id
WHERE a.enrollment_id = $1
ORDER BY se.date ASC, se.created_at ASC`
	var entries []models.CourseAttendanceEntry
	if err := r.db.SelectContext(ctx, &entries, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("enrollment attendance history: %w", err)
	}
	return entries, nil
}
